package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotPending        = errors.New("already reviewed")
	ErrInsufficientStars = errors.New("not enough stars")
	ErrRewardInactive    = errors.New("reward is not available")
	ErrInUse             = errors.New("record is referenced by history")
)

// queryer is satisfied by both *sql.DB and *sql.Tx so lookups can run
// inside or outside a transaction.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type scanner interface{ Scan(...any) error }

func isConstraintErr(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

// adjustStars changes a member's balance by delta. Debits only apply when
// the balance covers them.
func adjustStars(q queryer, memberID int64, delta int) error {
	res, err := q.Exec(
		`UPDATE members SET star_balance = star_balance + ? WHERE id = ? AND star_balance + ? >= 0`,
		delta, memberID, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust stars: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if delta < 0 {
			return ErrInsufficientStars
		}
		return ErrNotFound
	}
	return nil
}
