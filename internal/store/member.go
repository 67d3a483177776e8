package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/starchart/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, name, role, color, avatar_emoji, pin IS NOT NULL, star_balance, sort_order, created_at, updated_at`

func scanMember(s scanner) (*model.Member, error) {
	var m model.Member
	err := s.Scan(&m.ID, &m.Name, &m.Role, &m.Color, &m.AvatarEmoji, &m.HasPIN, &m.StarBalance, &m.SortOrder, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MemberStore) Create(name string, role model.Role, color, avatarEmoji string) (*model.Member, error) {
	var maxOrder int
	err := s.db.QueryRow("SELECT COALESCE(MAX(sort_order), -1) FROM members").Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.Exec(
		"INSERT INTO members (name, role, color, avatar_emoji, sort_order) VALUES (?, ?, ?, ?, ?)",
		name, role, color, avatarEmoji, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *MemberStore) List() ([]model.Member, error) {
	return s.list("SELECT " + memberCols + " FROM members ORDER BY sort_order, name")
}

func (s *MemberStore) ListChildren() ([]model.Member, error) {
	return s.list("SELECT "+memberCols+" FROM members WHERE role = ? ORDER BY sort_order, name", model.RoleChild)
}

func (s *MemberStore) list(query string, args ...any) ([]model.Member, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	return getMember(s.db, id)
}

func getMember(q queryer, id int64) (*model.Member, error) {
	m, err := scanMember(q.QueryRow("SELECT "+memberCols+" FROM members WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) Update(id int64, name, color, avatarEmoji string) (*model.Member, error) {
	_, err := s.db.Exec(
		"UPDATE members SET name = ?, color = ?, avatar_emoji = ? WHERE id = ?",
		name, color, avatarEmoji, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes a member. Members with completions or redemptions on
// record cannot be deleted and return ErrInUse.
func (s *MemberStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM members WHERE id = ?", id)
	if isConstraintErr(err) {
		return ErrInUse
	}
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (s *MemberStore) UpdateSortOrder(ids []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE members SET sort_order = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.Exec(i, id); err != nil {
			return fmt.Errorf("update sort order for id %d: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *MemberStore) SetPIN(id int64, hashedPIN string) error {
	_, err := s.db.Exec("UPDATE members SET pin = ? WHERE id = ?", hashedPIN, id)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *MemberStore) ClearPIN(id int64) error {
	_, err := s.db.Exec("UPDATE members SET pin = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// GetPINHash returns "" when the member has no PIN.
func (s *MemberStore) GetPINHash(id int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRow("SELECT pin FROM members WHERE id = ?", id).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	return pin.String, nil
}

// CountParents returns how many parents the family has.
func (s *MemberStore) CountParents() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM members WHERE role = ?", model.RoleParent).Scan(&n); err != nil {
		return 0, fmt.Errorf("count parents: %w", err)
	}
	return n, nil
}

func (s *MemberStore) NameExists(name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM members WHERE name = ? AND id != ?",
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check name exists: %w", err)
	}
	return count > 0, nil
}

// Leaderboard returns every child's standing, highest balance first.
func (s *MemberStore) Leaderboard() ([]model.StarStanding, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.name, m.avatar_emoji, m.star_balance,
			COALESCE((SELECT SUM(stars_awarded) FROM task_completions
				WHERE child_id = m.id AND status = 'approved'), 0),
			COALESCE((SELECT SUM(star_cost) FROM reward_redemptions
				WHERE child_id = m.id AND status = 'approved'), 0)
		FROM members m
		WHERE m.role = 'child'
		ORDER BY m.star_balance DESC, m.sort_order, m.name`)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var standings []model.StarStanding
	for rows.Next() {
		var st model.StarStanding
		if err := rows.Scan(&st.MemberID, &st.MemberName, &st.AvatarEmoji, &st.StarBalance, &st.TotalEarned, &st.TotalSpent); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}
