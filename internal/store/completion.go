package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/task"
)

type CompletionStore struct {
	db    *sql.DB
	clock task.Clock
}

func NewCompletionStore(db *sql.DB, clock task.Clock) *CompletionStore {
	return &CompletionStore{db: db, clock: clock}
}

// Proof images are only loaded by GetProofImage; list queries report
// whether one exists.
const completionCols = `id, task_id, child_id, status, period_key, stars_awarded, proof_image IS NOT NULL, completed_at, reviewed_at, reviewed_by`

func scanCompletion(s scanner) (*model.TaskCompletion, error) {
	var c model.TaskCompletion
	var reviewedAt sql.NullTime
	var reviewedBy sql.NullInt64

	err := s.Scan(
		&c.ID, &c.TaskID, &c.ChildID, &c.Status, &c.PeriodKey, &c.StarsAwarded,
		&c.HasProof, &c.CompletedAt, &reviewedAt, &reviewedBy,
	)
	if err != nil {
		return nil, err
	}
	c.ReviewedAt = timePtr(reviewedAt)
	c.ReviewedBy = int64Ptr(reviewedBy)
	return &c, nil
}

func collectCompletions(rows *sql.Rows) ([]model.TaskCompletion, error) {
	defer rows.Close()

	var completions []model.TaskCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}

// --- Submission guard ---

// Submit records that childID finished taskID. The task is re-read and
// eligibility re-evaluated inside a single write transaction, so two
// concurrent submits for the same period produce exactly one completion
// and at most one star credit; the other gets task.ErrAlreadyHandled.
//
// Auto-approved tasks credit the child's balance in the same transaction.
func (s *CompletionStore) Submit(taskID, childID int64, proof []byte) (*model.TaskCompletion, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := getTask(tx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	if !t.Active {
		return nil, task.ErrTaskInactive
	}
	if !t.IsAssignedTo(childID) {
		return nil, task.ErrNotAssigned
	}
	if t.ProofRequirement == model.ProofPhoto && len(proof) == 0 {
		return nil, task.ErrProofRequired
	}

	live, err := listLive(tx, taskID, childID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if task.Evaluate(*t, live, now) != task.Available {
		return nil, task.ErrAlreadyHandled
	}

	status := t.InitialStatus()
	var proofArg any
	if len(proof) > 0 {
		proofArg = proof
	}

	result, err := tx.Exec(
		`INSERT INTO task_completions (task_id, child_id, status, period_key, stars_awarded, proof_image, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		taskID, childID, status, t.Recurrence.PeriodKey(now), t.StarValue, proofArg, now.UTC(),
	)
	if isUniqueViolation(err) {
		return nil, task.ErrAlreadyHandled
	}
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if status == model.CompletionApproved {
		if err := adjustStars(tx, childID, t.StarValue); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// listLive returns the child's pending and approved completions of a
// task, newest first.
func listLive(q queryer, taskID, childID int64) ([]model.TaskCompletion, error) {
	rows, err := q.Query(
		`SELECT `+completionCols+` FROM task_completions
		WHERE task_id = ? AND child_id = ? AND status IN ('pending', 'approved')
		ORDER BY completed_at DESC`,
		taskID, childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list live completions: %w", err)
	}
	return collectCompletions(rows)
}

// --- Parent review ---

// Approve moves a pending completion to approved and credits its stars.
func (s *CompletionStore) Approve(id, reviewerID int64) (*model.TaskCompletion, error) {
	return s.review(id, reviewerID, model.CompletionApproved)
}

// Reject moves a pending completion to rejected. The period slot frees up
// immediately.
func (s *CompletionStore) Reject(id, reviewerID int64) (*model.TaskCompletion, error) {
	return s.review(id, reviewerID, model.CompletionRejected)
}

func (s *CompletionStore) review(id, reviewerID int64, to model.CompletionStatus) (*model.TaskCompletion, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := getCompletion(tx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if c.Status.Terminal() {
		return nil, ErrNotPending
	}

	res, err := tx.Exec(
		`UPDATE task_completions SET status = ?, reviewed_at = ?, reviewed_by = ? WHERE id = ? AND status = 'pending'`,
		to, s.clock.Now().UTC(), reviewerID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update completion: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrNotPending
	}

	if to == model.CompletionApproved {
		if err := adjustStars(tx, c.ChildID, c.StarsAwarded); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// --- Queries ---

func (s *CompletionStore) GetByID(id int64) (*model.TaskCompletion, error) {
	return getCompletion(s.db, id)
}

func getCompletion(q queryer, id int64) (*model.TaskCompletion, error) {
	c, err := scanCompletion(q.QueryRow(`SELECT `+completionCols+` FROM task_completions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// GetProofImage returns nil when the completion has no proof.
func (s *CompletionStore) GetProofImage(id int64) ([]byte, error) {
	var img []byte
	err := s.db.QueryRow(`SELECT proof_image FROM task_completions WHERE id = ?`, id).Scan(&img)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proof image: %w", err)
	}
	return img, nil
}

// ListLive returns the child's pending and approved completions of a task,
// newest first.
func (s *CompletionStore) ListLive(taskID, childID int64) ([]model.TaskCompletion, error) {
	return listLive(s.db, taskID, childID)
}

// LiveByTask groups the child's pending and approved completions by task.
// It feeds task.PartitionTasks.
func (s *CompletionStore) LiveByTask(childID int64) (map[int64][]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM task_completions
		WHERE child_id = ? AND status IN ('pending', 'approved')
		ORDER BY completed_at DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list live completions: %w", err)
	}
	completions, err := collectCompletions(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[int64][]model.TaskCompletion)
	for _, c := range completions {
		out[c.TaskID] = append(out[c.TaskID], c)
	}
	return out, nil
}

// ListByChild returns a child's completion history, newest first. An empty
// status matches every status.
func (s *CompletionStore) ListByChild(childID int64, status model.CompletionStatus) ([]model.TaskCompletion, error) {
	query := `SELECT ` + completionCols + ` FROM task_completions WHERE child_id = ?`
	args := []any{childID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY completed_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions by child: %w", err)
	}
	return collectCompletions(rows)
}

// ListPending returns the review queue, oldest first.
func (s *CompletionStore) ListPending() ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT ` + completionCols + ` FROM task_completions WHERE status = 'pending' ORDER BY completed_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending completions: %w", err)
	}
	return collectCompletions(rows)
}
