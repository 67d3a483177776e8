package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/recurrence"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// TaskParams holds the parent-editable fields of a task.
type TaskParams struct {
	Title            string
	Description      string
	Category         string
	StarValue        int
	Recurrence       recurrence.Rule
	AssignedChildIDs []int64
	ProofRequirement model.ProofRequirement
	ApprovalMode     model.ApprovalMode
	Active           bool
	CreatedBy        *int64
}

const taskCols = `id, title, description, category, star_value, recurrence_rule, proof_requirement, approval_mode, active, created_by, created_at, updated_at`

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	var rule string
	var active int
	var createdBy sql.NullInt64

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Category, &t.StarValue, &rule,
		&t.ProofRequirement, &t.ApprovalMode, &active, &createdBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Recurrence, err = recurrence.Parse(rule)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", t.ID, err)
	}
	t.Active = active != 0
	t.CreatedBy = int64Ptr(createdBy)
	t.AssignedChildIDs = []int64{}
	return &t, nil
}

func (s *TaskStore) Create(p TaskParams) (*model.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO tasks (title, description, category, star_value, recurrence_rule, proof_requirement, approval_mode, active, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Description, p.Category, p.StarValue, p.Recurrence.String(),
		p.ProofRequirement, p.ApprovalMode, boolToInt(p.Active), nullInt64(p.CreatedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := setAssignees(tx, id, p.AssignedChildIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	return getTask(s.db, id)
}

func getTask(q queryer, id int64) (*model.Task, error) {
	t, err := scanTask(q.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	ids, err := loadAssignees(q, id)
	if err != nil {
		return nil, err
	}
	t.AssignedChildIDs = ids
	return t, nil
}

// List returns every task, active ones first.
func (s *TaskStore) List() ([]model.Task, error) {
	return s.list(`SELECT ` + taskCols + ` FROM tasks ORDER BY active DESC, category ASC, title ASC`)
}

// ListForChild returns the active tasks assigned to childID.
func (s *TaskStore) ListForChild(childID int64) ([]model.Task, error) {
	return s.list(
		`SELECT `+taskCols+` FROM tasks
		WHERE active = 1 AND id IN (SELECT task_id FROM task_assignees WHERE member_id = ?)
		ORDER BY category ASC, title ASC`,
		childID,
	)
}

func (s *TaskStore) list(query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	assignees, err := s.assigneesByTask()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if ids, ok := assignees[tasks[i].ID]; ok {
			tasks[i].AssignedChildIDs = ids
		}
	}
	return tasks, nil
}

func (s *TaskStore) Update(id int64, p TaskParams) (*model.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE tasks SET title = ?, description = ?, category = ?, star_value = ?, recurrence_rule = ?,
			proof_requirement = ?, approval_mode = ?, active = ?
		WHERE id = ?`,
		p.Title, p.Description, p.Category, p.StarValue, p.Recurrence.String(),
		p.ProofRequirement, p.ApprovalMode, boolToInt(p.Active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM task_assignees WHERE task_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear assignees: %w", err)
	}
	if err := setAssignees(tx, id, p.AssignedChildIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// SetActive toggles a task. Tasks are never hard-deleted because their
// completions are kept forever.
func (s *TaskStore) SetActive(id int64, active bool) error {
	_, err := s.db.Exec(`UPDATE tasks SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("set task active: %w", err)
	}
	return nil
}

// ListCategories returns the distinct non-empty categories in use.
func (s *TaskStore) ListCategories() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT category FROM tasks WHERE category != '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// --- Assignee helpers ---

func setAssignees(tx *sql.Tx, taskID int64, childIDs []int64) error {
	for _, childID := range childIDs {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO task_assignees (task_id, member_id) VALUES (?, ?)`,
			taskID, childID,
		); err != nil {
			return fmt.Errorf("assign member %d: %w", childID, err)
		}
	}
	return nil
}

func loadAssignees(q queryer, taskID int64) ([]int64, error) {
	rows, err := q.Query(`SELECT member_id FROM task_assignees WHERE task_id = ? ORDER BY member_id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query assignees: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *TaskStore) assigneesByTask() (map[int64][]int64, error) {
	rows, err := s.db.Query(`SELECT task_id, member_id FROM task_assignees ORDER BY task_id, member_id`)
	if err != nil {
		return nil, fmt.Errorf("query assignees: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]int64)
	for rows.Next() {
		var taskID, memberID int64
		if err := rows.Scan(&taskID, &memberID); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		out[taskID] = append(out[taskID], memberID)
	}
	return out, rows.Err()
}
