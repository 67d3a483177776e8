package store

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/starchart/internal/database"
	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/recurrence"
)

// Thursday Oct 15 2026, mid-afternoon.
var thursday = time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)

// testClock is a clock the test can move.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testStores struct {
	db          *sql.DB
	clock       *testClock
	members     *MemberStore
	tasks       *TaskStore
	completions *CompletionStore
	rewards     *RewardStore
}

func newTestStores(t *testing.T, db *sql.DB) *testStores {
	t.Helper()
	t.Cleanup(func() { db.Close() })
	clock := &testClock{now: thursday}
	return &testStores{
		db:          db,
		clock:       clock,
		members:     NewMemberStore(db),
		tasks:       NewTaskStore(db),
		completions: NewCompletionStore(db, clock),
		rewards:     NewRewardStore(db, clock),
	}
}

func setupTestDB(t *testing.T) *testStores {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return newTestStores(t, db)
}

// setupFileDB uses a real file so that several connections share one
// database.
func setupFileDB(t *testing.T) *testStores {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return newTestStores(t, db)
}

func (s *testStores) parent(t *testing.T, name string) *model.Member {
	t.Helper()
	m, err := s.members.Create(name, model.RoleParent, "#111111", "👩")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	return m
}

func (s *testStores) child(t *testing.T, name string) *model.Member {
	t.Helper()
	m, err := s.members.Create(name, model.RoleChild, "#222222", "🧒")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return m
}

func (s *testStores) task(t *testing.T, rule string, mode model.ApprovalMode, childIDs ...int64) *model.Task {
	t.Helper()
	r, err := recurrence.Parse(rule)
	if err != nil {
		t.Fatalf("parse rule: %v", err)
	}
	tk, err := s.tasks.Create(TaskParams{
		Title:            "Make bed",
		StarValue:        5,
		Recurrence:       r,
		AssignedChildIDs: childIDs,
		ProofRequirement: model.ProofNone,
		ApprovalMode:     mode,
		Active:           true,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return tk
}

func (s *testStores) balance(t *testing.T, id int64) int {
	t.Helper()
	m, err := s.members.GetByID(id)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m == nil {
		t.Fatalf("member %d not found", id)
	}
	return m.StarBalance
}
