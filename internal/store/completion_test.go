package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/task"
)

func TestSubmitAutoApproveCreditsStars(t *testing.T) {
	s := setupTestDB(t)
	kid := s.child(t, "Alice")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalAuto, kid.ID)

	c, err := s.completions.Submit(tk.ID, kid.ID, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.Status != model.CompletionApproved {
		t.Errorf("status = %q, want approved", c.Status)
	}
	if c.StarsAwarded != 5 {
		t.Errorf("stars_awarded = %d, want 5", c.StarsAwarded)
	}
	if c.PeriodKey != "D2026-10-15" {
		t.Errorf("period_key = %q, want D2026-10-15", c.PeriodKey)
	}
	if !c.CompletedAt.Equal(thursday) {
		t.Errorf("completed_at = %v, want %v", c.CompletedAt, thursday)
	}
	if got := s.balance(t, kid.ID); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
}

func TestSubmitParentApprovalStaysPending(t *testing.T) {
	s := setupTestDB(t)
	kid := s.child(t, "Alice")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalParent, kid.ID)

	c, err := s.completions.Submit(tk.ID, kid.ID, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.Status != model.CompletionPending {
		t.Errorf("status = %q, want pending", c.Status)
	}
	if got := s.balance(t, kid.ID); got != 0 {
		t.Errorf("balance = %d, want 0 until approved", got)
	}

	// A second submit while pending is refused.
	if _, err := s.completions.Submit(tk.ID, kid.ID, nil); !errors.Is(err, task.ErrAlreadyHandled) {
		t.Errorf("second submit err = %v, want ErrAlreadyHandled", err)
	}
}

func TestSubmitSamePeriodRefusedNextPeriodAllowed(t *testing.T) {
	s := setupTestDB(t)
	kid := s.child(t, "Alice")
	tk := s.task(t, "FREQ=WEEKLY;BYDAY=MO", model.ApprovalAuto, kid.ID)

	if _, err := s.completions.Submit(tk.ID, kid.ID, nil); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Saturday of the same week.
	s.clock.Set(thursday.AddDate(0, 0, 2))
	if _, err := s.completions.Submit(tk.ID, kid.ID, nil); !errors.Is(err, task.ErrAlreadyHandled) {
		t.Fatalf("same week err = %v, want ErrAlreadyHandled", err)
	}

	// Sunday starts a new week.
	s.clock.Set(time.Date(2026, 10, 18, 0, 0, 1, 0, time.UTC))
	c, err := s.completions.Submit(tk.ID, kid.ID, nil)
	if err != nil {
		t.Fatalf("next week submit: %v", err)
	}
	if c.PeriodKey != "W2026-10-18" {
		t.Errorf("period_key = %q, want W2026-10-18", c.PeriodKey)
	}
	if got := s.balance(t, kid.ID); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
}

func TestSubmitOneTimeOnlyOnce(t *testing.T) {
	s := setupTestDB(t)
	kid := s.child(t, "Alice")
	tk := s.task(t, "", model.ApprovalAuto, kid.ID)

	if _, err := s.completions.Submit(tk.ID, kid.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s.clock.Set(thursday.AddDate(1, 0, 0))
	if _, err := s.completions.Submit(tk.ID, kid.ID, nil); !errors.Is(err, task.ErrAlreadyHandled) {
		t.Errorf("err = %v, want ErrAlreadyHandled", err)
	}
}

func TestSubmitInactiveTaskWritesNothing(t *testing.T) {
	s := setupTestDB(t)
	kid := s.child(t, "Alice")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalAuto, kid.ID)
	if err := s.tasks.SetActive(tk.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := s.completions.Submit(tk.ID, kid.ID, nil); !errors.Is(err, task.ErrTaskInactive) {
		t.Fatalf("err = %v, want ErrTaskInactive", err)
	}
	history, _ := s.completions.ListByChild(kid.ID, "")
	if len(history) != 0 {
		t.Errorf("completions = %d, want 0", len(history))
	}
	if got := s.balance(t, kid.ID); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestSubmitErrors(t *testing.T) {
	s := setupTestDB(t)
	a := s.child(t, "Alice")
	b := s.child(t, "Bob")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalAuto, a.ID)

	if _, err := s.completions.Submit(999, a.ID, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing task err = %v, want ErrNotFound", err)
	}
	if _, err := s.completions.Submit(tk.ID, b.ID, nil); !errors.Is(err, task.ErrNotAssigned) {
		t.Errorf("unassigned err = %v, want ErrNotAssigned", err)
	}
}

func TestSubmitProofRequired(t *testing.T) {
	s := setupTestDB(t)
	kid := s.child(t, "Alice")
	tk, err := s.tasks.Create(TaskParams{
		Title:            "Clean room",
		StarValue:        2,
		AssignedChildIDs: []int64{kid.ID},
		ProofRequirement: model.ProofPhoto,
		ApprovalMode:     model.ApprovalParent,
		Active:           true,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if _, err := s.completions.Submit(tk.ID, kid.ID, nil); !errors.Is(err, task.ErrProofRequired) {
		t.Fatalf("err = %v, want ErrProofRequired", err)
	}

	img := []byte{0x89, 'P', 'N', 'G'}
	c, err := s.completions.Submit(tk.ID, kid.ID, img)
	if err != nil {
		t.Fatalf("submit with proof: %v", err)
	}
	if !c.HasProof {
		t.Error("expected has_proof")
	}
	got, err := s.completions.GetProofImage(c.ID)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if string(got) != string(img) {
		t.Errorf("proof = %v, want %v", got, img)
	}
}

func TestSubmitConcurrentOnlyOneWins(t *testing.T) {
	s := setupFileDB(t)
	kid := s.child(t, "Alice")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalAuto, kid.ID)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.completions.Submit(tk.ID, kid.ID, nil)
		}()
	}
	wg.Wait()

	var ok, handled int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, task.ErrAlreadyHandled):
			handled++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || handled != attempts-1 {
		t.Errorf("ok = %d, handled = %d, want 1 and %d", ok, handled, attempts-1)
	}

	live, err := s.completions.ListLive(tk.ID, kid.ID)
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	if len(live) != 1 {
		t.Errorf("live completions = %d, want 1", len(live))
	}
	if got := s.balance(t, kid.ID); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
}

func TestApproveCreditsOnce(t *testing.T) {
	s := setupTestDB(t)
	mom := s.parent(t, "Mom")
	kid := s.child(t, "Alice")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalParent, kid.ID)

	c, err := s.completions.Submit(tk.ID, kid.ID, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	s.clock.Set(thursday.Add(time.Hour))
	approved, err := s.completions.Approve(c.ID, mom.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.CompletionApproved {
		t.Errorf("status = %q, want approved", approved.Status)
	}
	if approved.ReviewedBy == nil || *approved.ReviewedBy != mom.ID {
		t.Errorf("reviewed_by = %v, want %d", approved.ReviewedBy, mom.ID)
	}
	if approved.ReviewedAt == nil || !approved.ReviewedAt.Equal(thursday.Add(time.Hour)) {
		t.Errorf("reviewed_at = %v", approved.ReviewedAt)
	}
	if got := s.balance(t, kid.ID); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}

	if _, err := s.completions.Approve(c.ID, mom.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("second approve err = %v, want ErrNotPending", err)
	}
	if _, err := s.completions.Reject(c.ID, mom.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("reject after approve err = %v, want ErrNotPending", err)
	}
	if got := s.balance(t, kid.ID); got != 5 {
		t.Errorf("balance = %d, want still 5", got)
	}
}

func TestApproveUsesSnapshotStars(t *testing.T) {
	s := setupTestDB(t)
	mom := s.parent(t, "Mom")
	kid := s.child(t, "Alice")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalParent, kid.ID)

	c, err := s.completions.Submit(tk.ID, kid.ID, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.tasks.Update(tk.ID, TaskParams{
		Title: tk.Title, StarValue: 50, Recurrence: tk.Recurrence,
		AssignedChildIDs: tk.AssignedChildIDs, ProofRequirement: tk.ProofRequirement,
		ApprovalMode: tk.ApprovalMode, Active: true,
	}); err != nil {
		t.Fatalf("update task: %v", err)
	}

	if _, err := s.completions.Approve(c.ID, mom.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := s.balance(t, kid.ID); got != 5 {
		t.Errorf("balance = %d, want 5 (value at submission)", got)
	}
}

func TestRejectFreesPeriod(t *testing.T) {
	s := setupTestDB(t)
	mom := s.parent(t, "Mom")
	kid := s.child(t, "Alice")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalParent, kid.ID)

	c, err := s.completions.Submit(tk.ID, kid.ID, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	rejected, err := s.completions.Reject(c.ID, mom.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.CompletionRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}
	if got := s.balance(t, kid.ID); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}

	again, err := s.completions.Submit(tk.ID, kid.ID, nil)
	if err != nil {
		t.Fatalf("resubmit after reject: %v", err)
	}
	if again.PeriodKey != c.PeriodKey {
		t.Errorf("period_key = %q, want %q", again.PeriodKey, c.PeriodKey)
	}

	history, _ := s.completions.ListByChild(kid.ID, "")
	if len(history) != 2 {
		t.Errorf("history = %d, want 2 (rejected kept)", len(history))
	}
	onlyRejected, _ := s.completions.ListByChild(kid.ID, model.CompletionRejected)
	if len(onlyRejected) != 1 || onlyRejected[0].ID != c.ID {
		t.Errorf("rejected filter = %+v", onlyRejected)
	}
}

func TestReviewNotFound(t *testing.T) {
	s := setupTestDB(t)
	mom := s.parent(t, "Mom")

	if _, err := s.completions.Approve(999, mom.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("approve err = %v, want ErrNotFound", err)
	}
	if _, err := s.completions.Reject(999, mom.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("reject err = %v, want ErrNotFound", err)
	}
}

func TestListPendingOldestFirst(t *testing.T) {
	s := setupTestDB(t)
	a := s.child(t, "Alice")
	b := s.child(t, "Bob")
	tk := s.task(t, "FREQ=DAILY", model.ApprovalParent, a.ID, b.ID)

	first, err := s.completions.Submit(tk.ID, b.ID, nil)
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}
	s.clock.Set(thursday.Add(time.Minute))
	second, err := s.completions.Submit(tk.ID, a.ID, nil)
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}

	pending, err := s.completions.ListPending()
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Errorf("pending = %+v, want [%d %d]", pending, first.ID, second.ID)
	}
}

func TestLiveByTaskFeedsPartition(t *testing.T) {
	s := setupTestDB(t)
	kid := s.child(t, "Alice")
	daily := s.task(t, "FREQ=DAILY", model.ApprovalAuto, kid.ID)
	weekly := s.task(t, "FREQ=WEEKLY;BYDAY=SA", model.ApprovalParent, kid.ID)
	once := s.task(t, "", model.ApprovalAuto, kid.ID)

	s.clock.Set(thursday.AddDate(0, 0, -1))
	if _, err := s.completions.Submit(daily.ID, kid.ID, nil); err != nil {
		t.Fatalf("submit daily: %v", err)
	}
	s.clock.Set(thursday)
	if _, err := s.completions.Submit(weekly.ID, kid.ID, nil); err != nil {
		t.Fatalf("submit weekly: %v", err)
	}
	if _, err := s.completions.Submit(once.ID, kid.ID, nil); err != nil {
		t.Fatalf("submit once: %v", err)
	}

	tasks, err := s.tasks.ListForChild(kid.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	live, err := s.completions.LiveByTask(kid.ID)
	if err != nil {
		t.Fatalf("live by task: %v", err)
	}

	p := task.PartitionTasks(tasks, live, kid.ID, thursday)
	if len(p.Available) != 1 || p.Available[0].ID != daily.ID {
		t.Errorf("available = %+v, want daily task", p.Available)
	}
	if len(p.PendingApproval) != 1 || p.PendingApproval[0].ID != weekly.ID {
		t.Errorf("pending = %+v, want weekly task", p.PendingApproval)
	}
	if len(p.Completed) != 1 || p.Completed[0].ID != once.ID {
		t.Errorf("completed = %+v, want one-time task", p.Completed)
	}
}
