package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/starchart/internal/auth"
	"github.com/dukerupert/starchart/internal/database"
	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/store"
	"github.com/dukerupert/starchart/internal/task"
)

// Thursday Oct 15 2026, mid-afternoon.
var thursday = time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)

type testEnv struct {
	members     *store.MemberStore
	tasks       *store.TaskStore
	completions *store.CompletionStore
	rewards     *store.RewardStore

	memberH     *MemberHandler
	taskH       *TaskHandler
	completionH *CompletionHandler
	rewardH     *RewardHandler
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := task.FixedClock(thursday)
	logger := slog.New(slog.DiscardHandler)
	e := &testEnv{
		members:     store.NewMemberStore(db),
		tasks:       store.NewTaskStore(db),
		completions: store.NewCompletionStore(db, clock),
		rewards:     store.NewRewardStore(db, clock),
	}
	e.memberH = NewMemberHandler(e.members, nil, logger)
	e.taskH = NewTaskHandler(e.tasks, e.members, e.completions, clock, nil, logger)
	e.completionH = NewCompletionHandler(e.completions, 1024, nil, logger)
	e.rewardH = NewRewardHandler(e.rewards, nil, logger)
	return e
}

func (e *testEnv) member(t *testing.T, name string, role model.Role) *model.Member {
	t.Helper()
	m, err := e.members.Create(name, role, "#123456", "🙂")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	return m
}

func (e *testEnv) task(t *testing.T, rule string, mode model.ApprovalMode, proof model.ProofRequirement, childIDs ...int64) *model.Task {
	t.Helper()
	rec := do(t, e.taskH.Create, "POST /api/tasks", "/api/tasks", map[string]any{
		"title":              "Feed the cat",
		"star_value":         4,
		"recurrence_rule":    rule,
		"assigned_child_ids": childIDs,
		"approval_mode":      mode,
		"proof_requirement":  proof,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: status = %d, body = %s", rec.Code, rec.Body)
	}
	var tk model.Task
	decode(t, rec, &tk)
	return &tk
}

func asActor(m *model.Member) *auth.Actor {
	return &auth.Actor{MemberID: m.ID, Name: m.Name, Role: m.Role}
}

// do routes a single request through a mux so path values resolve.
func do(t *testing.T, h http.HandlerFunc, pattern, path string, body any, actor *auth.Actor) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	method, _, _ := strings.Cut(pattern, " ")
	req := httptest.NewRequest(method, path, &buf)
	if actor != nil {
		req = req.WithContext(auth.WithActor(req.Context(), *actor))
	}

	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body["error"]
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
