package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/starchart/internal/auth"
	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/recurrence"
	"github.com/dukerupert/starchart/internal/store"
	"github.com/dukerupert/starchart/internal/task"
	"github.com/dukerupert/starchart/internal/websocket"
)

type TaskHandler struct {
	broadcaster
	tasks       *store.TaskStore
	members     *store.MemberStore
	completions *store.CompletionStore
	clock       task.Clock
	logger      *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, ms *store.MemberStore, cs *store.CompletionStore, clock task.Clock, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		broadcaster: broadcaster{hub: hub},
		tasks:       ts,
		members:     ms,
		completions: cs,
		clock:       clock,
		logger:      logger,
	}
}

type taskRequest struct {
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	Category         string                 `json:"category"`
	StarValue        int                    `json:"star_value"`
	RecurrenceRule   string                 `json:"recurrence_rule"`
	AssignedChildIDs []int64                `json:"assigned_child_ids"`
	ProofRequirement model.ProofRequirement `json:"proof_requirement"`
	ApprovalMode     model.ApprovalMode     `json:"approval_mode"`
	Active           *bool                  `json:"active"`
}

// params validates the request and resolves defaults. A non-empty string
// return is a client error.
func (h *TaskHandler) params(req taskRequest) (store.TaskParams, string, error) {
	var p store.TaskParams

	p.Title = strings.TrimSpace(req.Title)
	if p.Title == "" {
		return p, "title is required", nil
	}
	if req.StarValue <= 0 {
		return p, "star_value must be greater than 0", nil
	}

	rule, err := recurrence.Parse(req.RecurrenceRule)
	if err != nil {
		return p, "invalid recurrence_rule: " + err.Error(), nil
	}
	if err := rule.Validate(); err != nil {
		return p, "invalid recurrence_rule: " + err.Error(), nil
	}

	switch req.ProofRequirement {
	case "":
		req.ProofRequirement = model.ProofNone
	case model.ProofNone, model.ProofPhoto:
	default:
		return p, "proof_requirement must be none or photo", nil
	}
	switch req.ApprovalMode {
	case "":
		req.ApprovalMode = model.ApprovalParent
	case model.ApprovalAuto, model.ApprovalParent:
	default:
		return p, "approval_mode must be auto or parent", nil
	}

	for _, id := range req.AssignedChildIDs {
		m, err := h.members.GetByID(id)
		if err != nil {
			return p, "", err
		}
		if m == nil || !m.IsChild() {
			return p, "assigned_child_ids must reference children", nil
		}
	}

	p.Description = strings.TrimSpace(req.Description)
	p.Category = strings.TrimSpace(req.Category)
	p.StarValue = req.StarValue
	p.Recurrence = rule
	p.AssignedChildIDs = req.AssignedChildIDs
	p.ProofRequirement = req.ProofRequirement
	p.ApprovalMode = req.ApprovalMode
	p.Active = req.Active == nil || *req.Active
	return p, "", nil
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	p, msg, err := h.params(req)
	if err != nil {
		internalError(w, h.logger, "failed to check assignees", err)
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if id := auth.MemberID(r.Context()); id != 0 {
		p.CreatedBy = &id
	}

	tk, err := h.tasks.Create(p)
	if err != nil {
		internalError(w, h.logger, "failed to create task", err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "created", tk.ID, nil))
	writeJSON(w, http.StatusCreated, tk)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List()
	if err != nil {
		internalError(w, h.logger, "failed to list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Categories lists the categories already in use, for form suggestions.
func (h *TaskHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.tasks.ListCategories()
	if err != nil {
		internalError(w, h.logger, "failed to list categories", err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	tk, err := h.tasks.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get task", err)
		return
	}
	if tk == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, tk)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.tasks.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get task", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, msg, err := h.params(req)
	if err != nil {
		internalError(w, h.logger, "failed to check assignees", err)
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	tk, err := h.tasks.Update(id, p)
	if err != nil {
		internalError(w, h.logger, "failed to update task", err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "updated", id, nil))
	writeJSON(w, http.StatusOK, tk)
}

// Delete deactivates the task. Its completion history stays.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.tasks.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get task", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	if err := h.tasks.SetActive(id, false); err != nil {
		internalError(w, h.logger, "failed to deactivate task", err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "deactivated", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// ForChild returns the child's active tasks split into available, pending
// approval and completed.
func (h *TaskHandler) ForChild(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	child, err := h.members.GetByID(childID)
	if err != nil {
		internalError(w, h.logger, "failed to get member", err)
		return
	}
	if child == nil || !child.IsChild() {
		writeError(w, http.StatusNotFound, "child not found")
		return
	}

	tasks, err := h.tasks.ListForChild(childID)
	if err != nil {
		internalError(w, h.logger, "failed to list tasks", err)
		return
	}
	live, err := h.completions.LiveByTask(childID)
	if err != nil {
		internalError(w, h.logger, "failed to list completions", err)
		return
	}

	writeJSON(w, http.StatusOK, task.PartitionTasks(tasks, live, childID, h.clock.Now()))
}
