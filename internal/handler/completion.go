package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/starchart/internal/auth"
	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/store"
	"github.com/dukerupert/starchart/internal/task"
	"github.com/dukerupert/starchart/internal/websocket"
)

type CompletionHandler struct {
	broadcaster
	completions   *store.CompletionStore
	maxProofBytes int
	logger        *slog.Logger
}

func NewCompletionHandler(cs *store.CompletionStore, maxProofBytes int, hub *websocket.Hub, logger *slog.Logger) *CompletionHandler {
	return &CompletionHandler{
		broadcaster:   broadcaster{hub: hub},
		completions:   cs,
		maxProofBytes: maxProofBytes,
		logger:        logger,
	}
}

var errProofTooLarge = errors.New("proof image too large")

// decodeProof accepts plain base64 or a data: URL and checks that the
// result is an image no larger than the configured limit.
func (h *CompletionHandler) decodeProof(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	if base64.StdEncoding.DecodedLen(len(s)) > h.maxProofBytes+2 {
		return nil, errProofTooLarge
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("proof_image must be base64")
	}
	if len(img) > h.maxProofBytes {
		return nil, errProofTooLarge
	}
	if !strings.HasPrefix(http.DetectContentType(img), "image/") {
		return nil, errors.New("proof_image must be an image")
	}
	return img, nil
}

// Submit records the acting child's completion of a task.
func (h *CompletionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	childID := auth.MemberID(r.Context())

	// base64 inflates by 4/3; leave room for the JSON wrapper.
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxProofBytes)/3*4+4096)
	var req struct {
		ProofImage string `json:"proof_image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, errProofTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	proof, err := h.decodeProof(req.ProofImage)
	if errors.Is(err, errProofTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.completions.Submit(taskID, childID, proof)
	switch {
	case err == nil:
	case errors.Is(err, task.ErrAlreadyHandled):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, task.ErrTaskInactive):
		writeError(w, http.StatusGone, err.Error())
		return
	case errors.Is(err, task.ErrNotAssigned):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, task.ErrProofRequired):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
		return
	default:
		internalError(w, h.logger, "failed to submit completion", err)
		return
	}

	h.logger.Info("completion submitted", "task_id", taskID, "child_id", childID, "status", c.Status, "period", c.PeriodKey)
	h.broadcast(websocket.NewMessage("completion", "created", c.ID, map[string]any{
		"task_id":  taskID,
		"child_id": childID,
		"status":   c.Status,
	}))
	if c.Status == model.CompletionApproved {
		h.balanceChanged(childID, c.StarsAwarded)
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CompletionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.completions.Approve, "approved")
}

func (h *CompletionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.completions.Reject, "rejected")
}

func (h *CompletionHandler) review(w http.ResponseWriter, r *http.Request, apply func(id, reviewerID int64) (*model.TaskCompletion, error), action string) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	c, err := apply(id, auth.MemberID(r.Context()))
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "completion not found")
		return
	case errors.Is(err, store.ErrNotPending):
		writeError(w, http.StatusConflict, "completion already reviewed")
		return
	default:
		internalError(w, h.logger, "failed to review completion", err)
		return
	}

	h.broadcast(websocket.NewMessage("completion", action, c.ID, map[string]any{"task_id": c.TaskID}).For(c.ChildID))
	if c.Status == model.CompletionApproved {
		h.balanceChanged(c.ChildID, c.StarsAwarded)
	}
	writeJSON(w, http.StatusOK, c)
}

// ForChild lists a child's completion history, optionally filtered by
// ?status=.
func (h *CompletionHandler) ForChild(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	status := model.CompletionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be pending, approved or rejected")
		return
	}

	completions, err := h.completions.ListByChild(childID, status)
	if err != nil {
		internalError(w, h.logger, "failed to list completions", err)
		return
	}
	if completions == nil {
		completions = []model.TaskCompletion{}
	}
	writeJSON(w, http.StatusOK, completions)
}

func (h *CompletionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	completions, err := h.completions.ListPending()
	if err != nil {
		internalError(w, h.logger, "failed to list pending completions", err)
		return
	}
	if completions == nil {
		completions = []model.TaskCompletion{}
	}
	writeJSON(w, http.StatusOK, completions)
}

// Proof serves the photo attached to a completion.
func (h *CompletionHandler) Proof(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	img, err := h.completions.GetProofImage(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "completion not found")
		return
	}
	if err != nil {
		internalError(w, h.logger, "failed to get proof image", err)
		return
	}
	if len(img) == 0 {
		writeError(w, http.StatusNotFound, "no proof image")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(img)
}
