package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/starchart/internal/auth"
	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/store"
	"github.com/dukerupert/starchart/internal/websocket"
)

type RewardHandler struct {
	broadcaster
	rewards *store.RewardStore
	logger  *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{
		broadcaster: broadcaster{hub: hub},
		rewards:     rs,
		logger:      logger,
	}
}

type rewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	StarCost    int    `json:"star_cost"`
	Active      *bool  `json:"active"`
}

func (req *rewardRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.StarCost <= 0 {
		return "star_cost must be greater than 0"
	}
	return ""
}

func (req rewardRequest) active() bool {
	return req.Active == nil || *req.Active
}

// List returns every reward to parents and only active rewards to
// everyone else.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	var rewards []model.Reward
	var err error
	if auth.IsParent(r.Context()) {
		rewards, err = h.rewards.List()
	} else {
		rewards, err = h.rewards.ListActive()
	}
	if err != nil {
		internalError(w, h.logger, "failed to list rewards", err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	reward, err := h.rewards.Create(req.Title, strings.TrimSpace(req.Description), req.StarCost, req.active())
	if err != nil {
		internalError(w, h.logger, "failed to create reward", err)
		return
	}

	h.broadcast(websocket.NewMessage("reward", "created", reward.ID, nil))
	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.rewards.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get reward", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reward not found")
		return
	}

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	reward, err := h.rewards.Update(id, req.Title, strings.TrimSpace(req.Description), req.StarCost, req.active())
	if err != nil {
		internalError(w, h.logger, "failed to update reward", err)
		return
	}

	h.broadcast(websocket.NewMessage("reward", "updated", id, nil))
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.rewards.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get reward", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reward not found")
		return
	}

	err = h.rewards.Delete(id)
	if errors.Is(err, store.ErrInUse) {
		writeError(w, http.StatusConflict, "reward has been redeemed; deactivate it instead")
		return
	}
	if err != nil {
		internalError(w, h.logger, "failed to delete reward", err)
		return
	}

	h.broadcast(websocket.NewMessage("reward", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Redeem files the acting child's request for a reward.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	childID := auth.MemberID(r.Context())

	redemption, err := h.rewards.Redeem(id, childID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "reward not found")
		return
	case errors.Is(err, store.ErrRewardInactive):
		writeError(w, http.StatusGone, err.Error())
		return
	case errors.Is(err, store.ErrInsufficientStars):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		internalError(w, h.logger, "failed to redeem reward", err)
		return
	}

	h.broadcast(websocket.NewMessage("redemption", "requested", redemption.ID, map[string]any{
		"reward_id": id,
		"child_id":  childID,
	}))
	writeJSON(w, http.StatusCreated, redemption)
}

func (h *RewardHandler) ApproveRedemption(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.rewards.ApproveRedemption, "approved")
}

func (h *RewardHandler) RejectRedemption(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.rewards.RejectRedemption, "rejected")
}

func (h *RewardHandler) review(w http.ResponseWriter, r *http.Request, apply func(id, reviewerID int64) (*model.RewardRedemption, error), action string) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	redemption, err := apply(id, auth.MemberID(r.Context()))
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "redemption not found")
		return
	case errors.Is(err, store.ErrNotPending):
		writeError(w, http.StatusConflict, "redemption already reviewed")
		return
	case errors.Is(err, store.ErrInsufficientStars):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		internalError(w, h.logger, "failed to review redemption", err)
		return
	}

	h.broadcast(websocket.NewMessage("redemption", action, redemption.ID, nil).For(redemption.ChildID))
	if redemption.Status == model.CompletionApproved {
		h.balanceChanged(redemption.ChildID, -redemption.StarCost)
	}
	writeJSON(w, http.StatusOK, redemption)
}

func (h *RewardHandler) ListPendingRedemptions(w http.ResponseWriter, r *http.Request) {
	redemptions, err := h.rewards.ListPendingRedemptions()
	if err != nil {
		internalError(w, h.logger, "failed to list redemptions", err)
		return
	}
	if redemptions == nil {
		redemptions = []model.RewardRedemption{}
	}
	writeJSON(w, http.StatusOK, redemptions)
}

func (h *RewardHandler) RedemptionsForChild(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	redemptions, err := h.rewards.ListRedemptionsByChild(childID)
	if err != nil {
		internalError(w, h.logger, "failed to list redemptions", err)
		return
	}
	if redemptions == nil {
		redemptions = []model.RewardRedemption{}
	}
	writeJSON(w, http.StatusOK, redemptions)
}
