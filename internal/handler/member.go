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

type MemberHandler struct {
	broadcaster
	store  *store.MemberStore
	logger *slog.Logger
}

func NewMemberHandler(s *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{
		broadcaster: broadcaster{hub: hub},
		store:       s,
		logger:      logger,
	}
}

type memberRequest struct {
	Name        string     `json:"name"`
	Role        model.Role `json:"role"`
	Color       string     `json:"color"`
	AvatarEmoji string     `json:"avatar_emoji"`
}

func (req *memberRequest) normalize() string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	if req.Color == "" {
		req.Color = "#3B82F6"
	}
	if !hexColorRegexp.MatchString(req.Color) {
		return "color must be a hex color (e.g. #FF0000)"
	}
	if req.AvatarEmoji == "" {
		req.AvatarEmoji = "⭐"
	}
	return ""
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.List()
	if err != nil {
		internalError(w, h.logger, "failed to list members", err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *MemberHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.store.ListChildren()
	if err != nil {
		internalError(w, h.logger, "failed to list children", err)
		return
	}
	if children == nil {
		children = []model.Member{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	m, err := h.store.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.normalize(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "role must be parent or child")
		return
	}

	exists, err := h.store.NameExists(req.Name, 0)
	if err != nil {
		internalError(w, h.logger, "failed to check name", err)
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "name already taken")
		return
	}

	m, err := h.store.Create(req.Name, req.Role, req.Color, req.AvatarEmoji)
	if err != nil {
		internalError(w, h.logger, "failed to create member", err)
		return
	}

	h.broadcast(websocket.NewMessage("member", "created", m.ID, nil))
	writeJSON(w, http.StatusCreated, m)
}

// Update edits name, color and avatar. Roles are fixed at creation.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get member", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.normalize(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	exists, err := h.store.NameExists(req.Name, id)
	if err != nil {
		internalError(w, h.logger, "failed to check name", err)
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "name already taken")
		return
	}

	m, err := h.store.Update(id, req.Name, req.Color, req.AvatarEmoji)
	if err != nil {
		internalError(w, h.logger, "failed to update member", err)
		return
	}

	h.broadcast(websocket.NewMessage("member", "updated", id, nil))
	writeJSON(w, http.StatusOK, m)
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if id == auth.MemberID(r.Context()) {
		writeError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	existing, err := h.store.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get member", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	err = h.store.Delete(id)
	if errors.Is(err, store.ErrInUse) {
		writeError(w, http.StatusConflict, "member has completion history and cannot be deleted")
		return
	}
	if err != nil {
		internalError(w, h.logger, "failed to delete member", err)
		return
	}

	h.broadcast(websocket.NewMessage("member", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSortOrder takes the full list of member IDs in display order.
func (h *MemberHandler) UpdateSortOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	if err := h.store.UpdateSortOrder(req.IDs); err != nil {
		internalError(w, h.logger, "failed to update sort order", err)
		return
	}

	h.broadcast(websocket.NewMessage("member", "reordered", 0, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(id)
	if err != nil {
		internalError(w, h.logger, "failed to get member", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	hash, err := auth.HashPIN(req.PIN)
	if errors.Is(err, auth.ErrBadPIN) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, h.logger, "failed to hash PIN", err)
		return
	}

	if err := h.store.SetPIN(id, hash); err != nil {
		internalError(w, h.logger, "failed to set PIN", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *MemberHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.store.ClearPIN(id); err != nil {
		internalError(w, h.logger, "failed to clear PIN", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
}

func (h *MemberHandler) VerifyPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	hash, err := h.store.GetPINHash(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if err != nil {
		internalError(w, h.logger, "failed to get PIN", err)
		return
	}
	if hash == "" {
		writeError(w, http.StatusBadRequest, "no PIN set for this member")
		return
	}
	if !auth.CheckPIN(hash, req.PIN) {
		writeError(w, http.StatusUnauthorized, "incorrect PIN")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *MemberHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.store.Leaderboard()
	if err != nil {
		internalError(w, h.logger, "failed to load leaderboard", err)
		return
	}
	if standings == nil {
		standings = []model.StarStanding{}
	}
	writeJSON(w, http.StatusOK, standings)
}
