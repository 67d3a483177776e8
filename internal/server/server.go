package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/starchart/internal/handler"
	"github.com/dukerupert/starchart/internal/middleware"
	"github.com/dukerupert/starchart/internal/store"
	"github.com/dukerupert/starchart/internal/task"
	ws "github.com/dukerupert/starchart/internal/websocket"
)

type Config struct {
	MaxProofBytes int
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	memberStore *store.MemberStore
	memberH     *handler.MemberHandler
	taskH       *handler.TaskHandler
	completionH *handler.CompletionHandler
	rewardH     *handler.RewardHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, clock task.Clock, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	taskStore := store.NewTaskStore(db)
	completionStore := store.NewCompletionStore(db, clock)
	rewardStore := store.NewRewardStore(db, clock)

	return &Server{
		db:          db,
		hub:         hub,
		memberStore: memberStore,
		memberH:     handler.NewMemberHandler(memberStore, hub, logger.With("component", "member")),
		taskH:       handler.NewTaskHandler(taskStore, memberStore, completionStore, clock, hub, logger.With("component", "task")),
		completionH: handler.NewCompletionHandler(completionStore, cfg.MaxProofBytes, hub, logger.With("component", "completion")),
		rewardH:     handler.NewRewardHandler(rewardStore, hub, logger.With("component", "reward")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Hub returns the websocket hub so shutdown can disconnect clients.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.memberStore))

	s.registerAPIRoutes(mux)

	identified := middleware.IdentifyMember(s.memberStore)(mux)
	logged := middleware.RequestLogger(s.logger.With("component", "http"))(identified)
	return middleware.RequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	parent := s.parentOnly
	child := middleware.RequireChild
	firstParent := middleware.UnlessNoParents(s.memberStore, s.parentGate())

	// Members
	mux.HandleFunc("GET /api/members", s.memberH.List)
	mux.Handle("POST /api/members", firstParent(http.HandlerFunc(s.memberH.Create)))
	mux.Handle("PUT /api/members/sort", parent(s.memberH.UpdateSortOrder))
	mux.HandleFunc("GET /api/members/{id}", s.memberH.Get)
	mux.Handle("PUT /api/members/{id}", parent(s.memberH.Update))
	mux.Handle("DELETE /api/members/{id}", parent(s.memberH.Delete))
	mux.Handle("POST /api/members/{id}/pin", parent(s.memberH.SetPIN))
	mux.Handle("DELETE /api/members/{id}/pin", parent(s.memberH.ClearPIN))
	mux.Handle("POST /api/members/{id}/pin/verify", middleware.RateLimit(s.rateLimiter, middleware.ByTarget, 5, time.Minute)(http.HandlerFunc(s.memberH.VerifyPIN)))
	mux.HandleFunc("GET /api/children", s.memberH.ListChildren)
	mux.HandleFunc("GET /api/leaderboard", s.memberH.Leaderboard)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.Handle("POST /api/tasks", parent(s.taskH.Create))
	mux.HandleFunc("GET /api/tasks/categories", s.taskH.Categories)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.Handle("PUT /api/tasks/{id}", parent(s.taskH.Update))
	mux.Handle("DELETE /api/tasks/{id}", parent(s.taskH.Delete))
	mux.Handle("POST /api/tasks/{id}/complete", child(http.HandlerFunc(s.completionH.Submit)))
	mux.HandleFunc("GET /api/children/{id}/tasks", s.taskH.ForChild)

	// Completions
	mux.HandleFunc("GET /api/children/{id}/completions", s.completionH.ForChild)
	mux.Handle("GET /api/completions/pending", parent(s.completionH.ListPending))
	mux.Handle("POST /api/completions/{id}/approve", parent(s.completionH.Approve))
	mux.Handle("POST /api/completions/{id}/reject", parent(s.completionH.Reject))
	mux.HandleFunc("GET /api/completions/{id}/proof", s.completionH.Proof)

	// Rewards
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.Handle("POST /api/rewards", parent(s.rewardH.Create))
	mux.Handle("PUT /api/rewards/{id}", parent(s.rewardH.Update))
	mux.Handle("DELETE /api/rewards/{id}", parent(s.rewardH.Delete))
	mux.Handle("POST /api/rewards/{id}/redeem", child(http.HandlerFunc(s.rewardH.Redeem)))
	mux.HandleFunc("GET /api/children/{id}/redemptions", s.rewardH.RedemptionsForChild)
	mux.Handle("GET /api/redemptions/pending", parent(s.rewardH.ListPendingRedemptions))
	mux.Handle("POST /api/redemptions/{id}/approve", parent(s.rewardH.ApproveRedemption))
	mux.Handle("POST /api/redemptions/{id}/reject", parent(s.rewardH.RejectRedemption))
}

// parentGate rate-limits by client address before checking the parent's
// PIN, so the PIN header cannot be brute-forced.
func (s *Server) parentGate() func(http.Handler) http.Handler {
	limit := middleware.RateLimit(s.rateLimiter, middleware.ByIP, 120, time.Minute)
	gate := middleware.RequireParent(s.memberStore)
	return func(next http.Handler) http.Handler {
		return limit(gate(next))
	}
}

func (s *Server) parentOnly(h http.HandlerFunc) http.Handler {
	return s.parentGate()(h)
}
