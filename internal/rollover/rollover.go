// Package rollover notifies live clients when a new day begins, since
// recurring tasks reopen at local midnight without any write happening.
package rollover

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/starchart/internal/recurrence"
	"github.com/dukerupert/starchart/internal/task"
	"github.com/dukerupert/starchart/internal/websocket"
)

// Broadcaster is the part of the websocket hub the watcher needs.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Watcher polls the clock and broadcasts a "tasks rollover" message the
// first time it sees a new local day.
type Watcher struct {
	mu       sync.RWMutex
	clock    task.Clock
	hub      Broadcaster
	logger   *slog.Logger
	interval time.Duration
	lastDay  time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewWatcher(clock task.Clock, hub Broadcaster, logger *slog.Logger) *Watcher {
	return &Watcher{
		clock:    clock,
		hub:      hub,
		logger:   logger,
		interval: 30 * time.Second,
		lastDay:  recurrence.StartOfDay(clock.Now()),
	}
}

// Start begins the polling loop.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Check()
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.RLock()
	cancel := w.cancel
	done := w.done
	w.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Check broadcasts once per new day and reports whether it did. The
// message says which periods turned over so clients can skip refetching
// when only daily tasks are affected.
func (w *Watcher) Check() bool {
	now := w.clock.Now()
	today := recurrence.StartOfDay(now)

	w.mu.Lock()
	prev := w.lastDay
	if !today.After(prev) {
		w.mu.Unlock()
		return false
	}
	w.lastDay = today
	w.mu.Unlock()

	periods := []string{"daily"}
	if !recurrence.StartOfWeek(today).Equal(recurrence.StartOfWeek(prev)) {
		periods = append(periods, "weekly")
	}
	if recurrence.MonthIndex(today) != recurrence.MonthIndex(prev) {
		periods = append(periods, "monthly")
	}

	w.logger.Info("new period started", "day", today.Format(time.DateOnly), "periods", periods)
	w.hub.Broadcast(websocket.NewMessage("tasks", "rollover", 0, map[string]any{
		"day":     today.Format(time.DateOnly),
		"periods": periods,
	}))
	return true
}
