package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/starchart/internal/database"
	"github.com/dukerupert/starchart/internal/rollover"
	"github.com/dukerupert/starchart/internal/server"
	"github.com/dukerupert/starchart/internal/task"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides STARCHART_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DBPath)
		return err
	}
	defer db.Close()

	clock := task.SystemClock{Location: loc}
	srv := server.New(db, clock, server.Config{
		MaxProofBytes: cfg.MaxProofBytes,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go srv.RateLimiter().RunCleanup(cleanupCtx, 5*time.Minute)

	watcher := rollover.NewWatcher(clock, srv.Hub(), logger.With("component", "rollover"))
	watcher.Start(cleanupCtx)
	defer watcher.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starchart running", "addr", cfg.Addr(), "db", cfg.DBPath, "timezone", loc.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error("server error", "error", err)
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	srv.Hub().CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}
	return nil
}
