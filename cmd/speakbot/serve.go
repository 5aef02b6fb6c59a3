package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/speakbot/internal/app"
	"github.com/ent0n29/speakbot/internal/bot"
)

const janitorInterval = time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll Telegram and serve the operational HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
	}()
	logger.Info("speakbot starting", zap.String("wiring", result.Detail), zap.String("bind_addr", cfg.BindAddr))

	// Handlers outlive the poll loop by up to the shutdown timeout so
	// in-flight exchanges can finish.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           result.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	result.Sessions.StartJanitor(ctx, janitorInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful http shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
		return nil
	})
	g.Go(func() error {
		result.API.SetReady(true)
		defer result.API.SetReady(false)
		return result.Poller.Run(gctx, func(_ context.Context, req bot.Request) {
			result.Dispatcher.Dispatch(workCtx, req)
		})
	})

	runErr := g.Wait()
	logger.Info("shutdown signal received; draining handlers")

	drained := make(chan struct{})
	go func() {
		result.Dispatcher.Wait()
		result.Preferences.Flush()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("handlers still running at shutdown timeout; cancelling")
		cancelWork()
		<-drained
	}

	logger.Info("shutdown complete")
	return runErr
}
