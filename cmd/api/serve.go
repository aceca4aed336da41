package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/commerce-router/internal/config"
	"github.com/zhouzirui/commerce-router/internal/handler"
	"github.com/zhouzirui/commerce-router/internal/handler/tools"
	"github.com/zhouzirui/commerce-router/internal/jobs"
	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/middleware"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/store"
)

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and MCP endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg())
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.For("main")

	a, err := wireApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := checkConnections(ctx, a.health); err != nil {
		return fmt.Errorf("cannot start without database access: %w", err)
	}
	logServices(logger, a.registry.List())

	if purger, ok := a.sessions.(store.SessionPurger); ok {
		cleanup, err := jobs.NewSessionCleanup(purger, cfg.Session.Retention, cfg.Session.CleanupInterval, a.metrics)
		if err != nil {
			return err
		}
		if err := cleanup.Start(); err != nil {
			return err
		}
		defer func() {
			if err := cleanup.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop session cleanup")
			}
		}()
	}

	mcpServer, err := tools.NewServer(a.router, a.profiles, version)
	if err != nil {
		return err
	}

	router := handler.NewRouter(handler.Deps{
		Router:    a.router,
		Services:  a.registry,
		Profiles:  a.profiles,
		MCP:       mcpServer,
		Metrics:   a.metrics,
		Gatherer:  a.promReg,
		RateLimit: middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute),
		Health:    a.health,
	})

	logger.WithFields(logrus.Fields{
		"sessions": cfg.Store.Backend,
		"profiles": cfg.Store.ProfileBackend,
		"provider": cfg.AI.Provider,
	}).Info("commerce router ready")
	return startServer(ctx, cfg.Server, router)
}

// checkConnections pings every networked backend once before serving.
func checkConnections(ctx context.Context, backends map[string]store.Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	logger := logging.For("main")
	for name, p := range backends {
		if err := p.Ping(ctx); err != nil {
			logger.WithError(err).WithField("backend", name).Error("database connection failed")
			return fmt.Errorf("%s: %w", name, err)
		}
		logger.WithField("backend", name).Info("backend accessible")
	}
	return nil
}

func logServices(logger *logrus.Entry, list []service.Descriptor) {
	for _, d := range list {
		logger.WithFields(logrus.Fields{
			"service":       d.Tag,
			"tools_enabled": d.ToolsEnabled(),
		}).Info(d.Description)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.For("main").WithField("addr", serverCfg.Addr).Info("commerce router listening")
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
