package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/oq-testgen/internal/adapters/mcp"
	"github.com/kirillkom/oq-testgen/internal/bootstrap"
	"github.com/kirillkom/oq-testgen/internal/config"
	"github.com/kirillkom/oq-testgen/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, nil)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(version, mcpadapter.Dependencies{
		Workflows:  app.WorkflowUC,
		Planner:    app.Planner,
		Classifier: app.Classifier,
		Outcomes:   app.OutcomeUC,
	})

	logger.Info("mcp_server_started", "version", version)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
