package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mealprep"
	"mealprep/app"
	"mealprep/mcpserver"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := mealprep.LoadConfig()
	if err != nil {
		slog.Error("SETUP: Failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, app.Options{Logger: mealprep.NewNoOpCoordinationLogger()})
	if err != nil {
		slog.Error("SETUP: Failed to build service", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("SETUP: Failed to close service", "error", err)
		}
	}()

	slog.Info("MCP: Serving on stdio", "version", version)
	if err := mcpserver.New(a.Registry, a.Service, version).Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("MCP: Server stopped", "error", err)
	}
}
