package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apresai/pitcharena/internal/app"
	"github.com/apresai/pitcharena/internal/config"
	"github.com/apresai/pitcharena/internal/mcpserver"
	"github.com/apresai/pitcharena/internal/observability"
)

func main() {
	cfg, err := config.Load()
	logger := observability.InitLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("Pitch Arena MCP Server starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := observability.InitTracer(ctx, cfg.ServiceName+"-mcp", app.Version, cfg.Environment)
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("Tracer shutdown error", "error", err)
			}
		}()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	srv := mcpserver.New(a.Engine, a.Personas, cfg.MCPPort, app.Version, logger)

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received, waiting for archive uploads...")
		done := make(chan struct{})
		go func() {
			a.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(8 * time.Second):
		}
		logger.Info("Shutdown complete")
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
