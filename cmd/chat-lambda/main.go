//go:build lambda.norpc

package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/apresai/pitcharena/internal/api"
	"github.com/apresai/pitcharena/internal/app"
	"github.com/apresai/pitcharena/internal/config"
	"github.com/apresai/pitcharena/internal/lambdaurl"
	"github.com/apresai/pitcharena/internal/observability"
)

func main() {
	cfg, err := config.Load()
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Lambda containers are reused, so the app is built once per cold start.
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(a.Engine, a.Personas, a.Admin, a.Sessions, logger, api.Options{
		CORSOrigins: cfg.CORSOrigins,
	})
	lambda.Start(lambdaurl.Adapt(srv.ChatHandler()))
}
