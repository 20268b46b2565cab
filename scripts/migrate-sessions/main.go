package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/apresai/pitcharena/internal/awsclients"
	"github.com/apresai/pitcharena/internal/store"
)

func main() {
	var (
		sqlitePath = flag.String("sqlite", "data/pitcharena.db", "Source SQLite database")
		destTable  = flag.String("dest-table", "pitcharena", "Destination DynamoDB table")
		dryRun     = flag.Bool("dry-run", false, "Read and count but don't write")
		region     = flag.String("region", "us-east-1", "AWS region")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	src, err := store.OpenSQLite(*sqlitePath)
	if err != nil {
		slog.Error("Failed to open SQLite database", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	personas, err := src.ListPersonas(ctx)
	if err != nil {
		slog.Error("Failed to read personas", "error", err)
		os.Exit(1)
	}
	sessions, err := src.ListSessions(ctx, "")
	if err != nil {
		slog.Error("Failed to read sessions", "error", err)
		os.Exit(1)
	}

	if *dryRun {
		slog.Info("DRY RUN MODE - no writes will be performed")
	}
	slog.Info("Starting migration",
		"source", *sqlitePath,
		"dest", *destTable,
		"region", *region,
		"personas", len(personas),
		"sessions", len(sessions),
	)

	reqs, err := store.ImportRequests(personas, sessions)
	if err != nil {
		slog.Error("Failed to convert items", "error", err)
		os.Exit(1)
	}
	if *dryRun {
		slog.Info("Migration complete", "total_items", len(reqs), "dry_run", true)
		return
	}

	clients, err := awsclients.Load(ctx, *region)
	if err != nil {
		slog.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	written, err := store.WriteBatches(ctx, clients.DynamoDB, *destTable, reqs, 200*time.Millisecond)
	if err != nil {
		slog.Error("Batch write failed", "written", written, "error", err)
		os.Exit(1)
	}

	slog.Info("Migration complete",
		"total_items", len(reqs),
		"total_written", written,
		"dry_run", false,
	)
}
