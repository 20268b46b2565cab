// Package app assembles the engine and its collaborators from configuration.
// Every binary (HTTP server, MCP server, Lambda, CLI) builds through here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/apresai/pitcharena/internal/admin"
	"github.com/apresai/pitcharena/internal/archive"
	"github.com/apresai/pitcharena/internal/auth"
	"github.com/apresai/pitcharena/internal/awsclients"
	"github.com/apresai/pitcharena/internal/config"
	"github.com/apresai/pitcharena/internal/engine"
	"github.com/apresai/pitcharena/internal/generator"
	"github.com/apresai/pitcharena/internal/observability"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/store"
)

// Version is stamped at build time.
var Version = "dev"

// ErrNoBackends is returned when no generator credentials are configured.
var ErrNoBackends = errors.New("no response generator configured: set OPENAI_API_KEY, DEEPSEEK_API_KEY, ANTHROPIC_API_KEY or BEDROCK_ENABLED")

// App holds the wired components.
type App struct {
	Config    config.Config
	Store     store.Store
	Personas  *persona.CachedStore
	Generator *generator.Router
	Engine    *engine.Engine
	Admin     *admin.Service
	Sessions  *auth.Sessions
	Logger    *slog.Logger

	closers []func() error
}

// Option adjusts how New assembles the application.
type Option func(*options)

type options struct {
	readOnly bool
}

// ReadOnly lets New succeed without any generator backend. Commands that only
// inspect stored data use it; turns then fail as invalid input.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// New builds the application. Callers must Close it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Logger: logger}

	var clients *awsclients.Clients
	if cfg.NeedsAWS() {
		var err error
		clients, err = awsclients.Load(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		cfg, err = cfg.WithSecrets(ctx, clients.SecretsManager, logger)
		if err != nil {
			return nil, fmt.Errorf("reload config with secrets: %w", err)
		}
	}
	a.Config = cfg

	switch cfg.StoreDriver {
	case config.DriverDynamoDB:
		a.Store = store.NewDynamo(clients.DynamoDB, cfg.DynamoTable)
	default:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.Store = db
		a.closers = append(a.closers, db.Close)
	}

	if cfg.SeedPersonas {
		n, err := persona.Seed(ctx, a.Store, time.Now().UTC())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("seed personas: %w", err)
		}
		if n > 0 {
			logger.InfoContext(ctx, "seeded default personas", "count", n)
		}
	}
	a.Personas = persona.NewCachedStore(a.Store, cfg.PersonaCacheSize, cfg.PersonaCacheTTL)

	metrics := observability.DefaultMetrics()
	a.Generator = generator.NewRouter(generator.RouterConfig{
		Default:    generator.Backend(strings.ToLower(cfg.DefaultBackend)),
		MaxRetries: cfg.GeneratorMaxRetries,
		Metrics:    metrics,
	}, logger)
	registerBackends(a.Generator, cfg, clients)
	switch _, err := a.Generator.Resolve(""); {
	case len(a.Generator.Backends()) == 0:
		if !o.readOnly {
			a.Close()
			return nil, ErrNoBackends
		}
	case err != nil:
		logger.WarnContext(ctx, "default backend is not configured; callers must name one",
			"default", cfg.DefaultBackend, "available", a.Generator.Backends())
	}

	engineOpts := engine.Options{
		GeneratorTimeout: cfg.GeneratorTimeout,
		Metrics:          metrics,
	}
	if cfg.ArchiveBucket != "" {
		engineOpts.Archiver = archive.NewS3(clients.S3, cfg.ArchiveBucket)
	}
	a.Engine = engine.New(a.Store, a.Personas, a.Generator, logger, engineOpts)
	a.Admin = admin.New(a.Personas, logger)
	a.Sessions = auth.NewSessions(cfg.AdminSecretKey)

	logger.InfoContext(ctx, "pitch arena ready",
		"version", Version,
		"store", cfg.StoreDriver,
		"backends", a.Generator.Backends(),
		"archive", cfg.ArchiveBucket != "",
	)
	return a, nil
}

func registerBackends(r *generator.Router, cfg config.Config, clients *awsclients.Clients) {
	if cfg.OpenAIAPIKey != "" {
		r.Register(generator.BackendOpenAI, generator.NewOpenAICompleter(cfg.OpenAIAPIKey))
	}
	if cfg.DeepSeekAPIKey != "" {
		r.Register(generator.BackendDeepSeek, generator.NewDeepSeekCompleter(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL))
	}
	if cfg.AnthropicAPIKey != "" {
		r.Register(generator.BackendClaude, generator.NewClaudeCompleter(cfg.AnthropicAPIKey))
	}
	if cfg.BedrockEnabled && clients != nil {
		r.Register(generator.BackendNova, generator.NewNovaCompleter(clients.Bedrock))
	}
}

// Close waits for background archive uploads and releases the store.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
