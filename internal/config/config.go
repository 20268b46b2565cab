// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// Config holds every setting the binaries read.
type Config struct {
	Port    int `env:"PORT" envDefault:"8080"`
	MCPPort int `env:"MCP_PORT" envDefault:"8000"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/pitcharena.db"`
	DynamoTable   string `env:"DYNAMODB_TABLE" envDefault:"pitcharena"`
	AWSRegion     string `env:"AWS_REGION" envDefault:"us-east-1"`
	ArchiveBucket string `env:"ARCHIVE_BUCKET"`
	SecretPrefix  string `env:"SECRET_PREFIX"`
	SeedPersonas  bool   `env:"SEED_PERSONAS"`

	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	DeepSeekAPIKey  string `env:"DEEPSEEK_API_KEY"`
	DeepSeekBaseURL string `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	BedrockEnabled  bool   `env:"BEDROCK_ENABLED"`

	DefaultBackend      string        `env:"DEFAULT_BACKEND" envDefault:"openai"`
	GeneratorTimeout    time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"30s"`
	GeneratorMaxRetries int           `env:"GENERATOR_MAX_RETRIES" envDefault:"3"`

	PersonaCacheSize int           `env:"PERSONA_CACHE_SIZE" envDefault:"128"`
	PersonaCacheTTL  time.Duration `env:"PERSONA_CACHE_TTL" envDefault:"5m"`

	AdminSecretKey string   `env:"ADMIN_SECRET_KEY"`
	SecureCookies  bool     `env:"SECURE_COOKIES"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"pitcharena"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

// FromMap parses configuration from an explicit environment.
func FromMap(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case DriverDynamoDB:
		if c.DynamoTable == "" {
			return errors.New("DYNAMODB_TABLE is required for the dynamodb store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverDynamoDB, c.StoreDriver)
	}
	if c.GeneratorTimeout <= 0 {
		return fmt.Errorf("GENERATOR_TIMEOUT must be positive, got %s", c.GeneratorTimeout)
	}
	if c.GeneratorMaxRetries < 1 {
		return fmt.Errorf("GENERATOR_MAX_RETRIES must be at least 1, got %d", c.GeneratorMaxRetries)
	}
	if c.PersonaCacheSize < 1 {
		return fmt.Errorf("PERSONA_CACHE_SIZE must be at least 1, got %d", c.PersonaCacheSize)
	}
	return nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.StoreDriver == DriverDynamoDB || c.ArchiveBucket != "" || c.SecretPrefix != "" || c.BedrockEnabled
}

func envSet(key string) bool {
	return os.Getenv(key) != ""
}
