package config

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretKeys are the variables that may live in Secrets Manager.
var SecretKeys = []string{
	"OPENAI_API_KEY",
	"DEEPSEEK_API_KEY",
	"ANTHROPIC_API_KEY",
	"ADMIN_SECRET_KEY",
}

// SecretsAPI is the slice of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadSecrets fetches prefix+KEY for every secret key not already set in the
// environment and exports it. Missing secrets are logged and skipped.
func LoadSecrets(ctx context.Context, client SecretsAPI, prefix string, logger *slog.Logger) int {
	loaded := 0
	for _, key := range SecretKeys {
		if envSet(key) {
			continue
		}
		secretID := prefix + key
		out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretID})
		if err != nil {
			logger.InfoContext(ctx, "secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if out.SecretString == nil {
			continue
		}
		if err := os.Setenv(key, *out.SecretString); err != nil {
			logger.WarnContext(ctx, "export secret failed", "key", key, "error", err)
			continue
		}
		loaded++
		logger.InfoContext(ctx, "loaded secret", "secret_id", secretID)
	}
	return loaded
}

// WithSecrets loads secrets under the configured prefix and re-reads the
// configuration so they take effect. Without a prefix it returns c unchanged.
func (c Config) WithSecrets(ctx context.Context, client SecretsAPI, logger *slog.Logger) (Config, error) {
	if c.SecretPrefix == "" {
		return c, nil
	}
	if LoadSecrets(ctx, client, c.SecretPrefix, logger) == 0 {
		return c, nil
	}
	return Load()
}
