package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/apresai/pitcharena/internal/app"
	"github.com/apresai/pitcharena/internal/config"
	"github.com/apresai/pitcharena/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:           "pitcharena",
	Short:         "Practice your startup pitch against simulated investors",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pitcharena %s\n", app.Version)
	},
}

var (
	flagLogLevel   string
	flagSQLitePath string
	flagBackend    string
	flagUser       string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagSQLitePath, "db", "", "SQLite database path (overrides SQLITE_PATH)")
	rootCmd.PersistentFlags().StringVarP(&flagBackend, "backend", "b", "", "Response generator: openai, deepseek, claude, nova (overrides DEFAULT_BACKEND)")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", defaultUser(), "User id sessions are recorded under")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagSQLitePath != "" {
		cfg.SQLitePath = flagSQLitePath
	}
	if flagBackend != "" {
		cfg.DefaultBackend = flagBackend
	}
	return cfg, nil
}

// openApp builds the application with logs on stderr so they never mix with
// command output.
func openApp(ctx context.Context, opts ...app.Option) (*app.App, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel)
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}
