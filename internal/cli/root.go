package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/replayer/internal/control"
	"github.com/vietddude/replayer/internal/core/config"
)

var (
	cfgPath string
	isDebug bool

	appConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "replayer",
	Short: "Contract event replay service",
	Long: `Replayer rebuilds or verifies derived state by replaying a ledger-ordered
log of contract events. Sessions are checkpointed, resumable and idempotent.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file; built-in defaults are used when the default file is absent")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := loadConfig(cmd)
	if err != nil {
		stylelog.InitDefault()
		return err
	}
	appConfig = cfg

	setupLogging(cfg.Logging, isDebug || cfg.Replay.Verbose)
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig, debug bool) {
	slogLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}
	if debug {
		slogLevel = slog.LevelDebug
	}

	if strings.EqualFold(cfg.Format, "json") {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

// openReplayer connects the configured backing services.
func openReplayer(ctx context.Context) (*control.Replayer, error) {
	app, err := control.New(ctx, appConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize replayer: %w", err)
	}
	return app, nil
}
