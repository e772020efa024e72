package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gzhole/textgate/internal/aggregator"
	"github.com/gzhole/textgate/internal/config"
	"github.com/gzhole/textgate/internal/logging"
)

var (
	configPath string
	logLevel   string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "textgate",
	Short: "textgate - layered safety validation for LLM text",
	Long: `textgate checks a piece of text, optionally with prior conversation turns,
against four safety gates (truth, harm, scope, purpose). Deterministic pattern
tables, a multi-turn escalation tracker and an optional external semantic judge
each produce a confidence-scored verdict; the strongest one wins.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: ~/.textgate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading API keys (ignored if missing)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the dotenv file and the YAML config, applying flag
// overrides.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger writes diagnostics to stderr so stdout stays machine-readable.
func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
}

// loadEngine builds the aggregator from the resolved configuration.
func loadEngine(cmd *cobra.Command) (*aggregator.Aggregator, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	agg, err := aggregator.New(*cfg, aggregator.WithLogger(newLogger(cfg)))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := agg.Initialize(cmd.Context()); err != nil {
		return nil, nil, err
	}
	return agg, cfg, nil
}
