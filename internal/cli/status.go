package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/textgate/internal/config"
	"github.com/gzhole/textgate/internal/escalation"
	"github.com/gzhole/textgate/internal/semantic"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved configuration and which sources are active",
	Long: `Print the configuration textgate would run with: the config file in use,
the pipeline order with each source's threshold and category filter, the
semantic judge settings and whether its API key is present. Key values are
never printed.

  textgate status`,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  textgate Status")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out)

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(out, "  Binary:    %s (%s)\n", binPath, Version)
	fmt.Fprintf(out, "  Config:    %s\n", configLocation())
	fmt.Fprintf(out, "  Logging:   %s (%s)\n", cfg.Logging.Level, cfg.Logging.Format)
	fmt.Fprintf(out, "  Metrics:   %s\n", onOff(cfg.Metrics.Enabled))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Pipeline ──────────────────────────────────────────")
	for i, name := range cfg.Pipeline {
		sc, ok := sourceConfig(cfg, name)
		if !ok {
			fmt.Fprintf(out, "  %d. ❌ %-18s unknown source\n", i+1, name)
			continue
		}
		icon := "✅"
		if !sc.Enabled {
			icon = "⏸ "
		}
		fmt.Fprintf(out, "  %d. %s %-18s threshold=%.2f categories=%s\n",
			i+1, icon, name, sc.ConfidenceThreshold, categoryList(sc.Categories))
	}
	fmt.Fprintln(out)

	printSemantic(out, cfg.Semantic)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(out, "  ⚠  Configuration problem: %v\n", err)
		fmt.Fprintln(out)
	}
	return nil
}

func printSemantic(out io.Writer, sc config.SemanticConfig) {
	fmt.Fprintln(out, "─── Semantic Judge ────────────────────────────────────")
	if !sc.Enabled {
		fmt.Fprintln(out, "  ⏸  Disabled (set semantic.enabled: true to use an LLM judge)")
		fmt.Fprintln(out)
		return
	}
	fmt.Fprintf(out, "  Provider:  %s / %s\n", sc.Provider, sc.Model)
	if sc.BaseURL != "" {
		fmt.Fprintf(out, "  Endpoint:  %s\n", sc.BaseURL)
	}
	keyEnv := sc.KeyEnv()
	if os.Getenv(keyEnv) != "" {
		fmt.Fprintf(out, "  ✅ API key: %s is set\n", keyEnv)
	} else {
		fmt.Fprintf(out, "  ❌ API key: %s is not set\n", keyEnv)
	}
	fmt.Fprintf(out, "  On error:  %s\n", semantic.PolicyFor(sc.FailClosed).Name())
	fmt.Fprintf(out, "  Timeout:   %s\n", sc.Timeout)
	switch {
	case !sc.CacheEnabled:
		fmt.Fprintln(out, "  Cache:     off")
	case sc.CacheBackend == config.CacheRedis:
		fmt.Fprintf(out, "  Cache:     redis %s, ttl %s\n", sc.RedisAddr, sc.CacheTTL)
	default:
		fmt.Fprintf(out, "  Cache:     memory, ttl %s\n", sc.CacheTTL)
	}
	fmt.Fprintf(out, "  Context:   prior turns %s\n", onOff(sc.IncludePriorTurnContext))
	fmt.Fprintln(out)
}

func sourceConfig(cfg *config.Config, name string) (config.SourceConfig, bool) {
	switch name {
	case escalation.Name:
		return cfg.Escalation.SourceConfig, true
	case semantic.Name:
		return cfg.Semantic.SourceConfig, true
	}
	return cfg.Sources.Get(name)
}

func configLocation() string {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return "built-in defaults"
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return path + " (not found, using defaults)"
	}
	return path
}

func categoryList(cats []string) string {
	if len(cats) == 0 {
		return "all"
	}
	return strings.Join(cats, ",")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
