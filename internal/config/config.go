package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gzhole/textgate/internal/escalation"
	"github.com/gzhole/textgate/internal/pattern"
	"github.com/gzhole/textgate/internal/semantic"
	"github.com/gzhole/textgate/internal/signal"
)

const (
	DefaultConfigDir  = ".textgate"
	DefaultConfigFile = "config.yaml"
)

// Cache backends for the semantic source.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the on-disk configuration. Load fills unset fields with defaults;
// Validate checks the result.
type Config struct {
	// Pipeline lists source names in evaluation order. Earlier sources win
	// confidence ties.
	Pipeline   []string         `yaml:"pipeline"`
	Sources    PatternSources   `yaml:"sources"`
	Escalation EscalationConfig `yaml:"escalation"`
	Semantic   SemanticConfig   `yaml:"semantic"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// SourceConfig holds the toggles shared by every source.
type SourceConfig struct {
	Enabled             bool           `yaml:"enabled"`
	ConfidenceThreshold float64        `yaml:"confidence_threshold"`
	Categories          []string       `yaml:"categories"`
	Rules               map[string]any `yaml:"rules"`
}

// PatternSources configures the three built-in pattern tables.
type PatternSources struct {
	HarmPattern      SourceConfig `yaml:"harm_pattern"`
	JailbreakPattern SourceConfig `yaml:"jailbreak_pattern"`
	IntegrityPattern SourceConfig `yaml:"integrity_pattern"`
}

// Get returns the config for a pattern source by name.
func (p PatternSources) Get(name string) (SourceConfig, bool) {
	switch name {
	case pattern.HarmSource:
		return p.HarmPattern, true
	case pattern.JailbreakSource:
		return p.JailbreakPattern, true
	case pattern.IntegritySource:
		return p.IntegrityPattern, true
	}
	return SourceConfig{}, false
}

type EscalationConfig struct {
	SourceConfig         `yaml:",inline"`
	WindowSize           int                `yaml:"window_size"`
	EscalationThreshold  float64            `yaml:"escalation_threshold"`
	MinTurnsForDetection int                `yaml:"min_turns_for_detection"`
	SingleTurnCeiling    float64            `yaml:"single_turn_ceiling"`
	Weights              escalation.Weights `yaml:"weights"`
}

type SemanticConfig struct {
	SourceConfig            `yaml:",inline"`
	Provider                string        `yaml:"provider"`
	Model                   string        `yaml:"model"`
	BaseURL                 string        `yaml:"base_url"`
	APIKeyEnv               string        `yaml:"api_key_env"`
	MaxTokens               int           `yaml:"max_tokens"`
	Timeout                 time.Duration `yaml:"timeout"`
	FailClosed              bool          `yaml:"fail_closed"`
	CacheEnabled            bool          `yaml:"cache_enabled"`
	CacheTTL                time.Duration `yaml:"cache_ttl"`
	CacheBackend            string        `yaml:"cache_backend"`
	RedisAddr               string        `yaml:"redis_addr"`
	IncludePriorTurnContext bool          `yaml:"include_prior_turn_context"`
	MaxConcurrency          int           `yaml:"max_concurrency"`
}

// KeyEnv names the environment variable holding the provider API key:
// api_key_env when set, else OPENAI_API_KEY or ANTHROPIC_API_KEY.
func (s SemanticConfig) KeyEnv() string {
	if s.APIKeyEnv != "" {
		return s.APIKeyEnv
	}
	return strings.ToUpper(s.Provider) + "_API_KEY"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultPipeline is the evaluation order used when none is configured.
func DefaultPipeline() []string {
	return []string{
		pattern.HarmSource,
		pattern.JailbreakSource,
		pattern.IntegritySource,
		escalation.Name,
		semantic.Name,
	}
}

func defaultSource() SourceConfig {
	return SourceConfig{Enabled: true, ConfidenceThreshold: 0.5}
}

// Default returns the built-in configuration. The semantic source is off
// because it needs an API key.
func Default() *Config {
	cfg := base()
	applyDefaults(cfg)
	return cfg
}

// DefaultModels maps each provider to the model used when none is set.
var DefaultModels = map[string]string{
	semantic.ProviderOpenAI:    "gpt-4o-mini",
	semantic.ProviderAnthropic: "claude-3-5-haiku-latest",
}

// base is the default configuration before provider-dependent fields are
// filled in, so a file that only sets the provider still gets its model.
func base() *Config {
	esc := escalation.DefaultConfig()
	sem := semantic.DefaultConfig()

	semSource := defaultSource()
	semSource.Enabled = false

	return &Config{
		Pipeline: DefaultPipeline(),
		Sources: PatternSources{
			HarmPattern:      defaultSource(),
			JailbreakPattern: defaultSource(),
			IntegrityPattern: defaultSource(),
		},
		Escalation: EscalationConfig{
			SourceConfig:         defaultSource(),
			WindowSize:           esc.WindowSize,
			EscalationThreshold:  esc.Threshold,
			MinTurnsForDetection: esc.MinTurns,
			SingleTurnCeiling:    esc.SingleTurnCeiling,
			Weights:              esc.Weights,
		},
		Semantic: SemanticConfig{
			SourceConfig:   semSource,
			Timeout:        sem.Timeout,
			FailClosed:     sem.FailClosed,
			CacheEnabled:   sem.CacheEnabled,
			CacheTTL:       sem.CacheTTL,
			CacheBackend:   CacheMemory,
			MaxConcurrency: sem.MaxConcurrency,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns ~/.textgate/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Load reads the YAML file at path over the defaults. An empty path means
// DefaultPath; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := base()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over cfg and fills any remaining zero values. Callers
// normally start from Load; a cfg from Default already has a model set.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	return nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Pipeline) == 0 {
		cfg.Pipeline = DefaultPipeline()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	esc := escalation.DefaultConfig()
	if cfg.Escalation.WindowSize == 0 {
		cfg.Escalation.WindowSize = esc.WindowSize
	}
	if cfg.Escalation.MinTurnsForDetection == 0 {
		cfg.Escalation.MinTurnsForDetection = esc.MinTurns
	}
	if cfg.Escalation.Weights == (escalation.Weights{}) {
		cfg.Escalation.Weights = esc.Weights
	}

	s := &cfg.Semantic
	if s.Provider == "" {
		s.Provider = semantic.ProviderOpenAI
	}
	s.Provider = strings.ToLower(s.Provider)
	if s.Model == "" {
		s.Model = DefaultModels[s.Provider]
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.CacheTTL == 0 {
		s.CacheTTL = time.Hour
	}
	if s.CacheBackend == "" {
		s.CacheBackend = CacheMemory
	}
	if s.MaxConcurrency == 0 {
		s.MaxConcurrency = 4
	}
}

// Validate returns the first configuration problem found, as a
// *signal.ConfigError.
func Validate(cfg *Config) error {
	seen := map[string]bool{}
	for _, name := range cfg.Pipeline {
		if seen[name] {
			return signal.NewConfigError("config", "pipeline", "duplicate source %q", name)
		}
		seen[name] = true
		if !knownSource(name) {
			return signal.NewConfigError("config", "pipeline", "unknown source %q", name)
		}
	}

	for _, name := range pattern.BuiltinNames() {
		sc, _ := cfg.Sources.Get(name)
		if _, err := sc.Signal(name); err != nil {
			return err
		}
	}
	if _, err := cfg.EscalationSettings(); err != nil {
		return err
	}

	if cfg.Semantic.Enabled {
		if _, err := cfg.SemanticSettings(); err != nil {
			return err
		}
		switch cfg.Semantic.CacheBackend {
		case CacheMemory:
		case CacheRedis:
			if cfg.Semantic.CacheEnabled && cfg.Semantic.RedisAddr == "" {
				return signal.NewConfigError(semantic.Name, "redis_addr", "required when cache_backend is redis")
			}
		default:
			return signal.NewConfigError(semantic.Name, "cache_backend", "unknown backend %q (want memory or redis)", cfg.Semantic.CacheBackend)
		}
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return signal.NewConfigError("logging", "level", "unknown level %q", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return signal.NewConfigError("logging", "format", "unknown format %q (want text or json)", cfg.Logging.Format)
	}
	return nil
}

func knownSource(name string) bool {
	if _, ok := pattern.Builtin(name); ok {
		return true
	}
	return name == escalation.Name || name == semantic.Name
}

// Signal converts the YAML shape to the engine's source config.
func (c SourceConfig) Signal(component string) (signal.SourceConfig, error) {
	out := signal.SourceConfig{
		Enabled:             c.Enabled,
		ConfidenceThreshold: c.ConfidenceThreshold,
		Rules:               c.Rules,
	}
	for _, name := range c.Categories {
		cat, err := signal.ParseCategory(name)
		if err != nil {
			return signal.SourceConfig{}, signal.NewConfigError(component, "categories", "%v", err)
		}
		out.Categories = append(out.Categories, cat)
	}
	if err := out.Validate(component); err != nil {
		return signal.SourceConfig{}, err
	}
	return out, nil
}

// EscalationSettings builds and validates the escalation source config.
func (c *Config) EscalationSettings() (escalation.Config, error) {
	src, err := c.Escalation.Signal(escalation.Name)
	if err != nil {
		return escalation.Config{}, err
	}
	out := escalation.DefaultConfig()
	out.Source = src
	out.WindowSize = c.Escalation.WindowSize
	out.Threshold = c.Escalation.EscalationThreshold
	out.MinTurns = c.Escalation.MinTurnsForDetection
	out.SingleTurnCeiling = c.Escalation.SingleTurnCeiling
	out.Weights = c.Escalation.Weights
	if err := out.Validate(); err != nil {
		return escalation.Config{}, err
	}
	return out, nil
}

// SemanticSettings builds and validates the semantic source config. The API
// key is read from the environment variable named by api_key_env.
func (c *Config) SemanticSettings() (semantic.Config, error) {
	src, err := c.Semantic.Signal(semantic.Name)
	if err != nil {
		return semantic.Config{}, err
	}
	s := c.Semantic
	out := semantic.Config{
		Source: src,
		Provider: semantic.ProviderConfig{
			Provider:  s.Provider,
			Model:     s.Model,
			BaseURL:   s.BaseURL,
			MaxTokens: s.MaxTokens,
		},
		Timeout:                 s.Timeout,
		FailClosed:              s.FailClosed,
		CacheEnabled:            s.CacheEnabled,
		CacheTTL:                s.CacheTTL,
		IncludePriorTurnContext: s.IncludePriorTurnContext,
		MaxConcurrency:          s.MaxConcurrency,
	}
	out.Provider.APIKey = os.Getenv(s.KeyEnv())
	if err := out.Validate(); err != nil {
		return semantic.Config{}, err
	}
	return out, nil
}
