// Package semantic implements the semantic signal source: it asks an
// externally hosted language model to judge text against the four gates,
// caches successful judgements, and applies a fail-open or fail-closed
// policy when the judge cannot be reached or understood.
package semantic

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gzhole/textgate/internal/signal"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const defaultMaxResponseBytes = 1 << 20

// Prompt is a provider-neutral system + user message pair.
type Prompt struct {
	System string
	User   string
}

// Judge sends a prompt to the external model and returns its raw reply.
type Judge interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, p Prompt) (string, error)

func (f JudgeFunc) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// ProviderConfig selects and configures the external judge.
type ProviderConfig struct {
	Provider         string
	Model            string
	BaseURL          string
	APIKey           string
	MaxTokens        int
	MaxResponseBytes int64
}

// Validate rejects unknown providers and a missing model.
func (c ProviderConfig) Validate() error {
	switch strings.ToLower(c.Provider) {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return signal.NewConfigError(Name, "provider", "unknown provider %q (want openai or anthropic)", c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return signal.NewConfigError(Name, "model", "model is required")
	}
	if c.MaxResponseBytes < 0 {
		return signal.NewConfigError(Name, "max_response_bytes", "must not be negative")
	}
	return nil
}

// NewJudge builds the HTTP client for the configured provider. A nil client
// gets a default one; per-call deadlines come from the caller's context.
func NewJudge(cfg ProviderConfig, client *http.Client) (Judge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	limit := cfg.MaxResponseBytes
	if limit == 0 {
		limit = defaultMaxResponseBytes
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		return newAnthropic(cfg, client, limit), nil
	default:
		return newOpenAI(cfg, client, limit), nil
	}
}
