package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// anthropicJudge calls the Anthropic Messages API.
type anthropicJudge struct {
	baseURL          string
	apiKey           string
	model            string
	maxTokens        int
	client           *http.Client
	maxResponseBytes int64
}

func newAnthropic(cfg ProviderConfig, client *http.Client, limit int64) *anthropicJudge {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &anthropicJudge{
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           cfg.APIKey,
		model:            cfg.Model,
		maxTokens:        maxTokens,
		client:           client,
		maxResponseBytes: limit,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (j *anthropicJudge) Complete(ctx context.Context, p Prompt) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     j.model,
		MaxTokens: j.maxTokens,
		System:    p.System,
		Messages:  []anthropicMessage{{Role: "user", Content: p.User}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	if j.apiKey != "" {
		req.Header.Set("x-api-key", j.apiKey)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := readLimited(resp.Body, j.maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("read anthropic response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errBody anthropicErrorResponse
		if err := json.Unmarshal(respBody, &errBody); err != nil || errBody.Error.Message == "" {
			return "", fmt.Errorf("anthropic error status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("anthropic error status %d: %s (type=%s)", resp.StatusCode, errBody.Error.Message, errBody.Error.Type)
	}

	var out anthropicResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic response had no text content")
	}
	return sb.String(), nil
}
