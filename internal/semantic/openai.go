package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// openAIJudge calls the OpenAI Chat Completions API.
type openAIJudge struct {
	baseURL          string
	apiKey           string
	model            string
	client           *http.Client
	maxResponseBytes int64
}

func newOpenAI(cfg ProviderConfig, client *http.Client, limit int64) *openAIJudge {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &openAIJudge{
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           cfg.APIKey,
		model:            cfg.Model,
		client:           client,
		maxResponseBytes: limit,
	}
}

type openAIChatRequest struct {
	Model          string              `json:"model"`
	Messages       []openAIChatMessage `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *openAIFormat       `json:"response_format,omitempty"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (j *openAIJudge) Complete(ctx context.Context, p Prompt) (string, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model: j.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		ResponseFormat: &openAIFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if j.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.apiKey)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := readLimited(resp.Body, j.maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errBody openAIErrorResponse
		if err := json.Unmarshal(respBody, &errBody); err != nil || errBody.Error.Message == "" {
			return "", fmt.Errorf("openai error status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("openai error status %d: %s (type=%s)", resp.StatusCode, errBody.Error.Message, errBody.Error.Type)
	}

	var out openAIChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai response had no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// readLimited reads at most limit bytes and fails if the body is larger.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response exceeded limit (%d bytes)", limit)
	}
	return data, nil
}
