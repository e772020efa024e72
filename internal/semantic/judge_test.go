package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/textgate/internal/signal"
)

func TestOpenAIJudge_Complete(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	j, err := NewJudge(ProviderConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1/", APIKey: "sk-test"}, srv.Client())
	require.NoError(t, err)

	out, err := j.Complete(context.Background(), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Zero(t, got.Temperature)
}

func TestOpenAIJudge_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"rate_limit"}}`, "rate limited"},
		{"opaque error", http.StatusBadGateway, `<html>bad gateway</html>`, "status 502"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"not json", http.StatusOK, `nope`, "decode openai response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			j, err := NewJudge(ProviderConfig{Provider: ProviderOpenAI, Model: "m", BaseURL: srv.URL}, srv.Client())
			require.NoError(t, err)
			_, err = j.Complete(context.Background(), Prompt{User: "x"})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestOpenAIJudge_ResponseLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	j, err := NewJudge(ProviderConfig{Provider: ProviderOpenAI, Model: "m", BaseURL: srv.URL, MaxResponseBytes: 1024}, srv.Client())
	require.NoError(t, err)
	_, err = j.Complete(context.Background(), Prompt{User: "x"})
	assert.ErrorContains(t, err, "exceeded limit")
}

func TestAnthropicJudge_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"a\":"},{"type":"tool_use"},{"type":"text","text":"1}"}]}`))
	}))
	defer srv.Close()

	j, err := NewJudge(ProviderConfig{Provider: "Anthropic", Model: "claude-3-haiku", BaseURL: srv.URL, APIKey: "key-123"}, srv.Client())
	require.NoError(t, err)

	out, err := j.Complete(context.Background(), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, 1024, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestAnthropicJudge_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	j, err := NewJudge(ProviderConfig{Provider: ProviderAnthropic, Model: "m", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	_, err = j.Complete(context.Background(), Prompt{User: "x"})
	assert.ErrorContains(t, err, "invalid x-api-key")
}

func TestSource_EndToEndOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "```json\n" + harmReply + "\n```"}}},
		})
		_, _ = w.Write(reply)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Provider.BaseURL = srv.URL
	s := newTestSource(t, cfg, WithHTTPClient(srv.Client()))

	v := s.Evaluate(context.Background(), signal.Request{Text: "detailed assembly instructions"})
	assert.True(t, v.Detected)
	assert.Equal(t, "harm", v.Metadata["gate"])
}
