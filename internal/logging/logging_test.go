package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_RedactsStringsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json")

	log.Warn("semantic judge failed",
		"error", errors.New("401 from api: Bearer abcdefghijklmnopqrstuvwxyz"),
		"evidence", "my password=hunter2hunter2",
		"source", "semantic",
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not JSON: %v: %s", err, buf.String())
	}
	if strings.Contains(buf.String(), "hunter2hunter2") || strings.Contains(buf.String(), "abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("secret leaked: %s", buf.String())
	}
	if entry["source"] != "semantic" {
		t.Errorf("plain attribute altered: %v", entry["source"])
	}
	if entry["msg"] != "semantic judge failed" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestNew_MasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "text").Debug("loaded env", "OPENAI_API_KEY", "anything")
	if strings.Contains(buf.String(), "anything") {
		t.Errorf("value under sensitive key leaked: %s", buf.String())
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "text")
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("level filtering wrong: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
