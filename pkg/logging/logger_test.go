package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"error", ERROR},
		{"bogus", INFO},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: INFO, JSON: true, Output: &buf}).WithComponent("lifecycle")

	log.Info("Request created", Fields{"request_id": "abc"})

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "Request created" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["component"] != "lifecycle" || entry["request_id"] != "abc" {
		t.Errorf("missing fields: %v", entry)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WARN, Output: &buf})

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at WARN")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn line missing")
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: INFO, JSON: true, Output: &buf})
	_ = parent.WithField("request_id", "x")

	parent.Info("plain")
	if strings.Contains(buf.String(), "request_id") {
		t.Error("child field leaked into parent")
	}
}
