package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/mbegale/dwellio-core/internal/infrastructure/config"
)

func captureLogger(t *testing.T, cfg config.LoggingConfig) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return NewWithWriter(cfg, "0.0.0-test", &buf), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	return record
}

func TestRecordCarriesServiceAndVersion(t *testing.T) {
	log, buf := captureLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	log.Info("device registered", "device_id", "lock-front-door")

	record := lastRecord(t, buf)
	if record["service"] != "dwellio-core" {
		t.Errorf("service = %v, want dwellio-core", record["service"])
	}
	if record["version"] != "0.0.0-test" {
		t.Errorf("version = %v, want 0.0.0-test", record["version"])
	}
	if record["msg"] != "device registered" {
		t.Errorf("msg = %v, want 'device registered'", record["msg"])
	}
	if record["device_id"] != "lock-front-door" {
		t.Errorf("device_id = %v, want lock-front-door", record["device_id"])
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := captureLogger(t, config.LoggingConfig{Level: "warn", Format: "json"})

	log.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info record emitted at warn level: %s", buf.String())
	}

	log.Warn("emitted")
	if buf.Len() == 0 {
		t.Fatal("warn record suppressed at warn level")
	}
}

func TestTextFormat(t *testing.T) {
	log, buf := captureLogger(t, config.LoggingConfig{Level: "info", Format: "text"})

	log.Info("sync started")

	out := buf.String()
	if !strings.Contains(out, "msg=") {
		t.Errorf("expected text handler output, got: %s", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %s", out)
	}
}

func TestWithTagsChildNotParent(t *testing.T) {
	log, buf := captureLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	child := log.With("component", "webhook")
	if child == log {
		t.Fatal("With returned the parent logger")
	}

	child.Info("event received")
	if record := lastRecord(t, buf); record["component"] != "webhook" {
		t.Errorf("child record component = %v, want webhook", record["component"])
	}

	buf.Reset()
	log.Info("plain")
	if record := lastRecord(t, buf); record["component"] != nil {
		t.Errorf("parent record gained component = %v", record["component"])
	}
}

func TestLevelFor(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := levelFor(input); got != want {
			t.Errorf("levelFor(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}
