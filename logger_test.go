package tandem

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// These are light smoke tests ensuring exported logger APIs do not panic and remain callable.
func TestSimpleLoggerLevels(t *testing.T) {
	logger := NewSimpleLogger()

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
}

func TestZerologLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Info("request done", "status", 200, "url", "https://example.com")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "request done" || entry["level"] != "info" {
		t.Errorf("Unexpected entry %v", entry)
	}
	if entry["status"] != float64(200) || entry["url"] != "https://example.com" {
		t.Errorf("Expected key/value fields, got %v", entry)
	}
}

func TestZerologLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown too")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("Messages below the level were written")
	}
	if strings.Count(buf.String(), "shown") != 2 {
		t.Errorf("Expected two entries, got %q", buf.String())
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()
	if cfg.Enabled {
		t.Error("Expected debug disabled by default")
	}
	if !cfg.LogRequests || !cfg.LogQueue || !cfg.LogInterceptors || !cfg.LogErrors {
		t.Error("Expected every category selected by default")
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = nopLogger{}
	l.Debug("x", "k", "v")
	l.Error("y")
}
