package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupWriter_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	Logger{Level: "warn", Format: "json"}.SetupWriter(&buf)

	log.Info().Msg("hidden")
	log.Warn().Str("sheet", "Sheet1").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["message"] != "visible" || entry["sheet"] != "Sheet1" || entry["level"] != "warn" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetupWriter_InvalidLevelDefaultsToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	Logger{Level: "loud", Format: "console", NoColor: true}.SetupWriter(&buf)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", zerolog.GlobalLevel())
	}

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected console output %q", out)
	}
}
