package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		env     string
		level   string
		want    zerolog.Level
		wantErr bool
	}{
		{"dev", "", zerolog.DebugLevel, false},
		{"prod", "", zerolog.InfoLevel, false},
		{"prod", "WARN", zerolog.WarnLevel, false},
		{"dev", " error ", zerolog.ErrorLevel, false},
		{"prod", "loud", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.env, tt.level)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q, %q) error = %v, wantErr %v", tt.env, tt.level, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q, %q) = %v, want %v", tt.env, tt.level, got, tt.want)
		}
	}
}

func TestInitWithWriter_JSON(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	InitWithWriter(&buf, "prod", "")
	log.Debug().Msg("hidden")
	log.Info().Str("room", "general").Msg("visible")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log output is not a single JSON line: %v\n%s", err, buf.String())
	}
	if entry["service"] != serviceName {
		t.Errorf("service = %v, want %s", entry["service"], serviceName)
	}
	if entry["message"] != "visible" || entry["room"] != "general" {
		t.Errorf("entry = %v, want the info message with its room field", entry)
	}
}
