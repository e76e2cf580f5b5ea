package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_FromEnv(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		t.Setenv("LOG_LEVEL", in)
		assert.Equal(t, want, LogLevel(), "LOG_LEVEL=%q", in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithScenario(NewLogger(&buf, slog.LevelInfo, "json"), "sc-1")

	logger.Debug("hidden")
	logger.Info("scenario_started", "feature", "Calc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "scenario_started", rec["msg"])
	assert.Equal(t, "sc-1", rec["scenario_id"])
	assert.Equal(t, "Calc", rec["feature"])
}

func TestNewLogger_TextByDefault(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelWarn, "").Warn("slow", "step", "Given")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "msg=slow")
	assert.Contains(t, buf.String(), "step=Given")
}
