package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synerr "github.com/synthreg/synthreg/pkg/errors"
)

func TestTestLoggerCapturesLevelsAndFields(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", EpochKey, 3)
	testLogger.Info("info message", OperationKey, "fit")
	testLogger.Warn("warning message", PatienceKey, 6)
	testLogger.Error("error message", fmt.Errorf("boom"), PhaseKey, "training")

	require.NotEmpty(t, buffer.String())
	assert.True(t, testLogger.ContainsMessage("debug message"))
	assert.True(t, testLogger.ContainsMessage("error message"))
	assert.True(t, testLogger.ContainsField(OperationKey, "fit"))
	assert.True(t, testLogger.ContainsField(EpochKey, 3.0))
	assert.True(t, testLogger.ContainsField("error", "boom"))

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestTestLoggerLevelFilter(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelWarn)

	testLogger.Debug("hidden")
	testLogger.Info("hidden too")
	testLogger.Warn("shown")

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.False(t, testLogger.Enabled(context.Background(), LevelInfo))
	assert.True(t, testLogger.Enabled(context.Background(), LevelError))
}

func TestTestLoggerWithSharesBuffer(t *testing.T) {
	base, _ := NewTestLogger(LevelInfo)
	child := base.With(ModelNameKey, "Sequential")

	child.Info("epoch end", LossKey, 1.5)
	base.Info("plain")

	assert.True(t, base.ContainsField(ModelNameKey, "Sequential"))
	entries, err := base.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	_, hasModel := entries[1][ModelNameKey]
	assert.False(t, hasModel)
}

func TestZerologLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.With(ComponentKey, "nn").Info("epoch end", EpochKey, 1, LossKey, 2.5)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "epoch end", entry["message"])
	assert.Equal(t, "nn", entry[ComponentKey])
	assert.Equal(t, 1.0, entry[EpochKey])
	assert.Equal(t, 2.5, entry[LossKey])
}

func TestZerologLoggerErrorCarriesType(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Error("predict failed", synerr.NewNotFittedError("Sequential", "Predict"))

	out := buf.String()
	assert.Contains(t, out, "NotFittedError")
	assert.Contains(t, out, "predict failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "NotFittedError", entry[ErrorTypeKey])
	frames, ok := entry[StacktraceKey].([]interface{})
	require.True(t, ok, "missing %s in %s", StacktraceKey, out)
	assert.NotEmpty(t, frames)
}

func TestDefaultLoggerSkipsDebug(t *testing.T) {
	assert.False(t, GetLogger().Enabled(context.Background(), LevelDebug))
	assert.True(t, GetLogger().Enabled(context.Background(), LevelInfo))
}

func TestZerologLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, logger.Enabled(context.Background(), LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), LevelWarn))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"debug", LevelDebug, false},
		{"WARN", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "log.format"))
}

func TestSetLoggerRoutesWarnings(t *testing.T) {
	prev := GetLogger()
	testLogger, _ := NewTestLogger(LevelDebug)
	SetLogger(testLogger)
	defer func() {
		SetLogger(prev)
		synerr.SetZerologWarnFunc(nil)
	}()

	synerr.Warn(synerr.NewConvergenceWarning("Adam", 10, "stopped at max epochs"))

	assert.True(t, testLogger.ContainsMessage("stopped at max epochs"))
}
