package remotelog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMessage(t *testing.T) {
	before := float64(time.Now().Add(-time.Second).UnixNano()) / 1e9
	logger := New()
	logger.Info("info-message", map[string]any{"some": "context"})

	entries := logger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "info-message", entries[0].Message)
	assert.Equal(t, map[string]any{"some": "context"}, entries[0].Context)
	assert.Greater(t, entries[0].Timestamp, before)
	assert.LessOrEqual(t, entries[0].Timestamp, float64(time.Now().UnixNano())/1e9)
}

func TestLevels(t *testing.T) {
	logger := New()
	logger.Emergency("emergency-message", nil)
	logger.Alert("alert-message", nil)
	logger.Critical("critical-message", nil)
	logger.Error("error-message", nil)
	logger.Warning("warning-message", nil)
	logger.Notice("notice-message", nil)
	logger.Info("info-message", nil)
	logger.Debug("debug-message", nil)
	logger.Log("invalid", "invalid-message", nil)

	var levels []string
	for _, entry := range logger.Entries() {
		levels = append(levels, entry.Level)
	}
	assert.Equal(t, []string{
		"emergency", "alert", "critical", "error", "warning",
		"notice", "info", "debug", "invalid",
	}, levels)
}

func TestNilContextEncodesAsObject(t *testing.T) {
	logger := New(WithClock(func() time.Time { return time.Unix(1, 500_000_000) }))
	logger.Info("m", nil)

	payload, err := json.Marshal(logger.Entries())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"level":"info","timestamp":1.5,"message":"m","context":{}}]`, string(payload))
}

func TestEntriesReturnsCopy(t *testing.T) {
	logger := New()
	logger.Info("first", nil)
	entries := logger.Entries()
	entries[0].Message = "changed"

	assert.Equal(t, "first", logger.Entries()[0].Message)
	assert.Equal(t, 1, logger.Len())
}

func TestEntryTime(t *testing.T) {
	entry := Entry{Timestamp: 1234567890.25}
	assert.Equal(t, int64(1234567890), entry.Time().Unix())
	assert.InDelta(t, 250_000_000, entry.Time().Nanosecond(), 1000)
}

func TestSinkSeesEveryEntry(t *testing.T) {
	var seen []string
	logger := New(WithSink(func(e Entry) { seen = append(seen, e.Level+":"+e.Message) }))
	logger.Info("a", nil)
	logger.Log("custom", "b", nil)

	assert.Equal(t, []string{"info:a", "custom:b"}, seen)
}
