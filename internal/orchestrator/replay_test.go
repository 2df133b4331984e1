package orchestrator

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/splax/swapdeploy/pkg/logger"
	"github.com/splax/swapdeploy/pkg/remotelog"
)

func TestRemoteMessage(t *testing.T) {
	tests := []struct {
		name string
		ts   float64
		want string
	}{
		{"whole second", 1584349200, "remote> 2020-03-16 09:00:00.000 hello"},
		{"milliseconds", 1584349200.25, "remote> 2020-03-16 09:00:00.250 hello"},
		{"zero", 0, "remote> ????-??-?? ??:??:??.??? hello"},
		{"negative", -5, "remote> ????-??-?? ??:??:??.??? hello"},
		{"too large", 1e15, "remote> ????-??-?? ??:??:??.??? hello"},
		{"nan", math.NaN(), "remote> ????-??-?? ??:??:??.??? hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RemoteMessage(remotelog.Entry{Timestamp: tt.ts, Message: "hello"})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplayLevels(t *testing.T) {
	var buf bytes.Buffer
	d := &Deployer{logger: logger.NewWithWriter(&buf, true, "test", slog.LevelDebug)}

	d.replay(context.Background(), []remotelog.Entry{
		{Level: "critical", Timestamp: 1584349200, Message: "bad"},
		{Level: "shouting", Timestamp: 1584349200, Message: "odd", Context: map[string]any{"k": "v"}},
	})

	out := buf.String()
	assert.Contains(t, out, "level=CRITICAL")
	assert.Contains(t, out, "remote_level=shouting")
	assert.Contains(t, out, "context=map[k:v]")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "? bytes", humanSize(0))
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KiB", humanSize(1536))
}
