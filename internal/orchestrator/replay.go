package orchestrator

import (
	"context"
	"log/slog"
	"math"

	"github.com/splax/swapdeploy/pkg/logger"
	"github.com/splax/swapdeploy/pkg/remotelog"
)

const (
	remoteTimeLayout  = "2006-01-02 15:04:05.000"
	unknownRemoteTime = "????-??-?? ??:??:??.???"
)

// maxRemoteTimestamp is 9999-12-31T23:59:59Z.
const maxRemoteTimestamp = 253402300799

// RemoteMessage renders an entry as "remote> <UTC time> <message>".
func RemoteMessage(e remotelog.Entry) string {
	return "remote> " + remoteTime(e) + " " + e.Message
}

func remoteTime(e remotelog.Entry) string {
	ts := e.Timestamp
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts <= 0 || ts > maxRemoteTimestamp {
		return unknownRemoteTime
	}
	return e.Time().UTC().Format(remoteTimeLayout)
}

// replay logs remote entries at their own level. Unknown level names are
// logged at info with the name kept in remote_level.
func (d *Deployer) replay(ctx context.Context, entries []remotelog.Entry) {
	for _, e := range entries {
		level, known := logger.RemoteLevel(e.Level)
		attrs := make([]slog.Attr, 0, 2)
		if !known {
			attrs = append(attrs, slog.String("remote_level", e.Level))
		}
		if len(e.Context) > 0 {
			attrs = append(attrs, slog.Any("context", e.Context))
		}
		d.logger.LogAttrs(ctx, level, RemoteMessage(e), attrs...)
	}
}
