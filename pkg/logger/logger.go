package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Levels beyond slog's four, used when replaying remote entries.
const (
	LevelNotice    = slog.LevelInfo + 2
	LevelCritical  = slog.LevelError + 4
	LevelAlert     = slog.LevelError + 8
	LevelEmergency = slog.LevelError + 12
)

var levelNames = map[slog.Level]string{
	LevelNotice:    "NOTICE",
	LevelCritical:  "CRITICAL",
	LevelAlert:     "ALERT",
	LevelEmergency: "EMERGENCY",
}

// New returns a slog.Logger configured for the given service name. Output is
// human readable text on a terminal and JSON otherwise.
func New(service string, level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())), service, level)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, text bool, service string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}
	var h slog.Handler
	if text {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok {
		if name, ok := levelNames[lvl]; ok {
			a.Value = slog.StringValue(name)
		}
	}
	return a
}

// ParseLevel maps a configuration string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RemoteLevel maps a level name reported by the remote side. Names outside
// the standard set are not rejected: they come back with known=false and
// should be logged at info with the original name attached.
func RemoteLevel(name string) (level slog.Level, known bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "notice":
		return LevelNotice, true
	case "warning", "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "critical":
		return LevelCritical, true
	case "alert":
		return LevelAlert, true
	case "emergency":
		return LevelEmergency, true
	default:
		return slog.LevelInfo, false
	}
}
