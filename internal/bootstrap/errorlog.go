package bootstrap

import (
	"io"
	"log/slog"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/splax/swapdeploy/pkg/config"
)

// ErrorLogName is the private error log kept in the deploy path.
const ErrorLogName = "swapdeploy-error.log"

// ErrorLogFunc opens the error log for a deploy path.
type ErrorLogFunc func(deployPath string) io.Writer

// RotatingErrorLog writes to a size-rotated file inside the deploy path.
func RotatingErrorLog(cfg config.ErrorLogConfig) ErrorLogFunc {
	return func(deployPath string) io.Writer {
		return &lumberjack.Logger{
			Filename:   filepath.Join(deployPath, ErrorLogName),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
}

// newErrorLogger wraps w in a JSON slog logger. Writes are best effort; a
// failing writer only loses the record.
func newErrorLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("service", "swapdeploy-bootstrap")
}
