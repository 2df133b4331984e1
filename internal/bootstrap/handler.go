package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/swapdeploy/pkg/config"
	"github.com/splax/swapdeploy/pkg/deployerr"
	"github.com/splax/swapdeploy/pkg/hook"
	"github.com/splax/swapdeploy/pkg/remotelog"
)

// TokenHeader carries the run token.
const TokenHeader = "X-Swapdeploy-Token"

// SuccessResponse is the 200 body.
type SuccessResponse struct {
	Success bool              `json:"success"`
	Result  map[string]string `json:"result"`
	Log     []remotelog.Entry `json:"log"`
}

// ErrorPayload describes a failed run.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FailureResponse is the 500 body. It carries the log gathered up to the
// failure.
type FailureResponse struct {
	Error ErrorPayload      `json:"error"`
	Log   []remotelog.Entry `json:"log"`
}

// Handler serves one deployment per GET request for the files uploaded to dir.
type Handler struct {
	dir        string
	scriptName string
	logger     *slog.Logger
	metrics    *Metrics
	loader     hook.Loader
	now        func() time.Time
	errorLog   ErrorLogFunc
	fallback   io.Writer
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithLoader replaces the exec install hook loader.
func WithLoader(l hook.Loader) HandlerOption {
	return func(h *Handler) { h.loader = l }
}

// WithScriptName names the running bootstrap file. It is the name removed
// with the other uploads when deploy.json cannot be read.
func WithScriptName(name string) HandlerOption {
	return func(h *Handler) { h.scriptName = name }
}

// WithClock sets the clock used for log timestamps and forensic names.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// WithErrorLog replaces the rotating error log.
func WithErrorLog(f ErrorLogFunc) HandlerOption {
	return func(h *Handler) { h.errorLog = f }
}

// WithFallbackLog receives error records written before the deploy path is
// verified, typically stderr.
func WithFallbackLog(w io.Writer) HandlerOption {
	return func(h *Handler) { h.fallback = w }
}

// NewHandler creates a handler for the public deploy directory dir.
func NewHandler(dir string, logger *slog.Logger, metrics *Metrics, opts ...HandlerOption) *Handler {
	h := &Handler{
		dir:     dir,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.writeJSON(w, http.StatusMethodNotAllowed, FailureResponse{
			Error: ErrorPayload{Type: "MethodNotAllowed", Message: "method not allowed"},
			Log:   []remotelog.Entry{},
		})
		return
	}
	// The run must finish even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())
	status, payload := h.Execute(ctx, r.Header.Get(TokenHeader))
	h.writeJSON(w, status, payload)
}

// Execute runs one deployment and returns the HTTP status and body.
func (h *Handler) Execute(ctx context.Context, token string) (status int, payload any) {
	logger := remotelog.New(remotelog.WithClock(h.now))
	start := time.Now()
	outcome := "failure"
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("bootstrap panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			status, payload = http.StatusInternalServerError, failure(logger, "Error", fmt.Sprintf("panic: %v", r))
			outcome = "failure"
		}
		h.metrics.observe(outcome, time.Since(start))
	}()

	b := New(Options{
		Config:           config.BootstrapConfig{ScriptName: h.scriptName},
		ConfigFile:       filepath.Join(h.dir, config.BootstrapConfigName),
		PublicDeployPath: h.dir,
		Logger:           logger,
		Loader:           h.loader,
		Now:              h.now,
		Token:            token,
		ErrorLog:         h.errorLog,
		Fallback:         h.fallback,
	})
	result, err := b.Run(ctx)
	if err != nil {
		if errors.Is(err, deployerr.ErrConcurrentRun) || b.rejected {
			outcome = "rejected"
		}
		h.logger.Error("deployment failed", "error", err, "outcome", outcome)
		return http.StatusInternalServerError, failure(logger, deployerr.TypeName(err), err.Error())
	}
	outcome = "success"
	h.logger.Info("deployment done", "installed_to", b.Paths().InstalledTo)
	return http.StatusOK, SuccessResponse{Success: true, Result: result, Log: logger.Entries()}
}

func failure(logger *remotelog.Logger, typ, message string) FailureResponse {
	return FailureResponse{
		Error: ErrorPayload{Type: typ, Message: message},
		Log:   logger.Entries(),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// NewServeMux exposes the handler on / next to /metrics and /healthz for the
// standalone server.
func NewServeMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	mux.Handle("/", h)
	return mux
}
