// Command swapdeploy-bootstrap is uploaded next to a release archive and run
// by the web server as a CGI program. It swaps the release in and answers
// with a JSON document carrying the result and the run log.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cgi"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/splax/swapdeploy/internal/bootstrap"
	"github.com/splax/swapdeploy/pkg/config"
	"github.com/splax/swapdeploy/pkg/logger"
)

var buildVersion = "dev"

var flags struct {
	dir      string
	listen   string
	once     bool
	token    string
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "swapdeploy-bootstrap",
	Short: "Swap an uploaded release in place",
	Long: `Without flags the program answers a single CGI request. --listen serves
the same endpoint over HTTP next to /metrics and /healthz, and --once runs a
single deployment and prints the JSON response.`,
	Version:       buildVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&flags.dir, "dir", "", "public deploy directory (default: directory of this binary)")
	rootCmd.Flags().StringVar(&flags.listen, "listen", "", "serve HTTP on this address instead of CGI")
	rootCmd.Flags().BoolVar(&flags.once, "once", false, "run one deployment and print the response")
	rootCmd.Flags().StringVar(&flags.token, "token", "", "run token for --once (default $SWAPDEPLOY_TOKEN)")
	rootCmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	rc := config.LoadRuntimeConfig()
	if cmd.Flags().Changed("log-level") {
		rc.LogLevel = flags.logLevel
	}
	// stdout carries the CGI response.
	log := logger.NewWithWriter(os.Stderr, rc.TextLog, "swapdeploy-bootstrap", logger.ParseLevel(rc.LogLevel))

	dir, script, err := deployDir(flags.dir)
	if err != nil {
		return err
	}
	opts := []bootstrap.HandlerOption{
		bootstrap.WithScriptName(script),
		bootstrap.WithErrorLog(bootstrap.RotatingErrorLog(rc.ErrorLog)),
		bootstrap.WithFallbackLog(os.Stderr),
	}

	switch {
	case flags.listen != "":
		handler := bootstrap.NewHandler(dir, log, bootstrap.NewMetrics(prometheus.DefaultRegisterer), opts...)
		return serve(log, flags.listen, bootstrap.NewServeMux(handler), rc)
	case flags.once:
		detachFromClient()
		handler := bootstrap.NewHandler(dir, log, nil, opts...)
		token := flags.token
		if token == "" {
			token = os.Getenv("SWAPDEPLOY_TOKEN")
		}
		status, payload := handler.Execute(context.Background(), token)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("deployment failed with status %d", status)
		}
		return nil
	default:
		detachFromClient()
		handler := bootstrap.NewHandler(dir, log, nil, opts...)
		if err := cgi.Serve(handler); err != nil {
			return fmt.Errorf("serve cgi request: %w", err)
		}
		return nil
	}
}

// detachFromClient keeps a run going when the web server hangs up on the
// CGI process or the client stops reading its output.
func detachFromClient() {
	signal.Ignore(syscall.SIGHUP, syscall.SIGPIPE)
}

// deployDir defaults to the directory holding the running binary. The script
// name is empty when dir is given explicitly.
func deployDir(dir string) (string, string, error) {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		return abs, "", err
	}
	exe, err := os.Executable()
	if err != nil {
		return "", "", fmt.Errorf("locate executable: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", "", fmt.Errorf("resolve executable: %w", err)
	}
	return filepath.Dir(exe), filepath.Base(exe), nil
}

func serve(log *slog.Logger, addr string, handler http.Handler, rc config.RuntimeConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: rc.ReadHeaderTimeout,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("bootstrap server starting", "addr", addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), rc.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("bootstrap server stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
