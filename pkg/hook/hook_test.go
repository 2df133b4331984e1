package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/swapdeploy/pkg/deployerr"
	"github.com/splax/swapdeploy/pkg/remotelog"
)

type recordingHook struct {
	calls  []string
	logger *remotelog.Logger
	args   map[string]string
	result map[string]string
	err    error
}

func (h *recordingHook) InjectLogger(logger *remotelog.Logger) {
	h.calls = append(h.calls, "logger")
	h.logger = logger
	logger.Info("Logger injected", nil)
}

func (h *recordingHook) InjectArgs(args map[string]string) {
	h.calls = append(h.calls, "args")
	h.args = args
}

func (h *recordingHook) Install(_ context.Context, installedTo string) (map[string]string, error) {
	h.calls = append(h.calls, "install:"+installedTo)
	return h.result, h.err
}

type installOnly struct{ installedTo string }

func (h *installOnly) Install(_ context.Context, installedTo string) (map[string]string, error) {
	h.installedTo = installedTo
	return nil, nil
}

func TestRunInjectsInOrder(t *testing.T) {
	h := &recordingHook{result: map[string]string{"k": "v"}}
	logger := remotelog.New()
	args := map[string]string{"remote_public_random_deploy_dirname": "abc123"}

	result, err := Run(context.Background(), h, logger, args, "/srv/public_html")
	require.NoError(t, err)

	assert.Equal(t, []string{"logger", "args", "install:/srv/public_html"}, h.calls)
	assert.Equal(t, args, h.args)
	assert.Same(t, logger, h.logger)
	assert.Equal(t, map[string]string{"k": "v"}, result)
	assert.Equal(t, "Logger injected", logger.Entries()[0].Message)
}

func TestRunWithoutOptionalCapabilities(t *testing.T) {
	h := &installOnly{}
	result, err := Run(context.Background(), h, remotelog.New(), nil, "/srv/public_html")
	require.NoError(t, err)

	assert.Equal(t, "/srv/public_html", h.installedTo)
	assert.Equal(t, map[string]string{}, result)
}

func TestRunPropagatesInstallError(t *testing.T) {
	h := &recordingHook{err: errors.New("migration failed")}
	_, err := Run(context.Background(), h, remotelog.New(), nil, "/srv")
	assert.EqualError(t, err, "migration failed")
}

func TestServeIO(t *testing.T) {
	in := strings.NewReader(`{"installed_to":"/srv/public_html","args":{"environment":"prod"}}`)
	var out bytes.Buffer
	h := &recordingHook{result: map[string]string{"version": "42"}}

	require.NoError(t, ServeIO(context.Background(), h, in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var logMsg Message
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &logMsg))
	require.NotNil(t, logMsg.Log)
	assert.Equal(t, "info", logMsg.Log.Level)
	assert.Equal(t, "Logger injected", logMsg.Log.Message)
	assert.JSONEq(t, `{"result":{"version":"42"}}`, lines[1])
	assert.Equal(t, map[string]string{"environment": "prod"}, h.args)
}

func TestServeIOEmptyResult(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ServeIO(context.Background(), &installOnly{}, strings.NewReader(`{"installed_to":"/x"}`), &out))
	assert.JSONEq(t, `{"result":{}}`, strings.TrimSpace(out.String()))
}

func TestServeIOBadRequest(t *testing.T) {
	err := ServeIO(context.Background(), &installOnly{}, strings.NewReader("nope"), &bytes.Buffer{})
	assert.ErrorContains(t, err, "decode hook request")
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec hooks use /bin/sh")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755))
}

func TestExecLoaderMissingEntryPoint(t *testing.T) {
	_, err := ExecLoader{EntryPoint: "swapdeploy-install"}.Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, deployerr.ErrInstall))
	assert.Equal(t, "swapdeploy-install not found", err.Error())
}

func TestExecLoaderNotExecutable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "swapdeploy-install"), []byte("x"), 0o644))

	_, err := ExecLoader{EntryPoint: "swapdeploy-install"}.Load(dir)
	assert.True(t, errors.Is(err, deployerr.ErrInstall))
	assert.Contains(t, err.Error(), "is not executable")
}

func TestExecHookProtocol(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "swapdeploy-install", `cat > request.json
echo '{"log":{"level":"notice","message":"migrating","context":{"step":1}}}'
echo 'plain output'
echo '{"result":{"k":"v"}}'
`)
	h, err := ExecLoader{EntryPoint: "swapdeploy-install"}.Load(dir)
	require.NoError(t, err)

	logger := remotelog.New()
	result, err := Run(context.Background(), h, logger, map[string]string{"target": "host1"}, "/srv/public_html")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, result)

	entries := logger.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "notice", entries[0].Level)
	assert.Equal(t, "migrating", entries[0].Message)
	assert.Equal(t, map[string]any{"step": float64(1)}, entries[0].Context)
	assert.Equal(t, "plain output", entries[1].Message)

	raw, err := os.ReadFile(filepath.Join(dir, "request.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"installed_to":"/srv/public_html","args":{"target":"host1"}}`, string(raw))
}

func TestExecHookFailure(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "swapdeploy-install", "cat > /dev/null\necho 'no database' >&2\nexit 3\n")
	h, err := ExecLoader{EntryPoint: "swapdeploy-install"}.Load(dir)
	require.NoError(t, err)

	_, err = Run(context.Background(), h, remotelog.New(), nil, "/srv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, deployerr.ErrInstall))
	assert.Contains(t, err.Error(), "no database")
}
