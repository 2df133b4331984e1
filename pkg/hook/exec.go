package hook

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/splax/swapdeploy/pkg/deployerr"
	"github.com/splax/swapdeploy/pkg/remotelog"
)

const maxLineSize = 1 << 20

// Request is written as a single JSON object to the hook process' stdin.
type Request struct {
	InstalledTo string            `json:"installed_to"`
	Args        map[string]string `json:"args"`
}

// Message is one JSON line on the hook process' stdout.
type Message struct {
	Log    *LogLine          `json:"log,omitempty"`
	Result map[string]string `json:"result,omitempty"`
}

// LogLine is a log record emitted by the hook process.
type LogLine struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// ExecLoader finds an executable entry point at the root of the live tree.
type ExecLoader struct {
	EntryPoint string
	Env        []string
}

// Load returns an InstallError when the entry point is missing.
func (l ExecLoader) Load(liveDir string) (Installer, error) {
	name := l.EntryPoint
	path := filepath.Join(liveDir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, deployerr.Install(fmt.Sprintf("%s not found", name), err)
	}
	if err != nil {
		return nil, deployerr.Install(fmt.Sprintf("stat %s", name), err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return nil, deployerr.Install(fmt.Sprintf("%s is not executable", name), nil)
	}
	return &execHook{path: path, dir: liveDir, env: l.Env}, nil
}

type execHook struct {
	path   string
	dir    string
	env    []string
	logger *remotelog.Logger
	args   map[string]string
}

func (h *execHook) InjectLogger(logger *remotelog.Logger) { h.logger = logger }

func (h *execHook) InjectArgs(args map[string]string) { h.args = args }

func (h *execHook) Install(ctx context.Context, installedTo string) (map[string]string, error) {
	req, err := json.Marshal(Request{InstalledTo: installedTo, Args: h.args})
	if err != nil {
		return nil, deployerr.Install("encode hook request", err)
	}
	cmd := exec.CommandContext(ctx, h.path)
	cmd.Dir = h.dir
	cmd.Env = append(os.Environ(), h.env...)
	cmd.Stdin = bytes.NewReader(req)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, deployerr.Install("open hook stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, deployerr.Install(fmt.Sprintf("start %s", filepath.Base(h.path)), err)
	}
	result, readErr := h.consume(stdout)
	waitErr := cmd.Wait()
	if waitErr != nil {
		msg := fmt.Sprintf("install hook failed: %v", waitErr)
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			msg += ": " + detail
		}
		return nil, deployerr.Install(msg, waitErr)
	}
	if readErr != nil {
		return nil, deployerr.Install("read hook output", readErr)
	}
	if result == nil {
		result = map[string]string{}
	}
	return result, nil
}

// consume forwards log lines in order; the last result line wins. Lines that
// are not protocol messages are kept as info entries.
func (h *execHook) consume(r io.Reader) (map[string]string, error) {
	var result map[string]string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil || (msg.Log == nil && msg.Result == nil) {
			h.log(remotelog.LevelInfo, string(line), nil)
			continue
		}
		if msg.Log != nil {
			level := msg.Log.Level
			if level == "" {
				level = remotelog.LevelInfo
			}
			h.log(level, msg.Log.Message, msg.Log.Context)
		}
		if msg.Result != nil {
			result = msg.Result
		}
	}
	if err := scanner.Err(); err != nil {
		// Drain so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return result, err
	}
	return result, nil
}

func (h *execHook) log(level, message string, context map[string]any) {
	if h.logger == nil {
		return
	}
	h.logger.Log(level, message, context)
}
