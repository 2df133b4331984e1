// Package bootstrap swaps an uploaded archive into place on the remote host.
//
// The deploy path holds up to three generations: candidate (being prepared),
// live (served) and previous (the generation live replaced). Every transition
// between them is a directory rename, so at no point is live half written.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/splax/swapdeploy/internal/archive"
	"github.com/splax/swapdeploy/pkg/config"
	"github.com/splax/swapdeploy/pkg/crypto"
	"github.com/splax/swapdeploy/pkg/deployerr"
	"github.com/splax/swapdeploy/pkg/hook"
	"github.com/splax/swapdeploy/pkg/remotelog"
)

// DateFormat names forensic copies, e.g. invalid_candidate_2020-03-16_09_00_00.
const DateFormat = "2006-01-02_15_04_05"

const (
	candidateDir = "candidate"
	liveDir      = "live"
	previousDir  = "previous"
)

// Options configures a single bootstrap run.
type Options struct {
	Config config.BootstrapConfig
	// ConfigFile, when set, is read during initialization and replaces
	// Config. A file that cannot be read fails the run like any other step.
	ConfigFile string
	// PublicDeployPath is the directory the archive and this binary were
	// uploaded to.
	PublicDeployPath string
	Logger           *remotelog.Logger
	// Loader finds the install hook; nil means an ExecLoader for the
	// configured entry point.
	Loader hook.Loader
	Now    func() time.Time
	// Token is the run token presented by the caller.
	Token string
	// ErrorLog opens the private error log once the deploy path is known.
	// Nil means RotatingErrorLog sized from the environment.
	ErrorLog ErrorLogFunc
	// Fallback receives error records before the deploy path is verified.
	Fallback io.Writer
}

// Paths are the locations derived during initialization.
type Paths struct {
	PublicDeploy string
	Script       string
	Config       string
	Zip          string
	Base         string
	Deploy       string
	InstalledTo  string
	Candidate    string
	Live         string
	Previous     string
	Lock         string
}

// Bootstrap runs the candidate/live/previous state machine once.
type Bootstrap struct {
	cfg        config.BootstrapConfig
	configFile string
	logger     *remotelog.Logger
	loader     hook.Loader
	now        func() time.Time
	token      string
	openLog    ErrorLogFunc
	errLog     *slog.Logger
	paths      Paths
	date       string
	deployOK   bool
	lock       *runLock
	logFile    io.Closer
	remove     func(path string) error
	// rejected runs never touch another run's inputs.
	rejected bool
}

// New prepares a run.
func New(opts Options) *Bootstrap {
	cfg := opts.Config.WithDefaults()
	b := &Bootstrap{
		cfg:        cfg,
		configFile: opts.ConfigFile,
		logger:     opts.Logger,
		loader:     opts.Loader,
		now:        opts.Now,
		token:      opts.Token,
		openLog:    opts.ErrorLog,
		errLog:     newErrorLogger(opts.Fallback),
		remove:     RemoveAll,
	}
	if b.logger == nil {
		b.logger = remotelog.New()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.openLog == nil {
		b.openLog = RotatingErrorLog(config.LoadRuntimeConfig().ErrorLog)
	}
	b.paths.PublicDeploy = strings.TrimRight(opts.PublicDeployPath, string(os.PathSeparator))
	return b
}

// Logger returns the remote logger the run writes to.
func (b *Bootstrap) Logger() *remotelog.Logger { return b.logger }

// Paths returns the derived locations. They are complete only after the
// run got past initialization.
func (b *Bootstrap) Paths() Paths { return b.paths }

// Run executes the deployment. On failure the forensic cleanup runs before
// the original error is returned, unless the run was rejected by the token
// check or the run lock.
func (b *Bootstrap) Run(ctx context.Context) (map[string]string, error) {
	result, err := b.guardedRun(ctx)
	if err != nil {
		b.errLog.Error("deployment failed", "error", err, "type", deployerr.TypeName(err))
		if !b.rejected {
			b.handleFailure()
		}
	}
	if lerr := b.lock.release(); lerr != nil {
		b.errLog.Warn("could not release run lock", "error", lerr)
	}
	if b.logFile != nil {
		_ = b.logFile.Close()
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// guardedRun turns a panic in an in-process hook into an error so the
// failure handling and the lock release still happen.
func (b *Bootstrap) guardedRun(ctx context.Context) (result map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.errLog.Error("panic during deployment", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("panic during deployment: %v", r)
		}
	}()
	return b.run(ctx)
}

func (b *Bootstrap) run(ctx context.Context) (map[string]string, error) {
	b.logger.Info("Initialize...", nil)
	if err := b.initialize(); err != nil {
		return nil, err
	}

	b.logger.Info("Run some checks...", nil)
	if err := b.check(); err != nil {
		return nil, err
	}

	args, err := b.args()
	if err != nil {
		return nil, err
	}

	if isDir(b.paths.Candidate) {
		b.logger.Info("A previous deployment failed. Save residual candidate...", nil)
		residual := filepath.Join(b.paths.Deploy, "residual_candidate_"+b.date)
		if err := rename(b.paths.Candidate, residual); err != nil {
			return nil, err
		}
	}

	b.logger.Info("Unzip the uploaded file to candidate directory...", nil)
	if err := os.Mkdir(b.paths.Candidate, 0o755); err != nil {
		return nil, deployerr.IO(fmt.Sprintf("Could not create %s", b.paths.Candidate), err)
	}
	if err := archive.Extract(b.paths.Zip, b.paths.Candidate); err != nil {
		return nil, deployerr.IO("Could not unzip the uploaded file", err)
	}

	b.logger.Info("Remove the zip file...", nil)
	if err := os.Remove(b.paths.Zip); err != nil {
		return nil, deployerr.IO(fmt.Sprintf("Could not remove %s", b.paths.Zip), err)
	}

	b.logger.Info("Put the candidate live...", nil)
	if err := b.promote(); err != nil {
		return nil, err
	}

	b.logger.Info("Clean up...", nil)
	b.cleanUp()

	b.logger.Info("Install...", nil)
	installer, err := b.loader.Load(b.paths.Live)
	if err != nil {
		return nil, err
	}
	result, err := hook.Run(ctx, installer, b.logger, args, b.paths.InstalledTo)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Done.", nil)
	return result, nil
}

func (b *Bootstrap) initialize() error {
	b.date = b.now().Format(DateFormat)
	p := &b.paths
	p.Script = filepath.Join(p.PublicDeploy, b.cfg.ScriptName)
	p.Config = filepath.Join(p.PublicDeploy, config.BootstrapConfigName)
	p.Zip = filepath.Join(p.PublicDeploy, config.DefaultArchiveName)

	if b.configFile != "" {
		loaded, err := config.LoadBootstrapConfig(b.configFile)
		if err != nil {
			return deployerr.Configuration(fmt.Sprintf("Could not load %s: %v", b.configFile, err))
		}
		b.cfg = loaded
		p.Script = filepath.Join(p.PublicDeploy, b.cfg.ScriptName)
	}
	if b.loader == nil {
		b.loader = hook.ExecLoader{EntryPoint: b.cfg.EntryPoint}
	}

	idx := strings.Index(p.PublicDeploy, b.cfg.PublicPath)
	if idx < 0 {
		return deployerr.Configuration(fmt.Sprintf("Did not find the public path (%s) in %s", b.cfg.PublicPath, p.PublicDeploy))
	}
	p.Base = p.PublicDeploy[:idx]
	p.Deploy = strings.TrimRight(p.Base+b.cfg.DeployPath, string(os.PathSeparator))
	p.InstalledTo = p.Base + b.cfg.PublicPath
	p.Candidate = filepath.Join(p.Deploy, candidateDir)
	p.Live = filepath.Join(p.Deploy, liveDir)
	p.Previous = filepath.Join(p.Deploy, previousDir)
	p.Lock = filepath.Join(p.Deploy, LockName)
	return nil
}

func (b *Bootstrap) check() error {
	if !isDir(b.paths.Deploy) {
		return deployerr.Configuration(fmt.Sprintf("Deploy path (%s) does not exist", b.paths.Deploy))
	}
	b.deployOK = true
	if w := b.openLog(b.paths.Deploy); w != nil {
		b.errLog = newErrorLogger(w)
		if c, ok := w.(io.Closer); ok {
			b.logFile = c
		}
	}

	if len(b.cfg.TokenHash) > 0 {
		if b.token == "" || crypto.CompareToken(b.cfg.TokenHash, b.token) != nil {
			b.rejected = true
			return deployerr.Configuration("invalid deploy token")
		}
	}
	lock, err := acquireLock(b.paths.Lock)
	if err != nil {
		if errors.Is(err, deployerr.ErrConcurrentRun) {
			b.rejected = true
		}
		return err
	}
	b.lock = lock
	return nil
}

// args merges the plain args with the sealed ones; sealed values win.
func (b *Bootstrap) args() (map[string]string, error) {
	args := make(map[string]string, len(b.cfg.Args))
	for k, v := range b.cfg.Args {
		args[k] = v
	}
	if len(b.cfg.SealedArgs) == 0 {
		return args, nil
	}
	plain, err := crypto.Open(b.token, b.cfg.SealedArgs)
	if err != nil {
		return nil, deployerr.Configuration("could not open sealed args")
	}
	var sealed map[string]string
	if err := json.Unmarshal(plain, &sealed); err != nil {
		return nil, deployerr.Configuration("could not decode sealed args")
	}
	for k, v := range sealed {
		args[k] = v
	}
	return args, nil
}

// promote drops previous, demotes live and renames candidate to live.
func (b *Bootstrap) promote() error {
	p := b.paths
	if exists(p.Previous) {
		if err := b.remove(p.Previous); err != nil {
			return deployerr.IO(fmt.Sprintf("Could not remove %s", p.Previous), err)
		}
	}
	if exists(p.Live) {
		if err := rename(p.Live, p.Previous); err != nil {
			return err
		}
	}
	return rename(p.Candidate, p.Live)
}

// cleanUp removes the uploaded bootstrap files and the then empty public
// deploy directory.
func (b *Bootstrap) cleanUp() {
	b.removeUploads()
	if err := os.Remove(b.paths.PublicDeploy); err != nil {
		b.errLog.Debug("public deploy directory kept", "path", b.paths.PublicDeploy, "error", err)
	}
}

func (b *Bootstrap) removeUploads() {
	for _, path := range []string{b.paths.Script, b.paths.Config} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.errLog.Error("could not remove upload", "path", path, "error", err)
		}
	}
}

// handleFailure keeps the inputs of a failed run for inspection. Every step
// is independent and best effort.
func (b *Bootstrap) handleFailure() {
	b.logger.Info("Clean up...", nil)
	if b.date == "" {
		b.date = b.now().Format(DateFormat)
	}
	p := b.paths
	if p.PublicDeploy != "" && isFile(p.Zip) {
		invalid := filepath.Join(p.PublicDeploy, "invalid_deploy_"+b.date+".zip")
		if err := os.Rename(p.Zip, invalid); err != nil {
			b.errLog.Error("could not keep invalid archive", "error", err)
		}
	}
	if p.Script != "" {
		b.removeUploads()
	}
	if b.deployOK && isDir(p.Candidate) {
		invalid := filepath.Join(p.Deploy, "invalid_candidate_"+b.date)
		if err := os.Rename(p.Candidate, invalid); err != nil {
			b.errLog.Error("could not keep invalid candidate", "error", err)
		}
	}
}

func rename(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return deployerr.IO(fmt.Sprintf("Could not rename %s to %s", from, to), err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
