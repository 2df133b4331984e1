// Package orchestrator builds a release locally, uploads it next to the
// bootstrap binary and triggers the remote swap over HTTP.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/splax/swapdeploy/internal/archive"
	"github.com/splax/swapdeploy/internal/remotefs"
	"github.com/splax/swapdeploy/internal/workspace"
	"github.com/splax/swapdeploy/pkg/api/client"
	"github.com/splax/swapdeploy/pkg/config"
	"github.com/splax/swapdeploy/pkg/crypto"
	"github.com/splax/swapdeploy/pkg/deployerr"
)

// DirnameArg is the args key carrying the random public deploy directory.
const DirnameArg = "remote_public_random_deploy_dirname"

// Target locates one environment on the remote host. Paths are as seen by
// the remote filesystem; the URL is the public URL of RemotePublicPath.
type Target struct {
	Name              string
	Environment       string
	RemotePublicPath  string
	RemotePublicURL   string
	RemotePrivatePath string
}

// AfterDeployFunc runs after a successful deployment with its result.
type AfterDeployFunc func(ctx context.Context, result map[string]string) error

// Options wires a Deployer.
type Options struct {
	Config      config.OrchestratorConfig
	Target      Target
	FS          remotefs.FS
	Populate    Populator
	AfterDeploy AfterDeployFunc
	Client      *client.Client
	Logger      *slog.Logger
	// Random feeds path names; nil means crypto/rand.
	Random io.Reader
	// Args are passed to the install hook next to the random dirname.
	Args map[string]string
	// Token authenticates the bootstrap call; empty means a fresh one.
	Token string
}

// Deployer runs one build and deployment.
type Deployer struct {
	cfg         config.OrchestratorConfig
	target      Target
	fs          remotefs.FS
	populate    Populator
	afterDeploy AfterDeployFunc
	client      *client.Client
	logger      *slog.Logger
	random      io.Reader
	args        map[string]string
	token       string
	workspace   *workspace.Manager

	buildPath     string
	zipPath       string
	remoteDirname string
}

// New validates the options and prepares the local workspace.
func New(opts Options) (*Deployer, error) {
	if opts.FS == nil {
		return nil, errors.New("remote filesystem is required")
	}
	if opts.Target.RemotePublicPath == "" || opts.Target.RemotePublicURL == "" || opts.Target.RemotePrivatePath == "" {
		return nil, deployerr.Configuration("target needs a public path, a public url and a private path")
	}
	cfg := opts.Config
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	if cfg.DeployDirname == "" {
		cfg.DeployDirname = "deploy"
	}
	if cfg.ScriptName == "" {
		cfg.ScriptName = config.DefaultScriptName
	}
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = config.DefaultEntryPoint
	}
	ws, err := workspace.New(cfg.TmpDir, opts.Random)
	if err != nil {
		return nil, err
	}
	d := &Deployer{
		cfg:         cfg,
		target:      opts.Target,
		fs:          opts.FS,
		populate:    opts.Populate,
		afterDeploy: opts.AfterDeploy,
		client:      opts.Client,
		logger:      opts.Logger,
		random:      opts.Random,
		args:        opts.Args,
		token:       opts.Token,
		workspace:   ws,
	}
	if d.populate == nil {
		d.populate = defaultPopulator(cfg)
	}
	if d.client == nil {
		d.client = client.New(
			client.WithTimeouts(cfg.Invoke.ConnectTimeout, cfg.Invoke.Timeout),
			client.WithMaxAttempts(cfg.Invoke.MaxAttempts),
			client.WithRetryInterval(cfg.Invoke.RetryInterval),
		)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.random == nil {
		d.random = randReader()
	}
	if d.token == "" {
		d.token = crypto.NewToken()
	}
	return d, nil
}

// GetArgs returns the args handed to the install hook.
func (d *Deployer) GetArgs() map[string]string {
	args := make(map[string]string, len(d.args)+1)
	for k, v := range d.args {
		args[k] = v
	}
	args[DirnameArg] = d.remoteDirname
	return args
}

// InjectArgs restores state from args produced by GetArgs.
func (d *Deployer) InjectArgs(args map[string]string) {
	d.remoteDirname = args[DirnameArg]
}

// BuildAndDeploy builds, deploys and runs the after-deploy hook.
func (d *Deployer) BuildAndDeploy(ctx context.Context) error {
	if err := d.Build(ctx); err != nil {
		return err
	}
	result, err := d.Deploy(ctx)
	if err != nil {
		return err
	}
	if d.afterDeploy != nil {
		return d.afterDeploy(ctx, result)
	}
	return nil
}

// Build populates the local build folder and zips it.
func (d *Deployer) Build(ctx context.Context) error {
	d.logger.Info("Build...")
	buildPath, err := d.LocalBuildFolderPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(buildPath, 0o755); err != nil {
		return deployerr.IO("Could not create the build folder", err)
	}
	d.logger.Info("Populate build folder...")
	if err := d.populate.Populate(ctx, buildPath); err != nil {
		return fmt.Errorf("populate build folder: %w", err)
	}
	d.logger.Info("Zip build folder...")
	if err := d.zipFolder(); err != nil {
		return err
	}
	d.logger.Info("Build done.")
	return nil
}

func (d *Deployer) zipFolder() error {
	buildPath, err := d.LocalBuildFolderPath()
	if err != nil {
		return err
	}
	zipPath, err := d.LocalZipPath()
	if err != nil {
		return err
	}
	d.logger.Info("Zipping build folder...")
	if _, err := archive.ZipDir(buildPath, zipPath); err != nil {
		return deployerr.IO("Could not create ZIP file", err)
	}
	d.logger.Info("Zipping done.")
	return nil
}

// Deploy uploads the archive and the bootstrap, invokes it and returns the
// install hook's result.
func (d *Deployer) Deploy(ctx context.Context) (map[string]string, error) {
	d.logger.Info("Deploy...")
	zipPath, err := d.LocalZipPath()
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(zipPath)
	if err != nil {
		return nil, deployerr.IO("Could not read the ZIP file", err)
	}
	d.logger.Info(fmt.Sprintf("Upload (%s)...", humanSize(info.Size())))
	if err := d.upload(ctx, zipPath); err != nil {
		return nil, err
	}
	d.logger.Info("Upload done.")

	url, err := d.RemoteScriptURL(ctx)
	if err != nil {
		return nil, err
	}
	d.logger.Info(fmt.Sprintf("Running deploy script (%s)...", url))
	body, err := d.client.Invoke(ctx, url, d.token)
	if err != nil {
		return nil, err
	}
	resp, err := client.ParseResponse(body)
	d.replay(ctx, resp.Log)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	d.logger.Info(fmt.Sprintf("Deploy done with result: %s", encoded))
	return resp.Result, nil
}

func (d *Deployer) upload(ctx context.Context, zipPath string) error {
	dir, err := d.RemotePublicDeployPath(ctx)
	if err != nil {
		return err
	}
	if err := d.fs.CreateDirectory(ctx, dir); err != nil && !errors.Is(err, fs.ErrExist) {
		return deployerr.IO(fmt.Sprintf("Could not create %s", dir), err)
	}

	remoteZip, err := d.RemoteZipPath(ctx)
	if err != nil {
		return err
	}
	if err := d.uploadFile(ctx, zipPath, remoteZip); err != nil {
		return err
	}

	remoteScript, err := d.RemoteScriptPath(ctx)
	if err != nil {
		return err
	}
	if err := d.uploadFile(ctx, d.cfg.BootstrapBinary, remoteScript); err != nil {
		return err
	}
	if chmoder, ok := d.fs.(remotefs.Chmoder); ok {
		if err := chmoder.Chmod(ctx, remoteScript, 0o755); err != nil {
			return deployerr.IO(fmt.Sprintf("Could not make %s executable", remoteScript), err)
		}
	}

	rendered, err := d.renderConfig()
	if err != nil {
		return err
	}
	remoteConfig, err := d.RemoteConfigPath(ctx)
	if err != nil {
		return err
	}
	if err := d.fs.Write(ctx, remoteConfig, rendered); err != nil {
		return deployerr.IO(fmt.Sprintf("Could not upload %s", remoteConfig), err)
	}
	return nil
}

func (d *Deployer) uploadFile(ctx context.Context, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return deployerr.IO(fmt.Sprintf("Could not open %s", local), err)
	}
	defer f.Close()
	if err := d.fs.WriteStream(ctx, remote, f); err != nil {
		return deployerr.IO(fmt.Sprintf("Could not upload %s", remote), err)
	}
	return nil
}

// renderConfig produces the deploy.json the bootstrap reads. Args travel
// sealed with the run token; only its hash is uploaded.
func (d *Deployer) renderConfig() ([]byte, error) {
	args, err := json.Marshal(d.GetArgs())
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	sealed, err := crypto.Seal(d.token, args)
	if err != nil {
		return nil, fmt.Errorf("seal args: %w", err)
	}
	hash, err := crypto.HashToken(d.token)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}
	cfg := config.BootstrapConfig{
		DeployPath: d.RemoteDeployPath(),
		PublicPath: d.target.RemotePublicPath,
		SealedArgs: sealed,
		TokenHash:  hash,
		EntryPoint: d.cfg.EntryPoint,
		ScriptName: d.cfg.ScriptName,
	}
	return cfg.Marshal()
}

// Cleanup removes the local build folder and archive.
func (d *Deployer) Cleanup() error {
	return errors.Join(d.workspace.Cleanup(d.buildPath), d.workspace.Cleanup(d.zipPath))
}

// defaultPopulator clones build_repository when set and copies build_source
// otherwise.
func defaultPopulator(cfg config.OrchestratorConfig) Populator {
	if cfg.BuildRepository != "" {
		return GitPopulator{URL: cfg.BuildRepository, Ref: cfg.BuildRef}
	}
	return DirPopulator{Source: cfg.BuildSource}
}

func humanSize(size int64) string {
	if size <= 0 {
		return "? bytes"
	}
	return humanize.IBytes(uint64(size))
}
