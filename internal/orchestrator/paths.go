package orchestrator

import (
	"context"
	"crypto/rand"
	"io"
	"path"
	"strings"

	"github.com/splax/swapdeploy/internal/workspace"
	"github.com/splax/swapdeploy/pkg/config"
	"github.com/splax/swapdeploy/pkg/deployerr"
)

func randReader() io.Reader { return rand.Reader }

// LocalBuildFolderPath is a fresh directory under the tmp dir, chosen once.
func (d *Deployer) LocalBuildFolderPath() (string, error) {
	if d.buildPath != "" {
		return d.buildPath, nil
	}
	p, err := d.workspace.UnusedPath("")
	if err != nil {
		return "", err
	}
	d.buildPath = p
	return p, nil
}

// LocalZipPath is a fresh .zip path under the tmp dir, chosen once.
func (d *Deployer) LocalZipPath() (string, error) {
	if d.zipPath != "" {
		return d.zipPath, nil
	}
	p, err := d.workspace.UnusedPath(".zip")
	if err != nil {
		return "", err
	}
	d.zipPath = p
	return p, nil
}

// RemotePublicRandomDeployDirname picks, once, a random name not yet present
// in the remote public path.
func (d *Deployer) RemotePublicRandomDeployDirname(ctx context.Context) (string, error) {
	if d.remoteDirname != "" {
		return d.remoteDirname, nil
	}
	existing, err := d.fs.ListContents(ctx, d.target.RemotePublicPath)
	if err != nil {
		return "", deployerr.IO("Could not list "+d.target.RemotePublicPath, err)
	}
	name, err := workspace.UnusedName(d.random, existing)
	if err != nil {
		return "", err
	}
	d.remoteDirname = name
	return name, nil
}

// RemoteDeployPath is where the bootstrap keeps the generations.
func (d *Deployer) RemoteDeployPath() string {
	return path.Join(d.target.RemotePrivatePath, d.cfg.DeployDirname)
}

// RemotePublicDeployPath is the directory the uploads go to.
func (d *Deployer) RemotePublicDeployPath(ctx context.Context) (string, error) {
	name, err := d.RemotePublicRandomDeployDirname(ctx)
	if err != nil {
		return "", err
	}
	return path.Join(d.target.RemotePublicPath, name), nil
}

func (d *Deployer) remoteUpload(ctx context.Context, file string) (string, error) {
	dir, err := d.RemotePublicDeployPath(ctx)
	if err != nil {
		return "", err
	}
	return path.Join(dir, file), nil
}

func (d *Deployer) RemoteZipPath(ctx context.Context) (string, error) {
	return d.remoteUpload(ctx, config.DefaultArchiveName)
}

func (d *Deployer) RemoteScriptPath(ctx context.Context) (string, error) {
	return d.remoteUpload(ctx, d.cfg.ScriptName)
}

func (d *Deployer) RemoteConfigPath(ctx context.Context) (string, error) {
	return d.remoteUpload(ctx, config.BootstrapConfigName)
}

// RemoteScriptURL is the public URL of the uploaded bootstrap.
func (d *Deployer) RemoteScriptURL(ctx context.Context) (string, error) {
	name, err := d.RemotePublicRandomDeployDirname(ctx)
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(d.target.RemotePublicURL, "/")
	return base + "/" + name + "/" + d.cfg.ScriptName, nil
}
