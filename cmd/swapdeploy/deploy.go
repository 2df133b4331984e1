package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/splax/swapdeploy/internal/cli"
	"github.com/splax/swapdeploy/internal/orchestrator"
	"github.com/splax/swapdeploy/internal/remotefs"
	"github.com/splax/swapdeploy/pkg/api/client"
	"github.com/splax/swapdeploy/pkg/notify"
)

var deployFlags struct {
	target      string
	environment string
	username    string
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build and deploy to a target environment",
	Long: `Build the configured source, upload it to the target's public path and
run the bootstrap. The SFTP password is read from the PASSWORD environment
variable.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployFlags.target, "target", "", "target name from the config file")
	deployCmd.Flags().StringVar(&deployFlags.environment, "environment", "", "environment of the target")
	deployCmd.Flags().StringVar(&deployFlags.username, "username", "", "SFTP username")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	binding, err := cli.Bind(cli.Values{
		Target:      deployFlags.target,
		Environment: deployFlags.environment,
		Username:    deployFlags.username,
		Password:    password(),
	})
	if err != nil {
		return err
	}
	target, err := cfg.ResolveTarget(binding.Target, binding.Environment)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Connecting...", "host", target.Host, "port", target.Port)
	remote, err := remotefs.DialSFTP(ctx, remotefs.SFTPConfig{
		Host:                  target.Host,
		Port:                  target.Port,
		Username:              binding.Username,
		Password:              binding.Password,
		KnownHosts:            target.KnownHosts,
		InsecureIgnoreHostKey: target.InsecureIgnoreHostKey,
		Timeout:               cfg.Invoke.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	defer remote.Close()

	deployer, err := orchestrator.New(orchestrator.Options{
		Config: *cfg,
		Target: orchestrator.Target{
			Name:              target.Name,
			Environment:       target.Environment,
			RemotePublicPath:  target.PublicPath,
			RemotePublicURL:   target.PublicURL,
			RemotePrivatePath: target.PrivatePath,
		},
		FS: remote,
		Client: client.New(
			client.WithTimeouts(cfg.Invoke.ConnectTimeout, cfg.Invoke.Timeout),
			client.WithMaxAttempts(cfg.Invoke.MaxAttempts),
			client.WithRetryInterval(cfg.Invoke.RetryInterval),
		),
		Logger:      log,
		Args:        binding.Args(),
		AfterDeploy: afterDeploy(target.Name, target.Environment),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := deployer.Cleanup(); err != nil {
			log.Warn("cleanup failed", "error", err)
		}
	}()
	return deployer.BuildAndDeploy(ctx)
}

// password reads PASSWORD, prompting only when attached to a terminal.
func password() string {
	if pw := os.Getenv(cli.PasswordEnv); pw != "" {
		return pw
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ""
	}
	fmt.Fprint(os.Stderr, "Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return ""
	}
	return string(bytes)
}

// afterDeploy posts the result to the configured webhook. Notification
// failures are logged and do not fail the deployment.
func afterDeploy(targetName, environment string) orchestrator.AfterDeployFunc {
	if cfg.Notify.URL == "" {
		return nil
	}
	emitter, err := notify.NewEmitter(cfg.Notify.URL, cfg.Notify.Token, &http.Client{Timeout: cfg.Notify.Timeout})
	if err != nil {
		log.Warn("deploy notifications disabled", "error", err)
		return nil
	}
	return func(ctx context.Context, result map[string]string) error {
		err := emitter.Emit(ctx, notify.Event{
			Target:      targetName,
			Environment: environment,
			Result:      result,
		})
		if err != nil {
			log.Warn("deploy notification failed", "error", err)
		}
		return nil
	}
}
