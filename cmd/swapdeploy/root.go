package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/splax/swapdeploy/pkg/config"
	"github.com/splax/swapdeploy/pkg/logger"
)

var (
	cfgFile  string
	logLevel string

	// cfg and log are populated by PersistentPreRunE.
	cfg *config.OrchestratorConfig
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "swapdeploy",
	Short: "Atomic deployments to shared hosting",
	Long: `swapdeploy builds a release, uploads it over SFTP together with a small
bootstrap binary and triggers the bootstrap over HTTP. The bootstrap swaps
the new release in with directory renames and keeps the previous one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		// --log-level flag takes precedence over value in config file.
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		log = logger.New("swapdeploy", logger.ParseLevel(cfg.LogLevel))
		slog.SetDefault(log)
		return nil
	}

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "swapdeploy %s\n", buildVersion)
	},
}
