// Command kvproxyd serves the tenant-scoped key-value API and runs backups
// and restores against the configured store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kng-mtd/kvproxy/config"
)

// version is set at link time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "kvproxyd",
		Short:         "Tenant-scoped key-value proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvName("config")), "path to a TOML config file")

	root.AddCommand(
		newServeCommand(&configPath, stderr),
		newBackupCommand(&configPath, stderr),
		newRestoreCommand(&configPath, stderr),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kvproxyd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kvproxyd %s\n", version)
		},
	}
}

// configured registers the config options on cmd and returns a loader that
// resolves defaults, file, environment and flags.
func configured(cmd *cobra.Command, configPath *string, server bool) func() (config.Config, error) {
	v := config.NewViper()
	def := config.Default()
	config.BindOptions(v, cmd, def.Opts())
	return func() (config.Config, error) {
		return loadConfig(v, cmd, *configPath, server)
	}
}

func loadConfig(v *viper.Viper, cmd *cobra.Command, path string, server bool) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Overlay(v, cmd, cfg.Opts()); err != nil {
		return config.Config{}, err
	}
	validate := cfg.Validate
	if server {
		validate = cfg.ValidateServer
	}
	if err := validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
