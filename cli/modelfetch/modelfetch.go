package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modelfetch-dev/modelfetch/internal/cli"
)

var (
	configPath string
	verbose    bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(cli.ExitCode(err))
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modelfetch",
		Short: "Preset-driven model acquisition engine",
		Long: `modelfetch downloads, verifies and installs large model presets:
- CLI: install, validate, uninstall, list
- Daemon: serve exposes job control over HTTP with live progress
- Resumable, checksum-verified downloads with atomic installs`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Set up CLI pkg variables
	cli.ConfigPath = &configPath
	cli.Verbose = &verbose

	// Add subcommands
	cmd.AddCommand(
		cli.NewInstallCmd(),
		cli.NewUninstallCmd(),
		cli.NewValidateCmd(),
		cli.NewListCmd(),
		cli.NewStatusCmd(),
		cli.NewPauseCmd(),
		cli.NewResumeCmd(),
		cli.NewCancelCmd(),
		cli.NewServeCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
