package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/bagfetch/internal/cli"
)

var (
	configPath   string
	verbose      bool
	outputFormat string
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
		Use:   "bagfetch",
		Short: "Fetch the remote files referenced by a bag",
		Long: `bagfetch resolves the remote files of a BDBag-style manifest or a BagIt
fetch.txt over http(s), ftp(s) and file URLs:
- credentials from a keychain matched by URL prefix
- retries with backoff for transient failures
- size and digest verification of every file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "log format (text, json)")

	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.OutputFormat = &outputFormat

	cmd.AddCommand(
		cli.NewFetchCmd(),
		cli.NewKeychainCmd(),
		cli.NewCleanupCmd(),
		cli.NewConfigCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
