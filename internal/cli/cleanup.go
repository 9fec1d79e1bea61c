package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/bagfetch/internal/logger"
	"github.com/glorpus-work/bagfetch/pkg/cleanup"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	var (
		dest      string
		dryRun    bool
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove part files left by interrupted fetches",
		Long: `Remove the temporary part files an interrupted fetch leaves next to its
targets. Use --older-than to spare files a running fetch may still be
writing and --dry-run to only list them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, dest, cleanup.Options{OlderThan: olderThan, DryRun: dryRun})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "Destination directory (defaults to dest_dir from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be removed without removing anything")
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Only remove part files not modified for this long")

	return cmd
}

func runCleanup(cmd *cobra.Command, dest string, options cleanup.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dest == "" {
		dest = cfg.Settings.DestDir
	}
	if dest == "" {
		return withCode(ExitInvalid, fmt.Errorf("no destination: pass --dest or set dest_dir"))
	}

	result, err := cleanup.NewManager(dest).Clean(options)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	verb := "Removed"
	if options.DryRun {
		verb = "Would remove"
	}
	for _, f := range result.Files {
		_, _ = fmt.Fprintf(out, "%s %s\n", verb, f)
	}
	logger.Success(fmt.Sprintf("%s %d part files", verb, len(result.Files)),
		logger.Fields{"dest": dest, "freed": humanize.IBytes(uint64(result.Freed))})
	return nil
}
