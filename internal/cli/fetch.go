package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/bagfetch/internal/logger"
	"github.com/glorpus-work/bagfetch/pkg/archive"
	"github.com/glorpus-work/bagfetch/pkg/config"
	"github.com/glorpus-work/bagfetch/pkg/download"
	"github.com/glorpus-work/bagfetch/pkg/events"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
	"github.com/glorpus-work/bagfetch/pkg/manifest"
	"github.com/glorpus-work/bagfetch/pkg/metrics"
)

type fetchFlags struct {
	manifestPath string
	bagPath      string
	dest         string
	parallel     int
	retries      int
	keychainPath string
	skipExisting bool
	metricsFile  string
	extract      bool
}

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var flags fetchFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the remote files of a manifest or bag",
		Long: `Fetch every entry of a remote-file manifest or of a bag's fetch.txt into
the destination directory. Entries are verified against their declared size
and digest; failed entries are reported and the exit status is 3.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd.Context(), cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.manifestPath, "manifest", "", "Remote-file manifest (JSON or YAML)")
	cmd.Flags().StringVar(&flags.bagPath, "bag", "", "Bag directory or archive whose fetch.txt to resolve")
	cmd.Flags().StringVar(&flags.dest, "dest", "", "Destination directory (defaults to dest_dir from config)")
	cmd.Flags().IntVar(&flags.parallel, "parallel", 0, "Number of parallel fetches (0=config)")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "Attempts per entry (0=config)")
	cmd.Flags().StringVar(&flags.keychainPath, "keychain", "", "Keychain file (defaults to $BDBAG_KEYCHAIN_FILE or ~/.bdbag/keychain.json)")
	cmd.Flags().BoolVar(&flags.skipExisting, "skip-existing", false, "Skip entries whose output file already verifies")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")
	cmd.Flags().BoolVar(&flags.extract, "extract", false, "Extract a bag archive into the destination before fetching")
	cmd.MarkFlagsMutuallyExclusive("manifest", "bag")
	cmd.MarkFlagsOneRequired("manifest", "bag")

	return cmd
}

func runFetch(ctx context.Context, cmd *cobra.Command, flags fetchFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFetchFlags(cmd, cfg, flags)
	if err := cfg.Validate(); err != nil {
		return withCode(ExitInvalid, fmt.Errorf("invalid configuration: %w", err))
	}
	if cfg.Settings.DestDir == "" {
		return withCode(ExitInvalid, fmt.Errorf("no destination: pass --dest or set dest_dir"))
	}

	dest := cfg.Settings.DestDir
	entries, err := loadEntries(ctx, flags, &dest)
	if err != nil {
		return err
	}

	kcPath, required, err := keychainSource(cfg, flags.keychainPath)
	if err != nil {
		return withCode(ExitInvalid, fmt.Errorf("failed to resolve keychain path: %w", err))
	}
	kc, err := loadKeychain(kcPath, required)
	if err != nil {
		return withCode(ExitInvalid, err)
	}
	logger.Debug("Loaded keychain", logger.Fields{"path": kcPath, "entries": kc.Len()})

	var recorder metrics.Recorder = metrics.Noop{}
	if flags.metricsFile != "" {
		recorder = metrics.NewProm(MetricsNamespace)
	}

	fetcher, err := download.NewFetcher(download.Options{
		Dest:         dest,
		Workers:      cfg.Settings.Parallel,
		Retry:        cfg.ToRetryPolicy(),
		Transport:    cfg.ToTransportConfig(),
		SkipExisting: cfg.Settings.SkipExisting,
		Sink:         events.Multi(logger.EventSink(), recorder),
		ReloadKeychain: func() (*keychain.Keychain, error) {
			return loadKeychain(kcPath, required)
		},
	}, nil, kc)
	if err != nil {
		return withCode(ExitInvalid, err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("Failed to release transports", logger.Fields{"error": err})
		}
	}()

	logger.Info("Fetching", logger.Fields{"entries": len(entries), "dest": fetcher.Dest(), "parallel": cfg.Settings.Parallel})
	batch := fetcher.FetchAll(ctx, entries)

	if flags.metricsFile != "" {
		if err := recorder.WriteTextfile(flags.metricsFile); err != nil {
			logger.Warn("Failed to write metrics", logger.Fields{"path": flags.metricsFile, "error": err})
		}
	}

	return summarize(ctx, batch)
}

// applyFetchFlags lets explicitly set flags override the config file.
func applyFetchFlags(cmd *cobra.Command, cfg *config.Config, flags fetchFlags) {
	changed := cmd.Flags().Changed
	if flags.dest != "" {
		cfg.Settings.DestDir = flags.dest
	}
	if changed("parallel") {
		cfg.Settings.Parallel = flags.parallel
	}
	if changed("retries") {
		cfg.Settings.Retries = flags.retries
	}
	if changed("skip-existing") {
		cfg.Settings.SkipExisting = flags.skipExisting
	}
}

// loadEntries reads the manifest or bag. With --extract, the bag archive is
// unpacked into dest and dest is moved to the bag root.
func loadEntries(ctx context.Context, flags fetchFlags, dest *string) ([]manifest.Entry, error) {
	if flags.manifestPath != "" {
		entries, err := manifest.Load(flags.manifestPath)
		if err != nil {
			return nil, withCode(ExitInvalid, err)
		}
		return entries, nil
	}

	bag, err := manifest.LoadBag(ctx, flags.bagPath)
	if err != nil {
		return nil, withCode(ExitInvalid, err)
	}
	if flags.extract {
		isArchive, err := archive.IsArchive(flags.bagPath)
		if err != nil {
			return nil, withCode(ExitInvalid, err)
		}
		if isArchive {
			if err := archive.NewManager().ExtractAll(ctx, flags.bagPath, *dest); err != nil {
				return nil, withCode(ExitFailure, fmt.Errorf("failed to extract bag: %w", err))
			}
			*dest = filepath.Join(*dest, filepath.FromSlash(bag.Root))
			logger.Info("Extracted bag", logger.Fields{"archive": flags.bagPath, "root": *dest})
		}
	}
	return bag.Entries, nil
}

func summarize(ctx context.Context, batch download.Batch) error {
	if batch.Rejected != nil {
		return withCode(ExitInvalid, batch.Rejected)
	}

	failed := batch.Failed()
	logger.Info("Fetch finished", logger.Fields{
		"succeeded": batch.Succeeded(),
		"skipped":   batch.Skipped(),
		"failed":    len(failed),
		"bytes":     humanize.IBytes(uint64(max(batch.Bytes(), 0))),
	})

	switch {
	case batch.Cancelled() || stderrors.Is(ctx.Err(), context.Canceled):
		return withCode(ExitCancelled, fmt.Errorf("fetch cancelled: %w", context.Canceled))
	case len(failed) > 0:
		return withCode(ExitPartial, fmt.Errorf("%d of %d entries failed: %w", len(failed), len(batch.Results), batch.Err()))
	}
	logger.Success("All entries fetched", logger.Fields{"entries": len(batch.Results)})
	return nil
}
