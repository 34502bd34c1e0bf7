package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dl-alexandre/odshare/internal/config"
	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/metrics"
	"github.com/dl-alexandre/odshare/internal/mirror"
	"github.com/dl-alexandre/odshare/internal/mirror/index"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
	"github.com/spf13/cobra"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror [share-id...]",
	Short: "Download shared folders into the local mirror",
	Long: `Discover each share's folder tree and download every file below
<output-dir>/<share-id>, skipping files already present with the remote size.

Share IDs given as arguments replace the shares listed in the config file.`,
	Example: `  odshare mirror 's!AbCdEf123'
  odshare mirror --concurrency 8 --exclude '*.tmp' --exclude 'Archive/'
  odshare mirror --dry-run --json`,
	RunE: runMirror,
}

var (
	mirrorConcurrency          int
	mirrorDiscoveryConcurrency int
	mirrorOutputDir            string
	mirrorExclude              []string
	mirrorVerifyHashes         bool
	mirrorMetricsFile          string
	mirrorNoLedger             bool
)

func init() {
	mirrorCmd.Flags().IntVar(&mirrorConcurrency, "concurrency", utils.DefaultConcurrency, "Parallel downloads")
	mirrorCmd.Flags().IntVar(&mirrorDiscoveryConcurrency, "discovery-concurrency", utils.DefaultDiscoveryConcurrency, "Folder listings fetched at once")
	mirrorCmd.Flags().StringVar(&mirrorOutputDir, "output-dir", "", "Mirror root directory (default <cwd>/downloads)")
	mirrorCmd.Flags().StringSliceVar(&mirrorExclude, "exclude", nil, "Exclude pattern (repeatable or comma-separated)")
	mirrorCmd.Flags().BoolVar(&mirrorVerifyHashes, "verify-hashes", false, "Verify sha256/sha1 hashes of existing and downloaded files")
	mirrorCmd.Flags().StringVar(&mirrorMetricsFile, "metrics-file", "", "Write Prometheus textfile metrics after the run")
	mirrorCmd.Flags().BoolVar(&mirrorNoLedger, "no-ledger", false, "Do not record this run in the ledger")

	rootCmd.AddCommand(mirrorCmd)
}

// applyMirrorFlags overlays explicitly set flags on a copy of cfg
func applyMirrorFlags(cfg config.Config, cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Concurrency = mirrorConcurrency
	}
	if flags.Changed("discovery-concurrency") {
		cfg.DiscoveryConcurrency = mirrorDiscoveryConcurrency
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = mirrorOutputDir
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(append([]string{}, cfg.Exclude...), mirrorExclude...)
	}
	if flags.Changed("verify-hashes") {
		cfg.VerifyHashes = mirrorVerifyHashes
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = mirrorMetricsFile
	}
	if flags.Changed("no-ledger") && mirrorNoLedger {
		cfg.Ledger = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveShares picks the share list: arguments win over the config file
func resolveShares(args, configured []string) []string {
	source := configured
	if len(args) > 0 {
		source = args
	}
	seen := make(map[string]bool, len(source))
	var shares []string
	for _, s := range source {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		shares = append(shares, s)
	}
	return shares
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runMirror(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg, err := applyMirrorFlags(*appConfig, cmd)
	if err != nil {
		return out.WriteError("mirror", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	shares := resolveShares(args, cfg.Shares)
	if len(shares) == 0 {
		return out.WriteError("mirror", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"no shares to mirror: pass share IDs or list them under shares in the config file").Build())
	}

	outputDir, err := cfg.ResolveOutputDir()
	if err != nil {
		return out.WriteError("mirror", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}

	ctx, stop := signalContext()
	defer stop()

	recorder := metrics.NewRecorder()
	ledger := openLedger(cfg, flags.DryRun, out)
	defer ledger.Close()

	engine, err := mirror.NewEngine(newClient(cfg), mirror.Options{
		OutputDir:            outputDir,
		Concurrency:          cfg.Concurrency,
		DiscoveryConcurrency: cfg.DiscoveryConcurrency,
		VerifyHashes:         cfg.VerifyHashes,
		DryRun:               flags.DryRun,
		Exclude:              cfg.Exclude,
		Logger:               logger,
		Metrics:              recorder,
		Ledger:               ledger,
	})
	if err != nil {
		return out.WriteError("mirror", utils.CLIErrorFrom(err, utils.ErrCodeInvalidConfig))
	}

	out.Verbose("Mirroring %d share(s) into %s", len(shares), outputDir)
	report := engine.Run(ctx, shares)

	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("Could not write metrics file",
				logging.F("path", cfg.MetricsFile),
				logging.F("error", err.Error()),
			)
			out.AddWarning("METRICS_WRITE_FAILED", err.Error(), "warning")
		}
	}

	if ctx.Err() != nil {
		out.AddWarning(utils.ErrCodeCancelled, "run interrupted; queued downloads were not started", "warning")
	}

	if err := out.WriteSuccess("mirror", mirrorReport{report}); err != nil {
		return err
	}
	if flags.OutputFormat != types.OutputFormatJSON {
		for _, line := range failureLines(report) {
			out.Log("%s", line)
		}
	}

	if report.Failed() {
		return &ExitError{Code: utils.ExitBatchPartialFailure}
	}
	return nil
}

// openLedger opens the run ledger when enabled. Failing to open it only
// costs the history, so it is reported as a warning.
func openLedger(cfg *config.Config, dryRun bool, out *OutputWriter) *index.DB {
	if !cfg.Ledger || dryRun {
		return nil
	}
	path, err := config.GetLedgerPath()
	if err == nil {
		var db *index.DB
		db, err = index.Open(path)
		if err == nil {
			return db
		}
	}
	logger.Warn("Run ledger unavailable", logging.F("error", err.Error()))
	out.AddWarning("LEDGER_UNAVAILABLE", err.Error(), "warning")
	return nil
}
