package cli

import (
	"github.com/dl-alexandre/odshare/internal/mirror"
	"github.com/dl-alexandre/odshare/internal/utils"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <share-id>",
	Short: "Show the files a mirror of a share would download",
	Long: `Discover the share's folder tree and print the flattened download plan
without touching the local mirror.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var (
	planOutputDir            string
	planExclude              []string
	planDiscoveryConcurrency int
)

func init() {
	planCmd.Flags().StringVar(&planOutputDir, "output-dir", "", "Mirror root directory (default <cwd>/downloads)")
	planCmd.Flags().StringSliceVar(&planExclude, "exclude", nil, "Exclude pattern (repeatable or comma-separated)")
	planCmd.Flags().IntVar(&planDiscoveryConcurrency, "discovery-concurrency", utils.DefaultDiscoveryConcurrency, "Folder listings fetched at once")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg := *appConfig
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = planOutputDir
	}
	if cmd.Flags().Changed("exclude") {
		cfg.Exclude = append(append([]string{}, cfg.Exclude...), planExclude...)
	}
	if cmd.Flags().Changed("discovery-concurrency") {
		cfg.DiscoveryConcurrency = planDiscoveryConcurrency
	}
	if err := cfg.Validate(); err != nil {
		return out.WriteError("plan", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	outputDir, err := cfg.ResolveOutputDir()
	if err != nil {
		return out.WriteError("plan", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}

	ctx, stop := signalContext()
	defer stop()

	engine, err := mirror.NewEngine(newClient(&cfg), mirror.Options{
		OutputDir:            outputDir,
		DiscoveryConcurrency: cfg.DiscoveryConcurrency,
		Exclude:              cfg.Exclude,
		DryRun:               true,
		Logger:               logger,
	})
	if err != nil {
		return out.WriteError("plan", utils.CLIErrorFrom(err, utils.ErrCodeInvalidConfig))
	}

	p, err := engine.Plan(ctx, args[0])
	if err != nil {
		return out.WriteError("plan", utils.CLIErrorFrom(err, utils.ErrCodeDiscoveryFailed))
	}

	out.Verbose("%d file(s) under %s", p.Files, p.Dir)
	return out.WriteSuccess("plan", planView{p})
}
