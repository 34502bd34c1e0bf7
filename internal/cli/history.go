package cli

import (
	"context"
	"errors"

	"github.com/dl-alexandre/odshare/internal/config"
	"github.com/dl-alexandre/odshare/internal/mirror/index"
	"github.com/dl-alexandre/odshare/internal/utils"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent mirror runs",
	RunE:  runHistory,
}

var failuresCmd = &cobra.Command{
	Use:   "failures [run-id]",
	Short: "List the failed shares and files of a run",
	Long:  "List the failed shares and files of a run. Defaults to the most recent run.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFailures,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(failuresCmd)
}

func openLedgerForRead() (*index.DB, error) {
	path, err := config.GetLedgerPath()
	if err != nil {
		return nil, err
	}
	return index.Open(path)
}

func runHistory(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	db, err := openLedgerForRead()
	if err != nil {
		return out.WriteError("history", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, historyLimit)
	if err != nil {
		return out.WriteError("history", utils.NewCLIError(utils.ErrCodeInternalError, err.Error()).Build())
	}
	if runs == nil {
		runs = []index.RunSummary{}
	}
	return out.WriteSuccess("history", historyView{Runs: runs})
}

func runFailures(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	db, err := openLedgerForRead()
	if err != nil {
		return out.WriteError("failures", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}
	defer db.Close()

	view, err := loadFailures(ctx, db, args)
	if err != nil {
		if errors.Is(err, index.ErrNoRuns) {
			return out.WriteError("failures", utils.NewCLIError(utils.ErrCodeFileNotFound, "no runs recorded yet").Build())
		}
		return out.WriteError("failures", utils.NewCLIError(utils.ErrCodeInternalError, err.Error()).Build())
	}
	return out.WriteSuccess("failures", view)
}

// loadFailures collects the failed shares and tasks of the run named in
// args, or of the latest run
func loadFailures(ctx context.Context, db *index.DB, args []string) (failuresView, error) {
	runID := ""
	if len(args) > 0 {
		runID = args[0]
	} else {
		latest, err := db.LatestRunID(ctx)
		if err != nil {
			return failuresView{}, err
		}
		runID = latest
	}

	view := failuresView{RunID: runID, Shares: []index.ShareRecord{}, Tasks: []index.TaskRecord{}}

	shares, err := db.ListShareResults(ctx, runID)
	if err != nil {
		return failuresView{}, err
	}
	for _, s := range shares {
		if s.Status == index.ShareStatusFailed {
			view.Shares = append(view.Shares, s)
		}
	}

	tasks, err := db.ListFailures(ctx, runID)
	if err != nil {
		return failuresView{}, err
	}
	view.Tasks = append(view.Tasks, tasks...)
	return view, nil
}
