// Package mirror ties discovery, planning and downloads together for a list
// of shares.
package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/metrics"
	"github.com/dl-alexandre/odshare/internal/mirror/exclude"
	"github.com/dl-alexandre/odshare/internal/mirror/executor"
	"github.com/dl-alexandre/odshare/internal/mirror/index"
	"github.com/dl-alexandre/odshare/internal/mirror/plan"
	"github.com/dl-alexandre/odshare/internal/mirror/scanner"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
)

// Client is the remote surface the engine needs. *api.Client implements it.
type Client interface {
	scanner.Fetcher
	executor.ContentOpener
}

type Options struct {
	OutputDir            string
	Concurrency          int
	DiscoveryConcurrency int
	VerifyHashes         bool
	DryRun               bool
	Exclude              []string
	Logger               logging.Logger
	Metrics              *metrics.Recorder
	// Ledger records runs when set; it is never read to decide what to download
	Ledger *index.DB
}

type Engine struct {
	scanner  *scanner.TreeScanner
	executor *executor.Executor
	matcher  *exclude.Matcher
	opts     Options
	logger   logging.Logger
}

// Plan is the discovered tree of one share flattened into download tasks
type Plan struct {
	ShareID string              `json:"shareId"`
	Dir     string              `json:"dir"`
	Tree    *types.Node         `json:"-"`
	Tasks   []plan.DownloadTask `json:"tasks"`
	Files   int                 `json:"files"`
	Bytes   int64               `json:"bytes"`
}

// ShareResult is the outcome of mirroring one share
type ShareResult struct {
	ShareID  string           `json:"shareId"`
	Dir      string           `json:"dir"`
	Files    int              `json:"files"`
	Bytes    int64            `json:"bytes"`
	Summary  executor.Summary `json:"summary"`
	Error    *types.CLIError  `json:"error,omitempty"`
	Duration time.Duration    `json:"durationNs"`
}

// Failed reports whether discovery failed or any task failed
func (r ShareResult) Failed() bool {
	return r.Error != nil || r.Summary.Failed > 0
}

// Report aggregates a run over several shares
type Report struct {
	RunID        string        `json:"runId"`
	DryRun       bool          `json:"dryRun"`
	Shares       []ShareResult `json:"shares"`
	Downloaded   int           `json:"downloaded"`
	Skipped      int           `json:"skipped"`
	TasksFailed  int           `json:"failed"`
	Planned      int           `json:"planned"`
	Bytes        int64         `json:"bytes"`
	SharesFailed int           `json:"sharesFailed"`
	Duration     time.Duration `json:"durationNs"`
}

// Failed reports whether any share or task failed
func (r Report) Failed() bool {
	return r.SharesFailed > 0 || r.TasksFailed > 0
}

func NewEngine(client Client, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = utils.DefaultOutputDirName
	}
	matcher, err := exclude.New(opts.Exclude)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
	}

	return &Engine{
		scanner: scanner.NewTreeScanner(client, scanner.Options{
			Concurrency: opts.DiscoveryConcurrency,
			Logger:      opts.Logger,
			Metrics:     opts.Metrics,
		}),
		executor: executor.New(client, executor.Options{
			Concurrency:  opts.Concurrency,
			VerifyHashes: opts.VerifyHashes,
			DryRun:       opts.DryRun,
			Logger:       opts.Logger,
			Metrics:      opts.Metrics,
		}),
		matcher: matcher,
		opts:    opts,
		logger:  opts.Logger,
	}, nil
}

// Plan discovers shareID and flattens it below the share's output directory
func (e *Engine) Plan(ctx context.Context, shareID string) (Plan, error) {
	dir := plan.ShareDir(e.opts.OutputDir, shareID)
	root, err := e.scanner.BuildTree(ctx, shareID)
	if err != nil {
		return Plan{}, err
	}

	tasks := plan.Flatten(shareID, root, dir, e.matcher)
	stats := plan.Stats(tasks)
	return Plan{
		ShareID: shareID,
		Dir:     dir,
		Tree:    root,
		Tasks:   tasks,
		Files:   stats.Files,
		Bytes:   stats.Bytes,
	}, nil
}

// MirrorShare plans shareID and downloads every task. A discovery failure is
// returned in the result; no task runs in that case.
func (e *Engine) MirrorShare(ctx context.Context, shareID string) ShareResult {
	start := time.Now()
	result := ShareResult{
		ShareID: shareID,
		Dir:     plan.ShareDir(e.opts.OutputDir, shareID),
	}

	e.logger.Info("Mirroring share",
		logging.F("shareId", shareID),
		logging.F("dir", result.Dir),
	)

	p, err := e.Plan(ctx, shareID)
	if err != nil {
		cliErr := utils.CLIErrorFrom(err, utils.ErrCodeDiscoveryFailed)
		result.Error = &cliErr
		result.Duration = time.Since(start)
		e.logger.Error("Share discovery failed",
			logging.F("shareId", shareID),
			logging.F("code", cliErr.Code),
			logging.F("error", cliErr.Message),
		)
		return result
	}

	result.Files = p.Files
	result.Bytes = p.Bytes
	e.logger.Info("Share discovered",
		logging.F("shareId", shareID),
		logging.F("files", p.Files),
		logging.F("size", humanize.IBytes(uint64(p.Bytes))),
	)

	result.Summary = e.executor.RunAll(ctx, p.Tasks)
	result.Duration = time.Since(start)

	e.logger.Info("Share complete",
		logging.F("shareId", shareID),
		logging.F("downloaded", result.Summary.Downloaded),
		logging.F("skipped", result.Summary.Skipped),
		logging.F("failed", result.Summary.Failed),
		logging.F("duration_ms", result.Duration.Milliseconds()),
	)
	return result
}

// Run mirrors each share in turn. A failing share is reported and the next
// one still runs. When a ledger is configured the run and every share's
// results are recorded under a new run ID.
func (e *Engine) Run(ctx context.Context, shareIDs []string) Report {
	start := time.Now()
	report := Report{
		RunID:  uuid.New().String(),
		DryRun: e.opts.DryRun,
		Shares: make([]ShareResult, 0, len(shareIDs)),
	}
	ledger := e.ledger()
	logger := e.logger.WithTraceID(report.RunID)

	if ledger != nil {
		if err := ledger.BeginRun(ctx, report.RunID, shareIDs, start); err != nil {
			logger.Warn("Could not record run start", logging.F("error", err.Error()))
			ledger = nil
		}
	}

	for _, shareID := range shareIDs {
		result := e.MirrorShare(ctx, shareID)
		report.Shares = append(report.Shares, result)

		report.Downloaded += result.Summary.Downloaded
		report.Skipped += result.Summary.Skipped
		report.TasksFailed += result.Summary.Failed
		report.Planned += result.Summary.Planned
		report.Bytes += result.Summary.Bytes
		if result.Error != nil {
			report.SharesFailed++
		}

		if ledger != nil {
			if err := recordShare(context.WithoutCancel(ctx), ledger, report.RunID, result); err != nil {
				logger.Warn("Could not record share results",
					logging.F("shareId", shareID),
					logging.F("error", err.Error()),
				)
			}
		}
	}
	report.Duration = time.Since(start)

	if ledger != nil {
		status := runStatus(ctx, report)
		if err := ledger.FinishRun(context.WithoutCancel(ctx), report.RunID, status, time.Now()); err != nil {
			logger.Warn("Could not record run end", logging.F("error", err.Error()))
		}
	}

	logger.Info("Run complete",
		logging.F("shares", len(shareIDs)),
		logging.F("downloaded", report.Downloaded),
		logging.F("skipped", report.Skipped),
		logging.F("failed", report.TasksFailed),
		logging.F("sharesFailed", report.SharesFailed),
		logging.F("size", humanize.IBytes(uint64(report.Bytes))),
	)
	return report
}

// ledger returns the ledger to record into; dry runs record nothing
func (e *Engine) ledger() *index.DB {
	if e.opts.DryRun {
		return nil
	}
	return e.opts.Ledger
}

func runStatus(ctx context.Context, report Report) string {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return index.RunStatusCancelled
	case report.Failed():
		return index.RunStatusPartial
	default:
		return index.RunStatusSucceeded
	}
}

func recordShare(ctx context.Context, ledger *index.DB, runID string, result ShareResult) error {
	now := time.Now()
	share := index.ShareRecord{
		RunID:      runID,
		ShareID:    result.ShareID,
		Status:     index.ShareStatusMirrored,
		Files:      result.Files,
		Bytes:      result.Bytes,
		FinishedAt: now,
	}
	if result.Error != nil {
		share.Status = index.ShareStatusFailed
		share.ErrorCode = result.Error.Code
		share.ErrorMessage = result.Error.Message
	}
	if err := ledger.RecordShare(ctx, share); err != nil {
		return err
	}

	records := make([]index.TaskRecord, 0, len(result.Summary.Results))
	for _, r := range result.Summary.Results {
		rec := index.TaskRecord{
			RunID:      runID,
			ShareID:    r.ShareID,
			ItemID:     r.ItemID,
			RelPath:    r.RelPath,
			TargetPath: r.Path,
			Size:       r.Size,
			Outcome:    string(r.Outcome),
			Bytes:      r.Bytes,
			FinishedAt: now,
		}
		if r.Error != nil {
			rec.ErrorCode = r.Error.Code
			rec.ErrorMessage = r.Error.Message
		}
		records = append(records, rec)
	}
	return ledger.RecordResults(ctx, records)
}
