package executor

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dl-alexandre/odshare/internal/api"
	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/metrics"
	"github.com/dl-alexandre/odshare/internal/mirror/plan"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
)

// ContentOpener streams a pre-authenticated download URL. *api.Client implements it.
type ContentOpener interface {
	OpenContent(ctx context.Context, reqCtx *types.RequestContext, downloadURL string) (io.ReadCloser, error)
}

// Outcome is the terminal state of a task
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
	OutcomePlanned    Outcome = "planned"
)

type Options struct {
	Concurrency  int
	VerifyHashes bool
	DryRun       bool
	Logger       logging.Logger
	Metrics      *metrics.Recorder
}

// TaskResult is the outcome of one download task
type TaskResult struct {
	ShareID  string          `json:"shareId"`
	ItemID   string          `json:"itemId"`
	RelPath  string          `json:"relPath"`
	Path     string          `json:"path"`
	Size     int64           `json:"size"`
	Outcome  Outcome         `json:"outcome"`
	Bytes    int64           `json:"bytes"`
	Error    *types.CLIError `json:"error,omitempty"`
	Duration time.Duration   `json:"durationNs"`
}

// Summary aggregates the results of RunAll. Results keep the task order.
type Summary struct {
	Results    []TaskResult  `json:"results"`
	Downloaded int           `json:"downloaded"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Planned    int           `json:"planned"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"durationNs"`
}

// FailedResults returns the failed task results
func (s Summary) FailedResults() []TaskResult {
	var failed []TaskResult
	for _, r := range s.Results {
		if r.Outcome == OutcomeFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Executor downloads planned files into the local mirror
type Executor struct {
	client ContentOpener
	opts   Options
	logger logging.Logger
}

func New(client ContentOpener, opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = utils.DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &Executor{client: client, opts: opts, logger: opts.Logger}
}

// RunAll runs every task with at most Concurrency downloads in flight. A
// failed task never stops the others. Tasks still queued when ctx is done
// are reported as failed.
func (e *Executor) RunAll(ctx context.Context, tasks []plan.DownloadTask) Summary {
	start := time.Now()
	results := make([]TaskResult, len(tasks))

	if len(tasks) > 0 {
		workers := min(e.opts.Concurrency, len(tasks))
		jobs := make(chan int)
		var wg sync.WaitGroup

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := range jobs {
					results[idx] = e.DownloadOne(ctx, tasks[idx])
				}
			}()
		}

		for idx := range tasks {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
	}

	summary := Summary{Results: results, Duration: time.Since(start)}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeDownloaded:
			summary.Downloaded++
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeFailed:
			summary.Failed++
		case OutcomePlanned:
			summary.Planned++
		}
		summary.Bytes += r.Bytes
	}
	return summary
}

// DownloadOne brings a single file up to date. An existing regular file with
// the remote size is kept. Otherwise the content is streamed to a temporary
// sibling and renamed over the target, so the target path never holds a
// partial download.
func (e *Executor) DownloadOne(ctx context.Context, task plan.DownloadTask) TaskResult {
	start := time.Now()
	target := task.Path()
	result := TaskResult{
		ShareID: task.ShareID,
		ItemID:  task.File.ID,
		RelPath: task.RelPath,
		Path:    target,
		Size:    task.File.Size,
	}
	logger := e.logger.WithContext(ctx)

	finish := func(outcome Outcome, bytes int64, err error) TaskResult {
		result.Outcome = outcome
		result.Bytes = bytes
		result.Duration = time.Since(start)
		if err != nil {
			cliErr := utils.CLIErrorFrom(err, utils.ErrCodeDownloadFailed)
			result.Error = &cliErr
			logger.Error("Download failed",
				logging.F("path", task.RelPath),
				logging.F("code", cliErr.Code),
				logging.F("error", cliErr.Message),
			)
		}
		e.opts.Metrics.RecordDownload(string(outcome), bytes)
		return result
	}

	if e.opts.DryRun {
		return finish(OutcomePlanned, 0, nil)
	}
	if err := ctx.Err(); err != nil {
		return finish(OutcomeFailed, 0, taskError(utils.ErrCodeCancelled, task, "not started", err))
	}

	if e.upToDate(logger, task, target) {
		logger.Debug("Skipping up-to-date file", logging.F("path", task.RelPath))
		return finish(OutcomeSkipped, 0, nil)
	}

	if err := os.MkdirAll(task.Dir, 0755); err != nil {
		return finish(OutcomeFailed, 0, taskError(utils.ErrCodeFilesystem, task, "create directory", err))
	}

	written, err := e.fetch(ctx, task, target)
	if err != nil {
		return finish(OutcomeFailed, 0, err)
	}

	logger.Info("Downloaded",
		logging.F("path", task.RelPath),
		logging.F("size", humanize.IBytes(uint64(written))),
	)
	return finish(OutcomeDownloaded, written, nil)
}

// upToDate reports whether target already holds the remote file. Only size
// is compared unless hash verification is on.
func (e *Executor) upToDate(logger logging.Logger, task plan.DownloadTask, target string) bool {
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if info.Size() != task.File.Size {
		logger.Warn("Size mismatch, re-downloading",
			logging.F("path", task.RelPath),
			logging.F("localSize", info.Size()),
			logging.F("remoteSize", task.File.Size),
		)
		return false
	}
	if !e.opts.VerifyHashes {
		return true
	}

	algo, want := expectedHash(task.File.Hashes)
	if algo == "" {
		return true
	}
	got, err := hashFile(target, algo)
	if err != nil {
		logger.Warn("Could not hash existing file, re-downloading",
			logging.F("path", task.RelPath),
			logging.F("error", err.Error()),
		)
		return false
	}
	if !strings.EqualFold(got, want) {
		logger.Warn("Hash mismatch, re-downloading",
			logging.F("path", task.RelPath),
			logging.F("algorithm", algo),
		)
		return false
	}
	return true
}

// fetch streams the file into a uniquely named hidden temp file next to
// target and renames it into place
func (e *Executor) fetch(ctx context.Context, task plan.DownloadTask, target string) (int64, error) {
	done := e.opts.Metrics.DownloadStarted()
	defer done()

	reqCtx := api.NewRequestContext(task.ShareID, task.File.ID, types.RequestTypeContent)
	body, err := e.client.OpenContent(ctx, reqCtx, task.File.DownloadURL)
	if err != nil {
		return 0, downloadError(task, err)
	}
	defer body.Close()

	part, err := os.CreateTemp(task.Dir, partPattern(target))
	if err != nil {
		return 0, taskError(utils.ErrCodeFilesystem, task, "create temporary file", err)
	}
	partPath := part.Name()
	committed := false
	defer func() {
		if !committed {
			_ = part.Close()
			_ = os.Remove(partPath)
		}
	}()

	var hasher hash.Hash
	algo, want := "", ""
	if e.opts.VerifyHashes {
		algo, want = expectedHash(task.File.Hashes)
		hasher = newHasher(algo)
	}

	var dst io.Writer = part
	if hasher != nil {
		dst = io.MultiWriter(part, hasher)
	}

	buf := make([]byte, utils.DownloadBufferSize)
	written, err := io.CopyBuffer(onlyWriter{dst}, onlyReader{body}, buf)
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return 0, taskError(utils.ErrCodeFilesystem, task, "write", err)
		}
		return 0, downloadError(task, err)
	}

	if written != task.File.Size {
		return 0, taskError(utils.ErrCodeSizeMismatch, task,
			fmt.Sprintf("received %d bytes, expected %d", written, task.File.Size), nil)
	}
	if hasher != nil {
		if got := hex.EncodeToString(hasher.Sum(nil)); !strings.EqualFold(got, want) {
			return 0, taskError(utils.ErrCodeHashMismatch, task,
				fmt.Sprintf("%s %s does not match remote %s", algo, got, strings.ToLower(want)), nil)
		}
	}

	if err := part.Chmod(0644); err != nil {
		return 0, taskError(utils.ErrCodeFilesystem, task, "chmod temporary file", err)
	}
	if err := part.Close(); err != nil {
		return 0, taskError(utils.ErrCodeFilesystem, task, "close temporary file", err)
	}
	if err := os.Rename(partPath, target); err != nil {
		_ = os.Remove(partPath)
		committed = true
		return 0, taskError(utils.ErrCodeFilesystem, task, "rename into place", err)
	}
	committed = true
	return written, nil
}

// partPattern is the os.CreateTemp pattern for target's temporary file
func partPattern(target string) string {
	return "." + filepath.Base(target) + ".*" + utils.PartFileSuffix
}

// onlyReader and onlyWriter hide WriterTo and ReaderFrom so CopyBuffer
// uses the given buffer
type onlyReader struct {
	io.Reader
}

type onlyWriter struct {
	io.Writer
}

func expectedHash(h types.Hashes) (algo, value string) {
	switch {
	case h.SHA256Hash != "":
		return "sha256", h.SHA256Hash
	case h.SHA1Hash != "":
		return "sha1", h.SHA1Hash
	}
	return "", ""
}

func newHasher(algo string) hash.Hash {
	switch algo {
	case "sha256":
		return sha256.New()
	case "sha1":
		return sha1.New()
	}
	return nil
}

func hashFile(path, algo string) (string, error) {
	h := newHasher(algo)
	if h == nil {
		return "", fmt.Errorf("unsupported hash %q", algo)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func taskError(code string, task plan.DownloadTask, step string, err error) error {
	msg := fmt.Sprintf("%s: %s", task.RelPath, step)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	cliErr := utils.NewCLIError(code, msg).
		WithContext("shareId", task.ShareID).
		WithContext("itemId", task.File.ID).
		Build()
	if err == nil {
		return utils.NewAppError(cliErr)
	}
	return utils.WrapAppError(cliErr, err)
}

// downloadError reports a network failure as DOWNLOAD_FAILED, keeping the
// classified code as the cause. Cancellation stays CANCELLED.
func downloadError(task plan.DownloadTask, err error) error {
	cause := utils.CLIErrorFrom(err, utils.ErrCodeDownloadFailed)
	code := utils.ErrCodeDownloadFailed
	if cause.Code == utils.ErrCodeCancelled || errors.Is(err, context.Canceled) {
		code = utils.ErrCodeCancelled
	}
	builder := utils.NewCLIError(code, fmt.Sprintf("%s: %s", task.RelPath, cause.Message)).
		WithRetryable(cause.Retryable).
		WithContext("shareId", task.ShareID).
		WithContext("itemId", task.File.ID).
		WithContext("causeCode", cause.Code)
	if cause.HTTPStatus != 0 {
		builder.WithHTTPStatus(cause.HTTPStatus)
	}
	return utils.WrapAppError(builder.Build(), err)
}
