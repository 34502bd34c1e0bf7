package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/odshare/internal/config"
	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/mirror"
	"github.com/dl-alexandre/odshare/internal/mirror/executor"
	"github.com/dl-alexandre/odshare/internal/mirror/index"
	odtesting "github.com/dl-alexandre/odshare/internal/testing"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
)

func newTestWriter(format types.OutputFormat) (*OutputWriter, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	w := NewOutputWriter(format, false, false)
	w.stdout = &stdout
	w.stderr = &stderr
	return w, &stdout, &stderr
}

func TestResolveShares(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		configured []string
		want       []string
	}{
		{"args win", []string{"s!A"}, []string{"s!B"}, []string{"s!A"}},
		{"config fallback", nil, []string{"s!B", "s!C"}, []string{"s!B", "s!C"}},
		{"dedup and trim", []string{" s!A", "s!A", "", "s!B"}, nil, []string{"s!A", "s!B"}},
		{"nothing", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveShares(tt.args, tt.configured); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("resolveShares() = %v, want %v", got, tt.want)
			}
		})
	}
}

// newTestMirrorCmd binds the mirror flags to a fresh command so tests can
// mark flags as changed without touching mirrorCmd
func newTestMirrorCmd(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "mirror"}
	cmd.Flags().IntVar(&mirrorConcurrency, "concurrency", utils.DefaultConcurrency, "")
	cmd.Flags().IntVar(&mirrorDiscoveryConcurrency, "discovery-concurrency", utils.DefaultDiscoveryConcurrency, "")
	cmd.Flags().StringVar(&mirrorOutputDir, "output-dir", "", "")
	cmd.Flags().StringSliceVar(&mirrorExclude, "exclude", nil, "")
	cmd.Flags().BoolVar(&mirrorVerifyHashes, "verify-hashes", false, "")
	cmd.Flags().StringVar(&mirrorMetricsFile, "metrics-file", "", "")
	cmd.Flags().BoolVar(&mirrorNoLedger, "no-ledger", false, "")
	t.Cleanup(func() {
		mirrorConcurrency = utils.DefaultConcurrency
		mirrorDiscoveryConcurrency = utils.DefaultDiscoveryConcurrency
		mirrorOutputDir = ""
		mirrorExclude = nil
		mirrorVerifyHashes = false
		mirrorMetricsFile = ""
		mirrorNoLedger = false
	})
	return cmd
}

func TestApplyMirrorFlags(t *testing.T) {
	base := *config.DefaultConfig()
	base.Exclude = []string{"*.tmp"}
	base.OutputDir = "/from/config"

	t.Run("unset flags keep config", func(t *testing.T) {
		cmd := newTestMirrorCmd(t)
		cfg, err := applyMirrorFlags(base, cmd)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Concurrency != utils.DefaultConcurrency || cfg.OutputDir != "/from/config" || !cfg.Ledger {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("set flags override", func(t *testing.T) {
		cmd := newTestMirrorCmd(t)
		for name, value := range map[string]string{
			"concurrency":   "9",
			"output-dir":    "/from/flag",
			"exclude":       "Archive/,*.bak",
			"verify-hashes": "true",
			"no-ledger":     "true",
		} {
			if err := cmd.Flags().Set(name, value); err != nil {
				t.Fatalf("set %s: %v", name, err)
			}
		}
		cfg, err := applyMirrorFlags(base, cmd)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Concurrency != 9 || cfg.OutputDir != "/from/flag" || !cfg.VerifyHashes || cfg.Ledger {
			t.Errorf("unexpected config: %+v", cfg)
		}
		if want := []string{"*.tmp", "Archive/", "*.bak"}; !reflect.DeepEqual(cfg.Exclude, want) {
			t.Errorf("exclude = %v, want %v", cfg.Exclude, want)
		}
		if len(base.Exclude) != 1 {
			t.Error("base config must not be modified")
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		cmd := newTestMirrorCmd(t)
		if err := cmd.Flags().Set("concurrency", "0"); err != nil {
			t.Fatal(err)
		}
		if _, err := applyMirrorFlags(base, cmd); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestBuildLogConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name        string
		logLevel    string
		flags       types.GlobalFlags
		wantLevel   logging.LogLevel
		wantConsole bool
	}{
		{"normal table", "normal", types.GlobalFlags{OutputFormat: types.OutputFormatTable}, logging.INFO, true},
		{"quiet level", "quiet", types.GlobalFlags{OutputFormat: types.OutputFormatTable}, logging.WARN, true},
		{"verbose flag", "normal", types.GlobalFlags{OutputFormat: types.OutputFormatTable, Verbose: true}, logging.DEBUG, true},
		{"quiet flag", "normal", types.GlobalFlags{OutputFormat: types.OutputFormatTable, Quiet: true}, logging.INFO, false},
		{"json silences console", "normal", types.GlobalFlags{OutputFormat: types.OutputFormatJSON}, logging.INFO, false},
		{"json with debug", "normal", types.GlobalFlags{OutputFormat: types.OutputFormatJSON, Debug: true}, logging.INFO, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			c.LogLevel = tt.logLevel
			got := buildLogConfig(&c, tt.flags)
			if got.Level != tt.wantLevel {
				t.Errorf("level = %v, want %v", got.Level, tt.wantLevel)
			}
			if got.EnableConsole != tt.wantConsole {
				t.Errorf("console = %v, want %v", got.EnableConsole, tt.wantConsole)
			}
			if got.EnableDebug != tt.flags.Debug {
				t.Errorf("debug = %v", got.EnableDebug)
			}
		})
	}
}

func TestOutputWriter_JSONEnvelope(t *testing.T) {
	w, stdout, _ := newTestWriter(types.OutputFormatJSON)
	w.AddWarning("LEDGER_UNAVAILABLE", "disk full", "warning")

	if err := w.WriteSuccess("mirror", map[string]int{"files": 2}); err != nil {
		t.Fatal(err)
	}

	var out types.CLIOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout.String())
	}
	if out.SchemaVersion != utils.SchemaVersion || out.Command != "mirror" || out.TraceID == "" {
		t.Errorf("unexpected envelope: %+v", out)
	}
	if len(out.Warnings) != 1 || out.Warnings[0].Code != "LEDGER_UNAVAILABLE" {
		t.Errorf("warnings = %+v", out.Warnings)
	}
	if out.Errors == nil || len(out.Errors) != 0 {
		t.Errorf("errors should be an empty list, got %v", out.Errors)
	}
}

func TestOutputWriter_WriteError(t *testing.T) {
	tests := []struct {
		name     string
		format   types.OutputFormat
		code     string
		wantExit int
	}{
		{"json invalid argument", types.OutputFormatJSON, utils.ErrCodeInvalidArgument, utils.ExitInvalidArgument},
		{"table discovery", types.OutputFormatTable, utils.ErrCodeDiscoveryFailed, utils.ExitDiscoveryFailed},
		{"table unknown", types.OutputFormatTable, "SOMETHING_ELSE", utils.ExitUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, stdout, stderr := newTestWriter(tt.format)
			err := w.WriteError("plan", utils.NewCLIError(tt.code, "boom").Build())

			var exitErr *ExitError
			if !errors.As(err, &exitErr) {
				t.Fatalf("expected ExitError, got %v", err)
			}
			if exitErr.Code != tt.wantExit {
				t.Errorf("exit = %d, want %d", exitErr.Code, tt.wantExit)
			}
			if utils.ErrorCode(err) != tt.code {
				t.Errorf("error code = %s", utils.ErrorCode(err))
			}

			if tt.format == types.OutputFormatJSON {
				if !strings.Contains(stdout.String(), `"code": "`+tt.code+`"`) {
					t.Errorf("stdout missing error: %s", stdout.String())
				}
			} else if !strings.Contains(stderr.String(), "Error ["+tt.code+"]: boom") {
				t.Errorf("stderr = %q", stderr.String())
			}
		})
	}
}

func sampleReport() mirror.Report {
	return mirror.Report{
		Shares: []mirror.ShareResult{
			{
				ShareID: "s!A",
				Files:   2,
				Bytes:   3 << 20,
				Summary: executor.Summary{
					Downloaded: 1,
					Failed:     1,
					Results: []executor.TaskResult{
						{RelPath: "ok.txt", Outcome: executor.OutcomeDownloaded},
						{RelPath: "dir/bad.txt", Outcome: executor.OutcomeFailed, Error: &types.CLIError{Code: utils.ErrCodeSizeMismatch, Message: "short read"}},
					},
				},
				Duration: 1500 * time.Millisecond,
			},
			{
				ShareID: "s!B",
				Error:   &types.CLIError{Code: utils.ErrCodeDiscoveryFailed, Message: "not found"},
			},
		},
		TasksFailed:  1,
		SharesFailed: 1,
	}
}

func TestMirrorReportTable(t *testing.T) {
	w, stdout, _ := newTestWriter(types.OutputFormatTable)
	if err := w.WriteSuccess("mirror", mirrorReport{sampleReport()}); err != nil {
		t.Fatal(err)
	}

	text := stdout.String()
	for _, want := range []string{"SHARE", "s!A", "partial", "3.0 MiB", "1.5s", "s!B", utils.ErrCodeDiscoveryFailed} {
		if !strings.Contains(text, want) {
			t.Errorf("table missing %q:\n%s", want, text)
		}
	}
}

func TestFailureLines(t *testing.T) {
	got := failureLines(sampleReport())
	want := []string{
		"s!A/dir/bad.txt: [SIZE_MISMATCH] short read",
		"s!B: [DISCOVERY_FAILED] not found",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("failureLines() = %q, want %q", got, want)
	}
}

func TestEmptyTables(t *testing.T) {
	w, stdout, _ := newTestWriter(types.OutputFormatTable)
	if err := w.WriteSuccess("history", historyView{}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout.String()) != "No runs recorded" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestLoadFailures(t *testing.T) {
	ctx := context.Background()
	db, err := index.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := loadFailures(ctx, db, nil); !errors.Is(err, index.ErrNoRuns) {
		t.Fatalf("expected ErrNoRuns, got %v", err)
	}

	now := time.Now()
	for i, id := range []string{"old", "new"} {
		if err := db.BeginRun(ctx, id, []string{"s!A", "s!B"}, now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.RecordShare(ctx, index.ShareRecord{RunID: "new", ShareID: "s!A", Status: index.ShareStatusMirrored, FinishedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordShare(ctx, index.ShareRecord{RunID: "new", ShareID: "s!B", Status: index.ShareStatusFailed, ErrorCode: "DISCOVERY_FAILED", FinishedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordResults(ctx, []index.TaskRecord{
		{RunID: "new", ShareID: "s!A", ItemID: "1", RelPath: "a", TargetPath: "/a", Outcome: "failed", ErrorCode: "TIMEOUT", FinishedAt: now},
		{RunID: "new", ShareID: "s!A", ItemID: "2", RelPath: "b", TargetPath: "/b", Outcome: "downloaded", FinishedAt: now},
	}); err != nil {
		t.Fatal(err)
	}

	view, err := loadFailures(ctx, db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if view.RunID != "new" || len(view.Shares) != 1 || len(view.Tasks) != 1 {
		t.Errorf("unexpected view: %+v", view)
	}

	old, err := loadFailures(ctx, db, []string{"old"})
	if err != nil {
		t.Fatal(err)
	}
	if len(old.Shares) != 0 || len(old.Tasks) != 0 || len(old.Rows()) != 0 {
		t.Errorf("old run should have no failures: %+v", old)
	}
}

// withCommandState points the package globals at a test configuration
func withCommandState(t *testing.T, cfg *config.Config) *bytes.Buffer {
	t.Helper()
	t.Setenv("ODSHARE_CONFIG_DIR", t.TempDir())

	var stdout bytes.Buffer
	prevStream, prevFlags, prevConfig, prevLogger := outputStream, globalFlags, appConfig, logger
	outputStream = &stdout
	globalFlags = types.GlobalFlags{OutputFormat: types.OutputFormatJSON, Quiet: true}
	appConfig = cfg
	logger = logging.NewNoOpLogger()
	t.Cleanup(func() {
		outputStream, globalFlags, appConfig, logger = prevStream, prevFlags, prevConfig, prevLogger
	})
	return &stdout
}

func TestRunMirror_EndToEnd(t *testing.T) {
	server := odtesting.NewShareServer(t)
	server.AddShare("s!CLI", odtesting.Folder("ROOT", "Shared",
		odtesting.Folder("1", "FolderA", odtesting.File("3", "File2.txt", strings.Repeat("b", 20))),
		odtesting.File("2", "File1.txt", strings.Repeat("a", 10)),
	))

	cfg := config.DefaultConfig()
	cfg.APIBaseURL = server.BaseURL()
	cfg.OutputDir = filepath.Join(t.TempDir(), "mirror")
	cfg.MetricsFile = filepath.Join(t.TempDir(), "odshare.prom")
	stdout := withCommandState(t, cfg)

	if err := runMirror(newTestMirrorCmd(t), []string{"s!CLI"}); err != nil {
		t.Fatalf("runMirror: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "s-CLI", "FolderA", "File2.txt")); err != nil {
		t.Errorf("expected mirrored file: %v", err)
	}

	var out struct {
		Data mirror.Report `json:"data"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if out.Data.Downloaded != 2 {
		t.Errorf("report downloaded = %d", out.Data.Downloaded)
	}

	metricsText, err := os.ReadFile(cfg.MetricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(metricsText), `odshare_downloads_total{outcome="downloaded"} 2`) {
		t.Errorf("metrics file missing download counter:\n%s", metricsText)
	}

	ledgerPath, err := config.GetLedgerPath()
	if err != nil {
		t.Fatal(err)
	}
	db, err := index.Open(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	runs, err := db.ListRuns(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != out.Data.RunID || runs[0].Status != index.RunStatusSucceeded {
		t.Errorf("unexpected ledger runs: %+v", runs)
	}
}

func TestRunMirror_PartialFailureExitCode(t *testing.T) {
	server := odtesting.NewShareServer(t)
	server.AddShare("s!CLI", odtesting.Folder("ROOT", "Shared",
		odtesting.File("1", "ok.txt", "ok"),
		odtesting.File("2", "gone.txt", "gone"),
	))
	server.FailContent("2", http.StatusNotFound)

	cfg := config.DefaultConfig()
	cfg.APIBaseURL = server.BaseURL()
	cfg.OutputDir = t.TempDir()
	cfg.Ledger = false
	withCommandState(t, cfg)

	err := runMirror(newTestMirrorCmd(t), []string{"s!CLI"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != utils.ExitBatchPartialFailure {
		t.Fatalf("expected exit %d, got %v", utils.ExitBatchPartialFailure, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "s-CLI", "ok.txt")); err != nil {
		t.Errorf("sibling download should succeed: %v", err)
	}
}

func TestRunMirror_NoShares(t *testing.T) {
	withCommandState(t, config.DefaultConfig())

	err := runMirror(newTestMirrorCmd(t), nil)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != utils.ExitInvalidArgument {
		t.Fatalf("expected invalid argument exit, got %v", err)
	}
}

type closeRecorder struct {
	*logging.NoOpLogger
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestExecute_ClosesLoggerOnFailedRun(t *testing.T) {
	recorder := &closeRecorder{NoOpLogger: logging.NewNoOpLogger()}
	prevLogger := logger
	t.Cleanup(func() { logger = prevLogger })

	failing := &cobra.Command{
		Use: "failing-run",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = recorder
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return &ExitError{Code: utils.ExitBatchPartialFailure, Err: errors.New("1 task failed")}
		},
	}
	rootCmd.AddCommand(failing)
	rootCmd.SetArgs([]string{"failing-run"})
	t.Cleanup(func() {
		rootCmd.RemoveCommand(failing)
		rootCmd.SetArgs(nil)
	})

	if code := Execute(); code != utils.ExitBatchPartialFailure {
		t.Errorf("Execute() = %d, want %d", code, utils.ExitBatchPartialFailure)
	}
	if recorder.closed != 1 {
		t.Errorf("logger closed %d times, want 1", recorder.closed)
	}
}
