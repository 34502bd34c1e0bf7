package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMultiLogger_LogsToAll(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	multi := NewMultiLogger(
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf1, Level: INFO}),
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf2, Level: INFO}),
	)

	multi.Info("tree discovered", F("files", 2))

	if buf1.String() == "" || buf2.String() == "" {
		t.Fatal("a logger didn't receive the message")
	}
	if buf1.String() != buf2.String() {
		t.Errorf("Loggers produced different output:\n%s\n%s", buf1.String(), buf2.String())
	}
}

func TestMultiLogger_WithContextPropagatesTraceID(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	multi := NewMultiLogger(
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf1, Level: INFO}),
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf2, Level: INFO}),
	)

	ctx := ContextWithTraceID(t.Context(), "feedface-0000")
	multi.WithContext(ctx).Info("share started")

	for i, out := range []string{buf1.String(), buf2.String()} {
		if !strings.Contains(out, "[feedface]") {
			t.Errorf("logger %d output %q missing trace prefix", i, out)
		}
	}
}

func TestMultiLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiLogger(NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG}))

	multi.SetLevel(ERROR)
	multi.Debug("debug")
	multi.Info("info")
	multi.Error("error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "error") {
		t.Errorf("expected only the error line, got %q", buf.String())
	}
}

func TestMultiLogger_FileAndConsole(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "odshare.log")

	fileLogger, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: INFO})
	if err != nil {
		t.Fatalf("Failed to create file logger: %v", err)
	}
	var buf bytes.Buffer
	multi := NewMultiLogger(fileLogger, NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: INFO}))

	multi.Info("download complete", F("path", "a.txt"))
	if err := multi.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if buf.String() == "" {
		t.Error("Console didn't receive message")
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"path":"a.txt"`) {
		t.Errorf("Log file missing field: %s", data)
	}
}

func TestNoOpLogger(t *testing.T) {
	var logger Logger = NewNoOpLogger()
	logger.Info("ignored")
	if logger.WithTraceID("x") != logger {
		t.Error("NoOpLogger.WithTraceID should return itself")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
