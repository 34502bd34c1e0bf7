package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != INFO {
		t.Errorf("Expected Level=INFO, got %v", config.Level)
	}
	if !config.EnableConsole {
		t.Error("Expected EnableConsole=true")
	}
	if !config.RedactSensitive {
		t.Error("Expected RedactSensitive=true")
	}
	if config.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected MaxFileSize=104857600, got %v", config.MaxFileSize)
	}
}

func TestNewLogger_Selection(t *testing.T) {
	tests := []struct {
		name    string
		console bool
		file    bool
		check   func(Logger) bool
		wantTyp string
	}{
		{name: "console only", console: true, check: func(l Logger) bool { _, ok := l.(*ConsoleLogger); return ok }, wantTyp: "*ConsoleLogger"},
		{name: "file only", file: true, check: func(l Logger) bool { _, ok := l.(*FileLogger); return ok }, wantTyp: "*FileLogger"},
		{name: "both", console: true, file: true, check: func(l Logger) bool { _, ok := l.(*MultiLogger); return ok }, wantTyp: "*MultiLogger"},
		{name: "neither", check: func(l Logger) bool { _, ok := l.(*NoOpLogger); return ok }, wantTyp: "*NoOpLogger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := LogConfig{Level: INFO, EnableConsole: tt.console, MaxFileSize: 1024}
			if tt.file {
				config.OutputFile = filepath.Join(t.TempDir(), "odshare.log")
			}

			logger, err := NewLogger(config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			t.Cleanup(func() { _ = logger.Close() })

			if !tt.check(logger) {
				t.Errorf("NewLogger() returned %T, want %s", logger, tt.wantTyp)
			}
			if tt.file {
				if _, err := os.Stat(config.OutputFile); err != nil {
					t.Errorf("Log file was not created: %v", err)
				}
			}
		})
	}
}

func TestNewLogger_InvalidPath(t *testing.T) {
	// A regular file cannot be used as a parent directory, even as root.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := NewLogger(LogConfig{
		Level:      INFO,
		OutputFile: filepath.Join(blocker, "logs", "odshare.log"),
	})
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestNewDebugLoggerWithTransport(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")

	logger, transport, err := NewDebugLoggerWithTransport(LogConfig{
		Level:       INFO,
		OutputFile:  logPath,
		EnableDebug: true,
	})
	if err != nil {
		t.Fatalf("NewDebugLoggerWithTransport() error = %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	if transport == nil {
		t.Fatal("DebugTransport is nil")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &http.Client{Transport: transport}
	resp, err := client.Get(server.URL + "/shares/s!1/driveItem")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	_ = resp.Body.Close()
	_ = logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "HTTP response") {
		t.Errorf("debug log missing response line: %s", data)
	}
}

func TestNewDebugLoggerWithTransport_NoDebug(t *testing.T) {
	logger, transport, err := NewDebugLoggerWithTransport(LogConfig{
		Level:         INFO,
		EnableConsole: true,
	})
	if err != nil {
		t.Fatalf("NewDebugLoggerWithTransport() error = %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	if transport != nil {
		t.Error("Expected nil DebugTransport when EnableDebug=false")
	}
}
