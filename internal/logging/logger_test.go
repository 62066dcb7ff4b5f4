package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

func TestNewWithFileWritesDiagnosticLog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "discovery.log")
	logger, err := NewWithFile(false, path)
	if err != nil {
		t.Fatalf("NewWithFile error = %v", err)
	}
	logger.Info("task failed")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "task failed") {
		t.Fatalf("expected log entry in file, got %q", data)
	}
}
