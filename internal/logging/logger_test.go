package logging

import (
	"os"
	"testing"
)

func TestNewLogger_CreatesDirAndLogger(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(dir, false)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log dir missing: %v", err)
	}

	// Write once; just ensuring no panic / basic functionality.
	log.Info("test_message_from_logging_test")

	if !log.Core().Enabled(0) { // zap.InfoLevel
		t.Fatalf("info level should be enabled by default")
	}
}

func TestNewLogger_DebugLevel(t *testing.T) {
	log, err := NewLogger(t.TempDir(), true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if !log.Core().Enabled(-1) { // zap.DebugLevel
		t.Fatalf("debug level should be enabled when requested")
	}
}
