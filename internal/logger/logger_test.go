package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesLevelFiles(t *testing.T) {
	dir := t.TempDir()

	l, err := NewLogger(dir, "info", io.Discard)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	l.Info("frame %d accepted", 1)
	l.Warning("Face not detected")
	l.Error("collector unreachable")

	tests := []struct {
		file string
		want string
	}{
		{"info.log", "frame 1 accepted"},
		{"warning.log", "Face not detected"},
		{"error.log", "collector unreachable"},
	}

	for _, tt := range tests {
		data, err := os.ReadFile(filepath.Join(dir, tt.file))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", tt.file, err)
		}
		if !strings.Contains(string(data), tt.want) {
			t.Errorf("Expected %s to contain %q, got %q", tt.file, tt.want, string(data))
		}
	}
}

func TestDebug_OnlyWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("Debug should be silent by default, got %q", buf.String())
	}

	l.debug = true
	l.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected debug output, got %q", buf.String())
	}
}

func TestCleanLogs(t *testing.T) {
	dir := t.TempDir()

	l, err := NewLogger(dir, "info", io.Discard)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	l.Warning("something to clear")
	if err := l.CleanLogs("warning.log"); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "warning.log"))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected empty warning.log, got %d bytes", info.Size())
	}
}
