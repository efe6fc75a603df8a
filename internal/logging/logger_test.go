package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesFileAndConsole(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	logger, err := New(dir, Options{Level: "warn", Format: "text", Stderr: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("debug detail", "k", "v")
	logger.Warn("track race possible", "target", "com.example.app")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(console.String(), "debug detail") {
		t.Fatalf("console must respect the level: %s", console.String())
	}
	if !strings.Contains(console.String(), "track race possible") || !strings.Contains(console.String(), "run_id=") {
		t.Fatalf("console missing warning: %s", console.String())
	}

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("file should keep debug records too, got %d lines", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("file records must be JSON: %v", err)
	}
	if rec["run_id"] != logger.RunID || rec["target"] != "com.example.app" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestAutoFormatIsJSONOffTerminal(t *testing.T) {
	var console bytes.Buffer
	logger, err := New(t.TempDir(), Options{Stderr: &console})
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()
	logger.Info("hello")
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(console.Bytes()), &rec); err != nil {
		t.Fatalf("expected JSON on a non-terminal writer: %v (%s)", err, console.String())
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New(t.TempDir(), Options{Format: "xml", Stderr: &bytes.Buffer{}}); err == nil {
		t.Fatalf("expected format error")
	}
}
