package logbook

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", FileName)
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := book.Info("com.example.app", "entry-%d", i); err != nil {
			t.Fatal(err)
		}
	}
	lines, total := book.Tail("", 3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestTailFiltersByTarget(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatal(err)
	}
	_ = book.Info("com.example.one", "committed version %d", 100)
	_ = book.Error("com.example.two", "aborted in\n graphics")
	_ = book.Warn("com.example.one", "validated, commit declined")

	lines, total := book.Tail("com.example.one", 10)
	if total != 2 || len(lines) != 2 {
		t.Fatalf("expected two entries for target, got %d %v", total, lines)
	}
	other, _ := book.Tail("com.example.two", 10)
	if len(other) != 1 || !strings.Contains(other[0], "ERROR") || !strings.Contains(other[0], "aborted in graphics") {
		t.Fatalf("multi-line messages must collapse onto one line: %v", other)
	}
}
