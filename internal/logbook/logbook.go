// Package logbook keeps a human-readable history of publish runs, one
// line per outcome, so operators can see what happened to a release
// target without digging through structured logs.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the history file inside the logs directory.
const FileName = "history.log"

// Level represents the severity of an entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook appends run outcomes to a text file.
type Logbook struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry for target.
func (l *Logbook) Append(level Level, target, message string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s %s\n",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		target,
		strings.Join(strings.Fields(message), " "),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logbook: open: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("logbook: write: %w", err)
	}
	return nil
}

// Tail returns up to maxLines of the most recent entries and the total
// number of entries. A non-empty target keeps only that target's lines.
func (l *Logbook) Tail(target string, maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if target != "" && entryTarget(line) != target {
			continue
		}
		lines = append(lines, line)
	}
	total := len(lines)
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

func entryTarget(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return ""
	}
	return fields[2]
}

// Info appends an informational entry.
func (l *Logbook) Info(target, format string, args ...any) error {
	return l.Append(LevelInfo, target, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(target, format string, args ...any) error {
	return l.Append(LevelWarn, target, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(target, format string, args ...any) error {
	return l.Append(LevelError, target, fmt.Sprintf(format, args...))
}
