package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps one JSON file per release target:
//
//	<dir>/<target>.json
//
// Writes are atomic and durable (temp file, fsync, rename, dir fsync), so a
// killed process leaves either the old or the new record, never a torn one.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("session: store dir is required")
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(target string) string {
	return filepath.Join(s.dir, target+".json")
}

// Load reads the record for target.
func (s *FileStore) Load(target string) (Record, error) {
	if err := ValidTarget(target); err != nil {
		return Record{}, err
	}
	var rec Record
	if err := readJSONStrict(s.path(target), &rec); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("session: load %s: %w", target, err)
	}
	if err := rec.Validate(); err != nil {
		return Record{}, fmt.Errorf("session: invalid record on disk for %s: %w", target, err)
	}
	if rec.ReleaseTarget != target {
		return Record{}, fmt.Errorf("session: record for %s names %s", target, rec.ReleaseTarget)
	}
	return rec, nil
}

// Save writes rec, replacing any previous record for its target.
func (s *FileStore) Save(rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("session: invalid record: %w", err)
	}
	if err := ensureDirDurable(s.dir, 0o755); err != nil {
		return fmt.Errorf("session: ensure store dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	if err := writeFileAtomicDurable(s.path(rec.ReleaseTarget), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("session: write record: %w", err)
	}
	return nil
}

// Delete removes the record for target.
func (s *FileStore) Delete(target string) error {
	if err := ValidTarget(target); err != nil {
		return err
	}
	if err := os.Remove(s.path(target)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: delete %s: %w", target, err)
	}
	return fsyncDir(s.dir)
}

// List returns every record, sorted by target.
func (s *FileStore) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ReleaseTarget < records[j].ReleaseTarget })
	return records, nil
}

func readJSONStrict(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON: trailing content")
	}
	return nil
}

func ensureDirDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if err := fsyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		return fsyncDir(parent)
	}
	return nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	return f.Sync()
}
