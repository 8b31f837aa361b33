package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LogStore keeps raw run logs as files, one per run, named
// "<timestamp>-<shortid>.log".
type LogStore struct {
	dir string
}

// NewLogStore returns a store rooted at dir. The directory is created on
// first write.
func NewLogStore(dir string) *LogStore {
	return &LogStore{dir: dir}
}

// Dir returns the directory the store writes to.
func (s *LogStore) Dir() string {
	return s.dir
}

// Write saves text as a new log for a run at ts and returns its path.
func (s *LogStore) Write(ts time.Time, text string) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s.log", ts.UTC().Format("20060102T150405Z"), ShortID(uuid.NewString()))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write log: %w", err)
	}
	return path, nil
}

// Read returns the contents of a stored log.
func (s *LogStore) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read log: %w", err)
	}
	return string(data), nil
}

// Remove deletes a stored log. Paths outside the store and logs that are
// already gone are ignored.
func (s *LogStore) Remove(path string) error {
	if path == "" || !s.owns(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove log: %w", err)
	}
	return nil
}

func (s *LogStore) owns(path string) bool {
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
