// Package registry persists the feature -> session metadata table on disk.
//
// Each active orchestration gets one JSON file named after its feature under
// the registry directory. The registry is the only mechanism letting a
// short-lived CLI invocation discover sessions created by a different,
// already-exited process, so writes must be atomic and reads tolerant of
// individually corrupt entries.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
)

// featureNameRegex constrains feature names to a single safe path segment.
// Names are used verbatim as file names under the registry directory, so
// separators and leading dots must never reach the filesystem.
var featureNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidFeature reports whether name is usable as a registry key.
func ValidFeature(name string) bool {
	return featureNameRegex.MatchString(name)
}

// Record is one registry entry: an active orchestration's feature and where
// its worktree lives.
type Record struct {
	Feature   string    `json:"feature"`
	Worktree  string    `json:"worktree"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is a directory-backed table of active orchestrations.
type Registry struct {
	dir string
	mu  sync.RWMutex
}

// New creates a Registry rooted at dir, creating the directory if needed.
func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	return &Registry{dir: dir}, nil
}

// Dir returns the registry's backing directory.
func (r *Registry) Dir() string {
	return r.dir
}

func (r *Registry) path(feature string) string {
	return filepath.Join(r.dir, feature+".json")
}

// Register writes the record for a feature, replacing any existing entry.
func (r *Registry) Register(feature, worktree string) (*Record, error) {
	if !ValidFeature(feature) {
		return nil, overseererrors.Wrapf(overseererrors.ErrInvalidFeature, "register %q", feature)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &Record{
		Feature:   feature,
		Worktree:  worktree,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry record: %w", err)
	}
	if err := atomicWriteFile(r.path(feature), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write registry record: %w", err)
	}
	return rec, nil
}

// Get returns the record for a feature, or NotFoundError if absent or corrupt.
// Names that could never have been registered read as absent rather than
// probing the filesystem.
func (r *Registry) Get(feature string) (*Record, error) {
	if !ValidFeature(feature) {
		return nil, overseererrors.NewNotFoundError("orchestration", feature)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path(feature))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, overseererrors.NewNotFoundError("orchestration", feature)
		}
		return nil, fmt.Errorf("failed to read registry record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, overseererrors.NewNotFoundError("orchestration", feature).
			WithCause(overseererrors.ErrCorruptRecord)
	}
	return &rec, nil
}

// Exists reports whether a feature has a registry entry.
func (r *Registry) Exists(feature string) bool {
	if !ValidFeature(feature) {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, err := os.Stat(r.path(feature))
	return err == nil
}

// List returns all readable records sorted by feature name. Corrupt entries
// are skipped, not fatal: one bad file must not hide every other session.
func (r *Registry) List() ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Feature == "" {
			rec.Feature = strings.TrimSuffix(entry.Name(), ".json")
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Feature < records[j].Feature
	})
	return records, nil
}

// Delete removes a feature's entry. Deleting an absent feature returns
// NotFoundError so callers can report it distinctly; it never half-deletes.
func (r *Registry) Delete(feature string) error {
	if !ValidFeature(feature) {
		return overseererrors.NewNotFoundError("orchestration", feature)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(feature))
	if err != nil {
		if os.IsNotExist(err) {
			return overseererrors.NewNotFoundError("orchestration", feature)
		}
		return fmt.Errorf("failed to delete registry record: %w", err)
	}
	return nil
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. This ensures the target file is never in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Create temp file in same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
