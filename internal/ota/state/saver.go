// Package state implements the State Saver (spec §4.14): atomic snapshot
// persistence of agent state ahead of a self-update, grounded on the
// teacher's write-to-temp-then-rename idiom used for durable writes.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/goose-run/goose-core/internal/logging"
)

// Snapshot captures everything needed to restore the agent to a known-good
// state before a self-modification attempt (spec §4.14).
type Snapshot struct {
	ID             string
	Version        string
	ConfigJSON     string
	ActiveSessions []string
	BinaryHash     string
	CapturedAt     time.Time
}

// CaptureState builds a Snapshot. binaryHash is optional (empty string when
// unknown).
func CaptureState(version, configJSON string, activeSessions []string, binaryHash string) Snapshot {
	return Snapshot{
		ID:             uuid.NewString(),
		Version:        version,
		ConfigJSON:     configJSON,
		ActiveSessions: activeSessions,
		BinaryHash:     binaryHash,
		CapturedAt:     time.Now(),
	}
}

// Saver persists and prunes snapshots on disk under Dir.
type Saver struct {
	Dir         string
	MaxSnapshots int
}

// New creates a Saver rooted at dir, keeping at most maxSnapshots.
func New(dir string, maxSnapshots int) *Saver {
	if maxSnapshots <= 0 {
		maxSnapshots = 10
	}
	return &Saver{Dir: dir, MaxSnapshots: maxSnapshots}
}

// SaveSnapshot writes s atomically (write-to-temp then rename) and prunes
// older snapshots beyond MaxSnapshots by mtime (spec §4.14).
func (sv *Saver) SaveSnapshot(s Snapshot) (string, error) {
	if err := os.MkdirAll(sv.Dir, 0o755); err != nil {
		return "", fmt.Errorf("state: create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("state: marshal snapshot: %w", err)
	}

	path := filepath.Join(sv.Dir, s.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("state: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("state: rename snapshot into place: %w", err)
	}

	logging.Get(logging.CategoryState).Info("saved snapshot %s (version=%s)", s.ID, s.Version)
	sv.prune()
	return path, nil
}

// LoadSnapshot round-trips a snapshot previously saved by id.
func (sv *Saver) LoadSnapshot(id string) (Snapshot, error) {
	path := filepath.Join(sv.Dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("state: read snapshot %s: %w", id, err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("state: parse snapshot %s: %w", id, err)
	}
	return s, nil
}

// Path returns the on-disk path for a saved snapshot id, for callers (the
// Rollback Manager) that need to check existence without a full load.
func (sv *Saver) Path(id string) string {
	return filepath.Join(sv.Dir, id+".json")
}

func (sv *Saver) prune() {
	entries, err := os.ReadDir(sv.Dir)
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{filepath.Join(sv.Dir, e.Name()), info.ModTime()})
	}
	if len(files) <= sv.MaxSnapshots {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	excess := len(files) - sv.MaxSnapshots
	for _, f := range files[:excess] {
		if err := os.Remove(f.path); err != nil {
			logging.Get(logging.CategoryState).Warn("prune snapshot %s: %v", f.path, err)
		}
	}
}
