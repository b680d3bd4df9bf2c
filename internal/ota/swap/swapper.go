// Package swap implements the Binary Swapper (spec §4.11): it replaces the
// active binary with a candidate, keeping a pruned backup trail so a failed
// swap can self-heal.
package swap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/goose-run/goose-core/internal/logging"
)

// Record describes the outcome of one swap attempt.
type Record struct {
	Active      string
	Candidate   string
	BackupPath  string
	Success     bool
	Error       string
	SwappedAt   time.Time
	Restored    bool
}

// Swapper replaces active binaries and keeps a pruned backup trail.
type Swapper struct {
	BackupDir   string
	MaxBackups  int
}

// New creates a Swapper that keeps maxBackups backups under backupDir.
func New(backupDir string, maxBackups int) *Swapper {
	if maxBackups <= 0 {
		maxBackups = 5
	}
	return &Swapper{BackupDir: backupDir, MaxBackups: maxBackups}
}

// Swap replaces active with candidate, keeping a timestamped backup of the
// previous active binary (spec §4.11). On any step failure it attempts to
// restore active from the backup before reporting failure.
func (s *Swapper) Swap(active, candidate string) Record {
	rec := Record{Active: active, Candidate: candidate, SwappedAt: time.Now()}

	info, err := os.Stat(candidate)
	if err != nil || info.Size() == 0 {
		rec.Error = fmt.Sprintf("candidate %s missing or empty", candidate)
		logging.Get(logging.CategorySwap).Warn("%s", rec.Error)
		return rec
	}

	if err := os.MkdirAll(s.BackupDir, 0o755); err != nil {
		rec.Error = fmt.Sprintf("create backup dir: %v", err)
		return rec
	}

	backupPath := filepath.Join(s.BackupDir, fmt.Sprintf("backup-%d-%s", time.Now().Unix(), uuid.NewString()[:8]))
	rec.BackupPath = backupPath

	if _, err := os.Stat(active); err == nil {
		if err := copyFile(active, backupPath); err != nil {
			rec.Error = fmt.Sprintf("backup active binary: %v", err)
			logging.Get(logging.CategorySwap).Error("%s", rec.Error)
			return rec
		}
	}

	if err := copyFile(candidate, active); err != nil {
		rec.Error = fmt.Sprintf("copy candidate over active: %v", err)
		if restoreErr := s.restore(active, backupPath); restoreErr != nil {
			rec.Error = fmt.Sprintf("%s; restore also failed: %v", rec.Error, restoreErr)
		} else {
			rec.Restored = true
		}
		logging.Get(logging.CategorySwap).Error("%s", rec.Error)
		return rec
	}

	if err := s.verify(active, candidate); err != nil {
		rec.Error = fmt.Sprintf("post-swap verification failed: %v", err)
		if restoreErr := s.restore(active, backupPath); restoreErr != nil {
			rec.Error = fmt.Sprintf("%s; restore also failed: %v", rec.Error, restoreErr)
		} else {
			rec.Restored = true
		}
		logging.Get(logging.CategorySwap).Error("%s", rec.Error)
		return rec
	}

	rec.Success = true
	logging.Get(logging.CategorySwap).Info("swapped %s <- %s (backup %s)", active, candidate, backupPath)

	s.prune()
	return rec
}

// verify checks that the swapped binary has the same size as the candidate;
// mtime is not compared.
func (s *Swapper) verify(active, candidate string) error {
	activeInfo, err := os.Stat(active)
	if err != nil {
		return err
	}
	candInfo, err := os.Stat(candidate)
	if err != nil {
		return err
	}
	if activeInfo.Size() != candInfo.Size() {
		return fmt.Errorf("size mismatch: active=%d candidate=%d", activeInfo.Size(), candInfo.Size())
	}
	return nil
}

// restore copies backupPath back over active, used on any swap failure.
func (s *Swapper) restore(active, backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("no backup to restore from: %w", err)
	}
	return copyFile(backupPath, active)
}

// prune keeps only MaxBackups backups in BackupDir, oldest first by mtime.
func (s *Swapper) prune() {
	entries, err := os.ReadDir(s.BackupDir)
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{filepath.Join(s.BackupDir, e.Name()), info.ModTime()})
	}
	if len(files) <= s.MaxBackups {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	excess := len(files) - s.MaxBackups
	for _, f := range files[:excess] {
		if err := os.Remove(f.path); err != nil {
			logging.Get(logging.CategorySwap).Warn("prune backup %s: %v", f.path, err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()|0o100)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
