// Package rollback implements the Rollback Manager (spec §4.13): it tracks a
// stack of update attempts and can undo the most recent one by restoring the
// previous binary (via the Binary Swapper, reversed). The entry's saved
// state snapshot is only checked to be loadable through the State Saver; its
// contents are not applied.
package rollback

import (
	"fmt"
	"sync"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
	"github.com/goose-run/goose-core/internal/ota/state"
	"github.com/goose-run/goose-core/internal/ota/swap"
)

// Entry records one completed update attempt available for rollback.
type Entry struct {
	SnapshotID   string
	PreviousBin  string // backup path the swapper wrote before installing this version
	ActivePath   string
	Version      string
	RecordedAt   time.Time
}

// Record describes the outcome of a rollback attempt.
type Record struct {
	Entry     Entry
	Success   bool
	Error     string
	RolledAt  time.Time
}

// Manager tracks the rollback stack and performs rollbacks.
type Manager struct {
	mu      sync.Mutex
	stack   []Entry
	swapper *swap.Swapper
	saver   *state.Saver
	history []Record
}

// New creates a rollback Manager backed by the given Swapper/Saver.
func New(swapper *swap.Swapper, saver *state.Saver) *Manager {
	return &Manager{swapper: swapper, saver: saver}
}

// Push records a completed update attempt so it becomes a rollback
// candidate. Called by the OTA Manager right after a successful swap.
func (m *Manager) Push(e Entry) {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	m.mu.Lock()
	m.stack = append(m.stack, e)
	m.mu.Unlock()
	logging.Get(logging.CategoryRollback).Info("pushed rollback entry for version %s", e.Version)
}

// CanRollback reports whether there is an entry to roll back to (spec §4.13).
func (m *Manager) CanRollback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stack) > 0
}

// Rollback undoes the most recent update: it copies the previous binary back
// over the active path and, when the entry names a snapshot, checks that the
// State Saver can still load it; the snapshot's contents are not applied. The
// entry is popped from the stack whether or not the rollback succeeds, since
// a failed rollback should not be retried against the same candidate.
func (m *Manager) Rollback() Record {
	m.mu.Lock()
	if len(m.stack) == 0 {
		m.mu.Unlock()
		return Record{Error: "no rollback candidate available", RolledAt: time.Now()}
	}
	entry := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	m.mu.Unlock()

	rec := Record{Entry: entry, RolledAt: time.Now()}

	if entry.PreviousBin == "" {
		rec.Error = "no previous binary recorded for this entry"
		logging.Get(logging.CategoryRollback).Error("%s", rec.Error)
		m.recordHistory(rec)
		return rec
	}

	// Reverse swap: treat the backup as the candidate being installed back
	// over active. Binary Swapper itself keeps a fresh backup of whatever
	// we're rolling back from, so a rollback is itself rollback-able.
	swapRec := m.swapper.Swap(entry.ActivePath, entry.PreviousBin)
	if !swapRec.Success {
		rec.Error = fmt.Sprintf("failed to restore previous binary: %s", swapRec.Error)
		logging.Get(logging.CategoryRollback).Error("%s", rec.Error)
		m.recordHistory(rec)
		return rec
	}

	if entry.SnapshotID != "" && m.saver != nil {
		if _, err := m.saver.LoadSnapshot(entry.SnapshotID); err != nil {
			rec.Error = fmt.Sprintf("binary restored but snapshot %s unavailable: %v", entry.SnapshotID, err)
			logging.Get(logging.CategoryRollback).Warn("%s", rec.Error)
			m.recordHistory(rec)
			return rec
		}
	}

	rec.Success = true
	logging.Get(logging.CategoryRollback).Info("rolled back from version %s", entry.Version)
	m.recordHistory(rec)
	return rec
}

// History returns every rollback attempt made so far, most recent last.
func (m *Manager) History() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) recordHistory(rec Record) {
	m.mu.Lock()
	m.history = append(m.history, rec)
	m.mu.Unlock()
}
