package experience

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"
	"github.com/goose-run/goose-core/internal/coreops"
	"github.com/goose-run/goose-core/internal/logging"
)

// Store is the SQLite-backed, cross-session Experience Store. Indexed by
// (category, core_type) and recency, as required by spec §4.3. Safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New opens (creating if needed) the experience database at path. Pass
// ":memory:" for an ephemeral in-process store, used by tests and by
// callers that don't want persistence across restarts.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryExperience, "New")
	defer timer.Stop()

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("experience: create dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("experience: open db: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Get(logging.CategoryExperience).Info("experience store opened at %s", path)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS experiences (
	id TEXT PRIMARY KEY,
	task TEXT NOT NULL,
	core_type TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	turns_used INTEGER NOT NULL,
	cost_dollars REAL NOT NULL,
	time_ms INTEGER NOT NULL,
	category TEXT NOT NULL,
	insights_json TEXT NOT NULL DEFAULT '[]',
	tags_json TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_experiences_core_type ON experiences(core_type);
CREATE INDEX IF NOT EXISTS idx_experiences_category ON experiences(category);
CREATE INDEX IF NOT EXISTS idx_experiences_created_at ON experiences(created_at);
CREATE INDEX IF NOT EXISTS idx_experiences_category_core ON experiences(category, core_type);
`

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("experience: init schema: %w", err)
	}
	return nil
}

// Store appends an experience, upserting by id. Timestamps are stored as
// seconds since epoch (spec §4.3 schema invariant).
func (s *Store) Store(e Experience) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	insightsJSON, err := json.Marshal(e.Insights)
	if err != nil {
		return fmt.Errorf("experience: marshal insights: %w", err)
	}
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("experience: marshal tags: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO experiences (id, task, core_type, succeeded, turns_used, cost_dollars, time_ms, category, insights_json, tags_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task=excluded.task, core_type=excluded.core_type, succeeded=excluded.succeeded,
			turns_used=excluded.turns_used, cost_dollars=excluded.cost_dollars, time_ms=excluded.time_ms,
			category=excluded.category, insights_json=excluded.insights_json, tags_json=excluded.tags_json,
			created_at=excluded.created_at`,
		e.ID, e.Task, string(e.CoreType), boolToInt(e.Succeeded), e.TurnsUsed, e.CostDollars, e.TimeMs,
		e.Category, string(insightsJSON), string(tagsJSON), e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("experience: store: %w", err)
	}
	logging.Get(logging.CategoryExperience).Debug("stored experience %s core=%s category=%s succeeded=%v", e.ID, e.CoreType, e.Category, e.Succeeded)
	return nil
}

// Record is a convenience wrapper around Store; returns the new id.
func (s *Store) Record(task string, core coreops.Variant, success bool, turns uint32, costDollars float64, timeMs uint64, category string) (string, error) {
	e := Experience{
		ID:          uuid.NewString(),
		Task:        task,
		CoreType:    core,
		Succeeded:   success,
		TurnsUsed:   turns,
		CostDollars: costDollars,
		TimeMs:      timeMs,
		Category:    category,
		CreatedAt:   time.Now(),
	}
	if err := s.Store(e); err != nil {
		return "", err
	}
	return e.ID, nil
}

// Count returns the total number of stored experiences.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM experiences`).Scan(&n); err != nil {
		return 0, fmt.Errorf("experience: count: %w", err)
	}
	return n, nil
}

// Clear deletes every experience. Explicit-only pruning per spec §3.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM experiences`); err != nil {
		return fmt.Errorf("experience: clear: %w", err)
	}
	logging.Get(logging.CategoryExperience).Info("cleared experience store")
	return nil
}

// Recent returns the most recently created experiences, most recent first.
func (s *Store) Recent(limit int) ([]Experience, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, task, core_type, succeeded, turns_used, cost_dollars, time_ms, category, insights_json, tags_json, created_at
		FROM experiences ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("experience: recent: %w", err)
	}
	defer rows.Close()
	return scanExperiences(rows)
}

func scanExperiences(rows *sql.Rows) ([]Experience, error) {
	var out []Experience
	for rows.Next() {
		var e Experience
		var coreType string
		var succeeded int
		var insightsJSON, tagsJSON string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Task, &coreType, &succeeded, &e.TurnsUsed, &e.CostDollars, &e.TimeMs,
			&e.Category, &insightsJSON, &tagsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("experience: scan: %w", err)
		}
		e.CoreType = coreops.Variant(coreType)
		e.Succeeded = succeeded != 0
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		_ = json.Unmarshal([]byte(insightsJSON), &e.Insights)
		_ = json.Unmarshal([]byte(tagsJSON), &e.Tags)
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// FindRelevant retrieves experiences scored by keyword overlap with task,
// keeping only words longer than 3 characters (spec §4.3): score is the
// count of case-insensitive substring matches against the experience's task,
// category, and tags (expanded per SPEC_FULL.md §C to include tags). Ordered
// by score desc, then recency.
func (s *Store) FindRelevant(task string, limit int) ([]Experience, error) {
	if limit <= 0 {
		limit = 10
	}
	words := relevantWords(task)
	if len(words) == 0 {
		return s.Recent(limit)
	}

	all, err := s.allExperiences()
	if err != nil {
		return nil, err
	}

	type scored struct {
		exp   Experience
		score int
	}
	results := make([]scored, 0, len(all))
	for _, e := range all {
		score := 0
		haystack := strings.ToLower(e.Task + " " + e.Category + " " + strings.Join(e.Tags, " "))
		for _, w := range words {
			score += strings.Count(haystack, w)
		}
		if score > 0 {
			results = append(results, scored{exp: e, score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].exp.CreatedAt.After(results[j].exp.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	out := make([]Experience, len(results))
	for i, r := range results {
		out[i] = r.exp
	}
	return out, nil
}

func relevantWords(task string) []string {
	fields := strings.Fields(strings.ToLower(task))
	var words []string
	for _, w := range fields {
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

func (s *Store) allExperiences() ([]Experience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, task, core_type, succeeded, turns_used, cost_dollars, time_ms, category, insights_json, tags_json, created_at FROM experiences`)
	if err != nil {
		return nil, fmt.Errorf("experience: query all: %w", err)
	}
	defer rows.Close()
	return scanExperiences(rows)
}
