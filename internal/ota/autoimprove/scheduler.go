// Package autoimprove implements the Auto-Improve Scheduler (spec §4.17):
// the gatekeeper and bookkeeper of the self-improvement loop. It decides
// whether a cycle may start (enabled, cooldown, circuit breaker) and whether
// a risk level or file is acceptable, and records each cycle's status and
// test results; the steps of a cycle are run by the caller. Ported from the original Rust AutoImproveScheduler
// (ota/auto_improve.rs). The consecutive-failure circuit breaker is wired to
// sony/gobreaker rather than the original's hand-rolled counter, following
// the circuit-breaker-manager pattern used elsewhere in the pack for
// threshold-tripped halting of a retried operation.
package autoimprove

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/goose-run/goose-core/internal/logging"
)

// Config controls the thresholds, allowlists, and risk ceiling the scheduler
// enforces. Disabled by default (spec §4.17 "Safety: disabled by default").
type Config struct {
	Enabled                   bool
	MinExperiencesBeforeImprove int
	MaxImprovementsPerCycle   int
	MaxRiskLevel              string
	RequireTestPass           bool
	RequireBuildPass          bool
	Cooldown                  time.Duration
	AllowedFilePatterns       []string
	BlockedFilePatterns       []string
}

// DefaultConfig returns the scheduler's safe defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                   false,
		MinExperiencesBeforeImprove: 50,
		MaxImprovementsPerCycle:   3,
		MaxRiskLevel:              "medium",
		RequireTestPass:           true,
		RequireBuildPass:          true,
		Cooldown:                  time.Hour,
		AllowedFilePatterns: []string{
			"internal/core/",
			"internal/ota/",
		},
		BlockedFilePatterns: []string{
			"go.mod", "go.sum", "main.go", "mod.go",
		},
	}
}

// CycleStatus tracks where an improvement cycle is in its lifecycle.
type CycleStatus string

const (
	StatusPending       CycleStatus = "pending"
	StatusRunning       CycleStatus = "running"
	StatusTestingBefore CycleStatus = "testing_before"
	StatusApplying      CycleStatus = "applying"
	StatusTestingAfter  CycleStatus = "testing_after"
	StatusVerifying     CycleStatus = "verifying"
	StatusCompleted     CycleStatus = "completed"
	StatusFailed        CycleStatus = "failed"
	StatusRolledBack    CycleStatus = "rolled_back"
)

// TestSummary is the outcome of one build-and-test pass.
type TestSummary struct {
	Total         int
	Passed        int
	Failed        int
	KnownFailures int
}

// IsAcceptable reports whether every failure was already known/expected.
func (s TestSummary) IsAcceptable() bool { return s.Failed <= s.KnownFailures }

// PassRate returns the pass percentage, 0 when Total is 0.
func (s TestSummary) PassRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total) * 100
}

// Cycle records one improvement attempt end to end.
type Cycle struct {
	ID                      string
	StartedAt               time.Time
	CompletedAt             *time.Time
	Status                  CycleStatus
	ImprovementsAttempted   int
	ImprovementsApplied     int
	ImprovementsVerified    int
	ImprovementsRolledBack  int
	TestResultBefore        *TestSummary
	TestResultAfter         *TestSummary
	Summary                 string
}

// NewCycle creates a fresh cycle in Pending status.
func NewCycle() *Cycle {
	return &Cycle{ID: uuid.NewString(), StartedAt: time.Now(), Status: StatusPending}
}

// DurationSecs returns the cycle's wall-clock duration, or nil if still running.
func (c *Cycle) DurationSecs() *float64 {
	if c.CompletedAt == nil {
		return nil
	}
	d := c.CompletedAt.Sub(c.StartedAt).Seconds()
	return &d
}

func riskRank(level string) int {
	switch strings.ToLower(level) {
	case "low":
		return 1
	case "medium":
		return 2
	case "high":
		return 3
	case "critical":
		return 4
	default:
		return 5
	}
}

// Scheduler orchestrates improvement cycles with cooldowns, a circuit
// breaker, file allowlists, and a risk ceiling (spec §4.17).
type Scheduler struct {
	mu      sync.Mutex
	config  Config
	cycles  []*Cycle
	breaker *gobreaker.CircuitBreaker

	lastCycleAt                 *time.Time
	totalImprovementsApplied    int
	totalImprovementsRolledBack int
	enabled                     bool

	// consecutiveFailures and tripped are the authoritative trip state
	// (spec §4.17/§8: "must be reset manually"). gobreaker itself is still
	// exercised via Execute for its own Open/Half-Open bookkeeping and
	// logging, but its Counts()/State() reset on the Open->Half-Open
	// generation change once Timeout elapses, so CanRunCycle cannot rely on
	// them: that would let the cooldown silently clear a trip. These two
	// fields persist across cooldowns until ResetCircuitBreaker is called.
	consecutiveFailures int
	tripped             bool
}

// New creates a scheduler from config, wiring a gobreaker circuit breaker
// that trips after 3 consecutive failures (spec §4.17 "circuit breaker: 3
// failures in a row halts all cycles"). gobreaker's own Timeout-driven
// Half-Open recovery is cosmetic here: the explicit consecutiveFailures
// counter below is what actually gates CanRunCycle, so a trip survives the
// cooldown and requires ResetCircuitBreaker.
func New(config Config) *Scheduler {
	s := &Scheduler{config: config, enabled: config.Enabled}
	s.breaker = newBreaker(config)
	return s
}

func newBreaker(config Config) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "auto-improve",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Get(logging.CategoryAutoImprove).Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// Default creates a scheduler with the default configuration.
func Default() *Scheduler { return New(DefaultConfig()) }

// Config returns the active configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// IsEnabled reports whether the scheduler will run cycles.
func (s *Scheduler) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Enable turns the scheduler on.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	logging.Get(logging.CategoryAutoImprove).Info("auto-improve scheduler enabled")
}

// Disable turns the scheduler off.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
	logging.Get(logging.CategoryAutoImprove).Info("auto-improve scheduler disabled")
}

// CanRunCycle reports whether a new cycle may start: the scheduler must be
// enabled, the circuit breaker must not be open, and the cooldown since the
// last cycle must have elapsed (spec §4.17).
func (s *Scheduler) CanRunCycle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return false
	}
	if s.tripped {
		logging.Get(logging.CategoryAutoImprove).Warn("circuit breaker tripped, cycle blocked until reset")
		return false
	}
	if s.lastCycleAt != nil && time.Since(*s.lastCycleAt) < s.config.Cooldown {
		return false
	}
	return true
}

// StartCycle begins a new improvement cycle in Running status.
func (s *Scheduler) StartCycle() *Cycle {
	c := NewCycle()
	c.Status = StatusRunning
	logging.Get(logging.CategoryAutoImprove).Info("started improvement cycle %s", c.ID)
	return c
}

// CompleteCycle finishes a cycle, updates statistics, and feeds the outcome
// into the circuit breaker.
func (s *Scheduler) CompleteCycle(c *Cycle, success bool) {
	now := time.Now()
	c.CompletedAt = &now

	s.mu.Lock()
	s.lastCycleAt = &now
	s.mu.Unlock()

	_, _ = s.breaker.Execute(func() (interface{}, error) {
		if success {
			return nil, nil
		}
		return nil, fmt.Errorf("cycle %s failed", c.ID)
	})

	if success {
		c.Status = StatusCompleted
		s.mu.Lock()
		s.totalImprovementsApplied += c.ImprovementsApplied
		s.consecutiveFailures = 0
		s.mu.Unlock()
		logging.Get(logging.CategoryAutoImprove).Info("cycle %s completed, applied=%d", c.ID, c.ImprovementsApplied)
	} else {
		c.Status = StatusFailed
		s.mu.Lock()
		s.totalImprovementsRolledBack += c.ImprovementsRolledBack
		s.consecutiveFailures++
		if s.consecutiveFailures >= 3 {
			s.tripped = true
			logging.Get(logging.CategoryAutoImprove).Warn("circuit breaker tripped: %d consecutive failures, manual reset required", s.consecutiveFailures)
		}
		s.mu.Unlock()
		logging.Get(logging.CategoryAutoImprove).Warn("cycle %s failed", c.ID)
	}

	s.mu.Lock()
	s.cycles = append(s.cycles, c)
	s.mu.Unlock()
}

// RecordTestBefore attaches baseline test results to a cycle.
func (s *Scheduler) RecordTestBefore(c *Cycle, summary TestSummary) {
	c.Status = StatusTestingBefore
	c.TestResultBefore = &summary
}

// RecordTestAfter attaches post-change test results to a cycle.
func (s *Scheduler) RecordTestAfter(c *Cycle, summary TestSummary) {
	c.Status = StatusTestingAfter
	c.TestResultAfter = &summary
}

// IsRiskAcceptable reports whether riskLevel ranks at or below the
// configured ceiling.
func (s *Scheduler) IsRiskAcceptable(riskLevel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return riskRank(riskLevel) <= riskRank(s.config.MaxRiskLevel)
}

// IsFileAllowed reports whether filePath may be modified: blocked patterns
// always win; an empty allowlist permits everything else (spec §4.17).
func (s *Scheduler) IsFileAllowed(filePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, blocked := range s.config.BlockedFilePatterns {
		if strings.Contains(filePath, blocked) {
			return false
		}
	}
	if len(s.config.AllowedFilePatterns) == 0 {
		return true
	}
	for _, allowed := range s.config.AllowedFilePatterns {
		if strings.HasPrefix(filePath, allowed) {
			return true
		}
	}
	return false
}

// ConsecutiveFailures returns the circuit breaker's current failure streak.
// This is the explicit counter, not gobreaker.Counts(): gobreaker zeroes its
// own counts when the breaker moves from Open to Half-Open, which would
// otherwise make the streak unobservable the moment the trip is most
// relevant.
func (s *Scheduler) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

// CircuitBreakerTripped reports whether the breaker is tripped. Unlike
// gobreaker's own State(), this stays true across the configured cooldown:
// only ResetCircuitBreaker clears it (spec §4.17 "must be reset manually").
func (s *Scheduler) CircuitBreakerTripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripped
}

// ResetCircuitBreaker clears the failure streak and the trip, the only
// sanctioned way to resume cycles after 3 consecutive failures (spec §4.17,
// ported from the original's reset_circuit_breaker()). It also rebuilds the
// underlying gobreaker so its internal counts and state start fresh too.
func (s *Scheduler) ResetCircuitBreaker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	s.tripped = false
	s.breaker = newBreaker(s.config)
	logging.Get(logging.CategoryAutoImprove).Info("circuit breaker reset")
}

// History returns every recorded cycle, most recent last.
func (s *Scheduler) History() []*Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Cycle, len(s.cycles))
	copy(out, s.cycles)
	return out
}

// StatsSummary renders a human-readable snapshot of lifetime statistics.
func (s *Scheduler) StatsSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := "ok"
	if s.tripped {
		state = "TRIPPED"
	}
	return fmt.Sprintf(
		"AutoImproveScheduler: enabled=%v, cycles=%d, applied=%d, rolled_back=%d, circuit_breaker=%s",
		s.enabled, len(s.cycles), s.totalImprovementsApplied, s.totalImprovementsRolledBack, state,
	)
}
