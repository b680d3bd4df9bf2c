package autoimprove

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 50, cfg.MinExperiencesBeforeImprove)
	assert.Equal(t, 3, cfg.MaxImprovementsPerCycle)
	assert.Equal(t, "medium", cfg.MaxRiskLevel)
	assert.True(t, cfg.RequireTestPass)
	assert.True(t, cfg.RequireBuildPass)
	assert.NotEmpty(t, cfg.AllowedFilePatterns)
	assert.NotEmpty(t, cfg.BlockedFilePatterns)
}

func TestSchedulerStartsDisabled(t *testing.T) {
	s := Default()
	assert.False(t, s.IsEnabled())
	assert.Equal(t, 0, s.ConsecutiveFailures())
	assert.False(t, s.CircuitBreakerTripped())
	assert.Empty(t, s.History())
}

func TestEnableDisable(t *testing.T) {
	s := Default()
	s.Enable()
	assert.True(t, s.IsEnabled())
	s.Disable()
	assert.False(t, s.IsEnabled())
}

func TestCanRunCycleFalseWhenDisabled(t *testing.T) {
	s := Default()
	assert.False(t, s.CanRunCycle())
}

func TestCooldownBlocksImmediateRerun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = time.Hour
	s := New(cfg)
	s.Enable()

	c := s.StartCycle()
	s.CompleteCycle(c, true)

	assert.False(t, s.CanRunCycle(), "should not run again before cooldown elapses")
}

func TestCanRunAfterShortCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 10 * time.Millisecond
	s := New(cfg)
	s.Enable()

	c := s.StartCycle()
	s.CompleteCycle(c, true)

	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.CanRunCycle())
}

func TestStartCycleInitializesRunning(t *testing.T) {
	s := Default()
	s.Enable()
	c := s.StartCycle()
	assert.Equal(t, StatusRunning, c.Status)
	assert.NotEmpty(t, c.ID)
}

func TestCompleteCycleSuccess(t *testing.T) {
	s := Default()
	s.Enable()

	c := s.StartCycle()
	c.ImprovementsApplied = 2
	s.CompleteCycle(c, true)

	assert.Equal(t, StatusCompleted, c.Status)
	assert.NotNil(t, c.CompletedAt)
	assert.Equal(t, 0, s.ConsecutiveFailures())
	assert.Len(t, s.History(), 1)
	assert.Contains(t, s.StatsSummary(), "applied=2")
}

func TestCompleteCycleFailure(t *testing.T) {
	s := Default()
	s.Enable()

	c := s.StartCycle()
	c.ImprovementsRolledBack = 1
	s.CompleteCycle(c, false)

	assert.Equal(t, StatusFailed, c.Status)
	assert.Equal(t, 1, s.ConsecutiveFailures())
	assert.Contains(t, s.StatsSummary(), "rolled_back=1")
}

func TestCircuitBreakerTripsAfterThreeFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	s := New(cfg)
	s.Enable()

	for i := 0; i < 3; i++ {
		c := s.StartCycle()
		s.CompleteCycle(c, false)
	}

	assert.True(t, s.CircuitBreakerTripped())
	assert.False(t, s.CanRunCycle())
}

func TestCircuitBreakerStaysTrippedAcrossCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 10 * time.Millisecond
	s := New(cfg)
	s.Enable()

	for i := 0; i < 3; i++ {
		c := s.StartCycle()
		s.CompleteCycle(c, false)
	}
	require := assert.New(t)
	require.True(s.CircuitBreakerTripped())
	require.Equal(3, s.ConsecutiveFailures())

	time.Sleep(20 * time.Millisecond)

	assert.True(t, s.CircuitBreakerTripped(), "trip must survive cooldown elapsing, per the manual-reset invariant")
	assert.False(t, s.CanRunCycle())
	assert.Equal(t, 3, s.ConsecutiveFailures())
}

func TestResetCircuitBreakerClearsTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	s := New(cfg)
	s.Enable()

	for i := 0; i < 3; i++ {
		c := s.StartCycle()
		s.CompleteCycle(c, false)
	}
	assert.True(t, s.CircuitBreakerTripped())

	s.ResetCircuitBreaker()

	assert.False(t, s.CircuitBreakerTripped())
	assert.Equal(t, 0, s.ConsecutiveFailures())
	assert.True(t, s.CanRunCycle())
}

func TestRiskAcceptable(t *testing.T) {
	s := Default()
	assert.True(t, s.IsRiskAcceptable("low"))
	assert.True(t, s.IsRiskAcceptable("medium"))
	assert.False(t, s.IsRiskAcceptable("high"))
	assert.False(t, s.IsRiskAcceptable("critical"))
}

func TestFileAllowedAndBlocked(t *testing.T) {
	s := Default()
	assert.True(t, s.IsFileAllowed("internal/core/registry.go"))
	assert.True(t, s.IsFileAllowed("internal/ota/policy/policy.go"))
	assert.False(t, s.IsFileAllowed("go.mod"))
	assert.False(t, s.IsFileAllowed("internal/core/main.go"))
}

func TestFileOutsideAllowlistRejected(t *testing.T) {
	s := Default()
	assert.False(t, s.IsFileAllowed("internal/session/session.go"))
}

func TestRecordTestBeforeAfter(t *testing.T) {
	s := Default()
	c := NewCycle()

	before := TestSummary{Total: 100, Passed: 98, Failed: 2, KnownFailures: 2}
	s.RecordTestBefore(c, before)
	assert.Equal(t, StatusTestingBefore, c.Status)
	require := assert.New(t)
	require.NotNil(c.TestResultBefore)
	require.True(c.TestResultBefore.IsAcceptable())

	after := TestSummary{Total: 100, Passed: 99, Failed: 1, KnownFailures: 1}
	s.RecordTestAfter(c, after)
	assert.Equal(t, StatusTestingAfter, c.Status)
}

func TestSummaryPassRate(t *testing.T) {
	s := TestSummary{Total: 200, Passed: 190, Failed: 10, KnownFailures: 5}
	assert.InDelta(t, 95.0, s.PassRate(), 0.01)
	assert.False(t, s.IsAcceptable())
}

func TestSummaryZeroTotal(t *testing.T) {
	s := TestSummary{}
	assert.Equal(t, 0.0, s.PassRate())
	assert.True(t, s.IsAcceptable())
}
