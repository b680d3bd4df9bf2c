// Package safety implements the Safety Envelope (spec §4.16): invariant
// checks wrapping every self-modification operation, ported from the
// original Rust SafetyEnvelope (ota/safety_envelope.rs) with Cargo/lib.rs
// invariants adapted to their go.mod/go.sum equivalents.
package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
)

// InvariantType identifies what kind of invariant was checked.
type InvariantType string

const (
	InvariantFileExists      InvariantType = "file_exists"
	InvariantModuleValid     InvariantType = "module_valid"
	InvariantTestCountStable InvariantType = "test_count_stable"
	InvariantBinaryRunnable  InvariantType = "binary_runnable"
	InvariantConfigValid     InvariantType = "config_valid"
	InvariantNoRegressions   InvariantType = "no_regressions"
)

// Result is the outcome of a single invariant check.
type Result struct {
	InvariantType InvariantType
	Passed        bool
	Message       string
	CheckedAt     time.Time
}

// Pass builds a passing Result.
func Pass(t InvariantType, message string) Result {
	return Result{InvariantType: t, Passed: true, Message: message, CheckedAt: time.Now()}
}

// Fail builds a failing Result.
func Fail(t InvariantType, message string) Result {
	return Result{InvariantType: t, Passed: false, Message: message, CheckedAt: time.Now()}
}

// Report aggregates the outcome of running every invariant check.
type Report struct {
	Results   []Result
	AllPassed bool
	CheckedAt time.Time
	Summary   string
}

// FromResults builds a Report from a list of invariant results.
func FromResults(results []Result) Report {
	allPassed := true
	passedCount := 0
	var failed []string
	for _, r := range results {
		if r.Passed {
			passedCount++
		} else {
			allPassed = false
			failed = append(failed, string(r.InvariantType))
		}
	}

	var summary string
	if allPassed {
		summary = fmt.Sprintf("All %d/%d invariants passed", passedCount, len(results))
	} else {
		summary = fmt.Sprintf("%d/%d passed, FAILED: %s", passedCount, len(results), strings.Join(failed, ", "))
	}

	return Report{Results: results, AllPassed: allPassed, CheckedAt: time.Now(), Summary: summary}
}

// PassedCount returns how many checks passed.
func (r Report) PassedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

// FailedCount returns how many checks failed.
func (r Report) FailedCount() int {
	return len(r.Results) - r.PassedCount()
}

// Envelope wraps all self-modification operations with invariant checks
// (spec §4.16).
type Envelope struct {
	mu             sync.Mutex
	workspaceRoot  string
	requiredFiles  []string
	minTestCount   int
	lastReport     *Report
}

// New creates a safety envelope rooted at workspaceRoot with the default
// required files and test-count baseline.
func New(workspaceRoot string) *Envelope {
	return &Envelope{
		workspaceRoot: workspaceRoot,
		requiredFiles: []string{"go.mod", "go.sum", "internal/logging/logger.go"},
		minTestCount:  1,
	}
}

// CheckAll checks that every required file exists and that go.mod is valid,
// and produces a safety report (spec §4.16). The test-count and regression
// checks take counts from the caller and are not part of it.
func (e *Envelope) CheckAll() Report {
	e.mu.Lock()
	files := append([]string(nil), e.requiredFiles...)
	e.mu.Unlock()

	var results []Result
	for _, f := range files {
		results = append(results, e.CheckFileExists(f))
	}
	results = append(results, e.CheckModuleValid())

	report := FromResults(results)
	if report.AllPassed {
		logging.Get(logging.CategorySafety).Info("safety envelope: all invariants passed (%s)", report.Summary)
	} else {
		logging.Get(logging.CategorySafety).Error("safety envelope: invariant FAILURE (%s)", report.Summary)
	}

	e.mu.Lock()
	e.lastReport = &report
	e.mu.Unlock()
	return report
}

// CheckFileExists checks whether path exists relative to the workspace root.
func (e *Envelope) CheckFileExists(path string) Result {
	full := filepath.Join(e.workspaceRoot, path)
	if _, err := os.Stat(full); err == nil {
		return Pass(InvariantFileExists, fmt.Sprintf("file exists: %s", path))
	}
	return Fail(InvariantFileExists, fmt.Sprintf("file MISSING: %s", path))
}

// CheckModuleValid checks that go.mod exists, is non-empty, and has a
// `module` directive — the Go analog of the original's Cargo.toml
// `[package]`/`[workspace]` section check.
func (e *Envelope) CheckModuleValid() Result {
	path := filepath.Join(e.workspaceRoot, "go.mod")
	contents, err := os.ReadFile(path)
	if err != nil {
		return Fail(InvariantModuleValid, fmt.Sprintf("cannot read go.mod: %v", err))
	}
	if strings.TrimSpace(string(contents)) == "" {
		logging.Get(logging.CategorySafety).Warn("go.mod is empty")
		return Fail(InvariantModuleValid, "go.mod is empty")
	}
	if strings.Contains(string(contents), "module ") {
		return Pass(InvariantModuleValid, "go.mod is readable and declares a module")
	}
	logging.Get(logging.CategorySafety).Warn("go.mod missing module directive")
	return Fail(InvariantModuleValid, "go.mod missing module directive")
}

// CheckTestCountStable checks that the current test count is at or above the
// baseline.
func (e *Envelope) CheckTestCountStable(currentCount int) Result {
	e.mu.Lock()
	min := e.minTestCount
	e.mu.Unlock()
	if currentCount >= min {
		return Pass(InvariantTestCountStable, fmt.Sprintf("test count %d >= baseline %d", currentCount, min))
	}
	return Fail(InvariantTestCountStable, fmt.Sprintf("test count %d BELOW baseline %d", currentCount, min))
}

// CheckNoRegressions checks that after >= before.
func (e *Envelope) CheckNoRegressions(before, after int) Result {
	if after >= before {
		return Pass(InvariantNoRegressions, fmt.Sprintf("no regressions: %d -> %d", before, after))
	}
	lost := before - after
	return Fail(InvariantNoRegressions, fmt.Sprintf("REGRESSION: %d -> %d (%d tests lost)", before, after, lost))
}

// LastReport returns the most recently generated safety report, if any.
func (e *Envelope) LastReport() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

// IsSafeToProceed reports whether the last report had every invariant pass.
// Returns false if no report has been generated yet (spec §4.16).
func (e *Envelope) IsSafeToProceed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport != nil && e.lastReport.AllPassed
}

// WorkspaceRoot returns the envelope's workspace root.
func (e *Envelope) WorkspaceRoot() string { return e.workspaceRoot }

// MinTestCount returns the configured test-count baseline.
func (e *Envelope) MinTestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.minTestCount
}

// SetMinTestCount overrides the test-count baseline.
func (e *Envelope) SetMinTestCount(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.minTestCount = n
}

// SetRequiredFiles overrides the set of files CheckAll verifies exist.
func (e *Envelope) SetRequiredFiles(files []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requiredFiles = files
}
