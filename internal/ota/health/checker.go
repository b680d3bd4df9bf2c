// Package health implements the Health Checker (spec §4.12): a configurable
// suite of post-swap checks run with a shared deadline, grounded on the
// teacher's errgroup fan-out idiom (internal/autopoiesis) for the parallel
// check battery.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goose-run/goose-core/internal/logging"
)

// CheckResult is the outcome of one health check (spec §4.12).
type CheckResult struct {
	Name         string
	Passed       bool
	Message      string
	DurationSecs float64
}

func pass(name, message string, d time.Duration) CheckResult {
	return CheckResult{Name: name, Passed: true, Message: message, DurationSecs: d.Seconds()}
}

func fail(name, message string, d time.Duration) CheckResult {
	return CheckResult{Name: name, Passed: false, Message: message, DurationSecs: d.Seconds()}
}

// Report aggregates every check run in one pass.
type Report struct {
	Checks            []CheckResult
	Healthy           bool
	CheckedAt         time.Time
	TotalDurationSecs float64
	Summary           string
}

func newReport(checks []CheckResult) Report {
	healthy := true
	var total float64
	var failed []string
	passedCount := 0
	for _, c := range checks {
		total += c.DurationSecs
		if c.Passed {
			passedCount++
		} else {
			healthy = false
			failed = append(failed, c.Name)
		}
	}

	summary := fmt.Sprintf("All %d/%d health checks passed", passedCount, len(checks))
	if !healthy {
		summary = fmt.Sprintf("%d/%d checks passed, failed: %s", passedCount, len(checks), joinComma(failed))
	}

	return Report{
		Checks:            checks,
		Healthy:           healthy,
		CheckedAt:         time.Now(),
		TotalDurationSecs: total,
		Summary:           summary,
	}
}

func joinComma(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += ", "
		}
		out += x
	}
	return out
}

// Config controls which checks run (spec §4.12; the cargo/go-test-subset
// check is optional and config-gated, carried from the original's
// `if self.config.run_tests` per SPEC_FULL §C).
type Config struct {
	BinaryPath    string
	WorkspacePath string
	RunTests      bool
	CheckVersion  bool
	CheckAPI      bool
	APIURL        string
	CheckTimeout  time.Duration
	TestPackage   string
}

// Minimal returns a config that checks binary existence/size and runs the
// binary with --version; tests and the API probe stay off.
func Minimal(binaryPath string) Config {
	return Config{
		BinaryPath:   binaryPath,
		WorkspacePath: ".",
		CheckVersion: true,
		CheckTimeout: 30 * time.Second,
	}
}

// Full returns a config with the binary, version and test-subset checks
// enabled; the API probe stays off (CheckAPI is false).
func Full(binaryPath, workspacePath string) Config {
	return Config{
		BinaryPath:    binaryPath,
		WorkspacePath: workspacePath,
		RunTests:      true,
		CheckVersion:  true,
		CheckTimeout:  120 * time.Second,
		TestPackage:   "./...",
	}
}

// Checker runs the configured health-check suite.
type Checker struct {
	config Config
}

// New creates a Checker for the given config.
func New(config Config) *Checker {
	return &Checker{config: config}
}

// Config returns the checker's configuration.
func (c *Checker) Config() Config { return c.config }

// RunAll runs every configured check concurrently with a shared deadline
// (spec §5 "Health Checker's check battery (parallel checks with shared
// deadline)"), via errgroup.
func (c *Checker) RunAll(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks []CheckResult
	)
	add := func(r CheckResult) {
		mu.Lock()
		checks = append(checks, r)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { add(c.checkBinaryExists()); return nil })
	g.Go(func() error { add(c.checkBinarySize()); return nil })

	if c.config.CheckVersion {
		g.Go(func() error { add(c.checkBinaryVersion(gctx)); return nil })
	}
	if c.config.RunTests {
		g.Go(func() error { add(c.checkTestSubset(gctx)); return nil })
	}
	if c.config.CheckAPI {
		g.Go(func() error { add(c.checkAPIHealth(gctx)); return nil })
	}

	_ = g.Wait()

	report := newReport(checks)
	if report.Healthy {
		logging.Get(logging.CategoryHealth).Info("health check passed: %s", report.Summary)
	} else {
		logging.Get(logging.CategoryHealth).Error("health check FAILED: %s", report.Summary)
	}
	return report
}

func (c *Checker) checkBinaryExists() CheckResult {
	start := time.Now()
	if _, err := os.Stat(c.config.BinaryPath); err != nil {
		return fail("binary_exists", fmt.Sprintf("binary not found: %s", c.config.BinaryPath), time.Since(start))
	}
	return pass("binary_exists", fmt.Sprintf("binary found at: %s", c.config.BinaryPath), time.Since(start))
}

func (c *Checker) checkBinarySize() CheckResult {
	start := time.Now()
	info, err := os.Stat(c.config.BinaryPath)
	if err != nil {
		return fail("binary_size", fmt.Sprintf("cannot read binary metadata: %v", err), time.Since(start))
	}
	size := info.Size()
	switch {
	case size < 1024:
		return fail("binary_size", fmt.Sprintf("binary too small: %d bytes", size), time.Since(start))
	case size > 1<<30:
		return fail("binary_size", fmt.Sprintf("binary suspiciously large: %d bytes", size), time.Since(start))
	default:
		return pass("binary_size", fmt.Sprintf("binary size OK: %d bytes", size), time.Since(start))
	}
}

func (c *Checker) checkBinaryVersion(ctx context.Context) CheckResult {
	start := time.Now()
	timeout := c.config.CheckTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, c.config.BinaryPath, "--version").CombinedOutput()
	if err != nil {
		return fail("binary_version", fmt.Sprintf("failed to execute binary: %v", err), time.Since(start))
	}
	return pass("binary_version", fmt.Sprintf("version output: %s", trim(string(out))), time.Since(start))
}

func (c *Checker) checkTestSubset(ctx context.Context) CheckResult {
	start := time.Now()
	timeout := c.config.CheckTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"test"}
	if c.config.TestPackage != "" {
		args = append(args, c.config.TestPackage)
	} else {
		args = append(args, "./...")
	}

	cmd := exec.CommandContext(runCtx, "go", args...)
	cmd.Dir = c.config.WorkspacePath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fail("test_subset", fmt.Sprintf("tests failed: %s", lastLine(string(out))), time.Since(start))
	}
	return pass("test_subset", "all tests passed", time.Since(start))
}

func (c *Checker) checkAPIHealth(ctx context.Context) CheckResult {
	start := time.Now()
	url := c.config.APIURL
	if url == "" {
		port := os.Getenv("GOOSE_SERVER__PORT")
		if port == "" {
			port = "3284"
		}
		url = fmt.Sprintf("http://localhost:%s/health", port)
	}

	timeout := c.config.CheckTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fail("api_health", fmt.Sprintf("invalid API URL: %v", err), time.Since(start))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fail("api_health", fmt.Sprintf("API unreachable: %v", err), time.Since(start))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return pass("api_health", fmt.Sprintf("API responded with status %d", resp.StatusCode), time.Since(start))
	}
	return fail("api_health", fmt.Sprintf("API returned status %d", resp.StatusCode), time.Since(start))
}

func trim(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

func lastLine(s string) string {
	last := s
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' && i != len(s)-1 {
			last = s[i+1:]
			break
		}
	}
	return trim(last)
}
