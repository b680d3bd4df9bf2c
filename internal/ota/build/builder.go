// Package build implements the Self Builder (spec §4.10): it compiles a
// candidate binary from the workspace so the OTA Manager can hand it to the
// Binary Swapper, grounded on the subprocess-execution idiom of the
// teacher's internal/tactile.DirectExecutor (combined output capture,
// deadline-bounded exec.CommandContext).
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
)

// Request describes a build to perform (spec §4.10 "{package, profile,
// extra_args}").
type Request struct {
	WorkspaceRoot string
	Package       string
	Profile       string
	ExtraArgs     []string
	Timeout       time.Duration
}

// Result is the outcome of a build attempt. Failure is reported as
// Success=false with Error populated, never as a returned Go error, so the
// OTA Manager can move straight to Failed without special-casing a panic or
// an error path.
type Result struct {
	Success    bool
	BinaryPath string
	GitHash    string
	Output     string
	ExitCode   int
	Duration   time.Duration
	Error      string
}

// Builder compiles a candidate binary.
type Builder struct {
	goBin string
}

// New creates a Builder. goBin defaults to "go" on the PATH.
func New() *Builder {
	return &Builder{goBin: "go"}
}

// Build runs the preflight checks named in spec §4.10, then builds. A
// preflight failure returns Success=false without ever spawning a
// subprocess.
func (b *Builder) Build(ctx context.Context, req Request) Result {
	start := time.Now()

	if err := b.preflight(req); err != nil {
		return Result{Success: false, Error: err.Error(), Duration: time.Since(start)}
	}

	binaryPath := b.derivedBinaryPath(req)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	args := []string{"build", "-o", binaryPath}
	args = append(args, req.ExtraArgs...)
	if req.Package != "" {
		args = append(args, req.Package)
	}

	output, exitCode, timedOut, err := runCommand(ctx, timeout, b.goBin, args, req.WorkspaceRoot)
	duration := time.Since(start)

	if timedOut {
		logging.Get(logging.CategoryBuild).Error("build timed out after %s", timeout)
		return Result{
			Success:  false,
			Output:   output,
			Duration: duration,
			Error:    fmt.Sprintf("build timed out after %s", timeout),
		}
	}

	if err != nil {
		logging.Get(logging.CategoryBuild).Warn("build failed: %v", err)
		return Result{
			Success:  false,
			Output:   output,
			ExitCode: exitCode,
			Duration: duration,
			Error:    err.Error(),
			GitHash:  gitHash(req.WorkspaceRoot),
		}
	}

	logging.Get(logging.CategoryBuild).Info("build succeeded: %s (%s)", binaryPath, duration)
	return Result{
		Success:    true,
		BinaryPath: binaryPath,
		GitHash:    gitHash(req.WorkspaceRoot),
		Output:     output,
		Duration:   duration,
	}
}

// runCommand runs name+args in dir, bounded by timeout, capturing combined
// stdout/stderr. timedOut is true only when the deadline, not the process
// itself, ended the run.
func runCommand(ctx context.Context, timeout time.Duration, name string, args []string, dir string) (output string, exitCode int, timedOut bool, err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	runErr := cmd.Run()
	output = combined.String()

	if runCtx.Err() == context.DeadlineExceeded {
		return output, -1, true, runCtx.Err()
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return output, exitErr.ExitCode(), false, runErr
		}
		return output, -1, false, runErr
	}
	return output, 0, false, nil
}

// preflight checks the workspace root exists, a package manifest is
// present, and the toolchain is reachable (spec §4.10).
func (b *Builder) preflight(req Request) error {
	if req.WorkspaceRoot == "" {
		return fmt.Errorf("build: workspace root required")
	}
	info, err := os.Stat(req.WorkspaceRoot)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("build: workspace root %s does not exist", req.WorkspaceRoot)
	}
	if _, err := os.Stat(filepath.Join(req.WorkspaceRoot, "go.mod")); err != nil {
		return fmt.Errorf("build: no go.mod in workspace root %s", req.WorkspaceRoot)
	}
	if _, err := exec.LookPath(b.goBin); err != nil {
		return fmt.Errorf("build: toolchain %q not reachable: %w", b.goBin, err)
	}
	return nil
}

// Plan computes what Build would produce for req without invoking the Go
// toolchain: the derived binary path and a best-effort git hash. The OTA
// Manager's dry run uses this to report a successful build_result without
// compiling anything (spec §4.18 "state capture + build-argument computation
// only").
func (b *Builder) Plan(req Request) Result {
	return Result{
		Success:    true,
		BinaryPath: b.derivedBinaryPath(req),
		GitHash:    gitHash(req.WorkspaceRoot),
	}
}

// derivedBinaryPath derives the output path from package + profile, so a
// build of ./cmd/foo in "release" profile lands at bin/release/foo.
func (b *Builder) derivedBinaryPath(req Request) string {
	profile := req.Profile
	if profile == "" {
		profile = "debug"
	}
	name := filepath.Base(req.Package)
	if name == "." || name == "" {
		name = "goose-core"
	}
	return filepath.Join(req.WorkspaceRoot, "bin", profile, name)
}

// gitHash shells out to "git rev-parse HEAD" best-effort; failures (e.g. no
// .git directory) are swallowed, matching the original's never-fail-the-
// build-on-missing-.git behavior (SPEC_FULL §C).
func gitHash(workspaceRoot string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = workspaceRoot
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
