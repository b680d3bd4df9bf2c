// Package ota implements the OTA Manager (spec §4.18): the top-level state
// machine orchestrating a self-update attempt across the Self Builder,
// Binary Swapper, Health Checker, Rollback Manager, State Saver, Policy
// Engine, and Safety Envelope.
package ota

import (
	"context"
	"fmt"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
	"github.com/goose-run/goose-core/internal/ota/build"
	"github.com/goose-run/goose-core/internal/ota/health"
	"github.com/goose-run/goose-core/internal/ota/rollback"
	"github.com/goose-run/goose-core/internal/ota/safety"
	"github.com/goose-run/goose-core/internal/ota/state"
	"github.com/goose-run/goose-core/internal/ota/swap"
)

// Status is a state in the update state machine (spec §4.18).
type Status string

const (
	StatusIdle       Status = "idle"
	StatusPreparing  Status = "preparing"
	StatusBuilding   Status = "building"
	StatusSwapping   Status = "swapping"
	StatusVerifying  Status = "verifying"
	StatusCompleted  Status = "completed"
	StatusRolledBack Status = "rolled_back"
	StatusFailed     Status = "failed"
)

// UpdateResult is the outcome of one perform_update call.
type UpdateResult struct {
	Status       Status
	Version      string
	SnapshotID   string
	BuildResult  *build.Result
	SwapRecord   *swap.Record
	HealthReport *health.Report
	SafetyBefore *safety.Report
	SafetyAfter  *safety.Report
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Manager drives a single update attempt through Idle -> Preparing ->
// Building -> Swapping -> Verifying -> {Completed|RolledBack|Failed}.
type Manager struct {
	WorkspaceRoot string
	ActiveBinary  string
	Package       string
	Profile       string
	BuildTimeout  time.Duration

	Builder  *build.Builder
	Swapper  *swap.Swapper
	Health   *health.Checker
	Saver    *state.Saver
	Rollback *rollback.Manager
	Safety   *safety.Envelope
}

// New wires a Manager from its component parts. Callers construct each
// component (Builder/Swapper/Health/Saver/Rollback/Safety) so the OTA
// pipeline's storage locations and policy stay caller-configured.
func New(workspaceRoot, activeBinary string, builder *build.Builder, swapper *swap.Swapper,
	checker *health.Checker, saver *state.Saver, rb *rollback.Manager, envelope *safety.Envelope) *Manager {
	return &Manager{
		WorkspaceRoot: workspaceRoot,
		ActiveBinary:  activeBinary,
		Profile:       "release",
		BuildTimeout:  5 * time.Minute,
		Builder:       builder,
		Swapper:       swapper,
		Health:        checker,
		Saver:         saver,
		Rollback:      rb,
		Safety:        envelope,
	}
}

// PerformUpdate runs the full self-update pipeline for version, persisting
// configJSON as part of the captured state (spec §4.18).
func (m *Manager) PerformUpdate(ctx context.Context, version, configJSON string) UpdateResult {
	result := UpdateResult{Status: StatusPreparing, Version: version, StartedAt: time.Now()}
	log := logging.Get(logging.CategoryOTA)
	log.Info("perform_update starting for version %s", version)

	before := m.Safety.CheckAll()
	result.SafetyBefore = &before
	if !before.AllPassed {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("pre-update safety check failed: %s", before.Summary)
		result.FinishedAt = time.Now()
		log.Error("%s", result.Error)
		return result
	}

	snap := state.CaptureState(version, configJSON, nil, "")
	if _, err := m.Saver.SaveSnapshot(snap); err != nil {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("failed to capture state: %v", err)
		result.FinishedAt = time.Now()
		log.Error("%s", result.Error)
		return result
	}
	result.SnapshotID = snap.ID

	result.Status = StatusBuilding
	buildResult := m.Builder.Build(ctx, build.Request{
		WorkspaceRoot: m.WorkspaceRoot,
		Package:       m.Package,
		Profile:       m.Profile,
		Timeout:       m.BuildTimeout,
	})
	result.BuildResult = &buildResult
	if !buildResult.Success {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("build failed: %s", buildResult.Error)
		result.FinishedAt = time.Now()
		log.Error("%s", result.Error)
		return result
	}

	result.Status = StatusSwapping
	swapRec := m.Swapper.Swap(m.ActiveBinary, buildResult.BinaryPath)
	result.SwapRecord = &swapRec
	if !swapRec.Success {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("swap failed: %s", swapRec.Error)
		result.FinishedAt = time.Now()
		log.Error("%s", result.Error)
		return result
	}

	m.Rollback.Push(rollback.Entry{
		SnapshotID:  snap.ID,
		PreviousBin: swapRec.BackupPath,
		ActivePath:  m.ActiveBinary,
		Version:     version,
	})

	result.Status = StatusVerifying
	report := m.Health.RunAll(ctx)
	result.HealthReport = &report

	after := m.Safety.CheckAll()
	result.SafetyAfter = &after

	if !report.Healthy || !after.AllPassed {
		rbRec := m.Rollback.Rollback()
		result.Status = StatusRolledBack
		if !rbRec.Success {
			result.Error = fmt.Sprintf("post-swap checks failed and rollback also failed: %s", rbRec.Error)
		} else {
			result.Error = fmt.Sprintf("post-swap checks failed (health=%v safety=%v), rolled back", report.Healthy, after.AllPassed)
		}
		result.FinishedAt = time.Now()
		log.Error("%s", result.Error)
		return result
	}

	result.Status = StatusCompleted
	result.FinishedAt = time.Now()
	log.Info("perform_update completed for version %s", version)
	return result
}

// DryRun performs state capture and build-argument computation only, without
// building, swapping, or touching the running binary, and always reports
// Completed with a successful, zero-duration build_result (spec §4.18).
func (m *Manager) DryRun(version, configJSON string) UpdateResult {
	result := UpdateResult{Status: StatusPreparing, Version: version, StartedAt: time.Now()}
	logging.Get(logging.CategoryOTA).Info("dry_run for version %s", version)

	snap := state.CaptureState(version, configJSON, nil, "")
	result.SnapshotID = snap.ID

	planned := m.Builder.Plan(build.Request{
		WorkspaceRoot: m.WorkspaceRoot,
		Package:       m.Package,
		Profile:       m.Profile,
	})
	result.BuildResult = &planned

	result.Status = StatusCompleted
	result.FinishedAt = time.Now()
	return result
}
