package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goose-run/goose-core/internal/ota"
	"github.com/goose-run/goose-core/internal/ota/build"
	"github.com/goose-run/goose-core/internal/ota/health"
	"github.com/goose-run/goose-core/internal/ota/rollback"
	"github.com/goose-run/goose-core/internal/ota/safety"
	"github.com/goose-run/goose-core/internal/ota/state"
	"github.com/goose-run/goose-core/internal/ota/swap"
)

var (
	otaVersion string
	otaDryRun  bool
)

var otaCmd = &cobra.Command{
	Use:     "ota",
	Aliases: []string{"self-improve", "selfimprove"},
	Short:   "self-update pipeline: check, status, and update",
}

var otaCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "run safety + health checks without building or swapping (dry run)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newOTAManager()
		result := mgr.DryRun(otaVersion, "{}")
		printUpdateResult(result)
		return nil
	},
}

var otaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the current safety envelope status",
	RunE: func(cmd *cobra.Command, args []string) error {
		envelope := safety.New(workspaceRoot())
		report := envelope.CheckAll()
		fmt.Printf("## OTA Status\n\n")
		fmt.Printf("- safe_to_proceed: %v\n", envelope.IsSafeToProceed())
		fmt.Printf("- summary: %s\n\n", report.Summary)
		fmt.Println("| invariant | passed | message |")
		fmt.Println("|---|---|---|")
		for _, r := range report.Results {
			fmt.Printf("| %s | %v | %s |\n", r.InvariantType, r.Passed, r.Message)
		}
		return nil
	},
}

var otaUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "perform (or dry-run) a self-update to the given version",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newOTAManager()

		var result ota.UpdateResult
		if otaDryRun {
			result = mgr.DryRun(otaVersion, "{}")
		} else {
			result = mgr.PerformUpdate(context.Background(), otaVersion, "{}")
		}
		printUpdateResult(result)
		if result.Status == ota.StatusFailed || result.Status == ota.StatusRolledBack {
			return fmt.Errorf("update did not complete: %s", result.Error)
		}
		return nil
	},
}

func workspaceRoot() string {
	ws := workspace
	if ws == "" {
		ws = "."
	}
	return ws
}

func newOTAManager() *ota.Manager {
	root := workspaceRoot()
	dataDir := cfg.Logging.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(root, dataDir)
	}

	activeBinary, err := os.Executable()
	if err != nil {
		activeBinary = filepath.Join(root, "bin", "goose-core")
	}

	builder := build.New()
	swapper := swap.New(filepath.Join(dataDir, "ota", "backups"), cfg.OTA.MaxSnapshots)
	saver := state.New(filepath.Join(dataDir, "ota", "snapshots"), cfg.OTA.MaxSnapshots)
	rb := rollback.New(swapper, saver)
	envelope := safety.New(root)

	healthCfg := health.Minimal(activeBinary)
	healthCfg.RunTests = cfg.OTA.RunTests
	healthCfg.WorkspacePath = root
	healthCfg.CheckAPI = true
	healthCfg.APIURL = "http://127.0.0.1" + serveMetricsAddr + "/metrics"
	checker := health.New(healthCfg)

	return ota.New(root, activeBinary, builder, swapper, checker, saver, rb, envelope)
}

func printUpdateResult(result ota.UpdateResult) {
	fmt.Printf("## OTA Update: %s\n\n", result.Version)
	fmt.Printf("- status: %s\n", result.Status)
	fmt.Printf("- snapshot_id: %s\n", result.SnapshotID)
	if result.Error != "" {
		fmt.Printf("- error: %s\n", result.Error)
	}
	if result.BuildResult != nil {
		fmt.Printf("- build: success=%v binary=%s\n", result.BuildResult.Success, result.BuildResult.BinaryPath)
	}
	if result.SwapRecord != nil {
		fmt.Printf("- swap: success=%v backup=%s\n", result.SwapRecord.Success, result.SwapRecord.BackupPath)
	}
	if result.HealthReport != nil {
		fmt.Printf("- health: healthy=%v %s\n", result.HealthReport.Healthy, result.HealthReport.Summary)
	}
	fmt.Printf("- duration: %s\n", result.FinishedAt.Sub(result.StartedAt))
}
