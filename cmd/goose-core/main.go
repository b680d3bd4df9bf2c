// Package main is the entry point for the goose-core CLI, a standalone
// driver around the agent runtime: core selection, the self-update
// pipeline, and status reporting, grounded on the teacher's cobra root
// command + zap structured logging pattern (cmd/nerd/main.go).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goose-run/goose-core/internal/config"
	"github.com/goose-run/goose-core/internal/logging"
)

var (
	verbose   bool
	workspace string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "goose-core",
	Short: "goose-core - autonomous agent runtime CLI",
	Long: `goose-core drives the agent-core registry, task scheduler, and
self-update pipeline from the command line.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}

		configPath := filepath.Join(ws, ".goose", "config.yaml")
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		dataDir := cfg.Logging.DataDir
		if !filepath.IsAbs(dataDir) {
			dataDir = filepath.Join(ws, dataDir)
		}
		if err := logging.Initialize(dataDir, logging.Options{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")

	rootCmd.AddCommand(otaCmd)
	rootCmd.AddCommand(coreCmd)
	rootCmd.AddCommand(capabilityCmd)

	otaCmd.AddCommand(otaCheckCmd, otaStatusCmd, otaUpdateCmd)
	otaCheckCmd.Flags().StringVar(&otaVersion, "version", "dev", "candidate version label for the dry run")

	otaUpdateCmd.Flags().StringVar(&otaVersion, "version", "", "version label to install")
	otaUpdateCmd.MarkFlagRequired("version")
	otaUpdateCmd.Flags().BoolVar(&otaDryRun, "dry-run", false, "perform state capture only, without building or swapping")

	coreCmd.AddCommand(coreListCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
