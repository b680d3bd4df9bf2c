// Package config loads and hot-reloads goose-core's YAML configuration,
// grounded on the teacher's internal/config/config.go: one tagged struct,
// section-by-section defaulting, and a fsnotify-backed Watcher for the parts
// that are safe to change without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goose-run/goose-core/internal/coreops"
)

// Config holds all goose-core configuration (SPEC_FULL §A.2).
type Config struct {
	Core       CoreConfig       `yaml:"core"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Capability CapabilityConfig `yaml:"capability"`
	Hooks      HooksConfig      `yaml:"hooks"`
	Conductor  ConductorConfig  `yaml:"conductor"`
	OTA        OTAConfig        `yaml:"ota"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CoreConfig configures the Agent-Core Registry and Selector.
type CoreConfig struct {
	DefaultCore          coreops.Variant `yaml:"default_core"`
	MinExperienceRecords int             `yaml:"min_experience_records"`
}

// SchedulerConfig configures the Autonomous Task Scheduler.
type SchedulerConfig struct {
	MaxHistory int           `yaml:"max_history"`
	TickPeriod time.Duration `yaml:"tick_period"`
}

// CapabilityConfig configures the Capability Enforcer and Handoff Manager.
// RolesFile points to a YAML file overriding DefaultRoleConfigs (spec §4.5),
// conventionally .goose/roles.yaml; empty means use the built-in defaults.
type CapabilityConfig struct {
	StartRole     string `yaml:"start_role"`
	WorkspaceRoot string `yaml:"workspace_root"`
	RolesFile     string `yaml:"roles_file"`
}

// HooksConfig configures the Hook Registry.
type HooksConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// ConductorConfig configures the Conductor IPC Client. Zero values mean "use
// conductor.DefaultConfig"; any GOOSE_CONDUCTOR_* env var still wins over
// this file, matching spec §6.
type ConductorConfig struct {
	IPCPath           string        `yaml:"ipc_path"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// OTAConfig configures the Self-Update Pipeline (§4.10-4.18).
type OTAConfig struct {
	PolicyFile          string        `yaml:"policy_file"`
	MaxSnapshots        int           `yaml:"max_snapshots"`
	AutoImproveCooldown time.Duration `yaml:"auto_improve_cooldown"`
	MaxRiskScore        float64       `yaml:"max_risk_score"`
	RunTests            bool          `yaml:"run_tests"`
}

// LoggingConfig configures internal/logging.Initialize.
type LoggingConfig struct {
	DataDir    string `yaml:"data_dir"`
	DebugMode  bool   `yaml:"debug_mode"`
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// DefaultConfig returns the configuration used when no file is present or a
// section is missing from one that is.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			DefaultCore:          coreops.Freeform,
			MinExperienceRecords: coreops.MinExperienceThreshold,
		},
		Scheduler: SchedulerConfig{
			MaxHistory: 500,
			TickPeriod: time.Second,
		},
		Capability: CapabilityConfig{
			StartRole:     "architect",
			WorkspaceRoot: ".",
			RolesFile:     ".goose/roles.yaml",
		},
		Hooks: HooksConfig{
			DefaultTimeout: 30 * time.Second,
		},
		Conductor: ConductorConfig{
			HeartbeatInterval: 10 * time.Second,
			ReconnectInterval: 5 * time.Second,
		},
		OTA: OTAConfig{
			PolicyFile:          ".goose/policy.yaml",
			MaxSnapshots:        10,
			AutoImproveCooldown: time.Hour,
			MaxRiskScore:        0.5,
			RunTests:            true,
		},
		Logging: LoggingConfig{
			DataDir:   ".goose/data",
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads path as YAML and overlays it onto DefaultConfig section by
// section, so a file that only sets one field still gets sane defaults for
// everything else. A missing file is not an error: Load returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if !cfg.Core.DefaultCore.Valid() {
		cfg.Core.DefaultCore = coreops.Freeform
	}
	if cfg.Core.MinExperienceRecords <= 0 {
		cfg.Core.MinExperienceRecords = coreops.MinExperienceThreshold
	}
	if cfg.Scheduler.MaxHistory <= 0 {
		cfg.Scheduler.MaxHistory = 500
	}
	if cfg.Hooks.DefaultTimeout <= 0 {
		cfg.Hooks.DefaultTimeout = 30 * time.Second
	}
	if cfg.Conductor.HeartbeatInterval <= 0 {
		cfg.Conductor.HeartbeatInterval = 10 * time.Second
	}
	if cfg.Conductor.ReconnectInterval <= 0 {
		cfg.Conductor.ReconnectInterval = 5 * time.Second
	}

	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
