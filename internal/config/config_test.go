package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goose-run/goose-core/internal/coreops"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, coreops.Freeform, cfg.Core.DefaultCore)
	assert.Equal(t, 500, cfg.Scheduler.MaxHistory)
}

func TestLoadOverlaysPartialFileOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goose.yaml")
	require.NoError(t, Save(path, &Config{
		Core: CoreConfig{DefaultCore: coreops.Adversarial, MinExperienceRecords: 5},
	}))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, coreops.Adversarial, cfg.Core.DefaultCore)
	assert.Equal(t, 5, cfg.Core.MinExperienceRecords)
	// Untouched sections still default.
	assert.Equal(t, 30*time.Second, cfg.Hooks.DefaultTimeout)
	assert.Equal(t, 10*time.Second, cfg.Conductor.HeartbeatInterval)
}

func TestLoadRejectsInvalidDefaultCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goose.yaml")
	require.NoError(t, Save(path, &Config{Core: CoreConfig{DefaultCore: "not-a-variant"}}))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, coreops.Freeform, cfg.Core.DefaultCore)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goose.yaml")
	require.NoError(t, os.WriteFile(path, []byte("core: [this is not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "goose.yaml")
	original := DefaultConfig()
	original.OTA.MaxRiskScore = 0.9
	original.Capability.StartRole = "developer"

	require.NoError(t, Save(path, original))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, loaded.OTA.MaxRiskScore)
	assert.Equal(t, "developer", loaded.Capability.StartRole)
}
