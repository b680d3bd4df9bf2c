package swap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBinary(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0o755))
}

func TestSwapReplacesActiveAndKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "active")
	candidate := filepath.Join(dir, "candidate")
	writeBinary(t, active, []byte("old-binary"))
	writeBinary(t, candidate, []byte("new-binary"))

	s := New(filepath.Join(dir, "backups"), 5)
	rec := s.Swap(active, candidate)

	require.True(t, rec.Success, rec.Error)
	data, err := os.ReadFile(active)
	require.NoError(t, err)
	assert.Equal(t, "new-binary", string(data))

	backup, err := os.ReadFile(rec.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "old-binary", string(backup))
}

func TestSwapFailsWhenCandidateMissing(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "active")
	writeBinary(t, active, []byte("old-binary"))

	s := New(filepath.Join(dir, "backups"), 5)
	rec := s.Swap(active, filepath.Join(dir, "nope"))

	assert.False(t, rec.Success)
	assert.Contains(t, rec.Error, "missing or empty")
}

func TestSwapFailsWhenCandidateEmpty(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "active")
	candidate := filepath.Join(dir, "candidate")
	writeBinary(t, active, []byte("old-binary"))
	writeBinary(t, candidate, []byte{})

	s := New(filepath.Join(dir, "backups"), 5)
	rec := s.Swap(active, candidate)
	assert.False(t, rec.Success)
}

func TestSwapWorksWithNoExistingActive(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "active")
	candidate := filepath.Join(dir, "candidate")
	writeBinary(t, candidate, []byte("new-binary"))

	s := New(filepath.Join(dir, "backups"), 5)
	rec := s.Swap(active, candidate)
	require.True(t, rec.Success, rec.Error)
}

func TestPruneKeepsOnlyMaxBackups(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "active")
	backupDir := filepath.Join(dir, "backups")
	s := New(backupDir, 2)

	for i := 0; i < 4; i++ {
		candidate := filepath.Join(dir, "candidate")
		writeBinary(t, active, []byte("old"))
		writeBinary(t, candidate, []byte("new"))
		rec := s.Swap(active, candidate)
		require.True(t, rec.Success, rec.Error)
	}

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 2)
}
