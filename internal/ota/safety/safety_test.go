package safety

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExistsCheckPass(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_file.go"), []byte("package main"), 0o644))

	e := New(dir)
	result := e.CheckFileExists("test_file.go")
	assert.True(t, result.Passed)
	assert.Equal(t, InvariantFileExists, result.InvariantType)
	assert.Contains(t, result.Message, "exists")
}

func TestFileExistsCheckFail(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	result := e.CheckFileExists("nonexistent.go")
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "MISSING")
}

func TestModuleValidCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/test\n\ngo 1.24.0\n"), 0o644))

	e := New(dir)
	result := e.CheckModuleValid()
	assert.True(t, result.Passed)
	assert.Equal(t, InvariantModuleValid, result.InvariantType)
}

func TestModuleInvalidCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("this is not valid go.mod content"), 0o644))

	e := New(dir)
	result := e.CheckModuleValid()
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "missing module directive")
}

func TestModuleEmptyCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte(""), 0o644))

	e := New(dir)
	result := e.CheckModuleValid()
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "empty")
}

func TestTestCountStable(t *testing.T) {
	e := New(t.TempDir())
	e.SetMinTestCount(100)

	result := e.CheckTestCountStable(150)
	assert.True(t, result.Passed)

	result = e.CheckTestCountStable(100)
	assert.True(t, result.Passed)
}

func TestTestCountRegression(t *testing.T) {
	e := New(t.TempDir())
	e.SetMinTestCount(100)

	result := e.CheckTestCountStable(50)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "BELOW")
}

func TestNoRegressionsPass(t *testing.T) {
	e := New(t.TempDir())

	result := e.CheckNoRegressions(100, 100)
	assert.True(t, result.Passed)

	result = e.CheckNoRegressions(100, 110)
	assert.True(t, result.Passed)
	assert.Contains(t, result.Message, "100 -> 110")
}

func TestNoRegressionsFail(t *testing.T) {
	e := New(t.TempDir())

	result := e.CheckNoRegressions(100, 95)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "REGRESSION")
	assert.Contains(t, result.Message, "5 tests lost")
}

func TestSafetyReportSummary(t *testing.T) {
	results := []Result{
		Pass(InvariantFileExists, "ok"),
		Pass(InvariantModuleValid, "ok"),
	}
	report := FromResults(results)
	assert.True(t, report.AllPassed)
	assert.Equal(t, 2, report.PassedCount())
	assert.Equal(t, 0, report.FailedCount())
	assert.Contains(t, report.Summary, "2/2")

	results = []Result{
		Pass(InvariantFileExists, "ok"),
		Fail(InvariantModuleValid, "broken"),
		Pass(InvariantTestCountStable, "ok"),
	}
	report = FromResults(results)
	assert.False(t, report.AllPassed)
	assert.Equal(t, 2, report.PassedCount())
	assert.Equal(t, 1, report.FailedCount())
	assert.Contains(t, report.Summary, "FAILED")
	assert.Contains(t, report.Summary, "module_valid")
}

func TestIsSafeToProceed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/t\n\ngo 1.24.0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.sum"), []byte(""), 0o644))
	nested := filepath.Join(dir, "internal", "logging")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "logger.go"), []byte("package logging"), 0o644))

	e := New(dir)
	assert.False(t, e.IsSafeToProceed())

	e.CheckAll()
	assert.True(t, e.IsSafeToProceed())
	require.NotNil(t, e.LastReport())
}

func TestIsSafeToProceedFailsMissingFiles(t *testing.T) {
	e := New(t.TempDir())
	e.CheckAll()
	assert.False(t, e.IsSafeToProceed())
}
