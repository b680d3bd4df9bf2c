package experience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goose-run/goose-core/internal/coreops"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Record("fix the failing auth test", coreops.Structured, true, 4, 0.12, 1500, "code-test-fix")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fix the failing auth test", recent[0].Task)
	assert.Equal(t, coreops.Structured, recent[0].CoreType)
	assert.True(t, recent[0].Succeeded)
}

func TestStoreUpsertsByID(t *testing.T) {
	s := newTestStore(t)

	e := Experience{ID: "fixed-id", Task: "first", CoreType: coreops.Freeform, Category: "general"}
	require.NoError(t, s.Store(e))

	e.Task = "updated"
	require.NoError(t, s.Store(e))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "upsert by id should not duplicate rows")

	recent, err := s.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "updated", recent[0].Task)
}

func TestStorePreservesInsightsAndTags(t *testing.T) {
	s := newTestStore(t)

	e := Experience{
		Task:      "refactor billing",
		CoreType:  coreops.Orchestrator,
		Category:  "large-refactor",
		Insights:  []string{"split into smaller PRs", "run integration suite first"},
		Tags:      []string{"billing", "risky"},
		Succeeded: true,
	}
	require.NoError(t, s.Store(e))

	recent, err := s.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, e.Insights, recent[0].Insights)
	assert.Equal(t, e.Tags, recent[0].Tags)
}

func TestClearRemovesAllExperiences(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Record("task one", coreops.Freeform, true, 1, 0, 0, "general")
	require.NoError(t, err)
	_, err = s.Record("task two", coreops.Freeform, false, 1, 0, 0, "general")
	require.NoError(t, err)

	require.NoError(t, s.Clear())

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFindRelevantScoresByKeywordOverlap(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Record("fix the failing authentication test", coreops.Structured, true, 3, 0.1, 1000, "code-test-fix")
	require.NoError(t, err)
	_, err = s.Record("deploy the release pipeline", coreops.Workflow, true, 2, 0.2, 2000, "pipeline")
	require.NoError(t, err)

	results, err := s.FindRelevant("please fix authentication bugs", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "fix the failing authentication test", results[0].Task)
}

func TestFindRelevantFallsBackToRecentWhenNoKeywords(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Record("a task", coreops.Freeform, true, 1, 0, 0, "general")
	require.NoError(t, err)

	// All words <=3 chars, so no keywords survive filtering.
	results, err := s.FindRelevant("a is to", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFindRelevantRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.Record("refactor the billing module again", coreops.Orchestrator, true, 1, 0, 0, "large-refactor")
		require.NoError(t, err)
	}

	results, err := s.FindRelevant("refactor billing module", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
