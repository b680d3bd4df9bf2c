package experience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goose-run/goose-core/internal/coreops"
)

func recordTurns(t *testing.T, s *Store, n int, core coreops.Variant, turns uint32, category string) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.Record("task", core, true, turns, 0.05, 1000, category)
		require.NoError(t, err)
	}
}

func TestTaskDecompositionInsightFiresAboveThreshold(t *testing.T) {
	s := newTestStore(t)
	recordTurns(t, s, 5, coreops.Structured, 25, "large-refactor")

	insights, err := ExtractInsights(s)
	require.NoError(t, err)

	var found bool
	for _, i := range insights {
		if i.Category == InsightTaskDecomposition {
			found = true
			assert.Contains(t, i.Message, "large-refactor")
			assert.Contains(t, i.Message, "sub-tasks")
		}
	}
	assert.True(t, found, "expected a task-decomposition insight")
}

func TestTaskDecompositionInsightSilentBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	recordTurns(t, s, 5, coreops.Structured, 5, "code-test-fix")

	insights, err := ExtractInsights(s)
	require.NoError(t, err)
	for _, i := range insights {
		assert.NotEqual(t, InsightTaskDecomposition, i.Category)
	}
}

func TestTaskDecompositionInsightRequiresMinimumEvidence(t *testing.T) {
	s := newTestStore(t)
	recordTurns(t, s, 2, coreops.Structured, 40, "one-off")

	insights, err := ExtractInsights(s)
	require.NoError(t, err)
	for _, i := range insights {
		assert.NotEqual(t, InsightTaskDecomposition, i.Category)
	}
}

func TestTaskDecompositionInsightBlendsAcrossCores(t *testing.T) {
	s := newTestStore(t)
	recordTurns(t, s, 3, coreops.Structured, 30, "mixed")
	recordTurns(t, s, 3, coreops.Swarm, 5, "mixed")

	insights, err := ExtractInsights(s)
	require.NoError(t, err)

	var found bool
	for _, i := range insights {
		if i.Category == InsightTaskDecomposition {
			found = true
		}
	}
	assert.True(t, found, "blended average (17.5) should still exceed the threshold")
}

func TestConfidenceLabelThirds(t *testing.T) {
	assert.Equal(t, "LOW", Insight{Confidence: 0.1}.ConfidenceLabel())
	assert.Equal(t, "MED", Insight{Confidence: 0.5}.ConfidenceLabel())
	assert.Equal(t, "HIGH", Insight{Confidence: 0.9}.ConfidenceLabel())
}

func TestFormatGroupsBySectionOrder(t *testing.T) {
	out := Format([]Insight{
		{Category: InsightBestPractice, Message: "b", Confidence: 0.5},
		{Category: InsightCoreSelection, Message: "a", Confidence: 0.5},
	})
	coreIdx := indexOf(out, "Core Selection")
	bestIdx := indexOf(out, "Best Practices")
	require.GreaterOrEqual(t, coreIdx, 0)
	require.GreaterOrEqual(t, bestIdx, 0)
	assert.Less(t, coreIdx, bestIdx)
}
