package experience

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goose-run/goose-core/internal/coreops"
)

// InsightCategory is one of the five derived-insight categories (spec §4.4).
type InsightCategory string

const (
	InsightCoreSelection    InsightCategory = "core-selection"
	InsightFailurePattern   InsightCategory = "failure-pattern"
	InsightOptimization     InsightCategory = "optimization"
	InsightTaskDecomposition InsightCategory = "task-decomposition"
	InsightBestPractice     InsightCategory = "best-practice"
)

// insightCategoryOrder is the fixed section-header order used by Format.
var insightCategoryOrder = []InsightCategory{
	InsightCoreSelection, InsightFailurePattern, InsightOptimization, InsightTaskDecomposition, InsightBestPractice,
}

// Insight is a derived, human-readable recommendation synthesized from many
// experiences.
type Insight struct {
	Category   InsightCategory
	Message    string
	Confidence float64
}

// ConfidenceLabel returns "LOW"/"MED"/"HIGH" for the insight's confidence
// thirds (spec §4.4).
func (i Insight) ConfidenceLabel() string {
	switch {
	case i.Confidence >= 2.0/3.0:
		return "HIGH"
	case i.Confidence >= 1.0/3.0:
		return "MED"
	default:
		return "LOW"
	}
}

// String renders "[LABEL 0.92] message", matching the original's Display
// impl (SPEC_FULL.md §C).
func (i Insight) String() string {
	return fmt.Sprintf("[%s %.2f] %s", i.ConfidenceLabel(), i.Confidence, i.Message)
}

// effectiveThresholdRate and effectiveThresholdRuns gate the Optimization
// rules: a core must clear both to be considered "effective" (spec §4.4).
const (
	effectiveThresholdRate = 0.7
	effectiveThresholdRuns = 3
)

// ExtractInsights is a pure function over a Store's aggregates, producing
// insights in the five categories of spec §4.4. It never mutates the store.
func ExtractInsights(s *Store) ([]Insight, error) {
	coreStats, err := s.GetCoreStats()
	if err != nil {
		return nil, err
	}
	categoryStats, err := s.GetCategoryCoreStats()
	if err != nil {
		return nil, err
	}
	storedInsights, err := s.GetInsights("")
	if err != nil {
		return nil, err
	}

	var out []Insight
	out = append(out, coreSelectionInsights(categoryStats)...)
	out = append(out, failurePatternInsights(coreStats)...)
	out = append(out, optimizationInsights(coreStats)...)
	out = append(out, taskDecompositionInsights(categoryStats)...)
	out = append(out, bestPracticeInsights(storedInsights)...)
	return out, nil
}

// taskDecompositionTurnsThreshold mirrors failurePatternInsights' per-core
// "high turn count" threshold, applied per category instead of per core: a
// category whose executions average more turns than this across every core
// tried there is a candidate for being broken into smaller sub-tasks.
const taskDecompositionTurnsThreshold = 15.0

// taskDecompositionInsights emits one insight per category whose
// execution-weighted average turn count (combined across every core tried
// in that category) exceeds taskDecompositionTurnsThreshold and has enough
// evidence (>=3 executions) to be meaningful.
func taskDecompositionInsights(categoryStats map[string]map[coreops.Variant]CategoryCoreStats) []Insight {
	var out []Insight
	for _, category := range sortedCategories(categoryStats) {
		var totalExecutions uint64
		var turnsSum float64
		for _, cs := range categoryStats[category] {
			turnsSum += cs.AvgTurns * float64(cs.TotalExecutions)
			totalExecutions += cs.TotalExecutions
		}
		if totalExecutions < 3 {
			continue
		}
		avgTurns := turnsSum / float64(totalExecutions)
		if avgTurns <= taskDecompositionTurnsThreshold {
			continue
		}
		out = append(out, Insight{
			Category: InsightTaskDecomposition,
			Message: fmt.Sprintf(
				"category %q averages %.1f turns per task across %d executions — consider splitting into smaller sub-tasks",
				category, avgTurns, totalExecutions),
			Confidence: minF(float64(totalExecutions)/20.0, 1.0),
		})
	}
	return out
}

// coreSelectionInsights emits one insight per category when >=2 cores were
// tried there and (best-worst) success rate exceeds 0.2.
func coreSelectionInsights(categoryStats map[string]map[coreops.Variant]CategoryCoreStats) []Insight {
	var out []Insight
	for _, category := range sortedCategories(categoryStats) {
		byCore := categoryStats[category]
		if len(byCore) < 2 {
			continue
		}
		var best, worst CategoryCoreStats
		first := true
		var totalEvidence uint64
		for _, cs := range byCore {
			totalEvidence += cs.TotalExecutions
			if first || cs.SuccessRate > best.SuccessRate {
				best = cs
			}
			if first || cs.SuccessRate < worst.SuccessRate {
				worst = cs
			}
			first = false
		}
		if best.SuccessRate-worst.SuccessRate <= 0.2 {
			continue
		}
		confidence := float64(totalEvidence) / 20.0
		if confidence > 1.0 {
			confidence = 1.0
		}
		out = append(out, Insight{
			Category: InsightCoreSelection,
			Message: fmt.Sprintf(
				"for category %q, %s outperforms %s by %.0f%% success rate",
				category, best.CoreType, worst.CoreType, (best.SuccessRate-worst.SuccessRate)*100),
			Confidence: confidence,
		})
	}
	return out
}

// failurePatternInsights emits one insight per core with >=3 executions and
// success_rate < 0.5, plus a secondary "high turn count" insight when
// success_rate > 0.5 and avg_turns > 15.
func failurePatternInsights(coreStats map[coreops.Variant]CoreStats) []Insight {
	var out []Insight
	for _, core := range sortedCores(coreStats) {
		cs := coreStats[core]
		if cs.TotalExecutions < 3 {
			continue
		}
		if cs.SuccessRate < 0.5 {
			out = append(out, Insight{
				Category: InsightFailurePattern,
				Message: fmt.Sprintf(
					"%s fails on %.0f%% of tasks (%d/%d) — consider routing this category elsewhere",
					core, (1-cs.SuccessRate)*100, cs.Failures, cs.TotalExecutions),
				Confidence: minF(float64(cs.TotalExecutions)/20.0, 1.0),
			})
		}
		if cs.SuccessRate > 0.5 && cs.AvgTurns > 15 {
			out = append(out, Insight{
				Category: InsightFailurePattern,
				Message: fmt.Sprintf(
					"%s succeeds but uses a high average of %.1f turns — may indicate inefficient task decomposition",
					core, cs.AvgTurns),
				Confidence: minF(float64(cs.TotalExecutions)/20.0, 1.0),
			})
		}
	}
	return out
}

// optimizationInsights emits cost/speed insights among "effective" cores
// (success_rate >= 0.7 and runs >= 3) when the max/min ratio exceeds 2.
func optimizationInsights(coreStats map[coreops.Variant]CoreStats) []Insight {
	var effective []CoreStats
	for _, cs := range coreStats {
		if cs.SuccessRate >= effectiveThresholdRate && cs.TotalExecutions >= effectiveThresholdRuns {
			effective = append(effective, cs)
		}
	}
	if len(effective) < 2 {
		return nil
	}

	minCost, maxCost := effective[0], effective[0]
	minTime, maxTime := effective[0], effective[0]
	for _, cs := range effective {
		if cs.AvgCostDollars < minCost.AvgCostDollars {
			minCost = cs
		}
		if cs.AvgCostDollars > maxCost.AvgCostDollars {
			maxCost = cs
		}
		if cs.AvgTimeMs < minTime.AvgTimeMs {
			minTime = cs
		}
		if cs.AvgTimeMs > maxTime.AvgTimeMs {
			maxTime = cs
		}
	}

	var out []Insight
	if minCost.AvgCostDollars > 0 && maxCost.AvgCostDollars/minCost.AvgCostDollars > 2 {
		out = append(out, Insight{
			Category: InsightOptimization,
			Message: fmt.Sprintf(
				"%s costs %.1fx more than %s for similarly effective results ($%.3f vs $%.3f avg)",
				maxCost.CoreType, maxCost.AvgCostDollars/minCost.AvgCostDollars, minCost.CoreType,
				maxCost.AvgCostDollars, minCost.AvgCostDollars),
			Confidence: 0.7,
		})
	}
	if minTime.AvgTimeMs > 0 && maxTime.AvgTimeMs/minTime.AvgTimeMs > 2 {
		out = append(out, Insight{
			Category: InsightOptimization,
			Message: fmt.Sprintf(
				"%s takes %.1fx longer than %s for similarly effective results (%.0fms vs %.0fms avg)",
				maxTime.CoreType, maxTime.AvgTimeMs/minTime.AvgTimeMs, minTime.CoreType,
				maxTime.AvgTimeMs, minTime.AvgTimeMs),
			Confidence: 0.7,
		})
	}
	return out
}

// bestPracticeInsights deduplicates stored insight strings case-insensitively.
func bestPracticeInsights(stored []string) []Insight {
	seen := map[string]bool{}
	var out []Insight
	for _, s := range stored {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Insight{Category: InsightBestPractice, Message: s, Confidence: 0.5})
	}
	return out
}

// Format renders insights grouped under fixed section headers in
// insightCategoryOrder.
func Format(insights []Insight) string {
	byCategory := map[InsightCategory][]Insight{}
	for _, i := range insights {
		byCategory[i.Category] = append(byCategory[i.Category], i)
	}

	var b strings.Builder
	for _, category := range insightCategoryOrder {
		items := byCategory[category]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", sectionTitle(category))
		for _, i := range items {
			fmt.Fprintf(&b, "- %s\n", i.String())
		}
	}
	return b.String()
}

func sectionTitle(c InsightCategory) string {
	switch c {
	case InsightCoreSelection:
		return "Core Selection"
	case InsightFailurePattern:
		return "Failure Patterns"
	case InsightOptimization:
		return "Optimization"
	case InsightTaskDecomposition:
		return "Task Decomposition"
	case InsightBestPractice:
		return "Best Practices"
	default:
		return string(c)
	}
}

func sortedCategories(m map[string]map[coreops.Variant]CategoryCoreStats) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedCores(m map[coreops.Variant]CoreStats) []coreops.Variant {
	out := make([]coreops.Variant, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
