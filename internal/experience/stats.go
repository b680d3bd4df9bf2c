package experience

import (
	"github.com/goose-run/goose-core/internal/coreops"
)

// minRecordsForBestCore is the minimum number of per-core records required
// before BestCoreForCategory will judge a category (spec §4.3).
const minRecordsForBestCore = 3

// GetCoreStats aggregates outcomes per core across all categories.
func (s *Store) GetCoreStats() (map[coreops.Variant]CoreStats, error) {
	all, err := s.allExperiences()
	if err != nil {
		return nil, err
	}
	agg := map[coreops.Variant]*aggregator{}
	for _, e := range all {
		a, ok := agg[e.CoreType]
		if !ok {
			a = &aggregator{}
			agg[e.CoreType] = a
		}
		a.add(e)
	}
	out := make(map[coreops.Variant]CoreStats, len(agg))
	for core, a := range agg {
		out[core] = a.coreStats(core)
	}
	return out, nil
}

// GetCategoryCoreStats aggregates outcomes per (category, core) pair.
func (s *Store) GetCategoryCoreStats() (map[string]map[coreops.Variant]CategoryCoreStats, error) {
	all, err := s.allExperiences()
	if err != nil {
		return nil, err
	}
	agg := map[string]map[coreops.Variant]*aggregator{}
	for _, e := range all {
		byCore, ok := agg[e.Category]
		if !ok {
			byCore = map[coreops.Variant]*aggregator{}
			agg[e.Category] = byCore
		}
		a, ok := byCore[e.CoreType]
		if !ok {
			a = &aggregator{}
			byCore[e.CoreType] = a
		}
		a.add(e)
	}
	out := make(map[string]map[coreops.Variant]CategoryCoreStats, len(agg))
	for category, byCore := range agg {
		m := make(map[coreops.Variant]CategoryCoreStats, len(byCore))
		for core, a := range byCore {
			m[core] = a.categoryCoreStats(category, core)
		}
		out[category] = m
	}
	return out, nil
}

// BestCoreForCategory returns the core with the highest historical success
// rate for category, ties broken by lower average cost, among cores with at
// least minRecordsForBestCore records. Implements coreops.ExperienceSource.
// The int return is the winning core's record count.
func (s *Store) BestCoreForCategory(category string) (coreops.Variant, int, bool) {
	stats, err := s.GetCategoryCoreStats()
	if err != nil {
		return "", 0, false
	}
	byCore, ok := stats[category]
	if !ok {
		return "", 0, false
	}

	var best coreops.Variant
	var bestStats CategoryCoreStats
	found := false
	for core, cs := range byCore {
		if cs.TotalExecutions < minRecordsForBestCore {
			continue
		}
		if !found || cs.SuccessRate > bestStats.SuccessRate ||
			(cs.SuccessRate == bestStats.SuccessRate && cs.AvgCostDollars < bestStats.AvgCostDollars) {
			best = core
			bestStats = cs
			found = true
		}
	}
	if !found {
		return "", 0, false
	}
	return best, int(bestStats.TotalExecutions), true
}

// GetInsights concatenates the stored insight sequences from matching
// experiences. When core is non-empty, only that core's experiences
// contribute.
func (s *Store) GetInsights(core coreops.Variant) ([]string, error) {
	all, err := s.allExperiences()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range all {
		if core != "" && e.CoreType != core {
			continue
		}
		out = append(out, e.Insights...)
	}
	return out, nil
}

// aggregator folds experiences into running sums for stats computation,
// guarding the zero-record case per SPEC_FULL.md §C.
type aggregator struct {
	total, successes, failures uint64
	turnsSum                   float64
	costSum                    float64
	timeSum                    float64
}

func (a *aggregator) add(e Experience) {
	a.total++
	if e.Succeeded {
		a.successes++
	} else {
		a.failures++
	}
	a.turnsSum += float64(e.TurnsUsed)
	a.costSum += e.CostDollars
	a.timeSum += float64(e.TimeMs)
}

func (a *aggregator) coreStats(core coreops.Variant) CoreStats {
	if a.total == 0 {
		return CoreStats{CoreType: core}
	}
	n := float64(a.total)
	return CoreStats{
		CoreType:         core,
		TotalExecutions:  a.total,
		Successes:        a.successes,
		Failures:         a.failures,
		SuccessRate:      float64(a.successes) / n,
		AvgTurns:         a.turnsSum / n,
		AvgCostDollars:   a.costSum / n,
		AvgTimeMs:        a.timeSum / n,
		TotalCostDollars: a.costSum,
	}
}

func (a *aggregator) categoryCoreStats(category string, core coreops.Variant) CategoryCoreStats {
	if a.total == 0 {
		return CategoryCoreStats{Category: category, CoreType: core}
	}
	n := float64(a.total)
	return CategoryCoreStats{
		Category:        category,
		CoreType:        core,
		TotalExecutions: a.total,
		SuccessRate:     float64(a.successes) / n,
		AvgTurns:        a.turnsSum / n,
		AvgCostDollars:  a.costSum / n,
		AvgTimeMs:       a.timeSum / n,
	}
}
