// Package experience implements the Experience Store: a persistent,
// cross-session log of {task, core, success, cost, turns, time, category,
// insights} records that feeds the Core Selector, grounded on the teacher's
// LocalStore (internal/store/local.go) SQLite pattern.
package experience

import (
	"time"

	"github.com/goose-run/goose-core/internal/coreops"
)

// Experience is a single, immutable record of one task's execution outcome.
type Experience struct {
	ID          string
	Task        string
	CoreType    coreops.Variant
	Succeeded   bool
	TurnsUsed   uint32
	CostDollars float64
	TimeMs      uint64
	Category    string
	Insights    []string
	Tags        []string
	CreatedAt   time.Time
}

// CoreStats aggregates outcomes for a single core across all categories.
type CoreStats struct {
	CoreType        coreops.Variant
	TotalExecutions uint64
	Successes       uint64
	Failures        uint64
	SuccessRate     float64
	AvgTurns        float64
	AvgCostDollars  float64
	AvgTimeMs       float64
	TotalCostDollars float64
}

// CategoryCoreStats aggregates outcomes for a (category, core) pair.
type CategoryCoreStats struct {
	Category        string
	CoreType        coreops.Variant
	TotalExecutions uint64
	SuccessRate     float64
	AvgTurns        float64
	AvgCostDollars  float64
	AvgTimeMs       float64
}
