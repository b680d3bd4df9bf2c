// Package coreops implements the Agent-Core Registry and Core Selector: the
// set of pluggable task-processing strategies ("cores") and the logic that
// routes a task to the best one, grounded on the teacher's ShardManager
// (internal/core/shard_manager*.go) pattern of a mutex-guarded registry with
// per-strategy metrics.
package coreops

import (
	"context"
	"errors"
)

// Variant identifies one of the six fixed core strategies. This is a closed
// sum type by design (spec §9 "Trait-object core dispatch" redesign note) —
// no runtime plugin registration of new variants.
type Variant string

const (
	Freeform     Variant = "freeform"
	Structured   Variant = "structured"
	Orchestrator Variant = "orchestrator"
	Swarm        Variant = "swarm"
	Workflow     Variant = "workflow"
	Adversarial  Variant = "adversarial"
)

// AllVariants lists every core variant in a stable order.
var AllVariants = []Variant{Freeform, Structured, Orchestrator, Swarm, Workflow, Adversarial}

func (v Variant) Valid() bool {
	for _, c := range AllVariants {
		if c == v {
			return true
		}
	}
	return false
}

// Capabilities describes what a core is able to do. Used by recommend_core's
// capability-scoring fallback.
type Capabilities struct {
	CodeGeneration    bool
	Testing           bool
	MultiAgent        bool
	ParallelExecution bool
	WorkflowTemplates bool
	AdversarialReview bool
	FreeformChat      bool
	StateMachine      bool
}

// score returns how many of the requested capability bits this core satisfies.
func (c Capabilities) score(want Capabilities) int {
	n := 0
	if want.CodeGeneration && c.CodeGeneration {
		n++
	}
	if want.Testing && c.Testing {
		n++
	}
	if want.MultiAgent && c.MultiAgent {
		n++
	}
	if want.ParallelExecution && c.ParallelExecution {
		n++
	}
	if want.WorkflowTemplates && c.WorkflowTemplates {
		n++
	}
	if want.AdversarialReview && c.AdversarialReview {
		n++
	}
	if want.FreeformChat && c.FreeformChat {
		n++
	}
	if want.StateMachine && c.StateMachine {
		n++
	}
	return n
}

// Metrics is the running, O(1)-updated metrics snapshot for one core.
type Metrics struct {
	TotalExecutions uint64
	Successful      uint64
	Failed          uint64
	SuccessRate     float64
	AvgTurns        float64
	AvgCostDollars  float64
	AvgTimeMs       float64
	TotalCostDollars float64
}

// record folds a single execution outcome into the running averages in O(1).
func (m *Metrics) record(success bool, turns uint32, costDollars float64, timeMs uint64) {
	n := float64(m.TotalExecutions)
	m.AvgTurns = (m.AvgTurns*n + float64(turns)) / (n + 1)
	m.AvgCostDollars = (m.AvgCostDollars*n + costDollars) / (n + 1)
	m.AvgTimeMs = (m.AvgTimeMs*n + float64(timeMs)) / (n + 1)
	m.TotalCostDollars += costDollars
	m.TotalExecutions++
	if success {
		m.Successful++
	} else {
		m.Failed++
	}
	m.SuccessRate = float64(m.Successful) / float64(m.TotalExecutions)
}

// TaskHint describes an incoming task for selection purposes.
type TaskHint struct {
	Description    string
	Category       string
	UserPreference *Variant
}

// SelectionResult is the outcome of routing a task to a core.
type SelectionResult struct {
	CoreType      Variant
	Category      string
	Confidence    float64
	FromExperience bool
	Rationale     string
}

// ExecutionContext carries the collaborators a core needs to run a task.
// Conversation, cost tracking, and tool/extension management are external
// collaborators per spec §1; goose-core only needs their contracts here.
type ExecutionContext struct {
	Context      context.Context
	SessionID    string
	Conversation ConversationHandle
	CostTracker  CostTracker
	Tools        ToolManager
}

// ConversationHandle is the external conversation data model port.
type ConversationHandle interface {
	SessionID() string
}

// CostTracker is the external cost-accounting port.
type CostTracker interface {
	TotalCostDollars() float64
}

// ToolManager is the external tool/extension management port.
type ToolManager interface {
	AvailableTools() []string
}

// ExecutionResult is what a core returns from Execute.
type ExecutionResult struct {
	Completed bool
	Summary   string
	Outputs   map[string]string
}

// Task is the unit of work handed to a core's Execute.
type Task struct {
	ID          string
	Description string
	Category    string
}

// Core is the interface every strategy variant implements.
type Core interface {
	Variant() Variant
	Capabilities() Capabilities
	Execute(ctx *ExecutionContext, task Task) (ExecutionResult, error)
}

var (
	ErrCoreAlreadyRegistered = errors.New("coreops: core already registered")
	ErrCoreNotRegistered     = errors.New("coreops: core not registered")
	ErrNoActiveCore          = errors.New("coreops: no active core")
)
