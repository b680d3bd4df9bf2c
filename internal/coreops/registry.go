package coreops

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goose-run/goose-core/internal/logging"
)

// Registry holds the registered core strategies, tracks the active one, and
// exposes per-core metrics. Exactly one core is active at a time; switching
// is atomic with respect to concurrent ActiveCore reads (spec §5).
type Registry struct {
	mu      sync.RWMutex
	cores   map[Variant]Core
	metrics map[Variant]*Metrics
	active  Variant
}

// NewRegistry creates an empty registry. The Freeform core must be
// registered by the caller before use (spec §3: "must always be registered").
func NewRegistry() *Registry {
	return &Registry{
		cores:   make(map[Variant]Core),
		metrics: make(map[Variant]*Metrics),
	}
}

// Register installs a core keyed by its variant. Rejects duplicates. The
// first core registered becomes active.
func (r *Registry) Register(c Core) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := c.Variant()
	if _, exists := r.cores[v]; exists {
		return fmt.Errorf("%w: %s", ErrCoreAlreadyRegistered, v)
	}
	r.cores[v] = c
	r.metrics[v] = &Metrics{}
	if r.active == "" {
		r.active = v
	}
	logging.Get(logging.CategoryRegistry).Info("registered core %s (active=%s)", v, r.active)
	return nil
}

// ActiveCore returns the currently selected core. Guaranteed non-nil once at
// least one core has been registered.
func (r *Registry) ActiveCore() (Core, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil, ErrNoActiveCore
	}
	return r.cores[r.active], nil
}

// SwitchCore atomically replaces the active pointer. Fails if variant isn't
// registered.
func (r *Registry) SwitchCore(v Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cores[v]; !exists {
		return fmt.Errorf("%w: %s", ErrCoreNotRegistered, v)
	}
	prev := r.active
	r.active = v
	logging.Get(logging.CategoryRegistry).Info("switched active core %s -> %s", prev, v)
	return nil
}

// GetCore returns a registered core by variant, or nil if not registered.
func (r *Registry) GetCore(v Variant) Core {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cores[v]
}

// ListCores returns every registered variant, sorted for determinism.
func (r *Registry) ListCores() []Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Variant, 0, len(r.cores))
	for v := range r.cores {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CoreWithMetrics pairs a variant with its metrics snapshot.
type CoreWithMetrics struct {
	Variant Variant
	Metrics Metrics
}

// ListCoresWithMetrics returns every registered core's metrics snapshot.
func (r *Registry) ListCoresWithMetrics() []CoreWithMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CoreWithMetrics, 0, len(r.cores))
	for _, v := range sortedVariants(r.metrics) {
		out = append(out, CoreWithMetrics{Variant: v, Metrics: *r.metrics[v]})
	}
	return out
}

func sortedVariants(m map[Variant]*Metrics) []Variant {
	out := make([]Variant, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RecordExecution folds an execution outcome, success or failure, into the
// core's running metrics. Core.Execute does not call it; the caller records
// each outcome here.
func (r *Registry) RecordExecution(v Variant, success bool, turns uint32, costDollars float64, timeMs uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.metrics[v]
	if !ok {
		m = &Metrics{}
		r.metrics[v] = m
	}
	m.record(success, turns, costDollars, timeMs)
}

// MetricsFor returns the current metrics snapshot for a variant.
func (r *Registry) MetricsFor(v Variant) Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.metrics[v]; ok {
		return *m
	}
	return Metrics{}
}

// ResetAllMetrics zeroes every core's metrics. Idempotent.
func (r *Registry) ResetAllMetrics() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for v := range r.metrics {
		r.metrics[v] = &Metrics{}
	}
	logging.Get(logging.CategoryRegistry).Info("reset all core metrics")
}

// categoryDefault maps a task category to its statically preferred core, per
// spec §4.1. Categories not listed here fall through to capability scoring.
var categoryDefault = map[string]Variant{
	"code-test-fix":      Structured,
	"large-refactor":      Orchestrator, // multi-file-complex alias
	"multi-file-complex":  Orchestrator,
	"review":              Adversarial,
	"pipeline":            Workflow,
	"general":             Freeform,
}

// categoryPriority breaks capability-score ties for categories that aren't in
// categoryDefault; earlier entries win. Freeform is always the final tiebreak.
var categoryPriority = []Variant{Structured, Orchestrator, Swarm, Workflow, Adversarial, Freeform}

// RecommendCore is a pure scoring function returning (variant, confidence).
// It never touches experience data — that's the Selector's job.
func (r *Registry) RecommendCore(hint TaskHint) (Variant, float64) {
	if v, ok := categoryDefault[hint.Category]; ok {
		if r.isRegistered(v) {
			return v, 0.9
		}
	}

	// Capability-scoring fallback: score every registered core against a
	// capability profile inferred from the category/description, break ties
	// by categoryPriority with Freeform last.
	want := inferCapabilities(hint)
	r.mu.RLock()
	defer r.mu.RUnlock()

	bestScore := -1
	var best Variant
	for _, v := range categoryPriority {
		c, ok := r.cores[v]
		if !ok {
			continue
		}
		s := c.Capabilities().score(want)
		if s > bestScore {
			bestScore = s
			best = v
		}
	}
	if best == "" {
		best = Freeform
	}
	confidence := 0.5
	if bestScore <= 0 {
		confidence = 0.3
	}
	return best, confidence
}

func (r *Registry) isRegistered(v Variant) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cores[v]
	return ok
}

// inferCapabilities builds a capability wishlist from a task hint, used only
// by the generic-category fallback in RecommendCore.
func inferCapabilities(hint TaskHint) Capabilities {
	return Capabilities{
		CodeGeneration:    true,
		MultiAgent:        hint.Category == "multi-agent",
		ParallelExecution: hint.Category == "parallel",
		WorkflowTemplates: hint.Category == "pipeline",
		AdversarialReview: hint.Category == "review",
		FreeformChat:      hint.Category == "general" || hint.Category == "",
	}
}
