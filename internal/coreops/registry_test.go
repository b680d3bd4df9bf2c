package coreops

import "testing"

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		t.Fatalf("RegisterDefaults() error = %v", err)
	}
	return r
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(NewFreeformCore()); err == nil {
		t.Fatal("Register() expected error for duplicate variant, got nil")
	}
}

func TestActiveCoreNeverNilOnceRegistered(t *testing.T) {
	r := newTestRegistry(t)
	core, err := r.ActiveCore()
	if err != nil {
		t.Fatalf("ActiveCore() error = %v", err)
	}
	if core == nil {
		t.Fatal("ActiveCore() returned nil")
	}
}

func TestSwitchCoreAtomic(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.SwitchCore(Adversarial); err != nil {
		t.Fatalf("SwitchCore() error = %v", err)
	}
	core, err := r.ActiveCore()
	if err != nil {
		t.Fatalf("ActiveCore() error = %v", err)
	}
	if core.Variant() != Adversarial {
		t.Fatalf("ActiveCore() = %s, want %s", core.Variant(), Adversarial)
	}
}

func TestSwitchCoreRejectsUnregistered(t *testing.T) {
	r := NewRegistry()
	if err := r.SwitchCore(Structured); err == nil {
		t.Fatal("SwitchCore() expected error for unregistered variant, got nil")
	}
}

func TestRecommendCoreStaticMapping(t *testing.T) {
	r := newTestRegistry(t)
	cases := []struct {
		category string
		want     Variant
	}{
		{"code-test-fix", Structured},
		{"multi-file-complex", Orchestrator},
		{"review", Adversarial},
		{"pipeline", Workflow},
		{"general", Freeform},
	}
	for _, tc := range cases {
		got, confidence := r.RecommendCore(TaskHint{Category: tc.category})
		if got != tc.want {
			t.Errorf("RecommendCore(%q) = %s, want %s", tc.category, got, tc.want)
		}
		if confidence <= 0 || confidence > 1 {
			t.Errorf("RecommendCore(%q) confidence = %v, want in (0,1]", tc.category, confidence)
		}
	}
}

func TestRecommendCoreUnknownCategoryUsesCapabilityScoring(t *testing.T) {
	r := newTestRegistry(t)
	got, _ := r.RecommendCore(TaskHint{Category: "some-unknown-category"})
	if got != Structured {
		t.Fatalf("RecommendCore(unknown) = %s, want %s (code-generation score tie broken by priority)", got, Structured)
	}
}

func TestRecordExecutionUpdatesMetrics(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordExecution(Structured, true, 4, 0.10, 1000)
	r.RecordExecution(Structured, false, 8, 0.20, 2000)

	m := r.MetricsFor(Structured)
	if m.TotalExecutions != 2 {
		t.Fatalf("TotalExecutions = %d, want 2", m.TotalExecutions)
	}
	if m.Successful != 1 || m.Failed != 1 {
		t.Fatalf("Successful=%d Failed=%d, want 1/1", m.Successful, m.Failed)
	}
	if m.SuccessRate != 0.5 {
		t.Fatalf("SuccessRate = %v, want 0.5", m.SuccessRate)
	}
	if m.AvgTurns != 6 {
		t.Fatalf("AvgTurns = %v, want 6", m.AvgTurns)
	}
}

func TestResetAllMetricsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordExecution(Swarm, true, 1, 0.01, 100)
	r.ResetAllMetrics()
	r.ResetAllMetrics()
	m := r.MetricsFor(Swarm)
	if m.TotalExecutions != 0 {
		t.Fatalf("TotalExecutions after reset = %d, want 0", m.TotalExecutions)
	}
}

func TestListCoresWithMetricsCoversEveryRegistered(t *testing.T) {
	r := newTestRegistry(t)
	got := r.ListCoresWithMetrics()
	if len(got) != len(AllVariants) {
		t.Fatalf("ListCoresWithMetrics() returned %d entries, want %d", len(got), len(AllVariants))
	}
}
