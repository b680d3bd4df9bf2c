package capability

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
)

// Manager holds the current role and handoff history (spec §4.6). Artifact
// paths are resolved relative to WorkspaceRoot.
type Manager struct {
	mu            sync.RWMutex
	current       Role
	history       []HandoffRecord
	workspaceRoot string
}

// NewManager constructs a Handoff Manager starting in startRole. Artifact
// existence checks resolve relative paths against workspaceRoot.
func NewManager(startRole Role, workspaceRoot string) *Manager {
	return &Manager{current: startRole, workspaceRoot: workspaceRoot}
}

// CurrentRole returns the role currently active in the pipeline.
func (m *Manager) CurrentRole() Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// History returns a copy of completed handoffs.
func (m *Manager) History() []HandoffRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]HandoffRecord, len(m.history))
	copy(out, m.history)
	return out
}

// ValidateHandoff checks h against the current role, the legal transition
// DAG, artifact presence, and validation rules (spec §4.6). A failure
// handoff bypasses artifact and rule checks entirely but must still
// originate from the current role.
func (m *Manager) ValidateHandoff(h Handoff) error {
	m.mu.RLock()
	current := m.current
	root := m.workspaceRoot
	m.mu.RUnlock()

	if h.FromRole != current {
		return fmt.Errorf("%w: from=%s current=%s", ErrWrongCurrentRole, h.FromRole, current)
	}

	if h.IsFailure {
		return nil
	}

	if !isLegalTransition(h.FromRole, h.ToRole) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, h.FromRole, h.ToRole)
	}

	for _, artifact := range h.Artifacts {
		path := artifact
		if !filepath.IsAbs(path) && root != "" {
			path = filepath.Join(root, path)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, artifact)
		}
	}

	for _, rule := range h.ValidationRules {
		if rule.Evaluate == nil {
			continue
		}
		ok, detail := rule.Evaluate()
		if !ok {
			return fmt.Errorf("%w: %s (%s)", ErrValidationFailed, rule.Type, detail)
		}
	}

	return nil
}

// ExecuteHandoff validates h, and on success atomically switches the
// current role and appends to history. A failure handoff always routes to
// Developer regardless of h.ToRole (spec §4.6 "unconditionally routes to
// Developer").
func (m *Manager) ExecuteHandoff(h Handoff) error {
	if h.IsFailure {
		h.ToRole = Developer
	}
	if err := m.ValidateHandoff(h); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = h.ToRole
	m.history = append(m.history, HandoffRecord{Handoff: h, At: time.Now()})

	if h.IsFailure {
		logging.Get(logging.CategoryHandoff).Warn("failure handoff from %s to %s: %s", h.FromRole, h.ToRole, h.FailureReason)
	} else {
		logging.Get(logging.CategoryHandoff).Info("handoff %s -> %s for task %s", h.FromRole, h.ToRole, h.Context.TaskID)
	}
	return nil
}

func isLegalTransition(from, to Role) bool {
	for _, candidate := range roleDAG[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
