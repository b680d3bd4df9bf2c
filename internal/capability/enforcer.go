package capability

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
)

// Enforcer evaluates operation requests against the current role's
// permissions (spec §4.5). Safe for concurrent use.
type Enforcer struct {
	mu          sync.RWMutex
	current     Role
	roleConfigs map[Role]RoleConfig
	history     []EnforcementRecord
}

// NewEnforcer constructs an Enforcer starting in startRole, seeded with the
// default permission set. Callers may adjust individual roles via
// SetRoleConfig before use.
func NewEnforcer(startRole Role) *Enforcer {
	return &Enforcer{
		current:     startRole,
		roleConfigs: DefaultRoleConfigs(),
	}
}

// SetRoleConfig overrides the permission set for a role.
func (e *Enforcer) SetRoleConfig(cfg RoleConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roleConfigs[cfg.Role] = cfg
}

// CurrentRole returns the role currently being enforced.
func (e *Enforcer) CurrentRole() Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// SwitchRole resets enforcement to config for newRole, preserving history
// (spec §4.5 "Role switching resets the role config but preserves
// enforcement history for audit").
func (e *Enforcer) SwitchRole(newRole Role) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = newRole
	logging.Get(logging.CategoryCapability).Info("enforcer switched to role %s", newRole)
}

// CheckOperation evaluates op against the current role without recording
// history beyond the standard audit trail.
func (e *Enforcer) CheckOperation(op Operation) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkLocked(op)
}

func (e *Enforcer) checkLocked(op Operation) Decision {
	cfg, ok := e.roleConfigs[e.current]
	if !ok {
		return e.record(op, Decision{Allowed: false, Reason: fmt.Sprintf("role %s has no configuration", e.current)})
	}

	if !cfg.Caps.allows(op.Kind) {
		return e.record(op, Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("role %s lacks capability %s", e.current, op.Kind),
		})
	}

	if op.Kind == OpExecute {
		return e.record(op, e.checkCommand(cfg, op.Command))
	}
	return e.record(op, e.checkPath(cfg, op.Kind, op.Path))
}

// mutatesPath reports whether kind writes to the filesystem, the set
// FilePatterns.ReadOnly guards against.
func mutatesPath(kind OperationKind) bool {
	switch kind {
	case OpWrite, OpEditCode, OpDelete, OpCreateDir:
		return true
	default:
		return false
	}
}

// checkCommand compares only the base token, matching spec §4.5 step 3:
// blocked beats allowed, empty allowed permits all non-blocked.
func (e *Enforcer) checkCommand(cfg RoleConfig, command string) Decision {
	base := baseToken(command)
	for _, blocked := range cfg.Commands.Blocked {
		if blocked == base {
			return Decision{Allowed: false, Reason: fmt.Sprintf("command %q is blocked for role %s", base, cfg.Role)}
		}
	}
	if len(cfg.Commands.Allowed) == 0 {
		return Decision{Allowed: true}
	}
	for _, allowed := range cfg.Commands.Allowed {
		if allowed == base {
			return Decision{Allowed: true}
		}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("command %q is not in the allowed list for role %s", base, cfg.Role)}
}

// checkPath implements spec §4.5 step 2: blocked glob beats everything,
// then a read-only glob beats a mutating operation, then empty allowed
// list permits all non-blocked paths.
func (e *Enforcer) checkPath(cfg RoleConfig, kind OperationKind, path string) Decision {
	for _, blocked := range cfg.Files.Blocked {
		if globMatch(blocked, path) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("path %q matches blocked pattern %q for role %s", path, blocked, cfg.Role)}
		}
	}
	if mutatesPath(kind) {
		for _, readOnly := range cfg.Files.ReadOnly {
			if globMatch(readOnly, path) {
				return Decision{Allowed: false, Reason: fmt.Sprintf("path %q matches read-only pattern %q for role %s", path, readOnly, cfg.Role)}
			}
		}
	}
	if len(cfg.Files.Allowed) == 0 {
		return Decision{Allowed: true}
	}
	for _, allowed := range cfg.Files.Allowed {
		if globMatch(allowed, path) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("path %q does not match any allowed pattern for role %s", path, cfg.Role)}
}

// globMatch implements the limited glob dialect used throughout goose-core
// (spec §9 Open Question, resolved in DESIGN.md): filepath.Match, with a
// prefix fallback for a trailing "*" so "docs/*" also matches nested paths,
// matching the idiom in internal/northstar/guardian.go.
func globMatch(pattern, path string) bool {
	if matched, _ := filepath.Match(pattern, path); matched {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

func baseToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (e *Enforcer) record(op Operation, d Decision) Decision {
	e.history = append(e.history, EnforcementRecord{
		Role:      e.current,
		Operation: op,
		Decision:  d,
		At:        time.Now(),
	})
	if !d.Allowed {
		logging.Get(logging.CategoryCapability).Warn("denied %s for role %s: %s", op.Kind, e.current, d.Reason)
	}
	return d
}

// CheckOperations evaluates every operation independently (spec §4.5
// "check_operations").
func (e *Enforcer) CheckOperations(ops []Operation) []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Decision, len(ops))
	for i, op := range ops {
		out[i] = e.checkLocked(op)
	}
	return out
}

// EnforceOperations evaluates operations in order, stopping at the first
// denial (spec §4.5 "enforce_operations(seq) short-circuits on first
// denial"). Returns the decisions produced up to and including the first
// denial (or all of them if every operation is allowed), and the index of
// the first denial, or -1 if none.
func (e *Enforcer) EnforceOperations(ops []Operation) ([]Decision, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Decision
	for i, op := range ops {
		d := e.checkLocked(op)
		out = append(out, d)
		if !d.Allowed {
			return out, i
		}
	}
	return out, -1
}

// History returns a copy of the accumulated audit trail.
func (e *Enforcer) History() []EnforcementRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]EnforcementRecord, len(e.history))
	copy(out, e.history)
	return out
}
