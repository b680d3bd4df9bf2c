// Package capability implements the pipeline Capability Enforcer and Handoff
// Manager: per-role file/command permissions and the Architect -> Developer
// -> Qa -> Security -> Deployer role DAG, grounded on the teacher's
// ShardManager role/config pattern (internal/shards) and the glob matching
// idiom in internal/northstar/guardian.go.
package capability

import (
	"errors"
	"time"
)

// Role is one of the five pipeline stages enforced by the Capability
// Enforcer and Handoff Manager. Distinct from the advisory "specialist"
// roles (Code, Test, Review, Deploy, Security, Docs) used by orchestration
// cores, which this package does not model.
type Role string

const (
	Architect Role = "architect"
	Developer Role = "developer"
	Qa        Role = "qa"
	Security  Role = "security"
	Deployer  Role = "deployer"
)

// roleDAG lists the legal to-roles reachable from each role (spec §3
// "Handoff"). Deployer is terminal.
var roleDAG = map[Role][]Role{
	Architect: {Developer},
	Developer: {Qa, Architect},
	Qa:        {Security, Developer},
	Security:  {Deployer, Developer},
	Deployer:  {},
}

// OperationKind is one of the operation types a role may or may not be
// permitted to perform.
type OperationKind string

const (
	OpRead      OperationKind = "read"
	OpWrite     OperationKind = "write"
	OpExecute   OperationKind = "execute"
	OpEditCode  OperationKind = "edit_code"
	OpDelete    OperationKind = "delete"
	OpCreateDir OperationKind = "create_dir"
	OpSearch    OperationKind = "search"
)

// Operation is a single requested action, carrying either a filesystem path
// (Read/Write/EditCode/Delete/CreateDir/Search) or a command string
// (Execute).
type Operation struct {
	Kind    OperationKind
	Path    string
	Command string
}

// Capabilities is the set of operation kinds a role is permitted to attempt
// at all, independent of path/command filtering.
type Capabilities struct {
	Read      bool
	Write     bool
	Execute   bool
	EditCode  bool
	Delete    bool
	CreateDir bool
	Search    bool
}

func (c Capabilities) allows(kind OperationKind) bool {
	switch kind {
	case OpRead:
		return c.Read
	case OpWrite:
		return c.Write
	case OpExecute:
		return c.Execute
	case OpEditCode:
		return c.EditCode
	case OpDelete:
		return c.Delete
	case OpCreateDir:
		return c.CreateDir
	case OpSearch:
		return c.Search
	default:
		return false
	}
}

// FilePatterns governs which paths a role may touch. Blocked always wins
// over allowed; an empty Allowed list means "all permitted except blocked"
// (spec §3 "Pipeline role permissions").
type FilePatterns struct {
	Allowed  []string
	Blocked  []string
	ReadOnly []string
}

// CommandPermissions governs which command base tokens a role may run.
type CommandPermissions struct {
	Allowed []string
	Blocked []string
}

// RoleConfig is the full permission record for one pipeline role.
type RoleConfig struct {
	Role        Role
	Caps        Capabilities
	Files       FilePatterns
	Commands    CommandPermissions
}

// DefaultRoleConfigs returns the built-in permission set for the five
// pipeline roles. Delete is denied for every role by default (spec §3
// invariant); callers may override via Enforcer.SetRoleConfig.
func DefaultRoleConfigs() map[Role]RoleConfig {
	base := Capabilities{Read: true, Write: true, Execute: true, EditCode: true, Search: true, CreateDir: true}
	return map[Role]RoleConfig{
		Architect: {
			Role: Architect,
			Caps: Capabilities{Read: true, Write: true, Search: true, CreateDir: true},
			Files: FilePatterns{
				Allowed: []string{"*.md", "docs/*", "design/*"},
			},
		},
		Developer: {
			Role: Developer,
			Caps: base,
			Commands: CommandPermissions{
				Blocked: []string{"rm", "sudo", "dd"},
			},
		},
		Qa: {
			Role: Qa,
			Caps: Capabilities{Read: true, Execute: true, Search: true},
			Commands: CommandPermissions{
				Blocked: []string{"rm", "sudo", "dd"},
			},
		},
		Security: {
			Role: Security,
			Caps: Capabilities{Read: true, Execute: true, Search: true},
			Commands: CommandPermissions{
				Blocked: []string{"rm", "sudo", "dd"},
			},
		},
		Deployer: {
			Role: Deployer,
			Caps: Capabilities{Read: true, Execute: true, Search: true},
			Files: FilePatterns{
				Blocked: []string{"*_test.go", "*.go"},
			},
			Commands: CommandPermissions{
				Blocked: []string{"rm", "sudo", "dd"},
				Allowed: []string{"docker", "kubectl", "terraform", "git"},
			},
		},
	}
}

// Decision is the outcome of enforcing a single operation.
type Decision struct {
	Allowed bool
	Reason  string
}

// EnforcementRecord is one audit entry appended to the Enforcer's history,
// preserved across role switches (spec §4.5 "preserves enforcement history
// for audit").
type EnforcementRecord struct {
	Role      Role
	Operation Operation
	Decision  Decision
	At        time.Time
}

// ValidationRuleType is one of the handoff gate checks external
// collaborators evaluate (spec §4.6).
type ValidationRuleType string

const (
	RuleAllTestsPass          ValidationRuleType = "all_tests_pass"
	RuleNoCompilationErrors   ValidationRuleType = "no_compilation_errors"
	RuleSecurityScanClean     ValidationRuleType = "security_scan_clean"
	RuleCodeCoverageMinimum   ValidationRuleType = "code_coverage_minimum"
	RuleDocumentationComplete ValidationRuleType = "documentation_complete"
	RuleNoTodoComments        ValidationRuleType = "no_todo_comments"
	RuleLintChecksPassed      ValidationRuleType = "lint_checks_passed"
	RuleArtifactsPresent      ValidationRuleType = "artifacts_present"
)

// ValidationRule pairs a rule type with an external evaluator. Evaluate
// reports whether the rule is satisfied and an optional detail message.
type ValidationRule struct {
	Type     ValidationRuleType
	Evaluate func() (bool, string)
}

// HandoffContext carries metadata about the task being handed off.
type HandoffContext struct {
	TaskID      string
	Description string
	Timestamp   time.Time
	Metadata    map[string]string
}

// Handoff describes a requested role transition.
type Handoff struct {
	FromRole        Role
	ToRole          Role
	Artifacts       []string
	ValidationRules []ValidationRule
	Context         HandoffContext
	IsFailure       bool
	FailureReason   string
}

// HandoffRecord is one completed transition appended to the Handoff
// Manager's history.
type HandoffRecord struct {
	Handoff Handoff
	At      time.Time
}

var (
	ErrWrongCurrentRole  = errors.New("capability: handoff from_role does not match current role")
	ErrIllegalTransition = errors.New("capability: transition is not in the legal role DAG")
	ErrMissingArtifact   = errors.New("capability: required artifact does not exist")
	ErrValidationFailed  = errors.New("capability: validation rule failed")
)
