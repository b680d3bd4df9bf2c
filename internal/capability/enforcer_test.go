package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOperationDeniesMissingCapability(t *testing.T) {
	e := NewEnforcer(Deployer)
	d := e.CheckOperation(Operation{Kind: OpWrite, Path: "main.go"})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "lacks capability")
}

func TestCheckOperationBlockedPatternWinsOverAllowed(t *testing.T) {
	e := NewEnforcer(Architect)
	// Architect allows *.md, docs/*, design/* — blocked list is empty here,
	// so exercise the precedence rule with an explicit override.
	e.SetRoleConfig(RoleConfig{
		Role: Architect,
		Caps: Capabilities{Read: true, Write: true},
		Files: FilePatterns{
			Allowed: []string{"*.md"},
			Blocked: []string{"SECRET.md"},
		},
	})

	allowed := e.CheckOperation(Operation{Kind: OpWrite, Path: "README.md"})
	assert.True(t, allowed.Allowed)

	blocked := e.CheckOperation(Operation{Kind: OpWrite, Path: "SECRET.md"})
	assert.False(t, blocked.Allowed)
	assert.Contains(t, blocked.Reason, "blocked pattern")
}

func TestCheckOperationReadOnlyBlocksMutationButAllowsRead(t *testing.T) {
	e := NewEnforcer(Developer)
	e.SetRoleConfig(RoleConfig{
		Role: Developer,
		Caps: Capabilities{Read: true, Write: true, EditCode: true, Delete: true, CreateDir: true},
		Files: FilePatterns{
			ReadOnly: []string{"internal/ota/*"},
		},
	})

	write := e.CheckOperation(Operation{Kind: OpWrite, Path: "internal/ota/manager.go"})
	assert.False(t, write.Allowed)
	assert.Contains(t, write.Reason, "read-only pattern")

	del := e.CheckOperation(Operation{Kind: OpDelete, Path: "internal/ota/manager.go"})
	assert.False(t, del.Allowed)

	read := e.CheckOperation(Operation{Kind: OpRead, Path: "internal/ota/manager.go"})
	assert.True(t, read.Allowed, "read-only patterns must not block reads")
}

func TestCheckOperationEmptyAllowedPermitsAllNonBlocked(t *testing.T) {
	e := NewEnforcer(Developer)
	d := e.CheckOperation(Operation{Kind: OpWrite, Path: "any/path/here.go"})
	assert.True(t, d.Allowed)
}

func TestCheckOperationCommandBaseTokenMatching(t *testing.T) {
	e := NewEnforcer(Developer)
	blocked := e.CheckOperation(Operation{Kind: OpExecute, Command: "rm -rf /"})
	assert.False(t, blocked.Allowed)

	allowed := e.CheckOperation(Operation{Kind: OpExecute, Command: "go test ./..."})
	assert.True(t, allowed.Allowed)
}

func TestCheckOperationCommandAllowedListRestricts(t *testing.T) {
	e := NewEnforcer(Deployer)
	allowed := e.CheckOperation(Operation{Kind: OpExecute, Command: "kubectl apply -f ."})
	assert.True(t, allowed.Allowed)

	denied := e.CheckOperation(Operation{Kind: OpExecute, Command: "curl http://example.com"})
	assert.False(t, denied.Allowed)
}

func TestDeleteDeniedByDefaultForEveryRole(t *testing.T) {
	for role := range DefaultRoleConfigs() {
		e := NewEnforcer(role)
		d := e.CheckOperation(Operation{Kind: OpDelete, Path: "anything"})
		assert.False(t, d.Allowed, "role %s should deny delete by default", role)
	}
}

func TestEnforceOperationsShortCircuitsOnFirstDenial(t *testing.T) {
	e := NewEnforcer(Developer)
	ops := []Operation{
		{Kind: OpRead, Path: "a.go"},
		{Kind: OpExecute, Command: "rm -rf /"},
		{Kind: OpWrite, Path: "b.go"},
	}
	decisions, denialIdx := e.EnforceOperations(ops)
	assert.Equal(t, 1, denialIdx)
	assert.Len(t, decisions, 2, "should stop evaluating after the denial")
}

func TestCheckOperationsEvaluatesAllIndependently(t *testing.T) {
	e := NewEnforcer(Developer)
	ops := []Operation{
		{Kind: OpRead, Path: "a.go"},
		{Kind: OpExecute, Command: "rm -rf /"},
		{Kind: OpWrite, Path: "b.go"},
	}
	decisions := e.CheckOperations(ops)
	assert.Len(t, decisions, 3)
	assert.True(t, decisions[0].Allowed)
	assert.False(t, decisions[1].Allowed)
	assert.True(t, decisions[2].Allowed)
}

func TestSwitchRolePreservesHistory(t *testing.T) {
	e := NewEnforcer(Developer)
	e.CheckOperation(Operation{Kind: OpRead, Path: "a.go"})
	e.SwitchRole(Qa)
	e.CheckOperation(Operation{Kind: OpExecute, Command: "go test ./..."})

	history := e.History()
	assert.Len(t, history, 2)
	assert.Equal(t, Developer, history[0].Role)
	assert.Equal(t, Qa, history[1].Role)
	assert.Equal(t, Qa, e.CurrentRole())
}
