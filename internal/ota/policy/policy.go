// Package policy implements the Policy Engine (spec §4.15): runtime policy
// enforcement for self-modification operations, ported from the original
// Rust PolicyEngine (ota/policy_engine.rs) with field names adapted to Go
// idiom.
package policy

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
)

// Action is what the policy engine decides to do about a proposed change.
type Action string

const (
	ActionAllow           Action = "allow"
	ActionDeny            Action = "deny"
	ActionWarn            Action = "warn"
	ActionRequireApproval Action = "require_approval"
)

// Severity ranks how bad a violation is, lowest to highest.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// RuleType identifies what kind of check a rule performs.
type RuleType string

const (
	RuleTypeFilePath  RuleType = "file_path_rule"
	RuleTypeFileSize  RuleType = "file_size_rule"
	RuleTypeRiskLevel RuleType = "risk_level_rule"
	RuleTypeTimeWindow RuleType = "time_window_rule"
	RuleTypeRateLimit RuleType = "rate_limit_rule"
)

// Rule is a single policy rule definition.
type Rule struct {
	ID          string
	Name        string
	RuleType    RuleType
	Description string
	Action      Action
	Severity    Severity
	Enabled     bool
}

// Violation is a recorded firing of a rule.
type Violation struct {
	RuleID    string
	RuleName  string
	Action    Action
	Severity  Severity
	Message   string
	Timestamp time.Time
}

// Evaluation is the result of evaluating all applicable rules for a proposed
// change.
type Evaluation struct {
	Violations []Violation
	Allowed    bool
	Summary    string
}

// Allow builds an Evaluation with no violations.
func Allow(summary string) Evaluation {
	return Evaluation{Allowed: true, Summary: summary}
}

// FromViolations builds an Evaluation from a set of fired violations; the
// change is allowed only if none of them is a Deny.
func FromViolations(violations []Violation) Evaluation {
	hasDeny := false
	hasApproval := false
	var denied []string
	for _, v := range violations {
		switch v.Action {
		case ActionDeny:
			hasDeny = true
			denied = append(denied, v.RuleName)
		case ActionRequireApproval:
			hasApproval = true
		}
	}

	var summary string
	switch {
	case len(violations) == 0:
		summary = "No policy violations"
	case hasDeny:
		summary = fmt.Sprintf("BLOCKED by: %s", strings.Join(denied, ", "))
	case hasApproval:
		summary = fmt.Sprintf("%d violation(s), approval required", len(violations))
	default:
		summary = fmt.Sprintf("%d warning(s)", len(violations))
	}

	return Evaluation{Violations: violations, Allowed: !hasDeny, Summary: summary}
}

// Engine is the runtime policy engine that evaluates proposed
// self-modification changes (spec §4.15).
type Engine struct {
	mu                sync.Mutex
	rules             []Rule
	violationsLog     []Violation
	blockedPaths      []string
	maxFileSizeBytes  int64
	maxChangesPerHour int
	changesThisHour   int
}

// New creates a policy engine with the default rule set.
func New() *Engine {
	return &Engine{
		blockedPaths: []string{
			"go.mod", "go.sum", "main.go", "doc.go",
			".github/", ".git/",
		},
		rules: []Rule{
			{ID: "blocked-path", Name: "Blocked File Path", RuleType: RuleTypeFilePath,
				Description: "Prevents modification of core project files", Action: ActionDeny, Severity: SeverityCritical, Enabled: true},
			{ID: "file-size-limit", Name: "File Size Limit", RuleType: RuleTypeFileSize,
				Description: "Rejects changes larger than the configured byte limit", Action: ActionDeny, Severity: SeverityError, Enabled: true},
			{ID: "high-risk-gate", Name: "High Risk Gate", RuleType: RuleTypeRiskLevel,
				Description: "Requires approval for high risk changes; critical risk changes are denied", Action: ActionRequireApproval, Severity: SeverityWarning, Enabled: true},
			{ID: "rate-limit", Name: "Hourly Rate Limit", RuleType: RuleTypeRateLimit,
				Description: "Caps the number of self-modifications per hour", Action: ActionDeny, Severity: SeverityError, Enabled: true},
		},
		maxFileSizeBytes:  100_000,
		maxChangesPerHour: 10,
	}
}

// AddRule appends a custom rule to the engine.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
	logging.Get(logging.CategoryPolicy).Info("added policy rule %s (%s)", r.ID, r.Name)
}

// EvaluateFileChange checks a proposed file write against blocked paths,
// file size limit, and the hourly rate limit (spec §4.15).
func (e *Engine) EvaluateFileChange(path string, contentSize int64) Evaluation {
	e.mu.Lock()
	defer e.mu.Unlock()

	var violations []Violation

	if e.isPathBlockedLocked(path) {
		v := Violation{RuleID: "blocked-path", RuleName: "Blocked File Path", Action: ActionDeny,
			Severity: SeverityCritical, Message: fmt.Sprintf("Path is blocked: %s", path), Timestamp: time.Now()}
		logging.Get(logging.CategoryPolicy).Warn("policy DENY: blocked path %s", path)
		violations = append(violations, v)
	}

	if contentSize > e.maxFileSizeBytes {
		v := Violation{RuleID: "file-size-limit", RuleName: "File Size Limit", Action: ActionDeny,
			Severity: SeverityError, Message: fmt.Sprintf("Content size %d exceeds limit %d", contentSize, e.maxFileSizeBytes), Timestamp: time.Now()}
		logging.Get(logging.CategoryPolicy).Warn("policy DENY: file size %d exceeds %d", contentSize, e.maxFileSizeBytes)
		violations = append(violations, v)
	}

	if e.changesThisHour >= e.maxChangesPerHour {
		v := Violation{RuleID: "rate-limit", RuleName: "Hourly Rate Limit", Action: ActionDeny,
			Severity: SeverityError, Message: fmt.Sprintf("Rate limit reached: %d/%d changes this hour", e.changesThisHour, e.maxChangesPerHour), Timestamp: time.Now()}
		logging.Get(logging.CategoryPolicy).Warn("policy DENY: rate limit %d/%d", e.changesThisHour, e.maxChangesPerHour)
		violations = append(violations, v)
	}

	for _, v := range violations {
		e.violationsLog = append(e.violationsLog, v)
	}

	eval := FromViolations(violations)
	if eval.Allowed {
		e.changesThisHour++
	}
	return eval
}

// EvaluateRiskLevel evaluates a risk level string (low/medium/high/critical).
func (e *Engine) EvaluateRiskLevel(risk string) Evaluation {
	switch strings.ToLower(risk) {
	case "low", "none":
		return Allow("Low risk - allowed")
	case "medium":
		return FromViolations([]Violation{{
			RuleID: "high-risk-gate", RuleName: "High Risk Gate", Action: ActionWarn,
			Severity: SeverityInfo, Message: "Medium risk: proceed with caution", Timestamp: time.Now(),
		}})
	case "high":
		return FromViolations([]Violation{{
			RuleID: "high-risk-gate", RuleName: "High Risk Gate", Action: ActionRequireApproval,
			Severity: SeverityWarning, Message: "High risk: requires approval", Timestamp: time.Now(),
		}})
	case "critical":
		return FromViolations([]Violation{{
			RuleID: "high-risk-gate", RuleName: "High Risk Gate", Action: ActionDeny,
			Severity: SeverityCritical, Message: "Critical risk: denied", Timestamp: time.Now(),
		}})
	default:
		return Allow(fmt.Sprintf("Unknown risk '%s' - defaulting to allow", risk))
	}
}

// IsPathBlocked reports whether path matches any blocked path pattern.
func (e *Engine) IsPathBlocked(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isPathBlockedLocked(path)
}

func (e *Engine) isPathBlockedLocked(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	fileName := normalized
	if i := strings.LastIndex(normalized, "/"); i >= 0 {
		fileName = normalized[i+1:]
	}

	for _, blocked := range e.blockedPaths {
		trimmed := strings.TrimSuffix(blocked, "/")
		if fileName == trimmed {
			return true
		}
		if strings.HasSuffix(blocked, "/") {
			if strings.Contains(normalized, "/"+trimmed+"/") || strings.HasPrefix(normalized, trimmed+"/") {
				return true
			}
		}
	}
	return false
}

// Violations returns every violation recorded so far.
func (e *Engine) Violations() []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Violation, len(e.violationsLog))
	copy(out, e.violationsLog)
	return out
}

// Rules returns the engine's configured rules.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// ResetHourlyCounter zeroes the hourly change counter. Nothing resets the
// counter on a timer; it returns to zero only when this is called.
func (e *Engine) ResetHourlyCounter() {
	e.mu.Lock()
	defer e.mu.Unlock()
	logging.Get(logging.CategoryPolicy).Info("resetting hourly change counter (was %d)", e.changesThisHour)
	e.changesThisHour = 0
}

// ChangesThisHour returns the current hourly change count.
func (e *Engine) ChangesThisHour() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changesThisHour
}

// SetMaxFileSizeBytes overrides the default file size limit.
func (e *Engine) SetMaxFileSizeBytes(n int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxFileSizeBytes = n
}

// SetMaxChangesPerHour overrides the default hourly rate limit.
func (e *Engine) SetMaxChangesPerHour(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxChangesPerHour = n
}
