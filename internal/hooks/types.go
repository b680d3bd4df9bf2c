// Package hooks implements the Hook Registry: event-matched handlers that
// can observe or veto tool use, grounded on the subprocess-execution idiom
// in the teacher's internal/tactile (DirectExecutor/SafeExecutor) package.
package hooks

import (
	"encoding/json"
	"regexp"
	"time"
)

// EventType is one of the five lifecycle events a hook can fire on.
type EventType string

const (
	EventPreToolUse       EventType = "PreToolUse"
	EventPostToolUse      EventType = "PostToolUse"
	EventUserPromptSubmit EventType = "UserPromptSubmit"
	EventNotification     EventType = "Notification"
	EventStop             EventType = "Stop"
)

// CanBlock reports whether events of this type occur before the action they
// describe, so a Block/Ask decision still has something to veto.
// PostToolUse/Notification/Stop fire after the fact and can only observe.
func (t EventType) CanBlock() bool {
	return t == EventPreToolUse || t == EventUserPromptSubmit
}

// Event is a single occurrence dispatched to matching handlers. CanBlock is
// set from Type.CanBlock() by Dispatch before handlers run, overriding
// whatever the caller passed in, so a PostToolUse/Notification/Stop event
// can never carry a stale or mistaken true: it is reported to handlers (the
// envelope's "can_block" field) and enforced on the way out.
type Event struct {
	Type      EventType
	SessionID string
	ToolName  string
	ToolInput map[string]interface{}
	Prompt    string
	CanBlock  bool
}

// Matcher selects which handlers apply to an event.
type Matcher struct {
	ToolNames      []string
	ToolPattern    string
	SessionSources []string
	compiled       *regexp.Regexp
}

// compile lazily compiles ToolPattern once.
func (m *Matcher) compile() (*regexp.Regexp, error) {
	if m.ToolPattern == "" {
		return nil, nil
	}
	if m.compiled == nil {
		re, err := regexp.Compile(m.ToolPattern)
		if err != nil {
			return nil, err
		}
		m.compiled = re
	}
	return m.compiled, nil
}

// Accepts reports whether the matcher selects event, per spec §4.8: any
// set/pattern/source check that is configured must pass; unconfigured
// checks are skipped.
func (m *Matcher) Accepts(e Event) bool {
	if len(m.ToolNames) > 0 {
		found := false
		for _, name := range m.ToolNames {
			if name == e.ToolName {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.ToolPattern != "" {
		re, err := m.compile()
		if err != nil || re == nil || !re.MatchString(e.ToolName) {
			return false
		}
	}
	if len(m.SessionSources) > 0 {
		found := false
		for _, src := range m.SessionSources {
			if src == e.SessionID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// HandlerType is one of the four ways a handler is invoked.
type HandlerType string

const (
	HandlerCommand HandlerType = "command"
	HandlerScript  HandlerType = "script"
	HandlerPrompt  HandlerType = "prompt"
	HandlerAgent   HandlerType = "agent"
)

// Handler is one registered hook.
type Handler struct {
	ID           string
	Event        EventType
	Matcher      Matcher
	Type         HandlerType
	Command      string
	Args         []string
	Instructions string // Agent handlers only
	Timeout      time.Duration
	Enabled      bool
}

// Decision is the runtime's interpretation of a handler's verdict.
type Decision string

const (
	DecisionContinue Decision = "continue"
	DecisionApprove  Decision = "approve"
	DecisionBlock    Decision = "block"
	DecisionAsk      Decision = "ask"
)

// decisionOutput is the JSON shape a handler may print to stdout to
// override the exit-code-derived decision (spec §4.8).
type decisionOutput struct {
	Decision           Decision        `json:"decision"`
	Reason             string          `json:"reason"`
	HookSpecificOutput json.RawMessage `json:"hookSpecificOutput,omitempty"`
}

// HandlerResult is one handler's outcome for a dispatched event.
type HandlerResult struct {
	HandlerID string
	Decision  Decision
	Reason    string
	TimedOut  bool
	ExitCode  int
	Output    string
}

// DispatchResult aggregates every matching handler's result for one event.
type DispatchResult struct {
	Event     Event
	Results   []HandlerResult
	Decision  Decision // the most severe decision across all handlers
	Reason    string
}
