package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shHandler(id string, event EventType, script string) Handler {
	return Handler{
		ID:      id,
		Event:   event,
		Type:    HandlerCommand,
		Command: "/bin/sh",
		Args:    []string{"-c", script},
		Enabled: true,
		Timeout: 2 * time.Second,
	}
}

func TestEventTypeCanBlock(t *testing.T) {
	assert.True(t, EventPreToolUse.CanBlock())
	assert.True(t, EventUserPromptSubmit.CanBlock())
	assert.False(t, EventPostToolUse.CanBlock())
	assert.False(t, EventNotification.CanBlock())
	assert.False(t, EventStop.CanBlock())
}

func TestMatcherAcceptsByToolName(t *testing.T) {
	m := Matcher{ToolNames: []string{"Write", "Edit"}}
	assert.True(t, m.Accepts(Event{ToolName: "Write"}))
	assert.False(t, m.Accepts(Event{ToolName: "Read"}))
}

func TestMatcherAcceptsByPattern(t *testing.T) {
	m := Matcher{ToolPattern: "^File.*"}
	assert.True(t, m.Accepts(Event{ToolName: "FileWrite"}))
	assert.False(t, m.Accepts(Event{ToolName: "Bash"}))
}

func TestMatcherAcceptsBySessionSource(t *testing.T) {
	m := Matcher{SessionSources: []string{"sess-1"}}
	assert.True(t, m.Accepts(Event{SessionID: "sess-1"}))
	assert.False(t, m.Accepts(Event{SessionID: "sess-2"}))
}

func TestDispatchExitZeroIsContinue(t *testing.T) {
	r := NewRegistry()
	r.Register(shHandler("h1", EventPreToolUse, "exit 0"))

	result := r.Dispatch(context.Background(), Event{Type: EventPreToolUse, ToolName: "Write"})
	assert.Equal(t, DecisionContinue, result.Decision)
}

func TestDispatchExitTwoIsBlock(t *testing.T) {
	r := NewRegistry()
	r.Register(shHandler("h1", EventPreToolUse, "exit 2"))

	result := r.Dispatch(context.Background(), Event{Type: EventPreToolUse, ToolName: "Write"})
	assert.Equal(t, DecisionBlock, result.Decision)
}

func TestDispatchOtherNonZeroIsContinue(t *testing.T) {
	r := NewRegistry()
	r.Register(shHandler("h1", EventPreToolUse, "exit 7"))

	result := r.Dispatch(context.Background(), Event{Type: EventPreToolUse, ToolName: "Write"})
	assert.Equal(t, DecisionContinue, result.Decision, "non-zero, non-2 exit codes are handler errors, not vetoes")
}

func TestDispatchJSONDecisionOverridesExitCode(t *testing.T) {
	r := NewRegistry()
	r.Register(shHandler("h1", EventPreToolUse, `echo '{"decision":"ask","reason":"needs human review"}'; exit 0`))

	result := r.Dispatch(context.Background(), Event{Type: EventPreToolUse, ToolName: "Write"})
	assert.Equal(t, DecisionAsk, result.Decision)
	assert.Equal(t, "needs human review", result.Reason)
}

func TestDispatchTimeoutTreatedAsContinue(t *testing.T) {
	r := NewRegistry()
	h := shHandler("h1", EventPreToolUse, "sleep 5")
	h.Timeout = 50 * time.Millisecond
	r.Register(h)

	result := r.Dispatch(context.Background(), Event{Type: EventPreToolUse, ToolName: "Write"})
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].TimedOut)
	assert.Equal(t, DecisionContinue, result.Decision)
}

func TestDispatchMostRestrictiveDecisionWins(t *testing.T) {
	r := NewRegistry()
	r.Register(shHandler("continue-handler", EventPreToolUse, "exit 0"))
	r.Register(shHandler("block-handler", EventPreToolUse, "exit 2"))

	result := r.Dispatch(context.Background(), Event{Type: EventPreToolUse, ToolName: "Write"})
	assert.Equal(t, DecisionBlock, result.Decision)
	assert.Len(t, result.Results, 2)
}

func TestDispatchNonBlockingEventDowngradesBlock(t *testing.T) {
	r := NewRegistry()
	r.Register(shHandler("h1", EventPostToolUse, "exit 2"))

	result := r.Dispatch(context.Background(), Event{Type: EventPostToolUse, ToolName: "Write"})
	assert.Equal(t, DecisionContinue, result.Decision)
	require.Len(t, result.Results, 1)
	assert.Equal(t, DecisionContinue, result.Results[0].Decision)
}

func TestDispatchIgnoresCallerSuppliedCanBlock(t *testing.T) {
	r := NewRegistry()
	r.Register(shHandler("h1", EventStop, "exit 2"))

	// A caller passing CanBlock: true for an event type that structurally
	// cannot block must not be able to force a Block decision through.
	result := r.Dispatch(context.Background(), Event{Type: EventStop, ToolName: "Write", CanBlock: true})
	assert.Equal(t, DecisionContinue, result.Decision)
}

func TestDispatchOnlyMatchingHandlersRun(t *testing.T) {
	r := NewRegistry()
	h := shHandler("scoped", EventPreToolUse, "exit 2")
	h.Matcher = Matcher{ToolNames: []string{"Bash"}}
	r.Register(h)

	result := r.Dispatch(context.Background(), Event{Type: EventPreToolUse, ToolName: "Write"})
	assert.Empty(t, result.Results)
	assert.Equal(t, DecisionContinue, result.Decision)
}

func TestDispatchDisabledHandlersAreSkipped(t *testing.T) {
	r := NewRegistry()
	h := shHandler("disabled", EventPreToolUse, "exit 2")
	h.Enabled = false
	r.Register(h)

	result := r.Dispatch(context.Background(), Event{Type: EventPreToolUse, ToolName: "Write"})
	assert.Empty(t, result.Results)
}
