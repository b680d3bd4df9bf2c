package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goose-run/goose-core/internal/logging"
)

// Registry holds enabled handlers per event type and dispatches events to
// every matching handler in parallel (spec §4.8). Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewRegistry constructs an empty Hook Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[EventType][]Handler)}
}

// Register adds a handler. Disabled handlers are stored but never matched.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Event] = append(r.handlers[h.Event], h)
}

// MatchingHandlers returns the enabled handlers whose matcher accepts e.
func (r *Registry) MatchingHandlers(e Event) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handler
	for _, h := range r.handlers[e.Type] {
		if !h.Enabled {
			continue
		}
		if h.Matcher.Accepts(e) {
			out = append(out, h)
		}
	}
	return out
}

// severity ranks decisions so the most restrictive one wins when
// aggregating across handlers for a single event.
func severity(d Decision) int {
	switch d {
	case DecisionBlock:
		return 3
	case DecisionAsk:
		return 2
	case DecisionApprove:
		return 1
	default:
		return 0
	}
}

// Dispatch runs every matching handler for e concurrently (via
// golang.org/x/sync/errgroup, grounded on the parallel-check pattern used
// elsewhere in goose-core's OTA Health Checker) and aggregates their
// decisions, most-restrictive wins.
func (r *Registry) Dispatch(ctx context.Context, e Event) DispatchResult {
	e.CanBlock = e.Type.CanBlock()
	matching := r.MatchingHandlers(e)
	results := make([]HandlerResult, len(matching))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range matching {
		i, h := i, h
		g.Go(func() error {
			results[i] = runHandler(gctx, h, e)
			return nil
		})
	}
	_ = g.Wait() // runHandler never returns an error; failures are encoded in HandlerResult

	if !e.CanBlock {
		for i := range results {
			if results[i].Decision == DecisionBlock || results[i].Decision == DecisionAsk {
				logging.Get(logging.CategoryHooks).Warn("handler %s returned %s on non-blocking event %s, downgrading to continue", results[i].HandlerID, results[i].Decision, e.Type)
				results[i].Decision = DecisionContinue
			}
		}
	}

	out := DispatchResult{Event: e, Results: results, Decision: DecisionContinue}
	for _, res := range results {
		if severity(res.Decision) > severity(out.Decision) {
			out.Decision = res.Decision
			out.Reason = res.Reason
		}
	}
	if out.Decision == DecisionBlock || out.Decision == DecisionAsk {
		logging.Get(logging.CategoryHooks).Warn("event %s %s: %s", e.Type, out.Decision, out.Reason)
	}
	return out
}

func runHandler(ctx context.Context, h Handler, e Event) HandlerResult {
	stdin, err := envelope(h, e)
	if err != nil {
		return HandlerResult{HandlerID: h.ID, Decision: DecisionContinue, Reason: fmt.Sprintf("envelope error: %v", err)}
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, h.Command, h.Args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		logging.Get(logging.CategoryHooks).Warn("handler %s timed out after %s", h.ID, timeout)
		return HandlerResult{HandlerID: h.ID, Decision: DecisionContinue, TimedOut: true, Output: out.String()}
	}

	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		// Could not even start the process: treat as a handler error, not a veto.
		logging.Get(logging.CategoryHooks).Error("handler %s failed to start: %v", h.ID, runErr)
		return HandlerResult{HandlerID: h.ID, Decision: DecisionContinue, Reason: runErr.Error(), ExitCode: -1, Output: out.String()}
	}

	if decision, reason, ok := parseDecisionJSON(out.Bytes()); ok {
		return HandlerResult{HandlerID: h.ID, Decision: decision, Reason: reason, ExitCode: exitCode, Output: out.String()}
	}

	switch exitCode {
	case 0:
		return HandlerResult{HandlerID: h.ID, Decision: DecisionContinue, ExitCode: exitCode, Output: out.String()}
	case 2:
		return HandlerResult{HandlerID: h.ID, Decision: DecisionBlock, Reason: fmt.Sprintf("handler %s exited 2", h.ID), ExitCode: exitCode, Output: out.String()}
	default:
		logging.Get(logging.CategoryHooks).Warn("handler %s exited %d (treated as Continue)", h.ID, exitCode)
		return HandlerResult{HandlerID: h.ID, Decision: DecisionContinue, ExitCode: exitCode, Output: out.String()}
	}
}

const defaultHandlerTimeout = 30 * time.Second

// parseDecisionJSON reads a decision JSON object from the handler's output:
// the trimmed output must be exactly one JSON object carrying a known
// decision. Any other output (plain text, or text or a second object around
// the JSON) is not an error, it simply means no override is present.
func parseDecisionJSON(output []byte) (Decision, string, bool) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", "", false
	}
	var decoded decisionOutput
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return "", "", false
	}
	switch decoded.Decision {
	case DecisionContinue, DecisionApprove, DecisionBlock, DecisionAsk:
		return decoded.Decision, decoded.Reason, true
	default:
		return "", "", false
	}
}

// envelope builds the stdin payload for h given e: Command/Script handlers
// receive the raw event JSON, Prompt handlers wrap it in a prompt
// envelope, and Agent handlers wrap it with an explicit instructions field
// (spec §4.8).
func envelope(h Handler, e Event) ([]byte, error) {
	eventJSON, err := json.Marshal(struct {
		Type      EventType              `json:"hook_event_type"`
		SessionID string                 `json:"session_id"`
		ToolName  string                 `json:"tool_name,omitempty"`
		ToolInput map[string]interface{} `json:"tool_input,omitempty"`
		Prompt    string                 `json:"prompt,omitempty"`
		CanBlock  bool                   `json:"can_block"`
	}{e.Type, e.SessionID, e.ToolName, e.ToolInput, e.Prompt, e.Type.CanBlock()})
	if err != nil {
		return nil, err
	}

	switch h.Type {
	case HandlerPrompt:
		return json.Marshal(struct {
			Prompt string          `json:"prompt"`
			Event  json.RawMessage `json:"event"`
		}{Prompt: "Evaluate this tool use event and decide whether to continue, approve, ask, or block.", Event: eventJSON})
	case HandlerAgent:
		return json.Marshal(struct {
			Instructions string          `json:"instructions"`
			Event        json.RawMessage `json:"event"`
		}{Instructions: h.Instructions, Event: eventJSON})
	default: // Command, Script
		return eventJSON, nil
	}
}
