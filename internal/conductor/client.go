package conductor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goose-run/goose-core/internal/logging"
)

// Client maintains the persistent IPC connection described in spec §4.9.
// Run drives the full Disconnected -> Connecting -> Registered ->
// Heartbeating state machine and reconnects silently and indefinitely on
// any I/O error; the conductor being absent is never fatal to the host
// process. Safe for concurrent use.
type Client struct {
	cfg Config

	mu    sync.RWMutex
	state ConnState
	agent atomic.Value // AgentState

	drainMu      sync.Mutex
	drainRequested bool
	drainCh      chan struct{}
	drainOnce    sync.Once
}

// New constructs a Client. Call Run to start the background loop.
func New(cfg Config) *Client {
	c := &Client{cfg: cfg, state: Disconnected, drainCh: make(chan struct{})}
	c.agent.Store(StateRunning)
	return c
}

// SetState updates the state reported to the conductor on the next
// heartbeat tick.
func (c *Client) SetState(s AgentState) {
	c.agent.Store(s)
}

// State returns the client's current connection state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// DrainRequested reports whether the conductor has signaled a drain (spec
// §4.9: a child "goosed" entry with no pid, or an open health circuit).
func (c *Client) DrainRequested() bool {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()
	return c.drainRequested
}

// Drained returns a channel that is closed the moment a drain signal is
// observed, for callers that want to select on it.
func (c *Client) Drained() <-chan struct{} {
	return c.drainCh
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) signalDrain() {
	c.drainMu.Lock()
	c.drainRequested = true
	c.drainMu.Unlock()
	c.drainOnce.Do(func() { close(c.drainCh) })
}

// Run drives the client loop until ctx is cancelled. On cancellation it
// attempts a final best-effort "draining" state update before returning
// (spec §5 cancellation policy).
func (c *Client) Run(ctx context.Context) {
	var conn *ipcConn
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			if conn != nil {
				_, _ = conn.request(c.stateUpdateCommand(StateDraining), c.cfg.RequestTimeout)
			}
			logging.Get(logging.CategoryConductor).Info("conductor client shutting down")
			return
		}

		if conn == nil {
			c.setState(Connecting)
			newConn, err := c.connectAndRegister()
			if err != nil {
				logging.Get(logging.CategoryConductor).Debug("conductor not available: %v", err)
				c.setState(Disconnected)
				if !sleepOrDone(ctx, c.cfg.ReconnectInterval) {
					return
				}
				continue
			}
			conn = newConn
			c.setState(Registered)
			logging.Get(logging.CategoryConductor).Info("connected and registered with conductor at %s", c.cfg.IPCPath)
		}

		if err := c.heartbeatLoop(ctx, conn); err != nil {
			logging.Get(logging.CategoryConductor).Warn("conductor connection lost: %v", err)
			_ = conn.Close()
			conn = nil
			c.setState(Disconnected)
			if !sleepOrDone(ctx, c.cfg.ReconnectInterval) {
				return
			}
		}
	}
}

// connectAndRegister dials the conductor, verifies it with a ping, and
// publishes a registration event (spec §4.9 "Connecting -> (Ping ok) ->
// Registered").
func (c *Client) connectAndRegister() (*ipcConn, error) {
	conn, err := dialIPC(c.cfg.IPCPath, c.cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	resp, err := conn.request(command{Cmd: "ping"}, c.cfg.RequestTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if !resp.OK {
		_ = conn.Close()
		return nil, fmt.Errorf("ping rejected: %s", resp.Error)
	}

	registerCmd := command{
		Cmd:    "publish",
		Topic:  "agent.lifecycle",
		Sender: c.cfg.InstanceID,
		Payload: map[string]interface{}{
			"event":          "register",
			"agent_id":       c.cfg.InstanceID,
			"agent_type":     "goosed",
			"pid":            os.Getpid(),
			"registered_at":  time.Now().UTC().Format(time.RFC3339),
		},
	}
	resp, err = conn.request(registerCmd, c.cfg.RequestTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("register: %w", err)
	}
	if !resp.OK {
		_ = conn.Close()
		return nil, fmt.Errorf("registration rejected: %s", resp.Error)
	}

	return conn, nil
}

func (c *Client) stateUpdateCommand(state AgentState) command {
	return command{
		Cmd:    "publish",
		Topic:  "agent.state",
		Sender: c.cfg.InstanceID,
		Payload: map[string]interface{}{
			"agent_id":  c.cfg.InstanceID,
			"state":     state,
			"pid":       os.Getpid(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// heartbeatLoop sends one state update + ping + status check per tick,
// skipping (not queuing) missed ticks (spec §5 "Missed ticks are skipped,
// not queued").
func (c *Client) heartbeatLoop(ctx context.Context, conn *ipcConn) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.setState(Heartbeating)
			if err := c.heartbeatOnce(conn); err != nil {
				return err
			}
			c.setState(Registered)
		}
	}
}

func (c *Client) heartbeatOnce(conn *ipcConn) error {
	current := c.agent.Load().(AgentState)

	if _, err := conn.request(c.stateUpdateCommand(current), c.cfg.RequestTimeout); err != nil {
		return fmt.Errorf("state update: %w", err)
	}

	resp, err := conn.request(command{Cmd: "ping"}, c.cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("ping failed")
	}

	statusResp, err := conn.request(command{Cmd: "get_status"}, c.cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("get_status: %w", err)
	}
	if statusResp.OK && len(statusResp.Data) > 0 {
		var data statusData
		if err := decodeStatus(statusResp.Data, &data); err == nil {
			if shouldDrain(data) {
				logging.Get(logging.CategoryConductor).Info("conductor signaled drain")
				c.signalDrain()
			}
		}
	}

	logging.Get(logging.CategoryConductor).Debug("heartbeat sent, state=%s", current)
	return nil
}

func shouldDrain(data statusData) bool {
	for _, child := range data.Children {
		if child.Kind == "goosed" && child.PID == nil {
			return true
		}
	}
	return data.Health.Circuit == "Open"
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
