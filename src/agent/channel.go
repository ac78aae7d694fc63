// Package agent maintains a single long-lived WebSocket connection to the
// AI analysis agent: request/response correlation for task_request, and a
// demultiplexed inbound event stream for the reconciler.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"aitrader/src/apperr"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing       State = "closing"
)

const eventBacklog = 256

// Channel owns one WebSocket connection to the agent and every in-flight
// task_request awaiter.
type Channel struct {
	cfg Config

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	pending map[string]chan pendingResult

	events chan InboundEvent
	send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}
}

type pendingResult struct {
	result *TaskResult
	err    error
}

func New(cfg Config) *Channel {
	return &Channel{
		cfg:     cfg,
		state:   StateDisconnected,
		pending: make(map[string]chan pendingResult),
		events:  make(chan InboundEvent, eventBacklog),
		send:    make(chan []byte, 64),
	}
}

// Events is the inbound demultiplexed stream consumed by the reconciler.
func (c *Channel) Events() <-chan InboundEvent {
	return c.events
}

// Start launches the connect-and-reconnect loop. It returns once the first
// connection attempt has been scheduled; callers don't block on dial.
func (c *Channel) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.closed = make(chan struct{})
	go c.run()
}

// Stop closes the connection and fails every in-flight request with
// AgentShuttingDown.
func (c *Channel) Stop() {
	c.setState(StateClosing)
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-c.closed
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// run is the reconnect loop: dial, pump until failure, backoff, retry.
func (c *Channel) run() {
	defer close(c.closed)

	delay := c.cfg.ReconnectBaseDelay
	for {
		select {
		case <-c.ctx.Done():
			c.failAllPending(apperr.AgentShuttingDown)
			return
		default:
		}

		c.setState(StateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.cfg.BaseURL, nil)
		if err != nil {
			logger.WithError(err).WithField("url", c.cfg.BaseURL).Warn("agent dial failed, backing off")
			if !c.sleepBackoff(&delay) {
				c.failAllPending(apperr.AgentShuttingDown)
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateOpen)
		delay = c.cfg.ReconnectBaseDelay
		logger.WithField("url", c.cfg.BaseURL).Info("agent channel connected")

		c.pumpUntilFailure(conn)

		c.setState(StateDisconnected)

		select {
		case <-c.ctx.Done():
			c.failAllPending(apperr.AgentShuttingDown)
			return
		default:
		}
		c.failAllPending(apperr.AgentDisconnected)
	}
}

func (c *Channel) sleepBackoff(delay *time.Duration) bool {
	timer := time.NewTimer(*delay)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
	}

	*delay *= 2
	if *delay > c.cfg.ReconnectMaxDelay {
		*delay = c.cfg.ReconnectMaxDelay
	}
	return true
}

// pumpUntilFailure runs the read loop and heartbeat watchdog for one
// connection lifetime, returning when either fails.
func (c *Channel) pumpUntilFailure(conn *websocket.Conn) {
	lastMsg := make(chan struct{}, 1)
	readErr := make(chan error, 1)

	conn.SetPongHandler(func(string) error {
		select {
		case lastMsg <- struct{}{}:
		default:
		}
		return nil
	})

	go c.writePump(conn)

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lastMsg <- struct{}{}:
			default:
			}
			c.dispatch(raw)
		}
	}()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(c.cfg.HeartbeatTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case err := <-readErr:
			logger.WithError(err).Warn("agent connection read failed")
			return
		case <-lastMsg:
			timeout.Reset(c.cfg.HeartbeatTimeout)
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.HeartbeatInterval))
		case <-timeout.C:
			logger.Warn("agent heartbeat timeout, forcing reconnect")
			_ = conn.Close()
			return
		}
	}
}

func (c *Channel) writePump(conn *websocket.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if c.State() != StateOpen {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.WithError(err).Warn("agent write failed")
				return
			}
		}
	}
}

// dispatch type-decodes one inbound frame and routes it: task_result and
// analysis_error go to the matching awaiter first, then (always) to the
// reconciler's event stream, preserving arrival order. Every frame gets a
// small {status:"ok"} (or {status:"error",reason:...}) reply, per the
// protocol's acknowledgement contract.
func (c *Channel) dispatch(raw []byte) {
	event, ok := decodeInbound(raw)
	if !ok {
		logger.WithField("frame", string(raw)).Debug("dropping malformed or unknown agent frame")
		c.sendAck("error", "malformed or unknown message type")
		return
	}

	switch {
	case event.TaskResult != nil:
		c.resolvePending(event.TaskResult.TaskID, pendingResult{result: event.TaskResult})
	case event.AnalysisError != nil && event.AnalysisError.TaskID != nil:
		c.resolvePending(*event.AnalysisError.TaskID, pendingResult{
			err: apperr.New(apperr.KindBusinessReject, "agent.request", fmt.Errorf("%s", event.AnalysisError.Error)),
		})
	}

	c.sendAck(TypeAck, "")

	select {
	case c.events <- event:
	case <-c.ctx.Done():
	}
}

// sendAck queues a small acknowledgement frame for the write pump. Best
// effort: dropped rather than blocking the read loop if the send buffer
// is saturated.
func (c *Channel) sendAck(status, reason string) {
	ack := map[string]string{"status": status}
	if reason != "" {
		ack["reason"] = reason
	}
	raw, err := json.Marshal(ack)
	if err != nil {
		return
	}

	select {
	case c.send <- raw:
	default:
		logger.WithField("status", status).Debug("dropping agent ack, send buffer full")
	}
}

func (c *Channel) resolvePending(taskID string, res pendingResult) {
	c.mu.Lock()
	ch, ok := c.pending[taskID]
	if ok {
		delete(c.pending, taskID)
	}
	c.mu.Unlock()

	if ok {
		ch <- res
	}
}

func (c *Channel) failAllPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan pendingResult)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- pendingResult{err: err}
	}
}

// Request sends a task_request and blocks for the matching task_result or
// analysis_error, up to the configured request timeout or ctx's deadline.
func (c *Channel) Request(ctx context.Context, action, instID string, extra map[string]interface{}) (*TaskResult, error) {
	if c.State() != StateOpen {
		return nil, apperr.AgentDisconnected
	}

	taskID := uuid.NewString()
	payload := map[string]interface{}{"action": action, "inst_id": instID}
	for k, v := range extra {
		payload[k] = v
	}

	req := TaskRequest{Type: TypeTaskRequest, TaskID: taskID, Payload: payload}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.New(apperr.KindInvariant, "agent.Request", err)
	}

	resultCh := make(chan pendingResult, 1)
	c.mu.Lock()
	c.pending[taskID] = resultCh
	c.mu.Unlock()

	select {
	case c.send <- raw:
	case <-ctx.Done():
		c.resolvePending(taskID, pendingResult{})
		return nil, apperr.New(apperr.KindTimeout, "agent.Request", ctx.Err())
	case <-c.ctx.Done():
		c.resolvePending(taskID, pendingResult{})
		return nil, apperr.AgentShuttingDown
	}

	timeout := time.NewTimer(c.cfg.RequestTimeout)
	defer timeout.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-ctx.Done():
		c.resolvePending(taskID, pendingResult{})
		return nil, apperr.New(apperr.KindTimeout, "agent.Request", ctx.Err())
	case <-timeout.C:
		c.resolvePending(taskID, pendingResult{})
		return nil, apperr.New(apperr.KindTimeout, "agent.Request", fmt.Errorf("no task_result within %s", c.cfg.RequestTimeout))
	case <-c.ctx.Done():
		return nil, apperr.AgentShuttingDown
	}
}
