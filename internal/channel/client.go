// Package channel maintains one live bidirectional channel per tracked
// job, with bounded exponential reconnects on unexpected closure and
// panic-isolated message dispatch.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dandantas/kestrel/internal/model"
	"github.com/dandantas/kestrel/internal/transport"
)

// State describes one job channel's lifecycle
type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// MessageHandler receives inbound messages for a job
type MessageHandler func(model.Message)

// StateHandler receives channel lifecycle transitions. err is non-nil
// for StateFailed and for the drop that caused StateReconnecting.
type StateHandler func(jobID string, state State, err error)

// Config holds channel client settings
type Config struct {
	// BaseURL is the channel endpoint root, e.g. ws://host:8080
	BaseURL string

	// ConnectTimeout bounds the initial dial and every redial
	ConnectTimeout time.Duration

	// Reconnect governs automatic redials after unexpected closure
	Reconnect Backoff
}

// SetDefaults sets default values for unset config fields
func (c *Config) SetDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	c.Reconnect.SetDefaults()
}

// Status is a per-channel snapshot
type Status struct {
	State        State
	Attempts     int
	MessageCount int64
	ErrorCount   int64
}

// Client owns at most one transport per tracked job
type Client struct {
	mu     sync.Mutex
	dialer transport.Dialer
	cfg    Config
	jobs   map[string]*jobChannel
}

type jobChannel struct {
	jobID        string
	conn         transport.Conn
	handlers     []MessageHandler
	onState      StateHandler
	state        State
	attempts     int
	messageCount int64
	errorCount   int64
	closing      bool
	retryTimer   *time.Timer
	gen          int // invalidates read loops from replaced conns
}

// NewClient creates a channel client
func NewClient(dialer transport.Dialer, cfg Config) *Client {
	cfg.SetDefaults()
	return &Client{
		dialer: dialer,
		cfg:    cfg,
		jobs:   make(map[string]*jobChannel),
	}
}

func (c *Client) endpoint(jobID string) string {
	return fmt.Sprintf("%s/api/v1/jobs/%s/ws", c.cfg.BaseURL, jobID)
}

// Connect opens the channel for jobID and resolves once the transport is
// open, or fails on dial error or connect timeout. A second Connect for
// a job that is already tracked, whether open or still dialing,
// registers an additional handler and returns immediately; the handler
// starts receiving once the first dial completes.
func (c *Client) Connect(ctx context.Context, jobID string, onMessage MessageHandler, onState StateHandler) error {
	c.mu.Lock()
	if j, ok := c.jobs[jobID]; ok {
		if onMessage != nil {
			j.handlers = append(j.handlers, onMessage)
		}
		c.mu.Unlock()
		return nil
	}

	j := &jobChannel{
		jobID:   jobID,
		onState: onState,
		state:   StateConnecting,
	}
	if onMessage != nil {
		j.handlers = []MessageHandler{onMessage}
	}
	c.jobs[jobID] = j
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(dialCtx, c.endpoint(jobID))

	c.mu.Lock()
	if cur, ok := c.jobs[jobID]; !ok || cur != j || j.closing {
		// Disconnected while dialing; the late dial result is discarded.
		c.mu.Unlock()
		if conn != nil {
			conn.Close("superseded")
		}
		return fmt.Errorf("channel %s: disconnected during connect", jobID)
	}
	if err != nil {
		delete(c.jobs, jobID)
		c.mu.Unlock()
		return fmt.Errorf("channel %s: connect failed: %w", jobID, err)
	}

	j.conn = conn
	j.state = StateOpen
	j.gen++
	gen := j.gen
	c.mu.Unlock()

	slog.Debug("Channel opened", "job_id", jobID)
	c.notify(j, StateOpen, nil)
	go c.readLoop(j, conn, gen)
	return nil
}

// Send writes one payload frame on the job's channel
func (c *Client) Send(jobID string, payload []byte) error {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	var conn transport.Conn
	if ok {
		conn = j.conn
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("channel %s: not connected", jobID)
	}
	if conn == nil {
		return fmt.Errorf("channel %s: transport not open", jobID)
	}
	return conn.Write(payload)
}

// Ping probes the job's channel with a short deadline
func (c *Client) Ping(jobID string) error {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	var conn transport.Conn
	if ok {
		conn = j.conn
	}
	c.mu.Unlock()

	if !ok || conn == nil {
		return fmt.Errorf("channel %s: not connected", jobID)
	}
	return conn.Ping(time.Now().Add(5 * time.Second))
}

// Disconnect closes the job's channel and cancels any pending reconnect.
// Calling it for an unknown job is a no-op.
func (c *Client) Disconnect(jobID string) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	if !ok {
		c.mu.Unlock()
		return
	}
	j.closing = true
	if j.retryTimer != nil {
		j.retryTimer.Stop()
		j.retryTimer = nil
	}
	conn := j.conn
	j.conn = nil
	delete(c.jobs, jobID)
	c.mu.Unlock()

	if conn != nil {
		conn.Close("client disconnect")
	}
	c.notify(j, StateClosed, nil)
}

// Close tears down every open channel (process teardown)
func (c *Client) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.jobs))
	for id := range c.jobs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Disconnect(id)
	}
}

// Status returns the per-channel snapshot for jobID
func (c *Client) Status(jobID string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return Status{State: StateClosed}, false
	}
	return Status{
		State:        j.state,
		Attempts:     j.attempts,
		MessageCount: j.messageCount,
		ErrorCount:   j.errorCount,
	}, true
}

// readLoop pumps inbound frames until the connection drops or is replaced
func (c *Client) readLoop(j *jobChannel, conn transport.Conn, gen int) {
	for {
		payload, err := conn.Read()

		c.mu.Lock()
		cur, ok := c.jobs[j.jobID]
		stale := !ok || cur != j || j.gen != gen || j.closing
		c.mu.Unlock()
		if stale {
			return
		}

		if err != nil {
			if transport.IsNormalClosure(err) {
				slog.Debug("Channel closed by peer", "job_id", j.jobID)
				c.mu.Lock()
				delete(c.jobs, j.jobID)
				c.mu.Unlock()
				c.notify(j, StateClosed, nil)
				return
			}
			slog.Warn("Channel dropped unexpectedly", "job_id", j.jobID, "error", err)
			c.scheduleReconnect(j, err)
			return
		}

		var msg model.Message
		if derr := json.Unmarshal(payload, &msg); derr != nil {
			slog.Warn("Discarding malformed channel frame", "job_id", j.jobID, "error", derr)
			c.mu.Lock()
			j.errorCount++
			c.mu.Unlock()
			continue
		}
		if msg.JobID == "" {
			msg.JobID = j.jobID
		}

		c.mu.Lock()
		j.messageCount++
		handlers := make([]MessageHandler, len(j.handlers))
		copy(handlers, j.handlers)
		c.mu.Unlock()

		for _, h := range handlers {
			c.dispatch(j, h, msg)
		}
	}
}

// dispatch invokes one handler, isolating panics so a broken handler
// never stops delivery to the others
func (c *Client) dispatch(j *jobChannel, h MessageHandler, msg model.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Message handler panicked", "job_id", j.jobID, "error", r)
			c.mu.Lock()
			j.errorCount++
			c.mu.Unlock()
		}
	}()
	h(msg)
}

// scheduleReconnect arms the next redial after an unexpected drop,
// giving up once the attempt budget is spent
func (c *Client) scheduleReconnect(j *jobChannel, cause error) {
	c.mu.Lock()
	if j.closing {
		c.mu.Unlock()
		return
	}
	j.conn = nil
	if c.cfg.Reconnect.Exhausted(j.attempts) {
		delete(c.jobs, j.jobID)
		attempts := j.attempts
		c.mu.Unlock()
		slog.Error("Channel reconnect budget exhausted",
			"job_id", j.jobID,
			"attempts", attempts,
			"error", cause,
		)
		c.notify(j, StateFailed, cause)
		return
	}

	delay := c.cfg.Reconnect.Delay(j.attempts)
	j.attempts++
	attempt := j.attempts
	j.state = StateReconnecting
	j.retryTimer = time.AfterFunc(delay, func() { c.redial(j) })
	c.mu.Unlock()

	slog.Info("Channel reconnect scheduled",
		"job_id", j.jobID,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
	)
	c.notify(j, StateReconnecting, cause)
}

// redial performs one scheduled reconnect attempt
func (c *Client) redial(j *jobChannel) {
	c.mu.Lock()
	if cur, ok := c.jobs[j.jobID]; !ok || cur != j || j.closing {
		c.mu.Unlock()
		return
	}
	j.retryTimer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	conn, err := c.dialer.Dial(ctx, c.endpoint(j.jobID))
	cancel()

	c.mu.Lock()
	if cur, ok := c.jobs[j.jobID]; !ok || cur != j || j.closing {
		c.mu.Unlock()
		if conn != nil {
			conn.Close("superseded")
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.scheduleReconnect(j, err)
		return
	}

	j.conn = conn
	j.state = StateOpen
	j.attempts = 0
	j.gen++
	gen := j.gen
	c.mu.Unlock()

	slog.Info("Channel reconnected", "job_id", j.jobID)
	c.notify(j, StateOpen, nil)
	go c.readLoop(j, conn, gen)
}

func (c *Client) notify(j *jobChannel, state State, err error) {
	if j.onState == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("State handler panicked", "job_id", j.jobID, "error", r)
		}
	}()
	j.onState(j.jobID, state, err)
}
