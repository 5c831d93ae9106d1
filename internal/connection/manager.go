// Package connection owns one logical connection per tracked job: it
// decides whether the job is served by the live channel or the poller,
// runs the fallback and recovery protocol, scores health, and exposes
// per-job and global status snapshots plus a transition stream.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dandantas/kestrel/internal/channel"
	"github.com/dandantas/kestrel/internal/model"
	"github.com/dandantas/kestrel/internal/poll"
)

// ErrUnknownJob is returned when an operation targets a job that is not
// tracked. Recoverable transport conditions never surface as errors.
var ErrUnknownJob = errors.New("unknown job id")

// ErrAlreadyTracked is returned when RegisterJob is called twice for the
// same job id.
var ErrAlreadyTracked = errors.New("job already tracked")

// ErrManagerClosed is returned after Close.
var ErrManagerClosed = errors.New("connection manager closed")

// Config holds manager settings
type Config struct {
	// PollInterval is handed to the poller on fallback
	PollInterval time.Duration

	// HealthCheckInterval is the keepalive ping cadence on the channel
	HealthCheckInterval time.Duration

	// ChannelRetryBase seeds the fallback channel-retry delay:
	// min(ChannelRetryMax, ChannelRetryBase * 2^consecutiveFailures)
	ChannelRetryBase time.Duration
	ChannelRetryMax  time.Duration

	// MaxChannelRetries bounds automatic channel retries per fallback
	// episode; beyond it the manager stays on polling until the caller
	// forces a reconnect
	MaxChannelRetries int

	// TerminalGrace is how long a connection lingers after a terminal
	// message before it is torn down
	TerminalGrace time.Duration
}

// SetDefaults sets default values for unset config fields
func (c *Config) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.ChannelRetryBase == 0 {
		c.ChannelRetryBase = 5 * time.Second
	}
	if c.ChannelRetryMax == 0 {
		c.ChannelRetryMax = 30 * time.Second
	}
	if c.MaxChannelRetries == 0 {
		c.MaxChannelRetries = 3
	}
	if c.TerminalGrace == 0 {
		c.TerminalGrace = 30 * time.Second
	}
}

// Transition is one observed status change for a tracked job
type Transition struct {
	JobID string
	Prev  model.ConnectionStatus
	Curr  model.ConnectionStatus
}

// StatusListener observes status transitions across all tracked jobs
type StatusListener func(Transition)

// Manager is the connection manager. Construct one at application start
// and pass it by reference; Close tears down every tracked job.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	channel   *channel.Client
	poller    *poll.Poller
	conns     map[string]*Connection
	lastJobID string // most recently updated connection
	listeners []StatusListener
	closed    bool
}

// NewManager creates a manager over the given transports
func NewManager(ch *channel.Client, p *poll.Poller, cfg Config) *Manager {
	cfg.SetDefaults()
	return &Manager{
		cfg:     cfg,
		channel: ch,
		poller:  p,
		conns:   make(map[string]*Connection),
	}
}

// AddStatusListener registers a transition observer and returns an
// unsubscribe function
func (m *Manager) AddStatusListener(fn StatusListener) func() {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	idx := len(m.listeners) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		if idx < len(m.listeners) {
			m.listeners[idx] = nil
		}
		m.mu.Unlock()
	}
}

// RegisterJob starts tracking jobID: a connection record is created and
// a channel connect is attempted; on failure the fallback protocol
// switches the job to polling. The call returns immediately.
func (m *Manager) RegisterJob(jobID string, handlers Handlers) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, ok := m.conns[jobID]; ok {
		m.mu.Unlock()
		return ErrAlreadyTracked
	}

	now := time.Now()
	conn := &Connection{
		JobID:     jobID,
		Mode:      model.ModeChannel,
		Active:    true,
		StartTime: now,
		UpdatedAt: now,
		handlers:  handlers,
	}
	conn.recomputeHealth(now)
	m.conns[jobID] = conn
	m.lastJobID = jobID
	m.mu.Unlock()

	slog.Info("Tracking job", "job_id", jobID)
	go m.connectChannel(jobID)
	return nil
}

// Disconnect stops tracking jobID, cancelling every timer and closing
// the transport. It is idempotent: a second call is a no-op.
func (m *Manager) Disconnect(jobID string) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	conn.Active = false
	conn.stopTimers()
	delete(m.conns, jobID)
	if m.lastJobID == jobID {
		m.lastJobID = ""
	}
	m.mu.Unlock()

	m.channel.Disconnect(jobID)
	m.poller.Stop(jobID)
	slog.Info("Stopped tracking job", "job_id", jobID)
}

// Close disconnects every tracked job and rejects further registration
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Disconnect(id)
	}
}

// Status returns the snapshot for one tracked job
func (m *Manager) Status(jobID string) (model.ConnectionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[jobID]
	if !ok {
		return model.ConnectionStatus{}, ErrUnknownJob
	}
	return conn.snapshot(time.Now()), nil
}

// ForceFallbackToPolling switches jobID to polling without attempting a
// channel connection first (the user-triggered form of the fallback
// protocol) and returns the resulting status.
func (m *Manager) ForceFallbackToPolling(jobID string) (model.ConnectionStatus, error) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok || !conn.Active {
		m.mu.Unlock()
		return model.ConnectionStatus{}, ErrUnknownJob
	}
	m.mu.Unlock()

	m.fallback(jobID, errors.New("fallback forced"))
	return m.Status(jobID)
}

// AttemptReconnect tries to restore the live channel for jobID right
// now. It resets the automatic retry budget, so it remains callable
// after the manager has given up on its own. It reports whether the
// channel came up.
func (m *Manager) AttemptReconnect(jobID string) (bool, error) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok || !conn.Active {
		m.mu.Unlock()
		return false, ErrUnknownJob
	}
	if conn.Mode == model.ModeChannel && conn.Connected {
		m.mu.Unlock()
		return true, nil
	}
	conn.ChannelRetries = 0
	if conn.retryTimer != nil {
		conn.retryTimer.Stop()
		conn.retryTimer = nil
	}
	m.mu.Unlock()

	m.poller.Stop(jobID)
	if err := m.dial(jobID); err != nil {
		m.fallback(jobID, err)
		return false, nil
	}
	m.channelUp(jobID)
	return true, nil
}

// connectChannel performs the initial channel attempt for a new job
func (m *Manager) connectChannel(jobID string) {
	if err := m.dial(jobID); err != nil {
		slog.Warn("Channel connect failed, falling back to polling",
			"job_id", jobID,
			"error", err,
		)
		m.fallback(jobID, err)
		return
	}
	m.channelUp(jobID)
}

// dial asks the channel client to connect, wiring the manager's
// message and state callbacks
func (m *Manager) dial(jobID string) error {
	return m.channel.Connect(context.Background(), jobID,
		func(msg model.Message) { m.deliver(jobID, msg) },
		m.channelState,
	)
}

// channelUp records a successful channel connection (rule 2)
func (m *Manager) channelUp(jobID string) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok || !conn.Active {
		// Disconnected while the dial was in flight.
		m.mu.Unlock()
		m.channel.Disconnect(jobID)
		return
	}
	prev := conn.snapshot(time.Now())
	conn.stopTimers()
	conn.Mode = model.ModeChannel
	conn.Connected = true
	conn.ConsecutiveFailures = 0
	conn.ChannelRetries = 0
	conn.LastError = ""
	conn.healthStop = make(chan struct{})
	stop := conn.healthStop
	m.touchLocked(conn)
	m.mu.Unlock()

	m.poller.Stop(jobID)
	go m.keepaliveLoop(jobID, stop)
	m.publish(jobID, prev)
}

// fallback executes the fallback protocol (rule 3): channel timers and
// transport go down, polling starts, and a channel retry is scheduled
// with exponential delay while the retry budget lasts.
func (m *Manager) fallback(jobID string, cause error) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok || !conn.Active {
		m.mu.Unlock()
		return
	}
	if conn.graceTimer != nil {
		// The terminal message is already delivered; restarting the
		// poller here would fetch and deliver it a second time. Let the
		// grace teardown run out instead.
		m.mu.Unlock()
		return
	}
	prev := conn.snapshot(time.Now())
	conn.stopTimers()
	conn.Mode = model.ModePoll
	conn.Connected = false
	conn.ConsecutiveFailures++
	// Freshness baseline: the switch itself counts as the last poll so
	// the health score does not degrade before the first tick lands.
	conn.LastPollAt = time.Now()
	if cause != nil {
		conn.LastError = cause.Error()
	}

	if conn.ChannelRetries < m.cfg.MaxChannelRetries {
		delay := m.retryDelay(conn.ConsecutiveFailures)
		conn.retryTimer = time.AfterFunc(delay, func() { m.channelRetry(jobID) })
		slog.Info("Channel retry scheduled",
			"job_id", jobID,
			"delay_ms", delay.Milliseconds(),
			"retry", conn.ChannelRetries+1,
			"max_retries", m.cfg.MaxChannelRetries,
		)
	} else {
		slog.Warn("Channel retry budget exhausted, staying on polling", "job_id", jobID)
	}
	m.touchLocked(conn)
	m.mu.Unlock()

	m.channel.Disconnect(jobID)
	m.poller.Start(jobID, m.cfg.PollInterval, poll.Hooks{
		OnMessage:    func(msg model.Message) { m.deliver(jobID, msg) },
		OnFetchError: m.pollError,
		OnLatency:    m.pollLatency,
	})
	m.publish(jobID, prev)
}

// retryDelay computes min(ChannelRetryMax, ChannelRetryBase * 2^failures)
func (m *Manager) retryDelay(failures int) time.Duration {
	d := float64(m.cfg.ChannelRetryBase) * math.Pow(2, float64(failures))
	if d > float64(m.cfg.ChannelRetryMax) {
		d = float64(m.cfg.ChannelRetryMax)
	}
	return time.Duration(d)
}

// channelRetry is the scheduled channel restore attempt (rule 4). It
// only fires while the job is still active and still polling.
func (m *Manager) channelRetry(jobID string) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok || !conn.Active || conn.Mode != model.ModePoll || conn.graceTimer != nil {
		m.mu.Unlock()
		return
	}
	conn.retryTimer = nil
	conn.ChannelRetries++
	m.mu.Unlock()

	m.poller.Stop(jobID)
	if err := m.dial(jobID); err != nil {
		slog.Warn("Channel retry failed, resuming polling", "job_id", jobID, "error", err)
		m.fallback(jobID, err)
		return
	}
	m.channelUp(jobID)
}

// channelState reacts to channel lifecycle changes reported by the
// channel client after the connection is up
func (m *Manager) channelState(jobID string, state channel.State, err error) {
	switch state {
	case channel.StateReconnecting:
		m.mu.Lock()
		conn, ok := m.conns[jobID]
		if !ok || !conn.Active || conn.Mode != model.ModeChannel {
			m.mu.Unlock()
			return
		}
		prev := conn.snapshot(time.Now())
		conn.Connected = false
		if err != nil {
			conn.LastError = err.Error()
		}
		m.touchLocked(conn)
		m.mu.Unlock()
		m.publish(jobID, prev)

	case channel.StateOpen:
		m.mu.Lock()
		conn, ok := m.conns[jobID]
		reconnected := ok && conn.Active && conn.Mode == model.ModeChannel && !conn.Connected
		m.mu.Unlock()
		if reconnected {
			m.channelUp(jobID)
		}

	case channel.StateFailed:
		// In-channel reconnect budget exhausted; run the fallback
		// protocol so polling takes over.
		slog.Warn("Channel failed terminally", "job_id", jobID, "error", err)
		m.fallback(jobID, err)

	case channel.StateClosed:
		m.mu.Lock()
		conn, ok := m.conns[jobID]
		if !ok || !conn.Active || conn.Mode != model.ModeChannel {
			m.mu.Unlock()
			return
		}
		prev := conn.snapshot(time.Now())
		conn.Connected = false
		m.touchLocked(conn)
		m.mu.Unlock()
		m.publish(jobID, prev)
	}
}

// keepaliveLoop pings the channel periodically; ping failures count as
// errors and feed the health score
func (m *Manager) keepaliveLoop(jobID string, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.channel.Ping(jobID); err != nil {
				m.mu.Lock()
				conn, ok := m.conns[jobID]
				if !ok || !conn.Active {
					m.mu.Unlock()
					return
				}
				prev := conn.snapshot(time.Now())
				conn.ErrorCount++
				conn.LastError = err.Error()
				m.touchLocked(conn)
				m.mu.Unlock()
				m.publish(jobID, prev)
			}
		}
	}
}

// deliver republishes one inbound message to the job's registered
// callback, isolating callback panics, and schedules teardown for
// terminal messages. Messages arriving after disconnect are dropped.
func (m *Manager) deliver(jobID string, msg model.Message) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok || !conn.Active {
		m.mu.Unlock()
		return
	}
	prev := conn.snapshot(time.Now())
	conn.MessageCount++
	if conn.Mode == model.ModePoll {
		conn.LastPollAt = time.Now()
	}
	if msg.Type == model.MessageError && msg.Error != nil {
		conn.LastError = msg.Error.Message
	}
	if msg.Terminal() && conn.graceTimer == nil {
		// The job is done. Restoring the channel would only re-deliver
		// the terminal state, so pending retries are cancelled.
		if conn.retryTimer != nil {
			conn.retryTimer.Stop()
			conn.retryTimer = nil
		}
		conn.graceTimer = time.AfterFunc(m.cfg.TerminalGrace, func() { m.Disconnect(jobID) })
	}
	handler := conn.handlers.OnMessage
	m.touchLocked(conn)
	m.mu.Unlock()

	if handler != nil {
		if perr := m.invoke(handler, msg); perr != nil {
			m.mu.Lock()
			if conn, ok := m.conns[jobID]; ok {
				conn.ErrorCount++
				m.touchLocked(conn)
			}
			m.mu.Unlock()
		}
	}
	m.publish(jobID, prev)
}

// invoke runs a UI callback, converting panics into errors
func (m *Manager) invoke(handler func(model.Message), msg model.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job message callback panicked", "error", r)
			err = errors.New("message callback panicked")
		}
	}()
	handler(msg)
	return nil
}

// pollError records a failed status fetch against the connection
func (m *Manager) pollError(jobID string, err error) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok || !conn.Active {
		m.mu.Unlock()
		return
	}
	prev := conn.snapshot(time.Now())
	conn.ErrorCount++
	conn.LastError = err.Error()
	m.touchLocked(conn)
	m.mu.Unlock()
	m.publish(jobID, prev)
}

// pollLatency folds one poll round-trip into the connection's moving
// latency average
func (m *Manager) pollLatency(jobID string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[jobID]
	if !ok {
		return
	}
	ms := latency.Milliseconds()
	if conn.LatencyMs == 0 {
		conn.LatencyMs = ms
	} else {
		conn.LatencyMs = (conn.LatencyMs*3 + ms) / 4
	}
}

// touchLocked refreshes derived state after any mutation; callers hold
// the manager lock
func (m *Manager) touchLocked(conn *Connection) {
	now := time.Now()
	conn.UpdatedAt = now
	conn.recomputeHealth(now)
	m.lastJobID = conn.JobID
}

// publish emits a transition to the job callback and all listeners when
// the visible status actually changed
func (m *Manager) publish(jobID string, prev model.ConnectionStatus) {
	m.mu.Lock()
	conn, ok := m.conns[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	curr := conn.snapshot(time.Now())
	onStatus := conn.handlers.OnStatusChange
	listeners := make([]StatusListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if prev.Mode == curr.Mode && prev.Health == curr.Health &&
		prev.IsConnected == curr.IsConnected && prev.LastError == curr.LastError {
		return
	}

	if onStatus != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Status callback panicked", "job_id", jobID, "error", r)
				}
			}()
			onStatus(curr)
		}()
	}
	t := Transition{JobID: jobID, Prev: prev, Curr: curr}
	for _, fn := range listeners {
		if fn != nil {
			fn(t)
		}
	}
}
