package connection

import (
	"time"

	"github.com/dandantas/kestrel/internal/model"
)

// Handlers are the per-job callbacks registered by the UI layer
type Handlers struct {
	OnMessage      func(model.Message)
	OnStatusChange func(model.ConnectionStatus)
}

// Connection is the manager's internal record for one tracked job.
// It is owned exclusively by the Manager and mutated only under the
// Manager's lock.
type Connection struct {
	JobID               string
	Mode                model.Mode
	Health              model.Health
	Active              bool
	Connected           bool // transport currently open (channel mode)
	ConsecutiveFailures int
	ChannelRetries      int // automatic channel retries this fallback episode
	LastError           string
	MessageCount        int64
	ErrorCount          int64
	LatencyMs           int64
	StartTime           time.Time
	UpdatedAt           time.Time
	LastPollAt          time.Time

	handlers   Handlers
	retryTimer *time.Timer
	graceTimer *time.Timer
	healthStop chan struct{}
}

// stopTimers unconditionally cancels every timer and handle owned by
// the connection. It is the single teardown routine invoked from every
// exit path: disconnect, mode switch, and terminal grace expiry.
func (c *Connection) stopTimers() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	if c.healthStop != nil {
		close(c.healthStop)
		c.healthStop = nil
	}
}

// snapshot builds the UI-facing status for this connection
func (c *Connection) snapshot(now time.Time) model.ConnectionStatus {
	return model.ConnectionStatus{
		JobID:       c.JobID,
		Mode:        c.Mode,
		Health:      c.Health,
		IsConnected: c.Active && (c.Connected || c.Mode == model.ModePoll),
		LastError:   c.LastError,
		RetryCount:  c.ConsecutiveFailures,
		Metrics: model.Metrics{
			MessageCount: c.MessageCount,
			ErrorCount:   c.ErrorCount,
			AvgLatencyMs: c.LatencyMs,
			Uptime:       now.Sub(c.StartTime),
		},
	}
}
