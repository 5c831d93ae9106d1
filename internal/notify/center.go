// Package notify projects connection status transitions into a bounded
// stream of user-facing notifications: severity, title, and message are
// derived from health and mode changes, rapid duplicates are throttled,
// and non-persistent notices auto-dismiss.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/dandantas/kestrel/internal/connection"
	"github.com/dandantas/kestrel/internal/model"
	"github.com/google/uuid"
)

// Config holds projection settings
type Config struct {
	// DismissAfter is the lifetime of non-persistent notifications
	DismissAfter time.Duration

	// ThrottleWindow collapses same-kind notifications for the same job
	// arriving within the window
	ThrottleWindow time.Duration

	// QueueSize caps the retained notification history
	QueueSize int
}

// SetDefaults sets default values for unset config fields
func (c *Config) SetDefaults() {
	if c.DismissAfter == 0 {
		c.DismissAfter = 6 * time.Second
	}
	if c.ThrottleWindow == 0 {
		c.ThrottleWindow = 2 * time.Second
	}
	if c.QueueSize == 0 {
		c.QueueSize = 5
	}
}

// Center derives notifications from status transitions and fans them
// out to subscribers
type Center struct {
	mu       sync.Mutex
	cfg      Config
	queue    []model.Notification
	subs     map[int]func(model.Notification)
	nextSub  int
	lastSeen map[string]time.Time // throttle key -> last emit
	timers   map[string]*time.Timer
}

// NewCenter creates a notification center
func NewCenter(cfg Config) *Center {
	cfg.SetDefaults()
	return &Center{
		cfg:      cfg,
		subs:     make(map[int]func(model.Notification)),
		lastSeen: make(map[string]time.Time),
		timers:   make(map[string]*time.Timer),
	}
}

// Subscribe registers a notification callback and returns an
// unsubscribe function
func (c *Center) Subscribe(fn func(model.Notification)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Observe inspects one status transition and emits a notification when
// it matches a projection rule
func (c *Center) Observe(t connection.Transition) {
	errorAppeared := t.Curr.LastError != "" && t.Curr.LastError != t.Prev.LastError

	switch {
	case errorAppeared && t.Curr.Health == model.HealthPoor:
		c.emit(t.JobID, "error", model.Notification{
			Severity:   model.SeverityError,
			Title:      "Connection failing",
			Message:    t.Curr.LastError,
			Persistent: true,
		})

	case t.Prev.Mode == model.ModeChannel && t.Curr.Mode == model.ModePoll &&
		t.Curr.Health == model.HealthGood:
		c.emit(t.JobID, "fallback", model.Notification{
			Severity: model.SeverityWarning,
			Title:    "Fallback active",
			Message:  fmt.Sprintf("Live updates unavailable for job %s, switched to polling", t.JobID),
		})

	case t.Prev.Mode == model.ModePoll && t.Curr.Mode == model.ModeChannel &&
		t.Curr.Health == model.HealthExcellent:
		c.emit(t.JobID, "restored", model.Notification{
			Severity: model.SeveritySuccess,
			Title:    "Live updates restored",
			Message:  fmt.Sprintf("Channel reconnected for job %s", t.JobID),
		})
	}
}

// emit appends a notification unless an identical kind for the same job
// landed within the throttle window
func (c *Center) emit(jobID, kind string, n model.Notification) {
	now := time.Now()
	key := jobID + "/" + kind

	c.mu.Lock()
	if last, ok := c.lastSeen[key]; ok && now.Sub(last) < c.cfg.ThrottleWindow {
		c.mu.Unlock()
		return
	}
	c.lastSeen[key] = now

	n.ID = uuid.New().String()
	n.JobID = jobID
	n.Timestamp = now
	c.queue = append(c.queue, n)
	if len(c.queue) > c.cfg.QueueSize {
		c.queue = c.queue[len(c.queue)-c.cfg.QueueSize:]
	}
	if !n.Persistent {
		id := n.ID
		c.timers[id] = time.AfterFunc(c.cfg.DismissAfter, func() { c.Dismiss(id) })
	}
	subs := make([]func(model.Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

// Dismiss marks a notification dismissed; unknown ids are a no-op
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i := range c.queue {
		if c.queue[i].ID == id {
			c.queue[i].Dismissed = true
			return
		}
	}
}

// Current returns the oldest notification not yet dismissed; the UI
// shows one at a time
func (c *Center) Current() (model.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.queue {
		if !n.Dismissed {
			return n, true
		}
	}
	return model.Notification{}, false
}

// Notifications returns the retained history, oldest first
func (c *Center) Notifications() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Notification, len(c.queue))
	copy(out, c.queue)
	return out
}

// Close cancels every pending auto-dismiss timer
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
