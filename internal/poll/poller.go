// Package poll drives periodic status polling for jobs whose live
// channel is unavailable, translating status responses into the same
// message shape the channel client emits.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dandantas/kestrel/internal/model"
)

// StatusFetcher is the injected collaborator that retrieves job status
// and, once a job completes, its result.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*model.StatusResponse, error)
	FetchResult(ctx context.Context, jobID string) (*model.ResultPayload, error)
}

// Hooks receive poll outcomes for one job
type Hooks struct {
	// OnMessage receives the translated Message for every successful poll
	OnMessage func(model.Message)

	// OnFetchError is invoked for every failed status or result fetch
	OnFetchError func(jobID string, err error)

	// OnLatency reports the round-trip time of each successful poll
	OnLatency func(jobID string, latency time.Duration)

	// OnTerminal fires once, after the terminal Message was delivered
	OnTerminal func(jobID string)
}

// Config holds poller settings
type Config struct {
	// Interval is the base polling interval
	Interval time.Duration

	// FallbackThreshold is the consecutive-failure count after which the
	// effective interval doubles (backpressure on a failing collaborator)
	FallbackThreshold int

	// FetchTimeout bounds each individual fetch
	FetchTimeout time.Duration
}

// SetDefaults sets default values for unset config fields
func (c *Config) SetDefaults() {
	if c.Interval == 0 {
		c.Interval = 2 * time.Second
	}
	if c.FallbackThreshold == 0 {
		c.FallbackThreshold = 3
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 10 * time.Second
	}
}

// Poller polls job status on a fixed interval per job
type Poller struct {
	mu      sync.Mutex
	fetcher StatusFetcher
	cfg     Config
	jobs    map[string]*pollJob
}

type pollJob struct {
	jobID               string
	interval            time.Duration
	consecutiveFailures int
	hooks               Hooks
	timer               *time.Timer
	stopped             bool
}

// New creates a poller around the injected fetcher
func New(fetcher StatusFetcher, cfg Config) *Poller {
	cfg.SetDefaults()
	return &Poller{
		fetcher: fetcher,
		cfg:     cfg,
		jobs:    make(map[string]*pollJob),
	}
}

// Start begins polling jobID. interval <= 0 selects the configured
// default. Starting an already-polled job is a no-op.
func (p *Poller) Start(jobID string, interval time.Duration, hooks Hooks) {
	if interval <= 0 {
		interval = p.cfg.Interval
	}

	p.mu.Lock()
	if _, ok := p.jobs[jobID]; ok {
		p.mu.Unlock()
		return
	}
	j := &pollJob{
		jobID:    jobID,
		interval: interval,
		hooks:    hooks,
	}
	p.jobs[jobID] = j
	j.timer = time.AfterFunc(interval, func() { p.tick(j) })
	p.mu.Unlock()

	slog.Debug("Polling started", "job_id", jobID, "interval_ms", interval.Milliseconds())
}

// Stop halts polling for jobID. Unknown jobs are a no-op.
func (p *Poller) Stop(jobID string) {
	p.mu.Lock()
	j, ok := p.jobs[jobID]
	if ok {
		j.stopped = true
		if j.timer != nil {
			j.timer.Stop()
			j.timer = nil
		}
		delete(p.jobs, jobID)
	}
	p.mu.Unlock()

	if ok {
		slog.Debug("Polling stopped", "job_id", jobID)
	}
}

// Close stops every active poll loop
func (p *Poller) Close() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.jobs))
	for id := range p.jobs {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Stop(id)
	}
}

// Active reports whether jobID is currently being polled
func (p *Poller) Active(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[jobID]
	return ok
}

// EffectiveInterval returns the interval currently in force for jobID:
// the base interval, or double it once the failure threshold is crossed.
func (p *Poller) EffectiveInterval(jobID string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[jobID]
	if !ok {
		return 0
	}
	return p.effectiveLocked(j)
}

func (p *Poller) effectiveLocked(j *pollJob) time.Duration {
	if j.consecutiveFailures >= p.cfg.FallbackThreshold {
		return j.interval * 2
	}
	return j.interval
}

// tick performs one poll cycle for a job
func (p *Poller) tick(j *pollJob) {
	p.mu.Lock()
	if cur, ok := p.jobs[j.jobID]; !ok || cur != j || j.stopped {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.FetchTimeout)
	resp, err := p.fetcher.FetchStatus(ctx, j.jobID)
	cancel()

	if err != nil {
		p.recordFailure(j, err)
		return
	}

	msg, terminal, derr := p.translate(j.jobID, resp)
	if derr != nil {
		// Result fetch failed for a completed job; the status stays
		// terminal, so the next tick retries the result.
		p.recordFailure(j, derr)
		return
	}

	p.mu.Lock()
	if cur, ok := p.jobs[j.jobID]; !ok || cur != j || j.stopped {
		p.mu.Unlock()
		return
	}
	j.consecutiveFailures = 0
	if !terminal {
		j.timer = time.AfterFunc(p.effectiveLocked(j), func() { p.tick(j) })
	}
	p.mu.Unlock()

	if j.hooks.OnLatency != nil {
		j.hooks.OnLatency(j.jobID, time.Since(start))
	}
	p.deliver(j, msg)

	if terminal {
		p.Stop(j.jobID)
		if j.hooks.OnTerminal != nil {
			j.hooks.OnTerminal(j.jobID)
		}
	}
}

// recordFailure counts a fetch failure and reschedules; transient
// errors never stop the poll loop
func (p *Poller) recordFailure(j *pollJob, err error) {
	p.mu.Lock()
	if cur, ok := p.jobs[j.jobID]; !ok || cur != j || j.stopped {
		p.mu.Unlock()
		return
	}
	j.consecutiveFailures++
	failures := j.consecutiveFailures
	next := p.effectiveLocked(j)
	j.timer = time.AfterFunc(next, func() { p.tick(j) })
	p.mu.Unlock()

	slog.Warn("Status poll failed",
		"job_id", j.jobID,
		"consecutive_failures", failures,
		"next_poll_ms", next.Milliseconds(),
		"error", err,
	)
	if j.hooks.OnFetchError != nil {
		j.hooks.OnFetchError(j.jobID, err)
	}
}

// deliver hands the translated message to the hook, isolating panics
func (p *Poller) deliver(j *pollJob, msg model.Message) {
	if j.hooks.OnMessage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Poll message handler panicked", "job_id", j.jobID, "error", r)
		}
	}()
	j.hooks.OnMessage(msg)
}
