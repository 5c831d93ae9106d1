package connection

import (
	"time"

	"github.com/dandantas/kestrel/internal/model"
)

// pollFreshnessWindow is how recent the last successful poll must be
// for a polling connection to still rate as good
const pollFreshnessWindow = 30 * time.Second

// scoreHealth derives the coarse quality label for a connection from
// its transport mode, error rate, and poll freshness.
func scoreHealth(mode model.Mode, messageCount, errorCount int64, timeSinceLastPoll time.Duration) model.Health {
	denom := messageCount
	if denom < 1 {
		denom = 1
	}
	errorRate := float64(errorCount) / float64(denom)

	switch {
	case mode == model.ModeChannel && errorRate < 0.1:
		return model.HealthExcellent
	case mode == model.ModeChannel && errorRate < 0.2:
		return model.HealthGood
	case mode == model.ModePoll && errorRate < 0.1 && timeSinceLastPoll < pollFreshnessWindow:
		return model.HealthGood
	case errorRate < 0.3:
		return model.HealthDegraded
	default:
		return model.HealthPoor
	}
}

// recomputeHealth refreshes c.Health from its current counters
func (c *Connection) recomputeHealth(now time.Time) {
	sinceLastPoll := pollFreshnessWindow
	if !c.LastPollAt.IsZero() {
		sinceLastPoll = now.Sub(c.LastPollAt)
	}
	c.Health = scoreHealth(c.Mode, c.MessageCount, c.ErrorCount, sinceLastPoll)
}
