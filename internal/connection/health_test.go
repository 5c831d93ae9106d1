package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dandantas/kestrel/internal/model"
)

func TestScoreHealth(t *testing.T) {
	tests := []struct {
		name          string
		mode          model.Mode
		messages      int64
		errors        int64
		sinceLastPoll time.Duration
		want          model.Health
	}{
		{"channel no errors", model.ModeChannel, 100, 0, 0, model.HealthExcellent},
		{"channel low error rate", model.ModeChannel, 100, 9, 0, model.HealthExcellent},
		{"channel moderate error rate", model.ModeChannel, 100, 15, 0, model.HealthGood},
		{"channel high error rate", model.ModeChannel, 100, 25, 0, model.HealthDegraded},
		{"channel broken", model.ModeChannel, 100, 50, 0, model.HealthPoor},
		{"poll fresh and clean", model.ModePoll, 100, 5, 10 * time.Second, model.HealthGood},
		{"poll clean but stale", model.ModePoll, 100, 5, 40 * time.Second, model.HealthDegraded},
		{"poll fresh but errory", model.ModePoll, 100, 20, 10 * time.Second, model.HealthDegraded},
		{"poll broken", model.ModePoll, 100, 35, 10 * time.Second, model.HealthPoor},
		{"zero messages treated as one", model.ModeChannel, 0, 0, 0, model.HealthExcellent},
		{"zero messages with an error", model.ModeChannel, 0, 1, 0, model.HealthPoor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreHealth(tt.mode, tt.messages, tt.errors, tt.sinceLastPoll)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthMonotonicUnderSuccess(t *testing.T) {
	// Any number of successful channel messages with zero errors stays
	// excellent.
	for _, n := range []int64{1, 10, 1000, 100000} {
		assert.Equal(t, model.HealthExcellent, scoreHealth(model.ModeChannel, n, 0, 0))
	}
}
