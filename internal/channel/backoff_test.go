package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2.0, MaxAttempts: 5}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first attempt", 0, time.Second},
		{"second attempt", 1, 2 * time.Second},
		{"third attempt", 2, 4 * time.Second},
		{"fifth attempt", 4, 16 * time.Second},
		{"capped at max", 10, 30 * time.Second},
		{"negative clamps to zero", -3, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Delay(tt.attempt))
		})
	}
}

func TestBackoff_Exhausted(t *testing.T) {
	b := Backoff{MaxAttempts: 5}
	b.SetDefaults()

	assert.False(t, b.Exhausted(0))
	assert.False(t, b.Exhausted(4))
	assert.True(t, b.Exhausted(5))
	assert.True(t, b.Exhausted(6))
}

func TestBackoff_SetDefaults(t *testing.T) {
	var b Backoff
	b.SetDefaults()

	assert.Equal(t, time.Second, b.Initial)
	assert.Equal(t, 30*time.Second, b.Max)
	assert.Equal(t, 2.0, b.Multiplier)
	assert.Equal(t, 5, b.MaxAttempts)
}
