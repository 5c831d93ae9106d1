package model

import "time"

// Mode is the transport currently driving message delivery for a job
type Mode string

const (
	ModeChannel Mode = "channel"
	ModePoll    Mode = "poll"
)

// Health is a coarse quality label derived from error rate and mode
type Health string

const (
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthDegraded  Health = "degraded"
	HealthPoor      Health = "poor"
)

// Metrics aggregates delivery counters for one connection or globally
type Metrics struct {
	MessageCount int64         `json:"message_count"`
	ErrorCount   int64         `json:"error_count"`
	AvgLatencyMs int64         `json:"avg_latency_ms"`
	Uptime       time.Duration `json:"uptime"`
}

// ConnectionStatus is the snapshot the UI layer reads, either for one
// tracked job or as the global aggregate.
type ConnectionStatus struct {
	JobID       string  `json:"job_id,omitempty"`
	Mode        Mode    `json:"mode"`
	Health      Health  `json:"health"`
	IsConnected bool    `json:"is_connected"`
	LastError   string  `json:"last_error,omitempty"`
	RetryCount  int     `json:"retry_count"`
	Metrics     Metrics `json:"metrics"`
}

// IdleStatus is the global baseline when no jobs are tracked
func IdleStatus() ConnectionStatus {
	return ConnectionStatus{
		Mode:        ModeChannel,
		Health:      HealthGood,
		IsConnected: false,
	}
}
