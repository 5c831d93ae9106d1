package model

import (
	"encoding/json"
	"time"
)

// Job status values reported by the backend status endpoint
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// TerminalJobStatus reports whether a backend status value ends polling
func TerminalJobStatus(status string) bool {
	return status == JobCompleted || status == JobFailed
}

// StatusResponse is the shape returned by the job status endpoint
type StatusResponse struct {
	JobID              string  `json:"job_id"`
	Status             string  `json:"status"`
	ProgressPercentage float64 `json:"progress_percentage"`
	CurrentStep        int     `json:"current_step"`
	TotalSteps         int     `json:"total_steps"`
	Message            string  `json:"message,omitempty"`
	ErrorMessage       string  `json:"error_message,omitempty"`
}

// ResultPayload is the final output of a completed query job
type ResultPayload struct {
	JobID       string          `json:"job_id"`
	Columns     []string        `json:"columns,omitempty"`
	Rows        json.RawMessage `json:"rows,omitempty"`
	RowCount    int             `json:"row_count"`
	ElapsedMs   int64           `json:"elapsed_ms"`
	CompletedAt time.Time       `json:"completed_at"`
}
