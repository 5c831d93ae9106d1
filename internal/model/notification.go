package model

import "time"

// Severity grades a notification for the UI layer
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is an ephemeral UI record derived from connection
// status transitions. Persistent notifications survive auto-dismissal
// and are reserved for severe, actionable failures.
type Notification struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id,omitempty"`
	Severity   Severity  `json:"severity"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Dismissed  bool      `json:"dismissed"`
	Persistent bool      `json:"persistent"`
}
