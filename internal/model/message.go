package model

import (
	"errors"
	"fmt"
)

// MessageType identifies the variant carried by a Message
type MessageType string

const (
	MessageProgress   MessageType = "progress"
	MessageError      MessageType = "error"
	MessageCompletion MessageType = "completion"
)

// ProgressPayload carries an incremental job progress update
type ProgressPayload struct {
	Percentage  float64 `json:"percentage"`
	CurrentStep int     `json:"current_step"`
	TotalSteps  int     `json:"total_steps"`
	StepName    string  `json:"step_name,omitempty"`
}

// ErrorPayload carries a job-level failure report
type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// CompletionPayload carries the final job result
type CompletionPayload struct {
	Result *ResultPayload `json:"result"`
}

// Message is a closed tagged variant delivered to job subscribers.
// Exactly one payload field is set, matching Type.
type Message struct {
	JobID      string             `json:"job_id"`
	Type       MessageType        `json:"type"`
	Progress   *ProgressPayload   `json:"progress,omitempty"`
	Error      *ErrorPayload      `json:"error,omitempty"`
	Completion *CompletionPayload `json:"completion,omitempty"`
}

// NewProgress builds a progress Message
func NewProgress(jobID string, p ProgressPayload) Message {
	return Message{JobID: jobID, Type: MessageProgress, Progress: &p}
}

// NewError builds an error Message
func NewError(jobID, message, details string) Message {
	return Message{JobID: jobID, Type: MessageError, Error: &ErrorPayload{Message: message, Details: details}}
}

// NewCompletion builds a completion Message
func NewCompletion(jobID string, result *ResultPayload) Message {
	return Message{JobID: jobID, Type: MessageCompletion, Completion: &CompletionPayload{Result: result}}
}

// Terminal reports whether the message ends the job's lifecycle
func (m Message) Terminal() bool {
	return m.Type == MessageCompletion || m.Type == MessageError
}

// Validate checks that exactly one payload matches the tag
func (m Message) Validate() error {
	if m.JobID == "" {
		return errors.New("message job_id is required")
	}
	switch m.Type {
	case MessageProgress:
		if m.Progress == nil || m.Error != nil || m.Completion != nil {
			return errors.New("progress message must carry exactly the progress payload")
		}
	case MessageError:
		if m.Error == nil || m.Progress != nil || m.Completion != nil {
			return errors.New("error message must carry exactly the error payload")
		}
	case MessageCompletion:
		if m.Completion == nil || m.Progress != nil || m.Error != nil {
			return errors.New("completion message must carry exactly the completion payload")
		}
	default:
		return fmt.Errorf("unknown message type: %s", m.Type)
	}
	return nil
}
