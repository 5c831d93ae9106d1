package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{
			name: "valid progress",
			msg:  NewProgress("q1", ProgressPayload{Percentage: 50}),
		},
		{
			name: "valid error",
			msg:  NewError("q1", "boom", "stack trace"),
		},
		{
			name: "valid completion",
			msg:  NewCompletion("q1", &ResultPayload{JobID: "q1"}),
		},
		{
			name:    "missing job id",
			msg:     Message{Type: MessageProgress, Progress: &ProgressPayload{}},
			wantErr: true,
		},
		{
			name:    "progress without payload",
			msg:     Message{JobID: "q1", Type: MessageProgress},
			wantErr: true,
		},
		{
			name: "progress with extra payload",
			msg: Message{
				JobID:    "q1",
				Type:     MessageProgress,
				Progress: &ProgressPayload{},
				Error:    &ErrorPayload{Message: "boom"},
			},
			wantErr: true,
		},
		{
			name:    "error without payload",
			msg:     Message{JobID: "q1", Type: MessageError},
			wantErr: true,
		},
		{
			name:    "completion without payload",
			msg:     Message{JobID: "q1", Type: MessageCompletion},
			wantErr: true,
		},
		{
			name:    "unknown type",
			msg:     Message{JobID: "q1", Type: "heartbeat"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMessageTerminal(t *testing.T) {
	assert.False(t, NewProgress("q1", ProgressPayload{}).Terminal())
	assert.True(t, NewError("q1", "boom", "").Terminal())
	assert.True(t, NewCompletion("q1", nil).Terminal())
}

func TestMessageJSONShape(t *testing.T) {
	payload, err := json.Marshal(NewProgress("q1", ProgressPayload{
		Percentage:  25,
		CurrentStep: 1,
		TotalSteps:  4,
		StepName:    "parse query",
	}))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "q1", decoded["job_id"])
	assert.Equal(t, "progress", decoded["type"])
	assert.Contains(t, decoded, "progress")
	assert.NotContains(t, decoded, "error")
	assert.NotContains(t, decoded, "completion")
}

func TestTerminalJobStatus(t *testing.T) {
	assert.True(t, TerminalJobStatus(JobCompleted))
	assert.True(t, TerminalJobStatus(JobFailed))
	assert.False(t, TerminalJobStatus(JobQueued))
	assert.False(t, TerminalJobStatus(JobProcessing))
	assert.False(t, TerminalJobStatus(""))
}
