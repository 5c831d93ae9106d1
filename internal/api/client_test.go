package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandantas/kestrel/internal/model"
)

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/q1/status", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.StatusResponse{
			JobID:              "q1",
			Status:             model.JobProcessing,
			ProgressPercentage: 42,
			CurrentStep:        2,
			TotalSteps:         3,
			Message:            "execute",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	status, err := c.FetchStatus(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "q1", status.JobID)
	assert.Equal(t, model.JobProcessing, status.Status)
	assert.Equal(t, float64(42), status.ProgressPercentage)
	assert.Equal(t, "execute", status.Message)
}

func TestFetchStatus_FillsMissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.StatusResponse{Status: model.JobQueued})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	status, err := c.FetchStatus(context.Background(), "q7")
	require.NoError(t, err)
	assert.Equal(t, "q7", status.JobID)
}

func TestFetchResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/q1/result", r.URL.Path)
		json.NewEncoder(w).Encode(model.ResultPayload{
			JobID:    "q1",
			Columns:  []string{"id", "name"},
			Rows:     json.RawMessage(`[[1,"a"],[2,"b"]]`),
			RowCount: 2,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	result, err := c.FetchResult(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
}

func TestFetchStatus_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.FetchStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "job not found")
}

func TestFetchStatus_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.FetchStatus(context.Background(), "q1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestFetchStatus_ContextCancelled(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.FetchStatus(ctx, "q1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
