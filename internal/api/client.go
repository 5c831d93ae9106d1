// Package api implements the status and result fetch collaborators
// over the backend's HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dandantas/kestrel/internal/model"
)

// maxErrorBody bounds how much of an error response body is read back
// into error messages
const maxErrorBody = 1024

// Client fetches job status and results over HTTP. It satisfies
// poll.StatusFetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an API client with connection pooling
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// FetchStatus retrieves the current status of a job
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	var status model.StatusResponse
	url := fmt.Sprintf("%s/api/v1/jobs/%s/status", c.baseURL, jobID)
	if err := c.getJSON(ctx, url, &status); err != nil {
		return nil, err
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	return &status, nil
}

// FetchResult retrieves the final result of a completed job
func (c *Client) FetchResult(ctx context.Context, jobID string) (*model.ResultPayload, error) {
	var result model.ResultPayload
	url := fmt.Sprintf("%s/api/v1/jobs/%s/result", c.baseURL, jobID)
	if err := c.getJSON(ctx, url, &result); err != nil {
		return nil, err
	}
	if result.JobID == "" {
		result.JobID = jobID
	}
	return &result, nil
}

// getJSON performs one GET and decodes a JSON body into out
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("request %s: status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
