package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/st-keller/objid-poller/standard"
	"github.com/st-keller/objid-poller/types"
)

// CheckPath is the batched check endpoint.
const CheckPath = "/api/v2/check"

// serviceName identifies the backend in connectivity stats.
const serviceName = "objid-backend"

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 512

// StatusError is returned when the backend answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// BackendConfig configures a Backend.
type BackendConfig struct {
	BaseURL      string                        // e.g. "https://backend.example.com"
	APIKey       string                        // optional, sent as Ninja-API-Key
	HTTPClient   *http.Client                  // required
	Connectivity *standard.ConnectivityTracker // optional
}

// Backend implements types.Transport over HTTP.
type Backend struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	connectivity *standard.ConnectivityTracker
}

// NewBackend creates a Backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL required")
	}
	if cfg.HTTPClient == nil {
		return nil, fmt.Errorf("HTTPClient required")
	}

	return &Backend{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		http:         cfg.HTTPClient,
		connectivity: cfg.Connectivity,
	}, nil
}

// CheckBatch posts the payload to the check endpoint. An empty or null body
// yields a nil response and a nil error.
func (b *Backend) CheckBatch(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
	url := b.baseURL + CheckPath

	if payload == nil {
		payload = types.PollPayload{}
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Ninja-API-Key", b.apiKey)
	}

	startTime := time.Now()
	resp, err := b.http.Do(req)
	latency := time.Since(startTime)

	if err != nil {
		b.trackFailure(latency, err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		b.trackFailure(latency, statusErr.Error())
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.trackFailure(latency, err.Error())
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	b.trackSuccess(latency)

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var response types.PollResponse
	if err := json.Unmarshal(trimmed, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response, nil
}

func (b *Backend) trackSuccess(latency time.Duration) {
	if b.connectivity != nil {
		b.connectivity.TrackSuccess(serviceName, b.baseURL, latency)
	}
}

func (b *Backend) trackFailure(latency time.Duration, msg string) {
	if b.connectivity != nil {
		b.connectivity.TrackFailure(serviceName, b.baseURL, latency, msg)
	}
}
