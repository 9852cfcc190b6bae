// Package remote talks to the compute service that runs the satellite
// analysis. Status strings are normalized here, at the ingestion boundary.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// Sentinel errors for remote service failures.
var (
	ErrUnreachable = errors.New("remote service unreachable")
	ErrTimeout     = errors.New("remote service timeout")
	ErrRejected    = errors.New("remote service rejected request")
	ErrDecode      = errors.New("remote service returned malformed response")
)

const maxErrorBody = 64 << 10

// HTTPError is returned when the remote service answers with a non-2xx status.
// Body holds the (truncated) error payload.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrRejected, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error { return ErrRejected }

// Client is the interface for the remote compute service.
type Client interface {
	Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResponse, error)
	Status(ctx context.Context, jobID string) (models.StatusResponse, error)
	Results(ctx context.Context, jobID string) (models.ResultsResponse, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client over the service's JSON HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new remote service client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.SubmitResponse{}, fmt.Errorf("encoding submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return models.SubmitResponse{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out models.SubmitResponse
	if err := c.do(httpReq, &out); err != nil {
		return models.SubmitResponse{}, err
	}
	if out.JobID == "" {
		return models.SubmitResponse{}, fmt.Errorf("%w: submit response has no job_id", ErrDecode)
	}
	if out.Status == "" {
		out.Status = models.JobStatusQueued
	}
	return out, nil
}

func (c *HTTPClient) Status(ctx context.Context, jobID string) (models.StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/status/%s", c.baseURL, url.PathEscape(jobID)), nil)
	if err != nil {
		return models.StatusResponse{}, fmt.Errorf("building request: %w", err)
	}

	var out models.StatusResponse
	if err := c.do(httpReq, &out); err != nil {
		return models.StatusResponse{}, err
	}
	if out.Status == "" {
		return models.StatusResponse{}, fmt.Errorf("%w: status response has no status", ErrDecode)
	}
	if out.JobID == "" {
		out.JobID = jobID
	}
	return out, nil
}

func (c *HTTPClient) Results(ctx context.Context, jobID string) (models.ResultsResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/results/%s", c.baseURL, url.PathEscape(jobID)), nil)
	if err != nil {
		return models.ResultsResponse{}, fmt.Errorf("building request: %w", err)
	}

	var wire resultsWire
	if err := c.do(httpReq, &wire); err != nil {
		return models.ResultsResponse{}, err
	}
	out := wire.normalize()
	if out.JobID == "" {
		out.JobID = jobID
	}
	return out, nil
}

// Ready checks that the service answers at all. Any response below 500
// counts as reachable.
func (c *HTTPClient) Ready(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: remote not ready (status %d)", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return classifyError(err)
		}
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// resultsWire accepts both the flat results shape and the older nested
// {results:{statistics,changes,downloads}} shape.
type resultsWire struct {
	JobID         string                 `json:"job_id"`
	Status        models.JobStatus       `json:"status"`
	Statistics    *models.ResultsSummary `json:"statistics"`
	TotalChanges  int                    `json:"total_changes"`
	ChangesByType map[string]int         `json:"changes_by_type"`
	TopChanges    []models.Change        `json:"top_changes"`
	Files         map[string]string      `json:"files"`
	Results       *struct {
		Statistics models.ResultsSummary `json:"statistics"`
		Changes    []models.Change       `json:"changes"`
		Downloads  map[string]string     `json:"downloads"`
	} `json:"results"`
}

func (w resultsWire) normalize() models.ResultsResponse {
	out := models.ResultsResponse{
		JobID:         w.JobID,
		Status:        w.Status,
		TotalChanges:  w.TotalChanges,
		ChangesByType: w.ChangesByType,
		TopChanges:    w.TopChanges,
		Files:         w.Files,
	}
	if out.Status == "" {
		out.Status = models.JobStatusCompleted
	}
	if w.Statistics != nil {
		out.Statistics = *w.Statistics
	}
	if w.Results != nil {
		if w.Statistics == nil {
			out.Statistics = w.Results.Statistics
		}
		if len(out.TopChanges) == 0 {
			out.TopChanges = w.Results.Changes
		}
		if len(out.Files) == 0 {
			out.Files = w.Results.Downloads
		}
	}
	return out
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
