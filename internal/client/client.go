// Package client is a typed HTTP client for the generation API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voicestudio/internal/domain"
)

// Job mirrors the API's job record.
type Job struct {
	ID                     string              `json:"id"`
	ProjectID              string              `json:"project_id"`
	Status                 domain.JobStatus    `json:"status"`
	Progress               float64             `json:"progress"`
	CurrentChunk           int                 `json:"current_chunk"`
	TotalChunks            int                 `json:"total_chunks"`
	ChunkProgress          float64             `json:"chunk_progress"`
	EstimatedTimeRemaining *float64            `json:"estimated_time_remaining,omitempty"`
	OutputPath             string              `json:"output_path,omitempty"`
	DownloadURL            string              `json:"download_url,omitempty"`
	AudioDuration          *int                `json:"audio_duration,omitempty"`
	ErrorMessage           string              `json:"error_message,omitempty"`
	VoiceMapping           domain.VoiceMapping `json:"voice_mapping,omitempty"`
	CancelRequested        bool                `json:"cancel_requested"`
	CreatedAt              time.Time           `json:"created_at"`
	StartedAt              *time.Time          `json:"started_at,omitempty"`
	CompletedAt            *time.Time          `json:"completed_at,omitempty"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

// ETA returns the advisory remaining time, or zero when unknown.
func (j *Job) ETA() time.Duration {
	if j.EstimatedTimeRemaining == nil {
		return 0
	}
	return time.Duration(*j.EstimatedTimeRemaining * float64(time.Second))
}

type QueueStatus struct {
	Position      int      `json:"position"`
	EstimatedWait *float64 `json:"estimated_wait,omitempty"`
	ActiveJobs    int      `json:"active_jobs"`
	QueuedJobs    int      `json:"queued_jobs"`
}

type StartRequest struct {
	ProjectID    string              `json:"project_id"`
	VoiceMapping domain.VoiceMapping `json:"voice_mapping,omitempty"`
	Options      json.RawMessage     `json:"options,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode    int
	Code          string `json:"error"`
	Message       string `json:"message"`
	ExistingJobID string `json:"existing_job_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 caused by an active job.
func IsConflict(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "conflict" {
		return apiErr.ExistingJobID, true
	}
	return "", false
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Start(ctx context.Context, req StartRequest) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/generation/start", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/generation/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Cancel(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/generation/"+url.PathEscape(jobID)+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Queue(ctx context.Context) (*QueueStatus, error) {
	var qs QueueStatus
	if err := c.do(ctx, http.MethodGet, "/generation/queue/status", nil, &qs); err != nil {
		return nil, err
	}
	return &qs, nil
}

func (c *Client) History(ctx context.Context, projectID string) ([]Job, error) {
	var out struct {
		Items []Job `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/generations", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Download streams the finished audio into w.
func (c *Client) Download(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, "/generation/"+url.PathEscape(jobID)+"/download", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	apiErr := &APIError{StatusCode: resp.StatusCode}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
	return nil, apiErr
}

// Watch polls the job every interval until it is terminal, calling fn with
// each snapshot. Transient request errors are retried.
func (c *Client) Watch(ctx context.Context, jobID string, interval time.Duration, fn func(*Job)) (*Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Status(ctx, jobID)
		switch {
		case err == nil:
			if fn != nil {
				fn(job)
			}
			if job.Status.Terminal() {
				return job, nil
			}
		case isPermanent(err):
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isPermanent(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < 500
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
