// Package transcriber wraps the AssemblyAI speech-to-text API: submit a job
// referencing an audio URL, then poll until the provider reports a terminal
// status.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL      = "https://api.assemblyai.com"
	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 30 * time.Minute
)

// Provider job statuses. Anything other than completed/error is treated as
// still running (the provider also reports queued, processing, etc.).
const (
	statusCompleted = "completed"
	statusError     = "error"
)

// Error is a transcription failure: rejected submission, failed job, or
// unparseable provider output. StatusCode and Body are kept for diagnosis.
type Error struct {
	Op         string // "submit" or "poll"
	StatusCode int
	Body       string
	Detail     string // provider error field, when present
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("transcription %s failed: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("transcription %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// TimeoutError is returned when polling exceeds the configured bound.
type TimeoutError struct {
	JobID string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transcription job %s did not finish within %s", e.JobID, e.After)
}

// Config holds client settings.
type Config struct {
	APIKey       string
	BaseURL      string // empty = production API
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client calls the AssemblyAI transcript API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a transcription client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}, logger: logger}
}

type submitRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe submits audioURL and polls until the job completes, returning the
// transcript text. The wait is bounded by Config.PollTimeout; expiry yields a
// *TimeoutError, every other failure a *Error.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (string, error) {
	job, err := c.submit(ctx, audioURL)
	if err != nil {
		return "", err
	}
	c.logger.Debug("transcription job submitted", zap.String("job_id", job.ID), zap.String("status", job.Status))

	deadline := time.Now().Add(c.cfg.PollTimeout)
	status := job.Status
	for status != statusCompleted {
		if status == statusError {
			return "", &Error{Op: "poll", Detail: job.Error}
		}
		if time.Now().After(deadline) {
			return "", &TimeoutError{JobID: job.ID, After: c.cfg.PollTimeout}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		job, err = c.poll(ctx, job.ID)
		if err != nil {
			return "", err
		}
		status = job.Status
	}
	return job.Text, nil
}

func (c *Client) submit(ctx context.Context, audioURL string) (*transcriptResponse, error) {
	body, err := json.Marshal(submitRequest{AudioURL: audioURL})
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "submit")
}

func (c *Client) poll(ctx context.Context, jobID string) (*transcriptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)

	return c.do(req, "poll")
}

func (c *Client) do(req *http.Request, op string) (*transcriptResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("transcription %s read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var out transcriptResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Body: string(raw), Detail: "unparseable response"}
	}
	return &out, nil
}
