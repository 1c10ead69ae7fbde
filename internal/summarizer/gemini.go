// Package summarizer condenses a transcript into a formatted document using
// Gemini, honoring the structure of a user-supplied template.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const summaryPrompt = `You are an expert in summarizing transcripts, and you will format the summary using the template.

Transcript:
---
%s
---

Template:
---
%s
---

Provide a summary of the transcript, formatted according to the template. Adhere to any formatting,
style, or structural elements present in the template. The summary should be comprehensive yet concise.
Return only the formatted summary.`

// Error is a summarization failure carrying the underlying provider error.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "summarization failed: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Client calls Gemini for template-driven summarization.
// API keys are rotated on quota errors; total attempts are bounded by the
// number of configured keys, so a run never retries silently forever.
// Safe for concurrent use: pipeline runs share one client.
type Client struct {
	apiKeys []string
	model   string
	logger  *zap.Logger

	mu         sync.Mutex
	currentKey int
}

// NewClient creates a summarization client.
func NewClient(apiKeys []string, model string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{apiKeys: apiKeys, model: model, logger: logger}
}

// Summarize sends the transcript and template to Gemini and returns the
// formatted summary text.
func (c *Client) Summarize(ctx context.Context, transcript, template string) (string, error) {
	if len(c.apiKeys) == 0 {
		return "", &Error{Err: fmt.Errorf("no API key configured")}
	}
	prompt := fmt.Sprintf(summaryPrompt, transcript, template)

	attempts := len(c.apiKeys)
	var lastErr error

	for range attempts {
		keyIndex, key := c.key()

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			c.rotateKey()
			continue
		}

		result, err := client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
		if err != nil {
			errMsg := err.Error()
			if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "RESOURCE_EXHAUSTED") {
				c.logger.Warn("summarization key rate limited, rotating", zap.Int("key_index", keyIndex))
				c.rotateKey()
				lastErr = err
				continue
			}
			return "", &Error{Err: err}
		}

		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
			var text string
			for _, part := range result.Candidates[0].Content.Parts {
				if part.Text != "" {
					text += part.Text
				}
			}
			if strings.TrimSpace(text) == "" {
				return "", &Error{Err: fmt.Errorf("empty response")}
			}
			return strings.TrimSpace(text), nil
		}

		return "", &Error{Err: fmt.Errorf("empty response")}
	}

	return "", &Error{Err: fmt.Errorf("all API keys exhausted: %w", lastErr)}
}

func (c *Client) key() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentKey, c.apiKeys[c.currentKey]
}

func (c *Client) rotateKey() {
	c.mu.Lock()
	c.currentKey = (c.currentKey + 1) % len(c.apiKeys)
	c.mu.Unlock()
}
