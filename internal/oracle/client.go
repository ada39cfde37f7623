// Package oracle talks to the external natural-language inference
// service over an OpenAI-compatible chat completions endpoint.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultAttemptTimeout bounds a single attempt, not the whole retry
// sequence.
const DefaultAttemptTimeout = 30 * time.Second

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	BaseURL        string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	HTTPClient     *http.Client
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

var sleepFn = time.Sleep

const maxRetries = 3

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// retryableError marks a failure worth another attempt. wait carries
// the server-suggested delay; zero means use exponential backoff.
type retryableError struct {
	err  error
	wait time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Chat sends one system+user exchange and returns the assistant text.
// 429 and 5xx responses and transport failures are retried with
// exponential backoff, honoring Retry-After when present. Each attempt
// runs under its own deadline derived from ctx.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	if c.Logger != nil {
		c.Logger.Debug("oracle request", "url", endpoint, "user", userPrompt)
	}

	for attempt := 0; ; attempt++ {
		content, err := c.attempt(ctx, endpoint, payload)
		if err == nil {
			return content, nil
		}

		var retryable *retryableError
		if !errors.As(err, &retryable) || attempt >= maxRetries || ctx.Err() != nil {
			return "", err
		}
		wait := retryable.wait
		if wait == 0 {
			wait = time.Second << attempt
		}
		sleepFn(wait)
	}
}

// attempt performs one request/response cycle under its own deadline.
func (c *Client) attempt(ctx context.Context, endpoint string, payload []byte) (string, error) {
	timeout := c.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &retryableError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retryableError{err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		statusErr := fmt.Errorf("oracle error status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return "", &retryableError{err: statusErr, wait: retryAfter(resp)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("oracle error status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("oracle response has no choices")
	}
	content := out.Choices[0].Message.Content
	if c.Logger != nil {
		c.Logger.Debug("oracle response", "content", content)
	}
	return content, nil
}

// retryAfter reads the server-suggested wait from a 429 response.
func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
