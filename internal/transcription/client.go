package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Config contains transcription client configuration
type Config struct {
	APIKey   string
	BaseURL  string // optional endpoint override, mainly for tests
	Model    string
	Language string
	Prompt   string
	Timeout  time.Duration
}

// Client calls the OpenAI audio transcription API. One segment at a time;
// the pipeline's worker is the only caller, so no internal rate limiting is
// needed.
type Client struct {
	cfg Config
	api *openai.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	emptyResults    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	EmptyResults    uint64        `json:"empty_results"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new transcription client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-transcribe"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		cfg: cfg,
		api: openai.NewClientWithConfig(apiCfg),
	}, nil
}

// Transcribe sends the WAV file at audioPath for transcription and returns
// the recognized text. Leading/trailing whitespace is trimmed; an empty
// string with a nil error means the API heard nothing worth keeping.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.incrementTotalRequests()
	startTime := time.Now()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:       c.cfg.Model,
		FilePath:    audioPath,
		Language:    c.cfg.Language,
		Prompt:      c.cfg.Prompt,
		Temperature: 0,
	})
	if err != nil {
		c.incrementFailedRequests()
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	c.recordSuccess(time.Since(startTime))

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		c.incrementEmptyResults()
	}

	return text, nil
}

// Retryable reports whether err looks transient (rate limit, server error,
// timeout). The worker never retries a segment, but the label keeps skip
// logs honest about what happened.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	// Transport-level failures without an API error are network trouble.
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	return false
}

// Model returns the configured transcription model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementEmptyResults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emptyResults++
}

func (c *Client) recordSuccess(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successRequests++

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics.
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		EmptyResults:    c.emptyResults,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}
