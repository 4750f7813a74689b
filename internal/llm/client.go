// Package llm generates domain-name candidates through an OpenAI-compatible
// chat completions API (Groq in production). The client over-requests a margin
// above the caller's target, parses the model's JSON output defensively, and
// retries transient failures with exponential backoff.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/namescout/namescout/internal/metrics"
)

// Sentinel errors callers map to API error codes.
var (
	ErrRateLimited        = errors.New("llm rate limited")
	ErrServiceUnavailable = errors.New("llm service unavailable")
	ErrGenerationFailed   = errors.New("llm generation failed")
)

// overRequestMargin is how many extra names to ask for beyond the target, so
// that validation and dedup losses still leave enough candidates.
const overRequestMargin = 10

// GenerateRequest describes one generation call.
type GenerateRequest struct {
	Description string
	TargetCount int
	PromptType  PromptType
	Preferences *Preferences
	SimilarTo   string
}

// GenerateResult carries the sanitized candidate list plus token usage for
// metrics persistence.
type GenerateResult struct {
	Domains          []string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator is the interface the orchestrator consumes. Satisfied by Client
// and by test fakes.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// Options configures a Client. Zero values fall back to sane defaults.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client talks to a Groq-style /chat/completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	maxRetries  int
	backoffBase time.Duration
	hc          *http.Client
	logger      *slog.Logger
}

var _ Generator = (*Client)(nil)

// NewClient creates a generation client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		maxTokens:   opts.MaxTokens,
		maxRetries:  3,
		backoffBase: 500 * time.Millisecond,
		hc:          hc,
		logger:      logger,
	}
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Temperature         float64       `json:"temperature"`
	TopP                float64       `json:"top_p"`
	MaxCompletionTokens int           `json:"max_completion_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate asks the model for TargetCount+margin names and returns the
// sanitized, deduplicated list. Transient failures (connection, timeout, 429,
// 5xx) are retried with exponential backoff; the 429 backoff is doubled to
// give the rate limiter room.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	prompt, err := renderPrompt(req, req.TargetCount+overRequestMargin)
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var lastErr error
	backoff := c.backoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying generation", "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.LLMCallsTotal.WithLabelValues("canceled").Inc()
				return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, ctx.Err())
			}
			backoff *= 2
		}

		result, retryable, err := c.attempt(ctx, prompt)
		if err == nil {
			metrics.LLMCallsTotal.WithLabelValues("ok").Inc()
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrRateLimited) {
			// Double again on top of the regular progression.
			backoff *= 2
		}
		if !retryable {
			break
		}
	}

	metrics.LLMCallsTotal.WithLabelValues("error").Inc()
	return nil, lastErr
}

// attempt performs one HTTP round trip. The bool reports whether the failure
// is worth retrying.
func (c *Client) attempt(ctx context.Context, prompt string) (*GenerateResult, bool, error) {
	body, err := json.Marshal(chatRequest{
		Model:               c.model,
		Messages:            []chatMessage{{Role: "user", Content: prompt}},
		Temperature:         c.temperature,
		TopP:                c.topP,
		MaxCompletionTokens: c.maxTokens,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: marshal request: %v", ErrGenerationFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrServiceUnavailable, ctx.Err())
		}
		return nil, true, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", ErrServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		// Other 4xx means the request itself is bad; retrying will not help.
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: decode response: %v", ErrGenerationFailed, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, false, fmt.Errorf("%w: empty choices", ErrGenerationFailed)
	}

	domains, err := parseCompletion(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return &GenerateResult{
		Domains:          domains,
		Model:            model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}, false, nil
}

// parseCompletion extracts the candidate list from a model reply. Handles
// markdown code fences and the occasional single-string answer.
func parseCompletion(content string) ([]string, error) {
	text := stripCodeFences(content)

	var names []string
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &names); err != nil {
			return nil, fmt.Errorf("parse suggestion array: %w", err)
		}
	} else {
		var single string
		if err := json.Unmarshal([]byte(text), &single); err != nil {
			// Bare unquoted name as a last resort.
			single = text
		}
		names = []string{single}
	}

	cleaned := sanitize(names)
	if len(cleaned) == 0 {
		return nil, errors.New("no usable names in completion")
	}
	return cleaned, nil
}

// stripCodeFences removes a surrounding ```...``` block, with or without a
// language tag, and any reasoning preamble before the fence.
func stripCodeFences(content string) string {
	text := strings.TrimSpace(content)

	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	text = text[start+3:]
	// Drop the language tag line if present.
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(text[:nl])
		if firstLine == "json" || firstLine == "" {
			text = text[nl+1:]
		}
	}
	if end := strings.Index(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// sanitize lowercases, strips whitespace and quotes, and deduplicates while
// preserving generation order.
func sanitize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		cleaned := strings.ToLower(strings.TrimSpace(name))
		cleaned = strings.Trim(cleaned, `"'`)
		cleaned = strings.ReplaceAll(cleaned, " ", "")
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
