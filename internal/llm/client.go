// Package llm is a thin client for an OpenAI-compatible chat completions
// endpoint, with failure classification and a bounded retry policy.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"ledgermate-backend/pkg/logger"
)

// Confidence is a coarse heuristic: high when the provider reports a natural
// stop, lower for truncation, tool handoff or anything else.
const (
	confidenceNaturalStop = 0.95
	confidenceFallback    = 0.70
)

// Config carries the provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// MaxRetries is the number of retry attempts after the first failure,
	// shared by the rate-limit and transient profiles.
	MaxRetries int
	// RetryBaseDelay is the first backoff wait. Rate-limit retries double it
	// each attempt; transient retries grow it by 1.5x.
	RetryBaseDelay time.Duration
	// HTTPTimeout bounds each individual request. The caller's context
	// deadline bounds the call as a whole, including backoff waits.
	HTTPTimeout time.Duration
}

// Client talks to the chat completions endpoint. Stateless per call; safe for
// concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	log        *logger.Logger
}

// NewClient creates a chat completions client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		log:        logger.Get().WithComponent("llm"),
	}
}

// Options are the per-call generation settings, sourced from the tenant's
// assistant settings.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completion is the provider's answer to one call.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	Confidence   float64
	FinishReason string
	Usage        *Usage
}

// CompleteChat requests a plain text completion.
func (c *Client) CompleteChat(ctx context.Context, messages []ChatMessage, opts Options) (*Completion, error) {
	return c.complete(ctx, messages, nil, opts)
}

// CompleteChatWithTools requests a completion offering the given tools. The
// model may answer with text, tool calls, or both.
func (c *Client) CompleteChatWithTools(ctx context.Context, messages []ChatMessage, tools []Tool, opts Options) (*Completion, error) {
	return c.complete(ctx, messages, tools, opts)
}

func (c *Client) complete(ctx context.Context, messages []ChatMessage, tools []Tool, opts Options) (*Completion, error) {
	if err := validateRoles(messages); err != nil {
		return nil, err
	}

	req := chatCompletionRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: &opts.Temperature,
		Tools:       tools,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = &opts.MaxTokens
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}

	var lastErr *Error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffFor(lastErr.Kind, c.baseDelay, attempt-1)
			c.log.Warn("upstream call failed, retrying",
				"kind", lastErr.Kind.String(),
				"attempt", attempt,
				"wait", wait.String(),
			)
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: KindTimeout, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		completion, err := c.doRequest(ctx, &req)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if !retryable(err.Kind) {
			return nil, err
		}
	}
	return nil, lastErr
}

// backoffFor computes the wait before retry n (0-indexed). Rate-limit waits
// double each attempt; transient waits grow by 1.5x.
func backoffFor(k Kind, base time.Duration, n int) time.Duration {
	factor := 1.5
	if k == KindRateLimited {
		factor = 2.0
	}
	return time.Duration(float64(base) * math.Pow(factor, float64(n)))
}

func validateRoles(messages []ChatMessage) error {
	for _, m := range messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return &Error{
				Kind:    KindFatal,
				Message: fmt.Sprintf("role %q", m.Role),
				Err:     fmt.Errorf("%w: %q", ErrUnknownRole, m.Role),
			}
		}
	}
	return nil
}

// doRequest performs a single attempt and classifies any failure.
func (c *Client) doRequest(ctx context.Context, req *chatCompletionRequest) (*Completion, *Error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindFatal, Message: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindFatal, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// The caller's deadline or cancellation, not an upstream fault.
			return nil, &Error{Kind: KindTimeout, Err: ctx.Err()}
		}
		if os.IsTimeout(err) {
			return nil, &Error{Kind: KindTransient, Message: "request timed out", Err: err}
		}
		return nil, &Error{Kind: KindFatal, Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindTimeout, Err: ctx.Err()}
		}
		return nil, &Error{Kind: KindFatal, Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &Error{Kind: KindFatal, Message: "unmarshal response", Err: err}
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return nil, &Error{Kind: KindFatal, Message: "provider returned no completion choices"}
	}

	ch := result.Choices[0]
	confidence := confidenceFallback
	if ch.FinishReason == "stop" {
		confidence = confidenceNaturalStop
	}
	return &Completion{
		Content:      ch.Message.Content,
		ToolCalls:    ch.Message.ToolCalls,
		Confidence:   confidence,
		FinishReason: ch.FinishReason,
		Usage:        result.Usage,
	}, nil
}

func classifyStatus(status int, body []byte) *Error {
	message := strings.TrimSpace(string(body))
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		message = errResp.Error.Message
	}

	kind := KindFatal
	switch status {
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = KindTransient
	}
	return &Error{Kind: kind, Status: status, Message: message}
}
