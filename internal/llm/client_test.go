package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, maxRetries int, baseDelay time.Duration) *Client {
	return NewClient(Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		MaxRetries:     maxRetries,
		RetryBaseDelay: baseDelay,
		HTTPTimeout:    5 * time.Second,
	})
}

func completionBody(content, finishReason string) string {
	return fmt.Sprintf(`{"id":"c1","model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":%q}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`, content, finishReason)
}

func TestCompleteChatNaturalStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("hello there", "stop"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, time.Millisecond)
	completion, err := client.CompleteChat(context.Background(), []ChatMessage{
		{Role: "user", Content: "hi"},
	}, Options{Model: "gpt", Temperature: 0.7, MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "hello there", completion.Content)
	assert.Equal(t, 0.95, completion.Confidence)
	assert.Empty(t, completion.ToolCalls)
	require.NotNil(t, completion.Usage)
	assert.Equal(t, 15, completion.Usage.TotalTokens)
}

func TestCompleteChatTruncatedLowersConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("partial ans", "length"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, time.Millisecond)
	completion, err := client.CompleteChat(context.Background(), []ChatMessage{
		{Role: "user", Content: "hi"},
	}, Options{Model: "gpt"})
	require.NoError(t, err)
	assert.Equal(t, 0.70, completion.Confidence)
}

func TestCompleteChatWithToolsParsesCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req["tools"], 1)
		require.Equal(t, "auto", req["tool_choice"])

		fmt.Fprint(w, `{"id":"c1","model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"list_customers","arguments":"{\"limit\":5}"}}]},"finish_reason":"tool_calls"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, time.Millisecond)
	completion, err := client.CompleteChatWithTools(context.Background(), []ChatMessage{
		{Role: "user", Content: "show customers"},
	}, []Tool{{Type: "function", Function: ToolFunction{Name: "list_customers"}}}, Options{Model: "gpt"})
	require.NoError(t, err)

	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "call_1", completion.ToolCalls[0].ID)
	assert.Equal(t, "list_customers", completion.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"limit":5}`, completion.ToolCalls[0].Function.Arguments)
	assert.Equal(t, 0.70, completion.Confidence)
}

func TestCompleteChatRejectsUnknownRole(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3, time.Millisecond)
	_, err := client.CompleteChat(context.Background(), []ChatMessage{
		{Role: "moderator", Content: "hi"},
	}, Options{Model: "gpt"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.Equal(t, KindFatal, KindOf(err))
	assert.Equal(t, int32(0), hits.Load(), "no request should be sent for invalid input")
}

func TestRateLimitRetriesWithDoublingBackoff(t *testing.T) {
	base := 20 * time.Millisecond
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
			return
		}
		fmt.Fprint(w, completionBody("finally", "stop"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3, base)
	start := time.Now()
	completion, err := client.CompleteChat(context.Background(), []ChatMessage{
		{Role: "user", Content: "hi"},
	}, Options{Model: "gpt"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "finally", completion.Content)
	assert.Equal(t, int32(4), hits.Load())
	// Waits are base, 2x base, 4x base with no jitter.
	assert.GreaterOrEqual(t, elapsed, 7*base)
	assert.Less(t, elapsed, 30*base)
}

func TestTransientRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, completionBody("ok", "stop"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2, time.Millisecond)
	_, err := client.CompleteChat(context.Background(), []ChatMessage{
		{Role: "user", Content: "hi"},
	}, Options{Model: "gpt"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFatalStatusFailsFast(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3, time.Millisecond)
	_, err := client.CompleteChat(context.Background(), []ChatMessage{
		{Role: "user", Content: "hi"},
	}, Options{Model: "nope"})

	require.Error(t, err)
	assert.Equal(t, KindFatal, KindOf(err))
	assert.Equal(t, int32(1), hits.Load(), "fatal errors must not be retried")
}

func TestRetryBudgetExhaustedKeepsKind(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2, time.Millisecond)
	_, err := client.CompleteChat(context.Background(), []ChatMessage{
		{Role: "user", Content: "hi"},
	}, Options{Model: "gpt"})

	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, int32(3), hits.Load())
}

func TestCancellationMidCallIsTimeout(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := newTestClient(server.URL, 3, time.Millisecond)
	_, err := client.CompleteChat(ctx, []ChatMessage{
		{Role: "user", Content: "hi"},
	}, Options{Model: "gpt"})

	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestDeadlineExpiryIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	client := newTestClient(server.URL, 3, time.Millisecond)
	_, err := client.CompleteChat(ctx, []ChatMessage{
		{Role: "user", Content: "hi"},
	}, Options{Model: "gpt"})

	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}
