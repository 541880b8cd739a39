package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-qa/internal/core/ask"
	"github.com/jinford/repo-qa/internal/platform/executor"
)

func testExecutor() *executor.Executor {
	return executor.New(
		executor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		executor.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
	)
}

func completionBody(content string) string {
	return fmt.Sprintf(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"test-model",`+
		`"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],`+
		`"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, content)
}

func streamChunk(content string) string {
	return fmt.Sprintf(`data: {"id":"cmpl-1","object":"chat.completion.chunk","created":1,"model":"test-model",`+
		`"choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`+"\n\n", content)
}

const rateLimitBody = `{"error":{"message":"Rate limit reached. Please try again in 1.5s.","type":"rate_limit","code":"rate_limit_exceeded"}}`

func newChatClient(t *testing.T, srv *httptest.Server) *ChatClient {
	t.Helper()
	c, err := NewChatClient("test-key",
		WithChatBaseURL(srv.URL+"/v1/"),
		WithChatModel("test-model"),
		WithChatExecutor(testExecutor()),
		WithChatLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return c
}

func TestNewChatClient_RequiresAPIKey(t *testing.T) {
	_, err := NewChatClient("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)

	_, err = NewEmbedder("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestSummarizeCode_SendsSamplingParameters(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("  Handles HTTP routing for the API server.  "))
	}))
	defer srv.Close()

	s := NewSummarizer(newChatClient(t, srv))
	summary, err := s.SummarizeCode(context.Background(), "router.go", "package api")
	require.NoError(t, err)

	assert.Equal(t, "Handles HTTP routing for the API server.", summary)
	assert.Equal(t, "test-model", got["model"])
	assert.InDelta(t, 0.2, got["temperature"], 1e-9)
	assert.InDelta(t, 150, got["max_tokens"], 1e-9)
	assert.InDelta(t, 0.7, got["top_p"], 1e-9)

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Contains(t, user["content"], "Onboarding a junior engineer for router.go")
	assert.Contains(t, user["content"], "Provide a 100-word summary")
}

func TestComplete_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, rateLimitBody)
			return
		}
		_, _ = io.WriteString(w, completionBody("ok"))
	}))
	defer srv.Close()

	s := NewSummarizer(newChatClient(t, srv))
	summary, err := s.SummarizeCommit(context.Background(), "diff --git a/x b/x")
	require.NoError(t, err)
	assert.Equal(t, "ok", summary)
	assert.Equal(t, int32(2), calls.Load())
}

func TestComplete_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	c := newChatClient(t, srv)
	_, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrTransientFailureExceeded)
	assert.Equal(t, int32(3), calls.Load())

	var statusErr *executor.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestComplete_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := newChatClient(t, srv).Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, errors.Is(err, executor.ErrTransientFailureExceeded))
}

func TestStreamAnswer_DeliversChunksInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"The ", "router ", "lives in api.go"} {
			_, _ = io.WriteString(w, streamChunk(chunk))
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var tokens []string
	err := newChatClient(t, srv).StreamAnswer(context.Background(),
		ask.Prompt{System: "sys", User: "where is the router?"},
		func(s string) error {
			tokens = append(tokens, s)
			return nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"The ", "router ", "lives in api.go"}, tokens)
}

func TestStreamAnswer_RetriesBeforeFirstChunk(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, rateLimitBody)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, streamChunk("answer"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var tokens []string
	err := newChatClient(t, srv).StreamAnswer(context.Background(), ask.Prompt{User: "q"}, func(s string) error {
		tokens = append(tokens, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"answer"}, tokens)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStreamAnswer_ConsumerErrorStopsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, streamChunk("a"))
		_, _ = io.WriteString(w, streamChunk("b"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	stop := errors.New("consumer gone")
	calls := 0
	err := newChatClient(t, srv).StreamAnswer(context.Background(), ask.Prompt{User: "q"}, func(s string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestEmbedder_Embed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],`+
			`"model":"embed-model","usage":{"prompt_tokens":1,"total_tokens":1}}`)
	}))
	defer srv.Close()

	e, err := NewEmbedder("test-key",
		WithEmbeddingBaseURL(srv.URL+"/v1/"),
		WithEmbeddingModel("embed-model"),
		WithEmbeddingDimension(3),
		WithEmbeddingExecutor(testExecutor()),
	)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "summary text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, 3, e.Dimension())
	assert.Equal(t, "embed-model", e.ModelName())

	assert.Equal(t, "embed-model", got["model"])
	assert.Equal(t, "summary text", got["input"])
	assert.InDelta(t, 3, got["dimensions"], 1e-9)
}

func TestToStatusError_PassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("dial tcp: refused")
	assert.Same(t, plain, toStatusError(plain))
}
