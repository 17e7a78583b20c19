package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.DoFunc(req)
}

func newServerConversation(t *testing.T, handler http.HandlerFunc) *Conversation {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := newTestConversation(t)
	require.NoError(t, c.SetBaseURL(server.URL))
	require.NoError(t, c.SetRetryConfig(0, 0))
	c.SetStreaming(false)
	return c
}

func replyWith(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

func TestComplete(t *testing.T) {
	c := newServerConversation(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, []Message{{Role: RoleUser, Content: "hi"}}, req.Messages)

		_, _ = w.Write([]byte(`{
			"model": "gpt-test",
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
		}`))
	})
	require.NoError(t, c.AppendUser("hi"))

	reply, err := c.Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hello", reply)
	assert.Equal(t, "hello", c.LastReply())
	assert.Equal(t, Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}, c.Usage())
	assert.Equal(t, ErrorState{HTTPStatus: http.StatusOK}, c.LastError())
	assert.Equal(t, 1, c.Count(), "reply must not be appended")
}

func TestCompleteBaseURLWithVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	c := newTestConversation(t)
	require.NoError(t, c.SetBaseURL(server.URL+"/v1/"))

	_, err := c.Complete(context.Background())
	require.NoError(t, err)
}

func TestCompletePartialUsage(t *testing.T) {
	c := newServerConversation(t, replyWith(`{"choices":[{"message":{"content":"x"}}],"usage":{"completion_tokens":5}}`))
	c.usage = Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}

	_, err := c.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Usage{PromptTokens: 1, CompletionTokens: 5, TotalTokens: 3}, c.Usage())
}

func TestCompleteIgnoresInvalidUsageCounters(t *testing.T) {
	c := newServerConversation(t, replyWith(`{
		"choices": [{"message": {"content": "x"}}],
		"usage": {"prompt_tokens": -4, "completion_tokens": 2.5, "total_tokens": "9"}
	}`))
	c.usage = Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}

	_, err := c.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}, c.Usage())
}

func TestCompleteAPIError(t *testing.T) {
	c := newServerConversation(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	})
	c.lastReply = "previous"

	reply, err := c.Complete(context.Background())
	require.Error(t, err)

	assert.Empty(t, reply)
	assert.Equal(t, ErrorState{Kind: API, Message: "rate limited", HTTPStatus: http.StatusTooManyRequests}, c.LastError())
	assert.Equal(t, "previous", c.LastReply())
}

func TestCompleteErrorObjectWithSuccessStatus(t *testing.T) {
	c := newServerConversation(t, replyWith(`{"error":{"type":"server"}}`))

	_, err := c.Complete(context.Background())
	assert.Equal(t, API, KindOf(err))
	assert.Equal(t, "API returned error", c.LastError().Message)
}

func TestCompleteNonJSONErrorStatus(t *testing.T) {
	c := newServerConversation(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := c.Complete(context.Background())
	assert.Equal(t, API, KindOf(err))
	assert.Equal(t, http.StatusBadGateway, c.LastError().HTTPStatus)
}

func TestCompleteParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"array", "[]"},
		{"no choices", `{"choices":[]}`},
		{"missing choices", `{"id":"x"}`},
		{"null content", `{"choices":[{"message":{"content":null}}]}`},
		{"no message", `{"choices":[{"finish_reason":"stop"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServerConversation(t, replyWith(tt.body))

			_, err := c.Complete(context.Background())
			assert.Equal(t, Parse, KindOf(err))
			assert.Equal(t, Parse, c.LastError().Kind)
		})
	}
}

func TestCompleteTransportErrorRetries(t *testing.T) {
	c := newTestConversation(t)
	var calls atomic.Int32
	c.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		},
	})
	require.NoError(t, c.SetRetryConfig(2, 0))

	_, err := c.Complete(context.Background())

	assert.Equal(t, Transport, KindOf(err))
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, c.LastError().Message, "connection refused")
}

func TestCompleteRetrySucceeds(t *testing.T) {
	c := newTestConversation(t)
	var calls atomic.Int32
	c.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("connection reset")
			}
			body, _ := io.ReadAll(req.Body)
			assert.True(t, bytes.Contains(body, []byte(`"model"`)), "retry sent empty body: %q", body)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"choices":[{"message":{"content":"second"}}]}`)),
			}, nil
		},
	})
	require.NoError(t, c.SetRetryConfig(1, 0))

	reply, err := c.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", reply)
}

func TestCompleteDoesNotRetryHTTPErrors(t *testing.T) {
	var calls atomic.Int32
	c := newServerConversation(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	require.NoError(t, c.SetRetryConfig(3, 0))

	_, err := c.Complete(context.Background())
	assert.Equal(t, API, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteClearsPreviousError(t *testing.T) {
	c := newServerConversation(t, replyWith(`{"choices":[{"message":{"content":"ok"}}]}`))
	c.lastErr = ErrorState{Kind: Parse, Message: "old"}

	_, err := c.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OK, c.LastError().Kind)
	assert.Empty(t, c.LastError().Message)
}

func TestAskLeavesHistory(t *testing.T) {
	c := newServerConversation(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, []Message{{Role: RoleUser, Content: "one-shot"}}, req.Messages)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"answer"}}]}`))
	})
	require.NoError(t, c.AppendUser("kept"))

	reply, err := c.Ask(context.Background(), "one-shot")
	require.NoError(t, err)

	assert.Equal(t, "answer", reply)
	assert.Equal(t, 1, c.Count())
	assert.Empty(t, c.LastReply())
}

func TestSendBuffered(t *testing.T) {
	c := newServerConversation(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.False(t, req.Stream, "expected buffered request")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"buffered"}}]}`))
	})

	reply, err := c.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "buffered", reply)
}
