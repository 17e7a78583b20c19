package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// maxResponseSize bounds buffered response bodies.
const maxResponseSize = 10 * 1024 * 1024

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
	Error json.RawMessage `json:"error"`
}

// Complete sends the conversation and returns the reply. On success the reply
// is also kept as LastReply and the usage counters are updated. The reply is
// not appended to the history.
func (c *Conversation) Complete(ctx context.Context) (string, error) {
	c.ClearError()
	body, buildErr := c.requestBody(false)
	if buildErr != nil {
		return "", c.setError(buildErr)
	}

	httpResp, sendErr := c.send(ctx, body, false)
	if sendErr != nil {
		return "", c.setError(sendErr)
	}
	defer httpResp.Body.Close()
	status := httpResp.StatusCode

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", c.setError(&Error{Kind: Transport, Message: "read response: " + err.Error(), HTTPStatus: status, Err: err})
	}
	Logger().Debug("chat completion response",
		zap.String("conversation_id", c.id),
		zap.Int("status", status),
		zap.Int("bytes", len(data)),
	)

	var resp chatResponse
	decodeErr := json.Unmarshal(data, &resp)
	if !isSuccess(status) {
		return "", c.setError(statusError(status, resp.Error, decodeErr))
	}
	if decodeErr != nil {
		return "", c.setError(&Error{Kind: Parse, Message: "decode response: " + decodeErr.Error(), HTTPStatus: status, Err: decodeErr})
	}
	if present(resp.Error) {
		return "", c.setError(&Error{Kind: API, Message: apiErrorMessage(resp.Error), HTTPStatus: status})
	}
	if len(resp.Choices) == 0 {
		return "", c.setError(&Error{Kind: Parse, Message: "no choices in response", HTTPStatus: status})
	}
	content := resp.Choices[0].Message.Content
	if content == nil {
		return "", c.setError(&Error{Kind: Parse, Message: "no content in response message", HTTPStatus: status})
	}

	c.lastReply = *content
	c.lastErr.HTTPStatus = status
	if present(resp.Usage) {
		c.applyUsage(resp.Usage)
	}
	return *content, nil
}

// Send completes with CompleteStream when streaming is enabled and with
// Complete otherwise. handle is only used in streaming mode.
func (c *Conversation) Send(ctx context.Context, handle StreamHandler) (string, error) {
	if c.streaming {
		return c.CompleteStream(ctx, handle)
	}
	return c.Complete(ctx)
}

// Ask sends prompt as a single user message using c's settings and credential.
// c's history, reply and error state are left untouched.
func (c *Conversation) Ask(ctx context.Context, prompt string) (string, error) {
	tmp := &Conversation{id: c.id, credential: c.credential, httpClient: c.httpClient}
	if err := CopySettings(tmp, c); err != nil {
		return "", err
	}
	if err := tmp.AppendUser(prompt); err != nil {
		return "", err
	}
	return tmp.Complete(ctx)
}

// Query is a one-shot completion with default settings.
func Query(ctx context.Context, credential, prompt string) (string, error) {
	c, err := New(credential, "")
	if err != nil {
		return "", err
	}
	return c.Ask(ctx, prompt)
}

// applyUsage copies every counter present in raw as a non-negative whole
// number. Missing or malformed counters keep their previous value.
func (c *Conversation) applyUsage(raw json.RawMessage) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}
	set := func(key string, dst *int) {
		v, ok := fields[key].(float64)
		if !ok || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
			return
		}
		*dst = int(v)
	}
	set("prompt_tokens", &c.usage.PromptTokens)
	set("completion_tokens", &c.usage.CompletionTokens)
	set("total_tokens", &c.usage.TotalTokens)
}

// send posts body to the chat endpoint. Failures to get any response are
// retried according to the retry config; once a response arrives it is
// returned whatever its status.
func (c *Conversation) send(ctx context.Context, body []byte, stream bool) (*http.Response, *Error) {
	endpoint := buildChatEndpoint(c.baseURL)
	Logger().Debug("chat completion request",
		zap.String("conversation_id", c.id),
		zap.String("model", c.model),
		zap.Int("messages", len(c.messages)),
		zap.Bool("stream", stream),
	)

	attempt := func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.credential)
		if stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}
		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return httpResp, nil
	}

	httpResp, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.maxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			Logger().Warn("retrying chat completion request",
				zap.String("conversation_id", c.id),
				zap.Duration("delay", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		kind := Transport
		if stream {
			kind = Stream
		}
		return nil, wrapError(kind, err, "chat completion request")
	}
	return httpResp, nil
}

func buildChatEndpoint(baseURL string) string {
	return apiRoot(baseURL) + "/chat/completions"
}

// apiRoot returns the versioned API prefix for baseURL, accepting URLs with
// or without a trailing /v1.
func apiRoot(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// present reports whether a raw JSON field was sent with a non-null value.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// apiErrorMessage extracts error.message, falling back to a generic text.
func apiErrorMessage(raw json.RawMessage) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil && text != "" {
		return text
	}
	return "API returned error"
}

// statusError describes a non-2xx response.
func statusError(status int, errField json.RawMessage, decodeErr error) *Error {
	if decodeErr == nil && present(errField) {
		return &Error{Kind: API, Message: apiErrorMessage(errField), HTTPStatus: status}
	}
	return &Error{
		Kind:       API,
		Message:    fmt.Sprintf("request failed with status %d", status),
		HTTPStatus: status,
		Err:        errors.New(http.StatusText(status)),
	}
}
