package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEndpointConversation(t *testing.T, handler http.HandlerFunc) *Conversation {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := newTestConversation(t)
	require.NoError(t, c.SetBaseURL(server.URL))
	return c
}

func modelsHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"id":"gpt-4o-mini","object":"model","created":1,"owned_by":"openai"},
			{"id":"gpt-4o","object":"model","created":2,"owned_by":"openai"}
		]}`))
	}
}

func TestListModels(t *testing.T) {
	c := newEndpointConversation(t, modelsHandler(t))

	ids, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, ids)
}

func TestModelAvailable(t *testing.T) {
	c := newEndpointConversation(t, modelsHandler(t))

	ok, err := c.ModelAvailable(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ModelAvailable(context.Background(), "gpt-4")
	require.NoError(t, err)
	assert.False(t, ok, "substring of another id must not match")

	_, err = c.ModelAvailable(context.Background(), "")
	assert.Equal(t, InvalidArgument, KindOf(err))
}

func TestListModelsAPIError(t *testing.T) {
	c := newEndpointConversation(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := c.ListModels(context.Background())
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, API, e.Kind)
	assert.Equal(t, http.StatusUnauthorized, e.HTTPStatus)
}

func TestGenerateImage(t *testing.T) {
	c := newEndpointConversation(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a sunset", req["prompt"])
		assert.Equal(t, "512x512", req["size"])
		assert.Equal(t, 1.0, req["n"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://img.example/1.png"}]}`))
	})

	url, err := c.GenerateImage(context.Background(), "a sunset", ImageSize512)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/1.png", url)
}

func TestGenerateImageValidation(t *testing.T) {
	c := newTestConversation(t)

	_, err := c.GenerateImage(context.Background(), "", "")
	assert.Equal(t, InvalidArgument, KindOf(err))

	_, err = c.GenerateImage(context.Background(), "x", "640x480")
	assert.Equal(t, InvalidArgument, KindOf(err))
}

func TestGenerateImageNoURL(t *testing.T) {
	c := newEndpointConversation(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[]}`))
	})

	_, err := c.GenerateImage(context.Background(), "x", "")
	assert.Equal(t, Parse, KindOf(err))
}
