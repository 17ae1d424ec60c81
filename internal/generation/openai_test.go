package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProviderServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(Config{
		APIKey:      "sk-test",
		BaseURL:     srv.URL + "/v1",
		MaxTokens:   300,
		Temperature: 0.8,
	})
}

func TestOpenAIProvider_CompleteText(t *testing.T) {
	var got map[string]any
	provider := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Happy happy!"}, "finish_reason": "stop"}]
		}`))
	})

	text, err := provider.CompleteText(context.Background(), "system prompt", "user prompt")

	require.NoError(t, err)
	assert.Equal(t, "Happy happy!", text)
	assert.Equal(t, "gpt-4", got["model"])
	assert.EqualValues(t, 300, got["max_tokens"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user prompt", messages[1].(map[string]any)["content"])
}

func TestOpenAIProvider_GenerateImage(t *testing.T) {
	var got map[string]any
	provider := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created": 1, "data": [{"url": "https://images.example/card.png"}]}`))
	})

	url, err := provider.GenerateImage(context.Background(), "a card")

	require.NoError(t, err)
	assert.Equal(t, "https://images.example/card.png", url)
	assert.Equal(t, "dall-e-3", got["model"])
	assert.Equal(t, "1024x1024", got["size"])
	assert.EqualValues(t, 1, got["n"])
}

func TestOpenAIProvider_ErrorStatusDegradesThroughClient(t *testing.T) {
	provider := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	})
	client := NewClient(provider)

	text := client.GenerateText(context.Background(), "Birthday", DefaultStyle, DefaultTone, "for my sister")
	image := client.GenerateImage(context.Background(), "Birthday", DefaultStyle, "for my sister")

	assert.True(t, text.Degraded())
	assert.Equal(t, "Happy Birthday! for my sister", text.Text)
	assert.True(t, image.Degraded())
	assert.Empty(t, image.URL)
}
