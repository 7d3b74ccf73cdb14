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

func TestOpenAIClientGeneratesFromChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)

		resp := openAIChatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message openAIChatMessage `json:"message"`
		}{Message: openAIChatMessage{Role: "assistant", Content: "the answer"}})
		resp.Usage.TotalTokens = 42

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "question"}},
		Model:    "gpt-4o-mini",
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, 42, resp.TokensUsed)
}

func TestOpenAIClientRetriesOn429ThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := openAIChatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message openAIChatMessage `json:"message"`
		}{Message: openAIChatMessage{Content: "ok"}})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), Request{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, calls)
}

func TestOpenAIClientFailsImmediatelyOnNonRetryableError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(openAIChatErrorResponse{})
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	require.Error(t, err)
}
