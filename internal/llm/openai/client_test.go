package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Danni-Agent/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestCompleteSuccess(t *testing.T) {
	var (
		authorization string
		body          chatRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		defer r.Body.Close()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  market report  "}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	client.httpClient = srv.Client()

	out, err := client.Complete(context.Background(), llm.Request{SystemPrompt: "sys", UserMessage: "brief", MaxTokens: 512})
	require.NoError(t, err)

	assert.Equal(t, "market report", out)
	assert.Equal(t, "Bearer test", authorization)
	assert.Equal(t, defaultModelName, body.Model)
	assert.Equal(t, 512, body.MaxTokens)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "sys"}, body.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "brief"}, body.Messages[1])
}

func TestCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	client.httpClient = srv.Client()

	_, err = client.Complete(context.Background(), llm.Request{UserMessage: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestCompleteEmptyChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": " "}}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.Request{})
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}
