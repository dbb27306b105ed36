package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/procurevoice/internal/intent"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.NotEmpty(t, cfg.URL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req intent.GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "auto_reply", req.MessageType)
		assert.Equal(t, "Message: hi", req.Prompt)

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "text": "Dear buyer"})
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{URL: server.URL, Timeout: time.Second, APIKey: "secret"}, zerolog.Nop())
	resp, err := client.Generate(context.Background(), intent.GenerateRequest{MessageType: "auto_reply", Prompt: "Message: hi"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Dear buyer", resp.Text)
}

func TestClient_Generate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{URL: server.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := client.Generate(context.Background(), intent.GenerateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_Generate_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{URL: server.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := client.Generate(context.Background(), intent.GenerateRequest{})
	assert.Error(t, err)
}

func TestClient_Generate_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{URL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, intent.GenerateRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_FallsBackThroughResolver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{URL: server.URL, Timeout: time.Second}, zerolog.Nop())
	resolver := intent.New(intent.Config{
		Generator:           client,
		GeneratorTimeout:    time.Second,
		GeneratorCategories: []intent.Category{intent.CategoryAutoReply},
	}, zerolog.Nop())

	res, err := resolver.Resolve(context.Background(), intent.Request{Text: "draft a reply"})
	require.NoError(t, err)
	assert.Equal(t, intent.SourceFallback, res.Source)
	assert.NotContains(t, res.Text, "500")
}
