// Package remote is the HTTP client for the optional reply generator.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/procurevoice/internal/intent"
)

// ClientConfig configures the generator client.
type ClientConfig struct {
	URL     string        // e.g. "http://localhost:8090/generate"
	Timeout time.Duration // HTTP request timeout
	APIKey  string        // sent as a bearer token when set
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		URL:     "http://localhost:8090/generate",
		Timeout: 10 * time.Second,
	}
}

// Client posts generation requests to a remote service.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ intent.Generator = (*Client)(nil)

// NewClient creates a generator client.
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "generator-client").Logger(),
	}
}

// Generate implements intent.Generator.
func (c *Client) Generate(ctx context.Context, req intent.GenerateRequest) (intent.GenerateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return intent.GenerateResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return intent.GenerateResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return intent.GenerateResponse{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return intent.GenerateResponse{}, fmt.Errorf("generate request failed: %d - %s", resp.StatusCode, string(msg))
	}

	var out intent.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return intent.GenerateResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug().
		Str("messageType", req.MessageType).
		Bool("success", out.Success).
		Dur("latency", time.Since(start)).
		Msg("Generation completed")

	return out, nil
}
