// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Robdel12/DraftPatch/internal/llm"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the OpenAI client.
type ClientConfig struct {
	// BaseURL is the API base URL (default: https://api.openai.com)
	BaseURL string

	// APIKey authenticates requests. When empty, KeyFunc is consulted per
	// request so credentials added at runtime take effect without a
	// restart.
	APIKey string

	// KeyFunc lazily resolves the API key, returning "" when none is
	// stored.
	KeyFunc func() string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "https://api.openai.com",
		Timeout: llm.DefaultTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client speaks the OpenAI chat completions API: SSE streaming terminated
// by a literal [DONE] marker, Bearer authentication, model listing via
// GET /v1/models.
//
// The Client is safe for concurrent use.
type Client struct {
	config    *ClientConfig
	canceller llm.Canceller
}

// NewClient creates a new OpenAI client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new OpenAI client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com"
	}
	if config.Timeout == 0 {
		config.Timeout = llm.DefaultTimeout
	}
	return &Client{config: config}
}

// Provider implements llm.Service.
func (c *Client) Provider() llm.Provider {
	return llm.ProviderOpenAI
}

// apiKey resolves the credential, failing with an AuthError when none is
// available. A provider without a stored key is "unauthenticated", and
// that only surfaces on first use.
func (c *Client) apiKey() (string, error) {
	if c.config.APIKey != "" {
		return c.config.APIKey, nil
	}
	if c.config.KeyFunc != nil {
		if key := c.config.KeyFunc(); key != "" {
			return key, nil
		}
	}
	return "", &llm.AuthError{Provider: llm.ProviderOpenAI, Cause: llm.ErrMissingCredential}
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves available model identifiers.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOpenAI, Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := llm.SharedHTTPClient.Do(req)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOpenAI, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}

	body, err := llm.ReadLimitedBody(resp.Body)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOpenAI, Cause: err}
	}

	var list ListModelsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &llm.ParseError{Provider: llm.ProviderOpenAI, Detail: "model list", Cause: err}
	}

	names := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// =============================================================================
// CHAT
// =============================================================================

// StreamChat implements llm.Service.
func (c *Client) StreamChat(ctx context.Context, req llm.ChatRequest, fn llm.StreamCallback) error {
	sctx, release := c.canceller.Track(ctx)
	defer release()

	resp, err := c.openChat(sctx, req, true, llm.SharedStreamingClient)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := llm.NewSSEReader(resp.Body)
	for {
		select {
		case <-sctx.Done():
			return sctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &llm.NetworkError{Provider: llm.ProviderOpenAI, Cause: err}
		}

		if bytes.Equal(data, llm.DoneMarker) {
			return nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks
			continue
		}

		if content := chunk.Content(); content != "" {
			fn(content)
		}
		if chunk.IsDone() {
			return nil
		}
	}
}

// SingleCompletion implements llm.Service.
func (c *Client) SingleCompletion(ctx context.Context, req llm.ChatRequest) (string, error) {
	resp, err := c.openChat(ctx, req, false, llm.SharedHTTPClient)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := llm.ReadLimitedBody(resp.Body)
	if err != nil {
		return "", &llm.NetworkError{Provider: llm.ProviderOpenAI, Cause: err}
	}

	var chat ChatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", &llm.ParseError{Provider: llm.ProviderOpenAI, Detail: "chat response", Cause: err}
	}
	if len(chat.Choices) == 0 {
		return "", &llm.ParseError{Provider: llm.ProviderOpenAI, Detail: "empty choices"}
	}
	return chat.Choices[0].Message.Content, nil
}

// CancelActiveStream implements llm.Service.
func (c *Client) CancelActiveStream() {
	c.canceller.CancelActive()
}

// openChat issues POST /v1/chat/completions and returns the open response
// after status checking.
func (c *Client) openChat(ctx context.Context, req llm.ChatRequest, stream bool, client *http.Client) (*http.Response, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	wire := ChatRequest{
		Model:       req.Model,
		Messages:    make([]Message, 0, len(req.Messages)),
		Stream:      stream,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		MaxTokens:   req.Options.MaxTokens,
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, Message{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &llm.ParseError{Provider: llm.ProviderOpenAI, Detail: "chat request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOpenAI, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOpenAI, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}
	return resp, nil
}

// errorFromResponse decodes OpenAI's error envelope, falling back to a
// generic network error carrying the raw body.
func (c *Client) errorFromResponse(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &llm.AuthError{Provider: llm.ProviderOpenAI, Cause: llm.ErrInvalidCredential}
	}

	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		code := envelope.Error.Type
		if envelope.Error.Code != nil {
			code = fmt.Sprintf("%v", envelope.Error.Code)
		}
		return &llm.ProviderError{Provider: llm.ProviderOpenAI, Code: code, Message: envelope.Error.Message}
	}
	return &llm.NetworkError{Provider: llm.ProviderOpenAI, Status: status, Body: string(body)}
}
