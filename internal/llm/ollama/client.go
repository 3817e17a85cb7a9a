// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/Robdel12/DraftPatch/internal/llm"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6
	// resolution issues on Windows
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://127.0.0.1:11434",
		Timeout: llm.DefaultTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client speaks the Ollama HTTP API: newline-delimited JSON streaming over
// POST /api/chat, model listing via GET /api/tags, plus pull and delete
// for local model management.
//
// The Client is safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	canceller    llm.Canceller
	logger       *log.Logger
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = llm.DefaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		// Streaming lifetime is controlled via context, not a client timeout
		streamClient: &http.Client{},
		logger:       log.Default(),
	}
}

// WithLogger sets the logger used for skipped-line diagnostics.
func (c *Client) WithLogger(l *log.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// Provider implements llm.Service.
func (c *Client) Provider() llm.Provider {
	return llm.ProviderOllama
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves the names of all installed models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}

	body, err := llm.ReadLimitedBody(resp.Body)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}

	var list ListModelsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &llm.ParseError{Provider: llm.ProviderOllama, Detail: "model list", Cause: err}
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// PullModel downloads a model, reporting progress line by line. The
// progress callback may be nil.
func (c *Client) PullModel(ctx context.Context, name string, progress func(PullProgress)) error {
	body, err := json.Marshal(map[string]any{"name": name, "stream": true})
	if err != nil {
		return &llm.ParseError{Provider: llm.ProviderOllama, Detail: "pull request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}

	decoder := json.NewDecoder(resp.Body)
	for decoder.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var p PullProgress
		if err := decoder.Decode(&p); err != nil {
			// Malformed progress lines are not fatal to the pull
			break
		}
		if progress != nil {
			progress(p)
		}
	}
	return nil
}

// DeleteModel removes an installed model.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return &llm.ParseError{Provider: llm.ProviderOllama, Detail: "delete request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.BaseURL+"/api/delete", bytes.NewReader(body))
	if err != nil {
		return &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}
	return nil
}

// =============================================================================
// CHAT
// =============================================================================

// StreamChat implements llm.Service. Fragments are emitted in wire order;
// malformed lines are skipped.
func (c *Client) StreamChat(ctx context.Context, req llm.ChatRequest, fn llm.StreamCallback) error {
	sctx, release := c.canceller.Track(ctx)
	defer release()

	resp, err := c.openChat(sctx, req, true, c.streamClient)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := NewStreamReader(resp.Body)
	return reader.Process(sctx, func(chunk StreamChunk) {
		if chunk.Content != "" {
			fn(chunk.Content)
		}
	})
}

// SingleCompletion implements llm.Service.
func (c *Client) SingleCompletion(ctx context.Context, req llm.ChatRequest) (string, error) {
	resp, err := c.openChat(ctx, req, false, c.httpClient)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := llm.ReadLimitedBody(resp.Body)
	if err != nil {
		return "", &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}

	var chat ChatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", &llm.ParseError{Provider: llm.ProviderOllama, Detail: "chat response", Cause: err}
	}
	return chat.Message.Content, nil
}

// CancelActiveStream implements llm.Service.
func (c *Client) CancelActiveStream() {
	c.canceller.CancelActive()
}

// openChat issues the POST /api/chat request and returns the open response
// after status checking.
func (c *Client) openChat(ctx context.Context, req llm.ChatRequest, stream bool, client *http.Client) (*http.Response, error) {
	wire := ChatRequest{
		Model:    req.Model,
		Messages: make([]Message, 0, len(req.Messages)),
		Stream:   stream,
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, Message{Role: m.Role, Content: m.Content})
	}
	if o := req.Options; o.Temperature != nil || o.TopP != nil || o.MaxTokens != nil {
		wire.Options = &Options{
			Temperature: o.Temperature,
			TopP:        o.TopP,
			NumPredict:  o.MaxTokens,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &llm.ParseError{Provider: llm.ProviderOllama, Detail: "chat request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderOllama, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}
	return resp, nil
}

// errorFromResponse decodes Ollama's error envelope, falling back to a
// generic network error carrying the raw body.
func (c *Client) errorFromResponse(status int, body []byte) error {
	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return &llm.ProviderError{Provider: llm.ProviderOllama, Message: envelope.Error}
	}
	return &llm.NetworkError{Provider: llm.ProviderOllama, Status: status, Body: string(body)}
}
