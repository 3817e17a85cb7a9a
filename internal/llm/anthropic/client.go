// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Robdel12/DraftPatch/internal/llm"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	apiVersion = "2023-06-01"

	// Token ceilings when the model carries no override. Titles only need
	// a handful of tokens, full replies get headroom.
	streamMaxTokens = 4096
	singleMaxTokens = 256

	thinkingBudgetTokens = 1024
)

// defaultExcludedModels hides deprecated models from discovery. This is
// policy data, not a contract; override it via ClientConfig.
var defaultExcludedModels = []string{
	"claude-2.0",
	"claude-2.1",
	"claude-3-sonnet-20240229",
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Anthropic client.
type ClientConfig struct {
	// BaseURL is the API base URL (default: https://api.anthropic.com)
	BaseURL string

	// APIKey authenticates requests via the x-api-key header. When empty,
	// KeyFunc is consulted per request.
	APIKey string

	// KeyFunc lazily resolves the API key, returning "" when none is
	// stored.
	KeyFunc func() string

	// ExcludedModels are hidden from ListModels results. Nil means the
	// default exclusions; an empty slice disables filtering.
	ExcludedModels []string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "https://api.anthropic.com",
		Timeout: llm.DefaultTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client speaks Anthropic's Messages API: event-tagged SSE terminated by a
// message_stop event, x-api-key authentication, and a mandatory max_tokens
// on every request.
//
// The Client is safe for concurrent use.
type Client struct {
	config    *ClientConfig
	excluded  map[string]bool
	canceller llm.Canceller
}

// NewClient creates a new Anthropic client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Anthropic client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.Timeout == 0 {
		config.Timeout = llm.DefaultTimeout
	}

	excludedList := config.ExcludedModels
	if excludedList == nil {
		excludedList = defaultExcludedModels
	}
	excluded := make(map[string]bool, len(excludedList))
	for _, name := range excludedList {
		excluded[name] = true
	}

	return &Client{config: config, excluded: excluded}
}

// Provider implements llm.Service.
func (c *Client) Provider() llm.Provider {
	return llm.ProviderAnthropic
}

func (c *Client) apiKey() (string, error) {
	if c.config.APIKey != "" {
		return c.config.APIKey, nil
	}
	if c.config.KeyFunc != nil {
		if key := c.config.KeyFunc(); key != "" {
			return key, nil
		}
	}
	return "", &llm.AuthError{Provider: llm.ProviderAnthropic, Cause: llm.ErrMissingCredential}
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves available model identifiers, applying the
// deprecation exclude list.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderAnthropic, Cause: err}
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := llm.SharedHTTPClient.Do(req)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderAnthropic, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}

	body, err := llm.ReadLimitedBody(resp.Body)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderAnthropic, Cause: err}
	}

	var list ListModelsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &llm.ParseError{Provider: llm.ProviderAnthropic, Detail: "model list", Cause: err}
	}

	names := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if c.excluded[m.ID] {
			continue
		}
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

	resp, err := c.openMessages(sctx, req, true, llm.SharedStreamingClient)
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

		eventType, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &llm.NetworkError{Provider: llm.ProviderAnthropic, Cause: err}
		}

		if eventType == "message_stop" {
			return nil
		}

		var event StreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// Skip malformed events
			continue
		}
		if event.Type == "message_stop" {
			return nil
		}
		if event.Type == "content_block_delta" && event.Delta.Text != "" {
			fn(event.Delta.Text)
		}
	}
}

// SingleCompletion implements llm.Service.
func (c *Client) SingleCompletion(ctx context.Context, req llm.ChatRequest) (string, error) {
	resp, err := c.openMessages(ctx, req, false, llm.SharedHTTPClient)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := llm.ReadLimitedBody(resp.Body)
	if err != nil {
		return "", &llm.NetworkError{Provider: llm.ProviderAnthropic, Cause: err}
	}

	var out MessagesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &llm.ParseError{Provider: llm.ProviderAnthropic, Detail: "messages response", Cause: err}
	}
	return out.Text(), nil
}

// CancelActiveStream implements llm.Service.
func (c *Client) CancelActiveStream() {
	c.canceller.CancelActive()
}

// openMessages issues POST /v1/messages and returns the open response
// after status checking.
func (c *Client) openMessages(ctx context.Context, req llm.ChatRequest, stream bool, client *http.Client) (*http.Response, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	maxTokens := singleMaxTokens
	if stream {
		maxTokens = streamMaxTokens
	}
	if req.Options.MaxTokens != nil {
		maxTokens = *req.Options.MaxTokens
	}

	wire := MessagesRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Stream:      stream,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			wire.System = m.Content
			continue
		}
		wire.Messages = append(wire.Messages, Message{Role: m.Role, Content: m.Content})
	}
	if strings.Contains(req.Model, "claude-3-7") {
		wire.Thinking = &Thinking{Type: "enabled", BudgetTokens: thinkingBudgetTokens}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &llm.ParseError{Provider: llm.ProviderAnthropic, Detail: "messages request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderAnthropic, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", apiVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderAnthropic, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}
	return resp, nil
}

// errorFromResponse decodes Anthropic's error envelope, falling back to a
// generic network error carrying the raw body.
func (c *Client) errorFromResponse(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &llm.AuthError{Provider: llm.ProviderAnthropic, Cause: llm.ErrInvalidCredential}
	}

	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &llm.ProviderError{Provider: llm.ProviderAnthropic, Code: envelope.Error.Type, Message: envelope.Error.Message}
	}
	return &llm.NetworkError{Provider: llm.ProviderAnthropic, Status: status, Body: string(body)}
}
