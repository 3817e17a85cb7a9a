// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Robdel12/DraftPatch/internal/llm"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Gemini client.
type ClientConfig struct {
	// BaseURL is the API base URL (default: https://generativelanguage.googleapis.com)
	BaseURL string

	// APIKey authenticates requests; it travels as a query parameter, not
	// a header. When empty, KeyFunc is consulted per request.
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
		BaseURL: "https://generativelanguage.googleapis.com",
		Timeout: llm.DefaultTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client speaks the Gemini generateContent API. Two wire quirks live
// here: the assistant role is called "model", and turns with empty
// content must be filtered out or the API rejects the request.
//
// The Client is safe for concurrent use.
type Client struct {
	config    *ClientConfig
	canceller llm.Canceller
}

// NewClient creates a new Gemini client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Gemini client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if config.Timeout == 0 {
		config.Timeout = llm.DefaultTimeout
	}
	return &Client{config: config}
}

// Provider implements llm.Service.
func (c *Client) Provider() llm.Provider {
	return llm.ProviderGemini
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
	return "", &llm.AuthError{Provider: llm.ProviderGemini, Cause: llm.ErrMissingCredential}
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves available model names with the "models/" resource
// prefix stripped.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	reqURL := c.config.BaseURL + "/v1beta/models?key=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderGemini, Cause: err}
	}

	resp, err := llm.SharedHTTPClient.Do(req)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderGemini, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}

	body, err := llm.ReadLimitedBody(resp.Body)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderGemini, Cause: err}
	}

	var list ListModelsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &llm.ParseError{Provider: llm.ProviderGemini, Detail: "model list", Cause: err}
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
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

	resp, err := c.openGenerate(sctx, req, true, llm.SharedStreamingClient)
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
				// Gemini has no explicit terminator; connection close ends
				// the stream normally.
				return nil
			}
			return &llm.NetworkError{Provider: llm.ProviderGemini, Cause: err}
		}

		var chunk GenerateResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks
			continue
		}

		if text := chunk.Text(); text != "" {
			fn(text)
		}
	}
}

// SingleCompletion implements llm.Service.
func (c *Client) SingleCompletion(ctx context.Context, req llm.ChatRequest) (string, error) {
	resp, err := c.openGenerate(ctx, req, false, llm.SharedHTTPClient)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := llm.ReadLimitedBody(resp.Body)
	if err != nil {
		return "", &llm.NetworkError{Provider: llm.ProviderGemini, Cause: err}
	}

	var out GenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &llm.ParseError{Provider: llm.ProviderGemini, Detail: "generate response", Cause: err}
	}
	return out.Text(), nil
}

// CancelActiveStream implements llm.Service.
func (c *Client) CancelActiveStream() {
	c.canceller.CancelActive()
}

// openGenerate issues the generateContent request and returns the open
// response after status checking.
func (c *Client) openGenerate(ctx context.Context, req llm.ChatRequest, stream bool, client *http.Client) (*http.Response, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	wire := GenerateRequest{}
	for _, m := range req.Messages {
		// Empty turns are rejected by the API
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case llm.RoleSystem:
			wire.SystemInstruction = &Content{Parts: []Part{{Text: m.Content}}}
		case llm.RoleAssistant:
			wire.Contents = append(wire.Contents, Content{Role: "model", Parts: []Part{{Text: m.Content}}})
		default:
			wire.Contents = append(wire.Contents, Content{Role: "user", Parts: []Part{{Text: m.Content}}})
		}
	}
	if o := req.Options; o.Temperature != nil || o.TopP != nil || o.MaxTokens != nil {
		wire.GenerationConfig = &GenerationConfig{
			Temperature:     o.Temperature,
			TopP:            o.TopP,
			MaxOutputTokens: o.MaxTokens,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &llm.ParseError{Provider: llm.ProviderGemini, Detail: "generate request", Cause: err}
	}

	method := ":generateContent"
	query := "?key=" + url.QueryEscape(key)
	if stream {
		method = ":streamGenerateContent"
		query = "?alt=sse&key=" + url.QueryEscape(key)
	}
	reqURL := c.config.BaseURL + "/v1beta/models/" + url.PathEscape(req.Model) + method + query

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderGemini, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &llm.NetworkError{Provider: llm.ProviderGemini, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp.StatusCode, llm.DrainErrorBody(resp.Body))
	}
	return resp, nil
}

// errorFromResponse decodes Google's error envelope, falling back to a
// generic network error carrying the raw body.
func (c *Client) errorFromResponse(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &llm.AuthError{Provider: llm.ProviderGemini, Cause: llm.ErrInvalidCredential}
	}

	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		code := envelope.Error.Status
		if code == "" {
			code = strconv.Itoa(envelope.Error.Code)
		}
		return &llm.ProviderError{Provider: llm.ProviderGemini, Code: code, Message: envelope.Error.Message}
	}
	return &llm.NetworkError{Provider: llm.ProviderGemini, Status: status, Body: string(body)}
}
