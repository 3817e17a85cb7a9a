// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
)

// =============================================================================
// PROVIDERS
// =============================================================================

// Provider identifies one chat backend. The set is closed and compiled-in.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// AllProviders returns every known provider in stable order.
func AllProviders() []Provider {
	return []Provider{ProviderOllama, ProviderOpenAI, ProviderGemini, ProviderAnthropic}
}

// String returns the provider identifier.
func (p Provider) String() string {
	return string(p)
}

// DisplayName returns the user-facing provider label.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderOllama:
		return "Ollama"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderGemini:
		return "Gemini"
	case ProviderAnthropic:
		return "Anthropic"
	default:
		return string(p)
	}
}

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOllama, ProviderOpenAI, ProviderGemini, ProviderAnthropic:
		return true
	}
	return false
}

// =============================================================================
// MESSAGES
// =============================================================================

// Message roles. Some vendors rename "assistant" on the wire (Gemini uses
// "model"); that mapping is the backend's job, these values are canonical.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessagePayload is one turn of conversation history in normalized
// form. It is built fresh per request and never persisted.
type ChatMessagePayload struct {
	Role    string
	Content string
}

// NewUserPayload creates a user-role payload.
func NewUserPayload(content string) ChatMessagePayload {
	return ChatMessagePayload{Role: RoleUser, Content: content}
}

// NewSystemPayload creates a system-role payload.
func NewSystemPayload(content string) ChatMessagePayload {
	return ChatMessagePayload{Role: RoleSystem, Content: content}
}

// NewAssistantPayload creates an assistant-role payload.
func NewAssistantPayload(content string) ChatMessagePayload {
	return ChatMessagePayload{Role: RoleAssistant, Content: content}
}

// =============================================================================
// REQUESTS
// =============================================================================

// GenerationOptions carries per-request sampling overrides. Nil fields
// defer to the provider's defaults.
type GenerationOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// ChatRequest is the normalized input to StreamChat and SingleCompletion.
type ChatRequest struct {
	Model    string
	Messages []ChatMessagePayload
	Options  GenerationOptions
}

// StreamCallback receives one decoded text fragment per invocation,
// strictly in wire arrival order.
type StreamCallback func(fragment string)

// =============================================================================
// SERVICE CONTRACT
// =============================================================================

// Service is the uniform capability contract implemented once per backend.
//
// StreamChat blocks until the stream terminates. Cancellation is per call
// through ctx; a context cancelled mid-stream is reported as ctx.Err(), and
// callers treat a deliberate cancellation as normal termination, not a
// failure. CancelActiveStream cancels the most recent stream this service
// started. It is idempotent and safe to call when nothing is in flight.
type Service interface {
	// Provider returns the backend's identity.
	Provider() Provider

	// ListModels fetches the model names this backend currently offers.
	ListModels(ctx context.Context) ([]string, error)

	// StreamChat opens a streaming completion and invokes fn for every
	// decoded fragment until the vendor signals end of stream.
	StreamChat(ctx context.Context, req ChatRequest, fn StreamCallback) error

	// SingleCompletion performs a non-streaming completion and returns the
	// full response text. Used for title generation.
	SingleCompletion(ctx context.Context, req ChatRequest) (string, error)

	// CancelActiveStream cancels the stream most recently started by this
	// service, if any.
	CancelActiveStream()
}
