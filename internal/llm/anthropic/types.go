// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anthropic provides the HTTP client for Anthropic's Messages API.
package anthropic

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is one conversation turn in Anthropic's wire format. System
// content does not appear here; it travels in the request's System field.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Thinking enables extended thinking on models that support it.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// MessagesRequest is the request body for POST /v1/messages.
type MessagesRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Thinking    *Thinking `json:"thinking,omitempty"`
}

// StreamEvent is one decoded SSE data payload. Only content_block_delta
// events carry text; everything else is bookkeeping.
type StreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// MessagesResponse is the body of a non-streaming call.
type MessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Text concatenates the text blocks of a response.
func (r *MessagesResponse) Text() string {
	var out string
	for _, block := range r.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

// ListModelsResponse is the body of GET /v1/models.
type ListModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// apiError is Anthropic's error envelope.
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
