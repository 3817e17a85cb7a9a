// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini provides the HTTP client for Google's Gemini API.
package gemini

// =============================================================================
// WIRE TYPES
// =============================================================================

// Part is one piece of content inside a turn.
type Part struct {
	Text string `json:"text"`
}

// Content is one conversation turn in Gemini's wire format. Gemini names
// the assistant role "model"; the client maps it on the way out.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig carries sampling parameters.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// GenerateRequest is the request body for :generateContent and
// :streamGenerateContent.
type GenerateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerateResponse is one SSE data payload, and the whole body of a
// non-streaming call.
type GenerateResponse struct {
	Candidates []struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Text returns the first candidate's first part text.
func (r *GenerateResponse) Text() string {
	if len(r.Candidates) > 0 && len(r.Candidates[0].Content.Parts) > 0 {
		return r.Candidates[0].Content.Parts[0].Text
	}
	return ""
}

// ListModelsResponse is the body of GET /v1beta/models.
type ListModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// apiError is Google's error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
