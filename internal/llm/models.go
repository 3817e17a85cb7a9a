// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// ModelKey is the natural identity of a model. Two providers may expose
// identically named models, so the provider is part of the key.
type ModelKey struct {
	Name     string
	Provider Provider
}

// ChatModel is a named capability exposed by a provider, plus the user's
// edits layered on top of discovery (display name, enabled flag, sampling
// overrides). Nil override fields defer to provider defaults.
type ChatModel struct {
	ID          string
	Name        string
	DisplayName string
	Provider    Provider
	Enabled     bool
	LastUsed    time.Time

	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	SystemPrompt string
}

// NewChatModel creates an enabled model with a prettified display name.
func NewChatModel(name string, provider Provider) ChatModel {
	return ChatModel{
		ID:          uuid.NewString(),
		Name:        name,
		DisplayName: PrettyName(name),
		Provider:    provider,
		Enabled:     true,
	}
}

// Key returns the compound identity.
func (m ChatModel) Key() ModelKey {
	return ModelKey{Name: m.Name, Provider: m.Provider}
}

// Label returns the user-facing name, falling back to the raw name.
func (m ChatModel) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// Options builds the request overrides from this model's settings.
func (m ChatModel) Options() GenerationOptions {
	return GenerationOptions{
		Temperature: m.Temperature,
		TopP:        m.TopP,
		MaxTokens:   m.MaxTokens,
	}
}

// =============================================================================
// DISPLAY NAMES
// =============================================================================

// Acronyms rendered uppercase in display names.
var nameAcronyms = map[string]string{
	"gpt":  "GPT",
	"llm":  "LLM",
	"ai":   "AI",
	"it":   "IT", // instruction-tuned suffix, e.g. gemma-2-27b-it
	"sft":  "SFT",
	"dpo":  "DPO",
	"fp16": "FP16",
	"moe":  "MoE",
}

// PrettyName turns a provider-native model identifier into a readable
// label: "gemma3:27b" becomes "Gemma3 27B", "gpt-4o-mini" becomes
// "GPT 4o Mini", "claude-3-7-sonnet" becomes "Claude 3 7 Sonnet".
func PrettyName(name string) string {
	if name == "" {
		return ""
	}

	// Drop a registry namespace like "library/" if present.
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == ':' || r == '-' || r == '_' || r == ' '
	})

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f)
		switch {
		case nameAcronyms[lower] != "":
			parts = append(parts, nameAcronyms[lower])
		case isParamSize(lower):
			parts = append(parts, strings.ToUpper(lower))
		default:
			parts = append(parts, capitalize(f))
		}
	}
	return strings.Join(parts, " ")
}

// isParamSize matches parameter-count tokens like "7b", "27b", "0.5b".
func isParamSize(s string) bool {
	if len(s) < 2 || s[len(s)-1] != 'b' {
		return false
	}
	for _, r := range s[:len(s)-1] {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
