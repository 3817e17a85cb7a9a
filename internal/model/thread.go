// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/Robdel12/DraftPatch/internal/llm"
)

// PlaceholderTitle marks a thread that still needs an auto-generated
// title after its first exchange.
const PlaceholderTitle = "New Conversation"

// MaxMessages is the maximum number of messages kept in thread history.
// When exceeded, old messages are pruned to prevent unbounded memory growth.
const MaxMessages = 1000

// =============================================================================
// THREAD TYPE
// =============================================================================

// Thread holds a complete chat conversation with history and metadata.
// A thread starts life as an in-memory draft; it is promoted to persisted
// state on the first successful send.
type Thread struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`

	// Model last used to generate a response in this thread
	Model llm.ChatModel `json:"model"`

	// Draft is true until the thread has been inserted into storage
	Draft bool `json:"-"`
}

// NewDraftThread creates an unpersisted thread bound to a model.
func NewDraftThread(mdl llm.ChatModel) *Thread {
	now := time.Now()
	return &Thread{
		ID:        generateThreadID(),
		Title:     PlaceholderTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		Model:     mdl,
		Draft:     true,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and bumps UpdatedAt.
func (t *Thread) AddMessage(msg *Message) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now()
	t.pruneOldMessages()
}

// AddUserMessage creates and adds a user message.
func (t *Thread) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	t.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and adds a streaming assistant message.
func (t *Thread) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	t.AddMessage(msg)
	return msg
}

// LastMessage returns the most recent message, or nil if empty.
func (t *Thread) LastMessage() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}

// LastUserMessage returns the most recent user message.
func (t *Thread) LastUserMessage() *Message {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleUser {
			return t.Messages[i]
		}
	}
	return nil
}

// StreamingMessage returns the message currently streaming, if any. At
// most one message streams at a time within a thread.
func (t *Thread) StreamingMessage() *Message {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Streaming {
			return t.Messages[i]
		}
	}
	return nil
}

// AppendToLast appends a fragment to the last (streaming) message.
func (t *Thread) AppendToLast(token string) {
	last := t.LastMessage()
	if last != nil && last.Streaming {
		last.AppendToken(token)
	}
}

// FinalizeLast finalizes the last streaming message.
func (t *Thread) FinalizeLast() {
	last := t.LastMessage()
	if last != nil && last.Streaming {
		last.FinalizeStream()
	}
}

// MessageCount returns the number of messages.
func (t *Thread) MessageCount() int {
	return len(t.Messages)
}

// IsEmpty returns true if there are no messages.
func (t *Thread) IsEmpty() bool {
	return len(t.Messages) == 0
}

// =============================================================================
// PAYLOAD CONVERSION
// =============================================================================

// Payloads converts the thread history to the normalized request format,
// chronological order. The model's system prompt, when set, leads the
// list. Empty messages are dropped; the wire never needs them and one
// vendor rejects them.
func (t *Thread) Payloads() []llm.ChatMessagePayload {
	payloads := make([]llm.ChatMessagePayload, 0, len(t.Messages)+1)

	if t.Model.SystemPrompt != "" {
		payloads = append(payloads, llm.NewSystemPayload(t.Model.SystemPrompt))
	}

	for _, msg := range t.Messages {
		content := msg.DisplayContent()
		if content == "" {
			continue
		}
		payloads = append(payloads, llm.ChatMessagePayload{
			Role:    msg.Role.String(),
			Content: content,
		})
	}
	return payloads
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// NeedsTitle reports whether the thread still carries the placeholder.
func (t *Thread) NeedsTitle() bool {
	return t.Title == PlaceholderTitle || t.Title == ""
}

// SetTitle sets the thread title.
func (t *Thread) SetTitle(title string) {
	t.Title = title
	t.UpdatedAt = time.Now()
}

// DisplayTitle returns the title, falling back to the placeholder.
func (t *Thread) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return PlaceholderTitle
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateThreadID creates a unique thread ID.
func generateThreadID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "thread_" + hex.EncodeToString(bytes)
}

// Clone creates a deep copy of the thread.
func (t *Thread) Clone() *Thread {
	clone := &Thread{
		ID:        t.ID,
		Title:     t.Title,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Model:     t.Model,
		Draft:     t.Draft,
		Messages:  make([]*Message, len(t.Messages)),
	}
	for i, msg := range t.Messages {
		clone.Messages[i] = msg.Snapshot()
	}
	return clone
}

// pruneOldMessages removes old messages when history exceeds MaxMessages.
// System messages are preserved.
func (t *Thread) pruneOldMessages() {
	if len(t.Messages) <= MaxMessages {
		return
	}

	var systemMessages []*Message
	var otherMessages []*Message
	for _, msg := range t.Messages {
		if msg.Role == RoleSystem {
			systemMessages = append(systemMessages, msg)
		} else {
			otherMessages = append(otherMessages, msg)
		}
	}

	if len(otherMessages) > MaxMessages {
		otherMessages = otherMessages[len(otherMessages)-MaxMessages:]
	}

	t.Messages = make([]*Message, 0, len(systemMessages)+len(otherMessages))
	t.Messages = append(t.Messages, systemMessages...)
	t.Messages = append(t.Messages, otherMessages...)
}
