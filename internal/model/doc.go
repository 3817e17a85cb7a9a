// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the
// application for representing chat threads and their messages, including
// the draft lifecycle and the streaming state of an in-progress assistant
// reply.
//
// # Key Types
//
//   - Thread: container for a chat session with messages and metadata
//   - Message: single message with role, content, timestamp and streaming state
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
// Create a draft thread and add the first message:
//
//	thread := model.NewDraftThread(mdl)
//	thread.AddUserMessage("Hello!")
//
// Consume a stream into an assistant message:
//
//	msg := thread.AddAssistantMessage()
//	msg.AppendToken("Hi ")
//	msg.AppendToken("there!")
//	msg.FinalizeStream()
package model
