// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the send-message workflow on top of the
// provider clients.
//
// The Orchestrator owns one active thread at a time. SendMessage resolves
// the target model, enriches the text with external capture, promotes
// draft threads before they gain content, streams the reply with coalesced
// change notifications, and auto-titles the thread after its first
// exchange. Cancellation terminates the stream without surfacing an error
// and keeps whatever text had accumulated.
//
// Persistence failures never abort the workflow. They are logged and the
// in-memory thread stays authoritative for the session.
package chat
