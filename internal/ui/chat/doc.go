// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for DraftPatch.
//
// The view renders the active thread in a viewport, reads input through
// a single-line prompt, and reflects streaming replies as the
// orchestrator publishes coalesced changes. Finalized assistant messages
// render through glamour; in-flight text stays plain so partial markdown
// does not flicker.
package chat
