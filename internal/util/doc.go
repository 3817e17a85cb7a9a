// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the application.
//
// String helpers are rune and display-width aware so truncation never
// splits a UTF-8 sequence. File helpers write atomically with fsync so
// a crash leaves either the old file or the complete new one.
//
// # Usage
//
//	// Truncate long strings safely for display
//	title := util.TruncateWidth(thread.Title, 40)
//
//	// Write files atomically to prevent data loss
//	err := util.AtomicWriteFile(path, data, 0644)
package util
