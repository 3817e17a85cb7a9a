// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file implements token coalescing for streaming replies. Publishing
// a UI update per fragment causes excessive rendering (>1000fps) with
// flicker and high CPU usage, so fragments are batched and flushed on a
// size or time threshold.
package chat

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// TOKEN BUFFER
// =============================================================================

// TokenBuffer batches stream fragments for coalesced publication.
// Fragments accumulate until either:
// 1. The batch size threshold is reached (default 15 fragments)
// 2. Enough time has passed since the last flush (default ~33ms for 30fps)
//
// Thread-safety: all operations are mutex-protected since streaming runs
// in its own goroutine while the UI polls from the render loop.
type TokenBuffer struct {
	mu        sync.Mutex
	buffer    strings.Builder
	count     int
	lastFlush time.Time

	batchSize int
	minFlush  time.Duration
}

// NewTokenBuffer creates a token buffer with default thresholds:
// 15 fragments per batch, 30 flushes per second.
func NewTokenBuffer() *TokenBuffer {
	return NewTokenBufferWithConfig(15, 30)
}

// NewTokenBufferWithConfig creates a token buffer with a custom batch
// size and maximum flush rate.
func NewTokenBufferWithConfig(batchSize, maxFPS int) *TokenBuffer {
	if batchSize <= 0 {
		batchSize = 15
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = 30
	}
	return &TokenBuffer{
		batchSize: batchSize,
		minFlush:  time.Duration(1000/maxFPS) * time.Millisecond,
		lastFlush: time.Now(),
	}
}

// Write adds a fragment to the buffer. Called from the streaming goroutine.
func (b *TokenBuffer) Write(fragment string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer.WriteString(fragment)
	b.count++
}

// Flush returns accumulated content when a threshold has been reached.
// Returns ("", false) when the buffer is empty or neither threshold has
// fired yet.
func (b *TokenBuffer) Flush() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffer.Len() == 0 || !b.shouldFlushLocked() {
		return "", false
	}
	return b.drainLocked(), true
}

// ForceFlush immediately returns all buffered content regardless of
// thresholds. Called when a stream terminates so no fragment is dropped.
func (b *TokenBuffer) ForceFlush() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffer.Len() == 0 {
		return "", false
	}
	return b.drainLocked(), true
}

// Reset clears the buffer without flushing. Used when a new send starts.
func (b *TokenBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer.Reset()
	b.count = 0
	b.lastFlush = time.Now()
}

// Pending returns the number of fragments waiting to be flushed.
func (b *TokenBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *TokenBuffer) shouldFlushLocked() bool {
	if b.count >= b.batchSize {
		return true
	}
	return time.Since(b.lastFlush) >= b.minFlush
}

func (b *TokenBuffer) drainLocked() string {
	content := b.buffer.String()
	b.buffer.Reset()
	b.count = 0
	b.lastFlush = time.Now()
	return content
}
