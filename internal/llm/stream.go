// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"strings"
	"sync"
)

// =============================================================================
// STREAM CANCELLATION
// =============================================================================

// Canceller tracks the most recently started stream of one service so it
// can be cancelled from outside the call. Every stream still gets its own
// context, so concurrent streams on the same service cancel independently;
// CancelActive only reaches the newest one.
type Canceller struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// Track derives a cancellable context for a new stream and records its
// cancel function as the active one. The returned release function must be
// called when the stream ends; it frees the context and, if this stream is
// still the active one, clears the tracked cancel.
func (c *Canceller) Track(ctx context.Context) (context.Context, func()) {
	sctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		// A newer stream may have taken over the slot; only clear our own.
		if c.gen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
	}
	return sctx, release
}

// CancelActive cancels the most recently tracked stream. Idempotent and
// safe to call when no stream is active.
func (c *Canceller) CancelActive() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator collects fragments during a stream.
type StreamAccumulator struct {
	builder   strings.Builder
	fragments int
}

// Add appends one fragment.
func (a *StreamAccumulator) Add(fragment string) {
	if fragment == "" {
		return
	}
	a.builder.WriteString(fragment)
	a.fragments++
}

// String returns everything accumulated so far.
func (a *StreamAccumulator) String() string {
	return a.builder.String()
}

// Fragments returns the number of non-empty fragments received.
func (a *StreamAccumulator) Fragments() int {
	return a.fragments
}

// Reset clears the accumulator for reuse.
func (a *StreamAccumulator) Reset() {
	a.builder.Reset()
	a.fragments = 0
}
