// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// MOCK SERVICE
// =============================================================================

// MockService is a scripted Service used by tests and the offline demo
// mode. It streams a fixed fragment list and records every call so tests
// can assert on ordering and argument values.
type MockService struct {
	ProviderID Provider

	// Models and ListErr script ListModels.
	Models  []string
	ListErr error

	// Fragments are streamed in order by StreamChat. StreamErr, when set,
	// is returned after all fragments have been delivered.
	Fragments   []string
	StreamErr   error
	StreamDelay time.Duration

	// Completion and CompletionErr script SingleCompletion.
	Completion    string
	CompletionErr error

	canceller Canceller

	mu              sync.Mutex
	listCalls       int
	streamCalls     []ChatRequest
	completionCalls []ChatRequest
}

// NewMockService creates a mock for the given provider identity.
func NewMockService(p Provider) *MockService {
	return &MockService{ProviderID: p}
}

// Provider implements Service.
func (m *MockService) Provider() Provider {
	return m.ProviderID
}

// ListModels implements Service.
func (m *MockService) ListModels(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]string, len(m.Models))
	copy(out, m.Models)
	return out, nil
}

// StreamChat implements Service. Fragments are delivered sequentially,
// honoring context cancellation between fragments.
func (m *MockService) StreamChat(ctx context.Context, req ChatRequest, fn StreamCallback) error {
	m.mu.Lock()
	m.streamCalls = append(m.streamCalls, req)
	m.mu.Unlock()

	sctx, release := m.canceller.Track(ctx)
	defer release()

	for _, fragment := range m.Fragments {
		select {
		case <-sctx.Done():
			return sctx.Err()
		default:
		}
		if m.StreamDelay > 0 {
			select {
			case <-sctx.Done():
				return sctx.Err()
			case <-time.After(m.StreamDelay):
			}
		}
		fn(fragment)
	}
	return m.StreamErr
}

// SingleCompletion implements Service.
func (m *MockService) SingleCompletion(ctx context.Context, req ChatRequest) (string, error) {
	m.mu.Lock()
	m.completionCalls = append(m.completionCalls, req)
	m.mu.Unlock()

	if m.CompletionErr != nil {
		return "", m.CompletionErr
	}
	return m.Completion, nil
}

// CancelActiveStream implements Service.
func (m *MockService) CancelActiveStream() {
	m.canceller.CancelActive()
}

// ListCalls returns how many times ListModels ran.
func (m *MockService) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// StreamCalls returns the recorded StreamChat requests.
func (m *MockService) StreamCalls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.streamCalls))
	copy(out, m.streamCalls)
	return out
}

// CompletionCalls returns the recorded SingleCompletion requests.
func (m *MockService) CompletionCalls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.completionCalls))
	copy(out, m.completionCalls)
	return out
}
