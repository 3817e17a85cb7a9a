// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// MODEL DISCOVERY
// =============================================================================

// DefaultDiscoveryTimeout bounds each provider's model listing so one hung
// backend cannot stall the whole refresh.
const DefaultDiscoveryTimeout = 15 * time.Second

// Manager aggregates model discovery across providers and resolves the
// client for a model's provider.
type Manager struct {
	registry *Registry
	timeout  time.Duration
	logger   *log.Logger
}

// NewManager creates a manager over a registry.
func NewManager(registry *Registry) *Manager {
	return &Manager{
		registry: registry,
		timeout:  DefaultDiscoveryTimeout,
		logger:   log.Default(),
	}
}

// WithTimeout sets the per-provider discovery timeout.
func (m *Manager) WithTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.timeout = d
	}
	return m
}

// WithLogger sets the logger used for discovery failures.
func (m *Manager) WithLogger(l *log.Logger) *Manager {
	if l != nil {
		m.logger = l
	}
	return m
}

// Client resolves the Service for a provider.
func (m *Manager) Client(p Provider) Service {
	return m.registry.Client(p)
}

// LoadModels queries every listed provider in parallel and merges the
// results with previously known models.
//
// A failing provider never aborts the others; its error is logged and
// returned in the per-provider error map so callers can assert on it.
// Models are merged by (name, provider) key: names already known keep
// their user edits (display name, enabled flag, overrides, last-used),
// new names become fresh enabled models, and known models a provider no
// longer reports are dropped. The final list is deduplicated and sorted
// by provider then name.
func (m *Manager) LoadModels(ctx context.Context, enabled []Provider, existing []ChatModel) ([]ChatModel, map[Provider]error) {
	known := make(map[ModelKey]ChatModel, len(existing))
	for _, mdl := range existing {
		known[mdl.Key()] = mdl
	}

	type result struct {
		provider Provider
		names    []string
		err      error
	}

	results := make([]result, len(enabled))
	var wg sync.WaitGroup

	for i, p := range enabled {
		svc := m.registry.Client(p)
		if svc == nil {
			continue
		}
		wg.Add(1)
		go func(i int, p Provider, svc Service) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			names, err := svc.ListModels(fetchCtx)
			results[i] = result{provider: p, names: names, err: err}
		}(i, p, svc)
	}
	wg.Wait()

	errs := make(map[Provider]error)
	var merged []ChatModel
	seen := make(map[ModelKey]bool)

	for _, r := range results {
		if r.provider == "" {
			continue
		}
		if r.err != nil {
			m.logger.Printf("model discovery failed for %s: %v", r.provider, r.err)
			errs[r.provider] = r.err
			continue
		}
		for _, name := range r.names {
			key := ModelKey{Name: name, Provider: r.provider}
			if seen[key] {
				continue
			}
			seen[key] = true
			if prev, ok := known[key]; ok {
				merged = append(merged, prev)
			} else {
				merged = append(merged, NewChatModel(name, r.provider))
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Provider != merged[j].Provider {
			return merged[i].Provider < merged[j].Provider
		}
		return merged[i].Name < merged[j].Name
	})

	if len(errs) == 0 {
		return merged, nil
	}
	return merged, errs
}
