// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

// =============================================================================
// PROVIDER REGISTRY
// =============================================================================

// Registry maps providers to their Service instances. The provider set is
// closed, so this is a plain lookup with no error path and no I/O; every
// registered provider resolves to a concrete client.
type Registry struct {
	services map[Provider]Service
}

// NewRegistry creates a registry from a literal provider map. Services are
// constructed by the caller so the registry stays free of configuration
// concerns.
func NewRegistry(services map[Provider]Service) *Registry {
	// Copy to keep the registry immutable after construction.
	m := make(map[Provider]Service, len(services))
	for p, s := range services {
		m[p] = s
	}
	return &Registry{services: m}
}

// Client returns the Service for a provider, or nil for a provider that
// was never registered.
func (r *Registry) Client(p Provider) Service {
	return r.services[p]
}

// Providers returns every registered provider in stable order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.services))
	for _, p := range AllProviders() {
		if _, ok := r.services[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
