// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import "testing"

func TestRegistry_ClientLookup(t *testing.T) {
	local := NewMockService(ProviderOllama)
	registry := NewRegistry(map[Provider]Service{ProviderOllama: local})

	if got := registry.Client(ProviderOllama); got != local {
		t.Error("Client returned a different service than registered")
	}
	if got := registry.Client(ProviderOpenAI); got != nil {
		t.Errorf("unregistered provider should resolve to nil, got %v", got)
	}
}

func TestRegistry_ProvidersStableOrder(t *testing.T) {
	registry := NewRegistry(map[Provider]Service{
		ProviderAnthropic: NewMockService(ProviderAnthropic),
		ProviderOllama:    NewMockService(ProviderOllama),
		ProviderGemini:    NewMockService(ProviderGemini),
	})

	got := registry.Providers()
	want := []Provider{ProviderOllama, ProviderGemini, ProviderAnthropic}
	if len(got) != len(want) {
		t.Fatalf("expected %d providers, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Providers()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRegistry_ImmutableAfterConstruction(t *testing.T) {
	input := map[Provider]Service{ProviderOllama: NewMockService(ProviderOllama)}
	registry := NewRegistry(input)

	// Mutating the caller's map must not leak into the registry.
	input[ProviderOpenAI] = NewMockService(ProviderOpenAI)
	delete(input, ProviderOllama)

	if registry.Client(ProviderOllama) == nil {
		t.Error("registered service lost after input map mutation")
	}
	if registry.Client(ProviderOpenAI) != nil {
		t.Error("service added to input map after construction leaked in")
	}
}
