// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestLoadModels_MergesAcrossProviders(t *testing.T) {
	local := NewMockService(ProviderOllama)
	local.Models = []string{"llama3:8b", "gemma3:27b"}
	cloud := NewMockService(ProviderOpenAI)
	cloud.Models = []string{"gpt-4o-mini"}

	manager := NewManager(NewRegistry(map[Provider]Service{
		ProviderOllama: local,
		ProviderOpenAI: cloud,
	})).WithLogger(discardLogger())

	models, errs := manager.LoadModels(context.Background(), []Provider{ProviderOllama, ProviderOpenAI}, nil)
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(models))
	}

	// Sorted by provider then name.
	want := []ModelKey{
		{Name: "gemma3:27b", Provider: ProviderOllama},
		{Name: "llama3:8b", Provider: ProviderOllama},
		{Name: "gpt-4o-mini", Provider: ProviderOpenAI},
	}
	for i, k := range want {
		if models[i].Key() != k {
			t.Errorf("models[%d] = %v, want %v", i, models[i].Key(), k)
		}
		if !models[i].Enabled {
			t.Errorf("new model %v should start enabled", k)
		}
	}
}

func TestLoadModels_FailingProviderIsIsolated(t *testing.T) {
	healthy := NewMockService(ProviderOllama)
	healthy.Models = []string{"llama3:8b"}
	broken := NewMockService(ProviderAnthropic)
	broken.ListErr = &NetworkError{Provider: ProviderAnthropic, Cause: errors.New("connection refused")}

	manager := NewManager(NewRegistry(map[Provider]Service{
		ProviderOllama:    healthy,
		ProviderAnthropic: broken,
	})).WithLogger(discardLogger())

	models, errs := manager.LoadModels(context.Background(), []Provider{ProviderOllama, ProviderAnthropic}, nil)
	if len(models) != 1 || models[0].Name != "llama3:8b" {
		t.Fatalf("healthy provider's models lost: %v", models)
	}
	if errs == nil {
		t.Fatal("expected per-provider error map")
	}
	var netErr *NetworkError
	if !errors.As(errs[ProviderAnthropic], &netErr) {
		t.Errorf("expected NetworkError for broken provider, got %v", errs[ProviderAnthropic])
	}
	if _, ok := errs[ProviderOllama]; ok {
		t.Error("healthy provider must not appear in the error map")
	}
}

func TestLoadModels_PreservesUserEdits(t *testing.T) {
	svc := NewMockService(ProviderOllama)
	svc.Models = []string{"llama3:8b", "brand-new"}

	temp := 0.2
	edited := NewChatModel("llama3:8b", ProviderOllama)
	edited.DisplayName = "My Llama"
	edited.Enabled = false
	edited.Temperature = &temp

	manager := NewManager(NewRegistry(map[Provider]Service{ProviderOllama: svc})).
		WithLogger(discardLogger())

	models, errs := manager.LoadModels(context.Background(), []Provider{ProviderOllama}, []ChatModel{edited})
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}

	byName := make(map[string]ChatModel, len(models))
	for _, m := range models {
		byName[m.Name] = m
	}

	kept := byName["llama3:8b"]
	if kept.DisplayName != "My Llama" || kept.Enabled || kept.Temperature == nil || *kept.Temperature != 0.2 {
		t.Errorf("user edits not preserved across refresh: %+v", kept)
	}
	if fresh := byName["brand-new"]; !fresh.Enabled {
		t.Error("newly discovered model should start enabled")
	}
}

func TestLoadModels_DropsDisappearedModels(t *testing.T) {
	svc := NewMockService(ProviderOllama)
	svc.Models = []string{"still-here"}

	gone := NewChatModel("removed-model", ProviderOllama)

	manager := NewManager(NewRegistry(map[Provider]Service{ProviderOllama: svc})).
		WithLogger(discardLogger())

	models, _ := manager.LoadModels(context.Background(), []Provider{ProviderOllama}, []ChatModel{gone})
	if len(models) != 1 || models[0].Name != "still-here" {
		t.Errorf("models a provider no longer reports must be dropped: %v", models)
	}
}

func TestLoadModels_DeduplicatesNames(t *testing.T) {
	svc := NewMockService(ProviderOllama)
	svc.Models = []string{"llama3:8b", "llama3:8b"}

	manager := NewManager(NewRegistry(map[Provider]Service{ProviderOllama: svc})).
		WithLogger(discardLogger())

	models, _ := manager.LoadModels(context.Background(), []Provider{ProviderOllama}, nil)
	if len(models) != 1 {
		t.Errorf("duplicate names must collapse to one model, got %d", len(models))
	}
}

func TestLoadModels_SameNameDifferentProviders(t *testing.T) {
	a := NewMockService(ProviderOpenAI)
	a.Models = []string{"shared-name"}
	b := NewMockService(ProviderGemini)
	b.Models = []string{"shared-name"}

	manager := NewManager(NewRegistry(map[Provider]Service{
		ProviderOpenAI: a,
		ProviderGemini: b,
	})).WithLogger(discardLogger())

	models, _ := manager.LoadModels(context.Background(), []Provider{ProviderOpenAI, ProviderGemini}, nil)
	if len(models) != 2 {
		t.Errorf("identical names on different providers are distinct models, got %d", len(models))
	}
}

func TestLoadModels_UnregisteredProviderSkipped(t *testing.T) {
	svc := NewMockService(ProviderOllama)
	svc.Models = []string{"llama3:8b"}

	manager := NewManager(NewRegistry(map[Provider]Service{ProviderOllama: svc})).
		WithLogger(discardLogger())

	models, errs := manager.LoadModels(context.Background(), []Provider{ProviderOllama, ProviderOpenAI}, nil)
	if errs != nil {
		t.Fatalf("an unregistered provider should be skipped silently, got %v", errs)
	}
	if len(models) != 1 {
		t.Errorf("expected 1 model, got %d", len(models))
	}
}
