// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Robdel12/DraftPatch/internal/llm"
	"github.com/Robdel12/DraftPatch/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// THREAD TESTS
// =============================================================================

func TestStore_SaveAndFetchThread(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	thread := model.NewDraftThread(llm.NewChatModel("llama3.2", llm.ProviderOllama))
	thread.Draft = false
	thread.AddUserMessage("hello there")
	reply := thread.AddAssistantMessage()
	reply.AppendToken("hi, how can I help?")
	reply.FinalizeStream()
	thread.SetTitle("Greeting")

	if err := store.SaveThread(ctx, thread); err != nil {
		t.Fatalf("SaveThread failed: %v", err)
	}

	loaded, err := store.FetchThread(ctx, thread.ID)
	if err != nil {
		t.Fatalf("FetchThread failed: %v", err)
	}
	if loaded.Title != "Greeting" {
		t.Errorf("Title = %q, want %q", loaded.Title, "Greeting")
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("Message count = %d, want 2", len(loaded.Messages))
	}
	if loaded.Messages[0].Role != model.RoleUser || loaded.Messages[0].Content != "hello there" {
		t.Errorf("First message = %s %q", loaded.Messages[0].Role, loaded.Messages[0].Content)
	}
	if loaded.Messages[1].Role != model.RoleAssistant {
		t.Errorf("Second message role = %s, want assistant", loaded.Messages[1].Role)
	}
	if loaded.Model.Name != "llama3.2" || loaded.Model.Provider != llm.ProviderOllama {
		t.Errorf("Model = %s/%s", loaded.Model.Provider, loaded.Model.Name)
	}
}

func TestStore_SaveThreadReplacesMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	thread := model.NewDraftThread(llm.NewChatModel("gpt-4o", llm.ProviderOpenAI))
	thread.Draft = false
	thread.AddUserMessage("first")
	if err := store.SaveThread(ctx, thread); err != nil {
		t.Fatalf("SaveThread failed: %v", err)
	}

	reply := thread.AddAssistantMessage()
	reply.AppendToken("reply")
	reply.FinalizeStream()
	if err := store.SaveThread(ctx, thread); err != nil {
		t.Fatalf("Second SaveThread failed: %v", err)
	}

	loaded, err := store.FetchThread(ctx, thread.ID)
	if err != nil {
		t.Fatalf("FetchThread failed: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Errorf("Message count = %d, want 2", len(loaded.Messages))
	}
}

func TestStore_FetchThreadsOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := model.NewDraftThread(llm.NewChatModel("a", llm.ProviderOllama))
	older.Draft = false
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := model.NewDraftThread(llm.NewChatModel("b", llm.ProviderOllama))
	newer.Draft = false
	newer.UpdatedAt = time.Now()

	if err := store.SaveThread(ctx, older); err != nil {
		t.Fatalf("SaveThread failed: %v", err)
	}
	if err := store.SaveThread(ctx, newer); err != nil {
		t.Fatalf("SaveThread failed: %v", err)
	}

	threads, err := store.FetchThreads(ctx)
	if err != nil {
		t.Fatalf("FetchThreads failed: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("Thread count = %d, want 2", len(threads))
	}
	if threads[0].ID != newer.ID {
		t.Errorf("Most recently updated thread should come first")
	}
}

func TestStore_FetchThreadNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.FetchThread(context.Background(), "thread_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Errorf("Expected StorageError wrapper, got %T", err)
	}
}

func TestStore_DeleteThread(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	thread := model.NewDraftThread(llm.NewChatModel("m", llm.ProviderOllama))
	thread.Draft = false
	thread.AddUserMessage("x")
	if err := store.SaveThread(ctx, thread); err != nil {
		t.Fatalf("SaveThread failed: %v", err)
	}

	if err := store.DeleteThread(ctx, thread.ID); err != nil {
		t.Fatalf("DeleteThread failed: %v", err)
	}
	if _, err := store.FetchThread(ctx, thread.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Thread should be gone, got %v", err)
	}
	if err := store.DeleteThread(ctx, thread.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deleting a missing thread should return ErrNotFound, got %v", err)
	}
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestStore_SaveAndFetchModels(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	temp := 0.7
	m1 := llm.NewChatModel("llama3.2", llm.ProviderOllama)
	m1.Temperature = &temp
	m1.SystemPrompt = "You are concise."
	m2 := llm.NewChatModel("gpt-4o", llm.ProviderOpenAI)
	m2.Enabled = false

	if err := store.SaveModels(ctx, []llm.ChatModel{m1, m2}); err != nil {
		t.Fatalf("SaveModels failed: %v", err)
	}

	models, err := store.FetchModels(ctx)
	if err != nil {
		t.Fatalf("FetchModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Model count = %d, want 2", len(models))
	}

	byKey := make(map[llm.ModelKey]llm.ChatModel)
	for _, m := range models {
		byKey[m.Key()] = m
	}

	got := byKey[m1.Key()]
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("Temperature not round-tripped: %v", got.Temperature)
	}
	if got.SystemPrompt != "You are concise." {
		t.Errorf("SystemPrompt = %q", got.SystemPrompt)
	}
	if got.TopP != nil || got.MaxTokens != nil {
		t.Errorf("Unset options should stay nil")
	}
	if byKey[m2.Key()].Enabled {
		t.Errorf("Disabled flag not round-tripped")
	}
}

func TestStore_SaveModelUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	m := llm.NewChatModel("gemini-2.0-flash", llm.ProviderGemini)
	if err := store.SaveModel(ctx, m); err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}

	m.DisplayName = "Fast Gemini"
	m.LastUsed = time.Now()
	if err := store.SaveModel(ctx, m); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	models, err := store.FetchModels(ctx)
	if err != nil {
		t.Fatalf("FetchModels failed: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("Model count = %d, want 1 after upsert", len(models))
	}
	if models[0].DisplayName != "Fast Gemini" {
		t.Errorf("DisplayName = %q", models[0].DisplayName)
	}
	if models[0].LastUsed.IsZero() {
		t.Errorf("LastUsed not persisted")
	}
}

func TestStore_PersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	thread := model.NewDraftThread(llm.NewChatModel("m", llm.ProviderAnthropic))
	thread.Draft = false
	thread.AddUserMessage("persisted")
	if err := store.SaveThread(ctx, thread); err != nil {
		t.Fatalf("SaveThread failed: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	threads, err := reopened.FetchThreads(ctx)
	if err != nil {
		t.Fatalf("FetchThreads failed: %v", err)
	}
	if len(threads) != 1 || threads[0].Messages[0].Content != "persisted" {
		t.Errorf("Thread did not survive reopen")
	}
}
