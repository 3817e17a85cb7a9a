// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for DraftPatch threads
// and model preferences.
//
// # Key Types
//
//   - Store: database handle with thread and model operations
//   - StorageError: wraps a failed operation with its name
//
// # Usage
//
// Open the store and load persisted state:
//
//	store, err := storage.Open(path)
//	threads, err := store.FetchThreads(ctx)
//	models, err := store.FetchModels(ctx)
//
// Persist a thread after a send completes:
//
//	err := store.SaveThread(ctx, thread)
//
// # Storage Location
//
// The database lives at ~/.draftpatch/draftpatch.db in WAL mode.
package storage
