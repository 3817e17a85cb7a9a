// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides thread and model persistence for DraftPatch.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Robdel12/DraftPatch/internal/llm"
	"github.com/Robdel12/DraftPatch/internal/model"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// StorageError wraps a failed storage operation with the operation name.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	model_name     TEXT NOT NULL DEFAULT '',
	model_provider TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	role      TEXT NOT NULL,
	content   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, position);

CREATE TABLE IF NOT EXISTS models (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	provider      TEXT NOT NULL,
	enabled       INTEGER NOT NULL DEFAULT 1,
	last_used     INTEGER NOT NULL DEFAULT 0,
	temperature   REAL,
	top_p         REAL,
	max_tokens    INTEGER,
	system_prompt TEXT NOT NULL DEFAULT '',
	UNIQUE(name, provider)
);
`

// =============================================================================
// STORE
// =============================================================================

// Store persists threads, messages, and model preferences in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the default database path (~/.draftpatch/draftpatch.db).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".draftpatch", "draftpatch.db"), nil
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, wrap("open", fmt.Errorf("failed to create database directory: %w", err))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap("open", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, wrap("open", fmt.Errorf("failed to set pragma: %w", err))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, wrap("open", fmt.Errorf("failed to initialize schema: %w", err))
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// THREAD OPERATIONS
// =============================================================================

// FetchThreads loads all persisted threads with their messages, most
// recently updated first.
func (s *Store) FetchThreads(ctx context.Context) ([]*model.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, model_name, model_provider, created_at, updated_at
		FROM threads ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, wrap("fetch threads", err)
	}
	defer rows.Close()

	var threads []*model.Thread
	for rows.Next() {
		var (
			t                model.Thread
			name, provider   string
			created, updated int64
		)
		if err := rows.Scan(&t.ID, &t.Title, &name, &provider, &created, &updated); err != nil {
			return nil, wrap("fetch threads", err)
		}
		t.CreatedAt = time.Unix(created, 0)
		t.UpdatedAt = time.Unix(updated, 0)
		t.Model = llm.ChatModel{Name: name, Provider: llm.Provider(provider)}
		threads = append(threads, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("fetch threads", err)
	}

	for _, t := range threads {
		if err := s.loadMessages(ctx, t); err != nil {
			return nil, err
		}
	}
	return threads, nil
}

// FetchThread loads a single thread by ID. Returns ErrNotFound when the
// thread does not exist.
func (s *Store) FetchThread(ctx context.Context, id string) (*model.Thread, error) {
	var (
		t                model.Thread
		name, provider   string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, model_name, model_provider, created_at, updated_at
		FROM threads WHERE id = ?
	`, id).Scan(&t.ID, &t.Title, &name, &provider, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrap("fetch thread", ErrNotFound)
	}
	if err != nil {
		return nil, wrap("fetch thread", err)
	}
	t.CreatedAt = time.Unix(created, 0)
	t.UpdatedAt = time.Unix(updated, 0)
	t.Model = llm.ChatModel{Name: name, Provider: llm.Provider(provider)}

	if err := s.loadMessages(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) loadMessages(ctx context.Context, t *model.Thread) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM messages WHERE thread_id = ? ORDER BY position
	`, t.ID)
	if err != nil {
		return wrap("fetch messages", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, role, content string
			created           int64
		)
		if err := rows.Scan(&id, &role, &content, &created); err != nil {
			return wrap("fetch messages", err)
		}
		t.Messages = append(t.Messages, model.RestoredMessage(id, model.Role(role), content, time.Unix(created, 0)))
	}
	return wrap("fetch messages", rows.Err())
}

// SaveThread upserts a thread and replaces its message rows.
// Draft threads are the caller's concern: promote before saving.
func (s *Store) SaveThread(ctx context.Context, t *model.Thread) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("save thread", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (id, title, model_name, model_provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model_name = excluded.model_name,
			model_provider = excluded.model_provider,
			updated_at = excluded.updated_at
	`, t.ID, t.Title, t.Model.Name, string(t.Model.Provider), t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	if err != nil {
		return wrap("save thread", err)
	}

	// Replace message rows wholesale. Threads are small enough that a
	// delete and reinsert inside one transaction beats tracking diffs.
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, t.ID); err != nil {
		return wrap("save thread", err)
	}
	for i, msg := range t.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, thread_id, position, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, t.ID, i, string(msg.Role), msg.DisplayContent(), msg.Timestamp.Unix())
		if err != nil {
			return wrap("save thread", err)
		}
	}

	return wrap("save thread", tx.Commit())
}

// InsertThread persists a thread for the first time. Used when a draft
// is promoted; the thread row must not already exist.
func (s *Store) InsertThread(ctx context.Context, t *model.Thread) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, title, model_name, model_provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Model.Name, string(t.Model.Provider), t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	return wrap("insert thread", err)
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return wrap("delete thread", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrap("delete thread", ErrNotFound)
	}
	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// FetchModels loads all persisted model records.
func (s *Store) FetchModels(ctx context.Context) ([]llm.ChatModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, provider, enabled, last_used,
		       temperature, top_p, max_tokens, system_prompt
		FROM models ORDER BY provider, name
	`)
	if err != nil {
		return nil, wrap("fetch models", err)
	}
	defer rows.Close()

	var models []llm.ChatModel
	for rows.Next() {
		var (
			m         llm.ChatModel
			provider  string
			enabled   int
			lastUsed  int64
			temp, top sql.NullFloat64
			maxTok    sql.NullInt64
		)
		err := rows.Scan(&m.ID, &m.Name, &m.DisplayName, &provider, &enabled,
			&lastUsed, &temp, &top, &maxTok, &m.SystemPrompt)
		if err != nil {
			return nil, wrap("fetch models", err)
		}
		m.Provider = llm.Provider(provider)
		m.Enabled = enabled != 0
		if lastUsed > 0 {
			m.LastUsed = time.Unix(lastUsed, 0)
		}
		if temp.Valid {
			v := temp.Float64
			m.Temperature = &v
		}
		if top.Valid {
			v := top.Float64
			m.TopP = &v
		}
		if maxTok.Valid {
			v := int(maxTok.Int64)
			m.MaxTokens = &v
		}
		models = append(models, m)
	}
	return models, wrap("fetch models", rows.Err())
}

// SaveModels replaces the persisted model set with the given list.
func (s *Store) SaveModels(ctx context.Context, models []llm.ChatModel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("save models", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM models`); err != nil {
		return wrap("save models", err)
	}
	for _, m := range models {
		if err := insertModel(ctx, tx, m); err != nil {
			return wrap("save models", err)
		}
	}
	return wrap("save models", tx.Commit())
}

// SaveModel upserts a single model record by (name, provider).
func (s *Store) SaveModel(ctx context.Context, m llm.ChatModel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("save model", err)
	}
	defer tx.Rollback()

	if err := insertModel(ctx, tx, m); err != nil {
		return wrap("save model", err)
	}
	return wrap("save model", tx.Commit())
}

func insertModel(ctx context.Context, tx *sql.Tx, m llm.ChatModel) error {
	var (
		temp, top sql.NullFloat64
		maxTok    sql.NullInt64
		lastUsed  int64
	)
	if m.Temperature != nil {
		temp = sql.NullFloat64{Float64: *m.Temperature, Valid: true}
	}
	if m.TopP != nil {
		top = sql.NullFloat64{Float64: *m.TopP, Valid: true}
	}
	if m.MaxTokens != nil {
		maxTok = sql.NullInt64{Int64: int64(*m.MaxTokens), Valid: true}
	}
	if !m.LastUsed.IsZero() {
		lastUsed = m.LastUsed.Unix()
	}
	enabled := 0
	if m.Enabled {
		enabled = 1
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO models (id, name, display_name, provider, enabled, last_used,
		                    temperature, top_p, max_tokens, system_prompt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, provider) DO UPDATE SET
			display_name = excluded.display_name,
			enabled = excluded.enabled,
			last_used = excluded.last_used,
			temperature = excluded.temperature,
			top_p = excluded.top_p,
			max_tokens = excluded.max_tokens,
			system_prompt = excluded.system_prompt
	`, m.ID, m.Name, m.DisplayName, string(m.Provider), enabled, lastUsed,
		temp, top, maxTok, m.SystemPrompt)
	return err
}
