// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/chatmux/internal/model"
)

// schema creates the conversation tables.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id                   TEXT PRIMARY KEY,
	title                TEXT NOT NULL DEFAULT '',
	provider_instance_id TEXT NOT NULL DEFAULT '',
	model                TEXT NOT NULL DEFAULT '',
	created_at           INTEGER NOT NULL,
	updated_at           INTEGER NOT NULL,
	prompt_tokens        INTEGER NOT NULL DEFAULT 0,
	completion_tokens    INTEGER NOT NULL DEFAULT 0,
	cost_cents           REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	reasoning       TEXT NOT NULL DEFAULT '',
	tool_calls      TEXT NOT NULL DEFAULT '',
	tool_call_id    TEXT NOT NULL DEFAULT '',
	usage_json      TEXT NOT NULL DEFAULT '',
	cost_cents      REAL NOT NULL DEFAULT 0,
	model           TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, seq);

CREATE INDEX IF NOT EXISTS idx_conversations_updated
	ON conversations(updated_at DESC);
`

// SQLiteStore is the durable conversation store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the conversation database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create persists a new conversation and any messages it already holds.
func (s *SQLiteStore) Create(ctx context.Context, conv *model.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations
			(id, title, provider_instance_id, model, created_at, updated_at,
			 prompt_tokens, completion_tokens, cost_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.ProviderInstanceID, conv.Model,
		conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli(),
		conv.TotalUsage.PromptTokens, conv.TotalUsage.CompletionTokens,
		conv.TotalCostCents)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for i, msg := range conv.Messages {
		if err := insertMessage(ctx, tx, conv.ID, i, msg); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get loads a conversation with its full message log.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv := &model.Conversation{ID: id}
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT title, provider_instance_id, model, created_at, updated_at,
		       prompt_tokens, completion_tokens, cost_cents
		FROM conversations WHERE id = ?`, id).Scan(
		&conv.Title, &conv.ProviderInstanceID, &conv.Model,
		&createdAt, &updatedAt,
		&conv.TotalUsage.PromptTokens, &conv.TotalUsage.CompletionTokens,
		&conv.TotalCostCents)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	conv.CreatedAt = time.UnixMilli(createdAt)
	conv.UpdatedAt = time.UnixMilli(updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, reasoning, tool_calls, tool_call_id,
		       usage_json, cost_cents, model, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, rows.Err()
}

// Append adds messages to a conversation's log and folds their usage and
// cost into the aggregate counters.
func (s *SQLiteStore) Append(ctx context.Context, id string, msgs ...*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq)+1, 0) FROM messages WHERE conversation_id = ?`, id).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	var promptDelta, completionDelta int
	var costDelta float64
	for i, msg := range msgs {
		if err := insertMessage(ctx, tx, id, seq+i, msg); err != nil {
			return err
		}
		if msg.Usage != nil {
			promptDelta += msg.Usage.PromptTokens
			completionDelta += msg.Usage.CompletionTokens
		}
		costDelta += msg.CostCents
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET
			updated_at = ?,
			prompt_tokens = prompt_tokens + ?,
			completion_tokens = completion_tokens + ?,
			cost_cents = cost_cents + ?
		WHERE id = ?`,
		time.Now().UnixMilli(), promptDelta, completionDelta, costDelta, id)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return tx.Commit()
}

// UpdateTitle sets the conversation title.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// UpdateSelection sets the conversation's provider instance and model.
func (s *SQLiteStore) UpdateSelection(ctx context.Context, id, providerInstanceID, modelID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET provider_instance_id = ?, model = ?, updated_at = ? WHERE id = ?`,
		providerInstanceID, modelID, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update selection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes a conversation and its messages.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns metadata for all conversations, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]model.ConversationMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.model, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var metas []model.ConversationMeta
	for rows.Next() {
		var meta model.ConversationMeta
		var createdAt, updatedAt int64
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model,
			&createdAt, &updatedAt, &meta.MessageCount); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta.CreatedAt = time.UnixMilli(createdAt)
		meta.UpdatedAt = time.UnixMilli(updatedAt)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// =============================================================================
// ROW CODECS
// =============================================================================

func insertMessage(ctx context.Context, tx *sql.Tx, convID string, seq int, msg *model.Message) error {
	toolCalls := ""
	if len(msg.ToolCalls) > 0 {
		b, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = string(b)
	}

	usage := ""
	if msg.Usage != nil {
		b, err := json.Marshal(msg.Usage)
		if err != nil {
			return fmt.Errorf("marshal usage: %w", err)
		}
		usage = string(b)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, seq, role, content, reasoning, tool_calls,
			 tool_call_id, usage_json, cost_cents, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, convID, seq, msg.Role.String(), msg.Content, msg.Reasoning,
		toolCalls, msg.ToolCallID, usage, msg.CostCents, msg.Model,
		msg.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func scanMessage(rows *sql.Rows) (*model.Message, error) {
	var msg model.Message
	var role, toolCalls, usage string
	var createdAt int64
	if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Reasoning,
		&toolCalls, &msg.ToolCallID, &usage, &msg.CostCents, &msg.Model,
		&createdAt); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}

	msg.Role = model.Role(role)
	msg.Timestamp = time.UnixMilli(createdAt)

	if toolCalls != "" {
		if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshal tool calls: %w", err)
		}
	}
	if usage != "" {
		var u model.Usage
		if err := json.Unmarshal([]byte(usage), &u); err != nil {
			return nil, fmt.Errorf("unmarshal usage: %w", err)
		}
		msg.Usage = &u
	}
	return &msg, nil
}
