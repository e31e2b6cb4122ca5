// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"

	"github.com/jeranaias/chatmux/internal/model"
)

// ErrNotFound indicates the requested conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is the conversation persistence interface.
type Store interface {
	// Create persists a new conversation.
	Create(ctx context.Context, conv *model.Conversation) error

	// Get loads a conversation with its full message log.
	Get(ctx context.Context, id string) (*model.Conversation, error)

	// Append adds messages to a conversation's log and updates its
	// aggregate counters.
	Append(ctx context.Context, id string, msgs ...*model.Message) error

	// UpdateTitle sets the conversation title.
	UpdateTitle(ctx context.Context, id, title string) error

	// UpdateSelection sets the conversation's provider instance and
	// model.
	UpdateSelection(ctx context.Context, id, providerInstanceID, modelID string) error

	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, id string) error

	// List returns metadata for all conversations, most recently
	// updated first.
	List(ctx context.Context) ([]model.ConversationMeta, error)

	// Close releases underlying resources.
	Close() error
}
