// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
// The message log is append-only; the store is the writer of record.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages in append order.
	Messages []*Message `json:"messages"`

	// Provider/model selection
	ProviderInstanceID string `json:"provider_instance_id"`
	Model              string `json:"model"`

	// Aggregate counters
	TotalUsage     Usage   `json:"total_usage"`
	TotalCostCents float64 `json:"total_cost_cents"`
}

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation(providerInstanceID, modelID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:                 uuid.New().String(),
		CreatedAt:          now,
		UpdatedAt:          now,
		Messages:           make([]*Message, 0),
		ProviderInstanceID: providerInstanceID,
		Model:              modelID,
	}
}

// AddMessage appends a message and updates aggregate counters.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	if msg.Usage != nil {
		c.TotalUsage.PromptTokens += msg.Usage.PromptTokens
		c.TotalUsage.CompletionTokens += msg.Usage.CompletionTokens
	}
	c.TotalCostCents += msg.CostCents
	if c.Title == "" && msg.Role == RoleUser {
		c.Title = DeriveTitle(msg.Content)
	}
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// Meta returns listing metadata for this conversation.
func (c *Conversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.Title,
		Model:        c.Model,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// maxTitleRunes bounds auto-derived conversation titles.
const maxTitleRunes = 50

// DeriveTitle builds a conversation title from the first user message.
// Newlines are collapsed and the result is truncated rune-wise for
// Unicode safety.
func DeriveTitle(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", "")
	content = strings.TrimSpace(content)
	if content == "" {
		return "New conversation"
	}
	runes := []rune(content)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes-3]) + "..."
	}
	return content
}
