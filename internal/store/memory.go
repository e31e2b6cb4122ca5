// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/chatmux/internal/model"
)

// MemoryStore is an in-memory Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*model.Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*model.Conversation)}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Create persists a new conversation.
func (s *MemoryStore) Create(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.convs[conv.ID]; exists {
		return fmt.Errorf("conversation already exists: %s", conv.ID)
	}
	s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

// Get loads a conversation with its full message log.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneConversation(conv), nil
}

// Append adds messages to a conversation's log.
func (s *MemoryStore) Append(_ context.Context, id string, msgs ...*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, msg := range msgs {
		copied := *msg
		conv.Messages = append(conv.Messages, &copied)
		if msg.Usage != nil {
			conv.TotalUsage.PromptTokens += msg.Usage.PromptTokens
			conv.TotalUsage.CompletionTokens += msg.Usage.CompletionTokens
		}
		conv.TotalCostCents += msg.CostCents
	}
	conv.UpdatedAt = time.Now()
	return nil
}

// UpdateTitle sets the conversation title.
func (s *MemoryStore) UpdateTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	return nil
}

// UpdateSelection sets the conversation's provider instance and model.
func (s *MemoryStore) UpdateSelection(_ context.Context, id, providerInstanceID, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	conv.ProviderInstanceID = providerInstanceID
	conv.Model = modelID
	conv.UpdatedAt = time.Now()
	return nil
}

// Delete removes a conversation.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.convs, id)
	return nil
}

// List returns metadata for all conversations, most recently updated first.
func (s *MemoryStore) List(_ context.Context) ([]model.ConversationMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := make([]model.ConversationMeta, 0, len(s.convs))
	for _, conv := range s.convs {
		metas = append(metas, conv.Meta())
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// cloneConversation deep-copies a conversation so callers never share
// message slices with the store.
func cloneConversation(conv *model.Conversation) *model.Conversation {
	copied := *conv
	copied.Messages = make([]*model.Message, len(conv.Messages))
	for i, msg := range conv.Messages {
		m := *msg
		copied.Messages[i] = &m
	}
	return &copied
}
