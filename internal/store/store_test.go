// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatmux/internal/model"
)

// openStores returns both implementations so every behavior is tested
// against each.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := model.NewConversation("prov-1", "gpt-4o")
			conv.AddMessage(model.NewUserMessage("hello"))
			require.NoError(t, s.Create(ctx, conv))

			got, err := s.Get(ctx, conv.ID)
			require.NoError(t, err)

			assert.Equal(t, conv.ID, got.ID)
			assert.Equal(t, "hello", got.Title)
			assert.Equal(t, "prov-1", got.ProviderInstanceID)
			assert.Equal(t, "gpt-4o", got.Model)
			require.Len(t, got.Messages, 1)
			assert.Equal(t, model.RoleUser, got.Messages[0].Role)
			assert.Equal(t, "hello", got.Messages[0].Content)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_AppendPreservesOrderAndAggregates(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := model.NewConversation("prov-1", "m")
			require.NoError(t, s.Create(ctx, conv))

			user := model.NewUserMessage("question")
			asst := model.NewAssistantMessage("answer")
			asst.Usage = &model.Usage{PromptTokens: 10, CompletionTokens: 20}
			asst.CostCents = 0.5
			require.NoError(t, s.Append(ctx, conv.ID, user, asst))

			got, err := s.Get(ctx, conv.ID)
			require.NoError(t, err)

			require.Len(t, got.Messages, 2)
			assert.Equal(t, "question", got.Messages[0].Content)
			assert.Equal(t, "answer", got.Messages[1].Content)
			assert.Equal(t, 30, got.TotalUsage.Total())
			assert.InDelta(t, 0.5, got.TotalCostCents, 1e-9)
		})
	}
}

func TestStore_AppendToolCallsRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := model.NewConversation("prov-1", "m")
			require.NoError(t, s.Create(ctx, conv))

			calls := []model.ToolCall{
				{ID: "call_1", Name: "search", Arguments: `{"q":"go"}`},
				{ID: "call_2", Name: "read", Arguments: `{"path":"a"}`},
			}
			asst := model.NewAssistantMessageWithToolCalls("", calls)
			result := model.NewToolResultMessage("call_1", "found it")
			require.NoError(t, s.Append(ctx, conv.ID, asst, result))

			got, err := s.Get(ctx, conv.ID)
			require.NoError(t, err)

			require.Len(t, got.Messages, 2)
			assert.Equal(t, calls, got.Messages[0].ToolCalls)
			assert.Equal(t, "call_1", got.Messages[1].ToolCallID)
			assert.Equal(t, model.RoleTool, got.Messages[1].Role)
		})
	}
}

func TestStore_AppendMissing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Append(context.Background(), "nope", model.NewUserMessage("x"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_UpdateTitle(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := model.NewConversation("prov-1", "m")
			require.NoError(t, s.Create(ctx, conv))
			require.NoError(t, s.UpdateTitle(ctx, conv.ID, "renamed"))

			got, err := s.Get(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, "renamed", got.Title)

			assert.ErrorIs(t, s.UpdateTitle(ctx, "nope", "x"), ErrNotFound)
		})
	}
}

func TestStore_UpdateSelection(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := model.NewConversation("prov-1", "model-a")
			require.NoError(t, s.Create(ctx, conv))
			require.NoError(t, s.UpdateSelection(ctx, conv.ID, "prov-2", "model-b"))

			got, err := s.Get(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, "prov-2", got.ProviderInstanceID)
			assert.Equal(t, "model-b", got.Model)

			assert.ErrorIs(t, s.UpdateSelection(ctx, "nope", "p", "m"), ErrNotFound)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := model.NewConversation("prov-1", "m")
			require.NoError(t, s.Create(ctx, conv))
			require.NoError(t, s.Delete(ctx, conv.ID))

			_, err := s.Get(ctx, conv.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, s.Delete(ctx, conv.ID), ErrNotFound)
		})
	}
}

func TestStore_ListOrdering(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := model.NewConversation("prov-1", "m")
			first.Title = "first"
			second := model.NewConversation("prov-1", "m")
			second.Title = "second"
			require.NoError(t, s.Create(ctx, first))
			require.NoError(t, s.Create(ctx, second))

			// Touch the first so it becomes most recent.
			require.NoError(t, s.Append(ctx, first.ID, model.NewUserMessage("bump")))

			metas, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, metas, 2)
			assert.Equal(t, "first", metas[0].Title)
			assert.Equal(t, 1, metas[0].MessageCount)
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "conversations.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	conv := model.NewConversation("prov-1", "m")
	require.NoError(t, s.Create(ctx, conv))
	require.NoError(t, s.Append(ctx, conv.ID, model.NewUserMessage("persisted")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "persisted", got.Messages[0].Content)
}
