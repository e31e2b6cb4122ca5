// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// TOOL CALL TYPE
// =============================================================================

// ToolCall is a structured request emitted by the model asking the caller
// to invoke a named function. Arguments are carried as opaque JSON text;
// parsing is deferred to the tool execution loop.
type ToolCall struct {
	// ID uniquely identifies this call so a tool result can reference it.
	ID string `json:"id"`

	// Name is the function name to invoke.
	Name string `json:"name"`

	// Arguments is the raw JSON argument payload as sent by the provider.
	Arguments string `json:"arguments"`
}

// =============================================================================
// USAGE TYPE
// =============================================================================

// Usage holds token accounting reported by a provider for one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// IsZero reports whether no usage was recorded.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
// Messages are immutable once appended to the store.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content is the message text. May be empty for an assistant message
	// whose turn consisted only of tool calls.
	Content string `json:"content"`

	// Reasoning holds the model's reasoning channel output, when the
	// provider exposes one. Kept separate from Content.
	Reasoning string `json:"reasoning,omitempty"`

	// ToolCalls contains tool invocations requested by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-result message (Role == RoleTool) back to the
	// originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Usage and cost metadata for assistant messages.
	Usage     *Usage  `json:"usage,omitempty"`
	CostCents float64 `json:"cost_cents,omitempty"`

	// Model records which model produced an assistant message.
	Model string `json:"model,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewAssistantMessage creates a finalized assistant message.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// NewAssistantMessageWithToolCalls creates an assistant message carrying
// tool calls. Content may be empty.
func NewAssistantMessageWithToolCalls(content string, calls []ToolCall) *Message {
	msg := NewMessage(RoleAssistant, content)
	msg.ToolCalls = calls
	return msg
}

// NewToolResultMessage creates a tool-result message linked to a call ID.
func NewToolResultMessage(toolCallID, content string) *Message {
	msg := NewMessage(RoleTool, content)
	msg.ToolCallID = toolCallID
	return msg
}

// HasToolCalls returns true if the message contains tool calls.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
