// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the session registry,
// the provider clients, and the conversation store:
//
//   - Conversation: ordered, append-only message log with provider/model
//     selection and aggregate usage counters
//   - Message: single immutable message with role, content, timestamp, and
//     optional tool calls or tool-result linkage
//   - ToolCall: a structured request from the model to invoke a named tool
//   - Usage: prompt/completion token counts reported by a provider
//
// Messages are immutable once appended to a conversation; an assistant
// message that is still streaming exists only in transient session state
// until it is finalized and appended.
package model
