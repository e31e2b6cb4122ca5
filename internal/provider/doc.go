// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the chat-completion provider collaborator.
//
// A provider exposes an OpenAI-style streaming chat completion endpoint and
// a model listing endpoint. The package contains:
//
//   - Client: the HTTP client for one provider endpoint. StreamChatCompletion
//     drives one generation and delivers typed events (token, reasoning,
//     tool-call fragment, done, error) on a bounded channel. Exactly one
//     terminal event is delivered per run, or none when the context is
//     cancelled before a terminal event arrives.
//   - ToolCallAssembler: reassembles tool-call fragments by slot index
//     across streaming deltas into complete model.ToolCall values.
//   - Manager: the provider-instance registry. Client handles are cached
//     per instance ID and invalidated when the instance configuration
//     changes, so edits never serve stale credentials. Model lists are
//     cached per instance with a TTL.
//
// Error mapping follows the HTTP status taxonomy: 401 auth, 402 billing,
// 404 model not found, 429 rate limited (with Retry-After when supplied),
// 5xx server fault. Classification into retry policy lives in the retry
// package; this package only preserves the information.
package provider
