// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/chatmux/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// Error variables for common provider failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("provider API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInsufficientCredits indicates the account has insufficient balance.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnknownInstance indicates the provider instance ID is not registered.
	ErrUnknownInstance = errors.New("unknown provider instance")
)

// APIError represents an error response from a provider API.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (HTTP %d): %s", e.Status, e.Message)
}

// RateLimitError represents a rate limit response carrying the provider's
// suggested retry delay, when one was supplied.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// Is allows RateLimitError to be compared with ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatRequest describes one streaming chat completion request.
type ChatRequest struct {
	// Model is the provider model identifier.
	Model string

	// Messages is the ordered conversation history.
	Messages []*model.Message

	// Tools contains tool definitions offered to the model, if any.
	Tools []ToolDefinition

	// Temperature controls sampling (0 uses the provider default).
	Temperature float64

	// MaxTokens bounds the generated output (0 = provider default).
	MaxTokens int
}

// ToolDefinition describes one callable tool in the provider wire schema.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// =============================================================================
// STREAMING EVENTS
// =============================================================================

// EventType identifies the kind of a streaming event.
type EventType int

const (
	// EventToken carries a fragment of assistant content text.
	EventToken EventType = iota

	// EventReasoning carries a fragment of the model's reasoning channel.
	EventReasoning

	// EventToolCallDelta carries a fragment of a tool call, keyed by slot
	// index. Fragments with the same index concatenate their argument text.
	EventToolCallDelta

	// EventDone is the successful terminal event.
	EventDone

	// EventError is the failure terminal event.
	EventError
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventToken:
		return "token"
	case EventReasoning:
		return "reasoning"
	case EventToolCallDelta:
		return "tool_call_delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ToolCallDelta is one fragment of a streamed tool call. Index identifies a
// slot in the growing array of partial calls; ID and Name are only present
// on the first fragment for a slot.
type ToolCallDelta struct {
	Index        int
	ID           string
	Name         string
	ArgsFragment string
}

// DoneInfo carries the payload of a successful terminal event.
type DoneInfo struct {
	// FinishReason is the provider's finish reason ("stop", "tool_calls",
	// "length", ...).
	FinishReason string

	// Usage is the token accounting, when reported.
	Usage *model.Usage

	// Model echoes the model that actually served the request, when the
	// provider reports it.
	Model string

	// CostCents is the provider-reported cost when available. Negative
	// means not reported; the caller computes cost from pricing instead.
	CostCents float64

	// CostReported is true when CostCents came from the provider.
	CostReported bool
}

// Event is one element of the streaming pipeline's event sequence.
type Event struct {
	Type     EventType
	Text     string         // EventToken, EventReasoning
	ToolCall *ToolCallDelta // EventToolCallDelta
	Done     *DoneInfo      // EventDone
	Err      error          // EventError
}

// =============================================================================
// MODEL LISTING
// =============================================================================

// Pricing holds per-million-token pricing for a model. Zero values mean
// the provider did not publish pricing.
type Pricing struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// IsZero reports whether no pricing is available.
func (p Pricing) IsZero() bool {
	return p.InputPerMillion == 0 && p.OutputPerMillion == 0
}

// CostCents computes the cost in cents for the given usage.
func (p Pricing) CostCents(usage model.Usage) float64 {
	in := float64(usage.PromptTokens) * p.InputPerMillion / 1_000_000
	out := float64(usage.CompletionTokens) * p.OutputPerMillion / 1_000_000
	return (in + out) * 100
}

// ModelInfo describes one model offered by a provider instance.
type ModelInfo struct {
	ID            string
	Name          string
	ContextLength int
	Pricing       Pricing
}
