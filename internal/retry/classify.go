// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jeranaias/chatmux/internal/provider"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// Category identifies the failure class of a generation error.
type Category int

const (
	// CategoryUnknown covers errors no other category claims.
	CategoryUnknown Category = iota

	// CategoryAuth covers invalid or expired credentials.
	CategoryAuth

	// CategoryBilling covers insufficient account balance.
	CategoryBilling

	// CategoryNotFound covers unknown models or endpoints.
	CategoryNotFound

	// CategoryRateLimit covers request throttling.
	CategoryRateLimit

	// CategoryServer covers provider-side 5xx faults.
	CategoryServer

	// CategoryNetwork covers connection-level failures.
	CategoryNetwork

	// CategoryTimeout covers deadline and I/O timeout failures.
	CategoryTimeout

	// CategoryCancelled covers local context cancellation.
	CategoryCancelled
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryAuth:
		return "auth"
	case CategoryBilling:
		return "billing"
	case CategoryNotFound:
		return "not_found"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryServer:
		return "server"
	case CategoryNetwork:
		return "network"
	case CategoryTimeout:
		return "timeout"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors in this category are transient and
// worth retrying. Unknown errors are not retried.
func (c Category) Retryable() bool {
	switch c {
	case CategoryRateLimit, CategoryServer, CategoryNetwork, CategoryTimeout:
		return true
	default:
		return false
	}
}

// Message returns a short human-readable description for display.
func (c Category) Message() string {
	switch c {
	case CategoryAuth:
		return "Authentication failed. Check your API key."
	case CategoryBilling:
		return "Insufficient credits. Check your account balance."
	case CategoryNotFound:
		return "Model not found. Check the model identifier."
	case CategoryRateLimit:
		return "Rate limited by the provider."
	case CategoryServer:
		return "Provider server error."
	case CategoryNetwork:
		return "Network error. Check your connection."
	case CategoryTimeout:
		return "Request timed out."
	case CategoryCancelled:
		return "Cancelled."
	default:
		return "Unexpected error."
	}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify maps an error onto its failure category. Typed errors from the
// provider package are matched first; network and timeout detection falls
// back to the net error interfaces and, last, to message sniffing for
// wrapped transport errors.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, provider.ErrAuthFailed), errors.Is(err, provider.ErrNotConfigured):
		return CategoryAuth
	case errors.Is(err, provider.ErrInsufficientCredits):
		return CategoryBilling
	case errors.Is(err, provider.ErrModelNotFound), errors.Is(err, provider.ErrUnknownInstance):
		return CategoryNotFound
	case errors.Is(err, provider.ErrRateLimited):
		return CategoryRateLimit
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 408:
			return CategoryTimeout
		case apiErr.Status >= 500:
			return CategoryServer
		default:
			return CategoryUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return CategoryTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "unexpected eof"):
		return CategoryNetwork
	}

	return CategoryUnknown
}

// SuggestedDelay extracts a provider-suggested retry delay from the error,
// if one was supplied (Retry-After on a rate limit response). Returns 0
// when no suggestion exists.
func SuggestedDelay(err error) time.Duration {
	var rle *provider.RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}
