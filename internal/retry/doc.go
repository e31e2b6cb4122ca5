// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry classifies generation failures and drives automatic
// retries with exponential backoff.
//
// Classify maps any error from a streaming run onto a small category
// taxonomy (auth, billing, not found, rate limit, server, network,
// timeout, cancelled, unknown). Only transient categories (rate limit,
// server, network, timeout) are retried; everything else surfaces
// immediately.
//
// Policy computes backoff delays. A provider-suggested delay (Retry-After)
// takes precedence, clamped to the maximum; otherwise the delay grows
// exponentially from the base with symmetric jitter.
//
// Controller runs an attempt function until it succeeds, fails terminally,
// exhausts its retry budget, or the context is cancelled. The backoff
// sleep aborts promptly on cancellation.
package retry
