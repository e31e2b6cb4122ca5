// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools implements tool registration and execution for
// tool-calling generations.
//
// A Tool couples a provider-visible definition (name, description, JSON
// Schema parameters) with a Handler. The Registry holds the available
// tools; the Executor runs a batch of model-requested calls concurrently
// and returns one tool-result message per call, in request order.
//
// Failures never abort the batch: an unknown tool, malformed arguments,
// or a handler error each produce a synthesized error result so the
// model can observe the failure and continue the conversation.
package tools
