// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/chatmux/internal/model"
)

// Execution limits.
const (
	// DefaultCallTimeout bounds a single tool call.
	DefaultCallTimeout = 30 * time.Second

	// DefaultMaxConcurrent bounds parallel tool execution.
	DefaultMaxConcurrent = 4

	// MaxResultSize truncates oversized tool output before it is sent
	// back to the model.
	MaxResultSize = 64 * 1024
)

// Executor runs batches of tool calls against a registry.
type Executor struct {
	registry      *Registry
	callTimeout   time.Duration
	maxConcurrent int
}

// NewExecutor creates an executor with default limits.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry:      registry,
		callTimeout:   DefaultCallTimeout,
		maxConcurrent: DefaultMaxConcurrent,
	}
}

// WithCallTimeout overrides the per-call timeout.
func (e *Executor) WithCallTimeout(d time.Duration) *Executor {
	if d > 0 {
		e.callTimeout = d
	}
	return e
}

// ExecuteCalls runs the given tool calls and returns one tool-result
// message per call, in the same order as the calls. Calls run
// concurrently up to the executor's limit; a failing call yields an
// error-text result rather than aborting the batch. The error return is
// reserved for context cancellation.
func (e *Executor) ExecuteCalls(ctx context.Context, inv Invocation, calls []model.ToolCall) ([]*model.Message, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]*model.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = e.executeOne(gctx, inv, call)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// executeOne runs a single call, synthesizing an error result on any
// failure.
func (e *Executor) executeOne(ctx context.Context, inv Invocation, call model.ToolCall) *model.Message {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		log.Printf("tool call for unknown tool %q", call.Name)
		return errorResult(call, fmt.Sprintf("unknown tool: %s", call.Name))
	}

	args := make(map[string]any)
	raw := strings.TrimSpace(call.Arguments)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			log.Printf("tool %q: malformed arguments: %v", call.Name, err)
			return errorResult(call, fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	output, err := tool.Handler(callCtx, inv, args)
	if err != nil {
		log.Printf("tool %q failed after %s: %v", call.Name, time.Since(start).Round(time.Millisecond), err)
		return errorResult(call, fmt.Sprintf("tool execution failed: %v", err))
	}

	if len(output) > MaxResultSize {
		output = output[:MaxResultSize] + "\n[output truncated]"
	}
	return model.NewToolResultMessage(call.ID, output)
}

// errorResult synthesizes a tool-result message describing a failure.
func errorResult(call model.ToolCall, text string) *model.Message {
	return model.NewToolResultMessage(call.ID, "Error: "+text)
}
