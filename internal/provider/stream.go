// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// =============================================================================
// SSE READER
// =============================================================================

// maxLineSize bounds a single SSE line (1MB).
const maxLineSize = 1024 * 1024

// SSEReader reads Server-Sent Events from a stream.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader creates a reader for server-sent event data.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &SSEReader{scanner: scanner}
}

// Next returns the data payload of the next SSE event, or io.EOF when the
// stream ends. Comment lines and other fields are skipped.
func (r *SSEReader) Next() (string, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return data, nil
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			return data, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// =============================================================================
// WIRE CHUNKS
// =============================================================================

// streamChunk is one parsed SSE chunk from /chat/completions.
type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int      `json:"prompt_tokens"`
		CompletionTokens int      `json:"completion_tokens"`
		Cost             *float64 `json:"cost"`
	} `json:"usage"`
}

// =============================================================================
// STREAMING CHAT COMPLETION
// =============================================================================

// StreamChatCompletion starts one streaming generation and returns a channel
// of events. The producer goroutine owns the channel and closes it when the
// run ends.
//
// Event contract: the sequence contains any number of token, reasoning and
// tool-call-delta events followed by exactly one terminal event (done or
// error). When ctx is cancelled before a terminal event, the channel closes
// with no terminal event at all; cancellation is not an error.
func (c *Client) StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan Event, error) {
	resp, err := c.sendStreamRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 64)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		// emit delivers ev unless the context is gone; returns false
		// when the consumer went away.
		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := NewSSEReader(resp.Body)
		done := DoneInfo{CostCents: -1}
		sawFinish := false

		for {
			if ctx.Err() != nil {
				return
			}

			data, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				emit(Event{Type: EventError, Err: fmt.Errorf("stream read failed: %w", err)})
				return
			}

			if data == "[DONE]" {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Skip malformed chunks rather than abort the stream.
				continue
			}

			if chunk.Model != "" {
				done.Model = chunk.Model
			}
			if chunk.Usage != nil {
				done.Usage = usageFromWire(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
				if chunk.Usage.Cost != nil {
					// Provider-reported cost arrives in dollars.
					done.CostCents = *chunk.Usage.Cost * 100
					done.CostReported = true
				}
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !emit(Event{Type: EventToken, Text: choice.Delta.Content}) {
						return
					}
				}
				if choice.Delta.Reasoning != "" {
					if !emit(Event{Type: EventReasoning, Text: choice.Delta.Reasoning}) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					delta := &ToolCallDelta{
						Index:        tc.Index,
						ID:           tc.ID,
						Name:         tc.Function.Name,
						ArgsFragment: tc.Function.Arguments,
					}
					if !emit(Event{Type: EventToolCallDelta, ToolCall: delta}) {
						return
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					done.FinishReason = *choice.FinishReason
					sawFinish = true
				}
			}
		}

		if ctx.Err() != nil {
			return
		}

		if !sawFinish && done.FinishReason == "" {
			done.FinishReason = "stop"
		}
		emit(Event{Type: EventDone, Done: &done})
	}()

	return events, nil
}
