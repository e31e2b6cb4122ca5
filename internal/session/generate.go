// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"log"

	"github.com/jeranaias/chatmux/internal/model"
	"github.com/jeranaias/chatmux/internal/provider"
	"github.com/jeranaias/chatmux/internal/retry"
	"github.com/jeranaias/chatmux/internal/tools"
)

// runGeneration drives one generation to completion: streaming attempts
// with retries, then tool execution round trips until the model stops
// calling tools or the turn budget runs out. genDone identifies this
// generation; the cleanup only touches session state it still owns, so
// a generation started right after a stop is never clobbered by the
// stopped goroutine winding down.
func (r *Registry) runGeneration(ctx context.Context, s *Session, genDone chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.genDone == genDone {
			s.generating = false
			s.genCancel = nil
			s.genDone = nil
			s.retryStatus = nil
			s.broadcastLocked()
		}
		s.mu.Unlock()
	}()

	s.mu.Lock()
	convID := s.conv.ID
	provID := s.conv.ProviderInstanceID
	modelID := s.conv.Model
	s.mu.Unlock()

	client, err := r.providers.Client(provID)
	if err != nil {
		r.finishFailed(s, err)
		return
	}
	pricing := r.providers.PricingFor(ctx, provID, modelID)

	inv := tools.Invocation{
		ConversationID:     convID,
		ProviderInstanceID: provID,
		Model:              modelID,
	}
	defs := r.toolReg.Definitions()

	for turn := 0; turn < r.maxToolTurns; turn++ {
		asm := provider.NewToolCallAssembler()
		var done *provider.DoneInfo

		ctrl := &retry.Controller{
			Policy: r.retryPolicy,
			OnRetry: func(n retry.Notification) {
				// The failed attempt's partial output is discarded; the
				// retry starts clean.
				asm.Reset()
				done = nil
				s.resetPartial(n)
			},
		}

		err := ctrl.Run(ctx, func(ctx context.Context) error {
			s.clearRetry()

			events, err := client.StreamChatCompletion(ctx, provider.ChatRequest{
				Model:    modelID,
				Messages: r.requestMessages(s),
				Tools:    defs,
			})
			if err != nil {
				return err
			}

			for ev := range events {
				switch ev.Type {
				case provider.EventToken:
					s.addPartial(ev.Text, "")
				case provider.EventReasoning:
					s.addPartial("", ev.Text)
				case provider.EventToolCallDelta:
					asm.Add(ev.ToolCall)
				case provider.EventDone:
					done = ev.Done
					return nil
				case provider.EventError:
					return ev.Err
				}
			}

			// Channel closed without a terminal event: cancelled.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream ended without a terminal event")
		})
		if err != nil {
			r.finishFailed(s, err)
			return
		}

		msg, calls, stopped := r.finalizeTurn(s, modelID, asm, done, pricing)
		if stopped {
			return
		}

		if err := r.store.Append(context.Background(), convID, msg); err != nil {
			log.Printf("session %s: assistant persist failed: %v", convID, err)
		}
		s.appendMessages(msg)

		if len(calls) == 0 {
			return
		}

		results, err := r.executor.ExecuteCalls(ctx, inv, calls)
		if err != nil {
			// Cancelled mid-execution; the assistant turn is already
			// persisted, the results are lost.
			return
		}
		if err := r.store.Append(context.Background(), convID, results...); err != nil {
			log.Printf("session %s: tool results persist failed: %v", convID, err)
		}
		s.appendMessages(results...)
	}

	log.Printf("session %s: tool turn budget exhausted", convID)
}

// requestMessages snapshots the message log for a provider request,
// prepending the system prompt when configured.
func (r *Registry) requestMessages(s *Session) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]*model.Message, 0, len(s.conv.Messages)+1)
	if r.systemPrompt != "" {
		msgs = append(msgs, model.NewSystemMessage(r.systemPrompt))
	}
	return append(msgs, s.conv.Messages...)
}

// finalizeTurn converts the accumulated stream state into a persisted
// assistant message. Returns stopped=true when StopGeneration already
// claimed the partial output.
func (r *Registry) finalizeTurn(s *Session, modelID string, asm *provider.ToolCallAssembler, done *provider.DoneInfo, pricing provider.Pricing) (*model.Message, []model.ToolCall, bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, nil, true
	}
	text, reasoning := s.takePartialLocked()
	s.mu.Unlock()

	calls := asm.Calls()
	var msg *model.Message
	if len(calls) > 0 {
		msg = model.NewAssistantMessageWithToolCalls(text, calls)
	} else {
		msg = model.NewAssistantMessage(text)
	}
	msg.Reasoning = reasoning
	msg.Model = modelID

	if done != nil {
		if done.Model != "" {
			msg.Model = done.Model
		}
		if done.Usage != nil {
			msg.Usage = done.Usage
			if done.CostReported {
				msg.CostCents = done.CostCents
			} else {
				msg.CostCents = pricing.CostCents(*done.Usage)
			}
		}
	}
	return msg, calls, false
}

// finishFailed records the outcome of a generation that did not complete.
// A user stop was already persisted by StopGeneration; cancellation from
// teardown persists the partial as interrupted; any other failure
// discards the partial and surfaces a classified error message.
func (r *Registry) finishFailed(s *Session, err error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}

	cat := retry.Classify(err)
	if cat == retry.CategoryCancelled {
		text, reasoning := s.takePartialLocked()
		var msg *model.Message
		if text != "" || reasoning != "" {
			msg = model.NewAssistantMessage(text + stopMarker)
			msg.Reasoning = reasoning
			msg.Model = s.conv.Model
			s.conv.AddMessage(msg)
		}
		convID := s.conv.ID
		s.broadcastLocked()
		s.mu.Unlock()

		if msg != nil {
			if err := r.store.Append(context.Background(), convID, msg); err != nil {
				log.Printf("session %s: interrupted partial persist failed: %v", convID, err)
			}
		}
		return
	}

	s.takePartialLocked()
	s.lastError = cat.Message()
	convID := s.conv.ID
	s.broadcastLocked()
	s.mu.Unlock()

	log.Printf("session %s: generation failed (%s): %v", convID, cat, err)
}
