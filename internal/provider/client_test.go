// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeranaias/chatmux/internal/model"
)

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func errorForStatus(t *testing.T, status int, body string, header http.Header) error {
	t.Helper()
	resp := &http.Response{StatusCode: status, Header: header}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	return handleErrorResponse(resp, []byte(body))
}

func TestHandleErrorResponse_Taxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", 401, ErrAuthFailed},
		{"payment required", 402, ErrInsufficientCredits},
		{"not found", 404, ErrModelNotFound},
		{"rate limited", 429, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errorForStatus(t, tt.status, `{"error":{"message":"nope"}}`, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("status %d error = %v, want %v", tt.status, err, tt.want)
			}
		})
	}
}

func TestHandleErrorResponse_ServerError(t *testing.T) {
	err := errorForStatus(t, 500, `{"error":{"code":"overloaded","message":"busy"}}`, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}

	if apiErr.Status != 500 {
		t.Errorf("Status = %d, want 500", apiErr.Status)
	}

	if apiErr.Code != "overloaded" {
		t.Errorf("Code = %q, want 'overloaded'", apiErr.Code)
	}
}

func TestHandleErrorResponse_RetryAfterSeconds(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "7")

	err := errorForStatus(t, 429, "", header)

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error = %T, want *RateLimitError", err)
	}

	if rle.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rle.RetryAfter)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("5"); got != 5*time.Second {
		t.Errorf("parseRetryAfter(5) = %v, want 5s", got)
	}

	if got := parseRetryAfter("-3"); got != 0 {
		t.Errorf("negative seconds = %v, want 0", got)
	}

	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("garbage = %v, want 0", got)
	}

	// HTTP date in the future resolves to a positive duration
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > 10*time.Second {
		t.Errorf("future date = %v, want (0, 10s]", got)
	}

	// HTTP date in the past clamps to zero
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("past date = %v, want 0", got)
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

// sseServer returns a test server that writes the given SSE payload.
func sseServer(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(payload))
	}))
}

func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestStreamChatCompletion_Tokens(t *testing.T) {
	payload := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2}}\n\n" +
		"data: [DONE]\n\n"

	srv := sseServer(t, payload)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	ch, err := client.StreamChatCompletion(context.Background(), ChatRequest{
		Model:    "test/model",
		Messages: []*model.Message{model.NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("StreamChatCompletion failed: %v", err)
	}

	events := collectEvents(t, ch)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	if events[0].Type != EventToken || events[0].Text != "Hel" {
		t.Errorf("event[0] = %v %q, want token 'Hel'", events[0].Type, events[0].Text)
	}

	if events[1].Type != EventToken || events[1].Text != "lo" {
		t.Errorf("event[1] = %v %q, want token 'lo'", events[1].Type, events[1].Text)
	}

	last := events[len(events)-1]
	if last.Type != EventDone {
		t.Fatalf("last event = %v, want done", last.Type)
	}

	if last.Done.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want 'stop'", last.Done.FinishReason)
	}

	if last.Done.Usage == nil || last.Done.Usage.Total() != 5 {
		t.Errorf("Usage = %+v, want total 5", last.Done.Usage)
	}
}

func TestStreamChatCompletion_ExactlyOneTerminal(t *testing.T) {
	// EOF without [DONE] still yields a single done event.
	payload := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"

	srv := sseServer(t, payload)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	ch, err := client.StreamChatCompletion(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("StreamChatCompletion failed: %v", err)
	}

	events := collectEvents(t, ch)

	terminals := 0
	for _, ev := range events {
		if ev.Type == EventDone || ev.Type == EventError {
			terminals++
		}
	}

	if terminals != 1 {
		t.Errorf("terminal events = %d, want 1", terminals)
	}

	if events[len(events)-1].Type != EventDone {
		t.Errorf("last event = %v, want done", events[len(events)-1].Type)
	}
}

func TestStreamChatCompletion_ToolCallDeltas(t *testing.T) {
	payload := "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"name\":\"search\",\"arguments\":\"{\\\"q\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"\\\":1}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n" +
		"data: [DONE]\n\n"

	srv := sseServer(t, payload)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	ch, err := client.StreamChatCompletion(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("StreamChatCompletion failed: %v", err)
	}

	asm := NewToolCallAssembler()
	var finish string
	for ev := range ch {
		switch ev.Type {
		case EventToolCallDelta:
			asm.Add(ev.ToolCall)
		case EventDone:
			finish = ev.Done.FinishReason
		}
	}

	if finish != "tool_calls" {
		t.Errorf("FinishReason = %q, want 'tool_calls'", finish)
	}

	calls := asm.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}

	if calls[0].ID != "call_1" || calls[0].Name != "search" {
		t.Errorf("call = %+v, want id call_1 name search", calls[0])
	}

	if calls[0].Arguments != `{"q":1}` {
		t.Errorf("Arguments = %q, want '{\"q\":1}'", calls[0].Arguments)
	}
}

func TestStreamChatCompletion_CancelNoTerminal(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(started)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(srv.URL, "test-key")
	ch, err := client.StreamChatCompletion(ctx, ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("StreamChatCompletion failed: %v", err)
	}

	<-started
	cancel()

	events := collectEvents(t, ch)
	for _, ev := range events {
		if ev.Type == EventDone || ev.Type == EventError {
			t.Errorf("got terminal event %v after cancellation", ev.Type)
		}
	}
}

func TestStreamChatCompletion_NotConfigured(t *testing.T) {
	client := NewClient("http://localhost:0", "")
	_, err := client.StreamChatCompletion(context.Background(), ChatRequest{Model: "m"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestStreamChatCompletion_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	_, err := client.StreamChatCompletion(context.Background(), ChatRequest{Model: "m"})
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}
}

// =============================================================================
// MODEL LISTING TESTS
// =============================================================================

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"data":[
			{"id":"test/alpha","name":"Alpha","context_length":8192,
			 "pricing":{"prompt":"0.000001","completion":"0.000002"}},
			{"id":"test/beta","name":"Beta","context_length":4096}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}

	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}

	alpha := models[0]
	if alpha.ID != "test/alpha" || alpha.ContextLength != 8192 {
		t.Errorf("alpha = %+v", alpha)
	}

	if alpha.Pricing.InputPerMillion != 1.0 {
		t.Errorf("InputPerMillion = %v, want 1.0", alpha.Pricing.InputPerMillion)
	}

	if alpha.Pricing.OutputPerMillion != 2.0 {
		t.Errorf("OutputPerMillion = %v, want 2.0", alpha.Pricing.OutputPerMillion)
	}

	if !models[1].Pricing.IsZero() {
		t.Errorf("beta pricing = %+v, want zero", models[1].Pricing)
	}
}

// =============================================================================
// PRICING TESTS
// =============================================================================

func TestPricing_CostCents(t *testing.T) {
	p := Pricing{InputPerMillion: 3.0, OutputPerMillion: 15.0}

	// 1M in + 1M out = $3 + $15 = 1800 cents
	got := p.CostCents(model.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	if got != 1800 {
		t.Errorf("CostCents = %v, want 1800", got)
	}

	// 1000 in + 500 out = $0.003 + $0.0075 = 1.05 cents
	got = p.CostCents(model.Usage{PromptTokens: 1000, CompletionTokens: 500})
	if got < 1.0499 || got > 1.0501 {
		t.Errorf("CostCents = %v, want 1.05", got)
	}
}
