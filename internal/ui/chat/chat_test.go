// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/chatmux/internal/model"
	"github.com/jeranaias/chatmux/internal/session"
	"github.com/jeranaias/chatmux/internal/ui/styles"
)

func testSnapshot(msgs ...*model.Message) session.Snapshot {
	return session.Snapshot{
		ConversationID: "c1",
		Title:          "test",
		Model:          "test/model",
		Messages:       msgs,
	}
}

func TestRenderTranscript_Roles(t *testing.T) {
	asst := model.NewAssistantMessage("The answer is 42.")
	asst.Reasoning = "thinking about it"

	snap := testSnapshot(
		model.NewUserMessage("What is the answer?"),
		asst,
		model.NewToolResultMessage("call_1", "tool output here"),
	)

	out := renderTranscript(snap, styles.New(), nil)

	for _, want := range []string{"You", "What is the answer?", "Assistant", "The answer is 42.", "thinking about it", "tool output here"} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q", want)
		}
	}
}

func TestRenderTranscript_SystemHidden(t *testing.T) {
	snap := testSnapshot(model.NewSystemMessage("secret instructions"))
	out := renderTranscript(snap, styles.New(), nil)

	if strings.Contains(out, "secret instructions") {
		t.Error("system prompt should not appear in the transcript")
	}
}

func TestRenderTranscript_ToolCalls(t *testing.T) {
	asst := model.NewAssistantMessageWithToolCalls("", []model.ToolCall{
		{ID: "c1", Name: "search", Arguments: `{"q":"go"}`},
	})
	out := renderTranscript(testSnapshot(asst), styles.New(), nil)

	if !strings.Contains(out, "search") {
		t.Errorf("transcript missing tool call name: %q", out)
	}
}

func TestRenderTranscript_Partial(t *testing.T) {
	snap := testSnapshot(model.NewUserMessage("go"))
	snap.Generating = true
	snap.PartialText = "streaming so f"

	out := renderTranscript(snap, styles.New(), nil)
	if !strings.Contains(out, "streaming so f") {
		t.Error("transcript missing partial text")
	}
}

func TestRenderTranscript_PartialHiddenWhenIdle(t *testing.T) {
	snap := testSnapshot(model.NewUserMessage("go"))
	snap.PartialText = "leftover"

	out := renderTranscript(snap, styles.New(), nil)
	if strings.Contains(out, "leftover") {
		t.Error("partial should not render when not generating")
	}
}

func TestRetryLine(t *testing.T) {
	got := retryLine(session.RetryStatus{
		Attempt: 2,
		Max:     3,
		Delay:   1500 * time.Millisecond,
		Message: "Rate limited by the provider.",
	})

	if !strings.Contains(got, "attempt 2/3") {
		t.Errorf("retryLine = %q, want attempt 2/3", got)
	}
	if !strings.Contains(got, "1.5s") {
		t.Errorf("retryLine = %q, want delay", got)
	}
}

func TestCostLine(t *testing.T) {
	if got := costLine(1.5, 1000); got != "1.50¢ / 1000 tok" {
		t.Errorf("costLine = %q", got)
	}
	if got := costLine(250, 50000); got != "$2.50 / 50000 tok" {
		t.Errorf("costLine = %q", got)
	}
}

func TestCompactArgs(t *testing.T) {
	if got := compactArgs("{}"); got != "" {
		t.Errorf("compactArgs({}) = %q, want empty", got)
	}
	long := `{"` + strings.Repeat("k", 100) + `":1}`
	if got := compactArgs(long); len([]rune(got)) > 60 {
		t.Errorf("compactArgs did not truncate: %d runes", len([]rune(got)))
	}
}
