// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/chatmux/internal/model"
	"github.com/jeranaias/chatmux/internal/session"
	"github.com/jeranaias/chatmux/internal/ui/styles"
	"github.com/jeranaias/chatmux/internal/util"
)

// toolResultPreview bounds tool output shown inline in the transcript.
const toolResultPreview = 200

// renderTranscript renders the full conversation plus any in-flight
// partial output. A nil renderer falls back to plain text, which keeps
// the function testable without a terminal.
func renderTranscript(snap session.Snapshot, theme *styles.Theme, renderer *glamour.TermRenderer) string {
	var b strings.Builder

	for _, msg := range snap.Messages {
		renderMessage(&b, msg, theme, renderer)
	}

	if snap.Generating && (snap.PartialText != "" || snap.PartialReasoning != "") {
		b.WriteString(theme.AssistantLabel.Render("Assistant"))
		b.WriteString("\n")
		if snap.PartialReasoning != "" {
			b.WriteString(theme.Reasoning.Render(snap.PartialReasoning))
			b.WriteString("\n")
		}
		b.WriteString(snap.PartialText)
		b.WriteString("\n")
	}

	return b.String()
}

func renderMessage(b *strings.Builder, msg *model.Message, theme *styles.Theme, renderer *glamour.TermRenderer) {
	switch msg.Role {
	case model.RoleUser:
		b.WriteString(theme.UserLabel.Render("You"))
		b.WriteString("\n")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")

	case model.RoleAssistant:
		b.WriteString(theme.AssistantLabel.Render("Assistant"))
		b.WriteString("\n")
		if msg.Reasoning != "" {
			b.WriteString(theme.Reasoning.Render(msg.Reasoning))
			b.WriteString("\n")
		}
		if msg.Content != "" {
			b.WriteString(renderMarkdown(msg.Content, renderer))
			b.WriteString("\n")
		}
		for _, call := range msg.ToolCalls {
			b.WriteString(theme.ToolLabel.Render(fmt.Sprintf("→ %s(%s)", call.Name, compactArgs(call.Arguments))))
			b.WriteString("\n")
		}
		b.WriteString("\n")

	case model.RoleTool:
		b.WriteString(theme.ToolLabel.Render("Tool"))
		b.WriteString(" ")
		b.WriteString(util.TruncateRunes(strings.TrimSpace(msg.Content), toolResultPreview))
		b.WriteString("\n\n")

	case model.RoleSystem:
		// System prompts are not part of the visible transcript.
	}
}

// renderMarkdown renders assistant content through glamour, falling back
// to the raw text when rendering is unavailable.
func renderMarkdown(content string, renderer *glamour.TermRenderer) string {
	if renderer == nil {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// compactArgs shortens a JSON argument payload for display.
func compactArgs(args string) string {
	args = strings.TrimSpace(args)
	if args == "{}" {
		return ""
	}
	return util.TruncateRunes(args, 60)
}
