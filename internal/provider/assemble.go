// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"sort"
	"strings"

	"github.com/jeranaias/chatmux/internal/model"
)

// =============================================================================
// TOOL CALL ASSEMBLY
// =============================================================================

// ToolCallAssembler reassembles streamed tool-call fragments into complete
// tool calls. Fragments are keyed by slot index: the first fragment for a
// slot carries the call ID and function name, later fragments append
// argument text. Not safe for concurrent use.
type ToolCallAssembler struct {
	slots map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// NewToolCallAssembler creates an empty assembler.
func NewToolCallAssembler() *ToolCallAssembler {
	return &ToolCallAssembler{slots: make(map[int]*partialCall)}
}

// Add incorporates one fragment.
func (a *ToolCallAssembler) Add(delta *ToolCallDelta) {
	if delta == nil {
		return
	}
	slot, ok := a.slots[delta.Index]
	if !ok {
		slot = &partialCall{}
		a.slots[delta.Index] = slot
	}
	if delta.ID != "" {
		slot.id = delta.ID
	}
	if delta.Name != "" {
		slot.name = delta.Name
	}
	slot.args.WriteString(delta.ArgsFragment)
}

// Len returns the number of tool calls started so far.
func (a *ToolCallAssembler) Len() int {
	return len(a.slots)
}

// Calls returns the assembled tool calls in slot-index order. Empty
// argument strings are normalized to "{}" so downstream decoding always
// sees a JSON object.
func (a *ToolCallAssembler) Calls() []model.ToolCall {
	if len(a.slots) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(a.slots))
	for i := range a.slots {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]model.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		slot := a.slots[i]
		args := slot.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		calls = append(calls, model.ToolCall{
			ID:        slot.id,
			Name:      slot.name,
			Arguments: args,
		})
	}
	return calls
}

// Reset discards all accumulated fragments.
func (a *ToolCallAssembler) Reset() {
	a.slots = make(map[int]*partialCall)
}
