// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/chatmux/internal/model"
)

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echoes its input",
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (string, error) {
			if v, ok := args["text"].(string); ok {
				return v, nil
			}
			return "", nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := r.Register(echoTool("echo")); err == nil {
		t.Error("duplicate registration should fail")
	}

	if err := r.Register(Tool{Name: "", Handler: nil}); err == nil {
		t.Error("empty name should fail")
	}

	if _, ok := r.Get("echo"); !ok {
		t.Error("Get should find registered tool")
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get should not find unregistered tool")
	}
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool("zeta"))
	_ = r.Register(echoTool("alpha"))

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}

	if defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("definitions not sorted: %s, %s", defs[0].Name, defs[1].Name)
	}

	// nil parameters are normalized to an empty object schema
	if defs[0].Parameters["type"] != "object" {
		t.Errorf("Parameters = %v, want object schema", defs[0].Parameters)
	}
}

// =============================================================================
// EXECUTOR TESTS
// =============================================================================

func TestExecutor_ResultsInCallOrder(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Tool{
		Name:        "slow",
		Description: "sleeps then echoes",
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return "slow done", nil
		},
	})
	_ = r.Register(Tool{
		Name:        "fast",
		Description: "echoes immediately",
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (string, error) {
			return "fast done", nil
		},
	})

	e := NewExecutor(r)
	calls := []model.ToolCall{
		{ID: "call_1", Name: "slow", Arguments: "{}"},
		{ID: "call_2", Name: "fast", Arguments: "{}"},
	}

	results, err := e.ExecuteCalls(context.Background(), Invocation{}, calls)
	if err != nil {
		t.Fatalf("ExecuteCalls failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	// Order follows the calls, not completion time.
	if results[0].ToolCallID != "call_1" || results[0].Content != "slow done" {
		t.Errorf("results[0] = %q %q", results[0].ToolCallID, results[0].Content)
	}

	if results[1].ToolCallID != "call_2" || results[1].Content != "fast done" {
		t.Errorf("results[1] = %q %q", results[1].ToolCallID, results[1].Content)
	}

	for _, res := range results {
		if res.Role != model.RoleTool {
			t.Errorf("result role = %q, want tool", res.Role)
		}
	}
}

func TestExecutor_RunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	r := NewRegistry()
	_ = r.Register(Tool{
		Name:        "busy",
		Description: "tracks concurrency",
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (string, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			inFlight.Add(-1)
			return "ok", nil
		},
	})

	e := NewExecutor(r)
	calls := []model.ToolCall{
		{ID: "c1", Name: "busy"},
		{ID: "c2", Name: "busy"},
		{ID: "c3", Name: "busy"},
	}

	if _, err := e.ExecuteCalls(context.Background(), Invocation{}, calls); err != nil {
		t.Fatalf("ExecuteCalls failed: %v", err)
	}

	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want >= 2", peak.Load())
	}
}

func TestExecutor_UnknownToolSynthesizesError(t *testing.T) {
	e := NewExecutor(NewRegistry())

	results, err := e.ExecuteCalls(context.Background(), Invocation{},
		[]model.ToolCall{{ID: "c1", Name: "nonexistent", Arguments: "{}"}})
	if err != nil {
		t.Fatalf("ExecuteCalls failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	if !strings.Contains(results[0].Content, "unknown tool") {
		t.Errorf("Content = %q, want unknown tool error", results[0].Content)
	}

	if results[0].ToolCallID != "c1" {
		t.Errorf("ToolCallID = %q, want c1", results[0].ToolCallID)
	}
}

func TestExecutor_MalformedArgsSynthesizesError(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool("echo"))
	e := NewExecutor(r)

	results, err := e.ExecuteCalls(context.Background(), Invocation{},
		[]model.ToolCall{{ID: "c1", Name: "echo", Arguments: "{not json"}})
	if err != nil {
		t.Fatalf("ExecuteCalls failed: %v", err)
	}

	if !strings.Contains(results[0].Content, "invalid arguments") {
		t.Errorf("Content = %q, want invalid arguments error", results[0].Content)
	}
}

func TestExecutor_HandlerErrorSynthesizesError(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Tool{
		Name:        "broken",
		Description: "always fails",
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (string, error) {
			return "", errors.New("disk on fire")
		},
	})
	e := NewExecutor(r)

	results, err := e.ExecuteCalls(context.Background(), Invocation{},
		[]model.ToolCall{{ID: "c1", Name: "broken", Arguments: "{}"}})
	if err != nil {
		t.Fatalf("ExecuteCalls failed: %v", err)
	}

	if !strings.Contains(results[0].Content, "disk on fire") {
		t.Errorf("Content = %q, want handler error text", results[0].Content)
	}
}

func TestExecutor_EmptyBatch(t *testing.T) {
	e := NewExecutor(NewRegistry())
	results, err := e.ExecuteCalls(context.Background(), Invocation{}, nil)
	if err != nil {
		t.Fatalf("ExecuteCalls failed: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

// =============================================================================
// BUILTIN TESTS
// =============================================================================

func TestBuiltins_ReadFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "note.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	if err := RegisterBuiltins(r, root); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}

	tool, ok := r.Get("read_file")
	if !ok {
		t.Fatal("read_file not registered")
	}

	out, err := tool.Handler(context.Background(), Invocation{}, map[string]any{"path": "note.txt"})
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if out != "hello" {
		t.Errorf("output = %q, want 'hello'", out)
	}
}

func TestBuiltins_PathEscapeRejected(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	tool, _ := r.Get("read_file")

	for _, path := range []string{"../etc/passwd", "/etc/passwd", "a/../../x"} {
		if _, err := tool.Handler(context.Background(), Invocation{}, map[string]any{"path": path}); err == nil {
			t.Errorf("path %q should be rejected", path)
		}
	}
}

func TestBuiltins_ListDir(t *testing.T) {
	root := t.TempDir()
	_ = os.WriteFile(filepath.Join(root, "b.txt"), nil, 0644)
	_ = os.Mkdir(filepath.Join(root, "a"), 0755)

	r := NewRegistry()
	if err := RegisterBuiltins(r, root); err != nil {
		t.Fatal(err)
	}
	tool, _ := r.Get("list_dir")

	out, err := tool.Handler(context.Background(), Invocation{}, map[string]any{})
	if err != nil {
		t.Fatalf("list_dir failed: %v", err)
	}
	if out != "a/\nb.txt" {
		t.Errorf("output = %q, want 'a/\\nb.txt'", out)
	}
}
