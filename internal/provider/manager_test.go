// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestManager_UnknownInstance(t *testing.T) {
	m := NewManager()

	if _, err := m.Client("missing"); !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("Client error = %v, want ErrUnknownInstance", err)
	}

	if _, err := m.Instance("missing"); !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("Instance error = %v, want ErrUnknownInstance", err)
	}
}

func TestManager_ClientCached(t *testing.T) {
	m := NewManager()
	m.Upsert(Instance{ID: "p1", BaseURL: "http://example.test/v1", APIKey: "k"})

	c1, err := m.Client("p1")
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}
	c2, _ := m.Client("p1")

	if c1 != c2 {
		t.Error("expected the same cached client")
	}
}

func TestManager_UpsertInvalidatesClient(t *testing.T) {
	m := NewManager()
	m.Upsert(Instance{ID: "p1", BaseURL: "http://example.test/v1", APIKey: "old"})

	c1, _ := m.Client("p1")

	m.Upsert(Instance{ID: "p1", BaseURL: "http://example.test/v1", APIKey: "new"})
	c2, _ := m.Client("p1")

	if c1 == c2 {
		t.Error("upsert should invalidate the cached client")
	}
}

func TestManager_ModelsCachedWithTTL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data":[{"id":"m1","name":"M1","context_length":100}]}`))
	}))
	defer srv.Close()

	m := NewManager()
	m.Upsert(Instance{ID: "p1", BaseURL: srv.URL, APIKey: "k", ModelTTL: time.Hour})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		models, err := m.Models(ctx, "p1")
		if err != nil {
			t.Fatalf("Models failed: %v", err)
		}
		if len(models) != 1 || models[0].ID != "m1" {
			t.Fatalf("models = %+v", models)
		}
	}

	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (cached)", hits.Load())
	}

	// Upsert invalidates the model cache too
	m.Upsert(Instance{ID: "p1", BaseURL: srv.URL, APIKey: "k2", ModelTTL: time.Hour})
	if _, err := m.Models(ctx, "p1"); err != nil {
		t.Fatalf("Models after upsert failed: %v", err)
	}

	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2 after invalidation", hits.Load())
	}
}

func TestManager_PricingFor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"id":"m1","name":"M1","context_length":100,
			 "pricing":{"prompt":"0.000002","completion":"0.000004"}}
		]}`))
	}))
	defer srv.Close()

	m := NewManager()
	m.Upsert(Instance{ID: "p1", BaseURL: srv.URL, APIKey: "k"})

	p := m.PricingFor(context.Background(), "p1", "m1")
	if p.InputPerMillion != 2.0 || p.OutputPerMillion != 4.0 {
		t.Errorf("pricing = %+v, want 2/4 per million", p)
	}

	if !m.PricingFor(context.Background(), "p1", "unknown").IsZero() {
		t.Error("unknown model should have zero pricing")
	}
}

// =============================================================================
// ASSEMBLER TESTS
// =============================================================================

func TestToolCallAssembler_Interleaved(t *testing.T) {
	asm := NewToolCallAssembler()

	asm.Add(&ToolCallDelta{Index: 0, ID: "call_a", Name: "read", ArgsFragment: `{"path`})
	asm.Add(&ToolCallDelta{Index: 1, ID: "call_b", Name: "list", ArgsFragment: `{"dir"`})
	asm.Add(&ToolCallDelta{Index: 0, ArgsFragment: `":"a.txt"}`})
	asm.Add(&ToolCallDelta{Index: 1, ArgsFragment: `:"/tmp"}`})

	calls := asm.Calls()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}

	if calls[0].ID != "call_a" || calls[0].Arguments != `{"path":"a.txt"}` {
		t.Errorf("calls[0] = %+v", calls[0])
	}

	if calls[1].ID != "call_b" || calls[1].Arguments != `{"dir":"/tmp"}` {
		t.Errorf("calls[1] = %+v", calls[1])
	}
}

func TestToolCallAssembler_EmptyArgsNormalized(t *testing.T) {
	asm := NewToolCallAssembler()
	asm.Add(&ToolCallDelta{Index: 0, ID: "call_a", Name: "ping"})

	calls := asm.Calls()
	if calls[0].Arguments != "{}" {
		t.Errorf("Arguments = %q, want '{}'", calls[0].Arguments)
	}
}

func TestToolCallAssembler_Reset(t *testing.T) {
	asm := NewToolCallAssembler()
	asm.Add(&ToolCallDelta{Index: 0, ID: "x", Name: "y"})
	asm.Reset()

	if asm.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", asm.Len())
	}

	if asm.Calls() != nil {
		t.Error("Calls after Reset should be nil")
	}
}
