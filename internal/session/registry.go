// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/chatmux/internal/model"
	"github.com/jeranaias/chatmux/internal/provider"
	"github.com/jeranaias/chatmux/internal/retry"
	"github.com/jeranaias/chatmux/internal/store"
	"github.com/jeranaias/chatmux/internal/tools"
)

// DefaultGracePeriod is how long a session outlives its last viewer.
const DefaultGracePeriod = 5 * time.Second

// DefaultMaxToolTurns bounds tool-call round trips in one generation.
const DefaultMaxToolTurns = 8

var (
	// ErrNoSession indicates the conversation has no live session.
	ErrNoSession = errors.New("no live session for conversation")

	// ErrAlreadyGenerating indicates a generation is already in flight.
	ErrAlreadyGenerating = errors.New("generation already in progress")

	// ErrNotGenerating indicates there is nothing to stop.
	ErrNotGenerating = errors.New("no generation in progress")
)

// Options tunes the registry.
type Options struct {
	// GracePeriod is how long a session without viewers stays alive.
	GracePeriod time.Duration

	// Retry is the backoff policy for generation attempts.
	Retry retry.Policy

	// MaxToolTurns bounds tool-call round trips per generation.
	MaxToolTurns int

	// ToolCallTimeout bounds a single tool call (0 = executor default).
	ToolCallTimeout time.Duration

	// SystemPrompt, when set, is prepended to every provider request.
	SystemPrompt string
}

// Registry tracks live sessions keyed by conversation ID.
type Registry struct {
	store     store.Store
	providers *provider.Manager
	executor  *tools.Executor
	toolReg   *tools.Registry

	gracePeriod  time.Duration
	retryPolicy  retry.Policy
	maxToolTurns int
	systemPrompt string

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates a session registry.
func NewRegistry(st store.Store, providers *provider.Manager, toolReg *tools.Registry, opts Options) *Registry {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.MaxToolTurns <= 0 {
		opts.MaxToolTurns = DefaultMaxToolTurns
	}
	if toolReg == nil {
		toolReg = tools.NewRegistry()
	}
	executor := tools.NewExecutor(toolReg).WithCallTimeout(opts.ToolCallTimeout)
	return &Registry{
		store:        st,
		providers:    providers,
		executor:     executor,
		toolReg:      toolReg,
		gracePeriod:  opts.GracePeriod,
		retryPolicy:  opts.Retry,
		maxToolTurns: opts.MaxToolTurns,
		systemPrompt: opts.SystemPrompt,
		sessions:     make(map[string]*Session),
	}
}

// Open attaches a viewer to the conversation's session, loading it from
// the store when no live session exists. Reopening within the grace
// period reattaches to live state, including an in-flight generation.
func (r *Registry) Open(ctx context.Context, conversationID string) (*Handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("registry is shut down")
	}
	if s, ok := r.sessions[conversationID]; ok {
		r.mu.Unlock()
		return s.attach(), nil
	}
	r.mu.Unlock()

	conv, err := r.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("registry is shut down")
	}
	// Lost the race: someone else opened it while we loaded.
	if s, ok := r.sessions[conversationID]; ok {
		return s.attach(), nil
	}
	s := newSession(r, conv)
	r.sessions[conversationID] = s
	return s.attach(), nil
}

// Create starts a brand new conversation and attaches a viewer to it.
func (r *Registry) Create(ctx context.Context, providerInstanceID, modelID string) (*Handle, error) {
	conv := model.NewConversation(providerInstanceID, modelID)
	if err := r.store.Create(ctx, conv); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("registry is shut down")
	}
	s := newSession(r, conv)
	r.sessions[conv.ID] = s
	return s.attach(), nil
}

// get returns the live session for a conversation.
func (r *Registry) get(conversationID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, conversationID)
	}
	return s, nil
}

// Session returns the live session for a conversation, if any.
func (r *Registry) Session(conversationID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conversationID]
	return s, ok
}

// SendMessage appends a user message to the conversation. It does not
// start a generation; pair it with StartGeneration.
func (r *Registry) SendMessage(ctx context.Context, conversationID, text string) error {
	s, err := r.get(conversationID)
	if err != nil {
		return err
	}

	if s.IsGenerating() {
		return ErrAlreadyGenerating
	}

	msg := model.NewUserMessage(text)
	if err := r.store.Append(ctx, conversationID, msg); err != nil {
		return err
	}

	s.mu.Lock()
	hadTitle := s.conv.Title != ""
	s.conv.AddMessage(msg)
	title := s.conv.Title
	s.broadcastLocked()
	s.mu.Unlock()

	// The first user message names the conversation; later sends leave
	// the title alone.
	if !hadTitle && title != "" {
		if err := r.store.UpdateTitle(ctx, conversationID, title); err != nil {
			log.Printf("session %s: title update failed: %v", conversationID, err)
		}
	}
	return nil
}

// SetSelection switches the conversation's provider instance and/or
// model. An empty argument keeps the current value. The switch applies
// to the next generation; one already in flight finishes on the
// selection it started with.
func (r *Registry) SetSelection(ctx context.Context, conversationID, providerInstanceID, modelID string) error {
	s, err := r.get(conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if providerInstanceID != "" {
		s.conv.ProviderInstanceID = providerInstanceID
	}
	if modelID != "" {
		s.conv.Model = modelID
	}
	provID := s.conv.ProviderInstanceID
	modID := s.conv.Model
	s.broadcastLocked()
	s.mu.Unlock()

	return r.store.UpdateSelection(ctx, conversationID, provID, modID)
}

// StartGeneration begins a streaming generation for the conversation.
// At most one generation runs per session.
func (r *Registry) StartGeneration(conversationID string) error {
	s, err := r.get(conversationID)
	if err != nil {
		return err
	}

	for {
		s.mu.Lock()
		if s.generating {
			s.mu.Unlock()
			return ErrAlreadyGenerating
		}
		if s.genDone == nil {
			break
		}
		// A stopped generation is still winding down. Wait for its
		// goroutine to finish so the new generation owns the session
		// state alone.
		prev := s.genDone
		s.mu.Unlock()
		<-prev
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.generating = true
	s.genCancel = cancel
	s.genDone = make(chan struct{})
	s.stopped = false
	s.lastError = ""
	s.retryStatus = nil
	s.partialText.Reset()
	s.partialReas.Reset()
	s.broadcastLocked()
	done := s.genDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		r.runGeneration(ctx, s, done)
	}()
	return nil
}

// StopGeneration cancels the in-flight generation. Partial output that
// already streamed is persisted with a stop marker so the user keeps
// what they saw; the resulting conversation is resumable.
func (r *Registry) StopGeneration(conversationID string) error {
	s, err := r.get(conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.generating {
		s.mu.Unlock()
		return ErrNotGenerating
	}
	s.stopped = true
	cancel := s.genCancel
	done := s.genDone
	s.generating = false
	text, reasoning := s.takePartialLocked()
	s.retryStatus = nil

	var msg *model.Message
	if text != "" || reasoning != "" {
		msg = model.NewAssistantMessage(text + stopMarker)
		msg.Reasoning = reasoning
		msg.Model = s.conv.Model
		s.conv.AddMessage(msg)
	}
	s.broadcastLocked()
	s.mu.Unlock()

	cancel()
	if done != nil {
		// Wait for the generation goroutine to wind down so a restart
		// cannot race its cleanup.
		<-done
	}

	if msg != nil {
		if err := r.store.Append(context.Background(), conversationID, msg); err != nil {
			log.Printf("session %s: stopped partial persist failed: %v", conversationID, err)
		}
	}
	return nil
}

// CanResume reports whether the conversation ended in a stopped or
// interrupted partial that a new generation can continue from.
func (r *Registry) CanResume(conversationID string) bool {
	s, err := r.get(conversationID)
	if err != nil {
		return false
	}
	return s.CanResume()
}

// teardown removes a session once its grace period expires with no
// viewers. An in-flight generation is cancelled and its partial output
// persisted as an interrupted assistant message.
func (r *Registry) teardown(conversationID string) {
	r.mu.Lock()
	s, ok := r.sessions[conversationID]
	if !ok {
		r.mu.Unlock()
		return
	}

	s.mu.Lock()
	// A viewer reattached between timer fire and teardown; keep the
	// session.
	if len(s.viewers) > 0 {
		s.mu.Unlock()
		r.mu.Unlock()
		return
	}
	delete(r.sessions, conversationID)
	cancel := s.genCancel
	generating := s.generating
	done := s.genDone
	s.mu.Unlock()
	r.mu.Unlock()

	if generating && cancel != nil {
		cancel()
		if done != nil {
			<-done
		}
	}
	log.Printf("session %s: torn down", conversationID)
}

// Shutdown tears down every session, cancelling in-flight generations
// and waiting for their partial output to persist.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.graceTimer != nil {
			s.graceTimer.Stop()
			s.graceTimer = nil
		}
		cancel := s.genCancel
		generating := s.generating
		done := s.genDone
		for id, h := range s.viewers {
			delete(s.viewers, id)
			close(h.updates)
		}
		s.mu.Unlock()

		if generating && cancel != nil {
			cancel()
			if done != nil {
				<-done
			}
		}
	}
}
