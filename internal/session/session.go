// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatmux/internal/model"
	"github.com/jeranaias/chatmux/internal/retry"
)

// stopMarker is appended to partial assistant text persisted after a
// user-requested stop.
const stopMarker = "\n\n[generation stopped]"

// updateBuffer is the per-viewer snapshot channel depth. When a slow
// viewer falls behind, the oldest snapshot is dropped so delivery order
// is preserved and newer state wins.
const updateBuffer = 512

// RetryStatus describes an in-progress backoff wait.
type RetryStatus struct {
	Attempt int
	Max     int
	Delay   time.Duration
	Message string
}

// Snapshot is an immutable view of a session's state. Every mutation
// broadcasts a fresh snapshot to all attached viewers, in order.
type Snapshot struct {
	ConversationID string
	Title          string
	Model          string

	// Messages is the persisted log. The slice is shared between
	// snapshots; messages are immutable once appended.
	Messages []*model.Message

	// Generating is true while a generation is in flight.
	Generating bool

	// PartialText and PartialReasoning hold streamed output of the
	// current attempt, not yet persisted.
	PartialText      string
	PartialReasoning string

	// Retry is non-nil while the session waits out a backoff delay.
	Retry *RetryStatus

	// LastError is the display message of the last failed generation,
	// cleared when a new generation starts.
	LastError string

	TotalUsage     model.Usage
	TotalCostCents float64
}

// Handle is one viewer's attachment to a session.
type Handle struct {
	session *Session
	id      int
	updates chan Snapshot

	closeOnce sync.Once
}

// Updates delivers ordered state snapshots. The channel is closed when
// the handle is closed or the session is torn down.
func (h *Handle) Updates() <-chan Snapshot {
	return h.updates
}

// Snapshot returns the session's current state.
func (h *Handle) Snapshot() Snapshot {
	return h.session.snapshot()
}

// ConversationID returns the conversation this handle views.
func (h *Handle) ConversationID() string {
	return h.session.id
}

// Close detaches the viewer. When the last viewer detaches the session
// enters its teardown grace period.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.session.detach(h)
	})
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the live state of one open conversation. All fields are
// guarded by mu; broadcasts happen under the lock so every viewer sees
// snapshots in the same order.
type Session struct {
	registry *Registry
	id       string

	mu   sync.Mutex
	conv *model.Conversation

	viewers    map[int]*Handle
	nextViewer int
	graceTimer *time.Timer

	generating  bool
	genCancel   context.CancelFunc
	genDone     chan struct{}
	stopped     bool
	partialText strings.Builder
	partialReas strings.Builder
	retryStatus *RetryStatus
	lastError   string
}

func newSession(r *Registry, conv *model.Conversation) *Session {
	return &Session{
		registry: r,
		id:       conv.ID,
		conv:     conv,
		viewers:  make(map[int]*Handle),
	}
}

// attach adds a viewer, cancelling any pending teardown.
func (s *Session) attach() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}

	h := &Handle{
		session: s,
		id:      s.nextViewer,
		updates: make(chan Snapshot, updateBuffer),
	}
	s.nextViewer++
	s.viewers[h.id] = h
	return h
}

// detach removes a viewer. The last detach arms the grace timer.
func (s *Session) detach(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.viewers[h.id]; !ok {
		return
	}
	delete(s.viewers, h.id)
	close(h.updates)

	if len(s.viewers) == 0 && s.graceTimer == nil {
		s.graceTimer = time.AfterFunc(s.registry.gracePeriod, func() {
			s.registry.teardown(s.id)
		})
	}
}

// viewerCount returns the number of attached viewers.
func (s *Session) viewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// snapshot builds a Snapshot from current state.
func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ConversationID:   s.conv.ID,
		Title:            s.conv.Title,
		Model:            s.conv.Model,
		Messages:         s.conv.Messages,
		Generating:       s.generating,
		PartialText:      s.partialText.String(),
		PartialReasoning: s.partialReas.String(),
		LastError:        s.lastError,
		TotalUsage:       s.conv.TotalUsage,
		TotalCostCents:   s.conv.TotalCostCents,
	}
	if s.retryStatus != nil {
		rs := *s.retryStatus
		snap.Retry = &rs
	}
	return snap
}

// broadcastLocked delivers the current snapshot to every viewer. Called
// with mu held, so per-viewer ordering matches mutation order. A full
// channel drops its oldest entry rather than blocking.
func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for _, h := range s.viewers {
		select {
		case h.updates <- snap:
		default:
			select {
			case <-h.updates:
			default:
			}
			select {
			case h.updates <- snap:
			default:
			}
		}
	}
}

// appendMessages folds persisted messages into the in-memory log and
// broadcasts.
func (s *Session) appendMessages(msgs ...*model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		s.conv.AddMessage(msg)
	}
	s.broadcastLocked()
}

// addPartial appends streamed text to the partial buffers and broadcasts.
func (s *Session) addPartial(text, reasoning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partialText.WriteString(text)
	s.partialReas.WriteString(reasoning)
	s.broadcastLocked()
}

// resetPartial discards partial output from a failed attempt and records
// the upcoming retry.
func (s *Session) resetPartial(note retry.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partialText.Reset()
	s.partialReas.Reset()
	s.retryStatus = &RetryStatus{
		Attempt: note.Attempt,
		Max:     note.Max,
		Delay:   note.Delay,
		Message: note.Category.Message(),
	}
	s.broadcastLocked()
}

// clearRetry removes the retry indicator once an attempt restarts.
func (s *Session) clearRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryStatus == nil {
		return
	}
	s.retryStatus = nil
	s.broadcastLocked()
}

// takePartialLocked drains the partial buffers. Caller holds mu.
func (s *Session) takePartialLocked() (text, reasoning string) {
	text = s.partialText.String()
	reasoning = s.partialReas.String()
	s.partialText.Reset()
	s.partialReas.Reset()
	return text, reasoning
}

// IsGenerating reports whether a generation is in flight.
func (s *Session) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// CanResume reports whether the last assistant output was cut short and
// the conversation can be continued from it. True when the last message
// is a stopped or interrupted assistant partial.
func (s *Session) CanResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generating {
		return false
	}
	last := s.conv.LastMessage()
	if last == nil || last.Role != model.RoleAssistant {
		return false
	}
	return strings.HasSuffix(last.Content, stopMarker)
}
