// Package stream is the push adapter for progress delivery: a
// server-driven, strictly ordered sequence of typed events for one
// generation request over one logical connection.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
)

// ErrSessionClosed is returned by sends after the terminal event.
var ErrSessionClosed = errors.New("stream session closed")

const defaultBuffer = 64

// Session carries the event sequence of one generation to exactly one
// receiver. Events are FIFO; exactly one terminal event (complete or
// error) ends the session, after which the channel is closed by the
// sender. A Session has a single producer goroutine.
type Session struct {
	ch chan api.StreamEvent

	mu     sync.Mutex
	closed bool
}

// NewSession makes a session whose channel holds buffer events; 0 means
// unbuffered, negative picks a sensible default.
func NewSession(buffer int) *Session {
	if buffer < 0 {
		buffer = defaultBuffer
	}
	return &Session{ch: make(chan api.StreamEvent, buffer)}
}

// Events is the receiver side. The channel is closed after the terminal
// event; a receiver must stop listening once it observes one.
func (s *Session) Events() <-chan api.StreamEvent {
	return s.ch
}

// SendProgress announces a coarse-grained phase. Phases are monotonic:
// announcing a later phase implies earlier ones are complete.
func (s *Session) SendProgress(ctx context.Context, phase string) error {
	return s.send(ctx, api.StreamEvent{Type: api.EventProgress, Phase: phase})
}

// SendContent emits one incremental output fragment.
func (s *Session) SendContent(ctx context.Context, chunk string) error {
	return s.send(ctx, api.StreamEvent{Type: api.EventContent, Content: chunk})
}

// Complete ends the session successfully. FullContent is authoritative: a
// receiver that missed content fragments can rely on it alone.
func (s *Session) Complete(ctx context.Context, fullContent, shareURL string) error {
	return s.send(ctx, api.StreamEvent{Type: api.EventComplete, FullContent: fullContent, ShareURL: shareURL})
}

// Fail ends the session with a human-readable error.
func (s *Session) Fail(ctx context.Context, msg string) error {
	return s.send(ctx, api.StreamEvent{Type: api.EventError, Error: msg})
}

// Close ends the session without a terminal event, for abort paths where
// the receiver is already gone. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Session) send(ctx context.Context, ev api.StreamEvent) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	terminal := ev.Terminal()
	if terminal {
		// claim the terminal slot before releasing the lock so no second
		// terminal event can slip in
		s.closed = true
	}
	s.mu.Unlock()

	select {
	case s.ch <- ev:
		if terminal {
			close(s.ch)
		}
		return nil
	case <-ctx.Done():
		if terminal {
			close(s.ch)
		}
		return ctx.Err()
	}
}
