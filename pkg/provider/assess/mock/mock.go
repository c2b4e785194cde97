// Package mock provides a scripted assessment provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/sorilabs/sori/pkg/provider/assess"
)

// Provider is an assess.Provider that replays a scripted event sequence.
// The zero value opens sessions that emit nothing until closed, then a
// NoMatch event.
type Provider struct {
	// StartErr, when non-nil, is returned by StartSession.
	StartErr error

	// Script is the event sequence delivered by each session. When the last
	// scripted event is not terminal, a NoMatch is appended on Close.
	Script []assess.Event

	// EmitOnClose delays scripted events until Close is called, modelling a
	// service that only finalises once end-of-audio arrives. When false,
	// events are delivered as soon as the session opens.
	EmitOnClose bool

	mu       sync.Mutex
	sessions []*Session
}

// StartSession implements assess.Provider.
func (p *Provider) StartSession(_ context.Context, cfg assess.SessionConfig) (assess.SessionHandle, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Session{
		Config: cfg,
		events: make(chan assess.Event, len(p.Script)+1),
		script: p.Script,
	}
	if !p.EmitOnClose {
		s.flush()
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Sessions returns every session the provider has opened, for assertions.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Session is a scripted assessment session.
type Session struct {
	// Config records the SessionConfig the session was opened with.
	Config assess.SessionConfig

	mu      sync.Mutex
	events  chan assess.Event
	script  []assess.Event
	flushed bool
	closed  bool
	pushed  [][]byte
}

// PushAudio implements assess.SessionHandle.
func (s *Session) PushAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)
	s.pushed = append(s.pushed, chunk)
	return nil
}

// Pushed returns a copy of every PCM chunk received, in order.
func (s *Session) Pushed() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.pushed))
	copy(out, s.pushed)
	return out
}

// Events implements assess.SessionHandle.
func (s *Session) Events() <-chan assess.Event { return s.events }

// Close implements assess.SessionHandle. Idempotent.
func (s *Session) Close() error {
	s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// flush delivers the scripted events exactly once.
func (s *Session) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed || s.closed {
		return
	}
	s.flushed = true
	terminal := false
	for _, ev := range s.script {
		s.events <- ev
		if ev.Kind != assess.EventInterim {
			terminal = true
		}
	}
	if !terminal {
		s.events <- assess.Event{Kind: assess.EventNoMatch}
	}
}

var errSessionClosed = errors.New("mock: session is closed")
