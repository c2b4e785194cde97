// Package mock provides a scripted capture source for tests.
package mock

import (
	"context"
	"sync"

	"github.com/sorilabs/sori/pkg/capture"
)

// Source is a capture source that replays a fixed script of frames.
// The zero value opens successfully and delivers no frames.
type Source struct {
	// Frames are delivered in order on Open.
	Frames [][]float32

	// OpenErr, when non-nil, is returned by Open instead of a handle.
	OpenErr error

	// StreamErr, when non-nil, terminates the stream after all frames were
	// delivered, simulating a device disconnect mid-session.
	StreamErr error

	// Hold, when true, keeps the frame channel open after the script is
	// exhausted until Close is called. Used to test explicit stop paths.
	Hold bool
}

// Open implements [capture.Source].
func (s *Source) Open(_ context.Context) (capture.Handle, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	h := &handle{
		frames: make(chan []float32, len(s.Frames)+1),
		hold:   s.Hold,
		err:    s.StreamErr,
	}
	for _, f := range s.Frames {
		h.frames <- f
	}
	if !s.Hold {
		h.finish()
	}
	return h, nil
}

type handle struct {
	mu     sync.Mutex
	frames chan []float32
	closed bool
	hold   bool
	err    error
}

func (h *handle) Frames() <-chan []float32 { return h.frames }

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return h.err
	}
	return nil
}

func (h *handle) Close() error {
	h.finish()
	return nil
}

func (h *handle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.frames)
}
