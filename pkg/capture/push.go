package capture

import (
	"context"
	"sync"
)

// frameBuffer is the capacity of a PushStream's frame channel. At the 16 kHz
// practice format with 20 ms worklet quanta this is roughly 2.5 s of audio,
// enough to absorb WebSocket jitter without ever blocking the reader loop.
const frameBuffer = 128

// PushStream adapts an externally-driven frame producer (the practice
// WebSocket reader) to the [Source] and [Handle] contracts. The network layer
// calls Push for every inbound frame and Fail/Deny/CloseInput on terminal
// conditions; the recorder consumes it like any other capture source.
//
// A PushStream is single-use: one Open, one recording. All methods are safe
// for concurrent use.
type PushStream struct {
	mu     sync.Mutex
	frames chan []float32
	opened bool
	closed bool
	denied bool
	err    error
}

// Compile-time interface assertions.
var (
	_ Source = (*PushStream)(nil)
	_ Handle = (*PushStream)(nil)
)

// NewPushStream creates an idle PushStream ready to be opened.
func NewPushStream() *PushStream {
	return &PushStream{
		frames: make(chan []float32, frameBuffer),
	}
}

// Open implements [Source]. It fails with [ErrPermissionDenied] when the
// client has reported a denied microphone, and with [ErrPipeline] when the
// stream was already consumed or torn down.
func (p *PushStream) Open(_ context.Context) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.denied {
		return nil, ErrPermissionDenied
	}
	if p.closed || p.opened {
		return nil, ErrPipeline
	}
	p.opened = true
	return p, nil
}

// Push delivers one capture frame. Frames pushed after the stream closes are
// rejected with [ErrClosed]; a full buffer drops the frame silently rather
// than blocking the network reader.
func (p *PushStream) Push(frame []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.frames <- frame:
	default:
		// Consumer stalled; dropping is preferable to blocking the socket.
	}
	return nil
}

// Deny marks the stream as permission-denied. Subsequent Open calls fail with
// [ErrPermissionDenied]; an already-open stream is torn down with the same
// error.
func (p *PushStream) Deny() {
	p.mu.Lock()
	p.denied = true
	p.mu.Unlock()
	p.fail(ErrPermissionDenied)
}

// Fail tears down the stream with a terminal capture error (e.g. the client
// socket dropped mid-recording). The frame channel is closed and Err reports
// the cause.
func (p *PushStream) Fail(err error) {
	p.fail(err)
}

// CloseInput signals a clean end of input from the producer side. Equivalent
// to Close from the consumer side.
func (p *PushStream) CloseInput() {
	p.fail(nil)
}

// Frames implements [Handle].
func (p *PushStream) Frames() <-chan []float32 { return p.frames }

// Err implements [Handle].
func (p *PushStream) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close implements [Handle]. Idempotent.
func (p *PushStream) Close() error {
	p.fail(nil)
	return nil
}

func (p *PushStream) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.err = err
	close(p.frames)
}
