// Package capture defines the microphone capture pipeline abstraction.
//
// The two abstractions mirror the platform/connection split used elsewhere in
// the codebase:
//
//   - [Source] — acquires the capture device and returns a [Handle].
//   - [Handle] — a live capture stream delivering fixed-format frames
//     (16 kHz mono float32, see the audio package constants) until closed.
//
// The actual microphone lives in the learner's browser: the capture worklet
// runs there and ships raw float32 PCM over the practice WebSocket. The
// server-side [PushStream] implementation adapts that inbound stream to the
// Source/Handle contract; capture/mock provides scripted sources for tests.
//
// Implementations must be safe for concurrent use.
package capture

import (
	"context"
	"errors"
)

// Capture failures are reported as one of these sentinel errors (possibly
// wrapped). Callers branch on them to produce distinct user-facing messages:
// a denied microphone is the learner's to fix, a pipeline failure is not.
var (
	// ErrPermissionDenied indicates the learner declined (or the host revoked)
	// microphone access. Recoverable by retrying the recording.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrDeviceUnavailable indicates no capture device could be acquired.
	ErrDeviceUnavailable = errors.New("capture: no capture device available")

	// ErrPipeline indicates the capture graph failed after the device was
	// acquired. The implementation must have released the device before
	// returning this error.
	ErrPipeline = errors.New("capture: audio pipeline failure")

	// ErrClosed is returned when pushing into an already-closed stream.
	ErrClosed = errors.New("capture: stream is closed")
)

// Source acquires a capture stream. Open may suspend on a permission grant
// and must not leak the device when it fails partway through setup.
type Source interface {
	// Open starts capture and returns a live [Handle]. Denial surfaces as an
	// error wrapping [ErrPermissionDenied]; device and pipeline failures wrap
	// [ErrDeviceUnavailable] and [ErrPipeline] respectively.
	Open(ctx context.Context) (Handle, error)
}

// Handle is a live capture stream.
//
// Frame delivery order is FIFO; the same frame slice is fanned out to every
// consumer, so consumers must not mutate frames.
type Handle interface {
	// Frames returns the read-only frame channel. It is closed when the
	// stream ends, whether by Close or by a capture failure.
	Frames() <-chan []float32

	// Err reports the terminal capture error, if any, once Frames is closed.
	// A clean Close yields nil.
	Err() error

	// Close tears down the stream and releases the device. It is idempotent
	// and safe to call from any state, including before any frame arrived.
	Close() error
}
