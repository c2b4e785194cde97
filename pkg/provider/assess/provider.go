// Package assess defines the Provider interface for streaming pronunciation
// assessment backends.
//
// An assessment provider wraps a real-time speech service that scores spoken
// audio against a fixed reference sentence at word, syllable, and phoneme
// granularity. The central abstraction is [SessionHandle]: once opened for a
// reference sentence, a session accepts 16-bit PCM audio and emits a single
// ordered stream of [Event] values — low-latency interim hypotheses followed
// by exactly one terminal event (final, no-match, or canceled).
//
// Implementations must be safe for concurrent use. A learner records one
// sentence per session; concurrency across sessions is the caller's concern.
package assess

import "context"

// SessionConfig describes the audio format and scoring configuration for a
// new assessment session.
type SessionConfig struct {
	// ReferenceText is the sentence the learner is meant to read aloud. It is
	// the scoring ground truth and must match the displayed text exactly.
	ReferenceText string

	// Language is the BCP-47 tag of the practice language (e.g. "en-US").
	Language string

	// SampleRate is the PCM sample rate in Hz. Assessment services expect
	// 16000.
	SampleRate int

	// Channels is the channel count; must be 1.
	Channels int

	// EnableProsody requests stress/intonation scoring in the result.
	EnableProsody bool

	// EnableMiscue requests omission/insertion detection, so deviations from
	// the reference are flagged rather than silently aligned away.
	EnableMiscue bool
}

// SessionHandle is an open assessment session.
//
// Callers must call Close when done; failing to do so leaks the network
// session inside the provider. All methods are safe for concurrent use.
type SessionHandle interface {
	// PushAudio delivers a chunk of 16-bit little-endian mono PCM in capture
	// order. It never blocks on the network; chunks are queued and sent by an
	// internal writer. Pushing after Close returns an error.
	PushAudio(pcm []byte) error

	// Events returns the session's event stream. Events arrive in order;
	// after a terminal event (EventFinal, EventNoMatch, or EventCanceled)
	// the channel is closed.
	Events() <-chan Event

	// Close signals end-of-audio and releases the session. The terminal
	// event, when the service produces one, is still delivered on Events
	// after Close returns. Calling Close more than once is safe and returns
	// nil.
	Close() error
}

// Provider is the abstraction over any streaming assessment backend.
type Provider interface {
	// StartSession opens a streaming assessment session scored against
	// cfg.ReferenceText. The returned handle accepts audio immediately.
	//
	// Returns an error if the session cannot be established (bad credentials,
	// unreachable service, or ctx already cancelled). The caller owns the
	// handle and must call Close.
	StartSession(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
