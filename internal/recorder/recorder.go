// Package recorder owns the recording session lifecycle: it acquires the
// capture pipeline and an assessment session for one sentence, fans captured
// frames out to an accumulation buffer and the assessment stream, and
// publishes per-sentence state snapshots at transition points.
//
// At most one recording is active at a time, enforced by [Manager]. Every
// acquired resource is released exactly once on every exit path; failures
// surface as a user-facing message on the sentence state, never as a panic
// or a leaked device.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sorilabs/sori/internal/align"
	"github.com/sorilabs/sori/internal/coach"
	"github.com/sorilabs/sori/internal/observe"
	"github.com/sorilabs/sori/internal/segment"
	"github.com/sorilabs/sori/pkg/audio"
	"github.com/sorilabs/sori/pkg/capture"
	"github.com/sorilabs/sori/pkg/provider/assess"
)

// ErrRecordingActive is returned by Start while another recording is in
// progress. The rejected call has no side effects: nothing is acquired and
// the running session is untouched.
var ErrRecordingActive = errors.New("recorder: a recording is already active")

// coachTimeout bounds feedback-tip generation so a slow LLM cannot hold the
// attempt open.
const coachTimeout = 15 * time.Second

// User-facing messages for the error taxonomy. Rendered inline under the
// affected sentence.
const (
	msgPermissionDenied = "Microphone permission was denied. Allow microphone access and try again."
	msgNoDevice         = "No microphone is available. Connect one and try again."
	msgCaptureFailed    = "Audio capture failed. Try recording again."
	msgServiceFailed    = "Could not reach the assessment service. Try again shortly."
	msgNoSpeech         = "Could not hear any speech. Try recording again, closer to the microphone."
)

// Phase is the recording lifecycle phase.
type Phase int

const (
	// PhaseIdle means no recording is in progress.
	PhaseIdle Phase = iota

	// PhaseRecording means capture and assessment are live.
	PhaseRecording

	// PhaseStopping means end-of-audio has been signalled and the attempt is
	// draining: capture teardown, WAV encoding, and the terminal assessment
	// event.
	PhaseStopping
)

// String implements [fmt.Stringer].
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseStopping:
		return "stopping"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// SentenceState is the published per-sentence assessment state. Snapshots
// are immutable; a new one is published at each transition point.
type SentenceState struct {
	// SentenceID identifies the sentence within its lesson.
	SentenceID string `json:"sentenceId"`

	// Assessing is true from recording start until the terminal assessment
	// event has been handled and teardown is complete.
	Assessing bool `json:"assessing"`

	// InterimText is the latest low-latency hypothesis. Cleared once the
	// final result arrives.
	InterimText string `json:"interimText,omitempty"`

	// RecognizedText is the display text of the final recognition result.
	RecognizedText string `json:"recognizedText,omitempty"`

	// Result is the final assessment result, with miscue tags guaranteed
	// present (synthesized by alignment when the provider omits them).
	Result *assess.Result `json:"result,omitempty"`

	// AudioWAV is the recorded attempt encoded as a playable WAV file.
	AudioWAV []byte `json:"audioWav,omitempty"`

	// Autoplay is true on exactly one snapshot per attempt: the one that
	// first carries AudioWAV.
	Autoplay bool `json:"autoplay,omitempty"`

	// Tip is the coach's practice tip, when a coach is configured.
	Tip string `json:"tip,omitempty"`

	// ErrMessage is the user-facing problem description for this attempt.
	// Empty on success. A no-speech outcome sets this without being an
	// error state for the surrounding pipeline.
	ErrMessage string `json:"errMessage,omitempty"`
}

// Recording attempt outcomes, recorded to metrics.
const (
	outcomeScored   = "scored"
	outcomeNoMatch  = "nomatch"
	outcomeCanceled = "canceled"
	outcomeError    = "error"
)

// Config holds the dependencies for a [Manager].
type Config struct {
	// Provider opens assessment sessions. Required.
	Provider assess.Provider

	// Language is the BCP-47 practice language tag, e.g. "en-US".
	Language string

	// EnableProsody requests stress/intonation scoring.
	EnableProsody bool

	// Coach, when non-nil, generates a practice tip after a scored attempt.
	// Coach failures are logged and otherwise ignored.
	Coach coach.Coach

	// Metrics, when non-nil, receives recording and assessment metrics.
	Metrics *observe.Metrics
}

// Manager runs recording attempts, one at a time. All exported methods are
// safe for concurrent use.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	phase   Phase
	current *attempt
	states  map[string]SentenceState
}

// attempt is one in-flight recording. Fields below the channels are written
// by the pump/consume goroutines before their done channels close and read
// by finish afterwards, so they need no extra locking.
type attempt struct {
	sentence segment.Sentence
	handle   capture.Handle
	sess     assess.SessionHandle
	updates  chan SentenceState

	startedAt time.Time
	stopOnce  sync.Once
	stoppedAt time.Time

	pumpDone   chan struct{}
	eventsDone chan struct{}

	frames     [][]float32
	captureErr error

	outcome    string
	recognized string
	result     *assess.Result
	errMessage string
	terminalAt time.Time
}

// New creates a Manager. cfg.Provider must not be nil.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		states: make(map[string]SentenceState),
	}
}

// Start begins recording the given sentence from src.
//
// On success it returns a channel of state snapshots for this attempt; the
// channel is closed once the attempt has fully settled (teardown complete
// and terminal assessment event handled). Interim-only snapshots may be
// dropped when the consumer lags; transition snapshots are always delivered.
//
// Returns [ErrRecordingActive] without side effects while another attempt is
// live. Capture and session-establishment failures are returned as wrapped
// errors and also recorded as the sentence's ErrMessage.
func (m *Manager) Start(ctx context.Context, sentence segment.Sentence, src capture.Source) (<-chan SentenceState, error) {
	m.mu.Lock()
	if m.phase != PhaseIdle {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (sentence=%s)", ErrRecordingActive, m.current.sentence.ID)
	}
	// Reserve the slot before any acquisition so a concurrent Start cannot
	// race past the guard while we are suspended on permission or dial.
	m.phase = PhaseRecording
	m.current = &attempt{sentence: sentence}
	m.mu.Unlock()

	handle, err := src.Open(ctx)
	if err != nil {
		m.abortStart(sentence.ID, captureMessage(err))
		return nil, fmt.Errorf("recorder: open capture: %w", err)
	}

	sess, err := m.cfg.Provider.StartSession(ctx, assess.SessionConfig{
		ReferenceText: sentence.Text,
		Language:      m.cfg.Language,
		SampleRate:    audio.SampleRate,
		Channels:      audio.Channels,
		EnableProsody: m.cfg.EnableProsody,
		EnableMiscue:  true,
	})
	if err != nil {
		_ = handle.Close()
		m.abortStart(sentence.ID, msgServiceFailed)
		return nil, fmt.Errorf("recorder: start assessment session: %w", err)
	}

	a := &attempt{
		sentence:   sentence,
		handle:     handle,
		sess:       sess,
		updates:    make(chan SentenceState, 32),
		startedAt:  time.Now(),
		pumpDone:   make(chan struct{}),
		eventsDone: make(chan struct{}),
	}

	m.mu.Lock()
	m.current = a
	// Clear any prior result for this sentence before the first snapshot.
	delete(m.states, sentence.ID)
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveRecordings.Add(ctx, 1)
	}
	slog.Info("recording started", "sentence_id", sentence.ID)

	m.publish(a, false, func(s *SentenceState) {
		s.Assessing = true
	})

	go a.pump()
	go m.consume(a)
	go m.finish(a)

	return a.updates, nil
}

// Stop signals end-of-audio and tears down the capture pipeline. It returns
// immediately; the attempt settles asynchronously and its updates channel
// closes once the terminal assessment event has been handled.
//
// Stop is idempotent and a no-op when nothing is recording.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.phase != PhaseRecording || m.current == nil || m.current.sess == nil {
		// Idle, or a Start still acquiring capture: nothing to tear down.
		m.mu.Unlock()
		return
	}
	m.phase = PhaseStopping
	a := m.current
	m.mu.Unlock()

	a.signalStop()
	slog.Info("recording stopping", "sentence_id", a.sentence.ID)
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Active returns the sentence ID of the in-flight attempt, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseIdle || m.current == nil {
		return "", false
	}
	return m.current.sentence.ID, true
}

// State returns the last published snapshot for a sentence.
func (m *Manager) State(sentenceID string) (SentenceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[sentenceID]
	return s, ok
}

// signalStop performs the one-shot stop sequence: end-of-audio to the
// assessment session first, then capture teardown. Safe from any goroutine.
func (a *attempt) signalStop() {
	a.stopOnce.Do(func() {
		a.stoppedAt = time.Now()
		if err := a.sess.Close(); err != nil {
			slog.Warn("assessment session close error", "sentence_id", a.sentence.ID, "err", err)
		}
		if err := a.handle.Close(); err != nil {
			slog.Warn("capture close error", "sentence_id", a.sentence.ID, "err", err)
		}
	})
}

// pump fans captured frames out to the accumulation buffer and the
// assessment session until the capture stream ends. A capture failure
// mid-stream triggers the full stop sequence.
func (a *attempt) pump() {
	defer close(a.pumpDone)

	for frame := range a.handle.Frames() {
		a.frames = append(a.frames, frame)
		if err := a.sess.PushAudio(audio.Float32ToInt16LE(frame)); err != nil {
			// Expected once the session is closed during Stop; the stream
			// drains without further pushes.
			slog.Debug("push audio after session close", "sentence_id", a.sentence.ID, "err", err)
		}
	}

	if err := a.handle.Err(); err != nil {
		a.captureErr = err
	}
	// The capture stream is finished either way; make sure the session sees
	// end-of-audio so the attempt settles.
	a.signalStop()
}

// consume dispatches assessment events until the session's event stream
// closes after its terminal event.
func (m *Manager) consume(a *attempt) {
	defer close(a.eventsDone)

	for ev := range a.sess.Events() {
		switch ev.Kind {
		case assess.EventInterim:
			text := ev.Text
			m.publish(a, true, func(s *SentenceState) {
				s.InterimText = text
			})

		case assess.EventFinal:
			a.outcome = outcomeScored
			a.terminalAt = time.Now()
			a.recognized = ev.Text
			a.result = align.Tag(a.sentence.Text, ev.Result)
			res, text := a.result, ev.Text
			m.publish(a, false, func(s *SentenceState) {
				s.InterimText = ""
				s.RecognizedText = text
				s.Result = res
			})

		case assess.EventNoMatch:
			a.outcome = outcomeNoMatch
			a.terminalAt = time.Now()
			a.errMessage = msgNoSpeech
			m.publish(a, false, func(s *SentenceState) {
				s.InterimText = ""
				s.ErrMessage = msgNoSpeech
			})

		case assess.EventCanceled:
			a.outcome = outcomeCanceled
			a.terminalAt = time.Now()
			a.errMessage = canceledMessage(ev)
			msg := a.errMessage
			m.publish(a, false, func(s *SentenceState) {
				s.InterimText = ""
				s.ErrMessage = msg
			})
			// Fatal for the session: stop capture as well so the attempt
			// settles instead of recording into a dead session.
			a.signalStop()
		}
	}
}

// finish joins the pump and event goroutines, encodes the recording,
// publishes the settled snapshot, releases the active slot, and closes the
// updates channel.
func (m *Manager) finish(a *attempt) {
	<-a.pumpDone
	<-a.eventsDone

	outcome := a.outcome
	if a.captureErr != nil {
		outcome = outcomeError
		a.errMessage = captureMessage(a.captureErr)
	}
	if outcome == "" {
		// Event stream closed without a terminal event. Treat like a
		// provider-side cancellation.
		outcome = outcomeCanceled
		a.errMessage = msgServiceFailed
	}

	var wav []byte
	if a.captureErr == nil {
		wav = audio.EncodeWAV(a.frames, audio.SampleRate)
	}

	var tip string
	if m.cfg.Coach != nil && outcome == outcomeScored {
		tip = m.coachTip(a)
	}

	errMsg := a.errMessage
	m.publish(a, false, func(s *SentenceState) {
		s.Assessing = false
		s.ErrMessage = errMsg
		s.Tip = tip
		if wav != nil {
			s.AudioWAV = wav
			s.Autoplay = true
		}
	})

	m.mu.Lock()
	m.phase = PhaseIdle
	m.current = nil
	m.mu.Unlock()

	m.recordMetrics(a, outcome)
	slog.Info("recording settled",
		"sentence_id", a.sentence.ID,
		"outcome", outcome,
		"frames", len(a.frames),
		"duration_ms", time.Since(a.startedAt).Milliseconds(),
	)

	close(a.updates)
}

// coachTip asks the configured coach for a practice tip. Failures are
// non-fatal.
func (m *Manager) coachTip(a *attempt) string {
	ctx, cancel := context.WithTimeout(context.Background(), coachTimeout)
	defer cancel()

	start := time.Now()
	tip, err := m.cfg.Coach.Tip(ctx, a.sentence.Text, a.result)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.CoachDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		slog.Warn("coach tip error", "sentence_id", a.sentence.ID, "err", err)
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.ProviderErrors.Add(ctx, 1,
				metric.WithAttributes(attribute.String("provider", "coach")))
		}
		return ""
	}
	return tip
}

func (m *Manager) recordMetrics(a *attempt, outcome string) {
	if m.cfg.Metrics == nil {
		return
	}
	ctx := context.Background()
	m.cfg.Metrics.ActiveRecordings.Add(ctx, -1)
	m.cfg.Metrics.Recordings.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
	m.cfg.Metrics.RecordingDuration.Record(ctx, time.Since(a.startedAt).Seconds())
	if !a.stoppedAt.IsZero() && !a.terminalAt.IsZero() && a.terminalAt.After(a.stoppedAt) {
		m.cfg.Metrics.AssessDuration.Record(ctx, a.terminalAt.Sub(a.stoppedAt).Seconds())
	}
	if outcome == outcomeCanceled || outcome == outcomeError {
		m.cfg.Metrics.ProviderErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("provider", "assess")))
	}
}

// abortStart records a failed acquisition and releases the reserved slot.
func (m *Manager) abortStart(sentenceID, message string) {
	m.mu.Lock()
	m.phase = PhaseIdle
	m.current = nil
	m.states[sentenceID] = SentenceState{
		SentenceID: sentenceID,
		ErrMessage: message,
	}
	m.mu.Unlock()
}

// publish stores a new snapshot for the attempt's sentence and sends it on
// the updates channel. Interim snapshots (droppable=true) are dropped when
// the consumer lags; transition snapshots always go through.
func (m *Manager) publish(a *attempt, droppable bool, mutate func(*SentenceState)) {
	m.mu.Lock()
	s := m.states[a.sentence.ID]
	s.SentenceID = a.sentence.ID
	mutate(&s)
	snap := s
	s.Autoplay = false
	m.states[a.sentence.ID] = s
	m.mu.Unlock()

	if droppable {
		select {
		case a.updates <- snap:
		default:
		}
		return
	}
	a.updates <- snap
}

// captureMessage maps a capture error to its user-facing message.
func captureMessage(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return msgPermissionDenied
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return msgNoDevice
	default:
		return msgCaptureFailed
	}
}

// canceledMessage maps a canceled event to its user-facing message.
func canceledMessage(ev assess.Event) string {
	if ev.Reason == "" {
		return msgServiceFailed
	}
	if ev.Code != 0 {
		return fmt.Sprintf("Assessment was interrupted: %s (code %d).", ev.Reason, ev.Code)
	}
	return fmt.Sprintf("Assessment was interrupted: %s.", ev.Reason)
}
