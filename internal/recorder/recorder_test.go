package recorder_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sorilabs/sori/internal/recorder"
	"github.com/sorilabs/sori/internal/segment"
	"github.com/sorilabs/sori/pkg/audio"
	"github.com/sorilabs/sori/pkg/capture"
	capturemock "github.com/sorilabs/sori/pkg/capture/mock"
	"github.com/sorilabs/sori/pkg/provider/assess"
	assessmock "github.com/sorilabs/sori/pkg/provider/assess/mock"
)

func fp(v float64) *float64 { return &v }

func testSentence() segment.Sentence {
	return segment.Sentence{
		ID:   "s1",
		Text: "This is a test.",
		Words: []segment.TimedWord{
			{Word: "This"}, {Word: "is"}, {Word: "a"}, {Word: "test."},
		},
	}
}

func finalEvent() assess.Event {
	return assess.Event{
		Kind: assess.EventFinal,
		Text: "this is a test",
		Result: &assess.Result{
			AccuracyScore: 85,
			PronScore:     85,
			Words: []assess.WordResult{
				{Word: "this", ErrorType: assess.ErrorNone, AccuracyScore: fp(92)},
				{Word: "is", ErrorType: assess.ErrorNone, AccuracyScore: fp(88)},
				{Word: "a", ErrorType: assess.ErrorNone, AccuracyScore: fp(45)},
				{Word: "test", ErrorType: assess.ErrorNone, AccuracyScore: fp(95)},
			},
		},
	}
}

// drain collects every snapshot until the updates channel closes.
func drain(t *testing.T, ch <-chan recorder.SentenceState) []recorder.SentenceState {
	t.Helper()
	var out []recorder.SentenceState
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-timeout:
			t.Fatalf("updates channel did not close; got %d snapshots", len(out))
		}
	}
}

func TestStart_ScoredAttempt(t *testing.T) {
	frames := [][]float32{{0, 0.5, -0.5}, {1, -1}}
	src := &capturemock.Source{Frames: frames, Hold: true}
	provider := &assessmock.Provider{
		Script: []assess.Event{
			{Kind: assess.EventInterim, Text: "this is"},
			finalEvent(),
		},
		EmitOnClose: true,
	}
	m := recorder.New(recorder.Config{Provider: provider, Language: "en-US", EnableProsody: true})

	updates, err := m.Start(context.Background(), testSentence(), src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := <-updates
	if !first.Assessing {
		t.Errorf("first snapshot should have Assessing=true, got %+v", first)
	}

	// Let the pump deliver the scripted frames before stopping.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sessions := provider.Sessions()
		if len(sessions) == 1 && len(sessions[0].Pushed()) == len(frames) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("frames were not pushed to the session in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	snaps := drain(t, updates)
	if len(snaps) == 0 {
		t.Fatal("no snapshots after stop")
	}
	last := snaps[len(snaps)-1]

	if last.Assessing {
		t.Error("settled snapshot still has Assessing=true")
	}
	if last.RecognizedText != "this is a test" {
		t.Errorf("RecognizedText = %q", last.RecognizedText)
	}
	if last.Result == nil || len(last.Result.Words) != 4 {
		t.Fatalf("settled Result = %+v", last.Result)
	}
	if last.ErrMessage != "" {
		t.Errorf("unexpected ErrMessage %q", last.ErrMessage)
	}

	// 3+2 samples, 16-bit mono.
	if wantLen := 44 + 2*5; len(last.AudioWAV) != wantLen {
		t.Errorf("AudioWAV length = %d, want %d", len(last.AudioWAV), wantLen)
	}
	if !last.Autoplay {
		t.Error("snapshot carrying audio should set Autoplay")
	}

	// The retained state must not replay autoplay.
	retained, ok := m.State("s1")
	if !ok {
		t.Fatal("no retained state for s1")
	}
	if retained.Autoplay {
		t.Error("retained state must not keep Autoplay set")
	}

	sess := provider.Sessions()[0]
	if sess.Config.ReferenceText != "This is a test." {
		t.Errorf("session ReferenceText = %q", sess.Config.ReferenceText)
	}
	if !sess.Config.EnableMiscue {
		t.Error("miscue detection should always be enabled")
	}
	if sess.Config.SampleRate != audio.SampleRate || sess.Config.Channels != audio.Channels {
		t.Errorf("session audio format = %d/%d", sess.Config.SampleRate, sess.Config.Channels)
	}
	if pushed := sess.Pushed(); string(pushed[0]) != string(audio.Float32ToInt16LE(frames[0])) {
		t.Errorf("first pushed chunk = %v, want %v", pushed[0], audio.Float32ToInt16LE(frames[0]))
	}

	if phase := m.Phase(); phase != recorder.PhaseIdle {
		t.Errorf("phase after settle = %v, want idle", phase)
	}
}

func TestStart_RejectedWhileActive(t *testing.T) {
	src := &capturemock.Source{Hold: true}
	provider := &assessmock.Provider{EmitOnClose: true}
	m := recorder.New(recorder.Config{Provider: provider, Language: "en-US"})

	updates, err := m.Start(context.Background(), testSentence(), src)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}

	other := segment.Sentence{ID: "s2", Text: "Another one."}
	otherSrc := &capturemock.Source{Hold: true}
	if _, err := m.Start(context.Background(), other, otherSrc); !errors.Is(err, recorder.ErrRecordingActive) {
		t.Fatalf("second Start error = %v, want ErrRecordingActive", err)
	}

	// The rejected start must not have opened a second session.
	if n := len(provider.Sessions()); n != 1 {
		t.Errorf("sessions opened = %d, want 1", n)
	}
	if id, ok := m.Active(); !ok || id != "s1" {
		t.Errorf("Active() = %q, %v; the running attempt must be undisturbed", id, ok)
	}

	m.Stop()
	drain(t, updates)
}

func TestStop_Idempotent(t *testing.T) {
	m := recorder.New(recorder.Config{Provider: &assessmock.Provider{}})

	// No session ever opened.
	m.Stop()
	m.Stop()

	src := &capturemock.Source{Hold: true}
	provider := &assessmock.Provider{EmitOnClose: true}
	m = recorder.New(recorder.Config{Provider: provider})
	updates, err := m.Start(context.Background(), testSentence(), src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()
	m.Stop()
	drain(t, updates)

	if phase := m.Phase(); phase != recorder.PhaseIdle {
		t.Errorf("phase = %v, want idle", phase)
	}
}

func TestStart_PermissionDenied(t *testing.T) {
	src := &capturemock.Source{OpenErr: capture.ErrPermissionDenied}
	provider := &assessmock.Provider{EmitOnClose: true}
	m := recorder.New(recorder.Config{Provider: provider})

	_, err := m.Start(context.Background(), testSentence(), src)
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want wrapped ErrPermissionDenied", err)
	}
	if n := len(provider.Sessions()); n != 0 {
		t.Errorf("sessions opened = %d, want 0", n)
	}

	state, ok := m.State("s1")
	if !ok || !strings.Contains(state.ErrMessage, "permission") {
		t.Errorf("state after denial = %+v", state)
	}

	// Immediate retry must be possible.
	retrySrc := &capturemock.Source{Hold: true}
	updates, err := m.Start(context.Background(), testSentence(), retrySrc)
	if err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	m.Stop()
	drain(t, updates)
}

func TestStart_SessionOpenFailure(t *testing.T) {
	src := &capturemock.Source{Hold: true}
	provider := &assessmock.Provider{StartErr: errors.New("401 unauthorized")}
	m := recorder.New(recorder.Config{Provider: provider})

	if _, err := m.Start(context.Background(), testSentence(), src); err == nil {
		t.Fatal("Start should fail when the session cannot be established")
	}
	state, _ := m.State("s1")
	if !strings.Contains(state.ErrMessage, "assessment service") {
		t.Errorf("ErrMessage = %q, want a service-side message", state.ErrMessage)
	}
	if phase := m.Phase(); phase != recorder.PhaseIdle {
		t.Errorf("phase = %v, want idle", phase)
	}
}

func TestAttempt_NoMatch(t *testing.T) {
	src := &capturemock.Source{Frames: [][]float32{{0, 0}}, Hold: true}
	provider := &assessmock.Provider{EmitOnClose: true}
	m := recorder.New(recorder.Config{Provider: provider})

	updates, err := m.Start(context.Background(), testSentence(), src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()
	snaps := drain(t, updates)
	last := snaps[len(snaps)-1]

	if last.Assessing {
		t.Error("settled snapshot still has Assessing=true")
	}
	if !strings.Contains(last.ErrMessage, "hear") {
		t.Errorf("ErrMessage = %q, want the no-speech message", last.ErrMessage)
	}
	if last.Result != nil {
		t.Errorf("no-match attempt must not carry a result, got %+v", last.Result)
	}
	// Playback stays available even when no speech was recognized.
	if len(last.AudioWAV) == 0 {
		t.Error("no-match attempt should still publish the recording")
	}
}

func TestAttempt_CanceledSettlesWithoutStop(t *testing.T) {
	src := &capturemock.Source{Hold: true}
	provider := &assessmock.Provider{
		Script: []assess.Event{
			{Kind: assess.EventCanceled, Reason: "connection lost", Code: 4},
		},
	}
	m := recorder.New(recorder.Config{Provider: provider})

	updates, err := m.Start(context.Background(), testSentence(), src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// No Stop call: the cancellation itself must tear the attempt down.
	snaps := drain(t, updates)
	last := snaps[len(snaps)-1]
	if !strings.Contains(last.ErrMessage, "interrupted") {
		t.Errorf("ErrMessage = %q, want an interruption message", last.ErrMessage)
	}
	if last.Assessing {
		t.Error("settled snapshot still has Assessing=true")
	}
	if phase := m.Phase(); phase != recorder.PhaseIdle {
		t.Errorf("phase = %v, want idle", phase)
	}
}

func TestAttempt_CaptureFailureMidStream(t *testing.T) {
	src := &capturemock.Source{
		Frames:    [][]float32{{0.1, 0.2}},
		StreamErr: capture.ErrPipeline,
	}
	provider := &assessmock.Provider{EmitOnClose: true}
	m := recorder.New(recorder.Config{Provider: provider})

	updates, err := m.Start(context.Background(), testSentence(), src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snaps := drain(t, updates)
	last := snaps[len(snaps)-1]
	if !strings.Contains(last.ErrMessage, "capture") {
		t.Errorf("ErrMessage = %q, want a capture failure message", last.ErrMessage)
	}
	if len(last.AudioWAV) != 0 {
		t.Error("capture failure must not publish playback audio")
	}
	if phase := m.Phase(); phase != recorder.PhaseIdle {
		t.Errorf("phase = %v, want idle", phase)
	}
}
