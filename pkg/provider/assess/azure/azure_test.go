package azure

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/sorilabs/sori/pkg/provider/assess"
)

func assertEqual(t *testing.T, name, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", name, got, want)
	}
}

// ---- URL tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key", "koreacentral")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(assess.SessionConfig{ReferenceText: "This is a test."})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	if !strings.HasPrefix(rawURL, "wss://koreacentral.stt.speech.microsoft.com/") {
		t.Errorf("unexpected host: %s", rawURL)
	}
	assertEqual(t, "language", "en-US", u.Query().Get("language"))
	assertEqual(t, "format", "detailed", u.Query().Get("format"))
}

func TestBuildURL_LanguageOverriddenByCfg(t *testing.T) {
	p, err := New("key", "westus", WithLanguage("en-GB"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(assess.SessionConfig{Language: "en-AU"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "en-AU", u.Query().Get("language"))
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "westus"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty region without endpoint override")
	}
	if _, err := New("key", "", WithEndpoint("ws://localhost:1/v1")); err != nil {
		t.Errorf("endpoint override should not require a region: %v", err)
	}
}

// ---- framing tests ----

func TestTextMessageFraming(t *testing.T) {
	msg := textMessage(pathSpeechContext, "abc123", []byte(`{"x":1}`))

	path, body, ok := parseTextMessage(msg)
	if !ok {
		t.Fatal("parseTextMessage rejected its own framing")
	}
	assertEqual(t, "path", pathSpeechContext, path)
	assertEqual(t, "body", `{"x":1}`, string(body))
}

func TestAudioMessageFraming(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	msg := audioMessage("abc123", payload)

	headerLen := int(binary.BigEndian.Uint16(msg[0:2]))
	header := string(msg[2 : 2+headerLen])
	if !strings.Contains(header, "Path: audio") {
		t.Errorf("header missing audio path: %q", header)
	}
	if !strings.Contains(header, "X-RequestId: abc123") {
		t.Errorf("header missing request id: %q", header)
	}
	got := msg[2+headerLen:]
	if len(got) != len(payload) {
		t.Fatalf("payload length: got %d, want %d", len(got), len(payload))
	}
}

func TestAudioMessageFraming_EndOfAudio(t *testing.T) {
	msg := audioMessage("abc123", nil)
	headerLen := int(binary.BigEndian.Uint16(msg[0:2]))
	if len(msg) != 2+headerLen {
		t.Errorf("end-of-audio marker must carry no payload, got %d extra bytes", len(msg)-2-headerLen)
	}
}

func TestParseTextMessage_Malformed(t *testing.T) {
	if _, _, ok := parseTextMessage([]byte("no header terminator")); ok {
		t.Error("expected rejection of message without header terminator")
	}
	if _, _, ok := parseTextMessage([]byte("X-RequestId: 1\r\n\r\n{}")); ok {
		t.Error("expected rejection of message without Path header")
	}
}

// ---- speech.phrase parsing ----

const phraseFixture = `{
  "RecognitionStatus": "Success",
  "DisplayText": "This is a test.",
  "NBest": [{
    "Confidence": 0.93,
    "Display": "This is a test.",
    "PronunciationAssessment": {
      "AccuracyScore": 85, "FluencyScore": 90, "CompletenessScore": 100,
      "PronScore": 87.4, "ProsodyScore": 78.2
    },
    "Words": [
      {
        "Word": "this",
        "PronunciationAssessment": {"AccuracyScore": 92, "ErrorType": "None"},
        "Syllables": [
          {"Syllable": "ðɪs", "Grapheme": "this", "PronunciationAssessment": {"AccuracyScore": 92}}
        ],
        "Phonemes": [
          {"Phoneme": "ð", "PronunciationAssessment": {"AccuracyScore": 88}},
          {"Phoneme": "ɪ", "PronunciationAssessment": {"AccuracyScore": 95}},
          {"Phoneme": "s", "PronunciationAssessment": {"AccuracyScore": 93}}
        ]
      },
      {
        "Word": "is",
        "PronunciationAssessment": {"ErrorType": "Omission"}
      },
      {
        "Word": "a",
        "PronunciationAssessment": {"AccuracyScore": 45, "ErrorType": "Mispronunciation"},
        "Syllables": [
          {"Syllable": "ə", "PronunciationAssessment": {"AccuracyScore": 45}}
        ]
      }
    ]
  }]
}`

func TestParsePhrase_Success(t *testing.T) {
	res, text, status, err := parsePhrase([]byte(phraseFixture))
	if err != nil {
		t.Fatalf("parsePhrase: %v", err)
	}
	assertEqual(t, "status", "Success", status)
	assertEqual(t, "text", "This is a test.", text)
	if res == nil {
		t.Fatal("expected a result")
	}

	if res.AccuracyScore != 85 || res.PronScore != 87.4 {
		t.Errorf("sentence scores: got acc=%v pron=%v", res.AccuracyScore, res.PronScore)
	}
	if res.ProsodyScore == nil || *res.ProsodyScore != 78.2 {
		t.Errorf("prosody score: got %v, want 78.2", res.ProsodyScore)
	}
	if len(res.Words) != 3 {
		t.Fatalf("word count: got %d, want 3", len(res.Words))
	}

	this := res.Words[0]
	if this.ErrorType != assess.ErrorNone || this.AccuracyScore == nil || *this.AccuracyScore != 92 {
		t.Errorf("word[0]: got %+v", this)
	}
	if len(this.Syllables) != 1 || this.Syllables[0].Grapheme != "this" {
		t.Errorf("word[0] syllables: got %+v", this.Syllables)
	}
	if len(this.Phonemes) != 3 || this.Phonemes[0].Phoneme != "ð" {
		t.Errorf("word[0] phonemes: got %+v", this.Phonemes)
	}

	omitted := res.Words[1]
	if omitted.ErrorType != assess.ErrorOmission {
		t.Errorf("word[1] error type: got %q, want Omission", omitted.ErrorType)
	}
	if omitted.AccuracyScore != nil {
		t.Errorf("omitted word must carry no score, got %v", *omitted.AccuracyScore)
	}
	if len(omitted.Syllables) != 0 {
		t.Errorf("omitted word must carry no syllables, got %d", len(omitted.Syllables))
	}
}

func TestParsePhrase_NoMatch(t *testing.T) {
	res, _, status, err := parsePhrase([]byte(`{"RecognitionStatus":"InitialSilenceTimeout"}`))
	if err != nil {
		t.Fatalf("parsePhrase: %v", err)
	}
	if res != nil {
		t.Error("no-match must not produce a result")
	}
	if !statusNoMatch[status] {
		t.Errorf("status %q should classify as no-match", status)
	}
}

func TestParsePhrase_Garbage(t *testing.T) {
	if _, _, _, err := parsePhrase([]byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
}

// ---- end-to-end against a fake service ----

// fakeService accepts one WebSocket session, consumes config and audio
// messages, and replays a scripted turn.
func fakeService(t *testing.T, script func(ctx context.Context, c *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		script(ctx, c)
	}))
}

func TestSession_FullTurn(t *testing.T) {
	srv := fakeService(t, func(ctx context.Context, c *websocket.Conn) {
		// speech.config, speech.context.
		for range 2 {
			if _, _, err := c.Read(ctx); err != nil {
				t.Errorf("read config: %v", err)
				return
			}
		}
		// Audio until the empty end-of-audio marker.
		for {
			_, msg, err := c.Read(ctx)
			if err != nil {
				t.Errorf("read audio: %v", err)
				return
			}
			headerLen := int(binary.BigEndian.Uint16(msg[0:2]))
			if len(msg) == 2+headerLen {
				break
			}
		}
		_ = c.Write(ctx, websocket.MessageText, textMessage(pathTurnStart, "r", []byte(`{}`)))
		_ = c.Write(ctx, websocket.MessageText, textMessage(pathSpeechHypothesis, "r", []byte(`{"Text":"this is"}`)))
		_ = c.Write(ctx, websocket.MessageText, textMessage(pathSpeechPhrase, "r", []byte(phraseFixture)))
		_ = c.Write(ctx, websocket.MessageText, textMessage(pathTurnEnd, "r", []byte(`{}`)))
		c.Close(websocket.StatusNormalClosure, "")
	})
	defer srv.Close()

	p, err := New("key", "", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartSession(ctx, assess.SessionConfig{
		ReferenceText: "This is a test.",
		SampleRate:    16000,
		Channels:      1,
		EnableMiscue:  true,
		EnableProsody: true,
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := sess.PushAudio(make([]byte, 640)); err != nil {
		t.Fatalf("PushAudio: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	var events []assess.Event
	for ev := range sess.Events() {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events (interim, final), got %d: %+v", len(events), events)
	}
	if events[0].Kind != assess.EventInterim || events[0].Text != "this is" {
		t.Errorf("interim: got %+v", events[0])
	}
	if events[1].Kind != assess.EventFinal || events[1].Result == nil {
		t.Fatalf("final: got %+v", events[1])
	}
	if events[1].Result.AccuracyScore != 85 {
		t.Errorf("final accuracy: got %v, want 85", events[1].Result.AccuracyScore)
	}
}

func TestSession_EmptyTurnYieldsNoMatch(t *testing.T) {
	srv := fakeService(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			_, msg, err := c.Read(ctx)
			if err != nil {
				return
			}
			if len(msg) >= 2 {
				headerLen := int(binary.BigEndian.Uint16(msg[0:2]))
				if headerLen < len(msg) && len(msg) == 2+headerLen {
					break
				}
			}
		}
		_ = c.Write(ctx, websocket.MessageText, textMessage(pathSpeechPhrase, "r", []byte(`{"RecognitionStatus":"InitialSilenceTimeout"}`)))
		_ = c.Write(ctx, websocket.MessageText, textMessage(pathTurnEnd, "r", []byte(`{}`)))
		c.Close(websocket.StatusNormalClosure, "")
	})
	defer srv.Close()

	p, _ := New("key", "", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartSession(ctx, assess.SessionConfig{ReferenceText: "Hello."})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	_ = sess.Close()

	var last assess.Event
	count := 0
	for ev := range sess.Events() {
		last = ev
		count++
	}
	if count != 1 || last.Kind != assess.EventNoMatch {
		t.Fatalf("expected exactly one NoMatch event, got %d events, last %+v", count, last)
	}
}

func TestSession_ServerDropEmitsCanceled(t *testing.T) {
	srv := fakeService(t, func(ctx context.Context, c *websocket.Conn) {
		// Read the two config messages, then drop the connection abruptly.
		for range 2 {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
		c.Close(websocket.StatusInternalError, "boom")
	})
	defer srv.Close()

	p, _ := New("key", "", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartSession(ctx, assess.SessionConfig{ReferenceText: "Hello."})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	var last assess.Event
	for ev := range sess.Events() {
		last = ev
	}
	if last.Kind != assess.EventCanceled {
		t.Fatalf("expected Canceled, got %+v", last)
	}
	_ = sess.Close()
}
