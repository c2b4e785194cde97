// Package azure provides a pronunciation-assessment provider backed by the
// Azure Speech service streaming WebSocket API. It implements assess.Provider.
//
// One session corresponds to one recognition turn scored against a single
// reference sentence. The client sends speech.config and speech.context
// messages on connect, streams binary audio messages, and finalises the turn
// with an empty audio message; the service answers with speech.hypothesis
// (interim), speech.phrase (terminal result), and turn.end.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/sorilabs/sori/pkg/provider/assess"
)

const (
	// endpointTemplate is the regional streaming endpoint. The conversation
	// path supports continuous recognition with pronunciation assessment.
	endpointTemplate = "wss://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1"

	defaultLanguage = "en-US"
)

// Option is a functional option for configuring the azure Provider.
type Option func(*Provider)

// WithLanguage sets the default recognition language (BCP-47, e.g. "en-US").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the regional endpoint entirely. Used for sovereign
// clouds and for pointing tests at a local fake service.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements assess.Provider backed by the Azure Speech service.
type Provider struct {
	key      string
	region   string
	language string
	endpoint string
}

// New creates an azure Provider. key and region must be non-empty unless an
// explicit endpoint override is supplied.
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azure: subscription key must not be empty")
	}
	p := &Provider{
		key:      key,
		region:   region,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	if p.endpoint == "" {
		if region == "" {
			return nil, errors.New("azure: region must not be empty")
		}
		p.endpoint = fmt.Sprintf(endpointTemplate, region)
	}
	return p, nil
}

// StartSession opens a streaming assessment session scored against
// cfg.ReferenceText.
func (p *Provider) StartSession(ctx context.Context, cfg assess.SessionConfig) (assess.SessionHandle, error) {
	if strings.TrimSpace(cfg.ReferenceText) == "" {
		return nil, errors.New("azure: reference text must not be empty")
	}

	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("azure: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", p.key)
	headers.Set("X-ConnectionId", requestID())

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("azure: dial: %w", err)
	}
	// Detailed phrase results for long sentences exceed the 32 KiB default.
	conn.SetReadLimit(1 << 20)

	sess := &session{
		conn:      conn,
		requestID: requestID(),
		events:    make(chan assess.Event, 16),
		audio:     make(chan []byte, 256),
		done:      make(chan struct{}),
	}

	// The turn starts with the connection-level configuration, then the
	// scoring context. Both precede any audio.
	if err := conn.Write(ctx, websocket.MessageText,
		textMessage(pathSpeechConfig, sess.requestID, newSpeechConfigBody(cfg))); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("azure: send speech.config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText,
		textMessage(pathSpeechContext, sess.requestID, newSpeechContextBody(cfg))); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("azure: send speech.context: %w", err)
	}

	sess.wg.Add(1)
	go sess.writeLoop(ctx)
	go sess.readLoop(ctx)

	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg assess.SessionConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	q := u.Query()
	q.Set("language", lang)
	q.Set("format", "detailed")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// requestID returns the 32-hex-digit identifier format the service expects.
func requestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ---- session ----

// session is a live assessment session. It implements assess.SessionHandle.
type session struct {
	conn      *websocket.Conn
	requestID string

	events chan assess.Event
	audio  chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// PushAudio queues a PCM chunk for delivery in capture order.
func (s *session) PushAudio(pcm []byte) error {
	select {
	case <-s.done:
		return errors.New("azure: session is closed")
	default:
	}
	select {
	case s.audio <- pcm:
		return nil
	case <-s.done:
		return errors.New("azure: session is closed")
	}
}

// Events returns the session event stream.
func (s *session) Events() <-chan assess.Event { return s.events }

// Close signals end-of-audio. The write loop drains queued chunks and sends
// the empty end-of-audio message; the read loop keeps running so the terminal
// event still arrives on Events after Close returns. The connection itself is
// torn down by the read loop on turn.end, or by context cancellation.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait() // writer has flushed end-of-audio
	})
	return nil
}

// writeLoop forwards queued audio chunks as binary messages. When the session
// closes it drains remaining chunks, then sends the end-of-audio marker.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, audioMessage(s.requestID, chunk)); err != nil {
				return
			}
		case <-s.done:
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, audioMessage(s.requestID, chunk))
				default:
					_ = s.conn.Write(ctx, websocket.MessageBinary, audioMessage(s.requestID, nil))
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop receives service messages and dispatches events until the turn
// ends or the connection fails. It owns the events channel and the final
// connection teardown.
func (s *session) readLoop(ctx context.Context) {
	terminal := false
	defer func() {
		close(s.events)
		s.conn.Close(websocket.StatusNormalClosure, "turn complete")
	}()

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			if !terminal {
				s.emit(ctx, assess.Event{
					Kind:   assess.EventCanceled,
					Reason: readFailureReason(err),
					Code:   int(websocket.CloseStatus(err)),
				})
			}
			return
		}

		path, body, ok := parseTextMessage(msg)
		if !ok {
			continue
		}

		switch path {
		case pathTurnStart, pathSpeechStart, pathSpeechEnd:
			// Lifecycle markers; nothing to surface.

		case pathSpeechHypothesis:
			if terminal {
				continue
			}
			var h hypothesisBody
			if err := unmarshalBody(body, &h); err != nil {
				continue
			}
			s.emit(ctx, assess.Event{Kind: assess.EventInterim, Text: h.Text})

		case pathSpeechPhrase:
			if terminal {
				continue
			}
			result, text, status, err := parsePhrase(body)
			switch {
			case err != nil:
				terminal = true
				s.emit(ctx, assess.Event{Kind: assess.EventCanceled, Reason: err.Error()})
				return
			case result != nil:
				terminal = true
				s.emit(ctx, assess.Event{Kind: assess.EventFinal, Text: text, Result: result})
			case statusNoMatch[status]:
				// Deferred: the turn may still produce a Success phrase for a
				// later utterance segment. NoMatch is emitted at turn.end if
				// nothing better arrived.
			default:
				terminal = true
				s.emit(ctx, assess.Event{Kind: assess.EventCanceled, Reason: "recognition status " + status})
				return
			}

		case pathTurnEnd:
			if !terminal {
				s.emit(ctx, assess.Event{Kind: assess.EventNoMatch})
			}
			return
		}
	}
}

// emit delivers an event unless the caller's context has been cancelled.
func (s *session) emit(ctx context.Context, ev assess.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// unmarshalBody decodes a JSON message body, tolerating empty bodies.
func unmarshalBody(body []byte, v any) error {
	if len(body) == 0 {
		return errors.New("azure: empty message body")
	}
	return json.Unmarshal(body, v)
}

// readFailureReason maps a read error to a user-meaningful cancellation
// reason.
func readFailureReason(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "session cancelled"
	}
	if status := websocket.CloseStatus(err); status != -1 {
		return fmt.Sprintf("service closed the connection (status %d)", status)
	}
	return "connection lost: " + err.Error()
}
