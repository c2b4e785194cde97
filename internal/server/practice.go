package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/sorilabs/sori/internal/content"
	"github.com/sorilabs/sori/internal/observe"
	"github.com/sorilabs/sori/internal/recorder"
	"github.com/sorilabs/sori/internal/render"
	"github.com/sorilabs/sori/internal/segment"
	"github.com/sorilabs/sori/pkg/audio"
	"github.com/sorilabs/sori/pkg/capture"
)

// maxControlMessage bounds inbound websocket messages. Binary audio frames
// are far below this; the browser worklet ships 20 ms quanta.
const maxControlMessage = 1 << 20

// controlMessage is the JSON shape of inbound text messages on the practice
// socket.
type controlMessage struct {
	// Type is "start", "stop", or "permission-denied".
	Type string `json:"type"`

	// LessonID and SentenceID scope a "start".
	LessonID   string `json:"lessonId"`
	SentenceID string `json:"sentenceId"`
}

// stateEvent is the outbound per-sentence state message. Units carry the
// styled rendering of the sentence against the current result; AudioWAV is
// base64 within the JSON encoding.
type stateEvent struct {
	Type  string                 `json:"type"`
	State recorder.SentenceState `json:"state"`
	Units []render.Unit          `json:"units"`
}

// errorEvent reports a request-level problem without closing the socket.
type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// practiceConn is one learner's practice session. Each connection owns its
// recording manager, so the at-most-one-recording guard is scoped to the
// learner, and its own push stream per attempt.
type practiceConn struct {
	srv  *Server
	conn *websocket.Conn
	mgr  *recorder.Manager

	writeMu sync.Mutex

	mu       sync.Mutex
	push     *capture.PushStream
	sentence segment.Sentence
}

// handlePractice upgrades to WebSocket and runs the practice session until
// the client disconnects.
func (s *Server) handlePractice(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("practice accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxControlMessage)

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveClients.Add(r.Context(), 1)
		defer s.cfg.Metrics.ActiveClients.Add(context.Background(), -1)
	}

	pc := &practiceConn{
		srv:  s,
		conn: conn,
		mgr:  s.newRecorder(),
	}
	pc.run(r.Context())
}

// run is the connection's read loop. All teardown happens here: when the
// loop exits, any live attempt is stopped and the socket closed.
func (pc *practiceConn) run(ctx context.Context) {
	defer func() {
		pc.mgr.Stop()
		pc.mu.Lock()
		if pc.push != nil {
			pc.push.Fail(capture.ErrPipeline)
		}
		pc.mu.Unlock()
		pc.conn.Close(websocket.StatusNormalClosure, "session ended")
	}()

	log := observe.Logger(ctx)
	for {
		typ, data, err := pc.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("practice read error", "err", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			pc.handleFrame(data)

		case websocket.MessageText:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				pc.sendError(ctx, "malformed control message")
				continue
			}
			switch msg.Type {
			case "start":
				pc.handleStart(ctx, msg)
			case "stop":
				pc.mgr.Stop()
			case "permission-denied":
				pc.handlePermissionDenied()
			default:
				pc.sendError(ctx, fmt.Sprintf("unknown message type %q", msg.Type))
			}
		}
	}
}

// handleStart opens a recording attempt for the requested sentence and
// forwards its state snapshots to the client.
func (pc *practiceConn) handleStart(ctx context.Context, msg controlMessage) {
	sentence, err := pc.lookupSentence(ctx, msg.LessonID, msg.SentenceID)
	if err != nil {
		pc.sendError(ctx, err.Error())
		return
	}

	push := capture.NewPushStream()
	updates, err := pc.mgr.Start(ctx, sentence, push)
	if err != nil {
		if errors.Is(err, recorder.ErrRecordingActive) {
			pc.sendError(ctx, "a recording is already in progress")
			return
		}
		// The manager recorded a user-facing message; surface it.
		if st, ok := pc.mgr.State(sentence.ID); ok && st.ErrMessage != "" {
			pc.forwardState(ctx, sentence, st)
			return
		}
		pc.sendError(ctx, "could not start recording")
		return
	}

	pc.mu.Lock()
	pc.push = push
	pc.sentence = sentence
	pc.mu.Unlock()

	go func() {
		for st := range updates {
			pc.forwardState(ctx, sentence, st)
		}
		pc.mu.Lock()
		if pc.push == push {
			pc.push = nil
		}
		pc.mu.Unlock()
	}()
}

// handleFrame feeds one binary float32 frame into the live attempt. Frames
// outside a recording are dropped.
func (pc *practiceConn) handleFrame(data []byte) {
	pc.mu.Lock()
	push := pc.push
	pc.mu.Unlock()
	if push == nil {
		return
	}
	if err := push.Push(audio.Float32LEBytesToSamples(data)); err != nil {
		// Stream already closed; the attempt is settling.
		return
	}
}

// handlePermissionDenied reports the client's denied microphone into the
// capture pipeline, failing the live attempt with the permission error.
func (pc *practiceConn) handlePermissionDenied() {
	pc.mu.Lock()
	push := pc.push
	pc.mu.Unlock()
	if push != nil {
		push.Deny()
	}
}

// lookupSentence loads the lesson and finds the requested sentence.
func (pc *practiceConn) lookupSentence(ctx context.Context, lessonID, sentenceID string) (segment.Sentence, error) {
	if lessonID == "" || sentenceID == "" {
		return segment.Sentence{}, errors.New("start requires lessonId and sentenceId")
	}
	lesson, err := pc.srv.cfg.Store.Get(ctx, lessonID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return segment.Sentence{}, fmt.Errorf("lesson %q not found", lessonID)
		}
		return segment.Sentence{}, errors.New("loading lesson failed")
	}
	for _, s := range lesson.Sentences() {
		if s.ID == sentenceID {
			return s, nil
		}
	}
	return segment.Sentence{}, fmt.Errorf("sentence %q not found in lesson %q", sentenceID, lessonID)
}

// forwardState ships one state snapshot with its rendered units.
func (pc *practiceConn) forwardState(ctx context.Context, sentence segment.Sentence, st recorder.SentenceState) {
	pc.writeEvent(ctx, stateEvent{
		Type:  "state",
		State: st,
		Units: render.Render(sentence.Text, st.Result),
	})
}

func (pc *practiceConn) sendError(ctx context.Context, message string) {
	pc.writeEvent(ctx, errorEvent{Type: "error", Message: message})
}

// writeEvent marshals v and writes it as one text message. Serialised by
// writeMu; the websocket allows one concurrent writer.
func (pc *practiceConn) writeEvent(ctx context.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		observe.Logger(ctx).Error("practice event marshal failed", "err", err)
		return
	}
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if err := pc.conn.Write(ctx, websocket.MessageText, data); err != nil {
		observe.Logger(ctx).Debug("practice write failed", "err", err)
	}
}
