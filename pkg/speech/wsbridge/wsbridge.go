// Package wsbridge connects the session engine to a learner's browser over a
// WebSocket. The browser owns the real recognition and playback capabilities
// (its recognition API and audio element); the bridge remotes them behind the
// [speech.Engine] and [audio.Player] interfaces so the engine never knows the
// difference.
//
// The wire protocol is JSON text messages with a dotted "type" field.
//
// Server to client:
//
//	{"type":"recognition.start","language":"ko-KR"}
//	{"type":"recognition.stop"}
//	{"type":"recognition.abort"}
//	{"type":"audio.play","url":"..."}
//	{"type":"audio.stop"}
//	{"type":"state","state":{...}}
//
// Client to server:
//
//	{"type":"recognition.started"}
//	{"type":"recognition.result","segments":[{"text":"...","final":true}]}
//	{"type":"recognition.error","code":"no-speech"}
//	{"type":"recognition.end"}
//	{"type":"audio.ended"}
//	{"type":"audio.error","message":"..."}
//	{"type":"control.begin"} | {"type":"control.skip"} | {"type":"control.replay"}
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/audio"
	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/speech"
)

// writeTimeout bounds a single outbound message.
const writeTimeout = 10 * time.Second

// Message type values on the wire.
const (
	typeRecognitionStart   = "recognition.start"
	typeRecognitionStop    = "recognition.stop"
	typeRecognitionAbort   = "recognition.abort"
	typeRecognitionStarted = "recognition.started"
	typeRecognitionResult  = "recognition.result"
	typeRecognitionError   = "recognition.error"
	typeRecognitionEnd     = "recognition.end"

	typeAudioPlay  = "audio.play"
	typeAudioStop  = "audio.stop"
	typeAudioEnded = "audio.ended"
	typeAudioError = "audio.error"

	typeState = "state"

	typeControlBegin  = "control.begin"
	typeControlSkip   = "control.skip"
	typeControlReplay = "control.replay"
)

// Control is a learner-initiated session command relayed from the client UI.
type Control string

const (
	ControlBegin  Control = "begin"
	ControlSkip   Control = "skip"
	ControlReplay Control = "replay"
)

// message is the single wire envelope for both directions.
type message struct {
	Type     string          `json:"type"`
	URL      string          `json:"url,omitempty"`
	Language string          `json:"language,omitempty"`
	Segments []segment       `json:"segments,omitempty"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
	State    json.RawMessage `json:"state,omitempty"`
}

type segment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Option is a functional option for configuring a [Bridge].
type Option func(*Bridge)

// WithLanguage sets the BCP 47 recognition language sent with each
// recognition.start command. The default is "ko-KR".
func WithLanguage(language string) Option {
	return func(b *Bridge) {
		if language != "" {
			b.language = language
		}
	}
}

// Bridge remotes the browser's recognition and playback capabilities over an
// accepted WebSocket connection. Obtain the two facets with [Bridge.Engine]
// and [Bridge.Player]; run [Bridge.ReadLoop] to pump inbound events.
type Bridge struct {
	conn     *websocket.Conn
	language string

	writeMu sync.Mutex

	mu        sync.Mutex
	speechH   speech.Handler
	audioH    audio.Handler
	onControl func(Control)
	started   bool
}

// New wraps an accepted WebSocket connection.
func New(conn *websocket.Conn, opts ...Option) *Bridge {
	b := &Bridge{
		conn:     conn,
		language: "ko-KR",
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SetControlHandler registers the callback for learner commands (begin, skip,
// replay). Passing nil detaches the previous handler.
func (b *Bridge) SetControlHandler(fn func(Control)) {
	b.mu.Lock()
	b.onControl = fn
	b.mu.Unlock()
}

// SendState pushes a session state snapshot to the client. v must be
// JSON-marshalable.
func (b *Bridge) SendState(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsbridge: marshal state: %w", err)
	}
	return b.send(message{Type: typeState, State: raw})
}

// Close closes the underlying connection with a normal closure status.
func (b *Bridge) Close() error {
	return b.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// send marshals and writes one message. Writes are serialized; the session
// engine issues commands from multiple goroutines.
func (b *Bridge) send(msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("wsbridge: marshal %s: %w", msg.Type, err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := b.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("wsbridge: write %s: %w", msg.Type, err)
	}
	return nil
}

// ReadLoop reads inbound messages and dispatches them until the connection
// closes or ctx is cancelled. It returns nil on a normal closure.
func (b *Bridge) ReadLoop(ctx context.Context) error {
	for {
		_, data, err := b.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wsbridge: read: %w", err)
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed frames from the client are dropped, not fatal.
			continue
		}
		b.dispatch(msg)
	}
}

// dispatch routes one inbound message to the registered handlers. Handlers
// are invoked from the read loop goroutine, so delivery is sequential.
func (b *Bridge) dispatch(msg message) {
	b.mu.Lock()
	speechH := b.speechH
	audioH := b.audioH
	onControl := b.onControl
	if msg.Type == typeRecognitionEnd {
		b.started = false
	}
	b.mu.Unlock()

	switch msg.Type {
	case typeRecognitionStarted:
		if speechH != nil {
			speechH.OnStart()
		}
	case typeRecognitionResult:
		if speechH != nil {
			segs := make([]speech.Segment, len(msg.Segments))
			for i, s := range msg.Segments {
				segs[i] = speech.Segment{Text: s.Text, Final: s.Final}
			}
			speechH.OnResult(speech.ResultEvent{Segments: segs})
		}
	case typeRecognitionError:
		if speechH != nil {
			speechH.OnError(speech.ErrorCode(msg.Code))
		}
	case typeRecognitionEnd:
		if speechH != nil {
			speechH.OnEnd()
		}
	case typeAudioEnded:
		if audioH != nil {
			audioH.OnEnded()
		}
	case typeAudioError:
		if audioH != nil {
			audioH.OnError(errors.New(msg.Message))
		}
	case typeControlBegin:
		if onControl != nil {
			onControl(ControlBegin)
		}
	case typeControlSkip:
		if onControl != nil {
			onControl(ControlSkip)
		}
	case typeControlReplay:
		if onControl != nil {
			onControl(ControlReplay)
		}
	}
}

// ── speech.Engine facet ──

// engineFacet adapts the bridge to [speech.Engine]. The two facets are
// separate types because Engine and Player both declare SetHandler.
type engineFacet struct {
	b *Bridge
}

var _ speech.Engine = engineFacet{}

// Engine returns the bridge's [speech.Engine] facet.
func (b *Bridge) Engine() speech.Engine { return engineFacet{b: b} }

func (e engineFacet) SetHandler(h speech.Handler) {
	e.b.mu.Lock()
	e.b.speechH = h
	e.b.mu.Unlock()
}

// Start asks the browser to begin a recognition run. The started flag tracks
// runs locally: the browser's own already-started error cannot be observed
// synchronously across the wire.
func (e engineFacet) Start() error {
	e.b.mu.Lock()
	if e.b.started {
		e.b.mu.Unlock()
		return speech.ErrAlreadyStarted
	}
	e.b.started = true
	e.b.mu.Unlock()

	if err := e.b.send(message{Type: typeRecognitionStart, Language: e.b.language}); err != nil {
		e.b.mu.Lock()
		e.b.started = false
		e.b.mu.Unlock()
		return err
	}
	return nil
}

func (e engineFacet) Stop() {
	_ = e.b.send(message{Type: typeRecognitionStop})
}

func (e engineFacet) Abort() {
	_ = e.b.send(message{Type: typeRecognitionAbort})
}

// ── audio.Player facet ──

type playerFacet struct {
	b *Bridge
}

var _ audio.Player = playerFacet{}

// Player returns the bridge's [audio.Player] facet.
func (b *Bridge) Player() audio.Player { return playerFacet{b: b} }

func (p playerFacet) SetHandler(h audio.Handler) {
	p.b.mu.Lock()
	p.b.audioH = h
	p.b.mu.Unlock()
}

func (p playerFacet) Play(url string) {
	_ = p.b.send(message{Type: typeAudioPlay, URL: url})
}

func (p playerFacet) Stop() {
	_ = p.b.send(message{Type: typeAudioStop})
}
