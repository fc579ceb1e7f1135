package wsbridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/speech"
	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/speech/wsbridge"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newBridgePair builds a bridge over an accepted server-side connection and
// returns it together with the client-side connection playing the browser.
func newBridgePair(t *testing.T, opts ...wsbridge.Option) (*wsbridge.Bridge, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	browser, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var serverConn *websocket.Conn
	select {
	case serverConn = <-connCh:
	case <-ctx.Done():
		t.Fatal("timed out waiting for accepted connection")
	}

	b := wsbridge.New(serverConn, opts...)
	t.Cleanup(func() {
		_ = b.Close()
		_ = browser.Close(websocket.StatusNormalClosure, "test done")
	})
	return b, browser
}

// readFrame reads one text frame from the browser side and decodes it into a
// generic map.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return m
}

// writeFrame sends a raw JSON string from the browser side.
func writeFrame(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// speechRecorder records speech.Handler callbacks.
type speechRecorder struct {
	mu      sync.Mutex
	starts  int
	results []speech.ResultEvent
	errors  []speech.ErrorCode
	ends    int
}

func (r *speechRecorder) OnStart() {
	r.mu.Lock()
	r.starts++
	r.mu.Unlock()
}

func (r *speechRecorder) OnResult(ev speech.ResultEvent) {
	r.mu.Lock()
	r.results = append(r.results, ev)
	r.mu.Unlock()
}

func (r *speechRecorder) OnError(code speech.ErrorCode) {
	r.mu.Lock()
	r.errors = append(r.errors, code)
	r.mu.Unlock()
}

func (r *speechRecorder) OnEnd() {
	r.mu.Lock()
	r.ends++
	r.mu.Unlock()
}

// audioRecorder records audio.Handler callbacks.
type audioRecorder struct {
	mu     sync.Mutex
	ended  int
	errors []error
}

func (r *audioRecorder) OnEnded() {
	r.mu.Lock()
	r.ended++
	r.mu.Unlock()
}

func (r *audioRecorder) OnError(err error) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.mu.Unlock()
}

// waitFor polls fn until it returns true or the deadline passes.
func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// ── Engine facet ──────────────────────────────────────────────────────────────

func TestEngineStartSendsCommand(t *testing.T) {
	b, browser := newBridgePair(t, wsbridge.WithLanguage("ko-KR"))
	eng := b.Engine()

	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	frame := readFrame(t, browser)
	if frame["type"] != "recognition.start" {
		t.Errorf("type = %v, want recognition.start", frame["type"])
	}
	if frame["language"] != "ko-KR" {
		t.Errorf("language = %v, want ko-KR", frame["language"])
	}
}

func TestEngineStartTwiceReturnsAlreadyStarted(t *testing.T) {
	b, browser := newBridgePair(t)
	eng := b.Engine()

	if err := eng.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	readFrame(t, browser)

	if err := eng.Start(); !errors.Is(err, speech.ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestEngineRestartAfterEnd(t *testing.T) {
	b, browser := newBridgePair(t)
	rec := &speechRecorder{}
	eng := b.Engine()
	eng.SetHandler(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ReadLoop(ctx) }()

	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	readFrame(t, browser)

	writeFrame(t, browser, `{"type":"recognition.end"}`)
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.ends == 1
	})

	if err := eng.Start(); err != nil {
		t.Fatalf("Start after end: %v", err)
	}
	frame := readFrame(t, browser)
	if frame["type"] != "recognition.start" {
		t.Errorf("type = %v, want recognition.start", frame["type"])
	}
}

func TestEngineStopAndAbortSendCommands(t *testing.T) {
	b, browser := newBridgePair(t)
	eng := b.Engine()

	eng.Stop()
	if frame := readFrame(t, browser); frame["type"] != "recognition.stop" {
		t.Errorf("type = %v, want recognition.stop", frame["type"])
	}
	eng.Abort()
	if frame := readFrame(t, browser); frame["type"] != "recognition.abort" {
		t.Errorf("type = %v, want recognition.abort", frame["type"])
	}
}

// ── Inbound dispatch ──────────────────────────────────────────────────────────

func TestDispatchRecognitionEvents(t *testing.T) {
	b, browser := newBridgePair(t)
	rec := &speechRecorder{}
	b.Engine().SetHandler(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ReadLoop(ctx) }()

	writeFrame(t, browser, `{"type":"recognition.started"}`)
	writeFrame(t, browser, `{"type":"recognition.result","segments":[{"text":"안녕하세요","final":true},{"text":" 반갑","final":false}]}`)
	writeFrame(t, browser, `{"type":"recognition.error","code":"no-speech"}`)
	writeFrame(t, browser, `{"type":"recognition.end"}`)

	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.ends == 1
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.starts != 1 {
		t.Errorf("starts = %d, want 1", rec.starts)
	}
	if len(rec.results) != 1 {
		t.Fatalf("results = %d, want 1", len(rec.results))
	}
	segs := rec.results[0].Segments
	if len(segs) != 2 || segs[0] != (speech.Segment{Text: "안녕하세요", Final: true}) || segs[1] != (speech.Segment{Text: " 반갑", Final: false}) {
		t.Errorf("segments = %+v", segs)
	}
	if len(rec.errors) != 1 || rec.errors[0] != speech.ErrNoSpeech {
		t.Errorf("errors = %v, want [no-speech]", rec.errors)
	}
}

func TestDispatchAudioEvents(t *testing.T) {
	b, browser := newBridgePair(t)
	rec := &audioRecorder{}
	b.Player().SetHandler(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ReadLoop(ctx) }()

	writeFrame(t, browser, `{"type":"audio.ended"}`)
	writeFrame(t, browser, `{"type":"audio.error","message":"decode failed"}`)

	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.ended == 1 && len(rec.errors) == 1
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.errors[0].Error() != "decode failed" {
		t.Errorf("error = %q, want decode failed", rec.errors[0])
	}
}

func TestDispatchControlCommands(t *testing.T) {
	b, browser := newBridgePair(t)

	var (
		mu   sync.Mutex
		cmds []wsbridge.Control
	)
	b.SetControlHandler(func(c wsbridge.Control) {
		mu.Lock()
		cmds = append(cmds, c)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ReadLoop(ctx) }()

	writeFrame(t, browser, `{"type":"control.begin"}`)
	writeFrame(t, browser, `{"type":"control.skip"}`)
	writeFrame(t, browser, `{"type":"control.replay"}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cmds) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	want := []wsbridge.Control{wsbridge.ControlBegin, wsbridge.ControlSkip, wsbridge.ControlReplay}
	for i, c := range want {
		if cmds[i] != c {
			t.Errorf("cmds[%d] = %q, want %q", i, cmds[i], c)
		}
	}
}

func TestMalformedFrameIsIgnored(t *testing.T) {
	b, browser := newBridgePair(t)
	rec := &speechRecorder{}
	b.Engine().SetHandler(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ReadLoop(ctx) }()

	writeFrame(t, browser, `{not json`)
	writeFrame(t, browser, `{"type":"recognition.started"}`)

	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.starts == 1
	})
}

// ── Player facet and state push ───────────────────────────────────────────────

func TestPlayerCommands(t *testing.T) {
	b, browser := newBridgePair(t)
	p := b.Player()

	p.Play("https://cdn.example.com/audio/item-1.mp3")
	frame := readFrame(t, browser)
	if frame["type"] != "audio.play" {
		t.Errorf("type = %v, want audio.play", frame["type"])
	}
	if frame["url"] != "https://cdn.example.com/audio/item-1.mp3" {
		t.Errorf("url = %v", frame["url"])
	}

	p.Stop()
	if frame := readFrame(t, browser); frame["type"] != "audio.stop" {
		t.Errorf("type = %v, want audio.stop", frame["type"])
	}
}

func TestSendState(t *testing.T) {
	b, browser := newBridgePair(t)

	if err := b.SendState(map[string]any{"stage": "playing", "item_index": 2}); err != nil {
		t.Fatalf("SendState: %v", err)
	}
	frame := readFrame(t, browser)
	if frame["type"] != "state" {
		t.Errorf("type = %v, want state", frame["type"])
	}
	state, ok := frame["state"].(map[string]any)
	if !ok {
		t.Fatalf("state = %T, want object", frame["state"])
	}
	if state["stage"] != "playing" {
		t.Errorf("state.stage = %v, want playing", state["stage"])
	}
}

func TestReadLoopReturnsNilOnNormalClosure(t *testing.T) {
	b, browser := newBridgePair(t)

	done := make(chan error, 1)
	go func() { done <- b.ReadLoop(context.Background()) }()

	if err := browser.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ReadLoop = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ReadLoop did not return after close")
	}
}
