package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/config"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/content"
	contentmock "github.com/42Seoul/Speak-King-Korean-LMS/internal/content/mock"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/player"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/progress"
	progressmock "github.com/42Seoul/Speak-King-Korean-LMS/internal/progress/mock"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/server"
)

// ── Fixtures ──────────────────────────────────────────────────────────────────

func koreanSet() *content.StudySet {
	return &content.StudySet{
		ID:    "set-basics",
		Title: "기초 회화",
		Items: []content.StudyItem{
			{ID: "item-1", Text: "사과가 맛있어요", Translation: "The apple is delicious", AudioURL: "https://cdn.example.com/a/1.mp3"},
		},
		TargetRepeatCount: 1,
	}
}

func fastTuning() player.Tuning {
	t := player.DefaultTuning()
	t.SkipRevealDelay = 50 * time.Millisecond
	t.ContainsAdvanceDelay = time.Millisecond
	t.SimilarityAdvanceDelay = time.Millisecond
	t.MicCheckTimeout = 2 * time.Second
	return t
}

func newTestServer(t *testing.T, store content.Store, rep progress.Reporter) *httptest.Server {
	t.Helper()
	s := server.New(
		config.ServerConfig{ListenAddr: ":0"},
		store,
		func(string) progress.Reporter { return rep },
		server.WithTuningSource(fastTuning),
	)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// ── Plain HTTP surface ────────────────────────────────────────────────────────

func TestPracticeRequiresQueryParams(t *testing.T) {
	srv := newTestServer(t, &contentmock.Store{}, &progressmock.Reporter{})

	resp, err := http.Get(srv.URL + "/practice?user_id=u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestPracticeUnknownStudySet(t *testing.T) {
	srv := newTestServer(t, &contentmock.Store{}, &progressmock.Reporter{})

	resp, err := http.Get(srv.URL + "/practice?study_set_id=missing&user_id=u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestOperationalRoutes(t *testing.T) {
	srv := newTestServer(t, &contentmock.Store{}, &progressmock.Reporter{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
		})
	}
}

// ── Browser script ────────────────────────────────────────────────────────────

// browser simulates the client side of the practice protocol: it answers
// recognition and playback commands the way a real browser would and collects
// state snapshots for assertions.
type browser struct {
	t      *testing.T
	conn   *websocket.Conn
	states chan map[string]any

	writeMu sync.Mutex

	// utterances holds speech delivered on the next recognition run.
	utterances chan string

	running bool
}

func dialBrowser(t *testing.T, srv *httptest.Server, studySetID, userID string) *browser {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/practice?study_set_id=" + studySetID + "&user_id=" + userID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	b := &browser{
		t:          t,
		conn:       conn,
		states:     make(chan map[string]any, 64),
		utterances: make(chan string, 4),
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	go b.loop()
	return b
}

func (b *browser) write(raw string) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := b.conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		b.t.Logf("browser write: %v (may be expected on close)", err)
	}
}

func (b *browser) loop() {
	for {
		_, data, err := b.conn.Read(context.Background())
		if err != nil {
			return
		}
		var msg struct {
			Type  string          `json:"type"`
			State json.RawMessage `json:"state"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "recognition.start":
			b.running = true
			b.write(`{"type":"recognition.started"}`)
			select {
			case text := <-b.utterances:
				seg, _ := json.Marshal(text)
				b.write(`{"type":"recognition.result","segments":[{"text":` + string(seg) + `,"final":true}]}`)
			default:
			}
		case "recognition.stop", "recognition.abort":
			if b.running {
				b.running = false
				b.write(`{"type":"recognition.end"}`)
			}
		case "audio.play":
			b.write(`{"type":"audio.ended"}`)
		case "state":
			var state map[string]any
			if err := json.Unmarshal(msg.State, &state); err == nil {
				b.states <- state
			}
		}
	}
}

// waitStage reads state snapshots until one carries the wanted stage.
func (b *browser) waitStage(stage string) map[string]any {
	b.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case state := <-b.states:
			if state["stage"] == stage {
				return state
			}
		case <-deadline:
			b.t.Fatalf("timed out waiting for stage %q", stage)
		}
	}
}

// ── End-to-end session over the wire ──────────────────────────────────────────

func TestPracticeSessionEndToEnd(t *testing.T) {
	store := &contentmock.Store{Sets: map[string]*content.StudySet{"set-basics": koreanSet()}}
	rep := &progressmock.Reporter{}
	srv := newTestServer(t, store, rep)

	b := dialBrowser(t, srv, "set-basics", "u-42")

	// Mic check runs on connect; the browser answers start with started and
	// stop with end, which lands the session in ready.
	b.waitStage("checking_mic")
	b.waitStage("ready")

	// Queue the learner's speech before starting so the post-audio
	// recognition run picks it up, then begin.
	b.utterances <- "사과가 맛있어요"
	b.write(`{"type":"control.begin"}`)

	b.waitStage("playing")
	final := b.waitStage("finished")

	stats, ok := final["stats"].(map[string]any)
	if !ok {
		t.Fatalf("stats = %T, want object", final["stats"])
	}
	if stats["spoken"] != float64(1) || stats["skipped"] != float64(0) {
		t.Errorf("stats = %v, want spoken 1 skipped 0", stats)
	}

	// The at-most-once progress report lands asynchronously.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && rep.CallCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if rep.CallCount() != 1 {
		t.Fatalf("report count = %d, want 1", rep.CallCount())
	}
	call := rep.LastCall()
	if call.StudySetID != "set-basics" {
		t.Errorf("reported study set = %q, want set-basics", call.StudySetID)
	}
	if call.Stats != (progress.Stats{Spoken: 1}) {
		t.Errorf("reported stats = %+v, want {Spoken:1}", call.Stats)
	}
}

func TestPracticeSkipFlow(t *testing.T) {
	store := &contentmock.Store{Sets: map[string]*content.StudySet{"set-basics": koreanSet()}}
	rep := &progressmock.Reporter{}
	srv := newTestServer(t, store, rep)

	b := dialBrowser(t, srv, "set-basics", "u-7")
	b.waitStage("ready")
	b.write(`{"type":"control.begin"}`)
	b.waitStage("playing")

	// Wait for the skip control to be revealed, then use it.
	deadline := time.After(5 * time.Second)
	for {
		var state map[string]any
		select {
		case state = <-b.states:
		case <-deadline:
			t.Fatal("timed out waiting for skip reveal")
		}
		if state["can_skip"] == true {
			break
		}
	}
	b.write(`{"type":"control.skip"}`)

	final := b.waitStage("finished")
	stats, _ := final["stats"].(map[string]any)
	if stats["skipped"] != float64(1) {
		t.Errorf("stats = %v, want skipped 1", stats)
	}
}
