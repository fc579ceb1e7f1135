// Package capture turns an unreliable platform recognition engine into a
// stable, restartable listening stream.
//
// The platform engine (see [speech.Engine]) ends its runs whenever it likes —
// silence timeouts, engine-imposed limits — and may deliver a stale buffered
// result after a stop has been requested. The Recognizer hides all of that
// behind an explicit listening intent: while the caller wants to listen, runs
// that end are restarted transparently and their finalized text accumulates;
// when the caller stops, the engine is released and the transcript freezes.
//
// The intent flag, not the engine's own run state, is the source of truth.
// Every engine callback checks it before acting, which replaces
// "whichever callback fires last wins" races with a deterministic guard.
package capture

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/speech"
)

// Status is the externally visible state of a Recognizer.
type Status string

const (
	// StatusIdle means no listening intent is active.
	StatusIdle Status = "idle"

	// StatusListening means a recognition run is accepting audio.
	StatusListening Status = "listening"

	// StatusError means a fatal capture error occurred; see [Recognizer.Err].
	StatusError Status = "error"
)

// ErrUnsupported is returned by [New] when the environment provides no
// recognition capability at all. There is no in-session recovery.
var ErrUnsupported = errors.New("capture: speech recognition is not supported in this environment")

// ErrPermissionDenied is the error held by a Recognizer whose engine reported
// a microphone permission or service-policy denial. Capture cannot self-heal
// from this; a fresh navigation context is required.
var ErrPermissionDenied = errors.New("capture: microphone permission denied")

// Callbacks receive transcript and status changes from a Recognizer.
// Either field may be nil. Callbacks are invoked without the Recognizer's
// internal lock held, so they may call back into the Recognizer freely.
type Callbacks struct {
	// OnTranscript fires whenever the exposed transcript or interim text
	// changes.
	OnTranscript func(transcript, interim string)

	// OnStatus fires on every status transition. err is non-nil only for
	// StatusError.
	OnStatus func(status Status, err error)
}

// Recognizer is the continuous speech capture adapter. One Recognizer wraps
// one engine for the lifetime of a practice session.
//
// All exported methods are safe for concurrent use, although in practice all
// calls arrive from the session engine's single logical event flow.
type Recognizer struct {
	mu     sync.Mutex
	engine speech.Engine
	cb     Callbacks

	// intent is the caller's listening intent, independent of the engine's
	// run state. Set by StartListening, cleared by StopListening and by
	// fatal errors.
	intent bool

	// running tracks whether an engine run is active (Start accepted
	// through OnEnd delivered).
	running bool

	// dropResults discards result events between a ResetTranscript abort
	// and the run's OnEnd, so a stale buffered result cannot repopulate a
	// transcript that was just cut.
	dropResults bool

	status Status
	err    error
	buf    Buffer
}

// Compile-time check that *Recognizer receives engine events.
var _ speech.Handler = (*Recognizer)(nil)

// New creates a Recognizer wrapping engine and registers itself as the
// engine's handler. Returns [ErrUnsupported] when engine is nil — the
// adapter is then permanently unavailable, mirroring a runtime without the
// recognition capability.
func New(engine speech.Engine) (*Recognizer, error) {
	if engine == nil {
		return nil, ErrUnsupported
	}
	r := &Recognizer{
		engine: engine,
		status: StatusIdle,
	}
	engine.SetHandler(r)
	return r, nil
}

// SetCallbacks registers cb for transcript and status notifications,
// replacing any previous registration.
func (r *Recognizer) SetCallbacks(cb Callbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

// StartListening sets the listening intent and starts an engine run.
// Returns [ErrPermissionDenied] if a prior fatal permission error disabled
// capture. An engine that is already running is not an error: the active run
// simply continues under the renewed intent.
func (r *Recognizer) StartListening() error {
	r.mu.Lock()
	if r.status == StatusError {
		err := r.err
		r.mu.Unlock()
		return err
	}
	r.intent = true
	r.mu.Unlock()

	if err := r.engine.Start(); err != nil && !errors.Is(err, speech.ErrAlreadyStarted) {
		r.mu.Lock()
		r.intent = false
		r.mu.Unlock()
		return err
	}
	return nil
}

// StopListening clears the listening intent and requests a graceful end of
// the active run. The transcript is left intact; a trailing final result the
// engine delivers before the run ends is still recorded.
func (r *Recognizer) StopListening() {
	r.mu.Lock()
	r.intent = false
	var notify func(Status, error)
	if r.status == StatusListening {
		r.status = StatusIdle
		notify = r.cb.OnStatus
	}
	r.mu.Unlock()

	r.engine.Stop()
	if notify != nil {
		notify(StatusIdle, nil)
	}
}

// ResetTranscript clears all accumulated, finalized, and interim text and
// force-terminates the active engine run. A graceful stop is insufficient
// here: engines may emit one more buffered result event after a stop is
// requested, and that stale result must not leak into the next item's
// transcript. Results arriving between the abort and the run's end event
// are dropped.
func (r *Recognizer) ResetTranscript() {
	r.mu.Lock()
	changed := r.buf.Transcript() != "" || r.buf.Interim() != ""
	r.buf.Reset()
	if r.running {
		r.dropResults = true
	}
	notify := r.cb.OnTranscript
	r.mu.Unlock()

	r.engine.Abort()
	if changed && notify != nil {
		notify("", "")
	}
}

// Transcript returns the exposed transcript (accumulated plus the active
// run's finalized text).
func (r *Recognizer) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Transcript()
}

// Interim returns the active run's interim text.
func (r *Recognizer) Interim() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Interim()
}

// Status returns the current adapter status.
func (r *Recognizer) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the fatal capture error, or nil.
func (r *Recognizer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ── speech.Handler ───────────────────────────────────────────────────────────

// OnStart marks the run active and surfaces the listening status.
func (r *Recognizer) OnStart() {
	r.mu.Lock()
	r.running = true
	var notify func(Status, error)
	if r.intent && r.status != StatusError && r.status != StatusListening {
		r.status = StatusListening
		notify = r.cb.OnStatus
	}
	r.mu.Unlock()

	if notify != nil {
		notify(StatusListening, nil)
	}
}

// OnResult recomputes the active run's finalized and interim text from the
// engine's result buffer and publishes the updated transcript.
func (r *Recognizer) OnResult(ev speech.ResultEvent) {
	r.mu.Lock()
	if r.dropResults {
		r.mu.Unlock()
		return
	}

	var finalText, interimText string
	for _, seg := range ev.Segments {
		if seg.Final {
			finalText += seg.Text
		} else {
			interimText += seg.Text
		}
	}
	r.buf.SetRun(finalText, interimText)

	transcript := r.buf.Transcript()
	interim := r.buf.Interim()
	notify := r.cb.OnTranscript
	r.mu.Unlock()

	if notify != nil {
		notify(transcript, interim)
	}
}

// OnError classifies engine errors. Expected noise (no speech during natural
// pauses, aborts from our own reset) is swallowed. Permission and
// service-policy denials are fatal: the intent is forcibly cleared because
// the engine cannot self-heal from them. Anything else is transient — the
// run will end and the restart loop recovers.
func (r *Recognizer) OnError(code speech.ErrorCode) {
	switch {
	case code == speech.ErrNoSpeech, code == speech.ErrAborted:
		return
	case code.Fatal():
		r.mu.Lock()
		r.intent = false
		r.status = StatusError
		r.err = ErrPermissionDenied
		notify := r.cb.OnStatus
		r.mu.Unlock()

		slog.Warn("speech capture disabled", "code", code)
		if notify != nil {
			notify(StatusError, ErrPermissionDenied)
		}
	default:
		slog.Debug("transient speech engine error", "code", code)
	}
}

// OnEnd handles the end of an engine run. While listening intent is active
// the run's finalized text is committed and the engine restarted
// immediately; otherwise the adapter goes idle.
func (r *Recognizer) OnEnd() {
	r.mu.Lock()
	r.running = false
	r.dropResults = false

	restart := r.intent && r.status != StatusError
	var notifyStatus func(Status, error)
	var notifyTranscript func(string, string)
	if restart {
		hadInterim := r.buf.Interim() != ""
		r.buf.CommitRun()
		if hadInterim {
			// The exposed transcript value is unchanged by the commit, but
			// the interim text just vanished.
			notifyTranscript = r.cb.OnTranscript
		}
	} else if r.status == StatusListening {
		r.status = StatusIdle
		notifyStatus = r.cb.OnStatus
	}
	transcript := r.buf.Transcript()
	r.mu.Unlock()

	if restart {
		if err := r.engine.Start(); err != nil && !errors.Is(err, speech.ErrAlreadyStarted) {
			slog.Warn("speech engine restart failed", "err", err)
		}
	}
	if notifyTranscript != nil {
		notifyTranscript(transcript, "")
	}
	if notifyStatus != nil {
		notifyStatus(StatusIdle, nil)
	}
}
