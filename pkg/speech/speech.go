// Package speech defines the Engine interface for continuous speech
// recognition backends.
//
// An Engine wraps a platform recognition capability (typically the browser's
// recognition API, reached over a transport such as [wsbridge]) and exposes a
// uniform event-driven surface: Start/Stop/Abort actions and
// start/result/error/end events delivered to a [Handler].
//
// Engines are modeled as unreliable: a run may end on its own at any time
// (silence timeouts, engine-imposed limits) and may deliver one more buffered
// result event after a stop has been requested. Callers that need a stable
// "listening" abstraction over this behaviour should use the capture layer,
// which restarts runs transparently and accumulates transcripts across them.
//
// Handler callbacks are delivered sequentially from a single goroutine per
// engine; implementations must not invoke two callbacks concurrently.
package speech

import "errors"

// ErrAlreadyStarted is returned by Start when a recognition run is already
// in progress. Callers restarting an engine from an end event may ignore it.
var ErrAlreadyStarted = errors.New("speech: recognition already started")

// ErrorCode identifies a recognition engine error condition. The values
// mirror the error names platform recognition engines report.
type ErrorCode string

const (
	// ErrNoSpeech means the engine detected no speech before its internal
	// timeout. Expected during natural pauses; not a failure.
	ErrNoSpeech ErrorCode = "no-speech"

	// ErrAborted means a run was terminated by an explicit Abort call.
	ErrAborted ErrorCode = "aborted"

	// ErrNotAllowed means the user or platform denied microphone permission.
	ErrNotAllowed ErrorCode = "not-allowed"

	// ErrServiceNotAllowed means the recognition service itself is blocked
	// (e.g. by browser policy). Treated identically to ErrNotAllowed.
	ErrServiceNotAllowed ErrorCode = "service-not-allowed"

	// ErrAudioCapture means the microphone could not deliver audio.
	ErrAudioCapture ErrorCode = "audio-capture"

	// ErrNetwork means the engine lost its connection to the recognition
	// service mid-run.
	ErrNetwork ErrorCode = "network"
)

// Fatal reports whether the error code represents a permission or capability
// failure the engine cannot recover from by restarting.
func (c ErrorCode) Fatal() bool {
	return c == ErrNotAllowed || c == ErrServiceNotAllowed
}

// Segment is one recognized span of the current run's result buffer.
type Segment struct {
	// Text is the recognized text for this segment.
	Text string

	// Final reports whether the engine has committed to this segment.
	// Non-final segments are low-latency guesses that may still change.
	Final bool
}

// ResultEvent carries the engine's full result buffer for the current run.
// Each event replaces the previous one: consumers recompute their finalized
// and interim views from the segment list rather than appending deltas.
type ResultEvent struct {
	Segments []Segment
}

// Handler receives engine lifecycle and recognition events.
//
// OnStart fires when a run begins accepting audio. OnResult fires for every
// update to the run's result buffer. OnError reports an engine error; the run
// usually ends afterwards. OnEnd fires exactly once per run, whether the run
// ended naturally, by Stop, by Abort, or after an error.
type Handler interface {
	OnStart()
	OnResult(ev ResultEvent)
	OnError(code ErrorCode)
	OnEnd()
}

// Engine is the abstraction over a continuous, interim-enabled recognition
// capability.
//
// SetHandler must be called before the first Start; passing nil detaches the
// previous handler. Start begins a new recognition run. Stop requests a
// graceful end of the current run — buffered audio may still produce one
// final result before OnEnd. Abort terminates the run immediately and
// discards any in-flight results.
type Engine interface {
	SetHandler(h Handler)
	Start() error
	Stop()
	Abort()
}
