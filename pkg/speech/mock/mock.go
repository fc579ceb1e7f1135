// Package mock provides a scripted test double for the speech package
// interfaces.
//
// The Engine records Start/Stop/Abort calls and lets tests drive the handler
// directly through the Emit* helpers, simulating the platform engine's
// asynchronous event delivery without any real recognition backend.
//
// Example:
//
//	eng := &mock.Engine{}
//	rec, _ := capture.New(eng)
//	rec.StartListening()
//	eng.EmitStart()
//	eng.EmitResult(speech.ResultEvent{Segments: []speech.Segment{{Text: "안녕", Final: false}}})
package mock

import (
	"sync"

	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/speech"
)

// Engine is a mock implementation of speech.Engine.
type Engine struct {
	mu sync.Mutex

	handler speech.Handler

	// StartErr, if non-nil, is returned by every Start call.
	StartErr error

	// Running mirrors what a real engine would track: set by Start, cleared
	// by Stop/Abort/EmitEnd. When Running is true, Start returns
	// speech.ErrAlreadyStarted.
	Running bool

	// Call counters.
	StartCalls int
	StopCalls  int
	AbortCalls int
}

// Compile-time interface check.
var _ speech.Engine = (*Engine)(nil)

// SetHandler stores h for later Emit* calls.
func (e *Engine) SetHandler(h speech.Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Start records the call. It returns StartErr if set, or
// speech.ErrAlreadyStarted when a run is already in progress.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StartCalls++
	if e.StartErr != nil {
		return e.StartErr
	}
	if e.Running {
		return speech.ErrAlreadyStarted
	}
	e.Running = true
	return nil
}

// Stop records the call. It does not emit OnEnd; tests decide when (and
// whether) the run actually ends via EmitEnd, which is how real engines
// behave — stop is a request, not a synchronous termination.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StopCalls++
}

// Abort records the call. Like Stop, the end event is test-driven.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.AbortCalls++
}

// handlerLocked returns the current handler under lock.
func (e *Engine) handlerLocked() speech.Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler
}

// EmitStart delivers OnStart to the handler.
func (e *Engine) EmitStart() {
	if h := e.handlerLocked(); h != nil {
		h.OnStart()
	}
}

// EmitResult delivers a result event to the handler.
func (e *Engine) EmitResult(ev speech.ResultEvent) {
	if h := e.handlerLocked(); h != nil {
		h.OnResult(ev)
	}
}

// EmitError delivers an error event to the handler.
func (e *Engine) EmitError(code speech.ErrorCode) {
	if h := e.handlerLocked(); h != nil {
		h.OnError(code)
	}
}

// EmitEnd clears Running and delivers OnEnd to the handler.
func (e *Engine) EmitEnd() {
	e.mu.Lock()
	e.Running = false
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h.OnEnd()
	}
}

// EmitFinal is a convenience helper that delivers a single-segment final
// result event.
func (e *Engine) EmitFinal(text string) {
	e.EmitResult(speech.ResultEvent{Segments: []speech.Segment{{Text: text, Final: true}}})
}

// EmitInterim is a convenience helper that delivers a single-segment interim
// result event.
func (e *Engine) EmitInterim(text string) {
	e.EmitResult(speech.ResultEvent{Segments: []speech.Segment{{Text: text, Final: false}}})
}

// Counts returns the Start/Stop/Abort call counts. Thread-safe.
func (e *Engine) Counts() (starts, stops, aborts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.StartCalls, e.StopCalls, e.AbortCalls
}
