// Package mock provides a test double for the audio package interfaces.
//
// The Player records Play/Stop calls and lets tests fire the ended and error
// events directly, simulating the asynchronous playback lifecycle.
package mock

import (
	"sync"

	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/audio"
)

// Player is a mock implementation of audio.Player.
type Player struct {
	mu sync.Mutex

	handler audio.Handler

	// PlayCalls records the URL of every Play call in order.
	PlayCalls []string

	// StopCalls is the number of Stop calls.
	StopCalls int
}

// Compile-time interface check.
var _ audio.Player = (*Player)(nil)

// SetHandler stores h for later Emit* calls.
func (p *Player) SetHandler(h audio.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Play records the call.
func (p *Player) Play(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, url)
}

// Stop records the call.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StopCalls++
}

// LastPlayed returns the most recently played URL, or "" if Play was never
// called. Thread-safe.
func (p *Player) LastPlayed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.PlayCalls) == 0 {
		return ""
	}
	return p.PlayCalls[len(p.PlayCalls)-1]
}

// PlayCallCount returns the number of Play calls. Thread-safe.
func (p *Player) PlayCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PlayCalls)
}

// EmitEnded delivers OnEnded to the handler.
func (p *Player) EmitEnded() {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h.OnEnded()
	}
}

// EmitError delivers OnError to the handler.
func (p *Player) EmitError(err error) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h.OnError(err)
	}
}
