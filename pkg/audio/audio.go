// Package audio defines the playback abstraction used by the practice
// session engine.
//
// A Player owns a single playback resource: it accepts a URL-like reference
// to the item's recorded pronunciation and reports completion or failure
// through a [Handler]. Exactly one clip plays at a time; calling Play while a
// clip is in flight replaces it.
//
// The concrete implementation usually lives on the learner's device (the
// browser plays the clip and reports the ended event back over the wsbridge
// transport); the interface keeps the session engine platform-free.
package audio

// Handler receives playback lifecycle events.
//
// OnEnded fires when the current clip finishes playing to completion.
// OnError fires when playback fails to start or aborts; the error is
// non-fatal to a practice session — the engine offers a replay instead.
type Handler interface {
	OnEnded()
	OnError(err error)
}

// Player is the abstraction over an audio playback resource.
//
// SetHandler must be called before the first Play; passing nil detaches the
// previous handler. Play begins playback of the clip at url. Stop halts any
// in-flight playback without firing OnEnded.
type Player interface {
	SetHandler(h Handler)
	Play(url string)
	Stop()
}
