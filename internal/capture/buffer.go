package capture

// Buffer accumulates transcript text across the multiple engine runs that
// make up one logical listening span.
//
// Platform recognition engines end their runs unpredictably; every time a run
// ends while listening intent is still active, the run's finalized text is
// committed into the accumulator and a fresh run begins. The exposed
// transcript is therefore always accumulated + current-run text, and a reset
// is the only operation that cuts it.
//
// Buffer is not safe for concurrent use; the owning [Recognizer] serializes
// access under its own lock.
type Buffer struct {
	// accumulated holds finalized text committed from prior runs since the
	// last reset.
	accumulated string

	// sessionFinal holds finalized text within the active run.
	sessionFinal string

	// interim holds the live, not-yet-finalized text of the active run.
	interim string
}

// SetRun replaces the active run's finalized and interim text. Engines
// deliver their full result buffer on every event, so this is a replace,
// not an append.
func (b *Buffer) SetRun(finalText, interimText string) {
	b.sessionFinal = finalText
	b.interim = interimText
}

// CommitRun folds the active run's finalized text into the accumulator and
// clears the run-local state. Called when a run ends with listening intent
// still active.
func (b *Buffer) CommitRun() {
	b.accumulated += b.sessionFinal
	b.sessionFinal = ""
	b.interim = ""
}

// Reset clears all accumulated, finalized, and interim text.
func (b *Buffer) Reset() {
	b.accumulated = ""
	b.sessionFinal = ""
	b.interim = ""
}

// Transcript returns the exposed transcript: accumulated text plus the
// active run's finalized text.
func (b *Buffer) Transcript() string {
	return b.accumulated + b.sessionFinal
}

// Interim returns the active run's interim text.
func (b *Buffer) Interim() string {
	return b.interim
}
