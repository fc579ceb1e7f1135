// Package player implements the practice session state machine.
//
// One [Session] drives one learner through one study set: it plays each
// item's reference audio, listens to the learner repeat it, scores every
// transcript delta against the target text, and advances through the item
// list for the configured number of rounds. When the final round completes,
// the aggregate statistics are handed to the progress reporter exactly once.
//
// The session owns a single capture adapter and a single audio player for
// its whole lifetime. All state transitions are serialized under one mutex,
// and every asynchronous callback (timers, audio events, capture results)
// re-checks the session stage and an epoch counter before acting, so a
// callback scheduled for an earlier item or an already-finished session can
// never mutate later state.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/capture"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/content"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/observe"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/progress"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/score"
	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/audio"
)

// Stage is the session-level state.
type Stage string

const (
	// StageCheckingMic means the microphone round-trip check has not
	// completed yet.
	StageCheckingMic Stage = "checking_mic"

	// StageReady means the mic check passed and the session waits for the
	// learner's explicit confirmation to begin.
	StageReady Stage = "ready"

	// StagePlaying means the item loop is running.
	StagePlaying Stage = "playing"

	// StageFinished means all rounds completed. No further mutation is
	// permitted.
	StageFinished Stage = "finished"

	// StageError means a fatal capture error stopped the session. The only
	// recovery is a fresh session in a fresh navigation context.
	StageError Stage = "error"
)

// Phase is the per-item sub-state within [StagePlaying].
type Phase string

const (
	// PhaseNone applies outside the item loop.
	PhaseNone Phase = ""

	// PhasePlayingAudio means the item's reference audio is playing.
	PhasePlayingAudio Phase = "playing_audio"

	// PhaseListening means capture is active and transcripts are being
	// scored.
	PhaseListening Phase = "listening"

	// PhaseSucceeded means the item passed and advancement is scheduled.
	PhaseSucceeded Phase = "succeeded"
)

// Outcome labels how an item was resolved.
const (
	outcomeSpoken  = "spoken"
	outcomeSkipped = "skipped"
)

// Tuning holds the product tuning constants of the session loop. All values
// are configurable; [DefaultTuning] carries the shipped defaults.
type Tuning struct {
	// PassThreshold is the minimum similarity score (percent, inclusive)
	// accepted as a pass.
	PassThreshold int

	// SkipRevealDelay is how long the learner must listen before the skip
	// control is offered.
	SkipRevealDelay time.Duration

	// ContainsAdvanceDelay is the pause before advancing after a contains
	// match. Near-instant, since the learner already finished speaking.
	ContainsAdvanceDelay time.Duration

	// SimilarityAdvanceDelay is the pause before advancing after a
	// similarity match, letting the learner finish the utterance naturally.
	SimilarityAdvanceDelay time.Duration

	// MicCheckTimeout bounds the microphone round-trip check in Start.
	MicCheckTimeout time.Duration

	// ReportTimeout bounds the fire-and-forget progress report.
	ReportTimeout time.Duration
}

// DefaultTuning returns the shipped tuning values.
func DefaultTuning() Tuning {
	return Tuning{
		PassThreshold:          70,
		SkipRevealDelay:        4000 * time.Millisecond,
		ContainsAdvanceDelay:   100 * time.Millisecond,
		SimilarityAdvanceDelay: 500 * time.Millisecond,
		MicCheckTimeout:        10 * time.Second,
		ReportTimeout:          10 * time.Second,
	}
}

// Snapshot is a point-in-time view of the session state, delivered to the
// observer after every externally visible change.
type Snapshot struct {
	Stage           Stage              `json:"stage"`
	Phase           Phase              `json:"phase,omitempty"`
	ItemIndex       int                `json:"item_index"`
	ItemCount       int                `json:"item_count"`
	CompletedRounds int                `json:"completed_rounds"`
	TargetRepeats   int                `json:"target_repeats"`
	Item            *content.StudyItem `json:"item,omitempty"`
	Transcript      string             `json:"transcript"`
	Interim         string             `json:"interim,omitempty"`
	Score           score.Result       `json:"score"`
	Scored          bool               `json:"scored"`
	CanSkip         bool               `json:"can_skip"`
	Stats           progress.Stats     `json:"stats"`
	AudioError      string             `json:"audio_error,omitempty"`
	Err             string             `json:"error,omitempty"`
}

// Option is a functional option for configuring a [Session].
type Option func(*Session)

// WithTuning replaces the default tuning values.
func WithTuning(t Tuning) Option {
	return func(s *Session) { s.tuning = t }
}

// WithLogger sets the session's logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithObserver registers a callback that receives a [Snapshot] after every
// externally visible state change. The callback runs without the session
// lock held and may call back into the session.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observer = fn }
}

// Session is the practice session state machine. Create one per practice
// run with [New], drive it with Start/Begin/Skip/Replay, and release its
// resources with Dispose.
type Session struct {
	log     *slog.Logger
	metrics *observe.Metrics
	scorer  *score.Evaluator
	tuning  Tuning

	set      *content.StudySet
	rec      *capture.Recognizer
	player   audio.Player
	reporter progress.Reporter
	observer func(Snapshot)

	mu         sync.Mutex
	stage      Stage
	phase      Phase
	idx        int
	rounds     int
	stats      progress.Stats
	passed     bool
	canSkip    bool
	scored     bool
	last       score.Result
	transcript string
	interim    string
	audioErr   string
	fatal      error

	// epoch increments whenever the item cycle restarts or the session
	// finishes. Timer callbacks capture the epoch at scheduling time and
	// abandon themselves when it has moved on.
	epoch        uint64
	skipTimer    *time.Timer
	advanceTimer *time.Timer

	micCh    chan error
	reported bool
	disposed bool
}

// Compile-time check that *Session receives playback events.
var _ audio.Handler = (*Session)(nil)

// New creates a Session for one study set. The recognizer and player are
// owned exclusively by the session until Dispose; New registers itself as
// the receiver of both of their event streams.
func New(set *content.StudySet, rec *capture.Recognizer, player audio.Player, reporter progress.Reporter, opts ...Option) (*Session, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("player: recognizer must not be nil")
	}
	if player == nil {
		return nil, errors.New("player: audio player must not be nil")
	}
	if reporter == nil {
		return nil, errors.New("player: progress reporter must not be nil")
	}

	s := &Session{
		log:      slog.Default(),
		tuning:   DefaultTuning(),
		set:      set,
		rec:      rec,
		player:   player,
		reporter: reporter,
		stage:    StageCheckingMic,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.scorer = score.New(score.WithPassThreshold(s.tuning.PassThreshold))
	s.log = s.log.With("study_set", set.ID)

	player.SetHandler(s)
	rec.SetCallbacks(capture.Callbacks{
		OnTranscript: s.onTranscript,
		OnStatus:     s.onCaptureStatus,
	})
	return s, nil
}

// Start runs the microphone check: one capture start/stop round-trip that
// proves recording permission before any item plays. On success the session
// moves to [StageReady]. A capture error or timeout moves the session to
// [StageError] and is returned; there is no in-session retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stage != StageCheckingMic {
		stage := s.stage
		s.mu.Unlock()
		return fmt.Errorf("player: start called in stage %q", stage)
	}
	s.micCh = make(chan error, 1)
	s.mu.Unlock()

	if err := s.rec.StartListening(); err != nil {
		s.failMicCheck(err)
		return err
	}

	var err error
	select {
	case err = <-s.micCh:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(s.tuning.MicCheckTimeout):
		err = errors.New("player: microphone check timed out")
	}
	if err != nil {
		s.rec.StopListening()
		s.failMicCheck(err)
		return err
	}

	s.rec.StopListening()
	s.mu.Lock()
	s.micCh = nil
	s.stage = StageReady
	s.mu.Unlock()

	s.log.Info("microphone check passed")
	s.notify()
	return nil
}

// failMicCheck records a failed mic check and parks the session in the
// error stage.
func (s *Session) failMicCheck(err error) {
	s.mu.Lock()
	s.micCh = nil
	s.stage = StageError
	s.fatal = err
	s.mu.Unlock()

	s.log.Warn("microphone check failed", "err", err)
	s.notify()
}

// Begin leaves the ready gate and starts the item loop. The gate is never
// skipped automatically; the learner confirms explicitly.
func (s *Session) Begin() error {
	s.mu.Lock()
	if s.stage != StageReady {
		stage := s.stage
		s.mu.Unlock()
		return fmt.Errorf("player: begin called in stage %q", stage)
	}
	s.stage = StagePlaying
	url := s.beginItemLocked()
	s.mu.Unlock()

	s.log.Info("session begins",
		"items", len(s.set.Items), "target_repeats", s.set.TargetRepeatCount)
	s.startItem(url)
	return nil
}

// Replay restarts the current item's audio after a playback failure or on
// learner request. The item index and round are untouched; the item cycle
// simply starts over.
func (s *Session) Replay() error {
	s.mu.Lock()
	if s.stage != StagePlaying || s.passed {
		s.mu.Unlock()
		return errors.New("player: nothing to replay")
	}
	url := s.beginItemLocked()
	s.mu.Unlock()

	s.startItem(url)
	return nil
}

// Skip abandons the current item. Only available while listening, after the
// skip-reveal delay has elapsed, and before a success has been recorded.
func (s *Session) Skip() error {
	s.mu.Lock()
	if s.stage != StagePlaying || s.phase != PhaseListening || !s.canSkip || s.passed {
		s.mu.Unlock()
		return errors.New("player: skip not available")
	}
	s.canSkip = false
	epoch := s.epoch
	s.mu.Unlock()

	s.advanceItem(epoch, outcomeSkipped)
	return nil
}

// Dispose releases the session's capture and playback resources and cancels
// all pending timers. Safe to call multiple times. A disposed session that
// had not finished reports nothing.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.epoch++
	s.cancelTimersLocked()
	s.mu.Unlock()

	s.rec.StopListening()
	s.player.Stop()
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ── item cycle ───────────────────────────────────────────────────────────────

// beginItemLocked resets the per-item state for the current index and
// returns the audio URL to play. Pending timers are cancelled and the epoch
// advances so callbacks from the previous cycle abandon themselves.
func (s *Session) beginItemLocked() string {
	s.epoch++
	s.cancelTimersLocked()
	s.phase = PhasePlayingAudio
	s.passed = false
	s.canSkip = false
	s.scored = false
	s.last = score.Result{}
	s.transcript = ""
	s.interim = ""
	s.audioErr = ""
	return s.set.Items[s.idx].AudioURL
}

// startItem performs the cross-item hand-off in its required order: stop
// the previous capture, cut the transcript, then play the new reference
// audio. Capture does not restart until the audio's ended event fires.
func (s *Session) startItem(url string) {
	s.rec.StopListening()
	s.rec.ResetTranscript()
	s.player.Play(url)
	s.notify()
}

// OnEnded moves the item from audio playback into listening and arms the
// skip-reveal timer.
func (s *Session) OnEnded() {
	s.mu.Lock()
	if s.stage != StagePlaying || s.phase != PhasePlayingAudio {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseListening
	epoch := s.epoch
	s.skipTimer = time.AfterFunc(s.tuning.SkipRevealDelay, func() {
		s.revealSkip(epoch)
	})
	s.mu.Unlock()

	if err := s.rec.StartListening(); err != nil {
		s.onCaptureStatus(capture.StatusError, err)
		return
	}
	s.notify()
}

// OnError reports a playback failure. Non-fatal: the learner replays the
// item instead.
func (s *Session) OnError(err error) {
	s.mu.Lock()
	if s.stage != StagePlaying || s.phase != PhasePlayingAudio {
		s.mu.Unlock()
		return
	}
	s.audioErr = err.Error()
	itemID := s.set.Items[s.idx].ID
	s.mu.Unlock()

	s.log.Warn("audio playback failed", "item", itemID, "err", err)
	s.notify()
}

// revealSkip offers the skip control once the reveal delay elapses with no
// success recorded.
func (s *Session) revealSkip(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.stage != StagePlaying || s.phase != PhaseListening || s.passed {
		s.mu.Unlock()
		return
	}
	s.canSkip = true
	s.mu.Unlock()
	s.notify()
}

// onTranscript scores every transcript delta against the current item's
// target text. The first passing result locks the item as succeeded, stops
// capture, and schedules advancement after a match-type-dependent delay.
func (s *Session) onTranscript(transcript, interim string) {
	s.mu.Lock()
	if s.stage != StagePlaying {
		s.mu.Unlock()
		return
	}
	s.transcript = transcript
	s.interim = interim

	if s.phase != PhaseListening || s.passed {
		s.mu.Unlock()
		s.notify()
		return
	}
	candidate := transcript + interim
	if candidate == "" {
		s.mu.Unlock()
		s.notify()
		return
	}

	res := s.scorer.Evaluate(s.set.Items[s.idx].Text, candidate)
	s.last = res
	s.scored = true
	if !res.Passed {
		s.mu.Unlock()
		s.notify()
		return
	}

	s.passed = true
	s.phase = PhaseSucceeded
	s.canSkip = false
	if s.skipTimer != nil {
		s.skipTimer.Stop()
		s.skipTimer = nil
	}
	delay := s.tuning.SimilarityAdvanceDelay
	if res.Match == score.MatchContains {
		delay = s.tuning.ContainsAdvanceDelay
	}
	epoch := s.epoch
	s.advanceTimer = time.AfterFunc(delay, func() {
		s.advanceItem(epoch, outcomeSpoken)
	})
	s.mu.Unlock()

	s.metrics.RecordScore(context.Background(), float64(res.Score))
	s.rec.StopListening()
	s.notify()
}

// onCaptureStatus handles capture adapter status changes. During the mic
// check the result is routed to Start; afterwards only fatal errors matter,
// and they stop the session outright.
func (s *Session) onCaptureStatus(status capture.Status, err error) {
	s.mu.Lock()
	if s.micCh != nil && s.stage == StageCheckingMic {
		ch := s.micCh
		s.mu.Unlock()
		switch status {
		case capture.StatusListening:
			select {
			case ch <- nil:
			default:
			}
		case capture.StatusError:
			select {
			case ch <- err:
			default:
			}
		}
		return
	}

	if status != capture.StatusError || s.stage == StageFinished || s.stage == StageError {
		s.mu.Unlock()
		return
	}
	s.stage = StageError
	s.fatal = err
	s.epoch++
	s.cancelTimersLocked()
	s.mu.Unlock()

	s.log.Warn("capture failed, session stopped", "err", err)
	s.player.Stop()
	s.notify()
}

// advanceItem resolves the current item with the given outcome and moves the
// loop forward: next item, next round, or session finish. A stale epoch or a
// non-playing stage means the cycle already moved on and the call is a no-op.
func (s *Session) advanceItem(epoch uint64, outcome string) {
	s.mu.Lock()
	if epoch != s.epoch || s.stage != StagePlaying || s.disposed {
		s.mu.Unlock()
		return
	}

	if outcome == outcomeSkipped {
		s.stats.Skipped++
	} else {
		s.stats.Spoken++
	}

	if s.idx == len(s.set.Items)-1 {
		s.rounds++
		if s.rounds == s.set.TargetRepeatCount {
			s.finishLocked()
			stats := s.stats
			s.mu.Unlock()

			s.metrics.RecordItemOutcome(context.Background(), outcome)
			s.finish(stats)
			return
		}
		s.idx = 0
	} else {
		s.idx++
	}
	url := s.beginItemLocked()
	s.mu.Unlock()

	s.metrics.RecordItemOutcome(context.Background(), outcome)
	s.startItem(url)
}

// finishLocked transitions to the finished stage. The epoch bump and timer
// cancellation guarantee no pending callback can act afterwards.
func (s *Session) finishLocked() {
	s.stage = StageFinished
	s.phase = PhaseNone
	s.epoch++
	s.cancelTimersLocked()
}

// finish releases the capture and playback resources and hands the final
// stats to the progress reporter, at most once, fire-and-forget. A failed
// report is logged and counted; the session is complete for the learner
// regardless.
func (s *Session) finish(stats progress.Stats) {
	s.rec.StopListening()
	s.player.Stop()

	s.mu.Lock()
	alreadyReported := s.reported
	s.reported = true
	s.mu.Unlock()

	ctx := context.Background()
	s.metrics.SessionsCompleted.Add(ctx, 1)
	s.log.Info("session finished", "spoken", stats.Spoken, "skipped", stats.Skipped)

	if !alreadyReported {
		go s.report(stats)
	}
	s.notify()
}

// report delivers the final stats to the progress reporter with a bounded
// timeout. No retry; at-most-once delivery per session is acceptable.
func (s *Session) report(stats progress.Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), s.tuning.ReportTimeout)
	defer cancel()

	if err := s.reporter.ReportSessionComplete(ctx, s.set.ID, stats); err != nil {
		s.log.Warn("progress report failed", "err", err)
		s.metrics.RecordReportError(ctx)
	}
}

// cancelTimersLocked stops and clears both pending timers.
func (s *Session) cancelTimersLocked() {
	if s.skipTimer != nil {
		s.skipTimer.Stop()
		s.skipTimer = nil
	}
	if s.advanceTimer != nil {
		s.advanceTimer.Stop()
		s.advanceTimer = nil
	}
}

// snapshotLocked assembles a Snapshot from the current state.
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Stage:           s.stage,
		Phase:           s.phase,
		ItemIndex:       s.idx,
		ItemCount:       len(s.set.Items),
		CompletedRounds: s.rounds,
		TargetRepeats:   s.set.TargetRepeatCount,
		Transcript:      s.transcript,
		Interim:         s.interim,
		Score:           s.last,
		Scored:          s.scored,
		CanSkip:         s.canSkip,
		Stats:           s.stats,
		AudioError:      s.audioErr,
	}
	if s.stage == StagePlaying {
		snap.Item = &s.set.Items[s.idx]
	}
	if s.fatal != nil {
		snap.Err = s.fatal.Error()
	}
	return snap
}

// notify delivers a snapshot to the observer, outside the session lock.
func (s *Session) notify() {
	if s.observer == nil {
		return
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.observer(snap)
}
