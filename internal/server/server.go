// Package server exposes the practice engine over HTTP.
//
// The main surface is GET /practice, a WebSocket endpoint that hosts one
// practice session per connection: the browser's recognition and playback
// capabilities are remoted over the socket via [wsbridge], the session state
// machine runs server-side, and every state change is pushed back to the
// client as a JSON snapshot. Health probes and Prometheus metrics round out
// the operational surface.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/capture"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/config"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/content"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/health"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/observe"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/player"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/progress"
	"github.com/42Seoul/Speak-King-Korean-LMS/pkg/speech/wsbridge"
)

// shutdownTimeout bounds graceful HTTP shutdown after ctx cancellation.
const shutdownTimeout = 10 * time.Second

// ReporterFactory yields the progress reporter for one learner. The server
// calls it once per practice connection.
type ReporterFactory func(userID string) progress.Reporter

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithLogger sets the server's logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheckers registers readiness checks for /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.health = health.New(checkers...) }
}

// WithTuningSource sets the function consulted for each new session's tuning.
// A config watcher can swap values between sessions; running sessions keep
// the tuning they started with.
func WithTuningSource(fn func() player.Tuning) Option {
	return func(s *Server) { s.tuning = fn }
}

// WithLanguageSource sets the function consulted for each new session's
// recognition language.
func WithLanguageSource(fn func() string) Option {
	return func(s *Server) { s.language = fn }
}

// Server hosts practice sessions over WebSocket plus the operational
// endpoints (/healthz, /readyz, /metrics).
type Server struct {
	cfg       config.ServerConfig
	store     content.Store
	reporters ReporterFactory
	metrics   *observe.Metrics
	log       *slog.Logger
	health    *health.Handler
	tuning    func() player.Tuning
	language  func() string

	// sessionWG tracks live practice connections for drain on shutdown.
	sessionWG sync.WaitGroup
}

// New creates a Server. store supplies study sets; reporters supplies a
// progress reporter per learner.
func New(cfg config.ServerConfig, store content.Store, reporters ReporterFactory, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		reporters: reporters,
		log:       slog.Default(),
		health:    health.New(),
		tuning:    player.DefaultTuning,
		language:  func() string { return "ko-KR" },
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler builds the full route tree wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /practice", s.handlePractice)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully and waits
// for live practice sessions to wind down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if s.cfg.TLS != nil {
			s.log.Info("listening", "addr", s.cfg.ListenAddr, "tls", true)
			err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.log.Info("listening", "addr", s.cfg.ListenAddr, "tls", false)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	})

	err := g.Wait()
	s.sessionWG.Wait()
	return err
}

// handlePractice upgrades the request to a WebSocket and hosts one practice
// session on it until either side disconnects.
func (s *Server) handlePractice(w http.ResponseWriter, r *http.Request) {
	studySetID := r.URL.Query().Get("study_set_id")
	userID := r.URL.Query().Get("user_id")
	if studySetID == "" || userID == "" {
		http.Error(w, "study_set_id and user_id query parameters are required", http.StatusBadRequest)
		return
	}

	set, err := s.store.LoadStudySet(r.Context(), studySetID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			http.Error(w, "study set not found", http.StatusNotFound)
			return
		}
		s.log.Error("load study set", "study_set", studySetID, "err", err)
		http.Error(w, "failed to load study set", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}

	s.sessionWG.Add(1)
	defer s.sessionWG.Done()

	sessionID := uuid.NewString()
	log := s.log.With("session_id", sessionID, "user_id", userID, "study_set", studySetID)

	bridge := wsbridge.New(conn, wsbridge.WithLanguage(s.language()))
	defer bridge.Close()

	sess, err := s.buildSession(set, bridge, userID, log)
	if err != nil {
		log.Error("build session", "err", err)
		return
	}
	defer sess.Dispose()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)
	log.Info("practice session opened", "items", len(set.Items), "repeats", set.TargetRepeatCount)

	// The client sees the initial checking_mic state before any event fires.
	if err := bridge.SendState(sess.Snapshot()); err != nil {
		log.Warn("initial state push failed", "err", err)
		return
	}

	// The mic check blocks on capture events, which arrive through the read
	// loop below, so it runs concurrently.
	go func() {
		if err := sess.Start(ctx); err != nil {
			log.Warn("mic check failed", "err", err)
		}
	}()

	if err := bridge.ReadLoop(ctx); err != nil {
		log.Warn("practice session ended", "err", err)
		return
	}
	log.Info("practice session closed")
}

// buildSession assembles the capture layer and state machine for one
// connection.
func (s *Server) buildSession(set *content.StudySet, bridge *wsbridge.Bridge, userID string, log *slog.Logger) (*player.Session, error) {
	rec, err := capture.New(bridge.Engine())
	if err != nil {
		return nil, err
	}

	sess, err := player.New(set, rec, bridge.Player(), s.reporters(userID),
		player.WithTuning(s.tuning()),
		player.WithLogger(log),
		player.WithMetrics(s.metrics),
		player.WithObserver(func(snap player.Snapshot) {
			if err := bridge.SendState(snap); err != nil {
				log.Debug("state push failed", "err", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	bridge.SetControlHandler(func(c wsbridge.Control) {
		var err error
		switch c {
		case wsbridge.ControlBegin:
			err = sess.Begin()
		case wsbridge.ControlSkip:
			err = sess.Skip()
		case wsbridge.ControlReplay:
			err = sess.Replay()
		}
		if err != nil {
			log.Debug("control rejected", "control", c, "err", err)
		}
	})
	return sess, nil
}
