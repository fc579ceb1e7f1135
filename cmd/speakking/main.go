// Command speakking is the speaking-practice server: it serves practice
// sessions over WebSocket, loads study sets from PostgreSQL or a YAML file,
// and records learner progress.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/config"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/content"
	contentpg "github.com/42Seoul/Speak-King-Korean-LMS/internal/content/postgres"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/health"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/observe"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/player"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/progress"
	progresspg "github.com/42Seoul/Speak-King-Korean-LMS/internal/progress/postgres"
	"github.com/42Seoul/Speak-King-Korean-LMS/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "speakking: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "speakking: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can adjust it live.
	level := &slog.LevelVar{}
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("speakking starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"content_source", cfg.Content.Source,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "speakking",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Storage ───────────────────────────────────────────────────────────────
	// The DSN may reference environment variables (e.g. "${SPEAKKING_PG_DSN}")
	// so credentials can stay out of the config file.
	dsn := os.ExpandEnv(cfg.Storage.PostgresDSN)

	var pool *pgxpool.Pool
	if dsn != "" {
		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to create database pool", "err", err)
			return 1
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			slog.Error("database unreachable", "err", err)
			return 1
		}
	}

	store, reporters, checkers, err := buildBackends(ctx, cfg, pool)
	if err != nil {
		slog.Error("failed to build storage backends", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.TuningChanged {
			slog.Info("session tuning changed; applies to new sessions")
		}
		if d.SpeechChanged {
			slog.Info("recognition language changed; applies to new sessions",
				"language", d.NewSpeech.LanguageOrDefault())
		}
		if d.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(cfg.Server, store, reporters,
		server.WithLogger(logger),
		server.WithHealthCheckers(checkers...),
		server.WithTuningSource(func() player.Tuning {
			return watcher.Current().Tuning.SessionTuning()
		}),
		server.WithLanguageSource(func() string {
			return watcher.Current().Speech.LanguageOrDefault()
		}),
	)

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildBackends creates the study-set store, the per-learner progress
// reporter factory, and the readiness checks for the configured content
// source.
func buildBackends(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (content.Store, server.ReporterFactory, []health.Checker, error) {
	if cfg.Content.Source == config.ContentFile {
		store, err := content.NewFileStore(cfg.Content.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load study sets from %q: %w", cfg.Content.Path, err)
		}
		slog.Info("study sets loaded from file", "path", cfg.Content.Path, "sets", store.Len())

		if pool == nil {
			return store, logOnlyReporters(), nil, nil
		}
		sink, checkers, err := progressBackend(ctx, pool)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, sink, checkers, nil
	}

	// Default: PostgreSQL for both content and progress.
	if pool == nil {
		return nil, nil, nil, errors.New("content.source postgres requires storage.postgres_dsn")
	}

	store := contentpg.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate content schema: %w", err)
	}

	sink, checkers, err := progressBackend(ctx, pool)
	if err != nil {
		return nil, nil, nil, err
	}
	checkers = append([]health.Checker{health.ForPinger("content", store)}, checkers...)
	return store, sink, checkers, nil
}

// progressBackend creates the PostgreSQL progress sink and its readiness
// check.
func progressBackend(ctx context.Context, pool *pgxpool.Pool) (server.ReporterFactory, []health.Checker, error) {
	sink := progresspg.NewSink(pool)
	if err := sink.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrate progress schema: %w", err)
	}
	reporters := func(userID string) progress.Reporter {
		return sink.ForUser(userID)
	}
	return reporters, []health.Checker{health.ForPinger("progress", sink)}, nil
}

// logOnlyReporters is the fallback when no database is configured: session
// results are logged and dropped.
func logOnlyReporters() server.ReporterFactory {
	return func(userID string) progress.Reporter {
		return progress.ReporterFunc(func(_ context.Context, studySetID string, stats progress.Stats) error {
			slog.Info("session complete (progress persistence disabled)",
				"user_id", userID,
				"study_set", studySetID,
				"spoken", stats.Spoken,
				"skipped", stats.Skipped,
			)
			return nil
		})
	}
}

// slogLevel maps the config log level onto slog's levels.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
