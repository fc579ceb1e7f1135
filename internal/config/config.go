// Package config provides the configuration schema, loader, and file watcher
// for the Speak King practice server.
package config

import (
	"time"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/player"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ContentSource selects where study sets are loaded from.
type ContentSource string

const (
	// ContentPostgres loads study sets from the PostgreSQL database.
	ContentPostgres ContentSource = "postgres"

	// ContentFile loads study sets from a YAML file. Progress persistence
	// is unavailable in this mode; reports are logged instead.
	ContentFile ContentSource = "file"
)

// IsValid reports whether s is a recognised content source.
func (s ContentSource) IsValid() bool {
	return s == ContentPostgres || s == ContentFile
}

// Config is the root configuration structure for the practice server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Content ContentConfig `yaml:"content"`
	Speech  SpeechConfig  `yaml:"speech"`
	Tuning  TuningConfig  `yaml:"tuning"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// StorageConfig holds database settings shared by the content store and the
// progress sink.
type StorageConfig struct {
	// PostgresDSN is the connection string for the PostgreSQL database.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ContentConfig selects the study-set backend.
type ContentConfig struct {
	// Source selects the backend. Default: postgres.
	Source ContentSource `yaml:"source"`

	// Path is the study-set YAML file, required when source is "file".
	Path string `yaml:"path"`
}

// SpeechConfig holds recognition settings forwarded to the learner's device.
type SpeechConfig struct {
	// Language is the BCP 47 recognition language tag. Default: "ko-KR".
	Language string `yaml:"language"`
}

// TuningConfig carries the session loop's product tuning constants. Zero
// values fall back to the shipped defaults.
type TuningConfig struct {
	// PassThreshold is the minimum similarity score (percent, inclusive)
	// accepted as a pass.
	PassThreshold int `yaml:"pass_threshold"`

	// SkipRevealMS is how long (milliseconds) the learner must listen
	// before the skip control is offered.
	SkipRevealMS int `yaml:"skip_reveal_ms"`

	// ContainsAdvanceMS is the pause (milliseconds) before advancing after
	// a contains match.
	ContainsAdvanceMS int `yaml:"contains_advance_ms"`

	// SimilarityAdvanceMS is the pause (milliseconds) before advancing
	// after a similarity match.
	SimilarityAdvanceMS int `yaml:"similarity_advance_ms"`

	// MicCheckTimeoutMS bounds the microphone round-trip check.
	MicCheckTimeoutMS int `yaml:"mic_check_timeout_ms"`
}

// SessionTuning converts the config values into the session engine's tuning,
// substituting the shipped defaults for unset fields.
func (t TuningConfig) SessionTuning() player.Tuning {
	tuning := player.DefaultTuning()
	if t.PassThreshold > 0 {
		tuning.PassThreshold = t.PassThreshold
	}
	if t.SkipRevealMS > 0 {
		tuning.SkipRevealDelay = time.Duration(t.SkipRevealMS) * time.Millisecond
	}
	if t.ContainsAdvanceMS > 0 {
		tuning.ContainsAdvanceDelay = time.Duration(t.ContainsAdvanceMS) * time.Millisecond
	}
	if t.SimilarityAdvanceMS > 0 {
		tuning.SimilarityAdvanceDelay = time.Duration(t.SimilarityAdvanceMS) * time.Millisecond
	}
	if t.MicCheckTimeoutMS > 0 {
		tuning.MicCheckTimeout = time.Duration(t.MicCheckTimeoutMS) * time.Millisecond
	}
	return tuning
}

// LanguageOrDefault returns the configured recognition language, defaulting
// to Korean.
func (s SpeechConfig) LanguageOrDefault() string {
	if s.Language == "" {
		return "ko-KR"
	}
	return s.Language
}
