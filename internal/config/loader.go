package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Content source and its backend requirements.
	if cfg.Content.Source != "" && !cfg.Content.Source.IsValid() {
		errs = append(errs, fmt.Errorf("content.source %q is invalid; valid values: postgres, file", cfg.Content.Source))
	}
	switch cfg.Content.Source {
	case ContentFile:
		if cfg.Content.Path == "" {
			errs = append(errs, errors.New("content.path is required when content.source is file"))
		}
		if cfg.Storage.PostgresDSN == "" {
			slog.Warn("storage.postgres_dsn is empty with file content; session progress will only be logged, not persisted")
		}
	case ContentPostgres, "":
		if cfg.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required when content.source is postgres"))
		}
		if cfg.Content.Path != "" {
			slog.Warn("content.path is set but ignored when content.source is postgres")
		}
	}

	// Tuning ranges.
	if t := cfg.Tuning.PassThreshold; t < 0 || t > 100 {
		errs = append(errs, fmt.Errorf("tuning.pass_threshold %d is out of range [0, 100]", t))
	}
	for _, d := range []struct {
		name string
		ms   int
	}{
		{"tuning.skip_reveal_ms", cfg.Tuning.SkipRevealMS},
		{"tuning.contains_advance_ms", cfg.Tuning.ContainsAdvanceMS},
		{"tuning.similarity_advance_ms", cfg.Tuning.SimilarityAdvanceMS},
		{"tuning.mic_check_timeout_ms", cfg.Tuning.MicCheckTimeoutMS},
	} {
		if d.ms < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", d.name, d.ms))
		}
	}

	return errors.Join(errs...)
}
