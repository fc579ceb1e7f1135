package config

// DiffResult describes what changed between two configs, split into what can
// be hot-applied and what needs a restart.
type DiffResult struct {
	// LogLevelChanged is true when server.log_level changed. Applied live.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TuningChanged is true when any session tuning value changed. New
	// practice sessions pick the values up; running sessions keep theirs.
	TuningChanged bool
	NewTuning     TuningConfig

	// SpeechChanged is true when the recognition language changed. New
	// practice sessions pick it up.
	SpeechChanged bool
	NewSpeech     SpeechConfig

	// RestartRequired is true when the listen address, TLS, storage, or
	// content backend changed. These cannot be hot-applied.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Tuning != new.Tuning {
		d.TuningChanged = true
		d.NewTuning = new.Tuning
	}
	if old.Speech != new.Speech {
		d.SpeechChanged = true
		d.NewSpeech = new.Speech
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		old.Storage != new.Storage ||
		old.Content != new.Content {
		d.RestartRequired = true
	}
	return d
}

// tlsEqual compares two optional TLS blocks by value.
func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
