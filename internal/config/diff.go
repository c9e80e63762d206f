package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider
// changes require a restart and are reported so the caller can warn.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TurnsChanged is true when any reconstruction threshold changed.
	// The reconstructor is built once at startup, so new thresholds need
	// a restart.
	TurnsChanged bool

	// ProvidersChanged is true when any provider entry changed. Loaded
	// workers are not rebuilt at runtime.
	ProvidersChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Turns != new.Turns {
		d.TurnsChanged = true
	}

	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.ProvidersChanged = true
	}

	return d
}
