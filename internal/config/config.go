// Package config provides the configuration schema, loader, and provider
// registry for the Clinivox transcription server.
package config

import (
	"github.com/clinivox/clinivox/internal/transcript"
)

// LogLevel controls log verbosity for the Clinivox server.
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

// Config is the root configuration structure for Clinivox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Paths     PathsConfig           `yaml:"paths"`
	S3        S3Config              `yaml:"s3"`
	Providers ProvidersConfig       `yaml:"providers"`
	Turns     transcript.Thresholds `yaml:"turns"`
}

// ServerConfig holds logging and protocol settings for the stdio server.
type ServerConfig struct {
	// LogLevel controls verbosity. Logs go to stderr; stdout carries the
	// response protocol.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the optional listen address for the Prometheus
	// /metrics endpoint (e.g., "127.0.0.1:9091"). Empty disables the
	// listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// PathsConfig holds the filesystem locations the pipeline works with.
type PathsConfig struct {
	// CacheDir is where remote audio objects are cached after download.
	// Defaults to a directory under the system temp dir.
	CacheDir string `yaml:"cache_dir"`

	// OutputDir is the root of the tiered artifact tree
	// (00_transcripts/ through 03_clinical_extraction/).
	OutputDir string `yaml:"output_dir"`

	// ModelDir is where whisper ggml model files live.
	ModelDir string `yaml:"model_dir"`
}

// S3Config holds the object-store defaults used when resolving audio
// references.
type S3Config struct {
	// Bucket is the default bucket for bare-key audio references.
	Bucket string `yaml:"bucket"`

	// Region is the initial client region. Buckets living elsewhere are
	// rebound per object.
	Region string `yaml:"region"`
}

// ProvidersConfig declares which provider implementation to use for each
// model-backed pipeline stage. Each field selects a named provider
// registered in the [Registry].
type ProvidersConfig struct {
	ASR        ProviderEntry `yaml:"asr"`
	Diarizer   ProviderEntry `yaml:"diarizer"`
	Translator ProviderEntry `yaml:"translator"`
	Clinical   ProviderEntry `yaml:"clinical"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper-native", "pyannote", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "small", "aisingapore/Gemma-SEA-LION-v4-27B-IT").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}
