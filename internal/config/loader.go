package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/clinivox/clinivox/internal/clinical"
	"github.com/clinivox/clinivox/internal/source"
	"github.com/clinivox/clinivox/internal/translate"
	"gopkg.in/yaml.v3"
)

// Environment variables recognised by [ApplyEnv]. A set variable wins
// over the corresponding config file value.
const (
	// EnvRegion overrides s3.region.
	EnvRegion = "AWS_DEFAULT_REGION"

	// EnvHFToken overrides providers.diarizer.api_key. Without a token
	// the diarization stage is skipped.
	EnvHFToken = "HF_TOKEN"

	// EnvWhisperModelSize overrides providers.asr.model
	// (tiny, base, small, medium, large-v2, large-v3).
	EnvWhisperModelSize = "WHISPER_MODEL_SIZE"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":        {"whisper-native", "whisper-server"},
	"diarizer":   {"pyannote"},
	"translator": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"clinical":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "rules"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with environment overrides applied. It is a convenience wrapper
// around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv copies set environment variables over their config fields.
// Credentials are expected to arrive this way in deployments; the YAML
// fields exist mainly for local development.
func ApplyEnv(cfg *Config) {
	overrides := []struct {
		env  string
		dest *string
	}{
		{source.EnvDefaultBucket, &cfg.S3.Bucket},
		{EnvRegion, &cfg.S3.Region},
		{EnvWhisperModelSize, &cfg.Providers.ASR.Model},
		{EnvHFToken, &cfg.Providers.Diarizer.APIKey},
		{translate.EnvAPIKey, &cfg.Providers.Translator.APIKey},
		{clinical.EnvModelName, &cfg.Providers.Clinical.Model},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dest = v
		}
	}
}

// applyDefaults fills fields the rest of the system expects to be set.
func applyDefaults(cfg *Config) {
	if cfg.S3.Region == "" {
		cfg.S3.Region = source.DefaultRegion
	}
	if cfg.Providers.ASR.Name == "" {
		cfg.Providers.ASR.Name = "whisper-native"
	}
	if cfg.Providers.Diarizer.Name == "" {
		cfg.Providers.Diarizer.Name = "pyannote"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("diarizer", cfg.Providers.Diarizer.Name)
	validateProviderName("translator", cfg.Providers.Translator.Name)
	validateProviderName("clinical", cfg.Providers.Clinical.Name)

	if cfg.Providers.Diarizer.APIKey == "" {
		slog.Warn("no diarization token configured; transcripts will carry a single-speaker assumption")
	}
	if cfg.Providers.Translator.APIKey == "" {
		slog.Warn("no translation API key configured; non-English transcripts will pass through untranslated")
	}

	// Turn reconstruction thresholds. Zero means "use the default"; a set
	// value must be sane.
	t := cfg.Turns
	for _, ratio := range []struct {
		name  string
		value float64
	}{
		{"turns.dominant_word_ratio", t.DominantWordRatio},
		{"turns.repeat_word_ratio", t.RepeatWordRatio},
		{"turns.unique_word_ratio", t.UniqueWordRatio},
	} {
		if ratio.value < 0 || ratio.value > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", ratio.name, ratio.value))
		}
	}
	if t.MinLogProb > 0 {
		errs = append(errs, fmt.Errorf("turns.min_log_prob %.2f must be negative (log probability)", t.MinLogProb))
	}
	if t.TurnGap < 0 {
		errs = append(errs, fmt.Errorf("turns.turn_gap %.2f must not be negative", t.TurnGap))
	}
	if t.MinTurnDuration < 0 {
		errs = append(errs, fmt.Errorf("turns.min_turn_duration %.2f must not be negative", t.MinTurnDuration))
	}
	if t.SpeakerLookBack < 0 {
		errs = append(errs, fmt.Errorf("turns.speaker_look_back %d must not be negative", t.SpeakerLookBack))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
