package config_test

import (
	"strings"
	"testing"

	"github.com/clinivox/clinivox/internal/config"
	"github.com/clinivox/clinivox/internal/source"
	"github.com/clinivox/clinivox/internal/translate"
)

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv(source.EnvDefaultBucket, "env-bucket")
	t.Setenv(config.EnvRegion, "eu-west-1")
	t.Setenv(config.EnvWhisperModelSize, "large-v3")
	t.Setenv(config.EnvHFToken, "hf-env")
	t.Setenv(translate.EnvAPIKey, "sl-env")

	yaml := `
s3:
  bucket: file-bucket
providers:
  asr:
    model: small
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.S3.Bucket != "env-bucket" {
		t.Errorf("s3.bucket: got %q, want env override", cfg.S3.Bucket)
	}
	if cfg.S3.Region != "eu-west-1" {
		t.Errorf("s3.region: got %q", cfg.S3.Region)
	}
	if cfg.Providers.ASR.Model != "large-v3" {
		t.Errorf("providers.asr.model: got %q", cfg.Providers.ASR.Model)
	}
	if cfg.Providers.Diarizer.APIKey != "hf-env" {
		t.Errorf("providers.diarizer.api_key: got %q", cfg.Providers.Diarizer.APIKey)
	}
	if cfg.Providers.Translator.APIKey != "sl-env" {
		t.Errorf("providers.translator.api_key: got %q", cfg.Providers.Translator.APIKey)
	}
}

func TestApplyEnv_UnsetKeepsFileValues(t *testing.T) {
	// t.Setenv registers a cleanup; setting to empty makes sure a value
	// from the developer's shell does not leak into the assertion.
	t.Setenv(source.EnvDefaultBucket, "")
	t.Setenv(config.EnvRegion, "")

	yaml := `
s3:
  bucket: file-bucket
  region: ap-southeast-1
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.S3.Bucket != "file-bucket" {
		t.Errorf("s3.bucket: got %q, want file value", cfg.S3.Bucket)
	}
	if cfg.S3.Region != "ap-southeast-1" {
		t.Errorf("s3.region: got %q, want file value", cfg.S3.Region)
	}
}

func TestDefaults_Region(t *testing.T) {
	t.Setenv(config.EnvRegion, "")
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.S3.Region != source.DefaultRegion {
		t.Errorf("s3.region: got %q, want %q", cfg.S3.Region, source.DefaultRegion)
	}
}
