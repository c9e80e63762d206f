package config_test

import (
	"testing"

	"github.com/clinivox/clinivox/internal/config"
	"github.com/clinivox/clinivox/internal/transcript"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Turns:  transcript.Thresholds{TurnGap: 2.0},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.TurnsChanged || d.ProvidersChanged {
		t.Errorf("identical configs reported changes: %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_TurnsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Turns: transcript.Thresholds{TurnGap: 2.0}}
	new := &config.Config{Turns: transcript.Thresholds{TurnGap: 2.5}}

	d := config.Diff(old, new)
	if !d.TurnsChanged {
		t.Error("expected TurnsChanged=true")
	}
	if d.LogLevelChanged {
		t.Error("log level did not change")
	}
}

func TestDiff_ProvidersChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	new := &config.Config{}
	new.Providers.ASR = config.ProviderEntry{Name: "whisper-server", BaseURL: "http://localhost:8080"}

	d := config.Diff(old, new)
	if !d.ProvidersChanged {
		t.Error("expected ProvidersChanged=true")
	}
}
