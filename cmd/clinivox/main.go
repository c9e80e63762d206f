// Command clinivox is the medical consultation audio processing pipeline.
// It transcribes, diarizes, translates, and clinically annotates recorded
// consultations, either as a one-shot invocation ("run") or as a
// long-running stdio server ("serve").
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/spf13/cobra"

	"github.com/clinivox/clinivox/internal/config"
	"github.com/clinivox/clinivox/internal/pipeline"
	"github.com/clinivox/clinivox/internal/transcript"
	"github.com/clinivox/clinivox/internal/translate"
	"github.com/clinivox/clinivox/internal/worker"
	"github.com/clinivox/clinivox/pkg/audio"
	"github.com/clinivox/clinivox/pkg/provider/asr"
	"github.com/clinivox/clinivox/pkg/provider/asr/whisper"
	"github.com/clinivox/clinivox/pkg/provider/diarize"
	"github.com/clinivox/clinivox/pkg/provider/diarize/pyannote"
	"github.com/clinivox/clinivox/pkg/provider/llm"
	"github.com/clinivox/clinivox/pkg/provider/llm/anyllm"
	openaiprov "github.com/clinivox/clinivox/pkg/provider/llm/openai"
	"github.com/joho/godotenv"
)

// defaultPyannoteURL is where the pyannote sidecar listens unless the
// config says otherwise.
const defaultPyannoteURL = "http://localhost:8090"

// defaultOutputDir is the artifact tree root when paths.output_dir is
// not configured.
const defaultOutputDir = "outputs"

func main() {
	// Credentials commonly live in a .env next to the binary; absence is
	// not an error.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "clinivox",
		Short:        "Medical consultation audio processing pipeline",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newExtractCmd(&configPath))
	root.AddCommand(newListCmd(&configPath))
	return root
}

// runtime bundles everything both subcommands need: the parsed config,
// the worker registry with its loader, and the job executor.
type runtime struct {
	cfg     *config.Config
	workers *worker.Registry
	loader  *worker.Loader
	exec    *pipeline.Executor
}

// newRuntime loads the config, sets up logging, and wires the pipeline.
// A non-empty outputDir overrides the configured artifact root. A missing
// media converter is fatal here: without ffmpeg no job can pass the
// normalize stage.
func newRuntime(configPath, outputDir string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found (copy configs/example.yaml to get started)", configPath)
		}
		return nil, err
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("clinivox starting",
		"config", configPath,
		"log_level", cfg.Server.LogLevel,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(cfg, reg)

	normalizer, err := audio.NewNormalizer(cfg.Paths.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("audio converter unavailable: %w", err)
	}

	outDir := outputDir
	if outDir == "" {
		outDir = cfg.Paths.OutputDir
	}
	if outDir == "" {
		outDir = defaultOutputDir
	}

	workers := worker.NewRegistry()
	return &runtime{
		cfg:     cfg,
		workers: workers,
		loader:  worker.NewLoader(cfg, reg, workers),
		exec: pipeline.NewExecutor(
			workers,
			normalizer,
			transcript.NewReconstructor(cfg.Turns),
			pipeline.NewArtifactStore(outDir),
		),
	}, nil
}

// ---- provider wiring ----

// registerBuiltinProviders wires the shipped provider implementations
// into reg. Factories close over cfg for path defaults (e.g. the whisper
// model directory).
func registerBuiltinProviders(cfg *config.Config, reg *config.Registry) {
	// ASR: in-process whisper.cpp bindings.
	reg.RegisterASR("whisper-native", func(entry config.ProviderEntry) (asr.Provider, error) {
		modelPath := optString(entry.Options, "model_path")
		if modelPath == "" {
			var err error
			modelPath, err = whisper.ModelPathForSize(cfg.Paths.ModelDir, entry.Model)
			if err != nil {
				return nil, err
			}
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ASR: remote whisper-server over HTTP.
	reg.RegisterASR("whisper-server", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []whisper.ServerOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithServerLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	// Diarization: pyannote sidecar.
	reg.RegisterDiarizer("pyannote", func(entry config.ProviderEntry) (diarize.Provider, error) {
		url := entry.BaseURL
		if url == "" {
			url = defaultPyannoteURL
		}
		return pyannote.New(url, entry.APIKey)
	})

	// LLM: the OpenAI-compatible client doubles as the SEA-LION client;
	// an empty base URL selects the hosted SEA-LION endpoint.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		model := entry.Model
		if model == "" {
			model = translate.DefaultModel
		}
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = openaiprov.SEALIONBaseURL
		}
		return openaiprov.New(entry.APIKey, model, openaiprov.WithBaseURL(baseURL))
	})

	// LLM: hosted providers that share the any-llm key+URL pattern.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an
	// API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})
}

// ---- logger ----

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr; stdout belongs to the response protocol.
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ---- helpers ----

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a
// string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
