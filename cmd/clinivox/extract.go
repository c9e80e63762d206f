package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clinivox/clinivox/internal/clinical"
	"github.com/clinivox/clinivox/internal/config"
	"github.com/clinivox/clinivox/internal/pipeline"
	"github.com/clinivox/clinivox/internal/transcript"
	"github.com/clinivox/clinivox/internal/worker"
)

func newExtractCmd(configPath *string) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "extract <transcript>",
		Short: "Run clinical extraction over an existing transcript file",
		Long: `Run clinical extraction over a transcript without re-processing audio.

The transcript argument accepts a lean transcript, raw ASR output with a
segments array, a document carrying a known text field, or plain text.
The resulting clinical record is written into the artifact tree and its
path printed to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return extractOnce(cmd, *configPath, outputDir, args[0])
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "artifact directory (default: paths.output_dir from the config)")
	return cmd
}

func extractOnce(cmd *cobra.Command, configPath, outputDir, transcriptPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	reg := config.NewRegistry()
	registerBuiltinProviders(cfg, reg)

	ext, err := worker.NewClinicalExtractor(cfg.Providers.Clinical, reg)
	if err != nil {
		// Same degradation as the server: the rule strategy needs no model.
		slog.Warn("clinical model unavailable, using rule strategy", "error", err)
		ext = clinical.New(nil)
	}

	outDir := outputDir
	if outDir == "" {
		outDir = cfg.Paths.OutputDir
	}
	if outDir == "" {
		outDir = defaultOutputDir
	}

	path, err := extractTranscript(cmd.Context(), ext, pipeline.NewArtifactStore(outDir), transcriptPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// extractTranscript parses the transcript document, runs extraction, and
// persists the clinical record. Returns the artifact path.
func extractTranscript(ctx context.Context, ext *clinical.Extractor, store *pipeline.ArtifactStore, transcriptPath string) (string, error) {
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	lean, err := transcript.ParseLean(data)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", transcriptPath, err)
	}

	base := filepath.Base(transcriptPath)
	rec, err := ext.Extract(ctx, lean, base)
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return store.WriteClinical(stem, rec)
}
