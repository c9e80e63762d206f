package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clinivox/clinivox/internal/pipeline"
)

func newRunCmd(configPath *string) *cobra.Command {
	var (
		jobID           string
		language        string
		outputDir       string
		skipTranslation bool
		skipClinical    bool
	)

	cmd := &cobra.Command{
		Use:   "run <audio>",
		Short: "Process a single consultation recording and exit",
		Long: `Process a single consultation recording through the full pipeline.

The audio argument is either a local file path, an s3:// URI, or a bare
object key resolved against the configured bucket. The pipeline result
is printed to stdout as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, *configPath, outputDir, args[0], pipeline.Job{
				ID:              jobID,
				Language:        language,
				SkipTranslation: skipTranslation,
				SkipClinical:    skipClinical,
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "job identifier (default: a new UUID)")
	cmd.Flags().StringVar(&language, "language", "", `transcription language hint, e.g. "en" or "ms" (default: the provider's setting)`)
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "artifact directory (default: paths.output_dir from the config)")
	cmd.Flags().BoolVar(&skipTranslation, "skip-translation", false, "skip the translation stage")
	cmd.Flags().BoolVar(&skipClinical, "skip-clinical", false, "skip the clinical extraction stage")
	return cmd
}

func runOnce(cmd *cobra.Command, configPath, outputDir, audio string, job pipeline.Job) error {
	ctx := cmd.Context()

	rt, err := newRuntime(configPath, outputDir)
	if err != nil {
		return err
	}

	// One-shot mode loads workers synchronously; there is no probe
	// traffic to answer in the meantime.
	rt.loader.Run(ctx)

	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	// A local path wins over a bucket key of the same name; s3:// URIs
	// and anything that does not exist locally go through the resolver.
	switch {
	case strings.HasPrefix(audio, "s3://"):
		job.RemoteRef = audio
	default:
		if _, statErr := os.Stat(audio); statErr == nil {
			job.LocalPath = audio
		} else {
			job.RemoteRef = audio
		}
	}

	res, err := rt.exec.Run(ctx, job)
	if err != nil {
		slog.Error("job failed", "job_id", job.ID, "error", err)
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
