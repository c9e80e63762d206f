package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/clinivox/clinivox/internal/config"
	"github.com/clinivox/clinivox/internal/source"
)

func newListCmd(configPath *string) *cobra.Command {
	var bucket string

	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List audio objects in the configured bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Listing needs no pipeline; load the config directly instead
			// of building a full runtime.
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg.Server.LogLevel))

			res, err := source.NewResolver(cfg.S3.Bucket, cfg.S3.Region, cfg.Paths.CacheDir)
			if err != nil {
				return fmt.Errorf("object store unavailable: %w", err)
			}

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			keys, err := res.ListAudio(cmd.Context(), bucket, prefix)
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket to list (default: the configured bucket)")
	return cmd
}
