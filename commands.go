package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/firstpro/mock-feedback-service/internal/corpus"
	"github.com/firstpro/mock-feedback-service/internal/filler"
	"github.com/firstpro/mock-feedback-service/internal/storage"
	"github.com/firstpro/mock-feedback-service/internal/textgen"
)

// --- fill ---

func newFillCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Drive a running server until the corpus reaches its target size",
		Long: `Drive a running server until the corpus reaches its target size.

Reads the current count from /progress and posts /generate in batches until
the target is reached. Stops at the first failed batch.

Examples:
  feedbackd fill
  feedbackd fill --url http://localhost:8787 --target 500 --batch-size 5 --delay 1s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.Fill.APIEndpoint, _ = flags.GetString("url")
			}
			if flags.Changed("batch-size") {
				cfg.Fill.BatchSize, _ = flags.GetInt("batch-size")
			}
			if flags.Changed("delay") {
				cfg.Fill.Delay, _ = flags.GetDuration("delay")
			}
			target := cfg.Corpus.TargetSize
			if flags.Changed("target") {
				target, _ = flags.GetInt("target")
			}
			if cfg.Fill.BatchSize < 1 {
				return fmt.Errorf("--batch-size must be positive")
			}

			report, err := filler.NewService(cfg.Fill, target, logger).Run(contextOf(cmd))
			if report != nil {
				printFillReport(cmd.OutOrStdout(), report, target)
			}
			return err
		},
	}

	cmd.Flags().String("url", "", "base URL of the running server (default from config)")
	cmd.Flags().Int("target", 0, "corpus size to reach (default corpus target size)")
	cmd.Flags().Int("batch-size", 10, "records requested per batch")
	cmd.Flags().Duration("delay", 0, "pause between batches (default 2s)")
	return cmd
}

func printFillReport(w io.Writer, report *filler.Report, target int) {
	fmt.Fprintf(w, "Batches: %d\n", report.Batches)
	fmt.Fprintf(w, "Count:   %d -> %d/%d (%s)\n",
		report.StartCount, report.FinalCount, target, corpus.FormatPercent(report.FinalCount, target))
}

// --- verify ---

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Compare the metadata count with the records actually stored",
		Long: `Compare the metadata count with the records actually stored.

Read-only: drift is reported, never corrected. Exits non-zero on drift.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := contextOf(cmd)
			store, err := storage.NewStorage(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("closing storage", zap.Error(err))
				}
			}()

			// Verification never calls the text generator.
			svc := corpus.NewService(cfg, store, textgen.Func(nil), logger)
			return runVerify(ctx, cmd.OutOrStdout(), svc)
		},
	}
}

func runVerify(ctx context.Context, w io.Writer, svc *corpus.Service) error {
	drift, err := svc.Verify(ctx)
	if err != nil {
		return err
	}

	stored := fmt.Sprint(drift.StoredCount)
	if drift.Truncated {
		stored += "+"
	}
	fmt.Fprintf(w, "Metadata count: %d\n", drift.MetadataCount)
	fmt.Fprintf(w, "Stored records: %s\n", stored)

	if !drift.Consistent() {
		fmt.Fprintln(w, "Status:         DRIFT")
		return fmt.Errorf("metadata count %d does not match %s stored records", drift.MetadataCount, stored)
	}
	fmt.Fprintln(w, "Status:         OK")
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
