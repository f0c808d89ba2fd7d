// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/litrev/internal/archive"
	"github.com/pdiddy/litrev/pkg/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every review listed in a YAML file",
	Long: `Batch reads a YAML file of review requests and runs them one after another.
The outcome of each run (run ID, state, error, selected titles) is written back
into the file after every review, so an interrupted batch resumes where it
stopped. Entries already in state "done" are skipped.

Example file:

  model: llama3
  reviews:
    - topic: graph neural networks
      num_papers: 3
    - topic: retrieval augmented generation
      num_papers: 5

Reviews are always saved to the archive.`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().String("file", "", "path to the batch YAML file (required)")
	batchCmd.Flags().Bool("rerun-failed-only", false, "skip entries that have never run")
	_ = batchCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	failedOnly, _ := cmd.Flags().GetBool("rerun-failed-only")

	bf, err := archive.ReadBatchFile(path)
	if err != nil {
		return err
	}

	store, err := archive.Open(cfg.Archive)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ran, failed, skipped int
	for i := range bf.Reviews {
		entry := &bf.Reviews[i]
		if entry.Done() || (failedOnly && entry.State == "") {
			skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s (%d papers)\n", i+1, len(bf.Reviews), entry.Topic, entry.NumPapers)
		review, err := runOne(ctx, entry.Request(), bf.Model, store, func(types.ConversationMessage) error { return nil })
		ran++
		if review.ID != "" {
			entry.Record(review)
		}
		if err != nil {
			failed++
			if review.ID == "" {
				entry.State = types.StateFailed
				entry.Error = err.Error()
			}
			log.Warn("review failed", zap.String("topic", entry.Topic), zap.Error(err))
		}

		if err := archive.WriteBatchFile(path, bf); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ran %d reviews (%d failed, %d skipped). Results written to %s\n", ran, failed, skipped, path)
	if failed > 0 {
		return fmt.Errorf("%d of %d reviews failed", failed, ran)
	}
	return nil
}
