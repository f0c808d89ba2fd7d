// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/litrev/internal/archive"
	"github.com/pdiddy/litrev/pkg/litrev"
	"github.com/pdiddy/litrev/pkg/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run one literature review conversation",
	Long: `Review runs the search agent and the summarizer agent on one topic and
streams the conversation to stdout as it happens. The summarizer's markdown
review is the last message.

With --save the finished review, including failed runs, is stored in the
archive and can be inspected with "litrev history".`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().String("topic", "", "research topic to review (required)")
	reviewCmd.Flags().Int("papers", 3, "number of papers the review covers")
	reviewCmd.Flags().String("model", "", "chat model name (default from config)")
	reviewCmd.Flags().String("backend", "", "search backend: arxiv or semantic_scholar")
	reviewCmd.Flags().Bool("json", false, "print messages as JSON lines")
	reviewCmd.Flags().Bool("markdown-only", false, "print only the final review")
	reviewCmd.Flags().Bool("save", false, "save the review to the archive")
	_ = reviewCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	numPapers, _ := cmd.Flags().GetInt("papers")
	modelName, _ := cmd.Flags().GetString("model")
	asJSON, _ := cmd.Flags().GetBool("json")
	markdownOnly, _ := cmd.Flags().GetBool("markdown-only")
	save, _ := cmd.Flags().GetBool("save")
	out := cmd.OutOrStdout()
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Search.Backend = types.SearchBackendName(backend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *archive.Store
	if save {
		s, err := archive.Open(cfg.Archive)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	review, err := runOne(ctx, types.ReviewRequest{Topic: topic, NumPapers: numPapers}, modelName, store, func(msg types.ConversationMessage) error {
		switch {
		case asJSON:
			return printJSONLine(out, msg)
		case markdownOnly:
			return nil
		default:
			printMessage(out, msg)
			return nil
		}
	})
	if err != nil {
		return err
	}

	if markdownOnly {
		fmt.Fprintln(out, review.Markdown)
	}
	if store != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved review %s to %s\n", review.ID, store.Path())
	}
	return nil
}

// runOne drives one review to completion, handing each message to onMessage.
// The returned Review is valid even when err is not nil.
func runOne(ctx context.Context, req types.ReviewRequest, modelName string, store *archive.Store, onMessage func(types.ConversationMessage) error) (types.Review, error) {
	opts := []litrev.Option{
		litrev.WithSearchConfig(cfg.Search),
		litrev.WithModelConfig(cfg.Model),
		litrev.WithConversationConfig(cfg.Conversation),
		litrev.WithLogger(log),
	}
	if store != nil {
		opts = append(opts, litrev.WithArchive(store))
	}

	seq, run, err := litrev.Run(ctx, req.Topic, req.NumPapers, modelName, opts...)
	if err != nil {
		return types.Review{}, err
	}
	log.Info("starting review",
		zap.String("run_id", run.ID()),
		zap.String("topic", req.Topic),
		zap.Int("papers", req.NumPapers))

	for msg, err := range seq {
		if err != nil {
			return run.Review(), err
		}
		if err := onMessage(msg); err != nil {
			return run.Review(), err
		}
	}
	return run.Review(), nil
}

func printMessage(w io.Writer, msg types.ConversationMessage) {
	switch msg.Kind {
	case types.KindToolCall:
		fmt.Fprintf(w, "---------- %s (tool call: %s) ----------\n%s\n\n", msg.Sender, msg.Tool, msg.Content)
	case types.KindToolResult:
		fmt.Fprintf(w, "---------- %s (tool result: %s) ----------\n%s\n\n", msg.Sender, msg.Tool, msg.Content)
	default:
		fmt.Fprintf(w, "---------- %s ----------\n%s\n\n", msg.Sender, msg.Content)
	}
}

func printJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
