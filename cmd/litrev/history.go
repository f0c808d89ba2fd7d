// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litrev/internal/archive"
	"github.com/pdiddy/litrev/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect saved reviews",
	Long: `History works with the review archive: list, search, show, export, and
delete reviews saved by "litrev review --save" and "litrev batch".

Reviews can be addressed by their full run ID or any unique prefix of it.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reviews, most recent first",
	RunE:  runHistoryList,
}

var historySearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Find reviews by topic, review text, or paper title",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistorySearch,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved review",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a saved review as YAML, JSON, or a CSL bibliography",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryExport,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved review",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.List(context.Background(), listOptsFromFlags(cmd))
	if err != nil {
		return err
	}
	return printSummaries(cmd, rows)
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.Search(context.Background(), strings.Join(args, " "), listOptsFromFlags(cmd))
	if err != nil {
		return err
	}
	return printSummaries(cmd, rows)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	transcript, _ := cmd.Flags().GetBool("transcript")

	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Run:      %s\n", r.ID)
	fmt.Fprintf(out, "Topic:    %s\n", r.Request.Topic)
	fmt.Fprintf(out, "Papers:   %d requested, %d selected of %d candidates\n",
		r.Request.NumPapers, len(r.Selected), len(r.Candidates))
	fmt.Fprintf(out, "Model:    %s\n", r.Model)
	fmt.Fprintf(out, "State:    %s\n", r.State)
	fmt.Fprintf(out, "Started:  %s (%s)\n", r.StartedAt.Format("2006-01-02 15:04:05"), r.Duration().Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", r.Error)
	}
	fmt.Fprintln(out)

	if transcript {
		for _, msg := range r.Transcript {
			printMessage(out, msg)
		}
		return nil
	}
	if r.Markdown != "" {
		fmt.Fprintln(out, r.Markdown)
	}
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Export(context.Background(), args[0], archive.ExportFormat(format), cmd.OutOrStdout())
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted review %s\n", args[0])
	return nil
}

// --- shared helpers ---

func openArchive(cmd *cobra.Command) (*archive.Store, error) {
	archiveCfg := cfg.Archive
	if dir, _ := cmd.Flags().GetString("archive-dir"); dir != "" {
		archiveCfg.Dir = dir
	}
	return archive.Open(archiveCfg)
}

func listOptsFromFlags(cmd *cobra.Command) archive.ListOptions {
	state, _ := cmd.Flags().GetString("state")
	limit, _ := cmd.Flags().GetInt("limit")
	return archive.ListOptions{
		State:      types.RunState(state),
		MaxResults: limit,
	}
}

func printSummaries(cmd *cobra.Command, rows []archive.Summary) error {
	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No reviews found.")
		return nil
	}

	fmt.Fprintf(out, "%-10s %-8s %-3s %-19s %s\n", "ID", "STATE", "N", "STARTED", "TOPIC")
	fmt.Fprintf(out, "%-10s %-8s %-3s %-19s %s\n", "----------", "--------", "---", "-------------------", "-----")
	for _, s := range rows {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(out, "%-10s %-8s %-3d %-19s %s\n",
			id, s.State, s.NumPapers, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Topic)
	}
	return nil
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	historyCmd.PersistentFlags().String("archive-dir", "", "directory holding the review archive (default from config)")

	for _, c := range []*cobra.Command{historyListCmd, historySearchCmd} {
		c.Flags().String("state", "", "filter by final state: done or failed")
		c.Flags().Int("limit", 0, "maximum results (0 = use default)")
		c.Flags().Bool("json", false, "output results as JSON")
	}

	historyShowCmd.Flags().Bool("transcript", false, "print the full conversation instead of the review")
	historyExportCmd.Flags().String("format", "yaml", "export format: yaml, json, or csl")

	// Wire subcommands.
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyDeleteCmd)

	rootCmd.AddCommand(historyCmd)
}
