package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litrev/internal/search"
	"github.com/pdiddy/litrev/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the paper search tool directly",
	Long: `Search calls the same search tool the search agent uses and prints the
results. Use it to check what a topic returns before running a review.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "free-text query (or pass it as arguments)")
	searchCmd.Flags().Int("max-results", 10, "maximum number of results to return")
	searchCmd.Flags().String("backend", "", "search backend: arxiv or semantic_scholar")
	searchCmd.Flags().String("format", "table", "output format: table, json, or csl")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" && len(args) > 0 {
		query = strings.Join(args, " ")
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("provide a query with --query or as arguments")
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")
	format, _ := cmd.Flags().GetString("format")

	searchCfg := cfg.Search
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		searchCfg.Backend = types.SearchBackendName(backend)
	}

	tool, err := search.New(searchCfg, log)
	if err != nil {
		return err
	}
	defer tool.Close()

	papers, err := tool.Search(context.Background(), query, maxResults)
	if err != nil {
		return err
	}

	switch format {
	case "table", "":
		search.FormatTable(papers, cmd.OutOrStdout())
		return nil
	case "json":
		return search.FormatJSON(papers, cmd.OutOrStdout())
	case "csl":
		return search.FormatCSL(papers, cmd.OutOrStdout())
	default:
		return fmt.Errorf("unsupported format %q: use table, json, or csl", format)
	}
}
