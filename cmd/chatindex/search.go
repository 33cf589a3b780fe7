package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localchat/chatindex/internal/nlquery"
	"github.com/localchat/chatindex/internal/search"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search \"<nl-query>\"",
	Short: "Parse a natural-language query and search the index",
	Long: `search sends the query text to the natural-language parser (falling
back to a plain keyword search if parsing is unavailable or fails),
resolves any person references through the chat graph, and runs the
resulting hybrid search.

Examples:
  chatindex search "photos mom sent me last week"
  chatindex search "what did john say about the trip"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", search.DefaultLimit, "maximum number of results to print")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rawQuery := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	d, err := initDependencies(ctx, cfg, logger)
	if d != nil {
		defer d.Close()
	}
	if err != nil {
		return err
	}

	var pq *nlquery.ParsedQuery
	if d.parser != nil {
		pq, err = d.parser.Parse(ctx, rawQuery)
		if err != nil {
			logger.Warn(ctx, "query parse failed, falling back to keyword search", zapErr(err))
			pq = nlquery.FallbackKeywordOnly(rawQuery)
		}
	} else {
		pq = nlquery.FallbackKeywordOnly(rawQuery)
	}

	svc := search.New(d.index, d.textEmbed, d.people, d.logger, nil)
	results, err := svc.Search(ctx, pq, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.2f] %s  %s -> %s\n", i+1, r.Score, r.ChatName, r.Sender, r.StartTime.Format("2006-01-02 15:04"))
		fmt.Printf("   %s\n", r.Text)
		if r.HasImage {
			fmt.Println("   (has image)")
		}
	}
	return nil
}
