package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/ficherag/internal/formatter"
	"github.com/dshills/ficherag/internal/searcher"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the stored fiches",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().String("category", "", "restrict to sources whose name contains this value")
	searchCmd.Flags().Int("limit", 0, "maximum number of results (defaults to search.top_k)")
	searchCmd.Flags().Bool("rewrite", false, "rewrite the query with the generation model before the semantic pass")
	searchCmd.Flags().Bool("body", false, "print fiche bodies")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")
	rewrite, _ := cmd.Flags().GetBool("rewrite")
	withBody, _ := cmd.Flags().GetBool("body")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		technical := query
		if rewrite && a.provider != nil {
			technical = newRewriter(a.provider, a.logger).TechnicalQuery(ctx, query)
		}

		resp, err := a.searcher.Search(ctx, searcher.SearchRequest{
			TechnicalQuery: technical,
			OriginalQuery:  query,
			Category:       category,
			Limit:          limit,
		})
		if err != nil {
			return err
		}

		views := formatter.Format(resp.Results)
		if jsonOut {
			return printJSON(views)
		}
		if resp.Empty {
			fmt.Println(resp.Message)
			return nil
		}
		if technical != query {
			fmt.Printf("Requête technique : %s\n\n", technical)
		}
		for i, v := range views {
			printView(i+1, v, withBody)
		}
		fmt.Printf("%d results in %s (lexical %d, vector %d)\n",
			len(views), resp.Duration, resp.LexicalResults, resp.VectorResults)
		return nil
	})
}
