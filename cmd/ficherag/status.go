package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus statistics and store health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			status, err := a.store.GetStatus(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(status)
			}

			fmt.Printf("Database:   %s (%.2f MB, %s build)\n", a.cfg.DBPath, status.IndexSizeMB, status.BuildMode)
			fmt.Printf("Records:    %d (%d fiches, %d chunks)\n", status.Records, status.Fiches, status.Chunks)
			fmt.Printf("Sources:    %d\n", status.Sources)
			fmt.Printf("Chapters:   %d\n", status.Chapters)

			categories := make([]string, 0, len(status.ByCategory))
			for c := range status.ByCategory {
				categories = append(categories, c)
			}
			sort.Strings(categories)
			for _, c := range categories {
				fmt.Printf("  %-8s %d\n", c, status.ByCategory[c])
			}

			fmt.Printf("Embedder:   %s (%s, %d dims)\n", a.embedder.Provider(), a.embedder.Model(), a.embedder.Dimension())
			if a.provider != nil {
				fmt.Printf("Generation: %s\n", a.provider.Name())
			} else {
				fmt.Println("Generation: disabled")
			}
			if run := status.LastRun; run != nil {
				fmt.Printf("Last run:   %s at %s, %d documents, %d imported, %d errors\n",
					run.RunID, run.FinishedAt.Format("2006-01-02 15:04"), run.Documents, run.Imported, run.Errors)
			}
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored fiche and chunk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("reset deletes all records; pass --yes to confirm")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.store.Reset(ctx)
			if err != nil {
				return err
			}
			a.searcher.InvalidateCache()
			fmt.Printf("Deleted %d records\n", n)
			return nil
		})
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "confirm deletion")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}
