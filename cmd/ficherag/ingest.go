package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/ficherag/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Split, embed and store reference documents",
	Long: `Ingests text documents. A directory is walked with the configured include
patterns. Documents whose name carries a structured marker (PSE by default)
are split into fiches; the others into overlapping chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("category", "", "only ingest documents whose name contains this value")
	ingestCmd.Flags().StringSlice("include", nil, "glob patterns used when a path is a directory")
	ingestCmd.Flags().Bool("quiet", false, "disable the progress bar")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	category, _ := cmd.Flags().GetString("category")
	include, _ := cmd.Flags().GetStringSlice("include")
	quiet, _ := cmd.Flags().GetBool("quiet")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if len(include) == 0 {
			include = a.cfg.Ingest.Include
		}

		paths, err := collectPaths(args, include)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no document matched %v", include)
		}

		opts := ingest.Options{CategoryFilter: category}
		var bar *progressbar.ProgressBar
		if !quiet && !jsonOut {
			bar = progressbar.NewOptions(len(paths),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("Ingesting"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			opts.Progress = func(e ingest.Event) {
				bar.Describe(fmt.Sprintf("%s (%d items)", e.Document, e.Items))
				_ = bar.Set(e.Done)
			}
		}

		report, err := a.pipeline.Ingest(ctx, ingest.DocumentsFromPaths(paths), opts)
		if bar != nil {
			_ = bar.Finish()
		}
		if report == nil {
			return err
		}
		a.searcher.InvalidateCache()

		if jsonOut {
			if perr := printJSON(report); perr != nil {
				return perr
			}
			return err
		}

		fmt.Printf("Run %s: %d documents, %d fiches, %d chunks, %d imported, %d errors in %s\n",
			report.RunID, report.Documents, report.Fiches, report.Chunks,
			report.Imported, report.Errors, report.Duration.Round(time.Millisecond))
		for _, msg := range report.ErrorMessages {
			fmt.Printf("  - %s\n", msg)
		}
		return err
	})
}

// collectPaths expands directories with the include patterns and keeps files as given
func collectPaths(args, include []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := ingest.Discover(arg, include)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}
