package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/ficherag/internal/parser"
	"github.com/dshills/ficherag/internal/storage"
	"github.com/dshills/ficherag/pkg/types"
)

var ficheCmd = &cobra.Command{
	Use:   "fiche <reference>",
	Short: "Print one fiche by reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reference := strings.ToUpper(strings.TrimSpace(args[0]))
		return withApp(cmd, func(ctx context.Context, a *app) error {
			rec, err := a.store.GetByReference(ctx, reference)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("fiche %s not found", reference)
			}
			if err != nil {
				return err
			}

			view := recordViews([]*types.Record{rec})[0]
			if jsonOut {
				return printJSON(view)
			}
			printView(0, view, true)
			return nil
		})
	},
}

var chapterCmd = &cobra.Command{
	Use:   "chapter <code>",
	Short: "List the fiches of a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapter := strings.TrimSpace(args[0])
		if len(chapter) == 1 {
			chapter = "0" + chapter
		}
		ficheType, _ := cmd.Flags().GetString("type")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				records []*types.Record
				err     error
			)
			if ficheType != "" {
				records, err = a.store.ListByType(ctx, types.FicheType(ficheType))
			} else {
				records, err = a.store.ListByChapter(ctx, chapter)
			}
			if err != nil {
				return err
			}

			filtered := records[:0]
			for _, rec := range records {
				if rec.Chapter == chapter {
					filtered = append(filtered, rec)
				}
			}

			if jsonOut {
				return printJSON(recordViews(filtered))
			}
			fmt.Printf("Chapitre %s : %s (%d fiches)\n\n", chapter, parser.ChapterName(chapter), len(filtered))
			for _, rec := range filtered {
				fmt.Printf("  %s  %-10s %-4s %s\n", rec.Reference, rec.FicheTypeName, rec.Level, parser.Title(rec.Content))
			}
			return nil
		})
	},
}

func init() {
	chapterCmd.Flags().String("type", "", "only list fiches of this type: knowledge, procedure, technique")
	rootCmd.AddCommand(ficheCmd)
	rootCmd.AddCommand(chapterCmd)
}
