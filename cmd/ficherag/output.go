package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dshills/ficherag/internal/formatter"
	"github.com/dshills/ficherag/pkg/types"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printView prints one fiche view for a terminal
func printView(i int, v types.FicheView, withBody bool) {
	label := v.Source
	if v.IsFiche() {
		label = fmt.Sprintf("%s %s", v.Reference, v.Title)
		if lvl := v.Level.String(); lvl != "" {
			label += " (" + lvl + ")"
		}
	}
	if i > 0 {
		fmt.Printf("%d. [%.2f] %s\n", i, v.Similarity, label)
	} else {
		fmt.Println(label)
	}
	if v.IsFiche() {
		fmt.Printf("   %s / %s, mise à jour %s, source %s\n", v.ChapterName, v.TypeName, v.UpdateDate, v.Source)
	}
	if withBody {
		for _, line := range strings.Split(v.Body, "\n") {
			fmt.Printf("   %s\n", line)
		}
	}
	fmt.Println()
}

// recordViews projects stored records the same way search results are projected
func recordViews(records []*types.Record) []types.FicheView {
	results := make([]types.SearchResult, 0, len(records))
	for _, rec := range records {
		results = append(results, types.SearchResult{
			ID:      rec.ID,
			Content: rec.Content,
			Source:  rec.Source,
			Record:  rec,
		})
	}
	return formatter.Format(results)
}
