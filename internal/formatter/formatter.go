// Package formatter turns ranked search results into display-ready fiche
// views and builds the context block handed to the generation model.
package formatter

import (
	"fmt"
	"strings"

	"github.com/dshills/ficherag/internal/parser"
	"github.com/dshills/ficherag/pkg/types"
)

// Format converts search results to fiche views in input order. The header
// rule is applied to the first line of each result only; when it matches, the
// header line is removed from the body. Results sharing a reference are
// reduced to the first one.
func Format(results []types.SearchResult) []types.FicheView {
	views := make([]types.FicheView, 0, len(results))
	seenRefs := make(map[string]struct{})
	seenIDs := make(map[int64]struct{})

	for _, r := range results {
		view := formatOne(r)

		if view.Reference != "" {
			if _, ok := seenRefs[view.Reference]; ok {
				continue
			}
			seenRefs[view.Reference] = struct{}{}
		} else {
			if _, ok := seenIDs[view.ID]; ok {
				continue
			}
			seenIDs[view.ID] = struct{}{}
		}
		views = append(views, view)
	}
	return views
}

func formatOne(r types.SearchResult) types.FicheView {
	view := types.FicheView{
		ID:         r.ID,
		Source:     r.Source,
		Similarity: r.Similarity,
		Body:       strings.TrimSpace(r.Content),
	}

	first, rest := splitFirstLine(r.Content)
	if h, ok := parser.ParseHeaderLine(first); ok {
		view.Reference = h.Reference
		view.Chapter = h.Chapter
		view.ChapterName = h.ChapterName
		view.Type = h.Type
		view.TypeName = h.TypeName
		view.UpdateDate = h.UpdateDate
		view.Level = h.Level
		view.Title = h.Title
		view.Body = strings.TrimSpace(rest)
		return view
	}

	// Stored metadata is the fallback when the content lost its header
	if rec := r.Record; rec != nil && rec.IsFiche() {
		view.Reference = rec.Reference
		view.Chapter = rec.Chapter
		view.ChapterName = rec.ChapterName
		view.Type = rec.FicheType
		view.TypeName = rec.FicheTypeName
		view.UpdateDate = rec.UpdateDate
		view.Level = rec.Level
	}
	return view
}

// splitFirstLine returns the first non-blank line and everything after it
func splitFirstLine(content string) (string, string) {
	content = strings.TrimLeft(content, " \t\n")
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i], content[i+1:]
	}
	return content, ""
}

// BuildContext builds the CONTEXT block and returns context text, token count, and source coverage.
// Tokens are counted as whitespace-separated words; maxTokens <= 0 means no limit.
func BuildContext(views []types.FicheView, maxTokens int) (string, int, int) {
	if len(views) == 0 {
		return "", 0, 0
	}
	if maxTokens < 0 {
		maxTokens = 0
	}

	var b strings.Builder
	b.WriteString("CONTEXT\n")

	contextTokens := 0
	remaining := maxTokens
	sourceSet := make(map[string]struct{})

	for _, v := range views {
		text := viewText(v)
		if text == "" {
			continue
		}

		if maxTokens > 0 {
			if remaining <= 0 {
				break
			}
			if tokens := estimateTokens(text); tokens > remaining {
				text = truncateToTokens(text, remaining)
			}
		}

		usedTokens := estimateTokens(text)
		if usedTokens == 0 {
			continue
		}

		b.WriteString(fmt.Sprintf("%s %s\n", tag(v), text))
		contextTokens += usedTokens
		if maxTokens > 0 {
			remaining -= usedTokens
		}
		sourceSet[v.Source] = struct{}{}
	}

	return strings.TrimRight(b.String(), "\n"), contextTokens, len(sourceSet)
}

func tag(v types.FicheView) string {
	if v.IsFiche() {
		return fmt.Sprintf("[fiche:%s]", v.Reference)
	}
	return fmt.Sprintf("[doc:%s]", v.Source)
}

func viewText(v types.FicheView) string {
	body := strings.TrimSpace(v.Body)
	if v.Title == "" {
		return body
	}
	if body == "" {
		return v.Title
	}
	return v.Title + "\n" + body
}

func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

func truncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	parts := strings.Fields(text)
	if len(parts) <= maxTokens {
		return text
	}
	return strings.Join(parts[:maxTokens], " ")
}
