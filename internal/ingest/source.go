package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/ficherag/pkg/types"
)

// ErrUnsupportedFormat is returned by an extractor that cannot read a file
var ErrUnsupportedFormat = errors.New("unsupported document format")

// DefaultInclude lists the patterns picked up by Discover when none are given
var DefaultInclude = []string{"**/*.txt", "**/*.md"}

// DefaultStructuredMarkers are the name substrings of sources laid out as fiches
var DefaultStructuredMarkers = []string{"PSE"}

// SourceDocument is one document to ingest. When Text is empty the pipeline
// reads Path through its Extractor.
type SourceDocument struct {
	Name     string
	Path     string
	Text     string
	Category types.Category
}

// Extractor turns a document file into plain text
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// PlainTextExtractor reads .txt and .md files as UTF-8. Text from PDF or
// office documents must be extracted beforehand.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".text", ".markdown":
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Discover walks root and returns the sorted paths of files matching any
// include pattern. Patterns use doublestar syntax and are matched against
// the slash-separated path relative to root, then against the base name.
// Hidden directories are skipped.
func Discover(root string, include []string) ([]string, error) {
	if len(include) == 0 {
		include = DefaultInclude
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if matchesAny(rel, include) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover documents: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)
	base := filepath.Base(normalized)
	for _, pattern := range patterns {
		if matched, err := doublestar.PathMatch(pattern, normalized); err == nil && matched {
			return true
		}
		if matched, err := doublestar.PathMatch(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

// CategoryFromName derives the referential category from a file name
func CategoryFromName(name string) types.Category {
	upper := strings.ToUpper(filepath.Base(name))
	for _, c := range []types.Category{types.CategoryPSE, types.CategoryPSC, types.CategorySST} {
		if strings.Contains(upper, string(c)) {
			return c
		}
	}
	return types.CategoryGeneric
}

// IsStructuredSource reports whether name contains one of the markers, ignoring case
func IsStructuredSource(name string, markers []string) bool {
	upper := strings.ToUpper(filepath.Base(name))
	for _, m := range markers {
		if m != "" && strings.Contains(upper, strings.ToUpper(m)) {
			return true
		}
	}
	return false
}

// DocumentsFromPaths builds source documents named after their base file name
func DocumentsFromPaths(paths []string) []SourceDocument {
	docs := make([]SourceDocument, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		docs = append(docs, SourceDocument{
			Name:     name,
			Path:     p,
			Category: CategoryFromName(name),
		})
	}
	return docs
}
