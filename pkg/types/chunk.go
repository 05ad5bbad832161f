package types

import (
	"crypto/sha256"
	"strings"
)

// Chunk is a fallback slice of an unstructured document
type Chunk struct {
	Index   int
	Content string
	Source  string

	// Rune offsets of the raw window in the source text
	Start int
	End   int
}

// Hash returns the SHA-256 of the chunk content
func (c *Chunk) Hash() [32]byte {
	return sha256.Sum256([]byte(c.Content))
}

// Validate checks that the chunk has content and a coherent window
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}
	if c.End <= c.Start {
		return ErrInvalidSpan
	}
	return nil
}

// Record is one stored unit: a fiche or a chunk with its embedding and metadata
type Record struct {
	ID        int64
	Content   string
	Source    string
	Category  Category
	Embedding []float32

	// Fiche metadata, empty for chunks
	Chapter       string
	ChapterName   string
	FicheType     FicheType
	FicheTypeName string
	Reference     string
	Level         Level
	UpdateDate    string
}

// IsFiche reports whether the record carries fiche metadata
func (r *Record) IsFiche() bool {
	return r.Reference != ""
}

// RecordFromFiche builds a storable record from a parsed fiche
func RecordFromFiche(f *Fiche, category Category) *Record {
	return &Record{
		Content:       f.Text(),
		Source:        f.Source,
		Category:      category,
		Chapter:       f.Chapter,
		ChapterName:   f.ChapterName,
		FicheType:     f.Type,
		FicheTypeName: f.TypeName,
		Reference:     f.Reference,
		Level:         f.Level,
		UpdateDate:    f.UpdateDate,
	}
}

// RecordFromChunk builds a storable record from a fallback chunk
func RecordFromChunk(c *Chunk, category Category) *Record {
	return &Record{
		Content:  c.Content,
		Source:   c.Source,
		Category: category,
	}
}
