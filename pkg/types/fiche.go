package types

import (
	"strings"
)

// FicheType classifies a fiche by its two-letter type code
type FicheType string

const (
	FicheKnowledge FicheType = "knowledge" // AC: apport de connaissances
	FicheProcedure FicheType = "procedure" // PR: procédure
	FicheTechnique FicheType = "technique" // FT: fiche technique
	FicheUnknown   FicheType = "unknown"
)

// Level is the training level a fiche belongs to. Zero means unset.
type Level int

const (
	LevelUnset Level = 0
	Level1     Level = 1
	Level2     Level = 2
)

// String returns the level as used in fiche headers ("PSE1", "PSE2") or "" when unset
func (l Level) String() string {
	switch l {
	case Level1:
		return "PSE1"
	case Level2:
		return "PSE2"
	default:
		return ""
	}
}

// Span is a half-open [Start, End) byte range in the cleaned source text
type Span struct {
	Start int
	End   int
}

// Len returns the span length in bytes
func (s Span) Len() int {
	return s.End - s.Start
}

// Fiche is one self-contained unit of a structured first-aid reference
type Fiche struct {
	Reference   string // chapter + type code + sequence, e.g. "05PR08"
	Chapter     string // two digits
	ChapterName string
	TypeCode    string // two letters, e.g. "PR"
	Type        FicheType
	TypeName    string
	Sequence    string
	UpdateDate  string // MM-YYYY
	Level       Level
	Title       string
	HeaderLine  string
	Content     string // normalized body following the header line
	Span        Span
	Source      string
}

// Text returns the header line followed by the body. This is what gets embedded and stored.
func (f *Fiche) Text() string {
	header := strings.TrimSpace(f.HeaderLine)
	if f.Content == "" {
		return header
	}
	return header + "\n\n" + f.Content
}

// Validate checks the identifying fields of a fiche
func (f *Fiche) Validate() error {
	if f.Reference == "" {
		return ErrMissingReference
	}
	if len(f.Chapter) != 2 {
		return ErrInvalidChapter
	}
	if f.Span.End < f.Span.Start {
		return ErrInvalidSpan
	}
	return nil
}

// Category is the document family derived from a source file name
type Category string

const (
	CategoryPSE     Category = "PSE"
	CategoryPSC     Category = "PSC"
	CategorySST     Category = "SST"
	CategoryGeneric Category = "generic"
)
