package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dshills/ficherag/pkg/types"
)

// headerPattern matches a fiche header such as "[05PR08 / 12-2022]".
//
// Groups: 1 chapter (two digits), 2 type code (two capitals), 3 sequence,
// 4 month, 5 year. The optional level marker and the title that follow on the
// same line are read by titlePattern.
var headerPattern = regexp.MustCompile(`\[(\d{2})([A-Z]{2})(\d+)[ \t]*/[ \t]*(\d{2})-(\d{4})\]`)

// titlePattern strips the level/category marker that may follow a header
var titlePattern = regexp.MustCompile(`^[ \t]*(?:(?:PSE|PSC|SST)[ \t]*[①②12]?)?[ \t]*(.*?)[ \t]*$`)

var (
	level1Pattern = regexp.MustCompile(`(?i)①|\bPSE[ \t]*1\b`)
	level2Pattern = regexp.MustCompile(`(?i)②|\bPSE[ \t]*2\b`)

	multiSpace   = regexp.MustCompile(` {3,}`)
	multiNewline = regexp.MustCompile(`\n{3,}`)

	cleaner = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n", "\x00", "")
)

const (
	// levelScanRunes bounds how far into a fiche the level marker is looked for
	levelScanRunes = 200

	// DefaultMinContentLength flags fiches with a suspiciously short body
	DefaultMinContentLength = 20
)

// AnomalyKind names a structural oddity found while parsing
type AnomalyKind string

const (
	AnomalyShortContent       AnomalyKind = "short_content"
	AnomalyDuplicateReference AnomalyKind = "duplicate_reference"
)

// Anomaly is reported, never rejected
type Anomaly struct {
	Kind      AnomalyKind
	Reference string
	Message   string
}

// ParseResult holds the fiches found in one document
type ParseResult struct {
	// Text is the cleaned input all spans refer to
	Text      string
	Preamble  string
	Fiches    []types.Fiche
	Anomalies []Anomaly
}

// Header is the metadata carried by a single header line
type Header struct {
	Reference   string
	Chapter     string
	ChapterName string
	TypeCode    string
	Type        types.FicheType
	TypeName    string
	Sequence    string
	UpdateDate  string
	Level       types.Level
	Title       string
}

// Parser splits structured reference documents into fiches
type Parser struct {
	logger           *slog.Logger
	minContentLength int
}

// Option configures a Parser
type Option func(*Parser)

// WithLogger sets the logger used for anomaly warnings
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithMinContentLength sets the body length under which a fiche is flagged
func WithMinContentLength(n int) Option {
	return func(p *Parser) {
		if n >= 0 {
			p.minContentLength = n
		}
	}
}

// New creates a new Parser instance
func New(opts ...Option) *Parser {
	p := &Parser{
		logger:           slog.Default().With("component", "parser"),
		minContentLength: DefaultMinContentLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Clean normalizes line endings and strips control characters left by text extraction.
// All offsets reported by Parse refer to the cleaned text.
func Clean(raw string) string {
	return cleaner.Replace(raw)
}

// HasMarkers reports whether text contains at least one fiche header
func HasMarkers(text string) bool {
	return headerPattern.MatchString(text)
}

// Parse splits raw text into fiches.
//
// The first pass records the offset of every header; the second slices the
// text between consecutive headers, so the spans cover the cleaned text from
// the first header to the end without gaps or overlaps.
func (p *Parser) Parse(source, raw string) *ParseResult {
	text := Clean(raw)
	result := &ParseResult{Text: text}

	locs := headerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		result.Preamble = text
		return result
	}
	result.Preamble = text[:locs[0][0]]

	seen := make(map[string]bool, len(locs))
	result.Fiches = make([]types.Fiche, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		fiche := buildFiche(text, loc, end)
		fiche.Source = source

		if seen[fiche.Reference] {
			p.report(result, Anomaly{
				Kind:      AnomalyDuplicateReference,
				Reference: fiche.Reference,
				Message:   fmt.Sprintf("reference %s appears more than once", fiche.Reference),
			}, source)
		}
		seen[fiche.Reference] = true

		if n := utf8.RuneCountInString(fiche.Content); n < p.minContentLength {
			p.report(result, Anomaly{
				Kind:      AnomalyShortContent,
				Reference: fiche.Reference,
				Message:   fmt.Sprintf("fiche body is only %d characters", n),
			}, source)
		}

		result.Fiches = append(result.Fiches, fiche)
	}
	return result
}

func (p *Parser) report(result *ParseResult, a Anomaly, source string) {
	result.Anomalies = append(result.Anomalies, a)
	p.logger.Warn("fiche anomaly",
		"source", source,
		"reference", a.Reference,
		"kind", string(a.Kind),
		"message", a.Message)
}

// buildFiche extracts one fiche from text[loc[0]:end]
func buildFiche(text string, loc []int, end int) types.Fiche {
	start := loc[0]
	span := text[start:end]

	lineEnd := strings.IndexByte(span, '\n')
	if lineEnd < 0 {
		lineEnd = len(span)
	}
	headerLine := span[:lineEnd]

	h := headerFromMatch(text, loc, text[loc[1]:start+lineEnd])
	h.Level = detectLevel(firstRunes(span, levelScanRunes))

	return types.Fiche{
		Reference:   h.Reference,
		Chapter:     h.Chapter,
		ChapterName: h.ChapterName,
		TypeCode:    h.TypeCode,
		Type:        h.Type,
		TypeName:    h.TypeName,
		Sequence:    h.Sequence,
		UpdateDate:  h.UpdateDate,
		Level:       h.Level,
		Title:       h.Title,
		HeaderLine:  strings.TrimSpace(headerLine),
		Content:     Normalize(span[lineEnd:]),
		Span:        types.Span{Start: start, End: end},
	}
}

// headerFromMatch decodes submatch offsets into a Header. rest is the text
// following the closing bracket up to the end of the line.
func headerFromMatch(s string, loc []int, rest string) Header {
	group := func(i int) string {
		return s[loc[2*i]:loc[2*i+1]]
	}
	chapter := group(1)
	typeCode := group(2)
	kind, typeName := FicheType(typeCode)

	return Header{
		Reference:   chapter + typeCode + group(3),
		Chapter:     chapter,
		ChapterName: ChapterName(chapter),
		TypeCode:    typeCode,
		Type:        kind,
		TypeName:    typeName,
		Sequence:    group(3),
		UpdateDate:  group(4) + "-" + group(5),
		Title:       stripMarker(rest),
	}
}

// ParseHeaderLine applies the header rule to a single line
func ParseHeaderLine(line string) (Header, bool) {
	line = strings.TrimRight(line, "\r\n")
	loc := headerPattern.FindStringSubmatchIndex(line)
	if loc == nil {
		return Header{}, false
	}
	h := headerFromMatch(line, loc, line[loc[1]:])
	h.Level = detectLevel(line)
	return h, true
}

// Title returns the title carried by the first line of content, or "" when
// that line is not a fiche header.
func Title(content string) string {
	h, ok := ParseHeaderLine(FirstLine(content))
	if !ok {
		return ""
	}
	return h.Title
}

// LineTitle is the text relevance gating compares against: the header title
// when the first line is a fiche header, the whole first line otherwise.
func LineTitle(content string) string {
	first := FirstLine(content)
	if h, ok := ParseHeaderLine(first); ok {
		return h.Title
	}
	return strings.TrimSpace(first)
}

// FirstLine returns content up to its first newline, leading blank lines skipped
func FirstLine(content string) string {
	content = strings.TrimLeft(content, " \t\n")
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i]
	}
	return content
}

func stripMarker(rest string) string {
	m := titlePattern.FindStringSubmatch(rest)
	if m == nil {
		return strings.TrimSpace(rest)
	}
	return m[1]
}

// detectLevel returns the level whose marker appears first in s
func detectLevel(s string) types.Level {
	l1 := level1Pattern.FindStringIndex(s)
	l2 := level2Pattern.FindStringIndex(s)
	switch {
	case l1 == nil && l2 == nil:
		return types.LevelUnset
	case l2 == nil:
		return types.Level1
	case l1 == nil:
		return types.Level2
	case l1[0] <= l2[0]:
		return types.Level1
	default:
		return types.Level2
	}
}

// Normalize trims text and collapses runs of 3+ spaces and 3+ newlines to two
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = multiSpace.ReplaceAllString(s, "  ")
	return multiNewline.ReplaceAllString(s, "\n\n")
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
