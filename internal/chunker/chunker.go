// Package chunker splits unstructured documents into overlapping windows.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/ficherag/pkg/types"
)

const (
	// DefaultSize is the maximum number of characters per chunk
	DefaultSize = 1000

	// DefaultOverlap is the number of characters shared by consecutive chunks
	DefaultOverlap = 200

	// DefaultMinLength discards chunks that are mostly whitespace or page furniture
	DefaultMinLength = 50
)

// Chunker cuts text into windows of at most size characters, preferring to
// end a window on a sentence terminator or newline.
type Chunker struct {
	size      int
	overlap   int
	minLength int
}

// Option configures the chunker
type Option func(*Chunker)

// WithSize sets the window size in characters
func WithSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive windows in characters
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithMinLength sets the minimum trimmed length of a kept chunk
func WithMinLength(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minLength = n
		}
	}
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:      DefaultSize,
		overlap:   DefaultOverlap,
		minLength: DefaultMinLength,
	}
	for _, opt := range opts {
		opt(c)
	}

	// A window never ends before its midpoint, so an overlap below half the
	// size guarantees forward progress.
	if c.overlap*2 >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the configured window size
func (c *Chunker) Size() int { return c.size }

// Overlap returns the effective overlap
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into chunks. Offsets are rune offsets into text.
func (c *Chunker) Split(source, text string) []types.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	chunks := make([]types.Chunk, 0, n/(c.size-c.overlap)+1)

	start := 0
	for start < n {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.breakPoint(runes, start, end)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if utf8.RuneCountInString(content) >= c.minLength && content != "" {
			chunks = append(chunks, types.Chunk{
				Index:   len(chunks),
				Content: content,
				Source:  source,
				Start:   start,
				End:     end,
			})
		}

		if end == n {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// breakPoint moves end back to just after the last terminator found past the
// window midpoint, or leaves it unchanged.
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	floor := start + c.size/2
	for i := end - 1; i > floor; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return end
}
