package searcher

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dshills/ficherag/internal/parser"
	"github.com/dshills/ficherag/internal/textnorm"
	"github.com/dshills/ficherag/pkg/types"
)

// ErrInvalidPolicy is returned by ScoringPolicy.Validate
var ErrInvalidPolicy = errors.New("invalid scoring policy")

// DefaultStopWords are interrogative and connective words ignored when
// extracting keywords. Entries are accent-folded.
var DefaultStopWords = []string{
	"quoi", "quel", "quelle", "quels", "quelles", "comment", "pourquoi",
	"quand", "combien", "lequel", "laquelle", "lesquels", "lesquelles",
	"faut", "faire", "doit", "dois", "peut", "peux", "sont",
	"avec", "pour", "dans", "chez", "sans", "sous", "vers", "entre",
	"mais", "donc", "alors", "ainsi", "puis", "aussi", "comme", "depuis",
	"devant", "avant", "apres", "lors", "pendant",
	"cette", "cela", "celui", "celle", "ceux", "elle", "elles", "leur", "leurs",
	"nous", "vous", "votre", "notre", "tout", "tous", "toute", "toutes",
	"etre", "avoir", "une", "des", "les", "que", "qui", "est",
}

// ScoringPolicy holds every tunable of the hybrid ranking
type ScoringPolicy struct {
	// Lexical hits score LexicalBase + LexicalBonusPerKeyword per keyword found, capped at LexicalCeiling
	LexicalBase            float64 `koanf:"lexical_base" yaml:"lexical_base"`
	LexicalBonusPerKeyword float64 `koanf:"lexical_bonus_per_keyword" yaml:"lexical_bonus_per_keyword"`
	LexicalCeiling         float64 `koanf:"lexical_ceiling" yaml:"lexical_ceiling"`
	// LexicalFilterWords is how many leading keywords every lexical hit must contain
	LexicalFilterWords int `koanf:"lexical_filter_words" yaml:"lexical_filter_words"`
	LexicalLimit       int `koanf:"lexical_limit" yaml:"lexical_limit"`

	VectorMinSimilarity float64 `koanf:"vector_min_similarity" yaml:"vector_min_similarity"`
	VectorLimit         int     `koanf:"vector_limit" yaml:"vector_limit"`

	// Keywords of at least GateMinWordLength runes are checked against the title
	GateMinWordLength    int     `koanf:"gate_min_word_length" yaml:"gate_min_word_length"`
	GateBypassSimilarity float64 `koanf:"gate_bypass_similarity" yaml:"gate_bypass_similarity"`
	GatePenalty          float64 `koanf:"gate_penalty" yaml:"gate_penalty"`

	TopK             int      `koanf:"top_k" yaml:"top_k"`
	MinKeywordLength int      `koanf:"min_keyword_length" yaml:"min_keyword_length"`
	StopWords        []string `koanf:"stop_words" yaml:"stop_words"`
}

// DefaultScoringPolicy returns the production tuning
func DefaultScoringPolicy() ScoringPolicy {
	stop := make([]string, len(DefaultStopWords))
	copy(stop, DefaultStopWords)
	return ScoringPolicy{
		LexicalBase:            0.80,
		LexicalBonusPerKeyword: 0.02,
		LexicalCeiling:         0.95,
		LexicalFilterWords:     3,
		LexicalLimit:           10,
		VectorMinSimilarity:    0.15,
		VectorLimit:            10,
		GateMinWordLength:      5,
		GateBypassSimilarity:   0.9,
		GatePenalty:            0.4,
		TopK:                   6,
		MinKeywordLength:       4,
		StopWords:              stop,
	}
}

// Validate checks that scores stay in [0, 1] and penalties actually lower them
func (p ScoringPolicy) Validate() error {
	switch {
	case p.LexicalBase < 0 || p.LexicalBase > 1:
		return fmt.Errorf("%w: lexical_base must be in [0, 1]", ErrInvalidPolicy)
	case p.LexicalCeiling < p.LexicalBase || p.LexicalCeiling > 1:
		return fmt.Errorf("%w: lexical_ceiling must be in [lexical_base, 1]", ErrInvalidPolicy)
	case p.LexicalBonusPerKeyword < 0:
		return fmt.Errorf("%w: lexical_bonus_per_keyword must be >= 0", ErrInvalidPolicy)
	case p.LexicalFilterWords < 1:
		return fmt.Errorf("%w: lexical_filter_words must be >= 1", ErrInvalidPolicy)
	case p.LexicalLimit < 0 || p.VectorLimit < 0:
		return fmt.Errorf("%w: pass limits must be >= 0", ErrInvalidPolicy)
	case p.VectorMinSimilarity < -1 || p.VectorMinSimilarity > 1:
		return fmt.Errorf("%w: vector_min_similarity must be in [-1, 1]", ErrInvalidPolicy)
	case p.GatePenalty <= 0 || p.GatePenalty >= 1:
		return fmt.Errorf("%w: gate_penalty must be in (0, 1)", ErrInvalidPolicy)
	case p.TopK < 1:
		return fmt.Errorf("%w: top_k must be >= 1", ErrInvalidPolicy)
	}
	return nil
}

// Keywords extracts the significant words of a query: folded, long enough,
// not stop words, deduplicated, in query order.
func (p ScoringPolicy) Keywords(query string) []string {
	stop := make(map[string]struct{}, len(p.StopWords))
	for _, w := range p.StopWords {
		stop[textnorm.Fold(w)] = struct{}{}
	}

	seen := make(map[string]struct{})
	keywords := make([]string, 0)
	for _, w := range textnorm.Words(query) {
		if utf8.RuneCountInString(w) < p.MinKeywordLength {
			continue
		}
		if _, ok := stop[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
	}
	return keywords
}

// LexicalScore scores a lexical hit from the number of keywords its content contains
func (p ScoringPolicy) LexicalScore(content string, keywords []string) float64 {
	folded := textnorm.Fold(content)
	found := 0
	for _, kw := range keywords {
		if strings.Contains(folded, kw) {
			found++
		}
	}
	score := p.LexicalBase + p.LexicalBonusPerKeyword*float64(found)
	if score > p.LexicalCeiling {
		score = p.LexicalCeiling
	}
	return score
}

// Gate penalizes results whose first-line title shares no long keyword with
// the query. Plain chunks are judged on their first line; an empty title
// matches nothing. Results at or above GateBypassSimilarity are left alone.
func (p ScoringPolicy) Gate(results []types.SearchResult, keywords []string) []types.SearchResult {
	long := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if utf8.RuneCountInString(kw) >= p.GateMinWordLength {
			long = append(long, kw)
		}
	}
	if len(long) == 0 {
		return results
	}

	for i := range results {
		if results[i].Similarity >= p.GateBypassSimilarity {
			continue
		}
		title := textnorm.Fold(parser.LineTitle(results[i].Content))
		if containsAny(title, long) {
			continue
		}
		results[i].Similarity *= p.GatePenalty
	}
	return results
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
