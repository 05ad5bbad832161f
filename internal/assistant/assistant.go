// Package assistant answers first-aid questions from retrieved fiches.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/ficherag/internal/formatter"
	"github.com/dshills/ficherag/internal/llm"
	"github.com/dshills/ficherag/internal/searcher"
	"github.com/dshills/ficherag/pkg/types"
)

// NoAnswerMessage is returned when no fiche matches the question
const NoAnswerMessage = "Je n'ai trouvé aucune fiche correspondant à votre question dans les référentiels indexés."

// SystemPrompt constrains the model to the retrieved context
const SystemPrompt = `Tu es un formateur secouriste. Réponds en français à la question en t'appuyant uniquement sur le CONTEXT fourni, issu des référentiels officiels. Cite les fiches utilisées entre crochets, par exemple [fiche:05PR08]. Si le CONTEXT ne permet pas de répondre, dis-le.`

// DefaultContextTokens bounds the context block handed to the model
const DefaultContextTokens = 2500

// Searcher runs a hybrid search
type Searcher interface {
	Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error)
}

// Rewriter turns a question into a technical query and never fails
type Rewriter interface {
	TechnicalQuery(ctx context.Context, question string) string
}

// Answer is the outcome of Ask
type Answer struct {
	Question       string            `json:"question"`
	TechnicalQuery string            `json:"technical_query"`
	Answer         string            `json:"answer"`
	Fiches         []types.FicheView `json:"fiches"`
	Sources        int               `json:"sources"`
	ContextTokens  int               `json:"context_tokens"`
	Empty          bool              `json:"empty"`
	// Generated is false when no model was available and only fiches are returned
	Generated bool `json:"generated"`
}

// Assistant wires reformulation, search, formatting and generation
type Assistant struct {
	searcher      Searcher
	rewriter      Rewriter
	provider      llm.Provider
	logger        *slog.Logger
	contextTokens int
	maxTokens     int
	temperature   float64
}

// Option configures an Assistant
type Option func(*Assistant)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		a.logger = logger
	}
}

// WithContextTokens sets the context budget in words
func WithContextTokens(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.contextTokens = n
		}
	}
}

// WithGeneration sets completion length and temperature
func WithGeneration(maxTokens int, temperature float64) Option {
	return func(a *Assistant) {
		a.maxTokens = maxTokens
		a.temperature = temperature
	}
}

// New creates an assistant. rewriter and provider may be nil: the question
// is then searched as asked and only fiches are returned.
func New(s Searcher, rewriter Rewriter, provider llm.Provider, opts ...Option) *Assistant {
	a := &Assistant{
		searcher:      s,
		rewriter:      rewriter,
		provider:      provider,
		logger:        slog.Default().With("component", "assistant"),
		contextTokens: DefaultContextTokens,
		temperature:   0.2,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask answers question from the fiches of the given category ("" for all)
func (a *Assistant) Ask(ctx context.Context, question, category string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, searcher.ErrEmptyQuery
	}

	technical := question
	if a.rewriter != nil {
		technical = a.rewriter.TechnicalQuery(ctx, question)
	}

	resp, err := a.searcher.Search(ctx, searcher.SearchRequest{
		TechnicalQuery: technical,
		OriginalQuery:  question,
		Category:       category,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	answer := &Answer{
		Question:       question,
		TechnicalQuery: technical,
		Fiches:         formatter.Format(resp.Results),
	}

	if resp.Empty || len(answer.Fiches) == 0 {
		answer.Empty = true
		answer.Answer = NoAnswerMessage
		answer.Fiches = []types.FicheView{}
		return answer, nil
	}

	contextText, tokens, sources := formatter.BuildContext(answer.Fiches, a.contextTokens)
	answer.ContextTokens = tokens
	answer.Sources = sources

	if a.provider == nil {
		return answer, nil
	}

	completion, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.System(SystemPrompt),
			llm.User(contextText + "\n\nQUESTION\n" + question),
		},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	answer.Answer = strings.TrimSpace(completion.Content)
	answer.Generated = true
	a.logger.Debug("answer generated", "fiches", len(answer.Fiches), "context_tokens", tokens,
		"input_tokens", completion.InputTokens, "output_tokens", completion.OutputTokens)
	return answer, nil
}
