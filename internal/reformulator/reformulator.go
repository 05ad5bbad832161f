// Package reformulator rewrites a user question into a keyword-dense
// technical query suited to embedding search.
package reformulator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/ficherag/internal/llm"
)

// SystemPrompt instructs the model to answer with search keywords only
const SystemPrompt = `Tu es un formateur secouriste. Reformule la question de l'utilisateur en une requête technique courte, en français, composée des termes employés dans les référentiels de secourisme (PSE, PSC, SST). Réponds uniquement par la requête, sans phrase d'introduction ni ponctuation finale.`

const (
	defaultMaxTokens   = 64
	defaultTemperature = 0.1
)

// Reformulator turns questions into technical queries through an LLM
type Reformulator struct {
	provider    llm.Provider
	logger      *slog.Logger
	model       string
	maxTokens   int
	temperature float64
}

// Option configures a Reformulator
type Option func(*Reformulator)

// WithLogger sets the logger used when falling back to the original question
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reformulator) {
		r.logger = logger
	}
}

// WithModel overrides the provider's default model
func WithModel(model string) Option {
	return func(r *Reformulator) {
		r.model = model
	}
}

// New creates a reformulator. A nil provider makes every call fall back.
func New(provider llm.Provider, opts ...Option) *Reformulator {
	r := &Reformulator{
		provider:    provider,
		logger:      slog.Default().With("component", "reformulator"),
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reformulate asks the model for a technical query
func (r *Reformulator) Reformulate(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question cannot be empty")
	}
	if r.provider == nil {
		return "", llm.ErrNoProvider
	}

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Model:       r.model,
		Messages:    []llm.Message{llm.System(SystemPrompt), llm.User(question)},
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		return "", err
	}

	query := clean(resp.Content)
	if query == "" {
		return "", llm.ErrEmptyCompletion
	}
	return query, nil
}

// TechnicalQuery never fails: on any error it returns the original question
func (r *Reformulator) TechnicalQuery(ctx context.Context, question string) string {
	query, err := r.Reformulate(ctx, question)
	if err != nil {
		r.logger.Warn("reformulation failed, using original question", "error", err)
		return strings.TrimSpace(question)
	}
	r.logger.Debug("question reformulated", "question", question, "query", query)
	return query
}

// clean keeps the first non-blank line and strips quotes and a trailing period
func clean(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.Trim(line, "\"'«» `")
		return strings.TrimSpace(strings.TrimRight(line, "."))
	}
	return ""
}
