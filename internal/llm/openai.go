package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/ficherag/internal/retry"
)

// DefaultMaxTokens bounds completions when the request sets no limit
const DefaultMaxTokens = 1024

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
// Any server speaking the same protocol (Ollama, vLLM, LM Studio) works
// through the base URL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
	policy retry.Policy
}

// NewOpenAIProvider creates a new OpenAI provider. An empty baseURL targets api.openai.com.
func NewOpenAIProvider(apiKey, baseURL, model string, policy retry.Policy) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		name:   ProviderOpenAI,
		policy: policy,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}

	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := retry.Do(ctx, p.policy, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		resp, err := p.client.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			return resp, classifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", p.name, err)
	}

	var content, finishReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finishReason = string(resp.Choices[0].FinishReason)
	}

	return &CompletionResponse{
		Content:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
		FinishReason: finishReason,
	}, nil
}

// classifyError marks client errors other than rate limiting as permanent
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
	}
	return err
}
