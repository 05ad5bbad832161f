package reformulator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ficherag/internal/llm"
)

type mockProvider struct {
	mu      sync.Mutex
	calls   []llm.CompletionRequest
	content string
	err     error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.CompletionResponse{Content: m.content}, nil
}

func TestReformulate(t *testing.T) {
	mock := &mockProvider{content: "  « hémorragie externe compression directe garrot. »\n"}
	r := New(mock, WithModel("small"))

	query, err := r.Reformulate(context.Background(), "Mon ami saigne beaucoup, je fais quoi ?")
	require.NoError(t, err)
	assert.Equal(t, "hémorragie externe compression directe garrot", query)

	require.Len(t, mock.calls, 1)
	req := mock.calls[0]
	assert.Equal(t, "small", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "Mon ami saigne beaucoup, je fais quoi ?", req.Messages[1].Content)
}

func TestReformulate_Errors(t *testing.T) {
	_, err := New(&mockProvider{}).Reformulate(context.Background(), "  ")
	assert.Error(t, err)

	_, err = New(nil).Reformulate(context.Background(), "question")
	assert.ErrorIs(t, err, llm.ErrNoProvider)

	_, err = New(&mockProvider{content: "\n  \n"}).Reformulate(context.Background(), "question")
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}

func TestTechnicalQuery_FallsBack(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
	}{
		{"provider error", &mockProvider{err: errors.New("timeout")}},
		{"empty output", &mockProvider{content: ""}},
		{"no provider", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.provider)
			assert.Equal(t, "brûlure au bras", r.TechnicalQuery(context.Background(), " brûlure au bras "))
		})
	}
}

func TestTechnicalQuery_UsesModelOutput(t *testing.T) {
	r := New(&mockProvider{content: "brûlure thermique refroidissement"})
	assert.Equal(t, "brûlure thermique refroidissement", r.TechnicalQuery(context.Background(), "brûlure au bras"))
}
