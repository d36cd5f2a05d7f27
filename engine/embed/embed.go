// Package embed produces fixed-dimension vectors for atom text via an
// external embedding provider, with a bounded retry budget.
package embed

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/MachinaAI/machina-core/pkg/fn"
)

// Provider is the external embedding contract.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder wraps a Provider with dimension checking and retries.
// Transient provider failures are retried three times with exponential
// backoff from one second, capped at ten.
type Embedder struct {
	provider Provider
	dim      int
	retry    fn.RetryOpts
}

// New creates an Embedder that enforces the deployment-wide dimension.
func New(provider Provider, dim int) *Embedder {
	return &Embedder{provider: provider, dim: dim, retry: fn.DefaultRetry}
}

// Embed returns the vector for text. A wrong-dimension reply is a hard
// error: it means the deployment constant and the provider disagree.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result := fn.Retry(ctx, e.retry, func(ctx context.Context) fn.Result[[]float32] {
		return fn.FromPair(e.provider.Embed(ctx, text))
	})
	vec, err := result.Unwrap()
	if err != nil {
		return nil, err
	}
	if len(vec) != e.dim {
		return nil, fmt.Errorf("embed: provider returned %d dims, want %d", len(vec), e.dim)
	}
	return vec, nil
}

// Dim returns the deployment-wide embedding dimension.
func (e *Embedder) Dim() int { return e.dim }

// OpenAIProvider implements Provider on the OpenAI embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIProvider creates a provider for the given embedding model.
func NewOpenAIProvider(apiKey, model string, dim int) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  openai.EmbeddingModel(model),
		dim:    dim,
	}
}

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      p.model,
		Dimensions: p.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: openai: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: openai: empty response")
	}
	return resp.Data[0].Embedding, nil
}
