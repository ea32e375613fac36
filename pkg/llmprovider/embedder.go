package llmprovider

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
)

// Embedder turns texts into embedding vectors through the embeddings API.
type Embedder struct {
	client *openaisdk.Client
	model  string
}

// NewEmbedder returns nil when the provider is not configured.
func NewEmbedder(c Config) *Embedder {
	client := NewClient(c)
	if client == nil {
		return nil
	}
	return &Embedder{client: client, model: c.ResolvedEmbeddingModel()}
}

// Embed returns one vector per input, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e == nil || len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		if idx >= len(out) {
			continue
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		out[idx] = vec
	}
	return out, nil
}
