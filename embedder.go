package typesensei

import "context"

// Embedder converts text to vector embeddings. Hybrid search uses it to
// turn the free-text query into a vector_query.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}
