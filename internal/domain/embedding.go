package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies collaborator availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Attributes are the mapped metadata of one dish row, keyed by metadata field name.
type Attributes map[string]string

// Synthesizer turns dish attributes into the text that gets embedded and stored.
// Implementations are picked by the caller; the document builder never subclasses them.
type Synthesizer interface {
	Synthesize(ctx context.Context, attrs Attributes) (string, error)
}
