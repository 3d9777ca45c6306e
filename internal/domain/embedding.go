package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Corrector is the optional LLM post-processing capability for noisy OCR
// text. Prompt variants and model choice are configuration, not control flow.
type Corrector interface {
	Correct(ctx context.Context, rawText, promptVersion string) (string, error)
}
