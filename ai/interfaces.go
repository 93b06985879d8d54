package ai

import "context"

// EmbedResult carries the vectors for one embedding call plus the provider's
// token accounting.
type EmbedResult struct {
	// Vectors holds one embedding per non-blank input text, in input order.
	Vectors [][]float32

	// PromptTokens is the token count of the submitted texts.
	PromptTokens int

	// TotalTokens is the provider's total token usage for the call.
	TotalTokens int
}

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings.
	// Blank texts are dropped; the returned vectors correspond to the
	// surviving texts in input order. Inputs larger than the configured
	// batch size are chunked internally; a batch that exhausts its retries
	// fails the whole call rather than returning a partial result.
	// Empty (or all-blank) input returns an empty result with no network call.
	EmbedTexts(ctx context.Context, texts []string) (*EmbedResult, error)

	// Dimension returns the fixed embedding dimension this embedder produces.
	Dimension() int
}
