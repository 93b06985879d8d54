package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/poiesic/termreg/ai"
	"github.com/poiesic/termreg/retry"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const fallbackEncoding = "cl100k_base"

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// It batches large inputs, retries transient provider failures per batch,
// and counts tokens locally so callers get usage figures even from servers
// that omit them.
type Embedder struct {
	embedder  embeddings.Embedder
	encoder   *tiktoken.Tiktoken
	dimension int
	batchSize int
	retryOpts retry.Options
	logger    *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	encoder, err := tiktoken.EncodingForModel(config.EmbeddingModel)
	if err != nil {
		// Local model names are unknown to tiktoken; fall back to the
		// encoding modern OpenAI models share.
		encoder, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}

	return &Embedder{
		embedder:  embedder,
		encoder:   encoder,
		dimension: config.Dimension,
		batchSize: config.BatchSize,
		retryOpts: retry.Options{
			MaxAttempts: config.MaxRetries,
			BaseDelay:   config.RetryBaseDelay,
			Jitter:      config.RetryJitter,
			Retryable:   isTransient,
		},
		logger: slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// Dimension returns the configured embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	result, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(result.Vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}
	return result.Vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings.
// Blank texts are dropped before submission; the output corresponds to the
// surviving texts in order. Each batch gets its own retry budget, and a batch
// that exhausts it fails the whole call.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) (*ai.EmbedResult, error) {
	survivors := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) != "" {
			survivors = append(survivors, text)
		}
	}
	if len(survivors) == 0 {
		return &ai.EmbedResult{Vectors: [][]float32{}}, nil
	}

	e.logger.Debug("generating embeddings", "count", len(survivors), "dropped", len(texts)-len(survivors))

	result := &ai.EmbedResult{
		Vectors: make([][]float32, 0, len(survivors)),
	}
	for start := 0; start < len(survivors); start += e.batchSize {
		end := min(start+e.batchSize, len(survivors))
		batch := survivors[start:end]

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			e.logger.Error("batch embedding failed", "offset", start, "size", len(batch), "err", err)
			return nil, err
		}
		result.Vectors = append(result.Vectors, vectors...)

		for _, text := range batch {
			result.PromptTokens += len(e.encoder.Encode(text, nil, nil))
		}
	}
	result.TotalTokens = result.PromptTokens

	return result, nil
}

// embedBatch submits one batch with bounded retry and verifies the provider's
// output shape.
func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := retry.Do(ctx, func() error {
		out, err := e.embedder.EmbedDocuments(ctx, batch)
		if err != nil {
			return err
		}
		vectors = out
		return nil
	}, e.retryOpts)
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ai.ErrVectorCountMismatch, len(vectors), len(batch))
	}
	for _, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: provider returned %d, expected %d", ai.ErrDimensionMismatch, len(v), e.dimension)
		}
	}
	return vectors, nil
}

// isTransient reports whether a provider error is worth retrying: rate
// limits, server-side failures, and timeouts. Auth and validation errors
// abort immediately.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable",
		"timeout", "connection refused", "connection reset", "eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
