package ingest

import "errors"

var (
	// ErrWriterRequired is returned when no term writer is provided.
	ErrWriterRequired = errors.New("term writer is required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrNoSources is returned when the orchestrator has nothing to ingest from.
	ErrNoSources = errors.New("at least one document source is required")
)
