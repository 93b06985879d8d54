package storage

import (
	"context"

	"github.com/poiesic/termreg/core"
)

// TermScope bounds a term query to a market and language, and optionally to a
// single domain. An empty Domain matches every domain in the scope.
type TermScope struct {
	MarketID string
	Language string
	Domain   string
}

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// TermRepository provides operations for managing terms.
// The term store is the sole system of record for terms.
type TermRepository interface {
	Repository

	// UpsertTerm inserts or updates a term by its natural key
	// (market, domain, language, base term). The term ID is derived from the
	// natural key, so repeated upserts update rather than duplicate rows.
	// Returns ErrDuplicateKey if the localized term is already claimed by a
	// different natural key in the same scope.
	// Returns core.ErrDimensionMismatch if the embedding length differs from
	// the store's configured dimension.
	UpsertTerm(ctx context.Context, term *core.Term) (*core.Term, error)

	// GetTerm retrieves a single term by ID.
	// Returns ErrNotFound if the term doesn't exist.
	GetTerm(ctx context.Context, id core.ID) (*core.Term, error)

	// GetTerms retrieves multiple terms by their IDs.
	// Returns only the terms that exist (no error for missing terms).
	GetTerms(ctx context.Context, ids ...core.ID) ([]*core.Term, error)

	// GetTermByLocalized looks a term up by its localized form within a scope.
	// Returns ErrNotFound if no term matches.
	GetTermByLocalized(ctx context.Context, scope TermScope, localized string) (*core.Term, error)

	// ListTerms returns all terms within the scope, in stable key order.
	ListTerms(ctx context.Context, scope TermScope) ([]*core.Term, error)

	// AllTermIDs returns the IDs of every stored term, in stable key order.
	// Used by batch re-embedding.
	AllTermIDs(ctx context.Context) ([]core.ID, error)

	// UpdateEmbeddings persists new embeddings for existing terms and
	// refreshes their LastEmbeddedAt timestamps.
	// Returns ErrNotFound if any term doesn't exist.
	UpdateEmbeddings(ctx context.Context, terms ...*core.Term) error
}

// EntityRepository provides operations for managing directory entities.
type EntityRepository interface {
	Repository

	// PutEntities inserts or updates directory entities. Entities without an
	// ID get a content-derived one from (market, category, city, address).
	PutEntities(ctx context.Context, entities ...*core.DirectoryEntity) ([]*core.DirectoryEntity, error)

	// GetEntity retrieves a single entity by ID.
	// Returns ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, id core.ID) (*core.DirectoryEntity, error)

	// ListEntities returns all entities for a market, in stable key order.
	ListEntities(ctx context.Context, marketID string) ([]*core.DirectoryEntity, error)

	// DeleteEntity removes an entity and nulls the EntityRef of any term that
	// references it.
	// Returns ErrNotFound if the entity doesn't exist.
	DeleteEntity(ctx context.Context, id core.ID) error
}

// CheckpointRepository persists batch-job cursors so interrupted runs resume
// where they left off.
type CheckpointRepository interface {
	// SaveCursor persists the last processed ID for a named job.
	SaveCursor(ctx context.Context, job string, lastID core.ID) error

	// LoadCursor retrieves the cursor for a named job.
	// Returns (0, false, nil) if no cursor exists.
	LoadCursor(ctx context.Context, job string) (core.ID, bool, error)
}

// VectorSearcher is an optional capability of a term repository. Backends
// that can rank by vector similarity implement it; callers must check with
// SupportsVectorSearch and fall back to lexical matching otherwise.
type VectorSearcher interface {
	// FindSimilar ranks terms in the scope by ascending cosine distance to
	// the query vector and returns up to limit results with
	// score = max(0, 1 - distance). Terms without embeddings are skipped.
	FindSimilar(ctx context.Context, vector []float32, scope TermScope, limit int) ([]*core.SearchResult, error)
}

// SupportsVectorSearch reports whether the repository can rank by vector
// similarity, returning the capability when present.
func SupportsVectorSearch(repo TermRepository) (VectorSearcher, bool) {
	vs, ok := repo.(VectorSearcher)
	return vs, ok
}
