package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/termreg/ai/mock"
	"github.com/poiesic/termreg/cache"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/storage"
	"github.com/poiesic/termreg/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, dim int) (*Service, storage.TermRepository, *mock.MockEmbedder) {
	t.Helper()

	terms, _, backend, err := badger.NewMemoryRepositories(badger.WithDimension(dim))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	embedder := mock.NewMockEmbedderWithDimension(dim)
	svc, err := NewService(terms, embedder, cache.New(cache.Options{}))
	require.NoError(t, err)
	return svc, terms, embedder
}

func TestNewService_RequiredDependencies(t *testing.T) {
	terms, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	embedder := mock.NewMockEmbedder()
	cacheService := cache.New(cache.Options{})

	t.Run("nil term repository", func(t *testing.T) {
		_, err := NewService(nil, embedder, cacheService)
		assert.ErrorIs(t, err, ErrTermRepositoryRequired)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewService(terms, nil, cacheService)
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})

	t.Run("nil cache", func(t *testing.T) {
		_, err := NewService(terms, embedder, nil)
		assert.ErrorIs(t, err, ErrCacheRequired)
	})
}

func TestUpsert_EmbedsAndStores(t *testing.T) {
	svc, terms, _ := newTestService(t, 384)
	ctx := context.Background()

	stored, err := svc.Upsert(ctx, &core.Term{
		MarketID:      "CY-NC",
		Domain:        "local_info",
		BaseTerm:      "customs",
		Language:      "en",
		LocalizedTerm: "customs office",
	})
	require.NoError(t, err)
	assert.NotZero(t, stored.Id)
	assert.Len(t, stored.Embedding, 384)

	got, err := terms.GetTerm(ctx, stored.Id)
	require.NoError(t, err)
	assert.Equal(t, "customs", got.BaseTerm)
}

func TestUpsert_IsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t, 384)
	ctx := context.Background()

	term := func() *core.Term {
		return &core.Term{
			MarketID:      "CY-NC",
			Domain:        "local_info",
			BaseTerm:      "pharmacy",
			Language:      "en",
			LocalizedTerm: "pharmacy",
		}
	}

	first, err := svc.Upsert(ctx, term())
	require.NoError(t, err)
	second, err := svc.Upsert(ctx, term())
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id, "same natural key must map to the same record")
}

func TestUpsert_RejectsInvalidTerm(t *testing.T) {
	svc, _, embedder := newTestService(t, 384)

	_, err := svc.Upsert(context.Background(), &core.Term{
		MarketID: "CY-NC",
		Language: "en",
	})
	assert.ErrorIs(t, err, core.ErrInvalidTerm)
	assert.Zero(t, embedder.CallCount(), "invalid terms must not reach the provider")
}

func TestSearch_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, 384)
	ctx := context.Background()

	t.Run("blank query", func(t *testing.T) {
		_, err := svc.Search(ctx, SearchRequest{Query: "  ", MarketID: "CY-NC", Language: "en"})
		assert.ErrorIs(t, err, core.ErrBlankQuery)
	})

	t.Run("blank market", func(t *testing.T) {
		_, err := svc.Search(ctx, SearchRequest{Query: "customs", Language: "en"})
		assert.ErrorIs(t, err, core.ErrBlankMarket)
	})

	t.Run("bad language", func(t *testing.T) {
		_, err := svc.Search(ctx, SearchRequest{Query: "customs", MarketID: "CY-NC", Language: "eng"})
		assert.ErrorIs(t, err, core.ErrInvalidLanguage)
	})
}

func TestSearch_VectorRanking(t *testing.T) {
	svc, terms, embedder := newTestService(t, 4)
	ctx := context.Background()

	seed := map[string][]float32{
		"customs":  {1, 0, 0, 0},
		"pharmacy": {0, 1, 0, 0},
		"beaches":  {0.9, 0.1, 0, 0},
	}
	for base, vec := range seed {
		_, err := terms.UpsertTerm(ctx, &core.Term{
			MarketID:      "CY-NC",
			Domain:        "local_info",
			BaseTerm:      base,
			Language:      "en",
			LocalizedTerm: base,
			Embedding:     vec,
		})
		require.NoError(t, err)
	}

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0, 0}, nil
	}

	results, err := svc.Search(ctx, SearchRequest{
		Query:    "customs office",
		MarketID: "CY-NC",
		Language: "en",
		Domain:   "local_info",
		K:        2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "customs", results[0].Term.BaseTerm)
	assert.Equal(t, "beaches", results[1].Term.BaseTerm)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_CacheShortCircuitsEmbedding(t *testing.T) {
	svc, terms, embedder := newTestService(t, 384)
	ctx := context.Background()

	_, err := terms.UpsertTerm(ctx, &core.Term{
		MarketID:      "CY-NC",
		Domain:        "local_info",
		BaseTerm:      "pharmacy",
		Language:      "en",
		LocalizedTerm: "pharmacy",
		Embedding:     make([]float32, 384),
	})
	require.NoError(t, err)

	req := SearchRequest{Query: "Pharmacy", MarketID: "CY-NC", Language: "en", Domain: "local_info"}
	_, err = svc.Search(ctx, req)
	require.NoError(t, err)
	callsAfterFirst := embedder.CallCount()

	// Casing variants share an exact-cache entry, so no further provider calls.
	req.Query = "PHARMACY"
	_, err = svc.Search(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, embedder.CallCount())
	assert.LessOrEqual(t, callsAfterFirst, 1)
}

func TestSearch_CachedResultsNotCappedToFirstK(t *testing.T) {
	svc, terms, embedder := newTestService(t, 384)
	ctx := context.Background()

	for _, base := range []string{"pharmacy", "night pharmacy", "airport pharmacy"} {
		_, err := terms.UpsertTerm(ctx, &core.Term{
			MarketID:      "CY-NC",
			Domain:        "local_info",
			BaseTerm:      base,
			Language:      "en",
			LocalizedTerm: base,
		})
		require.NoError(t, err)
	}

	req := SearchRequest{Query: "pharmacy", MarketID: "CY-NC", Language: "en", K: 1}
	first, err := svc.Search(ctx, req)
	require.NoError(t, err)
	require.Len(t, first, 1)
	callsAfterFirst := embedder.CallCount()

	// The same query with a larger K must see the full result list, not
	// the slice the first caller asked for, and still be a cache hit.
	req.K = 10
	second, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.Len(t, second, 3)
	assert.Equal(t, callsAfterFirst, embedder.CallCount())
}

func TestUpsert_StoresWithoutVectorWhenEmbedderDown(t *testing.T) {
	svc, terms, embedder := newTestService(t, 384)
	ctx := context.Background()

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("503 service unavailable")
	}

	stored, err := svc.Upsert(ctx, &core.Term{
		MarketID:      "CY-NC",
		Domain:        "local_info",
		BaseTerm:      "customs",
		Language:      "en",
		LocalizedTerm: "customs office",
	})
	require.NoError(t, err, "provider outage must not fail upsert")
	assert.Empty(t, stored.Embedding)

	// The unembedded row is invisible to the vector pass, so search must
	// fall through to lexical matching and still find it.
	results, err := svc.Search(ctx, SearchRequest{
		Query:    "customs",
		MarketID: "CY-NC",
		Language: "en",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "customs", results[0].Term.BaseTerm)

	got, err := terms.GetTerm(ctx, stored.Id)
	require.NoError(t, err)
	assert.Empty(t, got.Embedding)
}

func TestUpsert_KeepsSuppliedEmbedding(t *testing.T) {
	svc, _, embedder := newTestService(t, 4)
	ctx := context.Background()

	stored, err := svc.Upsert(ctx, &core.Term{
		MarketID:      "CY-NC",
		Domain:        "local_info",
		BaseTerm:      "customs",
		Language:      "en",
		LocalizedTerm: "customs office",
		Embedding:     []float32{1, 0, 0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, stored.Embedding)
	assert.Zero(t, embedder.CallCount(), "a supplied embedding is stored as-is")
}

func TestSearch_LexicalFallbackWhenEmbedderDown(t *testing.T) {
	svc, terms, embedder := newTestService(t, 384)
	ctx := context.Background()

	for _, base := range []string{"customs", "pharmacy"} {
		_, err := terms.UpsertTerm(ctx, &core.Term{
			MarketID:      "CY-NC",
			Domain:        "local_info",
			BaseTerm:      base,
			Language:      "en",
			LocalizedTerm: base + " office",
		})
		require.NoError(t, err)
	}

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}

	results, err := svc.Search(ctx, SearchRequest{
		Query:    "customs",
		MarketID: "CY-NC",
		Language: "en",
	})
	require.NoError(t, err, "provider outage must not fail search")
	require.Len(t, results, 1)
	assert.Equal(t, "customs", results[0].Term.BaseTerm)
	assert.InDelta(t, localizedMatchScore, results[0].Score, 1e-6)
}

func TestUpsert_InvalidatesCaches(t *testing.T) {
	svc, _, _ := newTestService(t, 384)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, &core.Term{
		MarketID:      "CY-NC",
		Domain:        "local_info",
		BaseTerm:      "pharmacy",
		Language:      "en",
		LocalizedTerm: "pharmacy",
	})
	require.NoError(t, err)

	req := SearchRequest{Query: "pharmacy", MarketID: "CY-NC", Language: "en"}
	first, err := svc.Search(ctx, req)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A new term in scope must become visible despite the cached result.
	_, err = svc.Upsert(ctx, &core.Term{
		MarketID:      "CY-NC",
		Domain:        "local_info",
		BaseTerm:      "night pharmacy",
		Language:      "en",
		LocalizedTerm: "night pharmacy",
	})
	require.NoError(t, err)

	second, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

func TestEmbedBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects both forms", func(t *testing.T) {
		svc, _, _ := newTestService(t, 384)
		_, err := svc.EmbedBatch(ctx, EmbedBatchRequest{
			TermIDs: []core.ID{1},
			Texts:   []string{"x"},
		})
		assert.ErrorIs(t, err, core.ErrEmbedBatchInput)
	})

	t.Run("rejects neither form", func(t *testing.T) {
		svc, _, _ := newTestService(t, 384)
		_, err := svc.EmbedBatch(ctx, EmbedBatchRequest{})
		assert.ErrorIs(t, err, core.ErrEmbedBatchInput)
	})

	t.Run("texts form returns vectors with per-text status", func(t *testing.T) {
		svc, _, _ := newTestService(t, 384)
		result, err := svc.EmbedBatch(ctx, EmbedBatchRequest{
			Texts: []string{"customs office", "  ", "pharmacy"},
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 3)
		assert.Equal(t, StatusUpdated, result.Items[0].Status)
		assert.Equal(t, StatusSkipped, result.Items[1].Status)
		assert.Equal(t, StatusUpdated, result.Items[2].Status)
		require.Len(t, result.Vectors, 3)
		assert.NotNil(t, result.Vectors[0])
		assert.Nil(t, result.Vectors[1], "skipped text gets no vector")
		assert.NotNil(t, result.Vectors[2])
		assert.Zero(t, result.Updated)
	})

	t.Run("ids form refreshes stored embeddings", func(t *testing.T) {
		svc, terms, _ := newTestService(t, 384)
		stored, err := terms.UpsertTerm(ctx, &core.Term{
			MarketID:      "CY-NC",
			Domain:        "local_info",
			BaseTerm:      "customs",
			Language:      "en",
			LocalizedTerm: "customs office",
		})
		require.NoError(t, err)
		require.Empty(t, stored.Embedding)

		result, err := svc.EmbedBatch(ctx, EmbedBatchRequest{TermIDs: []core.ID{stored.Id}})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Updated)
		require.Len(t, result.Items, 1)
		assert.Equal(t, StatusUpdated, result.Items[0].Status)

		got, err := terms.GetTerm(ctx, stored.Id)
		require.NoError(t, err)
		assert.Len(t, got.Embedding, 384)
		assert.False(t, got.LastEmbeddedAt.IsZero())
	})

	t.Run("unknown id is reported, not fatal", func(t *testing.T) {
		svc, terms, _ := newTestService(t, 384)
		stored, err := terms.UpsertTerm(ctx, &core.Term{
			MarketID:      "CY-NC",
			Domain:        "local_info",
			BaseTerm:      "customs",
			Language:      "en",
			LocalizedTerm: "customs office",
		})
		require.NoError(t, err)

		result, err := svc.EmbedBatch(ctx, EmbedBatchRequest{TermIDs: []core.ID{stored.Id, 99999}})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Updated)
		assert.Equal(t, StatusUpdated, result.Items[0].Status)
		assert.Equal(t, StatusError, result.Items[1].Status)
	})
}

func TestClampK(t *testing.T) {
	assert.Equal(t, defaultK, clampK(0))
	assert.Equal(t, defaultK, clampK(-3))
	assert.Equal(t, 1, clampK(1))
	assert.Equal(t, maxK, clampK(100))
}
