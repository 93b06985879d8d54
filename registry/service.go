// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package registry

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/termreg/ai"
	"github.com/poiesic/termreg/cache"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/storage"
)

const (
	defaultK = 8
	maxK     = 25

	// Lexical fallback scores. A localized-term match outranks a
	// base-term match because it reflects what the user actually typed.
	localizedMatchScore = 0.8
	baseMatchScore      = 0.6
)

// SearchRequest describes one scoped query.
type SearchRequest struct {
	Query    string
	MarketID string
	Language string

	// Domain narrows the search; empty means all domains.
	Domain string

	// K is the maximum number of results. Values outside [1, 25] are
	// clamped; zero means the default of 8.
	K int
}

// EmbedBatchRequest re-embeds stored terms by ID, or embeds raw texts.
// Exactly one of TermIDs and Texts must be set.
type EmbedBatchRequest struct {
	TermIDs []core.ID
	Texts   []string
}

// Per-item embed_batch outcomes.
const (
	StatusUpdated = "updated"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// EmbedItemStatus reports the outcome for one ID or text in the request.
type EmbedItemStatus struct {
	// Index is the item's position in the request.
	Index int

	// ID is set for the TermIDs form.
	ID core.ID

	Status string

	// Detail carries the error message when Status is "error".
	Detail string
}

// EmbedBatchResult reports the outcome of an EmbedBatch call.
type EmbedBatchResult struct {
	Items []EmbedItemStatus

	// Updated is the number of stored terms whose embeddings were refreshed.
	Updated int

	// Vectors holds the embeddings for the Texts form of the request,
	// aligned with the request texts; skipped entries are nil.
	Vectors [][]float32

	PromptTokens int
	TotalTokens  int
}

// Service is the term registry's service layer.
type Service struct {
	terms    storage.TermRepository
	embedder ai.Embedder
	cache    *cache.Service
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates the registry service.
func NewService(
	terms storage.TermRepository,
	embedder ai.Embedder,
	cacheService *cache.Service,
	opts ...Option,
) (*Service, error) {
	if terms == nil {
		return nil, ErrTermRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if cacheService == nil {
		return nil, ErrCacheRequired
	}

	s := &Service{
		terms:    terms,
		embedder: embedder,
		cache:    cacheService,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "registry")

	return s, nil
}

// Upsert validates the term, embeds it when no embedding was supplied, and
// writes it through the repository. An embedding-provider failure is
// tolerated: the row is stored without a vector and search degrades to
// lexical matching for it. The stored ID derives from the term's natural
// key, so re-submitting the same term updates in place. Any successful write
// purges both cache tiers.
func (s *Service) Upsert(ctx context.Context, term *core.Term) (*core.Term, error) {
	if err := core.ValidateTerm(term); err != nil {
		return nil, err
	}

	if len(term.Embedding) == 0 {
		vector, err := s.embedder.EmbedText(ctx, term.EmbeddingText())
		if err != nil {
			s.logger.Warn("embedding failed, storing term without vector",
				"base_term", term.BaseTerm, "err", err)
		} else {
			term.Embedding = vector
		}
	}

	stored, err := s.terms.UpsertTerm(ctx, term)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateAll()
	s.logger.Info("term upserted",
		"id", stored.Id,
		"market", stored.MarketID,
		"domain", stored.Domain,
		"base_term", stored.BaseTerm)
	return stored, nil
}

// Search returns up to K terms ranked by relevance to the query within the
// request's scope. Results pass through the exact cache, then the semantic
// cache, before any repository work happens.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]*core.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, core.ErrBlankQuery
	}
	if strings.TrimSpace(req.MarketID) == "" {
		return nil, core.ErrBlankMarket
	}
	if !core.IsValidLanguage(req.Language) {
		return nil, core.ErrInvalidLanguage
	}
	k := clampK(req.K)

	exactKey := cache.ExactKey(req.MarketID, req.Language, req.Domain, req.Query)
	if results, ok := s.cache.GetExact(exactKey); ok {
		s.logger.Debug("exact cache hit", "key", exactKey)
		return capResults(results, k), nil
	}

	semanticKey := cache.SemanticKey(req.Query, req.Domain, req.Language)
	if results, ok := s.cache.GetSemantic(semanticKey); ok {
		s.logger.Debug("semantic cache hit", "key", semanticKey)
		s.cache.SetExact(exactKey, results)
		return capResults(results, k), nil
	}

	// Rank to the ceiling and cache the full list, so a later identical
	// query with a larger K is still served from cache.
	results, err := s.rank(ctx, req, maxK)
	if err != nil {
		return nil, err
	}

	s.cache.SetExact(exactKey, results)
	s.cache.SetSemantic(semanticKey, results)
	return capResults(results, k), nil
}

// rank produces scored results from the repository: vector ranking when the
// backend supports it and the query embeds cleanly, lexical ranking otherwise.
func (s *Service) rank(ctx context.Context, req SearchRequest, k int) ([]*core.SearchResult, error) {
	scope := storage.TermScope{
		MarketID: req.MarketID,
		Language: req.Language,
		Domain:   req.Domain,
	}

	if vs, ok := storage.SupportsVectorSearch(s.terms); ok {
		vector, err := s.embedder.EmbedText(ctx, req.Query)
		if err != nil {
			// Degrade rather than fail: the provider being down must
			// not take search down with it.
			s.logger.Warn("query embedding failed, using lexical ranking", "err", err)
			return s.rankLexical(ctx, req.Query, scope, k)
		}

		results, err := vs.FindSimilar(ctx, vector, scope, k)
		if err != nil {
			return nil, err
		}
		// An empty vector pass falls through to lexical matching so
		// unembedded rows stay reachable.
		if len(results) > 0 {
			return results, nil
		}
	}

	return s.rankLexical(ctx, req.Query, scope, k)
}

// rankLexical scores terms by case-insensitive substring match against the
// localized term, then the base term.
func (s *Service) rankLexical(ctx context.Context, query string, scope storage.TermScope, k int) ([]*core.SearchResult, error) {
	terms, err := s.terms.ListTerms(ctx, scope)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	results := make([]*core.SearchResult, 0, len(terms))
	for _, term := range terms {
		var score float32
		switch {
		case strings.Contains(strings.ToLower(term.LocalizedTerm), needle):
			score = localizedMatchScore
		case strings.Contains(strings.ToLower(term.BaseTerm), needle):
			score = baseMatchScore
		default:
			continue
		}
		results = append(results, &core.SearchResult{Term: term, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return capResults(results, k), nil
}

// EmbedBatch refreshes the embeddings of stored terms (TermIDs form) or
// embeds raw texts (Texts form). Exactly one form must be used. Per-item
// failures are reported in the result; a provider failure aborts the call.
func (s *Service) EmbedBatch(ctx context.Context, req EmbedBatchRequest) (*EmbedBatchResult, error) {
	hasIDs := len(req.TermIDs) > 0
	hasTexts := len(req.Texts) > 0
	if hasIDs == hasTexts {
		return nil, core.ErrEmbedBatchInput
	}

	if hasTexts {
		return s.embedTexts(ctx, req.Texts)
	}
	return s.reembedTerms(ctx, req.TermIDs)
}

// embedTexts is the ad hoc form: blank texts are skipped, nothing is persisted.
func (s *Service) embedTexts(ctx context.Context, texts []string) (*EmbedBatchResult, error) {
	result := &EmbedBatchResult{
		Items:   make([]EmbedItemStatus, len(texts)),
		Vectors: make([][]float32, len(texts)),
	}

	survivors := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			result.Items[i] = EmbedItemStatus{Index: i, Status: StatusSkipped, Detail: "blank text"}
			continue
		}
		result.Items[i] = EmbedItemStatus{Index: i, Status: StatusUpdated}
		survivors = append(survivors, i)
	}
	if len(survivors) == 0 {
		return result, nil
	}

	ordered := make([]string, len(survivors))
	for i, idx := range survivors {
		ordered[i] = texts[idx]
	}
	embedded, err := s.embedder.EmbedTexts(ctx, ordered)
	if err != nil {
		return nil, err
	}

	for i, idx := range survivors {
		result.Vectors[idx] = embedded.Vectors[i]
	}
	result.PromptTokens = embedded.PromptTokens
	result.TotalTokens = embedded.TotalTokens
	return result, nil
}

// reembedTerms loads each term, recomputes its embedding from the composite
// key text, and persists the refreshed vectors. Unknown IDs are reported
// per item and do not abort the batch.
func (s *Service) reembedTerms(ctx context.Context, ids []core.ID) (*EmbedBatchResult, error) {
	result := &EmbedBatchResult{Items: make([]EmbedItemStatus, len(ids))}

	found := make([]*core.Term, 0, len(ids))
	foundIdx := make([]int, 0, len(ids))
	for i, id := range ids {
		result.Items[i] = EmbedItemStatus{Index: i, ID: id}

		term, err := s.terms.GetTerm(ctx, id)
		if err != nil {
			result.Items[i].Status = StatusError
			result.Items[i].Detail = err.Error()
			continue
		}
		found = append(found, term)
		foundIdx = append(foundIdx, i)
	}
	if len(found) == 0 {
		return result, nil
	}

	texts := make([]string, len(found))
	for i, term := range found {
		texts[i] = term.EmbeddingText()
	}
	embedded, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}

	for i, term := range found {
		term.Embedding = embedded.Vectors[i]
	}
	if err := s.terms.UpdateEmbeddings(ctx, found...); err != nil {
		return nil, err
	}

	for _, i := range foundIdx {
		result.Items[i].Status = StatusUpdated
	}
	result.Updated = len(found)
	result.PromptTokens = embedded.PromptTokens
	result.TotalTokens = embedded.TotalTokens

	s.cache.InvalidateAll()
	s.logger.Info("embeddings refreshed", "count", result.Updated, "prompt_tokens", result.PromptTokens)
	return result, nil
}

func clampK(k int) int {
	switch {
	case k <= 0:
		return defaultK
	case k > maxK:
		return maxK
	default:
		return k
	}
}

func capResults(results []*core.SearchResult, k int) []*core.SearchResult {
	if len(results) > k {
		return results[:k]
	}
	return results
}
