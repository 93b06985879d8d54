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


// Package cache provides the two-tier result cache for the search service:
// an exact-match tier keyed by the literal query scope and a semantic tier
// keyed by a content hash, so near-identical queries collapse to one entry.
//
// Both tiers are bounded, TTL-aware LRU caches. They are disposable
// accelerators, never a system of record; any term mutation purges both
// tiers entirely. The service is constructed explicitly and passed by
// reference into request handlers — there is no package-level instance.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/poiesic/termreg/core"
)

const (
	defaultSize = 1024
	defaultTTL  = 5 * time.Minute

	// wildcardDomain marks the unscoped-domain slot in exact keys.
	wildcardDomain = "*"
)

// Options configures a cache Service.
type Options struct {
	// ExactSize is the exact tier's entry capacity. Default 1024.
	ExactSize int

	// SemanticSize is the semantic tier's entry capacity. Default 1024.
	SemanticSize int

	// TTL is the time-to-live for entries in both tiers. Default 5m.
	TTL time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service holds both cache tiers. All methods are safe for concurrent use.
type Service struct {
	exact    *expirable.LRU[string, []*core.SearchResult]
	semantic *expirable.LRU[string, []*core.SearchResult]
	logger   *slog.Logger
}

// New creates a cache service with both tiers empty.
func New(opts Options) *Service {
	if opts.ExactSize <= 0 {
		opts.ExactSize = defaultSize
	}
	if opts.SemanticSize <= 0 {
		opts.SemanticSize = defaultSize
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		exact:    expirable.NewLRU[string, []*core.SearchResult](opts.ExactSize, nil, opts.TTL),
		semantic: expirable.NewLRU[string, []*core.SearchResult](opts.SemanticSize, nil, opts.TTL),
		logger:   logger.With("component", "cache"),
	}
}

// ExactKey builds the exact-tier key for a query scope.
// An empty domain maps to the wildcard slot; the query is lowercased so
// casing variants share an entry.
func ExactKey(marketID, language, domain, query string) string {
	if domain == "" {
		domain = wildcardDomain
	}
	return strings.Join([]string{marketID, language, domain, strings.ToLower(query)}, "|")
}

// semanticPayload is hashed with its keys in sorted (JSON-canonical) order so
// field ordering at the call site cannot produce distinct keys.
type semanticPayload struct {
	Domain   string `json:"domain"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

// SemanticKey builds the semantic-tier key: a BLAKE2b hash over the canonical
// JSON form of {text, domain, language} with the text lowercased.
func SemanticKey(text, domain, language string) string {
	payload, _ := json.Marshal(semanticPayload{
		Domain:   domain,
		Language: language,
		Text:     strings.ToLower(text),
	})
	h, _ := blake2b.New(16, nil)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// GetExact returns the exact-tier entry for the key, if present and fresh.
// A hit promotes the entry to most-recently-used.
func (s *Service) GetExact(key string) ([]*core.SearchResult, bool) {
	return s.exact.Get(key)
}

// SetExact stores results under the key, evicting the least-recently-used
// entry when at capacity. Empty result lists are cached too, so repeated
// empty queries short-circuit.
func (s *Service) SetExact(key string, results []*core.SearchResult) {
	s.exact.Add(key, results)
}

// GetSemantic returns the semantic-tier entry for the key, if present and fresh.
func (s *Service) GetSemantic(key string) ([]*core.SearchResult, bool) {
	return s.semantic.Get(key)
}

// SetSemantic stores results under the semantic key.
func (s *Service) SetSemantic(key string, results []*core.SearchResult) {
	s.semantic.Add(key, results)
}

// InvalidateAll purges both tiers. Called on every term mutation —
// coarse-grained but correctness-preserving, acceptable because writes are
// rare relative to reads.
func (s *Service) InvalidateAll() {
	s.exact.Purge()
	s.semantic.Purge()
	s.logger.Debug("cache invalidated")
}

// Len reports the entry counts of (exact, semantic) tiers.
func (s *Service) Len() (int, int) {
	return s.exact.Len(), s.semantic.Len()
}
