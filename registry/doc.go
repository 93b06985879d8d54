// Package registry implements the term registry's service layer: scoped
// search with a two-tier cache in front, idempotent upserts with synchronous
// embedding, and batch re-embedding.
//
// Search ranks by vector similarity when the term repository advertises that
// capability, and degrades to lexical substring ranking when it does not or
// when the embedding provider is unavailable. A search never fails just
// because the embedder is down.
package registry
