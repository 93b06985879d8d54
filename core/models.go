package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Term IDs are derived from the natural key so that upserts are idempotent.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Term is a localized, domain-scoped phrase mapped to a canonical base form
// and an optional routing target. Terms are created and updated only through
// upsert; the embedding is recomputed lazily when absent, or explicitly via
// batch re-embed.
type Term struct {
	Id             ID
	MarketID       string
	Domain         string
	BaseTerm       string
	Language       string // ISO-2 code, lowercase
	LocalizedTerm  string
	RouteTarget    string
	EntityRef      ID // 0 = no directory entity reference
	Monetization   map[string]string
	Metadata       map[string]string
	Embedding      []float32 // nil until embedded
	LastEmbeddedAt time.Time
	InsertedAt     time.Time
	UpdatedAt      time.Time
}

// NaturalKey returns the composite key that uniquely identifies a term
// within its market. The term ID is derived from this key.
func (t *Term) NaturalKey() string {
	return strings.Join([]string{t.MarketID, t.Domain, t.Language, t.BaseTerm}, "|")
}

// EmbeddingText returns the text embedded for this term: the concatenated
// key fields, so near-synonymous localized forms land close together.
func (t *Term) EmbeddingText() string {
	return strings.TrimSpace(t.BaseTerm + " " + t.LocalizedTerm + " " + t.Domain + " " + t.MarketID)
}

// DirectoryEntity is a market-scoped directory listing (office, business,
// service point). Entities are not searched directly; ingestion re-describes
// them as documents, and terms may reference one via EntityRef.
type DirectoryEntity struct {
	Id            ID
	MarketID      string
	Category      string
	Subcategory   string
	City          string
	Address       string
	Latitude      float64
	Longitude     float64
	Phone         string
	Website       string
	LocalizedData map[string]string // language code -> localized description
	Metadata      map[string]string
	InsertedAt    time.Time
	UpdatedAt     time.Time
}

// DocumentMeta carries provenance and scoping for a transient document.
type DocumentMeta struct {
	Source        string // crawl URL, "term-store", "directory"
	Type          string // "qa", "term", "entity"
	Domain        string
	Language      string
	MarketID      string
	BaseTerm      string
	LocalizedTerm string
}

// Document is the unit passed through deduplication and embedding during
// ingestion. Documents are never persisted independently.
type Document struct {
	Text string
	Meta DocumentMeta
}

// SearchResult is a term with its relevance score.
type SearchResult struct {
	Term  *Term
	Score float32
}
