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


// Package dedup detects near-duplicate documents with MinHash signatures and
// locality-sensitive hashing, so the ingestion pipeline embeds each distinct
// text once.
//
// Signatures use 128 hash permutations over lowercased whitespace tokens, so
// similarity is set-based and insensitive to token order. LSH banding is
// 8 bands of 16 rows, which puts the collision threshold near 0.85 Jaccard
// similarity: (1/8)^(1/16) ≈ 0.88. Candidate pairs from band collisions are
// verified against the full signatures before a document is declared a
// duplicate.
package dedup

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/poiesic/termreg/core"
)

const (
	numPermutations = 128
	numBands        = 8
	rowsPerBand     = numPermutations / numBands

	// signatureThreshold is the verified-similarity cutoff applied to
	// candidate pairs surfaced by band collisions.
	signatureThreshold = 0.85
)

// Filter tracks MinHash signatures of seen documents and answers whether a
// new document is a near-duplicate of any earlier one. First seen wins: the
// first document of a duplicate cluster passes, later members are rejected.
//
// Filter is not safe for concurrent use; the ingestion orchestrator feeds it
// from a single goroutine.
type Filter struct {
	// bands maps band index -> band hash -> signature indices.
	bands      []map[string][]int
	signatures [][]uint64
	seeds      []uint64
	logger     *slog.Logger
}

// NewFilter creates an empty duplicate filter.
func NewFilter() *Filter {
	bands := make([]map[string][]int, numBands)
	for i := range bands {
		bands[i] = make(map[string][]int)
	}

	seeds := make([]uint64, numPermutations)
	for i := range seeds {
		// Deterministic seeds derived from the permutation index keep
		// signatures stable across runs and processes.
		h := fnv.New64a()
		fmt.Fprintf(h, "minhash-perm-%d", i)
		seeds[i] = h.Sum64()
	}

	return &Filter{
		bands:  bands,
		seeds:  seeds,
		logger: slog.Default().With("component", "dedup"),
	}
}

// Seen reports whether the document's text is a near-duplicate of a
// previously admitted document. Unseen documents are admitted and recorded.
func (f *Filter) Seen(doc *core.Document) bool {
	sig := f.signature(doc.Text)

	if idx, ok := f.findDuplicate(sig); ok {
		f.logger.Debug("near-duplicate document dropped",
			"source", doc.Meta.Source,
			"matched_index", idx)
		return true
	}

	f.admit(sig)
	return false
}

// Admitted returns the number of distinct documents recorded so far.
func (f *Filter) Admitted() int {
	return len(f.signatures)
}

// findDuplicate checks each band for a collision and verifies candidates
// against the full signature.
func (f *Filter) findDuplicate(sig []uint64) (int, bool) {
	checked := make(map[int]bool)
	for band := 0; band < numBands; band++ {
		key := bandKey(sig, band)
		for _, idx := range f.bands[band][key] {
			if checked[idx] {
				continue
			}
			checked[idx] = true
			if signatureSimilarity(sig, f.signatures[idx]) >= signatureThreshold {
				return idx, true
			}
		}
	}
	return 0, false
}

func (f *Filter) admit(sig []uint64) {
	idx := len(f.signatures)
	f.signatures = append(f.signatures, sig)
	for band := 0; band < numBands; band++ {
		key := bandKey(sig, band)
		f.bands[band][key] = append(f.bands[band][key], idx)
	}
}

// signature computes the document's MinHash signature over its token set.
// Repeated tokens cannot lower a minimum twice, so no explicit dedup is
// needed before hashing.
func (f *Filter) signature(text string) []uint64 {
	sig := make([]uint64, numPermutations)
	for i := range sig {
		sig[i] = ^uint64(0)
	}

	for _, token := range tokens(text) {
		base := fnvHash(token)
		for i, seed := range f.seeds {
			// Mixing a per-permutation seed into one base hash stands
			// in for 128 independent hash functions.
			h := mix(base ^ seed)
			if h < sig[i] {
				sig[i] = h
			}
		}
	}
	return sig
}

// tokens lowercases the text and splits it on whitespace. Empty texts yield
// a single empty token so they still get a signature.
func tokens(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return []string{""}
	}
	return words
}

func bandKey(sig []uint64, band int) string {
	start := band * rowsPerBand
	var b strings.Builder
	for _, v := range sig[start : start+rowsPerBand] {
		fmt.Fprintf(&b, "%016x", v)
	}
	return b.String()
}

// signatureSimilarity estimates Jaccard similarity as the fraction of
// agreeing signature positions.
func signatureSimilarity(a, b []uint64) float64 {
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// mix is a 64-bit finalizer (splitmix64) that decorrelates the seeded hashes.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
