// Package mock provides deterministic ai.Embedder test doubles.
//
// The mock produces FNV-seeded unit vectors so the same text always maps to
// the same embedding, and counts calls so tests can assert on provider
// traffic. Behavior can be overridden per test via function fields.
package mock
