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


// Package storage provides the storage abstraction layer for the term registry.
//
// This package defines repository interfaces that decouple storage
// implementation from business logic, allowing different backends (BadgerDB,
// in-memory, etc.) to be used interchangeably.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - TermRepository: operations for terms (the system of record)
//   - EntityRepository: operations for directory entities
//   - CheckpointRepository: batch-job cursors
//   - VectorSearcher: OPTIONAL vector similarity ranking capability
//
// Vector ranking is a capability, not a requirement: callers probe with
// SupportsVectorSearch and select a lexical fallback strategy when the
// backend does not implement it or a query embedding cannot be obtained.
//
// # Thread safety
//
// All repository implementations must be thread-safe and support concurrent
// access from multiple goroutines.
//
// # Context support
//
// All repository methods accept context.Context for cancellation and timeout
// support.
package storage
