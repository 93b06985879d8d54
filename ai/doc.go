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


// Package ai provides the embedding abstraction for the term registry.
//
// The Embedder interface decouples the search service and the ingestion
// pipeline from the concrete provider. Two implementation packages exist:
//
//   - ai/openai: production implementation for OpenAI-compatible APIs,
//     with internal batching, bounded retry, and token accounting
//   - ai/mock: deterministic test doubles with call counting and
//     behavior injection via function fields
//
// Public constructors return the Embedder interface to enforce abstraction;
// mock constructors return concrete types so tests can assert on call counts.
package ai
