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


// Package ingest runs the batch ingestion pipeline: collect documents from
// the crawler, the term store, and the entity directory; drop near
// duplicates; embed in orchestrator-level batches; upsert each document
// through the registry's network interface.
//
// The registry is an external boundary here, so one failed upsert logs and
// moves on instead of aborting the batch. The whole pipeline is safe to
// re-run: the crawler checkpoints completed URLs and upserts are idempotent
// by natural key.
package ingest
