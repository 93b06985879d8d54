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


// Package server exposes the registry service over HTTP.
//
// Routes:
//
//	POST /v1/search       scoped term search
//	POST /v1/upsert       idempotent term upsert
//	POST /v1/embed-batch  re-embed stored terms or embed raw texts
//	GET  /healthz         liveness probe, unauthenticated
//
// All /v1 routes require a bearer token from the configured allow-list.
// Client mistakes map to 400, bad credentials to 401, natural-key conflicts
// to 409, everything else to 500 with the detail kept in the server log.
package server
