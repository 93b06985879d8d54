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


package core

import "errors"

// Domain validation errors. These identify client mistakes and are never
// retried or swallowed.
var (
	// ErrInvalidTerm indicates a Term failed validation.
	ErrInvalidTerm = errors.New("invalid term")

	// ErrBlankTerm indicates the LocalizedTerm field is blank.
	ErrBlankTerm = errors.New("localized term cannot be blank")

	// ErrBlankQuery indicates a search query is blank.
	ErrBlankQuery = errors.New("query cannot be blank")

	// ErrInvalidLanguage indicates the language is not a two-letter ISO code.
	ErrInvalidLanguage = errors.New("language must be a two-letter ISO code")

	// ErrBlankMarket indicates the MarketID field is blank.
	ErrBlankMarket = errors.New("market cannot be blank")

	// ErrEmbedBatchInput indicates an embed-batch request supplied neither
	// ids nor texts, or both.
	ErrEmbedBatchInput = errors.New("exactly one of ids or texts must be non-empty")

	// ErrDimensionMismatch indicates an embedding does not match the
	// configured vector dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
