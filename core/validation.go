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

import (
	"fmt"
	"strings"
)

// ValidateTerm validates a Term according to domain rules.
//
// Validation rules:
//   - LocalizedTerm must not be blank
//   - MarketID and BaseTerm must not be blank
//   - Language must be a two-letter ISO code
//
// NOT validated (populated later):
//   - Embedding (can be empty until embedded)
//   - LastEmbeddedAt
func ValidateTerm(term *Term) error {
	if term == nil {
		return fmt.Errorf("%w: term is nil", ErrInvalidTerm)
	}

	if strings.TrimSpace(term.LocalizedTerm) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTerm, ErrBlankTerm)
	}

	if strings.TrimSpace(term.MarketID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTerm, ErrBlankMarket)
	}

	if strings.TrimSpace(term.BaseTerm) == "" {
		return fmt.Errorf("%w: base term cannot be blank", ErrInvalidTerm)
	}

	if !IsValidLanguage(term.Language) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidTerm, ErrInvalidLanguage, term.Language)
	}

	return nil
}

// IsValidLanguage checks that a language code is two ASCII letters.
func IsValidLanguage(lang string) bool {
	if len(lang) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := lang[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
