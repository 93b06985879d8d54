package badger

import (
	"fmt"
	"strings"

	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/storage"
)

// Key prefixes for different data types
const (
	termPrefix          = "trmrec"
	termLocalizedPrefix = "trmloc"
	entityPrefix        = "entrec"
	cursorPrefix        = "jobcur"
)

// makeTermKey generates a key for a term by ID.
func makeTermKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", termPrefix, id))
}

// makeLocalizedKey generates the unique-index key for a localized term within
// its scope. The localized form is lowercased so uniqueness is case-insensitive.
// Format: prefix:market|domain|language|localized
func makeLocalizedKey(scope storage.TermScope, localized string) []byte {
	parts := []string{
		scope.MarketID,
		scope.Domain,
		scope.Language,
		strings.ToLower(localized),
	}
	return []byte(termLocalizedPrefix + ":" + strings.Join(parts, "|"))
}

// localizedScopeOf extracts the index scope from a term.
func localizedScopeOf(term *core.Term) storage.TermScope {
	return storage.TermScope{
		MarketID: term.MarketID,
		Language: term.Language,
		Domain:   term.Domain,
	}
}

// makeEntityKey generates a key for a directory entity by ID.
func makeEntityKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", entityPrefix, id))
}

// makeCursorKey generates a key for a batch-job cursor.
func makeCursorKey(job string) []byte {
	return []byte(fmt.Sprintf("%s:%s", cursorPrefix, job))
}
