package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/storage"
)

// TermRepository implements storage.TermRepository for BadgerDB.
// It also implements the storage.VectorSearcher capability by delegating to
// the backend's similarity scan.
type TermRepository struct {
	backend *Backend
}

var (
	_ storage.TermRepository = (*TermRepository)(nil)
	_ storage.VectorSearcher = (*TermRepository)(nil)
)

// NewTermRepository creates a new TermRepository.
func NewTermRepository(backend *Backend) (*TermRepository, error) {
	return &TermRepository{backend: backend}, nil
}

// Close releases repository resources.
func (r *TermRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *TermRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// FindSimilar delegates to the backend.
func (r *TermRepository) FindSimilar(ctx context.Context, vector []float32, scope storage.TermScope, limit int) ([]*core.SearchResult, error) {
	return r.backend.FindSimilar(ctx, vector, scope, limit)
}

// UpsertTerm inserts or updates a term by its natural key.
func (r *TermRepository) UpsertTerm(ctx context.Context, term *core.Term) (*core.Term, error) {
	if err := core.ValidateTerm(term); err != nil {
		return nil, err
	}
	if len(term.Embedding) > 0 && len(term.Embedding) != r.backend.dimension {
		return nil, core.ErrDimensionMismatch
	}

	if term.Id == 0 {
		term.Id = core.IDFromContent(term.NaturalKey())
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Localized-term uniqueness: the index entry may only point at us.
		locKey := makeLocalizedKey(localizedScopeOf(term), term.LocalizedTerm)
		if item, err := tx.Get(locKey); err == nil {
			var claimed core.ID
			err = item.Value(func(val []byte) error {
				var uerr error
				claimed, uerr = storage.UnmarshalID(val)
				return uerr
			})
			if err != nil {
				return err
			}
			if claimed != term.Id {
				return storage.ErrDuplicateKey
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		key := makeTermKey(term.Id)
		old, err := r.readTerm(tx, key)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if old != nil {
			term.InsertedAt = old.InsertedAt
			// Retire the previous localized index entry when the localized
			// form changed.
			if old.LocalizedTerm != term.LocalizedTerm {
				oldLocKey := makeLocalizedKey(localizedScopeOf(old), old.LocalizedTerm)
				if err := tx.Delete(oldLocKey); err != nil {
					return err
				}
			}
		} else {
			term.InsertedAt = now
		}
		term.UpdatedAt = now

		if err := tx.Set(key, storage.MarshalTerm(term)); err != nil {
			return err
		}
		if err := tx.Set(locKey, storage.MarshalID(term.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return term, nil
}

// GetTerm retrieves a single term by ID.
func (r *TermRepository) GetTerm(ctx context.Context, id core.ID) (*core.Term, error) {
	var term *core.Term
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		term, err = r.readTerm(tx, makeTermKey(id))
		if err != nil {
			return err
		}
		if term == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return term, nil
}

// GetTerms retrieves multiple terms by their IDs, skipping missing ones.
func (r *TermRepository) GetTerms(ctx context.Context, ids ...core.ID) ([]*core.Term, error) {
	terms := make([]*core.Term, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			term, err := r.readTerm(tx, makeTermKey(id))
			if err != nil {
				return err
			}
			if term != nil {
				terms = append(terms, term)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return terms, nil
}

// GetTermByLocalized looks a term up via the localized index.
func (r *TermRepository) GetTermByLocalized(ctx context.Context, scope storage.TermScope, localized string) (*core.Term, error) {
	var term *core.Term
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeLocalizedKey(scope, localized))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		var id core.ID
		if err := item.Value(func(val []byte) error {
			var uerr error
			id, uerr = storage.UnmarshalID(val)
			return uerr
		}); err != nil {
			return err
		}

		term, err = r.readTerm(tx, makeTermKey(id))
		if err != nil {
			return err
		}
		if term == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return term, nil
}

// ListTerms returns all terms within the scope, in key order.
func (r *TermRepository) ListTerms(ctx context.Context, scope storage.TermScope) ([]*core.Term, error) {
	var terms []*core.Term
	err := r.scanTerms(func(term *core.Term) {
		if termInScope(term, scope) {
			terms = append(terms, term)
		}
	})
	if err != nil {
		return nil, err
	}
	return terms, nil
}

// AllTermIDs returns every stored term ID, in key order.
func (r *TermRepository) AllTermIDs(ctx context.Context) ([]core.ID, error) {
	var ids []core.ID
	err := r.scanTerms(func(term *core.Term) {
		ids = append(ids, term.Id)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateEmbeddings persists new embeddings for existing terms.
func (r *TermRepository) UpdateEmbeddings(ctx context.Context, terms ...*core.Term) error {
	for _, term := range terms {
		if len(term.Embedding) > 0 && len(term.Embedding) != r.backend.dimension {
			return core.ErrDimensionMismatch
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, term := range terms {
			key := makeTermKey(term.Id)
			old, err := r.readTerm(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			old.Embedding = term.Embedding
			old.LastEmbeddedAt = now
			old.UpdatedAt = now
			if err := tx.Set(key, storage.MarshalTerm(old)); err != nil {
				return err
			}

			term.LastEmbeddedAt = now
			term.UpdatedAt = now
		}
		return tx.Commit()
	}, true)
}

// readTerm reads and deserializes a term, returning nil when absent.
func (r *TermRepository) readTerm(tx *badger.Txn, key []byte) (*core.Term, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var term *core.Term
	err = item.Value(func(val []byte) error {
		var uerr error
		term, uerr = storage.UnmarshalTerm(val)
		return uerr
	})
	return term, err
}

// scanTerms iterates every primary term record.
func (r *TermRepository) scanTerms(visit func(*core.Term)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(termPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var term *core.Term
			err := iter.Item().Value(func(val []byte) error {
				var uerr error
				term, uerr = storage.UnmarshalTerm(val)
				return uerr
			})
			if err != nil {
				return err
			}
			if term != nil {
				visit(term)
			}
		}
		return nil
	}, false)
}
