package badger

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/storage"
)

// EntityRepository implements storage.EntityRepository for BadgerDB.
type EntityRepository struct {
	backend *Backend
}

var _ storage.EntityRepository = (*EntityRepository)(nil)

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(backend *Backend) (*EntityRepository, error) {
	return &EntityRepository{backend: backend}, nil
}

// Close releases repository resources.
func (r *EntityRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *EntityRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutEntities inserts or updates directory entities.
func (r *EntityRepository) PutEntities(ctx context.Context, entities ...*core.DirectoryEntity) ([]*core.DirectoryEntity, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, entity := range entities {
			if entity.Id == 0 {
				entity.Id = core.IDFromContent(entityContentKey(entity))
			}

			key := makeEntityKey(entity.Id)
			old, err := r.readEntity(tx, key)
			if err != nil {
				return err
			}
			if old != nil {
				entity.InsertedAt = old.InsertedAt
			} else {
				entity.InsertedAt = now
			}
			entity.UpdatedAt = now

			if err := tx.Set(key, storage.MarshalEntity(entity)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return entities, nil
}

// GetEntity retrieves a single entity by ID.
func (r *EntityRepository) GetEntity(ctx context.Context, id core.ID) (*core.DirectoryEntity, error) {
	var entity *core.DirectoryEntity
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		entity, err = r.readEntity(tx, makeEntityKey(id))
		if err != nil {
			return err
		}
		if entity == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// ListEntities returns all entities for a market, in key order.
// An empty marketID returns every entity.
func (r *EntityRepository) ListEntities(ctx context.Context, marketID string) ([]*core.DirectoryEntity, error) {
	var entities []*core.DirectoryEntity
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entityPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var entity *core.DirectoryEntity
			err := iter.Item().Value(func(val []byte) error {
				var uerr error
				entity, uerr = storage.UnmarshalEntity(val)
				return uerr
			})
			if err != nil {
				return err
			}
			if entity != nil && (marketID == "" || entity.MarketID == marketID) {
				entities = append(entities, entity)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// DeleteEntity removes an entity and nulls the EntityRef of any term that
// references it.
func (r *EntityRepository) DeleteEntity(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeEntityKey(id)
		if _, err := tx.Get(key); err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		} else if err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}

		// EntityRef cascades to null on entity deletion.
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(termPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		var orphaned []*core.Term
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
			if term != nil && term.EntityRef == id {
				orphaned = append(orphaned, term)
			}
		}
		// Close before writing; badger disallows writes with open iterators.
		iter.Close()

		now := time.Now().UTC()
		for _, term := range orphaned {
			term.EntityRef = 0
			term.UpdatedAt = now
			if err := tx.Set(makeTermKey(term.Id), storage.MarshalTerm(term)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// readEntity reads and deserializes an entity, returning nil when absent.
func (r *EntityRepository) readEntity(tx *badger.Txn, key []byte) (*core.DirectoryEntity, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entity *core.DirectoryEntity
	err = item.Value(func(val []byte) error {
		var uerr error
		entity, uerr = storage.UnmarshalEntity(val)
		return uerr
	})
	return entity, err
}

// entityContentKey is the identity tuple for content-derived entity IDs.
func entityContentKey(e *core.DirectoryEntity) string {
	return strings.Join([]string{e.MarketID, e.Category, e.City, e.Address}, "|")
}
