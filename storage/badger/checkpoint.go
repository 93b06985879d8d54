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


package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/termreg/core"
	"github.com/poiesic/termreg/storage"
)

// CheckpointRepository implements storage.CheckpointRepository for BadgerDB.
// It stores the last processed ID per named batch job so interrupted runs
// resume where they left off.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{backend: backend}
}

// SaveCursor persists the last processed ID for a named job.
func (r *CheckpointRepository) SaveCursor(ctx context.Context, job string, lastID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeCursorKey(job), storage.MarshalID(lastID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadCursor retrieves the cursor for a named job.
// Returns (0, false, nil) if no cursor exists.
func (r *CheckpointRepository) LoadCursor(ctx context.Context, job string) (core.ID, bool, error) {
	var (
		id    core.ID
		found bool
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCursorKey(job))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			var uerr error
			id, uerr = storage.UnmarshalID(val)
			return uerr
		})
	}, false)

	return id, found, err
}
