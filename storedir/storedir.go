// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package storedir manages the on-disk data directory a Store lives in:
// creation, an advisory process-exclusive lock, and map-size sizing from a
// configured byte budget. It mirrors the single-owner-replica design note
// at the process level, guarding against two processes opening the same
// data directory at once (the in-memory open-replica set in docstore only
// guards against two handles within one process).
package storedir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/gofrs/flock"
)

const lockFileName = "LOCK"

// Dir is an opened, locked data directory.
type Dir struct {
	Path    string
	MapSize int64

	lock *flock.Flock
}

// Open creates dir if absent, takes an advisory exclusive lock on it, and
// returns a handle sized by budget. Close releases the lock; it does not
// remove the directory.
func Open(dir string, budget datasize.ByteSize) (*Dir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storedir: create %s: %w", dir, err)
	}

	lockPath := filepath.Join(dir, lockFileName)
	l := flock.New(lockPath)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("storedir: lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("storedir: %s is locked by another process", dir)
	}

	size := int64(budget.Bytes())
	if size <= 0 {
		return nil, fmt.Errorf("storedir: map size budget must be positive, got %s", budget)
	}

	return &Dir{Path: dir, MapSize: size, lock: l}, nil
}

// Close releases the advisory lock. Safe to call once.
func (d *Dir) Close() error {
	return d.lock.Unlock()
}

// DBPath is where the Store should open its MDBX environment within dir.
func (d *Dir) DBPath() string {
	return filepath.Join(d.Path, "docsync.mdbx")
}
