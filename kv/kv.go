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

// Package kv declares the storage-engine-agnostic transaction interface
// the replica store is built on: multi-table snapshots for readers,
// exclusive serialisable transactions for writers, and cursors for
// ordered range iteration. kv/mdbx provides the only implementation.
//
// Naming:
//
//	tx/RoTx/RwTx - database transaction (read-only / read-write)
//	Cursor       - ordered walk over one table
//	DupSort      - a table where one key maps to a sorted set of values
//	  (used for the sync-peers multimap)
package kv

import (
	"context"
	"errors"
)

var (
	// ErrBucketNotFound is returned when a table name was never registered
	// via TableCfg.
	ErrBucketNotFound = errors.New("kv: bucket not found")
	// ErrTxClosed is returned by Commit when the transaction was already
	// committed or rolled back.
	ErrTxClosed = errors.New("kv: transaction already closed")
)

// TableFlags describes the physical layout of one table.
type TableFlags uint

const (
	// Default - single value per key, sorted by key.
	Default TableFlags = 0
	// DupSort - table accepts multiple sorted values per key (the multimap
	// tables, i.e. sync-peers-1, are opened with this flag).
	DupSort TableFlags = 1 << iota
)

// TableCfgItem is one table's static configuration.
type TableCfgItem struct {
	Flags TableFlags
}

// TableCfg maps table name -> static configuration. Passed to Open so the
// engine can create every table up front.
type TableCfg map[string]TableCfgItem

// Closer is implemented by anything holding a resource that must be
// released exactly once.
type Closer interface {
	Close()
}

// Has is implemented by both read and write transactions.
type Has interface {
	Has(table string, key []byte) (bool, error)
}

// Getter wraps the read operations common to Tx and RwTx.
type Getter interface {
	Has

	// GetOne returns a copy of the value stored at key, or (nil, nil) if
	// absent. The returned slice is safe to retain past the transaction's
	// lifetime.
	GetOne(table string, key []byte) ([]byte, error)

	// ForEach iterates table in ascending key order starting at fromPrefix
	// (or the start of the table, if fromPrefix is empty), calling walker
	// for every entry until walker returns an error or the table is
	// exhausted.
	ForEach(table string, fromPrefix []byte, walker func(k, v []byte) error) error
}

// Putter wraps the single-entry write operation.
type Putter interface {
	Put(table string, k, v []byte) error
}

// Deleter wraps the single-entry delete operation.
type Deleter interface {
	Delete(table string, k []byte) error
}

// Tx is a read-only snapshot: repeatable-read, and isolated from any writer
// that commits after the snapshot was taken. A Tx (and any Cursor derived
// from it) must only be used from the goroutine that created it, and must
// be closed with Rollback (a no-op commit) once the caller is done reading.
type Tx interface {
	Getter

	// Cursor opens an ordered cursor over table. Close it when done.
	Cursor(table string) (Cursor, error)
	// CursorDupSort opens a cursor over a DupSort table.
	CursorDupSort(table string) (CursorDupSort, error)

	Rollback()
}

// RwTx is a single exclusive, serialisable write transaction. At most one
// RwTx may be open against a RwDB at a time.
type RwTx interface {
	Tx
	Putter
	Deleter

	RwCursor(table string) (RwCursor, error)
	RwCursorDupSort(table string) (RwCursorDupSort, error)

	// Commit makes every write in this transaction visible to future Tx/RwTx
	// snapshots, atomically. On error, the transaction is rolled back.
	Commit() error
}

// RoDB is the read side of the database handle. Safe for concurrent use
// from many goroutines; every call opens its own snapshot.
type RoDB interface {
	Closer

	// View runs f against a fresh read snapshot, always rolling it back
	// afterwards regardless of f's outcome.
	View(ctx context.Context, f func(tx Tx) error) error
	BeginRo(ctx context.Context) (Tx, error)
}

// RwDB is a RoDB plus the ability to run exclusive write transactions.
// Concurrent writers serialise: only one Update/BeginRw runs at a time.
type RwDB interface {
	RoDB

	// Update runs f inside a single write transaction, committing on a nil
	// return and rolling back otherwise.
	Update(ctx context.Context, f func(tx RwTx) error) error
	BeginRw(ctx context.Context) (RwTx, error)
}

// Cursor walks one table in key order.
type Cursor interface {
	First() (k, v []byte, err error)
	Seek(seek []byte) (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Last() (k, v []byte, err error)
	Close()
}

// RwCursor adds in-place mutation to Cursor.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Delete(k []byte) error
}

// CursorDupSort additionally iterates the sorted set of values for the
// cursor's current key.
type CursorDupSort interface {
	Cursor
	SeekBothExact(key, value []byte) (k, v []byte, err error)
	FirstDup() (v []byte, err error)
	NextDup() (k, v []byte, err error)
}

// RwCursorDupSort is the read-write counterpart used by the multimap table.
type RwCursorDupSort interface {
	CursorDupSort
	RwCursor
	DeleteExact(k1, k2 []byte) error
}
