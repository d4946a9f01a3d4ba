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

// Package mdbx implements kv.RwDB over an embedded MDBX environment. It is
// the only storage engine docstore ships with; tests may swap in a
// different kv.RwDB (e.g. an in-memory fake) without touching docstore.
package mdbx

import (
	"context"
	"fmt"
	"os"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"

	"github.com/syncmesh/docsync/kv"
)

// DefaultMapSize is used when Open is called with mapSize==0. Real callers
// should size this from config.Tunables.MapSizeBudget instead.
const DefaultMapSize = 1 << 30 // 1GiB

// Env wraps an *mdbx.Env and implements kv.RwDB.
type Env struct {
	env  *mdbx.Env
	dbis map[string]mdbx.DBI
	cfg  kv.TableCfg
	path string
}

// Open creates (if absent) and opens an MDBX environment at path, with
// every table in cfg pre-created inside one startup transaction. mapSize
// bounds the maximum size the database file may grow to; it cannot be
// changed without reopening.
func Open(path string, cfg kv.TableCfg, mapSize int64) (*Env, error) {
	if mapSize <= 0 {
		mapSize = DefaultMapSize
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrap(err, "mdbx: create data dir")
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "mdbx: new env")
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(cfg)+1)); err != nil {
		return nil, errors.Wrap(err, "mdbx: set max tables")
	}
	if err := env.SetGeometry(-1, -1, int(mapSize), -1, -1, -1); err != nil {
		return nil, errors.Wrap(err, "mdbx: set geometry")
	}
	if err := env.Open(path, mdbx.NoSubdir|mdbx.Coalesce|mdbx.LifoReclaim, 0o644); err != nil {
		return nil, errors.Wrapf(err, "mdbx: open %s", path)
	}

	e := &Env{env: env, dbis: make(map[string]mdbx.DBI, len(cfg)), cfg: cfg, path: path}
	if err := e.createTables(cfg); err != nil {
		env.Close()
		return nil, err
	}
	return e, nil
}

func (e *Env) createTables(cfg kv.TableCfg) error {
	return e.env.Update(func(txn *mdbx.Txn) error {
		for name, item := range cfg {
			flags := uint(mdbx.Create)
			if item.Flags&kv.DupSort != 0 {
				flags |= mdbx.DupSort
			}
			dbi, err := txn.OpenDBISimple(name, flags)
			if err != nil {
				return fmt.Errorf("mdbx: create table %s: %w", name, err)
			}
			e.dbis[name] = dbi
		}
		return nil
	})
}

// Close releases the environment. Safe to call once.
func (e *Env) Close() { e.env.Close() }

func (e *Env) dbi(table string) (mdbx.DBI, error) {
	d, ok := e.dbis[table]
	if !ok {
		return 0, fmt.Errorf("%w: %s", kv.ErrBucketNotFound, table)
	}
	return d, nil
}

// BeginRo opens a read-only snapshot. ctx is only consulted for early
// cancellation before the underlying mdbx transaction begins; MDBX itself
// has no mid-transaction cancellation (see docstore design notes §5).
func (e *Env) BeginRo(ctx context.Context) (kv.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn, err := e.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, errors.Wrap(err, "mdbx: begin ro txn")
	}
	return &tx{env: e, txn: txn}, nil
}

func (e *Env) View(ctx context.Context, f func(kv.Tx) error) error {
	t, err := e.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer t.Rollback()
	return f(t)
}

// BeginRw opens the single exclusive write transaction. MDBX itself
// serialises writers; this additionally matches kv.RwDB's documented
// "one write transaction at a time" contract.
func (e *Env) BeginRw(ctx context.Context) (kv.RwTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, errors.Wrap(err, "mdbx: begin rw txn")
	}
	return &tx{env: e, txn: txn, writable: true}, nil
}

func (e *Env) Update(ctx context.Context, f func(kv.RwTx) error) error {
	t, err := e.BeginRw(ctx)
	if err != nil {
		return err
	}
	if err := f(t); err != nil {
		t.Rollback()
		return err
	}
	return t.Commit()
}
