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

package mdbx

import (
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"

	"github.com/syncmesh/docsync/kv"
)

type tx struct {
	env      *Env
	txn      *mdbx.Txn
	writable bool
	closed   bool
}

func (t *tx) Has(table string, key []byte) (bool, error) {
	v, err := t.GetOne(table, key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (t *tx) GetOne(table string, key []byte) ([]byte, error) {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(dbi, key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "mdbx: get %s", table)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *tx) ForEach(table string, fromPrefix []byte, walker func(k, v []byte) error) error {
	c, err := t.Cursor(table)
	if err != nil {
		return err
	}
	defer c.Close()

	var k, v []byte
	if len(fromPrefix) == 0 {
		k, v, err = c.First()
	} else {
		k, v, err = c.Seek(fromPrefix)
	}
	for ; k != nil; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		if err := walker(k, v); err != nil {
			return err
		}
	}
	return err
}

func (t *tx) Put(table string, k, v []byte) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Put(dbi, k, v, 0); err != nil {
		return errors.Wrapf(err, "mdbx: put %s", table)
	}
	return nil
}

func (t *tx) Delete(table string, k []byte) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Del(dbi, k, nil); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return errors.Wrapf(err, "mdbx: delete %s", table)
	}
	return nil
}

func (t *tx) Cursor(table string) (kv.Cursor, error) {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, errors.Wrapf(err, "mdbx: open cursor %s", table)
	}
	return &cursor{c: c}, nil
}

func (t *tx) CursorDupSort(table string) (kv.CursorDupSort, error) {
	c, err := t.Cursor(table)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c.(*cursor).c}, nil
}

func (t *tx) RwCursor(table string) (kv.RwCursor, error) {
	c, err := t.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*cursor), nil
}

func (t *tx) RwCursorDupSort(table string) (kv.RwCursorDupSort, error) {
	c, err := t.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*cursor), nil
}

func (t *tx) Commit() error {
	if t.closed {
		return kv.ErrTxClosed
	}
	t.closed = true
	if _, err := t.txn.Commit(); err != nil {
		return errors.Wrap(err, "mdbx: commit")
	}
	return nil
}

func (t *tx) Rollback() {
	if t.closed {
		return
	}
	t.closed = true
	t.txn.Abort()
}
