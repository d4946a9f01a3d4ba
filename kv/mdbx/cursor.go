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
)

// cursor adapts *mdbx.Cursor to kv.Cursor/RwCursor/CursorDupSort/RwCursorDupSort.
// One concrete type backs all four interfaces: which methods a caller uses
// depends entirely on which table it opened the cursor against.
type cursor struct {
	c *mdbx.Cursor
}

func (cu *cursor) get(op mdbx.CursorOp) (k, v []byte, err error) {
	k, v, err = cu.c.Get(nil, nil, op)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return cloneKV(k, v)
}

func (cu *cursor) First() ([]byte, []byte, error) { return cu.get(mdbx.First) }
func (cu *cursor) Next() ([]byte, []byte, error)   { return cu.get(mdbx.Next) }
func (cu *cursor) Prev() ([]byte, []byte, error)   { return cu.get(mdbx.Prev) }
func (cu *cursor) Last() ([]byte, []byte, error)   { return cu.get(mdbx.Last) }

func (cu *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v, err := cu.c.Get(seek, nil, mdbx.SetRange)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return cloneKV(k, v)
}

func (cu *cursor) Close() { cu.c.Close() }

func (cu *cursor) Put(k, v []byte) error {
	return cu.c.Put(k, v, 0)
}

func (cu *cursor) Delete(k []byte) error {
	if _, _, err := cu.c.Get(k, nil, mdbx.Set); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	}
	return cu.c.Del(0)
}

func (cu *cursor) SeekBothExact(key, value []byte) ([]byte, []byte, error) {
	k, v, err := cu.c.Get(key, value, mdbx.GetBoth)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return cloneKV(k, v)
}

func (cu *cursor) FirstDup() ([]byte, error) {
	_, v, err := cu.get(mdbx.FirstDup)
	return v, err
}

func (cu *cursor) NextDup() ([]byte, []byte, error) { return cu.get(mdbx.NextDup) }

func (cu *cursor) DeleteExact(k1, k2 []byte) error {
	if _, _, err := cu.c.Get(k1, k2, mdbx.GetBoth); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	}
	return cu.c.Del(0)
}

func cloneKV(k, v []byte) ([]byte, []byte, error) {
	if k == nil {
		return nil, nil, nil
	}
	ck := make([]byte, len(k))
	copy(ck, k)
	cv := make([]byte, len(v))
	copy(cv, v)
	return ck, cv, nil
}
