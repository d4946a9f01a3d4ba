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

package docstore

import (
	"context"
	"errors"

	"github.com/syncmesh/docsync/kv"
)

// Range is the [X, Y) interval a set-reconciliation protocol asks the store
// about. X == Y means "the whole namespace"; X > Y means the range wraps
// around the namespace's keyspace (spec.md §4.5).
type Range struct {
	X, Y RecordID
}

// Reconciler exposes the operations an external range-based
// set-reconciliation protocol needs over a single open namespace. It holds
// no state of its own beyond the namespace id; every call opens its own
// read (or write) snapshot against the Store.
type Reconciler struct {
	store *Store
	ns    NamespaceID
}

// NewReconciler returns a Reconciler scoped to ns. The caller is
// responsible for having an open Handle on ns for as long as it is used.
func NewReconciler(s *Store, ns NamespaceID) *Reconciler {
	return &Reconciler{store: s, ns: ns}
}

// defaultRecordID is the canonical "empty namespace" identifier GetFirst
// returns when the namespace holds no rows: a RecordID whose author and key
// are the zero value, which compares less than or equal to every real
// record under this namespace.
func (r *Reconciler) defaultRecordID() RecordID {
	return RecordID{Namespace: r.ns}
}

// errStopIteration lets forEachInBound/forEachInRange callers end a scan
// early without that being reported to their own caller as a failure.
var errStopIteration = errors.New("docstore: stop iteration")

// forEachInBound walks b over records-1 in ascending order, decoding each
// row into a SignedEntry before calling fn.
func (r *Reconciler) forEachInBound(ctx context.Context, b bound, fn func(SignedEntry) error) error {
	err := r.store.view(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.Records)
		if err != nil {
			return err
		}
		defer c.Close()
		k, v, err := c.Seek(b.Start)
		for ; k != nil; k, v, err = c.Next() {
			if err != nil {
				return err
			}
			if b.End != nil && bytesCompare(k, b.End) >= 0 {
				break
			}
			id, err := decodeRecordsKey(k)
			if err != nil {
				return err
			}
			e, err := decodeRecordsValue(id, v)
			if err != nil {
				return err
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return err
	})
	if errors.Is(err, errStopIteration) {
		return errStopIteration
	}
	return err
}

// forEachInRange implements the wraparound semantics of spec.md §4.5: X==Y
// covers the whole namespace; X>Y yields [MIN(ns),Y) then [X,MAX(ns)].
func (r *Reconciler) forEachInRange(ctx context.Context, rng Range, fn func(SignedEntry) error) error {
	if rng.X.Compare(rng.Y) == 0 {
		return r.forEachInBound(ctx, namespaceBound(r.ns), fn)
	}
	if rng.X.Compare(rng.Y) < 0 {
		nsB := namespaceBound(r.ns)
		b := bound{Start: encodeRecordsKey(rng.X), End: encodeRecordsKey(rng.Y)}
		if nsB.End != nil && (b.End == nil || bytesCompare(b.End, nsB.End) > 0) {
			b.End = nsB.End
		}
		return r.forEachInBound(ctx, b, fn)
	}
	// rng.X > rng.Y: wraps. [MIN(ns), Y) first, then [X, MAX(ns)].
	if err := r.forEachInBound(ctx, fromStartBound(r.ns, rng.Y), fn); err != nil {
		return err
	}
	return r.forEachInBound(ctx, toEndBound(r.ns, rng.X), fn)
}

// GetFirst returns the smallest RecordID stored under the namespace, or the
// canonical default if the namespace is empty.
func (r *Reconciler) GetFirst(ctx context.Context) (RecordID, error) {
	var out RecordID
	found := false
	err := r.store.view(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.Records)
		if err != nil {
			return err
		}
		defer c.Close()
		k, _, err := c.Seek(namespaceBound(r.ns).Start)
		if err != nil {
			return err
		}
		if k == nil {
			return nil
		}
		id, err := decodeRecordsKey(k)
		if err != nil {
			return err
		}
		if id.Namespace != r.ns {
			return nil
		}
		out, found = id, true
		return nil
	})
	if err != nil {
		return RecordID{}, err
	}
	if !found {
		return r.defaultRecordID(), nil
	}
	return out, nil
}

// Get performs a point lookup, always including empty entries (the
// reconciliation protocol must see tombstone-style empty entries too).
func (r *Reconciler) Get(ctx context.Context, id RecordID) (*SignedEntry, error) {
	return r.store.GetOne(ctx, id, true)
}

// Len counts every row under the namespace. It is a full table scan;
// callers that only need emptiness should use IsEmpty instead.
func (r *Reconciler) Len(ctx context.Context) (int, error) {
	n := 0
	err := r.forEachInBound(ctx, namespaceBound(r.ns), func(SignedEntry) error { n++; return nil })
	return n, err
}

// IsEmpty reports whether the namespace holds zero rows.
func (r *Reconciler) IsEmpty(ctx context.Context) (bool, error) {
	empty := true
	err := r.forEachInBound(ctx, namespaceBound(r.ns), func(SignedEntry) error {
		empty = false
		return errStopIteration
	})
	if errors.Is(err, errStopIteration) {
		err = nil
	}
	return empty, err
}

// GetFingerprint XOR-accumulates the fingerprint of every entry in rng.
func (r *Reconciler) GetFingerprint(ctx context.Context, rng Range) (Fingerprint, error) {
	var fp Fingerprint
	err := r.forEachInRange(ctx, rng, func(e SignedEntry) error {
		fp.XOR(e.AsFingerprint())
		return nil
	})
	return fp, err
}

// GetRange returns every entry in rng, in ascending key order. When
// rng.X > rng.Y it returns [MIN(ns), Y) concatenated with [X, MAX(ns)], in
// that order, per spec.md §4.5.
func (r *Reconciler) GetRange(ctx context.Context, rng Range) ([]SignedEntry, error) {
	var out []SignedEntry
	err := r.forEachInRange(ctx, rng, func(e SignedEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// All forward-iterates every entry under the namespace.
func (r *Reconciler) All(ctx context.Context) ([]SignedEntry, error) {
	var out []SignedEntry
	err := r.forEachInBound(ctx, namespaceBound(r.ns), func(e SignedEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// PrefixesOf returns, in ascending length order, every non-empty, strict
// byte-prefix of id.Key (never id.Key itself) that exists as a stored key
// for (namespace, author), skipping misses. Ancestor lookups exclude
// tombstoned entries (include_empty=false) — a deleted ancestor document
// is not a live prefix relationship, unlike Get's point lookup, which
// must surface tombstones for reconciliation equality checks.
func (r *Reconciler) PrefixesOf(ctx context.Context, id RecordID) ([]SignedEntry, error) {
	var out []SignedEntry
	for n := 1; n < len(id.Key); n++ {
		candidate := RecordID{Namespace: id.Namespace, Author: id.Author, Key: id.Key[:n]}
		e, err := r.store.GetOne(ctx, candidate, false)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

// PrefixedBy returns every entry for (namespace, author) whose key starts
// with id.Key.
func (r *Reconciler) PrefixedBy(ctx context.Context, id RecordID) ([]SignedEntry, error) {
	b := authorPrefixBound(id.Namespace, id.Author, id.Key)
	var out []SignedEntry
	err := r.forEachInBound(ctx, b, func(e SignedEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// Put delegates to Store.Put.
func (r *Reconciler) Put(ctx context.Context, e SignedEntry) error { return r.store.Put(ctx, e) }

// Remove delegates to Store.Remove.
func (r *Reconciler) Remove(ctx context.Context, id RecordID) (*SignedEntry, error) {
	return r.store.Remove(ctx, id)
}

// RemoveFilteredRecord is the signature-stripped view a
// RemovePrefixFiltered predicate receives: everything an entry has except
// its signatures, which a pure predicate has no business inspecting.
type RemoveFilteredRecord struct {
	ID    RecordID
	Value RecordValue
}

// RemovePrefixFiltered drains every row whose key has prefix id.Key under
// (namespace, author) and for which predicate returns true, keeping
// records-1 and records-by-key-1 consistent, and returns the count removed.
func (r *Reconciler) RemovePrefixFiltered(ctx context.Context, id RecordID, predicate func(RemoveFilteredRecord) bool) (int, error) {
	b := authorPrefixBound(id.Namespace, id.Author, id.Key)
	var n int
	err := r.store.update(ctx, func(tx kv.RwTx) error {
		var removed []RecordID
		count, err := drainBound(tx, kv.Records, b, func(k, v []byte) bool {
			rid, derr := decodeRecordsKey(k)
			if derr != nil {
				return false
			}
			e, derr := decodeRecordsValue(rid, v)
			if derr != nil {
				return false
			}
			if predicate(RemoveFilteredRecord{ID: rid, Value: e.Value}) {
				removed = append(removed, rid)
				return true
			}
			return false
		})
		if err != nil {
			return err
		}
		n = count
		for _, rid := range removed {
			if err := tx.Delete(kv.RecordsByKey, encodeByKeyKey(rid)); err != nil {
				return err
			}
		}
		return nil
	})
	return n, err
}
