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

	"github.com/syncmesh/docsync/kv"
)

// SortDirection orders a Query's output.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// Query describes a read over one namespace. The zero value matches every
// non-empty entry, ascending, unlimited (IncludeEmpty is false).
type Query struct {
	AuthorFilter  AuthorFilter
	KeyFilter     KeyFilter
	LatestPerKey  bool
	SortDirection SortDirection
	Offset        uint64
	Limit         *uint64
	IncludeEmpty  bool
}

// indexPlan names which physical index a Query compiles to, per the table
// in spec.md §4.4.
type indexPlan int

const (
	planPrimaryByAuthor indexPlan = iota
	planPrimaryByNamespace
	planSecondaryLatestPerKey
)

func (q Query) plan() indexPlan {
	if q.LatestPerKey {
		return planSecondaryLatestPerKey
	}
	if q.AuthorFilter.Kind == AuthorFilterExact {
		return planPrimaryByAuthor
	}
	return planPrimaryByNamespace
}

// Run executes q against ns and returns the matching entries.
func (s *Store) Run(ctx context.Context, ns NamespaceID, q Query) ([]SignedEntry, error) {
	var matched []SignedEntry
	var err error

	switch q.plan() {
	case planPrimaryByAuthor:
		matched, err = s.runPrimaryByAuthor(ctx, ns, q)
	case planPrimaryByNamespace:
		matched, err = s.runPrimaryByNamespace(ctx, ns, q)
	case planSecondaryLatestPerKey:
		matched, err = s.runLatestPerKey(ctx, ns, q)
	}
	if err != nil {
		return nil, err
	}

	if q.SortDirection == Desc {
		reverseEntries(matched)
	}
	return paginate(matched, q.Offset, q.Limit), nil
}

func (s *Store) runPrimaryByAuthor(ctx context.Context, ns NamespaceID, q Query) ([]SignedEntry, error) {
	b := authorBound(ns, q.AuthorFilter.Author, q.KeyFilter)
	return s.scanRecords(ctx, b, q.IncludeEmpty, nil)
}

func (s *Store) runPrimaryByNamespace(ctx context.Context, ns NamespaceID, q Query) ([]SignedEntry, error) {
	b := namespaceBound(ns)
	return s.scanRecords(ctx, b, q.IncludeEmpty, func(e SignedEntry) bool { return q.KeyFilter.matches(e.ID.Key) })
}

// scanRecords forward-scans b over records-1, decoding each row, dropping
// empty entries unless includeEmpty, and applying an optional extra filter.
func (s *Store) scanRecords(ctx context.Context, b bound, includeEmpty bool, extra func(SignedEntry) bool) ([]SignedEntry, error) {
	var out []SignedEntry
	err := s.view(ctx, func(tx kv.Tx) error {
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
			id, derr := decodeRecordsKey(k)
			if derr != nil {
				return derr
			}
			e, derr := decodeRecordsValue(id, v)
			if derr != nil {
				return derr
			}
			if !includeEmpty && e.Value.IsEmpty() {
				continue
			}
			if extra != nil && !extra(e) {
				continue
			}
			out = append(out, e)
		}
		return err
	})
	return out, err
}

// runLatestPerKey streams records-by-key-1 (ordered by namespace, key,
// author) and, per distinct key, keeps only the entry with the largest
// timestamp, tie-broken by author id descending — the latest-per-key
// selector of spec.md §4.4.
func (s *Store) runLatestPerKey(ctx context.Context, ns NamespaceID, q Query) ([]SignedEntry, error) {
	b := byKeyBound(ns, q.KeyFilter)

	var out []SignedEntry
	var haveWinner bool
	var winner SignedEntry
	var winnerKey []byte

	flush := func() {
		if haveWinner {
			out = append(out, winner)
		}
	}

	err := s.view(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.RecordsByKey)
		if err != nil {
			return err
		}
		defer c.Close()
		k, _, err := c.Seek(b.Start)
		for ; k != nil; k, _, err = c.Next() {
			if err != nil {
				return err
			}
			if b.End != nil && bytesCompare(k, b.End) >= 0 {
				break
			}
			id, derr := decodeByKeyKey(k)
			if derr != nil {
				return derr
			}
			if q.KeyFilter.Kind == KeyFilterExact && !bytesEqual(id.Key, q.KeyFilter.Bytes) {
				// byKeyBound's Exact range is a prefix scan over ns||key
				// (author follows key in this table's physical order), so it
				// over-matches keys that merely have kf.Bytes as a prefix.
				continue
			}
			rv, derr := tx.GetOne(kv.Records, encodeRecordsKey(id))
			if derr != nil {
				return derr
			}
			if rv == nil {
				// records-by-key-1 row survived a Remove that only touched
				// records-1's mirror invariant is violated; skip rather than
				// fail the whole query.
				continue
			}
			e, derr := decodeRecordsValue(id, rv)
			if derr != nil {
				return derr
			}
			if !q.IncludeEmpty && e.Value.IsEmpty() {
				continue
			}

			if winnerKey == nil || !bytesEqual(winnerKey, id.Key) {
				flush()
				haveWinner, winner, winnerKey = true, e, id.Key
				continue
			}
			if isBetterLatest(e, winner) {
				winner = e
			}
		}
		if err != nil {
			return err
		}
		flush()
		return nil
	})
	return out, err
}

func isBetterLatest(candidate, current SignedEntry) bool {
	if candidate.Value.Timestamp != current.Value.Timestamp {
		return candidate.Value.Timestamp > current.Value.Timestamp
	}
	return candidate.ID.Author.Compare(current.ID.Author) > 0
}

func bytesEqual(a, b []byte) bool { return bytesCompare(a, b) == 0 }

func reverseEntries(es []SignedEntry) {
	for i, j := 0, len(es)-1; i < j; i, j = i+1, j-1 {
		es[i], es[j] = es[j], es[i]
	}
}

func paginate(es []SignedEntry, offset uint64, limit *uint64) []SignedEntry {
	if offset >= uint64(len(es)) {
		return nil
	}
	es = es[offset:]
	if limit != nil && *limit < uint64(len(es)) {
		es = es[:*limit]
	}
	return es
}
