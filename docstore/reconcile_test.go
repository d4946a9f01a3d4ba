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
	"testing"

	"github.com/stretchr/testify/require"
)

func seedEntries(t *testing.T, s *Store, ns NamespaceID, author AuthorID, keys []string) []SignedEntry {
	t.Helper()
	var out []SignedEntry
	for i, k := range keys {
		e := mkEntry(ns, author, []byte(k), uint64(i+1))
		require.NoError(t, s.Put(context.Background(), e))
		out = append(out, e)
	}
	return out
}

func TestReconcilerGetFirstEmptyNamespace(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	ns[0] = 1
	r := NewReconciler(s, ns)

	first, err := r.GetFirst(context.Background())
	require.NoError(t, err)
	require.Equal(t, r.defaultRecordID(), first)

	empty, err := r.IsEmpty(context.Background())
	require.NoError(t, err)
	require.True(t, empty)
}

func TestReconcilerAllAndLen(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	r := NewReconciler(s, ns)

	seedEntries(t, s, ns, author, []string{"a", "b", "c"})

	all, err := r.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)

	n, err := r.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	empty, err := r.IsEmpty(context.Background())
	require.NoError(t, err)
	require.False(t, empty)
}

func TestReconcilerGetRangeSimple(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	r := NewReconciler(s, ns)

	entries := seedEntries(t, s, ns, author, []string{"a", "b", "c", "d"})

	got, err := r.GetRange(context.Background(), Range{X: entries[1].ID, Y: entries[3].ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, entries[1].ID.Key, got[0].ID.Key)
	require.Equal(t, entries[2].ID.Key, got[1].ID.Key)
}

func TestReconcilerGetRangeWholeNamespaceWhenXEqualsY(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	r := NewReconciler(s, ns)

	entries := seedEntries(t, s, ns, author, []string{"a", "b", "c"})

	got, err := r.GetRange(context.Background(), Range{X: entries[0].ID, Y: entries[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestReconcilerGetRangeWraparound(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	r := NewReconciler(s, ns)

	entries := seedEntries(t, s, ns, author, []string{"a", "b", "c", "d", "e"})

	// X = entries[3] ("d"), Y = entries[1] ("b"): X > Y, so the range wraps:
	// [MIN,Y) ++ [X,MAX] = {"a"} ++ {"d","e"}.
	got, err := r.GetRange(context.Background(), Range{X: entries[3].ID, Y: entries[1].ID})
	require.NoError(t, err)

	var keys []string
	for _, e := range got {
		keys = append(keys, string(e.ID.Key))
	}
	require.Equal(t, []string{"a", "d", "e"}, keys)
}

func TestReconcilerGetFingerprintOrderIndependent(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	r := NewReconciler(s, ns)

	entries := seedEntries(t, s, ns, author, []string{"a", "b", "c"})

	full, err := r.GetFingerprint(context.Background(), Range{X: entries[0].ID, Y: entries[0].ID})
	require.NoError(t, err)

	var manual Fingerprint
	for _, e := range entries {
		manual.XOR(e.AsFingerprint())
	}
	require.Equal(t, manual, full)
}

func TestReconcilerPrefixesOfAndPrefixedBy(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	r := NewReconciler(s, ns)

	seedEntries(t, s, ns, author, []string{"a", "ab", "abc", "abd"})

	pre, err := r.PrefixesOf(context.Background(), RecordID{Namespace: ns, Author: author, Key: []byte("abc")})
	require.NoError(t, err)
	var preKeys []string
	for _, e := range pre {
		preKeys = append(preKeys, string(e.ID.Key))
	}
	require.Equal(t, []string{"a", "ab"}, preKeys)

	by, err := r.PrefixedBy(context.Background(), RecordID{Namespace: ns, Author: author, Key: []byte("ab")})
	require.NoError(t, err)
	var byKeys []string
	for _, e := range by {
		byKeys = append(byKeys, string(e.ID.Key))
	}
	require.ElementsMatch(t, []string{"ab", "abc", "abd"}, byKeys)
}

func TestReconcilerRemovePrefixFiltered(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	r := NewReconciler(s, ns)

	seedEntries(t, s, ns, author, []string{"x1", "x2", "y1"})

	n, err := r.RemovePrefixFiltered(context.Background(), RecordID{Namespace: ns, Author: author, Key: []byte("x")}, func(RemoveFilteredRecord) bool {
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	all, err := r.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "y1", string(all[0].ID.Key))
}
