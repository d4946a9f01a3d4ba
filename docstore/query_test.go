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

func TestQueryPrimaryByAuthor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var ns NamespaceID
	var a1, a2 AuthorID
	ns[0], a1[0], a2[0] = 1, 2, 3

	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("k1"), 1)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, a2, []byte("k2"), 2)))

	out, err := s.Run(ctx, ns, Query{AuthorFilter: AuthorFilter{Kind: AuthorFilterExact, Author: a1}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, a1, out[0].ID.Author)
}

func TestQueryPrimaryByNamespaceWithKeyFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var ns NamespaceID
	var a1 AuthorID
	ns[0], a1[0] = 1, 2

	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("aa"), 1)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("ab"), 2)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("bb"), 3)))

	out, err := s.Run(ctx, ns, Query{KeyFilter: KeyFilter{Kind: KeyFilterPrefix, Bytes: []byte("a")}})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestQueryExcludesEmptyByDefault(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var ns NamespaceID
	var a1 AuthorID
	ns[0], a1[0] = 1, 2

	empty := mkEntry(ns, a1, []byte("k1"), 1)
	empty.Value.ContentHash = EmptyContentHash
	empty.Value.ContentLen = 0
	require.NoError(t, s.Put(ctx, empty))

	out, err := s.Run(ctx, ns, Query{})
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = s.Run(ctx, ns, Query{IncludeEmpty: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestQuerySortAndPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var ns NamespaceID
	var a1 AuthorID
	ns[0], a1[0] = 1, 2

	for i, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte(k), uint64(i+1))))
	}

	limit := uint64(2)
	out, err := s.Run(ctx, ns, Query{SortDirection: Desc, Offset: 1, Limit: &limit})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "c", string(out[0].ID.Key))
	require.Equal(t, "b", string(out[1].ID.Key))
}

func TestQueryLatestPerKeyPicksNewestAndTieBreaksByAuthor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var ns NamespaceID
	var a1, a2 AuthorID
	ns[0], a1[0], a2[0] = 1, 2, 3

	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("k1"), 5)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, a2, []byte("k1"), 5))) // same ts, higher author id wins
	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("k2"), 1)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, a2, []byte("k2"), 9)))

	out, err := s.Run(ctx, ns, Query{LatestPerKey: true})
	require.NoError(t, err)
	require.Len(t, out, 2)

	byKey := map[string]SignedEntry{}
	for _, e := range out {
		byKey[string(e.ID.Key)] = e
	}
	require.Equal(t, a2, byKey["k1"].ID.Author)
	require.Equal(t, uint64(9), byKey["k2"].Value.Timestamp)
}

func TestQueryLatestPerKeyWithExactKeyFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var ns NamespaceID
	var a1, a2 AuthorID
	ns[0], a1[0], a2[0] = 1, 2, 3

	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("k1"), 5)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, a2, []byte("k1"), 9)))
	// k1x shares k1 as a byte-prefix; must not leak into the exact match.
	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("k1x"), 9)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, a1, []byte("k2"), 1)))

	out, err := s.Run(ctx, ns, Query{
		LatestPerKey: true,
		KeyFilter:    KeyFilter{Kind: KeyFilterExact, Bytes: []byte("k1")},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "k1", string(out[0].ID.Key))
	require.Equal(t, a2, out[0].ID.Author)
}
