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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNextPrefixIncrementsLastNonFFByte(t *testing.T) {
	out, ok := nextPrefix([]byte{0x01, 0x02})
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x03}, out)
}

func TestNextPrefixCarries(t *testing.T) {
	out, ok := nextPrefix([]byte{0x01, 0xFF})
	require.True(t, ok)
	require.Equal(t, []byte{0x02}, out)
}

func TestNextPrefixAllFFIsUnbounded(t *testing.T) {
	_, ok := nextPrefix([]byte{0xFF, 0xFF})
	require.False(t, ok)
}

func TestNextPrefixIsStrictSuccessorOfEveryExtension(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(rt, "prefix")
		suffix := rapid.SliceOfN(rapid.Byte(), 0, 8).Draw(rt, "suffix")
		extended := append(append([]byte(nil), p...), suffix...)

		next, ok := nextPrefix(p)
		if !ok {
			// every byte is 0xFF: no string can be both "extends p" and
			// "less than next" because there is no next.
			allFF := true
			for _, b := range p {
				if b != 0xFF {
					allFF = false
				}
			}
			require.True(rt, allFF)
			return
		}
		require.True(rt, bytes.Compare(extended, next) < 0, "every extension of p must sort before nextPrefix(p)")
		require.True(rt, bytes.Compare(p, next) < 0)
	})
}

func TestRecordsKeyRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var id RecordID
		nsB := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "ns")
		authorB := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "author")
		copy(id.Namespace[:], nsB)
		copy(id.Author[:], authorB)
		id.Key = rapid.SliceOfN(rapid.Byte(), 0, 16).Draw(rt, "key")

		got, err := decodeRecordsKey(encodeRecordsKey(id))
		require.NoError(rt, err)
		require.Equal(rt, 0, id.Compare(got))
	})
}

func TestByKeyKeyRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var id RecordID
		nsB := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "ns")
		authorB := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "author")
		copy(id.Namespace[:], nsB)
		copy(id.Author[:], authorB)
		id.Key = rapid.SliceOfN(rapid.Byte(), 0, 16).Draw(rt, "key")

		got, err := decodeByKeyKey(encodeByKeyKey(id))
		require.NoError(rt, err)
		require.Equal(rt, 0, id.Compare(got))
	})
}

func TestRecordsValueRoundTrip(t *testing.T) {
	var id RecordID
	e := SignedEntry{ID: id, Value: RecordValue{Timestamp: 123456789, ContentHash: [32]byte{1, 2, 3}, ContentLen: 42}}
	e.NamespaceSig[0] = 0xAB
	e.AuthorSig[0] = 0xCD

	got, err := decodeRecordsValue(id, encodeRecordsValue(e))
	require.NoError(t, err)
	require.Equal(t, e.Value, got.Value)
	require.Equal(t, e.NamespaceSig, got.NamespaceSig)
	require.Equal(t, e.AuthorSig, got.AuthorSig)
}

func TestKeyFilterMatches(t *testing.T) {
	require.True(t, KeyFilter{Kind: KeyFilterAny}.matches([]byte("anything")))
	require.True(t, KeyFilter{Kind: KeyFilterExact, Bytes: []byte("abc")}.matches([]byte("abc")))
	require.False(t, KeyFilter{Kind: KeyFilterExact, Bytes: []byte("abc")}.matches([]byte("abcd")))
	require.True(t, KeyFilter{Kind: KeyFilterPrefix, Bytes: []byte("ab")}.matches([]byte("abcd")))
	require.False(t, KeyFilter{Kind: KeyFilterPrefix, Bytes: []byte("ab")}.matches([]byte("ac")))
}

func TestAuthorBoundExactNarrowsToSingletonRange(t *testing.T) {
	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	b := authorBound(ns, author, KeyFilter{Kind: KeyFilterExact, Bytes: []byte("k")})

	id := RecordID{Namespace: ns, Author: author, Key: []byte("k")}
	key := encodeRecordsKey(id)
	require.True(t, bytesCompare(key, b.Start) >= 0)
	require.True(t, bytesCompare(key, b.End) < 0)

	other := RecordID{Namespace: ns, Author: author, Key: []byte("kk")}
	otherKey := encodeRecordsKey(other)
	require.False(t, bytesCompare(otherKey, b.Start) >= 0 && bytesCompare(otherKey, b.End) < 0)
}
