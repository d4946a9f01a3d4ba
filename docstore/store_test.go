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

	"github.com/syncmesh/docsync/kv"
	"github.com/syncmesh/docsync/kv/mdbx"
)

const testMapSize = 64 << 20 // 64MiB, plenty for these small tests

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), testMapSize)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func mkEntry(ns NamespaceID, author AuthorID, key []byte, ts uint64) SignedEntry {
	return SignedEntry{
		ID:    RecordID{Namespace: ns, Author: author, Key: key},
		Value: RecordValue{Timestamp: ts, ContentHash: [32]byte{byte(ts)}, ContentLen: 1},
	}
}

func TestStoreImportAndListNamespaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ns NamespaceID
	ns[0] = 1
	require.NoError(t, s.ImportNamespace(ctx, ns, [32]byte{9}))

	nss, err := s.ListNamespaces(ctx)
	require.NoError(t, err)
	require.Len(t, nss, 1)
	require.Equal(t, ns, nss[0])
}

func TestStorePutGetOneRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	e := mkEntry(ns, author, []byte("k1"), 100)

	require.NoError(t, s.Put(ctx, e))

	got, err := s.GetOne(ctx, e.ID, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, e.Value.Timestamp, got.Value.Timestamp)
	require.Equal(t, e.Value.ContentHash, got.Value.ContentHash)

	prev, err := s.Remove(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Equal(t, e.Value.Timestamp, prev.Value.Timestamp)

	got, err = s.GetOne(ctx, e.ID, true)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreRejectsInvalidSignature(t *testing.T) {
	env, err := mdbx.Open(t.TempDir(), kv.ChaindataTablesCfg, testMapSize)
	require.NoError(t, err)
	t.Cleanup(env.Close)

	s, err := NewWithDB(env, WithSignatureVerifier(rejectAllVerifier{}))
	require.NoError(t, err)

	var ns NamespaceID
	var author AuthorID
	e := mkEntry(ns, author, []byte("k"), 1)
	err = s.Put(context.Background(), e)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify([32]byte, []byte, [64]byte) bool { return false }

func TestStoreOpenReplicaExclusivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ns NamespaceID
	ns[0] = 1
	require.NoError(t, s.ImportNamespace(ctx, ns, [32]byte{}))

	h, err := s.OpenReplica(ctx, ns)
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = s.OpenReplica(ctx, ns)
	require.ErrorIs(t, err, ErrNamespaceAlreadyOpen)

	require.ErrorIs(t, s.RemoveReplica(ctx, ns), ErrNamespaceInUse)

	s.CloseReplica(h)
	_, err = s.OpenReplica(ctx, ns)
	require.NoError(t, err)
}

func TestStoreOpenReplicaUnknownNamespace(t *testing.T) {
	s := openTestStore(t)
	var ns NamespaceID
	ns[0] = 0xAB
	_, err := s.OpenReplica(context.Background(), ns)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRemoveReplicaDrainsEverything(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2
	require.NoError(t, s.ImportNamespace(ctx, ns, [32]byte{}))
	require.NoError(t, s.Put(ctx, mkEntry(ns, author, []byte("k1"), 10)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, author, []byte("k2"), 20)))

	require.NoError(t, s.RemoveReplica(ctx, ns))

	got, err := s.GetOne(ctx, RecordID{Namespace: ns, Author: author, Key: []byte("k1")}, true)
	require.NoError(t, err)
	require.Nil(t, got)

	latest, err := s.GetLatestForEachAuthor(ctx, ns)
	require.NoError(t, err)
	require.Empty(t, latest)

	nss, err := s.ListNamespaces(ctx)
	require.NoError(t, err)
	require.Empty(t, nss)
}

func TestStoreGetLatestForEachAuthorTracksMostRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ns NamespaceID
	var author AuthorID
	ns[0], author[0] = 1, 2

	require.NoError(t, s.Put(ctx, mkEntry(ns, author, []byte("k1"), 10)))
	require.NoError(t, s.Put(ctx, mkEntry(ns, author, []byte("k2"), 20)))

	latest, err := s.GetLatestForEachAuthor(ctx, ns)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, uint64(20), latest[0].Timestamp)
	require.Equal(t, []byte("k2"), latest[0].Key)
}

