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
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/syncmesh/docsync/kv"
)

// PeerUsage records that a peer was helpful for a namespace at a point in
// time (spec.md §3, §4.6).
type PeerUsage struct {
	Namespace  NamespaceID
	Peer       PeerID
	LastUsedNs uint64
}

// peerLRUMirror caches each namespace's sync-peers ordering in memory so
// GetSyncPeers need not touch the database once warm. sync-peers-1 stays
// the source of truth: a miss here always falls back to the table, and any
// write through RegisterUsefulPeer invalidates the namespace's entry.
type peerLRUMirror struct {
	mu   sync.Mutex
	byNS *lru.LRU[NamespaceID, []PeerUsage]
}

func newPeerLRUMirror() *peerLRUMirror {
	// Capacity bounds distinct namespaces cached, not peers per namespace;
	// a modest size keeps memory flat regardless of how many namespaces a
	// process touches.
	l, _ := lru.NewLRU[NamespaceID, []PeerUsage](4096, nil)
	return &peerLRUMirror{byNS: l}
}

func (m *peerLRUMirror) get(ns NamespaceID) ([]PeerUsage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byNS.Get(ns)
}

func (m *peerLRUMirror) set(ns NamespaceID, usages []PeerUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byNS.Add(ns, usages)
}

func (m *peerLRUMirror) invalidate(ns NamespaceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byNS.Remove(ns)
}

// RegisterUsefulPeer implements spec.md §4.6's replacement algorithm in a
// single write transaction against the sync-peers-1 DupSort table: the
// existing duplicates for ns are small in number (capped at
// PeersPerDocCap) so they are read into memory, the algorithm runs there,
// and the result is written back as a put/delete diff.
func (s *Store) RegisterUsefulPeer(ctx context.Context, ns NamespaceID, p PeerID, nowNs uint64) error {
	err := s.update(ctx, func(tx kv.RwTx) error {
		c, err := tx.RwCursorDupSort(kv.SyncPeers)
		if err != nil {
			return err
		}
		defer c.Close()

		nsKey := encodeSyncPeersKey(ns)
		existing, err := readDups(c, nsKey)
		if err != nil {
			return err
		}

		if len(existing) == 0 {
			return c.Put(nsKey, encodeSyncPeersValue(nowNs, p))
		}

		oldest := existing[0]
		if oldest.peer == p {
			if err := c.DeleteExact(nsKey, oldest.raw); err != nil {
				return err
			}
			return c.Put(nsKey, encodeSyncPeersValue(nowNs, p))
		}

		for _, e := range existing[1:] {
			if e.peer == p {
				if err := c.DeleteExact(nsKey, e.raw); err != nil {
					return err
				}
				return c.Put(nsKey, encodeSyncPeersValue(nowNs, p))
			}
		}

		if err := c.Put(nsKey, encodeSyncPeersValue(nowNs, p)); err != nil {
			return err
		}
		if len(existing)+1 > PeersPerDocCap {
			return c.DeleteExact(nsKey, oldest.raw)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.peerMirror.invalidate(ns)
	return nil
}

type syncPeerDup struct {
	ts   uint64
	peer PeerID
	raw  []byte
}

// readDups returns every duplicate value under nsKey, oldest first (the
// DupSort value encoding sorts ascending by last_used_ns since it is
// stored big-endian).
func readDups(c kv.CursorDupSort, nsKey []byte) ([]syncPeerDup, error) {
	k, _, err := c.Seek(nsKey)
	if err != nil {
		return nil, err
	}
	if k == nil || !bytesEqual(k, nsKey) {
		return nil, nil
	}
	v, err := c.FirstDup()
	if err != nil {
		return nil, err
	}
	var out []syncPeerDup
	for v != nil {
		ts, peer, derr := decodeSyncPeersValue(v)
		if derr != nil {
			return nil, derr
		}
		out = append(out, syncPeerDup{ts: ts, peer: peer, raw: v})
		_, v, err = c.NextDup()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetSyncPeers returns ns's peers in reverse-chronological order (most
// recently useful first), or nil if none are registered.
func (s *Store) GetSyncPeers(ctx context.Context, ns NamespaceID) ([]PeerUsage, error) {
	if cached, ok := s.peerMirror.get(ns); ok {
		return cached, nil
	}

	var out []PeerUsage
	err := s.view(ctx, func(tx kv.Tx) error {
		c, err := tx.CursorDupSort(kv.SyncPeers)
		if err != nil {
			return err
		}
		defer c.Close()
		dups, err := readDups(c, encodeSyncPeersKey(ns))
		if err != nil {
			return err
		}
		for _, d := range dups {
			out = append(out, PeerUsage{Namespace: ns, Peer: d.peer, LastUsedNs: d.ts})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	reversePeerUsage(out)
	s.peerMirror.set(ns, out)
	return out, nil
}

func reversePeerUsage(u []PeerUsage) {
	for i, j := 0, len(u)-1; i < j; i, j = i+1, j-1 {
		u[i], u[j] = u[j], u[i]
	}
}
