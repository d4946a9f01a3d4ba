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
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/syncmesh/docsync/kv"
	"github.com/syncmesh/docsync/kv/mdbx"
	"github.com/syncmesh/docsync/metrics"
)

// PeersPerDocCap bounds the per-namespace peer LRU (§4.6).
const PeersPerDocCap = 5

// Store is the replica store: it owns authors-1, namespaces-1, records-1,
// records-by-key-1, latest-by-author-1 and sync-peers-1, and enforces the
// invariants that tie them together. A Store is safe for concurrent use —
// the embedded kv.RwDB serialises writers and the open-replica set is
// guarded independently (spec.md §5).
type Store struct {
	db       kv.RwDB
	closeDB  func()
	verifier SignatureVerifier
	log      *zap.Logger

	mu     sync.RWMutex
	openNS map[NamespaceID]struct{}

	peerMirror *peerLRUMirror
}

// Option configures Open.
type Option func(*Store)

// WithSignatureVerifier wires a collaborator that Put uses to authenticate
// entries. Without this option Put admits any signature.
func WithSignatureVerifier(v SignatureVerifier) Option {
	return func(s *Store) { s.verifier = v }
}

// WithLogger attaches a logger; the zero value is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens (creating if absent) the MDBX database at path, ensures every
// table exists, and runs pending migrations inside one write transaction.
func Open(path string, mapSize int64, opts ...Option) (*Store, error) {
	env, err := mdbx.Open(path, kv.ChaindataTablesCfg, mapSize)
	if err != nil {
		return nil, fmt.Errorf("docstore: open: %w", err)
	}
	s := &Store{db: env, closeDB: env.Close, log: zap.NewNop(), openNS: make(map[NamespaceID]struct{}), peerMirror: newPeerLRUMirror()}
	for _, o := range opts {
		o(s)
	}
	if err := s.update(context.Background(), s.migrate); err != nil {
		env.Close()
		return nil, fmt.Errorf("docstore: migrate: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an already-open kv.RwDB (e.g. a fake for tests) instead of
// opening MDBX directly, and runs the same migrations.
func NewWithDB(db kv.RwDB, opts ...Option) (*Store, error) {
	s := &Store{db: db, log: zap.NewNop(), openNS: make(map[NamespaceID]struct{}), peerMirror: newPeerLRUMirror()}
	for _, o := range opts {
		o(s)
	}
	if err := s.update(context.Background(), s.migrate); err != nil {
		return nil, fmt.Errorf("docstore: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database. No-op if Store was built with
// NewWithDB.
func (s *Store) Close() {
	if s.closeDB != nil {
		s.closeDB()
	}
}

// view and update wrap kv.RoDB/RwDB's View/Update with transaction-count
// instrumentation, so every read or write snapshot the store opens —
// directly or through docstore's other files — is counted exactly once.
func (s *Store) view(ctx context.Context, f func(kv.Tx) error) error {
	metrics.StoreTxTotal.WithLabelValues("ro").Inc()
	return s.db.View(ctx, f)
}

func (s *Store) update(ctx context.Context, f func(kv.RwTx) error) error {
	metrics.StoreTxTotal.WithLabelValues("rw").Inc()
	return s.db.Update(ctx, f)
}

// migrate runs M1 (rebuild latest-by-author) and M2 (rebuild records-by-key)
// when their target table is empty but records-1 is not. Both are
// idempotent: running them again when the target is already populated is a
// no-op because the detection condition no longer holds.
func (s *Store) migrate(tx kv.RwTx) error {
	recordsEmpty, err := tableEmpty(tx, kv.Records)
	if err != nil {
		return err
	}
	if recordsEmpty {
		return nil
	}
	if empty, err := tableEmpty(tx, kv.LatestByAuthor); err != nil {
		return err
	} else if empty {
		s.log.Info("docstore: running migration", zap.String("name", "M1_rebuild_latest_by_author"))
		if err := rebuildLatestByAuthor(tx); err != nil {
			return fmt.Errorf("M1: %w", err)
		}
	}
	if empty, err := tableEmpty(tx, kv.RecordsByKey); err != nil {
		return err
	} else if empty {
		s.log.Info("docstore: running migration", zap.String("name", "M2_rebuild_records_by_key"))
		if err := rebuildRecordsByKey(tx); err != nil {
			return fmt.Errorf("M2: %w", err)
		}
	}
	return nil
}

func tableEmpty(tx kv.Tx, table string) (bool, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return false, err
	}
	defer c.Close()
	k, _, err := c.First()
	if err != nil {
		return false, err
	}
	return k == nil, nil
}

func rebuildLatestByAuthor(tx kv.RwTx) error {
	type best struct {
		ts  uint64
		key []byte
	}
	winners := make(map[[64]byte]best)
	order := make([][64]byte, 0)

	if err := tx.ForEach(kv.Records, nil, func(k, v []byte) error {
		id, err := decodeRecordsKey(k)
		if err != nil {
			return err
		}
		e, err := decodeRecordsValue(id, v)
		if err != nil {
			return err
		}
		var lk [64]byte
		copy(lk[0:32], id.Namespace[:])
		copy(lk[32:64], id.Author[:])
		cur, seen := winners[lk]
		if !seen {
			order = append(order, lk)
		}
		if !seen || e.Value.Timestamp > cur.ts || (e.Value.Timestamp == cur.ts && bytesCompare(id.Key, cur.key) > 0) {
			winners[lk] = best{ts: e.Value.Timestamp, key: id.Key}
		}
		return nil
	}); err != nil {
		return err
	}

	for _, lk := range order {
		w := winners[lk]
		var ns NamespaceID
		var author AuthorID
		copy(ns[:], lk[0:32])
		copy(author[:], lk[32:64])
		if err := tx.Put(kv.LatestByAuthor, encodeLatestKey(ns, author), encodeLatestValue(w.ts, w.key)); err != nil {
			return err
		}
	}
	return nil
}

func rebuildRecordsByKey(tx kv.RwTx) error {
	return tx.ForEach(kv.Records, nil, func(k, _ []byte) error {
		id, err := decodeRecordsKey(k)
		if err != nil {
			return err
		}
		return tx.Put(kv.RecordsByKey, encodeByKeyKey(id), nil)
	})
}

// ImportAuthor idempotently inserts an author id/secret pair.
func (s *Store) ImportAuthor(ctx context.Context, id AuthorID, secret [32]byte) error {
	return s.update(ctx, func(tx kv.RwTx) error {
		return tx.Put(kv.Authors, id[:], secret[:])
	})
}

// ImportNamespace idempotently inserts a namespace id/secret pair.
func (s *Store) ImportNamespace(ctx context.Context, id NamespaceID, secret [32]byte) error {
	return s.update(ctx, func(tx kv.RwTx) error {
		return tx.Put(kv.Namespaces, id[:], secret[:])
	})
}

// ListAuthors returns every known author id.
func (s *Store) ListAuthors(ctx context.Context) ([]AuthorID, error) {
	var out []AuthorID
	err := s.view(ctx, func(tx kv.Tx) error {
		return tx.ForEach(kv.Authors, nil, func(k, _ []byte) error {
			var a AuthorID
			copy(a[:], k)
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

// ListNamespaces returns every known namespace id.
func (s *Store) ListNamespaces(ctx context.Context) ([]NamespaceID, error) {
	var out []NamespaceID
	err := s.view(ctx, func(tx kv.Tx) error {
		return tx.ForEach(kv.Namespaces, nil, func(k, _ []byte) error {
			var n NamespaceID
			copy(n[:], k)
			out = append(out, n)
			return nil
		})
	})
	return out, err
}

// GetAuthor returns an author's secret, or ErrNotFound.
func (s *Store) GetAuthor(ctx context.Context, id AuthorID) ([32]byte, error) {
	var secret [32]byte
	err := s.view(ctx, func(tx kv.Tx) error {
		v, err := tx.GetOne(kv.Authors, id[:])
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNotFound
		}
		copy(secret[:], v)
		return nil
	})
	return secret, err
}

// Handle is returned by OpenReplica; it must be released with CloseReplica.
type Handle struct {
	Namespace NamespaceID
}

// OpenReplica marks ns as open, failing with ErrNamespaceAlreadyOpen if a
// handle is already held for it, or ErrNotFound if the namespace is
// unknown.
func (s *Store) OpenReplica(ctx context.Context, ns NamespaceID) (*Handle, error) {
	var exists bool
	if err := s.view(ctx, func(tx kv.Tx) error {
		v, err := tx.GetOne(kv.Namespaces, ns[:])
		if err != nil {
			return err
		}
		exists = v != nil
		return nil
	}); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, open := s.openNS[ns]; open {
		return nil, ErrNamespaceAlreadyOpen
	}
	s.openNS[ns] = struct{}{}
	return &Handle{Namespace: ns}, nil
}

// CloseReplica releases h's slot in the open-replica set.
func (s *Store) CloseReplica(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.openNS, h.Namespace)
}

func (s *Store) isOpen(ns NamespaceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, open := s.openNS[ns]
	return open
}

// RemoveReplica fails with ErrNamespaceInUse if ns currently has an open
// handle; otherwise it drains records-1, records-by-key-1,
// latest-by-author-1 and the namespaces-1 row for ns in one transaction.
func (s *Store) RemoveReplica(ctx context.Context, ns NamespaceID) error {
	if s.isOpen(ns) {
		return ErrNamespaceInUse
	}
	return s.update(ctx, func(tx kv.RwTx) error {
		if _, err := drainBound(tx, kv.Records, namespaceBound(ns), nil); err != nil {
			return err
		}
		if _, err := drainBound(tx, kv.RecordsByKey, namespaceBoundByKey(ns), nil); err != nil {
			return err
		}
		if _, err := drainBound(tx, kv.LatestByAuthor, latestNamespaceBound(ns), nil); err != nil {
			return err
		}
		return tx.Delete(kv.Namespaces, ns[:])
	})
}

func latestNamespaceBound(ns NamespaceID) bound {
	start := append([]byte(nil), ns[:]...)
	end, ok := nextPrefix(ns[:])
	if !ok {
		end = nil
	}
	return bound{Start: start, End: end}
}

// drainBound deletes every row in b, optionally filtered by keep (keep
// returning true means "delete this row too"; nil keep deletes
// unconditionally). Returns the number of rows removed.
func drainBound(tx kv.RwTx, table string, b bound, keep func(k, v []byte) bool) (int, error) {
	c, err := tx.RwCursor(table)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	var toDelete [][]byte
	k, v, err := c.Seek(b.Start)
	for ; k != nil; k, v, err = c.Next() {
		if err != nil {
			return 0, err
		}
		if b.End != nil && bytesCompare(k, b.End) >= 0 {
			break
		}
		if keep == nil || keep(k, v) {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
	}
	if err != nil {
		return 0, err
	}
	for _, k := range toDelete {
		if err := tx.Delete(table, k); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}

// Put writes entry's records row, by-key row, and unconditionally
// overwrites the latest-by-author row — the store never compares
// timestamps; callers enforce their own ordering policy.
func (s *Store) Put(ctx context.Context, e SignedEntry) error {
	if !verifyEntry(s.verifier, e) {
		return ErrSignatureInvalid
	}
	if err := s.update(ctx, func(tx kv.RwTx) error {
		if err := tx.Put(kv.Records, encodeRecordsKey(e.ID), encodeRecordsValue(e)); err != nil {
			return err
		}
		if err := tx.Put(kv.RecordsByKey, encodeByKeyKey(e.ID), nil); err != nil {
			return err
		}
		return tx.Put(kv.LatestByAuthor, encodeLatestKey(e.ID.Namespace, e.ID.Author), encodeLatestValue(e.Value.Timestamp, e.ID.Key))
	}); err != nil {
		return err
	}
	metrics.StorePutsTotal.Inc()
	return nil
}

// Remove deletes both index rows for id and returns the previous entry, if
// any. It does not touch latest-by-author.
func (s *Store) Remove(ctx context.Context, id RecordID) (*SignedEntry, error) {
	var prev *SignedEntry
	err := s.update(ctx, func(tx kv.RwTx) error {
		rk := encodeRecordsKey(id)
		v, err := tx.GetOne(kv.Records, rk)
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		e, err := decodeRecordsValue(id, v)
		if err != nil {
			return err
		}
		prev = &e
		if err := tx.Delete(kv.Records, rk); err != nil {
			return err
		}
		return tx.Delete(kv.RecordsByKey, encodeByKeyKey(id))
	})
	if err == nil && prev != nil {
		metrics.StoreRemovesTotal.Inc()
	}
	return prev, err
}

// GetOne performs a point lookup, optionally filtering out empty entries.
func (s *Store) GetOne(ctx context.Context, id RecordID, includeEmpty bool) (*SignedEntry, error) {
	var out *SignedEntry
	err := s.view(ctx, func(tx kv.Tx) error {
		v, err := tx.GetOne(kv.Records, encodeRecordsKey(id))
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		e, err := decodeRecordsValue(id, v)
		if err != nil {
			return err
		}
		if !includeEmpty && e.Value.IsEmpty() {
			return nil
		}
		out = &e
		return nil
	})
	return out, err
}

// ContentHashes forward-scans every stored entry and yields its content
// hash to fn. Iteration stops at the first error fn returns.
func (s *Store) ContentHashes(ctx context.Context, fn func([32]byte) error) error {
	return s.view(ctx, func(tx kv.Tx) error {
		return tx.ForEach(kv.Records, nil, func(_, v []byte) error {
			var h [32]byte
			copy(h[:], v[144:176])
			return fn(h)
		})
	})
}

// AuthorLatest is one row of GetLatestForEachAuthor's result.
type AuthorLatest struct {
	Author    AuthorID
	Timestamp uint64
	Key       []byte
}

// GetLatestForEachAuthor range-scans latest-by-author-1 bounded to ns.
func (s *Store) GetLatestForEachAuthor(ctx context.Context, ns NamespaceID) ([]AuthorLatest, error) {
	var out []AuthorLatest
	b := latestNamespaceBound(ns)
	err := s.view(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.LatestByAuthor)
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
			var author AuthorID
			copy(author[:], k[32:64])
			ts, key, err := decodeLatestValue(v)
			if err != nil {
				return err
			}
			out = append(out, AuthorLatest{Author: author, Timestamp: ts, Key: key})
		}
		return err
	})
	return out, err
}

func bytesCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
