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

package kv

// DBSchemaVersion is bumped whenever the on-disk table layout changes in a
// way that requires a migration (see docstore's Migrations).
var DBSchemaVersion = struct{ Major, Minor, Patch int }{Major: 1, Minor: 0, Patch: 0}

const (
	// Authors - author_id(32) -> author_secret(32)
	Authors = "authors-1"

	// Namespaces - namespace_id(32) -> namespace_secret(32)
	Namespaces = "namespaces-1"

	// Records - primary table of signed entries.
	// key   - namespace_id(32) + author_id(32) + key(var)
	// value - timestamp_u64(8) + namespace_sig(64) + author_sig(64) + content_len_u64(8) + content_hash(32)
	Records = "records-1"

	/*
		RecordsByKey - secondary index, same rows as Records rewritten so that
		key is sorted by (namespace, key, author) instead of (namespace, author, key).

		key   - namespace_id(32) + key(var) + author_id(32)
		value - empty; the row's existence is the only payload

		Invariant 1 (spec.md §3): every Records row has exactly one
		RecordsByKey row with the same triple, and vice versa.
	*/
	RecordsByKey = "records-by-key-1"

	/*
		LatestByAuthor - key - namespace_id(32) + author_id(32)
		                 value - timestamp_u64(8) + key(var)

		Holds the (timestamp, key) of the last put per (namespace, author):
		overwritten unconditionally on put, never touched on remove (see
		docstore design notes on the "last write seen" asymmetry). Only the
		M1 migration rebuild picks the record with the greatest timestamp
		(ties broken by the greater key).
	*/
	LatestByAuthor = "latest-by-author-1"

	/*
		SyncPeers - DupSort multimap, one key per namespace.
		key   - namespace_id(32)
		value - last_used_ns_u64(8) + peer_id(32), sorted ascending by value
		        (so the oldest usage sorts first within a namespace)

		Capped at PEERS_PER_DOC_CAP entries per namespace (invariant 4).
	*/
	SyncPeers = "sync-peers-1"
)

// ChaindataTables lists every table this module uses. Open creates the
// tables named in ChaindataTablesCfg; a transaction asked for a table name
// missing from that config fails with ErrBucketNotFound.
var ChaindataTables = []string{
	Authors,
	Namespaces,
	Records,
	RecordsByKey,
	LatestByAuthor,
	SyncPeers,
}

// ChaindataTablesCfg is the static per-table configuration passed to the
// storage engine on Open.
var ChaindataTablesCfg = TableCfg{
	Authors:        {Flags: Default},
	Namespaces:     {Flags: Default},
	Records:        {Flags: Default},
	RecordsByKey:   {Flags: Default},
	LatestByAuthor: {Flags: Default},
	SyncPeers:      {Flags: DupSort},
}
