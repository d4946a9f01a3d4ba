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
	"encoding/binary"
	"fmt"
)

// --- primary (records-1) key: namespace(32) + author(32) + key(var) ---

func encodeRecordsKey(id RecordID) []byte {
	out := make([]byte, 32+32+len(id.Key))
	copy(out[0:32], id.Namespace[:])
	copy(out[32:64], id.Author[:])
	copy(out[64:], id.Key)
	return out
}

func decodeRecordsKey(buf []byte) (RecordID, error) {
	if len(buf) < 64 {
		return RecordID{}, fmt.Errorf("docstore: records key too short (%d bytes)", len(buf))
	}
	var id RecordID
	copy(id.Namespace[:], buf[0:32])
	copy(id.Author[:], buf[32:64])
	id.Key = append([]byte(nil), buf[64:]...)
	return id, nil
}

// --- secondary (records-by-key-1) key: namespace(32) + key(var) + author(32) ---

func encodeByKeyKey(id RecordID) []byte {
	out := make([]byte, 32+len(id.Key)+32)
	copy(out[0:32], id.Namespace[:])
	copy(out[32:32+len(id.Key)], id.Key)
	copy(out[32+len(id.Key):], id.Author[:])
	return out
}

func decodeByKeyKey(buf []byte) (RecordID, error) {
	if len(buf) < 64 {
		return RecordID{}, fmt.Errorf("docstore: by-key key too short (%d bytes)", len(buf))
	}
	var id RecordID
	copy(id.Namespace[:], buf[0:32])
	id.Key = append([]byte(nil), buf[32:len(buf)-32]...)
	copy(id.Author[:], buf[len(buf)-32:])
	return id, nil
}

// --- records value: ts(8) + ns_sig(64) + author_sig(64) + content_len(8) + content_hash(32) ---

const recordsValueSize = 8 + 64 + 64 + 8 + 32

func encodeRecordsValue(e SignedEntry) []byte {
	out := make([]byte, recordsValueSize)
	binary.BigEndian.PutUint64(out[0:8], e.Value.Timestamp)
	copy(out[8:72], e.NamespaceSig[:])
	copy(out[72:136], e.AuthorSig[:])
	binary.BigEndian.PutUint64(out[136:144], e.Value.ContentLen)
	copy(out[144:176], e.Value.ContentHash[:])
	return out
}

func decodeRecordsValue(id RecordID, buf []byte) (SignedEntry, error) {
	if len(buf) != recordsValueSize {
		return SignedEntry{}, fmt.Errorf("docstore: records value has wrong size %d, want %d", len(buf), recordsValueSize)
	}
	e := SignedEntry{ID: id}
	e.Value.Timestamp = binary.BigEndian.Uint64(buf[0:8])
	copy(e.NamespaceSig[:], buf[8:72])
	copy(e.AuthorSig[:], buf[72:136])
	e.Value.ContentLen = binary.BigEndian.Uint64(buf[136:144])
	copy(e.Value.ContentHash[:], buf[144:176])
	return e, nil
}

// --- latest-by-author-1: key namespace(32)+author(32); value ts(8)+key(var) ---

func encodeLatestKey(ns NamespaceID, author AuthorID) []byte {
	out := make([]byte, 64)
	copy(out[0:32], ns[:])
	copy(out[32:64], author[:])
	return out
}

func encodeLatestValue(ts uint64, key []byte) []byte {
	out := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(out[0:8], ts)
	copy(out[8:], key)
	return out
}

func decodeLatestValue(buf []byte) (ts uint64, key []byte, err error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("docstore: latest-by-author value too short (%d bytes)", len(buf))
	}
	ts = binary.BigEndian.Uint64(buf[0:8])
	key = append([]byte(nil), buf[8:]...)
	return ts, key, nil
}

// --- sync-peers-1: key namespace(32); dup-sorted value last_used_ns(8)+peer(32) ---

func encodeSyncPeersKey(ns NamespaceID) []byte { return append([]byte(nil), ns[:]...) }

func encodeSyncPeersValue(lastUsedNs uint64, p PeerID) []byte {
	out := make([]byte, 8+32)
	binary.BigEndian.PutUint64(out[0:8], lastUsedNs)
	copy(out[8:], p[:])
	return out
}

func decodeSyncPeersValue(buf []byte) (lastUsedNs uint64, p PeerID, err error) {
	if len(buf) != 40 {
		return 0, PeerID{}, fmt.Errorf("docstore: sync-peers value has wrong size %d", len(buf))
	}
	lastUsedNs = binary.BigEndian.Uint64(buf[0:8])
	copy(p[:], buf[8:])
	return lastUsedNs, p, nil
}

// --- bounds ---

// bound is a half-open byte-key interval [Start, End). A nil End means
// unbounded — "to the end of the table/scope" — never a byte sentinel, so
// an all-0xFF key is never confused with "no upper bound" (spec.md §4.1).
type bound struct {
	Start []byte
	End   []byte
}

// nextPrefix returns the lexicographically smallest byte string that is
// strictly greater than every string with prefix p, or (nil, false) if p is
// composed entirely of 0xFF bytes (no such string exists in a fixed-width
// successor scheme — the caller must then treat the range as unbounded).
func nextPrefix(p []byte) ([]byte, bool) {
	out := append([]byte(nil), p...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1], true
		}
	}
	return nil, false
}

// exactKeyEnd returns the exclusive end of the singleton range matching key
// exactly: the smallest string greater than key, i.e. key with a zero byte
// appended. This is always representable since appending never overflows.
func exactKeyEnd(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}

// namespaceBound returns the bound covering every primary-table row for ns.
func namespaceBound(ns NamespaceID) bound {
	start := append([]byte(nil), ns[:]...)
	end, ok := nextPrefix(ns[:])
	if !ok {
		end = nil
	}
	return bound{Start: start, End: end}
}

// namespaceBoundByKey is namespaceBound's analogue over records-by-key-1
// (same key-prefix logic; the table differs only in the bytes after the
// namespace prefix, which nextPrefix never looks at).
func namespaceBoundByKey(ns NamespaceID) bound { return namespaceBound(ns) }

// authorBound narrows the primary index to a single author within ns,
// optionally further narrowed by a key filter.
func authorBound(ns NamespaceID, author AuthorID, kf KeyFilter) bound {
	prefix := make([]byte, 64)
	copy(prefix[0:32], ns[:])
	copy(prefix[32:64], author[:])

	switch kf.Kind {
	case KeyFilterAny:
		end, ok := nextPrefix(prefix)
		if !ok {
			end = nil
		}
		return bound{Start: prefix, End: end}
	case KeyFilterExact:
		start := append(append([]byte(nil), prefix...), kf.Bytes...)
		return bound{Start: start, End: exactKeyEnd(start)}
	case KeyFilterPrefix:
		start := append(append([]byte(nil), prefix...), kf.Bytes...)
		end, ok := nextPrefix(start)
		if !ok {
			// prefix+author combination ran off the end of the keyspace;
			// still clip to this author so we never spill into the next one.
			nsEnd, nsOk := nextPrefix(prefix)
			if nsOk {
				end = nsEnd
			}
		}
		return bound{Start: start, End: end}
	default:
		panic(fmt.Sprintf("docstore: unknown key filter kind %d", kf.Kind))
	}
}

// authorPrefixBound is authorBound specialised to the Prefix case, named to
// match spec.md §4.1's author_prefix(ns, author, prefix).
func authorPrefixBound(ns NamespaceID, author AuthorID, prefix []byte) bound {
	return authorBound(ns, author, KeyFilter{Kind: KeyFilterPrefix, Bytes: prefix})
}

// byKeyBound is authorBound's analogue over records-by-key-1, whose physical
// key order is (namespace, key, author) rather than (namespace, author,
// key). Used by the query engine's "any author" key-filtered plan.
func byKeyBound(ns NamespaceID, kf KeyFilter) bound {
	prefix := append([]byte(nil), ns[:]...)
	switch kf.Kind {
	case KeyFilterAny:
		return namespaceBoundByKey(ns)
	case KeyFilterExact:
		// Unlike authorBound, key is not the last field here — author(32)
		// follows it — so exactKeyEnd(ns||key) would exclude every real row,
		// since ns||key||author always sorts above ns||key||0x00. Use nextPrefix over
		// ns||key instead; this over-matches keys that merely have kf.Bytes
		// as a byte-prefix, so callers (runLatestPerKey) must still
		// post-filter on the decoded key.
		start := append(append([]byte(nil), prefix...), kf.Bytes...)
		end, ok := nextPrefix(start)
		if !ok {
			nsEnd, nsOk := nextPrefix(prefix)
			if nsOk {
				end = nsEnd
			}
		}
		return bound{Start: start, End: end}
	case KeyFilterPrefix:
		start := append(append([]byte(nil), prefix...), kf.Bytes...)
		end, ok := nextPrefix(start)
		if !ok {
			nsEnd, nsOk := nextPrefix(prefix)
			if nsOk {
				end = nsEnd
			}
		}
		return bound{Start: start, End: end}
	default:
		panic(fmt.Sprintf("docstore: unknown key filter kind %d", kf.Kind))
	}
}

// fromStart and toEnd split a wrap-around range at the namespace boundary
// (spec.md §4.1/§4.5: range(x,y) with x>y means [min,y) ++ [x,max]).

func fromStartBound(ns NamespaceID, endExcl RecordID) bound {
	nsB := namespaceBound(ns)
	return bound{Start: nsB.Start, End: encodeRecordsKey(endExcl)}
}

func toEndBound(ns NamespaceID, startIncl RecordID) bound {
	nsB := namespaceBound(ns)
	return bound{Start: encodeRecordsKey(startIncl), End: nsB.End}
}

// KeyFilterKind enumerates the ways a query or range bound can constrain a
// record's key.
type KeyFilterKind int

const (
	KeyFilterAny KeyFilterKind = iota
	KeyFilterExact
	KeyFilterPrefix
)

// KeyFilter is a query-engine/bounds input: either "any key", an exact byte
// string, or a byte-string prefix.
type KeyFilter struct {
	Kind  KeyFilterKind
	Bytes []byte
}

func (kf KeyFilter) matches(key []byte) bool {
	switch kf.Kind {
	case KeyFilterAny:
		return true
	case KeyFilterExact:
		return bytes.Equal(kf.Bytes, key)
	case KeyFilterPrefix:
		return bytes.HasPrefix(key, kf.Bytes)
	default:
		return false
	}
}

// AuthorFilterKind enumerates the ways a query can constrain a record's
// author.
type AuthorFilterKind int

const (
	AuthorFilterAny AuthorFilterKind = iota
	AuthorFilterExact
)

// AuthorFilter is a query-engine input: either "any author" or one exact
// AuthorID.
type AuthorFilter struct {
	Kind   AuthorFilterKind
	Author AuthorID
}
