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

// Package docstore implements the replica store: the persistent,
// transactional, multi-index store of signed entries keyed by
// (namespace, author, key), plus the range reconciliation adapter, the
// query engine, and the per-namespace peer LRU built on top of it.
package docstore

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// NamespaceID is a document's identity: a 32-byte Ed25519-style public key.
type NamespaceID [32]byte

func (n NamespaceID) String() string { return hex.EncodeToString(n[:]) }
func (n NamespaceID) Bytes() []byte  { return n[:] }

// AuthorID is a signing identity's public key.
type AuthorID [32]byte

func (a AuthorID) String() string { return hex.EncodeToString(a[:]) }
func (a AuthorID) Bytes() []byte  { return a[:] }

// Compare returns -1/0/1 the way bytes.Compare does.
func (a AuthorID) Compare(b AuthorID) int { return bytes.Compare(a[:], b[:]) }

// PeerID identifies a peer usable by the range reconciliation protocol's
// transport, recorded in the per-namespace peer LRU (§4.6).
type PeerID [32]byte

func (p PeerID) String() string { return hex.EncodeToString(p[:]) }

// RecordID names a record cell: (namespace, author, key).
type RecordID struct {
	Namespace NamespaceID
	Author    AuthorID
	Key       []byte
}

// Compare orders two RecordIDs the way the primary records table is
// physically sorted: namespace, then author, then key. Callers that already
// know both ids share a namespace (the common case — reconciliation and
// queries are always scoped to one namespace) can ignore that leading
// component; it is included here so Compare is total and safe to use across
// namespaces too (e.g. in tests).
func (id RecordID) Compare(other RecordID) int {
	if c := bytes.Compare(id.Namespace[:], other.Namespace[:]); c != 0 {
		return c
	}
	if c := bytes.Compare(id.Author[:], other.Author[:]); c != 0 {
		return c
	}
	return bytes.Compare(id.Key, other.Key)
}

// RecordValue is the mutable payload of a signed entry.
type RecordValue struct {
	Timestamp   uint64 // nanoseconds since epoch, author-chosen
	ContentHash [32]byte
	ContentLen  uint64
}

// EmptyContentHash is the canonical hash of zero-length content. An entry
// whose ContentHash equals this value is "empty" per spec.md §3.
var EmptyContentHash = blake3.Sum256(nil)

// IsEmpty reports whether v represents the canonical empty-content marker.
func (v RecordValue) IsEmpty() bool { return v.ContentHash == EmptyContentHash }

// SignedEntry is a fully signed record: identifier, value, and the two
// signatures that authenticate it. The store treats signatures opaquely —
// it never inspects them itself; Put checks them only through the
// SignatureVerifier collaborator (collab.go), when one is configured.
type SignedEntry struct {
	ID           RecordID
	Value        RecordValue
	NamespaceSig [64]byte
	AuthorSig    [64]byte
}

// Fingerprint is a 32-byte XOR-commutative digest over a set of entries.
type Fingerprint [32]byte

// XOR accumulates other into fp in place and returns fp for chaining.
func (fp *Fingerprint) XOR(other Fingerprint) *Fingerprint {
	for i := range fp {
		fp[i] ^= other[i]
	}
	return fp
}

// AsFingerprint derives e's digest deterministically from its identifier,
// value, and both signatures — anything that changes any of those fields
// changes the fingerprint. BLAKE3 gives a fixed 32-byte output, matching
// Fingerprint's width exactly.
func (e SignedEntry) AsFingerprint() Fingerprint {
	h := blake3.New(32, nil)
	h.Write(e.ID.Namespace[:])
	h.Write(e.ID.Author[:])
	h.Write(e.ID.Key)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], e.Value.Timestamp)
	h.Write(tsBuf[:])
	h.Write(e.Value.ContentHash[:])
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], e.Value.ContentLen)
	h.Write(lenBuf[:])
	h.Write(e.NamespaceSig[:])
	h.Write(e.AuthorSig[:])
	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}
