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

// SignatureVerifier authenticates entries before they are admitted by Put.
// Key generation, signing, and the actual cryptographic scheme are out of
// scope (spec.md Non-goals) — the store only ever calls Verify.
type SignatureVerifier interface {
	// Verify reports whether signature is a valid signature by pubkey over
	// message. It never returns an error: an unverifiable signature is
	// simply invalid.
	Verify(pubkey [32]byte, message []byte, signature [64]byte) bool
}

// entrySigningMessage is the byte string both the namespace and author
// signatures are computed over: every field of the entry except the
// signatures themselves, in the same field order AsFingerprint uses, so a
// verifier and the fingerprint computation agree on what "the entry" means.
func entrySigningMessage(id RecordID, v RecordValue) []byte {
	out := make([]byte, 0, 32+32+len(id.Key)+8+32+8)
	out = append(out, id.Namespace[:]...)
	out = append(out, id.Author[:]...)
	out = append(out, id.Key...)
	var tsBuf [8]byte
	for i := 0; i < 8; i++ {
		tsBuf[i] = byte(v.Timestamp >> (56 - 8*i))
	}
	out = append(out, tsBuf[:]...)
	out = append(out, v.ContentHash[:]...)
	var lenBuf [8]byte
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(v.ContentLen >> (56 - 8*i))
	}
	out = append(out, lenBuf[:]...)
	return out
}

// verifyEntry checks both signatures on e via sv. A nil sv admits every
// entry unverified — used by tests that exercise store mechanics without
// wiring real cryptography.
func verifyEntry(sv SignatureVerifier, e SignedEntry) bool {
	if sv == nil {
		return true
	}
	msg := entrySigningMessage(e.ID, e.Value)
	if !sv.Verify(e.ID.Namespace, msg, e.NamespaceSig) {
		return false
	}
	return sv.Verify(e.ID.Author, msg, e.AuthorSig)
}
