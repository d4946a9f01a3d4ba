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

// Package downloader implements the download scheduler: a single-threaded,
// cooperative state machine that decides when to dial which peer, when to
// start or abort transfers of content-addressed resources, and how to fan
// out within hard concurrency limits while tolerating peer failure with
// retries and eviction.
package downloader

import "encoding/hex"

// ResourceKind distinguishes a single blob from a hash sequence (a manifest
// naming other resources).
type ResourceKind int

const (
	KindBlob ResourceKind = iota
	KindHashSeq
)

// NodeID identifies a peer known to the scheduler.
type NodeID [32]byte

func (n NodeID) String() string { return hex.EncodeToString(n[:]) }

// ResourceID identifies a content-addressed resource.
type ResourceID [32]byte

func (r ResourceID) String() string { return hex.EncodeToString(r[:]) }

// GroupID is a logical bucket of resources — currently always a namespace
// id — that nodes join rather than enumerate each resource within.
type GroupID [32]byte

func (g GroupID) String() string { return hex.EncodeToString(g[:]) }

// Resource is one content-addressed thing the scheduler can be asked to
// fetch.
type Resource struct {
	Hash ResourceID
	Kind ResourceKind
}

// TransferID identifies one in-flight transfer.
type TransferID uint64

// Transfer is an active download of a resource from a node.
type Transfer struct {
	ID       TransferID
	Resource ResourceID
	Node     NodeID
}

// Failure classifies why a transfer did not complete, driving the
// NodeInfo/resource state transitions of spec.md §4.7's failure handling.
type Failure int

const (
	// FailureNotFound means the node doesn't have the resource; skip it
	// for this resource only.
	FailureNotFound Failure = iota
	// FailureAbortRequest means the request was aborted locally; skip the
	// node for this resource only, same as NotFound.
	FailureAbortRequest
	// FailureDropPeer means the node should be treated as permanently
	// failed, no retry.
	FailureDropPeer
	// FailureRetryLater means the node had a transient failure; retry it
	// with the retry budget.
	FailureRetryLater
)

// TimerKind distinguishes the scheduler's two timer purposes.
type TimerKind int

const (
	TimerRetryNode TimerKind = iota
	TimerDropConnection
)

// Timer names one scheduled wakeup for a specific node.
type Timer struct {
	Kind TimerKind
	Node NodeID
}
