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

package downloader

import "golang.org/x/sync/semaphore"

// Limiter is the pure policy of component H: global and per-node request
// caps, plus the open-connection cap. The scheduler never blocks (spec.md
// §5), so every acquire here is a non-blocking TryAcquire used as an
// atomic counter with a panic-on-misuse safety net, not a queuing
// primitive — releasing more than was acquired is a programmer error, not
// a runtime condition to recover from.
type Limiter struct {
	global      *semaphore.Weighted
	perNode     map[NodeID]*semaphore.Weighted
	perNodeCap  int64
	connections *semaphore.Weighted
}

// NewLimiter builds a Limiter from the tuning constants of spec.md §6.
func NewLimiter(maxConcurrentRequests, maxConcurrentRequestsPerNode, maxOpenConnections int) *Limiter {
	return &Limiter{
		global:      semaphore.NewWeighted(int64(maxConcurrentRequests)),
		perNode:     make(map[NodeID]*semaphore.Weighted),
		perNodeCap:  int64(maxConcurrentRequestsPerNode),
		connections: semaphore.NewWeighted(int64(maxOpenConnections)),
	}
}

func (l *Limiter) nodeSem(n NodeID) *semaphore.Weighted {
	s, ok := l.perNode[n]
	if !ok {
		s = semaphore.NewWeighted(l.perNodeCap)
		l.perNode[n] = s
	}
	return s
}

// AllowTransfer reports whether starting one more transfer on n is within
// both the global and per-node caps, and — if so — reserves the slots.
// Callers must call ReleaseTransfer exactly once per successful
// AllowTransfer when the transfer ends.
func (l *Limiter) AllowTransfer(n NodeID) bool {
	if !l.global.TryAcquire(1) {
		return false
	}
	if !l.nodeSem(n).TryAcquire(1) {
		l.global.Release(1)
		return false
	}
	return true
}

// ReleaseTransfer frees the slots reserved by a matching AllowTransfer.
func (l *Limiter) ReleaseTransfer(n NodeID) {
	l.nodeSem(n).Release(1)
	l.global.Release(1)
}

// AllowConnection reports whether opening one more connection is within
// max_open_connections, reserving the slot if so.
func (l *Limiter) AllowConnection() bool {
	return l.connections.TryAcquire(1)
}

// ReleaseConnection frees a slot reserved by AllowConnection.
func (l *Limiter) ReleaseConnection() {
	l.connections.Release(1)
}

// dropNode forgets n's per-node semaphore entirely; called on permanent
// failure so long-lived scheduler instances don't accumulate one semaphore
// per node ever seen.
func (l *Limiter) dropNode(n NodeID) {
	delete(l.perNode, n)
}
