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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterGlobalCap(t *testing.T) {
	l := NewLimiter(2, 10, 10)
	var n1, n2, n3 NodeID
	n1[0], n2[0], n3[0] = 1, 2, 3

	require.True(t, l.AllowTransfer(n1))
	require.True(t, l.AllowTransfer(n2))
	require.False(t, l.AllowTransfer(n3))

	l.ReleaseTransfer(n1)
	require.True(t, l.AllowTransfer(n3))
}

func TestLimiterPerNodeCap(t *testing.T) {
	l := NewLimiter(10, 1, 10)
	var n1 NodeID
	n1[0] = 1

	require.True(t, l.AllowTransfer(n1))
	require.False(t, l.AllowTransfer(n1))

	l.ReleaseTransfer(n1)
	require.True(t, l.AllowTransfer(n1))
}

func TestLimiterPerNodeFailureRollsBackGlobal(t *testing.T) {
	l := NewLimiter(2, 1, 10)
	var n1, n2 NodeID
	n1[0], n2[0] = 1, 2

	require.True(t, l.AllowTransfer(n1))
	// n1's per-node cap is exhausted; the failed attempt must not have
	// leaked the global slot it provisionally acquired.
	require.False(t, l.AllowTransfer(n1))
	require.True(t, l.AllowTransfer(n2))
}

func TestLimiterConnections(t *testing.T) {
	l := NewLimiter(10, 10, 1)
	require.True(t, l.AllowConnection())
	require.False(t, l.AllowConnection())
	l.ReleaseConnection()
	require.True(t, l.AllowConnection())
}

func TestLimiterDropNodeForgetsSemaphore(t *testing.T) {
	l := NewLimiter(10, 1, 10)
	var n1 NodeID
	n1[0] = 1

	require.True(t, l.AllowTransfer(n1))
	l.dropNode(n1)
	// A fresh per-node semaphore is created on next use, so a node that
	// was forgotten after a permanent failure is not left permanently
	// exhausted if its id is ever reused.
	require.True(t, l.AllowTransfer(n1))
}
