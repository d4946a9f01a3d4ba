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

import "time"

// NodeHints is the information AddNode carries about a newly declared peer.
type NodeHints struct {
	Resources []ResourceID
	Groups    []GroupID
}

// ResourceHints is the information AddResource carries about a wanted
// resource.
type ResourceHints struct {
	CandidateNodes []NodeID
	SkipNodes      []NodeID
	Groups         []GroupID
}

// InEvent is anything that can be fed into Scheduler.Handle.
type InEvent interface{ inEvent() }

type AddNode struct {
	Node  NodeID
	Hints NodeHints
}

type AddResource struct {
	Resource ResourceID
	Kind     ResourceKind
	Hints    ResourceHints
}

type NodeConnected struct{ Node NodeID }

type NodeFailed struct{ Node NodeID }

type TransferReady struct{ ID TransferID }

type TransferFailed struct {
	ID      TransferID
	Failure Failure
}

type TimerExpired struct{ Timer Timer }

func (AddNode) inEvent()        {}
func (AddResource) inEvent()    {}
func (NodeConnected) inEvent()  {}
func (NodeFailed) inEvent()     {}
func (TransferReady) inEvent()  {}
func (TransferFailed) inEvent() {}
func (TimerExpired) inEvent()   {}

// OutEvent is a command the scheduler asks its driver to execute.
type OutEvent interface{ outEvent() }

type StartDial struct{ Node NodeID }

type DropConnection struct{ Node NodeID }

type StartTransfer struct{ Transfer Transfer }

type RegisterTimer struct {
	Duration time.Duration
	Timer    Timer
}

func (StartDial) outEvent()      {}
func (DropConnection) outEvent() {}
func (StartTransfer) outEvent()  {}
func (RegisterTimer) outEvent()  {}
