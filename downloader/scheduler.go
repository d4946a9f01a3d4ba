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
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/syncmesh/docsync/metrics"
)

// NodeState enumerates a node's position in spec.md §4.7's state machine.
type NodeState int

const (
	StateDisconnected NodeState = iota
	StatePendingConnecting
	StatePendingRetryTimeout
	StateConnected
)

type nodeInfo struct {
	id               NodeID
	state            NodeState
	remainingRetries int
	failed           bool // permanent failure (DropPeer or retries exhausted)
	activeTransfers  map[TransferID]struct{}
	inDropTimeout    bool
	holdsConnection  bool // true between a successful AllowConnection and its matching Release
}

func newNodeInfo(id NodeID, initialRetries int) *nodeInfo {
	return &nodeInfo{id: id, state: StateDisconnected, remainingRetries: initialRetries, activeTransfers: make(map[TransferID]struct{})}
}

func (n *nodeInfo) shouldReconnect() bool { return n.remainingRetries > 0 }

type resourceInfo struct {
	resource       Resource
	activeTransfer *TransferID
}

// Config parametrises a Scheduler with the tuning constants of spec.md §6.
type Config struct {
	MaxConcurrentRequests        int
	MaxConcurrentRequestsPerNode int
	MaxOpenConnections           int
	InitialRetryCount            int
	IdlePeerTimeout              time.Duration
	RetryBaseInterval            time.Duration
	RetryMaxInterval             time.Duration
}

// Scheduler is the download scheduler state machine: single-threaded,
// cooperative, no internal locks. Handle fully processes one event and
// returns the commands it produced; the caller drains them before the next
// event (spec.md §4.7, §5).
type Scheduler struct {
	cfg     Config
	limiter *Limiter

	nodes     map[NodeID]*nodeInfo
	resources map[ResourceID]*resourceInfo
	transfers map[TransferID]Transfer
	nextID    TransferID

	// Reverse indices, all keyed by hex-string ids for deterministic
	// ordered iteration (spec.md §4.7 EXPANSION).
	resourceNodes  *orderedSetIndex // resource -> nodes directly hinted to have it
	groupNodes     *orderedSetIndex // group -> member nodes
	nodeGroups     *orderedSetIndex // node -> groups it joined
	groupResources *orderedSetIndex // group -> resources associated with it
	skipNodes      *orderedSetIndex // resource -> nodes permanently skipped for it

	out []OutEvent
}

// NewScheduler builds an idle Scheduler from cfg.
func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:            cfg,
		limiter:        NewLimiter(cfg.MaxConcurrentRequests, cfg.MaxConcurrentRequestsPerNode, cfg.MaxOpenConnections),
		nodes:          make(map[NodeID]*nodeInfo),
		resources:      make(map[ResourceID]*resourceInfo),
		transfers:      make(map[TransferID]Transfer),
		resourceNodes:  newOrderedSetIndex(),
		groupNodes:     newOrderedSetIndex(),
		nodeGroups:     newOrderedSetIndex(),
		groupResources: newOrderedSetIndex(),
		skipNodes:      newOrderedSetIndex(),
	}
}

func (s *Scheduler) emit(e OutEvent) { s.out = append(s.out, e) }

// Handle processes one InEvent and returns every OutEvent it produced. The
// returned slice is only valid until the next Handle call.
func (s *Scheduler) Handle(ev InEvent) []OutEvent {
	s.out = s.out[:0]
	switch e := ev.(type) {
	case AddNode:
		s.handleAddNode(e)
	case AddResource:
		s.handleAddResource(e)
	case NodeConnected:
		s.handleNodeConnected(e)
	case NodeFailed:
		s.handleNodeFailed(e, true)
	case TransferReady:
		s.handleTransferReady(e)
	case TransferFailed:
		s.handleTransferFailed(e)
	case TimerExpired:
		s.handleTimerExpired(e)
	}
	metrics.SchedulerActiveTransfers.Set(float64(len(s.transfers)))
	return s.out
}

func (s *Scheduler) getOrCreateNode(id NodeID) *nodeInfo {
	n, ok := s.nodes[id]
	if !ok {
		n = newNodeInfo(id, s.cfg.InitialRetryCount)
		s.nodes[id] = n
	}
	return n
}

func (s *Scheduler) getOrCreateResource(id ResourceID, kind ResourceKind) *resourceInfo {
	r, ok := s.resources[id]
	if !ok {
		r = &resourceInfo{resource: Resource{Hash: id, Kind: kind}}
		s.resources[id] = r
	}
	return r
}

func (s *Scheduler) handleAddNode(e AddNode) {
	n := s.getOrCreateNode(e.Node)
	for _, r := range e.Hints.Resources {
		s.resourceNodes.add(r.String(), n.id.String())
	}
	for _, g := range e.Hints.Groups {
		s.groupNodes.add(g.String(), n.id.String())
		s.nodeGroups.add(n.id.String(), g.String())
	}
	s.maybeDial(n)
	s.fillTransfers(n)
}

func (s *Scheduler) handleAddResource(e AddResource) {
	r := s.getOrCreateResource(e.Resource, e.Kind)
	for _, n := range e.Hints.CandidateNodes {
		s.resourceNodes.add(r.resource.Hash.String(), n.String())
	}
	for _, n := range e.Hints.SkipNodes {
		s.skipNodes.add(r.resource.Hash.String(), n.String())
	}
	for _, g := range e.Hints.Groups {
		s.groupResources.add(g.String(), r.resource.Hash.String())
	}

	for _, nid := range e.Hints.CandidateNodes {
		n := s.getOrCreateNode(nid)
		s.maybeDial(n)
		s.fillTransfers(n)
	}
	// A resource declared only via group hints can make any existing member
	// of that group startable, so re-evaluate every node in those groups too.
	for _, g := range e.Hints.Groups {
		for _, nidHex := range s.groupNodes.members(g.String()) {
			n, ok := s.nodeByHex(nidHex)
			if !ok {
				continue
			}
			s.maybeDial(n)
			s.fillTransfers(n)
		}
	}
}

// nodeByHex looks up a node by its NodeID.String() form, as stored in the
// hex-keyed reverse indices.
func (s *Scheduler) nodeByHex(hexID string) (*nodeInfo, bool) {
	for id, n := range s.nodes {
		if id.String() == hexID {
			return n, true
		}
	}
	return nil, false
}

// maybeDial implements demand-driven dialing (spec.md §4.7): a
// disconnected, non-failed node with at least one startable resource,
// while under max_open_connections, is dialed immediately.
func (s *Scheduler) maybeDial(n *nodeInfo) {
	if n.state != StateDisconnected || n.failed {
		return
	}
	if !s.hasStartableResource(n.id) {
		return
	}
	if !s.limiter.AllowConnection() {
		return
	}
	n.holdsConnection = true
	n.state = StatePendingConnecting
	s.emit(StartDial{Node: n.id})
	metrics.SchedulerDialsTotal.Inc()
}

// hasStartableResource reports whether n has any resource, directly or via
// a shared group, with no active transfer and for which n is not skipped.
func (s *Scheduler) hasStartableResource(n NodeID) bool {
	return s.nextStartableResource(n) != nil
}

// nextStartableResource returns the first (in resource-id order) startable
// resource for n, or nil if none. A resource is a candidate for n when n
// was directly hinted to have it (AddNode's NodeHints.Resources or
// AddResource's ResourceHints.CandidateNodes), or when the resource is
// associated with a group n has joined (AddResource's ResourceHints.Groups
// cross-referenced with n's groupNodes/nodeGroups membership) — "nodes join
// groups rather than enumerate each resource".
func (s *Scheduler) nextStartableResource(n NodeID) *resourceInfo {
	nHex := n.String()
	for _, rid := range s.sortedResourceIDs() {
		ridHex := rid.String()
		if !s.resourceNodes.has(ridHex, nHex) && !s.resourceReachableViaGroup(ridHex, nHex) {
			continue
		}
		r := s.resources[rid]
		if r.activeTransfer != nil {
			continue
		}
		if s.skipNodes.has(ridHex, nHex) {
			continue
		}
		return r
	}
	return nil
}

// resourceReachableViaGroup reports whether n belongs to any group rid is
// associated with.
func (s *Scheduler) resourceReachableViaGroup(ridHex, nHex string) bool {
	for _, gHex := range s.nodeGroups.members(nHex) {
		if s.groupResources.has(gHex, ridHex) {
			return true
		}
	}
	return false
}

// sortedResourceIDs returns every known resource id in ascending byte order,
// so resource selection is deterministic and reproducible across runs.
func (s *Scheduler) sortedResourceIDs() []ResourceID {
	ids := make([]ResourceID, 0, len(s.resources))
	for rid := range s.resources {
		ids = append(ids, rid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (s *Scheduler) handleNodeConnected(e NodeConnected) {
	n := s.getOrCreateNode(e.Node)
	n.state = StateConnected
	s.fillTransfers(n)
}

func (s *Scheduler) handleNodeFailed(e NodeFailed, mayReconnect bool) {
	n := s.getOrCreateNode(e.Node)
	s.failNode(n, mayReconnect)
}

// failNode transitions n out of Connected/Pending into either
// Pending{RetryTimeout} (transient, retry budget allows) or permanently
// Disconnected{failed:true}.
func (s *Scheduler) failNode(n *nodeInfo, mayReconnect bool) {
	s.dropActiveTransfers(n)

	if mayReconnect && n.shouldReconnect() {
		n.remainingRetries--
		n.state = StatePendingRetryTimeout
		d := s.retryDelay(n)
		s.emit(RegisterTimer{Duration: d, Timer: Timer{Kind: TimerRetryNode, Node: n.id}})
		metrics.SchedulerNodeFailuresTotal.WithLabelValues("transient").Inc()
		return
	}

	s.permanentlyFail(n)
	metrics.SchedulerNodeFailuresTotal.WithLabelValues("permanent").Inc()
	s.queueReconnects()
}

// permanentlyFail retires n for good. n only holds the open-connection slot
// reserved in maybeDial if it ever successfully dialed; a node that fails
// (e.g. retries exhausted) before ever clearing AllowConnection holds no
// slot, so releasing unconditionally would over-release the limiter.
func (s *Scheduler) permanentlyFail(n *nodeInfo) {
	n.state = StateDisconnected
	n.failed = true
	n.inDropTimeout = false
	s.resourceNodes.removeMember(n.id.String())
	s.groupNodes.removeMember(n.id.String())
	s.nodeGroups.removeKey(n.id.String())
	s.limiter.dropNode(n.id)
	if n.holdsConnection {
		n.holdsConnection = false
		s.limiter.ReleaseConnection()
	}
	s.emit(DropConnection{Node: n.id})
}

func (s *Scheduler) dropActiveTransfers(n *nodeInfo) {
	for tid := range n.activeTransfers {
		t := s.transfers[tid]
		if r, ok := s.resources[t.Resource]; ok {
			r.activeTransfer = nil
		}
		delete(s.transfers, tid)
		s.limiter.ReleaseTransfer(n.id)
	}
	n.activeTransfers = make(map[TransferID]struct{})
}

// retryDelay derives Timer::RetryNode's duration from an exponential
// backoff seeded by the tuning constants, rather than a fixed interval, so
// repeated transient failures back off instead of hammering a flaky peer.
func (s *Scheduler) retryDelay(n *nodeInfo) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryBaseInterval
	b.MaxInterval = s.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	attempt := s.cfg.InitialRetryCount - n.remainingRetries
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// queueReconnects dials other needed disconnected nodes up to remaining
// connection capacity, after a permanent failure frees headroom.
func (s *Scheduler) queueReconnects() {
	for _, n := range s.nodes {
		if n.state == StateDisconnected && !n.failed {
			s.maybeDial(n)
		}
	}
}

func (s *Scheduler) handleTransferReady(e TransferReady) {
	t, ok := s.transfers[e.ID]
	if !ok {
		return
	}
	s.completeTransfer(t)
	if n, ok := s.nodes[t.Node]; ok {
		s.fillTransfers(n)
	}
}

func (s *Scheduler) handleTransferFailed(e TransferFailed) {
	t, ok := s.transfers[e.ID]
	if !ok {
		return
	}
	s.completeTransfer(t)

	switch e.Failure {
	case FailureNotFound, FailureAbortRequest:
		s.skipNodes.add(t.Resource.String(), t.Node.String())
		if n, ok := s.nodes[t.Node]; ok {
			s.fillTransfers(n)
		}
	case FailureDropPeer:
		if n, ok := s.nodes[t.Node]; ok {
			s.failNode(n, false)
		}
	case FailureRetryLater:
		if n, ok := s.nodes[t.Node]; ok {
			s.failNode(n, true)
		}
	}
}

func (s *Scheduler) completeTransfer(t Transfer) {
	if r, ok := s.resources[t.Resource]; ok {
		r.activeTransfer = nil
	}
	delete(s.transfers, t.ID)
	if n, ok := s.nodes[t.Node]; ok {
		delete(n.activeTransfers, t.ID)
	}
	s.limiter.ReleaseTransfer(t.Node)
}

func (s *Scheduler) handleTimerExpired(e TimerExpired) {
	n, ok := s.nodes[e.Timer.Node]
	if !ok {
		return
	}
	switch e.Timer.Kind {
	case TimerDropConnection:
		if n.inDropTimeout && len(n.activeTransfers) == 0 {
			n.state = StateDisconnected
			n.failed = false
			n.inDropTimeout = false
			if n.holdsConnection {
				n.holdsConnection = false
				s.limiter.ReleaseConnection()
			}
			s.emit(DropConnection{Node: n.id})
		}
	case TimerRetryNode:
		if n.state == StatePendingRetryTimeout {
			n.state = StatePendingConnecting
			s.emit(StartDial{Node: n.id})
			metrics.SchedulerDialsTotal.Inc()
		}
	}
}

// fillTransfers implements spec.md §4.7's transfer-filling algorithm.
func (s *Scheduler) fillTransfers(n *nodeInfo) {
	if n.state != StateConnected {
		return
	}
	remaining := s.cfg.MaxConcurrentRequestsPerNode - len(n.activeTransfers)
	if remaining <= 0 {
		s.maybeArmDropTimer(n)
		return
	}

	started := 0
	for started < remaining {
		r := s.nextStartableResource(n.id)
		if r == nil {
			break
		}
		if !s.limiter.AllowTransfer(n.id) {
			break
		}
		id := s.nextID
		s.nextID++
		t := Transfer{ID: id, Resource: r.resource.Hash, Node: n.id}
		s.transfers[id] = t
		r.activeTransfer = &id
		n.activeTransfers[id] = struct{}{}
		s.emit(StartTransfer{Transfer: t})
		metrics.SchedulerActiveTransfers.Set(float64(len(s.transfers)))
		started++
	}

	s.maybeArmDropTimer(n)
}

func (s *Scheduler) maybeArmDropTimer(n *nodeInfo) {
	if len(n.activeTransfers) == 0 {
		if !n.inDropTimeout {
			n.inDropTimeout = true
			s.emit(RegisterTimer{Duration: s.cfg.IdlePeerTimeout, Timer: Timer{Kind: TimerDropConnection, Node: n.id}})
		}
		return
	}
	n.inDropTimeout = false
}
