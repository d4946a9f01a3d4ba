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

// Package metrics exposes prometheus counters/gauges for the replica store
// and download scheduler. No HTTP server is built here — serving metrics is
// part of the out-of-scope RPC surface; callers mount Registry on their own
// mux.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the package-level registry every metric here is registered
// on. Callers expose it however they like (promhttp.HandlerFor, a push
// gateway, etc).
var Registry = prometheus.NewRegistry()

var (
	StorePutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docsync_store_puts_total",
		Help: "Total number of Put calls accepted by the replica store.",
	})
	StoreRemovesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docsync_store_removes_total",
		Help: "Total number of Remove calls against the replica store.",
	})
	StoreTxTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docsync_store_tx_total",
		Help: "Total number of transactions opened against the replica store, by kind.",
	}, []string{"kind"})

	SchedulerActiveTransfers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docsync_scheduler_active_transfers",
		Help: "Current number of in-flight transfers across all nodes.",
	})
	SchedulerDialsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docsync_scheduler_dials_total",
		Help: "Total number of StartDial commands emitted by the scheduler.",
	})
	SchedulerNodeFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docsync_scheduler_node_failures_total",
		Help: "Total number of node failures handled by the scheduler, by kind.",
	}, []string{"kind"})
)

func init() {
	Registry.MustRegister(
		StorePutsTotal,
		StoreRemovesTotal,
		StoreTxTotal,
		SchedulerActiveTransfers,
		SchedulerDialsTotal,
		SchedulerNodeFailuresTotal,
	)
}
