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

// Package config loads the tuning constants named in spec.md §6 from TOML,
// applying documented defaults first.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"
)

// Tunables holds every runtime-adjustable constant of the replica store and
// download scheduler.
type Tunables struct {
	// PeersPerDocCap bounds the per-namespace sync-peers LRU (§4.6).
	PeersPerDocCap int `toml:"peers_per_doc_cap"`

	// MaxConcurrentRequests bounds global in-flight transfers (§4.7/§4.8).
	MaxConcurrentRequests int `toml:"max_concurrent_requests"`
	// MaxConcurrentRequestsPerNode bounds in-flight transfers on one node.
	MaxConcurrentRequestsPerNode int `toml:"max_concurrent_requests_per_node"`
	// MaxOpenConnections bounds nodes in {Connected, Pending{Connecting}}.
	MaxOpenConnections int `toml:"max_open_connections"`

	// InitialRetryCount seeds a node's remaining_retries when the node is
	// first seen.
	InitialRetryCount int `toml:"initial_retry_count"`
	// IdlePeerTimeout is how long a connected, transfer-less node stays
	// connected before DropConnection fires.
	IdlePeerTimeout time.Duration `toml:"idle_peer_timeout"`

	// RetryBaseInterval and RetryMaxInterval parametrise the exponential
	// backoff used to compute Timer::RetryNode's duration.
	RetryBaseInterval time.Duration `toml:"retry_base_interval"`
	RetryMaxInterval  time.Duration `toml:"retry_max_interval"`

	// MapSizeBudget bounds how large the MDBX environment may grow.
	MapSizeBudget datasize.ByteSize `toml:"map_size_budget"`
}

// Defaults returns the tuning constants named in spec.md §6.
func Defaults() Tunables {
	return Tunables{
		PeersPerDocCap:               5,
		MaxConcurrentRequests:        50,
		MaxConcurrentRequestsPerNode: 4,
		MaxOpenConnections:           25,
		InitialRetryCount:            4,
		IdlePeerTimeout:              10 * time.Second,
		RetryBaseInterval:            500 * time.Millisecond,
		RetryMaxInterval:             30 * time.Second,
		MapSizeBudget:                1 * datasize.GB,
	}
}

// Load applies Defaults() and then overlays the TOML document at path, if
// it exists. A missing file is not an error — callers that want a strict
// "file must exist" policy can stat path themselves first.
func Load(path string) (Tunables, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return Tunables{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &t); err != nil {
		return Tunables{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return t, nil
}

// Validate reports the first tunable that is out of range. Every field must
// be strictly positive: a zero cap would make the store or scheduler wedge
// silently rather than fail loudly.
func (t Tunables) Validate() error {
	switch {
	case t.PeersPerDocCap <= 0:
		return fmt.Errorf("config: peers_per_doc_cap must be > 0, got %d", t.PeersPerDocCap)
	case t.MaxConcurrentRequests <= 0:
		return fmt.Errorf("config: max_concurrent_requests must be > 0, got %d", t.MaxConcurrentRequests)
	case t.MaxConcurrentRequestsPerNode <= 0:
		return fmt.Errorf("config: max_concurrent_requests_per_node must be > 0, got %d", t.MaxConcurrentRequestsPerNode)
	case t.MaxOpenConnections <= 0:
		return fmt.Errorf("config: max_open_connections must be > 0, got %d", t.MaxOpenConnections)
	case t.InitialRetryCount <= 0:
		return fmt.Errorf("config: initial_retry_count must be > 0, got %d", t.InitialRetryCount)
	case t.IdlePeerTimeout <= 0:
		return fmt.Errorf("config: idle_peer_timeout must be > 0, got %s", t.IdlePeerTimeout)
	case t.RetryBaseInterval <= 0:
		return fmt.Errorf("config: retry_base_interval must be > 0, got %s", t.RetryBaseInterval)
	case t.RetryMaxInterval <= 0:
		return fmt.Errorf("config: retry_max_interval must be > 0, got %s", t.RetryMaxInterval)
	case t.MapSizeBudget <= 0:
		return fmt.Errorf("config: map_size_budget must be > 0, got %s", t.MapSizeBudget)
	}
	return nil
}
