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

import "errors"

var (
	// ErrNotFound is returned when a lookup by exact key finds no row.
	ErrNotFound = errors.New("docstore: not found")

	// ErrNamespaceAlreadyOpen is returned by OpenReplica when the namespace
	// already has an open handle in this process.
	ErrNamespaceAlreadyOpen = errors.New("docstore: namespace already open")

	// ErrNamespaceInUse is returned by RemoveReplica when the namespace still
	// has an open handle.
	ErrNamespaceInUse = errors.New("docstore: namespace in use")

	// ErrSignatureInvalid is returned by Put when the signature collaborator
	// rejects an entry's namespace or author signature.
	ErrSignatureInvalid = errors.New("docstore: signature invalid")
)
