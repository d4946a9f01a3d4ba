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

package storedir

import (
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDirAndLocks(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data")
	d, err := Open(base, 1*datasize.GB)
	require.NoError(t, err)
	require.Equal(t, base, d.Path)
	require.Equal(t, int64(1*datasize.GB), d.MapSize)
	require.NoError(t, d.Close())
}

func TestOpenRejectsSecondConcurrentOpener(t *testing.T) {
	base := t.TempDir()
	d1, err := Open(base, 1*datasize.GB)
	require.NoError(t, err)
	defer d1.Close()

	_, err = Open(base, 1*datasize.GB)
	require.Error(t, err)
}

func TestOpenAllowsReopenAfterClose(t *testing.T) {
	base := t.TempDir()
	d1, err := Open(base, 1*datasize.GB)
	require.NoError(t, err)
	require.NoError(t, d1.Close())

	d2, err := Open(base, 1*datasize.GB)
	require.NoError(t, err)
	require.NoError(t, d2.Close())
}

func TestOpenRejectsNonPositiveBudget(t *testing.T) {
	_, err := Open(t.TempDir(), 0)
	require.Error(t, err)
}

func TestDBPathIsUnderDir(t *testing.T) {
	base := t.TempDir()
	d, err := Open(base, 1*datasize.GB)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, filepath.Join(base, "docsync.mdbx"), d.DBPath())
}
