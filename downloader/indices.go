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

import "github.com/google/btree"

// setEntry is one (key, member) row of an orderedSetIndex, ordered first by
// key then by member so iteration within a key is deterministic too —
// reproducible test output was the point of using an ordered structure
// here instead of a plain map of sets.
type setEntry struct {
	key    string
	member string
}

func lessSetEntry(a, b setEntry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.member < b.member
}

// orderedSetIndex is a (key -> set of members) reverse index backed by a
// single btree, keyed by hex-string ids for deterministic iteration order.
// Used for the resource->node, group->node, node->group, group->resource
// and resource->skipped-node indices.
type orderedSetIndex struct {
	tree *btree.BTreeG[setEntry]
}

func newOrderedSetIndex() *orderedSetIndex {
	return &orderedSetIndex{tree: btree.NewG(32, lessSetEntry)}
}

func (idx *orderedSetIndex) add(key, member string) {
	idx.tree.ReplaceOrInsert(setEntry{key: key, member: member})
}

func (idx *orderedSetIndex) remove(key, member string) {
	idx.tree.Delete(setEntry{key: key, member: member})
}

// removeKey deletes every member under key.
func (idx *orderedSetIndex) removeKey(key string) {
	var dead []setEntry
	idx.tree.AscendRange(setEntry{key: key, member: ""}, setEntry{key: key + "\xff", member: ""}, func(e setEntry) bool {
		dead = append(dead, e)
		return true
	})
	for _, e := range dead {
		idx.tree.Delete(e)
	}
}

// removeMember deletes member from every key it appears under — used when
// a node permanently fails and must be struck from every resource/group
// reverse index it was known to.
func (idx *orderedSetIndex) removeMember(member string) {
	var dead []setEntry
	idx.tree.Ascend(func(e setEntry) bool {
		if e.member == member {
			dead = append(dead, e)
		}
		return true
	})
	for _, e := range dead {
		idx.tree.Delete(e)
	}
}

// members returns every member under key, in ascending order.
func (idx *orderedSetIndex) members(key string) []string {
	var out []string
	idx.tree.AscendRange(setEntry{key: key, member: ""}, setEntry{key: key + "\xff", member: ""}, func(e setEntry) bool {
		out = append(out, e.member)
		return true
	})
	return out
}

func (idx *orderedSetIndex) has(key, member string) bool {
	_, ok := idx.tree.Get(setEntry{key: key, member: member})
	return ok
}
