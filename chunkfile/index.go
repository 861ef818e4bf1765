// Copyright 2024 The Solaris Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunkfile

import "sort"

// chunkIndex is the in-memory sorted timestamp directory over a chunk's
// entries. It only shrinks through Truncate.
type chunkIndex struct {
	ts []uint64
}

func newChunkIndex(capHint int) *chunkIndex {
	return &chunkIndex{ts: make([]uint64, 0, capHint)}
}

func (ci *chunkIndex) Len() int { return len(ci.ts) }

func (ci *chunkIndex) MinTs() uint64 {
	if len(ci.ts) == 0 {
		return 0
	}
	return ci.ts[0]
}

func (ci *chunkIndex) MaxTs() uint64 {
	if len(ci.ts) == 0 {
		return 0
	}
	return ci.ts[len(ci.ts)-1]
}

func (ci *chunkIndex) At(i int) uint64 { return ci.ts[i] }

func (ci *chunkIndex) Append(ts uint64) { ci.ts = append(ci.ts, ts) }

// Truncate drops all entries from index n onward.
func (ci *chunkIndex) Truncate(n int) { ci.ts = ci.ts[:n] }

// FindLeft is a standard lower_bound: the smallest i with ts[i] >= ts.
func (ci *chunkIndex) FindLeft(ts uint64) int {
	return sort.Search(len(ci.ts), func(i int) bool { return ci.ts[i] >= ts })
}

// FindRight is a standard upper_bound: the smallest i with ts[i] > ts.
func (ci *chunkIndex) FindRight(ts uint64) int {
	return sort.Search(len(ci.ts), func(i int) bool { return ci.ts[i] > ts })
}
