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

package series

import (
	"github.com/solarisdb/tsfs/chunkfile"
	"github.com/solarisdb/tsfs/golibs/container/iterable"
)

var _ iterable.Iterator[chunkfile.Entry] = (*RangeIterator)(nil)

// rangeSeg is one chunk's contribution to a RangeIterator: the pinned handle,
// its release function, and the [start,end) slice of entry indices in range.
// isLast marks the segment backed by the series' still-open last chunk, whose
// end bound must be re-evaluated against live appends rather than trusted once.
type rangeSeg struct {
	chunk   chunkfile.ChunkFile
	release func()
	isLast  bool
	start   int
	end     int
}

// RangeIterator walks entries with ts_from <= ts <= ts_to across every chunk
// the range spans, holding each spanned chunk pinned until Close. It is not
// safe for concurrent use by multiple goroutines.
type RangeIterator struct {
	tsFrom uint64
	tsTo   uint64
	segs   []rangeSeg
	seg    int
	pos    int
	closed bool
}

// HasNext reports whether a further call to Next will return an entry. For the
// segment backed by the series' open last chunk, the upper bound is
// re-evaluated against the chunk's current max_ts on every call, so entries
// appended after the iterator was created but before it reaches that segment
// are still visible.
func (ri *RangeIterator) HasNext() bool {
	for ri.seg < len(ri.segs) {
		s := &ri.segs[ri.seg]
		if s.isLast {
			s.end = s.chunk.FindRight(ri.tsTo)
		}
		if ri.pos < s.end {
			return true
		}
		ri.seg++
		if ri.seg < len(ri.segs) {
			ri.pos = ri.segs[ri.seg].start
		}
	}
	return false
}

// Next returns the next entry in the range, or (Entry{}, false) if exhausted.
func (ri *RangeIterator) Next() (chunkfile.Entry, bool) {
	if !ri.HasNext() {
		return chunkfile.Entry{}, false
	}
	s := &ri.segs[ri.seg]
	e, err := s.chunk.Get(ri.pos)
	if err != nil {
		return chunkfile.Entry{}, false
	}
	ri.pos++
	return e, true
}

// Close releases every chunk pin this iterator holds. It is idempotent.
func (ri *RangeIterator) Close() error {
	if ri.closed {
		return nil
	}
	ri.closed = true
	for _, s := range ri.segs {
		s.release()
	}
	return nil
}
