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

package varlen

import (
	"fmt"
	"math"

	"github.com/solarisdb/tsfs/golibs/container/iterable"
	"github.com/solarisdb/tsfs/series"
)

// RangeIterator walks reassembled VarlenEntry values with ts_from <= ts <= ts_to.
// It drives sub-series 0 forward and, on every full (flag 0) piece, pulls the
// matching-by-position next entry from each subsequent sub-series until a
// nonzero flag piece completes the value, using its valid-byte count to trim
// any trailing padding; entries before ts_from are still walked (to keep
// sub-series cursors aligned) but not yielded.
type RangeIterator struct {
	vs      *VarlenSeries
	its     []*series.RangeIterator
	tsFrom  uint64
	tsTo    uint64
	next    *VarlenEntry
	done    bool
	started bool
	closed  bool
}

var _ iterable.Iterator[VarlenEntry] = (*RangeIterator)(nil)

func (ri *RangeIterator) ensureIter(i int) (*series.RangeIterator, error) {
	if ri.its[i] != nil {
		return ri.its[i], nil
	}
	s, err := ri.vs.subSeries(i)
	if err != nil {
		return nil, err
	}
	it, err := s.IterateRange(0, math.MaxUint64)
	if err != nil {
		return nil, err
	}
	ri.its[i] = it
	return it, nil
}

func (ri *RangeIterator) readOne(ts0 uint64, first []byte) (VarlenEntry, error) {
	profile := ri.vs.meta.LengthProfile
	last := len(profile) - 1
	var buf []byte
	for i := 0; i <= last; i++ {
		it, err := ri.ensureIter(i)
		if err != nil {
			return VarlenEntry{}, err
		}
		for {
			piece := first
			first = nil
			if piece == nil {
				e, ok := it.Next()
				if !ok {
					return VarlenEntry{}, fmt.Errorf("varlen series %s: sub-series %d exhausted mid-value at ts=%d", ri.vs.dir, i, ts0)
				}
				piece = e.Payload
			}
			flag := piece[0]
			if flag == 0 {
				buf = append(buf, piece[1:]...)
				if i == last {
					continue // tail sub-series repeats until a final piece completes the value
				}
				break // full piece consumed in this tier, move to the next sub-series
			}
			validLen := int(flag) - 1
			buf = append(buf, piece[1:1+validLen]...)
			return VarlenEntry{Ts: ts0, payload: buf}, nil
		}
	}
	return VarlenEntry{Ts: ts0, payload: buf}, nil
}

func (ri *RangeIterator) advance() error {
	if ri.vs == nil || ri.its[0] == nil {
		ri.done = true
		return nil
	}
	for ri.its[0].HasNext() {
		e0, ok := ri.its[0].Next()
		if !ok {
			break
		}
		v, err := ri.readOne(e0.Ts, e0.Payload)
		if err != nil {
			return err
		}
		if e0.Ts > ri.tsTo {
			ri.done = true
			return nil
		}
		if e0.Ts < ri.tsFrom {
			continue
		}
		ri.next = &v
		return nil
	}
	ri.done = true
	return nil
}

// HasNext reports whether a further call to Next will return a value.
func (ri *RangeIterator) HasNext() bool {
	if !ri.started {
		ri.started = true
		if err := ri.advance(); err != nil {
			ri.done = true
		}
	}
	return !ri.done && ri.next != nil
}

// Next returns the next reassembled value in range, or (VarlenEntry{}, false) if exhausted.
func (ri *RangeIterator) Next() (VarlenEntry, bool) {
	if !ri.HasNext() {
		return VarlenEntry{}, false
	}
	v := *ri.next
	ri.next = nil
	if err := ri.advance(); err != nil {
		ri.done = true
	}
	return v, true
}

// Close releases every sub-series iterator this RangeIterator holds. It is idempotent.
func (ri *RangeIterator) Close() error {
	if ri.closed {
		return nil
	}
	ri.closed = true
	var firstErr error
	for _, it := range ri.its {
		if it == nil {
			continue
		}
		if err := it.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
