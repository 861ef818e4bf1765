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

package database

import (
	"fmt"

	"github.com/solarisdb/tsfs/chunkfile"
	"github.com/solarisdb/tsfs/golibs/container/iterable"
	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/solarisdb/tsfs/series"
)

// MergedEntry is one entry out of a MergeSeries walk, tagged with the name of
// the fixed series it came from.
type MergedEntry struct {
	Series string
	chunkfile.Entry
}

// taggedIterator pairs a RangeIterator with the series name it was opened
// for, so mixing several of them together doesn't lose provenance.
type taggedIterator struct {
	name string
	it   *series.RangeIterator
}

var _ iterable.Iterator[MergedEntry] = (*taggedIterator)(nil)

func (ti *taggedIterator) HasNext() bool { return ti.it.HasNext() }

func (ti *taggedIterator) Next() (MergedEntry, bool) {
	e, ok := ti.it.Next()
	if !ok {
		return MergedEntry{}, false
	}
	return MergedEntry{Series: ti.name, Entry: e}, true
}

func (ti *taggedIterator) Close() error { return ti.it.Close() }

func ascendingMergedEntries(e1, e2 MergedEntry) bool { return e1.Ts <= e2.Ts }

// MergeSeries opens a [tsFrom, tsTo] RangeIterator against every named fixed
// series and merges them into a single timestamp-ascending iterator, pairwise
// tree-combined via iterable.Mixer the same way a fan-out query across many
// logs is merged into one ordered stream. Closing the returned iterator closes
// every underlying series iterator.
func (db *Database) MergeSeries(tsFrom, tsTo uint64, names ...string) (iterable.Iterator[MergedEntry], error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("merge_series requires at least one series name: %w", tserrors.ErrInvalid)
	}
	its := make([]iterable.Iterator[MergedEntry], len(names))
	for i, name := range names {
		s, err := db.GetSeries(name)
		if err != nil {
			for j := 0; j < i; j++ {
				its[j].Close()
			}
			return nil, err
		}
		ri, err := s.IterateRange(tsFrom, tsTo)
		if err != nil {
			for j := 0; j < i; j++ {
				its[j].Close()
			}
			return nil, err
		}
		its[i] = &taggedIterator{name: name, it: ri}
	}

	for len(its) > 1 {
		for i := 0; i < len(its)-1; i += 2 {
			m := &iterable.Mixer[MergedEntry]{}
			m.Init(ascendingMergedEntries, its[i], its[i+1])
			its[i/2] = m
		}
		if len(its)&1 == 1 {
			its[len(its)/2] = its[len(its)-1]
			its = its[:len(its)/2+1]
		} else {
			its = its[:len(its)/2]
		}
	}
	return its[0], nil
}
