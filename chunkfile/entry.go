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

import (
	"github.com/solarisdb/tsfs/golibs/container/iterable"
)

type (
	// Entry is a single (timestamp, payload) pair, the smallest unit of append/read.
	Entry struct {
		Ts      uint64
		Payload []byte
	}

	// AccessMode selects how a normal chunk's body is read and written.
	AccessMode int

	// ChunkFile is the on-disk chunk abstraction: a random-access sequence of
	// entries with O(log n) timestamp search and bounded-time tail append.
	ChunkFile interface {
		// Path returns the chunk's file path.
		Path() string
		// Len returns the current number of entries.
		Len() int
		// MinTs returns the first entry's timestamp. Valid only if Len() > 0.
		MinTs() uint64
		// MaxTs returns the last entry's timestamp. Valid only if Len() > 0.
		MaxTs() uint64
		// Get returns the entry at index i. The Payload slice may alias internal
		// storage (mmap mode) and must not be retained past the next mutating call.
		Get(i int) (Entry, error)
		// Iter returns a lazy iterator over entries in index order.
		Iter() iterable.Iterator[Entry]
		// Append adds a new entry at the tail. Returns tserrors.ErrExhausted
		// (internal, never surfaced past Series) when the chunk cannot accept more
		// entries at its current capacity.
		Append(ts uint64, payload []byte) error
		// FindLeft returns the smallest i with entries[i].Ts >= ts (lower_bound).
		FindLeft(ts uint64) int
		// FindRight returns the smallest i with entries[i].Ts > ts (upper_bound).
		FindRight(ts uint64) int
		// Sync flushes buffered/mapped writes to the OS.
		Sync() error
		// Close releases resources, padding the physical file to a whole page as needed.
		Close() error
		// PhysicalSize returns the chunk file's current physical size in bytes.
		PhysicalSize() int64
	}
)

const (
	// ModeMmap backs reads/writes through a memory-mapped region.
	ModeMmap AccessMode = iota
	// ModeDescriptor backs reads/writes through positioned file I/O.
	ModeDescriptor
)

func (m AccessMode) String() string {
	if m == ModeMmap {
		return "mmap"
	}
	return "descriptor"
}
