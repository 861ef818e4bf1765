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
	"bytes"
	"hash/fnv"
)

// VarlenEntry is a reassembled variable-length value for one timestamp, along
// with byte-level view operations over its content.
type VarlenEntry struct {
	Ts      uint64
	payload []byte
}

// ToBytes returns the entry's full reassembled payload.
func (e VarlenEntry) ToBytes() []byte { return e.payload }

// Len returns the number of bytes in the entry.
func (e VarlenEntry) Len() int { return len(e.payload) }

// GetByteAt returns the byte at index i.
func (e VarlenEntry) GetByteAt(i int) byte { return e.payload[i] }

// Slice returns the sub-range [a,b) of the entry's bytes.
func (e VarlenEntry) Slice(a, b int) []byte { return e.payload[a:b] }

// StartsWith reports whether the entry's payload begins with prefix.
func (e VarlenEntry) StartsWith(prefix []byte) bool { return bytes.HasPrefix(e.payload, prefix) }

// EndsWith reports whether the entry's payload ends with suffix.
func (e VarlenEntry) EndsWith(suffix []byte) bool { return bytes.HasSuffix(e.payload, suffix) }

// Compare gives the entry a total lexicographic order over its byte content,
// falling back to timestamp when the payloads are equal.
func (e VarlenEntry) Compare(o VarlenEntry) int {
	if c := bytes.Compare(e.payload, o.payload); c != 0 {
		return c
	}
	if e.Ts < o.Ts {
		return -1
	}
	if e.Ts > o.Ts {
		return 1
	}
	return 0
}

// Equal reports whether two entries carry identical byte content.
func (e VarlenEntry) Equal(o VarlenEntry) bool { return bytes.Equal(e.payload, o.payload) }

// Hash returns a content hash of the entry's payload, suitable for use as a map key.
func (e VarlenEntry) Hash() uint64 {
	h := fnv.New64a()
	h.Write(e.payload)
	return h.Sum64()
}
