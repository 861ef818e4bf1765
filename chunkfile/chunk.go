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
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/solarisdb/tsfs/golibs/container/iterable"
	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/solarisdb/tsfs/golibs/files"
	"github.com/solarisdb/tsfs/golibs/logging"
)

// headerSize is the length of the fixed chunk header: a little-endian uint32 block_size.
const headerSize = 4

// footerSize is the length of the advisory entry-count footer written at Close.
const footerSize = 8

// chunkDataOffset is where entry 0 starts in a normalChunk file. The footer
// lives between the header and the entry grid so it never aliases an entry
// slot, regardless of how many entries the chunk holds.
const chunkDataOffset = headerSize + footerSize

// DefaultPageSize is the page size new chunks use when a Series is not
// configured with an explicit one.
const DefaultPageSize = files.BlockSize

type (
	// normalChunk is the uncompressed, mmap- or descriptor-backed ChunkFile variant.
	normalChunk struct {
		mu         sync.RWMutex
		path       string
		blockSize  uint32
		entryLen   int64
		pageSize   int64
		mode       AccessMode
		maxEntries int // 0 means bounded by physical capacity only, no auto-grow
		mm         *files.MMFile
		f          *os.File
		physSize   int64
		idx        *chunkIndex
		closed     bool
		logger     logging.Logger
	}
)

var _ ChunkFile = (*normalChunk)(nil)

// CreateNormalChunk creates a new chunk file with first_ts/first_payload as entry 0.
// maxEntries, when positive, is the Series' max_entries_per_chunk and allows the chunk
// to grow beyond a single page up to that many entries; zero/negative bounds the chunk
// to whatever fits in a single pageSize-byte page (matching the lower-level contract
// used directly by callers that don't carry a Series' max_entries_per_chunk).
func CreateNormalChunk(path string, firstTs uint64, firstPayload []byte, pageSize int64, blockSize uint32, maxEntries int, mode AccessMode) (ChunkFile, error) {
	if pageSize <= 0 || pageSize%files.BlockSize != 0 {
		return nil, fmt.Errorf("page_size=%d must be a positive multiple of %d: %w", pageSize, files.BlockSize, tserrors.ErrInvalid)
	}
	if len(firstPayload) != int(blockSize) {
		return nil, fmt.Errorf("first payload length %d != block_size %d: %w", len(firstPayload), blockSize, tserrors.ErrInvalid)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("chunk %s: %w", path, tserrors.ErrExist)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return nil, fmt.Errorf("could not create chunk %s: %w", path, err)
	}
	if err := f.Truncate(pageSize); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("could not allocate chunk %s: %w", path, err)
	}

	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr, blockSize)
	if _, err := f.WriteAt(hdr, 0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("could not write chunk header %s: %w", path, err)
	}
	f.Close()

	c := &normalChunk{
		path:       path,
		blockSize:  blockSize,
		entryLen:   8 + int64(blockSize),
		pageSize:   pageSize,
		mode:       mode,
		maxEntries: maxEntries,
		physSize:   pageSize,
		idx:        newChunkIndex(16),
		logger:     logging.NewLogger("chunkfile.Chunk"),
	}
	if err := c.openBackend(); err != nil {
		os.Remove(path)
		return nil, err
	}
	if err := c.Append(firstTs, firstPayload); err != nil {
		c.Close()
		os.Remove(path)
		return nil, err
	}
	return c, nil
}

// OpenNormalChunk opens an existing chunk file, recovering its entry count via the
// authoritative backward tail-scan (with an advisory footer consulted only for logging).
func OpenNormalChunk(path string, pageSize int64, maxEntries int, mode AccessMode) (ChunkFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", path, tserrors.ErrNotExist)
	}

	c := &normalChunk{
		path:       path,
		pageSize:   pageSize,
		mode:       mode,
		maxEntries: maxEntries,
		physSize:   fi.Size(),
		logger:     logging.NewLogger("chunkfile.Chunk"),
	}
	if err := c.openBackend(); err != nil {
		return nil, err
	}

	hdr, err := c.readAt(0, headerSize)
	if err != nil {
		c.closeBackend()
		return nil, fmt.Errorf("could not read chunk header %s: %w", path, err)
	}
	c.blockSize = binary.LittleEndian.Uint32(hdr)
	c.entryLen = 8 + int64(c.blockSize)

	n, err := c.tailScan()
	if err != nil {
		c.closeBackend()
		return nil, err
	}
	c.idx = newChunkIndex(n)
	for i := 0; i < n; i++ {
		tsBuf, err := c.readAt(chunkDataOffset+int64(i)*c.entryLen, 8)
		if err != nil {
			c.closeBackend()
			return nil, fmt.Errorf("could not read chunk entry %d of %s: %w", i, path, err)
		}
		c.idx.Append(binary.LittleEndian.Uint64(tsBuf))
	}
	c.checkFooter(n)
	return c, nil
}

func (c *normalChunk) openBackend() error {
	switch c.mode {
	case ModeMmap:
		mm, err := files.NewMMFile(c.path, c.physSize)
		if err != nil {
			return fmt.Errorf("could not mmap chunk %s: %w", c.path, err)
		}
		c.mm = mm
	case ModeDescriptor:
		f, err := os.OpenFile(c.path, os.O_RDWR, 0640)
		if err != nil {
			return fmt.Errorf("could not open chunk %s: %w", c.path, err)
		}
		c.f = f
	default:
		return fmt.Errorf("unknown access mode %v: %w", c.mode, tserrors.ErrInvalid)
	}
	return nil
}

func (c *normalChunk) closeBackend() error {
	if c.mm != nil {
		err := c.mm.Close()
		c.mm = nil
		return err
	}
	if c.f != nil {
		err := c.f.Close()
		c.f = nil
		return err
	}
	return nil
}

// tailScan locates the last valid entry by scanning backward from the end of the
// allocated pages past trailing all-zero entry slots. Entry 0 is always considered
// present, since chunk creation guarantees it.
func (c *normalChunk) tailScan() (int, error) {
	maxN := int((c.physSize - chunkDataOffset) / c.entryLen)
	for i := maxN; i > 1; i-- {
		off := chunkDataOffset + int64(i-1)*c.entryLen
		buf, err := c.readAt(off, 8)
		if err != nil {
			return 0, fmt.Errorf("tail scan failed at entry %d of %s: %w", i-1, c.path, err)
		}
		if !isAllZero(buf) {
			return i, nil
		}
	}
	if maxN < 1 {
		return 0, fmt.Errorf("chunk %s has no room for a header entry: %w", c.path, tserrors.ErrCorruption)
	}
	return 1, nil
}

// checkFooter looks for the advisory entry-count footer and logs a mismatch; the
// tail-scan result n is always authoritative and is never overridden here.
func (c *normalChunk) checkFooter(n int) {
	if headerSize+footerSize > c.physSize {
		return
	}
	buf, err := c.readAt(headerSize, footerSize)
	if err != nil {
		return
	}
	if got := binary.LittleEndian.Uint64(buf); got != 0 && got != uint64(n) {
		c.logger.Debugf("chunk %s: footer count %d disagrees with scanned count %d, trusting scan", c.path, got, n)
	}
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func (c *normalChunk) Path() string { return c.path }

func (c *normalChunk) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Len()
}

func (c *normalChunk) MinTs() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.MinTs()
}

func (c *normalChunk) MaxTs() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.MaxTs()
}

func (c *normalChunk) FindLeft(ts uint64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.FindLeft(ts)
}

func (c *normalChunk) FindRight(ts uint64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.FindRight(ts)
}

func (c *normalChunk) PhysicalSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.physSize
}

func (c *normalChunk) Get(i int) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= c.idx.Len() {
		return Entry{}, fmt.Errorf("index %d out of range [0,%d): %w", i, c.idx.Len(), tserrors.ErrInvalid)
	}
	off := chunkDataOffset + int64(i)*c.entryLen
	payload, err := c.readAt(off+8, int(c.blockSize))
	if err != nil {
		return Entry{}, err
	}
	return Entry{Ts: c.idx.At(i), Payload: payload}, nil
}

func (c *normalChunk) physicalCapacity() int {
	return int((c.physSize - chunkDataOffset) / c.entryLen)
}

func (c *normalChunk) effectiveCapacity() int {
	if c.maxEntries > 0 {
		return c.maxEntries
	}
	return c.physicalCapacity()
}

func (c *normalChunk) Append(ts uint64, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(payload) != int(c.blockSize) {
		return fmt.Errorf("payload length %d != block_size %d: %w", len(payload), c.blockSize, tserrors.ErrInvalid)
	}
	if c.idx.Len() > 0 && ts < c.idx.MaxTs() {
		return fmt.Errorf("ts %d < max_ts %d: %w", ts, c.idx.MaxTs(), tserrors.ErrInvalid)
	}

	n := c.idx.Len()
	if n >= c.effectiveCapacity() {
		return tserrors.ErrExhausted
	}

	needed := chunkDataOffset + int64(n+1)*c.entryLen
	if needed > c.physSize {
		if c.maxEntries <= 0 {
			return tserrors.ErrExhausted
		}
		newSize := c.physSize
		for newSize < needed {
			newSize += c.pageSize
		}
		if err := c.grow(newSize); err != nil {
			return err
		}
	}

	off := chunkDataOffset + int64(n)*c.entryLen
	// Payload is written before the timestamp so a crash mid-append leaves the
	// timestamp slot zeroed; the tail-scan then treats it as an uncommitted entry.
	if err := c.writeAt(off+8, payload); err != nil {
		return err
	}
	tsBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBuf, ts)
	if err := c.writeAt(off, tsBuf); err != nil {
		return err
	}
	c.idx.Append(ts)
	return nil
}

func (c *normalChunk) grow(newSize int64) error {
	switch c.mode {
	case ModeMmap:
		if err := c.mm.Grow(newSize); err != nil {
			return fmt.Errorf("could not grow chunk %s to %d: %w", c.path, newSize, err)
		}
	case ModeDescriptor:
		if err := c.f.Truncate(newSize); err != nil {
			return fmt.Errorf("could not grow chunk %s to %d: %w", c.path, newSize, err)
		}
	}
	c.physSize = newSize
	return nil
}

func (c *normalChunk) readAt(off int64, size int) ([]byte, error) {
	if c.mode == ModeMmap {
		return c.mm.Buffer(off, size)
	}
	buf := make([]byte, size)
	if _, err := c.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("could not read chunk %s at %d: %w", c.path, off, err)
	}
	return buf, nil
}

func (c *normalChunk) writeAt(off int64, data []byte) error {
	if c.mode == ModeMmap {
		buf, err := c.mm.Buffer(off, len(data))
		if err != nil {
			return err
		}
		copy(buf, data)
		return nil
	}
	if _, err := c.f.WriteAt(data, off); err != nil {
		return fmt.Errorf("could not write chunk %s at %d: %w", c.path, off, err)
	}
	return nil
}

func (c *normalChunk) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sync()
}

func (c *normalChunk) sync() error {
	if c.mode == ModeMmap {
		return nil
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("could not sync chunk %s: %w", c.path, err)
	}
	return nil
}

// writeFooter writes the advisory entry-count footer into its dedicated slot
// between the header and the entry grid, so it never aliases an entry's
// timestamp field regardless of how many entries the chunk holds.
func (c *normalChunk) writeFooter() {
	if headerSize+footerSize > c.physSize {
		return
	}
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(buf, uint64(c.idx.Len()))
	_ = c.writeAt(headerSize, buf)
}

func (c *normalChunk) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.writeFooter()
	if err := c.sync(); err != nil {
		return err
	}
	err := c.closeBackend()
	c.closed = true
	return err
}

func (c *normalChunk) Iter() iterable.Iterator[Entry] {
	return &chunkIterator{c: c}
}

func (c *normalChunk) String() string {
	return fmt.Sprintf("normalChunk{path=%s, mode=%s, len=%d, physSize=%d}", c.path, c.mode, c.Len(), c.PhysicalSize())
}

type chunkIterator struct {
	c *normalChunk
	i int
}

func (it *chunkIterator) HasNext() bool {
	return it.i < it.c.Len()
}

func (it *chunkIterator) Next() (Entry, bool) {
	e, err := it.c.Get(it.i)
	if err != nil {
		return Entry{}, false
	}
	it.i++
	return e, true
}

func (it *chunkIterator) Close() error { return nil }
