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
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/solarisdb/tsfs/golibs/container/iterable"
	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/solarisdb/tsfs/golibs/files"
	"github.com/solarisdb/tsfs/golibs/logging"
)

// gzipChunk is the compressed, descriptor-only ChunkFile variant. Appends are
// buffered in memory; the whole logical content is (re-)compressed and written
// atomically (tempfile + rename) on Sync or Close. There is no mmap backend and
// no in-place append: a partially written compressed stream is unrecoverable,
// so every flush replaces the file wholesale.
type gzipChunk struct {
	mu         sync.RWMutex
	path       string
	blockSize  uint32
	maxEntries int
	level      int
	idx        *chunkIndex
	payloads   [][]byte
	dirty      bool
	closed     bool
	logger     logging.Logger
}

var _ ChunkFile = (*gzipChunk)(nil)

// CreateGzipChunk creates a new gzip-backed chunk with first_ts/first_payload as entry 0.
func CreateGzipChunk(path string, firstTs uint64, firstPayload []byte, blockSize uint32, maxEntries int, level int) (ChunkFile, error) {
	if len(firstPayload) != int(blockSize) {
		return nil, fmt.Errorf("first payload length %d != block_size %d: %w", len(firstPayload), blockSize, tserrors.ErrInvalid)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("chunk %s: %w", path, tserrors.ErrExist)
	}
	gc := &gzipChunk{
		path:       path,
		blockSize:  blockSize,
		maxEntries: maxEntries,
		level:      normalizeLevel(level),
		idx:        newChunkIndex(16),
		payloads:   make([][]byte, 0, 16),
		logger:     logging.NewLogger("chunkfile.GzipChunk"),
	}
	if err := gc.Append(firstTs, firstPayload); err != nil {
		return nil, err
	}
	if err := gc.flush(); err != nil {
		return nil, err
	}
	return gc, nil
}

// OpenGzipChunk opens an existing gzip chunk, decompressing its whole content into memory.
func OpenGzipChunk(path string, maxEntries int, level int) (ChunkFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", path, tserrors.ErrNotExist)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("could not open gzip stream %s: %w", path, tserrors.ErrCorruption)
	}
	raw, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("could not decompress chunk %s: %w", path, tserrors.ErrCorruption)
	}
	if err := gr.Close(); err != nil {
		return nil, fmt.Errorf("could not close gzip stream %s: %w", path, tserrors.ErrCorruption)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("chunk %s shorter than header: %w", path, tserrors.ErrCorruption)
	}

	blockSize := binary.LittleEndian.Uint32(raw[0:headerSize])
	entryLen := 8 + int64(blockSize)
	body := raw[headerSize:]
	if int64(len(body))%entryLen != 0 {
		return nil, fmt.Errorf("chunk %s body not a multiple of entry size: %w", path, tserrors.ErrCorruption)
	}
	n := int(int64(len(body)) / entryLen)

	gc := &gzipChunk{
		path:       path,
		blockSize:  blockSize,
		maxEntries: maxEntries,
		level:      normalizeLevel(level),
		idx:        newChunkIndex(n),
		payloads:   make([][]byte, 0, n),
		logger:     logging.NewLogger("chunkfile.GzipChunk"),
	}
	var prevTs uint64
	for i := 0; i < n; i++ {
		off := int64(i) * entryLen
		ts := binary.LittleEndian.Uint64(body[off : off+8])
		if i > 0 && ts < prevTs {
			return nil, fmt.Errorf("chunk %s: entry %d ts %d < preceding %d: %w", path, i, ts, prevTs, tserrors.ErrCorruption)
		}
		prevTs = ts
		payload := make([]byte, blockSize)
		copy(payload, body[off+8:off+8+int64(blockSize)])
		gc.idx.Append(ts)
		gc.payloads = append(gc.payloads, payload)
	}
	return gc, nil
}

func normalizeLevel(level int) int {
	if level <= 0 {
		return gzip.DefaultCompression
	}
	if level > gzip.BestCompression {
		return gzip.BestCompression
	}
	return level
}

func (gc *gzipChunk) Path() string { return gc.path }

func (gc *gzipChunk) Len() int {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.idx.Len()
}

func (gc *gzipChunk) MinTs() uint64 {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.idx.MinTs()
}

func (gc *gzipChunk) MaxTs() uint64 {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.idx.MaxTs()
}

func (gc *gzipChunk) FindLeft(ts uint64) int {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.idx.FindLeft(ts)
}

func (gc *gzipChunk) FindRight(ts uint64) int {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.idx.FindRight(ts)
}

func (gc *gzipChunk) PhysicalSize() int64 {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	fi, err := os.Stat(gc.path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (gc *gzipChunk) Get(i int) (Entry, error) {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	if i < 0 || i >= gc.idx.Len() {
		return Entry{}, fmt.Errorf("index %d out of range [0,%d): %w", i, gc.idx.Len(), tserrors.ErrInvalid)
	}
	return Entry{Ts: gc.idx.At(i), Payload: gc.payloads[i]}, nil
}

func (gc *gzipChunk) effectiveCapacity() int {
	if gc.maxEntries > 0 {
		return gc.maxEntries
	}
	return int(^uint(0) >> 1) // unbounded when no cap supplied
}

func (gc *gzipChunk) Append(ts uint64, payload []byte) error {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if len(payload) != int(gc.blockSize) {
		return fmt.Errorf("payload length %d != block_size %d: %w", len(payload), gc.blockSize, tserrors.ErrInvalid)
	}
	if gc.idx.Len() > 0 && ts < gc.idx.MaxTs() {
		return fmt.Errorf("ts %d < max_ts %d: %w", ts, gc.idx.MaxTs(), tserrors.ErrInvalid)
	}
	if gc.idx.Len() >= gc.effectiveCapacity() {
		return tserrors.ErrExhausted
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	gc.idx.Append(ts)
	gc.payloads = append(gc.payloads, cp)
	gc.dirty = true
	return nil
}

func (gc *gzipChunk) Sync() error {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.flush()
}

// flush (re-)compresses the whole logical content and writes it atomically via a
// tempfile-then-rename, so a crash mid-write never leaves a truncated gzip stream
// in the chunk's well-known path.
func (gc *gzipChunk) flush() error {
	var raw bytes.Buffer
	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr, gc.blockSize)
	raw.Write(hdr)
	entry := make([]byte, 8+gc.blockSize)
	for i := 0; i < gc.idx.Len(); i++ {
		binary.LittleEndian.PutUint64(entry[0:8], gc.idx.At(i))
		copy(entry[8:], gc.payloads[i])
		raw.Write(entry)
	}

	dir := filepath.Dir(gc.path)
	tmp := files.TempName(dir, filepath.Base(gc.path)+"-")
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("could not create temp chunk %s: %w", tmp, err)
	}
	gw, err := gzip.NewWriterLevel(f, gc.level)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not create gzip writer for %s: %w", tmp, err)
	}
	if _, err := gw.Write(raw.Bytes()); err != nil {
		gw.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not write gzip chunk %s: %w", tmp, err)
	}
	if err := gw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not finalize gzip chunk %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not sync gzip chunk %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not close gzip chunk %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, gc.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not rename gzip chunk %s to %s: %w", tmp, gc.path, err)
	}
	gc.dirty = false
	return nil
}

func (gc *gzipChunk) Close() error {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.closed {
		return nil
	}
	gc.closed = true
	if gc.dirty {
		return gc.flush()
	}
	return nil
}

func (gc *gzipChunk) Iter() iterable.Iterator[Entry] {
	return &gzipChunkIterator{gc: gc}
}

func (gc *gzipChunk) String() string {
	return fmt.Sprintf("gzipChunk{path=%s, len=%d}", gc.path, gc.Len())
}

type gzipChunkIterator struct {
	gc *gzipChunk
	i  int
}

func (it *gzipChunkIterator) HasNext() bool {
	return it.i < it.gc.Len()
}

func (it *gzipChunkIterator) Next() (Entry, bool) {
	e, err := it.gc.Get(it.i)
	if err != nil {
		return Entry{}, false
	}
	it.i++
	return e, true
}

func (it *gzipChunkIterator) Close() error { return nil }
