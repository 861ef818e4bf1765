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

// Package varlen stores variable-length payloads on top of a cascade of
// fixed-size series, splitting each value across sub-series indexed 0..N-1
// by a length profile, with a 1-byte flag prefixing each piece that marks it
// as either full-with-more-to-come or final-with-a-valid-byte-count.
package varlen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/solarisdb/tsfs/golibs/container"
	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/solarisdb/tsfs/golibs/logging"
	"github.com/solarisdb/tsfs/series"
)

const metadataFileName = "metadata.txt"

// maxPieceLen bounds each length_profile entry so the leading byte of every
// piece can double as both a continuation marker and, for the final piece of
// a value, the count of valid bytes it carries (1..maxPieceLen+1, reserving 0
// for "full piece, more follow").
const maxPieceLen = 254

// Metadata is the small JSON object a varlen series directory carries at metadata.txt.
type Metadata struct {
	LengthProfile     []uint32 `json:"length_profile"`
	MaxEntriesPerChunk uint32  `json:"max_entries_per_chunk"`
	TempFileForVarlen  int     `json:"temp_file_for_varlen"`
	GzipLevel          int     `json:"gzip_level"`
}

func metadataPath(dir string) string { return filepath.Join(dir, metadataFileName) }

func loadMetadata(dir string) (Metadata, error) {
	raw, err := os.ReadFile(metadataPath(dir))
	if err != nil {
		return Metadata{}, fmt.Errorf("could not read metadata for %s: %w", dir, tserrors.ErrCorruption)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("could not parse metadata for %s: %w", dir, tserrors.ErrCorruption)
	}
	if len(m.LengthProfile) == 0 {
		return Metadata{}, fmt.Errorf("metadata for %s has an empty length_profile: %w", dir, tserrors.ErrCorruption)
	}
	return m, nil
}

func saveMetadata(dir string, m Metadata) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode metadata for %s: %w", dir, err)
	}
	if err := os.WriteFile(metadataPath(dir), raw, 0640); err != nil {
		return fmt.Errorf("could not write metadata for %s: %w", dir, err)
	}
	return nil
}

// VarlenSeries stores variable-length payloads by splitting each value across a
// cascade of fixed-size sub-series, the last of which repeats to absorb any tail.
type VarlenSeries struct {
	dir    string
	meta   Metadata
	subs   []*series.Series
	logger logging.Logger
}

func subDir(dir string, i int) string {
	return filepath.Join(dir, strconv.Itoa(i))
}

// CreateVarlenSeries creates a new varlen series directory at dir. It fails with
// tserrors.ErrExist if dir already exists, or tserrors.ErrInvalid if profile is empty.
func CreateVarlenSeries(dir string, profile []uint32, maxEntriesPerChunk uint32, tempFileForVarlen int, gzipLevel int) (*VarlenSeries, error) {
	if len(profile) == 0 {
		return nil, fmt.Errorf("length_profile must not be empty: %w", tserrors.ErrInvalid)
	}
	for _, l := range profile {
		if l == 0 || l > maxPieceLen {
			return nil, fmt.Errorf("length_profile entries must be in [1,%d]: %w", maxPieceLen, tserrors.ErrInvalid)
		}
	}
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("varlen series %s: %w", dir, tserrors.ErrExist)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("could not create varlen series dir %s: %w", dir, err)
	}
	// Copy profile so the caller mutating its slice afterward can't reach into
	// the metadata this series persists and keeps open in memory.
	meta := Metadata{LengthProfile: container.SliceCopy(profile), MaxEntriesPerChunk: maxEntriesPerChunk, TempFileForVarlen: tempFileForVarlen, GzipLevel: gzipLevel}
	if err := saveMetadata(dir, meta); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	vs := &VarlenSeries{dir: dir, meta: meta, logger: logging.NewLogger("varlen.VarlenSeries")}
	vs.subs = make([]*series.Series, len(profile))
	last := len(profile) - 1
	for i, l := range profile {
		if i == last && tempFileForVarlen == 0 {
			continue // tail sub-series is created lazily on first overflow into it
		}
		s, err := series.CreateSeries(subDir(dir, i), 1+l, maxEntriesPerChunk, 0, gzipLevel, 0)
		if err != nil {
			vs.Close()
			os.RemoveAll(dir)
			return nil, err
		}
		vs.subs[i] = s
	}
	return vs, nil
}

// OpenVarlenSeries opens an existing varlen series directory.
func OpenVarlenSeries(dir string, maxOpenChunks int) (*VarlenSeries, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("varlen series %s: %w", dir, tserrors.ErrNotExist)
	}
	meta, err := loadMetadata(dir)
	if err != nil {
		return nil, err
	}
	vs := &VarlenSeries{dir: dir, meta: meta, logger: logging.NewLogger("varlen.VarlenSeries")}
	vs.subs = make([]*series.Series, len(meta.LengthProfile))
	for i := range meta.LengthProfile {
		if _, err := os.Stat(subDir(dir, i)); err != nil {
			continue // tail sub-series not yet created
		}
		s, err := series.OpenSeries(subDir(dir, i), maxOpenChunks)
		if err != nil {
			vs.Close()
			return nil, err
		}
		vs.subs[i] = s
	}
	return vs, nil
}

func (vs *VarlenSeries) subSeries(i int) (*series.Series, error) {
	if vs.subs[i] != nil {
		return vs.subs[i], nil
	}
	profile := vs.meta.LengthProfile
	s, err := series.CreateSeries(subDir(vs.dir, i), 1+profile[i], vs.meta.MaxEntriesPerChunk, 0, vs.meta.GzipLevel, 0)
	if err != nil {
		return nil, err
	}
	vs.subs[i] = s
	return s, nil
}

// Append splits payload across the sub-series cascade per the length profile.
// Each piece is prefixed with a flag byte: 0 means the piece fills the full
// length_profile[i] bytes and more pieces follow; a nonzero value v means this
// is the final piece of the value and carries v-1 valid bytes (the rest of the
// piece is zero padding). Only the last sub-series repeats, absorbing any tail
// once every earlier tier has been filled.
func (vs *VarlenSeries) Append(ts uint64, payload []byte) error {
	profile := vs.meta.LengthProfile
	last := len(profile) - 1
	off := 0
	for i := 0; i <= last; i++ {
		l := int(profile[i])
		for {
			end := off + l
			if end > len(payload) {
				end = len(payload)
			}
			final := end >= len(payload)
			if err := vs.appendPiece(i, ts, payload[off:end], final); err != nil {
				return err
			}
			off = end
			if final {
				return nil
			}
			if i != last {
				break
			}
		}
	}
	return nil
}

func (vs *VarlenSeries) appendPiece(i int, ts uint64, data []byte, final bool) error {
	s, err := vs.subSeries(i)
	if err != nil {
		return err
	}
	l := int(vs.meta.LengthProfile[i])
	piece := make([]byte, 1+l)
	if final {
		piece[0] = byte(len(data) + 1)
	}
	copy(piece[1:], data)
	return s.Append(ts, piece)
}

// LastEntryTs returns the timestamp of the most recently appended value.
func (vs *VarlenSeries) LastEntryTs() (uint64, bool) {
	if vs.subs[0] == nil {
		return 0, false
	}
	return vs.subs[0].LastEntryTs()
}

// Sync flushes every materialized sub-series.
func (vs *VarlenSeries) Sync() error {
	for _, s := range vs.subs {
		if s == nil {
			continue
		}
		if err := s.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every materialized sub-series.
func (vs *VarlenSeries) Close() error {
	var firstErr error
	for _, s := range vs.subs {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Delete closes every sub-series and removes the varlen series directory recursively.
func (vs *VarlenSeries) Delete() error {
	vs.Close()
	if err := os.RemoveAll(vs.dir); err != nil {
		return fmt.Errorf("could not delete varlen series %s: %w", vs.dir, err)
	}
	return nil
}

// IterateRange returns a RangeIterator over values with ts_from <= ts <= ts_to.
func (vs *VarlenSeries) IterateRange(tsFrom, tsTo uint64) (*RangeIterator, error) {
	if tsFrom > tsTo {
		return nil, fmt.Errorf("ts_from %d > ts_to %d: %w", tsFrom, tsTo, tserrors.ErrInvalid)
	}
	ri := &RangeIterator{vs: vs, its: make([]*series.RangeIterator, len(vs.subs)), tsFrom: tsFrom, tsTo: tsTo}
	if vs.subs[0] == nil {
		ri.done = true
		ri.started = true
		return ri, nil
	}
	if _, err := ri.ensureIter(0); err != nil {
		return nil, err
	}
	return ri, nil
}
