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
	"math"
	"os"
	"path/filepath"
	"testing"

	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Series, from, to uint64) []uint64 {
	t.Helper()
	it, err := s.IterateRange(from, to)
	require.NoError(t, err)
	defer it.Close()
	var got []uint64
	for it.HasNext() {
		e, ok := it.Next()
		require.True(t, ok)
		got = append(got, e.Ts)
	}
	return got
}

func TestSeries_TwentyEntriesRangeQueries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test")
	s, err := CreateSeries(dir, 1, 10, 0, 0, 0)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 20; i++ {
		ts := uint64(100 * (i + 1))
		require.NoError(t, s.Append(ts, []byte{byte(127 - i)}))
	}

	assert.Equal(t, 20, len(drain(t, s, 0, 2000)))

	got := drain(t, s, 1500, 2000)
	require.Len(t, got, 5)
	assert.Equal(t, []uint64{1600, 1700, 1800, 1900, 2000}, got)

	got = drain(t, s, 0, 500)
	require.Len(t, got, 5)
	assert.Equal(t, []uint64{100, 200, 300, 400, 500}, got)
}

func TestSeries_TrimLeavesExactTailOfChunks(t *testing.T) {
	// block_size=1, max_entries_per_chunk=10: each of the 4 chunks created by 35
	// appends holds exactly 10 entries (0-9, 10-19, 20-29) except the last (30-34).
	dir := filepath.Join(t.TempDir(), "test3")
	s, err := CreateSeries(dir, 1, 10, 0, 0, 0)
	require.NoError(t, err)
	defer s.Close()

	for i := uint64(0); i < 35; i++ {
		require.NoError(t, s.Append(i, []byte{byte(i)}))
	}

	// Chunks 0 (ts 0-9) and 10 (ts 10-19) are entirely below 22 and have a
	// successor starting at or before 22; chunk 20 (ts 20-29) is not, since its
	// successor starts at 30.
	require.NoError(t, s.Trim(22))

	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	chunkFiles := 0
	for _, e := range ents {
		if e.Name() != metadataFileName {
			chunkFiles++
		}
	}
	assert.Equal(t, 2, chunkFiles)

	got := drain(t, s, 0, 34)
	require.Len(t, got, 15)
	assert.Equal(t, uint64(20), got[0])
	assert.Equal(t, uint64(34), got[len(got)-1])
}

func TestSeries_CloseReopenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test6")
	s, err := CreateSeries(dir, 10, 4096, 0, 0, 0)
	require.NoError(t, err)

	payload := make([]byte, 10)
	for i := uint64(0); i < 8000; i++ {
		require.NoError(t, s.Append(i, payload))
	}
	require.NoError(t, s.Close())

	s2, err := OpenSeries(dir, 0)
	require.NoError(t, err)
	defer s2.Close()

	for i := uint64(8000); i < 16000; i++ {
		require.NoError(t, s2.Append(i, payload))
	}

	got := drain(t, s2, 0, 17000)
	require.Len(t, got, 16000)
	for i, ts := range got {
		assert.Equal(t, uint64(i), ts)
	}
}

func TestSeries_CorruptMetadataFailsWithCorruption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(metadataPath(dir), []byte("{}"), 0640))

	_, err := OpenSeries(dir, 0)
	assert.ErrorIs(t, err, tserrors.ErrCorruption)
}

func TestSeries_AppendUpdatesLastEntryAndCurrentValue(t *testing.T) {
	dir := t.TempDir()
	s, err := CreateSeries(dir, 4, 10, 0, 0, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(5, []byte("aaaa")))
	ts, ok := s.LastEntryTs()
	require.True(t, ok)
	assert.Equal(t, uint64(5), ts)

	e, err := s.GetCurrentValue()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), e.Ts)
	assert.Equal(t, "aaaa", string(e.Payload))
}

func TestSeries_GetCurrentValueEmptyIsNoData(t *testing.T) {
	dir := t.TempDir()
	s, err := CreateSeries(dir, 4, 10, 0, 0, 0)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetCurrentValue()
	assert.ErrorIs(t, err, tserrors.ErrNoData)
}

func TestSeries_TrimNeverDeletesLastChunk(t *testing.T) {
	dir := t.TempDir()
	s, err := CreateSeries(dir, 1, 2, 0, 0, 0)
	require.NoError(t, err)
	defer s.Close()

	for i := uint64(0); i < 6; i++ {
		require.NoError(t, s.Append(i, []byte{byte(i)}))
	}
	require.NoError(t, s.Trim(math.MaxUint64))

	got := drain(t, s, 0, math.MaxUint64)
	assert.NotEmpty(t, got)
}

func TestSeries_CreateFailsWhenDirExists(t *testing.T) {
	dir := t.TempDir()
	_, err := CreateSeries(dir, 1, 1, 0, 0, 0)
	assert.ErrorIs(t, err, tserrors.ErrExist)
}

func TestSeries_OpenFailsWhenAbsent(t *testing.T) {
	_, err := OpenSeries(filepath.Join(t.TempDir(), "missing"), 0)
	assert.ErrorIs(t, err, tserrors.ErrNotExist)
}

func TestSeries_IterateRangeRejectsInvertedRange(t *testing.T) {
	dir := t.TempDir()
	s, err := CreateSeries(dir, 1, 10, 0, 0, 0)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.IterateRange(10, 5)
	assert.ErrorIs(t, err, tserrors.ErrInvalid)
}
