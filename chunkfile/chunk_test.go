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
	"os"
	"path/filepath"
	"testing"

	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalChunk_CreateAppendFindScenario(t *testing.T) {
	for _, mode := range []AccessMode{ModeMmap, ModeDescriptor} {
		path := filepath.Join(t.TempDir(), "chunk.db")
		c, err := CreateNormalChunk(path, 0, []byte("ala "), 4096, 4, 0, mode)
		require.NoError(t, err)

		require.NoError(t, c.Append(1, []byte("ma  ")))
		require.NoError(t, c.Append(4, []byte("kota")))
		require.NoError(t, c.Append(5, []byte("test")))

		assert.Equal(t, uint64(0), c.MinTs())
		assert.Equal(t, uint64(5), c.MaxTs())
		assert.Equal(t, 4, c.Len())

		want := []struct {
			ts      uint64
			payload string
		}{{0, "ala "}, {1, "ma  "}, {4, "kota"}, {5, "test"}}
		for i, w := range want {
			e, err := c.Get(i)
			require.NoError(t, err)
			assert.Equal(t, w.ts, e.Ts)
			assert.Equal(t, w.payload, string(e.Payload))
		}

		assert.Equal(t, 2, c.FindLeft(3))
		assert.Equal(t, 2, c.FindRight(3))
		assert.Equal(t, 2, c.FindLeft(4))
		assert.Equal(t, 3, c.FindRight(4))

		require.NoError(t, c.Close())

		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, int64(4096), fi.Size())
	}
}

func TestNormalChunk_BinarySearchBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.db")
	c, err := CreateNormalChunk(path, 10, []byte("a"), 4096, 1, 0, ModeMmap)
	require.NoError(t, err)
	require.NoError(t, c.Append(20, []byte("b")))
	require.NoError(t, c.Append(30, []byte("c")))
	defer c.Close()

	assert.Equal(t, 0, c.FindLeft(5))
	assert.Equal(t, 0, c.FindRight(5))
	assert.Equal(t, 3, c.FindLeft(100))
	assert.Equal(t, 3, c.FindRight(100))
	assert.True(t, c.FindLeft(20) <= c.FindRight(20))
}

func TestNormalChunk_InvalidArgument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.db")
	c, err := CreateNormalChunk(path, 0, []byte("ala "), 4096, 4, 0, ModeMmap)
	require.NoError(t, err)
	defer c.Close()

	err = c.Append(1, []byte("short"))
	assert.ErrorIs(t, err, tserrors.ErrInvalid)

	err = c.Append(0, []byte("b!!!"))
	assert.ErrorIs(t, err, tserrors.ErrInvalid)
}

func TestNormalChunk_ExhaustedWhenMaxEntriesCapIsHit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.db")
	c, err := CreateNormalChunk(path, 100, []byte("x"), 4096, 1, 2, ModeMmap)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Append(200, []byte("y")))
	err = c.Append(300, []byte("z"))
	assert.ErrorIs(t, err, tserrors.ErrExhausted)
}

func TestNormalChunk_GrowsAcrossPagesUpToMaxEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.db")
	// block_size=10, max_entries_per_chunk=4096: requires growth beyond one page.
	c, err := CreateNormalChunk(path, 0, make([]byte, 10), 4096, 10, 4096, ModeMmap)
	require.NoError(t, err)
	for i := uint64(1); i < 4096; i++ {
		require.NoError(t, c.Append(i, make([]byte, 10)))
	}
	assert.Equal(t, 4096, c.Len())
	err = c.Append(5000, make([]byte, 10))
	assert.ErrorIs(t, err, tserrors.ErrExhausted)
	require.NoError(t, c.Close())
}

func TestNormalChunk_ReopenRecoversEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.db")
	c, err := CreateNormalChunk(path, 0, []byte("aaaa"), 4096, 4, 0, ModeMmap)
	require.NoError(t, err)
	require.NoError(t, c.Append(5, []byte("bbbb")))
	require.NoError(t, c.Append(10, []byte("cccc")))
	require.NoError(t, c.Close())

	reopened, err := OpenNormalChunk(path, 4096, 0, ModeDescriptor)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Len())
	assert.Equal(t, uint64(0), reopened.MinTs())
	assert.Equal(t, uint64(10), reopened.MaxTs())
	e, err := reopened.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), e.Ts)
	assert.Equal(t, "bbbb", string(e.Payload))
}

func TestNormalChunk_MmapDescriptorEquivalence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.db")
	c, err := CreateNormalChunk(path, 0, []byte("aaaa"), 4096, 4, 0, ModeMmap)
	require.NoError(t, err)
	require.NoError(t, c.Append(5, []byte("bbbb")))
	require.NoError(t, c.Close())

	mm, err := OpenNormalChunk(path, 4096, 0, ModeMmap)
	require.NoError(t, err)
	defer mm.Close()
	desc, err := OpenNormalChunk(path, 4096, 0, ModeDescriptor)
	require.NoError(t, err)
	defer desc.Close()

	for i := 0; i < mm.Len(); i++ {
		e1, err := mm.Get(i)
		require.NoError(t, err)
		e2, err := desc.Get(i)
		require.NoError(t, err)
		assert.Equal(t, e1.Ts, e2.Ts)
		assert.Equal(t, e1.Payload, e2.Payload)
	}
}

func TestNormalChunk_Iter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.db")
	c, err := CreateNormalChunk(path, 0, []byte("a"), 4096, 1, 0, ModeMmap)
	require.NoError(t, err)
	require.NoError(t, c.Append(1, []byte("b")))
	defer c.Close()

	it := c.Iter()
	defer it.Close()
	var got []uint64
	for it.HasNext() {
		e, ok := it.Next()
		require.True(t, ok)
		got = append(got, e.Ts)
	}
	assert.Equal(t, []uint64{0, 1}, got)
}
