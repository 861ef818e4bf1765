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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarlenSeries_CascadeAcrossSubSeries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "varlen")
	vs, err := CreateVarlenSeries(dir, []uint32{10, 20, 10}, 2, 0, 0)
	require.NoError(t, err)
	defer vs.Close()

	p1 := []byte("test skarabeusza")
	require.NoError(t, vs.Append(0, p1))

	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	subdirs := 0
	for _, e := range ents {
		if e.IsDir() {
			subdirs++
		}
	}
	assert.Equal(t, 2, subdirs)

	p2 := []byte(strings.Repeat("test skarabeusza", 2))
	require.NoError(t, vs.Append(10, p2))

	ents, err = os.ReadDir(dir)
	require.NoError(t, err)
	subdirs = 0
	for _, e := range ents {
		if e.IsDir() {
			subdirs++
		}
	}
	assert.Equal(t, 3, subdirs)

	it, err := vs.IterateRange(0, 20)
	require.NoError(t, err)
	defer it.Close()

	var got []VarlenEntry
	for it.HasNext() {
		e, ok := it.Next()
		require.True(t, ok)
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].Ts)
	assert.Equal(t, p1, got[0].ToBytes())
	assert.Equal(t, uint64(10), got[1].Ts)
	assert.Equal(t, p2, got[1].ToBytes())
}

func TestVarlenEntry_ByteViews(t *testing.T) {
	e := VarlenEntry{Ts: 1, payload: []byte("hello world")}
	assert.Equal(t, byte('h'), e.GetByteAt(0))
	assert.Equal(t, []byte("hello"), e.Slice(0, 5))
	assert.True(t, e.StartsWith([]byte("hello")))
	assert.True(t, e.EndsWith([]byte("world")))
	assert.Equal(t, 11, e.Len())

	o := VarlenEntry{Ts: 2, payload: []byte("hello world")}
	assert.True(t, e.Equal(o))
	assert.Equal(t, 0, e.Compare(VarlenEntry{Ts: 1, payload: []byte("hello world")}))
}

func TestVarlenSeries_OpenFailsWhenAbsent(t *testing.T) {
	_, err := OpenVarlenSeries(filepath.Join(t.TempDir(), "missing"), 0)
	assert.Error(t, err)
}

func TestVarlenSeries_IterateRangeRejectsInvertedRange(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "varlen")
	vs, err := CreateVarlenSeries(dir, []uint32{10}, 2, 0, 0)
	require.NoError(t, err)
	defer vs.Close()

	_, err = vs.IterateRange(10, 5)
	assert.Error(t, err)
}
