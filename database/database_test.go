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
	"context"
	"os"
	"path/filepath"
	"testing"

	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabase_CreateOpenListDeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	db, err := CreateDatabase(ctx, dir, DefaultConfig())
	require.NoError(t, err)

	_, err = db.CreateSeries("cpu.load", 4, 16, 0, 0)
	require.NoError(t, err)
	_, err = db.CreateSeries("cpu.temp", 4, 16, 0, 0)
	require.NoError(t, err)
	_, err = db.CreateVarlenSeries("events", []uint32{10, 20}, 16, 0, 0)
	require.NoError(t, err)

	names, err := db.ListSeries("cpu.*")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.load", "cpu.temp"}, names)

	names, err = db.ListSeries("*")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.load", "cpu.temp", "events"}, names)

	assert.ElementsMatch(t, []string{"cpu.load", "cpu.temp", "events"}, db.GetOpenSeries())

	require.NoError(t, db.DeleteSeries("cpu.temp"))
	names, err = db.ListSeries("*")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.load", "events"}, names)

	require.NoError(t, db.Close())

	db2, err := OpenDatabase(ctx, dir, DefaultConfig())
	require.NoError(t, err)
	defer db2.Close()

	s, err := db2.GetSeries("cpu.load")
	require.NoError(t, err)
	require.NoError(t, s.Append(1, []byte("aaaa")))

	vs, err := db2.GetVarlenSeries("events")
	require.NoError(t, err)
	require.NoError(t, vs.Append(1, []byte("hi")))

	names, err = db2.ListSeries("*")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.load", "events"}, names)
}

func TestDatabase_CreateFailsWhenDirExists(t *testing.T) {
	dir := t.TempDir()
	_, err := CreateDatabase(context.Background(), dir, DefaultConfig())
	assert.ErrorIs(t, err, tserrors.ErrExist)
}

func TestDatabase_OpenFailsWhenAbsent(t *testing.T) {
	_, err := OpenDatabase(context.Background(), filepath.Join(t.TempDir(), "missing"), DefaultConfig())
	assert.ErrorIs(t, err, tserrors.ErrNotExist)
}

func TestDatabase_GetSeriesFailsWhenAbsent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := CreateDatabase(context.Background(), dir, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.GetSeries("missing")
	assert.ErrorIs(t, err, tserrors.ErrNotExist)
}

func TestDatabase_CreateSeriesFailsWhenNameTaken(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := CreateDatabase(context.Background(), dir, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateSeries("dup", 4, 16, 0, 0)
	require.NoError(t, err)
	_, err = db.CreateSeries("dup", 4, 16, 0, 0)
	assert.ErrorIs(t, err, tserrors.ErrExist)
}

func TestDatabase_SetAndReloadMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := CreateDatabase(context.Background(), dir, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SetMetadata(map[string]string{"owner": "team-observability"}))
	assert.JSONEq(t, `{"owner":"team-observability"}`, string(db.Metadata()))

	require.NoError(t, db.ReloadMetadata())
	assert.JSONEq(t, `{"owner":"team-observability"}`, string(db.Metadata()))
}

func TestDatabase_MergeSeriesOrdersAcrossSeries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := CreateDatabase(context.Background(), dir, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	cpu, err := db.CreateSeries("cpu.load", 4, 16, 0, 0)
	require.NoError(t, err)
	mem, err := db.CreateSeries("mem.used", 4, 16, 0, 0)
	require.NoError(t, err)
	require.NoError(t, cpu.Append(1, []byte("c1__")))
	require.NoError(t, cpu.Append(5, []byte("c5__")))
	require.NoError(t, mem.Append(2, []byte("m2__")))
	require.NoError(t, mem.Append(4, []byte("m4__")))

	it, err := db.MergeSeries(0, 10, "cpu.load", "mem.used")
	require.NoError(t, err)
	defer it.Close()

	var gotTs []uint64
	var gotSeries []string
	for it.HasNext() {
		e, ok := it.Next()
		require.True(t, ok)
		gotTs = append(gotTs, e.Ts)
		gotSeries = append(gotSeries, e.Series)
	}
	assert.Equal(t, []uint64{1, 2, 4, 5}, gotTs)
	assert.Equal(t, []string{"cpu.load", "mem.used", "mem.used", "cpu.load"}, gotSeries)
}

func TestDatabase_MergeSeriesRequiresAtLeastOneName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := CreateDatabase(context.Background(), dir, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.MergeSeries(0, 10)
	assert.ErrorIs(t, err, tserrors.ErrInvalid)
}

func TestDatabase_CheckpointSyncsOpenSeries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := CreateDatabase(context.Background(), dir, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	s, err := db.CreateSeries("cpu.load", 4, 16, 0, 0)
	require.NoError(t, err)
	require.NoError(t, s.Append(1, []byte("aaaa")))
	require.NoError(t, db.Checkpoint())
}

func TestDatabase_ReconcilesCatalogFromDirectoryListing(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	dir := filepath.Join(t.TempDir(), "db")
	db, err := CreateDatabase(ctx, dir, cfg)
	require.NoError(t, err)

	other, err := db.CreateSeries("out.of.band", 4, 16, 0, 0)
	require.NoError(t, err)
	require.NoError(t, other.Close())
	require.NoError(t, db.Close())

	// Drop the catalog cache entirely to simulate a series directory that was
	// never recorded (e.g. created by another process); reopening must
	// rebuild the catalog from the on-disk directory listing.
	require.NoError(t, os.Remove(filepath.Join(dir, cfg.CatalogFileName)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".stray"), []byte("x"), 0640))

	db2, err := OpenDatabase(ctx, dir, cfg)
	require.NoError(t, err)
	defer db2.Close()

	names, err := db2.ListSeries("*")
	require.NoError(t, err)
	assert.Equal(t, []string{"out.of.band"}, names)
}
