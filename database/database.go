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

// Package database implements the directory-level registry of series: a
// Database is a directory whose direct sub-directories are fixed or varlen
// series, disambiguated by the presence of length_profile in their metadata.
// It caches open series handles by name and keeps a BuntDB catalog of the
// directory listing for fast glob-based lookups.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/solarisdb/tsfs/golibs/container"
	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/solarisdb/tsfs/golibs/logging"
	"github.com/solarisdb/tsfs/series"
	"github.com/solarisdb/tsfs/varlen"

	"github.com/davecgh/go-spew/spew"
	"github.com/logrange/linker"
)

const metadataFileName = "metadata.txt"

// shutdowner is the subset of linker's injector this package relies on, kept
// narrow so Database doesn't have to name the injector's concrete type.
type shutdowner interface {
	Shutdown()
}

// Database is a directory-level registry of fixed and varlen series.
type Database struct {
	mu      sync.Mutex
	dir     string
	cfg     Config
	metaRaw json.RawMessage
	catalog *catalog
	inj     shutdowner
	series  map[string]*series.Series
	varlens map[string]*varlen.VarlenSeries
	logger  logging.Logger
	closed  bool
}

func metadataPath(dir string) string { return filepath.Join(dir, metadataFileName) }

// CreateDatabase creates a new database directory at dir. It fails with
// tserrors.ErrExist if dir already exists.
func CreateDatabase(ctx context.Context, dir string, cfg Config) (*Database, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("database %s: %w", dir, tserrors.ErrExist)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("could not create database dir %s: %w", dir, err)
	}
	if err := os.WriteFile(metadataPath(dir), []byte("{}"), 0640); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("could not write metadata for %s: %w", dir, err)
	}
	db, err := open(ctx, dir, cfg)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return db, nil
}

// OpenDatabase opens an existing database directory. It fails with
// tserrors.ErrNotExist if dir is absent.
func OpenDatabase(ctx context.Context, dir string, cfg Config) (*Database, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("database %s: %w", dir, tserrors.ErrNotExist)
	}
	return open(ctx, dir, cfg)
}

func open(ctx context.Context, dir string, cfg Config) (*Database, error) {
	if cfg.CatalogFileName == "" {
		cfg = DefaultConfig()
	}
	db := &Database{
		dir:     dir,
		cfg:     cfg,
		series:  make(map[string]*series.Series),
		varlens: make(map[string]*varlen.VarlenSeries),
		logger:  logging.NewLogger("database.Database"),
	}
	db.logger.Infof("opening database %s with config %s", dir, spew.Sprint(cfg))
	if err := db.ReloadMetadata(); err != nil {
		return nil, err
	}

	db.catalog = newCatalog(filepath.Join(dir, cfg.CatalogFileName))
	inj := linker.New()
	inj.Register(linker.Component{Name: "catalog", Value: db.catalog})
	inj.Init(ctx)
	db.inj = inj

	if db.catalog.db == nil {
		return nil, fmt.Errorf("could not initialize catalog for database %s: %w", dir, tserrors.ErrCorruption)
	}
	if err := db.reconcileCatalog(); err != nil {
		db.inj.Shutdown()
		return nil, err
	}
	return db, nil
}

// Metadata returns the database's arbitrary metadata object as raw JSON.
func (db *Database) Metadata() json.RawMessage {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.metaRaw
}

// SetMetadata marshals obj as JSON and persists it as the database's metadata.
func (db *Database) SetMetadata(obj any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("could not encode metadata for %s: %w", db.dir, err)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := os.WriteFile(metadataPath(db.dir), raw, 0640); err != nil {
		return fmt.Errorf("could not write metadata for %s: %w", db.dir, err)
	}
	db.metaRaw = raw
	return nil
}

// ReloadMetadata re-reads metadata.txt from disk, discarding any in-memory changes.
func (db *Database) ReloadMetadata() error {
	raw, err := os.ReadFile(metadataPath(db.dir))
	if err != nil {
		return fmt.Errorf("could not read metadata for %s: %w", db.dir, tserrors.ErrCorruption)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.metaRaw = raw
	return nil
}

// Checkpoint syncs every currently open series and varlen series.
func (db *Database) Checkpoint() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for name, s := range db.series {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("could not sync series %s: %w", name, err)
		}
	}
	for name, vs := range db.varlens {
		if err := vs.Sync(); err != nil {
			return fmt.Errorf("could not sync varlen series %s: %w", name, err)
		}
	}
	return nil
}

func (db *Database) seriesDir(name string) string { return filepath.Join(db.dir, name) }

// CreateSeries creates a new fixed-size series named name. page_size and
// gzip_level of 0 fall back to the database's configured defaults.
func (db *Database) CreateSeries(name string, blockSize, maxEntriesPerChunk, pageSize uint32, gzipLevel int) (*series.Series, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if pageSize == 0 {
		pageSize = db.cfg.DefaultPageSize
	}
	if gzipLevel == 0 {
		gzipLevel = db.cfg.DefaultGzipLevel
	}
	s, err := series.CreateSeries(db.seriesDir(name), blockSize, maxEntriesPerChunk, pageSize, gzipLevel, db.cfg.MaxOpenChunksPerSeries)
	if err != nil {
		return nil, err
	}
	if err := db.catalog.put(name, kindSeries); err != nil {
		s.Close()
		os.RemoveAll(db.seriesDir(name))
		return nil, err
	}
	db.series[name] = s
	return s, nil
}

// GetSeries returns the named fixed-size series, opening it from disk and
// caching the handle if it is not already open.
func (db *Database) GetSeries(name string) (*series.Series, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s, ok := db.series[name]; ok {
		return s, nil
	}
	s, err := series.OpenSeries(db.seriesDir(name), db.cfg.MaxOpenChunksPerSeries)
	if err != nil {
		return nil, err
	}
	db.series[name] = s
	return s, nil
}

// DeleteSeries closes (if open) and permanently removes the named series.
func (db *Database) DeleteSeries(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s, ok := db.series[name]; ok {
		delete(db.series, name)
		if err := s.Delete(); err != nil {
			return err
		}
	} else if _, err := os.Stat(db.seriesDir(name)); err != nil {
		return fmt.Errorf("series %s: %w", name, tserrors.ErrNotExist)
	} else if err := os.RemoveAll(db.seriesDir(name)); err != nil {
		return fmt.Errorf("could not delete series %s: %w", name, err)
	}
	return db.catalog.delete(name)
}

// CreateVarlenSeries creates a new variable-length series named name.
func (db *Database) CreateVarlenSeries(name string, profile []uint32, maxEntriesPerChunk uint32, tempFileForVarlen, gzipLevel int) (*varlen.VarlenSeries, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if gzipLevel == 0 {
		gzipLevel = db.cfg.DefaultGzipLevel
	}
	vs, err := varlen.CreateVarlenSeries(db.seriesDir(name), profile, maxEntriesPerChunk, tempFileForVarlen, gzipLevel)
	if err != nil {
		return nil, err
	}
	if err := db.catalog.put(name, kindVarlen); err != nil {
		vs.Close()
		os.RemoveAll(db.seriesDir(name))
		return nil, err
	}
	db.varlens[name] = vs
	return vs, nil
}

// GetVarlenSeries returns the named varlen series, opening it from disk and
// caching the handle if it is not already open.
func (db *Database) GetVarlenSeries(name string) (*varlen.VarlenSeries, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if vs, ok := db.varlens[name]; ok {
		return vs, nil
	}
	vs, err := varlen.OpenVarlenSeries(db.seriesDir(name), db.cfg.MaxOpenChunksPerSeries)
	if err != nil {
		return nil, err
	}
	db.varlens[name] = vs
	return vs, nil
}

// DeleteVarlenSeries closes (if open) and permanently removes the named varlen series.
func (db *Database) DeleteVarlenSeries(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if vs, ok := db.varlens[name]; ok {
		delete(db.varlens, name)
		if err := vs.Delete(); err != nil {
			return err
		}
	} else if _, err := os.Stat(db.seriesDir(name)); err != nil {
		return fmt.Errorf("varlen series %s: %w", name, tserrors.ErrNotExist)
	} else if err := os.RemoveAll(db.seriesDir(name)); err != nil {
		return fmt.Errorf("could not delete varlen series %s: %w", name, err)
	}
	return db.catalog.delete(name)
}

// GetOpenSeries returns the names of every series and varlen series currently
// cached open by this Database.
func (db *Database) GetOpenSeries() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := append(container.Keys(db.series), container.Keys(db.varlens)...)
	sort.Strings(names)
	return names
}

// CloseAllOpenSeries closes every currently cached open series and varlen series.
func (db *Database) CloseAllOpenSeries() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var firstErr error
	for name, s := range db.series {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing series %s: %w", name, err)
		}
		delete(db.series, name)
	}
	for name, vs := range db.varlens {
		if err := vs.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing varlen series %s: %w", name, err)
		}
		delete(db.varlens, name)
	}
	return firstErr
}

// ListSeries lists every series name (open or not) matching the shell-style
// glob pattern, reconciling the on-disk directory listing against the
// catalog cache first.
func (db *Database) ListSeries(pattern string) ([]string, error) {
	db.mu.Lock()
	if err := db.reconcileCatalogLocked(); err != nil {
		db.mu.Unlock()
		return nil, err
	}
	db.mu.Unlock()

	entries, err := db.catalog.list(pattern)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	sort.Strings(names)
	return names, nil
}

func (db *Database) reconcileCatalog() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.reconcileCatalogLocked()
}

// reconcileCatalogLocked adds catalog entries for any series directory that
// lacks one, and drops catalog entries whose directory no longer exists. Must
// hold db.mu.
func (db *Database) reconcileCatalogLocked() error {
	ents, err := os.ReadDir(db.dir)
	if err != nil {
		return fmt.Errorf("could not list database %s: %w", db.dir, err)
	}
	onDisk := make(map[string]bool, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		onDisk[name] = true
		if _, err := db.catalog.get(name); err == nil {
			continue
		}
		kind, err := detectKind(db.seriesDir(name))
		if err != nil {
			continue // not a recognizable series directory; skip it
		}
		if err := db.catalog.put(name, kind); err != nil {
			return err
		}
	}
	cached, err := db.catalog.list("*")
	if err != nil {
		return err
	}
	for _, e := range cached {
		if !onDisk[e.Name] {
			if err := db.catalog.delete(e.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// detectKind reads a series directory's metadata.txt and reports whether it
// is a fixed or varlen series, per spec.md §4.5's disambiguation rule: the
// presence of a length_profile field means varlen.
func detectKind(dir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return "", err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", err
	}
	if _, ok := fields["length_profile"]; ok {
		return kindVarlen, nil
	}
	if _, ok := fields["block_size"]; ok {
		return kindSeries, nil
	}
	return "", fmt.Errorf("%s: unrecognized series metadata", dir)
}

// Close shuts down the catalog and every cached open series handle. It does
// not checkpoint; call Checkpoint first if durability of pending writes matters.
func (db *Database) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	err := db.CloseAllOpenSeries()
	db.inj.Shutdown()
	return err
}
