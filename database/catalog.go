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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/solarisdb/tsfs/golibs/cast"
	tserrors "github.com/solarisdb/tsfs/golibs/errors"
	"github.com/solarisdb/tsfs/golibs/logging"
	"github.com/tidwall/buntdb"
)

const (
	kindSeries = "series"
	kindVarlen = "varlen"
)

// catalogEntry is the value stored per series name in the catalog cache.
type catalogEntry struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// catalog is a BuntDB-backed cache of the database's series directory listing,
// keyed by series name, so ListSeries need not stat every sub-directory on
// every call. It implements linker.Initializer and linker.Shutdowner.
type catalog struct {
	path   string
	db     *buntdb.DB
	logger logging.Logger
}

func newCatalog(path string) *catalog {
	return &catalog{path: path}
}

// Init implements linker.Initializer.
func (c *catalog) Init(ctx context.Context) error {
	c.logger = logging.NewLogger("database.catalog")
	c.logger.Infof("opening catalog at %s", c.path)
	db, err := buntdb.Open(c.path)
	if err != nil {
		return fmt.Errorf("buntdb.Open(%s) failed: %w", c.path, err)
	}
	c.db = db
	return nil
}

// Shutdown implements linker.Shutdowner.
func (c *catalog) Shutdown() {
	c.logger.Infof("closing catalog at %s", c.path)
	if c.db != nil {
		_ = c.db.Close()
	}
}

func (c *catalog) put(name, kind string) error {
	tx := mustBeginTx(c.db, true)
	defer mustRollback(tx)
	val := mustMarshal(catalogEntry{Name: name, Kind: kind, CreatedAt: time.Now()})
	if _, _, err := tx.Set(name, val, nil); err != nil {
		return fmt.Errorf("tx.Set(%s) failed: %w", name, err)
	}
	mustCommit(tx)
	return nil
}

func (c *catalog) delete(name string) error {
	tx := mustBeginTx(c.db, true)
	defer mustRollback(tx)
	if _, err := tx.Delete(name); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
		return fmt.Errorf("tx.Delete(%s) failed: %w", name, err)
	}
	mustCommit(tx)
	return nil
}

func (c *catalog) get(name string) (catalogEntry, error) {
	tx := mustBeginTx(c.db, false)
	defer mustRollback(tx)
	val, err := tx.Get(name)
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return catalogEntry{}, fmt.Errorf("series %s: %w", name, tserrors.ErrNotExist)
		}
		return catalogEntry{}, fmt.Errorf("tx.Get(%s) failed: %w", name, err)
	}
	return mustUnmarshal[catalogEntry](val), nil
}

// list returns every catalog entry whose name matches the shell-style glob pattern.
func (c *catalog) list(pattern string) ([]catalogEntry, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, tserrors.ErrInvalid)
	}
	tx := mustBeginTx(c.db, false)
	defer mustRollback(tx)
	var res []catalogEntry
	err = tx.Ascend("", func(key, val string) bool {
		e := mustUnmarshal[catalogEntry](val)
		if g.Match(e.Name) {
			res = append(res, e)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("catalog scan failed: %w", err)
	}
	return res, nil
}

func mustBeginTx(db *buntdb.DB, writable bool) *buntdb.Tx {
	tx, err := db.Begin(writable)
	if err != nil {
		panic(fmt.Errorf("mustBeginTx(%t) failed: %v", writable, err))
	}
	return tx
}

func mustCommit(tx *buntdb.Tx) {
	if err := tx.Commit(); err != nil {
		panic(fmt.Errorf("mustCommit() failed: %v", err))
	}
}

func mustRollback(tx *buntdb.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, buntdb.ErrTxClosed) {
		panic(fmt.Errorf("mustRollback() failed: %v", err))
	}
}

func mustMarshal[T any](obj T) string {
	b, err := json.Marshal(obj)
	if err != nil {
		panic(fmt.Errorf("mustMarshal() failed: %v", err))
	}
	return cast.ByteArrayToString(b)
}

func mustUnmarshal[T any](val string) T {
	var v T
	if err := json.Unmarshal(cast.StringToByteArray(val), &v); err != nil {
		panic(fmt.Errorf("mustUnmarshal() failed: %v", err))
	}
	return v
}
