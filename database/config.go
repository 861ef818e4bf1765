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
	"github.com/solarisdb/tsfs/chunkfile"
	"github.com/solarisdb/tsfs/golibs/config"
)

// defaultCatalogFileName is the BuntDB file Database keeps at its root to
// cache the directory listing of its series sub-directories.
const defaultCatalogFileName = ".catalog.bdb"

// Config holds the engine-wide defaults a Database applies to series it
// creates, plus where it keeps its catalog cache. It is loaded via
// golibs/config.Enricher from a YAML or JSON file, chosen by extension.
type Config struct {
	// DefaultPageSize is used for create_series calls that pass page_size=0.
	// Varlen sub-series always use chunkfile.DefaultPageSize.
	DefaultPageSize uint32 `json:"default_page_size"`
	// DefaultGzipLevel is used for create_series/create_varlen_series calls
	// that pass gzip_level=0.
	DefaultGzipLevel int `json:"default_gzip_level"`
	// MaxOpenChunksPerSeries bounds the ReleasableCache size every series
	// opened by this Database is given (the FD/mmap budget of spec.md §5).
	MaxOpenChunksPerSeries int `json:"max_open_chunks_per_series"`
	// CatalogFileName names the BuntDB file relative to the database root.
	CatalogFileName string `json:"catalog_file_name"`
}

// DefaultConfig returns the Config a Database uses when none is supplied.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize:        chunkfile.DefaultPageSize,
		MaxOpenChunksPerSeries: 0,
		CatalogFileName:        defaultCatalogFileName,
	}
}

// LoadConfig reads a Config from a YAML or JSON file (selected by the file's
// extension), applying DefaultConfig for any field the file leaves zero. An
// empty path returns DefaultConfig() unchanged.
func LoadConfig(path string) (Config, error) {
	enr := config.NewEnricher(DefaultConfig())
	if err := enr.LoadFromFile(path); err != nil {
		return Config{}, err
	}
	cfg := enr.Value()
	if cfg.CatalogFileName == "" {
		cfg.CatalogFileName = defaultCatalogFileName
	}
	return cfg, nil
}
