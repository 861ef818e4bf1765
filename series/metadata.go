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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	tserrors "github.com/solarisdb/tsfs/golibs/errors"
)

// Metadata is the small JSON object a series directory carries at metadata.txt.
type Metadata struct {
	BlockSize          uint32  `json:"block_size"`
	MaxEntriesPerChunk uint32  `json:"max_entries_per_chunk"`
	LastEntrySynced    *uint64 `json:"last_entry_synced,omitempty"`
	PageSize           uint32  `json:"page_size"`
	GzipLevel          int     `json:"gzip_level"`
}

const metadataFileName = "metadata.txt"

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
	if m.BlockSize == 0 || m.PageSize == 0 {
		return Metadata{}, fmt.Errorf("metadata for %s missing required fields: %w", dir, tserrors.ErrCorruption)
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
