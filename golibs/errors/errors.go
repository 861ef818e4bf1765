// Copyright 2023 The acquirecloud Authors
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
package errors

import "errors"

var (
	// ErrNotExist is returned when a database, series or chunk that was expected to exist is absent
	ErrNotExist = errors.New("does not exist")
	// ErrExist is returned when creating something whose storage location already exists
	ErrExist = errors.New("already exists")
	// ErrCorruption is returned when on-disk metadata or chunk content fails validation on open
	ErrCorruption = errors.New("corruption")
	// ErrInvalid is returned for malformed arguments: wrong payload size, non-monotonic timestamps, bad config
	ErrInvalid = errors.New("invalid argument")
	// ErrClosed is returned when an operation is attempted on a closed resource
	ErrClosed = errors.New("closed")
	// ErrBusy is returned when an operation requiring exclusive access hits outstanding pins
	ErrBusy = errors.New("busy")
	// ErrNoData is returned by operations that need at least one entry when none exists
	ErrNoData = errors.New("no data")
	// ErrExhausted is returned when a chunk (or its pre-allocated capacity) cannot accept more entries
	ErrExhausted = errors.New("exhausted")
)

// Is reports whether err matches target, per the standard errors.Is contract. It exists so call
// sites in this module import a single errors package for both wrapping (fmt.Errorf %w) and
// sentinel matching.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
