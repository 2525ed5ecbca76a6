// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage implements the pipeline's two external-interface
// boundaries: the content-addressed object store that holds batch files and
// run metadata, and the work topic that hands BatchInfos to indexer
// workers. Concrete object-store and database backends are named but left
// pluggable; the filesystem object store and the Redis Streams topic here
// are the reference implementations the rest of the module is exercised
// against.
package storage

import (
	"fmt"

	"github.com/evochora/telemetry/pkg/model"
)

// ObjectStore is the contract the core reads and writes batch files and
// per-run metadata through. Blobs are written once and read many times;
// a storage path is itself the idempotency key for a batch.
type ObjectStore interface {
	// FindMetadataPath returns the path a run's SimulationMetadata blob
	// would live at, whether or not it has been written yet.
	FindMetadataPath(runID string) string
	// ReadMessage reads and fully buffers the blob at path.
	ReadMessage(path string) ([]byte, error)
	// WriteMessage writes b to path, creating any needed parent structure.
	WriteMessage(path string, b []byte) error
	// FindLastBatchFile returns the lexically greatest batch file path
	// under a run's raw-data prefix, or ok=false if none exist. Batch file
	// names embed zero-padded tick ranges, so lexical order equals tick
	// order.
	FindLastBatchFile(runID string) (path string, ok bool, err error)
	// ForEachChunk streams the chunks in the batch file at path, applying
	// filter, invoking consume once per chunk until consume returns an
	// error or the file is exhausted.
	ForEachChunk(path string, filter model.FieldFilter, consume func(model.TickDataChunk) error) error
	// ForEachRawChunk streams raw frame bytes without ever deserializing a
	// chunk, for pass-through indexers.
	ForEachRawChunk(path string, consume func(raw []byte) error) error
	// WriteChunkBatch serializes chunks back-to-back in length-delimited
	// framing and writes them as one blob at the path PathBuilder computes
	// for the chunk range.
	WriteChunkBatch(runID string, firstTick, lastTick uint64, chunks []model.TickDataChunk) (path string, err error)
}

// PathBuilder computes object-store paths with bounded directory fan-out,
// per §6: `<run_id>/raw/<bucket_path>/batch_<zpad20_first>_<zpad20_last>.pb`,
// where bucket_path divides the first tick by a configured sequence of
// divisors (default [100_000_000, 100_000], a 3-digit/3-digit layout).
type PathBuilder struct {
	Divisors []uint64
}

// DefaultDivisors matches the spec's default folder structure.
var DefaultDivisors = []uint64{100_000_000, 100_000}

// NewPathBuilder returns a PathBuilder using divisors, or DefaultDivisors if
// divisors is empty.
func NewPathBuilder(divisors []uint64) PathBuilder {
	if len(divisors) == 0 {
		divisors = DefaultDivisors
	}
	return PathBuilder{Divisors: divisors}
}

// MetadataPath returns the path a run's metadata blob lives at.
func (p PathBuilder) MetadataPath(runID string) string {
	return fmt.Sprintf("%s/metadata.pb", runID)
}

// RawPrefix returns the directory prefix under which a run's batch files
// live, before the bucket-path fan-out.
func (p PathBuilder) RawPrefix(runID string) string {
	return fmt.Sprintf("%s/raw", runID)
}

// BatchPath returns the full path for a batch spanning [firstTick, lastTick].
func (p PathBuilder) BatchPath(runID string, firstTick, lastTick uint64) string {
	return fmt.Sprintf("%s/%s/batch_%020d_%020d.pb", p.RawPrefix(runID), p.bucketPath(firstTick), firstTick, lastTick)
}

// bucketPath divides firstTick successively by each configured divisor,
// producing one folder level per divisor.
func (p PathBuilder) bucketPath(firstTick uint64) string {
	path := ""
	for i, d := range p.Divisors {
		if d == 0 {
			continue
		}
		bucket := firstTick / d
		if i > 0 {
			path += "/"
		}
		path += fmt.Sprintf("%03d", bucket%1000)
	}
	if path == "" {
		return "0"
	}
	return path
}
