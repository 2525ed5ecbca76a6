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

package indexer

import (
	"github.com/evochora/telemetry/pkg/model"
)

// BatchProcessor is the contract a concrete indexer implements (§4.3). The
// framework (Worker) owns the streaming loop, commit windowing, and ack
// ordering; a BatchProcessor only stages and commits work.
//
// prepare_tables and process_chunk in the source's Template Method ladder
// become PrepareTables and ProcessChunk here; the framework is the internal
// driver, BatchProcessor is the abstract hook set.
type BatchProcessor interface {
	// PrepareTables is called once, after metadata is known, before any
	// chunk is processed. Must be idempotent: it tolerates reruns and
	// concurrent calls from other workers sharing the same backing store.
	PrepareTables(runID string) error

	// ProcessChunk is called once per chunk, in file order. It must stage
	// work without committing.
	ProcessChunk(chunk model.TickDataChunk) error

	// CommitProcessedChunks atomically persists all staged work across every
	// pending batch. The framework assumes single-commit, all-or-nothing
	// semantics.
	CommitProcessedChunks() error
}

// ChunkFieldFilterer is an optional BatchProcessor capability: a processor
// that only needs part of each chunk can skip heavy fields during
// deserialization.
type ChunkFieldFilterer interface {
	ChunkFieldFilter() model.FieldFilter
}

// ShutdownHook is an optional BatchProcessor capability: a final call after
// the worker's last commit.
type ShutdownHook interface {
	OnShutdown()
}

// chunkFieldFilter returns p's declared filter if it implements
// ChunkFieldFilterer, else model.FilterAll.
func chunkFieldFilter(p BatchProcessor) model.FieldFilter {
	if f, ok := p.(ChunkFieldFilterer); ok {
		return f.ChunkFieldFilter()
	}
	return model.FilterAll
}

func runShutdownHook(p BatchProcessor) {
	if h, ok := p.(ShutdownHook); ok {
		h.OnShutdown()
	}
}
