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
	"time"

	"github.com/evochora/telemetry/pkg/model"
)

// ChunkBuffer is the §4.4.d pluggable component for indexers that cannot
// stream-commit per chunk: it accumulates chunks from multiple in-flight
// batches in parallel arrays, grounded on plugin/tfd/saccumulator.go's
// accumulate-then-flush-and-clear shape. Flush is destructive: once chunks
// are returned they are gone from the buffer, so a caller that fails to
// persist them must let the owning batches be redelivered rather than retry
// from the buffer.
type ChunkBuffer struct {
	maxSize      int
	maxAge       time.Duration
	chunks       []model.TickDataChunk
	batchOfChunk []string
	oldest       time.Time
}

// NewChunkBuffer returns an empty buffer that flushes at maxSize chunks or
// maxAge since the oldest unflushed chunk, whichever comes first.
func NewChunkBuffer(maxSize int, maxAge time.Duration) *ChunkBuffer {
	return &ChunkBuffer{maxSize: maxSize, maxAge: maxAge}
}

// Add appends a chunk tagged with the batch id it came from.
func (b *ChunkBuffer) Add(batchID string, chunk model.TickDataChunk) {
	if len(b.chunks) == 0 {
		b.oldest = time.Now()
	}
	b.chunks = append(b.chunks, chunk)
	b.batchOfChunk = append(b.batchOfChunk, batchID)
}

// ShouldFlush reports whether the buffer has reached its size or age
// threshold.
func (b *ChunkBuffer) ShouldFlush() bool {
	if len(b.chunks) == 0 {
		return false
	}
	if len(b.chunks) >= b.maxSize {
		return true
	}
	return b.maxAge > 0 && time.Since(b.oldest) >= b.maxAge
}

// FlushResult is the popped prefix of a ChunkBuffer.Flush call. BatchIDs is
// parallel to Chunks (BatchIDs[i] is the batch that produced Chunks[i]), so a
// caller can attribute each chunk to its batch when staging it.
type FlushResult struct {
	Chunks          []model.TickDataChunk
	BatchIDs        []string
	ChunksPerBatch  map[string]int
	ReadyToAckBatch map[string]bool
}

// Flush pops every currently buffered chunk, grouping the per-batch counts
// so the caller can advance its StreamingAckTracker. ReadyToAckBatch marks
// batches for which this flush popped every chunk seen so far; the caller
// must still confirm those batches are marked complete (fully streamed)
// before acking, since more chunks may still be coming for an in-progress
// batch.
func (b *ChunkBuffer) Flush() FlushResult {
	counts := make(map[string]int)
	for _, id := range b.batchOfChunk {
		counts[id]++
	}
	ready := make(map[string]bool, len(counts))
	for id := range counts {
		ready[id] = true
	}

	result := FlushResult{Chunks: b.chunks, BatchIDs: b.batchOfChunk, ChunksPerBatch: counts, ReadyToAckBatch: ready}
	b.chunks = nil
	b.batchOfChunk = nil
	return result
}

// Len reports the number of chunks currently buffered.
func (b *ChunkBuffer) Len() int { return len(b.chunks) }
