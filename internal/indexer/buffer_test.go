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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evochora/telemetry/pkg/model"
)

func TestChunkBufferFlushesAtMaxSize(t *testing.T) {
	b := NewChunkBuffer(2, time.Hour)
	require.False(t, b.ShouldFlush(), "empty buffer never flushes")

	b.Add("batch-a", testChunk("run-1", 0))
	require.False(t, b.ShouldFlush())
	b.Add("batch-a", testChunk("run-1", 1))
	require.True(t, b.ShouldFlush())

	result := b.Flush()
	require.Len(t, result.Chunks, 2)
	require.Equal(t, []string{"batch-a", "batch-a"}, result.BatchIDs)
	require.Equal(t, map[string]int{"batch-a": 2}, result.ChunksPerBatch)
	require.Equal(t, map[string]bool{"batch-a": true}, result.ReadyToAckBatch)
	require.Equal(t, 0, b.Len())
	require.False(t, b.ShouldFlush(), "drained buffer has nothing left to flush")
}

func TestChunkBufferFlushesAtMaxAge(t *testing.T) {
	b := NewChunkBuffer(1000, 20*time.Millisecond)
	b.Add("batch-a", testChunk("run-1", 0))
	require.False(t, b.ShouldFlush(), "well under both thresholds")

	require.Eventually(t, b.ShouldFlush, time.Second, 5*time.Millisecond)
}

func TestChunkBufferGroupsMultipleBatches(t *testing.T) {
	b := NewChunkBuffer(10, time.Hour)
	b.Add("batch-a", testChunk("run-1", 0))
	b.Add("batch-b", testChunk("run-1", 1))
	b.Add("batch-a", testChunk("run-1", 2))

	result := b.Flush()
	require.Len(t, result.Chunks, 3)
	require.Equal(t, []string{"batch-a", "batch-b", "batch-a"}, result.BatchIDs)
	require.Equal(t, map[string]int{"batch-a": 2, "batch-b": 1}, result.ChunksPerBatch)
	require.Equal(t, map[string]bool{"batch-a": true, "batch-b": true}, result.ReadyToAckBatch)
}

func TestChunkBufferFlushIsDestructive(t *testing.T) {
	b := NewChunkBuffer(1, time.Hour)
	b.Add("batch-a", testChunk("run-1", 0))
	first := b.Flush()
	require.Len(t, first.Chunks, 1)

	second := b.Flush()
	require.Empty(t, second.Chunks, "a second flush with nothing added in between pops nothing")
}

// chunkCountsMatch is a small helper confirming model.TickDataChunk fields
// survive being carried through Add/Flush unchanged.
func chunkCountsMatch(t *testing.T, want, got model.TickDataChunk) {
	t.Helper()
	require.Equal(t, want.RunID, got.RunID)
	require.Equal(t, want.FirstTick, got.FirstTick)
	require.Equal(t, want.TickCount, got.TickCount)
}

func TestChunkBufferPreservesChunkContents(t *testing.T) {
	b := NewChunkBuffer(5, time.Hour)
	want := testChunk("run-1", 42)
	b.Add("batch-a", want)

	result := b.Flush()
	require.Len(t, result.Chunks, 1)
	chunkCountsMatch(t, want, result.Chunks[0])
}
