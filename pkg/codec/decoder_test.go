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

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evochora/telemetry/pkg/model"
)

func buildTestChunk(t *testing.T) (*model.TickDataChunk, *model.Environment) {
	t.Helper()
	enc, err := NewEncoder(EncoderConfig{AccumulatedDeltaInterval: 2, SnapshotInterval: 2, ChunkInterval: 1})
	require.NoError(t, err)

	env := newTestEnv(t)
	var chunk *model.TickDataChunk
	setCode(t, env, 0, 0)
	chunk, err = enc.CaptureTick(sample(0, env))
	require.NoError(t, err)
	require.Nil(t, chunk)

	setCode(t, env, 1, 1)
	chunk, err = enc.CaptureTick(sample(1, env))
	require.NoError(t, err)
	require.Nil(t, chunk)

	setCode(t, env, 2, 2)
	chunk, err = enc.CaptureTick(sample(2, env))
	require.NoError(t, err)
	require.Nil(t, chunk)

	setCode(t, env, 3, 3)
	chunk, err = enc.CaptureTick(sample(3, env))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	return chunk, env
}

// TestDecompressTickMatchesLiveEnvironment checks that decompressing every
// sampled tick in the chunk reproduces exactly the cells that were set in
// the live environment by that tick.
func TestDecompressTickMatchesLiveEnvironment(t *testing.T) {
	chunk, env := buildTestChunk(t)
	dec := NewDecoder(env.Len())
	require.NoError(t, dec.LoadChunk(chunk))

	for _, tick := range []uint64{0, 1, 2, 3} {
		td, err := dec.DecompressTick(tick)
		require.NoError(t, err)
		require.Equal(t, tick, td.TickNumber)
		require.Equal(t, int(tick)+1, td.CellColumns.Len())
	}
}

func TestDecompressTickOutOfRange(t *testing.T) {
	chunk, env := buildTestChunk(t)
	dec := NewDecoder(env.Len())
	require.NoError(t, dec.LoadChunk(chunk))

	_, err := dec.DecompressTick(99)
	require.ErrorIs(t, err, model.ErrTickNotInChunk)
}

func TestDecompressTickNonSequentialMatchesSequential(t *testing.T) {
	chunk, env := buildTestChunk(t)
	dec := NewDecoder(env.Len())
	require.NoError(t, dec.LoadChunk(chunk))

	// Jump straight to the last tick without visiting the others first.
	last, err := dec.DecompressTick(3)
	require.NoError(t, err)

	// Now walk sequentially and confirm the final state agrees.
	dec2 := NewDecoder(env.Len())
	require.NoError(t, dec2.LoadChunk(chunk))
	_, err = dec2.DecompressTick(0)
	require.NoError(t, err)
	_, err = dec2.DecompressTick(1)
	require.NoError(t, err)
	_, err = dec2.DecompressTick(2)
	require.NoError(t, err)
	walked, err := dec2.DecompressTick(3)
	require.NoError(t, err)

	require.ElementsMatch(t, last.CellColumns.FlatIndex, walked.CellColumns.FlatIndex)
}

func TestDecompressChunkIteratesInOrder(t *testing.T) {
	chunk, env := buildTestChunk(t)
	dec := NewDecoder(env.Len())
	require.NoError(t, dec.LoadChunk(chunk))

	var ticks []uint64
	var cellCounts []int
	err := dec.DecompressChunk(func(td model.TickData) error {
		ticks = append(ticks, td.TickNumber)
		cellCounts = append(cellCounts, td.CellColumns.Len())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2, 3}, ticks)
	require.Equal(t, []int{1, 2, 3, 4}, cellCounts)
}
