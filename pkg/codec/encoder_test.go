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

func newTestEnv(t *testing.T) *model.Environment {
	t.Helper()
	env, err := model.NewEnvironment(model.Shape{Dims: []int{4, 4}})
	require.NoError(t, err)
	return env
}

func setCode(t *testing.T, env *model.Environment, x, y int) {
	t.Helper()
	flat, err := env.FlatIndex([]int{x, y})
	require.NoError(t, err)
	env.Set(flat, model.Cell{Molecule: model.NewMolecule(model.KindCode, 1), OwnerID: 1})
}

func sample(tick uint64, env *model.Environment) Sample {
	return Sample{RunID: "run-1", TickNumber: tick, CaptureTimeMs: int64(tick) * 100, Env: env}
}

// TestEncoderBoundaries reproduces scenario 1 from the spec: with
// accumulated_delta_interval=2, snapshot_interval=2, chunk_interval=1
// (samples_per_chunk=4), four ticks each touching one new cell produce a
// single chunk with deltas [INCREMENTAL@1, ACCUMULATED@2, INCREMENTAL@3],
// and the ACCUMULATED delta carries both cells changed since the head.
func TestEncoderBoundaries(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{AccumulatedDeltaInterval: 2, SnapshotInterval: 2, ChunkInterval: 1})
	require.NoError(t, err)

	env := newTestEnv(t)
	setCode(t, env, 0, 0)
	chunk, err := enc.CaptureTick(sample(0, env))
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

	require.Equal(t, uint64(0), chunk.FirstTick)
	require.Equal(t, uint64(3), chunk.LastTick)
	require.Equal(t, uint64(4), chunk.TickCount)
	require.Len(t, chunk.Deltas, 3)
	require.Equal(t, model.DeltaIncremental, chunk.Deltas[0].DeltaType)
	require.Equal(t, model.DeltaAccumulated, chunk.Deltas[1].DeltaType)
	require.Equal(t, model.DeltaIncremental, chunk.Deltas[2].DeltaType)
	require.Equal(t, 2, chunk.Deltas[1].ChangedCells.Len())

	flat11, err := env.FlatIndex([]int{1, 1})
	require.NoError(t, err)
	flat22, err := env.FlatIndex([]int{2, 2})
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{uint64(flat11), uint64(flat22)}, chunk.Deltas[1].ChangedCells.FlatIndex)

	require.NoError(t, chunk.Validate())
}

func TestEncoderStartsNewChunkAfterEmit(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{AccumulatedDeltaInterval: 1, SnapshotInterval: 1, ChunkInterval: 2})
	require.NoError(t, err)

	env := newTestEnv(t)
	chunk, err := enc.CaptureTick(sample(0, env))
	require.NoError(t, err)
	require.Nil(t, chunk)

	chunk, err = enc.CaptureTick(sample(1, env))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	require.Equal(t, uint64(0), chunk.FirstTick)
	require.Equal(t, uint64(1), chunk.LastTick)

	// Next tick begins a fresh chunk head, not a continuation.
	chunk, err = enc.CaptureTick(sample(2, env))
	require.NoError(t, err)
	require.Nil(t, chunk)
}

func TestEncoderRejectsBadConfig(t *testing.T) {
	_, err := NewEncoder(EncoderConfig{AccumulatedDeltaInterval: 0, SnapshotInterval: 1, ChunkInterval: 1})
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestFlushPartialChunk(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{AccumulatedDeltaInterval: 2, SnapshotInterval: 2, ChunkInterval: 2})
	require.NoError(t, err)

	env := newTestEnv(t)
	_, err = enc.CaptureTick(sample(0, env))
	require.NoError(t, err)
	setCode(t, env, 0, 1)
	chunk, err := enc.CaptureTick(sample(1, env))
	require.NoError(t, err)
	require.Nil(t, chunk)

	partial := enc.FlushPartialChunk()
	require.NotNil(t, partial)
	require.Equal(t, uint64(1), partial.LastTick)
	require.Len(t, partial.Deltas, 1)
	require.NoError(t, partial.Validate())

	require.Nil(t, enc.FlushPartialChunk())
}
