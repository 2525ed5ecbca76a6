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
	"fmt"
	"sort"

	"github.com/evochora/telemetry/pkg/model"
)

// EncoderConfig enumerates the three knobs that shape a chunk.
type EncoderConfig struct {
	// AccumulatedDeltaInterval is the sample spacing between ACCUMULATED
	// deltas within a chunk. Must be >= 1.
	AccumulatedDeltaInterval int
	// SnapshotInterval is the number of accumulated-delta windows per chunk
	// head snapshot. Must be >= 1.
	SnapshotInterval int
	// ChunkInterval is the number of snapshot windows per emitted chunk.
	// Must be >= 1.
	ChunkInterval int
}

// samplesPerChunk is the inclusive count of samples per chunk, counting the
// head snapshot as sample 0 (per DESIGN.md's resolution of the spec's open
// question on inclusive vs exclusive counting).
func (c EncoderConfig) samplesPerChunk() int {
	return c.AccumulatedDeltaInterval * c.SnapshotInterval * c.ChunkInterval
}

func (c EncoderConfig) validate() error {
	if c.AccumulatedDeltaInterval < 1 {
		return fmt.Errorf("%w: accumulated_delta_interval must be >= 1, got %d", model.ErrConfiguration, c.AccumulatedDeltaInterval)
	}
	if c.SnapshotInterval < 1 {
		return fmt.Errorf("%w: snapshot_interval must be >= 1, got %d", model.ErrConfiguration, c.SnapshotInterval)
	}
	if c.ChunkInterval < 1 {
		return fmt.Errorf("%w: chunk_interval must be >= 1, got %d", model.ErrConfiguration, c.ChunkInterval)
	}
	return nil
}

// Sample is one tick's worth of simulation output, fed to the encoder in
// strictly increasing tick order.
type Sample struct {
	RunID                 string
	TickNumber            uint64
	CaptureTimeMs         int64
	Env                   *model.Environment
	Organisms             []model.OrganismState
	TotalOrganismsCreated uint64
	TotalUniqueGenomes    uint64
	GenomeHashesEverSeen  []string
	RNGState              []byte
	PluginStates          map[string][]byte
}

// Encoder turns a per-tick sample stream into self-contained chunks. It is
// not safe for concurrent use: one encoder serves one simulation stream.
type Encoder struct {
	cfg    EncoderConfig
	spc    int
	active bool

	runID     string
	firstTick uint64
	position  int
	head      model.TickData
	deltas    []model.TickDelta

	// accum is the "last accumulated state" buffer: every cell changed since
	// the chunk's head snapshot, keyed by flat index. Cleared at every chunk
	// boundary, never within a chunk.
	accum map[uint64]model.Cell
}

// NewEncoder validates cfg and constructs an Encoder. Configuration errors
// are fatal at construction; the encoder performs no runtime validation of
// its own inputs beyond that.
func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Encoder{cfg: cfg, spc: cfg.samplesPerChunk()}, nil
}

// CaptureTick ingests one sample. It returns a non-nil chunk exactly when
// the sample completes a chunk (samples_per_chunk reached); the encoder then
// resets and is ready for the next chunk's head snapshot on the following
// call.
func (e *Encoder) CaptureTick(s Sample) (*model.TickDataChunk, error) {
	if !e.active {
		e.beginChunk(s)
		if e.spc == 1 {
			return e.emit(), nil
		}
		return nil, nil
	}

	changedFlats := s.Env.DrainChanged()
	changed := buildColumnBatch(s.Env, changedFlats)
	for i, flat := range changed.FlatIndex {
		e.accum[flat] = model.Cell{
			Molecule: model.Molecule(changed.MoleculeData[i]),
			OwnerID:  changed.OwnerID[i],
		}
	}

	deltaType := model.DeltaIncremental
	cells := changed
	if e.position%e.cfg.AccumulatedDeltaInterval == 0 {
		deltaType = model.DeltaAccumulated
		cells = accumSnapshot(e.accum)
	}

	e.deltas = append(e.deltas, model.TickDelta{
		RunID:                 s.RunID,
		TickNumber:            s.TickNumber,
		CaptureTimeMs:         s.CaptureTimeMs,
		DeltaType:             deltaType,
		ChangedCells:          cells,
		Organisms:             s.Organisms,
		TotalOrganismsCreated: s.TotalOrganismsCreated,
		TotalUniqueGenomes:    s.TotalUniqueGenomes,
		GenomeHashesEverSeen:  s.GenomeHashesEverSeen,
		RNGState:              s.RNGState,
		PluginStates:          s.PluginStates,
	})
	e.position++

	if e.position == e.spc {
		return e.emit(), nil
	}
	return nil, nil
}

// FlushPartialChunk emits the current in-progress chunk if it has at least
// a head snapshot, and discards encoder state. Called on graceful shutdown
// so no captured samples are lost.
func (e *Encoder) FlushPartialChunk() *model.TickDataChunk {
	if !e.active {
		return nil
	}
	return e.emit()
}

func (e *Encoder) beginChunk(s Sample) {
	s.Env.DrainChanged() // the head snapshot is dense; nothing to diff against it
	e.active = true
	e.runID = s.RunID
	e.firstTick = s.TickNumber
	e.accum = make(map[uint64]model.Cell)
	e.deltas = nil
	e.head = model.TickData{
		RunID:                 s.RunID,
		TickNumber:            s.TickNumber,
		CaptureTimeMs:         s.CaptureTimeMs,
		CellColumns:           s.Env.Snapshot(),
		Organisms:             s.Organisms,
		TotalOrganismsCreated: s.TotalOrganismsCreated,
		TotalUniqueGenomes:    s.TotalUniqueGenomes,
		GenomeHashesEverSeen:  s.GenomeHashesEverSeen,
		RNGState:              s.RNGState,
		PluginStates:          s.PluginStates,
	}
	e.position = 1
}

func (e *Encoder) emit() *model.TickDataChunk {
	lastTick := e.firstTick
	if len(e.deltas) > 0 {
		lastTick = e.deltas[len(e.deltas)-1].TickNumber
	}
	chunk := &model.TickDataChunk{
		RunID:     e.runID,
		FirstTick: e.firstTick,
		LastTick:  lastTick,
		TickCount: uint64(1 + len(e.deltas)),
		Snapshot:  e.head,
		Deltas:    e.deltas,
	}
	e.active = false
	e.accum = nil
	e.deltas = nil
	return chunk
}

func buildColumnBatch(env *model.Environment, flats []int) model.CellColumnBatch {
	sort.Ints(flats)
	batch := model.CellColumnBatch{
		FlatIndex:    make([]uint64, len(flats)),
		MoleculeData: make([]uint32, len(flats)),
		OwnerID:      make([]uint64, len(flats)),
	}
	for i, flat := range flats {
		c := env.At(flat)
		batch.FlatIndex[i] = uint64(flat)
		batch.MoleculeData[i] = uint32(c.Molecule)
		batch.OwnerID[i] = c.OwnerID
	}
	return batch
}

func accumSnapshot(accum map[uint64]model.Cell) model.CellColumnBatch {
	flats := make([]uint64, 0, len(accum))
	for flat := range accum {
		flats = append(flats, flat)
	}
	sort.Slice(flats, func(i, j int) bool { return flats[i] < flats[j] })
	batch := model.CellColumnBatch{
		FlatIndex:    make([]uint64, len(flats)),
		MoleculeData: make([]uint32, len(flats)),
		OwnerID:      make([]uint64, len(flats)),
	}
	for i, flat := range flats {
		c := accum[flat]
		batch.FlatIndex[i] = flat
		batch.MoleculeData[i] = uint32(c.Molecule)
		batch.OwnerID[i] = c.OwnerID
	}
	return batch
}
