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

	"github.com/evochora/telemetry/pkg/model"
)

// Decoder reconstructs ticks out of a loaded chunk. It owns a dense
// cell-state buffer sized to the world's cell count and reuses it across
// every decompression on the same chunk, so it is not safe to share a
// Decoder across goroutines or across chunks from different worlds.
type Decoder struct {
	worldLen int
	dense    []model.Cell
	chunk    *model.TickDataChunk
}

// NewDecoder allocates a decoder for a world with worldLen cells.
func NewDecoder(worldLen int) *Decoder {
	return &Decoder{worldLen: worldLen, dense: make([]model.Cell, worldLen)}
}

// LoadChunk validates and installs chunk as the decoder's current chunk.
// The dense buffer is not touched until the first decompress call.
func (d *Decoder) LoadChunk(chunk *model.TickDataChunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}
	d.chunk = chunk
	return nil
}

// DecompressTick reconstructs the full TickData at tick. Each call recomputes
// independently from the snapshot plus the nearest preceding accumulated
// delta plus any intervening incrementals, bounding the work at one
// accumulated delta application and up to accumulated_delta_interval-1
// incremental applications, regardless of which tick was last requested.
func (d *Decoder) DecompressTick(tick uint64) (model.TickData, error) {
	c := d.chunk
	if c == nil {
		return model.TickData{}, fmt.Errorf("codec: decoder has no chunk loaded")
	}
	if tick < c.FirstTick || tick > c.LastTick {
		return model.TickData{}, fmt.Errorf("%w: tick %d outside chunk range [%d,%d]", model.ErrTickNotInChunk, tick, c.FirstTick, c.LastTick)
	}
	if tick == c.FirstTick {
		d.applySnapshot()
		return c.Snapshot, nil
	}
	targetIdx := indexOfTick(c.Deltas, tick)
	if targetIdx < 0 {
		return model.TickData{}, fmt.Errorf("%w: tick %d has no recorded sample in chunk", model.ErrTickNotInChunk, tick)
	}
	lastAccumIdx := -1
	for i := 0; i <= targetIdx; i++ {
		if c.Deltas[i].DeltaType == model.DeltaAccumulated {
			lastAccumIdx = i
		}
	}
	d.applySnapshot()
	start := 0
	if lastAccumIdx >= 0 {
		d.applyBatch(c.Deltas[lastAccumIdx].ChangedCells)
		start = lastAccumIdx + 1
	}
	for i := start; i <= targetIdx; i++ {
		d.applyBatch(c.Deltas[i].ChangedCells)
	}
	target := c.Deltas[targetIdx]
	return model.TickData{
		RunID:                 target.RunID,
		TickNumber:            target.TickNumber,
		CaptureTimeMs:         target.CaptureTimeMs,
		CellColumns:           d.denseToBatch(),
		Organisms:             target.Organisms,
		TotalOrganismsCreated: target.TotalOrganismsCreated,
		TotalUniqueGenomes:    target.TotalUniqueGenomes,
		GenomeHashesEverSeen:  target.GenomeHashesEverSeen,
		RNGState:              target.RNGState,
		PluginStates:          target.PluginStates,
	}, nil
}

// DecompressChunk emits every tick in the loaded chunk, in strictly
// increasing order, starting with the snapshot. Unlike DecompressTick, it
// keeps the dense buffer current across calls to consume and applies only
// the incoming delta at each step, so the delta-application work across the
// whole chunk is proportional to the number of changed cells, not to
// tick_count times accumulated_delta_interval. Building each emitted
// TickData still walks the whole dense buffer once.
func (d *Decoder) DecompressChunk(consume func(model.TickData) error) error {
	c := d.chunk
	if c == nil {
		return fmt.Errorf("codec: decoder has no chunk loaded")
	}
	d.applySnapshot()
	if err := consume(c.Snapshot); err != nil {
		return err
	}
	for _, delta := range c.Deltas {
		d.applyBatch(delta.ChangedCells)
		td := model.TickData{
			RunID:                 delta.RunID,
			TickNumber:            delta.TickNumber,
			CaptureTimeMs:         delta.CaptureTimeMs,
			CellColumns:           d.denseToBatch(),
			Organisms:             delta.Organisms,
			TotalOrganismsCreated: delta.TotalOrganismsCreated,
			TotalUniqueGenomes:    delta.TotalUniqueGenomes,
			GenomeHashesEverSeen:  delta.GenomeHashesEverSeen,
			RNGState:              delta.RNGState,
			PluginStates:          delta.PluginStates,
		}
		if err := consume(td); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) applySnapshot() {
	empty := model.NewMolecule(model.KindEmpty, 0)
	for i := range d.dense {
		d.dense[i] = model.Cell{Molecule: empty}
	}
	d.applyBatch(d.chunk.Snapshot.CellColumns)
}

func (d *Decoder) applyBatch(batch model.CellColumnBatch) {
	for i, flat := range batch.FlatIndex {
		d.dense[flat] = model.Cell{
			Molecule: model.Molecule(batch.MoleculeData[i]),
			OwnerID:  batch.OwnerID[i],
		}
	}
}

func (d *Decoder) denseToBatch() model.CellColumnBatch {
	var batch model.CellColumnBatch
	for flat, c := range d.dense {
		if c.Molecule.IsEmpty() && c.OwnerID == 0 {
			continue
		}
		batch.FlatIndex = append(batch.FlatIndex, uint64(flat))
		batch.MoleculeData = append(batch.MoleculeData, uint32(c.Molecule))
		batch.OwnerID = append(batch.OwnerID, c.OwnerID)
	}
	return batch
}

// indexOfTick returns the index of the delta with the given tick number, or
// -1 if none matches. Deltas are strictly increasing (enforced by
// TickDataChunk.Validate), so a binary search applies.
func indexOfTick(deltas []model.TickDelta, tick uint64) int {
	lo, hi := 0, len(deltas)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case deltas[mid].TickNumber == tick:
			return mid
		case deltas[mid].TickNumber < tick:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}
