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

package model

import "fmt"

// TickDataChunk is a self-contained, append-only unit: one snapshot at its
// head followed by a bounded, strictly-increasing run of deltas.
type TickDataChunk struct {
	RunID     string
	FirstTick uint64
	LastTick  uint64
	TickCount uint64
	Snapshot  TickData
	Deltas    []TickDelta
}

// FieldFilter lets a processor skip heavy fields during deserialization.
// The zero value (FilterAll) deserializes everything.
type FieldFilter uint8

const (
	// FilterAll deserializes snapshot, deltas, organisms and plugin state.
	FilterAll FieldFilter = iota
	// FilterSnapshotOnly deserializes only the head snapshot (its cell
	// columns, organisms and other fields) and skips the deltas, which are
	// read past and left nil. Used by the resume loader and by pass-through
	// indexers.
	FilterSnapshotOnly
	// FilterOrganismsOnly deserializes organism lists but skips cell columns.
	FilterOrganismsOnly
)

// Validate checks the invariants a chunk must satisfy (§3):
//   - snapshot.TickNumber == FirstTick
//   - deltas strictly increasing in tick number, last equals LastTick
//   - TickCount == 1 + len(Deltas)
func (c *TickDataChunk) Validate() error {
	if c.Snapshot.TickNumber != c.FirstTick {
		return fmt.Errorf("%w: snapshot tick %d != first tick %d", ErrChunkCorrupt, c.Snapshot.TickNumber, c.FirstTick)
	}
	if c.TickCount != uint64(1+len(c.Deltas)) {
		return fmt.Errorf("%w: tick count %d != 1+%d deltas", ErrChunkCorrupt, c.TickCount, len(c.Deltas))
	}
	prev := c.FirstTick
	for i, d := range c.Deltas {
		if d.TickNumber <= prev {
			return fmt.Errorf("%w: delta %d tick %d not strictly increasing after %d", ErrChunkCorrupt, i, d.TickNumber, prev)
		}
		prev = d.TickNumber
	}
	if len(c.Deltas) > 0 && c.Deltas[len(c.Deltas)-1].TickNumber != c.LastTick {
		return fmt.Errorf("%w: last delta tick %d != last tick %d", ErrChunkCorrupt, c.Deltas[len(c.Deltas)-1].TickNumber, c.LastTick)
	}
	if len(c.Deltas) == 0 && c.LastTick != c.FirstTick {
		return fmt.Errorf("%w: no deltas but last tick %d != first tick %d", ErrChunkCorrupt, c.LastTick, c.FirstTick)
	}
	return nil
}

// lastAccumulatedAt returns the index of the last delta with DeltaAccumulated
// and TickNumber <= tick, or -1 if none qualifies.
func (c *TickDataChunk) lastAccumulatedAt(tick uint64) int {
	best := -1
	for i, d := range c.Deltas {
		if d.TickNumber > tick {
			break
		}
		if d.DeltaType == DeltaAccumulated {
			best = i
		}
	}
	return best
}
