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

// DeltaType distinguishes an incremental delta (changes since the previous
// sample) from an accumulated one (changes since the chunk's head
// snapshot).
type DeltaType uint8

const (
	DeltaIncremental DeltaType = iota
	DeltaAccumulated
)

func (d DeltaType) String() string {
	if d == DeltaAccumulated {
		return "ACCUMULATED"
	}
	return "INCREMENTAL"
}

// TickData is the full world state at a given tick.
type TickData struct {
	RunID                string
	TickNumber           uint64
	CaptureTimeMs         int64
	CellColumns           CellColumnBatch
	Organisms             []OrganismState
	TotalOrganismsCreated uint64
	TotalUniqueGenomes    uint64
	GenomeHashesEverSeen  []string
	RNGState              []byte
	PluginStates           map[string][]byte
}

// TickDelta is the per-tick change set: everything TickData carries except
// a dense cell-column snapshot, which is replaced by changed_cells.
type TickDelta struct {
	RunID                 string
	TickNumber            uint64
	CaptureTimeMs         int64
	DeltaType             DeltaType
	ChangedCells          CellColumnBatch
	Organisms             []OrganismState
	TotalOrganismsCreated uint64
	TotalUniqueGenomes    uint64
	GenomeHashesEverSeen  []string
	RNGState              []byte
	PluginStates           map[string][]byte
}
