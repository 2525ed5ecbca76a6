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

package resume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evochora/telemetry/pkg/model"
)

func TestRestoreDropsDeadOrganismsAndSetsResumeTick(t *testing.T) {
	cp := Checkpoint{
		Metadata: model.SimulationMetadata{RunID: "run-1", Environment: model.EnvironmentMetadata{Shape: model.Shape{Dims: []int{2, 2}}}},
		Snapshot: model.TickData{
			RunID:      "run-1",
			TickNumber: 100,
			CellColumns: model.CellColumnBatch{
				FlatIndex:    []uint64{0},
				MoleculeData: []uint32{7},
				OwnerID:      []uint64{1},
			},
			Organisms: []model.OrganismState{
				{ID: 1, IsDead: false, GenomeHash: "g1"},
				{ID: 2, IsDead: true, GenomeHash: "g2"},
			},
			TotalOrganismsCreated: 5,
			GenomeHashesEverSeen:  []string{"g1", "g2"},
		},
	}

	r := NewSimulationRestorer()
	result, err := r.Restore(cp)
	require.NoError(t, err)

	require.Equal(t, "run-1", result.RunID)
	require.Equal(t, uint64(101), result.ResumeFromTick)
	require.Equal(t, uint64(100), result.Simulation.CurrentTick)
	require.Equal(t, uint64(5), result.Simulation.TotalOrganismsCreated)
	require.Len(t, result.Simulation.Organisms, 1, "dead organisms must not be recreated")
	require.Equal(t, uint64(1), result.Simulation.Organisms[0].ID)
	require.Equal(t, []string{"g1", "g2"}, result.Simulation.GenomeHashesEverSeen)
	require.Equal(t, model.Cell{Molecule: model.Molecule(7), OwnerID: 1}, result.Simulation.Environment.At(0))
}

func TestRestoreFallsBackToLivingOrganismGenomesWhenAbsent(t *testing.T) {
	cp := Checkpoint{
		Metadata: model.SimulationMetadata{RunID: "run-1", Environment: model.EnvironmentMetadata{Shape: model.Shape{Dims: []int{1}}}},
		Snapshot: model.TickData{
			TickNumber: 0,
			Organisms: []model.OrganismState{
				{ID: 1, IsDead: false, GenomeHash: "g1"},
				{ID: 2, IsDead: false, GenomeHash: "g1"},
				{ID: 3, IsDead: true, GenomeHash: "g-dead"},
			},
		},
	}

	r := NewSimulationRestorer()
	result, err := r.Restore(cp)
	require.NoError(t, err)
	require.Equal(t, []string{"g1"}, result.Simulation.GenomeHashesEverSeen, "old-format fallback unions living organisms' genomes only, deduplicated")
}
