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
	"fmt"

	"github.com/evochora/telemetry/pkg/model"
)

// RestoredSimulation is a ready-to-run simulation positioned at the
// checkpoint's resume tick. It holds the live, mutable state a simulation
// loop needs to continue ticking forward; unlike the wire types in
// pkg/model, it is not itself (de)serialized.
type RestoredSimulation struct {
	Environment           *model.Environment
	Organisms             []model.OrganismState
	CurrentTick           uint64
	TotalOrganismsCreated uint64
	GenomeHashesEverSeen  []string
}

// Result is what SimulationRestorer.Restore returns, per §4.5's
// {simulation, run_id, resume_from_tick} triple.
type Result struct {
	Simulation    RestoredSimulation
	RunID         string
	ResumeFromTick uint64
}

// SimulationRestorer rebuilds a live simulation from a loaded Checkpoint.
// Grounded on core.Store's "retain latest observed state" idiom, adapted
// from an in-memory cache of many keys to a one-shot rebuild of a single
// run's state.
type SimulationRestorer struct{}

// NewSimulationRestorer returns a stateless restorer.
func NewSimulationRestorer() *SimulationRestorer { return &SimulationRestorer{} }

// Restore implements §4.5's "Restoring" paragraph.
func (r *SimulationRestorer) Restore(cp Checkpoint) (Result, error) {
	env, err := model.NewEnvironment(cp.Metadata.Environment.Shape)
	if err != nil {
		return Result{}, fmt.Errorf("resume: constructing environment: %w", err)
	}
	env.Apply(cp.Snapshot.CellColumns)

	var living []model.OrganismState
	for _, o := range cp.Snapshot.Organisms {
		if o.IsDead {
			continue
		}
		living = append(living, o)
	}

	genomes := cp.Snapshot.GenomeHashesEverSeen
	if len(genomes) == 0 {
		genomes = unionGenomeHashes(living)
	}

	sim := RestoredSimulation{
		Environment:           env,
		Organisms:             living,
		CurrentTick:           cp.Snapshot.TickNumber,
		TotalOrganismsCreated: cp.Snapshot.TotalOrganismsCreated,
		GenomeHashesEverSeen:  genomes,
	}

	return Result{
		Simulation:     sim,
		RunID:          cp.Metadata.RunID,
		ResumeFromTick: cp.Snapshot.TickNumber + 1,
	}, nil
}

// unionGenomeHashes falls back to the set of living organisms' genome
// hashes when a snapshot predates the "genomes ever seen" field, per §4.5's
// old-format tolerance note.
func unionGenomeHashes(organisms []model.OrganismState) []string {
	seen := make(map[string]struct{}, len(organisms))
	var out []string
	for _, o := range organisms {
		if o.GenomeHash == "" {
			continue
		}
		if _, ok := seen[o.GenomeHash]; ok {
			continue
		}
		seen[o.GenomeHash] = struct{}{}
		out = append(out, o.GenomeHash)
	}
	return out
}
