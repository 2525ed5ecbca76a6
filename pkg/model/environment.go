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

// Shape describes the N-dimensional extent and wrap topology of the grid.
type Shape struct {
	Dims     []int  `json:"dims"`
	Toroidal []bool `json:"toroidal"` // per-dimension wrap flag
}

// Cell is a single grid occupant: a molecule plus the id of the organism
// that owns it (0 if unowned).
type Cell struct {
	Molecule Molecule
	OwnerID  uint64
}

// Environment is the live, in-memory N-dimensional grid the simulation
// mutates every tick. It tracks which flat indices changed since the last
// time the encoder drained them, so the encoder never has to diff the
// whole grid.
type Environment struct {
	shape   Shape
	strides []int // strides[i] = product of dims[i+1:]
	cells   []Cell
	changed map[int]struct{}
}

// NewEnvironment allocates a dense grid of the given shape. All cells start
// empty and unowned.
func NewEnvironment(shape Shape) (*Environment, error) {
	if len(shape.Dims) == 0 {
		return nil, fmt.Errorf("%w: environment must have at least one dimension", ErrConfiguration)
	}
	total := 1
	for _, d := range shape.Dims {
		if d <= 0 {
			return nil, fmt.Errorf("%w: dimension extents must be positive, got %d", ErrConfiguration, d)
		}
		total *= d
	}
	strides := make([]int, len(shape.Dims))
	acc := 1
	for i := len(shape.Dims) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape.Dims[i]
	}
	empty := NewMolecule(KindEmpty, 0)
	cells := make([]Cell, total)
	for i := range cells {
		cells[i].Molecule = empty
	}
	return &Environment{
		shape:   shape,
		strides: strides,
		cells:   cells,
		changed: make(map[int]struct{}),
	}, nil
}

// Shape returns the environment's declared shape.
func (e *Environment) Shape() Shape { return e.shape }

// Len returns the total number of cells in the grid.
func (e *Environment) Len() int { return len(e.cells) }

// FlatIndex converts an N-dimensional coordinate vector into a row-major
// flat index: flat = x0*(d1*d2...) + x1*(d2...) + ... + x_{N-1}.
func (e *Environment) FlatIndex(coords []int) (int, error) {
	if len(coords) != len(e.shape.Dims) {
		return 0, fmt.Errorf("%w: expected %d coordinates, got %d", ErrConfiguration, len(e.shape.Dims), len(coords))
	}
	flat := 0
	for i, c := range coords {
		flat += c * e.strides[i]
	}
	return flat, nil
}

// At returns the cell at a flat index.
func (e *Environment) At(flat int) Cell { return e.cells[flat] }

// Set writes a cell at a flat index and records it as changed since the
// last drain. This is the only mutation path the simulation's hot loop
// should use.
func (e *Environment) Set(flat int, c Cell) {
	e.cells[flat] = c
	e.changed[flat] = struct{}{}
}

// DrainChanged returns the set of flat indices mutated since the previous
// call (or since construction), and clears the change set. The encoder
// calls this exactly once per tick.
func (e *Environment) DrainChanged() []int {
	if len(e.changed) == 0 {
		return nil
	}
	out := make([]int, 0, len(e.changed))
	for flat := range e.changed {
		out = append(out, flat)
	}
	e.changed = make(map[int]struct{})
	return out
}

// Snapshot materializes the dense cell-column form of the whole grid, in
// flat-index order, skipping empty cells (a cell with no molecule and no
// owner carries no information worth shipping).
func (e *Environment) Snapshot() CellColumnBatch {
	batch := CellColumnBatch{}
	for flat, c := range e.cells {
		if c.Molecule.IsEmpty() && c.OwnerID == 0 {
			continue
		}
		batch.FlatIndex = append(batch.FlatIndex, uint64(flat))
		batch.MoleculeData = append(batch.MoleculeData, uint32(c.Molecule))
		batch.OwnerID = append(batch.OwnerID, c.OwnerID)
	}
	return batch
}

// Apply overwrites cells named by a column batch (last-write-wins within
// the batch, since §3 requires no index repeated in a single batch).
func (e *Environment) Apply(batch CellColumnBatch) {
	for i, flat := range batch.FlatIndex {
		e.cells[flat] = Cell{
			Molecule: Molecule(batch.MoleculeData[i]),
			OwnerID:  batch.OwnerID[i],
		}
	}
}
