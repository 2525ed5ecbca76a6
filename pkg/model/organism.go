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

// RegisterValue is a scalar-or-vector register. Only one of the two fields
// is populated; which one is itself opaque to the pipeline.
type RegisterValue struct {
	Scalar int64
	Vector []int
	IsVec  bool
}

// OrganismState is the per-organism record carried in every TickData and
// TickDelta. Beyond id, parent linkage, liveness, genome hash, instruction
// pointer and data pointers, the pipeline treats the contents as opaque
// payload it neither interprets nor diffs — organisms are always stored
// whole.
type OrganismState struct {
	ID                uint64
	ParentID          *uint64
	BirthTick         uint64
	ProgramID         uint64
	Energy            int64
	Entropy           int64
	InstructionPointer []int
	Direction          []int
	DataPointers       [][]int
	ActivePointerIndex int
	DataRegisters      []RegisterValue
	ProcedureRegisters []RegisterValue
	IsDead             bool
	GenomeHash         string
}
