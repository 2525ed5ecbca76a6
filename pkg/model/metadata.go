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

// SimulationMetadata is written once per run before any chunk is emitted.
type SimulationMetadata struct {
	RunID                    string
	InitialSeed              int64
	StartTimeMs              int64
	Environment              EnvironmentMetadata
	ResolvedConfigJSON       string
	SamplingInterval         int
	AccumulatedDeltaInterval int
	SnapshotInterval         int
	ChunkInterval            int
}

// EnvironmentMetadata is the declared shape and topology of a run's grid,
// recorded so the resume loader can rebuild an identical Environment.
type EnvironmentMetadata struct {
	Shape Shape
}
