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

import "errors"

// Sentinel errors the pipeline distinguishes, per the error-handling design.
// Callers should use errors.Is against these; concrete errors are wrapped
// with additional context via fmt.Errorf("...: %w", ...).
var (
	// ErrConfiguration marks a fatal-at-construction configuration error
	// (invalid interval, missing required resource).
	ErrConfiguration = errors.New("configuration error")

	// ErrMetadataNotFound means no SimulationMetadata blob exists for a run.
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrRunIDMismatch means a metadata blob's run_id differs from the one
	// requested.
	ErrRunIDMismatch = errors.New("run id mismatch")

	// ErrTickNotInChunk means a requested tick falls outside
	// [chunk.FirstTick, chunk.LastTick].
	ErrTickNotInChunk = errors.New("tick not in chunk")

	// ErrChunkCorrupt means a chunk fails one of the invariants Validate
	// checks (snapshot tick, tick count, deltas strictly increasing and
	// ending at LastTick) or a chunk frame could not be decoded. A chunk
	// lacking an accumulated delta where one is due is not detected.
	ErrChunkCorrupt = errors.New("chunk corrupt")

	// ErrEmptyBatchFile means a run has no batch file under its raw-data
	// prefix, or the batch file read contained no chunks.
	ErrEmptyBatchFile = errors.New("empty batch file")
)
