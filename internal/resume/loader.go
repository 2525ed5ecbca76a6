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

// Package resume implements the checkpoint loader and simulation restorer
// (§4.5): given a run id, find the latest usable snapshot and materialize a
// ready-to-run simulation positioned at resume_from_tick.
package resume

import (
	"fmt"

	"github.com/evochora/telemetry/pkg/model"
	"github.com/evochora/telemetry/pkg/storage"
)

// Checkpoint is what SnapshotLoader.Load returns: the run's metadata plus
// the snapshot TickData of the last chunk in the run's last batch file.
type Checkpoint struct {
	Metadata model.SimulationMetadata
	Snapshot model.TickData
}

// SnapshotLoader locates the latest usable checkpoint for a run, grounded
// on plugin/tfd/pipeline.go's thin-facade-over-lower-level-pieces shape:
// it composes MetadataStore and ObjectStore without owning either.
type SnapshotLoader struct {
	metadata *storage.MetadataStore
	objects  storage.ObjectStore
}

// NewSnapshotLoader returns a loader backed by metadata and objects.
func NewSnapshotLoader(metadata *storage.MetadataStore, objects storage.ObjectStore) *SnapshotLoader {
	return &SnapshotLoader{metadata: metadata, objects: objects}
}

// Load implements §4.5's "Finding the checkpoint" steps 1-4.
func (l *SnapshotLoader) Load(runID string) (Checkpoint, error) {
	meta, err := l.metadata.Read(runID)
	if err != nil {
		return Checkpoint{}, err // ErrMetadataNotFound / ErrRunIDMismatch, already wrapped
	}

	path, ok, err := l.objects.FindLastBatchFile(runID)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("resume: finding last batch file: %w", err)
	}
	if !ok {
		return Checkpoint{}, fmt.Errorf("resume: no batch files for run %q: %w", runID, model.ErrEmptyBatchFile)
	}

	var snapshot model.TickData
	seen := false
	err = l.objects.ForEachChunk(path, model.FilterSnapshotOnly, func(chunk model.TickDataChunk) error {
		snapshot = chunk.Snapshot
		seen = true
		return nil
	})
	if err != nil {
		return Checkpoint{}, fmt.Errorf("resume: streaming last batch file: %w", err)
	}
	if !seen {
		return Checkpoint{}, fmt.Errorf("resume: batch file %q contained no chunks: %w", path, model.ErrEmptyBatchFile)
	}

	return Checkpoint{Metadata: meta, Snapshot: snapshot}, nil
}
