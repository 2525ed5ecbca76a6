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

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/evochora/telemetry/pkg/model"
)

// MetadataStore reads and writes a run's SimulationMetadata blob through an
// ObjectStore. Metadata is JSON (not the chunk wire format): it is written
// once, read occasionally, and never appears on the hot path.
type MetadataStore struct {
	store ObjectStore
}

// NewMetadataStore wraps store.
func NewMetadataStore(store ObjectStore) *MetadataStore {
	return &MetadataStore{store: store}
}

// Write serializes and writes a run's metadata.
func (m *MetadataStore) Write(meta model.SimulationMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("metadatastore: marshal metadata for %s: %w", meta.RunID, err)
	}
	path := m.store.FindMetadataPath(meta.RunID)
	if err := m.store.WriteMessage(path, b); err != nil {
		return fmt.Errorf("metadatastore: write metadata for %s: %w", meta.RunID, err)
	}
	return nil
}

// Read loads a run's metadata. It returns ErrMetadataNotFound if the blob
// does not exist, and ErrRunIDMismatch if the loaded metadata's run id does
// not match runID.
func (m *MetadataStore) Read(runID string) (model.SimulationMetadata, error) {
	path := m.store.FindMetadataPath(runID)
	b, err := m.store.ReadMessage(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.SimulationMetadata{}, fmt.Errorf("%w: run %s", model.ErrMetadataNotFound, runID)
		}
		return model.SimulationMetadata{}, fmt.Errorf("%w: run %s: %v", model.ErrMetadataNotFound, runID, err)
	}
	var meta model.SimulationMetadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return model.SimulationMetadata{}, fmt.Errorf("metadatastore: unmarshal metadata for %s: %w", runID, err)
	}
	if meta.RunID != runID {
		return model.SimulationMetadata{}, fmt.Errorf("%w: requested %s, got %s", model.ErrRunIDMismatch, runID, meta.RunID)
	}
	return meta, nil
}
