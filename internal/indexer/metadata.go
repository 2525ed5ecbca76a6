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

package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evochora/telemetry/pkg/model"
	"github.com/evochora/telemetry/pkg/storage"
)

// MetadataWaiter is the §4.4.a pluggable component: polls the metadata
// store until the run's SimulationMetadata appears or a maximum wait
// elapses, then serves it from memory for the lifetime of the worker.
// Grounded on persistence/factory.go's construction-time resource
// resolution: a required component that fails fast if its backing
// resource never shows up.
type MetadataWaiter struct {
	store        *storage.MetadataStore
	pollInterval time.Duration
	maxWait      time.Duration

	meta *model.SimulationMetadata
}

// NewMetadataWaiter returns a waiter over store.
func NewMetadataWaiter(store *storage.MetadataStore, pollInterval, maxWait time.Duration) *MetadataWaiter {
	return &MetadataWaiter{store: store, pollInterval: pollInterval, maxWait: maxWait}
}

// Wait blocks, polling at pollInterval, until runID's metadata is found or
// maxWait elapses. On success the metadata is cached for GetMetadata.
func (w *MetadataWaiter) Wait(ctx context.Context, runID string) error {
	deadline := time.Now().Add(w.maxWait)
	for {
		meta, err := w.store.Read(runID)
		switch {
		case err == nil:
			w.meta = &meta
			return nil
		case errors.Is(err, model.ErrMetadataNotFound):
			// fall through to retry below
		default:
			return fmt.Errorf("indexer: metadata readiness check: %w", err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("indexer: metadata for run %q not found after %s: %w", runID, w.maxWait, model.ErrMetadataNotFound)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// GetMetadata returns the cached metadata. Contract: callers (PrepareTables,
// ChunkFieldFilter) must only call this after Wait has returned
// successfully; ProcessChunk may assume it is available.
func (w *MetadataWaiter) GetMetadata() model.SimulationMetadata {
	if w.meta == nil {
		panic("indexer: GetMetadata called before Wait succeeded")
	}
	return *w.meta
}
