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

// Command encodersim drives the delta encoder against a toy simulation: a
// deterministic cell-mutation generator stands in for a real artificial-life
// engine so the encode -> object-store -> work-topic pipeline can be
// exercised end to end without one.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/evochora/telemetry/internal/indexer"
	"github.com/evochora/telemetry/pkg/codec"
	"github.com/evochora/telemetry/pkg/config"
	"github.com/evochora/telemetry/pkg/model"
	"github.com/evochora/telemetry/pkg/storage"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.ParseEncoderConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.RunID == "" {
		log.Error("config error", "error", "run_id is required")
		os.Exit(2)
	}

	indexer.ServeMetrics(cfg.MetricsAddr)

	shape := model.Shape{Dims: cfg.WorldDims}
	env, err := model.NewEnvironment(shape)
	if err != nil {
		log.Error("config error", "error", err)
		os.Exit(2)
	}

	store := storage.NewFSObjectStore(cfg.ObjectDir, storage.NewPathBuilder(nil))
	metaStore := storage.NewMetadataStore(store)
	startMs := time.Now().UnixMilli()
	meta := model.SimulationMetadata{
		RunID:                    cfg.RunID,
		StartTimeMs:              startMs,
		Environment:              model.EnvironmentMetadata{Shape: shape},
		AccumulatedDeltaInterval: cfg.Codec.AccumulatedDeltaInterval,
		SnapshotInterval:         cfg.Codec.SnapshotInterval,
		ChunkInterval:            cfg.Codec.ChunkInterval,
	}
	if err := metaStore.Write(meta); err != nil {
		log.Error("writing metadata failed", "error", err)
		os.Exit(1)
	}

	enc, err := codec.NewEncoder(cfg.Codec)
	if err != nil {
		log.Error("config error", "error", err)
		os.Exit(2)
	}

	topic := storage.NewMemTopic(time.Minute)
	rng := rand.New(rand.NewSource(1))
	genomesSeen := map[string]struct{}{"genome-0": {}}

	for tick := uint64(0); tick < cfg.Ticks; tick++ {
		mutateEnvironment(env, rng)
		sample := codec.Sample{
			RunID:                cfg.RunID,
			TickNumber:           tick,
			CaptureTimeMs:        time.Now().UnixMilli(),
			Env:                  env,
			TotalOrganismsCreated: uint64(len(genomesSeen)),
			TotalUniqueGenomes:   uint64(len(genomesSeen)),
			GenomeHashesEverSeen: keys(genomesSeen),
		}
		chunk, err := enc.CaptureTick(sample)
		if err != nil {
			log.Error("capture tick failed", "tick", tick, "error", err)
			os.Exit(1)
		}
		if chunk != nil {
			publishChunk(log, store, topic, *chunk)
		}
	}

	if final := enc.FlushPartialChunk(); final != nil {
		publishChunk(log, store, topic, *final)
	}

	log.Info("encoder simulation complete", "run_id", cfg.RunID, "ticks", cfg.Ticks)
}

func publishChunk(log *slog.Logger, store storage.ObjectStore, topic *storage.MemTopic, chunk model.TickDataChunk) {
	path, err := store.WriteChunkBatch(chunk.RunID, chunk.FirstTick, chunk.LastTick, []model.TickDataChunk{chunk})
	if err != nil {
		log.Error("write chunk batch failed", "error", err)
		return
	}
	topic.Publish(model.BatchInfo{StoragePath: path, TickStart: chunk.FirstTick, TickEnd: chunk.LastTick})
	log.Info("chunk published", "path", path, "first_tick", chunk.FirstTick, "last_tick", chunk.LastTick)
}

// mutateEnvironment flips a handful of random cells each tick, standing in
// for a real simulation step.
func mutateEnvironment(env *model.Environment, rng *rand.Rand) {
	n := env.Len()
	if n == 0 {
		return
	}
	mutations := 1 + rng.Intn(3)
	for i := 0; i < mutations; i++ {
		flat := rng.Intn(n)
		env.Set(flat, model.Cell{Molecule: model.NewMolecule(model.KindData, uint32(rng.Intn(1<<16))), OwnerID: 0})
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
