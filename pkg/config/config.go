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

// Package config parses the flag-based configuration for each of the
// pipeline's command-line entry points. Knobs mirror §6's enumerated
// configuration options exactly; defaults match the spec where the spec
// states one.
package config

import (
	"flag"
	"time"

	"github.com/evochora/telemetry/pkg/codec"
)

// EncoderConfig is the full configuration for the encoder-side simulation
// driver: the delta codec's own knobs plus where it writes chunks and
// publishes BatchInfos.
type EncoderConfig struct {
	Codec       codec.EncoderConfig
	RunID       string
	ObjectDir   string
	WorldDims   []int
	Ticks       uint64
	MetricsAddr string
}

// ParseEncoderConfig parses args (typically os.Args[1:]) into an
// EncoderConfig.
func ParseEncoderConfig(args []string) (EncoderConfig, error) {
	fs := flag.NewFlagSet("encodersim", flag.ContinueOnError)
	accumulatedDeltaInterval := fs.Int("accumulated_delta_interval", 10, "samples between ACCUMULATED deltas within a chunk")
	snapshotInterval := fs.Int("snapshot_interval", 6, "accumulated-delta windows per chunk head snapshot")
	chunkInterval := fs.Int("chunk_interval", 1, "snapshot windows per emitted chunk")
	runID := fs.String("run_id", "", "run id to stamp onto emitted chunks (required)")
	objectDir := fs.String("object_dir", "./data", "filesystem root for the object store")
	worldDims := fs.String("world_dims", "64,64", "comma-separated grid dimensions")
	ticks := fs.Uint64("ticks", 1000, "number of ticks to simulate")
	metricsAddr := fs.String("metrics_addr", "", "if non-empty, expose Prometheus /metrics on this address")

	if err := fs.Parse(args); err != nil {
		return EncoderConfig{}, err
	}

	dims, err := parseIntList(*worldDims)
	if err != nil {
		return EncoderConfig{}, err
	}

	return EncoderConfig{
		Codec: codec.EncoderConfig{
			AccumulatedDeltaInterval: *accumulatedDeltaInterval,
			SnapshotInterval:         *snapshotInterval,
			ChunkInterval:            *chunkInterval,
		},
		RunID:       *runID,
		ObjectDir:   *objectDir,
		WorldDims:   dims,
		Ticks:       *ticks,
		MetricsAddr: *metricsAddr,
	}, nil
}

// IndexerConfig is the full configuration for one indexer worker process.
type IndexerConfig struct {
	RunID                   string
	InsertBatchSize         int
	FlushTimeout            time.Duration
	MetadataPollInterval    time.Duration
	MetadataMaxPollDuration time.Duration
	MaxRetries              int
	FolderDivisors          []uint64
	ObjectDir               string
	RedisAddr               string
	StreamName              string
	GroupName               string
	ConsumerName            string
	MetricsAddr             string
	BufferSize              int
	BufferMaxAge            time.Duration
	ClaimTimeout            time.Duration
	ClaimSweepInterval      time.Duration
}

// ParseIndexerConfig parses args into an IndexerConfig.
func ParseIndexerConfig(args []string) (IndexerConfig, error) {
	fs := flag.NewFlagSet("indexer", flag.ContinueOnError)
	runID := fs.String("run_id", "", "run id this worker indexes (required)")
	insertBatchSize := fs.Int("insert_batch_size", 5, "commit window in chunks")
	flushTimeoutMs := fs.Int("flush_timeout_ms", 2000, "flush timeout / topic-poll timeout in milliseconds")
	metadataPollMs := fs.Int("metadata_poll_interval_ms", 500, "metadata readiness poll interval in milliseconds")
	metadataMaxPollMs := fs.Int("metadata_max_poll_duration_ms", 60_000, "maximum time to wait for metadata before failing")
	maxRetries := fs.Int("max_retries", 3, "DLQ retry budget per batch")
	folderLevels := fs.String("folder_structure_levels", "100000000,100000", "comma-separated bucket-path divisors")
	objectDir := fs.String("object_dir", "./data", "filesystem root for the object store")
	redisAddr := fs.String("redis_addr", "localhost:6379", "Redis address backing the work topic and idempotency tracker")
	streamName := fs.String("stream", "evochora-batches", "Redis stream name")
	groupName := fs.String("group", "indexers", "Redis consumer group name")
	consumerName := fs.String("consumer", "", "Redis consumer name (defaults to hostname-pid if empty)")
	metricsAddr := fs.String("metrics_addr", "", "if non-empty, expose Prometheus /metrics on this address")
	bufferSize := fs.Int("buffer_size", 0, "if > 0, use the buffered commit strategy: accumulate this many chunks before staging them, instead of staging each chunk as it streams in")
	bufferMaxAgeMs := fs.Int("buffer_max_age_ms", 5000, "buffered commit strategy: flush once the oldest buffered chunk is this old, even if buffer_size hasn't been reached")
	claimTimeoutMs := fs.Int("claim_timeout_ms", 30_000, "Redis consumer group visibility timeout: a delivered-but-unacked message is reclaimed after this long")
	claimSweepMs := fs.Int("claim_sweep_interval_ms", 10_000, "how often the Redis work topic sweeps for messages past their claim timeout")

	if err := fs.Parse(args); err != nil {
		return IndexerConfig{}, err
	}

	divisors, err := parseUintList(*folderLevels)
	if err != nil {
		return IndexerConfig{}, err
	}

	return IndexerConfig{
		RunID:                   *runID,
		InsertBatchSize:         *insertBatchSize,
		FlushTimeout:            time.Duration(*flushTimeoutMs) * time.Millisecond,
		MetadataPollInterval:    time.Duration(*metadataPollMs) * time.Millisecond,
		MetadataMaxPollDuration: time.Duration(*metadataMaxPollMs) * time.Millisecond,
		MaxRetries:              *maxRetries,
		FolderDivisors:          divisors,
		ObjectDir:               *objectDir,
		RedisAddr:               *redisAddr,
		StreamName:              *streamName,
		GroupName:               *groupName,
		ConsumerName:            *consumerName,
		MetricsAddr:             *metricsAddr,
		BufferSize:              *bufferSize,
		BufferMaxAge:            time.Duration(*bufferMaxAgeMs) * time.Millisecond,
		ClaimTimeout:            time.Duration(*claimTimeoutMs) * time.Millisecond,
		ClaimSweepInterval:      time.Duration(*claimSweepMs) * time.Millisecond,
	}, nil
}

// ResumeConfig is the full configuration for the resume loader entry point.
type ResumeConfig struct {
	RunID     string
	ObjectDir string
}

// ParseResumeConfig parses args into a ResumeConfig.
func ParseResumeConfig(args []string) (ResumeConfig, error) {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	runID := fs.String("run_id", "", "run id to resume (required)")
	objectDir := fs.String("object_dir", "./data", "filesystem root for the object store")

	if err := fs.Parse(args); err != nil {
		return ResumeConfig{}, err
	}
	return ResumeConfig{RunID: *runID, ObjectDir: *objectDir}, nil
}
