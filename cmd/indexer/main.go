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

// Command indexer runs one batch-indexer worker (§4.3): it waits for a
// run's metadata, then streams BatchInfos off a Redis Streams work topic,
// committing and acking in bounded windows. Run multiple instances with
// distinct -consumer names as competing consumers on the same group.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/evochora/telemetry/internal/indexer"
	"github.com/evochora/telemetry/pkg/config"
	"github.com/evochora/telemetry/pkg/storage"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.ParseIndexerConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.RunID == "" {
		fmt.Fprintln(os.Stderr, "indexer: -run_id is required")
		os.Exit(2)
	}
	runID := cfg.RunID

	indexer.ServeMetrics(cfg.MetricsAddr)

	store := storage.NewFSObjectStore(cfg.ObjectDir, storage.NewPathBuilder(cfg.FolderDivisors))
	metaStore := storage.NewMetadataStore(store)
	waiter := indexer.NewMetadataWaiter(metaStore, cfg.MetadataPollInterval, cfg.MetadataMaxPollDuration)

	consumer := cfg.ConsumerName
	if consumer == "" {
		hostname, _ := os.Hostname()
		consumer = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	topic, err := storage.NewRedisTopic(context.Background(), redisClient, cfg.StreamName, cfg.GroupName, consumer, cfg.ClaimTimeout, cfg.ClaimSweepInterval)
	if err != nil {
		log.Error("constructing work topic failed", "error", err)
		os.Exit(1)
	}

	idempotency := indexer.NewRedisIdempotencyTracker(redisClient, cfg.GroupName)
	dlq := indexer.NewMemDeadLetterQueue(cfg.MaxRetries)
	processor := indexer.NewLoggingProcessor(log)

	var buffer *indexer.ChunkBuffer
	if cfg.BufferSize > 0 {
		buffer = indexer.NewChunkBuffer(cfg.BufferSize, cfg.BufferMaxAge)
	}

	worker := indexer.NewWorker(runID, topic, store, processor, indexer.Config{
		InsertBatchSize: cfg.InsertBatchSize,
		FlushTimeout:    cfg.FlushTimeout,
	}, waiter, idempotency, dlq, buffer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("indexer starting", "run_id", runID, "consumer", consumer)
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("indexer stopped")
}
