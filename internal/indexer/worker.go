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
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/evochora/telemetry/pkg/model"
	"github.com/evochora/telemetry/pkg/storage"
)

// Config is the streaming loop's own tuning knobs (§6). Pluggable
// components (metadata waiter, idempotency, DLQ) are supplied separately so
// a caller can omit the optional ones.
type Config struct {
	InsertBatchSize int
	FlushTimeout    time.Duration
}

// Worker runs one indexing worker: it pulls BatchInfos off a WorkTopic,
// streams their chunks through a BatchProcessor, commits in bounded
// windows, and acks only what has landed. Grounded on core.Worker's
// ticker/threshold commit-cycle shape and Start/Stop CAS idiom, adapted
// from a fixed-interval ticker to a blocking-poll loop since the trigger
// here is message arrival, not wall-clock time.
type Worker struct {
	runID     string
	topic     storage.WorkTopic
	store     storage.ObjectStore
	processor BatchProcessor
	cfg       Config

	metadata    *MetadataWaiter
	idempotency IdempotencyTracker
	dlq         DeadLetterQueue
	buffer      *ChunkBuffer

	tracker      *StreamingAckTracker
	uncommitted  int
	lastCommitAt time.Time
	log          *slog.Logger
	stopChan     chan struct{}
	stopped      uint32
}

// NewWorker constructs a Worker. metadata is required (§4.4.a is a required
// component); idempotency and dlq are optional and may be nil. buffer is
// also optional: if nil, every chunk is staged via ProcessChunk as soon as
// it streams off the object store (the default, per-chunk commit strategy).
// If non-nil, chunks are instead accumulated in buffer and only staged once
// it reaches its size or age threshold -- the §4.4.d strategy for
// BatchProcessor implementations that cannot stage one chunk at a time.
func NewWorker(runID string, topic storage.WorkTopic, store storage.ObjectStore, processor BatchProcessor, cfg Config, metadata *MetadataWaiter, idempotency IdempotencyTracker, dlq DeadLetterQueue, buffer *ChunkBuffer) *Worker {
	if cfg.InsertBatchSize <= 0 {
		cfg.InsertBatchSize = 5
	}
	return &Worker{
		runID:       runID,
		topic:       topic,
		store:       store,
		processor:   processor,
		cfg:         cfg,
		metadata:    metadata,
		idempotency: idempotency,
		dlq:         dlq,
		buffer:      buffer,
		tracker:     NewStreamingAckTracker(),
		log:         slog.With("component", "indexer", "run_id", runID),
		stopChan:    make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is canceled, executing the
// streaming loop from §4.3. It waits for metadata, calls PrepareTables
// once, then loops polling the topic.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.metadata.Wait(ctx, w.runID); err != nil {
		return fmt.Errorf("indexer: waiting for metadata: %w", err)
	}
	if err := w.processor.PrepareTables(w.runID); err != nil {
		return fmt.Errorf("indexer: prepare tables: %w", err)
	}

	w.lastCommitAt = time.Now()
	for {
		select {
		case <-ctx.Done():
			w.drainFinal()
			runShutdownHook(w.processor)
			return ctx.Err()
		case <-w.stopChan:
			w.drainFinal()
			runShutdownHook(w.processor)
			return nil
		default:
		}

		msg, ok, err := w.topic.Poll(ctx, w.cfg.FlushTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.Error("topic poll failed", "error", err)
			continue
		}

		if !ok {
			if w.buffer != nil && w.buffer.ShouldFlush() {
				w.flushBuffer(ctx)
			} else if w.uncommitted > 0 && time.Since(w.lastCommitAt) >= w.cfg.FlushTimeout {
				w.streamingCommitAndAck(ctx)
			}
			continue
		}

		w.handleMessage(ctx, msg)
	}
}

// Stop signals the loop to drain and exit. Idempotent, per core.Worker's
// atomic-CAS stop guard.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	close(w.stopChan)
}

func (w *Worker) handleMessage(ctx context.Context, msg storage.Message) {
	batchID := msg.Batch.ID()

	if w.idempotency != nil {
		processed, err := w.idempotency.IsProcessed(ctx, batchID)
		if err != nil {
			w.log.Error("idempotency check failed", "batch", batchID, "error", err)
			return
		}
		if processed {
			if err := w.topic.Ack(ctx, msg.Handle); err != nil {
				w.log.Error("ack of already-processed batch failed", "batch", batchID, "error", err)
			}
			return
		}
	}

	w.tracker.RegisterBatch(batchID, msg.Handle)

	filter := chunkFieldFilter(w.processor)
	streamErr := w.store.ForEachChunk(msg.Batch.StoragePath, filter, func(chunk model.TickDataChunk) error {
		if w.buffer != nil {
			w.buffer.Add(batchID, chunk)
			// chunksProcessed advances as soon as a chunk is staged into the
			// buffer, not when ProcessChunk actually runs at flush time --
			// otherwise CompleteBatch below would make an unflushed batch
			// look trivially committed (chunksCommitted >= chunksProcessed
			// with both at zero) and DrainAckable would ack it before any
			// of its chunks were ever processed.
			w.tracker.OnChunkStreamed(batchID, chunk.TickCount)
			if w.buffer.ShouldFlush() {
				w.flushBuffer(ctx)
			}
			return nil
		}
		if err := w.processor.ProcessChunk(chunk); err != nil {
			return err
		}
		w.tracker.OnChunkStreamed(batchID, chunk.TickCount)
		chunksProcessedTotal.Inc()
		w.uncommitted++
		if w.uncommitted >= w.cfg.InsertBatchSize {
			w.streamingCommitAndAck(ctx)
		}
		return nil
	})

	if streamErr != nil {
		w.onBatchStreamingFailure(ctx, msg, streamErr)
		return
	}

	w.tracker.CompleteBatch(batchID)
	w.drainAndAck(ctx)
}

// onBatchStreamingFailure implements §7's per-batch processing-exception
// policy: remove the batch from the tracker, and either DLQ-and-ack or
// leave it for redelivery depending on the retry budget.
func (w *Worker) onBatchStreamingFailure(ctx context.Context, msg storage.Message, cause error) {
	batchID := msg.Batch.ID()
	w.log.Error("batch processing failed", "batch", batchID, "error", cause)
	w.tracker.RemoveBatch(batchID)

	if w.dlq == nil {
		return // left for redelivery
	}
	move, err := w.dlq.ShouldMoveToDLQ(ctx, batchID)
	if err != nil {
		w.log.Error("dlq retry check failed", "batch", batchID, "error", err)
		return
	}
	if !move {
		return // left for redelivery
	}
	if err := w.dlq.MoveToDLQ(ctx, batchID, msg.Batch.StoragePath, cause); err != nil {
		w.log.Error("move to dlq failed", "batch", batchID, "error", err)
		return
	}
	if err := w.topic.Ack(ctx, msg.Handle); err != nil {
		w.log.Error("ack of dlq'd batch failed", "batch", batchID, "error", err)
		return
	}
	batchesDLQedTotal.Inc()
}

// streamingCommitAndAck implements §4.3's commit-and-drain step: commit,
// advance every pending batch's committed count, then drain and ack
// whatever is now both complete and committed.
func (w *Worker) streamingCommitAndAck(ctx context.Context) {
	if err := w.processor.CommitProcessedChunks(); err != nil {
		w.log.Error("commit failed, clearing tracker", "error", err)
		commitErrorsTotal.Inc()
		w.tracker.Clear()
		w.uncommitted = 0
		w.lastCommitAt = time.Now()
		return
	}
	chunksPerCommit.Observe(float64(w.uncommitted))
	w.tracker.AdvanceCommitted()
	w.uncommitted = 0
	w.lastCommitAt = time.Now()
	w.drainAndAck(ctx)
}

// flushBuffer pops everything currently buffered, stages each chunk via
// ProcessChunk in order, then commits and drains. chunksProcessed was
// already advanced against the tracker when each chunk was added to the
// buffer; this only has to advance chunksCommitted. Unlike the per-chunk
// path's onBatchStreamingFailure, a staging failure here can't be pinned on
// one batch in isolation once chunks from more than one batch share a
// flush, so it is treated the same as a commit failure: nothing staged in
// this flush has been committed yet, so clearing the tracker wholesale and
// leaving every pending batch for redelivery is safe.
func (w *Worker) flushBuffer(ctx context.Context) {
	result := w.buffer.Flush()
	for i, chunk := range result.Chunks {
		if err := w.processor.ProcessChunk(chunk); err != nil {
			w.log.Error("buffered chunk processing failed, clearing tracker", "batch", result.BatchIDs[i], "error", err)
			commitErrorsTotal.Inc()
			w.tracker.Clear()
			w.uncommitted = 0
			w.lastCommitAt = time.Now()
			return
		}
		chunksProcessedTotal.Inc()
	}
	w.uncommitted += len(result.Chunks)
	w.streamingCommitAndAck(ctx)
}

func (w *Worker) drainAndAck(ctx context.Context) {
	for _, drained := range w.tracker.DrainAckable() {
		if err := w.topic.Ack(ctx, drained.MessageHandle); err != nil {
			w.log.Error("ack failed", "batch", drained.ID, "error", err)
			continue
		}
		if w.idempotency != nil {
			if err := w.idempotency.MarkProcessed(ctx, drained.ID); err != nil {
				w.log.Error("mark processed failed", "batch", drained.ID, "error", err)
			}
		}
		if w.dlq != nil {
			if err := w.dlq.ResetRetryCount(ctx, drained.ID); err != nil {
				w.log.Error("reset retry count failed", "batch", drained.ID, "error", err)
			}
		}
		batchesAckedTotal.Inc()
	}
}

// drainFinal implements §4.3's loop-exit step: commit any uncommitted data,
// then drain. Interrupt-safe: called from both the ctx.Done and stopChan
// exit paths.
func (w *Worker) drainFinal() {
	ctx := context.Background()
	if w.buffer != nil && w.buffer.Len() > 0 {
		w.flushBuffer(ctx)
	}
	if w.uncommitted > 0 || w.tracker.Pending() {
		w.streamingCommitAndAck(ctx)
	}
}
