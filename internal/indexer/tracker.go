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

// Package indexer implements the streaming batch-indexer framework: a
// worker loop that pulls BatchInfos off a work topic, streams their chunks
// through a caller-supplied BatchProcessor, commits in bounded windows, and
// acks only what has actually landed.
package indexer

// pendingBatch is one in-flight batch's bookkeeping. A single worker owns
// its tracker exclusively; there is no concurrent access, so no locking is
// needed here (contrast with core.Store's sync.Map, which serves concurrent
// hot-path readers).
type pendingBatch struct {
	id              string
	messageHandle   string
	chunksProcessed uint64
	chunksCommitted uint64
	ticksProcessed  uint64
	complete        bool
}

func (b pendingBatch) committed() bool { return b.chunksCommitted >= b.chunksProcessed }

// StreamingAckTracker orders pending batches by arrival and drains
// acknowledgeable ones from the head, per §4.3.a. It never reorders: an ack
// gap in the middle (a later batch ready before an earlier one) simply waits
// until the earlier batch catches up.
type StreamingAckTracker struct {
	order   []string
	batches map[string]*pendingBatch
}

// NewStreamingAckTracker returns an empty tracker.
func NewStreamingAckTracker() *StreamingAckTracker {
	return &StreamingAckTracker{batches: make(map[string]*pendingBatch)}
}

// RegisterBatch adds a new pending batch. Total: always succeeds, even if
// called again for an id already present (the existing entry is replaced,
// matching at-least-once redelivery semantics where a batch is registered
// fresh on each delivery attempt).
func (t *StreamingAckTracker) RegisterBatch(id, messageHandle string) {
	if _, exists := t.batches[id]; !exists {
		t.order = append(t.order, id)
	}
	t.batches[id] = &pendingBatch{id: id, messageHandle: messageHandle}
}

// OnChunkStreamed records that one more chunk of batch id, carrying
// tickCount ticks, has been staged by process_chunk. An id that is not
// registered is ignored.
func (t *StreamingAckTracker) OnChunkStreamed(id string, tickCount uint64) {
	b, ok := t.batches[id]
	if !ok {
		return
	}
	b.chunksProcessed++
	b.ticksProcessed += tickCount
}

// CompleteBatch marks a batch as fully streamed (every chunk in its file has
// been passed to process_chunk). Total: safe to call even if id is unknown.
func (t *StreamingAckTracker) CompleteBatch(id string) {
	if b, ok := t.batches[id]; ok {
		b.complete = true
	}
}

// RemoveBatch drops a batch from the tracker without committing or acking
// it. Used only on streaming failure (§7): the batch is left for
// redelivery.
func (t *StreamingAckTracker) RemoveBatch(id string) {
	if _, ok := t.batches[id]; !ok {
		return
	}
	delete(t.batches, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// AdvanceCommitted atomically advances chunks_committed := chunks_processed
// for every pending batch, modeling a commit that covers all staged work.
func (t *StreamingAckTracker) AdvanceCommitted() {
	for _, b := range t.batches {
		b.chunksCommitted = b.chunksProcessed
	}
}

// DrainAckable pops every batch from the head of arrival order that is both
// complete and fully committed, stopping at the first one that isn't. The
// returned handles are in arrival order, matching the ack-order guarantee
// in §5.
func (t *StreamingAckTracker) DrainAckable() []DrainedBatch {
	var drained []DrainedBatch
	for len(t.order) > 0 {
		id := t.order[0]
		b := t.batches[id]
		if b == nil || !b.complete || !b.committed() {
			break
		}
		drained = append(drained, DrainedBatch{ID: b.id, MessageHandle: b.messageHandle, TicksProcessed: b.ticksProcessed})
		t.order = t.order[1:]
		delete(t.batches, id)
	}
	return drained
}

// Clear wipes all tracker state wholesale, per §4.3.a's "after commit
// failure the tracker is cleared wholesale" invariant. Redelivery of the
// cleared batches repopulates it.
func (t *StreamingAckTracker) Clear() {
	t.order = nil
	t.batches = make(map[string]*pendingBatch)
}

// Pending reports whether any batch is currently tracked.
func (t *StreamingAckTracker) Pending() bool { return len(t.order) > 0 }

// DrainedBatch is a batch ready to be acked: fully streamed and fully
// committed.
type DrainedBatch struct {
	ID             string
	MessageHandle  string
	TicksProcessed uint64
}
