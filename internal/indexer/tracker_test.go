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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerDrainsOnlyCompleteAndCommittedPrefix(t *testing.T) {
	tr := NewStreamingAckTracker()
	tr.RegisterBatch("b1", "h1")
	tr.RegisterBatch("b2", "h2")

	tr.OnChunkStreamed("b1", 10)
	tr.OnChunkStreamed("b2", 10)
	tr.CompleteBatch("b1")
	// b2 not yet complete.

	require.Empty(t, tr.DrainAckable(), "nothing committed yet")

	tr.AdvanceCommitted()
	drained := tr.DrainAckable()
	require.Len(t, drained, 1)
	require.Equal(t, "b1", drained[0].ID)
	require.True(t, tr.Pending(), "b2 still pending")

	tr.OnChunkStreamed("b2", 5)
	tr.CompleteBatch("b2")
	require.Empty(t, tr.DrainAckable(), "b2's extra chunk isn't committed yet")

	tr.AdvanceCommitted()
	drained = tr.DrainAckable()
	require.Len(t, drained, 1)
	require.Equal(t, "b2", drained[0].ID)
	require.False(t, tr.Pending())
}

func TestTrackerStopsAtFirstIncompleteBatch(t *testing.T) {
	tr := NewStreamingAckTracker()
	tr.RegisterBatch("b1", "h1")
	tr.RegisterBatch("b2", "h2")

	tr.OnChunkStreamed("b1", 1)
	tr.CompleteBatch("b1")
	tr.OnChunkStreamed("b2", 1)
	tr.CompleteBatch("b2")
	tr.AdvanceCommitted()

	// Un-complete b1 again to simulate a later chunk still in flight.
	tr.batches["b1"].complete = false

	drained := tr.DrainAckable()
	require.Empty(t, drained, "b1 blocks b2 from draining even though b2 is ready")
}

func TestTrackerRemoveBatchDropsWithoutAck(t *testing.T) {
	tr := NewStreamingAckTracker()
	tr.RegisterBatch("b1", "h1")
	tr.RegisterBatch("b2", "h2")

	tr.RemoveBatch("b1")
	tr.OnChunkStreamed("b2", 1)
	tr.CompleteBatch("b2")
	tr.AdvanceCommitted()

	drained := tr.DrainAckable()
	require.Len(t, drained, 1)
	require.Equal(t, "b2", drained[0].ID)
}

func TestTrackerClearWipesStateWholesale(t *testing.T) {
	tr := NewStreamingAckTracker()
	tr.RegisterBatch("b1", "h1")
	tr.OnChunkStreamed("b1", 3)

	tr.Clear()
	require.False(t, tr.Pending())
	tr.AdvanceCommitted() // no-op on empty tracker, must not panic
	require.Empty(t, tr.DrainAckable())
}
