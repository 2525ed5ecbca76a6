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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evochora/telemetry/pkg/model"
)

func TestMemTopicPollAndAck(t *testing.T) {
	topic := NewMemTopic(time.Minute)
	topic.Publish(model.BatchInfo{StoragePath: "run-1/raw/batch_1"})

	ctx := context.Background()
	msg, ok, err := topic.Poll(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "run-1/raw/batch_1", msg.Batch.StoragePath)

	require.NoError(t, topic.Ack(ctx, msg.Handle))

	_, ok, err = topic.Poll(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemTopicRedeliversAfterClaimTimeout(t *testing.T) {
	topic := NewMemTopic(20 * time.Millisecond)
	topic.Publish(model.BatchInfo{StoragePath: "run-1/raw/batch_1"})

	ctx := context.Background()
	first, ok, err := topic.Poll(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	// Don't ack; wait past the claim timeout and poll again.
	second, ok, err := topic.Poll(ctx, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.Batch.StoragePath, second.Batch.StoragePath)
}

func TestMemTopicPollTimesOutWhenEmpty(t *testing.T) {
	topic := NewMemTopic(time.Minute)
	_, ok, err := topic.Poll(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}
