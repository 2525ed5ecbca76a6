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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evochora/telemetry/pkg/model"
)

// RedisTopic is a WorkTopic backed by a Redis Stream with a consumer group,
// giving at-least-once delivery via XREADGROUP's pending-entries list and
// explicit XACK. A message delivered to a consumer that crashes before
// acking sits in the group's pending-entries list until claimTimeout
// elapses, at which point the periodic XAUTOCLAIM sweep in claimExpired
// reclaims it for this consumer, mirroring MemTopic's reclaimExpiredLocked.
type RedisTopic struct {
	client   redis.Cmdable
	stream   string
	group    string
	consumer string

	claimTimeout       time.Duration
	claimSweepInterval time.Duration
	lastSweep          time.Time
}

// NewRedisTopic binds to stream/group, creating the group (and the stream,
// via MKSTREAM) if it does not already exist. consumer names this process
// within the group for claim accounting. claimTimeout is the visibility
// timeout: a message idle that long in another consumer's pending-entries
// list is eligible for reclaim. claimSweepInterval bounds how often Poll
// attempts a reclaim sweep; either being <= 0 disables reclaiming
// entirely, leaving crashed-consumer messages pending forever (the
// pre-reclaim behavior).
func NewRedisTopic(ctx context.Context, client redis.Cmdable, stream, group, consumer string, claimTimeout, claimSweepInterval time.Duration) (*RedisTopic, error) {
	t := &RedisTopic{
		client:             client,
		stream:             stream,
		group:              group,
		consumer:           consumer,
		claimTimeout:       claimTimeout,
		claimSweepInterval: claimSweepInterval,
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("redistopic: create group %s on %s: %w", group, stream, err)
	}
	return t, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// batchPayload is the JSON envelope stored as a single stream field.
type batchPayload struct {
	StoragePath string `json:"storage_path"`
	TickStart   uint64 `json:"tick_start"`
	TickEnd     uint64 `json:"tick_end"`
}

// Poll reclaims one expired-claim message if the sweep is due and one is
// available, otherwise reads one new message for this consumer, blocking up
// to timeout.
func (t *RedisTopic) Poll(ctx context.Context, timeout time.Duration) (Message, bool, error) {
	if msg, ok, err := t.claimExpired(ctx); err != nil || ok {
		return msg, ok, err
	}

	res, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.group,
		Consumer: t.consumer,
		Streams:  []string{t.stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("redistopic: xreadgroup: %w", err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return Message{}, false, nil
	}
	msg, err := t.parseEntry(res[0].Messages[0])
	if err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

// claimExpired runs an XAUTOCLAIM sweep for messages idle at least
// claimTimeout, claiming the first one for this consumer so it is handed
// back out exactly like a newly delivered message. Sweeps are throttled to
// claimSweepInterval so a busy stream isn't hit with an XAUTOCLAIM call on
// every poll. Claimed-but-unparseable entries are surfaced as an error
// rather than silently skipped, since leaving them claimed-but-unreturned
// would strand them outside both the new-message and reclaim paths.
func (t *RedisTopic) claimExpired(ctx context.Context) (Message, bool, error) {
	if t.claimTimeout <= 0 || t.claimSweepInterval <= 0 {
		return Message{}, false, nil
	}
	if time.Since(t.lastSweep) < t.claimSweepInterval {
		return Message{}, false, nil
	}
	t.lastSweep = time.Now()

	entries, _, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   t.stream,
		Group:    t.group,
		Consumer: t.consumer,
		MinIdle:  t.claimTimeout,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		return Message{}, false, fmt.Errorf("redistopic: xautoclaim: %w", err)
	}
	if len(entries) == 0 {
		return Message{}, false, nil
	}
	msg, err := t.parseEntry(entries[0])
	if err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

// parseEntry decodes a stream entry's JSON batch payload, shared by both the
// new-message (XREADGROUP) and reclaim (XAUTOCLAIM) paths.
func (t *RedisTopic) parseEntry(entry redis.XMessage) (Message, error) {
	raw, ok := entry.Values["batch"]
	if !ok {
		return Message{}, fmt.Errorf("redistopic: message %s missing batch field", entry.ID)
	}
	rawStr, ok := raw.(string)
	if !ok {
		return Message{}, fmt.Errorf("redistopic: message %s batch field not a string", entry.ID)
	}
	var p batchPayload
	if err := json.Unmarshal([]byte(rawStr), &p); err != nil {
		return Message{}, fmt.Errorf("redistopic: unmarshal message %s: %w", entry.ID, err)
	}
	return Message{
		Handle: entry.ID,
		Batch: model.BatchInfo{
			StoragePath: p.StoragePath,
			TickStart:   p.TickStart,
			TickEnd:     p.TickEnd,
		},
	}, nil
}

// Ack acknowledges a stream entry, removing it from the group's
// pending-entries list.
func (t *RedisTopic) Ack(ctx context.Context, handle string) error {
	if err := t.client.XAck(ctx, t.stream, t.group, handle).Err(); err != nil {
		return fmt.Errorf("redistopic: xack %s: %w", handle, err)
	}
	return nil
}

// Publish adds a BatchInfo to the stream. Producers call this; it is not
// part of the WorkTopic interface consumed by indexer workers.
func (t *RedisTopic) Publish(ctx context.Context, batch model.BatchInfo) (string, error) {
	b, err := json.Marshal(batchPayload{StoragePath: batch.StoragePath, TickStart: batch.TickStart, TickEnd: batch.TickEnd})
	if err != nil {
		return "", fmt.Errorf("redistopic: marshal batch: %w", err)
	}
	id, err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream,
		Values: map[string]interface{}{"batch": string(b)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redistopic: xadd: %w", err)
	}
	return id, nil
}
