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
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// IdempotencyTracker is the §4.4.b pluggable component: a monotone
// set<batch_id>. Before reading a batch the worker asks IsProcessed; after a
// successful ack it calls MarkProcessed. Spurious membership (a false
// positive that causes a batch to be skipped) is tolerable; spurious
// absence is not.
type IdempotencyTracker interface {
	IsProcessed(ctx context.Context, batchID string) (bool, error)
	MarkProcessed(ctx context.Context, batchID string) error
}

// MemIdempotencyTracker is an in-process IdempotencyTracker backed by
// sync.Map, grounded on core.Store's single-map-of-entries shape. Used in
// tests and single-process demos; a real deployment with multiple worker
// processes needs RedisIdempotencyTracker or an equivalent shared store.
type MemIdempotencyTracker struct {
	seen sync.Map // batchID -> struct{}
}

// NewMemIdempotencyTracker returns an empty tracker.
func NewMemIdempotencyTracker() *MemIdempotencyTracker {
	return &MemIdempotencyTracker{}
}

func (m *MemIdempotencyTracker) IsProcessed(_ context.Context, batchID string) (bool, error) {
	_, ok := m.seen.Load(batchID)
	return ok, nil
}

func (m *MemIdempotencyTracker) MarkProcessed(_ context.Context, batchID string) error {
	m.seen.Store(batchID, struct{}{})
	return nil
}

// redisSetNXScript sets the marker only if absent, mirroring
// persistence/redis.go's idempotent-commit Lua script but without the
// counter side effect: here membership alone is the payload.
const redisSetNXScript = `
local markerKey = KEYS[1]
local set = redis.call('SETNX', markerKey, 1)
return set
`

// RedisIdempotencyTracker persists the processed set in Redis so that every
// worker process in a fleet shares it, per §5's "parallelism across workers
// is coordinated... through the database/idempotency tracker."
type RedisIdempotencyTracker struct {
	client redis.Cmdable
	prefix string
}

// NewRedisIdempotencyTracker returns a tracker namespaced under prefix
// (typically the indexer class name, so distinct processors sharing a
// Redis instance don't collide).
func NewRedisIdempotencyTracker(client redis.Cmdable, prefix string) *RedisIdempotencyTracker {
	return &RedisIdempotencyTracker{client: client, prefix: prefix}
}

func (r *RedisIdempotencyTracker) key(batchID string) string {
	return fmt.Sprintf("idemp:%s:%s", r.prefix, batchID)
}

func (r *RedisIdempotencyTracker) IsProcessed(ctx context.Context, batchID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(batchID)).Result()
	if err != nil {
		return false, fmt.Errorf("indexer: idempotency exists check: %w", err)
	}
	return n > 0, nil
}

func (r *RedisIdempotencyTracker) MarkProcessed(ctx context.Context, batchID string) error {
	_, err := r.client.Eval(ctx, redisSetNXScript, []string{r.key(batchID)}).Result()
	if err != nil {
		return fmt.Errorf("indexer: idempotency mark: %w", err)
	}
	return nil
}
