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
	"database/sql"
	"fmt"
	"sync"
)

// DeadLetterQueue is the §4.4.c pluggable component: counts retries per
// batch id and, once a budget is exhausted, accepts a poisoned message so
// the worker can ack the original and move on.
//
// Reference schema (mirrors persistence/postgres.go's ON CONFLICT idiom):
//
//	CREATE TABLE IF NOT EXISTS indexer_retry_counts (
//	  batch_id   TEXT PRIMARY KEY,
//	  retries    INT NOT NULL DEFAULT 0
//	);
//	CREATE TABLE IF NOT EXISTS indexer_dlq (
//	  batch_id   TEXT PRIMARY KEY,
//	  storage_path TEXT NOT NULL,
//	  cause      TEXT NOT NULL,
//	  moved_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type DeadLetterQueue interface {
	// ShouldMoveToDLQ reports whether batchID has exhausted its retry
	// budget and should be moved rather than left for redelivery. Also
	// increments the retry count as a side effect of the check, matching
	// the teacher's single-statement idempotent-update idiom.
	ShouldMoveToDLQ(ctx context.Context, batchID string) (bool, error)
	// MoveToDLQ records the poisoned message. The worker acks the original
	// immediately after a successful call.
	MoveToDLQ(ctx context.Context, batchID, storagePath string, cause error) error
	// ResetRetryCount is called after a batch's successful ack, clearing
	// any accumulated retry count so a future redelivery (e.g. after an
	// unrelated commit failure) starts fresh.
	ResetRetryCount(ctx context.Context, batchID string) error
}

// MemDeadLetterQueue is an in-process DeadLetterQueue for tests and
// single-process demos, grounded on core.Store's sync.Map-backed registry
// shape.
type MemDeadLetterQueue struct {
	maxRetries int

	mu      sync.Mutex
	retries map[string]int
	moved   map[string]MovedMessage
}

// MovedMessage is a record of a batch moved to the DLQ.
type MovedMessage struct {
	BatchID     string
	StoragePath string
	Cause       string
}

// NewMemDeadLetterQueue returns a DLQ allowing maxRetries redeliveries
// before a batch is poisoned.
func NewMemDeadLetterQueue(maxRetries int) *MemDeadLetterQueue {
	return &MemDeadLetterQueue{
		maxRetries: maxRetries,
		retries:    make(map[string]int),
		moved:      make(map[string]MovedMessage),
	}
}

func (q *MemDeadLetterQueue) ShouldMoveToDLQ(_ context.Context, batchID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries[batchID]++
	return q.retries[batchID] > q.maxRetries, nil
}

func (q *MemDeadLetterQueue) MoveToDLQ(_ context.Context, batchID, storagePath string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.moved[batchID] = MovedMessage{BatchID: batchID, StoragePath: storagePath, Cause: cause.Error()}
	return nil
}

func (q *MemDeadLetterQueue) ResetRetryCount(_ context.Context, batchID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.retries, batchID)
	return nil
}

// Moved reports whether batchID has been moved to the DLQ, for tests.
func (q *MemDeadLetterQueue) Moved(batchID string) (MovedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.moved[batchID]
	return m, ok
}

// SQLDeadLetterQueue persists retry counts and moved messages in any
// database/sql-compatible store using the ON CONFLICT DO UPDATE idiom from
// persistence/postgres.go. The caller supplies a *sql.DB already wired to a
// real driver (e.g. lib/pq) per SPEC_FULL.md's pluggable-store stance.
type SQLDeadLetterQueue struct {
	db         *sql.DB
	maxRetries int
}

// NewSQLDeadLetterQueue returns a DLQ backed by db. PrepareTables-style
// schema creation is left to the BatchProcessor sharing the same database,
// per §4.4's "table creation uses if-not-exists semantics" contract.
func NewSQLDeadLetterQueue(db *sql.DB, maxRetries int) *SQLDeadLetterQueue {
	return &SQLDeadLetterQueue{db: db, maxRetries: maxRetries}
}

func (q *SQLDeadLetterQueue) ShouldMoveToDLQ(ctx context.Context, batchID string) (bool, error) {
	const stmt = `
		INSERT INTO indexer_retry_counts(batch_id, retries) VALUES ($1, 1)
		ON CONFLICT (batch_id) DO UPDATE SET retries = indexer_retry_counts.retries + 1
		RETURNING retries`
	var retries int
	if err := q.db.QueryRowContext(ctx, stmt, batchID).Scan(&retries); err != nil {
		return false, fmt.Errorf("indexer: dlq retry count: %w", err)
	}
	return retries > q.maxRetries, nil
}

func (q *SQLDeadLetterQueue) MoveToDLQ(ctx context.Context, batchID, storagePath string, cause error) error {
	const stmt = `
		INSERT INTO indexer_dlq(batch_id, storage_path, cause) VALUES ($1, $2, $3)
		ON CONFLICT (batch_id) DO NOTHING`
	if _, err := q.db.ExecContext(ctx, stmt, batchID, storagePath, cause.Error()); err != nil {
		return fmt.Errorf("indexer: dlq move: %w", err)
	}
	return nil
}

func (q *SQLDeadLetterQueue) ResetRetryCount(ctx context.Context, batchID string) error {
	const stmt = `DELETE FROM indexer_retry_counts WHERE batch_id = $1`
	if _, err := q.db.ExecContext(ctx, stmt, batchID); err != nil {
		return fmt.Errorf("indexer: dlq reset: %w", err)
	}
	return nil
}
