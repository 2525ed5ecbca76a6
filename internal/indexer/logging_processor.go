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
	"log/slog"
	"sync"

	"github.com/evochora/telemetry/pkg/model"
)

// LoggingProcessor is a reference BatchProcessor that prints a summary of
// every commit instead of writing to a real table, grounded on
// persistence/mock.go's NewMockPersister demo adapter. It is the default
// processor for cmd/indexer when no real database is wired, useful for
// trying the framework end-to-end without standing up infrastructure.
type LoggingProcessor struct {
	log *slog.Logger

	mu     sync.Mutex
	staged []model.TickDataChunk

	totalCommitted int64
	totalBatches   int64
}

// NewLoggingProcessor returns a processor that logs through log.
func NewLoggingProcessor(log *slog.Logger) *LoggingProcessor {
	return &LoggingProcessor{log: log}
}

func (p *LoggingProcessor) PrepareTables(runID string) error {
	p.log.Info("prepare_tables", "run_id", runID)
	return nil
}

func (p *LoggingProcessor) ProcessChunk(chunk model.TickDataChunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staged = append(p.staged, chunk)
	return nil
}

func (p *LoggingProcessor) CommitProcessedChunks() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.staged) == 0 {
		return nil
	}
	p.log.Info("commit_processed_chunks", "chunk_count", len(p.staged))
	for _, c := range p.staged {
		p.log.Debug("committed chunk", "run_id", c.RunID, "first_tick", c.FirstTick, "last_tick", c.LastTick)
	}
	p.totalCommitted += int64(len(p.staged))
	p.totalBatches++
	p.staged = nil
	return nil
}

func (p *LoggingProcessor) OnShutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Info("indexer shutdown summary", "total_chunks_committed", p.totalCommitted, "total_commits", p.totalBatches)
}
