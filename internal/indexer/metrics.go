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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the worker's Prometheus instruments. Global counters only, no
// per-batch label cardinality, per the teacher's churn-counter stance on
// unbounded labels.
var (
	chunksProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evochora_indexer_chunks_processed_total",
		Help: "Total chunks passed to ProcessChunk across all batches.",
	})
	batchesAckedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evochora_indexer_batches_acked_total",
		Help: "Total batches drained from the ack tracker and acknowledged.",
	})
	batchesDLQedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evochora_indexer_batches_dlq_total",
		Help: "Total batches moved to the dead-letter queue after exhausting retries.",
	})
	commitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evochora_indexer_commit_errors_total",
		Help: "Total commit_processed_chunks failures.",
	})
	chunksPerCommit = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evochora_indexer_chunks_per_commit",
		Help:    "Distribution of staged chunk counts per successful commit.",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})
)

func init() {
	prometheus.MustRegister(chunksProcessedTotal, batchesAckedTotal, batchesDLQedTotal, commitErrorsTotal, chunksPerCommit)
}

// ServeMetrics starts a background HTTP server exposing /metrics on addr.
// A no-op when addr is empty, matching the teacher's opt-in MetricsAddr
// stance.
func ServeMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
