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
	"strconv"
	"sync"
	"time"

	"github.com/evochora/telemetry/pkg/model"
)

// Message is a BatchInfo in flight: the framework polls one, processes it,
// and acks it by handle. No ordering across partitions is assumed; within
// one worker, poll order is preserved for ack.
type Message struct {
	Handle string
	Batch  model.BatchInfo
}

// WorkTopic is a reliable queue with visibility/claim timeout and explicit
// ack. We intentionally avoid importing a specific broker client here — see
// RedisTopic for a concrete binding.
type WorkTopic interface {
	// Poll waits up to timeout for a message. ok is false on timeout.
	Poll(ctx context.Context, timeout time.Duration) (msg Message, ok bool, err error)
	// Ack acknowledges a message, removing it from the topic permanently.
	Ack(ctx context.Context, handle string) error
}

// MemTopic is an in-memory WorkTopic for tests and single-process demos. A
// polled-but-unacked message becomes visible again after its claim timeout
// elapses, mimicking a real broker's redelivery.
type MemTopic struct {
	mu            sync.Mutex
	claimTimeout  time.Duration
	queue         []pendingMessage
	inFlight      map[string]pendingMessage
	nextHandle    uint64
	notifyPollers chan struct{}
}

type pendingMessage struct {
	handle    string
	batch     model.BatchInfo
	claimedAt time.Time
}

// NewMemTopic constructs an empty topic with the given redelivery claim
// timeout.
func NewMemTopic(claimTimeout time.Duration) *MemTopic {
	return &MemTopic{
		claimTimeout:  claimTimeout,
		inFlight:      make(map[string]pendingMessage),
		notifyPollers: make(chan struct{}, 1),
	}
}

// Publish enqueues a BatchInfo for delivery. Not part of the WorkTopic
// interface: only producers (the encoder side) call this.
func (m *MemTopic) Publish(batch model.BatchInfo) {
	m.mu.Lock()
	m.nextHandle++
	handle := strconv.FormatUint(m.nextHandle, 10)
	m.queue = append(m.queue, pendingMessage{handle: handle, batch: batch})
	m.mu.Unlock()
	select {
	case m.notifyPollers <- struct{}{}:
	default:
	}
}

// Poll returns the next available message, reclaiming any in-flight
// message whose claim timeout has elapsed.
func (m *MemTopic) Poll(ctx context.Context, timeout time.Duration) (Message, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		if msg, ok := m.tryPoll(); ok {
			return msg, true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Message{}, false, nil
		}
		select {
		case <-ctx.Done():
			return Message{}, false, ctx.Err()
		case <-time.After(minDuration(remaining, 10*time.Millisecond)):
		case <-m.notifyPollers:
		}
	}
}

func (m *MemTopic) tryPoll() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimExpiredLocked()
	if len(m.queue) == 0 {
		return Message{}, false
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	next.claimedAt = time.Now()
	m.inFlight[next.handle] = next
	return Message{Handle: next.handle, Batch: next.batch}, true
}

func (m *MemTopic) reclaimExpiredLocked() {
	if m.claimTimeout <= 0 {
		return
	}
	now := time.Now()
	for handle, msg := range m.inFlight {
		if now.Sub(msg.claimedAt) >= m.claimTimeout {
			delete(m.inFlight, handle)
			m.queue = append(m.queue, msg)
		}
	}
}

// Ack removes a message from the in-flight set permanently.
func (m *MemTopic) Ack(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, handle)
	return nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
