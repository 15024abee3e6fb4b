// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

// Package queue provides the bounded FIFO that connects telemetry producers
// to a transport consumer.
//
// Entries are fixed-size byte slots allocated once at construction; pushes
// and pops copy in and out of those slots, so steady-state operation never
// allocates. All operations take one short critical section and never wait on
// the other side, which makes them safe to call from the bus handler.
package queue

import (
	"sync/atomic"

	"github.com/ZaparooProject/go-telegate/internal/syncutil"
)

// Policy selects what TryPush does when the queue is full. It is fixed at
// construction.
type Policy int

const (
	// RejectNew leaves the queue unchanged and reports failure. Used by
	// transports that must not silently lose the newest telemetry.
	RejectNew Policy = iota

	// EvictOldest drops the oldest entry to make room and always succeeds.
	// Used by display feeds that prefer freshness over completeness.
	EvictOldest
)

// String returns a human-readable representation of the policy.
func (p Policy) String() string {
	switch p {
	case RejectNew:
		return "reject-new"
	case EvictOldest:
		return "evict-oldest"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "reject-new", "reject", "":
		return RejectNew, true
	case "evict-oldest", "evict":
		return EvictOldest, true
	default:
		return RejectNew, false
	}
}

// Queue is a bounded FIFO of fixed-size byte entries.
type Queue struct {
	onDrop    func()
	slots     [][]byte
	lens      []int
	stats     counters
	mu        syncutil.Mutex
	head      int // next pop position
	count     int
	entrySize int
	policy    Policy
}

// counters are updated under mu but read lock-free by metrics collectors.
type counters struct {
	pushed   atomic.Uint64
	popped   atomic.Uint64
	rejected atomic.Uint64
	evicted  atomic.Uint64
	depth    atomic.Int64
}

// New creates a queue of capacity entries of entrySize bytes each.
// Non-positive sizes are raised to 1.
func New(capacity, entrySize int, options ...Option) *Queue {
	opts := applyOptions(options...)

	capacity = max(capacity, 1)
	entrySize = max(entrySize, 1)

	backing := make([]byte, capacity*entrySize)
	slots := make([][]byte, capacity)
	for i := range slots {
		slots[i] = backing[i*entrySize : (i+1)*entrySize : (i+1)*entrySize]
	}

	return &Queue{
		slots:     slots,
		lens:      make([]int, capacity),
		entrySize: entrySize,
		policy:    opts.policy,
		onDrop:    opts.onDrop,
	}
}

// TryPush copies entry into the queue. The unused tail of the slot is zeroed.
// Entries longer than EntrySize are refused under either policy.
//
// Under RejectNew a full queue returns false and is left unchanged. Under
// EvictOldest a full queue loses its oldest entry and the push succeeds.
func (q *Queue) TryPush(entry []byte) bool {
	if len(entry) > q.entrySize {
		q.stats.rejected.Add(1)
		q.dropped()
		return false
	}

	q.mu.Lock()
	if q.count == len(q.slots) {
		if q.policy != EvictOldest {
			q.mu.Unlock()
			q.stats.rejected.Add(1)
			q.dropped()
			return false
		}
		q.head = (q.head + 1) % len(q.slots)
		q.count--
		q.stats.evicted.Add(1)
		defer q.dropped()
	}

	tail := (q.head + q.count) % len(q.slots)
	slot := q.slots[tail]
	n := copy(slot, entry)
	clear(slot[n:])
	q.lens[tail] = n
	q.count++
	q.stats.depth.Store(int64(q.count))
	q.mu.Unlock()

	q.stats.pushed.Add(1)
	return true
}

// TryPop copies the oldest entry into dst and removes it. It returns the
// number of bytes copied and false when the queue is empty. dst should be
// EntrySize bytes long; a shorter dst receives a truncated copy.
func (q *Queue) TryPop(dst []byte) (int, bool) {
	q.mu.Lock()
	if q.count == 0 {
		q.mu.Unlock()
		return 0, false
	}

	n := copy(dst, q.slots[q.head])
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	q.stats.depth.Store(int64(q.count))
	q.mu.Unlock()

	q.stats.popped.Add(1)
	return n, true
}

// PeekLen returns the length of the entry as pushed (before zero padding) at
// the head of the queue, or 0 when empty.
func (q *Queue) PeekLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return 0
	}
	return q.lens[q.head]
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the maximum number of entries.
func (q *Queue) Cap() int {
	return len(q.slots)
}

// EntrySize returns the size of each slot in bytes.
func (q *Queue) EntrySize() int {
	return q.entrySize
}

// Policy returns the overflow policy chosen at construction.
func (q *Queue) Policy() Policy {
	return q.policy
}

// Reset discards all entries. Statistics are kept.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.head = 0
	q.count = 0
	q.stats.depth.Store(0)
	q.mu.Unlock()
}

func (q *Queue) dropped() {
	if q.onDrop != nil {
		q.onDrop()
	}
}
