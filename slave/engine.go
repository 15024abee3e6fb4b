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

package slave

import (
	"sync/atomic"

	"github.com/ZaparooProject/go-telegate/queue"
)

// Engine is the slave transfer engine. Create it with New, call Init once at
// startup, then route every select-line edge to HandleSelect.
type Engine struct {
	bus   Bus
	queue *queue.Queue
	tx    []byte
	rx    []byte
	stats engineCounters
	next  byte
	state State
}

type engineCounters struct {
	transactions atomic.Uint64
	advances     atomic.Uint64
	sentinels    atomic.Uint64
	unknown      atomic.Uint64
}

// Stats is a snapshot of handler activity.
type Stats struct {
	Transactions uint64 // completed select cycles (handoffs)
	Advances     uint64 // handoffs that loaded a queued frame
	Sentinels    uint64 // handoffs that found the queue empty and zeroed tx
	Unknown      uint64 // handoffs with an unrecognized command byte
}

// Option configures an Engine.
type Option func(*Engine)

// WithCommandNext overrides the command byte that advances the queue.
func WithCommandNext(cmd byte) Option {
	return func(e *Engine) {
		e.next = cmd
	}
}

// New creates an engine whose tx/rx buffers match the queue's entry size.
// Both buffers are allocated here and never again.
func New(bus Bus, q *queue.Queue, opts ...Option) *Engine {
	size := q.EntrySize()
	e := &Engine{
		bus:   bus,
		queue: q,
		tx:    make([]byte, size),
		rx:    make([]byte, size),
		next:  CommandNext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Init arms and starts the first transfer with a zero tx buffer. Call it once
// before enabling the select-line interrupt.
func (e *Engine) Init() {
	clear(e.tx)
	clear(e.rx)
	e.rx[0] = ^e.next
	e.bus.Reset()
	e.bus.Arm(e.tx, e.rx)
	e.bus.Start()
	e.state = Idle
}

// HandleSelect is the select-line edge handler. asserted reports the new
// level of select (true = transaction in progress). It is not reentrant and
// must run to completion before the next edge; its cost is constant apart
// from one queue pop.
func (e *Engine) HandleSelect(asserted bool) {
	switch {
	case asserted && e.state == Idle:
		e.state = Armed
	case !asserted && e.state == Armed:
		e.handoff()
		e.state = Idle
	}
}

// handoff runs when a transaction ends. Whatever number of bytes was
// exchanged, the transaction counts as complete.
func (e *Engine) handoff() {
	e.bus.Reset()
	e.bus.Arm(e.tx, e.rx)

	cmd := e.rx[0]
	// consume the command so a transaction that clocks no bytes is not
	// mistaken for another request
	e.rx[0] = ^e.next

	switch cmd {
	case e.next:
		if _, ok := e.queue.TryPop(e.tx); ok {
			e.stats.advances.Add(1)
		} else {
			clear(e.tx)
			e.stats.sentinels.Add(1)
		}
	default:
		// tx keeps its previous content; the master may re-read it
		e.stats.unknown.Add(1)
	}

	e.bus.Start()
	e.stats.transactions.Add(1)
}

// Push offers a frame to the engine's queue. It is the producer-side entry
// point and never touches tx or rx.
func (e *Engine) Push(frame []byte) bool {
	return e.queue.TryPush(frame)
}

// Queue returns the transmit queue feeding the engine.
func (e *Engine) Queue() *queue.Queue {
	return e.queue
}

// State returns the current state. Call it from the handler's context.
func (e *Engine) State() State {
	return e.state
}

// CopyTx copies the current tx buffer into dst. Call it from the handler's
// context, e.g. a test harness driving the bus.
func (e *Engine) CopyTx(dst []byte) int {
	return copy(dst, e.tx)
}

// CopyRx copies the current rx buffer into dst. Same restrictions as CopyTx.
func (e *Engine) CopyRx(dst []byte) int {
	return copy(dst, e.rx)
}

// BufferSize returns the size of each transfer buffer.
func (e *Engine) BufferSize() int {
	return len(e.tx)
}

// Stats returns handler counters. Safe from any goroutine.
func (e *Engine) Stats() Stats {
	return Stats{
		Transactions: e.stats.transactions.Load(),
		Advances:     e.stats.advances.Load(),
		Sentinels:    e.stats.sentinels.Load(),
		Unknown:      e.stats.unknown.Load(),
	}
}
