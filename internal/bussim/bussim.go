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

// Package bussim simulates the synchronous serial bus between a slave
// transfer engine and its master in software: a byte-level loopback shift
// engine with explicit transaction boundaries, no hardware required.
package bussim

import "sync"

// SelectHandler receives select-line edges; *slave.Engine implements it.
type SelectHandler interface {
	HandleSelect(asserted bool)
}

// Bus is a software stand-in for the slave's shift engine and transfer
// channels. It implements slave.Bus.
type Bus struct {
	tx      []byte
	rx      []byte
	pos     int
	resets  int
	arms    int
	starts  int
	armed   bool
	running bool
}

// NewBus creates an idle bus.
func NewBus() *Bus {
	return &Bus{}
}

// Reset implements slave.Bus. It stops the transfer and drops the position.
func (b *Bus) Reset() {
	b.running = false
	b.pos = 0
	b.resets++
}

// Arm implements slave.Bus.
func (b *Bus) Arm(tx, rx []byte) {
	b.tx = tx
	b.rx = rx
	b.pos = 0
	b.armed = true
	b.arms++
}

// Start implements slave.Bus. Starting an unarmed bus has no effect.
func (b *Bus) Start() {
	if !b.armed {
		return
	}
	b.running = true
	b.starts++
}

// Shift clocks one byte: the master's byte goes into rx, the slave's tx byte
// comes back. A stopped or exhausted transfer answers 0 and stores nothing.
func (b *Bus) Shift(in byte) byte {
	if !b.running || b.pos >= len(b.tx) || b.pos >= len(b.rx) {
		return 0
	}
	out := b.tx[b.pos]
	b.rx[b.pos] = in
	b.pos++
	return out
}

// Running reports whether a transfer is started.
func (b *Bus) Running() bool {
	return b.running
}

// Position returns the number of bytes exchanged in the current transfer.
func (b *Bus) Position() int {
	return b.pos
}

// Counts returns how many times Reset, Arm and Start were called.
func (b *Bus) Counts() (resets, arms, starts int) {
	return b.resets, b.arms, b.starts
}

// Master drives transactions against a Bus the way an external bus master
// would: assert select, clock bytes, release select. Transactions are
// serialized, mirroring the single non-reentrant handler on real hardware.
type Master struct {
	bus     *Bus
	handler SelectHandler
	mu      sync.Mutex
}

// NewMaster connects a virtual master to bus, delivering select edges to h.
func NewMaster(bus *Bus, h SelectHandler) *Master {
	return &Master{bus: bus, handler: h}
}

// Exchange runs one transaction of n bytes. Byte i sent by the master is
// out[i], or 0 past the end of out. The bytes clocked back from the slave
// are written to in (which must hold n bytes) and returned.
func (m *Master) Exchange(out []byte, n int, in []byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	in = in[:n]
	m.handler.HandleSelect(true)
	for i := range n {
		var b byte
		if i < len(out) {
			b = out[i]
		}
		in[i] = m.bus.Shift(b)
	}
	m.handler.HandleSelect(false)
	return in
}

// Transact sends cmd followed by zeros over an n-byte transaction and returns
// what the slave clocked out.
func (m *Master) Transact(cmd byte, n int) []byte {
	return m.Exchange([]byte{cmd}, n, make([]byte, n))
}

// Glitch asserts and releases select without clocking any byte, as a noisy
// select line would.
func (m *Master) Glitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler.HandleSelect(true)
	m.handler.HandleSelect(false)
}
