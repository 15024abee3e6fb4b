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

// Package slave implements the bus-slave side of the frame exchange: a
// double-buffered transfer engine driven by the select line of a synchronous
// serial bus whose clock belongs to an external master.
//
// The engine is a two-state machine. While select is asserted the platform
// shifts tx out and rx in on its own (Armed). When select is released the
// edge handler performs the handoff: reset the shift engine, re-arm the
// transfer with fresh pointers, act on the command byte the master sent, and
// start the transfer again before the master can assert select once more.
//
// Only the handler touches tx, rx and the armed state. Producers reach the
// engine exclusively through its queue.
package slave

// CommandNext is the command byte asking the slave to load the next queued
// frame into tx.
const CommandNext byte = 0x01

// Bus abstracts the platform's shift engine and transfer hardware (a PIO
// state machine plus two DMA channels on RP2040-class parts). Buffers may
// only be swapped between transactions, which is when the engine calls it.
type Bus interface {
	// Reset returns the shift engine to a clean, byte-aligned state and
	// aborts any transfer in flight, discarding partially shifted bits.
	Reset()

	// Arm points the transfer at tx (outgoing) and rx (incoming), each for
	// its full length, without starting it.
	Arm(tx, rx []byte)

	// Start enables the armed transfer so it follows the next select.
	Start()
}

// State is the engine's position in the select cycle.
type State uint8

const (
	// Idle means select is released and the buffers are stable.
	Idle State = iota
	// Armed means select is asserted and the platform is exchanging bytes.
	Armed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	default:
		return "unknown"
	}
}
