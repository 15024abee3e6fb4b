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

package frame

import "sync"

// Pool hands out zeroed frame buffers of one fixed capacity. The host-side bus
// master reads a frame per poll; pooling keeps that loop allocation-free.
type Pool struct {
	pool     sync.Pool
	capacity int
}

// NewPool creates a pool of capacity-byte buffers.
func NewPool(capacity int) *Pool {
	capacity = min(max(capacity, MinCapacity), MaxCapacity)
	p := &Pool{capacity: capacity}
	p.pool.New = func() any {
		buf := make([]byte, capacity)
		return &buf
	}
	return p
}

// Capacity returns the size of the buffers handed out.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Get returns a buffer of exactly size bytes. Requests above the pool
// capacity are allocated directly.
func (p *Pool) Get(size int) []byte {
	if size > p.capacity {
		return make([]byte, size)
	}
	bufPtr, ok := p.pool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Put clears buf and returns it to the pool. Buffers not obtained from Get
// are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != p.capacity {
		return
	}
	buf = buf[:p.capacity]
	clear(buf)
	p.pool.Put(&buf)
}
