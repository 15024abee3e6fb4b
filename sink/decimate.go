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

package sink

import (
	"context"
	"sync"

	"github.com/ZaparooProject/go-telegate"
)

// Decimate forwards every n-th message of each topic and drops the rest,
// thinning high-rate streams for slow consumers such as dashboards.
type Decimate struct {
	next   Publisher
	counts map[string]uint64
	every  uint64
	mu     sync.Mutex
}

// NewDecimate forwards one message in every n per topic to next. n <= 1
// forwards everything.
func NewDecimate(next Publisher, n int) *Decimate {
	return &Decimate{
		next:   next,
		counts: make(map[string]uint64),
		every:  uint64(max(n, 1)),
	}
}

// Publish implements Publisher.
func (d *Decimate) Publish(ctx context.Context, msg telegate.Message) error {
	d.mu.Lock()
	d.counts[msg.Topic]++
	forward := d.counts[msg.Topic]%d.every == 0
	d.mu.Unlock()

	if !forward {
		return nil
	}
	return d.next.Publish(ctx, msg)
}
