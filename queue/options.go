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

package queue

// Option configures a Queue using the functional options pattern.
type Option func(*options)

type options struct {
	onDrop func()
	policy Policy
}

// WithPolicy sets the overflow policy. Defaults to RejectNew.
func WithPolicy(policy Policy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithDropCallback registers fn to run after every rejected or evicted entry.
// fn runs outside the queue lock but on the caller's goroutine, which may be
// the bus handler; keep it short and non-blocking.
func WithDropCallback(fn func()) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{policy: RejectNew}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Stats is a snapshot of queue activity since construction.
type Stats struct {
	Pushed   uint64 // entries accepted
	Popped   uint64 // entries removed by consumers
	Rejected uint64 // pushes refused (full under RejectNew, or oversized)
	Evicted  uint64 // oldest entries dropped under EvictOldest
	Depth    int    // entries queued at snapshot time
}

// Dropped returns the total number of entries lost to overflow.
func (s Stats) Dropped() uint64 {
	return s.Rejected + s.Evicted
}

// Stats returns a snapshot of the counters. It does not take the queue lock.
func (q *Queue) Stats() Stats {
	return Stats{
		Pushed:   q.stats.pushed.Load(),
		Popped:   q.stats.popped.Load(),
		Rejected: q.stats.rejected.Load(),
		Evicted:  q.stats.evicted.Load(),
		Depth:    int(q.stats.depth.Load()),
	}
}
