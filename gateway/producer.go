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

package gateway

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/frame"
	"github.com/ZaparooProject/go-telegate/queue"
)

// Sampler produces one message per tick. ok is false when there is nothing
// to publish this tick.
type Sampler func(ctx context.Context) (msg telegate.Message, ok bool)

// ProducerStats counts producer outcomes.
type ProducerStats struct {
	Ticks        uint64
	Produced     uint64
	EncodeErrors uint64
	Rejected     uint64
	Stalls       uint64
}

// Producer samples, encodes and enqueues once per Interval. Encoding and
// queue overflows drop the message with a rate-limited diagnostic; the loop
// never stops for them.
type Producer struct {
	Sampler   Sampler
	Encoder   *frame.Encoder
	Queue     *queue.Queue
	Clock     telegate.Clock
	Limiter   *rate.Limiter // drop diagnostics; nil uses the default rate
	Stall     StallConfig
	Interval  time.Duration
	StampTime bool

	drops *dropLog
	stats producerCounters
}

type producerCounters struct {
	ticks        atomic.Uint64
	produced     atomic.Uint64
	encodeErrors atomic.Uint64
	rejected     atomic.Uint64
	stalls       atomic.Uint64
}

// NewProducer builds a producer from cfg that pushes into q.
func NewProducer(cfg *Config, sampler Sampler, q *queue.Queue) *Producer {
	return &Producer{
		Sampler:   sampler,
		Encoder:   cfg.NewEncoder(),
		Queue:     q,
		Clock:     telegate.NewClock(),
		Limiter:   cfg.DropLimiter(),
		Stall:     cfg.Stall,
		Interval:  cfg.SampleInterval,
		StampTime: cfg.StampTime,
	}
}

func (p *Producer) validate() error {
	if p.Sampler == nil || p.Encoder == nil || p.Queue == nil {
		return fmt.Errorf("%w: producer needs sampler, encoder and queue", telegate.ErrInvalidParameter)
	}
	if p.Interval <= 0 {
		p.Interval = DefaultConfig().SampleInterval
	}
	if p.Clock == nil {
		p.Clock = telegate.NewClock()
	}
	if p.drops == nil {
		p.drops = newDropLog(p.Limiter)
	}
	return nil
}

// Run ticks until ctx ends and returns ctx.Err().
func (p *Producer) Run(ctx context.Context) error {
	if err := p.validate(); err != nil {
		return err
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if elapsed := now.Sub(last); p.Stall.DetectStall(elapsed, p.Interval) {
				p.stats.stalls.Add(1)
				telegate.Debugf("producer tick late by %v", elapsed-p.Interval)
			}
			last = now
			_ = p.Tick(ctx)
		}
	}
}

// Tick runs one sample-encode-push cycle. It returns the reason a message
// was dropped, or nil.
func (p *Producer) Tick(ctx context.Context) error {
	if err := p.validate(); err != nil {
		return err
	}
	p.stats.ticks.Add(1)

	msg, ok := p.Sampler(ctx)
	if !ok {
		return nil
	}
	if p.StampTime {
		msg.AddTime(p.Clock())
	}

	f, err := p.Encoder.Frame(msg)
	if err != nil {
		p.stats.encodeErrors.Add(1)
		p.drops.Warnf("dropped %q: %v", msg.Topic, err)
		return err
	}

	if !p.Queue.TryPush(f) {
		p.stats.rejected.Add(1)
		p.drops.Warnf("dropped %q: %v", msg.Topic, telegate.ErrQueueFull)
		return fmt.Errorf("push %q: %w", msg.Topic, telegate.ErrQueueFull)
	}
	p.stats.produced.Add(1)
	return nil
}

// Stats returns a snapshot of the producer counters.
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		Ticks:        p.stats.ticks.Load(),
		Produced:     p.stats.produced.Load(),
		EncodeErrors: p.stats.encodeErrors.Load(),
		Rejected:     p.stats.rejected.Load(),
		Stalls:       p.stats.stalls.Load(),
	}
}
