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

// Publisher accepts decoded messages. sink.NATS, sink.LineSink and friends
// implement it.
type Publisher interface {
	Publish(ctx context.Context, msg telegate.Message) error
}

// DrainStats counts drain outcomes.
type DrainStats struct {
	Published     uint64
	DecodeErrors  uint64
	PublishErrors uint64
}

// Drain empties a queue every Interval, decoding each frame and handing it
// to Sink. Frames that fail validation are discarded.
type Drain struct {
	Queue    *queue.Queue
	Sink     Publisher
	Limiter  *rate.Limiter
	Interval time.Duration

	buf   []byte
	drops *dropLog
	stats struct {
		published     atomic.Uint64
		decodeErrors  atomic.Uint64
		publishErrors atomic.Uint64
	}
}

// NewDrain builds a drain from cfg that empties q into sink.
func NewDrain(cfg *Config, q *queue.Queue, sink Publisher) *Drain {
	return &Drain{
		Queue:    q,
		Sink:     sink,
		Limiter:  cfg.DropLimiter(),
		Interval: cfg.DrainInterval,
	}
}

func (d *Drain) validate() error {
	if d.Queue == nil || d.Sink == nil {
		return fmt.Errorf("%w: drain needs queue and sink", telegate.ErrInvalidParameter)
	}
	if d.Interval <= 0 {
		d.Interval = DefaultConfig().DrainInterval
	}
	if len(d.buf) != d.Queue.EntrySize() {
		d.buf = make([]byte, d.Queue.EntrySize())
	}
	if d.drops == nil {
		d.drops = newDropLog(d.Limiter)
	}
	return nil
}

// Run flushes every Interval until ctx ends or the sink fails fatally.
func (d *Drain) Run(ctx context.Context) error {
	if err := d.validate(); err != nil {
		return err
	}

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Flush(ctx); err != nil {
				return err
			}
		}
	}
}

// Flush publishes every queued frame and returns how many were published.
// Only a fatal sink error is returned.
func (d *Drain) Flush(ctx context.Context) (int, error) {
	if err := d.validate(); err != nil {
		return 0, err
	}

	published := 0
	for {
		n, ok := d.Queue.TryPop(d.buf)
		if !ok {
			return published, nil
		}

		msg, err := frame.Decode(d.buf[:n])
		if err != nil {
			d.stats.decodeErrors.Add(1)
			d.drops.Warnf("discarded frame: %v", err)
			continue
		}

		if err := d.Sink.Publish(ctx, msg); err != nil {
			d.stats.publishErrors.Add(1)
			if telegate.IsFatal(err) {
				return published, fmt.Errorf("publish %q: %w", msg.Topic, err)
			}
			d.drops.Warnf("publish %q failed: %v", msg.Topic, err)
			continue
		}
		d.stats.published.Add(1)
		published++
	}
}

// Stats returns a snapshot of the drain counters.
func (d *Drain) Stats() DrainStats {
	return DrainStats{
		Published:     d.stats.published.Load(),
		DecodeErrors:  d.stats.decodeErrors.Load(),
		PublishErrors: d.stats.publishErrors.Load(),
	}
}
