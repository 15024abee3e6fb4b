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
	"github.com/ZaparooProject/go-telegate/line"
	"github.com/ZaparooProject/go-telegate/queue"
)

// LineReader yields complete envelope lines. telegate.LineTransport
// implementations satisfy it.
type LineReader interface {
	ReadLine(ctx context.Context) ([]byte, error)
}

// RelayStats counts relay outcomes.
type RelayStats struct {
	Lines        uint64
	Relayed      uint64
	ParseErrors  uint64
	EncodeErrors uint64
	Rejected     uint64
	ReadErrors   uint64
}

// Relay reads envelope lines from a serial node, re-encodes each message as
// a frame and pushes it, so line-only nodes can feed the bus.
type Relay struct {
	Reader  LineReader
	Encoder *frame.Encoder
	Queue   *queue.Queue
	Limiter *rate.Limiter
	Backoff ReadBackoff

	drops *dropLog
	stats struct {
		lines        atomic.Uint64
		relayed      atomic.Uint64
		parseErrors  atomic.Uint64
		encodeErrors atomic.Uint64
		rejected     atomic.Uint64
		readErrors   atomic.Uint64
	}
}

// NewRelay builds a relay from cfg that reads r and pushes into q.
func NewRelay(cfg *Config, r LineReader, q *queue.Queue) *Relay {
	return &Relay{
		Reader:  r,
		Encoder: cfg.NewEncoder(),
		Queue:   q,
		Limiter: cfg.DropLimiter(),
		Backoff: cfg.ReadBackoff,
	}
}

func (r *Relay) validate() error {
	if r.Reader == nil || r.Encoder == nil || r.Queue == nil {
		return fmt.Errorf("%w: relay needs reader, encoder and queue", telegate.ErrInvalidParameter)
	}
	if r.Backoff.Initial <= 0 {
		r.Backoff = DefaultReadBackoff()
	}
	if r.drops == nil {
		r.drops = newDropLog(r.Limiter)
	}
	return nil
}

// Run relays lines until ctx ends or the reader fails fatally. Malformed
// lines are reported and skipped; transient read errors are reported and
// retried after Backoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	var pause time.Duration
	for {
		text, err := r.Reader.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if telegate.IsFatal(err) {
				return fmt.Errorf("relay read: %w", err)
			}
			r.stats.readErrors.Add(1)
			r.drops.Warnf("relay read: %v", err)
			pause = r.Backoff.Next(pause)
			if sleepCtx(ctx, pause) != nil {
				return ctx.Err()
			}
			continue
		}
		pause = 0
		_ = r.Handle(text)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Handle relays a single line and returns why it was dropped, or nil.
func (r *Relay) Handle(text []byte) error {
	if err := r.validate(); err != nil {
		return err
	}
	r.stats.lines.Add(1)

	msg, err := line.ParseEnvelope(text)
	if err != nil {
		r.stats.parseErrors.Add(1)
		r.drops.Warnf("%v", err)
		return err
	}

	f, err := r.Encoder.Frame(msg)
	if err != nil {
		r.stats.encodeErrors.Add(1)
		r.drops.Warnf("dropped %q: %v", msg.Topic, err)
		return err
	}

	if !r.Queue.TryPush(f) {
		r.stats.rejected.Add(1)
		r.drops.Warnf("dropped %q: %v", msg.Topic, telegate.ErrQueueFull)
		return fmt.Errorf("push %q: %w", msg.Topic, telegate.ErrQueueFull)
	}
	r.stats.relayed.Add(1)
	return nil
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() RelayStats {
	return RelayStats{
		Lines:        r.stats.lines.Load(),
		Relayed:      r.stats.relayed.Load(),
		ParseErrors:  r.stats.parseErrors.Load(),
		EncodeErrors: r.stats.encodeErrors.Load(),
		Rejected:     r.stats.rejected.Load(),
		ReadErrors:   r.stats.readErrors.Load(),
	}
}
