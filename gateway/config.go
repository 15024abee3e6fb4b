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

// Package gateway wires the core pieces into running loops: a producer that
// samples, encodes and enqueues on a fixed tick, a drain that empties a queue
// into a sink, and a relay that turns envelope lines into frames.
package gateway

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/frame"
	"github.com/ZaparooProject/go-telegate/queue"
)

// StallConfig configures detection of late producer ticks, which happen when
// the host was suspended or the sampler blocked.
type StallConfig struct {
	// Enabled enables stall detection
	Enabled bool

	// Threshold is the lateness beyond the tick interval that counts as a
	// stall. Default: 100ms
	Threshold time.Duration
}

// DefaultStallConfig returns the default stall detection settings.
func DefaultStallConfig() StallConfig {
	return StallConfig{
		Enabled:   true,
		Threshold: 100 * time.Millisecond,
	}
}

// DetectStall reports whether elapsed since the previous tick exceeds
// interval + Threshold.
func (cfg StallConfig) DetectStall(elapsed, interval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > interval+cfg.Threshold
}

// Config holds gateway loop settings
type Config struct {
	// SampleInterval is the producer tick. Default: 10ms
	SampleInterval time.Duration
	// DrainInterval is how often the drain empties its queue. Default: 10ms
	DrainInterval time.Duration
	// QueueCapacity is the number of queued frames. Default: 32
	QueueCapacity int
	// FrameCapacity is the frame size, header included. Default: 512
	FrameCapacity int
	// Policy is the queue overflow policy
	Policy queue.Policy
	// StampTime adds sec/usec fields to every sampled message
	StampTime bool
	// DropLogEvery and DropLogBurst rate-limit drop diagnostics
	DropLogEvery time.Duration
	DropLogBurst int
	// Stall configures late-tick detection
	Stall StallConfig
	// ReadBackoff paces relay reads after a failed ReadLine
	ReadBackoff ReadBackoff
}

// ReadBackoff is the pause after a failed line read. It doubles on each
// consecutive failure up to Max and resets after a successful read.
type ReadBackoff struct {
	// Initial is the first pause. Default: 10ms
	Initial time.Duration
	// Max caps the pause. Default: 1s
	Max time.Duration
}

// DefaultReadBackoff returns the default relay read backoff
func DefaultReadBackoff() ReadBackoff {
	return ReadBackoff{
		Initial: 10 * time.Millisecond,
		Max:     time.Second,
	}
}

// Next returns the pause that follows cur.
func (b ReadBackoff) Next(cur time.Duration) time.Duration {
	if cur <= 0 {
		return b.Initial
	}
	return min(cur*2, max(b.Max, b.Initial))
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() *Config {
	return &Config{
		SampleInterval: 10 * time.Millisecond,
		DrainInterval:  10 * time.Millisecond,
		QueueCapacity:  32,
		FrameCapacity:  frame.DefaultCapacity,
		Policy:         queue.RejectNew,
		StampTime:      true,
		DropLogEvery:   time.Second,
		DropLogBurst:   5,
		Stall:          DefaultStallConfig(),
		ReadBackoff:    DefaultReadBackoff(),
	}
}

// Validate checks ranges.
func (c *Config) Validate() error {
	switch {
	case c.SampleInterval <= 0:
		return fmt.Errorf("%w: sample interval %v", telegate.ErrInvalidParameter, c.SampleInterval)
	case c.DrainInterval <= 0:
		return fmt.Errorf("%w: drain interval %v", telegate.ErrInvalidParameter, c.DrainInterval)
	case c.ReadBackoff.Initial <= 0:
		return fmt.Errorf("%w: read backoff %v", telegate.ErrInvalidParameter, c.ReadBackoff.Initial)
	case c.QueueCapacity < 1:
		return fmt.Errorf("%w: queue capacity %d", telegate.ErrInvalidParameter, c.QueueCapacity)
	case c.FrameCapacity < frame.MinCapacity || c.FrameCapacity > frame.MaxCapacity:
		return fmt.Errorf("%w: frame capacity %d outside [%d, %d]",
			telegate.ErrInvalidParameter, c.FrameCapacity, frame.MinCapacity, frame.MaxCapacity)
	}
	return nil
}

// NewQueue creates a queue sized and configured by c.
func (c *Config) NewQueue(opts ...queue.Option) *queue.Queue {
	opts = append([]queue.Option{queue.WithPolicy(c.Policy)}, opts...)
	return queue.New(c.QueueCapacity, c.FrameCapacity, opts...)
}

// NewEncoder creates an encoder for frames of FrameCapacity bytes.
func (c *Config) NewEncoder() *frame.Encoder {
	return frame.NewEncoder(c.FrameCapacity)
}

// DropLimiter creates the limiter used for drop diagnostics.
func (c *Config) DropLimiter() *rate.Limiter {
	if c.DropLogEvery <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(c.DropLogEvery), max(c.DropLogBurst, 1))
}
