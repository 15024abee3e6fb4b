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

// Package spi provides the host side of the frame exchange: an SPI bus
// master that polls a slave transfer engine for queued frames.
package spi

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/frame"
	"github.com/ZaparooProject/go-telegate/slave"
)

const (
	// Default SPI settings
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0
	bitsPerWord = 8

	// DefaultMaxRereads is how many consecutive corrupt reads of one frame
	// are tolerated before the master advances past it.
	DefaultMaxRereads = 3

	lengthPrefix = 2
)

// Master polls a slave engine over SPI. It is not safe for concurrent use.
type Master struct {
	port       spi.PortCloser
	conn       spi.Conn
	pool       *frame.Pool
	retry      *telegate.RetryConfig
	portName   string
	freq       physic.Frequency
	capacity   int
	maxRereads int
	rereads    int
	stats      masterCounters
}

type masterCounters struct {
	frames    atomic.Uint64
	empty     atomic.Uint64
	corrupt   atomic.Uint64
	skipped   atomic.Uint64
	busErrors atomic.Uint64
}

// Stats counts master activity.
type Stats struct {
	Frames    uint64 // frames decoded and advanced
	Empty     uint64 // polls that found the slave queue empty
	Corrupt   uint64 // reads that failed validation
	Skipped   uint64 // frames abandoned after MaxRereads corrupt reads
	BusErrors uint64 // transactions that failed at the driver level
}

// Option configures a Master.
type Option func(*Master)

// WithFrequency sets the SPI clock. Only used by New.
func WithFrequency(f physic.Frequency) Option {
	return func(m *Master) {
		m.freq = f
	}
}

// WithCapacity sets the largest frame the master accepts, header included.
// It must match the slave's entry size.
func WithCapacity(capacity int) Option {
	return func(m *Master) {
		m.capacity = min(max(capacity, frame.MinCapacity), frame.MaxCapacity)
	}
}

// WithMaxRereads sets how many consecutive corrupt reads of the same frame
// are retried before skipping it. Zero skips immediately.
func WithMaxRereads(n int) Option {
	return func(m *Master) {
		m.maxRereads = max(n, 0)
	}
}

// WithRetryConfig sets the retry policy for individual bus transactions.
func WithRetryConfig(cfg *telegate.RetryConfig) Option {
	return func(m *Master) {
		if cfg != nil {
			m.retry = cfg
		}
	}
}

func newMaster(portName string, opts []Option) *Master {
	m := &Master{
		portName:   portName,
		freq:       defaultFreq,
		capacity:   frame.DefaultCapacity,
		maxRereads: DefaultMaxRereads,
		retry:      telegate.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.pool = frame.NewPool(m.capacity)
	return m
}

// New opens the SPI port (for example "/dev/spidev0.0" or "SPI0.0") and
// connects in mode 0 with 8-bit words.
func New(portName string, opts ...Option) (*Master, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	m := newMaster(portName, opts)
	c, err := port.Connect(m.freq, mode, bitsPerWord)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	m.port = port
	m.conn = c

	telegate.Debugf("SPI master on %s at %s", portName, m.freq)
	return m, nil
}

// NewWithConn wraps an already connected SPI connection.
func NewWithConn(c spi.Conn, opts ...Option) *Master {
	m := newMaster(c.String(), opts)
	m.conn = c
	return m
}

// Capacity returns the largest accepted frame size.
func (m *Master) Capacity() int {
	return m.capacity
}

// Stats returns a snapshot of the master counters. Safe from any goroutine.
func (m *Master) Stats() Stats {
	return Stats{
		Frames:    m.stats.frames.Load(),
		Empty:     m.stats.empty.Load(),
		Corrupt:   m.stats.corrupt.Load(),
		Skipped:   m.stats.skipped.Load(),
		BusErrors: m.stats.busErrors.Load(),
	}
}

// Next performs one poll cycle. It returns the next queued message, or
// telegate.ErrNoData when the slave answered with the empty sentinel. A frame
// that fails validation is left in place so the following call reads it
// again; after too many consecutive failures it is skipped and the
// validation error is returned.
func (m *Master) Next(ctx context.Context) (telegate.Message, error) {
	if m.conn == nil {
		return telegate.Message{}, telegate.ErrTransportClosed
	}

	prefix := m.pool.Get(lengthPrefix)
	defer m.pool.Put(prefix)
	if err := m.tx(ctx, "read length", nil, prefix); err != nil {
		return telegate.Message{}, err
	}

	bodyLen := int(binary.BigEndian.Uint16(prefix))
	if bodyLen == 0 {
		m.stats.empty.Add(1)
		if err := m.advance(ctx); err != nil {
			return telegate.Message{}, err
		}
		return telegate.Message{}, telegate.ErrNoData
	}

	if frame.HeaderSize+bodyLen > m.capacity {
		return telegate.Message{}, m.corrupt(ctx, &telegate.FrameError{
			Op: "decode", Err: telegate.ErrLengthOutOfRange,
		})
	}

	buf := m.pool.Get(frame.HeaderSize + bodyLen)
	defer m.pool.Put(buf)
	if err := m.tx(ctx, "read frame", nil, buf); err != nil {
		return telegate.Message{}, err
	}

	msg, err := frame.Decode(buf)
	if err != nil {
		return telegate.Message{}, m.corrupt(ctx, err)
	}

	m.rereads = 0
	m.stats.frames.Add(1)
	if err := m.advance(ctx); err != nil {
		return msg, err
	}
	return msg, nil
}

// corrupt records a failed validation and decides between re-reading and
// skipping the frame.
func (m *Master) corrupt(ctx context.Context, cause error) error {
	m.stats.corrupt.Add(1)
	m.rereads++
	if m.rereads <= m.maxRereads {
		telegate.Debugf("SPI frame rejected (%d/%d): %v", m.rereads, m.maxRereads, cause)
		return cause
	}

	telegate.Debugf("SPI frame skipped after %d corrupt reads: %v", m.rereads, cause)
	m.rereads = 0
	m.stats.skipped.Add(1)
	if err := m.advance(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// advance asks the slave to load its next queued frame.
func (m *Master) advance(ctx context.Context) error {
	return m.tx(ctx, "advance", []byte{slave.CommandNext}, nil)
}

// tx runs one bus transaction with retries. A nil w sends zeros.
func (m *Master) tx(ctx context.Context, op string, w, r []byte) error {
	if w == nil {
		w = m.pool.Get(len(r))
		defer m.pool.Put(w)
	}
	err := telegate.Retry(ctx, m.retry, func() error {
		if err := m.conn.Tx(w, r); err != nil {
			return telegate.NewTransportError(op, m.portName, fmt.Errorf("%w: %w", telegate.ErrTransportRead, err))
		}
		return nil
	})
	if err != nil {
		m.stats.busErrors.Add(1)
	}
	return err
}

// Poll calls Next every interval until ctx ends, delivering each message to
// fn. Empty polls and corrupt frames are not reported; bus errors are logged
// and polling continues unless they are fatal. An error from fn stops the
// loop.
func (m *Master) Poll(ctx context.Context, interval time.Duration, fn func(telegate.Message) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			msg, err := m.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if telegate.IsFatal(err) {
					return err
				}
				if !errors.Is(err, telegate.ErrNoData) && !telegate.IsFrameError(err) {
					telegate.Debugf("SPI poll error: %v", err)
				}
				break
			}
			if err := fn(msg); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the SPI port.
func (m *Master) Close() error {
	if m.port != nil {
		if err := m.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
		m.port = nil
	}
	m.conn = nil
	return nil
}

// Type returns the transport type.
func (*Master) Type() telegate.TransportType {
	return telegate.TransportSPI
}
