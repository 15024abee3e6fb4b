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

package telegate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// LineTransport carries newline-delimited envelope text over a serial channel,
// either toward the compute host or to the next node in a cascade.
type LineTransport interface {
	// ReadLine blocks until a complete line is available or ctx ends.
	// The returned slice is only valid until the next call.
	ReadLine(ctx context.Context) ([]byte, error)

	// WriteLine appends the line terminator and writes synchronously.
	WriteLine(text string) error

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents a UART/serial line transport.
	TransportUART TransportType = "uart"
	// TransportSPI represents the synchronous serial bus.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockLineTransport is an in-memory LineTransport for tests. Lines queued with
// QueueLine are returned by ReadLine in order; written lines are recorded.
type MockLineTransport struct {
	readErr  error
	writeErr error
	incoming chan []byte
	done     chan struct{}
	written  []string
	mu       sync.Mutex
	closed   bool
}

// NewMockLineTransport creates a mock transport that can hold up to
// buffered unread lines.
func NewMockLineTransport(buffered int) *MockLineTransport {
	return &MockLineTransport{
		incoming: make(chan []byte, buffered),
		done:     make(chan struct{}),
	}
}

// ReadLine implements LineTransport.
func (m *MockLineTransport) ReadLine(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	closed, readErr := m.closed, m.readErr
	m.mu.Unlock()

	if closed {
		return nil, ErrTransportClosed
	}
	if readErr != nil {
		return nil, readErr
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrTransportClosed
	case line := <-m.incoming:
		return line, nil
	}
}

// WriteLine implements LineTransport.
func (m *MockLineTransport) WriteLine(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrTransportClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, text)
	return nil
}

// Close implements LineTransport.
func (m *MockLineTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Type implements LineTransport.
func (*MockLineTransport) Type() TransportType {
	return TransportMock
}

// QueueLine makes line available to ReadLine. It fails when the buffer is full.
func (m *MockLineTransport) QueueLine(line string) error {
	select {
	case m.incoming <- []byte(line):
		return nil
	default:
		return errors.New("mock transport: incoming buffer full")
	}
}

// SetReadError makes every subsequent ReadLine fail with err (nil clears it).
func (m *MockLineTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetWriteError makes every subsequent WriteLine fail with err (nil clears it).
func (m *MockLineTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Written returns a copy of the lines written so far.
func (m *MockLineTransport) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.written...)
}

// WaitWritten polls until at least n lines were written or timeout expires.
func (m *MockLineTransport) WaitWritten(n int, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for {
		lines := m.Written()
		if len(lines) >= n || time.Now().After(deadline) {
			return lines
		}
		time.Sleep(time.Millisecond)
	}
}
