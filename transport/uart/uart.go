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

// Package uart provides the serial-port line transport: newline-delimited
// envelope text over a UART, optionally through an RS-485 transceiver.
package uart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/line"
)

const (
	// DefaultBaudRate matches the node firmware.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds each port read so ReadLine can observe ctx.
	DefaultReadTimeout = 50 * time.Millisecond
	// DefaultSettle is the pause around driver-enable transitions.
	DefaultSettle = time.Millisecond

	readChunk = 64
)

// DriverEnable selects the modem line wired to an RS-485 transceiver's
// DE/RE pins.
type DriverEnable int

const (
	// DriverEnableNone is a plain point-to-point UART.
	DriverEnableNone DriverEnable = iota
	// DriverEnableRTS drives DE/RE from RTS.
	DriverEnableRTS
	// DriverEnableDTR drives DE/RE from DTR.
	DriverEnableDTR
)

// ParseDriverEnable maps a configuration string to a DriverEnable.
func ParseDriverEnable(s string) (DriverEnable, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return DriverEnableNone, nil
	case "rts":
		return DriverEnableRTS, nil
	case "dtr":
		return DriverEnableDTR, nil
	default:
		return DriverEnableNone, fmt.Errorf("%w: driver enable %q", telegate.ErrInvalidParameter, s)
	}
}

// Transport implements telegate.LineTransport over a serial port.
type Transport struct {
	port        serial.Port
	reader      *line.Reader
	writer      *line.Writer
	rest        []byte
	readBuf     []byte
	portName    string
	readTimeout time.Duration
	settle      time.Duration
	writeMu     sync.Mutex
	readMu      sync.Mutex
	de          DriverEnable
	closed      atomic.Bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithLineCapacity sets the line accumulator size. Longer lines are cut at
// capacity-1 bytes.
func WithLineCapacity(capacity int) Option {
	return func(t *Transport) {
		t.reader = line.NewReader(capacity)
	}
}

// WithReadTimeout sets the per-read timeout of the port.
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

// WithDriverEnable toggles the given modem line around every write, pausing
// settle before and after the data.
func WithDriverEnable(de DriverEnable, settle time.Duration) Option {
	return func(t *Transport) {
		t.de = de
		t.settle = max(settle, 0)
	}
}

func newTransport(port serial.Port, portName string, opts []Option) *Transport {
	t := &Transport{
		port:        port,
		portName:    portName,
		readTimeout: DefaultReadTimeout,
		settle:      DefaultSettle,
		readBuf:     make([]byte, readChunk),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.reader == nil {
		t.reader = line.NewReader(line.DefaultCapacity)
	}
	t.writer = line.NewWriter(port)
	return t
}

// New opens portName at baud (8N1). A baud of 0 selects DefaultBaudRate.
func New(portName string, baud int, opts ...Option) (*Transport, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t := newTransport(port, portName, opts)
	if err := port.SetReadTimeout(t.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	if t.de != DriverEnableNone {
		if err := t.setDriverEnable(false); err != nil {
			_ = port.Close()
			return nil, err
		}
	}

	telegate.Debugf("UART %s open at %d baud", portName, baud)
	return t, nil
}

// ReadLine returns the next complete line without its terminator. The slice
// is valid until the next call. Bytes after the line stay buffered for the
// following call.
func (t *Transport) ReadLine(ctx context.Context) ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for {
		if l, ok := t.consume(); ok {
			return l, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.closed.Load() {
			return nil, telegate.ErrTransportClosed
		}

		n, err := t.port.Read(t.readBuf)
		if err != nil {
			if t.closed.Load() {
				return nil, telegate.ErrTransportClosed
			}
			return nil, telegate.NewTransportError("read", t.portName,
				fmt.Errorf("%w: %w", telegate.ErrTransportRead, err))
		}
		// n == 0 is a read timeout
		t.rest = t.readBuf[:n]
	}
}

// consume feeds buffered bytes until a line completes.
func (t *Transport) consume() ([]byte, bool) {
	for i, c := range t.rest {
		if l, ok := t.reader.FeedByte(c); ok {
			t.rest = t.rest[i+1:]
			return l, true
		}
	}
	t.rest = nil
	return nil, false
}

// WriteLine writes text plus '\n' and waits for it to leave the port. With
// a driver-enable line configured, the transceiver is enabled for the
// duration of the write.
func (t *Transport) WriteLine(text string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed.Load() {
		return telegate.ErrTransportClosed
	}

	if t.de != DriverEnableNone {
		if err := t.setDriverEnable(true); err != nil {
			return err
		}
		time.Sleep(t.settle)
		defer func() {
			time.Sleep(t.settle)
			if err := t.setDriverEnable(false); err != nil {
				telegate.Debugf("UART %s: %v", t.portName, err)
			}
			time.Sleep(t.settle)
		}()
	}

	if err := t.writer.WriteLine(text); err != nil {
		return telegate.NewTransportError("write", t.portName,
			fmt.Errorf("%w: %w", telegate.ErrTransportWrite, err))
	}
	return t.drainWithRetry("write line")
}

func (t *Transport) setDriverEnable(on bool) error {
	var err error
	switch t.de {
	case DriverEnableRTS:
		err = t.port.SetRTS(on)
	case DriverEnableDTR:
		err = t.port.SetDTR(on)
	default:
		return nil
	}
	if err != nil {
		return telegate.NewTransportError("driver enable", t.portName,
			fmt.Errorf("%w: %w", telegate.ErrTransportWrite, err))
	}
	return nil
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// Pending returns the partial line received so far.
func (t *Transport) Pending() []byte {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	return append([]byte(nil), t.reader.Pending()...)
}

// Close closes the port. Blocked reads return ErrTransportClosed.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("UART close failed: %w", err)
		}
	}
	return nil
}

// IsConnected returns true if the transport is open.
func (t *Transport) IsConnected() bool {
	return t.port != nil && !t.closed.Load()
}

// Type returns the transport type
func (*Transport) Type() telegate.TransportType {
	return telegate.TransportUART
}

var _ telegate.LineTransport = (*Transport)(nil)
