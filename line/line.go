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

// Package line implements the newline-delimited text side of the gateway:
// a fixed-capacity line accumulator, a synchronous line writer and the
// {"topic":...,"payload":...} envelope carried on each line.
package line

import (
	"fmt"
	"io"
)

// DefaultCapacity matches the firmware's line buffer.
const DefaultCapacity = 512

// Reader accumulates incoming bytes into lines. A line completes on '\n' or
// when the buffer fills: the byte that would land at index capacity-1 is
// discarded and the line is cut at exactly capacity-1 bytes. The next byte
// starts a new line.
type Reader struct {
	buf []byte
	n   int
}

// NewReader creates an accumulator with the given buffer capacity (minimum 2).
func NewReader(capacity int) *Reader {
	return &Reader{buf: make([]byte, max(capacity, 2))}
}

// Capacity returns the buffer size. Lines are at most Capacity()-1 bytes.
func (r *Reader) Capacity() int {
	return len(r.buf)
}

// Feed consumes p and calls fn for each completed line, in order. The slice
// passed to fn is only valid during the call. It returns the number of lines
// completed.
func (r *Reader) Feed(p []byte, fn func(line []byte)) int {
	lines := 0
	for _, c := range p {
		if line, ok := r.FeedByte(c); ok {
			lines++
			if fn != nil {
				fn(line)
			}
		}
	}
	return lines
}

// FeedByte consumes one byte. When it completes a line the line is returned
// with ok set; the slice is valid until the next FeedByte.
func (r *Reader) FeedByte(c byte) (line []byte, ok bool) {
	r.buf[r.n] = c
	if c == '\n' || r.n >= len(r.buf)-1 {
		line = r.buf[:r.n]
		r.n = 0
		return line, true
	}
	r.n++
	return nil, false
}

// Pending returns the partial line accumulated so far. The slice aliases the
// internal buffer.
func (r *Reader) Pending() []byte {
	return r.buf[:r.n]
}

// Reset drops any partial line.
func (r *Reader) Reset() {
	r.n = 0
}

// Writer writes terminated lines to an underlying writer.
type Writer struct {
	W   io.Writer
	buf []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{W: w}
}

// WriteLine appends '\n' to text and writes it with a single Write call.
func (w *Writer) WriteLine(text string) error {
	w.buf = append(w.buf[:0], text...)
	w.buf = append(w.buf, '\n')
	n, err := w.W.Write(w.buf)
	if err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	if n != len(w.buf) {
		return fmt.Errorf("write line: %w", io.ErrShortWrite)
	}
	return nil
}
