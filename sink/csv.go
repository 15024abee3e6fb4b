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
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/line"
)

// CSV appends time,topic,payload records to a writer. Rows are buffered;
// call Flush periodically and Close at shutdown.
type CSV struct {
	closer io.Closer
	buf    *bufio.Writer
	w      *csv.Writer
	now    func() time.Time
	mu     sync.Mutex
}

// NewCSV writes a header row to w and returns the sink. If w is an
// io.Closer, Close closes it.
func NewCSV(w io.Writer) (*CSV, error) {
	buf := bufio.NewWriter(w)
	s := &CSV{buf: buf, w: csv.NewWriter(buf), now: time.Now}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	if err := s.w.Write([]string{"time", "topic", "payload"}); err != nil {
		return nil, fmt.Errorf("CSV header: %w", err)
	}
	return s, s.Flush()
}

// CreateCSV creates dir if needed and opens a new timestamped CSV file in
// it, returning the sink and the file path.
func CreateCSV(dir string) (*CSV, string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dir, time.Now().Format("20060102_150405")+".csv")
	//nolint:gosec // path is built from a configured directory
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create CSV file: %w", err)
	}
	s, err := NewCSV(f)
	if err != nil {
		_ = f.Close()
		return nil, "", err
	}
	telegate.Debugf("CSV log at %s", path)
	return s, path, nil
}

// Publish implements Publisher.
func (s *CSV) Publish(_ context.Context, msg telegate.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := []string{
		s.now().Format(time.RFC3339Nano),
		msg.Topic,
		line.FormatPayload(msg),
	}
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("CSV write: %w", err)
	}
	return nil
}

// Flush writes buffered rows through.
func (s *CSV) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *CSV) flushLocked() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("CSV flush: %w", err)
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("CSV flush: %w", err)
	}
	return nil
}

// Run flushes every interval until ctx ends, then flushes once more.
func (s *CSV) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				telegate.Warnf("%v", err)
			}
		}
	}
}

// Close flushes and closes the underlying writer.
func (s *CSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.flushLocked()
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("CSV close: %w", cerr)
		}
		s.closer = nil
	}
	return err
}
