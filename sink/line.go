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
	"context"
	"fmt"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/line"
)

// LineWriter writes one terminated line. telegate.LineTransport and
// *line.Writer implement it.
type LineWriter interface {
	WriteLine(text string) error
}

// Format selects how LineSink renders the payload.
type Format int

const (
	// FormatObject renders {"topic":"t","payload":{...}}.
	FormatObject Format = iota
	// FormatQuoted renders the payload as an escaped string,
	// {"topic":"t","payload":"{\"k\":1}"}, as serial nodes emit it.
	FormatQuoted
)

// ParseFormat maps a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "object":
		return FormatObject, nil
	case "quoted":
		return FormatQuoted, nil
	default:
		return FormatObject, fmt.Errorf("%w: line format %q", telegate.ErrInvalidParameter, s)
	}
}

// LineSink writes each message as one envelope line.
type LineSink struct {
	w      LineWriter
	format Format
}

// NewLineSink creates a sink writing to w in the given format.
func NewLineSink(w LineWriter, format Format) *LineSink {
	return &LineSink{w: w, format: format}
}

// Render returns the envelope text for msg without the terminator.
func (s *LineSink) Render(msg telegate.Message) string {
	if s.format == FormatQuoted {
		return line.FormatEnvelope(msg.Topic, line.FormatPayload(msg))
	}
	return line.FormatMessage(msg)
}

// Publish implements Publisher.
func (s *LineSink) Publish(_ context.Context, msg telegate.Message) error {
	return s.w.WriteLine(s.Render(msg))
}
