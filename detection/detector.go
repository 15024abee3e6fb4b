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

// Package detection finds serial ports that carry envelope telemetry, for
// relay setups where the node's USB-serial adapter path is not fixed.
package detection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/line"
)

// Mode represents the level of invasiveness for port detection
type Mode int

const (
	// Passive mode only checks port descriptors without opening anything
	Passive Mode = iota
	// Probe mode opens each candidate and waits for a valid envelope line
	Probe
)

// Confidence represents the confidence level of a detected port
type Confidence int

const (
	// Low confidence - the path looks like a USB-serial adapter
	Low Confidence = iota
	// Medium confidence - the port reports a USB descriptor
	Medium
	// High confidence - the port emitted a parseable envelope line
	High
)

// String returns a human-readable confidence level.
func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// PortInfo represents a candidate telemetry port
type PortInfo struct {
	// Connection path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// USB VID:PID, empty for non-USB ports
	VIDPID string
	// USB product string and serial number when reported
	Product      string
	SerialNumber string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the port
func (p PortInfo) String() string {
	if p.VIDPID != "" {
		return fmt.Sprintf("%s [%s] (confidence: %s)", p.Path, p.VIDPID, p.Confidence)
	}
	return fmt.Sprintf("%s (confidence: %s)", p.Path, p.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Maximum time to wait for a line from each candidate in Probe mode
	ProbeTimeout time.Duration
	// Detection invasiveness level
	Mode Mode
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:         Passive,
		ProbeTimeout: 2 * time.Second,
		Blocklist:    DefaultBlocklist(),
	}
}

// Errors
var (
	// ErrNoPortsFound indicates no candidate port was detected
	ErrNoPortsFound = errors.New("no telemetry ports found")
)

// Lister enumerates the serial ports of the host.
type Lister func() ([]*enumerator.PortDetails, error)

// Opener opens a candidate port as a line transport for probing.
type Opener func(path string) (telegate.LineTransport, error)

// Detector finds candidate telemetry ports.
type Detector struct {
	list Lister
	open Opener
}

// New creates a detector over the host's serial ports. open is used in
// Probe mode only and may be nil otherwise.
func New(open Opener) *Detector {
	return &Detector{list: enumerator.GetDetailedPortsList, open: open}
}

// NewWithLister creates a detector over a custom port source.
func NewWithLister(list Lister, open Opener) *Detector {
	return &Detector{list: list, open: open}
}

// Detect lists ports, drops blocked and ignored ones, keeps those that look
// like USB-serial adapters and, in Probe mode, those that emit an envelope.
// Results are ordered by confidence, highest first.
func (d *Detector) Detect(ctx context.Context, opts *Options) ([]PortInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var found []PortInfo
	for _, p := range ports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, ok := candidate(p, opts)
		if !ok {
			continue
		}

		if opts.Mode == Probe {
			if err := d.probe(ctx, info.Path, opts.ProbeTimeout); err != nil {
				telegate.Debugf("detection: %s rejected: %v", info.Path, err)
				continue
			}
			info.Confidence = High
		}
		found = append(found, info)
	}

	if len(found) == 0 {
		return nil, ErrNoPortsFound
	}
	slices.SortStableFunc(found, func(a, b PortInfo) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return found, nil
}

// First returns the path of the best candidate.
func (d *Detector) First(ctx context.Context, opts *Options) (string, error) {
	ports, err := d.Detect(ctx, opts)
	if err != nil {
		return "", err
	}
	telegate.Debugf("detection: selected %s", ports[0])
	return ports[0].Path, nil
}

func candidate(p *enumerator.PortDetails, opts *Options) (PortInfo, bool) {
	info := PortInfo{
		Path:         p.Name,
		VIDPID:       FormatVIDPID(p.VID, p.PID),
		Product:      p.Product,
		SerialNumber: p.SerialNumber,
		Confidence:   Low,
	}

	if IsBlocked(info.VIDPID, opts.Blocklist) || IsPathIgnored(info.Path, opts.IgnorePaths) {
		return info, false
	}
	if p.IsUSB {
		info.Confidence = Medium
		return info, true
	}
	return info, matchesAdapterPattern(info.Path)
}

// matchesAdapterPattern checks the path against common USB-serial names.
func matchesAdapterPattern(path string) bool {
	patterns := []string{
		"ttyUSB",         // Linux FTDI/CH340/CP210x
		"ttyACM",         // Linux CDC-ACM (Arduino, Teensy)
		"usbserial",      // macOS FTDI and similar
		"usbmodem",       // macOS CDC-ACM
		"SLAB_USBtoUART", // Silicon Labs CP210x
	}
	for _, pattern := range patterns {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// probe opens path and waits for one line that parses as an envelope.
func (d *Detector) probe(ctx context.Context, path string, timeout time.Duration) error {
	if d.open == nil {
		return fmt.Errorf("%w: probe mode needs an opener", telegate.ErrInvalidParameter)
	}

	t, err := d.open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = t.Close()
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		text, err := t.ReadLine(ctx)
		if err != nil {
			return err
		}
		if _, err := line.ParseEnvelope(text); err == nil {
			return nil
		}
	}
}
