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

// Package config loads the TOML configuration of the telegate binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/detection"
	"github.com/ZaparooProject/go-telegate/frame"
	"github.com/ZaparooProject/go-telegate/gateway"
	"github.com/ZaparooProject/go-telegate/queue"
	"github.com/ZaparooProject/go-telegate/sink"
	"github.com/ZaparooProject/go-telegate/transport/uart"
)

// Modes of the binary.
const (
	// ModeCollect polls a slave node over SPI and publishes what it reads.
	ModeCollect = "collect"
	// ModeRelay reads envelope lines from a serial port, re-frames them
	// through a queue and publishes them.
	ModeRelay = "relay"
)

// Config is the file layout.
type Config struct {
	Mode    string  `toml:"mode"`
	Log     Log     `toml:"log"`
	Metrics Metrics `toml:"metrics"`
	Gateway Gateway `toml:"gateway"`
	SPI     SPI     `toml:"spi"`
	Serial  Serial  `toml:"serial"`
	NATS    NATS    `toml:"nats"`
	CSV     CSV     `toml:"csv"`
	Output  Output  `toml:"output"`
}

// Log configures diagnostics.
type Log struct {
	Level      string `toml:"level"`       // debug, info, warn, error
	Format     string `toml:"format"`      // text or json
	SessionDir string `toml:"session_dir"` // empty disables the session log
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Listen string `toml:"listen"` // empty disables it
	Path   string `toml:"path"`
}

// Gateway mirrors gateway.Config.
type Gateway struct {
	Policy         string        `toml:"policy"`
	DrainInterval  time.Duration `toml:"drain_interval"`
	DropLogEvery   time.Duration `toml:"drop_log_every"`
	QueueCapacity  int           `toml:"queue_capacity"`
	FrameCapacity  int           `toml:"frame_capacity"`
	DropLogBurst   int           `toml:"drop_log_burst"`
	StallThreshold time.Duration `toml:"stall_threshold"`
}

// SPI configures the bus master used in collect mode.
type SPI struct {
	Port         string        `toml:"port"`
	FrequencyHz  int64         `toml:"frequency_hz"`
	PollInterval time.Duration `toml:"poll_interval"`
	MaxRereads   int           `toml:"max_rereads"`
}

// Serial configures the line port used in relay mode.
type Serial struct {
	Port         string        `toml:"port"`          // a device path or "auto"
	DriverEnable string        `toml:"driver_enable"` // none, rts or dtr
	Baud         int           `toml:"baud"`
	LineCapacity int           `toml:"line_capacity"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	Detect       Detect        `toml:"detect"`
}

// Detect configures port discovery when serial.port is "auto".
type Detect struct {
	Probe        bool          `toml:"probe"` // wait for an envelope line on each candidate
	ProbeTimeout time.Duration `toml:"probe_timeout"`
	IgnorePaths  []string      `toml:"ignore_paths"`
	Blocklist    []string      `toml:"blocklist"` // VID:PID pairs, added to the built-in list
}

// AutoPort selects serial port discovery.
const AutoPort = "auto"

// NATS configures the NATS sink.
type NATS struct {
	URL           string `toml:"url"` // empty disables it
	SubjectPrefix string `toml:"subject_prefix"`
	Decimate      int    `toml:"decimate"`
}

// CSV configures the CSV log sink.
type CSV struct {
	Dir           string        `toml:"dir"` // empty disables it
	FlushInterval time.Duration `toml:"flush_interval"`
}

// Output configures the line sink on stdout.
type Output struct {
	Stdout     bool   `toml:"stdout"`
	LineFormat string `toml:"line_format"` // object or quoted
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	gw := gateway.DefaultConfig()
	return &Config{
		Mode: ModeCollect,
		Log:  Log{Level: "info", Format: "text"},
		Metrics: Metrics{
			Path: "/metrics",
		},
		Gateway: Gateway{
			Policy:         gw.Policy.String(),
			DrainInterval:  gw.DrainInterval,
			DropLogEvery:   gw.DropLogEvery,
			QueueCapacity:  gw.QueueCapacity,
			FrameCapacity:  gw.FrameCapacity,
			DropLogBurst:   gw.DropLogBurst,
			StallThreshold: gw.Stall.Threshold,
		},
		SPI: SPI{
			Port:         "/dev/spidev0.0",
			FrequencyHz:  1_000_000,
			PollInterval: 5 * time.Millisecond,
			MaxRereads:   3,
		},
		Serial: Serial{
			Port:         "/dev/ttyUSB0",
			DriverEnable: "none",
			Baud:         uart.DefaultBaudRate,
			LineCapacity: 512,
			ReadTimeout:  uart.DefaultReadTimeout,
			Detect: Detect{
				ProbeTimeout: detection.DefaultOptions().ProbeTimeout,
			},
		},
		NATS: NATS{
			SubjectPrefix: sink.DefaultSubjectPrefix,
			Decimate:      1,
		},
		CSV: CSV{
			FlushInterval: time.Second,
		},
		Output: Output{
			Stdout:     true,
			LineFormat: "object",
		},
	}
}

// Load reads path over the defaults and validates the result. Unknown keys
// are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys in %s: %s",
			telegate.ErrInvalidParameter, path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{telegate.ErrInvalidParameter}, args...)...))
	}

	switch c.Mode {
	case ModeCollect:
		if c.SPI.Port == "" {
			invalid("spi.port is required in %s mode", c.Mode)
		}
	case ModeRelay:
		if c.Serial.Port == "" {
			invalid("serial.port is required in %s mode", c.Mode)
		}
	default:
		invalid("mode %q", c.Mode)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		invalid("log.level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		invalid("log.format %q", c.Log.Format)
	}

	if _, err := c.GatewayConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.SPI.FrequencyHz <= 0 {
		invalid("spi.frequency_hz %d", c.SPI.FrequencyHz)
	}
	if c.SPI.PollInterval <= 0 {
		invalid("spi.poll_interval %v", c.SPI.PollInterval)
	}
	if c.SPI.MaxRereads < 0 {
		invalid("spi.max_rereads %d", c.SPI.MaxRereads)
	}
	if _, err := uart.ParseDriverEnable(c.Serial.DriverEnable); err != nil {
		errs = append(errs, err)
	}
	if c.Serial.Baud <= 0 {
		invalid("serial.baud %d", c.Serial.Baud)
	}
	if c.Serial.Port == AutoPort && c.Serial.Detect.Probe && c.Serial.Detect.ProbeTimeout <= 0 {
		invalid("serial.detect.probe_timeout %v", c.Serial.Detect.ProbeTimeout)
	}
	if c.Serial.LineCapacity < 2 {
		invalid("serial.line_capacity %d", c.Serial.LineCapacity)
	}
	if _, err := sink.ParseFormat(c.Output.LineFormat); err != nil {
		errs = append(errs, err)
	}
	if c.CSV.Dir != "" && c.CSV.FlushInterval <= 0 {
		invalid("csv.flush_interval %v", c.CSV.FlushInterval)
	}
	return errors.Join(errs...)
}

// GatewayConfig converts the gateway section.
func (c *Config) GatewayConfig() (*gateway.Config, error) {
	policy, ok := queue.ParsePolicy(c.Gateway.Policy)
	if !ok {
		return nil, fmt.Errorf("%w: gateway.policy %q", telegate.ErrInvalidParameter, c.Gateway.Policy)
	}

	gw := gateway.DefaultConfig()
	gw.Policy = policy
	gw.DrainInterval = c.Gateway.DrainInterval
	gw.QueueCapacity = c.Gateway.QueueCapacity
	gw.FrameCapacity = c.Gateway.FrameCapacity
	gw.DropLogEvery = c.Gateway.DropLogEvery
	gw.DropLogBurst = c.Gateway.DropLogBurst
	gw.Stall.Threshold = c.Gateway.StallThreshold
	if err := gw.Validate(); err != nil {
		return nil, err
	}
	return gw, nil
}

// FrameCapacity returns the configured frame size clamped to the codec
// limits.
func (c *Config) FrameCapacity() int {
	return min(max(c.Gateway.FrameCapacity, frame.MinCapacity), frame.MaxCapacity)
}

// DetectOptions converts the serial detect section.
func (c *Config) DetectOptions() detection.Options {
	opts := detection.DefaultOptions()
	if c.Serial.Detect.Probe {
		opts.Mode = detection.Probe
	}
	opts.ProbeTimeout = c.Serial.Detect.ProbeTimeout
	opts.IgnorePaths = c.Serial.Detect.IgnorePaths
	opts.Blocklist = append(opts.Blocklist, c.Serial.Detect.Blocklist...)
	return opts
}
