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

// Command telegate collects telemetry frames from an SPI bus slave, or relays
// envelope lines from a serial port, and publishes them to stdout, NATS and
// a CSV log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	telegate "github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/config"
)

// Package-level flag variables
var (
	flagConfig  string
	flagMode    string
	flagPort    string
	flagMetrics string
	flagDebug   bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "telegate.toml", "Path to the TOML config file (defaults apply if missing)")
	flag.StringVar(&flagMode, "mode", "", "Override the mode: collect or relay")
	flag.StringVar(&flagPort, "port", "", "Override the SPI device (collect) or serial port (relay)")
	flag.StringVar(&flagMetrics, "metrics", "", "Override the metrics listen address")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

type overrides struct {
	configPath string
	mode       string
	port       string
	metrics    string
	debug      bool
}

func flagOverrides() overrides {
	return overrides{
		configPath: flagConfig,
		mode:       flagMode,
		port:       flagPort,
		metrics:    flagMetrics,
		debug:      flagDebug,
	}
}

// parseConfig loads the config file and applies command-line overrides.
func parseConfig(o overrides) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.mode != "" {
		cfg.Mode = o.mode
	}
	if o.port != "" {
		if cfg.Mode == config.ModeRelay {
			cfg.Serial.Port = o.port
		} else {
			cfg.SPI.Port = o.port
		}
	}
	if o.metrics != "" {
		cfg.Metrics.Listen = o.metrics
	}
	if o.debug {
		cfg.Log.Level = "debug"
		telegate.SetDebugEnabled(true)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig(flagOverrides())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	logger := newLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)

	if cfg.Log.SessionDir != "" {
		path, err := telegate.InitSessionLog(cfg.Log.SessionDir)
		if err != nil {
			logger.Warn("session log disabled", "error", err)
		} else {
			logger.Info("session log", "path", path)
			defer func() {
				if err := telegate.CloseSessionLog(); err != nil {
					logger.Warn("failed to close session log", "error", err)
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, defaultOpeners(), os.Stdout, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		logger.Error("telegate stopped", "error", err)
		return 1
	}
	logger.Info("shut down")
	return 0
}
