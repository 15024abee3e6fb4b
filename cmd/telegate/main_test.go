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

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	periphspi "periph.io/x/conn/v3/spi"

	telegate "github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/config"
	"github.com/ZaparooProject/go-telegate/detection"
	"github.com/ZaparooProject/go-telegate/transport/spi"
)

// syncBuffer is a bytes.Buffer safe for the sink goroutine and the test.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// idleConn is an SPI slave that never has data.
type idleConn struct{}

func (idleConn) String() string       { return "idle" }
func (idleConn) Duplex() conn.Duplex  { return conn.Full }
func (idleConn) Tx(_, r []byte) error { clear(r); return nil }
func (c idleConn) TxPackets(p []periphspi.Packet) error {
	for _, pkt := range p {
		if err := c.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telegate.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := parseConfig(overrides{configPath: filepath.Join(t.TempDir(), "none.toml")})
	require.NoError(t, err)
	assert.Equal(t, config.ModeCollect, cfg.Mode)
	assert.Equal(t, config.Default().SPI.Port, cfg.SPI.Port)
}

func TestParseConfig_Overrides(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "[serial]\nbaud = 9600\n")

	cfg, err := parseConfig(overrides{
		configPath: path,
		mode:       config.ModeRelay,
		port:       "/dev/ttyAMA0",
		metrics:    ":9100",
	})
	require.NoError(t, err)
	assert.Equal(t, config.ModeRelay, cfg.Mode)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
	assert.Equal(t, config.Default().SPI.Port, cfg.SPI.Port)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestParseConfig_PortOverridesSPIInCollectMode(t *testing.T) {
	t.Parallel()
	cfg, err := parseConfig(overrides{port: "/dev/spidev1.0"})
	require.NoError(t, err)
	assert.Equal(t, "/dev/spidev1.0", cfg.SPI.Port)
}

func TestParseConfig_InvalidMode(t *testing.T) {
	t.Parallel()
	_, err := parseConfig(overrides{mode: "bridge"})
	require.ErrorIs(t, err, telegate.ErrInvalidParameter)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(&buf, config.Log{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "topic", "env")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"topic":"env"`)
}

func TestBuildSinks_NoOutput(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Output.Stdout = false

	_, err := buildSinks(cfg, io.Discard, discardLogger())
	require.ErrorIs(t, err, telegate.ErrInvalidParameter)
}

func TestBuildSinks_CSV(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Output.Stdout = false
	cfg.CSV.Dir = t.TempDir()

	out, err := buildSinks(cfg, io.Discard, discardLogger())
	require.NoError(t, err)
	assert.Len(t, out.pub, 1)
	assert.Len(t, out.loops, 1)
	out.close(discardLogger())

	files, err := filepath.Glob(filepath.Join(cfg.CSV.Dir, "*.csv"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRun_RelayToStdout(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Mode = config.ModeRelay
	mock := telegate.NewMockLineTransport(4)
	require.NoError(t, mock.QueueLine(`{"topic":"env","payload":"{\"temp\":21.5}"}`))

	open := openers{
		serial: func(config.Serial) (telegate.LineTransport, error) { return mock, nil },
	}
	var stdout syncBuffer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, open, &stdout, discardLogger())
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), `"temp":21.5`)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, stdout.String(), `{"topic":"env"`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRun_CollectIdleBus(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.SPI.PollInterval = time.Millisecond
	open := openers{
		spi: func(_ config.SPI, capacity int) (*spi.Master, error) {
			return spi.NewWithConn(idleConn{}, spi.WithCapacity(capacity)), nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var stdout syncBuffer
	require.NoError(t, run(ctx, cfg, open, &stdout, discardLogger()))
	assert.Empty(t, stdout.String())
}

func TestRun_OpenFailure(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Mode = config.ModeRelay
	errOpen := errors.New("no such port")
	open := openers{
		serial: func(config.Serial) (telegate.LineTransport, error) { return nil, errOpen },
	}

	err := run(context.Background(), cfg, open, io.Discard, discardLogger())
	require.ErrorIs(t, err, errOpen)
}

func TestRun_AutoDetectsSerialPort(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Mode = config.ModeRelay
	cfg.Serial.Port = config.AutoPort

	var opened string
	open := openers{
		detect: func(_ context.Context, _ config.Serial, opts detection.Options) (string, error) {
			assert.Equal(t, detection.Passive, opts.Mode)
			return "/dev/ttyACM3", nil
		},
		serial: func(c config.Serial) (telegate.LineTransport, error) {
			opened = c.Port
			return telegate.NewMockLineTransport(0), nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, run(ctx, cfg, open, io.Discard, discardLogger()))
	assert.Equal(t, "/dev/ttyACM3", opened)
}

func TestRun_AutoDetectFailure(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Mode = config.ModeRelay
	cfg.Serial.Port = config.AutoPort
	open := openers{
		detect: func(context.Context, config.Serial, detection.Options) (string, error) {
			return "", detection.ErrNoPortsFound
		},
	}

	err := run(context.Background(), cfg, open, io.Discard, discardLogger())
	require.ErrorIs(t, err, detection.ErrNoPortsFound)
}
