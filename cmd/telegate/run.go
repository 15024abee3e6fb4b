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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/physic"

	telegate "github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/config"
	"github.com/ZaparooProject/go-telegate/detection"
	"github.com/ZaparooProject/go-telegate/gateway"
	"github.com/ZaparooProject/go-telegate/line"
	"github.com/ZaparooProject/go-telegate/metrics"
	"github.com/ZaparooProject/go-telegate/sink"
	"github.com/ZaparooProject/go-telegate/transport/spi"
	"github.com/ZaparooProject/go-telegate/transport/uart"
)

const shutdownTimeout = 2 * time.Second

// openers creates the hardware transports. Tests replace them with mocks.
type openers struct {
	spi    func(cfg config.SPI, capacity int) (*spi.Master, error)
	serial func(cfg config.Serial) (telegate.LineTransport, error)
	detect func(ctx context.Context, cfg config.Serial, opts detection.Options) (string, error)
}

func defaultOpeners() openers {
	return openers{spi: openSPI, serial: openSerial, detect: detectSerial}
}

// detectSerial picks the relay port when serial.port is "auto". Probing
// opens candidates with the configured serial settings.
func detectSerial(ctx context.Context, cfg config.Serial, opts detection.Options) (string, error) {
	d := detection.New(func(path string) (telegate.LineTransport, error) {
		probeCfg := cfg
		probeCfg.Port = path
		return openSerial(probeCfg)
	})
	path, err := d.First(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("serial port detection failed: %w", err)
	}
	return path, nil
}

func openSPI(cfg config.SPI, capacity int) (*spi.Master, error) {
	master, err := spi.New(cfg.Port,
		spi.WithFrequency(physic.Frequency(cfg.FrequencyHz)*physic.Hertz),
		spi.WithCapacity(capacity),
		spi.WithMaxRereads(cfg.MaxRereads))
	if err != nil {
		return nil, fmt.Errorf("failed to create SPI master for %s: %w", cfg.Port, err)
	}
	return master, nil
}

func openSerial(cfg config.Serial) (telegate.LineTransport, error) {
	de, err := uart.ParseDriverEnable(cfg.DriverEnable)
	if err != nil {
		return nil, err
	}
	transport, err := uart.New(cfg.Port, cfg.Baud,
		uart.WithLineCapacity(cfg.LineCapacity),
		uart.WithReadTimeout(cfg.ReadTimeout),
		uart.WithDriverEnable(de, uart.DefaultSettle))
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", cfg.Port, err)
	}
	return transport, nil
}

// outputs is the assembled sink chain plus the loops and resources it owns.
type outputs struct {
	pub     sink.Multi
	loops   []gateway.Loop
	closers []io.Closer
}

func (o *outputs) close(logger *slog.Logger) {
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil {
			logger.Warn("failed to close sink", "error", err)
		}
	}
}

// buildSinks wires the enabled outputs: stdout lines, NATS behind optional
// decimation, and the CSV log.
func buildSinks(cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*outputs, error) {
	out := &outputs{}

	if cfg.Output.Stdout {
		format, err := sink.ParseFormat(cfg.Output.LineFormat)
		if err != nil {
			return nil, err
		}
		out.pub = append(out.pub, sink.NewLineSink(line.NewWriter(stdout), format))
	}

	if cfg.NATS.URL != "" {
		nc, err := sink.DialNATS(cfg.NATS.URL,
			[]sink.NATSOption{sink.WithSubjectPrefix(cfg.NATS.SubjectPrefix)})
		if err != nil {
			out.close(logger)
			return nil, err
		}
		out.closers = append(out.closers, nc)
		var pub sink.Publisher = nc
		if cfg.NATS.Decimate > 1 {
			pub = sink.NewDecimate(nc, cfg.NATS.Decimate)
		}
		out.pub = append(out.pub, pub)
		logger.Info("publishing to NATS", "url", cfg.NATS.URL,
			"prefix", cfg.NATS.SubjectPrefix, "decimate", cfg.NATS.Decimate)
	}

	if cfg.CSV.Dir != "" {
		csvSink, path, err := sink.CreateCSV(cfg.CSV.Dir)
		if err != nil {
			out.close(logger)
			return nil, err
		}
		out.closers = append(out.closers, csvSink)
		out.pub = append(out.pub, csvSink)
		interval := cfg.CSV.FlushInterval
		out.loops = append(out.loops, gateway.LoopFunc(func(ctx context.Context) error {
			return csvSink.Run(ctx, interval)
		}))
		logger.Info("logging to CSV", "path", path)
	}

	if len(out.pub) == 0 {
		return nil, fmt.Errorf("%w: no output enabled", telegate.ErrInvalidParameter)
	}
	return out, nil
}

// publishTo adapts the sink chain to the SPI poll callback. Only fatal sink
// errors stop collection.
func publishTo(ctx context.Context, pub sink.Publisher, logger *slog.Logger) func(telegate.Message) error {
	return func(msg telegate.Message) error {
		err := pub.Publish(ctx, msg)
		if err == nil {
			return nil
		}
		if telegate.IsFatal(err) {
			return err
		}
		logger.Warn("publish failed", "topic", msg.Topic, "error", err)
		return nil
	}
}

func serveMetrics(cfg config.Metrics, g prometheus.Gatherer, logger *slog.Logger) gateway.Loop {
	return gateway.LoopFunc(func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle(cfg.Path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		errc := make(chan error, 1)
		go func() {
			errc <- srv.ListenAndServe()
		}()
		logger.Info("serving metrics", "addr", cfg.Listen, "path", cfg.Path)

		select {
		case err := <-errc:
			return fmt.Errorf("metrics server: %w", err)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server shutdown", "error", err)
			}
			return ctx.Err()
		}
	})
}

// run assembles the pipeline for cfg.Mode and blocks until ctx ends or a
// component fails.
func run(ctx context.Context, cfg *config.Config, open openers, stdout io.Writer, logger *slog.Logger) error {
	gwCfg, err := cfg.GatewayConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	col := metrics.New(reg)

	out, err := buildSinks(cfg, stdout, logger)
	if err != nil {
		return err
	}
	defer out.close(logger)
	loops := out.loops

	switch cfg.Mode {
	case config.ModeCollect:
		master, err := open.spi(cfg.SPI, cfg.FrameCapacity())
		if err != nil {
			return err
		}
		defer func() {
			if err := master.Close(); err != nil {
				logger.Warn("failed to close SPI master", "error", err)
			}
		}()
		if err := col.WatchMaster("spi", master); err != nil {
			return err
		}
		interval := cfg.SPI.PollInterval
		loops = append(loops, gateway.LoopFunc(func(ctx context.Context) error {
			return master.Poll(ctx, interval, publishTo(ctx, out.pub, logger))
		}))
		logger.Info("collecting", "port", cfg.SPI.Port, "frequency_hz", cfg.SPI.FrequencyHz,
			"frame_capacity", master.Capacity())

	case config.ModeRelay:
		serialCfg := cfg.Serial
		if serialCfg.Port == config.AutoPort {
			if serialCfg.Port, err = open.detect(ctx, serialCfg, cfg.DetectOptions()); err != nil {
				return err
			}
			logger.Info("detected serial port", "port", serialCfg.Port)
		}
		port, err := open.serial(serialCfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := port.Close(); err != nil {
				logger.Warn("failed to close serial port", "error", err)
			}
		}()
		q := gwCfg.NewQueue()
		relay := gateway.NewRelay(gwCfg, port, q)
		drain := gateway.NewDrain(gwCfg, q, out.pub)
		if err := errors.Join(
			col.WatchQueue("relay", q),
			col.WatchRelay("serial", relay),
			col.WatchDrain("relay", drain),
		); err != nil {
			return err
		}
		loops = append(loops, relay, drain)
		logger.Info("relaying", "port", serialCfg.Port, "baud", serialCfg.Baud,
			"policy", gwCfg.Policy, "queue_capacity", q.Cap())

	default:
		return fmt.Errorf("%w: mode %q", telegate.ErrInvalidParameter, cfg.Mode)
	}

	if cfg.Metrics.Listen != "" {
		loops = append(loops, serveMetrics(cfg.Metrics, reg, logger))
	}
	return gateway.Run(ctx, loops...)
}
