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

// Package metrics exposes gateway statistics as Prometheus collectors.
//
// Every metric is a CounterFunc or GaugeFunc reading the component's own
// statistics at scrape time, so instrumented code paths (the queue and the
// bus handler in particular) carry no extra work.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZaparooProject/go-telegate/gateway"
	"github.com/ZaparooProject/go-telegate/queue"
	"github.com/ZaparooProject/go-telegate/slave"
	"github.com/ZaparooProject/go-telegate/transport/spi"
)

const namespace = "telegate"

// Collector registers component metrics with a Prometheus registerer.
type Collector struct {
	reg prometheus.Registerer
}

// New creates a collector. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Collector{reg: reg}
}

type metricDef struct {
	read    func() float64
	name    string
	help    string
	counter bool
}

func counter(name, help string, read func() uint64) metricDef {
	return metricDef{name: name, help: help, counter: true, read: func() float64 { return float64(read()) }}
}

func gauge(name, help string, read func() float64) metricDef {
	return metricDef{name: name, help: help, read: read}
}

// register creates one collector per def under subsystem, labelled with the
// component name.
func (c *Collector) register(subsystem, component string, defs ...metricDef) error {
	labels := prometheus.Labels{"component": component}
	var errs []error
	for _, d := range defs {
		var col prometheus.Collector
		if d.counter {
			col = prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        d.name,
				Help:        d.help,
				ConstLabels: labels,
			}, d.read)
		} else {
			col = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        d.name,
				Help:        d.help,
				ConstLabels: labels,
			}, d.read)
		}
		if err := c.reg.Register(col); err != nil {
			errs = append(errs, fmt.Errorf("register %s_%s{component=%q}: %w", subsystem, d.name, component, err))
		}
	}
	return errors.Join(errs...)
}

// WatchQueue exposes depth, capacity and push/pop/drop counters of q.
func (c *Collector) WatchQueue(name string, q *queue.Queue) error {
	return c.register("queue", name,
		counter("pushed_total", "Entries accepted into the queue", func() uint64 { return q.Stats().Pushed }),
		counter("popped_total", "Entries removed by the consumer", func() uint64 { return q.Stats().Popped }),
		counter("rejected_total", "Pushes refused because the queue was full or the entry too large",
			func() uint64 { return q.Stats().Rejected }),
		counter("evicted_total", "Oldest entries dropped to make room", func() uint64 { return q.Stats().Evicted }),
		gauge("depth", "Entries currently queued", func() float64 { return float64(q.Stats().Depth) }),
		gauge("capacity", "Maximum number of entries", func() float64 { return float64(q.Cap()) }),
	)
}

// WatchEngine exposes the slave handler counters.
func (c *Collector) WatchEngine(name string, e *slave.Engine) error {
	return c.register("slave", name,
		counter("transactions_total", "Completed select cycles", func() uint64 { return e.Stats().Transactions }),
		counter("advances_total", "Handoffs that loaded a queued frame", func() uint64 { return e.Stats().Advances }),
		counter("sentinels_total", "Handoffs that found the queue empty",
			func() uint64 { return e.Stats().Sentinels }),
		counter("unknown_commands_total", "Handoffs with an unrecognized command byte",
			func() uint64 { return e.Stats().Unknown }),
	)
}

// WatchMaster exposes the SPI master counters.
func (c *Collector) WatchMaster(name string, m *spi.Master) error {
	return c.register("spi", name,
		counter("frames_total", "Frames read and decoded", func() uint64 { return m.Stats().Frames }),
		counter("empty_polls_total", "Polls answered with the empty sentinel", func() uint64 { return m.Stats().Empty }),
		counter("corrupt_total", "Frame reads that failed validation", func() uint64 { return m.Stats().Corrupt }),
		counter("skipped_total", "Frames abandoned after repeated corrupt reads",
			func() uint64 { return m.Stats().Skipped }),
		counter("bus_errors_total", "Failed bus transactions", func() uint64 { return m.Stats().BusErrors }),
	)
}

// WatchProducer exposes producer outcomes.
func (c *Collector) WatchProducer(name string, p *gateway.Producer) error {
	return c.register("producer", name,
		counter("ticks_total", "Sampling ticks", func() uint64 { return p.Stats().Ticks }),
		counter("produced_total", "Messages encoded and queued", func() uint64 { return p.Stats().Produced }),
		counter("encode_errors_total", "Messages dropped by the encoder",
			func() uint64 { return p.Stats().EncodeErrors }),
		counter("rejected_total", "Messages refused by a full queue", func() uint64 { return p.Stats().Rejected }),
		counter("stalls_total", "Ticks that arrived late", func() uint64 { return p.Stats().Stalls }),
	)
}

// WatchDrain exposes drain outcomes.
func (c *Collector) WatchDrain(name string, d *gateway.Drain) error {
	return c.register("drain", name,
		counter("published_total", "Messages handed to the sink", func() uint64 { return d.Stats().Published }),
		counter("decode_errors_total", "Frames discarded by validation",
			func() uint64 { return d.Stats().DecodeErrors }),
		counter("publish_errors_total", "Sink failures", func() uint64 { return d.Stats().PublishErrors }),
	)
}

// WatchRelay exposes relay outcomes.
func (c *Collector) WatchRelay(name string, r *gateway.Relay) error {
	return c.register("relay", name,
		counter("lines_total", "Lines received", func() uint64 { return r.Stats().Lines }),
		counter("relayed_total", "Lines re-encoded and queued", func() uint64 { return r.Stats().Relayed }),
		counter("parse_errors_total", "Malformed envelope lines", func() uint64 { return r.Stats().ParseErrors }),
		counter("encode_errors_total", "Messages too large for a frame",
			func() uint64 { return r.Stats().EncodeErrors }),
		counter("rejected_total", "Frames refused by a full queue", func() uint64 { return r.Stats().Rejected }),
		counter("read_errors_total", "Failed line reads", func() uint64 { return r.Stats().ReadErrors }),
	)
}
