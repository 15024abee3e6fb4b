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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/line"
)

// DefaultSubjectPrefix roots every telemetry subject.
const DefaultSubjectPrefix = "telemetry"

// natsConn is the part of *nats.Conn the sink uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
	ConnectedUrl() string
}

// NATS publishes each message as its JSON envelope on a subject derived from
// the topic.
type NATS struct {
	conn   natsConn
	prefix string
}

// NATSOption configures a NATS sink.
type NATSOption func(*NATS)

// WithSubjectPrefix replaces DefaultSubjectPrefix. An empty prefix publishes
// on the bare topic.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(n *NATS) {
		n.prefix = strings.Trim(prefix, ".")
	}
}

// DialNATS connects to url and returns a sink on that connection.
func DialNATS(url string, opts []NATSOption, natsOpts ...nats.Option) (*NATS, error) {
	natsOpts = append([]nats.Option{
		nats.Name("telegate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				telegate.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			telegate.Debugf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}, natsOpts...)

	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return NewNATS(nc, opts...), nil
}

// NewNATS wraps an established connection.
func NewNATS(nc *nats.Conn, opts ...NATSOption) *NATS {
	return newNATS(nc, opts)
}

func newNATS(conn natsConn, opts []NATSOption) *NATS {
	n := &NATS{conn: conn, prefix: DefaultSubjectPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Subject maps a topic to a NATS subject: '/' separates tokens, empty tokens
// are dropped and wildcard or whitespace characters become '_'.
func Subject(prefix, topic string) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, tok := range strings.Split(topic, "/") {
		if tok == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		for _, r := range tok {
			switch r {
			case '.', '*', '>', ' ', '\t', '\r', '\n':
				sb.WriteByte('_')
			default:
				sb.WriteRune(r)
			}
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}

// Publish implements Publisher.
func (n *NATS) Publish(_ context.Context, msg telegate.Message) error {
	subject := Subject(n.prefix, msg.Topic)
	err := n.conn.Publish(subject, []byte(line.FormatMessage(msg)))
	if err == nil {
		return nil
	}
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrConnectionDraining) {
		return fmt.Errorf("publish %s: %w: %w", subject, telegate.ErrTransportClosed, err)
	}
	return telegate.NewTransportError("publish", n.conn.ConnectedUrl(),
		fmt.Errorf("%w: %w", telegate.ErrTransportWrite, err))
}

// Flush waits until the server has processed everything published so far.
func (n *NATS) Flush(timeout time.Duration) error {
	if err := n.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("NATS flush failed: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("NATS drain failed: %w", err)
	}
	return nil
}
