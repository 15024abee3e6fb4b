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

package spi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"

	"github.com/ZaparooProject/go-telegate"
	"github.com/ZaparooProject/go-telegate/frame"
	"github.com/ZaparooProject/go-telegate/internal/bussim"
	"github.com/ZaparooProject/go-telegate/queue"
	"github.com/ZaparooProject/go-telegate/slave"
)

const testCapacity = 64

// loopbackConn implements spi.Conn by running every Tx as one transaction
// against a slave engine on a simulated bus.
type loopbackConn struct {
	master  *bussim.Master
	txErr   error
	corrupt int // number of frame reads to damage
	txCount int
}

func (c *loopbackConn) Tx(w, r []byte) error {
	c.txCount++
	if c.txErr != nil {
		return c.txErr
	}
	n := max(len(w), len(r))
	in := c.master.Exchange(w, n, make([]byte, n))
	if len(r) > lengthPrefix && c.corrupt > 0 {
		c.corrupt--
		in[n-1] ^= 0x01
	}
	copy(r, in)
	return nil
}

func (*loopbackConn) Duplex() conn.Duplex {
	return conn.Full
}

func (*loopbackConn) String() string {
	return "loopback://spi"
}

func (c *loopbackConn) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := c.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

type fixture struct {
	engine *slave.Engine
	conn   *loopbackConn
	master *Master
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	q := queue.New(8, testCapacity)
	bus := bussim.NewBus()
	e := slave.New(bus, q)
	e.Init()

	lc := &loopbackConn{master: bussim.NewMaster(bus, e)}
	opts = append([]Option{
		WithCapacity(testCapacity),
		WithRetryConfig(&telegate.RetryConfig{MaxAttempts: 1}),
	}, opts...)
	return &fixture{engine: e, conn: lc, master: NewWithConn(lc, opts...)}
}

func (f *fixture) push(t *testing.T, topic string, n int) {
	t.Helper()
	m := telegate.NewMessage(topic, 1)
	m.Add("n", n)
	buf, err := frame.NewEncoder(testCapacity).Frame(m)
	require.NoError(t, err)
	require.True(t, f.engine.Push(buf))
}

func TestMaster_EmptySlaveReturnsNoData(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.master.Next(context.Background())
	require.ErrorIs(t, err, telegate.ErrNoData)

	assert.Equal(t, uint64(1), f.master.Stats().Empty)
	assert.Equal(t, uint64(1), f.engine.Stats().Sentinels)
}

func TestMaster_ReadsFramesInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.push(t, "imu", 1)
	f.push(t, "gps", 2)

	ctx := context.Background()

	// tx starts as the zero buffer; the first poll only advances.
	_, err := f.master.Next(ctx)
	require.ErrorIs(t, err, telegate.ErrNoData)

	msg, err := f.master.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "imu", msg.Topic)

	msg, err = f.master.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gps", msg.Topic)
	v, ok := msg.Get("n")
	require.True(t, ok)
	assert.Equal(t, uint64(2), v.Uint64())

	_, err = f.master.Next(ctx)
	require.ErrorIs(t, err, telegate.ErrNoData)

	stats := f.master.Stats()
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Equal(t, uint64(2), stats.Empty)
}

func TestMaster_CorruptFrameIsReread(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.push(t, "env", 5)
	ctx := context.Background()
	_, err := f.master.Next(ctx)
	require.ErrorIs(t, err, telegate.ErrNoData)

	f.conn.corrupt = 1
	_, err = f.master.Next(ctx)
	require.ErrorIs(t, err, telegate.ErrChecksumMismatch)
	assert.True(t, telegate.IsFrameError(err))

	msg, err := f.master.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env", msg.Topic)
	assert.Equal(t, uint64(1), f.master.Stats().Corrupt)
	assert.Equal(t, uint64(0), f.master.Stats().Skipped)
}

func TestMaster_SkipsAfterMaxRereads(t *testing.T) {
	t.Parallel()
	f := newFixture(t, WithMaxRereads(2))
	f.push(t, "bad", 1)
	f.push(t, "good", 2)
	ctx := context.Background()
	_, err := f.master.Next(ctx)
	require.ErrorIs(t, err, telegate.ErrNoData)

	f.conn.corrupt = 100
	for range 3 {
		_, err = f.master.Next(ctx)
		require.ErrorIs(t, err, telegate.ErrChecksumMismatch)
	}
	assert.Equal(t, uint64(1), f.master.Stats().Skipped)

	f.conn.corrupt = 0
	msg, err := f.master.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "good", msg.Topic)
}

func TestMaster_BusErrorIsTransportError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.conn.txErr = errors.New("spi: ioctl failed")

	_, err := f.master.Next(context.Background())
	require.Error(t, err)

	var te *telegate.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read length", te.Op)
	assert.Equal(t, "loopback://spi", te.Port)
	require.ErrorIs(t, err, telegate.ErrTransportRead)
	assert.Equal(t, uint64(1), f.master.Stats().BusErrors)
}

func TestMaster_RetriesTransientBusErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, WithRetryConfig(&telegate.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Microsecond,
	}))
	f.conn.txErr = errors.New("spi: busy")

	_, err := f.master.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, f.conn.txCount)
}

func TestMaster_ClosedReturnsError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.master.Close())

	_, err := f.master.Next(context.Background())
	require.ErrorIs(t, err, telegate.ErrTransportClosed)
	assert.Equal(t, telegate.TransportSPI, f.master.Type())
}

func TestMaster_PollDeliversUntilCancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for i := range 3 {
		f.push(t, "poll", i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []telegate.Message
	err := f.master.Poll(ctx, time.Millisecond, func(m telegate.Message) error {
		got = append(got, m)
		if len(got) == 3 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 3)
	for i, m := range got {
		v, ok := m.Get("n")
		require.True(t, ok)
		assert.Equal(t, uint64(i), v.Uint64())
	}
}

func TestMaster_PollStopsOnCallbackError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.push(t, "x", 1)
	stop := errors.New("stop")

	err := f.master.Poll(context.Background(), time.Millisecond, func(telegate.Message) error {
		return stop
	})
	require.ErrorIs(t, err, stop)
}

func TestMaster_PollStopsOnFatalError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.conn.txErr = telegate.ErrTransportClosed

	err := f.master.Poll(context.Background(), time.Millisecond, func(telegate.Message) error {
		return nil
	})
	require.ErrorIs(t, err, telegate.ErrTransportClosed)
}

func TestWithCapacity_Clamps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   int
		want int
	}{
		{name: "below minimum", in: 8, want: frame.MinCapacity},
		{name: "in range", in: 512, want: 512},
		{name: "above maximum", in: 1 << 20, want: frame.MaxCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewWithConn(&loopbackConn{}, WithCapacity(tt.in))
			assert.Equal(t, tt.want, m.Capacity())
		})
	}
}
