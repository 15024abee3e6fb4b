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

package frame

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-telegate"
)

func sampleMessage() telegate.Message {
	m := telegate.NewMessage("imu", 6)
	m.Add("x", 0.125).
		Add("y", -3).
		Add("z", 42.0).
		Add("ok", true).
		Add("unit", "g").
		Add("none", nil)
	return m
}

func TestEncoder_GoldenBody(t *testing.T) {
	t.Parallel()

	m := telegate.NewMessage("t", 1)
	m.Add("v", 1)

	f, err := NewEncoder(DefaultCapacity).Frame(m)
	require.NoError(t, err)

	body := []byte{
		0x82,
		0xA5, 't', 'o', 'p', 'i', 'c', 0xA1, 't',
		0xA7, 'p', 'a', 'y', 'l', 'o', 'a', 'd',
		0x81, 0xA1, 'v', 0x01,
	}
	require.Len(t, f, HeaderSize+len(body))
	assert.Equal(t, body, f[HeaderSize:])
	assert.Equal(t, []byte{0x00, byte(len(body))}, f[:2])
	assert.Equal(t, Checksum(body), HeaderChecksum(f))
}

func TestEncoder_NumberEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value any
		name  string
		want  []byte
	}{
		{name: "integral float as uint", value: 42.0, want: []byte{0x2A}},
		{name: "negative int as fixint", value: -1, want: []byte{0xFF}},
		{name: "uint8 range", value: 200, want: []byte{0xCC, 0xC8}},
		{name: "fraction as double", value: 0.5, want: []byte{0xCB, 0x3F, 0xE0, 0, 0, 0, 0, 0, 0}},
		{name: "bool", value: false, want: []byte{0xC2}},
		{name: "nil", value: nil, want: []byte{0xC0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := telegate.NewMessage("t", 1)
			m.Add("v", tt.value)

			f, err := NewEncoder(DefaultCapacity).Frame(m)
			require.NoError(t, err)
			assert.True(t, bytes.HasSuffix(f, tt.want), "frame % X", f)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	m := sampleMessage()
	buf := make([]byte, DefaultCapacity)
	n, err := Encode(buf, m)
	require.NoError(t, err)
	assert.Equal(t, n, Length(buf))

	got, err := Decode(buf[:n])
	require.NoError(t, err)
	assert.True(t, m.Equal(got), "got %s want %s", got, m)

	z, _ := got.Get("z")
	assert.Equal(t, telegate.KindUint, z.Kind())
	y, _ := got.Get("y")
	assert.Equal(t, telegate.KindInt, y.Kind())
}

func TestDecode_IgnoresTrailingBytes(t *testing.T) {
	t.Parallel()

	buf := make([]byte, DefaultCapacity)
	n, err := Encode(buf, sampleMessage())
	require.NoError(t, err)
	require.Less(t, n, len(buf))

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, "imu", got.Topic)
}

func TestDecode_DetectsBitFlips(t *testing.T) {
	t.Parallel()

	f, err := NewEncoder(DefaultCapacity).Frame(sampleMessage())
	require.NoError(t, err)
	frame := append([]byte(nil), f...)

	// Every single-bit error in the checksum field or the body is caught.
	for i := 2 * 8; i < len(frame)*8; i++ {
		flipped := append([]byte(nil), frame...)
		flipped[i/8] ^= 1 << (i % 8)
		_, err := Decode(flipped)
		require.ErrorIs(t, err, telegate.ErrChecksumMismatch, "bit %d", i)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	validBody := []byte{0x82, 0xA5, 't', 'o', 'p', 'i', 'c', 0xA1, 't', 0xA7, 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0x80}
	withHeader := func(body []byte) []byte {
		buf := make([]byte, HeaderSize+len(body))
		putHeader(buf, len(body), Checksum(body))
		copy(buf[HeaderSize:], body)
		return buf
	}

	tests := []struct {
		want error
		name string
		buf  []byte
	}{
		{name: "empty", buf: nil, want: telegate.ErrTruncatedHeader},
		{name: "short header", buf: []byte{0x00, 0x01, 0x00}, want: telegate.ErrTruncatedHeader},
		{name: "length past buffer", buf: []byte{0x00, 0x10, 0x00, 0x00, 0x01}, want: telegate.ErrLengthOutOfRange},
		{name: "bad checksum", buf: []byte{0x00, 0x01, 0x12, 0x34, 0x80}, want: telegate.ErrChecksumMismatch},
		{name: "body not a map", buf: withHeader([]byte{0x01}), want: telegate.ErrMalformedBody},
		{name: "map with one key", buf: withHeader([]byte{0x81, 0xA1, 'a', 0x01}), want: telegate.ErrMalformedBody},
		{
			name: "duplicate topic key",
			buf:  withHeader([]byte{0x82, 0xA5, 't', 'o', 'p', 'i', 'c', 0xA1, 't', 0xA5, 't', 'o', 'p', 'i', 'c', 0xA1, 't'}),
			want: telegate.ErrMalformedBody,
		},
		{
			name: "nested payload value",
			buf: withHeader([]byte{
				0x82, 0xA5, 't', 'o', 'p', 'i', 'c', 0xA1, 't',
				0xA7, 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0x81, 0xA1, 'a', 0x91, 0x01,
			}),
			want: telegate.ErrMalformedBody,
		},
		{
			name: "nil topic",
			buf:  withHeader([]byte{0x82, 0xA5, 't', 'o', 'p', 'i', 'c', 0xC0, 0xA7, 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0x80}),
			want: telegate.ErrMalformedBody,
		},
		{
			name: "bin topic",
			buf:  withHeader([]byte{0x82, 0xA5, 't', 'o', 'p', 'i', 'c', 0xC4, 0x01, 't', 0xA7, 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0x80}),
			want: telegate.ErrMalformedBody,
		},
		{
			name: "nil field name",
			buf: withHeader([]byte{
				0x82, 0xA5, 't', 'o', 'p', 'i', 'c', 0xA1, 't',
				0xA7, 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0x81, 0xC0, 0x01,
			}),
			want: telegate.ErrMalformedBody,
		},
		{name: "nil body key", buf: withHeader([]byte{0x82, 0xC0, 0xA1, 't', 0xA7, 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0x80}), want: telegate.ErrMalformedBody},
		{name: "trailing body bytes", buf: withHeader(append(append([]byte(nil), validBody...), 0xC0)), want: telegate.ErrMalformedBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.buf)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, telegate.IsFrameError(err))
		})
	}

	m, err := Decode(withHeader(validBody))
	require.NoError(t, err)
	assert.Equal(t, "t", m.Topic)
	assert.Zero(t, m.Len())
}

func TestEncode_OverflowLeavesDestinationUntouched(t *testing.T) {
	t.Parallel()

	m := telegate.NewMessage("big", 1)
	m.Add("blob", strings.Repeat("x", 200))

	dst := bytes.Repeat([]byte{0xAA}, MinCapacity)
	n, err := Encode(dst, m)
	require.ErrorIs(t, err, telegate.ErrEncodeOverflow)
	assert.Zero(t, n)
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, MinCapacity), dst)

	var fe *telegate.FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "big", fe.Topic)
}

func TestEncoder_RecoversAfterOverflow(t *testing.T) {
	t.Parallel()

	enc := NewEncoder(MinCapacity)
	big := telegate.NewMessage("big", 1)
	big.Add("blob", strings.Repeat("x", MinCapacity))

	_, err := enc.Frame(big)
	require.ErrorIs(t, err, telegate.ErrEncodeOverflow)

	small := telegate.NewMessage("s", 1)
	small.Add("v", 1)
	f, err := enc.Frame(small)
	require.NoError(t, err)

	got, err := Decode(f)
	require.NoError(t, err)
	assert.True(t, small.Equal(got))
}

func TestEncoder_ShortDestination(t *testing.T) {
	t.Parallel()

	f, err := NewEncoder(DefaultCapacity).Frame(sampleMessage())
	require.NoError(t, err)

	dst := make([]byte, len(f)-1)
	_, err = NewEncoder(DefaultCapacity).Encode(dst, sampleMessage())
	require.ErrorIs(t, err, telegate.ErrEncodeOverflow)

	_, err = Encode(make([]byte, HeaderSize), sampleMessage())
	require.ErrorIs(t, err, telegate.ErrEncodeOverflow)
}

func TestEncoder_CapacityClamped(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MinCapacity, NewEncoder(1).Capacity())
	assert.Equal(t, MaxCapacity, NewEncoder(math.MaxInt32).Capacity())
	assert.Equal(t, DefaultCapacity, NewEncoder(DefaultCapacity).Capacity())
}

func TestHeaderHelpers(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Length([]byte{0x00}))
	assert.Equal(t, HeaderSize+0x0102, Length([]byte{0x01, 0x02, 0x00, 0x00}))
	assert.True(t, IsSentinel([]byte{0, 0, 0, 0, 9}))
	assert.False(t, IsSentinel([]byte{0, 0, 0}))
	assert.False(t, IsSentinel([]byte{0, 1, 0, 0}))
	assert.Zero(t, MaxBodyLength(HeaderSize))
	assert.Equal(t, DefaultCapacity-HeaderSize, MaxBodyLength(DefaultCapacity))
	assert.Equal(t, 0xFFFF, MaxBodyLength(1<<20))
}

func TestPool(t *testing.T) {
	t.Parallel()

	p := NewPool(DefaultCapacity)
	assert.Equal(t, DefaultCapacity, p.Capacity())

	buf := p.Get(16)
	require.Len(t, buf, 16)
	for i := range buf {
		buf[i] = 0xFF
	}
	p.Put(buf)

	again := p.Get(DefaultCapacity)
	assert.Equal(t, make([]byte, DefaultCapacity), again)

	big := p.Get(DefaultCapacity + 1)
	assert.Len(t, big, DefaultCapacity+1)
	p.Put(big)

	assert.Equal(t, MinCapacity, NewPool(0).Capacity())
}
