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
	"errors"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/ZaparooProject/go-telegate"
)

// errScratchFull is returned by fixedWriter once the body outgrows the frame.
var errScratchFull = errors.New("frame scratch full")

// fixedWriter is an io.Writer/io.ByteWriter over a fixed slice. It never
// grows; a write that does not fit fails without copying anything.
type fixedWriter struct {
	buf []byte
	n   int
}

func (w *fixedWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > len(w.buf) {
		return 0, errScratchFull
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}

func (w *fixedWriter) WriteByte(c byte) error {
	if w.n >= len(w.buf) {
		return errScratchFull
	}
	w.buf[w.n] = c
	w.n++
	return nil
}

// Encoder turns Messages into frames using a private scratch buffer sized to
// the frame capacity, so a failed encode never leaves a partial frame behind.
// An Encoder is not safe for concurrent use; give each producer its own.
type Encoder struct {
	enc     *msgpack.Encoder
	scratch []byte
	w       fixedWriter
}

// NewEncoder creates an encoder for frames of at most capacity bytes
// (header included). capacity is clamped to [MinCapacity, MaxCapacity].
func NewEncoder(capacity int) *Encoder {
	capacity = min(max(capacity, MinCapacity), MaxCapacity)
	e := &Encoder{scratch: make([]byte, capacity)}
	e.w.buf = e.scratch[HeaderSize:]
	e.enc = msgpack.NewEncoder(&e.w)
	return e
}

// Capacity returns the frame capacity in bytes, header included.
func (e *Encoder) Capacity() int {
	return len(e.scratch)
}

// Frame encodes m and returns the complete frame. The returned slice aliases
// the encoder's scratch and is valid until the next call.
func (e *Encoder) Frame(m telegate.Message) ([]byte, error) {
	e.w.n = 0
	if err := e.writeBody(m); err != nil {
		if errors.Is(err, errScratchFull) {
			return nil, &telegate.FrameError{Op: "encode", Topic: m.Topic, Err: telegate.ErrEncodeOverflow}
		}
		return nil, &telegate.FrameError{Op: "encode", Topic: m.Topic, Err: err}
	}

	bodyLen := e.w.n
	putHeader(e.scratch, bodyLen, Checksum(e.scratch[HeaderSize:HeaderSize+bodyLen]))
	return e.scratch[:HeaderSize+bodyLen], nil
}

// Encode encodes m into dst and returns the frame length. On failure dst is
// left untouched. A dst shorter than the frame is an overflow.
func (e *Encoder) Encode(dst []byte, m telegate.Message) (int, error) {
	f, err := e.Frame(m)
	if err != nil {
		return 0, err
	}
	if len(f) > len(dst) {
		return 0, &telegate.FrameError{Op: "encode", Topic: m.Topic, Err: telegate.ErrEncodeOverflow}
	}
	return copy(dst, f), nil
}

func (e *Encoder) writeBody(m telegate.Message) error {
	if err := e.enc.EncodeMapLen(2); err != nil {
		return err
	}
	if err := e.enc.EncodeString(KeyTopic); err != nil {
		return err
	}
	if err := e.enc.EncodeString(m.Topic); err != nil {
		return err
	}
	if err := e.enc.EncodeString(KeyPayload); err != nil {
		return err
	}
	if err := e.enc.EncodeMapLen(len(m.Fields)); err != nil {
		return err
	}
	for _, f := range m.Fields {
		if err := e.enc.EncodeString(f.Name); err != nil {
			return err
		}
		if err := e.writeValue(f.Value.Normalize()); err != nil {
			return err
		}
	}
	return nil
}

// writeValue expects a normalized value: integral numbers already carry an
// integer kind, signed only when negative.
func (e *Encoder) writeValue(v telegate.Value) error {
	switch v.Kind() {
	case telegate.KindInt:
		return e.enc.EncodeInt(v.Int64())
	case telegate.KindUint:
		return e.enc.EncodeUint(v.Uint64())
	case telegate.KindFloat:
		return e.enc.EncodeFloat64(v.Float64())
	case telegate.KindBool:
		return e.enc.EncodeBool(v.Bool())
	case telegate.KindString:
		return e.enc.EncodeString(v.Str())
	default:
		return e.enc.EncodeNil()
	}
}

// Encode encodes m into dst, using len(dst) as the frame capacity.
// Producers on a hot path should keep an Encoder instead.
func Encode(dst []byte, m telegate.Message) (int, error) {
	if len(dst) <= HeaderSize {
		return 0, &telegate.FrameError{Op: "encode", Topic: m.Topic, Err: telegate.ErrEncodeOverflow}
	}
	return NewEncoder(max(len(dst), MinCapacity)).Encode(dst, m)
}

// Decode validates the header and checksum of buf and parses the body.
// Bytes past the announced length are ignored, so a full transfer buffer can
// be passed as is.
func Decode(buf []byte) (telegate.Message, error) {
	n, err := Validate(buf)
	if err != nil {
		return telegate.Message{}, err
	}

	m, err := decodeBody(buf[HeaderSize:n])
	if err != nil {
		return telegate.Message{}, decodeError(telegate.ErrMalformedBody)
	}
	return m, nil
}

func decodeError(err error) error {
	return &telegate.FrameError{Op: "decode", Err: err}
}

var errShape = errors.New("unexpected body shape")

func decodeBody(body []byte) (telegate.Message, error) {
	var m telegate.Message

	r := bytes.NewReader(body)
	dec := msgpack.NewDecoder(r)

	n, err := dec.DecodeMapLen()
	if err != nil {
		return m, err
	}
	if n != 2 {
		return m, errShape
	}

	var haveTopic, havePayload bool
	for range n {
		key, err := decodeString(dec)
		if err != nil {
			return m, err
		}
		switch {
		case key == KeyTopic && !haveTopic:
			if m.Topic, err = decodeString(dec); err != nil {
				return m, err
			}
			haveTopic = true
		case key == KeyPayload && !havePayload:
			if m.Fields, err = decodePayload(dec); err != nil {
				return m, err
			}
			havePayload = true
		default:
			return m, errShape
		}
	}

	if r.Len() != 0 {
		return m, errShape
	}
	return m, nil
}

// decodeString reads a str-family value. DecodeString alone would also take
// nil and bin.
func decodeString(dec *msgpack.Decoder) (string, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return "", err
	}
	if !msgpcode.IsString(c) {
		return "", errShape
	}
	return dec.DecodeString()
}

func decodePayload(dec *msgpack.Decoder) ([]telegate.Field, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errShape
	}

	fields := make([]telegate.Field, 0, n)
	for range n {
		name, err := decodeString(dec)
		if err != nil {
			return nil, err
		}
		raw, err := dec.DecodeInterface()
		if err != nil {
			return nil, err
		}
		v, ok := scalarValue(raw)
		if !ok {
			return nil, errShape
		}
		fields = append(fields, telegate.Field{Name: name, Value: v})
	}
	return fields, nil
}

// scalarValue maps a decoded msgpack scalar to a Value. Non-negative integers
// come back unsigned whatever their wire width.
func scalarValue(raw any) (telegate.Value, bool) {
	switch x := raw.(type) {
	case nil:
		return telegate.Nil(), true
	case bool:
		return telegate.Bool(x), true
	case int8:
		return signed(int64(x)), true
	case int16:
		return signed(int64(x)), true
	case int32:
		return signed(int64(x)), true
	case int64:
		return signed(x), true
	case uint8:
		return telegate.Uint(uint64(x)), true
	case uint16:
		return telegate.Uint(uint64(x)), true
	case uint32:
		return telegate.Uint(uint64(x)), true
	case uint64:
		return telegate.Uint(x), true
	case float32:
		return telegate.Float(float64(x)), true
	case float64:
		return telegate.Float(x), true
	case string:
		return telegate.String(x), true
	default:
		return telegate.Nil(), false
	}
}

func signed(n int64) telegate.Value {
	if n >= 0 {
		return telegate.Uint(uint64(n))
	}
	return telegate.Int(n)
}
