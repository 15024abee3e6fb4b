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
	"encoding/binary"

	"github.com/ZaparooProject/go-telegate"
)

// Wire layout of a frame
const (
	HeaderSize     = 4 // length(2) + checksum(2)
	lengthOffset   = 0
	checksumOffset = 2
)

// Size limits shared by queues and transfer buffers
const (
	// DefaultCapacity is the frame buffer size used by the SPI slave (512 bytes)
	DefaultCapacity = 512
	// MinCapacity leaves room for the header plus the smallest valid body
	MinCapacity = 64
	// MaxCapacity is bounded by the 16-bit length field
	MaxCapacity = HeaderSize + 0xFFFF
)

// Body map keys
const (
	KeyTopic   = "topic"
	KeyPayload = "payload"
)

// MaxBodyLength returns the largest body that fits a buffer of the given capacity.
func MaxBodyLength(capacity int) int {
	if capacity <= HeaderSize {
		return 0
	}
	return min(capacity, MaxCapacity) - HeaderSize
}

// BodyLength returns the length field of the header. buf must hold a header.
func BodyLength(buf []byte) int {
	return int(binary.BigEndian.Uint16(buf[lengthOffset:]))
}

// HeaderChecksum returns the checksum field of the header. buf must hold a header.
func HeaderChecksum(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf[checksumOffset:])
}

// Length returns the full frame size (header + body) announced by buf, or 0
// when buf is shorter than a header.
func Length(buf []byte) int {
	if len(buf) < HeaderSize {
		return 0
	}
	return HeaderSize + BodyLength(buf)
}

// IsSentinel reports whether buf starts with the all-zero header the slave
// sends when it has no frame queued.
func IsSentinel(buf []byte) bool {
	if len(buf) < HeaderSize {
		return false
	}
	return buf[0] == 0 && buf[1] == 0 && buf[2] == 0 && buf[3] == 0
}

// putHeader writes length and checksum in front of body.
func putHeader(buf []byte, bodyLen int, sum uint16) {
	binary.BigEndian.PutUint16(buf[lengthOffset:], uint16(bodyLen))
	binary.BigEndian.PutUint16(buf[checksumOffset:], sum)
}

// Validate checks header bounds and the body checksum without parsing the
// body. It returns the frame length on success.
func Validate(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, decodeError(telegate.ErrTruncatedHeader)
	}
	bodyLen := BodyLength(buf)
	if HeaderSize+bodyLen > len(buf) {
		return 0, decodeError(telegate.ErrLengthOutOfRange)
	}
	body := buf[HeaderSize : HeaderSize+bodyLen]
	if Checksum(body) != HeaderChecksum(buf) {
		return 0, decodeError(telegate.ErrChecksumMismatch)
	}
	return HeaderSize + bodyLen, nil
}
