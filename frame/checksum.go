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

import "github.com/snksoft/crc"

// crc16Params is CRC-16/CCITT-FALSE: poly 0x1021, init 0xFFFF, no reflection,
// no final xor. Check value for "123456789" is 0x29B1.
var crc16Params = &crc.Parameters{
	Width:      16,
	Polynomial: 0x1021,
	Init:       0xFFFF,
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0x0000,
}

// crc16Table is built once; lookups afterwards are allocation-free.
var crc16Table = crc.NewTable(crc16Params)

// Checksum computes the CRC-16/CCITT-FALSE of data.
// The empty span checksums to 0xFFFF.
func Checksum(data []byte) uint16 {
	return uint16(crc16Table.CalculateCRC(data))
}
