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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{
			name: "empty span",
			data: []byte{},
			want: 0xFFFF,
		},
		{
			name: "nil span",
			data: nil,
			want: 0xFFFF,
		},
		{
			name: "check string",
			data: []byte("123456789"),
			want: 0x29B1,
		},
		{
			name: "single letter",
			data: []byte("A"),
			want: 0xB915,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Checksum(tt.data))
		})
	}
}

func TestChecksum_DetectsSingleBitFlips(t *testing.T) {
	t.Parallel()

	data := []byte(`{"topic":"imu","payload":{"x":1}}`)
	want := Checksum(data)

	for i := range len(data) * 8 {
		flipped := append([]byte(nil), data...)
		flipped[i/8] ^= 1 << (i % 8)
		assert.NotEqual(t, want, Checksum(flipped), "bit %d", i)
	}
}
