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

package telegate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_AddAndGet(t *testing.T) {
	t.Parallel()

	m := NewMessage("env", 2)
	m.Add("temp", 21.5).Add("ok", true)

	assert.Equal(t, 2, m.Len())
	v, ok := m.Get("temp")
	assert.True(t, ok)
	assert.InDelta(t, 21.5, v.Float64(), 0)

	_, ok = m.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, `env{temp=21.5 ok=true}`, m.String())
}

func TestMessage_Reset(t *testing.T) {
	t.Parallel()

	m := NewMessage("a", 4)
	m.Add("x", 1)
	m.Reset("b")

	assert.Equal(t, "b", m.Topic)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 4, cap(m.Fields))
}

func TestMessage_Equal(t *testing.T) {
	t.Parallel()

	a := NewMessage("imu", 2)
	a.Add("x", 1.0).Add("y", -2)
	b := NewMessage("imu", 2)
	b.Add("x", uint8(1)).Add("y", -2.0)
	assert.True(t, a.Equal(b), "values compare after normalization")

	reordered := NewMessage("imu", 2)
	reordered.Add("y", -2).Add("x", 1)
	assert.False(t, a.Equal(reordered))

	other := NewMessage("gps", 2)
	other.Add("x", 1).Add("y", -2)
	assert.False(t, a.Equal(other))
}

func TestMessage_AddTime(t *testing.T) {
	t.Parallel()

	m := NewMessage("t", 2)
	m.AddTime(3*time.Second + 250*time.Microsecond)

	sec, _ := m.Get("sec")
	usec, _ := m.Get("usec")
	assert.Equal(t, uint64(3), sec.Uint64())
	assert.Equal(t, uint64(250), usec.Uint64())
}

func TestMessage_AddMicros(t *testing.T) {
	t.Parallel()

	m := NewMessage("t", 1)
	m.AddMicros(1500 * time.Millisecond)

	usec, _ := m.Get("usec")
	assert.Equal(t, uint64(1_500_000), usec.Uint64())
}

func TestNewClock(t *testing.T) {
	t.Parallel()

	clock := NewClock()
	first := clock()
	time.Sleep(time.Millisecond)
	assert.Greater(t, clock(), first)
}
