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
	"strings"
	"time"
)

// Field is one named value in a Message payload.
type Field struct {
	Name  string
	Value Value
}

// Message is a topic plus an ordered set of fields, produced once per sampling
// tick. Field order is kept as inserted; it only affects wire compactness.
type Message struct {
	Topic  string
	Fields []Field
}

// NewMessage creates an empty message for topic with room for n fields.
func NewMessage(topic string, n int) Message {
	return Message{Topic: topic, Fields: make([]Field, 0, n)}
}

// Add appends a field. Values that are not a Value or Go scalar become Nil.
func (m *Message) Add(name string, v any) *Message {
	m.Fields = append(m.Fields, Field{Name: name, Value: ValueOf(v)})
	return m
}

// Get returns the first field with the given name.
func (m Message) Get(name string) (Value, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Nil(), false
}

// Len returns the number of fields.
func (m Message) Len() int { return len(m.Fields) }

// Reset clears the message for reuse while keeping the field storage.
func (m *Message) Reset(topic string) {
	m.Topic = topic
	m.Fields = m.Fields[:0]
}

// Equal reports whether both messages carry the same topic and the same
// fields in the same order, comparing values after wire normalization.
func (m Message) Equal(o Message) bool {
	if m.Topic != o.Topic || len(m.Fields) != len(o.Fields) {
		return false
	}
	for i := range m.Fields {
		if m.Fields[i].Name != o.Fields[i].Name || !m.Fields[i].Value.Equal(o.Fields[i].Value) {
			return false
		}
	}
	return true
}

// String renders the message for logs.
func (m Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.Topic)
	sb.WriteByte('{')
	for i, f := range m.Fields {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.Name)
		sb.WriteByte('=')
		sb.WriteString(f.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// AddTime stamps the message with "sec" and "usec" fields split from a
// monotonic duration since boot.
func (m *Message) AddTime(sinceBoot time.Duration) *Message {
	us := uint64(sinceBoot / time.Microsecond)
	m.Add("sec", uint32(us/1_000_000))
	m.Add("usec", uint32(us%1_000_000))
	return m
}

// AddMicros stamps the message with a single "usec" field counting
// microseconds since boot.
func (m *Message) AddMicros(sinceBoot time.Duration) *Message {
	m.Add("usec", uint64(sinceBoot/time.Microsecond))
	return m
}

// Clock returns the monotonic time elapsed since some fixed origin.
type Clock func() time.Duration

// NewClock returns a Clock measuring from the moment it was created.
func NewClock() Clock {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}
