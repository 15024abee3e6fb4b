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
	"fmt"
	"math"
	"strconv"
)

// IntegralEpsilon is the tolerance used to decide that a float carries an
// integral value and can travel as an integer.
const IntegralEpsilon = 1e-9

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	// KindNil is an absent value.
	KindNil Kind = iota
	// KindInt is a signed integer.
	KindInt
	// KindUint is an unsigned integer.
	KindUint
	// KindFloat is a double.
	KindFloat
	// KindBool is a boolean.
	KindBool
	// KindString is a UTF-8 string.
	KindString
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one field value of a Message. The zero Value is nil.
type Value struct {
	s    string
	bits uint64
	kind Kind
}

// Nil returns the absent value.
func Nil() Value { return Value{} }

// Int returns a signed integer value.
func Int(v int64) Value { return Value{kind: KindInt, bits: uint64(v)} }

// Uint returns an unsigned integer value.
func Uint(v uint64) Value { return Value{kind: KindUint, bits: v} }

// Float returns a double value.
func Float(v float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(v)} }

// Bool returns a boolean value.
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// ValueOf converts a Go scalar into a Value. Unrecognized types become Nil.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Nil()
	case Value:
		return x
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Uint(uint64(x))
	case uint8:
		return Uint(uint64(x))
	case uint16:
		return Uint(uint64(x))
	case uint32:
		return Uint(uint64(x))
	case uint64:
		return Uint(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case bool:
		return Bool(x)
	case string:
		return String(x)
	default:
		return Nil()
	}
}

// Kind returns the scalar type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is absent.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Int64 returns the value as a signed integer. Floats are truncated.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindInt, KindUint:
		return int64(v.bits)
	case KindFloat:
		return int64(v.Float64())
	case KindBool:
		return int64(v.bits)
	default:
		return 0
	}
}

// Uint64 returns the value as an unsigned integer.
func (v Value) Uint64() uint64 {
	switch v.kind {
	case KindInt, KindUint, KindBool:
		return v.bits
	case KindFloat:
		return uint64(v.Float64())
	default:
		return 0
	}
}

// Float64 returns the value as a double.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindInt:
		return float64(int64(v.bits))
	case KindUint:
		return float64(v.bits)
	case KindFloat:
		return math.Float64frombits(v.bits)
	default:
		return 0
	}
}

// Bool returns the boolean held by v, false for non-boolean kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.bits != 0 }

// Str returns the string held by v, empty for non-string kinds.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// IsNumeric reports whether v is an integer or a float.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindUint || v.kind == KindFloat
}

// Normalize returns the form v takes on the wire: integral floats become
// integers, and integers become signed when negative, unsigned otherwise.
func (v Value) Normalize() Value {
	switch v.kind {
	case KindInt:
		if n := int64(v.bits); n >= 0 {
			return Uint(uint64(n))
		}
		return v
	case KindFloat:
		f := v.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return v
		}
		whole, frac := math.Modf(f)
		if math.Abs(frac) >= IntegralEpsilon {
			return v
		}
		if whole < 0 {
			if whole < math.MinInt64 {
				return v
			}
			return Int(int64(whole))
		}
		if whole >= math.MaxUint64 {
			return v
		}
		return Uint(uint64(whole))
	default:
		return v
	}
}

// Equal compares two values after normalization, so Float(3) equals Uint(3).
func (v Value) Equal(o Value) bool {
	a, b := v.Normalize(), o.Normalize()
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindString:
		return a.s == b.s
	case KindFloat:
		return a.Float64() == b.Float64()
	default:
		return a.bits == b.bits
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindUint:
		return strconv.FormatUint(v.bits, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindString:
		return strconv.Quote(v.s)
	default:
		return "nil"
	}
}

// GoString implements fmt.GoStringer for test failure output.
func (v Value) GoString() string {
	return fmt.Sprintf("telegate.Value{%s: %s}", v.kind, v.String())
}
