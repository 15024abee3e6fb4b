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

package line

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-telegate"
)

// ValueField names the single field used when a string payload does not hold
// a JSON object, e.g. {"topic":"hello","payload":"world"}.
const ValueField = "value"

var quoteEscaper = strings.NewReplacer(`"`, `\"`)

// EscapeQuotes escapes every '"' in s as '\"'. It is the only content
// rewriting the line transport performs.
func EscapeQuotes(s string) string {
	if !strings.Contains(s, `"`) {
		return s
	}
	return quoteEscaper.Replace(s)
}

// FormatEnvelope renders {"topic":"<topic>","payload":"<payload>"} with the
// payload's quotes escaped, without the line terminator.
func FormatEnvelope(topic, payload string) string {
	var sb strings.Builder
	sb.Grow(len(topic) + len(payload) + 26)
	sb.WriteString(`{"topic":"`)
	sb.WriteString(EscapeQuotes(topic))
	sb.WriteString(`","payload":"`)
	sb.WriteString(EscapeQuotes(payload))
	sb.WriteString(`"}`)
	return sb.String()
}

// FormatMessage renders m as {"topic":"t","payload":{...}} with the payload
// fields in insertion order. Non-finite floats become null.
func FormatMessage(m telegate.Message) string {
	var b bytes.Buffer
	b.WriteString(`{"topic":`)
	writeJSONString(&b, m.Topic)
	b.WriteString(`,"payload":`)
	writeFields(&b, m.Fields)
	b.WriteByte('}')
	return b.String()
}

// FormatPayload renders only the payload object of m.
func FormatPayload(m telegate.Message) string {
	var b bytes.Buffer
	writeFields(&b, m.Fields)
	return b.String()
}

func writeFields(b *bytes.Buffer, fields []telegate.Field) {
	b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(b, f.Name)
		b.WriteByte(':')
		writeJSONValue(b, f.Value)
	}
	b.WriteByte('}')
}

func writeJSONString(b *bytes.Buffer, s string) {
	// json.Marshal of a string cannot fail
	out, _ := json.Marshal(s)
	b.Write(out)
}

func writeJSONValue(b *bytes.Buffer, v telegate.Value) {
	switch v.Kind() {
	case telegate.KindInt:
		b.WriteString(strconv.FormatInt(v.Int64(), 10))
	case telegate.KindUint:
		b.WriteString(strconv.FormatUint(v.Uint64(), 10))
	case telegate.KindFloat:
		f := v.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			b.WriteString("null")
			return
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case telegate.KindBool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case telegate.KindString:
		writeJSONString(b, v.Str())
	default:
		b.WriteString("null")
	}
}

var errShape = errors.New("unexpected envelope shape")

func malformed(err error) error {
	return fmt.Errorf("%w: %w", telegate.ErrMalformedLine, err)
}

// ParseEnvelope parses one envelope line into a Message. The payload may be
// a JSON object or a string; a string holding an escaped JSON object is
// parsed as that object, any other string becomes a single "value" field.
// Numbers map to Int/Uint when they parse as integers and Float otherwise;
// nested arrays and objects become Nil. A trailing '\r' is ignored.
func ParseEnvelope(text []byte) (telegate.Message, error) {
	text = bytes.TrimRight(text, "\r")

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return telegate.Message{}, malformed(err)
	}

	var (
		m                      telegate.Message
		haveTopic, havePayload bool
	)
	for dec.More() {
		key, err := nextString(dec)
		if err != nil {
			return telegate.Message{}, malformed(err)
		}
		switch key {
		case "topic":
			if m.Topic, err = nextString(dec); err != nil {
				return telegate.Message{}, malformed(err)
			}
			haveTopic = true
		case "payload":
			if m.Fields, err = parsePayload(dec); err != nil {
				return telegate.Message{}, malformed(err)
			}
			havePayload = true
		default:
			if err := skipValue(dec); err != nil {
				return telegate.Message{}, malformed(err)
			}
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return telegate.Message{}, malformed(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return telegate.Message{}, malformed(errShape)
	}
	if !haveTopic || !havePayload {
		return telegate.Message{}, malformed(errShape)
	}
	return m, nil
}

func parsePayload(dec *json.Decoder) ([]telegate.Field, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if t != '{' {
			return nil, errShape
		}
		return parseFields(dec)
	case string:
		return parseStringPayload(t)
	default:
		return nil, errShape
	}
}

func parseStringPayload(s string) ([]telegate.Field, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return []telegate.Field{{Name: ValueField, Value: telegate.String(s)}}, nil
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	fields, err := parseFields(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errShape
	}
	return fields, nil
}

// parseFields reads object members up to and including the closing brace;
// the opening brace has already been consumed.
func parseFields(dec *json.Decoder) ([]telegate.Field, error) {
	var fields []telegate.Field
	for dec.More() {
		name, err := nextString(dec)
		if err != nil {
			return nil, err
		}
		v, err := nextValue(dec)
		if err != nil {
			return nil, err
		}
		fields = append(fields, telegate.Field{Name: name, Value: v})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return fields, nil
}

func nextValue(dec *json.Decoder) (telegate.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return telegate.Nil(), err
	}
	switch t := tok.(type) {
	case json.Number:
		return numberValue(t), nil
	case string:
		return telegate.String(t), nil
	case bool:
		return telegate.Bool(t), nil
	case nil:
		return telegate.Nil(), nil
	case json.Delim:
		return telegate.Nil(), skipNested(dec)
	default:
		return telegate.Nil(), errShape
	}
}

func numberValue(n json.Number) telegate.Value {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return telegate.Int(i)
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return telegate.Uint(u)
	}
	f, err := n.Float64()
	if err != nil {
		return telegate.Nil()
	}
	return telegate.Float(f)
}

// skipNested consumes tokens until the container just opened is closed.
func skipNested(dec *json.Decoder) error {
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func skipValue(dec *json.Decoder) error {
	var raw json.RawMessage
	return dec.Decode(&raw)
}

func nextString(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", errShape
	}
	return s, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errShape
	}
	return nil
}
