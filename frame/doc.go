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

// Package frame implements the telemetry wire frame: a 4-byte big-endian
// header {length, CRC-16/CCITT-FALSE of the body} followed by a MessagePack
// body {"topic": string, "payload": {field: scalar, ...}}.
//
// Integral numbers travel as integers (unsigned unless negative), other
// numbers as doubles. Doubles above 2^53 may lose precision when they are
// integral; that coercion is accepted.
package frame
