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

// Package sink delivers decoded telemetry to its consumers: a NATS subject
// tree, a line transport, a CSV log, or any combination of them.
package sink

import (
	"context"
	"errors"

	"github.com/ZaparooProject/go-telegate"
)

// Publisher accepts decoded messages.
type Publisher interface {
	Publish(ctx context.Context, msg telegate.Message) error
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, msg telegate.Message) error

// Publish implements Publisher.
func (f Func) Publish(ctx context.Context, msg telegate.Message) error {
	return f(ctx, msg)
}

// Multi publishes every message to each of its publishers in order. All
// publishers are tried; their errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, msg telegate.Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
