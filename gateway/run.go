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

package gateway

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

var errNoLoops = errors.New("no loops to run")

// Loop is a long-running gateway component.
type Loop interface {
	Run(ctx context.Context) error
}

// LoopFunc adapts a function to Loop.
type LoopFunc func(ctx context.Context) error

// Run implements Loop.
func (f LoopFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Run starts every loop and waits for all of them. The first failure cancels
// the others and is returned; a shutdown through ctx returns nil.
func Run(ctx context.Context, loops ...Loop) error {
	if len(loops) == 0 {
		return errNoLoops
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range loops {
		g.Go(func() error {
			return l.Run(gctx)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
