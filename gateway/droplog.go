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
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/ZaparooProject/go-telegate"
)

// dropLog emits drop diagnostics at a bounded rate, folding the suppressed
// count into the next message that gets through.
type dropLog struct {
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

func newDropLog(limiter *rate.Limiter) *dropLog {
	if limiter == nil {
		limiter = DefaultConfig().DropLimiter()
	}
	return &dropLog{limiter: limiter}
}

func (d *dropLog) Warnf(format string, args ...any) {
	if !d.limiter.Allow() {
		d.suppressed.Add(1)
		return
	}
	msg := fmt.Sprintf(format, args...)
	if n := d.suppressed.Swap(0); n > 0 {
		msg = fmt.Sprintf("%s (%d more suppressed)", msg, n)
	}
	telegate.Warnf("%s", msg)
}

// Suppressed returns the number of diagnostics dropped since the last one
// emitted.
func (d *dropLog) Suppressed() uint64 {
	return d.suppressed.Load()
}
