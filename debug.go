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
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// debugEnabled gates console output of diagnostics. Diagnostics are emitted
// from sampling loops and transport goroutines concurrently, hence atomic.
var debugEnabled atomic.Bool

var (
	diagMu     sync.Mutex
	diagOutput io.Writer = os.Stderr
)

func init() {
	if os.Getenv("TELEGATE_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

// Debugf prints a debug diagnostic.
// Always written to the session log (if open); printed to the console only
// when debug mode is enabled.
func Debugf(format string, args ...any) {
	emit("DEBUG", fmt.Sprintf(format, args...), false)
}

// Debugln is the Sprint flavour of Debugf.
func Debugln(args ...any) {
	emit("DEBUG", fmt.Sprint(args...), false)
}

// Warnf prints a diagnostic about dropped telemetry or a discarded frame.
// Warnings reach the console even when debug mode is off.
func Warnf(format string, args ...any) {
	emit("WARN", fmt.Sprintf(format, args...), true)
}

func emit(level, message string, always bool) {
	diagMu.Lock()
	defer diagMu.Unlock()

	if w := sessionWriter(); w != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(w, "%s %s: %s\n", timestamp, level, message)
	}

	if (always || debugEnabled.Load()) && diagOutput != nil {
		_, _ = fmt.Fprintf(diagOutput, "%s: %s\n", level, message)
	}
}

// SetDebugEnabled allows programmatic control of debug logging
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether debug output reaches the console.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetDiagnosticOutput redirects console diagnostics. Pass nil to silence them.
func SetDiagnosticOutput(w io.Writer) {
	diagMu.Lock()
	diagOutput = w
	diagMu.Unlock()
}
