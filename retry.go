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
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retries of host-side transport I/O (bus master
// transfers, serial port opens). The node-side core never retries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (0 or 1 = single attempt)
	MaxAttempts int
	// InitialBackoff is the first pause between attempts
	InitialBackoff time.Duration
	// MaxBackoff caps the pause
	MaxBackoff time.Duration
	// BackoffMultiplier grows the pause after each failure
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the pause at random
	Jitter float64
}

// DefaultRetryConfig returns the retry policy used for bus transfers.
// The budget stays well under the slave's polling cadence.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx ends. The last error is returned.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	attempts := max(config.MaxAttempts, 1)
	backoff := config.InitialBackoff

	var lastErr error
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn()
		if lastErr == nil || !IsRetryable(lastErr) || attempt == attempts-1 {
			return lastErr
		}

		timer := time.NewTimer(jittered(backoff, config.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return lastErr
}

func jittered(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	//nolint:gosec // jitter does not need a cryptographic source
	return d + time.Duration(rand.Float64()*factor*float64(d))
}
