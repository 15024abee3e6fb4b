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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Microsecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryConfig_DefaultRetryConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRetryConfig()

	require.NotNil(t, config)
	assert.Positive(t, config.MaxAttempts)
	assert.Greater(t, config.InitialBackoff, time.Duration(0))
	assert.Greater(t, config.MaxBackoff, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.GreaterOrEqual(t, config.Jitter, 0.0)
	assert.LessOrEqual(t, config.Jitter, 1.0)
}

func TestRetry_SucceedsAfterTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return ErrTransportRead
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), fastRetry(5), func() error {
		calls++
		return ErrTransportClosed
	})

	require.ErrorIs(t, err, ErrTransportClosed)
	assert.Equal(t, 1, calls)
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return ErrTransportTimeout
	})

	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 2, calls)
}

func TestRetry_SingleAttemptForZero(t *testing.T) {
	t.Parallel()

	calls := 0
	_ = Retry(context.Background(), fastRetry(0), func() error {
		calls++
		return ErrTransportRead
	})
	assert.Equal(t, 1, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetry_CancelDuringBackoffKeepsLastError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, BackoffMultiplier: 1}

	errBus := errors.Join(ErrTransportRead, errors.New("bus glitch"))
	err := Retry(ctx, cfg, func() error {
		cancel()
		return errBus
	})

	require.ErrorIs(t, err, ErrTransportRead)
}

func TestJittered(t *testing.T) {
	t.Parallel()

	base := 10 * time.Millisecond
	assert.Equal(t, base, jittered(base, 0))
	assert.Equal(t, time.Duration(0), jittered(0, 0.5))

	for range 100 {
		got := jittered(base, 0.1)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/10)
	}
}
