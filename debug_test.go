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
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Diagnostics are process-wide, so these tests do not run in parallel.

func captureDiagnostics(t *testing.T, debug bool) *bytes.Buffer {
	t.Helper()
	orig := DebugEnabled()
	var buf bytes.Buffer
	SetDiagnosticOutput(&buf)
	SetDebugEnabled(debug)
	t.Cleanup(func() {
		SetDiagnosticOutput(os.Stderr)
		SetDebugEnabled(orig)
	})
	return &buf
}

func TestDebugf_ConsoleOnlyWhenEnabled(t *testing.T) {
	buf := captureDiagnostics(t, false)
	Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	SetDebugEnabled(true)
	Debugf("shown %d", 2)
	assert.Equal(t, "DEBUG: shown 2\n", buf.String())
}

func TestDebugln(t *testing.T) {
	buf := captureDiagnostics(t, true)
	Debugln("frame", 3)
	assert.Equal(t, "DEBUG: frame3\n", buf.String())
}

func TestWarnf_AlwaysReachesConsole(t *testing.T) {
	buf := captureDiagnostics(t, false)
	Warnf("dropped %q", "imu")
	assert.Equal(t, "WARN: dropped \"imu\"\n", buf.String())
}

func TestSetDiagnosticOutput_Nil(t *testing.T) {
	captureDiagnostics(t, true)
	SetDiagnosticOutput(nil)
	Warnf("silenced")
}

func cleanupSessionLog(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = CloseSessionLog()
	})
}

func TestInitSessionLog_CreatesFile(t *testing.T) {
	cleanupSessionLog(t)
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, path, GetSessionLogPath())

	matched, err := regexp.MatchString(`^telegate_\d{8}_\d{6}\.log$`, filepath.Base(path))
	require.NoError(t, err)
	assert.True(t, matched, "unexpected log name %s", path)

	again, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, path, again, "second init keeps the open log")
}

func TestSessionLog_RecordsDiagnosticsRegardlessOfDebug(t *testing.T) {
	cleanupSessionLog(t)
	captureDiagnostics(t, false)

	path, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)

	Debugf("queue depth %d", 7)
	Warnf("frame discarded")
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	text := string(content)

	assert.Contains(t, text, "=== Telegate Session Log ===")
	assert.Contains(t, text, "PID:")
	assert.Contains(t, text, "Platform:")
	assert.Contains(t, text, "Command Line:")
	assert.Regexp(t, `\d{2}:\d{2}:\d{2}\.\d{3} DEBUG: queue depth 7`, text)
	assert.Contains(t, text, "WARN: frame discarded")
	assert.Contains(t, text, "=== Session ended ===")
}

func TestCloseSessionLog_NotOpen(t *testing.T) {
	require.NoError(t, CloseSessionLog())
	require.NoError(t, CloseSessionLog())
}

func TestInitSessionLog_BadDir(t *testing.T) {
	cleanupSessionLog(t)
	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
}
