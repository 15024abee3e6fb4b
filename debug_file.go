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
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Session log state. Guarded by sessionMu; diagnostics read it through
// sessionWriter while already holding diagMu.
var (
	sessionMu   sync.Mutex
	sessionFile *os.File
	sessionPath string
)

func sessionWriter() io.Writer {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionFile == nil {
		return nil
	}
	return sessionFile
}

// InitSessionLog creates a timestamped session log in dir (the current
// directory when dir is empty) and returns its path. Every diagnostic is
// appended to it regardless of debug mode.
func InitSessionLog(dir string) (string, error) {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if sessionFile != nil {
		return sessionPath, nil
	}

	filename := fmt.Sprintf("telegate_%s.log", time.Now().Format("20060102_150405"))
	if dir != "" {
		filename = filepath.Join(dir, filename)
	}

	logFile, err := os.Create(filename) //nolint:gosec // filename is constructed internally
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	sessionFile = logFile
	sessionPath = filename
	writeSessionHeader(logFile)

	return filename, nil
}

// CloseSessionLog writes the footer and closes the session log.
func CloseSessionLog() error {
	diagMu.Lock()
	defer diagMu.Unlock()
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if sessionFile == nil {
		return nil
	}

	_, _ = fmt.Fprintf(sessionFile, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))
	err := sessionFile.Close()
	sessionFile = nil
	sessionPath = ""
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return sessionPath
}

func writeSessionHeader(writer io.Writer) {
	_, _ = fmt.Fprint(writer, "=== Telegate Session Log ===\n")
	_, _ = fmt.Fprintf(writer, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(writer, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(writer, "Platform: %s/%s %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	_, _ = fmt.Fprintf(writer, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(writer, "============================\n\n")
}
