//go:build deadlock

// Package syncutil provides the mutex guarding state shared between producer
// goroutines and the bus handler. This file is compiled with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}
