//go:build !deadlock

// Package syncutil provides the mutex guarding state shared between producer
// goroutines and the bus handler. Default builds use sync.Mutex; build with
// -tags=deadlock to swap in github.com/sasha-s/go-deadlock and catch lock
// inversions in tests.
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}
