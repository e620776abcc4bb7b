// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of triggers into one deferred call to fn.
// Flush and Stop cancel a pending call; the caller runs its replacement
// synchronously. fn runs on a timer goroutine, never under the debouncer lock.
type debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	fn       func()
}

func newDebouncer(interval time.Duration, fn func()) *debouncer {
	return &debouncer{interval: interval, fn: fn}
}

// Trigger arms (or re-arms) the timer. Each call pushes the deadline out by
// the full interval.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Flush cancels a pending timer and reports whether one was armed. The
// caller decides what to run in its place; the deferred fn is not invoked.
func (d *debouncer) Flush() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}

// Stop drops any pending call.
func (d *debouncer) Stop() {
	d.Flush()
}
