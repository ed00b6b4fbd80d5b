// Package utils holds small helpers used by the solver.
package utils

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timer accumulates wall-clock time over repeated Start/Stop intervals.
type Timer struct {
	total   time.Duration
	started time.Time
	running bool
}

// Start begins an interval; starting a running timer is a no-op.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.started = time.Now()
	t.running = true
}

// Stop ends the current interval; stopping a stopped timer is a no-op.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.total += time.Since(t.started)
	t.running = false
}

// Total returns the accumulated time.
func (t *Timer) Total() time.Duration { return t.total }

// TimerSet is a collection of named timers.
type TimerSet struct {
	timers map[string]*Timer
}

// NewTimerSet returns an empty set.
func NewTimerSet() *TimerSet {
	return &TimerSet{timers: make(map[string]*Timer)}
}

// Start starts the named timer, creating it on first use.
func (ts *TimerSet) Start(name string) {
	t, ok := ts.timers[name]
	if !ok {
		t = &Timer{}
		ts.timers[name] = t
	}
	t.Start()
}

// Stop stops the named timer if it exists.
func (ts *TimerSet) Stop(name string) {
	if t, ok := ts.timers[name]; ok {
		t.Stop()
	}
}

// Total returns the accumulated time of a named timer.
func (ts *TimerSet) Total(name string) time.Duration {
	if t, ok := ts.timers[name]; ok {
		return t.Total()
	}
	return 0
}

// Summary formats all timers, longest first.
func (ts *TimerSet) Summary() string {
	names := make([]string, 0, len(ts.timers))
	for n := range ts.timers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		return ts.timers[names[i]].Total() > ts.timers[names[j]].Total()
	})
	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "%-12s %v\n", n, ts.timers[n].Total())
	}
	return sb.String()
}
