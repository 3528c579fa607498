// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package benchtest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/perfprobe/perfprobe/events"
	"github.com/perfprobe/perfprobe/perf"
)

var defaultEvents = []events.Event{
	events.EventCPUCycles,
	events.EventInstructions,
	events.EventCacheMisses,
	events.EventCacheReferences,
}

type countersOS struct {
	b  testingB
	bN int

	group *perf.Group
}

// testingB is the *testing.B interface needed by Counters. Used for testing.
type testingB interface {
	ReportMetric(n float64, unit string)
	Logf(format string, args ...any)
	Cleanup(func())
}

var openErrors sync.Map

func openOS(b *testing.B) *Counters {
	return open(b, b.N)
}

func open(b testingB, bN int) *Counters {
	cs := &Counters{countersOS{b: b, bN: bN}}

	// One group, so every reported metric describes the same window.
	g, err := perf.Open(perf.TargetThisGoroutine, defaultEvents...)
	if err != nil {
		// Only report each error once, to avoid flooding the benchmark log.
		msg := fmt.Sprintf("error opening counters: %v", err)
		if _, prev := openErrors.Swap(msg, true); !prev {
			b.Logf("%s", msg)
		}
	} else {
		cs.group = g
	}

	b.Cleanup(cs.close)

	cs.Start()

	return cs
}

func (cs *Counters) startOS() {
	if cs.group != nil {
		_ = cs.group.Start()
	}
}

func (cs *Counters) stopOS() {
	if cs.group != nil {
		_ = cs.group.Stop()
	}
}

func (cs *Counters) resetOS() {
	if cs.group != nil {
		_ = cs.group.Reset()
	}
}

func (cs *Counters) close() {
	if cs.b == nil {
		return
	}

	if cs.group != nil {
		_ = cs.group.Stop()
		gc, err := cs.group.Read()
		if err != nil {
			cs.b.Logf("error reading counters: %v", err)
		} else {
			for i, ev := range cs.group.Events() {
				cs.b.ReportMetric(float64(gc.Values[i])/float64(cs.bN), ev.String()+"/op")
			}
		}
		cs.group.Close()
		cs.group = nil
	}
	cs.b = nil
}
