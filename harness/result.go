// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package harness

import "github.com/perfprobe/perfprobe/events"

// Raw Zen event codes for L2 traffic caused by L1D misses. These only exist
// on AMD Zen parts and refuse to share a PMU group with the portable cache
// events, hence [events.ClassRaw].
var (
	EventL2AccessesFromDCMisses = events.Raw("l2_cache_accesses_from_dc_misses", 0xc860)
	EventL2HitsFromDCMisses     = events.Raw("l2_cache_hits_from_dc_misses", 0x7064)
)

// DefaultEvents returns the counter set a benchmark run measures: the
// software clock and scheduling events, the core cycle/instruction pair,
// the L1D cache events, and the best-effort raw L2 events.
func DefaultEvents() []events.Event {
	return []events.Event{
		events.EventTaskClock,
		events.EventContextSwitches,
		events.EventCPUMigrations,
		events.EventPageFaults,
		events.EventCPUCycles,
		events.EventInstructions,
		events.EventCacheReferences,
		events.EventL1DLoads,
		events.EventL1DLoadMisses,
		events.EventL1DPrefetches,
		EventL2AccessesFromDCMisses,
		EventL2HitsFromDCMisses,
	}
}

// A Result is the merged view of one benchmark run: the raw totals across
// every counter group plus the caller's display hints. It is produced once
// per run and handed straight to the reporter.
type Result struct {
	// Name labels the run in the report header.
	Name string

	// Counts holds the merged raw totals. Events that were requested but
	// dropped as unsupported are simply absent.
	Counts Totals

	// Items is the caller-supplied number of items the workload processed,
	// used only to display normalized throughput. Zero means unknown.
	Items uint64

	// Bytes is the caller-supplied number of bytes the workload processed,
	// used only to display normalized throughput. Zero means unknown.
	Bytes uint64
}

// Count returns the total for ev, reporting whether it was measured.
func (r *Result) Count(ev events.Event) (uint64, bool) {
	v, ok := r.Counts[ev]
	return v, ok
}

// TaskClockNS returns the task-clock total in nanoseconds, or zero if the
// task clock was not measured.
func (r *Result) TaskClockNS() uint64 {
	return r.Counts[events.EventTaskClock]
}
