// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package events describes the performance events a counter group can count:
// portable named hardware and software events, hardware cache events, and raw
// vendor-specific event codes.
package events

import "golang.org/x/sys/unix"

// A ConflictClass identifies a set of events that the PMU can schedule
// together. Events in different classes must not share a counter group.
type ConflictClass string

const (
	// ClassPortable covers the portable named hardware, software, and cache
	// events, all of which can be grouped together.
	ClassPortable ConflictClass = "portable"

	// ClassRaw covers raw vendor-specific event codes. These are known to be
	// incompatible with the portable cache events on the microarchitectures
	// that define them, so they get a group of their own.
	ClassRaw ConflictClass = "raw"
)

// An Event represents a performance event that perf can count.
type Event interface {
	// String returns the event name, preferably as used by "perf stat -e".
	String() string

	// SetAttrs sets the attributes for this event in the
	// [unix.PerfEventAttr] struct.
	SetAttrs(*unix.PerfEventAttr) error

	// Class returns the conflict class used to partition events into
	// counter groups.
	Class() ConflictClass
}

type eventBasic struct {
	name   string
	typ    uint32
	config uint64
}

var _ Event = eventBasic{}

func (e eventBasic) SetAttrs(a *unix.PerfEventAttr) error {
	a.Type = e.typ
	a.Config = e.config
	return nil
}

func (e eventBasic) String() string { return e.name }

func (e eventBasic) Class() ConflictClass { return ClassPortable }

var (
	// Hardware events
	EventCPUCycles       = eventBasic{"cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES}
	EventInstructions    = eventBasic{"instructions", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS}
	EventCacheReferences = eventBasic{"cache-references", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_REFERENCES}
	EventCacheMisses     = eventBasic{"cache-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES}
	EventBranches        = eventBasic{"branches", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS}
	EventBranchMisses    = eventBasic{"branch-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES}
	EventBusCycles       = eventBasic{"bus-cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BUS_CYCLES}
)

var (
	// Software events
	EventCPUClock        = eventBasic{"cpu-clock", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_CLOCK}
	EventTaskClock       = eventBasic{"task-clock", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_TASK_CLOCK}
	EventPageFaults      = eventBasic{"page-faults", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS}
	EventContextSwitches = eventBasic{"context-switches", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES}
	EventCPUMigrations   = eventBasic{"cpu-migrations", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_MIGRATIONS}
	EventMinorFaults     = eventBasic{"minor-faults", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MIN}
	EventMajorFaults     = eventBasic{"major-faults", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MAJ}
	EventAlignmentFaults = eventBasic{"alignment-faults", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_ALIGNMENT_FAULTS}
	EventEmulationFaults = eventBasic{"emulation-faults", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_EMULATION_FAULTS}
	EventDummy           = eventBasic{"dummy", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_DUMMY}
)
