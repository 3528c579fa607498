// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseNamed(t *testing.T) {
	tests := []struct {
		name string
		want Event
	}{
		{"cycles", EventCPUCycles},
		{"cpu-cycles", EventCPUCycles},
		{"instructions", EventInstructions},
		{"task-clock", EventTaskClock},
		{"faults", EventPageFaults},
		{"cs", EventContextSwitches},
		{"migrations", EventCPUMigrations},
		{"cache-references", EventCacheReferences},
	}
	for _, tt := range tests {
		ev, err := Parse(tt.name)
		require.NoError(t, err, "Parse(%q)", tt.name)
		assert.Equal(t, tt.want, ev, "Parse(%q)", tt.name)
	}
}

func TestParseCache(t *testing.T) {
	tests := []struct {
		name       string
		wantConfig uint64
	}{
		{"L1-dcache-loads", uint64(L1D) | uint64(Read)<<8 | uint64(Access)<<16},
		{"L1-dcache-load-misses", uint64(L1D) | uint64(Read)<<8 | uint64(Miss)<<16},
		{"L1-dcache-prefetches", uint64(L1D) | uint64(Prefetch)<<8 | uint64(Access)<<16},
		{"LLC-loads", uint64(LL) | uint64(Read)<<8 | uint64(Access)<<16},
		// A bare cache name defaults to read accesses.
		{"L1-dcache", uint64(L1D) | uint64(Read)<<8 | uint64(Access)<<16},
	}
	for _, tt := range tests {
		ev, err := Parse(tt.name)
		require.NoError(t, err, "Parse(%q)", tt.name)

		var attr unix.PerfEventAttr
		require.NoError(t, ev.SetAttrs(&attr))
		assert.Equal(t, uint32(unix.PERF_TYPE_HW_CACHE), attr.Type, "Parse(%q)", tt.name)
		assert.Equal(t, tt.wantConfig, attr.Config, "Parse(%q)", tt.name)
		assert.Equal(t, ClassPortable, ev.Class())
	}
}

func TestParseRaw(t *testing.T) {
	ev, err := Parse("rc860")
	require.NoError(t, err)

	var attr unix.PerfEventAttr
	require.NoError(t, ev.SetAttrs(&attr))
	assert.Equal(t, uint32(unix.PERF_TYPE_RAW), attr.Type)
	assert.Equal(t, uint64(0xc860), attr.Config)
	assert.Equal(t, ClassRaw, ev.Class())
	assert.Equal(t, "rc860", ev.String())
}

func TestParseUnknown(t *testing.T) {
	for _, name := range []string{"", "no-such-event", "iTLB-stores", "rzz"} {
		_, err := Parse(name)
		assert.Error(t, err, "Parse(%q)", name)
	}
}

func TestParseList(t *testing.T) {
	evs, err := ParseList("cycles, instructions,task-clock")
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, Event(EventCPUCycles), evs[0])
	assert.Equal(t, Event(EventInstructions), evs[1])
	assert.Equal(t, Event(EventTaskClock), evs[2])

	_, err = ParseList("cycles,bogus")
	assert.Error(t, err)
}

func TestCacheRejectsUndefinedOp(t *testing.T) {
	_, err := Cache("iTLB-stores", ITLB, Write, Access)
	assert.Error(t, err)
}
