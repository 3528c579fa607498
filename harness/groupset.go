// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package harness partitions performance events into compatible counter
// groups, runs a workload under them, and merges the raw readings.
package harness

import (
	"errors"
	"fmt"

	"github.com/perfprobe/perfprobe/events"
	"github.com/perfprobe/perfprobe/perf"
)

// maxGroupEvents caps how many counters one group may hold. The PMU cannot
// schedule arbitrarily many counters at once; past this the kernel starts
// multiplexing the group and a single read no longer describes one window.
const maxGroupEvents = 16

// Totals maps each requested event to its accumulated count, merged across
// every group in a set.
type Totals map[events.Event]uint64

// A GroupSet owns the counter groups needed to cover a set of requested
// events when they cannot all coexist in one group.
type GroupSet struct {
	groups []*perf.Group
}

// Partition splits evs into the minimum number of groups such that every
// group holds events of a single conflict class and no group exceeds the
// PMU's scheduling capacity. Event order is preserved within and across
// groups.
func Partition(evs []events.Event) [][]events.Event {
	var parts [][]events.Event
	current := make(map[events.ConflictClass]int)
	for _, ev := range evs {
		i, ok := current[ev.Class()]
		if !ok || len(parts[i]) == maxGroupEvents {
			parts = append(parts, nil)
			i = len(parts) - 1
			current[ev.Class()] = i
		}
		parts[i] = append(parts[i], ev)
	}
	return parts
}

// Open opens counters for every requested event on the calling goroutine,
// partitioned into compatible groups. On any failure all counters opened so
// far are released before the error is returned.
//
// The returned set holds live OS resources; callers must call
// [GroupSet.Close].
func Open(evs ...events.Event) (*GroupSet, error) {
	if len(evs) == 0 {
		return nil, errors.New("harness: no events requested")
	}
	seen := make(map[events.Event]bool, len(evs))
	for _, ev := range evs {
		if seen[ev] {
			return nil, fmt.Errorf("harness: duplicate event %s", ev)
		}
		seen[ev] = true
	}

	s := &GroupSet{}
	success := false
	defer func() {
		if !success {
			s.Close()
		}
	}()

	for _, part := range Partition(evs) {
		g, err := perf.Open(perf.TargetThisGoroutine, part...)
		if err != nil {
			return nil, err
		}
		s.groups = append(s.groups, g)
	}

	success = true
	return s, nil
}

// Events returns the events covered by the set, in group order.
func (s *GroupSet) Events() []events.Event {
	var evs []events.Event
	for _, g := range s.groups {
		evs = append(evs, g.Events()...)
	}
	return evs
}

// Groups returns how many counter groups the set needed.
func (s *GroupSet) Groups() int {
	return len(s.groups)
}

// Close releases every counter in the set. Close is idempotent.
func (s *GroupSet) Close() {
	for _, g := range s.groups {
		g.Close()
	}
	s.groups = nil
}

// Run invokes workload once per group, bracketed by that group's start/stop
// pair, and merges the readings into one mapping keyed by event identity.
//
// Because each group measures its own invocation, the workload must be
// deterministic and side-effect-free across repeated calls for the merged
// totals to describe comparable windows.
func (s *GroupSet) Run(workload func()) (Totals, error) {
	totals := make(Totals)
	for _, g := range s.groups {
		gc, err := runGroup(g, workload)
		if err != nil {
			return nil, err
		}
		for i, ev := range g.Events() {
			totals[ev] = gc.Values[i]
		}
	}
	return totals, nil
}

// runGroup brackets exactly one workload invocation with the group's
// start/stop pair and reads the frozen values. The group is stopped on
// every exit path, including a panicking workload.
func runGroup(g *perf.Group, workload func()) (perf.GroupCount, error) {
	if err := g.Reset(); err != nil {
		return perf.GroupCount{}, err
	}
	if err := g.Start(); err != nil {
		return perf.GroupCount{}, err
	}
	stopped := false
	defer func() {
		if !stopped {
			g.Stop()
		}
	}()

	workload()

	if err := g.Stop(); err != nil {
		return perf.GroupCount{}, err
	}
	stopped = true
	return g.Read()
}
