// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Parse resolves an event name to an [Event]. It accepts the portable
// hardware and software event names used by "perf stat -e" (including
// aliases such as "cpu-cycles" and "faults"), legacy cache event names such
// as "L1-dcache-load-misses", and raw codes of the form "r<hex>".
func Parse(name string) (Event, error) {
	tables := parseTables()

	if ev, ok := tables.named[name]; ok {
		return ev, nil
	}

	if rest, ok := strings.CutPrefix(name, "r"); ok {
		if config, err := strconv.ParseUint(rest, 16, 64); err == nil {
			return Raw(name, config), nil
		}
	}

	if ev, ok := parseCacheName(name, tables); ok {
		return ev, nil
	}

	return nil, fmt.Errorf("unknown event %q", name)
}

// ParseList resolves a comma-separated list of event names.
func ParseList(list string) ([]Event, error) {
	var evs []Event
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ev, err := Parse(name)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

type cacheName struct {
	name  string
	value uint64
}

type tables struct {
	named map[string]Event

	cache  []cacheName
	op     []cacheName
	result []cacheName
}

var parseTables = sync.OnceValue(func() *tables {
	t := &tables{named: make(map[string]Event)}

	add := func(ev Event, aliases ...string) {
		t.named[ev.String()] = ev
		for _, a := range aliases {
			t.named[a] = ev
		}
	}
	// See parse-events.c:event_symbols_hw and event_symbols_sw in the perf
	// tool for the alias sets.
	add(EventCPUCycles, "cpu-cycles")
	add(EventInstructions)
	add(EventCacheReferences)
	add(EventCacheMisses)
	add(EventBranches, "branch-instructions")
	add(EventBranchMisses)
	add(EventBusCycles)
	add(EventCPUClock)
	add(EventTaskClock)
	add(EventPageFaults, "faults")
	add(EventContextSwitches, "cs")
	add(EventCPUMigrations, "migrations")
	add(EventMinorFaults)
	add(EventMajorFaults)
	add(EventAlignmentFaults)
	add(EventEmulationFaults)
	add(EventDummy)

	var m *[]cacheName
	c := func(value uint64, names ...string) {
		for _, name := range names {
			*m = append(*m, cacheName{name, value})
		}
	}
	// Longer names first so "L1-dcache" wins over a bare prefix match.
	cSort := func() {
		sort.Slice(*m, func(i, j int) bool {
			return len((*m)[i].name) > len((*m)[j].name)
		})
	}
	m = &t.cache
	c(uint64(L1D), "L1-dcache", "l1-d", "l1d", "L1-data")
	c(uint64(L1I), "L1-icache", "l1-i", "l1i", "L1-instruction")
	c(uint64(LL), "LLC", "L2")
	c(uint64(DTLB), "dTLB", "d-tlb", "Data-TLB")
	c(uint64(ITLB), "iTLB", "i-tlb", "Instruction-TLB")
	c(uint64(BPU), "branch", "branches", "bpu", "btb", "bpc")
	c(uint64(Node), "node")
	cSort()
	m = &t.op
	c(uint64(Read), "load", "loads", "read")
	c(uint64(Write), "store", "stores", "write")
	c(uint64(Prefetch), "prefetch", "prefetches", "speculative-read", "speculative-load")
	cSort()
	m = &t.result
	c(uint64(Access), "refs", "Reference", "ops", "access")
	c(uint64(Miss), "misses", "miss")
	cSort()

	return t
})

// parseCacheName parses legacy cache event names of the form
// <cache>[-<op>][-<result>], defaulting to read accesses, the same way the
// perf tool's lexer does.
func parseCacheName(name string, t *tables) (Event, bool) {
	find := func(s string, names []cacheName) (uint64, string, bool) {
		for _, n := range names {
			if s == n.name {
				return n.value, "", true
			}
			if strings.HasPrefix(s, n.name) && s[len(n.name)] == '-' {
				return n.value, s[len(n.name)+1:], true
			}
		}
		return 0, "", false
	}

	level, s, ok := find(name, t.cache)
	if !ok {
		return nil, false
	}

	op := uint64(Read)
	result := uint64(Access)
	var haveOp, haveResult bool
	for i := 0; i < 2 && s != ""; i++ {
		if !haveOp {
			if v, rest, ok := find(s, t.op); ok {
				op, s, haveOp = v, rest, true
				continue
			}
		}
		if !haveResult {
			if v, rest, ok := find(s, t.result); ok {
				result, s, haveResult = v, rest, true
				continue
			}
		}
		break
	}
	if s != "" {
		return nil, false
	}

	ev, err := Cache(name, CacheLevel(level), CacheOp(op), CacheResult(result))
	if err != nil {
		return nil, false
	}
	return ev, true
}
