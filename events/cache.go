// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CacheLevel selects which cache a [Cache] event counts.
type CacheLevel uint64

const (
	L1D  CacheLevel = unix.PERF_COUNT_HW_CACHE_L1D
	L1I  CacheLevel = unix.PERF_COUNT_HW_CACHE_L1I
	LL   CacheLevel = unix.PERF_COUNT_HW_CACHE_LL
	DTLB CacheLevel = unix.PERF_COUNT_HW_CACHE_DTLB
	ITLB CacheLevel = unix.PERF_COUNT_HW_CACHE_ITLB
	BPU  CacheLevel = unix.PERF_COUNT_HW_CACHE_BPU
	Node CacheLevel = unix.PERF_COUNT_HW_CACHE_NODE
)

// CacheOp selects which cache operation a [Cache] event counts.
type CacheOp uint64

const (
	Read     CacheOp = unix.PERF_COUNT_HW_CACHE_OP_READ
	Write    CacheOp = unix.PERF_COUNT_HW_CACHE_OP_WRITE
	Prefetch CacheOp = unix.PERF_COUNT_HW_CACHE_OP_PREFETCH
)

// CacheResult selects which outcome of a cache operation a [Cache] event
// counts.
type CacheResult uint64

const (
	Access CacheResult = unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS
	Miss   CacheResult = unix.PERF_COUNT_HW_CACHE_RESULT_MISS
)

type eventCache struct {
	name   string
	config uint64
}

var _ Event = eventCache{}

// cacheAllowed maps a cache level to a bitmap of the operations the kernel
// defines for it. See evsel.c:evsel__hw_cache in the perf tool.
var cacheAllowed = map[CacheLevel]uint8{
	L1D:  1<<Read | 1<<Write | 1<<Prefetch,
	L1I:  1<<Read | 1<<Prefetch,
	LL:   1<<Read | 1<<Write | 1<<Prefetch,
	DTLB: 1<<Read | 1<<Write | 1<<Prefetch,
	ITLB: 1 << Read,
	BPU:  1 << Read,
	Node: 1<<Read | 1<<Write | 1<<Prefetch,
}

// Cache returns the event counting the given (cache, operation, result)
// tuple, or an error if the kernel does not define that combination.
func Cache(name string, level CacheLevel, op CacheOp, result CacheResult) (Event, error) {
	if cacheAllowed[level]&(1<<op) == 0 {
		return nil, fmt.Errorf("cache event %s: operation not defined for this cache level", name)
	}
	config := uint64(level) | uint64(op)<<8 | uint64(result)<<16
	return eventCache{name, config}, nil
}

func mustCache(name string, level CacheLevel, op CacheOp, result CacheResult) Event {
	ev, err := Cache(name, level, op, result)
	if err != nil {
		panic(err)
	}
	return ev
}

func (e eventCache) SetAttrs(a *unix.PerfEventAttr) error {
	a.Type = unix.PERF_TYPE_HW_CACHE
	a.Config = e.config
	return nil
}

func (e eventCache) String() string { return e.name }

func (e eventCache) Class() ConflictClass { return ClassPortable }

var (
	// L1 data cache events, named as perf names them.
	EventL1DLoads      = mustCache("L1-dcache-loads", L1D, Read, Access)
	EventL1DLoadMisses = mustCache("L1-dcache-load-misses", L1D, Read, Miss)
	EventL1DPrefetches = mustCache("L1-dcache-prefetches", L1D, Prefetch, Access)
)
