// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type eventRaw struct {
	name   string
	config uint64
}

var _ Event = eventRaw{}

// Raw returns the event for a raw vendor-specific event code, as accepted by
// "perf stat -e r<hex>". Raw codes are only meaningful on the
// microarchitecture that defines them, and they may refuse to share a PMU
// group with the portable cache events, so they carry [ClassRaw].
func Raw(name string, config uint64) Event {
	if name == "" {
		name = fmt.Sprintf("r%x", config)
	}
	return eventRaw{name, config}
}

func (e eventRaw) SetAttrs(a *unix.PerfEventAttr) error {
	a.Type = unix.PERF_TYPE_RAW
	a.Config = e.config
	return nil
}

func (e eventRaw) String() string { return e.name }

func (e eventRaw) Class() ConflictClass { return ClassRaw }
