// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package perf opens groups of Linux performance counters via
// perf_event_open and reads them atomically.
package perf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/perfprobe/perfprobe/events"
)

// Errors reported when a counter cannot be opened. Open wraps the underlying
// OS error with one of these, so callers can classify failures with
// [errors.Is].
var (
	// ErrUnsupported means the hardware/kernel combination does not
	// implement the requested event. Common for cache-level events in
	// virtualized or otherwise restricted environments.
	ErrUnsupported = errors.New("event not supported")

	// ErrNotPermitted means the calling process lacks the privilege to
	// create performance-monitoring resources.
	ErrNotPermitted = errors.New("opening perf events not permitted")
)

// Target specifies what goroutine, thread, or CPU a [Group] should monitor.
type Target interface {
	pidCPU() (pid, cpu int)
	open()
	close()
}

type targetThisGoroutine struct{}

func (targetThisGoroutine) pidCPU() (pid, cpu int) { return 0, -1 }
func (targetThisGoroutine) open()                  { runtime.LockOSThread() }
func (targetThisGoroutine) close()                 { runtime.UnlockOSThread() }

var (
	// TargetThisGoroutine monitors the calling goroutine. This will call
	// [runtime.LockOSThread] on Open and [runtime.UnlockOSThread] on Close.
	TargetThisGoroutine = targetThisGoroutine{}
)

// A Group is an ordered set of counters that the kernel schedules onto the
// PMU together: one start/stop pair and one point-in-time read cover every
// counter in the group, so all values describe exactly the same window.
type Group struct {
	target Target
	events []events.Event

	// f[0] is the group leader; the rest are members bound to it. The
	// file handles are owned exclusively by this Group.
	f []*os.File

	running bool
	readBuf []byte
}

// Open returns a new [Group] counting the given events on the given
// [Target]. The events are opened in order under a single group leader, so
// they are enabled, disabled, and read atomically. Callers must call
// [Group.Close] when done.
//
// If any event fails to open, every counter already opened for this group is
// released before the error is returned. The group is initially not
// counting; call [Group.Start].
func Open(target Target, evs ...events.Event) (*Group, error) {
	if len(evs) == 0 {
		return nil, errors.New("perf: empty counter group")
	}

	pid, cpu := target.pidCPU()

	g := &Group{
		target: target,
		events: evs,
		// nr, time_enabled, time_running, then one value per event.
		readBuf: make([]byte, 3*8+len(evs)*8),
	}

	success := false
	target.open()
	defer func() {
		if !success {
			target.close()
		}
	}()

	// Open the group leader. Only the leader carries the group read format
	// and the disabled bit: members start enabled but do not count until
	// the leader is scheduled.
	attr := unix.PerfEventAttr{}
	attr.Size = uint32(unsafe.Sizeof(attr))
	if err := evs[0].SetAttrs(&attr); err != nil {
		return nil, err
	}
	attr.Read_format = unix.PERF_FORMAT_TOTAL_TIME_ENABLED |
		unix.PERF_FORMAT_TOTAL_TIME_RUNNING |
		unix.PERF_FORMAT_GROUP
	attr.Bits = unix.PerfBitDisabled

	fd, err := unix.PerfEventOpen(&attr, pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, openError(evs[0], err)
	}
	g.f = append(g.f, os.NewFile(uintptr(fd), "<perf-event>"))
	defer func() {
		if !success {
			for _, f := range g.f {
				f.Close()
			}
		}
	}()

	// Open the members under the leader.
	for _, event := range evs[1:] {
		attr = unix.PerfEventAttr{}
		attr.Size = uint32(unsafe.Sizeof(attr))
		if err := event.SetAttrs(&attr); err != nil {
			return nil, err
		}

		fd2, err := unix.PerfEventOpen(&attr, pid, cpu, fd, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			return nil, openError(event, err)
		}
		g.f = append(g.f, os.NewFile(uintptr(fd2), "<perf-event>"))
	}

	success = true
	return g, nil
}

// openError classifies a perf_event_open failure into the package error
// taxonomy.
func openError(ev events.Event, err error) error {
	switch {
	case errors.Is(err, syscall.ENOENT),
		errors.Is(err, syscall.ENODEV),
		errors.Is(err, syscall.EOPNOTSUPP):
		return fmt.Errorf("%w: %s: %v", ErrUnsupported, ev, err)
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %s: %v%s", ErrNotPermitted, ev, err, paranoidHint())
	}
	return fmt.Errorf("open counter %s: %w", ev, err)
}

// paranoidHint suggests lowering perf_event_paranoid when it is what stands
// between the caller and the counters.
func paranoidHint() string {
	const path = "/proc/sys/kernel/perf_event_paranoid"
	data, err := os.ReadFile(path)
	data = bytes.TrimSpace(data)
	if val, err2 := strconv.Atoi(string(data)); err != nil || err2 != nil || val > 0 {
		// We can't read it, or it's set to > 0.
		return fmt.Sprintf(" (consider: echo 0 | sudo tee %s)", path)
	}
	return ""
}

// Events returns the events this group counts, in the order they were
// opened, which is the order [Group.Read] reports values.
func (g *Group) Events() []events.Event {
	return g.events
}

// Close releases every counter in the group and unlocks the goroutine from
// the OS thread. Close is idempotent.
func (g *Group) Close() {
	if g == nil || g.f == nil {
		return
	}
	for _, f := range g.f {
		f.Close()
	}
	g.f = nil
	g.target.close()
	g.target = nil
}

// Start atomically starts every counter in the group from its current
// value. Call [Group.Reset] first to start from zero.
func (g *Group) Start() error {
	if g == nil || g.running {
		return nil
	}
	if err := unix.IoctlSetInt(int(g.f[0].Fd()), unix.PERF_EVENT_IOC_ENABLE, unix.PERF_IOC_FLAG_GROUP); err != nil {
		return fmt.Errorf("enable counter group: %w", err)
	}
	g.running = true
	return nil
}

// Stop atomically stops every counter in the group, freezing its values.
func (g *Group) Stop() error {
	if g == nil || !g.running {
		return nil
	}
	if err := unix.IoctlSetInt(int(g.f[0].Fd()), unix.PERF_EVENT_IOC_DISABLE, unix.PERF_IOC_FLAG_GROUP); err != nil {
		return fmt.Errorf("disable counter group: %w", err)
	}
	g.running = false
	return nil
}

// Reset zeroes every counter in the group. It does not reset the group's
// enabled and running times, which the kernel does not allow.
func (g *Group) Reset() error {
	if g == nil {
		return nil
	}
	if err := unix.IoctlSetInt(int(g.f[0].Fd()), unix.PERF_EVENT_IOC_RESET, unix.PERF_IOC_FLAG_GROUP); err != nil {
		return fmt.Errorf("reset counter group: %w", err)
	}
	return nil
}

// A GroupCount is one atomic reading of a [Group]: the accumulated value of
// each counter, in event order, plus the group's total enabled and running
// times.
type GroupCount struct {
	// TimeEnabled is the total time the group was started.
	//
	// Normally TimeEnabled == TimeRunning. If the kernel had to multiplex
	// more counters onto the PMU than it can schedule at once,
	// TimeRunning < TimeEnabled and the values undercount.
	TimeEnabled uint64 // nanoseconds

	// TimeRunning is the total time the group was actually counting.
	TimeRunning uint64 // nanoseconds

	// Values holds one accumulated count per event, in the order of
	// [Group.Events].
	Values []uint64
}

// Read returns the current value of every counter in the group as a single
// point-in-time snapshot.
func (g *Group) Read() (GroupCount, error) {
	if g == nil || g.f == nil {
		return GroupCount{}, errors.New("perf: group is closed")
	}

	buf := g.readBuf
	if _, err := g.f[0].Read(buf); err != nil {
		return GroupCount{}, fmt.Errorf("read counter group: %w", err)
	}

	nr := binary.NativeEndian.Uint64(buf[0:])
	if nr != uint64(len(g.events)) {
		return GroupCount{}, fmt.Errorf("read returned %d events, expected %d", nr, len(g.events))
	}

	gc := GroupCount{
		TimeEnabled: binary.NativeEndian.Uint64(buf[8:]),
		TimeRunning: binary.NativeEndian.Uint64(buf[16:]),
		Values:      make([]uint64, len(g.events)),
	}
	for i := range gc.Values {
		gc.Values[i] = binary.NativeEndian.Uint64(buf[24+i*8:])
	}
	return gc, nil
}
