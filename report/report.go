// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package report renders benchmark results as perf-stat style text.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/perfprobe/perfprobe/events"
	"github.com/perfprobe/perfprobe/harness"
)

const separator = "===================================================================="

// Format converts the raw totals in r into derived metrics and returns the
// report as an ordered sequence of lines. Counters that were requested but
// not measured are omitted. Derived metrics whose denominator is zero are
// rendered without an annotation rather than dividing by zero.
func Format(r *harness.Result) []string {
	lines := []string{
		separator,
		fmt.Sprintf("Benchmarking %s...", r.Name),
		"",
	}

	taskClockNS := r.TaskClockNS()
	taskClockSec := float64(taskClockNS) / 1e9

	if v, ok := r.Count(events.EventTaskClock); ok {
		lines = append(lines, line(fmt.Sprintf("%.2f", float64(v)/1e6), "msec", "task-clock", ""))
	}
	for _, ev := range []events.Event{
		events.EventContextSwitches,
		events.EventCPUMigrations,
		events.EventPageFaults,
	} {
		if v, ok := r.Count(ev); ok {
			lines = append(lines, line(groupDigits(v), "", ev.String(), rate(v, taskClockSec)))
		}
	}
	lines = append(lines, "")

	cycles, haveCycles := r.Count(events.EventCPUCycles)
	if haveCycles {
		var ghz string
		if taskClockNS > 0 {
			ghz = fmt.Sprintf("%.3f GHz", float64(cycles)/float64(taskClockNS))
		}
		lines = append(lines, line(groupDigits(cycles), "", "cycles", ghz))
	}
	if v, ok := r.Count(events.EventInstructions); ok {
		var ipc string
		if haveCycles && cycles > 0 {
			ipc = fmt.Sprintf("%.2f  insn per cycle", float64(v)/float64(cycles))
		}
		lines = append(lines, line(groupDigits(v), "", "instructions", ipc))
	}
	lines = append(lines, "")

	if v, ok := r.Count(events.EventCacheReferences); ok {
		lines = append(lines, line(groupDigits(v), "", "cache-accesses", ""))
	}
	loads, haveLoads := r.Count(events.EventL1DLoads)
	if haveLoads {
		lines = append(lines, line(groupDigits(loads), "", "L1-dcache-loads", ""))
	}
	if v, ok := r.Count(events.EventL1DLoadMisses); ok {
		annot := percent(v, loads, "of all L1-dcache accesses")
		if !haveLoads {
			annot = ""
		}
		lines = append(lines, line(groupDigits(v), "", "L1-dcache-load-misses", annot))
	}
	if v, ok := r.Count(events.EventL1DPrefetches); ok {
		lines = append(lines, line(groupDigits(v), "", "L1-dcache-prefetches", ""))
	}
	l2Accesses, haveL2 := r.Count(harness.EventL2AccessesFromDCMisses)
	if haveL2 {
		lines = append(lines, line(groupDigits(l2Accesses), "", harness.EventL2AccessesFromDCMisses.String(), ""))
	}
	if v, ok := r.Count(harness.EventL2HitsFromDCMisses); ok {
		annot := percent(v, l2Accesses, "of all L2 accesses")
		if !haveL2 {
			annot = ""
		}
		lines = append(lines, line(groupDigits(v), "", harness.EventL2HitsFromDCMisses.String(), annot))
	}

	if r.Items > 0 || r.Bytes > 0 {
		lines = append(lines, "")
		if r.Items > 0 {
			lines = append(lines, line(groupDigits(r.Items), "", "items processed", rate(r.Items, taskClockSec)))
		}
		if r.Bytes > 0 {
			lines = append(lines, line(groupDigits(r.Bytes), "", "bytes processed", rate(r.Bytes, taskClockSec)))
		}
	}

	lines = append(lines, separator)
	return lines
}

// Write renders r with [Format] and writes it to w.
func Write(w io.Writer, r *harness.Result) error {
	for _, l := range Format(r) {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func line(count, unit, name, annotation string) string {
	s := fmt.Sprintf("%16s %-4s %-32s", count, unit, name)
	if annotation != "" {
		s += " # " + annotation
	}
	return strings.TrimRight(s, " ")
}

// rate formats count per second of task-clock time, or nothing when no time
// was attributed.
func rate(count uint64, taskClockSec float64) string {
	if taskClockSec <= 0 {
		return ""
	}
	return fmt.Sprintf("%.3f /sec", float64(count)/taskClockSec)
}

// percent formats count as a percentage of total, or nothing when the total
// is zero.
func percent(count, total uint64, what string) string {
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f%% %s", float64(count)/float64(total)*100, what)
}

// groupDigits formats v with thousands separators.
func groupDigits(v uint64) string {
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
