// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package perfprobe measures the microarchitectural behavior of a workload
// (cycles, retired instructions, cache events, context switches) with Linux
// performance counter groups and reports derived metrics such as frequency,
// instructions per cycle, and cache miss ratios.
//
// Each call opens the counters fresh, brackets exactly one workload
// invocation per counter group with an atomic enable/disable pair, and
// releases every counter before returning. No state carries over between
// runs.
package perfprobe

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/perfprobe/perfprobe/events"
	"github.com/perfprobe/perfprobe/harness"
	"github.com/perfprobe/perfprobe/perf"
	"github.com/perfprobe/perfprobe/report"
)

// RunBenchmarks measures workload under the default counter set and writes
// the report to standard output. name labels the report header. items and
// bytes are caller-supplied hints for displaying normalized throughput;
// they play no part in the counter math and may be zero.
//
// The workload is invoked once per counter group, so it must be
// deterministic and side-effect-free across repeated invocations.
func RunBenchmarks(name string, workload func(), items, bytes uint64) error {
	return Measure(os.Stdout, name, workload, harness.DefaultEvents(), items, bytes)
}

// Measure is [RunBenchmarks] with an explicit output writer and event set.
func Measure(w io.Writer, name string, workload func(), evs []events.Event, items, bytes uint64) error {
	set, err := open(evs)
	if err != nil {
		return err
	}
	defer set.Close()

	totals, err := set.Run(workload)
	if err != nil {
		return err
	}

	return report.Write(w, &harness.Result{
		Name:   name,
		Counts: totals,
		Items:  items,
		Bytes:  bytes,
	})
}

// open opens the requested counter set. Raw vendor event codes are a
// best-effort extension: when the hardware does not know them, they are
// dropped and the portable events are opened alone. Everything else is
// strict.
func open(evs []events.Event) (*harness.GroupSet, error) {
	set, err := harness.Open(evs...)
	if err == nil || !errors.Is(err, perf.ErrUnsupported) {
		return set, err
	}

	var portable []events.Event
	for _, ev := range evs {
		if ev.Class() != events.ClassRaw {
			portable = append(portable, ev)
		}
	}
	if len(portable) == len(evs) || len(portable) == 0 {
		return nil, err
	}

	slog.Warn("raw events unsupported here, continuing without them", "err", err)
	return harness.Open(portable...)
}
