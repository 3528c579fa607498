// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perfprobe

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfprobe/perfprobe/events"
	"github.com/perfprobe/perfprobe/perf"
)

func TestMeasureSoftwareCounters(t *testing.T) {
	evs := []events.Event{
		events.EventTaskClock,
		events.EventContextSwitches,
		events.EventCPUMigrations,
		events.EventPageFaults,
	}

	var buf bytes.Buffer
	var sink uint64
	err := Measure(&buf, "noop-loop", func() {
		for i := 0; i < 1_000_000; i++ {
			sink += uint64(i)
		}
	}, evs, 1_000_000, 0)
	if errors.Is(err, perf.ErrNotPermitted) || errors.Is(err, perf.ErrUnsupported) {
		t.Skipf("cannot open counters here: %v", err)
	}
	require.NoError(t, err)
	_ = sink

	out := buf.String()
	assert.Contains(t, out, "Benchmarking noop-loop...")
	assert.Contains(t, out, "task-clock")
	assert.Contains(t, out, "context-switches")
	assert.Contains(t, out, "cpu-migrations")
	assert.Contains(t, out, "page-faults")
	assert.Contains(t, out, "items processed")

	// A non-empty measurement window must have attributed some time.
	taskLine := ""
	for _, l := range strings.Split(out, "\n") {
		if strings.Contains(l, "task-clock") {
			taskLine = l
		}
	}
	require.NotEmpty(t, taskLine)
	assert.NotContains(t, taskLine, " 0.00 msec")
}

func TestMeasureWorkloadRunsPerGroup(t *testing.T) {
	evs := []events.Event{
		events.EventTaskClock,
		testRawEvent(),
	}

	calls := 0
	var buf bytes.Buffer
	err := Measure(&buf, "count-calls", func() { calls++ }, evs, 0, 0)
	if errors.Is(err, perf.ErrNotPermitted) {
		t.Skipf("cannot open counters here: %v", err)
	}
	require.NoError(t, err)

	// One invocation per group that actually opened.
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, calls, 2)
}

// testRawEvent returns a raw event that may or may not open on the test
// machine; Measure must degrade to the portable events when it does not.
func testRawEvent() events.Event {
	return events.Raw("r0101", 0x0101)
}

func TestMeasurePropagatesSetupErrors(t *testing.T) {
	var buf bytes.Buffer
	err := Measure(&buf, "bad", func() {}, nil, 0, 0)
	require.Error(t, err)
	assert.Empty(t, buf.String(), "no partial report on setup failure")
}
