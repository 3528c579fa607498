// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workloads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	Iterations: 2,
	ArraySize:  4096,
	Stride:     16,
	Seed:       1,
}

func TestLookup(t *testing.T) {
	for _, w := range All() {
		got, err := Lookup(w.Name)
		require.NoError(t, err)
		assert.Equal(t, w.Name, got.Name)
	}

	_, err := Lookup("no-such-kernel")
	assert.Error(t, err)
}

func TestUniqueNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, w := range All() {
		assert.False(t, seen[w.Name], "duplicate workload name %q", w.Name)
		seen[w.Name] = true
		assert.NotEmpty(t, w.Description, "%s has no description", w.Name)
	}
}

func TestMakeRunsWithoutPanic(t *testing.T) {
	for _, w := range All() {
		t.Run(w.Name, func(t *testing.T) {
			fn, items, bytes := w.Make(testConfig)
			require.NotNil(t, fn)
			assert.NotZero(t, items, "items hint should be set")
			// Callables must be safe to invoke repeatedly: the harness runs
			// them once per counter group.
			fn()
			fn()
			_ = bytes
		})
	}
}

func TestItemHints(t *testing.T) {
	w, err := Lookup("sum-array-stride")
	require.NoError(t, err)
	_, items, bytes := w.Make(testConfig)
	assert.Equal(t, uint64(4096/16*2), items)
	assert.Equal(t, items, bytes)

	w, err = Lookup("alu-ops")
	require.NoError(t, err)
	_, items, bytes = w.Make(testConfig)
	assert.Equal(t, uint64(4096*2), items)
	assert.Zero(t, bytes, "ALU kernels touch no memory worth reporting")
}

func TestStrideDefaultsToOne(t *testing.T) {
	w, err := Lookup("sum-array-stride")
	require.NoError(t, err)
	cfg := testConfig
	cfg.Stride = 0
	fn, items, _ := w.Make(cfg)
	assert.Equal(t, uint64(4096*2), items)
	fn()
}
