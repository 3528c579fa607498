// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package workloads provides the probe kernels measured by the counter
// harness: tight ALU loops and array-summation loops with various access
// patterns. Each kernel routes its result through [Sink] so the compiler
// cannot prove the work unused and elide it across the measurement window.
package workloads

import (
	"fmt"
	"math/rand"
)

// Sink receives each kernel's result. Writing a package-level variable is
// the optimization barrier that keeps the loops alive.
var Sink uint64

// Config sizes a workload.
type Config struct {
	Iterations int   // repetitions of the kernel per measured call
	ArraySize  int   // backing array size in bytes
	Stride     int   // element stride for the strided kernels
	Seed       int64 // seed for the random-index kernel
}

// A Workload is a named probe kernel.
type Workload struct {
	Name        string
	Description string

	// Make binds cfg and returns the zero-argument callable the harness
	// measures, plus display hints: how many items one call processes and
	// how many bytes it touches. Zero hints mean not meaningful.
	Make func(cfg Config) (fn func(), items, bytes uint64)
}

// All returns every registered workload in registration order.
func All() []Workload {
	return registry
}

// Lookup returns the workload registered under name.
func Lookup(name string) (Workload, error) {
	for _, w := range registry {
		if w.Name == name {
			return w, nil
		}
	}
	return Workload{}, fmt.Errorf("unknown workload %q", name)
}

var registry = []Workload{
	{
		Name:        "alu-ops",
		Description: "dependent ALU accumulation loop",
		Make: func(cfg Config) (func(), uint64, uint64) {
			n, iters := cfg.ArraySize, cfg.Iterations
			return func() {
				var sum uint64
				for it := 0; it < iters; it++ {
					sum += aluOps(n, 3)
				}
				Sink = sum
			}, uint64(n) * uint64(iters), 0
		},
	},
	{
		Name:        "alu-ops-unrolled",
		Description: "ALU loop over four independent accumulators",
		Make: func(cfg Config) (func(), uint64, uint64) {
			n, iters := cfg.ArraySize, cfg.Iterations
			return func() {
				var sum uint64
				for it := 0; it < iters; it++ {
					sum += aluOpsUnrolled(n, 3, 3)
				}
				Sink = sum
			}, uint64(n) * uint64(iters), 0
		},
	},
	{
		Name:        "mul-ops",
		Description: "dependent multiply loop",
		Make: func(cfg Config) (func(), uint64, uint64) {
			n, iters := cfg.ArraySize, cfg.Iterations
			return func() {
				var product uint64
				for it := 0; it < iters; it++ {
					product += mulOps(n, 3)
				}
				Sink = product
			}, uint64(n) * uint64(iters), 0
		},
	},
	{
		Name:        "sum-array",
		Description: "sequential byte-array summation",
		Make: func(cfg Config) (func(), uint64, uint64) {
			array := make([]byte, cfg.ArraySize)
			iters := cfg.Iterations
			items := uint64(len(array)) * uint64(iters)
			return func() {
				var sum uint64
				for it := 0; it < iters; it++ {
					sum += sumArrayStride(array, 1)
				}
				Sink = sum
			}, items, items
		},
	},
	{
		Name:        "sum-array-unrolled",
		Description: "sequential summation over two independent accumulators",
		Make: func(cfg Config) (func(), uint64, uint64) {
			array := make([]byte, cfg.ArraySize)
			iters := cfg.Iterations
			items := uint64(len(array)) * uint64(iters)
			return func() {
				var sum uint64
				for it := 0; it < iters; it++ {
					sum += sumArrayUnrolled(array)
				}
				Sink = sum
			}, items, items
		},
	},
	{
		Name:        "sum-array-stride",
		Description: "byte-array summation touching every stride-th element",
		Make: func(cfg Config) (func(), uint64, uint64) {
			array := make([]byte, cfg.ArraySize)
			stride, iters := cfg.Stride, cfg.Iterations
			if stride < 1 {
				stride = 1
			}
			items := uint64(len(array)/stride) * uint64(iters)
			return func() {
				var sum uint64
				for it := 0; it < iters; it++ {
					sum += sumArrayStride(array, stride)
				}
				Sink = sum
			}, items, items
		},
	},
	{
		Name:        "sum-array-changing-stride",
		Description: "byte-array summation with a stride the prefetcher cannot lock onto",
		Make: func(cfg Config) (func(), uint64, uint64) {
			array := make([]byte, cfg.ArraySize)
			iters := cfg.Iterations
			items := uint64(len(array)/128) * uint64(iters)
			return func() {
				var sum uint64
				for it := 0; it < iters; it++ {
					sum += sumArrayChangingStride(array)
				}
				Sink = sum
			}, items, items
		},
	},
	{
		Name:        "sum-array-indirect",
		Description: "byte-array summation through random indices",
		Make: func(cfg Config) (func(), uint64, uint64) {
			array := make([]byte, cfg.ArraySize)
			rng := rand.New(rand.NewSource(cfg.Seed))
			indices := make([]int, len(array)/10)
			for i := range indices {
				indices[i] = rng.Intn(len(array))
			}
			iters := cfg.Iterations
			items := uint64(len(indices)/64) * uint64(iters)
			return func() {
				var sum uint64
				for it := 0; it < iters; it++ {
					sum += sumArrayIndirect(array, indices)
				}
				Sink = sum
			}, items, items
		},
	},
}

func aluOps(n int, x uint64) uint64 {
	sum := Sink
	for i := 0; i < n; i++ {
		sum += x
	}
	return sum
}

func aluOpsUnrolled(n int, x, y uint64) uint64 {
	var s1, s2, s3, s4 uint64
	for i := 0; i < n; i++ {
		s1 += x
		s1 &= y
		s2 += x
		s2 &= y
		s3 += x
		s3 &= y
		s4 += x
		s4 &= y
	}
	return s1 + s2 + s3 + s4
}

func mulOps(n int, x uint64) uint64 {
	product := Sink | 1
	for i := 0; i < n; i++ {
		product *= x
	}
	return product
}

func sumArrayStride(array []byte, stride int) uint64 {
	var sum uint64
	for i := 0; i < len(array); i += stride {
		sum += uint64(array[i] & 3)
	}
	return sum
}

func sumArrayUnrolled(array []byte) uint64 {
	var s1, s2 uint64
	for i := 0; i+1 < len(array); i += 2 {
		s1 += uint64(array[i] & 3)
		s2 += uint64(array[i+1] & 3)
	}
	return s1 + s2
}

// sumArrayChangingStride varies the step between 110 and 141 bytes per
// access so the hardware stride prefetcher never settles on a pattern.
func sumArrayChangingStride(array []byte) uint64 {
	var sum, stride uint64
	for i := 0; i < len(array); {
		sum += uint64(array[i])
		stride = (stride + 9) & 31
		i += 110 + int(stride)
	}
	return sum
}

func sumArrayIndirect(array []byte, indices []int) uint64 {
	var sum uint64
	for i := 0; i < len(indices); i += 64 {
		sum += uint64(array[indices[i]])
	}
	return sum
}
