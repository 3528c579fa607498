// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package benchtest

import "testing"

type countersOS struct{}

func openOS(*testing.B) *Counters {
	return nil
}

func (cs *Counters) startOS() {}

func (cs *Counters) stopOS() {}

func (cs *Counters) resetOS() {}
