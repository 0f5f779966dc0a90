// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package budget implements a cooperative execution-step governor built on
// golang.org/x/time/rate, the concrete realization of spec.md §5's "a host
// may implement a step counter by polling between opcodes". The core VM
// itself has no notion of this; it is wired in at the engine.Context
// boundary, outside the opcode dispatch loop, so it never adds overhead to
// the hot path spec.md says must stay interrupt-free.
package budget

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrExceeded is returned by Step once the governor's allowance for the
// current window is exhausted.
var ErrExceeded = errors.New("budget: step allowance exceeded")

// Governor bounds the rate at which a caller may report forward progress
// (VM opcodes executed), without the VM itself supporting preemption.
type Governor struct {
	limiter *rate.Limiter
}

// New creates a Governor allowing opsPerSecond sustained steps with a burst
// of burst steps, matching rate.NewLimiter's own parameter shape.
func New(opsPerSecond float64, burst int) *Governor {
	return &Governor{limiter: rate.NewLimiter(rate.Limit(opsPerSecond), burst)}
}

// Step consumes n steps from the allowance. If the allowance is immediately
// available it returns nil without blocking; otherwise it reports
// ErrExceeded rather than stalling the caller's single-threaded VM loop —
// hosts that want to wait instead should use Wait.
func (g *Governor) Step(n int) error {
	if !g.limiter.AllowN(time.Now(), n) {
		return ErrExceeded
	}
	return nil
}

// Wait blocks until n steps are available or ctx is done, for hosts that
// prefer throttling a long-running Eval over aborting it outright.
func (g *Governor) Wait(ctx context.Context, n int) error {
	return g.limiter.WaitN(ctx, n)
}
