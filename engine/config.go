// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package engine

import (
	"github.com/probechain/tinyjs/internal/budget"
	"github.com/probechain/tinyjs/internal/config"
)

// defaultStepsPerSecond/defaultStepBurst size the Step governor when a
// config document doesn't specify max_steps.
const (
	defaultStepsPerSecond = 1_000_000.0
	defaultStepBurst      = 100_000
)

// NewFromConfig loads a TOML document at path describing mem_size,
// gc_min_free_words, and max_steps, then constructs a Context the same way
// New(mem_size) would, additionally wiring a Step governor sized from
// max_steps when present. gc_min_free_words is parsed but not applied.
func NewFromConfig(path string) (*Context, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return fromConfig(cfg)
}

// NewFromConfigBytes is NewFromConfig for a TOML document already held in
// memory (tests, embedders building config programmatically).
func NewFromConfigBytes(data []byte) (*Context, error) {
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, err
	}
	return fromConfig(cfg)
}

func fromConfig(cfg *config.Engine) (*Context, error) {
	c, err := New(cfg.MemSize)
	if err != nil {
		return nil, err
	}
	perSecond := defaultStepsPerSecond
	burst := defaultStepBurst
	if cfg.MaxSteps > 0 {
		perSecond = float64(cfg.MaxSteps)
		burst = cfg.MaxSteps
	}
	c.steps = budget.New(perSecond, burst)
	return c, nil
}

// Step reports progress of ops VM opcodes executed against the Context's
// step governor (see internal/budget), returning budget.ErrExceeded once the
// configured allowance for the current window is used up. A Context
// constructed via New rather than NewFromConfig has no governor installed
// and Step is always a no-op.
func (c *Context) Step(ops int) error {
	if c.steps == nil {
		return nil
	}
	return c.steps.Step(ops)
}
