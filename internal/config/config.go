// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package config loads the small TOML document engine.NewFromConfig reads to
// construct a Context, using github.com/naoina/toml the same way go-probe
// itself vendors that library for node configuration.
package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
)

// Engine is the on-disk shape of an engine configuration file. A zero
// MaxSteps means "use the engine package's own default"; GCMinFreeWords is
// parsed but engine.NewFromConfig does not apply it. MemSize has no implicit
// default and must be set.
type Engine struct {
	MemSize       int `toml:"mem_size"`
	GCMinFreeWords int `toml:"gc_min_free_words"`
	MaxSteps      int `toml:"max_steps"`
}

// Load reads and parses path as a TOML Engine document.
func Load(path string) (*Engine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var e Engine
	if err := toml.NewDecoder(f).Decode(&e); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &e, nil
}

// Parse decodes a TOML document already held in memory, for callers (tests,
// embedders building config programmatically) that don't have it on disk.
func Parse(data []byte) (*Engine, error) {
	var e Engine
	if err := toml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &e, nil
}
