// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/tinyjs/internal/config"
)

func TestParse(t *testing.T) {
	e, err := config.Parse([]byte(`
mem_size = 65536
gc_min_free_words = 256
max_steps = 1000000
`))
	require.NoError(t, err)
	assert.Equal(t, 65536, e.MemSize)
	assert.Equal(t, 256, e.GCMinFreeWords)
	assert.Equal(t, 1000000, e.MaxSteps)
}

func TestParseZeroValuesMeanDefaults(t *testing.T) {
	e, err := config.Parse([]byte(`mem_size = 65536`))
	require.NoError(t, err)
	assert.Equal(t, 0, e.GCMinFreeWords)
	assert.Equal(t, 0, e.MaxSteps)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("mem_size = 131072\n"), 0o644))

	e, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 131072, e.MemSize)
}

func TestParseMalformed(t *testing.T) {
	_, err := config.Parse([]byte("mem_size = not-a-number"))
	assert.Error(t, err)
}
