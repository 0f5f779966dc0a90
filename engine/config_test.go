// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/tinyjs/engine"
	"github.com/probechain/tinyjs/lang/heap"
)

// TestNewFromConfigRejectsUndersizedMemSize is spec.md §8's supplemented
// scenario S8.
func TestNewFromConfigRejectsUndersizedMemSize(t *testing.T) {
	_, err := engine.NewFromConfigBytes([]byte("mem_size = 1024\n"))
	assert.ErrorIs(t, err, heap.ErrTooSmall)
}

func TestNewFromConfigBytesWiresStepGovernor(t *testing.T) {
	c, err := engine.NewFromConfigBytes([]byte("mem_size = 65536\nmax_steps = 100\n"))
	require.NoError(t, err)

	require.NoError(t, c.Step(100))
	assert.Error(t, c.Step(1))
}

func TestStepIsNoopWithoutConfig(t *testing.T) {
	c, err := engine.New(65536)
	require.NoError(t, err)
	assert.NoError(t, c.Step(1<<30))
}
