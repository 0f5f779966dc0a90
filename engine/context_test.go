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

func TestEvalArithmeticExpression(t *testing.T) {
	c, err := engine.New(64 * 1024)
	require.NoError(t, err)

	got, err := c.Eval("1 + 2 * 3;")
	require.NoError(t, err)
	assert.True(t, got.IsInt())
	assert.Equal(t, int32(7), got.Int())
}

func TestCompileCacheReturnsSameFunction(t *testing.T) {
	c, err := engine.New(64 * 1024)
	require.NoError(t, err)

	const src = "var x = 1; x;"
	fn1, err := c.Compile(src)
	require.NoError(t, err)
	fn2, err := c.Compile(src)
	require.NoError(t, err)
	assert.Same(t, fn1, fn2)
}

func TestMemoryStatsReportsClassCounts(t *testing.T) {
	c, err := engine.New(64 * 1024)
	require.NoError(t, err)

	_, err = c.Eval("var a = [1,2,3]; a;")
	require.NoError(t, err)

	stats := c.MemoryStats()
	assert.GreaterOrEqual(t, stats.Classes.Arrays, uint64(1))
	assert.Greater(t, stats.HeapUsed, uint64(0))
}

func TestGCReclaimsUnreachableAllocations(t *testing.T) {
	c, err := engine.New(16 * 1024)
	require.NoError(t, err)
	baseline := c.GC()

	for i := 0; i < 10; i++ {
		_, err := c.Heap.NewArray(4)
		require.NoError(t, err)
	}
	before := c.MemoryStats()
	stats := c.GC()
	after := c.MemoryStats()

	assert.Equal(t, baseline.ObjectsAfter, stats.ObjectsAfter)
	assert.Less(t, after.HeapUsed, before.HeapUsed)
}

func TestSerializeDeserializeThroughEngine(t *testing.T) {
	c, err := engine.New(64 * 1024)
	require.NoError(t, err)

	fn, err := c.Compile("2 + 2;")
	require.NoError(t, err)
	data := engine.Serialize(fn)

	decoded, err := engine.Deserialize(data)
	require.NoError(t, err)
	got, err := c.Execute(decoded)
	require.NoError(t, err)
	assert.Equal(t, int32(4), got.Int())
}

func TestNewRejectsUndersizedArena(t *testing.T) {
	_, err := engine.New(1024)
	assert.ErrorIs(t, err, heap.ErrTooSmall)
}
