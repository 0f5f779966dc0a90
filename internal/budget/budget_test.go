// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package budget_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/tinyjs/internal/budget"
)

func TestStepWithinBurstSucceeds(t *testing.T) {
	g := budget.New(1000, 100)
	require.NoError(t, g.Step(50))
}

func TestStepBeyondBurstIsExceeded(t *testing.T) {
	g := budget.New(1, 10)
	require.NoError(t, g.Step(10))
	assert.ErrorIs(t, g.Step(10), budget.ErrExceeded)
}

func TestWaitBlocksUntilAvailable(t *testing.T) {
	g := budget.New(1000, 1)
	require.NoError(t, g.Step(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, g.Wait(ctx, 1))
}

func TestWaitRespectsCancellation(t *testing.T) {
	g := budget.New(1, 1)
	require.NoError(t, g.Step(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Wait(ctx, 1))
}
