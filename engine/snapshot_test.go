// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/tinyjs/engine"
)

func TestSnapshotSaveLoadPreservesBindings(t *testing.T) {
	store, err := engine.OpenSnapshotStore(filepath.Join(t.TempDir(), "snaps"))
	require.NoError(t, err)
	defer store.Close()

	c, err := engine.New(64 * 1024)
	require.NoError(t, err)
	root, err := c.Compile("var x = 21; x;")
	require.NoError(t, err)
	_, err = c.Execute(root)
	require.NoError(t, err)

	require.NoError(t, store.Save("ckpt", c, root))

	restored, restoredRoot, err := store.Load("ckpt")
	require.NoError(t, err)
	got, err := restored.Execute(restoredRoot)
	require.NoError(t, err)
	assert.Equal(t, int32(21), got.Int())
}
