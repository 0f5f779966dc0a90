// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package snapshot_test

import (
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/tinyjs/internal/snapshot"
)

// TestSaveLoadRoundTrip is spec.md §8's supplemented scenario S7: a named
// image survives a goleveldb round trip byte-for-byte.
func TestSaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	s, err := snapshot.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	want := snapshot.Image{
		Bytecode:  []byte{1, 2, 3, 4, 5},
		HeapWords: []uint32{0xdeadbeef, 1, 2, 3, 0},
		HeapPtr:   3,
		StackPtr:  5,
	}
	require.NoError(t, s.Save("checkpoint-1", want))

	got, err := s.Load("checkpoint-1")
	require.NoError(t, err, spew.Sdump(want))
	assert.Equal(t, want.Bytecode, got.Bytecode)
	assert.Equal(t, want.HeapWords, got.HeapWords)
	assert.Equal(t, want.HeapPtr, got.HeapPtr)
	assert.Equal(t, want.StackPtr, got.StackPtr)
}

func TestLoadMissingNameFails(t *testing.T) {
	s, err := snapshot.Open(filepath.Join(t.TempDir(), "snaps"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load("never-saved")
	assert.Error(t, err)
}

func TestDeleteRemovesImage(t *testing.T) {
	s, err := snapshot.Open(filepath.Join(t.TempDir(), "snaps"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save("tmp", snapshot.Image{Bytecode: []byte{9}}))
	require.NoError(t, s.Delete("tmp"))

	_, err = s.Load("tmp")
	assert.Error(t, err)
}

func TestSaveOverwritesPriorImage(t *testing.T) {
	s, err := snapshot.Open(filepath.Join(t.TempDir(), "snaps"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save("v1", snapshot.Image{Bytecode: []byte{1}, HeapPtr: 1}))
	require.NoError(t, s.Save("v1", snapshot.Image{Bytecode: []byte{2}, HeapPtr: 2}))

	got, err := s.Load("v1")
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, got.Bytecode)
	assert.Equal(t, uint32(2), got.HeapPtr)
}
