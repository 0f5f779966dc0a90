// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap_test

import (
	"path/filepath"
	"testing"

	"github.com/probechain/tinyjs/lang/heap"
)

func TestNewMmappedAllocatesAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")

	m, err := heap.NewMmapped(path, 64*1024)
	if err != nil {
		t.Fatalf("NewMmapped: %v", err)
	}
	v, err := m.NewArray(4)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	if !v.IsHeapPtr() {
		t.Fatalf("NewArray returned non-heap value %v", v)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewMmappedRejectsUndersizedArena(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	if _, err := heap.NewMmapped(path, 1024); err != heap.ErrTooSmall {
		t.Fatalf("NewMmapped(undersized) error = %v, want ErrTooSmall", err)
	}
}
