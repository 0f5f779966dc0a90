// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package engine

import (
	"fmt"

	"github.com/probechain/tinyjs/internal/snapshot"
	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/heap"
)

// SnapshotStore is a named-image persistence layer for Contexts, backed by
// internal/snapshot's goleveldb store. A single Store may hold snapshots
// from many Contexts as long as callers keep names unique.
type SnapshotStore struct {
	s *snapshot.Store
}

// OpenSnapshotStore opens (creating if necessary) a snapshot database at dir.
func OpenSnapshotStore(dir string) (*SnapshotStore, error) {
	s, err := snapshot.Open(dir)
	if err != nil {
		return nil, err
	}
	return &SnapshotStore{s: s}, nil
}

// Close releases the store's underlying database handle.
func (s *SnapshotStore) Close() error { return s.s.Close() }

// Save persists root's serialized bytecode and a raw copy of c's heap word
// buffer under name. root is typically the last Function passed to Execute.
func (s *SnapshotStore) Save(name string, c *Context, root *bytecode.Function) error {
	words := make([]uint32, c.Heap.TotalWords())
	for i := range words {
		words[i] = c.Heap.Word(uint32(i))
	}
	return s.s.Save(name, snapshot.Image{
		Bytecode:  bytecode.Serialize(root),
		HeapWords: words,
		HeapPtr:   c.Heap.HeapUsedWords(),
		StackPtr:  c.Heap.StackPtr(),
	})
}

// Load restores the Context and root Function previously saved under name.
// The restored Context shares no state with the one Save was called on; its
// heap is a fresh arena seeded with the saved word buffer's exact contents,
// including every live block and the stack region's saved depth, so
// resuming Eval against it observes the same bindings the saver held.
func (s *SnapshotStore) Load(name string) (*Context, *bytecode.Function, error) {
	img, err := s.s.Load(name)
	if err != nil {
		return nil, nil, err
	}
	root, err := bytecode.Deserialize(img.Bytecode)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: decode snapshot %s bytecode: %w", name, err)
	}
	h, err := heap.NewArenaRestored(img.HeapWords, img.HeapPtr, img.StackPtr)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: rebuild snapshot %s heap: %w", name, err)
	}
	c, err := NewOverHeap(h)
	if err != nil {
		return nil, nil, err
	}
	return c, root, nil
}
