// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap_test

import (
	"testing"

	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
)

func TestNewArenaRejectsTooSmall(t *testing.T) {
	if _, err := heap.NewArena(100); err != heap.ErrTooSmall {
		t.Fatalf("err = %v, want ErrTooSmall", err)
	}
}

func TestAllocAndRead(t *testing.T) {
	h, err := heap.NewArena(8192)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := h.AllocZeroed(heap.TagValueArray, 4)
	if err != nil {
		t.Fatal(err)
	}
	hdr := h.HeaderAt(addr)
	if hdr.Tag() != heap.TagValueArray {
		t.Errorf("tag = %v, want ValueArray", hdr.Tag())
	}
	if hdr.SizeWords() != 4 {
		t.Errorf("size = %d, want 4", hdr.SizeWords())
	}
	h.SetSlot(addr+1, value.Int(7))
	if got := h.Slot(addr + 1).Int(); got != 7 {
		t.Errorf("slot = %d, want 7", got)
	}
}

func TestAllocOutOfMemory(t *testing.T) {
	h, _ := heap.NewArena(4096)
	_, err := h.Alloc(heap.TagValueArray, 1<<20)
	if err != heap.ErrOutOfMemory {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
}

func TestStackPushPop(t *testing.T) {
	h, _ := heap.NewArena(4096)
	for i := int32(0); i < 5; i++ {
		if _, err := h.StackPush(value.Int(i)); err != nil {
			t.Fatal(err)
		}
	}
	for i := int32(4); i >= 0; i-- {
		v, err := h.StackPop()
		if err != nil {
			t.Fatal(err)
		}
		if v.Int() != i {
			t.Errorf("pop = %d, want %d", v.Int(), i)
		}
	}
	if _, err := h.StackPop(); err != heap.ErrStackUnderflow {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
}

func TestHeapAndStackCollide(t *testing.T) {
	h, _ := heap.NewArena(4096)
	// Exhaust nearly all free words from the heap side, leaving no room
	// for a stack push.
	free := h.FreeWords()
	if _, err := h.Alloc(heap.TagValueArray, free-1); err != nil {
		t.Fatal(err)
	}
	if _, err := h.StackPush(value.Int(1)); err != heap.ErrOutOfMemory {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
}

func TestIterBlocks(t *testing.T) {
	h, _ := heap.NewArena(4096)
	a1, _ := h.Alloc(heap.TagValueArray, 2)
	a2, _ := h.Alloc(heap.TagString, 3)
	it := h.IterBlocks()
	addr, hdr, ok := it.Next()
	if !ok || addr != a1 || hdr.Tag() != heap.TagValueArray {
		t.Fatalf("first block mismatch: addr=%d ok=%v tag=%v", addr, ok, hdr.Tag())
	}
	addr, hdr, ok = it.Next()
	if !ok || addr != a2 || hdr.Tag() != heap.TagString {
		t.Fatalf("second block mismatch: addr=%d ok=%v tag=%v", addr, ok, hdr.Tag())
	}
	if _, _, ok = it.Next(); ok {
		t.Fatal("expected end of iteration")
	}
}

func TestStats(t *testing.T) {
	h, _ := heap.NewArena(4096)
	h.Alloc(heap.TagValueArray, 10)
	stats := h.Stats()
	if stats.Total != 4096 {
		t.Errorf("total = %d, want 4096", stats.Total)
	}
	if stats.HeapUsed != 11*4 {
		t.Errorf("heapUsed = %d, want %d", stats.HeapUsed, 11*4)
	}
	if stats.Free != stats.Total-stats.HeapUsed-stats.StackUsed {
		t.Errorf("free accounting mismatch: %+v", stats)
	}
}

func TestStatsClassCounts(t *testing.T) {
	h, _ := heap.NewArena(16384)
	if _, err := h.NewObject(heap.ClassArray, value.Null); err != nil {
		t.Fatal(err)
	}
	if _, err := h.NewObject(heap.ClassArray, value.Null); err != nil {
		t.Fatal(err)
	}
	if _, err := h.NewString("hi"); err != nil {
		t.Fatal(err)
	}
	stats := h.Stats()
	if stats.Classes.Arrays != 2 {
		t.Errorf("Classes.Arrays = %d, want 2", stats.Classes.Arrays)
	}
	if stats.Classes.Strings != 1 {
		t.Errorf("Classes.Strings = %d, want 1", stats.Classes.Strings)
	}
}

func TestNewArenaRestoredValidatesBounds(t *testing.T) {
	buf := make([]uint32, 1024)
	if _, err := heap.NewArenaRestored(buf, 10, 5); err == nil {
		t.Fatal("expected error when heapPtr > stackPtr")
	}
	if _, err := heap.NewArenaRestored(buf, 5, 2000); err == nil {
		t.Fatal("expected error when stackPtr > len(buf)")
	}
	h, err := heap.NewArenaRestored(buf, 5, 1000)
	if err != nil {
		t.Fatalf("NewArenaRestored: %v", err)
	}
	stats := h.Stats()
	if stats.HeapUsed != 5*4 {
		t.Errorf("HeapUsed = %d, want %d", stats.HeapUsed, 5*4)
	}
}
