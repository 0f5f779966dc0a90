// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap_test

import (
	"fmt"
	"testing"

	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
)

func TestPropertyTableSetGet(t *testing.T) {
	h, _ := heap.NewArena(16384)
	st := heap.NewStringTable()
	tbl, err := h.NewPropertyTable()
	if err != nil {
		t.Fatal(err)
	}
	k, _ := st.Intern(h, "x")
	tbl, err = h.PropSet(tbl, k, value.Int(42))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := h.PropGet(tbl, k)
	if !ok || got.Int() != 42 {
		t.Fatalf("PropGet = %v, %v, want 42, true", got, ok)
	}
}

func TestPropertyTableUpdate(t *testing.T) {
	h, _ := heap.NewArena(16384)
	st := heap.NewStringTable()
	tbl, _ := h.NewPropertyTable()
	k, _ := st.Intern(h, "x")
	tbl, _ = h.PropSet(tbl, k, value.Int(1))
	tbl, _ = h.PropSet(tbl, k, value.Int(2))
	got, _ := h.PropGet(tbl, k)
	if got.Int() != 2 {
		t.Errorf("got %v, want 2", got)
	}
	if h.PropKeys(tbl); len(h.PropKeys(tbl)) != 1 {
		t.Errorf("expected exactly one key after update, got %d", len(h.PropKeys(tbl)))
	}
}

func TestPropertyTableDeleteAndReuse(t *testing.T) {
	h, _ := heap.NewArena(16384)
	st := heap.NewStringTable()
	tbl, _ := h.NewPropertyTable()
	k1, _ := st.Intern(h, "a")
	k2, _ := st.Intern(h, "b")
	tbl, _ = h.PropSet(tbl, k1, value.Int(1))
	tbl, _ = h.PropSet(tbl, k2, value.Int(2))
	if !h.PropDelete(tbl, k1) {
		t.Fatal("delete of existing key failed")
	}
	if h.PropHas(tbl, k1) {
		t.Error("deleted key still present")
	}
	if _, ok := h.PropGet(tbl, k2); !ok {
		t.Error("unrelated key lost after delete")
	}
	k3, _ := st.Intern(h, "c")
	tbl, _ = h.PropSet(tbl, k3, value.Int(3))
	if got, ok := h.PropGet(tbl, k3); !ok || got.Int() != 3 {
		t.Errorf("reused-slot insert failed: %v %v", got, ok)
	}
}

func TestPropertyTableManyKeysTriggerResize(t *testing.T) {
	h, _ := heap.NewArena(1 << 20)
	st := heap.NewStringTable()
	tbl, _ := h.NewPropertyTable()
	const n = 200
	keys := make([]value.Value, n)
	for i := 0; i < n; i++ {
		k, _ := st.Intern(h, fmt.Sprintf("key%d", i))
		keys[i] = k
		var err error
		tbl, err = h.PropSet(tbl, k, value.Int(int32(i)))
		if err != nil {
			t.Fatalf("PropSet(%d): %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		got, ok := h.PropGet(tbl, keys[i])
		if !ok || got.Int() != int32(i) {
			t.Fatalf("key%d: got %v,%v want %d", i, got, ok, i)
		}
	}
	if len(h.PropKeys(tbl)) != n {
		t.Errorf("PropKeys len = %d, want %d", len(h.PropKeys(tbl)), n)
	}
}

func TestPropertyTableMissingKey(t *testing.T) {
	h, _ := heap.NewArena(4096)
	st := heap.NewStringTable()
	tbl, _ := h.NewPropertyTable()
	k, _ := st.Intern(h, "missing")
	if h.PropHas(tbl, k) {
		t.Error("empty table reports key present")
	}
	if _, ok := h.PropGet(tbl, k); ok {
		t.Error("empty table PropGet ok=true")
	}
}
