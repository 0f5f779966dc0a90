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
)

func TestStringRoundTrip(t *testing.T) {
	h, _ := heap.NewArena(4096)
	for _, s := range []string{"", "a", "hello, world", "exactly8b"} {
		v, err := h.NewString(s)
		if err != nil {
			t.Fatal(err)
		}
		if got := h.StringAt(v.HeapAddr()); got != s {
			t.Errorf("StringAt = %q, want %q", got, s)
		}
		if got := h.StringLen(v.HeapAddr()); got != uint32(len(s)) {
			t.Errorf("StringLen = %d, want %d", got, len(s))
		}
	}
}

func TestHashStringMultiplier31(t *testing.T) {
	want := uint32(0)
	for _, b := range []byte("abc") {
		want = want*31 + uint32(b)
	}
	if got := heap.HashString("abc"); got != want {
		t.Errorf("HashString(abc) = %d, want %d", got, want)
	}
}

func TestIsArrayIndex(t *testing.T) {
	tests := []struct {
		s     string
		n     uint32
		valid bool
	}{
		{"0", 0, true},
		{"1", 1, true},
		{"123", 123, true},
		{"01", 0, false},
		{"-1", 0, false},
		{"1.5", 0, false},
		{"", 0, false},
		{"1073741823", 1073741823, true}, // 2^30 - 1
		{"1073741824", 0, false},         // 2^30, out of range
	}
	for _, tt := range tests {
		n, ok := heap.IsArrayIndex(tt.s)
		if ok != tt.valid {
			t.Errorf("IsArrayIndex(%q) ok = %v, want %v", tt.s, ok, tt.valid)
			continue
		}
		if ok && n != tt.n {
			t.Errorf("IsArrayIndex(%q) = %d, want %d", tt.s, n, tt.n)
		}
	}
}

func TestStringTableInterning(t *testing.T) {
	h, _ := heap.NewArena(4096)
	st := heap.NewStringTable()
	a, err := st.Intern(h, "shared")
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Intern(h, "shared")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("Intern did not dedupe: %v != %v", a, b)
	}
	c, _ := st.Intern(h, "other")
	if c == a {
		t.Error("distinct content interned to the same value")
	}
}
