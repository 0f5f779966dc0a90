// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package value_test

import (
	"testing"

	"github.com/probechain/tinyjs/lang/value"
)

func TestIntRoundTrip(t *testing.T) {
	for _, n := range []int32{0, 1, -1, 7, -7, value.MaxInt, value.MinInt} {
		v := value.Int(n)
		if !v.IsInt() {
			t.Fatalf("Int(%d).IsInt() = false", n)
		}
		if got := v.Int(); got != n {
			t.Errorf("Int(%d) round-trip = %d", n, got)
		}
	}
}

func TestHeapPtrRoundTrip(t *testing.T) {
	for _, addr := range []uint32{0, 1, 1024, 0xFFFFF} {
		v := value.HeapPtr(addr)
		if !v.IsHeapPtr() {
			t.Fatalf("HeapPtr(%d).IsHeapPtr() = false", addr)
		}
		if v.IsInt() {
			t.Fatalf("HeapPtr(%d).IsInt() = true", addr)
		}
		if got := v.HeapAddr(); got != addr {
			t.Errorf("HeapPtr(%d) round-trip = %d", addr, got)
		}
	}
}

func TestBoolSingletons(t *testing.T) {
	if !value.Bool(true).Bool() {
		t.Error("Bool(true).Bool() = false")
	}
	if value.Bool(false).Bool() {
		t.Error("Bool(false).Bool() = true")
	}
	if !value.Bool(true).IsBool() || !value.Bool(false).IsBool() {
		t.Error("IsBool false for boolean value")
	}
}

func TestSingletons(t *testing.T) {
	cases := []struct {
		name string
		v    value.Value
		kind value.Kind
	}{
		{"Null", value.Null, value.KindNull},
		{"Undefined", value.Undefined, value.KindUndefined},
		{"Exception", value.Exception, value.KindException},
		{"Uninitialized", value.Uninitialized, value.KindUninitialized},
	}
	for _, tt := range cases {
		if tt.v.Kind() != tt.kind {
			t.Errorf("%s.Kind() = %v, want %v", tt.name, tt.v.Kind(), tt.kind)
		}
	}
	// Singletons must be pairwise distinct words.
	seen := map[value.Value]string{}
	for _, tt := range cases {
		if prev, ok := seen[tt.v]; ok {
			t.Errorf("%s and %s share the same word", tt.name, prev)
		}
		seen[tt.v] = tt.name
	}
}

func TestShortFuncAndStringConst(t *testing.T) {
	f := value.ShortFunc(42)
	if !f.IsShortFunc() || f.ShortFuncIndex() != 42 {
		t.Errorf("ShortFunc(42) round-trip failed: %+v", f)
	}
	s := value.StringConst(7)
	if !s.IsStringConst() || s.StringConstIndex() != 7 {
		t.Errorf("StringConst(7) round-trip failed: %+v", s)
	}
}

func TestIndexedReferenceMarkers(t *testing.T) {
	for _, marker := range []value.Value{value.ArrayIndexMarker, value.ObjectIndexMarker, value.IteratorIndexMarker} {
		v := value.IndexedReference(5, marker)
		if !v.IsIndexedReference() {
			t.Fatalf("marker %d: IsIndexedReference() = false", marker)
		}
		if v.IndexedReferenceIndex() != 5 {
			t.Errorf("marker %d: index = %d, want 5", marker, v.IndexedReferenceIndex())
		}
		switch marker {
		case value.ArrayIndexMarker:
			if !v.IsArrayIndexRef() {
				t.Error("expected array index ref")
			}
		case value.ObjectIndexMarker:
			if !v.IsObjectIndexRef() {
				t.Error("expected object index ref")
			}
		case value.IteratorIndexMarker:
			if !v.IsIteratorIndexRef() {
				t.Error("expected iterator index ref")
			}
		}
	}
}

func TestTruthy(t *testing.T) {
	truthy := []value.Value{value.Int(1), value.Int(-1), value.Bool(true), value.HeapPtr(0)}
	falsy := []value.Value{value.Int(0), value.Bool(false), value.Null, value.Undefined}
	for _, v := range truthy {
		if !v.Truthy() {
			t.Errorf("%v.Truthy() = false, want true", v)
		}
	}
	for _, v := range falsy {
		if v.Truthy() {
			t.Errorf("%v.Truthy() = true, want false", v)
		}
	}
}

func TestStrictEquals(t *testing.T) {
	if !value.Int(5).StrictEquals(value.Int(5)) {
		t.Error("Int(5) !== Int(5)")
	}
	if value.Int(5).StrictEquals(value.Int(6)) {
		t.Error("Int(5) === Int(6)")
	}
	if value.Int(0).StrictEquals(value.Bool(false)) {
		t.Error("Int(0) === Bool(false), types must differ")
	}
}
