// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package bytecode_test

import (
	"reflect"
	"testing"

	"github.com/probechain/tinyjs/lang/bytecode"
)

// TestSerializeDeserializeRoundTrip exercises spec.md §8 invariant 5:
// deserialize(serialize(bc)) is structurally equal to bc, for every shape a
// real compile can produce (constants of every kind, a line table, nested
// functions).
func TestSerializeDeserializeRoundTrip(t *testing.T) {
	inner := &bytecode.Function{
		Name:         "inner",
		ArgCount:     1,
		LocalCount:   2,
		StackSize:    4,
		UpvalueCount: 1,
		Code:         []byte{1, 2, 3, 4, 5},
		Consts: []bytecode.Const{
			bytecode.IntConst(-7),
			bytecode.Float64Const(3.5),
		},
		SourceFile: "inner.js",
		Lines:      []bytecode.LineEntry{{PC: 0, Line: 1}, {PC: 3, Line: 2}},
	}
	fn := &bytecode.Function{
		Name:       "outer",
		ArgCount:   0,
		LocalCount: 1,
		StackSize:  8,
		Flags:      bytecode.FlagHasArguments,
		Code:       []byte{9, 8, 7},
		Consts: []bytecode.Const{
			bytecode.StringConst("hello"),
			bytecode.BoolConst(true),
			bytecode.BoolConst(false),
			bytecode.NullConst(),
			bytecode.UndefinedConst(),
			bytecode.StringConst(""),
		},
		SourceFile: "outer.js",
		Lines:      []bytecode.LineEntry{{PC: 0, Line: 10}},
		Inner:      []*bytecode.Function{inner},
	}

	data := bytecode.Serialize(fn)
	got, err := bytecode.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(fn, got) {
		t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", fn, got)
	}
}

func TestDeserializeTruncated(t *testing.T) {
	fn := &bytecode.Function{Name: "f", Code: []byte{1, 2, 3}}
	data := bytecode.Serialize(fn)
	for n := 0; n < len(data); n++ {
		if _, err := bytecode.Deserialize(data[:n]); err == nil {
			t.Fatalf("Deserialize(truncated at %d) succeeded, want error", n)
		}
	}
}

func TestHasArguments(t *testing.T) {
	fn := &bytecode.Function{Flags: bytecode.FlagHasArguments}
	if !fn.HasArguments() {
		t.Error("HasArguments() = false, want true")
	}
	fn2 := &bytecode.Function{}
	if fn2.HasArguments() {
		t.Error("HasArguments() = true, want false")
	}
}

func TestLineForPC(t *testing.T) {
	fn := &bytecode.Function{Lines: []bytecode.LineEntry{
		{PC: 0, Line: 1},
		{PC: 5, Line: 2},
		{PC: 12, Line: 3},
	}}
	tests := []struct {
		pc   uint32
		want uint32
	}{
		{0, 1}, {4, 1}, {5, 2}, {11, 2}, {12, 3}, {100, 3},
	}
	for _, tt := range tests {
		if got := fn.LineForPC(tt.pc); got != tt.want {
			t.Errorf("LineForPC(%d) = %d, want %d", tt.pc, got, tt.want)
		}
	}
}
