// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package compiler_test

import (
	"fmt"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"

	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/compiler"
)

var arithOps = []string{"+", "-", "*", "/", "%"}

// randomArithSource builds a syntactically valid "a OP b OP c ...;" statement
// from a gofuzz-driven sequence of small integers and operator picks,
// exercising §4.I's precedence-climbing Additive/Multiplicative levels
// without ever emitting a Call or Closure (whose Pop is dynamic and would
// make this checker's static Pop/Push replay meaningless).
func randomArithSource(f *fuzz.Fuzzer) string {
	var nums []int8
	var ops []uint8
	f.NilChance(0).NumElements(2, 12).Fuzz(&nums)
	f.NilChance(0).NumElements(len(nums)-1, len(nums)-1).Fuzz(&ops)

	var b strings.Builder
	fmt.Fprintf(&b, "%d", nums[0])
	for i := 1; i < len(nums); i++ {
		op := arithOps[int(ops[i-1])%len(arithOps)]
		fmt.Fprintf(&b, " %s %d", op, nums[i])
	}
	b.WriteString(";")
	return b.String()
}

// replayStackDepth walks fn's bytecode applying each opcode's documented
// static Pop/Push (spec.md §4.J), tracking the running depth and its
// minimum. It fails the opcode it encounters a dynamic-pop instruction
// (Call/Closure/CallMethod/ArrayFrom), since arithmetic-only sources never
// emit those.
func replayStackDepth(t *testing.T, fn *bytecode.Function) (depth int, minDepth int) {
	t.Helper()
	code := fn.Code
	pc := uint32(0)
	for pc < uint32(len(code)) {
		op := bytecode.Op(code[pc])
		info := bytecode.GetInfo(op)
		if info.Pop < 0 {
			t.Fatalf("unexpected dynamic-pop opcode %s in arithmetic-only program", op)
		}
		depth -= info.Pop
		if depth < minDepth {
			minDepth = depth
		}
		depth += info.Push
		pc += uint32(info.Size)
	}
	return depth, minDepth
}

// TestArithmeticStackDeltaNeverUnderflows is spec.md §8's property (S9): for
// any compiled arithmetic expression statement, replaying every opcode's
// documented stack delta must never go negative, and the expression
// statement's value plus its trailing Drop/ReturnUndef must net to exactly
// zero outstanding values.
func TestArithmeticStackDeltaNeverUnderflows(t *testing.T) {
	seed := int64(1)
	for i := 0; i < 200; i++ {
		f := fuzz.NewWithSeed(seed)
		seed++
		src := randomArithSource(f)

		fn, err := compiler.Compile("fuzz.js", src)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		depth, minDepth := replayStackDepth(t, fn)
		if minDepth < 0 {
			t.Fatalf("Compile(%q): stack depth went negative (min %d)", src, minDepth)
		}
		if depth != 0 {
			t.Fatalf("Compile(%q): ended with net stack depth %d, want 0", src, depth)
		}
	}
}
