// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"math"
	"strconv"

	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
)

// toNumber implements the ES5-subset ToNumber abstract operation over the
// value kinds this engine represents: Int and boxed Float64 pass through,
// Bool/Null/Undefined coerce per spec, strings parse as a decimal literal
// (math.NaN on failure), and
// objects/arrays are not numeric (NaN).
func (vm *VM) toNumber(v value.Value) float64 {
	switch {
	case v.IsInt():
		return float64(v.Int())
	case v.IsHeapPtr():
		addr := v.HeapAddr()
		switch vm.Heap.HeaderAt(addr).Tag() {
		case heap.TagFloat64:
			return vm.Heap.Float64At(addr)
		case heap.TagString:
			s := vm.Heap.StringAt(addr)
			if s == "" {
				return 0
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return math.NaN()
			}
			return f
		default:
			return math.NaN()
		}
	case v.IsBool():
		if v.Bool() {
			return 1
		}
		return 0
	case v.IsNull():
		return 0
	default:
		return math.NaN()
	}
}

// numberValue boxes f back into a Value, using the inline Int31 encoding
// when the result is an exact integer within range and a heap Float64
// otherwise (spec.md §9's resolution of the source's unfinished float
// handling).
func (vm *VM) numberValue(f float64) (value.Value, error) {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && f >= value.MinInt && f <= value.MaxInt {
		return value.Int(int32(f)), nil
	}
	return vm.Heap.NewFloat64(f)
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(int64(f))
}

func toUint32(f float64) uint32 { return uint32(toInt32(f)) }

// toBoolean implements ToBoolean, delegating non-heap kinds to value.Truthy
// and treating every heap reference (object, array, string, closure) as
// truthy unless it's an empty string.
func (vm *VM) toBoolean(v value.Value) bool {
	if v.IsHeapPtr() {
		addr := v.HeapAddr()
		if vm.Heap.HeaderAt(addr).Tag() == heap.TagString {
			return vm.Heap.StringLen(addr) != 0
		}
		return true
	}
	return v.Truthy()
}

// toStringValue implements ToString, returning an interned string Value.
func (vm *VM) toStringValue(v value.Value) (value.Value, error) {
	return vm.Strings.Intern(vm.Heap, vm.toGoString(v))
}

// toGoString renders v the way ToString would, without interning.
func (vm *VM) toGoString(v value.Value) string {
	switch {
	case v.IsInt():
		return strconv.FormatInt(int64(v.Int()), 10)
	case v.IsHeapPtr():
		addr := v.HeapAddr()
		switch vm.Heap.HeaderAt(addr).Tag() {
		case heap.TagString:
			return vm.Heap.StringAt(addr)
		case heap.TagFloat64:
			return formatFloat(vm.Heap.Float64At(addr))
		case heap.TagObject:
			switch vm.Heap.ClassOf(addr) {
			case heap.ClassClosure, heap.ClassCFunction:
				return "function () { [native code] }"
			case heap.ClassArray:
				return vm.arrayToGoString(vm.Heap.ArrayBacking(addr))
			default:
				return "[object Object]"
			}
		}
		return ""
	case v.IsBool():
		if v.Bool() {
			return "true"
		}
		return "false"
	case v.IsNull():
		return "null"
	case v.IsUndefined():
		return "undefined"
	default:
		return v.String()
	}
}

func (vm *VM) arrayToGoString(addr uint32) string {
	n := vm.Heap.ArrayLen(addr)
	out := make([]byte, 0, n*2)
	for i := uint32(0); i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		el := vm.Heap.ArrayGet(addr, i)
		if el.IsUndefined() || el.IsNull() {
			continue
		}
		out = append(out, vm.toGoString(el)...)
	}
	return string(out)
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// typeOf implements the typeof operator's string result.
func (vm *VM) typeOf(v value.Value) (value.Value, error) {
	var s string
	switch {
	case v.IsUndefined(), v.IsUninitialized():
		s = "undefined"
	case v.IsNull():
		s = "object"
	case v.IsBool():
		s = "boolean"
	case v.IsInt():
		s = "number"
	case v.IsHeapPtr():
		addr := v.HeapAddr()
		switch vm.Heap.HeaderAt(addr).Tag() {
		case heap.TagFloat64:
			s = "number"
		case heap.TagString:
			s = "string"
		case heap.TagObject:
			if vm.Heap.ClassOf(addr).IsFunction() {
				s = "function"
			} else {
				s = "object"
			}
		default:
			s = "object"
		}
	default:
		s = "undefined"
	}
	if cached, ok := vm.typeStrings[s]; ok {
		return cached, nil
	}
	iv, err := vm.Strings.Intern(vm.Heap, s)
	if err != nil {
		return 0, err
	}
	vm.typeStrings[s] = iv
	return iv, nil
}

// looseEquals implements the ES5 == operator's coercion rules restricted to
// the value kinds this engine supports.
func (vm *VM) looseEquals(a, b value.Value) bool {
	if a.Kind() == b.Kind() || (a.IsHeapPtr() && b.IsHeapPtr()) {
		return vm.strictEquals(a, b)
	}
	if (a.IsNull() && b.IsUndefined()) || (a.IsUndefined() && b.IsNull()) {
		return true
	}
	aNum, aIsNum := vm.numericKind(a)
	bNum, bIsNum := vm.numericKind(b)
	if aIsNum && bIsNum {
		return aNum == bNum
	}
	if aIsNum != bIsNum {
		return vm.toNumber(a) == vm.toNumber(b)
	}
	return false
}

func (vm *VM) numericKind(v value.Value) (float64, bool) {
	if v.IsInt() || v.IsBool() {
		return vm.toNumber(v), true
	}
	if v.IsHeapPtr() {
		tag := vm.Heap.HeaderAt(v.HeapAddr()).Tag()
		if tag == heap.TagFloat64 || tag == heap.TagString {
			return vm.toNumber(v), true
		}
	}
	return 0, false
}

// strictEquals implements === with heap-aware content comparison for
// strings (two interned-but-distinct string blocks with equal content are
// still ===) and boxed floats (NaN !== NaN), falling back to value.Value's
// word-identity check for everything else.
func (vm *VM) strictEquals(a, b value.Value) bool {
	if a.IsHeapPtr() && b.IsHeapPtr() {
		aAddr, bAddr := a.HeapAddr(), b.HeapAddr()
		aTag, bTag := vm.Heap.HeaderAt(aAddr).Tag(), vm.Heap.HeaderAt(bAddr).Tag()
		if aTag != bTag {
			return false
		}
		switch aTag {
		case heap.TagString:
			return vm.Heap.StringAt(aAddr) == vm.Heap.StringAt(bAddr)
		case heap.TagFloat64:
			fa, fb := vm.Heap.Float64At(aAddr), vm.Heap.Float64At(bAddr)
			return fa == fb
		default:
			return aAddr == bAddr
		}
	}
	return a.StrictEquals(b)
}
