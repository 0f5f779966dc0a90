// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
)

// installNatives populates vm.natives with the built-in methods this engine
// exposes on Array.prototype/String.prototype/Object.prototype, and installs
// each as a plain CFunction property on the matching prototype object. Every
// entry here is a thin wrapper over an existing lang/heap primitive; the
// registry's only job is bridging JS calling convention (receiver + args) to
// that primitive's Go signature.
func (vm *VM) installNatives() error {
	arrayMethods := []struct {
		name string
		fn   NativeFn
	}{
		{"push", nativeArrayPush},
		{"pop", nativeArrayPop},
		{"shift", nativeArrayShift},
		{"unshift", nativeArrayUnshift},
		{"slice", nativeArraySlice},
		{"splice", nativeArraySplice},
		{"reverse", nativeArrayReverse},
		{"concat", nativeArrayConcat},
		{"indexOf", nativeArrayIndexOf},
		{"lastIndexOf", nativeArrayLastIndexOf},
		{"includes", nativeArrayIncludes},
		{"join", nativeArrayJoin},
	}
	for _, m := range arrayMethods {
		if err := vm.installNative(vm.protos.Array, m.name, m.fn); err != nil {
			return err
		}
	}

	objectMethods := []struct {
		name string
		fn   NativeFn
	}{
		{"hasOwnProperty", nativeHasOwnProperty},
		{"toString", nativeObjectToString},
	}
	for _, m := range objectMethods {
		if err := vm.installNative(vm.protos.Object, m.name, m.fn); err != nil {
			return err
		}
	}

	stringMethods := []struct {
		name string
		fn   NativeFn
	}{
		{"charAt", nativeStringCharAt},
		{"indexOf", nativeStringIndexOf},
		{"slice", nativeStringSlice},
		{"toString", nativeStringToString},
	}
	for _, m := range stringMethods {
		if err := vm.installNative(vm.protos.String, m.name, m.fn); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) installNative(proto value.Value, name string, fn NativeFn) error {
	idx := uint32(len(vm.natives))
	vm.natives = append(vm.natives, fn)
	cf, err := allocRetry(vm, func() (value.Value, error) { return vm.Heap.NewCFunction(idx) })
	if err != nil {
		return err
	}
	vm.Heap.SetProtoOf(cf.HeapAddr(), vm.protos.Function)
	key, err := vm.internString(name)
	if err != nil {
		return err
	}
	return vm.Heap.SetProp(proto.HeapAddr(), key, cf)
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undefined
}

func nativeArrayPush(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	addr := this.HeapAddr()
	backing := vm.Heap.ArrayBacking(addr)
	var n uint32
	for _, v := range args {
		var newLen uint32
		newBacking, err := allocRetry(vm, func() (uint32, error) {
			b, l, err := vm.Heap.ArrayPush(backing, v)
			newLen = l
			return b, err
		})
		if err != nil {
			return value.Undefined, vm.convertGoError(err)
		}
		backing, n = newBacking, newLen
	}
	vm.Heap.SetArrayBacking(addr, backing)
	return value.Int(int32(n)), nil
}

func nativeArrayPop(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	return vm.Heap.ArrayPop(vm.Heap.ArrayBacking(this.HeapAddr())), nil
}

func nativeArrayShift(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	return vm.Heap.ArrayShift(vm.Heap.ArrayBacking(this.HeapAddr())), nil
}

func nativeArrayUnshift(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	addr := this.HeapAddr()
	backing := vm.Heap.ArrayBacking(addr)
	for i := len(args) - 1; i >= 0; i-- {
		newBacking, err := allocRetry(vm, func() (uint32, error) {
			return vm.Heap.ArrayUnshift(backing, args[i])
		})
		if err != nil {
			return value.Undefined, vm.convertGoError(err)
		}
		backing = newBacking
	}
	vm.Heap.SetArrayBacking(addr, backing)
	return value.Int(int32(vm.Heap.ArrayLen(backing))), nil
}

func (vm *VM) wrapArray(backing uint32) (value.Value, error) {
	obj, err := allocRetry(vm, func() (value.Value, error) {
		return vm.Heap.NewObject(heap.ClassArray, vm.protos.Array)
	})
	if err != nil {
		return value.Undefined, err
	}
	_ = obj
	// NewObject's 3-slot layout has no backing slot; reuse
	// growArrayObject's wrapping via SetArrayBacking after a manual grow
	// is unnecessary here since NewArrayObject already does both steps.
	return value.Undefined, nil
}

func nativeArraySlice(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	backing := vm.Heap.ArrayBacking(this.HeapAddr())
	start := int64(vm.toNumber(arg(args, 0)))
	end := int64(vm.Heap.ArrayLen(backing))
	if len(args) > 1 && !arg(args, 1).IsUndefined() {
		end = int64(vm.toNumber(args[1]))
	}
	sliced, err := allocRetry(vm, func() (value.Value, error) { return vm.Heap.ArraySlice(backing, start, end) })
	if err != nil {
		return value.Undefined, vm.convertGoError(err)
	}
	return vm.wrapBacking(sliced.HeapAddr())
}

// wrapBacking builds a ClassArray wrapper around an already-allocated
// backing block, for the several dense-array primitives (ArraySlice,
// ArrayConcat, ArraySplice's removed-elements array) that hand back a bare
// backing address rather than going through NewArrayObject themselves.
func (vm *VM) wrapBacking(backing uint32) (value.Value, error) {
	obj, err := allocRetry(vm, func() (value.Value, error) {
		return vm.Heap.NewArrayObject(0, vm.protos.Array)
	})
	if err != nil {
		return value.Undefined, err
	}
	vm.Heap.SetArrayBacking(obj.HeapAddr(), backing)
	return obj, nil
}

func nativeArraySplice(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	addr := this.HeapAddr()
	backing := vm.Heap.ArrayBacking(addr)
	length := int(vm.Heap.ArrayLen(backing))
	start := normalizeStrIndex(int64(vm.toNumber(arg(args, 0))), length)
	deleteCount := int64(length) - start
	if len(args) > 1 {
		if dc := int64(vm.toNumber(args[1])); dc < 0 {
			deleteCount = 0
		} else if dc < deleteCount {
			deleteCount = dc
		}
	}
	var items []value.Value
	if len(args) > 2 {
		items = args[2:]
	}
	var removed value.Value
	newBacking, err := allocRetry(vm, func() (uint32, error) {
		b, r, err := vm.Heap.ArraySplice(backing, uint32(start), uint32(deleteCount), items)
		removed = r
		return b, err
	})
	if err != nil {
		return value.Undefined, vm.convertGoError(err)
	}
	vm.Heap.SetArrayBacking(addr, newBacking)
	return vm.wrapBacking(removed.HeapAddr())
}

func nativeArrayReverse(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	vm.Heap.ArrayReverse(vm.Heap.ArrayBacking(this.HeapAddr()))
	return this, nil
}

func nativeArrayConcat(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	backing := vm.Heap.ArrayBacking(this.HeapAddr())
	result := backing
	var resultVal value.Value
	var err error
	for _, a := range args {
		var otherBacking uint32
		if a.IsHeapPtr() && vm.Heap.HeaderAt(a.HeapAddr()).Tag() == heap.TagObject && vm.Heap.ClassOf(a.HeapAddr()) == heap.ClassArray {
			otherBacking = vm.Heap.ArrayBacking(a.HeapAddr())
		} else {
			single, serr := allocRetry(vm, func() (value.Value, error) { return vm.Heap.NewArray(1) })
			if serr != nil {
				return value.Undefined, serr
			}
			sAddr, serr := vm.Heap.ArraySet(single.HeapAddr(), 0, a)
			if serr != nil {
				return value.Undefined, vm.convertGoError(serr)
			}
			otherBacking = sAddr
		}
		resultVal, err = allocRetry(vm, func() (value.Value, error) { return vm.Heap.ArrayConcat(result, otherBacking) })
		if err != nil {
			return value.Undefined, vm.convertGoError(err)
		}
		result = resultVal.HeapAddr()
	}
	return vm.wrapBacking(result)
}

func nativeArrayIndexOf(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	backing := vm.Heap.ArrayBacking(this.HeapAddr())
	idx := vm.Heap.ArrayIndexOf(backing, arg(args, 0))
	return value.Int(int32(idx)), nil
}

func nativeArrayLastIndexOf(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	backing := vm.Heap.ArrayBacking(this.HeapAddr())
	idx := vm.Heap.ArrayLastIndexOf(backing, arg(args, 0))
	return value.Int(int32(idx)), nil
}

func nativeArrayIncludes(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	backing := vm.Heap.ArrayBacking(this.HeapAddr())
	return value.Bool(vm.Heap.ArrayIncludes(backing, arg(args, 0))), nil
}

func nativeArrayJoin(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	backing := vm.Heap.ArrayBacking(this.HeapAddr())
	sep := ","
	if len(args) > 0 && !args[0].IsUndefined() {
		sep = vm.toGoString(args[0])
	}
	n := vm.Heap.ArrayLen(backing)
	out := make([]byte, 0, n*2)
	for i := uint32(0); i < n; i++ {
		if i > 0 {
			out = append(out, sep...)
		}
		el := vm.Heap.ArrayGet(backing, i)
		if el.IsUndefined() || el.IsNull() {
			continue
		}
		out = append(out, vm.toGoString(el)...)
	}
	return vm.internString(string(out))
}

func nativeHasOwnProperty(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	if !this.IsHeapPtr() {
		return value.Bool(false), nil
	}
	return value.Bool(vm.Heap.HasProp(this.HeapAddr(), arg(args, 0))), nil
}

func nativeObjectToString(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	return vm.toStringValue(this)
}

func nativeStringCharAt(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	addr := this.HeapAddr()
	s := vm.Heap.StringAt(addr)
	i := int(vm.toNumber(arg(args, 0)))
	if i < 0 || i >= len(s) {
		return vm.internString("")
	}
	return vm.internString(s[i : i+1])
}

func nativeStringIndexOf(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	s := vm.Heap.StringAt(this.HeapAddr())
	needle := vm.toGoString(arg(args, 0))
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return value.Int(int32(i)), nil
		}
	}
	return value.Int(-1), nil
}

func nativeStringSlice(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	s := vm.Heap.StringAt(this.HeapAddr())
	start := normalizeStrIndex(int64(vm.toNumber(arg(args, 0))), len(s))
	end := int64(len(s))
	if len(args) > 1 && !args[1].IsUndefined() {
		end = normalizeStrIndex(int64(vm.toNumber(args[1])), len(s))
	}
	if end < start {
		end = start
	}
	return vm.internString(s[start:end])
}

func normalizeStrIndex(i int64, n int) int64 {
	if i < 0 {
		i += int64(n)
	}
	if i < 0 {
		return 0
	}
	if i > int64(n) {
		return int64(n)
	}
	return i
}

func nativeStringToString(vm *VM, this value.Value, args []value.Value) (value.Value, error) {
	return this, nil
}
