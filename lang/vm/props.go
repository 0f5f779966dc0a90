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

// isLengthKey reports whether key is the string "length", compared by
// content rather than by interning a fresh copy to test identity against.
func (vm *VM) isLengthKey(key value.Value) bool {
	return key.IsHeapPtr() &&
		vm.Heap.HeaderAt(key.HeapAddr()).Tag() == heap.TagString &&
		vm.Heap.StringAt(key.HeapAddr()) == "length"
}

// keyAsIndex reports whether key names a valid dense-array/string index,
// accepting both an inline integer and its canonical decimal string form.
func (vm *VM) keyAsIndex(key value.Value) (uint32, bool) {
	if key.IsInt() {
		n := key.Int()
		if n >= 0 {
			return uint32(n), true
		}
		return 0, false
	}
	if key.IsHeapPtr() && vm.Heap.HeaderAt(key.HeapAddr()).Tag() == heap.TagString {
		return heap.IsArrayIndex(vm.Heap.StringAt(key.HeapAddr()))
	}
	return 0, false
}

func (vm *VM) internString(s string) (value.Value, error) {
	return allocRetry(vm, func() (value.Value, error) { return vm.Strings.Intern(vm.Heap, s) })
}

// getFromProtoChain looks key up starting at the object addr and following
// ProtoOf links, invoking a getter if key is an accessor property.
// lang/heap's own GetProp never walks this chain; that is this function's
// entire job.
func (vm *VM) getFromProtoChain(start uint32, key value.Value) (value.Value, error) {
	cur := start
	for {
		if typ, ok := vm.Heap.PropTypeOf(cur, key); ok {
			if typ == heap.PropGetSet {
				getter, _, _ := vm.Heap.PropertyAccessor(cur, key)
				if getter.IsUndefined() {
					return value.Undefined, nil
				}
				return vm.callValue(getter, value.HeapPtr(start), nil)
			}
			v, _ := vm.Heap.GetProp(cur, key)
			return v, nil
		}
		proto := vm.Heap.ProtoOf(cur)
		if !proto.IsHeapPtr() {
			return value.Undefined, nil
		}
		cur = proto.HeapAddr()
	}
}

func (vm *VM) hasInChain(addr uint32, key value.Value) bool {
	cur := addr
	for {
		if vm.Heap.HasProp(cur, key) {
			return true
		}
		proto := vm.Heap.ProtoOf(cur)
		if !proto.IsHeapPtr() {
			return false
		}
		cur = proto.HeapAddr()
	}
}

// getProperty implements the read half of every property-access opcode:
// GetField/GetField2 (dotted access, key already a string constant) and
// GetArrayEl/GetArrayEl2 (computed access) both funnel through here, since
// both need the same receiver-kind dispatch (array/string fast paths, then
// the object's own table, then its prototype chain).
func (vm *VM) getProperty(recv, key value.Value) (value.Value, error) {
	if !recv.IsHeapPtr() {
		switch {
		case recv.IsUndefined() || recv.IsNull():
			return value.Undefined, vm.typeErrorThrow("cannot read property of %s", vm.toGoString(recv))
		case recv.IsInt():
			return vm.getFromProtoChain(vm.protos.Number.HeapAddr(), key)
		case recv.IsBool():
			return vm.getFromProtoChain(vm.protos.Boolean.HeapAddr(), key)
		default:
			return value.Undefined, nil
		}
	}
	addr := recv.HeapAddr()
	switch vm.Heap.HeaderAt(addr).Tag() {
	case heap.TagString:
		if vm.isLengthKey(key) {
			return value.Int(int32(vm.Heap.StringLen(addr))), nil
		}
		if idx, ok := vm.keyAsIndex(key); ok {
			n := vm.Heap.StringLen(addr)
			if idx >= n {
				return value.Undefined, nil
			}
			return vm.internString(vm.Heap.StringAt(addr)[idx : idx+1])
		}
		return vm.getFromProtoChain(vm.protos.String.HeapAddr(), key)
	case heap.TagFloat64:
		return vm.getFromProtoChain(vm.protos.Number.HeapAddr(), key)
	case heap.TagObject:
		if vm.Heap.ClassOf(addr) == heap.ClassArray {
			if vm.isLengthKey(key) {
				return value.Int(int32(vm.Heap.ArrayLen(vm.Heap.ArrayBacking(addr)))), nil
			}
			if idx, ok := vm.keyAsIndex(key); ok {
				return vm.Heap.ArrayGet(vm.Heap.ArrayBacking(addr), idx), nil
			}
		}
		return vm.getFromProtoChain(addr, key)
	default:
		return value.Undefined, nil
	}
}

func (vm *VM) getLength(recv value.Value) (value.Value, error) {
	if recv.IsHeapPtr() {
		addr := recv.HeapAddr()
		switch vm.Heap.HeaderAt(addr).Tag() {
		case heap.TagString:
			return value.Int(int32(vm.Heap.StringLen(addr))), nil
		case heap.TagObject:
			if vm.Heap.ClassOf(addr) == heap.ClassArray {
				return value.Int(int32(vm.Heap.ArrayLen(vm.Heap.ArrayBacking(addr)))), nil
			}
		}
	}
	lengthKey, err := vm.internString("length")
	if err != nil {
		return value.Undefined, err
	}
	return vm.getProperty(recv, lengthKey)
}

// findOwnSetter reports an accessor's setter half if key is defined directly
// on addr as a get/set pair. Inherited setters are intentionally not
// consulted: this engine's object model has no notion of a data property
// shadowing an inherited accessor, so only an object's own accessors ever
// intercept a plain assignment.
func (vm *VM) findOwnSetter(addr uint32, key value.Value) (value.Value, bool) {
	if typ, ok := vm.Heap.PropTypeOf(addr, key); ok && typ == heap.PropGetSet {
		_, setter, _ := vm.Heap.PropertyAccessor(addr, key)
		if !setter.IsUndefined() {
			return setter, true
		}
	}
	return value.Undefined, false
}

// arraySetIndex writes v at idx into the array object's backing block,
// repointing the wrapper at a new block if growth reallocated it.
func (vm *VM) arraySetIndex(objAddr uint32, idx uint32, v value.Value) error {
	backing := vm.Heap.ArrayBacking(objAddr)
	newBacking, err := allocRetry(vm, func() (uint32, error) { return vm.Heap.ArraySet(backing, idx, v) })
	if err != nil {
		return vm.convertGoError(err)
	}
	if newBacking != backing {
		vm.Heap.SetArrayBacking(objAddr, newBacking)
	}
	return nil
}

// setProperty implements the write half of every property-assignment
// opcode (PutField, PutArrayEl), with the same receiver-kind dispatch as
// getProperty. Assignment to a non-object receiver is a silent no-op, per
// ES5 non-strict-mode semantics.
func (vm *VM) setProperty(recv, key, val value.Value) error {
	if !recv.IsHeapPtr() {
		return nil
	}
	addr := recv.HeapAddr()
	if vm.Heap.HeaderAt(addr).Tag() != heap.TagObject {
		return nil
	}
	if vm.Heap.ClassOf(addr) == heap.ClassArray {
		if vm.isLengthKey(key) {
			n := uint32(toInt32(vm.toNumber(val)))
			backing := vm.Heap.ArrayBacking(addr)
			newBacking, err := allocRetry(vm, func() (uint32, error) { return vm.Heap.ArraySetLength(backing, n) })
			if err != nil {
				return err
			}
			if newBacking != backing {
				vm.Heap.SetArrayBacking(addr, newBacking)
			}
			return nil
		}
		if idx, ok := vm.keyAsIndex(key); ok {
			return vm.arraySetIndex(addr, idx, val)
		}
	}
	if setter, ok := vm.findOwnSetter(addr, key); ok {
		_, err := vm.callValue(setter, recv, []value.Value{val})
		return err
	}
	return vm.Heap.SetProp(addr, key, val)
}

func (vm *VM) hasProperty(recv, key value.Value) (bool, error) {
	if !recv.IsHeapPtr() {
		return false, nil
	}
	addr := recv.HeapAddr()
	switch vm.Heap.HeaderAt(addr).Tag() {
	case heap.TagObject:
		if vm.Heap.ClassOf(addr) == heap.ClassArray {
			if vm.isLengthKey(key) {
				return true, nil
			}
			if idx, ok := vm.keyAsIndex(key); ok {
				return idx < vm.Heap.ArrayLen(vm.Heap.ArrayBacking(addr)), nil
			}
		}
		return vm.hasInChain(addr, key), nil
	case heap.TagString:
		if vm.isLengthKey(key) {
			return true, nil
		}
		if idx, ok := vm.keyAsIndex(key); ok {
			return idx < vm.Heap.StringLen(addr), nil
		}
		return vm.hasInChain(vm.protos.String.HeapAddr(), key), nil
	}
	return false, nil
}

// deleteProperty never shrinks a dense array's length (ES5's delete on an
// array index leaves a hole, which this engine represents as Undefined
// rather than a true hole).
func (vm *VM) deleteProperty(recv, key value.Value) bool {
	if !recv.IsHeapPtr() {
		return true
	}
	addr := recv.HeapAddr()
	if vm.Heap.HeaderAt(addr).Tag() != heap.TagObject {
		return true
	}
	if vm.Heap.ClassOf(addr) == heap.ClassArray {
		if idx, ok := vm.keyAsIndex(key); ok {
			backing := vm.Heap.ArrayBacking(addr)
			if idx < vm.Heap.ArrayLen(backing) {
				_, _ = vm.Heap.ArraySet(backing, idx, value.Undefined)
			}
			return true
		}
	}
	return vm.Heap.DeleteProp(addr, key)
}

func (vm *VM) instanceOf(val, ctor value.Value) (bool, error) {
	if !ctor.IsHeapPtr() || vm.Heap.HeaderAt(ctor.HeapAddr()).Tag() != heap.TagObject ||
		!vm.Heap.ClassOf(ctor.HeapAddr()).IsFunction() {
		return false, vm.typeErrorThrow("right-hand side of instanceof is not callable")
	}
	if !val.IsHeapPtr() {
		return false, nil
	}
	protoKey, err := vm.internString("prototype")
	if err != nil {
		return false, err
	}
	protoVal, ok := vm.Heap.GetProp(ctor.HeapAddr(), protoKey)
	if !ok || !protoVal.IsHeapPtr() {
		protoVal = vm.protos.Object
	}
	cur := vm.Heap.ProtoOf(val.HeapAddr())
	for cur.IsHeapPtr() {
		if cur.HeapAddr() == protoVal.HeapAddr() {
			return true, nil
		}
		cur = vm.Heap.ProtoOf(cur.HeapAddr())
	}
	return false, nil
}

// callValue dispatches a call to either a user closure or a native
// (ClassCFunction) method, the two callable shapes lang/heap's object model
// supports.
func (vm *VM) callValue(callee, this value.Value, args []value.Value) (value.Value, error) {
	if !callee.IsHeapPtr() {
		return value.Undefined, vm.typeErrorThrow("value is not a function")
	}
	addr := callee.HeapAddr()
	if vm.Heap.HeaderAt(addr).Tag() != heap.TagObject {
		return value.Undefined, vm.typeErrorThrow("value is not a function")
	}
	switch vm.Heap.ClassOf(addr) {
	case heap.ClassClosure:
		return vm.invokeClosure(callee, this, args)
	case heap.ClassCFunction:
		idx := vm.Heap.CFunctionIndex(addr)
		if int(idx) >= len(vm.natives) {
			return value.Undefined, vm.internalErrorThrow("native function index out of range")
		}
		return vm.natives[idx](vm, this, args)
	default:
		return value.Undefined, vm.typeErrorThrow("value is not a function")
	}
}

// construct implements the `new` operator: a fresh object chained onto the
// callee's own "prototype" property (or Object.prototype, absent one) is
// passed as `this`; if the call itself returns an object, that supersedes
// the freshly allocated one, per ES5 [[Construct]].
func (vm *VM) construct(callee value.Value, args []value.Value) (value.Value, error) {
	if !callee.IsHeapPtr() || vm.Heap.HeaderAt(callee.HeapAddr()).Tag() != heap.TagObject ||
		!vm.Heap.ClassOf(callee.HeapAddr()).IsFunction() {
		return value.Undefined, vm.typeErrorThrow("value is not a constructor")
	}
	protoKey, err := vm.internString("prototype")
	if err != nil {
		return value.Undefined, err
	}
	proto, ok := vm.Heap.GetProp(callee.HeapAddr(), protoKey)
	if !ok || !proto.IsHeapPtr() {
		proto = vm.protos.Object
	}
	newObj, err := allocRetry(vm, func() (value.Value, error) { return vm.Heap.NewObject(heap.ClassObject, proto) })
	if err != nil {
		return value.Undefined, err
	}
	result, err := vm.callValue(callee, newObj, args)
	if err != nil {
		return value.Undefined, err
	}
	if result.IsHeapPtr() && vm.Heap.HeaderAt(result.HeapAddr()).Tag() == heap.TagObject {
		return result, nil
	}
	return newObj, nil
}

// newRegexp builds a minimal RegExp-shaped object carrying its source and
// flags as plain properties; this engine's ES5 subset has no pattern
// matcher, so /re/.test(...) and friends are Non-goals left unimplemented
// (see DESIGN.md) rather than backed by a real regex engine.
func (vm *VM) newRegexp(src, flags value.Value) (value.Value, error) {
	obj, err := allocRetry(vm, func() (value.Value, error) {
		return vm.Heap.NewObject(heap.ClassRegExp, vm.protos.Object)
	})
	if err != nil {
		return value.Undefined, err
	}
	srcKey, err := vm.internString("source")
	if err != nil {
		return value.Undefined, err
	}
	flagsKey, err := vm.internString("flags")
	if err != nil {
		return value.Undefined, err
	}
	if err := vm.Heap.SetProp(obj.HeapAddr(), srcKey, src); err != nil {
		return value.Undefined, err
	}
	if err := vm.Heap.SetProp(obj.HeapAddr(), flagsKey, flags); err != nil {
		return value.Undefined, err
	}
	return obj, nil
}

// ---- for-in / for-of iteration ----------------------------------------------
//
// Both loop forms compile down to the same OpForOfNext opcode, so ForInStart
// and ForOfStart both normalize their source into the same shape: a 2-slot
// internal array [items, nextIndex], where items is itself a plain array of
// the values to yield (property-name strings for for-in, elements for
// for-of). Neither the wrapper nor the items array is ever a
// ClassArray-wrapped object; they are pure VM-internal state that never
// reaches a GetField/GetArrayEl opcode, so the plain TagValueArray backing
// lang/heap.NewArray returns is enough.

func (vm *VM) makeIterator(items []value.Value) (value.Value, error) {
	itemsArr, err := allocRetry(vm, func() (value.Value, error) { return vm.Heap.NewArray(uint32(len(items))) })
	if err != nil {
		return value.Undefined, err
	}
	itemsAddr := itemsArr.HeapAddr()
	for i, it := range items {
		itemsAddr, err = vm.Heap.ArraySet(itemsAddr, uint32(i), it)
		if err != nil {
			return value.Undefined, vm.convertGoError(err)
		}
	}
	iter, err := allocRetry(vm, func() (value.Value, error) { return vm.Heap.NewArray(2) })
	if err != nil {
		return value.Undefined, err
	}
	iterAddr := iter.HeapAddr()
	if iterAddr, err = vm.Heap.ArraySet(iterAddr, 0, value.HeapPtr(itemsAddr)); err != nil {
		return value.Undefined, vm.convertGoError(err)
	}
	if iterAddr, err = vm.Heap.ArraySet(iterAddr, 1, value.Int(0)); err != nil {
		return value.Undefined, vm.convertGoError(err)
	}
	return value.HeapPtr(iterAddr), nil
}

func (vm *VM) newForInIterator(obj value.Value) (value.Value, error) {
	var keys []value.Value
	if obj.IsHeapPtr() {
		addr := obj.HeapAddr()
		if vm.Heap.HeaderAt(addr).Tag() == heap.TagObject {
			if vm.Heap.ClassOf(addr) == heap.ClassArray {
				n := vm.Heap.ArrayLen(vm.Heap.ArrayBacking(addr))
				for i := uint32(0); i < n; i++ {
					k, err := vm.internString(uintToDecimal(i))
					if err != nil {
						return value.Undefined, err
					}
					keys = append(keys, k)
				}
			}
			keys = append(keys, vm.Heap.OwnKeys(addr)...)
		}
	}
	return vm.makeIterator(keys)
}

func (vm *VM) newForOfIterator(obj value.Value) (value.Value, error) {
	var items []value.Value
	if obj.IsHeapPtr() {
		addr := obj.HeapAddr()
		tag := vm.Heap.HeaderAt(addr).Tag()
		switch {
		case tag == heap.TagObject && vm.Heap.ClassOf(addr) == heap.ClassArray:
			backing := vm.Heap.ArrayBacking(addr)
			n := vm.Heap.ArrayLen(backing)
			for i := uint32(0); i < n; i++ {
				items = append(items, vm.Heap.ArrayGet(backing, i))
			}
		case tag == heap.TagString:
			s := vm.Heap.StringAt(addr)
			for i := 0; i < len(s); i++ {
				cv, err := vm.internString(s[i : i+1])
				if err != nil {
					return value.Undefined, err
				}
				items = append(items, cv)
			}
		}
	}
	return vm.makeIterator(items)
}

func (vm *VM) iterNext(it value.Value) (nextIt, val value.Value, done bool, err error) {
	addr := it.HeapAddr()
	itemsVal := vm.Heap.ArrayGet(addr, 0)
	idx := uint32(vm.Heap.ArrayGet(addr, 1).Int())
	itemsAddr := itemsVal.HeapAddr()
	n := vm.Heap.ArrayLen(itemsAddr)
	if idx >= n {
		return it, value.Undefined, true, nil
	}
	val = vm.Heap.ArrayGet(itemsAddr, idx)
	newAddr, err := vm.Heap.ArraySet(addr, 1, value.Int(int32(idx+1)))
	if err != nil {
		return it, value.Undefined, false, vm.convertGoError(err)
	}
	if newAddr != addr {
		it = value.HeapPtr(newAddr)
	}
	return it, val, false, nil
}

func uintToDecimal(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
