// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap

import "github.com/probechain/tinyjs/lang/value"

// NewFunctionBytecode allocates a TagFunctionBytecode block holding a
// compiled function's instruction bytes followed by its constant pool.
//
// Layout:
//
//	[0] Int(code length in bytes)
//	[1] Int(constant count)
//	[2 .. 2+codeWords)                packed code bytes, 4/word, little-endian
//	[2+codeWords .. 2+codeWords+nCst)  constant pool Values
func (h *Heap) NewFunctionBytecode(code []byte, consts []value.Value) (value.Value, error) {
	codeWords := (len(code) + 3) / 4
	addr, err := h.Alloc(TagFunctionBytecode, uint32(2+codeWords+len(consts)))
	if err != nil {
		return 0, err
	}
	h.setTableSlot(addr, 0, value.Int(int32(len(code))))
	h.setTableSlot(addr, 1, value.Int(int32(len(consts))))
	for i := 0; i < codeWords; i++ {
		var w uint32
		for j := 0; j < 4; j++ {
			idx := i*4 + j
			if idx < len(code) {
				w |= uint32(code[idx]) << (8 * j)
			}
		}
		h.SetWord(addr+3+uint32(i), w)
	}
	constBase := 2 + uint32(codeWords)
	for i, c := range consts {
		h.setTableSlot(addr, constBase+uint32(i), c)
	}
	return value.HeapPtr(addr), nil
}

// FunctionCode returns the raw instruction bytes of the TagFunctionBytecode
// block at addr.
func (h *Heap) FunctionCode(addr uint32) []byte {
	n := uint32(h.tableSlot(addr, 0).Int())
	codeWords := (n + 3) / 4
	buf := make([]byte, n)
	for i := uint32(0); i < codeWords; i++ {
		w := h.Word(addr + 3 + i)
		for j := uint32(0); j < 4; j++ {
			idx := i*4 + j
			if idx < n {
				buf[idx] = byte(w >> (8 * j))
			}
		}
	}
	return buf
}

// FunctionConstCount returns the number of constant-pool entries.
func (h *Heap) FunctionConstCount(addr uint32) uint32 {
	return uint32(h.tableSlot(addr, 1).Int())
}

// FunctionConstAt returns constant pool entry i.
func (h *Heap) FunctionConstAt(addr uint32, i uint32) value.Value {
	n := uint32(h.tableSlot(addr, 0).Int())
	codeWords := (n + 3) / 4
	return h.tableSlot(addr, 2+codeWords+i)
}

func (h *Heap) functionConstBase(addr uint32) uint32 {
	n := uint32(h.tableSlot(addr, 0).Int())
	return 2 + (n+3)/4
}

// A VarRef cell is a two-state closure upvalue (spec.md §3 "Closure"): while
// *attached* it aliases a live stack slot by address, so the frame still
// holding that slot and any closures over it observe the same writes; once
// the owning frame unwinds with the cell still reachable, it *detaches* by
// copying the slot's current value into the cell itself.
//
// Layout:
//
//	[0] Int(1) if attached, Int(0) if detached
//	[1] attached: Int(stack word address) | detached: the owned Value
const (
	varRefAttachedSlot = 0
	varRefPayloadSlot  = 1
)

// NewVarRefAttached allocates a VarRef cell bound to the live stack slot at
// stackAddr.
func (h *Heap) NewVarRefAttached(stackAddr uint32) (value.Value, error) {
	addr, err := h.Alloc(TagVarRef, 2)
	if err != nil {
		return 0, err
	}
	h.setTableSlot(addr, varRefAttachedSlot, value.Int(1))
	h.setTableSlot(addr, varRefPayloadSlot, value.Int(int32(stackAddr)))
	return value.HeapPtr(addr), nil
}

// NewVarRefDetached allocates a VarRef cell that owns initial directly,
// never aliasing a stack slot. Used for var-refs without a frame;
// VarRefDetach does not allocate one but turns an attached cell into this
// state in place.
func (h *Heap) NewVarRefDetached(initial value.Value) (value.Value, error) {
	addr, err := h.Alloc(TagVarRef, 2)
	if err != nil {
		return 0, err
	}
	h.setTableSlot(addr, varRefAttachedSlot, value.Int(0))
	h.setTableSlot(addr, varRefPayloadSlot, initial)
	return value.HeapPtr(addr), nil
}

func (h *Heap) varRefAttached(addr uint32) bool {
	return h.tableSlot(addr, varRefAttachedSlot).Int() != 0
}

// VarRefGet reads the current value of a VarRef cell: the live stack slot
// while attached, or the owned payload once detached.
func (h *Heap) VarRefGet(addr uint32) value.Value {
	if h.varRefAttached(addr) {
		stackAddr := uint32(h.tableSlot(addr, varRefPayloadSlot).Int())
		return h.Slot(stackAddr)
	}
	return h.tableSlot(addr, varRefPayloadSlot)
}

// VarRefSet writes v into a VarRef cell, through the stack slot while
// attached.
func (h *Heap) VarRefSet(addr uint32, v value.Value) {
	if h.varRefAttached(addr) {
		stackAddr := uint32(h.tableSlot(addr, varRefPayloadSlot).Int())
		h.SetSlot(stackAddr, v)
		return
	}
	h.setTableSlot(addr, varRefPayloadSlot, v)
}

// VarRefDetach snapshots an attached cell's current stack value into the
// cell itself and marks it detached; a no-op on an already-detached cell.
// Called when a frame unwinds while a closure still references one of its
// slots.
func (h *Heap) VarRefDetach(addr uint32) {
	if !h.varRefAttached(addr) {
		return
	}
	cur := h.VarRefGet(addr)
	h.setTableSlot(addr, varRefAttachedSlot, value.Int(0))
	h.setTableSlot(addr, varRefPayloadSlot, cur)
}

// NewClosure allocates a Closure-class object wrapping a function-bytecode
// reference and an upvalue array (each upvalue a VarRef Value).
func (h *Heap) NewClosure(fn value.Value, upvalues []value.Value) (value.Value, error) {
	arr, err := h.NewArray(uint32(len(upvalues)))
	if err != nil {
		return 0, err
	}
	arrAddr := arr.HeapAddr()
	for i, uv := range upvalues {
		arrAddr, err = h.ArraySet(arrAddr, uint32(i), uv)
		if err != nil {
			return 0, err
		}
	}
	obj, err := h.NewObject(ClassClosure, value.Null)
	if err != nil {
		return 0, err
	}
	addr := obj.HeapAddr()
	// Closures reuse the object's 3 generic slots for class/proto/props,
	// then carry two extra fixed slots for the function and upvalue array.
	// Re-allocate with room for the two extra slots up front.
	return h.growClosure(addr, fn, value.HeapPtr(arrAddr))
}

func (h *Heap) growClosure(addr uint32, fn, upvaluesArr value.Value) (value.Value, error) {
	class := h.tableSlot(addr, 0)
	proto := h.tableSlot(addr, 1)
	props := h.tableSlot(addr, 2)
	newAddr, err := h.Alloc(TagObject, 5)
	if err != nil {
		return 0, err
	}
	h.setTableSlot(newAddr, 0, class)
	h.setTableSlot(newAddr, 1, proto)
	h.setTableSlot(newAddr, 2, props)
	h.setTableSlot(newAddr, 3, fn)
	h.setTableSlot(newAddr, 4, upvaluesArr)
	return value.HeapPtr(newAddr), nil
}

// ClosureFunction returns the wrapped function-bytecode reference.
func (h *Heap) ClosureFunction(addr uint32) value.Value { return h.tableSlot(addr, 3) }

// ClosureUpvalues returns the heap address of the closure's upvalue array.
func (h *Heap) ClosureUpvalues(addr uint32) uint32 { return h.tableSlot(addr, 4).HeapAddr() }

// NewCFunction allocates a ClassCFunction object wrapping a native method
// index (resolved by lang/vm's dispatch table; this package has no
// knowledge of what the index means). Mirrors NewClosure/growClosure's
// shape: the generic 3-slot object grown by one fixed slot.
func (h *Heap) NewCFunction(nativeIndex uint32) (value.Value, error) {
	obj, err := h.NewObject(ClassCFunction, value.Null)
	if err != nil {
		return 0, err
	}
	return h.growCFunction(obj.HeapAddr(), nativeIndex)
}

func (h *Heap) growCFunction(addr uint32, nativeIndex uint32) (value.Value, error) {
	class := h.tableSlot(addr, 0)
	proto := h.tableSlot(addr, 1)
	props := h.tableSlot(addr, 2)
	newAddr, err := h.Alloc(TagObject, 4)
	if err != nil {
		return 0, err
	}
	h.setTableSlot(newAddr, 0, class)
	h.setTableSlot(newAddr, 1, proto)
	h.setTableSlot(newAddr, 2, props)
	h.setTableSlot(newAddr, 3, value.Int(int32(nativeIndex)))
	return value.HeapPtr(newAddr), nil
}

// CFunctionIndex returns the native method index wrapped at addr.
func (h *Heap) CFunctionIndex(addr uint32) uint32 { return uint32(h.tableSlot(addr, 3).Int()) }
