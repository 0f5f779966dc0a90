// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap

import (
	"errors"

	"github.com/probechain/tinyjs/lang/value"
)

// MaxArrayLength is the largest length a dense array may hold.
const MaxArrayLength = 1<<30 - 1

// ErrArrayIndexOutOfRange is returned for an index of MaxArrayLength or more;
// MaxArrayLength itself is not a valid index.
var ErrArrayIndexOutOfRange = errors.New("heap: array index out of range")

// NewArray allocates a dense, no-hole TagValueArray-backed array with room
// for cap elements and an initial length of 0.
//
// Layout:
//
//	[0] Int(length)
//	[1] Int(capacity)
//	[2 .. 2+capacity)  elements (Undefined beyond length)
func (h *Heap) NewArray(cap uint32) (value.Value, error) {
	if cap < 4 {
		cap = 4
	}
	addr, err := h.Alloc(TagValueArray, 2+cap)
	if err != nil {
		return 0, err
	}
	h.setTableSlot(addr, 0, value.Int(0))
	h.setTableSlot(addr, 1, value.Int(int32(cap)))
	for i := uint32(0); i < cap; i++ {
		h.setTableSlot(addr, 2+i, value.Undefined)
	}
	return value.HeapPtr(addr), nil
}

func (h *Heap) ArrayLen(addr uint32) uint32 { return uint32(h.tableSlot(addr, 0).Int()) }
func (h *Heap) arrayCap(addr uint32) uint32 { return uint32(h.tableSlot(addr, 1).Int()) }

// ArrayGet returns element i, or Undefined if i is out of bounds.
func (h *Heap) ArrayGet(addr uint32, i uint32) value.Value {
	if i >= h.ArrayLen(addr) {
		return value.Undefined
	}
	return h.tableSlot(addr, 2+i)
}

// ArraySet stores v at index i, extending the array (filling any gap with
// Undefined) if i >= length, reallocating to a larger block if i exceeds
// capacity. Returns the array's (possibly new) block address.
func (h *Heap) ArraySet(addr uint32, i uint32, v value.Value) (uint32, error) {
	if i >= MaxArrayLength {
		return 0, ErrArrayIndexOutOfRange
	}
	if i >= h.arrayCap(addr) {
		var err error
		addr, err = h.growArray(addr, i+1)
		if err != nil {
			return 0, err
		}
	}
	if i >= h.ArrayLen(addr) {
		for j := h.ArrayLen(addr); j < i; j++ {
			h.setTableSlot(addr, 2+j, value.Undefined)
		}
		h.setTableSlot(addr, 0, value.Int(int32(i+1)))
	}
	h.setTableSlot(addr, 2+i, v)
	return addr, nil
}

func (h *Heap) growArray(addr uint32, minCap uint32) (uint32, error) {
	newCap := h.arrayCap(addr) * 2
	if newCap < minCap {
		newCap = minCap
	}
	newAddr, err := h.Alloc(TagValueArray, 2+newCap)
	if err != nil {
		return 0, err
	}
	length := h.ArrayLen(addr)
	h.setTableSlot(newAddr, 0, value.Int(int32(length)))
	h.setTableSlot(newAddr, 1, value.Int(int32(newCap)))
	for i := uint32(0); i < newCap; i++ {
		if i < length {
			h.setTableSlot(newAddr, 2+i, h.tableSlot(addr, 2+i))
		} else {
			h.setTableSlot(newAddr, 2+i, value.Undefined)
		}
	}
	return newAddr, nil
}

// ArrayPush appends v, returning the new array address and new length.
func (h *Heap) ArrayPush(addr uint32, v value.Value) (uint32, uint32, error) {
	length := h.ArrayLen(addr)
	newAddr, err := h.ArraySet(addr, length, v)
	if err != nil {
		return 0, 0, err
	}
	return newAddr, length + 1, nil
}

// ArrayPop removes and returns the last element, or Undefined if empty.
func (h *Heap) ArrayPop(addr uint32) value.Value {
	length := h.ArrayLen(addr)
	if length == 0 {
		return value.Undefined
	}
	v := h.tableSlot(addr, 2+length-1)
	h.setTableSlot(addr, 2+length-1, value.Undefined)
	h.setTableSlot(addr, 0, value.Int(int32(length-1)))
	return v
}

// ArraySetLength truncates or extends (with Undefined) the logical length.
func (h *Heap) ArraySetLength(addr uint32, newLen uint32) (uint32, error) {
	oldLen := h.ArrayLen(addr)
	if newLen > oldLen {
		if newLen > h.arrayCap(addr) {
			var err error
			addr, err = h.growArray(addr, newLen)
			if err != nil {
				return 0, err
			}
		}
		for i := oldLen; i < newLen; i++ {
			h.setTableSlot(addr, 2+i, value.Undefined)
		}
	} else {
		for i := newLen; i < oldLen; i++ {
			h.setTableSlot(addr, 2+i, value.Undefined)
		}
	}
	h.setTableSlot(addr, 0, value.Int(int32(newLen)))
	return addr, nil
}

// ArrayShift removes and returns the first element, shifting the rest down.
func (h *Heap) ArrayShift(addr uint32) value.Value {
	length := h.ArrayLen(addr)
	if length == 0 {
		return value.Undefined
	}
	v := h.tableSlot(addr, 2)
	for i := uint32(1); i < length; i++ {
		h.setTableSlot(addr, 2+i-1, h.tableSlot(addr, 2+i))
	}
	h.setTableSlot(addr, 2+length-1, value.Undefined)
	h.setTableSlot(addr, 0, value.Int(int32(length-1)))
	return v
}

// ArrayUnshift inserts v at the front, shifting existing elements up.
func (h *Heap) ArrayUnshift(addr uint32, v value.Value) (uint32, error) {
	length := h.ArrayLen(addr)
	addr, err := h.ArraySet(addr, length, value.Undefined) // ensure capacity for one more slot
	if err != nil {
		return 0, err
	}
	for i := length; i > 0; i-- {
		h.setTableSlot(addr, 2+i, h.tableSlot(addr, 2+i-1))
	}
	h.setTableSlot(addr, 2, v)
	return addr, nil
}

// ArraySlice returns a new array holding elements [start, end) after
// negative-index normalization against length (JS Array.prototype.slice
// semantics).
func (h *Heap) ArraySlice(addr uint32, start, end int64) (value.Value, error) {
	length := int64(h.ArrayLen(addr))
	start = normalizeIndex(start, length)
	end = normalizeIndex(end, length)
	if end < start {
		end = start
	}
	n := uint32(end - start)
	out, err := h.NewArray(n)
	if err != nil {
		return 0, err
	}
	outAddr := out.HeapAddr()
	for i := uint32(0); i < n; i++ {
		outAddr, err = h.ArraySet(outAddr, i, h.tableSlot(addr, 2+uint32(start)+i))
		if err != nil {
			return 0, err
		}
	}
	return value.HeapPtr(outAddr), nil
}

func normalizeIndex(i, length int64) int64 {
	if i < 0 {
		i += length
	}
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}

// ArrayReverse reverses the array's elements in place.
func (h *Heap) ArrayReverse(addr uint32) {
	length := h.ArrayLen(addr)
	for i, j := uint32(0), length; i < j; i, j = i+1, j-1 {
		a, b := h.tableSlot(addr, 2+i), h.tableSlot(addr, 2+j-1)
		h.setTableSlot(addr, 2+i, b)
		h.setTableSlot(addr, 2+j-1, a)
	}
}

// ArrayIndexOf returns the index of the first element strictly equal to v,
// or -1.
func (h *Heap) ArrayIndexOf(addr uint32, v value.Value) int64 {
	length := h.ArrayLen(addr)
	for i := uint32(0); i < length; i++ {
		if h.tableSlot(addr, 2+i).StrictEquals(v) {
			return int64(i)
		}
	}
	return -1
}

// ArrayLastIndexOf returns the index of the last element strictly equal to
// v, or -1.
func (h *Heap) ArrayLastIndexOf(addr uint32, v value.Value) int64 {
	length := h.ArrayLen(addr)
	for i := int64(length) - 1; i >= 0; i-- {
		if h.tableSlot(addr, 2+uint32(i)).StrictEquals(v) {
			return i
		}
	}
	return -1
}

// ArrayIncludes reports whether v appears in the array.
func (h *Heap) ArrayIncludes(addr uint32, v value.Value) bool {
	return h.ArrayIndexOf(addr, v) >= 0
}

// ArraySplice removes deleteCount elements starting at start (already
// normalized against length, JS Array.prototype.splice semantics) and
// inserts items in their place, returning the array's (possibly new) block
// address and a new array holding the removed elements.
func (h *Heap) ArraySplice(addr uint32, start, deleteCount uint32, items []value.Value) (uint32, value.Value, error) {
	length := h.ArrayLen(addr)
	if start > length {
		start = length
	}
	if deleteCount > length-start {
		deleteCount = length - start
	}

	removed, err := h.NewArray(deleteCount)
	if err != nil {
		return 0, 0, err
	}
	removedAddr := removed.HeapAddr()
	for i := uint32(0); i < deleteCount; i++ {
		removedAddr, err = h.ArraySet(removedAddr, i, h.tableSlot(addr, 2+start+i))
		if err != nil {
			return 0, 0, err
		}
	}

	tailLen := length - start - deleteCount
	newLen := start + uint32(len(items)) + tailLen
	tail := make([]value.Value, tailLen)
	for i := uint32(0); i < tailLen; i++ {
		tail[i] = h.tableSlot(addr, 2+start+deleteCount+i)
	}

	if newLen > h.arrayCap(addr) {
		addr, err = h.growArray(addr, newLen)
		if err != nil {
			return 0, 0, err
		}
	}
	for i, item := range items {
		h.setTableSlot(addr, 2+start+uint32(i), item)
	}
	for i, v := range tail {
		h.setTableSlot(addr, 2+start+uint32(len(items))+uint32(i), v)
	}
	for i := newLen; i < length; i++ {
		h.setTableSlot(addr, 2+i, value.Undefined)
	}
	h.setTableSlot(addr, 0, value.Int(int32(newLen)))

	return addr, value.HeapPtr(removedAddr), nil
}

// NewArrayObject wraps a fresh dense backing array in a stable-address
// ClassArray object, following the same "object plus fixed extra slots"
// convention NewClosure (two slots) and NewCFunction (one slot) use for their
// own payload. Every Value
// the VM ever exposes for a JS array is this wrapper's address, never the
// backing block's directly: growArray reallocates the backing block under
// mutation, and without this indirection every other reference to the same
// array would keep pointing at the stale, pre-growth address.
//
// Layout (4 slots, the generic 3 plus one):
//
//	[0] Int(classId) [1] proto [2] propsTable [3] backing (HeapPtr)
func (h *Heap) NewArrayObject(cap uint32, proto value.Value) (value.Value, error) {
	backing, err := h.NewArray(cap)
	if err != nil {
		return 0, err
	}
	obj, err := h.NewObject(ClassArray, proto)
	if err != nil {
		return 0, err
	}
	return h.growArrayObject(obj.HeapAddr(), backing)
}

func (h *Heap) growArrayObject(addr uint32, backing value.Value) (value.Value, error) {
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
	h.setTableSlot(newAddr, 3, backing)
	return value.HeapPtr(newAddr), nil
}

// ArrayBacking returns the backing TagValueArray block address wrapped by the
// ClassArray object at addr.
func (h *Heap) ArrayBacking(addr uint32) uint32 { return h.tableSlot(addr, 3).HeapAddr() }

// SetArrayBacking repoints the ClassArray object at addr at a new backing
// block, called whenever a mutation (ArraySet et al.) reallocates it.
func (h *Heap) SetArrayBacking(addr uint32, backingAddr uint32) {
	h.setTableSlot(addr, 3, value.HeapPtr(backingAddr))
}

// IsArrayObject reports whether addr is a ClassArray wrapper object.
func (h *Heap) IsArrayObject(addr uint32) bool {
	return h.HeaderAt(addr).Tag() == TagObject && h.ClassOf(addr) == ClassArray
}

// ArrayConcat returns a new array holding addr's elements followed by
// other's.
func (h *Heap) ArrayConcat(addr, other uint32) (value.Value, error) {
	la, lb := h.ArrayLen(addr), h.ArrayLen(other)
	out, err := h.NewArray(la + lb)
	if err != nil {
		return 0, err
	}
	outAddr := out.HeapAddr()
	for i := uint32(0); i < la; i++ {
		outAddr, err = h.ArraySet(outAddr, i, h.tableSlot(addr, 2+i))
		if err != nil {
			return 0, err
		}
	}
	for i := uint32(0); i < lb; i++ {
		outAddr, err = h.ArraySet(outAddr, la+i, h.tableSlot(other, 2+i))
		if err != nil {
			return 0, err
		}
	}
	return value.HeapPtr(outAddr), nil
}
