// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap

import "github.com/probechain/tinyjs/lang/value"

// ClassId identifies the runtime class of a TagObject block.
type ClassId uint32

const (
	ClassObject ClassId = iota
	ClassArray
	ClassCFunction
	ClassClosure
	ClassNumber
	ClassBoolean
	ClassString
	ClassDate
	ClassRegExp
	ClassError
	ClassEvalError
	ClassRangeError
	ClassReferenceError
	ClassSyntaxError
	ClassTypeError
	ClassURIError
	ClassInternalError
	ClassArrayBuffer
	ClassTypedArray
	ClassUser = 28
)

// IsError reports whether id is one of the built-in error classes.
func (id ClassId) IsError() bool { return id >= ClassError && id <= ClassInternalError }

// IsFunction reports whether id identifies a callable object.
func (id ClassId) IsFunction() bool { return id == ClassCFunction || id == ClassClosure }

// NewObject allocates a plain TagObject block with the given class, prototype
// (value.Null for none), and an empty property table.
//
// Layout (3 Value-sized payload slots, scanned uniformly by the GC since all
// three are valid Values — class id is packed as an Int so the scan safely
// skips it):
//
//	[0] Int(classId)
//	[1] proto
//	[2] propsTable (HeapPtr into a TagValueArray property-table block)
func (h *Heap) NewObject(class ClassId, proto value.Value) (value.Value, error) {
	propsAddr, err := h.NewPropertyTable()
	if err != nil {
		return 0, err
	}
	addr, err := h.Alloc(TagObject, 3)
	if err != nil {
		return 0, err
	}
	h.setTableSlot(addr, 0, value.Int(int32(class)))
	h.setTableSlot(addr, 1, proto)
	h.setTableSlot(addr, 2, value.HeapPtr(propsAddr))
	return value.HeapPtr(addr), nil
}

// ClassOf returns the ClassId of the object at addr.
func (h *Heap) ClassOf(addr uint32) ClassId { return ClassId(h.tableSlot(addr, 0).Int()) }

// ProtoOf returns the prototype reference of the object at addr.
func (h *Heap) ProtoOf(addr uint32) value.Value { return h.tableSlot(addr, 1) }

// SetProtoOf sets the prototype reference of the object at addr.
func (h *Heap) SetProtoOf(addr uint32, proto value.Value) { h.setTableSlot(addr, 1, proto) }

// propsAddrOf returns the property-table block address for the object at addr.
func (h *Heap) propsAddrOf(addr uint32) uint32 { return h.tableSlot(addr, 2).HeapAddr() }

// GetProp looks up key on the object at addr (no prototype-chain walk; that
// is a VM-level concern built on top of this).
func (h *Heap) GetProp(addr uint32, key value.Value) (value.Value, bool) {
	return h.PropGet(h.propsAddrOf(addr), key)
}

// SetProp sets key on the object at addr, transparently migrating to a
// larger property-table block if needed.
func (h *Heap) SetProp(addr uint32, key, val value.Value) error {
	newPropsAddr, err := h.PropSet(h.propsAddrOf(addr), key, val)
	if err != nil {
		return err
	}
	h.setTableSlot(addr, 2, value.HeapPtr(newPropsAddr))
	return nil
}

// DeleteProp removes key from the object at addr.
func (h *Heap) DeleteProp(addr uint32, key value.Value) bool {
	return h.PropDelete(h.propsAddrOf(addr), key)
}

// PropTypeOf reports the storage kind of key on the object at addr, for
// callers (lang/vm's property opcodes) that need to tell a GetSet property
// apart from a plain value before deciding whether to invoke a getter.
func (h *Heap) PropTypeOf(addr uint32, key value.Value) (PropertyType, bool) {
	return h.PropType(h.propsAddrOf(addr), key)
}

// HasProp reports whether the object at addr owns key directly.
func (h *Heap) HasProp(addr uint32, key value.Value) bool {
	return h.PropHas(h.propsAddrOf(addr), key)
}

// OwnKeys returns the object's own property keys.
func (h *Heap) OwnKeys(addr uint32) []value.Value {
	return h.PropKeys(h.propsAddrOf(addr))
}

// ClassCounts tallies allocated heap blocks (unreachable blocks not yet
// collected included) by the categories the §6 memory-stats
// interface reports: objects, arrays, strings, closures, error objects,
// regexps, and typed arrays. Strings are counted by memory tag (every
// TagString block, boxed or not); the rest are counted by ClassId among
// TagObject blocks, since Array/Closure/Error/RegExp/TypedArray are all
// class-tagged Object payloads (spec.md §3 "Object").
type ClassCounts struct {
	Objects     uint64
	Arrays      uint64
	Strings     uint64
	Closures    uint64
	Errors      uint64
	RegExps     uint64
	TypedArrays uint64
}

// CountClasses walks the heap once and tallies ClassCounts for the embedder
// MemoryStats surface (spec.md §6).
func (h *Heap) CountClasses() ClassCounts {
	var c ClassCounts
	it := h.IterBlocks()
	for {
		addr, hdr, ok := it.Next()
		if !ok {
			break
		}
		switch hdr.Tag() {
		case TagString:
			c.Strings++
		case TagObject:
			switch class := h.ClassOf(addr); {
			case class == ClassArray:
				c.Arrays++
			case class == ClassClosure:
				c.Closures++
			case class.IsError():
				c.Errors++
			case class == ClassRegExp:
				c.RegExps++
			case class == ClassTypedArray:
				c.TypedArrays++
			default:
				c.Objects++
			}
		}
	}
	return c
}

// accessorPair packs a getter/setter Value pair, either half Undefined if
// only one was ever defined, as a 2-element TagValueArray.
func (h *Heap) accessorPair(addr uint32, key value.Value) (getter, setter value.Value, ok bool) {
	typ, present := h.PropType(h.propsAddrOf(addr), key)
	if !present || typ != PropGetSet {
		return value.Undefined, value.Undefined, false
	}
	v, _ := h.GetProp(addr, key)
	pairAddr := v.HeapAddr()
	return h.ArrayGet(pairAddr, 0), h.ArrayGet(pairAddr, 1), true
}

// DefineAccessor installs getter and/or setter for key on the object at addr
// as a PropGetSet property, preserving whichever half (if any) was already
// defined when only one of getter/setter is supplied (value.Undefined for
// the other).
func (h *Heap) DefineAccessor(addr uint32, key, getter, setter value.Value) error {
	oldGetter, oldSetter, had := h.accessorPair(addr, key)
	if had {
		if getter.IsUndefined() {
			getter = oldGetter
		}
		if setter.IsUndefined() {
			setter = oldSetter
		}
	}
	pair, err := h.NewArray(2)
	if err != nil {
		return err
	}
	pairAddr := pair.HeapAddr()
	if pairAddr, err = h.ArraySet(pairAddr, 0, getter); err != nil {
		return err
	}
	if pairAddr, err = h.ArraySet(pairAddr, 1, setter); err != nil {
		return err
	}
	newPropsAddr, err := h.PropSetTyped(h.propsAddrOf(addr), key, value.HeapPtr(pairAddr), PropGetSet)
	if err != nil {
		return err
	}
	h.setTableSlot(addr, 2, value.HeapPtr(newPropsAddr))
	return nil
}

// PropertyAccessor returns the getter/setter pair for key on the object at
// addr, if it was defined via DefineAccessor.
func (h *Heap) PropertyAccessor(addr uint32, key value.Value) (getter, setter value.Value, ok bool) {
	return h.accessorPair(addr, key)
}

// NewError allocates an Error-class object carrying a "message" string
// property; no stack property is set.
func (h *Heap) NewError(class ClassId, st *StringTable, message string, proto value.Value) (value.Value, error) {
	v, err := h.NewObject(class, proto)
	if err != nil {
		return 0, err
	}
	msgVal, err := st.Intern(h, message)
	if err != nil {
		return 0, err
	}
	msgKey, err := st.Intern(h, "message")
	if err != nil {
		return 0, err
	}
	if err := h.SetProp(v.HeapAddr(), msgKey, msgVal); err != nil {
		return 0, err
	}
	return v, nil
}
