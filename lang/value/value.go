// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package value implements the tagged one-word JS value representation:
// every value is a single uint32, either a 31-bit signed integer or a tagged
// reference (heap pointer, short float, or one of the "special" subtags).
//
// Bit layout (bit 0 is the least significant bit of the word):
//
//	bit0 == 0                      -> Int31, payload = word >> 1 (arithmetic)
//	bit0 == 1, bit1 == 0, bit2 == 0 -> HeapPtr, addr = word >> 3
//	bit0 == 1, bit1 == 0, bit2 == 1 -> ShortFloat (reserved, unimplemented)
//	bit0 == 1, bit1 == 1            -> Special, subtag = bits [2:5), payload = word >> 5
//
// The eight Special subtags are Bool, Null, Undefined, Exception,
// Uninitialized, ShortFunc, StringConst, and IndexedReference. An
// IndexedReference additionally carries one of three absolute marker bits
// (ArrayIndexMarker/ObjectIndexMarker/IteratorIndexMarker) so its kind can be
// tested against the raw word without unpacking the payload first.
package value

import "fmt"

// Value is a single tagged JS value word.
type Value uint32

// Kind identifies which alternative of the tagged union a Value holds.
type Kind uint8

const (
	KindInt Kind = iota
	KindHeapPtr
	KindShortFloat
	KindBool
	KindNull
	KindUndefined
	KindException
	KindUninitialized
	KindShortFunc
	KindStringConst
	KindIndexedReference
)

const (
	tagInt3     = 0b001 // low 3 bits when bit0=1,bit1=0,bit2=0: heap pointer
	tagFloat3   = 0b101 // low 3 bits when bit0=1,bit1=0,bit2=1: short float
	specialMask = 0b011 // low 2 bits == 11 identifies the Special group

	heapPtrShift = 3
	specialShift = 5
	subtagShift  = 2
	subtagMask   = 0x7
)

// Special subtags, packed into bits [2:5) of a Special value.
const (
	subtagBool Value = iota
	subtagNull
	subtagUndefined
	subtagException
	subtagUninitialized
	subtagShortFunc
	subtagStringConst
	subtagIndexedReference
)

// Indexed-reference marker bits: absolute positions within the 32-bit word,
// checked directly against the raw word without unshifting the payload.
const (
	ArrayIndexMarker    Value = 1 << 26
	ObjectIndexMarker   Value = 1 << 25
	IteratorIndexMarker Value = 1 << 24
)

// ---- Constructors -----------------------------------------------------------

// MaxInt and MinInt bound the representable 31-bit signed integer range.
const (
	MaxInt = 1<<30 - 1
	MinInt = -(1 << 30)
)

// Int returns the tagged integer value for n. n must fit in 31 bits
// (MinInt..MaxInt); callers outside that range should box a Float64 instead.
func Int(n int32) Value {
	return Value(uint32(n)<<1) &^ 1
}

func HeapPtr(addr uint32) Value {
	return Value(addr<<heapPtrShift) | tagInt3
}

// Bool returns the tagged boolean value.
func Bool(b bool) Value {
	p := Value(0)
	if b {
		p = 1
	}
	return makeSpecial(subtagBool, p)
}

// Null, Undefined, Exception, and Uninitialized are the singleton Special
// values with no payload.
var (
	Null          = makeSpecial(subtagNull, 0)
	Undefined     = makeSpecial(subtagUndefined, 0)
	Exception     = makeSpecial(subtagException, 0)
	Uninitialized = makeSpecial(subtagUninitialized, 0)
)

// ShortFunc returns a reference to native function idx, stored inline without
// a heap allocation.
func ShortFunc(idx uint32) Value {
	return makeSpecial(subtagShortFunc, Value(idx))
}

// StringConst returns a reference to the interned string table entry idx.
func StringConst(idx uint32) Value {
	return makeSpecial(subtagStringConst, Value(idx))
}

// IndexedReference returns an internal iteration-position reference used by
// for-in/array iterator protocols: idx identifies the position and marker
// selects which kind of container it indexes into.
func IndexedReference(idx uint32, marker Value) Value {
	v := makeSpecial(subtagIndexedReference, Value(idx))
	return v | marker
}

func makeSpecial(subtag Value, payload Value) Value {
	return (payload << specialShift) | (subtag << subtagShift) | specialMask
}

// ---- Inspection --------------------------------------------------------------

// IsInt reports whether v holds an inline 31-bit integer.
func (v Value) IsInt() bool { return v&1 == 0 }

// Int returns the integer payload. Only valid when IsInt is true.
func (v Value) Int() int32 { return int32(v) >> 1 }

// IsHeapPtr reports whether v references a heap block.
func (v Value) IsHeapPtr() bool { return v&1 == 1 && v&0b110 == 0 }

// HeapAddr returns the heap word offset. Only valid when IsHeapPtr is true.
func (v Value) HeapAddr() uint32 { return uint32(v) >> heapPtrShift }

// IsShortFloat reports whether v is a reserved short-float word (this
// representation is unimplemented; encountering one is an internal error).
func (v Value) IsShortFloat() bool { return uint32(v)&0b111 == tagFloat3 }

// isSpecial reports whether v belongs to the Special group (low 2 bits == 11).
func (v Value) isSpecial() bool { return v&specialMask == specialMask && v&1 == 1 }

func (v Value) subtag() Value { return (v >> subtagShift) & subtagMask }

func (v Value) payload() Value { return v >> specialShift }

// IsBool reports whether v is a tagged boolean.
func (v Value) IsBool() bool { return v.isSpecial() && v.subtag() == subtagBool }

// Bool returns the boolean payload. Only valid when IsBool is true.
func (v Value) Bool() bool { return v.payload()&1 != 0 }

// IsNull reports whether v is the Null singleton.
func (v Value) IsNull() bool { return v == Null }

// IsUndefined reports whether v is the Undefined singleton.
func (v Value) IsUndefined() bool { return v == Undefined }

// IsException reports whether v is the Exception sentinel.
func (v Value) IsException() bool { return v == Exception }

// IsUninitialized reports whether v is the TDZ sentinel.
func (v Value) IsUninitialized() bool { return v == Uninitialized }

// IsShortFunc reports whether v references an inline native function.
func (v Value) IsShortFunc() bool { return v.isSpecial() && v.subtag() == subtagShortFunc }

// ShortFuncIndex returns the native function index. Only valid when
// IsShortFunc is true.
func (v Value) ShortFuncIndex() uint32 { return uint32(v.payload()) }

// IsStringConst reports whether v references an interned string constant.
func (v Value) IsStringConst() bool { return v.isSpecial() && v.subtag() == subtagStringConst }

// StringConstIndex returns the string table index. Only valid when
// IsStringConst is true.
func (v Value) StringConstIndex() uint32 { return uint32(v.payload()) }

// IsIndexedReference reports whether v is an internal iteration reference.
func (v Value) IsIndexedReference() bool {
	return v.isSpecial() && v.subtag() == subtagIndexedReference
}

// IndexedReferenceIndex returns the index payload, stripped of marker bits.
// Only valid when IsIndexedReference is true.
func (v Value) IndexedReferenceIndex() uint32 {
	const markerBits = ArrayIndexMarker | ObjectIndexMarker | IteratorIndexMarker
	return uint32((v &^ markerBits).payload())
}

// IsArrayIndexRef, IsObjectIndexRef, and IsIteratorIndexRef test which marker
// an IndexedReference carries.
func (v Value) IsArrayIndexRef() bool    { return v&ArrayIndexMarker != 0 }
func (v Value) IsObjectIndexRef() bool   { return v&ObjectIndexMarker != 0 }
func (v Value) IsIteratorIndexRef() bool { return v&IteratorIndexMarker != 0 }

// Kind classifies v.
func (v Value) Kind() Kind {
	switch {
	case v.IsInt():
		return KindInt
	case v.IsHeapPtr():
		return KindHeapPtr
	case v.IsShortFloat():
		return KindShortFloat
	case v.IsBool():
		return KindBool
	case v.IsNull():
		return KindNull
	case v.IsUndefined():
		return KindUndefined
	case v.IsException():
		return KindException
	case v.IsUninitialized():
		return KindUninitialized
	case v.IsShortFunc():
		return KindShortFunc
	case v.IsStringConst():
		return KindStringConst
	case v.IsIndexedReference():
		return KindIndexedReference
	default:
		return KindUndefined
	}
}

// Truthy implements JS-style truthiness for the value kinds this engine
// supports directly (heap-allocated objects/arrays/strings are always
// truthy; that is decided by lang/heap, not here).
func (v Value) Truthy() bool {
	switch v.Kind() {
	case KindInt:
		return v.Int() != 0
	case KindBool:
		return v.Bool()
	case KindNull, KindUndefined, KindUninitialized:
		return false
	default:
		return true
	}
}

// StrictEquals implements the === operator over non-heap value kinds.
// Heap-referenced values (objects, arrays, strings) compare by identity of
// their heap address, which falls out of the same word-equality check.
func (v Value) StrictEquals(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	return v == o
}

func (v Value) String() string {
	switch v.Kind() {
	case KindInt:
		return fmt.Sprintf("%d", v.Int())
	case KindHeapPtr:
		return fmt.Sprintf("<heap@%d>", v.HeapAddr())
	case KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindException:
		return "<exception>"
	case KindUninitialized:
		return "<uninitialized>"
	case KindShortFunc:
		return fmt.Sprintf("<native#%d>", v.ShortFuncIndex())
	case KindStringConst:
		return fmt.Sprintf("<strconst#%d>", v.StringConstIndex())
	case KindIndexedReference:
		return fmt.Sprintf("<indexref#%d>", v.IndexedReferenceIndex())
	default:
		return "<invalid>"
	}
}
