// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap

import (
	"github.com/probechain/tinyjs/lang/value"
)

// PropertyType classifies what a Property's value slot holds.
type PropertyType uint32

const (
	PropNormal PropertyType = iota
	PropGetSet
	PropVarRef
	PropIndex
)

const (
	minHashSize          = 4
	maxLoadFactorNum     = 3 // load factor 0.75 == 3/4
	maxLoadFactorDen     = 4
	hashNextMask         = (1 << 30) - 1
	propTypeShift        = 30
)

// Property tables are stored as TagValueArray blocks so the generic
// value-array GC scan marks every live key/value Value automatically; the
// packed metadata words are stored via value.Int so the scan safely skips
// them. Layout, in Value-sized slots starting at payload offset 0:
//
//	[0] Int(propCount)
//	[1] Int(hashMask)
//	[2] Int(firstFree)     1-based index of first free property slot, 0=none
//	[3] Int(hashTableLen)  N, always hashMask+1
//	[4 .. 4+N)             hash buckets: Int(chain head, 1-based, 0=empty)
//	[4+N + 3*i + 0]        property i key   (Uninitialized if the slot is free)
//	[4+N + 3*i + 1]        property i value
//	[4+N + 3*i + 2]        Int(packed hash_next (30 bits) | prop_type (2 bits))

func hashKey(raw uint32) uint32 {
	h := raw
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

// keyHash computes the bucket hash for a property key Value: string keys
// hash their content (so "x" always lands in the same bucket regardless of
// which heap address happens to hold it after interning), everything else
// hashes its raw word.
func (h *Heap) keyHash(key value.Value) uint32 {
	if key.IsHeapPtr() {
		if h.HeaderAt(key.HeapAddr()).Tag() == TagString {
			return hashKey(HashString(h.StringAt(key.HeapAddr())))
		}
	}
	return hashKey(uint32(key))
}

func (h *Heap) keyEquals(a, b value.Value) bool {
	if a == b {
		return true
	}
	if a.IsHeapPtr() && b.IsHeapPtr() &&
		h.HeaderAt(a.HeapAddr()).Tag() == TagString && h.HeaderAt(b.HeapAddr()).Tag() == TagString {
		return h.StringAt(a.HeapAddr()) == h.StringAt(b.HeapAddr())
	}
	return false
}

// newPropertyTableWithHashLen allocates a fresh, empty property table block
// with hashLen buckets (a power of two, >= minHashSize) and room for cap
// properties.
func (h *Heap) newPropertyTableWithHashLen(hashLen, cap uint32) (uint32, error) {
	total := 4 + hashLen + 3*cap
	addr, err := h.Alloc(TagValueArray, total)
	if err != nil {
		return 0, err
	}
	h.setTableSlot(addr, 0, value.Int(0))          // propCount
	h.setTableSlot(addr, 1, value.Int(int32(hashLen-1))) // hashMask
	h.setTableSlot(addr, 2, value.Int(0))          // firstFree (0 = none)
	h.setTableSlot(addr, 3, value.Int(int32(hashLen)))
	for i := uint32(0); i < hashLen; i++ {
		h.setTableSlot(addr, 4+i, value.Int(0))
	}
	for i := uint32(0); i < cap; i++ {
		base := 4 + hashLen + 3*i
		h.setTableSlot(addr, base+0, value.Uninitialized)
		h.setTableSlot(addr, base+1, value.Undefined)
		h.setTableSlot(addr, base+2, value.Int(0))
	}
	return addr, nil
}

// NewPropertyTable allocates an empty property table with the minimum
// bucket count.
func (h *Heap) NewPropertyTable() (uint32, error) {
	return h.newPropertyTableWithHashLen(minHashSize, minHashSize)
}

func (h *Heap) tableSlot(addr uint32, i uint32) value.Value { return h.Slot(addr + 1 + i) }
func (h *Heap) setTableSlot(addr uint32, i uint32, v value.Value) {
	h.SetSlot(addr+1+i, v)
}

func (h *Heap) tablePropCount(addr uint32) uint32 { return uint32(h.tableSlot(addr, 0).Int()) }
func (h *Heap) tableHashMask(addr uint32) uint32  { return uint32(h.tableSlot(addr, 1).Int()) }
func (h *Heap) tableFirstFree(addr uint32) uint32 { return uint32(h.tableSlot(addr, 2).Int()) }
func (h *Heap) tableHashLen(addr uint32) uint32   { return uint32(h.tableSlot(addr, 3).Int()) }

func (h *Heap) tableCapacity(addr uint32) uint32 {
	total := h.HeaderAt(addr).SizeWords()
	hashLen := h.tableHashLen(addr)
	return (total - 4 - hashLen) / 3
}

func (h *Heap) propKeyAt(addr uint32, i uint32) value.Value {
	hashLen := h.tableHashLen(addr)
	return h.tableSlot(addr, 4+hashLen+3*i+0)
}
func (h *Heap) propValAt(addr uint32, i uint32) value.Value {
	hashLen := h.tableHashLen(addr)
	return h.tableSlot(addr, 4+hashLen+3*i+1)
}
func (h *Heap) propMetaAt(addr uint32, i uint32) uint32 {
	hashLen := h.tableHashLen(addr)
	return uint32(h.tableSlot(addr, 4+hashLen+3*i+2).Int())
}
func (h *Heap) setPropKeyAt(addr uint32, i uint32, v value.Value) {
	hashLen := h.tableHashLen(addr)
	h.setTableSlot(addr, 4+hashLen+3*i+0, v)
}
func (h *Heap) setPropValAt(addr uint32, i uint32, v value.Value) {
	hashLen := h.tableHashLen(addr)
	h.setTableSlot(addr, 4+hashLen+3*i+1, v)
}
func (h *Heap) setPropMetaAt(addr uint32, i uint32, meta uint32) {
	hashLen := h.tableHashLen(addr)
	h.setTableSlot(addr, 4+hashLen+3*i+2, value.Int(int32(meta)))
}

func packMeta(hashNext uint32, typ PropertyType) uint32 {
	return (hashNext & hashNextMask) | (uint32(typ) << propTypeShift)
}
func metaHashNext(meta uint32) uint32     { return meta & hashNextMask }
func metaPropType(meta uint32) PropertyType { return PropertyType(meta >> propTypeShift) }

func (h *Heap) bucketHead(addr uint32, bucket uint32) uint32 {
	return uint32(h.tableSlot(addr, 4+bucket).Int())
}
func (h *Heap) setBucketHead(addr uint32, bucket uint32, headOneBased uint32) {
	h.setTableSlot(addr, 4+bucket, value.Int(int32(headOneBased)))
}

// PropFind returns the 0-based index of key's property, if present.
func (h *Heap) PropFind(addr uint32, key value.Value) (uint32, bool) {
	mask := h.tableHashMask(addr)
	bucket := h.keyHash(key) & mask
	cur := h.bucketHead(addr, bucket)
	for cur != 0 {
		idx := cur - 1
		if h.keyEquals(h.propKeyAt(addr, idx), key) {
			return idx, true
		}
		cur = metaHashNext(h.propMetaAt(addr, idx))
	}
	return 0, false
}

// PropGet looks up key's value.
func (h *Heap) PropGet(addr uint32, key value.Value) (value.Value, bool) {
	idx, ok := h.PropFind(addr, key)
	if !ok {
		return value.Undefined, false
	}
	return h.propValAt(addr, idx), true
}

// PropHas reports whether key exists in the table.
func (h *Heap) PropHas(addr uint32, key value.Value) bool {
	_, ok := h.PropFind(addr, key)
	return ok
}

// PropType reports the PropertyType tag of key, if present.
func (h *Heap) PropType(addr uint32, key value.Value) (PropertyType, bool) {
	idx, ok := h.PropFind(addr, key)
	if !ok {
		return PropNormal, false
	}
	return metaPropType(h.propMetaAt(addr, idx)), true
}

// PropSet inserts or updates key -> val as a PropNormal entry, resizing
// (reallocating) the table block if the load factor would be exceeded. It
// returns the table's (possibly new) block address; callers must store this
// back into whatever references the table.
func (h *Heap) PropSet(addr uint32, key, val value.Value) (uint32, error) {
	return h.propSetTyped(addr, key, val, PropNormal)
}

// PropSetTyped is PropSet with an explicit PropertyType tag, used for
// accessor (PropGetSet) properties.
func (h *Heap) PropSetTyped(addr uint32, key, val value.Value, typ PropertyType) (uint32, error) {
	return h.propSetTyped(addr, key, val, typ)
}

func (h *Heap) propSetTyped(addr uint32, key, val value.Value, typ PropertyType) (uint32, error) {
	if idx, ok := h.PropFind(addr, key); ok {
		h.setPropValAt(addr, idx, val)
		h.setPropMetaAt(addr, idx, packMeta(metaHashNext(h.propMetaAt(addr, idx)), typ))
		return addr, nil
	}

	count := h.tablePropCount(addr)
	hashLen := h.tableHashLen(addr)
	if (count+1)*maxLoadFactorDen > hashLen*maxLoadFactorNum {
		var err error
		addr, err = h.resizePropertyTable(addr)
		if err != nil {
			return 0, err
		}
	}

	cap := h.tableCapacity(addr)
	firstFree := h.tableFirstFree(addr)
	var idx uint32
	if firstFree != 0 {
		idx = firstFree - 1
		h.setTableSlot(addr, 2, value.Int(int32(metaHashNext(h.propMetaAt(addr, idx)))))
	} else if count < cap {
		idx = count
	} else {
		var err error
		addr, err = h.resizePropertyTableGrow(addr)
		if err != nil {
			return 0, err
		}
		idx = h.tablePropCount(addr)
	}

	mask := h.tableHashMask(addr)
	bucket := h.keyHash(key) & mask
	head := h.bucketHead(addr, bucket)

	h.setPropKeyAt(addr, idx, key)
	h.setPropValAt(addr, idx, val)
	h.setPropMetaAt(addr, idx, packMeta(head, typ))
	h.setBucketHead(addr, bucket, idx+1)
	h.setTableSlot(addr, 0, value.Int(int32(count+1)))
	return addr, nil
}

// PropDelete removes key from the table, linking its slot onto the free
// list for reuse by a later PropSet. Returns whether key was present.
func (h *Heap) PropDelete(addr uint32, key value.Value) bool {
	mask := h.tableHashMask(addr)
	bucket := h.keyHash(key) & mask
	prev := uint32(0)
	cur := h.bucketHead(addr, bucket)
	for cur != 0 {
		idx := cur - 1
		if h.keyEquals(h.propKeyAt(addr, idx), key) {
			next := metaHashNext(h.propMetaAt(addr, idx))
			if prev == 0 {
				h.setBucketHead(addr, bucket, next)
			} else {
				pIdx := prev - 1
				h.setPropMetaAt(addr, pIdx, packMeta(next, metaPropType(h.propMetaAt(addr, pIdx))))
			}
			firstFree := h.tableFirstFree(addr)
			h.setPropMetaAt(addr, idx, packMeta(firstFree, PropNormal))
			h.setTableSlot(addr, 2, value.Int(int32(idx+1)))
			h.setPropKeyAt(addr, idx, value.Uninitialized)
			h.setPropValAt(addr, idx, value.Undefined)
			h.setTableSlot(addr, 0, value.Int(int32(h.tablePropCount(addr)-1)))
			return true
		}
		prev = cur
		cur = metaHashNext(h.propMetaAt(addr, idx))
	}
	return false
}

// PropKeys returns every live key in property-slot order.
func (h *Heap) PropKeys(addr uint32) []value.Value {
	cap := h.tableCapacity(addr)
	out := make([]value.Value, 0, h.tablePropCount(addr))
	for i := uint32(0); i < cap; i++ {
		if !h.propKeyAt(addr, i).IsUninitialized() {
			out = append(out, h.propKeyAt(addr, i))
		}
	}
	return out
}

// resizePropertyTable doubles the hash-bucket count (rehashing all live
// properties into a freshly allocated, same-capacity block).
func (h *Heap) resizePropertyTable(oldAddr uint32) (uint32, error) {
	return h.rebuildPropertyTable(oldAddr, h.tableHashLen(oldAddr)*2, h.tableCapacity(oldAddr))
}

// resizePropertyTableGrow doubles both the bucket count and the property
// capacity, used when the capacity (not just the load factor) is exhausted
// and no free slot is available for reuse.
func (h *Heap) resizePropertyTableGrow(oldAddr uint32) (uint32, error) {
	return h.rebuildPropertyTable(oldAddr, h.tableHashLen(oldAddr)*2, h.tableCapacity(oldAddr)*2)
}

func (h *Heap) rebuildPropertyTable(oldAddr, newHashLen, newCap uint32) (uint32, error) {
	if newHashLen < minHashSize {
		newHashLen = minHashSize
	}
	newAddr, err := h.newPropertyTableWithHashLen(newHashLen, newCap)
	if err != nil {
		return 0, err
	}
	oldCap := h.tableCapacity(oldAddr)
	n := uint32(0)
	for i := uint32(0); i < oldCap; i++ {
		key := h.propKeyAt(oldAddr, i)
		if key.IsUninitialized() {
			continue
		}
		val := h.propValAt(oldAddr, i)
		mask := h.tableHashMask(newAddr)
		bucket := h.keyHash(key) & mask
		head := h.bucketHead(newAddr, bucket)
		h.setPropKeyAt(newAddr, n, key)
		h.setPropValAt(newAddr, n, val)
		h.setPropMetaAt(newAddr, n, packMeta(head, metaPropType(h.propMetaAt(oldAddr, i))))
		h.setBucketHead(newAddr, bucket, n+1)
		n++
	}
	h.setTableSlot(newAddr, 0, value.Int(int32(n)))
	return newAddr, nil
}
