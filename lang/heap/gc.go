// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap

import "github.com/probechain/tinyjs/lang/value"

// GCStats summarizes a single collection cycle.
type GCStats struct {
	ObjectsBefore uint32
	ObjectsAfter  uint32
	WordsBefore   uint32
	WordsAfter    uint32
	BytesFreed    uint64
	BytesMoved    uint64
}

// Translate maps a pre-collection heap Value to its post-collection
// equivalent. It returns ok=false for values that are not heap pointers
// (nothing to translate) or that reference a block that turned out to be
// unreachable (a caller bug: something outside the declared root set held a
// stale reference).
type Translate func(v value.Value) (out value.Value, ok bool)

// Collect runs a full mark-compact cycle.
//
// Roots are: every slot in the stack region (buf[stackPtr:len(buf))), which
// covers the VM's operand stack and call-frame locals, plus every Value
// pointed to by external, which covers anything a caller keeps outside the
// arena (interned-string tables, global-object references, saved closures).
//
// Collect physically slides live blocks down to eliminate fragmentation,
// rewrites every pointer-valued slot it finds (including the stack region
// and external roots) to the new addresses, and returns a Translate the
// caller can use immediately afterward to fix up any further Values it holds
// outside the arena that weren't listed in external (e.g. map-valued state
// where a *Value isn't obtainable).
func (h *Heap) Collect(external []*value.Value) (GCStats, Translate) {
	stats := GCStats{WordsBefore: h.heapPtr}

	marked := make(map[uint32]bool)
	h.clearMarks()

	for addr := h.stackPtr; addr < uint32(len(h.buf)); addr++ {
		v := h.Slot(addr)
		if v.IsHeapPtr() {
			h.markObject(v.HeapAddr(), marked)
		}
	}
	for _, p := range external {
		if p == nil {
			continue
		}
		if (*p).IsHeapPtr() {
			h.markObject((*p).HeapAddr(), marked)
		}
	}

	forwarding := make(map[uint32]uint32)
	it := h.IterBlocks()
	newAddr := uint32(0)
	for {
		addr, hdr, ok := it.Next()
		if !ok {
			break
		}
		stats.ObjectsBefore++
		if marked[addr] {
			stats.ObjectsAfter++
			forwarding[addr] = newAddr
			newAddr += 1 + hdr.SizeWords()
		}
	}

	translate := func(v value.Value) (value.Value, bool) {
		if !v.IsHeapPtr() {
			return v, false
		}
		na, ok := forwarding[v.HeapAddr()]
		if !ok {
			return v, false
		}
		return value.HeapPtr(na), true
	}

	// Fix up pointer-valued slots inside every live block, at their old
	// addresses, before physically sliding the blocks.
	it = h.IterBlocks()
	for {
		addr, hdr, ok := it.Next()
		if !ok {
			break
		}
		if !marked[addr] {
			continue
		}
		h.fixupBlock(addr, hdr, translate)
	}

	// Fix up roots.
	for addr := h.stackPtr; addr < uint32(len(h.buf)); addr++ {
		if nv, ok := translate(h.Slot(addr)); ok {
			h.SetSlot(addr, nv)
		}
	}
	for _, p := range external {
		if p == nil {
			continue
		}
		if nv, ok := translate(*p); ok {
			*p = nv
		}
	}

	// Slide live blocks down to their forwarded addresses, unmarking as we
	// go so a live object doesn't start its next cycle pre-marked.
	it = h.IterBlocks()
	var moved uint64
	for {
		addr, hdr, ok := it.Next()
		if !ok {
			break
		}
		if !marked[addr] {
			continue
		}
		na := forwarding[addr]
		n := 1 + hdr.SizeWords()
		if na != addr {
			copy(h.buf[na:na+n], h.buf[addr:addr+n])
			moved += uint64(n) * 4
		}
		h.buf[na] = uint32(hdr.Unmarked())
	}

	stats.WordsAfter = newAddr
	stats.BytesFreed = uint64(stats.WordsBefore-stats.WordsAfter) * 4
	stats.BytesMoved = moved
	h.heapPtr = newAddr
	return stats, translate
}

func (h *Heap) clearMarks() {
	it := h.IterBlocks()
	for {
		addr, hdr, ok := it.Next()
		if !ok {
			break
		}
		h.setHeaderAt(addr, hdr.Unmarked())
	}
}

// markObject performs the root-driven recursive trace: it marks the block at
// addr and, depending on its memory tag, recurses into every pointer-valued
// slot it carries.
func (h *Heap) markObject(addr uint32, marked map[uint32]bool) {
	if marked[addr] {
		return
	}
	marked[addr] = true
	hdr := h.HeaderAt(addr)
	switch hdr.Tag() {
	case TagObject, TagValueArray:
		n := hdr.SizeWords()
		for i := uint32(0); i < n; i++ {
			v := h.tableSlot(addr, i)
			if v.IsHeapPtr() {
				h.markObject(v.HeapAddr(), marked)
			}
		}
	case TagVarRef:
		// Slot 0 is an Int attached-flag (never a pointer). Slot 1 is
		// either an Int stack address (while attached, already a root via
		// the stack scan above) or the owned Value (once detached); either
		// way IsHeapPtr safely distinguishes the two.
		v := h.tableSlot(addr, varRefPayloadSlot)
		if v.IsHeapPtr() {
			h.markObject(v.HeapAddr(), marked)
		}
	case TagFunctionBytecode:
		n := h.FunctionConstCount(addr)
		for i := uint32(0); i < n; i++ {
			v := h.FunctionConstAt(addr, i)
			if v.IsHeapPtr() {
				h.markObject(v.HeapAddr(), marked)
			}
		}
	case TagString, TagByteArray, TagFree, TagFloat64:
		// Leaf tags: no Value-typed payload to trace.
	}
}

// fixupBlock rewrites every pointer-valued slot of the live block at addr
// (still at its pre-compaction address) using translate.
func (h *Heap) fixupBlock(addr uint32, hdr Header, translate Translate) {
	switch hdr.Tag() {
	case TagObject, TagValueArray:
		n := hdr.SizeWords()
		for i := uint32(0); i < n; i++ {
			v := h.tableSlot(addr, i)
			if nv, ok := translate(v); ok {
				h.setTableSlot(addr, i, nv)
			}
		}
	case TagVarRef:
		if nv, ok := translate(h.tableSlot(addr, varRefPayloadSlot)); ok {
			h.setTableSlot(addr, varRefPayloadSlot, nv)
		}
	case TagFunctionBytecode:
		n := h.FunctionConstCount(addr)
		base := h.functionConstBase(addr)
		for i := uint32(0); i < n; i++ {
			v := h.tableSlot(addr, base+i)
			if nv, ok := translate(v); ok {
				h.setTableSlot(addr, base+i, nv)
			}
		}
	case TagString, TagByteArray, TagFree, TagFloat64:
		// no pointer fields
	}
}
