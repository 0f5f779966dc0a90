// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap

import (
	"math"

	"github.com/probechain/tinyjs/lang/value"
)

// NewFloat64 boxes f into a TagFloat64 block, used for any numeric value
// that doesn't fit the 31-bit inline integer range (spec.md §9 resolves the
// source's unfinished float handling this way instead of truncating).
//
// Layout: two words holding the IEEE-754 bit pattern, little-word-first.
func (h *Heap) NewFloat64(f float64) (value.Value, error) {
	addr, err := h.Alloc(TagFloat64, 2)
	if err != nil {
		return 0, err
	}
	bits := math.Float64bits(f)
	h.SetWord(addr+1, uint32(bits))
	h.SetWord(addr+2, uint32(bits>>32))
	return value.HeapPtr(addr), nil
}

// Float64At unboxes the TagFloat64 block at addr.
func (h *Heap) Float64At(addr uint32) float64 {
	lo := uint64(h.Word(addr + 1))
	hi := uint64(h.Word(addr + 2))
	return math.Float64frombits(lo | hi<<32)
}

// IsFloat64 reports whether addr holds a boxed Float64 block.
func (h *Heap) IsFloat64(addr uint32) bool { return h.HeaderAt(addr).Tag() == TagFloat64 }
