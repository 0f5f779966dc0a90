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

// NewString allocates a TagString block holding the raw bytes of s and
// returns a tagged heap-pointer Value referencing it.
//
// Layout (words, payload starts at addr+1):
//
//	[0] length in bytes
//	[1..] packed bytes, 4 per word, little-endian, zero-padded in the last word
func (h *Heap) NewString(s string) (value.Value, error) {
	b := []byte(s)
	dataWords := (len(b) + 3) / 4
	addr, err := h.Alloc(TagString, uint32(1+dataWords))
	if err != nil {
		return 0, err
	}
	h.SetWord(addr+1, uint32(len(b)))
	for i := 0; i < dataWords; i++ {
		var w uint32
		for j := 0; j < 4; j++ {
			idx := i*4 + j
			if idx < len(b) {
				w |= uint32(b[idx]) << (8 * j)
			}
		}
		h.SetWord(addr+2+uint32(i), w)
	}
	return value.HeapPtr(addr), nil
}

// StringAt returns the Go string content of the TagString block at addr.
func (h *Heap) StringAt(addr uint32) string {
	n := h.Word(addr + 1)
	buf := make([]byte, n)
	dataWords := (n + 3) / 4
	for i := uint32(0); i < dataWords; i++ {
		w := h.Word(addr + 2 + i)
		for j := uint32(0); j < 4; j++ {
			idx := i*4 + j
			if idx < n {
				buf[idx] = byte(w >> (8 * j))
			}
		}
	}
	return string(buf)
}

// StringLen returns the byte length of the TagString block at addr without
// materializing the content.
func (h *Heap) StringLen(addr uint32) uint32 { return h.Word(addr + 1) }

// HashString computes the product-sum hash (multiplier 31) used both by the
// interning table and by property-table key hashing for string keys.
func HashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// IsArrayIndex reports whether s is the canonical decimal form of an array
// index strictly below 2^30: no leading zero (except the literal string
// "0"), no sign, all digits, and within range.
func IsArrayIndex(s string) (uint32, bool) {
	if len(s) == 0 || len(s) > 10 {
		return 0, false
	}
	if s[0] == '0' {
		if len(s) == 1 {
			return 0, true
		}
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
		if n >= 1<<30 {
			return 0, false
		}
	}
	return uint32(n), true
}

// IsIdentStart reports whether r can start a JS identifier in this engine's
// ASCII-only subset.
func IsIdentStart(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '$'
}

// IsIdentContinue reports whether r can continue a JS identifier.
func IsIdentContinue(r byte) bool {
	return IsIdentStart(r) || (r >= '0' && r <= '9')
}

// StringTable deduplicates string content so that identical literals and
// identifiers share one heap allocation. It lives in host memory (outside
// the arena) and maps content to the heap Value produced the first time that
// content was interned. The table is not itself a GC root: after a
// collection, Forget drops the entries whose string did not survive and
// rewrites the rest to their new addresses.
type StringTable struct {
	entries map[string]value.Value
}

// NewStringTable creates an empty interning table.
func NewStringTable() *StringTable {
	return &StringTable{entries: make(map[string]value.Value, 64)}
}

// Intern returns the heap Value for s, allocating a new TagString block only
// the first time a given content is seen.
func (st *StringTable) Intern(h *Heap, s string) (value.Value, error) {
	if v, ok := st.entries[s]; ok {
		return v, nil
	}
	v, err := h.NewString(s)
	if err != nil {
		return 0, err
	}
	st.entries[s] = v
	return v, nil
}

// Roots returns every live Value this table holds, for GC root scanning.
func (st *StringTable) Roots() []value.Value {
	out := make([]value.Value, 0, len(st.entries))
	for _, v := range st.entries {
		out = append(out, v)
	}
	return out
}

// Forget drops entries whose Value translate reports as gone, used after a GC
// compaction that did not preserve some string (i.e. it was never rooted
// elsewhere and has become garbage); it also rewrites surviving entries to
// their post-compaction addresses.
func (st *StringTable) Forget(translate func(value.Value) (value.Value, bool)) {
	next := make(map[string]value.Value, len(st.entries))
	for k, v := range st.entries {
		if nv, ok := translate(v); ok {
			next[k] = nv
		}
	}
	st.entries = next
}
