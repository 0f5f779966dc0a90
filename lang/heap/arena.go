// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package heap implements the dual-ended arena allocator, the mark-compact
// collector, and the object/property/array/string models that live on top of
// it. The arena is a single fixed-size buffer of 32-bit words: the heap
// region grows up from word 0 and the VM operand/locals stack grows down
// from the top, so the two regions can only collide, never overlap silently.
package heap

import (
	"errors"
	"fmt"

	"github.com/probechain/tinyjs/lang/value"
)

// MemoryTag identifies what kind of payload a heap block holds. It is packed
// into the top bits of every BlockHeader word.
type MemoryTag uint8

const (
	TagFree MemoryTag = iota
	TagObject
	TagFloat64
	TagString
	TagFunctionBytecode
	TagValueArray
	TagByteArray
	TagVarRef
)

func (t MemoryTag) String() string {
	switch t {
	case TagFree:
		return "Free"
	case TagObject:
		return "Object"
	case TagFloat64:
		return "Float64"
	case TagString:
		return "String"
	case TagFunctionBytecode:
		return "FunctionBytecode"
	case TagValueArray:
		return "ValueArray"
	case TagByteArray:
		return "ByteArray"
	case TagVarRef:
		return "VarRef"
	default:
		return fmt.Sprintf("MemoryTag(%d)", t)
	}
}

// Header packs a one-word block header: a GC mark bit, a 3-bit memory tag,
// and a 28-bit size-in-words field.
type Header uint32

const (
	headerMarkBit   = 1 << 31
	headerTagShift  = 28
	headerTagMask   = 0x7
	headerSizeMask  = (1 << 28) - 1
	// MaxBlockWords is the largest size a single block header can encode.
	MaxBlockWords = headerSizeMask
)

func makeHeader(tag MemoryTag, sizeWords uint32) Header {
	return Header((uint32(tag) & headerTagMask) << headerTagShift) | Header(sizeWords&headerSizeMask)
}

func (h Header) Tag() MemoryTag       { return MemoryTag((h >> headerTagShift) & headerTagMask) }
func (h Header) SizeWords() uint32    { return uint32(h) & headerSizeMask }
func (h Header) IsMarked() bool       { return h&headerMarkBit != 0 }
func (h Header) Marked() Header       { return h | headerMarkBit }
func (h Header) Unmarked() Header     { return h &^ headerMarkBit }
func (h Header) WithTag(t MemoryTag) Header {
	return (h &^ (headerTagMask << headerTagShift)) | Header((uint32(t)&headerTagMask)<<headerTagShift)
}

// MinFreeWords is a free-block size threshold in words, header included.
// Nothing in the package reads it: Collect slides live blocks together and
// leaves no free blocks behind.
const MinFreeWords = 512

var (
	// ErrOutOfMemory is returned when the heap and stack regions would
	// collide if a requested allocation or stack push were to proceed.
	ErrOutOfMemory = errors.New("heap: out of memory")
	// ErrStackUnderflow is returned by StackPop on an empty operand stack.
	ErrStackUnderflow = errors.New("heap: stack underflow")
	// ErrTooSmall is returned by New when memSize is below the minimum.
	ErrTooSmall = errors.New("heap: mem_size below minimum")
)

// MinMemSize is the smallest arena size New will accept, matching the
// embedder-facing Context's own floor.
const MinMemSize = 4096

// Heap is the dual-ended arena: buf[0:heapPtr) holds allocated/free blocks
// growing upward, buf[stackPtr:len(buf)) holds the VM value stack growing
// downward. A valid Heap always has heapPtr <= stackPtr.
type Heap struct {
	buf      []uint32
	heapPtr  uint32 // next free word at the top of the heap region
	stackPtr uint32 // first used word of the stack region (grows downward)
}

// NewArena allocates a Heap backed by a plain Go slice of memSize bytes.
func NewArena(memSize int) (*Heap, error) {
	if memSize < MinMemSize {
		return nil, ErrTooSmall
	}
	words := uint32(memSize / 4)
	return &Heap{
		buf:      make([]uint32, words),
		heapPtr:  0,
		stackPtr: words,
	}, nil
}

// NewArenaOver wraps an existing word buffer (e.g. an mmap-backed region; see
// NewMmapped) as a fresh, empty Heap without copying it.
func NewArenaOver(buf []uint32) (*Heap, error) {
	if len(buf)*4 < MinMemSize {
		return nil, ErrTooSmall
	}
	return &Heap{buf: buf, heapPtr: 0, stackPtr: uint32(len(buf))}, nil
}

// NewArenaRestored wraps buf as a Heap whose heap/stack pointers are set to
// previously-saved values rather than "empty", for restoring a snapshot
// taken by internal/snapshot: the word buffer alone doesn't carry where the
// two regions' boundaries were, so a restorer must supply them explicitly.
func NewArenaRestored(buf []uint32, heapPtr, stackPtr uint32) (*Heap, error) {
	if len(buf)*4 < MinMemSize {
		return nil, ErrTooSmall
	}
	if heapPtr > stackPtr || stackPtr > uint32(len(buf)) {
		return nil, fmt.Errorf("heap: invalid restored pointers (heap=%d stack=%d len=%d)", heapPtr, stackPtr, len(buf))
	}
	return &Heap{buf: buf, heapPtr: heapPtr, stackPtr: stackPtr}, nil
}

// TotalWords returns the arena's total capacity in words.
func (h *Heap) TotalWords() uint32 { return uint32(len(h.buf)) }

// HeapUsedWords returns the number of words currently used by the heap
// region (including free-block headers that haven't been reclaimed yet).
func (h *Heap) HeapUsedWords() uint32 { return h.heapPtr }

// StackUsedWords returns the number of words currently used by the stack
// region.
func (h *Heap) StackUsedWords() uint32 { return uint32(len(h.buf)) - h.stackPtr }

// FreeWords returns the number of words available between the two regions.
func (h *Heap) FreeWords() uint32 { return h.stackPtr - h.heapPtr }

// Alloc reserves a block of sizeWords (excluding the header) tagged tag and
// returns the word address of its header. Content is left uninitialized.
func (h *Heap) Alloc(tag MemoryTag, sizeWords uint32) (uint32, error) {
	total := sizeWords + 1 // + header word
	if total > h.FreeWords() {
		return 0, ErrOutOfMemory
	}
	addr := h.heapPtr
	h.buf[addr] = uint32(makeHeader(tag, sizeWords))
	h.heapPtr += total
	return addr, nil
}

// AllocZeroed is like Alloc but zero-fills the block's payload words.
func (h *Heap) AllocZeroed(tag MemoryTag, sizeWords uint32) (uint32, error) {
	addr, err := h.Alloc(tag, sizeWords)
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < sizeWords; i++ {
		h.buf[addr+1+i] = 0
	}
	return addr, nil
}

// HeaderAt returns the block header at word address addr.
func (h *Heap) HeaderAt(addr uint32) Header { return Header(h.buf[addr]) }

func (h *Heap) setHeaderAt(addr uint32, hdr Header) { h.buf[addr] = uint32(hdr) }

// Word reads the word at absolute address addr.
func (h *Heap) Word(addr uint32) uint32 { return h.buf[addr] }

// SetWord writes v to the word at absolute address addr.
func (h *Heap) SetWord(addr uint32, v uint32) { h.buf[addr] = v }

// Slot returns the Value stored at absolute word address addr.
func (h *Heap) Slot(addr uint32) value.Value { return value.Value(h.buf[addr]) }

// SetSlot stores v at absolute word address addr.
func (h *Heap) SetSlot(addr uint32, v value.Value) { h.buf[addr] = uint32(v) }

// ---- Stack region -----------------------------------------------------------

// StackPush reserves one more word at the top of the stack region and stores
// v there, returning the new stack pointer (word address of v).
func (h *Heap) StackPush(v value.Value) (uint32, error) {
	if h.stackPtr <= h.heapPtr {
		return 0, ErrOutOfMemory
	}
	h.stackPtr--
	h.buf[h.stackPtr] = uint32(v)
	return h.stackPtr, nil
}

// StackPop removes and returns the top word of the stack region.
func (h *Heap) StackPop() (value.Value, error) {
	if h.stackPtr >= uint32(len(h.buf)) {
		return 0, ErrStackUnderflow
	}
	v := value.Value(h.buf[h.stackPtr])
	h.stackPtr++
	return v, nil
}

// StackPtr returns the current stack pointer (word address of the top item,
// or len(buf) if the stack is empty).
func (h *Heap) StackPtr() uint32 { return h.stackPtr }

// ReserveStackWords extends the stack region downward by n words without
// initializing them (the VM fills them explicitly, e.g. with
// value.Uninitialized for freshly declared locals), returning the new stack
// pointer. Used by lang/vm to lay out a callee's locals in one step instead
// of n individual StackPush calls.
func (h *Heap) ReserveStackWords(n uint32) (uint32, error) {
	if h.stackPtr < h.heapPtr+n {
		return 0, ErrOutOfMemory
	}
	h.stackPtr -= n
	return h.stackPtr, nil
}

// SetStackPtr resets the stack pointer directly, used by lang/vm to reclaim
// an entire call frame (arguments, locals, and any operand-stack temporaries
// above it) in one step on return.
func (h *Heap) SetStackPtr(addr uint32) { h.stackPtr = addr }

// ---- Block iteration ---------------------------------------------------------

// BlockIterator walks the heap region's blocks in address order.
type BlockIterator struct {
	h    *Heap
	addr uint32
}

// IterBlocks returns an iterator positioned at the first block.
func (h *Heap) IterBlocks() *BlockIterator { return &BlockIterator{h: h, addr: 0} }

// Next returns the next block's address and header, or ok=false at the end
// of the heap region.
func (it *BlockIterator) Next() (addr uint32, hdr Header, ok bool) {
	if it.addr >= it.h.heapPtr {
		return 0, 0, false
	}
	addr = it.addr
	hdr = it.h.HeaderAt(addr)
	it.addr = addr + 1 + hdr.SizeWords()
	return addr, hdr, true
}

// MemoryStats reports the embedder-facing memory accounting for a Heap, in
// bytes, matching the shape of original_source's Context::memory_stats, plus
// the per-class block counts spec.md §6 lists alongside the totals.
type MemoryStats struct {
	Total     uint64
	HeapUsed  uint64
	StackUsed uint64
	Free      uint64
	Classes   ClassCounts
}

// Stats computes a MemoryStats snapshot. The class tally is a full heap walk
// (O(live blocks)); callers that only need the byte totals on a hot path
// should prefer reading HeapUsedWords/StackUsedWords/FreeWords directly.
func (h *Heap) Stats() MemoryStats {
	return MemoryStats{
		Total:     uint64(len(h.buf)) * 4,
		HeapUsed:  uint64(h.heapPtr) * 4,
		StackUsed: uint64(uint32(len(h.buf))-h.stackPtr) * 4,
		Free:      uint64(h.FreeWords()) * 4,
		Classes:   h.CountClasses(),
	}
}
