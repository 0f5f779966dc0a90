// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package heap

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// MmappedHeap is a Heap whose backing buffer is a memory-mapped file instead
// of a plain Go slice, for embedders that want a bigger-than-default or
// persistent-on-disk arena. Close unmaps the file; the arena is unusable
// afterward.
type MmappedHeap struct {
	*Heap
	mmap mmap.MMap
	file *os.File
}

// NewMmapped opens (creating if necessary) path, truncates it to memSize
// bytes, and maps it read-write as the backing store for a Heap. The default
// in-process path (NewArena) remains a plain []uint32 buffer; this is purely an
// opt-in for hosts that want a bigger or file-backed image.
func NewMmapped(path string, memSize int) (*MmappedHeap, error) {
	if memSize < MinMemSize {
		return nil, ErrTooSmall
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("heap: open mmap backing file: %w", err)
	}
	if err := f.Truncate(int64(memSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("heap: truncate mmap backing file: %w", err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("heap: mmap backing file: %w", err)
	}
	words := wordsOver(m)
	arena, err := NewArenaOver(words)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}
	return &MmappedHeap{Heap: arena, mmap: m, file: f}, nil
}

// wordsOver reinterprets an mmap.MMap byte slice as a []uint32 of the same
// backing memory, so writes through the Heap are visible in the mapped file
// without an extra copy.
func wordsOver(b mmap.MMap) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Close flushes and unmaps the backing file.
func (m *MmappedHeap) Close() error {
	if err := m.mmap.Flush(); err != nil {
		m.file.Close()
		return fmt.Errorf("heap: flush mmap: %w", err)
	}
	if err := m.mmap.Unmap(); err != nil {
		m.file.Close()
		return fmt.Errorf("heap: unmap: %w", err)
	}
	return m.file.Close()
}
