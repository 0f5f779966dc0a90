// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package snapshot persists named engine images (serialized bytecode plus a
// raw heap byte dump) to a github.com/syndtr/goleveldb key-value store, the
// same storage engine go-probe itself uses for chain state. This is additive
// convenience around lang/bytecode's Serialize/Deserialize; it does not
// change their wire format, and it never interprets the heap bytes it
// stores — restoring an image is the caller's (engine.Context's) job.
package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// Store is a handle to one on-disk snapshot database.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) a leveldb database at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Image is one saved engine snapshot: the root function's serialized
// bytecode, a raw copy of the arena's word buffer (reinterpreted as
// little-endian bytes so Save/Load round-trip on any host), and the
// heap/stack region boundaries at the moment of saving, without which the
// word buffer alone can't be told apart from an empty arena of the same
// size.
type Image struct {
	Bytecode  []byte
	HeapWords []uint32
	HeapPtr   uint32
	StackPtr  uint32
}

func encodeWords(words []uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func decodeWords(buf []byte) []uint32 {
	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return words
}

// keys namespace the values stored per snapshot name under one prefix, since
// goleveldb has no notion of column families.
func bytecodeKey(name string) []byte { return append([]byte("bc:"), name...) }
func heapKey(name string) []byte     { return append([]byte("hp:"), name...) }
func metaKey(name string) []byte     { return append([]byte("mt:"), name...) }

// Save writes img under name, overwriting any prior snapshot of that name.
func (s *Store) Save(name string, img Image) error {
	var meta [8]byte
	binary.LittleEndian.PutUint32(meta[0:4], img.HeapPtr)
	binary.LittleEndian.PutUint32(meta[4:8], img.StackPtr)

	batch := new(leveldb.Batch)
	batch.Put(bytecodeKey(name), img.Bytecode)
	batch.Put(heapKey(name), encodeWords(img.HeapWords))
	batch.Put(metaKey(name), meta[:])
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("snapshot: save %s: %w", name, err)
	}
	return nil
}

// Load reads back the image saved under name.
func (s *Store) Load(name string) (Image, error) {
	bc, err := s.db.Get(bytecodeKey(name), nil)
	if err != nil {
		return Image{}, fmt.Errorf("snapshot: load %s: %w", name, err)
	}
	hp, err := s.db.Get(heapKey(name), nil)
	if err != nil {
		return Image{}, fmt.Errorf("snapshot: load %s: %w", name, err)
	}
	meta, err := s.db.Get(metaKey(name), nil)
	if err != nil {
		return Image{}, fmt.Errorf("snapshot: load %s: %w", name, err)
	}
	if len(meta) != 8 {
		return Image{}, fmt.Errorf("snapshot: load %s: corrupt metadata", name)
	}
	return Image{
		Bytecode:  bc,
		HeapWords: decodeWords(hp),
		HeapPtr:   binary.LittleEndian.Uint32(meta[0:4]),
		StackPtr:  binary.LittleEndian.Uint32(meta[4:8]),
	}, nil
}

// Delete removes name's snapshot, if any.
func (s *Store) Delete(name string) error {
	batch := new(leveldb.Batch)
	batch.Delete(bytecodeKey(name))
	batch.Delete(heapKey(name))
	batch.Delete(metaKey(name))
	return s.db.Write(batch, nil)
}
