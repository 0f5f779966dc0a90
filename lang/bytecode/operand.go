// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package bytecode

// Operand read/write helpers shared by lang/compiler (encoder) and lang/vm
// (decoder). All multi-byte operands are little-endian, per the wire format.

func ReadI8(code []byte, pc int) int32  { return int32(int8(code[pc])) }
func ReadU8(code []byte, pc int) uint32 { return uint32(code[pc]) }

func ReadI16(code []byte, pc int) int32 {
	return int32(int16(uint16(code[pc]) | uint16(code[pc+1])<<8))
}
func ReadU16(code []byte, pc int) uint32 {
	return uint32(code[pc]) | uint32(code[pc+1])<<8
}

func ReadI32(code []byte, pc int) int32 {
	return int32(ReadU32(code, pc))
}
func ReadU32(code []byte, pc int) uint32 {
	return uint32(code[pc]) | uint32(code[pc+1])<<8 | uint32(code[pc+2])<<16 | uint32(code[pc+3])<<24
}

// AppendU8 / AppendI8 append a single raw or signed byte.
func AppendU8(code []byte, v uint32) []byte { return append(code, byte(v)) }
func AppendI8(code []byte, v int32) []byte  { return append(code, byte(int8(v))) }

func AppendU16(code []byte, v uint32) []byte {
	return append(code, byte(v), byte(v>>8))
}
func AppendI16(code []byte, v int32) []byte {
	return AppendU16(code, uint32(uint16(v)))
}

func AppendU32(code []byte, v uint32) []byte {
	return append(code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
func AppendI32(code []byte, v int32) []byte { return AppendU32(code, uint32(v)) }

// PatchI32 overwrites the 4-byte little-endian operand at code[pos:pos+4].
func PatchI32(code []byte, pos int, v int32) {
	u := uint32(v)
	code[pos] = byte(u)
	code[pos+1] = byte(u >> 8)
	code[pos+2] = byte(u >> 16)
	code[pos+3] = byte(u >> 24)
}
