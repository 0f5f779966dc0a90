// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ConstKind tags a constant-pool entry's serialized representation. Only
// value kinds with no heap dependency may appear here; string constants are
// carried as raw bytes and interned by the VM the first time the constant is
// used (see lang/vm's constFor), never as heap pointers.
type ConstKind byte

const (
	ConstInt ConstKind = iota
	ConstFloat64
	ConstString
	ConstBool
	ConstNull
	ConstUndefined
)

// Const is one constant-pool entry, in its serializable (non-heap) form.
type Const struct {
	Kind ConstKind
	I    int32
	F    float64
	S    string
	B    bool
}

func IntConst(n int32) Const         { return Const{Kind: ConstInt, I: n} }
func Float64Const(f float64) Const   { return Const{Kind: ConstFloat64, F: f} }
func StringConst(s string) Const     { return Const{Kind: ConstString, S: s} }
func BoolConst(b bool) Const         { return Const{Kind: ConstBool, B: b} }
func NullConst() Const               { return Const{Kind: ConstNull} }
func UndefinedConst() Const          { return Const{Kind: ConstUndefined} }

// LineEntry records that bytecode offset PC and every offset after it (up to
// the next entry) originated from source line Line. The table is append-only and
// queried by "largest PC <= target".
type LineEntry struct {
	PC   uint32
	Line uint32
}

// Flag bits for Function.Flags.
const (
	FlagHasArguments uint32 = 1 << 0
)

// Function is a single compiled function: its own code plus everything the
// VM or a debugger needs to run or describe it. The top-level program is
// itself a Function with ArgCount == 0.
type Function struct {
	Name         string
	ArgCount     int
	LocalCount   int
	StackSize    int // max operand-stack depth this function's body ever reaches
	Flags        uint32
	UpvalueCount int // number of var-ref cells this function expects at Closure-creation time
	Code       []byte
	Consts     []Const
	SourceFile string
	Lines      []LineEntry
	Inner      []*Function
}

// HasArguments reports whether the function's body references the
// `arguments` object.
func (f *Function) HasArguments() bool { return f.Flags&FlagHasArguments != 0 }

// LineForPC returns the source line recorded for the instruction at pc,
// by finding the entry with the largest PC <= pc.
func (f *Function) LineForPC(pc uint32) uint32 {
	best := uint32(0)
	for _, e := range f.Lines {
		if e.PC <= pc {
			best = e.Line
		} else {
			break
		}
	}
	return best
}

// ---- Serialization ----------------------------------------------------------
//
// Wire format (all integers little-endian):
//
//	u32 nameLen, name bytes
//	u32 argCount
//	u32 localCount
//	u32 stackSize
//	u32 flags
//	u32 upvalueCount
//	u32 constCount, [constant]...
//	u32 codeLen, code bytes
//	u32 sourceFileLen, sourceFile bytes
//	u32 lineCount, [u32 pc, u32 line]...
//	u32 innerCount, [function]... (recursively, same format)
//
// constant: u8 kind, then kind-specific payload (i32 / f64 / u32 len+bytes /
// u8 bool / nothing for null|undefined).

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putString(buf []byte, s string) []byte {
	buf = putU32(buf, uint32(len(s)))
	return append(buf, s...)
}

// Serialize encodes fn (and, recursively, every nested function) into the
// wire image described above.
func Serialize(fn *Function) []byte {
	var buf []byte
	buf = appendFunction(buf, fn)
	return buf
}

func appendFunction(buf []byte, fn *Function) []byte {
	buf = putString(buf, fn.Name)
	buf = putU32(buf, uint32(fn.ArgCount))
	buf = putU32(buf, uint32(fn.LocalCount))
	buf = putU32(buf, uint32(fn.StackSize))
	buf = putU32(buf, fn.Flags)
	buf = putU32(buf, uint32(fn.UpvalueCount))

	buf = putU32(buf, uint32(len(fn.Consts)))
	for _, c := range fn.Consts {
		buf = append(buf, byte(c.Kind))
		switch c.Kind {
		case ConstInt:
			buf = putU32(buf, uint32(c.I))
		case ConstFloat64:
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(c.F))
			buf = append(buf, tmp[:]...)
		case ConstString:
			buf = putString(buf, c.S)
		case ConstBool:
			if c.B {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case ConstNull, ConstUndefined:
			// no payload
		}
	}

	buf = putU32(buf, uint32(len(fn.Code)))
	buf = append(buf, fn.Code...)

	buf = putString(buf, fn.SourceFile)

	buf = putU32(buf, uint32(len(fn.Lines)))
	for _, l := range fn.Lines {
		buf = putU32(buf, l.PC)
		buf = putU32(buf, l.Line)
	}

	buf = putU32(buf, uint32(len(fn.Inner)))
	for _, inner := range fn.Inner {
		buf = appendFunction(buf, inner)
	}
	return buf
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("bytecode: truncated image at offset %d", r.pos)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("bytecode: truncated image at offset %d", r.pos)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) u8() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, fmt.Errorf("bytecode: truncated image at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n uint32) ([]byte, error) {
	if r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("bytecode: truncated image at offset %d", r.pos)
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *reader) string() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Deserialize decodes a wire image produced by Serialize back into a
// Function tree. Round-tripping Serialize/Deserialize preserves structural
// equality on bytecode, constants, line table, and nested functions.
func Deserialize(data []byte) (*Function, error) {
	r := &reader{buf: data}
	return readFunction(r)
}

func readFunction(r *reader) (*Function, error) {
	fn := &Function{}

	name, err := r.string()
	if err != nil {
		return nil, err
	}
	fn.Name = name

	argc, err := r.u32()
	if err != nil {
		return nil, err
	}
	fn.ArgCount = int(argc)

	localc, err := r.u32()
	if err != nil {
		return nil, err
	}
	fn.LocalCount = int(localc)

	stackSize, err := r.u32()
	if err != nil {
		return nil, err
	}
	fn.StackSize = int(stackSize)

	flags, err := r.u32()
	if err != nil {
		return nil, err
	}
	fn.Flags = flags

	upvalCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	fn.UpvalueCount = int(upvalCount)

	nConsts, err := r.u32()
	if err != nil {
		return nil, err
	}
	if nConsts > 0 {
		fn.Consts = make([]Const, nConsts)
	}
	for i := range fn.Consts {
		kindByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		kind := ConstKind(kindByte)
		c := Const{Kind: kind}
		switch kind {
		case ConstInt:
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			c.I = int32(v)
		case ConstFloat64:
			v, err := r.u64()
			if err != nil {
				return nil, err
			}
			c.F = math.Float64frombits(v)
		case ConstString:
			s, err := r.string()
			if err != nil {
				return nil, err
			}
			c.S = s
		case ConstBool:
			b, err := r.u8()
			if err != nil {
				return nil, err
			}
			c.B = b != 0
		case ConstNull, ConstUndefined:
		default:
			return nil, fmt.Errorf("bytecode: unknown constant kind %d", kindByte)
		}
		fn.Consts[i] = c
	}

	codeLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	code, err := r.bytes(codeLen)
	if err != nil {
		return nil, err
	}
	fn.Code = append([]byte(nil), code...)

	sourceFile, err := r.string()
	if err != nil {
		return nil, err
	}
	fn.SourceFile = sourceFile

	nLines, err := r.u32()
	if err != nil {
		return nil, err
	}
	if nLines > 0 {
		fn.Lines = make([]LineEntry, nLines)
	}
	for i := range fn.Lines {
		pc, err := r.u32()
		if err != nil {
			return nil, err
		}
		line, err := r.u32()
		if err != nil {
			return nil, err
		}
		fn.Lines[i] = LineEntry{PC: pc, Line: line}
	}

	nInner, err := r.u32()
	if err != nil {
		return nil, err
	}
	if nInner > 0 {
		fn.Inner = make([]*Function, nInner)
	}
	for i := range fn.Inner {
		inner, err := readFunction(r)
		if err != nil {
			return nil, err
		}
		fn.Inner[i] = inner
	}

	return fn, nil
}
