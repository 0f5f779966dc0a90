// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package compiler implements a single-pass, precedence-climbing compiler
// from lang/token's token stream directly to lang/bytecode, with no
// intermediate AST: every production emits bytecode as it is recognized.
package compiler

import (
	"github.com/probechain/tinyjs/lang/bytecode"
)

// local is a declared var/let/const binding within one function.
type local struct {
	name     string
	depth    int
	slot     int
	captured bool // true once some inner function closes over this slot
}

// upvalue describes one entry in a nested function's captured-variable list:
// it is satisfied either from a slot in the immediately enclosing function's
// frame, or by forwarding one of the enclosing function's own upvalues.
type upvalue struct {
	name          string
	fromParentLoc bool
	index         int
}

// loopCtx tracks the patch targets for break/continue inside one enclosing
// loop, and the label to jump to for "continue" (the loop's increment/test).
type loopCtx struct {
	breaks    []int // code offsets of Goto placeholders to patch to the loop's end
	continues []int // code offsets of Goto placeholders to patch to the loop's continue target
}

// funcState is the compiler's bookkeeping for one function body being
// compiled. Nested function literals push a new funcState and pop it when
// their body is fully compiled, mirroring the lexical nesting of the source.
type funcState struct {
	parent *funcState

	name       string
	argCount   int
	params     []string
	locals     []local
	scopeDepth int
	upvalues   []upvalue

	code   []byte
	consts []bytecode.Const
	lines  []bytecode.LineEntry
	lastLine uint32
	suppressLines bool // true while compiling a for-loop increment clause into scratch

	curStack int
	maxStack int

	hasArguments bool

	loops []*loopCtx

	inner []*bytecode.Function
}

func newFuncState(parent *funcState, name string, argCount int) *funcState {
	return &funcState{parent: parent, name: name, argCount: argCount}
}

// ---- Code emission -----------------------------------------------------------

func (fs *funcState) markLine(line uint32) {
	if fs.suppressLines {
		return
	}
	if line != fs.lastLine {
		fs.lines = append(fs.lines, bytecode.LineEntry{PC: uint32(len(fs.code)), Line: line})
		fs.lastLine = line
	}
}

func (fs *funcState) adjustStack(pop, push int) {
	fs.curStack -= pop
	fs.curStack += push
	if fs.curStack > fs.maxStack {
		fs.maxStack = fs.curStack
	}
}

// emit appends a no-operand opcode and applies its static stack effect.
func (fs *funcState) emit(op bytecode.Op) int {
	pos := len(fs.code)
	fs.code = append(fs.code, byte(op))
	info := bytecode.GetInfo(op)
	fs.adjustStack(info.Pop, info.Push)
	return pos
}

// emitCallLike appends an opcode whose pop count depends on a dynamic
// argument count plus one callee slot (Call/CallConstructor), which the
// caller supplies directly since Info.Pop is -1 for these. CallMethod and
// ArrayFrom use emitMethodCallLike and emitArrayFromLike instead.
func (fs *funcState) emitCallLike(op bytecode.Op, argc int) int {
	pos := len(fs.code)
	fs.code = append(fs.code, byte(op))
	fs.code = bytecode.AppendU16(fs.code, uint32(argc))
	info := bytecode.GetInfo(op)
	fs.adjustStack(argc+1, info.Push)
	return pos
}

func (fs *funcState) emitU8(op bytecode.Op, v uint32) int {
	pos := len(fs.code)
	fs.code = append(fs.code, byte(op))
	fs.code = bytecode.AppendU8(fs.code, v)
	info := bytecode.GetInfo(op)
	fs.adjustStack(info.Pop, info.Push)
	return pos
}

func (fs *funcState) emitI8(op bytecode.Op, v int32) int {
	pos := len(fs.code)
	fs.code = append(fs.code, byte(op))
	fs.code = bytecode.AppendI8(fs.code, v)
	info := bytecode.GetInfo(op)
	fs.adjustStack(info.Pop, info.Push)
	return pos
}

func (fs *funcState) emitI16(op bytecode.Op, v int32) int {
	pos := len(fs.code)
	fs.code = append(fs.code, byte(op))
	fs.code = bytecode.AppendI16(fs.code, v)
	info := bytecode.GetInfo(op)
	fs.adjustStack(info.Pop, info.Push)
	return pos
}

func (fs *funcState) emitU16(op bytecode.Op, v uint32) int {
	pos := len(fs.code)
	fs.code = append(fs.code, byte(op))
	fs.code = bytecode.AppendU16(fs.code, v)
	info := bytecode.GetInfo(op)
	fs.adjustStack(info.Pop, info.Push)
	return pos
}

func (fs *funcState) emitU32(op bytecode.Op, v uint32) int {
	pos := len(fs.code)
	fs.code = append(fs.code, byte(op))
	fs.code = bytecode.AppendU32(fs.code, v)
	info := bytecode.GetInfo(op)
	fs.adjustStack(info.Pop, info.Push)
	return pos
}

// emitJump appends a jump-family opcode with a placeholder label operand,
// returning the code offset of the 4-byte operand to patch later.
func (fs *funcState) emitJump(op bytecode.Op) int {
	fs.code = append(fs.code, byte(op))
	operandPos := len(fs.code)
	fs.code = bytecode.AppendI32(fs.code, 0)
	info := bytecode.GetInfo(op)
	fs.adjustStack(info.Pop, info.Push)
	return operandPos
}

// patchJump patches the label at operandPos so it targets the current end
// of the code buffer (labels are relative to the byte after the operand).
func (fs *funcState) patchJump(operandPos int) {
	target := len(fs.code)
	rel := int32(target - (operandPos + 4))
	bytecode.PatchI32(fs.code, operandPos, rel)
}

// patchJumpTo patches the label at operandPos to target a specific offset.
func (fs *funcState) patchJumpTo(operandPos, target int) {
	rel := int32(target - (operandPos + 4))
	bytecode.PatchI32(fs.code, operandPos, rel)
}

// here returns the current end of the code buffer, used as a backward-jump
// target (e.g. the top of a while loop).
func (fs *funcState) here() int { return len(fs.code) }

// emitGotoTo emits an unconditional jump to a known (already-placed) target.
func (fs *funcState) emitGotoTo(target int) {
	fs.code = append(fs.code, byte(bytecode.OpGoto))
	operandPos := len(fs.code)
	fs.code = bytecode.AppendI32(fs.code, 0)
	fs.patchJumpTo(operandPos, target)
}

// emitClosure appends OpClosure referencing inner function index, popping
// upvalCount captured cells (pushed just before by CaptureLoc/CaptureVarRef)
// and pushing the resulting closure value.
func (fs *funcState) emitClosure(index, upvalCount int) {
	fs.code = append(fs.code, byte(bytecode.OpClosure))
	fs.code = bytecode.AppendU16(fs.code, uint32(index))
	fs.adjustStack(upvalCount, 1)
}

// emitMethodCallLike is emitCallLike's counterpart for OpCallMethod, whose
// receiver+function pair (pushed by GetField2/GetArrayEl2) costs one extra
// stack slot beyond a plain call's single callee value.
func (fs *funcState) emitMethodCallLike(op bytecode.Op, argc int) int {
	pos := len(fs.code)
	fs.code = append(fs.code, byte(op))
	fs.code = bytecode.AppendU16(fs.code, uint32(argc))
	info := bytecode.GetInfo(op)
	fs.adjustStack(argc+2, info.Push)
	return pos
}

// emitArrayFromLike appends OpArrayFrom, which pops exactly its element
// count (no implicit callee slot, unlike the Call family).
func (fs *funcState) emitArrayFromLike(n int) {
	fs.code = append(fs.code, byte(bytecode.OpArrayFrom))
	fs.code = bytecode.AppendU16(fs.code, uint32(n))
	fs.adjustStack(n, 1)
}

// ---- Constant pool ------------------------------------------------------------

func (fs *funcState) addConst(c bytecode.Const) int {
	for i, existing := range fs.consts {
		if existing == c {
			return i
		}
	}
	fs.consts = append(fs.consts, c)
	return len(fs.consts) - 1
}

// ---- Scopes and locals --------------------------------------------------------

func (fs *funcState) beginScope() { fs.scopeDepth++ }
func (fs *funcState) endScope()   { fs.scopeDepth-- }

// declareLocal reserves the next frame slot for name at the current scope
// depth. It returns an error if name is already declared at this exact
// depth (shadowing an outer depth is allowed). The returned index is
// locals-relative, matching GetLoc/PutLoc and resolveLocal's own numbering;
// the absolute frame slot (used for upvalue capture) lives in local.slot.
func (fs *funcState) declareLocal(name string) (int, error) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].depth < fs.scopeDepth {
			break
		}
		if fs.locals[i].name == name {
			return 0, errf("identifier %q already declared in this scope", name)
		}
	}
	index := len(fs.locals)
	slot := fs.argCount + index
	fs.locals = append(fs.locals, local{name: name, depth: fs.scopeDepth, slot: slot})
	return index, nil
}

// resolveLocal walks inner-to-outer through fs's own locals (not parents).
func (fs *funcState) resolveLocal(name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i, true
		}
	}
	return -1, false
}

// resolveArg returns the parameter index for name, if it names a parameter.
func (fs *funcState) resolveArg(name string, params []string) (int, bool) {
	for i, p := range params {
		if p == name {
			return i, true
		}
	}
	return -1, false
}

// resolveUpvalue finds or creates an upvalue entry in fs for a name that is
// free in fs but bound in some enclosing function, recursing up the parent
// chain and registering a chained upvalue at every intermediate level.
func (fs *funcState) resolveUpvalue(name string, paramsOf func(*funcState) []string) (int, bool) {
	if fs.parent == nil {
		return -1, false
	}
	for i, uv := range fs.upvalues {
		if uv.name == name {
			return i, true
		}
	}
	if idx, ok := fs.parent.resolveLocal(name); ok {
		fs.parent.locals[idx].captured = true
		fs.upvalues = append(fs.upvalues, upvalue{name: name, fromParentLoc: true, index: fs.parent.locals[idx].slot})
		return len(fs.upvalues) - 1, true
	}
	if idx, ok := fs.parent.resolveArg(name, paramsOf(fs.parent)); ok {
		// Parameters are themselves frame slots 0..argCount-1; treat them the
		// same as locals for capture purposes.
		fs.upvalues = append(fs.upvalues, upvalue{name: name, fromParentLoc: true, index: idx})
		return len(fs.upvalues) - 1, true
	}
	if idx, ok := fs.parent.resolveUpvalue(name, paramsOf); ok {
		fs.upvalues = append(fs.upvalues, upvalue{name: name, fromParentLoc: false, index: idx})
		return len(fs.upvalues) - 1, true
	}
	return -1, false
}
