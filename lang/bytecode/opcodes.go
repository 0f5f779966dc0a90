// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package bytecode defines the stable wire format shared by lang/compiler
// (the producer) and lang/vm (the consumer): the opcode namespace, each
// opcode's byte size and stack effect, the constant-pool value encoding, and
// the Function image serializer.
package bytecode

import "fmt"

// Op is an opcode in the VM's small-integer instruction namespace.
type Op byte

const (
	// ---- Literal pushes -----------------------------------------------------
	OpUndefined Op = iota
	OpNull
	OpPushTrue
	OpPushFalse
	OpPushThis
	OpPushMinus1
	OpPush0
	OpPush1
	OpPush2
	OpPush3
	OpPush4
	OpPush5
	OpPush6
	OpPush7
	OpPushI8     // i8 operand
	OpPushI16    // i16 operand
	OpPushEmptyString
	OpPushConst8 // u8 constant-pool index
	OpPushConst  // u16 constant-pool index
	OpPushValue  // inline u32 word (raw Value, never a heap pointer)

	// ---- Locals / arguments --------------------------------------------------
	OpGetLoc0
	OpGetLoc1
	OpGetLoc2
	OpGetLoc3
	OpPutLoc0
	OpPutLoc1
	OpPutLoc2
	OpPutLoc3
	OpGetLoc8 // u8 slot
	OpPutLoc8 // u8 slot
	OpGetLoc  // u16 slot
	OpPutLoc  // u16 slot
	OpGetArg0
	OpGetArg1
	OpGetArg2
	OpGetArg3
	OpGetArg8 // u8 slot
	OpGetArg  // u16 slot

	// ---- Var-refs (closure upvalues) -----------------------------------------
	OpGetVarRef         // u16 upvalue index, TDZ-checked
	OpPutVarRef         // u16 upvalue index, TDZ-checked
	OpGetVarRefNoCheck  // u16, skips the TDZ check (used for the declaring write)
	OpPutVarRefNoCheck  // u16

	// ---- Stack shuffles -------------------------------------------------------
	OpDrop   // pop 1, push 0
	OpNip    // pop 2, push 1 (discard the one below top)
	OpDup    // pop 1, push 2
	OpDup1   // pop 2, push 3 (duplicate the top over the one below it)
	OpDup2   // pop 2, push 4 (duplicate the top pair)
	OpInsert2 // pop 2, push 3: a b -> b a b
	OpInsert3 // pop 3, push 4: a b c -> c a b c
	OpPerm3   // pop 3, push 3: a b c -> c a b
	OpPerm4   // pop 4, push 4: a b c d -> d a b c
	OpSwap    // pop 2, push 2: a b -> b a
	OpRot3L   // pop 3, push 3: a b c -> b c a

	// ---- Arithmetic / bitwise -------------------------------------------------
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpNeg
	OpPlus // unary +
	OpBitNot
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpUShr

	// ---- Comparison / logical --------------------------------------------------
	OpEq
	OpNeq
	OpStrictEq
	OpStrictNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
	OpInstanceOf
	OpLogNot // unary !

	// ---- Increment / decrement -------------------------------------------------
	OpPostInc // pop 1, push 2: old, new
	OpPostDec
	OpPreInc // pop 1, push 1: new
	OpPreDec

	// ---- Control flow -----------------------------------------------------------
	OpIfFalse // i32 label, pop 1
	OpIfTrue  // i32 label, pop 1
	OpGoto    // i32 label
	OpCatch   // i32 label, push 1 (installs a handler)
	OpDropCatch
	OpGosub // i32 label, used for finally
	OpRet   // pop 1 (return address pushed by Gosub)
	OpReturn
	OpReturnUndef
	OpThrow // pop 1

	// ---- Iteration ---------------------------------------------------------------
	OpForInStart  // pop 1 push 1: object -> iterator
	OpForOfStart  // pop 1 push 1: iterable -> iterator
	OpForOfNext   // pop 1 push 3: iterator -> iterator, value, done

	// ---- Properties ------------------------------------------------------------
	OpGetField   // u16 const string index, pop 1 push 1
	OpGetField2  // u16, pop 1 push 2: obj -> obj, obj[field] (keeps receiver for calls)
	OpPutField   // u16, pop 2 push 0
	OpGetArrayEl  // pop 2 push 1
	OpGetArrayEl2 // pop 2 push 2: obj,idx -> obj, obj[idx]
	OpPutArrayEl  // pop 3 push 0
	OpGetLength   // pop 1 push 1
	OpGetLength2  // pop 1 push 2
	OpDefineField  // u16, pop 2 push 1
	OpDefineGetter // u16, pop 2 push 1
	OpDefineSetter // u16, pop 2 push 1
	OpSetProto     // pop 2 push 1

	// ---- Calls and construction ------------------------------------------------
	OpCall            // u16 argc
	OpCallConstructor // u16 argc
	OpCallMethod      // u16 argc
	OpArrayFrom       // u16 element count
	OpRegexp          // pop 2 push 1: source, flags
	OpObject          // u16 class id, push 1

	// ---- Closures --------------------------------------------------------------
	OpCaptureLoc    // u16 local slot, push 1: attach-or-reuse a var-ref cell for this frame's slot
	OpCaptureVarRef // u16 upvalue index, push 1: forward this frame's own captured cell
	OpClosure       // u16 inner-function index, pops its declared upvalue count, push 1

	// ---- Misc --------------------------------------------------------------------
	OpNop
	OpTypeOf // pop 1 push 1
	OpDelete // pop 2 push 1
	OpPrint  // pop 1 push 0

	opCount
)

// OperandFormat classifies an opcode's trailing operand bytes.
type OperandFormat int

const (
	FmtNone OperandFormat = iota
	FmtI8
	FmtI16
	FmtU8
	FmtU16
	FmtU32
	FmtLabel32 // i32, relative to the byte after the instruction
	FmtInlineValue
)

// Info describes one opcode's wire shape and stack effect.
type Info struct {
	Name   string
	Size   int // total instruction size in bytes, including the opcode byte
	Pop    int
	Push   int
	Format OperandFormat
}

var infoTable = [opCount]Info{
	OpUndefined:       {"Undefined", 1, 0, 1, FmtNone},
	OpNull:            {"Null", 1, 0, 1, FmtNone},
	OpPushTrue:        {"PushTrue", 1, 0, 1, FmtNone},
	OpPushFalse:       {"PushFalse", 1, 0, 1, FmtNone},
	OpPushThis:        {"PushThis", 1, 0, 1, FmtNone},
	OpPushMinus1:      {"PushMinus1", 1, 0, 1, FmtNone},
	OpPush0:           {"Push0", 1, 0, 1, FmtNone},
	OpPush1:           {"Push1", 1, 0, 1, FmtNone},
	OpPush2:           {"Push2", 1, 0, 1, FmtNone},
	OpPush3:           {"Push3", 1, 0, 1, FmtNone},
	OpPush4:           {"Push4", 1, 0, 1, FmtNone},
	OpPush5:           {"Push5", 1, 0, 1, FmtNone},
	OpPush6:           {"Push6", 1, 0, 1, FmtNone},
	OpPush7:           {"Push7", 1, 0, 1, FmtNone},
	OpPushI8:          {"PushI8", 2, 0, 1, FmtI8},
	OpPushI16:         {"PushI16", 3, 0, 1, FmtI16},
	OpPushEmptyString: {"PushEmptyString", 1, 0, 1, FmtNone},
	OpPushConst8:      {"PushConst8", 2, 0, 1, FmtU8},
	OpPushConst:       {"PushConst", 3, 0, 1, FmtU16},
	OpPushValue:       {"PushValue", 5, 0, 1, FmtInlineValue},

	OpGetLoc0: {"GetLoc0", 1, 0, 1, FmtNone},
	OpGetLoc1: {"GetLoc1", 1, 0, 1, FmtNone},
	OpGetLoc2: {"GetLoc2", 1, 0, 1, FmtNone},
	OpGetLoc3: {"GetLoc3", 1, 0, 1, FmtNone},
	OpPutLoc0: {"PutLoc0", 1, 1, 0, FmtNone},
	OpPutLoc1: {"PutLoc1", 1, 1, 0, FmtNone},
	OpPutLoc2: {"PutLoc2", 1, 1, 0, FmtNone},
	OpPutLoc3: {"PutLoc3", 1, 1, 0, FmtNone},
	OpGetLoc8: {"GetLoc8", 2, 0, 1, FmtU8},
	OpPutLoc8: {"PutLoc8", 2, 1, 0, FmtU8},
	OpGetLoc:  {"GetLoc", 3, 0, 1, FmtU16},
	OpPutLoc:  {"PutLoc", 3, 1, 0, FmtU16},
	OpGetArg0: {"GetArg0", 1, 0, 1, FmtNone},
	OpGetArg1: {"GetArg1", 1, 0, 1, FmtNone},
	OpGetArg2: {"GetArg2", 1, 0, 1, FmtNone},
	OpGetArg3: {"GetArg3", 1, 0, 1, FmtNone},
	OpGetArg8: {"GetArg8", 2, 0, 1, FmtU8},
	OpGetArg:  {"GetArg", 3, 0, 1, FmtU16},

	OpGetVarRef:        {"GetVarRef", 3, 0, 1, FmtU16},
	OpPutVarRef:        {"PutVarRef", 3, 1, 0, FmtU16},
	OpGetVarRefNoCheck: {"GetVarRefNoCheck", 3, 0, 1, FmtU16},
	OpPutVarRefNoCheck: {"PutVarRefNoCheck", 3, 1, 0, FmtU16},

	OpDrop:    {"Drop", 1, 1, 0, FmtNone},
	OpNip:     {"Nip", 1, 2, 1, FmtNone},
	OpDup:     {"Dup", 1, 1, 2, FmtNone},
	OpDup1:    {"Dup1", 1, 2, 3, FmtNone},
	OpDup2:    {"Dup2", 1, 2, 4, FmtNone},
	OpInsert2: {"Insert2", 1, 2, 3, FmtNone},
	OpInsert3: {"Insert3", 1, 3, 4, FmtNone},
	OpPerm3:   {"Perm3", 1, 3, 3, FmtNone},
	OpPerm4:   {"Perm4", 1, 4, 4, FmtNone},
	OpSwap:    {"Swap", 1, 2, 2, FmtNone},
	OpRot3L:   {"Rot3L", 1, 3, 3, FmtNone},

	OpAdd:    {"Add", 1, 2, 1, FmtNone},
	OpSub:    {"Sub", 1, 2, 1, FmtNone},
	OpMul:    {"Mul", 1, 2, 1, FmtNone},
	OpDiv:    {"Div", 1, 2, 1, FmtNone},
	OpMod:    {"Mod", 1, 2, 1, FmtNone},
	OpPow:    {"Pow", 1, 2, 1, FmtNone},
	OpNeg:    {"Neg", 1, 1, 1, FmtNone},
	OpPlus:   {"Plus", 1, 1, 1, FmtNone},
	OpBitNot: {"BitNot", 1, 1, 1, FmtNone},
	OpBitAnd: {"BitAnd", 1, 2, 1, FmtNone},
	OpBitOr:  {"BitOr", 1, 2, 1, FmtNone},
	OpBitXor: {"BitXor", 1, 2, 1, FmtNone},
	OpShl:    {"Shl", 1, 2, 1, FmtNone},
	OpShr:    {"Shr", 1, 2, 1, FmtNone},
	OpUShr:   {"UShr", 1, 2, 1, FmtNone},

	OpEq:         {"Eq", 1, 2, 1, FmtNone},
	OpNeq:        {"Neq", 1, 2, 1, FmtNone},
	OpStrictEq:   {"StrictEq", 1, 2, 1, FmtNone},
	OpStrictNeq:  {"StrictNeq", 1, 2, 1, FmtNone},
	OpLt:         {"Lt", 1, 2, 1, FmtNone},
	OpLte:        {"Lte", 1, 2, 1, FmtNone},
	OpGt:         {"Gt", 1, 2, 1, FmtNone},
	OpGte:        {"Gte", 1, 2, 1, FmtNone},
	OpIn:         {"In", 1, 2, 1, FmtNone},
	OpInstanceOf: {"InstanceOf", 1, 2, 1, FmtNone},
	OpLogNot:     {"LogNot", 1, 1, 1, FmtNone},

	OpPostInc: {"PostInc", 1, 1, 2, FmtNone},
	OpPostDec: {"PostDec", 1, 1, 2, FmtNone},
	OpPreInc:  {"PreInc", 1, 1, 1, FmtNone},
	OpPreDec:  {"PreDec", 1, 1, 1, FmtNone},

	OpIfFalse:   {"IfFalse", 5, 1, 0, FmtLabel32},
	OpIfTrue:    {"IfTrue", 5, 1, 0, FmtLabel32},
	OpGoto:      {"Goto", 5, 0, 0, FmtLabel32},
	OpCatch:     {"Catch", 5, 0, 1, FmtLabel32},
	OpDropCatch: {"DropCatch", 1, 0, 0, FmtNone},
	OpGosub:     {"Gosub", 5, 0, 0, FmtLabel32},
	OpRet:       {"Ret", 1, 1, 0, FmtNone},
	OpReturn:    {"Return", 1, 1, 0, FmtNone},
	OpReturnUndef: {"ReturnUndef", 1, 0, 0, FmtNone},
	OpThrow:     {"Throw", 1, 1, 0, FmtNone},

	OpForInStart: {"ForInStart", 1, 1, 1, FmtNone},
	OpForOfStart: {"ForOfStart", 1, 1, 1, FmtNone},
	OpForOfNext:  {"ForOfNext", 1, 1, 3, FmtNone},

	OpGetField:     {"GetField", 3, 1, 1, FmtU16},
	OpGetField2:    {"GetField2", 3, 1, 2, FmtU16},
	OpPutField:     {"PutField", 3, 2, 0, FmtU16},
	OpGetArrayEl:   {"GetArrayEl", 1, 2, 1, FmtNone},
	OpGetArrayEl2:  {"GetArrayEl2", 1, 2, 2, FmtNone},
	OpPutArrayEl:   {"PutArrayEl", 1, 3, 0, FmtNone},
	OpGetLength:    {"GetLength", 1, 1, 1, FmtNone},
	OpGetLength2:   {"GetLength2", 1, 1, 2, FmtNone},
	OpDefineField:  {"DefineField", 3, 2, 1, FmtU16},
	OpDefineGetter: {"DefineGetter", 3, 2, 1, FmtU16},
	OpDefineSetter: {"DefineSetter", 3, 2, 1, FmtU16},
	OpSetProto:     {"SetProto", 1, 2, 1, FmtNone},

	OpCall:            {"Call", 3, -1, 1, FmtU16}, // Pop is argc+1 (callee), computed dynamically
	OpCallConstructor: {"CallConstructor", 3, -1, 1, FmtU16},
	OpCallMethod:      {"CallMethod", 3, -1, 1, FmtU16},
	OpArrayFrom:       {"ArrayFrom", 3, -1, 1, FmtU16},
	OpRegexp:          {"Regexp", 1, 2, 1, FmtNone},
	OpObject:          {"Object", 3, 0, 1, FmtU16},

	OpCaptureLoc:    {"CaptureLoc", 3, 0, 1, FmtU16},
	OpCaptureVarRef: {"CaptureVarRef", 3, 0, 1, FmtU16},
	OpClosure:       {"Closure", 3, -1, 1, FmtU16}, // Pop is the inner function's upvalue count, computed dynamically

	OpNop:    {"Nop", 1, 0, 0, FmtNone},
	OpTypeOf: {"TypeOf", 1, 1, 1, FmtNone},
	OpDelete: {"Delete", 1, 2, 1, FmtNone},
	OpPrint:  {"Print", 1, 1, 0, FmtNone},
}

// GetInfo returns the Info for op. It panics on an opcode outside the known
// namespace, mirroring the VM's "documented stack delta must hold" release
// assumption: an invalid opcode here is a compiler bug, not a runtime input.
func GetInfo(op Op) Info {
	if int(op) >= int(opCount) {
		panic(fmt.Sprintf("bytecode: invalid opcode %d", op))
	}
	return infoTable[op]
}

func (op Op) String() string {
	if int(op) >= int(opCount) {
		return fmt.Sprintf("Op(%d)", op)
	}
	return infoTable[op].Name
}
