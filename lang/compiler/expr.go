// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package compiler

import (
	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/token"
)

// targetKind classifies what, if anything, a parsed expression can be
// assigned to. Only a bare identifier, member access, or index access is
// assignable; anything else collapses to targetNone once its value has been
// pushed onto the operand stack.
type targetKind int

const (
	targetNone targetKind = iota
	targetLocal
	targetArg
	targetUpvalue
	targetField // object already pushed; fieldConst names the field
	targetIndex // object and index already pushed
)

// target threads "is this assignable, and how" up through the precedence
// levels without eagerly emitting the read instruction: every level above
// postfixExpr forwards a target untouched until it applies an operator of
// its own, at which point it resolves (reads) the target and collapses to
// targetNone. This is what lets `a.b += 1` defer the GetField half of the
// read until it knows whether an assignment follows.
type target struct {
	kind       targetKind
	slot       int // local/arg frame index, or upvalue index
	fieldConst uint32
}

func (t target) assignable() bool { return t.kind != targetNone }

// resolveTarget emits whatever read instruction t still owes, turning it
// into a plain value on top of the stack. Safe to call on an already-none
// target (no-op).
func (c *compiler) resolveTarget(t *target) error {
	fs := c.fs
	switch t.kind {
	case targetLocal:
		c.emitGetLocal(t.slot)
	case targetArg:
		c.emitGetArg(t.slot)
	case targetUpvalue:
		fs.emitU16(bytecode.OpGetVarRef, uint32(t.slot))
	case targetField:
		fs.emitU16(bytecode.OpGetField, t.fieldConst)
	case targetIndex:
		fs.emit(bytecode.OpGetArrayEl)
	}
	t.kind = targetNone
	return nil
}

func (c *compiler) emitGetLocal(i int) {
	fs := c.fs
	switch i {
	case 0:
		fs.emit(bytecode.OpGetLoc0)
	case 1:
		fs.emit(bytecode.OpGetLoc1)
	case 2:
		fs.emit(bytecode.OpGetLoc2)
	case 3:
		fs.emit(bytecode.OpGetLoc3)
	default:
		if i < 256 {
			fs.emitU8(bytecode.OpGetLoc8, uint32(i))
		} else {
			fs.emitU16(bytecode.OpGetLoc, uint32(i))
		}
	}
}

func (c *compiler) emitPutLocal(i int) {
	fs := c.fs
	switch i {
	case 0:
		fs.emit(bytecode.OpPutLoc0)
	case 1:
		fs.emit(bytecode.OpPutLoc1)
	case 2:
		fs.emit(bytecode.OpPutLoc2)
	case 3:
		fs.emit(bytecode.OpPutLoc3)
	default:
		if i < 256 {
			fs.emitU8(bytecode.OpPutLoc8, uint32(i))
		} else {
			fs.emitU16(bytecode.OpPutLoc, uint32(i))
		}
	}
}

func (c *compiler) emitGetArg(i int) {
	fs := c.fs
	switch i {
	case 0:
		fs.emit(bytecode.OpGetArg0)
	case 1:
		fs.emit(bytecode.OpGetArg1)
	case 2:
		fs.emit(bytecode.OpGetArg2)
	case 3:
		fs.emit(bytecode.OpGetArg3)
	default:
		if i < 256 {
			fs.emitU8(bytecode.OpGetArg8, uint32(i))
		} else {
			fs.emitU16(bytecode.OpGetArg, uint32(i))
		}
	}
}

// emitPut stores the top-of-stack value into whichever simple slot t names
// (local, arg, or upvalue); it must not be called with targetField/Index.
func (c *compiler) emitPut(t target) {
	fs := c.fs
	switch t.kind {
	case targetLocal:
		c.emitPutLocal(t.slot)
	case targetArg:
		// Arguments are written back through the same frame slot locals
		// use for reads; the compiler never emits a dedicated PutArg
		// opcode because the wire format doesn't define one (arguments
		// are conventionally immutable at the call site, but this
		// engine allows rebinding a parameter name like a local).
		c.emitPutLocal(t.slot)
	case targetUpvalue:
		fs.emitU16(bytecode.OpPutVarRef, uint32(t.slot))
	}
}

// storeTarget stores the value currently on top of the stack into t,
// leaving that same value as the expression's result. The stack must
// already carry whatever prerequisite operands t requires (object for
// targetField, object+index for targetIndex) beneath the value.
func (c *compiler) storeTarget(t target) {
	fs := c.fs
	switch t.kind {
	case targetLocal, targetUpvalue:
		fs.emit(bytecode.OpDup)
		c.emitPut(t)
	case targetArg:
		fs.emit(bytecode.OpDup)
		c.emitPutLocal(t.slot)
	case targetField:
		fs.emit(bytecode.OpInsert2)
		fs.emitU16(bytecode.OpPutField, t.fieldConst)
	case targetIndex:
		fs.emit(bytecode.OpInsert3)
		fs.emit(bytecode.OpPutArrayEl)
	}
}

// fetchOldForCompound pushes t's current value for a compound assignment
// (`+=` and friends), duplicating whatever base operands (object, index)
// the target needs so storeTarget can still find them afterward.
func (c *compiler) fetchOldForCompound(t target) {
	fs := c.fs
	switch t.kind {
	case targetLocal:
		c.emitGetLocal(t.slot)
	case targetArg:
		c.emitGetArg(t.slot)
	case targetUpvalue:
		fs.emitU16(bytecode.OpGetVarRef, uint32(t.slot))
	case targetField:
		fs.emit(bytecode.OpDup)
		fs.emitU16(bytecode.OpGetField, t.fieldConst)
	case targetIndex:
		fs.emit(bytecode.OpDup2)
		fs.emit(bytecode.OpGetArrayEl)
	}
}

var compoundOps = map[token.Type]bytecode.Op{
	token.PLUSEQ:     bytecode.OpAdd,
	token.MINUSEQ:    bytecode.OpSub,
	token.STAREQ:     bytecode.OpMul,
	token.SLASHEQ:    bytecode.OpDiv,
	token.PERCENTEQ:  bytecode.OpMod,
	token.STARSTAREQ: bytecode.OpPow,
	token.AMPEQ:      bytecode.OpBitAnd,
	token.PIPEEQ:     bytecode.OpBitOr,
	token.CARETEQ:    bytecode.OpBitXor,
	token.LSHIFTEQ:   bytecode.OpShl,
	token.RSHIFTEQ:   bytecode.OpShr,
	token.URSHIFTEQ:  bytecode.OpUShr,
}

func isAssignOp(t token.Type) bool {
	if t == token.ASSIGN {
		return true
	}
	_, ok := compoundOps[t]
	return ok
}

// expression compiles a full (possibly assigning) expression, leaving
// exactly one value on the stack.
func (c *compiler) expression() error {
	t, err := c.assignmentExpr()
	if err != nil {
		return err
	}
	return c.resolveTarget(&t)
}

// assignmentExpr is the lowest-precedence level. Per spec.md §4.I the
// ternary level sits directly above it; assignment itself is right-
// associative, implemented by recursing back into assignmentExpr for the
// right-hand side.
func (c *compiler) assignmentExpr() (target, error) {
	left, err := c.ternaryExpr()
	if err != nil {
		return target{}, err
	}
	if !isAssignOp(c.cur.Type) {
		return left, nil
	}
	if !left.assignable() {
		return target{}, &Error{Pos: c.cur.Pos, Msg: "invalid assignment target"}
	}
	op := c.cur.Type
	c.next()

	if op != token.ASSIGN {
		c.fetchOldForCompound(left)
	}
	rhs, err := c.assignmentExpr()
	if err != nil {
		return target{}, err
	}
	if err := c.resolveTarget(&rhs); err != nil {
		return target{}, err
	}
	if binOp, ok := compoundOps[op]; ok {
		c.fs.emit(binOp)
	}
	c.storeTarget(left)
	return target{}, nil
}

// ternaryExpr implements `cond ? a : b`, right-associative via recursive
// emission into the "else" branch, per spec.md §4.I.
func (c *compiler) ternaryExpr() (target, error) {
	cond, err := c.logicalOrExpr()
	if err != nil {
		return target{}, err
	}
	if !c.at(token.QUESTION) {
		return cond, nil
	}
	if err := c.resolveTarget(&cond); err != nil {
		return target{}, err
	}
	c.next()
	jf := c.fs.emitJump(bytecode.OpIfFalse)
	if err := c.expression(); err != nil {
		return target{}, err
	}
	je := c.fs.emitJump(bytecode.OpGoto)
	c.fs.patchJump(jf)
	if _, err := c.expect(token.COLON); err != nil {
		return target{}, err
	}
	if err := c.expression(); err != nil {
		return target{}, err
	}
	c.fs.patchJump(je)
	return target{}, nil
}

func (c *compiler) logicalOrExpr() (target, error) {
	left, err := c.logicalAndExpr()
	if err != nil {
		return target{}, err
	}
	for c.at(token.OROR) {
		if err := c.resolveTarget(&left); err != nil {
			return target{}, err
		}
		c.next()
		c.fs.emit(bytecode.OpDup)
		jend := c.fs.emitJump(bytecode.OpIfTrue)
		c.fs.emit(bytecode.OpDrop)
		right, err := c.logicalAndExpr()
		if err != nil {
			return target{}, err
		}
		if err := c.resolveTarget(&right); err != nil {
			return target{}, err
		}
		c.fs.patchJump(jend)
		left = target{}
	}
	return left, nil
}

func (c *compiler) logicalAndExpr() (target, error) {
	left, err := c.bitOrExpr()
	if err != nil {
		return target{}, err
	}
	for c.at(token.ANDAND) {
		if err := c.resolveTarget(&left); err != nil {
			return target{}, err
		}
		c.next()
		c.fs.emit(bytecode.OpDup)
		jend := c.fs.emitJump(bytecode.OpIfFalse)
		c.fs.emit(bytecode.OpDrop)
		right, err := c.bitOrExpr()
		if err != nil {
			return target{}, err
		}
		if err := c.resolveTarget(&right); err != nil {
			return target{}, err
		}
		c.fs.patchJump(jend)
		left = target{}
	}
	return left, nil
}

// binaryLevel compiles a standard left-associative binary level: parse one
// operand via next, then while the current token names an operator at this
// level, resolve both sides and emit it.
func (c *compiler) binaryLevel(ops map[token.Type]bytecode.Op, next func() (target, error)) (target, error) {
	left, err := next()
	if err != nil {
		return target{}, err
	}
	for {
		op, ok := ops[c.cur.Type]
		if !ok {
			return left, nil
		}
		if err := c.resolveTarget(&left); err != nil {
			return target{}, err
		}
		c.next()
		right, err := next()
		if err != nil {
			return target{}, err
		}
		if err := c.resolveTarget(&right); err != nil {
			return target{}, err
		}
		c.fs.emit(op)
		left = target{}
	}
}

var bitOrOps = map[token.Type]bytecode.Op{token.PIPE: bytecode.OpBitOr}
var bitXorOps = map[token.Type]bytecode.Op{token.CARET: bytecode.OpBitXor}
var bitAndOps = map[token.Type]bytecode.Op{token.AMP: bytecode.OpBitAnd}

var equalityOps = map[token.Type]bytecode.Op{
	token.EQ:       bytecode.OpEq,
	token.NEQ:      bytecode.OpNeq,
	token.STRICTEQ: bytecode.OpStrictEq,
	token.STRICTNE: bytecode.OpStrictNeq,
}

var relationalOps = map[token.Type]bytecode.Op{
	token.LT:         bytecode.OpLt,
	token.LTE:        bytecode.OpLte,
	token.GT:         bytecode.OpGt,
	token.GTE:        bytecode.OpGte,
	token.IN:         bytecode.OpIn,
	token.INSTANCEOF: bytecode.OpInstanceOf,
}

var shiftOps = map[token.Type]bytecode.Op{
	token.LSHIFT:  bytecode.OpShl,
	token.RSHIFT:  bytecode.OpShr,
	token.URSHIFT: bytecode.OpUShr,
}

var additiveOps = map[token.Type]bytecode.Op{
	token.PLUS:  bytecode.OpAdd,
	token.MINUS: bytecode.OpSub,
}

var multiplicativeOps = map[token.Type]bytecode.Op{
	token.STAR:    bytecode.OpMul,
	token.SLASH:   bytecode.OpDiv,
	token.PERCENT: bytecode.OpMod,
}

func (c *compiler) bitOrExpr() (target, error) {
	return c.binaryLevel(bitOrOps, c.bitXorExpr)
}
func (c *compiler) bitXorExpr() (target, error) {
	return c.binaryLevel(bitXorOps, c.bitAndExpr)
}
func (c *compiler) bitAndExpr() (target, error) {
	return c.binaryLevel(bitAndOps, c.equalityExpr)
}
func (c *compiler) equalityExpr() (target, error) {
	return c.binaryLevel(equalityOps, c.relationalExpr)
}
func (c *compiler) relationalExpr() (target, error) {
	return c.binaryLevel(relationalOps, c.shiftExpr)
}
func (c *compiler) shiftExpr() (target, error) {
	return c.binaryLevel(shiftOps, c.additiveExpr)
}
func (c *compiler) additiveExpr() (target, error) {
	return c.binaryLevel(additiveOps, c.multiplicativeExpr)
}
func (c *compiler) multiplicativeExpr() (target, error) {
	return c.binaryLevel(multiplicativeOps, c.exponentiationExpr)
}

// exponentiationExpr is right-associative: `2 ** 3 ** 2 == 2 ** (3 ** 2)`.
func (c *compiler) exponentiationExpr() (target, error) {
	left, err := c.unaryExpr()
	if err != nil {
		return target{}, err
	}
	if !c.at(token.STARSTAR) {
		return left, nil
	}
	if err := c.resolveTarget(&left); err != nil {
		return target{}, err
	}
	c.next()
	right, err := c.exponentiationExpr() // recurse at the same level
	if err != nil {
		return target{}, err
	}
	if err := c.resolveTarget(&right); err != nil {
		return target{}, err
	}
	c.fs.emit(bytecode.OpPow)
	return target{}, nil
}

var unaryOps = map[token.Type]bytecode.Op{
	token.MINUS: bytecode.OpNeg,
	token.PLUS:  bytecode.OpPlus,
	token.TILDE: bytecode.OpBitNot,
	token.BANG:  bytecode.OpLogNot,
}

// unaryExpr handles prefix operators, prefix ++/--, typeof, delete, void,
// and new, then falls through to postfixExpr.
func (c *compiler) unaryExpr() (target, error) {
	switch c.cur.Type {
	case token.MINUS, token.PLUS, token.TILDE, token.BANG:
		op := unaryOps[c.cur.Type]
		c.next()
		t, err := c.unaryExpr()
		if err != nil {
			return target{}, err
		}
		if err := c.resolveTarget(&t); err != nil {
			return target{}, err
		}
		c.fs.emit(op)
		return target{}, nil

	case token.TYPEOF:
		c.next()
		t, err := c.unaryExpr()
		if err != nil {
			return target{}, err
		}
		if err := c.resolveTarget(&t); err != nil {
			return target{}, err
		}
		c.fs.emit(bytecode.OpTypeOf)
		return target{}, nil

	case token.VOID:
		c.next()
		t, err := c.unaryExpr()
		if err != nil {
			return target{}, err
		}
		if err := c.resolveTarget(&t); err != nil {
			return target{}, err
		}
		c.fs.emit(bytecode.OpDrop)
		c.fs.emit(bytecode.OpUndefined)
		return target{}, nil

	case token.DELETE:
		c.next()
		t, err := c.unaryExpr()
		if err != nil {
			return target{}, err
		}
		return c.emitDelete(t)

	case token.PLUSPLUS, token.MINUSMINUS:
		isInc := c.cur.Type == token.PLUSPLUS
		c.next()
		t, err := c.unaryExpr()
		if err != nil {
			return target{}, err
		}
		if !t.assignable() {
			return target{}, &Error{Pos: c.cur.Pos, Msg: "invalid increment/decrement target"}
		}
		c.emitIncDec(t, isInc, true)
		return target{}, nil

	case token.NEW:
		return c.newExpr()
	}
	return c.postfixExpr()
}

// emitDelete compiles `delete <target>`: a field/index target becomes a
// Delete opcode over (obj,key); anything else (locals can't be deleted in
// this engine, matching real JS where `delete x` on a binding is a no-op
// that evaluates to false) just discards the value and pushes false.
func (c *compiler) emitDelete(t target) (target, error) {
	fs := c.fs
	switch t.kind {
	case targetField:
		// Stack already holds the object; re-push the field name as a
		// string constant index isn't directly expressible for Delete
		// (which pops a key value, not a const16), so synthesize the key
		// via PushConst referencing the same string constant GetField
		// would have used.
		fs.emitU16(bytecode.OpPushConst, t.fieldConst)
		fs.emit(bytecode.OpDelete)
	case targetIndex:
		fs.emit(bytecode.OpDelete)
	default:
		if err := c.resolveTarget(&t); err != nil {
			return target{}, err
		}
		fs.emit(bytecode.OpDrop)
		fs.emit(bytecode.OpPushFalse)
	}
	return target{}, nil
}

// emitIncDec compiles ++/-- on an assignable target. Locals/args/upvalues
// use the fused PostInc/PostDec/PreInc/PreDec opcodes directly; field and
// index targets duplicate their base operands first (Dup/Dup2) and use
// Insert2/Insert3 to tuck the pre-increment value under the base before the
// store, per spec.md §6's stack-shuffle family.
func (c *compiler) emitIncDec(t target, isInc, isPrefix bool) {
	fs := c.fs
	switch t.kind {
	case targetLocal, targetArg, targetUpvalue:
		c.fetchOldForCompound(t)
		if isPrefix {
			if isInc {
				fs.emit(bytecode.OpPreInc)
			} else {
				fs.emit(bytecode.OpPreDec)
			}
			fs.emit(bytecode.OpDup)
			c.emitPut(t)
		} else {
			if isInc {
				fs.emit(bytecode.OpPostInc)
			} else {
				fs.emit(bytecode.OpPostDec)
			}
			c.emitPut(t)
		}

	case targetField, targetIndex:
		if t.kind == targetField {
			fs.emit(bytecode.OpDup)
			fs.emitU16(bytecode.OpGetField, t.fieldConst)
		} else {
			fs.emit(bytecode.OpDup2)
			fs.emit(bytecode.OpGetArrayEl)
		}
		if isPrefix {
			fs.emit(bytecode.OpPush1)
			if isInc {
				fs.emit(bytecode.OpAdd)
			} else {
				fs.emit(bytecode.OpSub)
			}
			c.storeTarget(t)
		} else {
			if t.kind == targetField {
				fs.emit(bytecode.OpInsert2)
			} else {
				fs.emit(bytecode.OpInsert3)
			}
			fs.emit(bytecode.OpPush1)
			if isInc {
				fs.emit(bytecode.OpAdd)
			} else {
				fs.emit(bytecode.OpSub)
			}
			if t.kind == targetField {
				fs.emitU16(bytecode.OpPutField, t.fieldConst)
			} else {
				fs.emit(bytecode.OpPutArrayEl)
			}
		}
	}
}

// newExpr compiles `new Callee(args)`.
func (c *compiler) newExpr() (target, error) {
	c.next() // consume 'new'
	callee, err := c.postfixExprNoCall()
	if err != nil {
		return target{}, err
	}
	if err := c.resolveTarget(&callee); err != nil {
		return target{}, err
	}
	argc := 0
	if c.at(token.LPAREN) {
		argc, err = c.callArgs()
		if err != nil {
			return target{}, err
		}
	}
	c.fs.emitCallLike(bytecode.OpCallConstructor, argc)
	return target{}, nil
}

// callArgs parses a parenthesized, comma-separated argument list, emitting
// each argument expression in order, and returns the count.
func (c *compiler) callArgs() (int, error) {
	if _, err := c.expect(token.LPAREN); err != nil {
		return 0, err
	}
	n := 0
	for !c.at(token.RPAREN) {
		if n > 0 {
			if _, err := c.expect(token.COMMA); err != nil {
				return 0, err
			}
		}
		if err := c.expression(); err != nil {
			return 0, err
		}
		n++
	}
	if _, err := c.expect(token.RPAREN); err != nil {
		return 0, err
	}
	return n, nil
}
