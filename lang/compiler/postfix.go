// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package compiler

import (
	"fmt"
	"math"

	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/token"
)

func paramsOf(fs *funcState) []string { return fs.params }

// resolveIdent classifies a bare identifier as an argument, local, or
// captured upvalue, in that order, matching how JS resolves a name against
// the nearest enclosing binding.
func (c *compiler) resolveIdent(name string, pos token.Position) (target, error) {
	fs := c.fs
	if idx, ok := fs.resolveArg(name, fs.params); ok {
		return target{kind: targetArg, slot: idx}, nil
	}
	if idx, ok := fs.resolveLocal(name); ok {
		return target{kind: targetLocal, slot: idx}, nil
	}
	if idx, ok := fs.resolveUpvalue(name, paramsOf); ok {
		return target{kind: targetUpvalue, slot: idx}, nil
	}
	return target{}, &Error{Pos: pos, Msg: fmt.Sprintf("undefined identifier %q", name)}
}

func isNegZero(f float64) bool { return f == 0 && math.Signbit(f) }

// emitNumber picks the smallest literal-push encoding that fits n exactly.
func (c *compiler) emitNumber(n float64) {
	fs := c.fs
	if !isNegZero(n) && n == math.Trunc(n) && n >= math.MinInt32 && n <= math.MaxInt32 {
		i := int32(n)
		switch i {
		case -1:
			fs.emit(bytecode.OpPushMinus1)
			return
		case 0:
			fs.emit(bytecode.OpPush0)
			return
		case 1:
			fs.emit(bytecode.OpPush1)
			return
		case 2:
			fs.emit(bytecode.OpPush2)
			return
		case 3:
			fs.emit(bytecode.OpPush3)
			return
		case 4:
			fs.emit(bytecode.OpPush4)
			return
		case 5:
			fs.emit(bytecode.OpPush5)
			return
		case 6:
			fs.emit(bytecode.OpPush6)
			return
		case 7:
			fs.emit(bytecode.OpPush7)
			return
		}
		if i >= -128 && i <= 127 {
			fs.emitI8(bytecode.OpPushI8, i)
			return
		}
		if i >= -32768 && i <= 32767 {
			fs.emitI16(bytecode.OpPushI16, i)
			return
		}
		c.pushConst(bytecode.IntConst(i))
		return
	}
	c.pushConst(bytecode.Float64Const(n))
}

func (c *compiler) pushConst(k bytecode.Const) {
	idx := c.fs.addConst(k)
	if idx < 256 {
		c.fs.emitU8(bytecode.OpPushConst8, uint32(idx))
	} else {
		c.fs.emitU16(bytecode.OpPushConst, uint32(idx))
	}
}

// primaryExpr compiles a literal, parenthesized expression, identifier,
// array/object literal, or function expression.
func (c *compiler) primaryExpr() (target, error) {
	tok := c.cur
	switch tok.Type {
	case token.NUMBER:
		c.next()
		c.emitNumber(tok.Num)
		return target{}, nil

	case token.STRING:
		c.next()
		c.pushConst(bytecode.StringConst(tok.Literal))
		return target{}, nil

	case token.TRUE:
		c.next()
		c.fs.emit(bytecode.OpPushTrue)
		return target{}, nil

	case token.FALSE:
		c.next()
		c.fs.emit(bytecode.OpPushFalse)
		return target{}, nil

	case token.NULL:
		c.next()
		c.fs.emit(bytecode.OpNull)
		return target{}, nil

	case token.THIS:
		c.next()
		c.fs.emit(bytecode.OpPushThis)
		return target{}, nil

	case token.IDENT:
		c.next()
		return c.resolveIdent(tok.Literal, tok.Pos)

	case token.LPAREN:
		c.next()
		t, err := c.assignmentExpr()
		if err != nil {
			return target{}, err
		}
		if _, err := c.expect(token.RPAREN); err != nil {
			return target{}, err
		}
		return t, nil

	case token.LBRACKET:
		return c.arrayLiteral()

	case token.LBRACE:
		return c.objectLiteral()

	case token.FUNCTION:
		c.next()
		name := ""
		if c.at(token.IDENT) {
			name = c.cur.Literal
			c.next()
		}
		return c.functionLiteral(name)
	}
	return target{}, &Error{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected token %s %q", tok.Type, tok.Literal)}
}

// postfixExpr parses a primary expression followed by any chain of member
// access, indexing, calls, and trailing ++/--.
func (c *compiler) postfixExpr() (target, error) { return c.postfixChain(true) }

// postfixExprNoCall stops the chain before a trailing call, used by `new`
// so the constructor's own argument list isn't swallowed as a plain call.
func (c *compiler) postfixExprNoCall() (target, error) { return c.postfixChain(false) }

func (c *compiler) postfixChain(allowCall bool) (target, error) {
	t, err := c.primaryExpr()
	if err != nil {
		return target{}, err
	}
	for {
		switch c.cur.Type {
		case token.DOT:
			c.next()
			nameTok, err := c.expect(token.IDENT)
			if err != nil {
				return target{}, err
			}
			if err := c.resolveTarget(&t); err != nil {
				return target{}, err
			}
			idx := c.fs.addConst(bytecode.StringConst(nameTok.Literal))
			t = target{kind: targetField, fieldConst: uint32(idx)}

		case token.LBRACKET:
			c.next()
			if err := c.resolveTarget(&t); err != nil {
				return target{}, err
			}
			if err := c.expression(); err != nil {
				return target{}, err
			}
			if _, err := c.expect(token.RBRACKET); err != nil {
				return target{}, err
			}
			t = target{kind: targetIndex}

		case token.LPAREN:
			if !allowCall {
				return t, nil
			}
			switch t.kind {
			case targetField:
				c.fs.emitU16(bytecode.OpGetField2, t.fieldConst)
				argc, err := c.callArgs()
				if err != nil {
					return target{}, err
				}
				c.fs.emitMethodCallLike(bytecode.OpCallMethod, argc)
			case targetIndex:
				c.fs.emit(bytecode.OpGetArrayEl2)
				argc, err := c.callArgs()
				if err != nil {
					return target{}, err
				}
				c.fs.emitMethodCallLike(bytecode.OpCallMethod, argc)
			default:
				if err := c.resolveTarget(&t); err != nil {
					return target{}, err
				}
				argc, err := c.callArgs()
				if err != nil {
					return target{}, err
				}
				c.fs.emitCallLike(bytecode.OpCall, argc)
			}
			t = target{}

		case token.PLUSPLUS, token.MINUSMINUS:
			if !t.assignable() {
				return t, nil
			}
			isInc := c.cur.Type == token.PLUSPLUS
			c.next()
			c.emitIncDec(t, isInc, false)
			return target{}, nil

		default:
			return t, nil
		}
	}
}

// arrayLiteral compiles `[e1, e2, ...]` by pushing each element and
// collecting them with ArrayFrom.
func (c *compiler) arrayLiteral() (target, error) {
	c.next() // consume '['
	n := 0
	for !c.at(token.RBRACKET) {
		if n > 0 {
			if _, err := c.expect(token.COMMA); err != nil {
				return target{}, err
			}
			if c.at(token.RBRACKET) {
				break // trailing comma
			}
		}
		if err := c.expression(); err != nil {
			return target{}, err
		}
		n++
	}
	if _, err := c.expect(token.RBRACKET); err != nil {
		return target{}, err
	}
	c.fs.emitArrayFromLike(n)
	return target{}, nil
}

// objectLiteral compiles `{ key: value, ... }`. OpObject creates a fresh
// object (class id 0, the plain-object class), and each DefineField pops
// the value but leaves the object on the stack for the next entry.
func (c *compiler) objectLiteral() (target, error) {
	c.next() // consume '{'
	c.fs.emitU16(bytecode.OpObject, 0)
	for !c.at(token.RBRACE) {
		var keyName string
		switch c.cur.Type {
		case token.IDENT:
			keyName = c.cur.Literal
			c.next()
		case token.STRING:
			keyName = c.cur.Literal
			c.next()
		default:
			if c.cur.Type.IsKeyword() {
				keyName = c.cur.Type.String()
				c.next()
				break
			}
			return target{}, &Error{Pos: c.cur.Pos, Msg: "expected property name"}
		}
		if _, err := c.expect(token.COLON); err != nil {
			return target{}, err
		}
		if err := c.expression(); err != nil {
			return target{}, err
		}
		idx := c.fs.addConst(bytecode.StringConst(keyName))
		c.fs.emitU16(bytecode.OpDefineField, uint32(idx))
		if !c.at(token.RBRACE) {
			if _, err := c.expect(token.COMMA); err != nil {
				return target{}, err
			}
		}
	}
	if _, err := c.expect(token.RBRACE); err != nil {
		return target{}, err
	}
	return target{}, nil
}

// functionLiteral compiles `function name(params) { body }` into a nested
// bytecode.Function appended to the enclosing function's Inner list, then
// emits the upvalue captures (CaptureLoc/CaptureVarRef) and OpClosure
// needed to turn it into a runtime value at this point in the code.
func (c *compiler) functionLiteral(name string) (target, error) {
	parent := c.fs

	if _, err := c.expect(token.LPAREN); err != nil {
		return target{}, err
	}
	var params []string
	for !c.at(token.RPAREN) {
		if len(params) > 0 {
			if _, err := c.expect(token.COMMA); err != nil {
				return target{}, err
			}
		}
		idTok, err := c.expect(token.IDENT)
		if err != nil {
			return target{}, err
		}
		params = append(params, idTok.Literal)
	}
	if _, err := c.expect(token.RPAREN); err != nil {
		return target{}, err
	}

	child := newFuncState(parent, name, len(params))
	child.params = params
	c.fs = child

	if _, err := c.expect(token.LBRACE); err != nil {
		c.fs = parent
		return target{}, err
	}
	for !c.at(token.RBRACE) {
		if err := c.statement(); err != nil {
			c.fs = parent
			return target{}, err
		}
	}
	if _, err := c.expect(token.RBRACE); err != nil {
		c.fs = parent
		return target{}, err
	}
	child.emit(bytecode.OpReturnUndef)

	fn := c.finishFunction(child)
	c.fs = parent

	idx := len(parent.inner)
	parent.inner = append(parent.inner, fn)

	for _, uv := range child.upvalues {
		if uv.fromParentLoc {
			parent.emitU16(bytecode.OpCaptureLoc, uint32(uv.index))
		} else {
			parent.emitU16(bytecode.OpCaptureVarRef, uint32(uv.index))
		}
	}
	parent.emitClosure(idx, len(child.upvalues))

	return target{}, nil
}
