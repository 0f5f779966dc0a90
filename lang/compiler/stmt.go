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

// statement compiles one source statement, dispatching on the leading
// token. There is no statement-level AST node: each case emits bytecode
// directly as it recognizes the production.
func (c *compiler) statement() error {
	c.markLine()
	switch c.cur.Type {
	case token.VAR, token.LET, token.CONST:
		return c.varStatement()
	case token.IF:
		return c.ifStatement()
	case token.WHILE:
		return c.whileStatement()
	case token.DO:
		return c.doWhileStatement()
	case token.FOR:
		return c.forStatement()
	case token.BREAK:
		return c.breakStatement()
	case token.CONTINUE:
		return c.continueStatement()
	case token.RETURN:
		return c.returnStatement()
	case token.THROW:
		return c.throwStatement()
	case token.TRY:
		return c.tryStatement()
	case token.FUNCTION:
		return c.functionDeclaration()
	case token.LBRACE:
		return c.blockStatement()
	case token.PRINT:
		return c.printStatement()
	case token.SEMICOLON:
		c.next()
		return nil
	case token.DEBUGGER:
		c.next()
		c.semi()
		return nil
	default:
		return c.expressionStatement()
	}
}

// semi consumes a trailing semicolon if present. This engine does not
// implement automatic semicolon insertion beyond simply treating the
// terminator as optional.
func (c *compiler) semi() {
	if c.at(token.SEMICOLON) {
		c.next()
	}
}

func (c *compiler) varDeclaratorList() error {
	for {
		nameTok, err := c.expect(token.IDENT)
		if err != nil {
			return err
		}
		slot, err := c.fs.declareLocal(nameTok.Literal)
		if err != nil {
			return &Error{Pos: nameTok.Pos, Msg: err.Error()}
		}
		if c.at(token.ASSIGN) {
			c.next()
			if err := c.expression(); err != nil {
				return err
			}
			c.emitPutLocal(slot)
		}
		if !c.at(token.COMMA) {
			break
		}
		c.next()
	}
	return nil
}

func (c *compiler) varStatement() error {
	c.next() // var/let/const
	if err := c.varDeclaratorList(); err != nil {
		return err
	}
	c.semi()
	return nil
}

func (c *compiler) ifStatement() error {
	c.next()
	if _, err := c.expect(token.LPAREN); err != nil {
		return err
	}
	if err := c.expression(); err != nil {
		return err
	}
	if _, err := c.expect(token.RPAREN); err != nil {
		return err
	}
	jf := c.fs.emitJump(bytecode.OpIfFalse)
	if err := c.statement(); err != nil {
		return err
	}
	if c.at(token.ELSE) {
		je := c.fs.emitJump(bytecode.OpGoto)
		c.fs.patchJump(jf)
		c.next()
		if err := c.statement(); err != nil {
			return err
		}
		c.fs.patchJump(je)
	} else {
		c.fs.patchJump(jf)
	}
	return nil
}

func (c *compiler) whileStatement() error {
	c.next()
	if _, err := c.expect(token.LPAREN); err != nil {
		return err
	}
	start := c.fs.here()
	if err := c.expression(); err != nil {
		return err
	}
	if _, err := c.expect(token.RPAREN); err != nil {
		return err
	}
	jend := c.fs.emitJump(bytecode.OpIfFalse)

	loop := &loopCtx{}
	c.fs.loops = append(c.fs.loops, loop)
	if err := c.statement(); err != nil {
		return err
	}
	c.fs.emitGotoTo(start)
	end := c.fs.here()
	c.fs.patchJump(jend)
	c.patchLoop(loop, start, end)
	return nil
}

func (c *compiler) doWhileStatement() error {
	c.next() // do
	start := c.fs.here()
	loop := &loopCtx{}
	c.fs.loops = append(c.fs.loops, loop)
	if err := c.statement(); err != nil {
		return err
	}
	continueTarget := c.fs.here()
	if _, err := c.expect(token.WHILE); err != nil {
		return err
	}
	if _, err := c.expect(token.LPAREN); err != nil {
		return err
	}
	if err := c.expression(); err != nil {
		return err
	}
	if _, err := c.expect(token.RPAREN); err != nil {
		return err
	}
	c.semi()
	jback := c.fs.emitJump(bytecode.OpIfTrue)
	c.fs.patchJumpTo(jback, start)
	end := c.fs.here()
	c.patchLoop(loop, continueTarget, end)
	return nil
}

// forStatement handles both the classic C-style for(init;cond;inc) and
// for-in/for-of, distinguished by a two-token lookahead (an identifier
// immediately followed by `in` or `of`).
func (c *compiler) forStatement() error {
	c.next() // for
	if _, err := c.expect(token.LPAREN); err != nil {
		return err
	}
	c.fs.beginScope()

	declKind := token.ILLEGAL
	if c.at(token.VAR) || c.at(token.LET) || c.at(token.CONST) {
		declKind = c.cur.Type
		c.next()
	}

	if c.at(token.IDENT) && (c.peek.Type == token.IN || c.peek.Type == token.OF) {
		err := c.forEachStatement(declKind)
		c.fs.endScope()
		return err
	}

	if declKind != token.ILLEGAL {
		if err := c.varDeclaratorList(); err != nil {
			c.fs.endScope()
			return err
		}
		if _, err := c.expect(token.SEMICOLON); err != nil {
			c.fs.endScope()
			return err
		}
	} else if c.at(token.SEMICOLON) {
		c.next()
	} else {
		if err := c.expression(); err != nil {
			c.fs.endScope()
			return err
		}
		c.fs.emit(bytecode.OpDrop)
		if _, err := c.expect(token.SEMICOLON); err != nil {
			c.fs.endScope()
			return err
		}
	}

	check := c.fs.here()
	hasCond := !c.at(token.SEMICOLON)
	var jend int
	if hasCond {
		if err := c.expression(); err != nil {
			c.fs.endScope()
			return err
		}
		jend = c.fs.emitJump(bytecode.OpIfFalse)
	}
	if _, err := c.expect(token.SEMICOLON); err != nil {
		c.fs.endScope()
		return err
	}

	// The increment clause's tokens appear here, before the body, but its
	// code must run after the body. Compile it into a scratch buffer (with
	// line tracking suppressed, since the recorded PCs would be wrong once
	// spliced) and append the result after the body compiles.
	savedCode := c.fs.code
	savedSuppress := c.fs.suppressLines
	c.fs.code = nil
	c.fs.suppressLines = true
	if !c.at(token.RPAREN) {
		if err := c.expression(); err != nil {
			c.fs.code = savedCode
			c.fs.suppressLines = savedSuppress
			c.fs.endScope()
			return err
		}
		c.fs.emit(bytecode.OpDrop)
	}
	incCode := c.fs.code
	c.fs.code = savedCode
	c.fs.suppressLines = savedSuppress

	if _, err := c.expect(token.RPAREN); err != nil {
		c.fs.endScope()
		return err
	}

	loop := &loopCtx{}
	c.fs.loops = append(c.fs.loops, loop)
	if err := c.statement(); err != nil {
		c.fs.endScope()
		return err
	}
	continueTarget := c.fs.here()
	c.fs.code = append(c.fs.code, incCode...)
	c.fs.emitGotoTo(check)
	end := c.fs.here()
	if hasCond {
		c.fs.patchJump(jend)
	}
	c.patchLoop(loop, continueTarget, end)
	c.fs.endScope()
	return nil
}

// forEachStatement compiles for-in/for-of once the loop variable has been
// identified as a bare identifier followed by `in`/`of`.
func (c *compiler) forEachStatement(declKind token.Type) error {
	nameTok := c.cur
	c.next()
	isOf := c.at(token.OF)
	c.next() // consume in/of

	var slot int
	if declKind != token.ILLEGAL {
		s, err := c.fs.declareLocal(nameTok.Literal)
		if err != nil {
			return &Error{Pos: nameTok.Pos, Msg: err.Error()}
		}
		slot = s
	} else {
		t, err := c.resolveIdent(nameTok.Literal, nameTok.Pos)
		if err != nil {
			return err
		}
		if t.kind != targetLocal && t.kind != targetArg {
			return &Error{Pos: nameTok.Pos, Msg: "for-in/for-of target must be a simple local"}
		}
		slot = t.slot
	}

	if err := c.expression(); err != nil {
		return err
	}
	if _, err := c.expect(token.RPAREN); err != nil {
		return err
	}
	if isOf {
		c.fs.emit(bytecode.OpForOfStart)
	} else {
		c.fs.emit(bytecode.OpForInStart)
	}

	start := c.fs.here()
	c.fs.emit(bytecode.OpForOfNext)
	jend := c.fs.emitJump(bytecode.OpIfTrue)
	c.emitPutLocal(slot)

	loop := &loopCtx{}
	c.fs.loops = append(c.fs.loops, loop)
	if err := c.statement(); err != nil {
		return err
	}
	continueTarget := c.fs.here()
	c.fs.emitGotoTo(start)
	c.fs.patchJump(jend)
	c.fs.emit(bytecode.OpDrop) // leftover value slot at completion
	c.fs.emit(bytecode.OpDrop) // iterator
	end := c.fs.here()
	c.patchLoop(loop, continueTarget, end)
	return nil
}

// patchLoop resolves a loop's pending break/continue jumps against the
// now-known continue and end targets, and pops it from the loop stack.
func (c *compiler) patchLoop(loop *loopCtx, continueTarget, end int) {
	for _, b := range loop.breaks {
		c.fs.patchJumpTo(b, end)
	}
	for _, ct := range loop.continues {
		c.fs.patchJumpTo(ct, continueTarget)
	}
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
}

func (c *compiler) breakStatement() error {
	pos := c.cur.Pos
	c.next()
	c.semi()
	if len(c.fs.loops) == 0 {
		return &Error{Pos: pos, Msg: "break outside loop"}
	}
	loop := c.fs.loops[len(c.fs.loops)-1]
	j := c.fs.emitJump(bytecode.OpGoto)
	loop.breaks = append(loop.breaks, j)
	return nil
}

func (c *compiler) continueStatement() error {
	pos := c.cur.Pos
	c.next()
	c.semi()
	if len(c.fs.loops) == 0 {
		return &Error{Pos: pos, Msg: "continue outside loop"}
	}
	loop := c.fs.loops[len(c.fs.loops)-1]
	j := c.fs.emitJump(bytecode.OpGoto)
	loop.continues = append(loop.continues, j)
	return nil
}

func (c *compiler) returnStatement() error {
	c.next()
	if c.at(token.SEMICOLON) || c.at(token.RBRACE) || c.at(token.EOF) {
		c.semi()
		c.fs.emit(bytecode.OpReturnUndef)
		return nil
	}
	if err := c.expression(); err != nil {
		return err
	}
	c.semi()
	c.fs.emit(bytecode.OpReturn)
	return nil
}

func (c *compiler) throwStatement() error {
	c.next()
	if err := c.expression(); err != nil {
		return err
	}
	c.semi()
	c.fs.emit(bytecode.OpThrow)
	return nil
}

func (c *compiler) blockStatement() error {
	if _, err := c.expect(token.LBRACE); err != nil {
		return err
	}
	c.fs.beginScope()
	for !c.at(token.RBRACE) && !c.at(token.EOF) {
		if err := c.statement(); err != nil {
			c.fs.endScope()
			return err
		}
	}
	c.fs.endScope()
	_, err := c.expect(token.RBRACE)
	return err
}

func (c *compiler) printStatement() error {
	c.next()
	if err := c.expression(); err != nil {
		return err
	}
	c.semi()
	c.fs.emit(bytecode.OpPrint)
	return nil
}

func (c *compiler) expressionStatement() error {
	if err := c.expression(); err != nil {
		return err
	}
	c.semi()
	c.fs.emit(bytecode.OpDrop)
	return nil
}

// functionDeclaration declares its own name as a local before compiling the
// body, so the function can call itself recursively (the self-reference
// resolves as an upvalue capture of this not-yet-assigned slot).
func (c *compiler) functionDeclaration() error {
	c.next() // function
	nameTok, err := c.expect(token.IDENT)
	if err != nil {
		return err
	}
	slot, err := c.fs.declareLocal(nameTok.Literal)
	if err != nil {
		return &Error{Pos: nameTok.Pos, Msg: err.Error()}
	}
	if _, err := c.functionLiteral(nameTok.Literal); err != nil {
		return err
	}
	c.emitPutLocal(slot)
	return nil
}

// tryStatement compiles try/catch/finally. Catch installs a handler that,
// on throw, resumes with the exception value on top of the stack. Finally
// is compiled once as a Gosub'd subroutine invoked from both the normal and
// caught-exception exit paths.
//
// Break, continue, or return executed from inside the try or catch body
// jumps straight out without routing through the finally subroutine; this
// engine does not unwind non-exceptional control flow through pending
// finally blocks.
func (c *compiler) tryStatement() error {
	c.next() // try
	fs := c.fs

	jcatch := fs.emitJump(bytecode.OpCatch)
	if err := c.blockStatement(); err != nil {
		return err
	}
	fs.emit(bytecode.OpDropCatch)
	fs.emit(bytecode.OpDrop)
	jTrySuccess := fs.emitJump(bytecode.OpGoto)

	fs.patchJump(jcatch)
	hasCatch := c.at(token.CATCH)
	if hasCatch {
		c.next()
		fs.beginScope()
		hasParam := false
		var paramSlot int
		if c.at(token.LPAREN) {
			c.next()
			nameTok, err := c.expect(token.IDENT)
			if err != nil {
				return err
			}
			slot, err := fs.declareLocal(nameTok.Literal)
			if err != nil {
				return &Error{Pos: nameTok.Pos, Msg: err.Error()}
			}
			paramSlot, hasParam = slot, true
			if _, err := c.expect(token.RPAREN); err != nil {
				return err
			}
		}
		if hasParam {
			c.emitPutLocal(paramSlot)
		} else {
			fs.emit(bytecode.OpDrop)
		}
		if _, err := c.expect(token.LBRACE); err != nil {
			return err
		}
		for !c.at(token.RBRACE) {
			if err := c.statement(); err != nil {
				return err
			}
		}
		if _, err := c.expect(token.RBRACE); err != nil {
			return err
		}
		fs.endScope()
	} else {
		fs.emit(bytecode.OpThrow)
	}
	jCatchDone := fs.emitJump(bytecode.OpGoto)

	fs.patchJump(jTrySuccess)
	fs.patchJump(jCatchDone)

	if c.at(token.FINALLY) {
		c.next()
		jgosub := fs.emitJump(bytecode.OpGosub)
		jskip := fs.emitJump(bytecode.OpGoto)
		finallyAddr := fs.here()
		fs.patchJumpTo(jgosub, finallyAddr)
		fs.beginScope()
		if _, err := c.expect(token.LBRACE); err != nil {
			return err
		}
		for !c.at(token.RBRACE) {
			if err := c.statement(); err != nil {
				return err
			}
		}
		if _, err := c.expect(token.RBRACE); err != nil {
			return err
		}
		fs.endScope()
		fs.emit(bytecode.OpRet)
		fs.patchJump(jskip)
	} else if !hasCatch {
		return &Error{Pos: c.cur.Pos, Msg: "try requires a catch or finally clause"}
	}
	return nil
}
