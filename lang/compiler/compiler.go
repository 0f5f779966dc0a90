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

	deckset "github.com/deckarep/golang-set"

	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/lexer"
	"github.com/probechain/tinyjs/lang/token"
)

// Error is a compilation failure, carrying the source position it occurred
// at so a host can render "file:line:col: message" the way the lexer's own
// ILLEGAL tokens do.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

func errf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// compiler drives a single-pass, precedence-climbing compile of one source
// file into a tree of bytecode.Function values. It holds no AST: every
// production emits bytecode as soon as it is recognized, per spec.
type compiler struct {
	lex *lexer.Lexer

	cur  token.Token
	peek token.Token

	filename string
	fs       *funcState

	declared deckset.Set // created by Compile; nothing adds to or reads it (duplicate declarations are rejected by funcState.declareLocal's scan of fs.locals)
}

// Compile compiles source (from filename, used only for error messages and
// the line table) into the top-level Function. The top-level program is
// itself a Function with ArgCount == 0, per spec.md §4.K.
func Compile(filename, source string) (*bytecode.Function, error) {
	c := &compiler{
		lex:      lexer.New(filename, source),
		filename: filename,
	}
	c.next()
	c.next()

	c.fs = newFuncState(nil, "", 0)
	c.declared = deckset.NewSet()

	for c.cur.Type != token.EOF {
		if err := c.statement(); err != nil {
			return nil, err
		}
	}
	c.fs.emit(bytecode.OpReturnUndef)

	return c.finishFunction(c.fs), nil
}

func (c *compiler) finishFunction(fs *funcState) *bytecode.Function {
	fn := &bytecode.Function{
		Name:         fs.name,
		ArgCount:     fs.argCount,
		LocalCount:   len(fs.locals),
		StackSize:    fs.maxStack,
		UpvalueCount: len(fs.upvalues),
		Code:         fs.code,
		Consts:       fs.consts,
		SourceFile:   c.filename,
		Lines:        fs.lines,
		Inner:        fs.inner,
	}
	if fs.hasArguments {
		fn.Flags |= bytecode.FlagHasArguments
	}
	return fn
}

func (c *compiler) next() {
	c.cur = c.peek
	c.peek = c.lex.NextToken()
}

func (c *compiler) at(t token.Type) bool { return c.cur.Type == t }

func (c *compiler) expect(t token.Type) (token.Token, error) {
	if c.cur.Type != t {
		return token.Token{}, &Error{Pos: c.cur.Pos, Msg: fmt.Sprintf("expected %s, got %s %q", t, c.cur.Type, c.cur.Literal)}
	}
	tok := c.cur
	c.next()
	return tok, nil
}

func (c *compiler) markLine() { c.fs.markLine(uint32(c.cur.Pos.Line)) }
