// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package lexer_test

import (
	"testing"

	"github.com/probechain/tinyjs/lang/lexer"
	"github.com/probechain/tinyjs/lang/token"
)

// tokenCase is a single expected token in a table-driven test.
type tokenCase struct {
	typ     token.Type
	literal string
}

// runTokenize lexes input and checks that it produces exactly the expected
// sequence (plus a final EOF).
func runTokenize(t *testing.T, name, input string, want []tokenCase) {
	t.Helper()
	t.Run(name, func(t *testing.T) {
		t.Helper()
		l := lexer.New("test.js", input)
		toks := l.Tokenize()

		if len(toks) == 0 {
			t.Fatal("Tokenize returned empty slice")
		}
		last := toks[len(toks)-1]
		if last.Type != token.EOF {
			t.Errorf("last token is %s, want EOF", last.Type)
		}
		body := toks[:len(toks)-1]

		if len(body) != len(want) {
			t.Errorf("got %d tokens (excl. EOF), want %d", len(body), len(want))
			for i, tok := range body {
				t.Logf("  [%d] %s %q", i, tok.Type, tok.Literal)
			}
			return
		}
		for i, w := range want {
			got := body[i]
			if got.Type != w.typ {
				t.Errorf("token[%d]: type = %s, want %s (literal %q)", i, got.Type, w.typ, got.Literal)
			}
			if got.Literal != w.literal {
				t.Errorf("token[%d]: literal = %q, want %q", i, got.Literal, w.literal)
			}
		}
	})
}

func TestLexer_Punctuation(t *testing.T) {
	runTokenize(t, "arith", "1 + 2 * 3;", []tokenCase{
		{token.NUMBER, "1"},
		{token.PLUS, "+"},
		{token.NUMBER, "2"},
		{token.STAR, "*"},
		{token.NUMBER, "3"},
		{token.SEMICOLON, ";"},
	})

	runTokenize(t, "compound-assign", "x += 1;", []tokenCase{
		{token.IDENT, "x"},
		{token.PLUSEQ, "+="},
		{token.NUMBER, "1"},
		{token.SEMICOLON, ";"},
	})

	runTokenize(t, "strict-eq", "a === b !== c", []tokenCase{
		{token.IDENT, "a"},
		{token.STRICTEQ, "==="},
		{token.IDENT, "b"},
		{token.STRICTNE, "!=="},
		{token.IDENT, "c"},
	})

	runTokenize(t, "ushift", "a >>> b >>>= c", []tokenCase{
		{token.IDENT, "a"},
		{token.URSHIFT, ">>>"},
		{token.IDENT, "b"},
		{token.URSHIFTEQ, ">>>="},
		{token.IDENT, "c"},
	})

	runTokenize(t, "increment", "i++; --j", []tokenCase{
		{token.IDENT, "i"},
		{token.PLUSPLUS, "++"},
		{token.SEMICOLON, ";"},
		{token.MINUSMINUS, "--"},
		{token.IDENT, "j"},
	})
}

func TestLexer_Keywords(t *testing.T) {
	runTokenize(t, "decls", "var let const function return if else while for", []tokenCase{
		{token.VAR, "var"},
		{token.LET, "let"},
		{token.CONST, "const"},
		{token.FUNCTION, "function"},
		{token.RETURN, "return"},
		{token.IF, "if"},
		{token.ELSE, "else"},
		{token.WHILE, "while"},
		{token.FOR, "for"},
	})
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"42", 42},
		{"3.14", 3.14},
		{"0", 0},
		{"1e10", 1e10},
		{"1.5e-3", 1.5e-3},
	}
	for _, tt := range tests {
		l := lexer.New("t.js", tt.src)
		tok := l.NextToken()
		if tok.Type != token.NUMBER {
			t.Fatalf("%q: type = %s, want NUMBER", tt.src, tok.Type)
		}
		if tok.Num != tt.want {
			t.Errorf("%q: num = %v, want %v", tt.src, tok.Num, tt.want)
		}
	}
}

func TestLexer_Strings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"quote:\""`, `quote:"`},
	}
	for _, tt := range tests {
		l := lexer.New("t.js", tt.src)
		tok := l.NextToken()
		if tok.Type != token.STRING {
			t.Fatalf("%q: type = %s, want STRING", tt.src, tok.Type)
		}
		if tok.Literal != tt.want {
			t.Errorf("%q: literal = %q, want %q", tt.src, tok.Literal, tt.want)
		}
	}
}

func TestLexer_UnterminatedString(t *testing.T) {
	l := lexer.New("t.js", `"unterminated`)
	tok := l.NextToken()
	if tok.Type != token.ILLEGAL {
		t.Fatalf("type = %s, want ILLEGAL", tok.Type)
	}
}

func TestLexer_Comments(t *testing.T) {
	runTokenize(t, "line-comment", "1; // trailing\n2;", []tokenCase{
		{token.NUMBER, "1"},
		{token.SEMICOLON, ";"},
		{token.NUMBER, "2"},
		{token.SEMICOLON, ";"},
	})

	runTokenize(t, "block-comment", "1 /* skip\nme */ + 2", []tokenCase{
		{token.NUMBER, "1"},
		{token.PLUS, "+"},
		{token.NUMBER, "2"},
	})
}

func TestLexer_UnterminatedBlockComment(t *testing.T) {
	l := lexer.New("t.js", "1 /* never closes")
	toks := l.Tokenize()
	last := toks[len(toks)-1]
	if last.Type != token.ILLEGAL {
		t.Fatalf("last token = %s, want ILLEGAL", last.Type)
	}
}
