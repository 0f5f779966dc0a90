// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package log is the engine's ambient structured logger: GC-cycle
// diagnostics (blocks before/after, words freed, cycle duration) and
// InternalError reporting, never called from lang/vm's opcode-dispatch hot
// path. Modeled on geth's log package idiom: a small leveled logger that
// colorizes output on a real terminal and stays plain otherwise.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a log severity, ordered low (most verbose) to high.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (lv Level) String() string {
	switch lv {
	case LevelDebug:
		return "DEBG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERRO"
	default:
		return "????"
	}
}

// color codes, only emitted when the destination is a real terminal.
const (
	colorReset = "\x1b[0m"
	colorGray  = "\x1b[90m"
	colorCyan  = "\x1b[36m"
	colorYellow = "\x1b[33m"
	colorRed   = "\x1b[31m"
)

func (lv Level) color() string {
	switch lv {
	case LevelDebug:
		return colorGray
	case LevelInfo:
		return colorCyan
	case LevelWarn:
		return colorYellow
	case LevelError:
		return colorRed
	default:
		return colorReset
	}
}

// Logger writes leveled, colorized lines to an underlying writer. The zero
// value is not usable; construct with New.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	color    bool
	minLevel Level
}

// New wraps w (pass os.Stderr for the common case) with go-colorable so ANSI
// codes are translated correctly on Windows consoles, and decides whether to
// colorize at all based on go-isatty's terminal detection — piping engine
// output to a file or another process never embeds escape codes.
func New(w io.Writer, minLevel Level) *Logger {
	var colorize bool
	cw := w
	if f, ok := w.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		cw = colorable.NewColorable(f)
	}
	return &Logger{out: cw, color: colorize, minLevel: minLevel}
}

// Default is a ready-to-use Logger writing to stderr at LevelInfo, used by
// packages that don't have (or care about) an embedder-supplied Logger.
var Default = New(os.Stderr, LevelInfo)

// Field is one piece of structured context attached to a log line.
type Field struct {
	Key string
	Val interface{}
}

func F(key string, val interface{}) Field { return Field{Key: key, Val: val} }

func (l *Logger) log(lv Level, msg string, fields ...Field) {
	if lv < l.minLevel {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000")
	if l.color {
		fmt.Fprintf(l.out, "%s%s%s [%s] %s", lv.color(), lv, colorReset, ts, msg)
	} else {
		fmt.Fprintf(l.out, "%s [%s] %s", lv, ts, msg)
	}
	for _, f := range fields {
		fmt.Fprintf(l.out, " %s=%v", f.Key, f.Val)
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields...) }

// Error logs an error-level line. It does not attach a caller frame; use
// InternalError for that when the message denotes an invariant breach.
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields...) }

// InternalError logs an invariant-breach condition (spec.md §7
// InternalError: "should not happen in well-formed programs") with a caller
// frame attached via go-stack, geth's own habit for unexpected-state logging
// — these are rare enough that the cost of capturing a frame is immaterial.
func (l *Logger) InternalError(msg string, fields ...Field) {
	frame := stack.Caller(1)
	all := append([]Field{F("at", fmt.Sprintf("%+v", frame))}, fields...)
	l.log(LevelError, msg, all...)
}

// GCCycle logs one mark-compact collection's before/after shape, the
// embedder-visible diagnostic spec.md §6's memory-stats interface exists to
// support.
func (l *Logger) GCCycle(blocksBefore, blocksAfter int, wordsFreed uint32, dur time.Duration) {
	l.Debug("gc cycle",
		F("blocks_before", blocksBefore),
		F("blocks_after", blocksAfter),
		F("words_freed", wordsFreed),
		F("dur", dur),
	)
}
