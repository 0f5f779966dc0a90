// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package engine is the sole embedder-facing surface of the core described
// by spec.md §6: Context.New, Eval, Compile, Execute, GC,
// Serialize/Deserialize, and MemoryStats. Everything in lang/... is an
// implementation detail reachable only through a Context.
package engine

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/singleflight"

	"github.com/probechain/tinyjs/internal/budget"
	"github.com/probechain/tinyjs/internal/log"
	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/compiler"
	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
	"github.com/probechain/tinyjs/lang/vm"
)

// compileCacheKey digests source with SHA3-256 rather than caching against
// the raw text, so the LRU's key size is fixed regardless of how large an
// embedder's eval() strings get.
func compileCacheKey(source string) [32]byte {
	return sha3.Sum256([]byte(source))
}

// defaultCompileCacheSize bounds the number of distinct source texts whose
// compiled Function tree is kept warm across Eval calls.
const defaultCompileCacheSize = 64

// Context is one embedded interpreter: a single heap arena, its string
// table, and the VM bound to them. It is not safe for concurrent use by
// multiple goroutines except through the compile-cache path, which is
// explicitly singleflight-guarded; everything downstream of Execute touches
// the single-threaded VM described by spec.md §5 and must be serialized by
// the caller.
type Context struct {
	ID uuid.UUID

	Heap    *heap.Heap
	Strings *heap.StringTable
	VM      *vm.VM

	log   *log.Logger
	steps *budget.Governor

	compileCache *lru.Cache
	compileGroup singleflight.Group
}

// New creates a Context over a freshly allocated arena of memSize bytes.
// memSize must be at least heap.MinMemSize (4096); spec.md §8 requires
// smaller sizes to fail loudly, which NewArena already does by returning
// heap.ErrTooSmall.
func New(memSize int) (*Context, error) {
	h, err := heap.NewArena(memSize)
	if err != nil {
		return nil, err
	}
	return newContext(h)
}

// NewOverHeap wraps an already-constructed heap.Heap (e.g. one returned by
// heap.NewMmapped) as a Context, for embedders that want a non-default
// backing store.
func NewOverHeap(h *heap.Heap) (*Context, error) {
	return newContext(h)
}

func newContext(h *heap.Heap) (*Context, error) {
	st := heap.NewStringTable()
	// An empty top-level program gives the VM something to register before
	// the first real Compile/Eval call swaps it for the real root.
	emptyRoot, err := compiler.Compile("<init>", "")
	if err != nil {
		return nil, fmt.Errorf("engine: compile bootstrap program: %w", err)
	}
	v, err := vm.New(h, st, emptyRoot)
	if err != nil {
		return nil, fmt.Errorf("engine: construct vm: %w", err)
	}
	cache, err := lru.New(defaultCompileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: construct compile cache: %w", err)
	}
	return &Context{
		ID:           uuid.New(),
		Heap:         h,
		Strings:      st,
		VM:           v,
		log:          log.Default,
		compileCache: cache,
	}, nil
}

// SetLogger overrides the Context's logger; New defaults to log.Default.
func (c *Context) SetLogger(l *log.Logger) { c.log = l }

// Compile compiles source into a Function tree without executing it,
// consulting and populating the per-Context compile cache keyed by the exact
// source text. Concurrent Compile calls for identical source collapse into
// one compilation via singleflight, since spec.md §5 says nothing about the
// compile cache needing to be contended-safe across hosts sharing a Context
// for read-only compilation even though VM execution itself stays
// single-threaded.
func (c *Context) Compile(source string) (*bytecode.Function, error) {
	key := compileCacheKey(source)
	if cached, ok := c.compileCache.Get(key); ok {
		return cached.(*bytecode.Function), nil
	}
	v, err, _ := c.compileGroup.Do(string(key[:]), func() (interface{}, error) {
		fn, err := compiler.Compile("<eval>", source)
		if err != nil {
			return nil, err
		}
		c.compileCache.Add(key, fn)
		return fn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bytecode.Function), nil
}

// Execute runs a previously compiled Function against this Context's heap
// and VM, returning its final expression value.
func (c *Context) Execute(fn *bytecode.Function) (value.Value, error) {
	return c.VM.Run(fn)
}

// Eval compiles and immediately executes source, the common single-shot
// embedding path.
func (c *Context) Eval(source string) (value.Value, error) {
	fn, err := c.Compile(source)
	if err != nil {
		return value.Undefined, err
	}
	return c.Execute(fn)
}

// GC forces one mark-compact collection cycle and logs its before/after
// shape through the Context's logger.
func (c *Context) GC() heap.GCStats {
	stats, translate := c.Heap.Collect(c.VM.Roots())
	c.Strings.Forget(translate)
	c.log.GCCycle(int(stats.ObjectsBefore), int(stats.ObjectsAfter), stats.WordsBefore-stats.WordsAfter, 0)
	return stats
}

// MemoryStats reports the same totals as spec.md §6's memory_stats, plus the
// per-class counts it lists alongside them.
func (c *Context) MemoryStats() heap.MemoryStats { return c.Heap.Stats() }

// Serialize encodes fn into the wire image described by lang/bytecode.
func Serialize(fn *bytecode.Function) []byte { return bytecode.Serialize(fn) }

// Deserialize decodes a wire image produced by Serialize back into a
// Function tree, ready to pass to Execute.
func Deserialize(data []byte) (*bytecode.Function, error) { return bytecode.Deserialize(data) }
