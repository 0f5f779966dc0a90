// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package vm implements the stack-based bytecode VM (spec.md §4.K): a
// fetch-decode-execute loop operating on the arena's stack region, with
// call/return, closures, and exception handling.
package vm

import (
	"errors"
	"fmt"

	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
)

// ErrStackOverflow is raised when the Go call stack depth mirroring JS call
// recursion would exceed maxCallDepth, standing in for spec.md §7's
// InternalError("stack overflow") boundary.
var ErrStackOverflow = errors.New("vm: call stack overflow")

const defaultMaxCallDepth = 512

// ThrownError wraps an uncaught JS-level exception value that propagated out
// of a Run invocation with no matching handler anywhere on the
// call stack, per spec.md §7's "uncaught -> Popped" frame state.
type ThrownError struct {
	Value value.Value
	VM    *VM
}

func (e *ThrownError) Error() string {
	return fmt.Sprintf("uncaught exception: %s", e.VM.describeForError(e.Value))
}

// handler is one active try/catch scope within a single frame, installed by
// Catch and discharged by either DropCatch (normal exit) or a matching Throw
// (exceptional exit).
type handler struct {
	pc         uint32 // catch-entry bytecode offset to resume at
	stackDepth uint32 // arena stack pointer to restore before pushing the exception
}

// capturedCell records a VarRef cell lazily created for one of this frame's
// own slots the first time an inner function literal captures it; later
// CaptureLoc opcodes for the same slot within the same frame reuse it so
// sibling closures observe each other's writes through the shared cell.
type capturedCell struct {
	slot uint32
	cell value.Value
}

// Frame is the VM's bookkeeping for one active call, mirrored by a real Go
// call into execFrame so that call/return and exception unwinding ride Go's
// own call stack instead of a hand-rolled one.
type Frame struct {
	fn      *bytecode.Function
	closure value.Value // the Closure object this frame is running, Undefined for the top-level program
	this    value.Value

	pc uint32

	base      uint32 // arena address of logical slot 0 (arg0)
	returnSP  uint32 // arena stack pointer to restore on return (reclaims args+locals+temps)

	handlers []handler
	captured []capturedCell

	// lastValue holds the operand most recently discarded by OpDrop within
	// this frame. The top-level program has no explicit "return" of its own
	// (the compiler always closes it with ReturnUndef), so Run reports this
	// in place of Undefined, giving a bare expression statement like "1+2;"
	// the completion value spec.md §8's S1/S3/S4 scenarios describe.
	lastValue value.Value
}

func (f *Frame) slotAddr(absSlot uint32) uint32 { return f.base - absSlot }

// findCaptured returns the already-created cell for slot, if any.
func (f *Frame) findCaptured(slot uint32) (value.Value, bool) {
	for _, c := range f.captured {
		if c.slot == slot {
			return c.cell, true
		}
	}
	return 0, false
}

// VM executes compiled functions against one heap arena.
type VM struct {
	Heap    *heap.Heap
	Strings *heap.StringTable

	// funcTable/funcIndex flatten every Function reachable from the root
	// program (itself plus every Inner function, recursively) so a closure
	// can reference its template by a small integer (stored as a
	// value.ShortFunc) instead of a heap allocation, since re-encoding
	// bytecode bytes into the arena would double an embedded target's
	// memory footprint for no benefit over keeping the Go-side tree.
	funcTable []*bytecode.Function
	funcIndex map[*bytecode.Function]int

	frameStack []*Frame

	MaxCallDepth int

	// typeStrings caches the interned TypeOf result strings so the hot path
	// never re-interns "function"/"object"/etc. per opcode.
	typeStrings map[string]value.Value

	// constCache materializes each Function's constant pool lazily and once;
	// see consts.go.
	constCache map[*bytecode.Function][]constSlot

	protos protoTable

	// natives holds every CFunction callable installed on the built-in
	// prototypes (see natives.go); a Closure's ShortFunc index addresses
	// funcTable the same way a CFunction's index addresses this slice.
	natives []NativeFn

	// printFn backs the Print opcode (spec.md's console.log surface); New
	// defaults it to a plain stdout writer, overridable by an embedder that
	// wants output routed elsewhere.
	printFn func(string)
}

// NativeFn is the calling convention for a built-in method: same receiver
// and argument shape as a user closure invoked through callValue, so
// natives.go's registry and the user-defined Closure path share call sites.
type NativeFn func(vm *VM, this value.Value, args []value.Value) (value.Value, error)

// New creates a VM bound to an existing heap and string table, allocating
// the built-in prototype objects (see proto.go) against that same heap.
// root is the top-level program Function whose Inner tree is flattened into
// the VM's closure function table; inner functions compiled later (e.g. by a
// second Eval against the same Context) must be registered via
// RegisterFunction.
func New(h *heap.Heap, st *heap.StringTable, root *bytecode.Function) (*VM, error) {
	protos, err := newProtoTable(h)
	if err != nil {
		return nil, err
	}
	vm := &VM{
		Heap:         h,
		Strings:      st,
		funcIndex:    make(map[*bytecode.Function]int),
		MaxCallDepth: defaultMaxCallDepth,
		typeStrings:  make(map[string]value.Value, 8),
		constCache:   make(map[*bytecode.Function][]constSlot),
		protos:       protos,
		printFn:      func(s string) { fmt.Println(s) },
	}
	vm.RegisterFunction(root)
	if err := vm.installNatives(); err != nil {
		return nil, err
	}
	return vm, nil
}

// SetPrintFn overrides the Print opcode's output sink, for embedders that
// want console.log routed to a logger rather than stdout.
func (vm *VM) SetPrintFn(fn func(string)) { vm.printFn = fn }

// RegisterFunction flattens fn and its Inner tree into the VM's function
// table, assigning each a stable index if it isn't already registered.
func (vm *VM) RegisterFunction(fn *bytecode.Function) int {
	if idx, ok := vm.funcIndex[fn]; ok {
		return idx
	}
	idx := len(vm.funcTable)
	vm.funcTable = append(vm.funcTable, fn)
	vm.funcIndex[fn] = idx
	for _, inner := range fn.Inner {
		vm.RegisterFunction(inner)
	}
	return idx
}

func (vm *VM) funcIdx(fn *bytecode.Function) int {
	idx, ok := vm.funcIndex[fn]
	if !ok {
		idx = vm.RegisterFunction(fn)
	}
	return idx
}

// Roots returns every Value referenced by live VM state that is not already
// covered by the arena stack-region scan: each active frame's closure, this,
// and captured-upvalue cells, plus the built-in prototype objects and every
// cached constant-pool entry, neither of which any stack slot necessarily
// still points at. Pass the result straight through to heap.Collect's
// external parameter; heap.Collect marks through and rewrites these pointers
// in place, so nothing else needs a post-GC fixup pass for them.
func (vm *VM) Roots() []*value.Value {
	var roots []*value.Value
	for _, f := range vm.frameStack {
		roots = append(roots, &f.closure, &f.this)
		for i := range f.captured {
			roots = append(roots, &f.captured[i].cell)
		}
	}
	roots = vm.protos.roots(roots)
	roots = vm.constCacheRoots(roots)
	return roots
}

// gc runs one mark-compact cycle and fixes up every host-side cache that
// isn't already covered by the pointer-based roots above: vm.Strings and
// vm.typeStrings key their entries by Go string, not by Value, so a moved
// heap string can't be fixed up in place and must be rewritten through the
// Translate closure Collect hands back.
func (vm *VM) gc() heap.GCStats {
	stats, translate := vm.Heap.Collect(vm.Roots())
	vm.Strings.Forget(translate)
	for k, v := range vm.typeStrings {
		if nv, ok := translate(v); ok {
			vm.typeStrings[k] = nv
		}
	}
	return stats
}

// allocRetry runs alloc; on heap.ErrOutOfMemory it collects once and retries
// exactly once more, matching spec.md §7's "OOM is fatal, not catchable"
// rule: a second failure propagates unchanged; allocRetry never attempts a
// third time, since a successful GC cycle that still can't satisfy the
// request means the arena is genuinely exhausted, not merely littered.
func allocRetry[T any](vm *VM, alloc func() (T, error)) (T, error) {
	v, err := alloc()
	if err == nil || !errors.Is(err, heap.ErrOutOfMemory) {
		return v, err
	}
	vm.gc()
	return alloc()
}

// Run executes root (the top-level program) to completion and returns its
// final expression value (spec.md §4.K: the program is itself a Function
// with ArgCount == 0). An exception that unwinds every frame with no
// matching Catch anywhere on the call stack surfaces here as a *ThrownError,
// per spec.md §7: "propagates to the host".
func (vm *VM) Run(root *bytecode.Function) (value.Value, error) {
	vm.RegisterFunction(root)
	v, err := vm.invoke(root, value.Undefined, nil)
	if th, ok := err.(*thrown); ok {
		return value.Undefined, &ThrownError{Value: th.value, VM: vm}
	}
	return v, err
}

// invoke lays out a fresh frame for fn, runs it, and reclaims its stack
// region on every exit path (normal return, uncaught throw, or Go error).
func (vm *VM) invoke(fn *bytecode.Function, this value.Value, args []value.Value) (value.Value, error) {
	if len(vm.frameStack) >= vm.MaxCallDepth {
		return value.Undefined, ErrStackOverflow
	}

	for _, a := range args {
		if _, err := vm.Heap.StackPush(a); err != nil {
			return value.Undefined, err
		}
	}
	for i := len(args); i < fn.ArgCount; i++ {
		if _, err := vm.Heap.StackPush(value.Undefined); err != nil {
			return value.Undefined, err
		}
	}
	// args pushed high-address-first (arg0 highest), so arg0's address is
	// the stack pointer immediately after all ArgCount pushes.
	base := vm.Heap.StackPtr() + uint32(fn.ArgCount) - 1

	extraLocals := fn.LocalCount
	if extraLocals > 0 {
		addr, err := vm.Heap.ReserveStackWords(uint32(extraLocals))
		if err != nil {
			return value.Undefined, err
		}
		for a := addr; a < addr+uint32(extraLocals); a++ {
			vm.Heap.SetSlot(a, value.Uninitialized)
		}
	}

	f := &Frame{fn: fn, this: this, base: base, returnSP: base + 1, lastValue: value.Undefined}
	vm.frameStack = append(vm.frameStack, f)
	defer func() {
		vm.Heap.SetStackPtr(f.returnSP)
		vm.frameStack = vm.frameStack[:len(vm.frameStack)-1]
	}()

	v, err := vm.execFrame(f)
	if err == nil && v.IsUndefined() {
		v = f.lastValue
	}
	return v, err
}

// invokeClosure resolves closureAddr's wrapped Function and runs it with the
// given receiver and arguments, exposing its upvalue array to GetVarRef et
// al. via f.closure.
func (vm *VM) invokeClosure(closureVal value.Value, this value.Value, args []value.Value) (value.Value, error) {
	if !closureVal.IsHeapPtr() {
		return value.Undefined, vm.typeErrorThrow("value is not a function")
	}
	addr := closureVal.HeapAddr()
	if vm.Heap.ClassOf(addr) != heap.ClassClosure {
		return value.Undefined, vm.typeErrorThrow("value is not a function")
	}
	fnVal := vm.Heap.ClosureFunction(addr)
	if !fnVal.IsShortFunc() {
		return value.Undefined, fmt.Errorf("vm: closure at %d has no function template", addr)
	}
	fn := vm.funcTable[fnVal.ShortFuncIndex()]

	if len(vm.frameStack) >= vm.MaxCallDepth {
		return value.Undefined, ErrStackOverflow
	}
	for _, a := range args {
		if _, err := vm.Heap.StackPush(a); err != nil {
			return value.Undefined, err
		}
	}
	for i := len(args); i < fn.ArgCount; i++ {
		if _, err := vm.Heap.StackPush(value.Undefined); err != nil {
			return value.Undefined, err
		}
	}
	base := vm.Heap.StackPtr() + uint32(fn.ArgCount) - 1
	extraLocals := fn.LocalCount
	if extraLocals > 0 {
		a, err := vm.Heap.ReserveStackWords(uint32(extraLocals))
		if err != nil {
			return value.Undefined, err
		}
		for s := a; s < a+uint32(extraLocals); s++ {
			vm.Heap.SetSlot(s, value.Uninitialized)
		}
	}

	f := &Frame{fn: fn, closure: closureVal, this: this, base: base, returnSP: base + 1, lastValue: value.Undefined}
	vm.frameStack = append(vm.frameStack, f)
	defer func() {
		vm.Heap.SetStackPtr(f.returnSP)
		vm.frameStack = vm.frameStack[:len(vm.frameStack)-1]
	}()

	return vm.execFrame(f)
}

func (vm *VM) currentFrame() *Frame { return vm.frameStack[len(vm.frameStack)-1] }

func (vm *VM) describeForError(v value.Value) string {
	if v.IsHeapPtr() && vm.Heap.HeaderAt(v.HeapAddr()).Tag() == heap.TagString {
		return vm.Heap.StringAt(v.HeapAddr())
	}
	return v.String()
}
