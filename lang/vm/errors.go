// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"errors"
	"fmt"

	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
)

// thrown carries a JS-level exception value up through Go's call stack; it
// is the VM's only channel for catchable errors, so every abstract
// operation that can fail (property access, arithmetic on the wrong type)
// reports through it rather than a plain Go error. A *thrown that escapes
// every frame's handler stack (the top-level program itself has none left
// to check) becomes a *ThrownError at the Run boundary.
type thrown struct {
	value value.Value
}

func (t *thrown) Error() string { return "js exception" }

func (vm *VM) newErrorValue(class heap.ClassId, format string, args ...interface{}) (value.Value, error) {
	return vm.Heap.NewError(class, vm.Strings, fmt.Sprintf(format, args...), vm.protos.forClass(class))
}

// throwError builds the named error class's object and wraps it as a
// *thrown, ready to return straight from an opcode handler.
func (vm *VM) throwError(class heap.ClassId, format string, args ...interface{}) error {
	v, err := vm.newErrorValue(class, format, args...)
	if err != nil {
		return vm.convertGoError(err)
	}
	return &thrown{value: v}
}

func (vm *VM) typeErrorThrow(format string, args ...interface{}) error {
	return vm.throwError(heap.ClassTypeError, format, args...)
}

func (vm *VM) referenceErrorThrow(format string, args ...interface{}) error {
	return vm.throwError(heap.ClassReferenceError, format, args...)
}

func (vm *VM) rangeErrorThrow(format string, args ...interface{}) error {
	return vm.throwError(heap.ClassRangeError, format, args...)
}

func (vm *VM) internalErrorThrow(format string, args ...interface{}) error {
	return vm.throwError(heap.ClassInternalError, format, args...)
}

// convertGoError maps a plain Go error surfaced by the heap layer onto the
// matching entry of spec.md §7's error taxonomy. Out-of-memory is the one
// taxonomy member spec.md §7 marks as not catchable from JS: allocations
// wrapped in allocRetry have already retried once through a GC cycle before
// reaching here (others, such as the error object throwError builds, have
// not), and ErrOutOfMemory always propagates as a real Go error,
// aborting the Context rather than entering a JS catch block. Every other
// recognized Go error becomes a catchable *thrown; anything unrecognized (a
// corrupted heap, a violated invariant) propagates unchanged.
func (vm *VM) convertGoError(err error) error {
	switch {
	case errors.Is(err, heap.ErrOutOfMemory):
		return err
	case errors.Is(err, heap.ErrArrayIndexOutOfRange):
		v, verr := vm.newErrorValue(heap.ClassRangeError, "array index out of range")
		if verr != nil {
			return verr
		}
		return &thrown{value: v}
	case errors.Is(err, ErrStackOverflow):
		v, verr := vm.newErrorValue(heap.ClassInternalError, "stack overflow")
		if verr != nil {
			return verr
		}
		return &thrown{value: v}
	default:
		return err
	}
}
