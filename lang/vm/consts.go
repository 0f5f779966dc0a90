// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"fmt"

	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/value"
)

// constSlot caches one materialized constant-pool entry. A slot's heap
// address (for ConstFloat64/ConstString) is only as stable as the last GC
// cycle: vm.Roots walks every live fn's slice and hands &slots[i].v to
// heap.Collect directly, so compaction rewrites these in place rather than
// leaving them to go stale between OpPushConst fetches.
type constSlot struct {
	v  value.Value
	ok bool
}

// constFor returns bytecode constant i of fn as a runtime value.Value,
// materializing (and caching, per *bytecode.Function) it on first use:
// ConstInt/ConstBool/ConstNull/ConstUndefined need no heap allocation, while
// ConstFloat64 boxes into the arena and ConstString interns through
// vm.Strings so repeated string literals share one heap string.
func (vm *VM) constFor(fn *bytecode.Function, i uint32) (value.Value, error) {
	slots := vm.constCache[fn]
	if slots == nil {
		slots = make([]constSlot, len(fn.Consts))
		vm.constCache[fn] = slots
	}
	if slots[i].ok {
		return slots[i].v, nil
	}
	v, err := vm.materializeConst(fn.Consts[i])
	if err != nil {
		return value.Undefined, err
	}
	slots[i] = constSlot{v: v, ok: true}
	return v, nil
}

func (vm *VM) materializeConst(c bytecode.Const) (value.Value, error) {
	switch c.Kind {
	case bytecode.ConstInt:
		return value.Int(c.I), nil
	case bytecode.ConstFloat64:
		return vm.Heap.NewFloat64(c.F)
	case bytecode.ConstString:
		return vm.Strings.Intern(vm.Heap, c.S)
	case bytecode.ConstBool:
		return value.Bool(c.B), nil
	case bytecode.ConstNull:
		return value.Null, nil
	case bytecode.ConstUndefined:
		return value.Undefined, nil
	default:
		return value.Undefined, fmt.Errorf("vm: unknown const kind %d", c.Kind)
	}
}

// constCacheRoots appends a pointer to every cached constant slot across
// every function the VM has ever materialized a constant for, so they ride
// along as GC roots exactly like protoTable's and each Frame's own fields.
func (vm *VM) constCacheRoots(out []*value.Value) []*value.Value {
	for _, slots := range vm.constCache {
		for i := range slots {
			if slots[i].ok {
				out = append(out, &slots[i].v)
			}
		}
	}
	return out
}
