// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"math"

	"github.com/probechain/tinyjs/lang/bytecode"
	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
)

// push reserves one more stack word and stores v there, retrying once through
// a GC cycle on exhaustion: compaction can free slack between the heap and
// stack regions just as readily for a stack push as for a heap allocation.
func (vm *VM) push(v value.Value) error {
	_, err := allocRetry(vm, func() (uint32, error) { return vm.Heap.StackPush(v) })
	return err
}

func (vm *VM) pop() (value.Value, error) { return vm.Heap.StackPop() }

func (vm *VM) popN(n int) ([]value.Value, error) {
	out := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// detachCaptured snapshots every VarRef cell this frame lazily created for
// closures over its own locals/args, so those closures keep working once the
// frame's stack slots are reclaimed on return.
func (f *Frame) detachCaptured(h *heap.Heap) {
	for _, c := range f.captured {
		h.VarRefDetach(c.cell.HeapAddr())
	}
}

// findOrCaptureLoc returns the VarRef cell attached to this frame's absolute
// slot absSlot, creating (and remembering, for reuse by sibling closures) one
// on first capture.
func (vm *VM) findOrCaptureLoc(f *Frame, absSlot uint32) (value.Value, error) {
	if cell, ok := f.findCaptured(absSlot); ok {
		return cell, nil
	}
	cell, err := allocRetry(vm, func() (value.Value, error) {
		return vm.Heap.NewVarRefAttached(f.slotAddr(absSlot))
	})
	if err != nil {
		return value.Undefined, err
	}
	f.captured = append(f.captured, capturedCell{slot: absSlot, cell: cell})
	return cell, nil
}

// decodeLabel reads an i32 operand at code[pc+1:pc+5] and resolves it to an
// absolute pc, per the compiler's convention that labels are relative to the
// byte immediately following the instruction.
func decodeLabel(code []byte, pc uint32) uint32 {
	rel := bytecode.ReadI32(code, int(pc+1))
	return uint32(int64(pc) + 5 + int64(rel))
}

// isStringish reports whether v is a heap reference other than a boxed
// float, the ES5 "has a string-like ToPrimitive result" test this engine
// uses to decide whether + means concatenation.
func (vm *VM) isStringish(v value.Value) bool {
	if !v.IsHeapPtr() {
		return false
	}
	return vm.Heap.HeaderAt(v.HeapAddr()).Tag() != heap.TagFloat64
}

func (vm *VM) isPureString(v value.Value) bool {
	return v.IsHeapPtr() && vm.Heap.HeaderAt(v.HeapAddr()).Tag() == heap.TagString
}

func (vm *VM) add(a, b value.Value) (value.Value, error) {
	if vm.isStringish(a) || vm.isStringish(b) {
		return allocRetry(vm, func() (value.Value, error) {
			return vm.Strings.Intern(vm.Heap, vm.toGoString(a)+vm.toGoString(b))
		})
	}
	return vm.numberValue(vm.toNumber(a) + vm.toNumber(b))
}

func (vm *VM) lessThan(a, b value.Value) bool {
	if vm.isPureString(a) && vm.isPureString(b) {
		return vm.toGoString(a) < vm.toGoString(b)
	}
	return vm.toNumber(a) < vm.toNumber(b)
}

func (vm *VM) lessEq(a, b value.Value) bool {
	if vm.isPureString(a) && vm.isPureString(b) {
		return vm.toGoString(a) <= vm.toGoString(b)
	}
	return vm.toNumber(a) <= vm.toNumber(b)
}

// execFrame is the fetch-decode-execute loop: every opcode f.fn.Code can hold
// is handled by exactly one case below, using the addressing and
// stack-effect contracts the compiler's emitters (lang/compiler) establish.
// Catchable failures (property errors, bad operands, user throw) surface as
// a *thrown and are routed to the innermost still-open handler on this same
// frame, exactly mirroring a native try/catch/finally; anything else (a
// plain Go error, e.g. unrecovered out-of-memory) unwinds the frame.
func (vm *VM) execFrame(f *Frame) (value.Value, error) {
	code := f.fn.Code
	var pc uint32

	// fail routes a failed opcode to the innermost open handler on this frame,
	// reporting where execution resumes; ok is false when nothing caught it
	// and the frame itself must unwind.
	fail := func(err error) (resumePC uint32, ok bool, unwindErr error) {
		if th, isThrown := err.(*thrown); isThrown {
			if n := len(f.handlers); n > 0 {
				h := f.handlers[n-1]
				f.handlers = f.handlers[:n-1]
				vm.Heap.SetStackPtr(h.stackDepth)
				if perr := vm.push(th.value); perr != nil {
					f.detachCaptured(vm.Heap)
					return 0, false, perr
				}
				return h.pc, true, nil
			}
		}
		f.detachCaptured(vm.Heap)
		return 0, false, err
	}

	for {
		op := bytecode.Op(code[pc])
		info := bytecode.GetInfo(op)
		size := uint32(info.Size)
		jumped := false
		var err error

		switch op {
		// ---- Literal pushes -------------------------------------------------
		case bytecode.OpUndefined:
			err = vm.push(value.Undefined)
		case bytecode.OpNull:
			err = vm.push(value.Null)
		case bytecode.OpPushTrue:
			err = vm.push(value.Bool(true))
		case bytecode.OpPushFalse:
			err = vm.push(value.Bool(false))
		case bytecode.OpPushThis:
			err = vm.push(f.this)
		case bytecode.OpPushMinus1:
			err = vm.push(value.Int(-1))
		case bytecode.OpPush0, bytecode.OpPush1, bytecode.OpPush2, bytecode.OpPush3,
			bytecode.OpPush4, bytecode.OpPush5, bytecode.OpPush6, bytecode.OpPush7:
			err = vm.push(value.Int(int32(op - bytecode.OpPush0)))
		case bytecode.OpPushI8:
			err = vm.push(value.Int(bytecode.ReadI8(code, int(pc+1))))
		case bytecode.OpPushI16:
			err = vm.push(value.Int(bytecode.ReadI16(code, int(pc+1))))
		case bytecode.OpPushEmptyString:
			var v value.Value
			v, err = allocRetry(vm, func() (value.Value, error) { return vm.Strings.Intern(vm.Heap, "") })
			if err == nil {
				err = vm.push(v)
			}
		case bytecode.OpPushConst8:
			err = vm.pushConstAt(f, uint32(bytecode.ReadU8(code, int(pc+1))))
		case bytecode.OpPushConst:
			err = vm.pushConstAt(f, bytecode.ReadU16(code, int(pc+1)))
		case bytecode.OpPushValue:
			err = vm.push(value.Value(bytecode.ReadU32(code, int(pc+1))))

		// ---- Locals / arguments ----------------------------------------------
		case bytecode.OpGetLoc0, bytecode.OpGetLoc1, bytecode.OpGetLoc2, bytecode.OpGetLoc3:
			i := uint32(op - bytecode.OpGetLoc0)
			err = vm.push(vm.Heap.Slot(f.slotAddr(uint32(f.fn.ArgCount) + i)))
		case bytecode.OpPutLoc0, bytecode.OpPutLoc1, bytecode.OpPutLoc2, bytecode.OpPutLoc3:
			i := uint32(op - bytecode.OpPutLoc0)
			var v value.Value
			if v, err = vm.pop(); err == nil {
				vm.Heap.SetSlot(f.slotAddr(uint32(f.fn.ArgCount)+i), v)
			}
		case bytecode.OpGetLoc8:
			i := bytecode.ReadU8(code, int(pc+1))
			err = vm.push(vm.Heap.Slot(f.slotAddr(uint32(f.fn.ArgCount) + i)))
		case bytecode.OpPutLoc8:
			i := bytecode.ReadU8(code, int(pc+1))
			var v value.Value
			if v, err = vm.pop(); err == nil {
				vm.Heap.SetSlot(f.slotAddr(uint32(f.fn.ArgCount)+i), v)
			}
		case bytecode.OpGetLoc:
			i := bytecode.ReadU16(code, int(pc+1))
			err = vm.push(vm.Heap.Slot(f.slotAddr(uint32(f.fn.ArgCount) + i)))
		case bytecode.OpPutLoc:
			i := bytecode.ReadU16(code, int(pc+1))
			var v value.Value
			if v, err = vm.pop(); err == nil {
				vm.Heap.SetSlot(f.slotAddr(uint32(f.fn.ArgCount)+i), v)
			}
		case bytecode.OpGetArg0, bytecode.OpGetArg1, bytecode.OpGetArg2, bytecode.OpGetArg3:
			i := uint32(op - bytecode.OpGetArg0)
			err = vm.push(vm.Heap.Slot(f.slotAddr(i)))
		case bytecode.OpGetArg8:
			i := bytecode.ReadU8(code, int(pc+1))
			err = vm.push(vm.Heap.Slot(f.slotAddr(i)))
		case bytecode.OpGetArg:
			i := bytecode.ReadU16(code, int(pc+1))
			err = vm.push(vm.Heap.Slot(f.slotAddr(i)))

		// ---- Var-refs (closure upvalues) --------------------------------------
		case bytecode.OpGetVarRef, bytecode.OpGetVarRefNoCheck:
			idx := bytecode.ReadU16(code, int(pc+1))
			cellAddr := vm.Heap.ArrayGet(vm.Heap.ClosureUpvalues(f.closure.HeapAddr()), idx).HeapAddr()
			v := vm.Heap.VarRefGet(cellAddr)
			if op == bytecode.OpGetVarRef && v.IsUninitialized() {
				err = vm.referenceErrorThrow("cannot access variable before initialization")
			} else {
				err = vm.push(v)
			}
		case bytecode.OpPutVarRef, bytecode.OpPutVarRefNoCheck:
			idx := bytecode.ReadU16(code, int(pc+1))
			var v value.Value
			if v, err = vm.pop(); err == nil {
				cellAddr := vm.Heap.ArrayGet(vm.Heap.ClosureUpvalues(f.closure.HeapAddr()), idx).HeapAddr()
				vm.Heap.VarRefSet(cellAddr, v)
			}

		// ---- Stack shuffles ----------------------------------------------------
		case bytecode.OpDrop:
			var dropped value.Value
			if dropped, err = vm.pop(); err == nil {
				f.lastValue = dropped
			}
		case bytecode.OpNip:
			var a, b value.Value
			if b, err = vm.pop(); err == nil {
				if a, err = vm.pop(); err == nil {
					_ = a
					err = vm.push(b)
				}
			}
		case bytecode.OpDup:
			var a value.Value
			if a, err = vm.pop(); err == nil {
				if err = vm.push(a); err == nil {
					err = vm.push(a)
				}
			}
		case bytecode.OpDup1:
			var a, b value.Value
			if b, err = vm.pop(); err == nil {
				if a, err = vm.pop(); err == nil {
					if err = vm.push(b); err == nil {
						if err = vm.push(a); err == nil {
							err = vm.push(b)
						}
					}
				}
			}
		case bytecode.OpDup2:
			var a, b value.Value
			if b, err = vm.pop(); err == nil {
				if a, err = vm.pop(); err == nil {
					for _, v := range [4]value.Value{a, b, a, b} {
						if err = vm.push(v); err != nil {
							break
						}
					}
				}
			}
		case bytecode.OpInsert2: // a b -> b a b
			var a, b value.Value
			if b, err = vm.pop(); err == nil {
				if a, err = vm.pop(); err == nil {
					for _, v := range [3]value.Value{b, a, b} {
						if err = vm.push(v); err != nil {
							break
						}
					}
				}
			}
		case bytecode.OpInsert3: // a b c -> c a b c
			var a, b, c value.Value
			if c, err = vm.pop(); err == nil {
				if b, err = vm.pop(); err == nil {
					if a, err = vm.pop(); err == nil {
						for _, v := range [4]value.Value{c, a, b, c} {
							if err = vm.push(v); err != nil {
								break
							}
						}
					}
				}
			}
		case bytecode.OpPerm3: // a b c -> c a b
			var a, b, c value.Value
			if c, err = vm.pop(); err == nil {
				if b, err = vm.pop(); err == nil {
					if a, err = vm.pop(); err == nil {
						for _, v := range [3]value.Value{c, a, b} {
							if err = vm.push(v); err != nil {
								break
							}
						}
					}
				}
			}
		case bytecode.OpPerm4: // a b c d -> d a b c
			var a, b, c, d value.Value
			if d, err = vm.pop(); err == nil {
				if c, err = vm.pop(); err == nil {
					if b, err = vm.pop(); err == nil {
						if a, err = vm.pop(); err == nil {
							for _, v := range [4]value.Value{d, a, b, c} {
								if err = vm.push(v); err != nil {
									break
								}
							}
						}
					}
				}
			}
		case bytecode.OpSwap:
			var a, b value.Value
			if b, err = vm.pop(); err == nil {
				if a, err = vm.pop(); err == nil {
					if err = vm.push(b); err == nil {
						err = vm.push(a)
					}
				}
			}
		case bytecode.OpRot3L: // a b c -> b c a
			var a, b, c value.Value
			if c, err = vm.pop(); err == nil {
				if b, err = vm.pop(); err == nil {
					if a, err = vm.pop(); err == nil {
						for _, v := range [3]value.Value{b, c, a} {
							if err = vm.push(v); err != nil {
								break
							}
						}
					}
				}
			}

		// ---- Arithmetic / bitwise ----------------------------------------------
		case bytecode.OpAdd:
			err = vm.binOpValue(func(a, b value.Value) (value.Value, error) { return vm.add(a, b) })
		case bytecode.OpSub:
			err = vm.binOpNum(func(a, b float64) float64 { return a - b })
		case bytecode.OpMul:
			err = vm.binOpNum(func(a, b float64) float64 { return a * b })
		case bytecode.OpDiv:
			err = vm.binOpNum(func(a, b float64) float64 { return a / b })
		case bytecode.OpMod:
			err = vm.binOpNum(func(a, b float64) float64 { return math.Mod(a, b) })
		case bytecode.OpPow:
			err = vm.binOpNum(func(a, b float64) float64 { return math.Pow(a, b) })
		case bytecode.OpNeg:
			err = vm.unOpNum(func(a float64) float64 { return -a })
		case bytecode.OpPlus:
			err = vm.unOpNum(func(a float64) float64 { return a })
		case bytecode.OpBitNot:
			err = vm.unOpNum(func(a float64) float64 { return float64(^toInt32(a)) })
		case bytecode.OpBitAnd:
			err = vm.binOpInt(func(a, b int32) int32 { return a & b })
		case bytecode.OpBitOr:
			err = vm.binOpInt(func(a, b int32) int32 { return a | b })
		case bytecode.OpBitXor:
			err = vm.binOpInt(func(a, b int32) int32 { return a ^ b })
		case bytecode.OpShl:
			err = vm.binOpInt(func(a, b int32) int32 { return a << (uint32(b) & 31) })
		case bytecode.OpShr:
			err = vm.binOpInt(func(a, b int32) int32 { return a >> (uint32(b) & 31) })
		case bytecode.OpUShr:
			var a, b value.Value
			if b, err = vm.pop(); err == nil {
				if a, err = vm.pop(); err == nil {
					r := toUint32(vm.toNumber(a)) >> (toUint32(vm.toNumber(b)) & 31)
					var nv value.Value
					if nv, err = vm.numberValue(float64(r)); err == nil {
						err = vm.push(nv)
					}
				}
			}

		// ---- Comparison / logical -----------------------------------------------
		case bytecode.OpEq:
			err = vm.binOpBool(func(a, b value.Value) bool { return vm.looseEquals(a, b) })
		case bytecode.OpNeq:
			err = vm.binOpBool(func(a, b value.Value) bool { return !vm.looseEquals(a, b) })
		case bytecode.OpStrictEq:
			err = vm.binOpBool(func(a, b value.Value) bool { return vm.strictEquals(a, b) })
		case bytecode.OpStrictNeq:
			err = vm.binOpBool(func(a, b value.Value) bool { return !vm.strictEquals(a, b) })
		case bytecode.OpLt:
			err = vm.binOpBool(func(a, b value.Value) bool { return vm.lessThan(a, b) })
		case bytecode.OpLte:
			err = vm.binOpBool(func(a, b value.Value) bool { return vm.lessEq(a, b) })
		case bytecode.OpGt:
			err = vm.binOpBool(func(a, b value.Value) bool { return vm.lessThan(b, a) })
		case bytecode.OpGte:
			err = vm.binOpBool(func(a, b value.Value) bool { return vm.lessEq(b, a) })
		case bytecode.OpIn:
			var key, recv value.Value
			if recv, err = vm.pop(); err == nil {
				if key, err = vm.pop(); err == nil {
					var has bool
					has, err = vm.hasProperty(recv, key)
					if err == nil {
						err = vm.push(value.Bool(has))
					}
				}
			}
		case bytecode.OpInstanceOf:
			var ctor, val value.Value
			if ctor, err = vm.pop(); err == nil {
				if val, err = vm.pop(); err == nil {
					var b bool
					b, err = vm.instanceOf(val, ctor)
					if err == nil {
						err = vm.push(value.Bool(b))
					}
				}
			}
		case bytecode.OpLogNot:
			var a value.Value
			if a, err = vm.pop(); err == nil {
				err = vm.push(value.Bool(!vm.toBoolean(a)))
			}

		// ---- Increment / decrement -----------------------------------------------
		case bytecode.OpPostInc, bytecode.OpPostDec, bytecode.OpPreInc, bytecode.OpPreDec:
			var v value.Value
			if v, err = vm.pop(); err == nil {
				old := vm.toNumber(v)
				delta := 1.0
				if op == bytecode.OpPostDec || op == bytecode.OpPreDec {
					delta = -1.0
				}
				var oldV, newV value.Value
				if oldV, err = vm.numberValue(old); err == nil {
					if newV, err = vm.numberValue(old + delta); err == nil {
						if op == bytecode.OpPostInc || op == bytecode.OpPostDec {
							if err = vm.push(oldV); err == nil {
								err = vm.push(newV)
							}
						} else {
							err = vm.push(newV)
						}
					}
				}
			}

		// ---- Control flow ---------------------------------------------------------
		case bytecode.OpIfFalse:
			var v value.Value
			if v, err = vm.pop(); err == nil && !vm.toBoolean(v) {
				pc = decodeLabel(code, pc)
				jumped = true
			}
		case bytecode.OpIfTrue:
			var v value.Value
			if v, err = vm.pop(); err == nil && vm.toBoolean(v) {
				pc = decodeLabel(code, pc)
				jumped = true
			}
		case bytecode.OpGoto:
			pc = decodeLabel(code, pc)
			jumped = true
		case bytecode.OpCatch:
			target := decodeLabel(code, pc)
			f.handlers = append(f.handlers, handler{pc: target, stackDepth: vm.Heap.StackPtr()})
			err = vm.push(value.Undefined)
		case bytecode.OpDropCatch:
			if n := len(f.handlers); n > 0 {
				f.handlers = f.handlers[:n-1]
			}
		case bytecode.OpGosub:
			target := decodeLabel(code, pc)
			if err = vm.push(value.Int(int32(pc + size))); err == nil {
				pc = target
				jumped = true
			}
		case bytecode.OpRet:
			var v value.Value
			if v, err = vm.pop(); err == nil {
				pc = uint32(v.Int())
				jumped = true
			}
		case bytecode.OpReturn:
			var v value.Value
			if v, err = vm.pop(); err != nil {
				break
			}
			f.detachCaptured(vm.Heap)
			return v, nil
		case bytecode.OpReturnUndef:
			f.detachCaptured(vm.Heap)
			return value.Undefined, nil
		case bytecode.OpThrow:
			var v value.Value
			if v, err = vm.pop(); err == nil {
				err = &thrown{value: v}
			}

		// ---- Iteration --------------------------------------------------------------
		case bytecode.OpForInStart:
			var obj value.Value
			if obj, err = vm.pop(); err == nil {
				var it value.Value
				it, err = vm.newForInIterator(obj)
				if err == nil {
					err = vm.push(it)
				}
			}
		case bytecode.OpForOfStart:
			var obj value.Value
			if obj, err = vm.pop(); err == nil {
				var it value.Value
				it, err = vm.newForOfIterator(obj)
				if err == nil {
					err = vm.push(it)
				}
			}
		case bytecode.OpForOfNext:
			var it value.Value
			if it, err = vm.pop(); err == nil {
				var val value.Value
				var done bool
				it, val, done, err = vm.iterNext(it)
				if err == nil {
					if err = vm.push(it); err == nil {
						if err = vm.push(val); err == nil {
							err = vm.push(value.Bool(done))
						}
					}
				}
			}

		// ---- Properties --------------------------------------------------------------
		case bytecode.OpGetField:
			idx := bytecode.ReadU16(code, int(pc+1))
			var recv, key value.Value
			if recv, err = vm.pop(); err == nil {
				if key, err = vm.constFor(f.fn, idx); err == nil {
					var v value.Value
					v, err = vm.getProperty(recv, key)
					if err == nil {
						err = vm.push(v)
					}
				}
			}
		case bytecode.OpGetField2:
			idx := bytecode.ReadU16(code, int(pc+1))
			var recv, key value.Value
			if recv, err = vm.pop(); err == nil {
				if key, err = vm.constFor(f.fn, idx); err == nil {
					var v value.Value
					v, err = vm.getProperty(recv, key)
					if err == nil {
						if err = vm.push(recv); err == nil {
							err = vm.push(v)
						}
					}
				}
			}
		case bytecode.OpPutField:
			idx := bytecode.ReadU16(code, int(pc+1))
			var recv, val, key value.Value
			if val, err = vm.pop(); err == nil {
				if recv, err = vm.pop(); err == nil {
					if key, err = vm.constFor(f.fn, idx); err == nil {
						err = vm.setProperty(recv, key, val)
					}
				}
			}
		case bytecode.OpGetArrayEl:
			var recv, key value.Value
			if key, err = vm.pop(); err == nil {
				if recv, err = vm.pop(); err == nil {
					var v value.Value
					v, err = vm.getProperty(recv, key)
					if err == nil {
						err = vm.push(v)
					}
				}
			}
		case bytecode.OpGetArrayEl2:
			var recv, key value.Value
			if key, err = vm.pop(); err == nil {
				if recv, err = vm.pop(); err == nil {
					var v value.Value
					v, err = vm.getProperty(recv, key)
					if err == nil {
						if err = vm.push(recv); err == nil {
							err = vm.push(v)
						}
					}
				}
			}
		case bytecode.OpPutArrayEl:
			var recv, key, val value.Value
			if val, err = vm.pop(); err == nil {
				if key, err = vm.pop(); err == nil {
					if recv, err = vm.pop(); err == nil {
						err = vm.setProperty(recv, key, val)
					}
				}
			}
		case bytecode.OpGetLength:
			var recv, v value.Value
			if recv, err = vm.pop(); err == nil {
				v, err = vm.getLength(recv)
				if err == nil {
					err = vm.push(v)
				}
			}
		case bytecode.OpGetLength2:
			var recv, v value.Value
			if recv, err = vm.pop(); err == nil {
				v, err = vm.getLength(recv)
				if err == nil {
					if err = vm.push(recv); err == nil {
						err = vm.push(v)
					}
				}
			}
		case bytecode.OpDefineField:
			idx := bytecode.ReadU16(code, int(pc+1))
			var obj, val, key value.Value
			if val, err = vm.pop(); err == nil {
				if obj, err = vm.pop(); err == nil {
					if key, err = vm.constFor(f.fn, idx); err == nil {
						if err = vm.Heap.SetProp(obj.HeapAddr(), key, val); err == nil {
							err = vm.push(obj)
						}
					}
				}
			}
		case bytecode.OpDefineGetter:
			idx := bytecode.ReadU16(code, int(pc+1))
			var obj, fn, key value.Value
			if fn, err = vm.pop(); err == nil {
				if obj, err = vm.pop(); err == nil {
					if key, err = vm.constFor(f.fn, idx); err == nil {
						if err = vm.Heap.DefineAccessor(obj.HeapAddr(), key, fn, value.Undefined); err == nil {
							err = vm.push(obj)
						}
					}
				}
			}
		case bytecode.OpDefineSetter:
			idx := bytecode.ReadU16(code, int(pc+1))
			var obj, fn, key value.Value
			if fn, err = vm.pop(); err == nil {
				if obj, err = vm.pop(); err == nil {
					if key, err = vm.constFor(f.fn, idx); err == nil {
						if err = vm.Heap.DefineAccessor(obj.HeapAddr(), key, value.Undefined, fn); err == nil {
							err = vm.push(obj)
						}
					}
				}
			}
		case bytecode.OpSetProto:
			var obj, proto value.Value
			if proto, err = vm.pop(); err == nil {
				if obj, err = vm.pop(); err == nil {
					if obj.IsHeapPtr() {
						vm.Heap.SetProtoOf(obj.HeapAddr(), proto)
					}
					err = vm.push(obj)
				}
			}

		// ---- Calls and construction -------------------------------------------------
		case bytecode.OpCall:
			argc := int(bytecode.ReadU16(code, int(pc+1)))
			var args []value.Value
			if args, err = vm.popN(argc); err == nil {
				var callee value.Value
				if callee, err = vm.pop(); err == nil {
					var result value.Value
					result, err = vm.callValue(callee, value.Undefined, args)
					if err == nil {
						err = vm.push(result)
					}
				}
			}
		case bytecode.OpCallMethod:
			argc := int(bytecode.ReadU16(code, int(pc+1)))
			var args []value.Value
			if args, err = vm.popN(argc); err == nil {
				var method, recv value.Value
				if method, err = vm.pop(); err == nil {
					if recv, err = vm.pop(); err == nil {
						var result value.Value
						result, err = vm.callValue(method, recv, args)
						if err == nil {
							err = vm.push(result)
						}
					}
				}
			}
		case bytecode.OpCallConstructor:
			argc := int(bytecode.ReadU16(code, int(pc+1)))
			var args []value.Value
			if args, err = vm.popN(argc); err == nil {
				var callee value.Value
				if callee, err = vm.pop(); err == nil {
					var result value.Value
					result, err = vm.construct(callee, args)
					if err == nil {
						err = vm.push(result)
					}
				}
			}
		case bytecode.OpArrayFrom:
			n := int(bytecode.ReadU16(code, int(pc+1)))
			var elems []value.Value
			if elems, err = vm.popN(n); err == nil {
				var arr value.Value
				arr, err = allocRetry(vm, func() (value.Value, error) {
					return vm.Heap.NewArrayObject(uint32(n), vm.protos.Array)
				})
				if err == nil {
					for i, el := range elems {
						if err = vm.arraySetIndex(arr.HeapAddr(), uint32(i), el); err != nil {
							break
						}
					}
					if err == nil {
						err = vm.push(arr)
					}
				}
			}
		case bytecode.OpRegexp:
			var src, flags value.Value
			if flags, err = vm.pop(); err == nil {
				if src, err = vm.pop(); err == nil {
					var re value.Value
					re, err = vm.newRegexp(src, flags)
					if err == nil {
						err = vm.push(re)
					}
				}
			}
		case bytecode.OpObject:
			var obj value.Value
			obj, err = allocRetry(vm, func() (value.Value, error) {
				return vm.Heap.NewObject(heap.ClassObject, vm.protos.Object)
			})
			if err == nil {
				err = vm.push(obj)
			}

		// ---- Closures ------------------------------------------------------------
		case bytecode.OpCaptureLoc:
			slot := bytecode.ReadU16(code, int(pc+1))
			var cell value.Value
			cell, err = vm.findOrCaptureLoc(f, slot)
			if err == nil {
				err = vm.push(cell)
			}
		case bytecode.OpCaptureVarRef:
			idx := bytecode.ReadU16(code, int(pc+1))
			cell := vm.Heap.ArrayGet(vm.Heap.ClosureUpvalues(f.closure.HeapAddr()), idx)
			err = vm.push(cell)
		case bytecode.OpClosure:
			idx := bytecode.ReadU16(code, int(pc+1))
			inner := f.fn.Inner[idx]
			n := inner.UpvalueCount
			var cells []value.Value
			if cells, err = vm.popN(int(n)); err == nil {
				innerFnVal := value.ShortFunc(uint32(vm.funcIdx(inner)))
				var closure value.Value
				closure, err = allocRetry(vm, func() (value.Value, error) {
					return vm.Heap.NewClosure(innerFnVal, cells)
				})
				if err == nil {
					vm.Heap.SetProtoOf(closure.HeapAddr(), vm.protos.Function)
					err = vm.push(closure)
				}
			}

		// ---- Misc --------------------------------------------------------------------
		case bytecode.OpNop:
			// no-op
		case bytecode.OpTypeOf:
			var v value.Value
			if v, err = vm.pop(); err == nil {
				var s value.Value
				s, err = vm.typeOf(v)
				if err == nil {
					err = vm.push(s)
				}
			}
		case bytecode.OpDelete:
			var recv, key value.Value
			if key, err = vm.pop(); err == nil {
				if recv, err = vm.pop(); err == nil {
					ok := vm.deleteProperty(recv, key)
					err = vm.push(value.Bool(ok))
				}
			}
		case bytecode.OpPrint:
			var v value.Value
			if v, err = vm.pop(); err == nil {
				vm.printFn(vm.toGoString(v))
			}

		default:
			err = vm.internalErrorThrow("unimplemented opcode %s", op)
		}

		if err != nil {
			resumePC, _, ferr := fail(err)
			if ferr != nil {
				return value.Undefined, ferr
			}
			pc = resumePC
			continue
		}
		if !jumped {
			pc += size
		}
	}
}

func (vm *VM) pushConstAt(f *Frame, idx uint32) error {
	v, err := vm.constFor(f.fn, idx)
	if err != nil {
		return err
	}
	return vm.push(v)
}

func (vm *VM) binOpValue(fn func(a, b value.Value) (value.Value, error)) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	v, err := fn(a, b)
	if err != nil {
		return err
	}
	return vm.push(v)
}

func (vm *VM) binOpNum(fn func(a, b float64) float64) error {
	return vm.binOpValue(func(a, b value.Value) (value.Value, error) {
		return vm.numberValue(fn(vm.toNumber(a), vm.toNumber(b)))
	})
}

func (vm *VM) binOpInt(fn func(a, b int32) int32) error {
	return vm.binOpValue(func(a, b value.Value) (value.Value, error) {
		return vm.numberValue(float64(fn(toInt32(vm.toNumber(a)), toInt32(vm.toNumber(b)))))
	})
}

func (vm *VM) unOpNum(fn func(a float64) float64) error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	v, err := vm.numberValue(fn(vm.toNumber(a)))
	if err != nil {
		return err
	}
	return vm.push(v)
}

func (vm *VM) binOpBool(fn func(a, b value.Value) bool) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(value.Bool(fn(a, b)))
}
