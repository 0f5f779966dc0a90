// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"github.com/probechain/tinyjs/lang/heap"
	"github.com/probechain/tinyjs/lang/value"
)

// errorClassBase/errorClassCount bound the contiguous run of built-in error
// ClassIds (heap.ClassError..heap.ClassInternalError), so protoTable can keep
// their prototypes in a plain addressable array instead of a map: map values
// aren't addressable in Go, and every prototype slot here must be, since
// vm.Roots feeds &pt fields straight to heap.Collect as GC roots.
const (
	errorClassBase  = heap.ClassError
	errorClassCount = heap.ClassInternalError - heap.ClassError + 1
)

// protoTable holds the built-in prototype objects created once per VM, so
// that every object/array/closure/error constructed at runtime has something
// to chain onto: lang/heap's GetProp never walks this chain itself (that is
// explicitly a VM-level concern, see heap.Object.GetProp), so OpGetField and
// instanceof both lean on protoTable.forClass to find where to keep looking.
//
// Every field is a plain value.Value (never a map value) so that vm.Roots
// can hand heap.Collect a real *value.Value into this struct: Collect both
// marks through and rewrites those pointers in place during compaction, so
// protoTable needs no separate post-GC fixup pass.
type protoTable struct {
	Object   value.Value
	Array    value.Value
	Function value.Value
	String   value.Value
	Number   value.Value
	Boolean  value.Value
	Error    value.Value

	errorProtos [errorClassCount]value.Value
}

// newProtoTable allocates the prototype chain root objects: Object.prototype
// sits at the top (proto Null), every other built-in prototype chains to it,
// and each error class's prototype chains to the base Error.prototype.
func newProtoTable(h *heap.Heap) (protoTable, error) {
	var pt protoTable
	obj, err := h.NewObject(heap.ClassObject, value.Null)
	if err != nil {
		return pt, err
	}
	pt.Object = obj

	mk := func() (value.Value, error) { return h.NewObject(heap.ClassObject, pt.Object) }
	if pt.Array, err = mk(); err != nil {
		return pt, err
	}
	if pt.Function, err = mk(); err != nil {
		return pt, err
	}
	if pt.String, err = mk(); err != nil {
		return pt, err
	}
	if pt.Number, err = mk(); err != nil {
		return pt, err
	}
	if pt.Boolean, err = mk(); err != nil {
		return pt, err
	}
	if pt.Error, err = mk(); err != nil {
		return pt, err
	}

	for i := range pt.errorProtos {
		p, err := h.NewObject(heap.ClassObject, pt.Error)
		if err != nil {
			return pt, err
		}
		pt.errorProtos[i] = p
	}
	return pt, nil
}

// forClass returns the default prototype a freshly constructed object of
// class c should chain onto.
func (pt *protoTable) forClass(c heap.ClassId) value.Value {
	switch c {
	case heap.ClassArray:
		return pt.Array
	case heap.ClassCFunction, heap.ClassClosure:
		return pt.Function
	case heap.ClassString:
		return pt.String
	case heap.ClassNumber:
		return pt.Number
	case heap.ClassBoolean:
		return pt.Boolean
	default:
		if c.IsError() {
			return pt.errorProtos[c-errorClassBase]
		}
		return pt.Object
	}
}

// roots appends pointers to every prototype slot this table holds to out,
// for use as part of heap.Collect's external root list: these objects have
// no other owner, so without this they would be silently compacted away the
// first GC cycle that finds nothing else on the stack still pointing at them.
func (pt *protoTable) roots(out []*value.Value) []*value.Value {
	out = append(out, &pt.Object, &pt.Array, &pt.Function, &pt.String, &pt.Number, &pt.Boolean, &pt.Error)
	for i := range pt.errorProtos {
		out = append(out, &pt.errorProtos[i])
	}
	return out
}
