package vm

import (
	"github.com/msscript/ms/internal/diag"
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/value"
)

// eval resolves a TAC operand to a runtime Value within ctx (spec §4.4's
// "resolve the source to a value" rule). Compile-time-only operand kinds
// (OConst, OTemp, OVar, OSeqElem, OListLit, OMapLit, OFuncLit,
// OIntrinsicRef) are all handled here; this is the single place runtime
// Values are produced from an Operand.
func (v *VM) eval(ctx *Context, op tac.Operand) (value.Value, *mserr.MSError) {
	switch op.Kind {
	case tac.OConst:
		switch c := op.Const.(type) {
		case nil:
			return value.Nil, nil
		case float64:
			return value.Number(c), nil
		case string:
			return value.String(c), nil
		default:
			return value.Nil, nil
		}
	case tac.OTemp:
		return ctx.temp(op.Temp), nil
	case tac.OVar:
		return v.lookupVar(ctx, op.Name, op.Mode)
	case tac.OSeqElem:
		seq, err := v.eval(ctx, *op.Seq)
		if err != nil {
			return nil, err
		}
		idx, err := v.eval(ctx, *op.Index)
		if err != nil {
			return nil, err
		}
		return v.elemGet(seq, idx)
	case tac.OListLit:
		elems := make([]value.Value, len(op.Elems))
		for i, e := range op.Elems {
			ev, err := v.eval(ctx, e)
			if err != nil {
				return nil, err
			}
			elems[i] = ev
		}
		if len(elems) > v.limits.MaxListElems {
			return nil, mserr.New(mserr.LimitExceeded, diag.LimitExceeded("list literal exceeds maximum length", len(elems), v.limits.MaxListElems))
		}
		return value.NewList(elems), nil
	case tac.OMapLit:
		m := value.NewMap()
		for i, k := range op.Keys {
			kv, err := v.eval(ctx, k)
			if err != nil {
				return nil, err
			}
			vv, err := v.eval(ctx, op.Vals[i])
			if err != nil {
				return nil, err
			}
			m.Set(kv, vv)
		}
		return m, nil
	case tac.OFuncLit:
		return &value.Function{Proto: op.Proto}, nil
	case tac.OIntrinsicRef:
		b, ok := v.registry.Lookup(op.Name)
		if !ok {
			return nil, mserr.New(mserr.UndefinedIdentifier, "undefined intrinsic %q", op.Name)
		}
		return value.Intrinsic{ID: b.ID, Name: b.Name}, nil
	default:
		return value.Nil, nil
	}
}

// lookupVar implements the variable-resolution chain of spec §4.5: locals
// -> outer -> globals -> intrinsics, plus the reserved identifiers
// self/outer/locals/globals (spec §4.5, §9 supplemented `outer`).
func (v *VM) lookupVar(ctx *Context, name string, mode tac.VarMode) (value.Value, *mserr.MSError) {
	switch name {
	case "self":
		return ctx.Self, nil
	case "outer":
		if ctx.Outer == nil {
			return value.NewMap(), nil
		}
		return ctx.Outer, nil
	case "locals":
		return ctx.Locals, nil
	case "globals":
		return v.Globals(), nil
	}

	if val, ok := ctx.Locals.Get(value.String(name)); ok {
		return val, nil
	}
	if mode == tac.VarStrictLocalOnly {
		return nil, mserr.New(mserr.UndefinedLocal, "undefined local identifier %q", name)
	}
	if ctx.Outer != nil {
		if val, ok := ctx.Outer.Get(value.String(name)); ok {
			return val, nil
		}
	}
	if val, ok := v.Globals().Get(value.String(name)); ok {
		return val, nil
	}
	if b, ok := v.registry.Lookup(name); ok {
		return value.Intrinsic{ID: b.ID, Name: b.Name}, nil
	}
	return nil, mserr.New(mserr.UndefinedIdentifier, "%q is not defined", name)
}

// assign stores val into the l-value described by op: a temp, a variable
// (OVar), or a sequence element (OSeqElem); a void destination discards
// val. Assignment to globals/locals/outer is a runtime CompileError per
// spec §4.5; assignment to self sets the context's self field.
func (v *VM) assign(ctx *Context, op tac.Operand, val value.Value) *mserr.MSError {
	switch op.Kind {
	case tac.OTemp:
		ctx.setTemp(op.Temp, val)
		return nil
	case tac.OVar:
		switch op.Name {
		case "self":
			ctx.Self = val
			return nil
		case "globals", "locals", "outer":
			return mserr.New(mserr.CompileError, "cannot assign to %q", op.Name)
		}
		ctx.Locals.Set(value.String(op.Name), val)
		return nil
	case tac.OSeqElem:
		seq, err := v.eval(ctx, *op.Seq)
		if err != nil {
			return err
		}
		idx, err := v.eval(ctx, *op.Index)
		if err != nil {
			return err
		}
		return v.elemSet(seq, idx, val)
	case tac.OVoid:
		return nil
	default:
		return mserr.New(mserr.CompileError, "invalid assignment target")
	}
}

func clampIdx(i, n int) int {
	if i < 0 {
		i += n
	}
	return i
}

// elemGet implements ElemBofA / the dotted-access `resolve(seq, name)`
// rule of spec §4.1/§4.4: a Map always walks its __isa chain regardless
// of the index's type (falling back to the generic map prototype once, if
// it has no __isa of its own); a List/String dispatches to its type
// prototype when indexed by a string (method/dot access) or indexes its
// elements when indexed by a number; a Number/Function/Intrinsic always
// resolves through its type prototype.
func (v *VM) elemGet(seq, idx value.Value) (value.Value, *mserr.MSError) {
	switch t := seq.(type) {
	case *value.Map:
		val, _, ok, depthErr := value.Lookup(t, idx)
		if depthErr {
			return nil, mserr.New(mserr.LimitExceeded, diag.LimitExceeded("__isa chain exceeds maximum depth", value.MaxIsaDepth+1, value.MaxIsaDepth))
		}
		if ok {
			return val, nil
		}
		if _, hasIsa := t.Isa(); !hasIsa {
			if val, ok := v.MapProto().Get(idx); ok {
				return val, nil
			}
		}
		return nil, mserr.New(mserr.KeyNotFound, "key %s not found", value.ToString(idx))
	case *value.List:
		if s, ok := idx.(value.String); ok {
			return v.protoLookup(v.ListProto(), s)
		}
		n := len(t.Elems)
		i := clampIdx(int(value.IntValue(idx)), n)
		if i < 0 || i >= n {
			return nil, mserr.New(mserr.IndexError, "list index out of range (%d)", int(value.IntValue(idx)))
		}
		return t.Elems[i], nil
	case value.String:
		if s, ok := idx.(value.String); ok {
			return v.protoLookup(v.StringProto(), s)
		}
		n := len(t)
		i := clampIdx(int(value.IntValue(idx)), n)
		if i < 0 || i >= n {
			return nil, mserr.New(mserr.IndexError, "string index out of range (%d)", int(value.IntValue(idx)))
		}
		return t[i : i+1], nil
	case value.Number:
		return v.protoLookup(v.NumberProto(), idx)
	case *value.Function, value.Intrinsic:
		return v.protoLookup(v.FunctionProto(), idx)
	case value.Null:
		return nil, mserr.New(mserr.TypeError, "cannot index into null")
	default:
		return nil, mserr.New(mserr.TypeError, "cannot index into %s", seq.TypeName())
	}
}

// protoLookup resolves key through a type prototype's chain. A string key
// the chain does not hold falls back to the built-in of that name when the
// built-in's first parameter is `self`, so `lst.push` or `s.split` reach
// the push/split built-ins.
func (v *VM) protoLookup(proto *value.Map, key value.Value) (value.Value, *mserr.MSError) {
	val, _, ok, depthErr := value.Lookup(proto, key)
	if depthErr {
		return nil, mserr.New(mserr.LimitExceeded, diag.LimitExceeded("__isa chain exceeds maximum depth", value.MaxIsaDepth+1, value.MaxIsaDepth))
	}
	if !ok {
		if s, isStr := key.(value.String); isStr {
			if b, found := v.registry.Lookup(string(s)); found && len(b.Params) > 0 && b.Params[0].Name == "self" {
				return value.Intrinsic{ID: b.ID, Name: b.Name}, nil
			}
		}
		return nil, mserr.New(mserr.KeyNotFound, "key %s not found", value.ToString(key))
	}
	return val, nil
}

// elemSet implements assignment through a SeqElem l-value.
func (v *VM) elemSet(seq, idx, val value.Value) *mserr.MSError {
	switch t := seq.(type) {
	case *value.Map:
		t.Set(idx, val)
		return nil
	case *value.List:
		n := len(t.Elems)
		i := clampIdx(int(value.IntValue(idx)), n)
		if i == n {
			t.Elems = append(t.Elems, val)
			return nil
		}
		if i < 0 || i >= n {
			return mserr.New(mserr.IndexError, "list index out of range (%d)", int(value.IntValue(idx)))
		}
		t.Elems[i] = val
		return nil
	case value.String:
		return mserr.New(mserr.TypeError, "strings are immutable")
	case value.Null:
		return mserr.New(mserr.TypeError, "cannot index into null")
	default:
		return mserr.New(mserr.TypeError, "cannot assign into %s", seq.TypeName())
	}
}

// resolveCallee finds the callee Value for CallFunctionA, following dot
// chains the same way elemGet does, and additionally reports the Map the
// callee was found in (for `super` binding, spec §4.5).
func (v *VM) resolveCallee(ctx *Context, op tac.Operand) (value.Value, *value.Map, *mserr.MSError) {
	if op.Kind == tac.OSeqElem {
		seq, err := v.eval(ctx, *op.Seq)
		if err != nil {
			return nil, nil, err
		}
		idx, err := v.eval(ctx, *op.Index)
		if err != nil {
			return nil, nil, err
		}
		if m, ok := seq.(*value.Map); ok {
			val, foundIn, ok, depthErr := value.Lookup(m, idx)
			if depthErr {
				return nil, nil, mserr.New(mserr.LimitExceeded, diag.LimitExceeded("__isa chain exceeds maximum depth", value.MaxIsaDepth+1, value.MaxIsaDepth))
			}
			if ok {
				return val, foundIn, nil
			}
			if _, hasIsa := m.Isa(); !hasIsa {
				if val, ok := v.MapProto().Get(idx); ok {
					return val, v.MapProto(), nil
				}
			}
			return nil, nil, mserr.New(mserr.KeyNotFound, "key %s not found", value.ToString(idx))
		}
		val, err := v.elemGet(seq, idx)
		return val, nil, err
	}
	val, err := v.eval(ctx, op)
	return val, nil, err
}
