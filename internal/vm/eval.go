package vm

import (
	"math"
	"strings"

	"github.com/msscript/ms/internal/diag"
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/value"
)

// step executes exactly one instruction at the top of the context stack
// (spec §4.5 "step()"): it first unwinds any finished non-root contexts,
// then dispatches the fetched instruction to its §4.4 evaluator, attaching
// the instruction's source line to any error that doesn't already carry a
// location.
func (v *VM) step() *mserr.MSError {
	for len(v.stack) > 1 && v.Current().Done() {
		if err := v.popContext(value.Nil); err != nil {
			return err
		}
	}
	ctx := v.Current()
	if ctx.Done() {
		return nil
	}
	instr := ctx.Code[ctx.PC]
	ctx.PC++

	err := v.dispatch(ctx, instr)
	if err != nil {
		err = err.WithLocation(ctx.FuncName, instr.Line)
	}
	return err
}

func (v *VM) dispatch(ctx *Context, instr tac.Instruction) *mserr.MSError {
	switch instr.Op {
	case tac.AssignA, tac.ReturnA, tac.AssignImplicit:
		val, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		if instr.Op == tac.ReturnA {
			return v.popContext(val)
		}
		if instr.Op == tac.AssignImplicit {
			if !v.StoreImplicit {
				return nil
			}
			ctx.ImplicitCount++
			v.Globals().Set(value.String("_"), val)
			return nil
		}
		return v.assign(ctx, instr.Dst, val)

	case tac.CopyA:
		val, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		return v.assign(ctx, instr.Dst, copyFresh(val))

	case tac.NewA:
		src, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		proto, ok := src.(*value.Map)
		if !ok {
			return mserr.New(mserr.TypeError, "new requires a map, got %s", src.TypeName())
		}
		if v.isBuiltinProto(proto) {
			return mserr.New(mserr.TypeError, "cannot create a new instance of a built-in type prototype")
		}
		m := value.NewMap()
		m.Set(value.String(value.IsaKey), proto)
		return v.assign(ctx, instr.Dst, m)

	case tac.BindAssignA:
		val, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		fn, ok := val.(*value.Function)
		if !ok {
			return mserr.New(mserr.TypeError, "BindAssignA requires a function literal")
		}
		bound := &value.Function{Proto: fn.Proto, Outer: ctx.Locals}
		return v.assign(ctx, instr.Dst, bound)

	case tac.APlusB, tac.AMinusB, tac.ATimesB, tac.ADividedByB, tac.AModB, tac.APowB:
		a, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		b, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		res, err := v.arith(instr.Op, a, b)
		if err != nil {
			return err
		}
		return v.assign(ctx, instr.Dst, res)

	case tac.AEqualB, tac.ANotEqualB, tac.AGreaterThanB, tac.AGreatOrEqualB, tac.ALessThanB, tac.ALessOrEqualB:
		a, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		b, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		res, err := compare(instr.Op, a, b)
		if err != nil {
			return err
		}
		return v.assign(ctx, instr.Dst, res)

	case tac.AisaB:
		a, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		b, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		return v.assign(ctx, instr.Dst, value.Number(boolNum(isaOf(a, b))))

	case tac.AAndB, tac.AOrB:
		a, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		b, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		res := fuzzyAnd(value.DoubleValue(a), value.DoubleValue(b))
		if instr.Op == tac.AOrB {
			res = fuzzyOr(value.DoubleValue(a), value.DoubleValue(b))
		}
		return v.assign(ctx, instr.Dst, value.Number(res))

	case tac.NotA:
		a, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		n := clamp01(math.Abs(value.DoubleValue(a)))
		return v.assign(ctx, instr.Dst, value.Number(1-n))

	case tac.GotoA:
		ctx.PC = instr.Dst.Temp
		return nil
	case tac.GotoAifB:
		b, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		if value.Bool(b) {
			ctx.PC = instr.Dst.Temp
		}
		return nil
	case tac.GotoAifNotB:
		b, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		if !value.Bool(b) {
			ctx.PC = instr.Dst.Temp
		}
		return nil
	case tac.GotoAifTrulyB:
		b, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		if int64(value.DoubleValue(b)) != 0 {
			ctx.PC = instr.Dst.Temp
		}
		return nil

	case tac.PushParam:
		val, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		ctx.ArgStack = append(ctx.ArgStack, val)
		if len(ctx.ArgStack) > v.limits.MaxArguments {
			return mserr.New(mserr.TooManyArguments, diag.LimitExceeded("too many pushed arguments", len(ctx.ArgStack), v.limits.MaxArguments))
		}
		return nil

	case tac.CallFunctionA:
		return v.doCallFunction(ctx, instr)
	case tac.CallIntrinsicA:
		return v.doCallIntrinsic(ctx, instr)

	case tac.ElemBofA:
		seq, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		idx, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		val, err := v.elemGet(seq, idx)
		if err != nil {
			return err
		}
		return v.assign(ctx, instr.Dst, val)

	case tac.ElemBofIterA:
		seq, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		idx, err := v.eval(ctx, instr.B)
		if err != nil {
			return err
		}
		n := int(value.IntValue(idx))
		if m, ok := seq.(*value.Map); ok {
			keys := m.Keys()
			if n < 0 || n >= len(keys) {
				return mserr.New(mserr.IndexError, "map iteration index out of range (%d)", n)
			}
			vals := m.Vals()
			kv := value.NewMap()
			kv.Set(value.String("key"), keys[n])
			kv.Set(value.String("value"), vals[n])
			return v.assign(ctx, instr.Dst, kv)
		}
		val, err := v.elemGet(seq, value.Number(float64(n)))
		if err != nil {
			return err
		}
		return v.assign(ctx, instr.Dst, val)

	case tac.LengthOfA:
		seq, err := v.eval(ctx, instr.A)
		if err != nil {
			return err
		}
		n, err := v.lengthOf(seq)
		if err != nil {
			return err
		}
		return v.assign(ctx, instr.Dst, value.Number(float64(n)))

	default:
		return mserr.New(mserr.RuntimeError, "unimplemented opcode %s", instr.Op)
	}
}

func (v *VM) lengthOf(seq value.Value) (int, *mserr.MSError) {
	switch t := seq.(type) {
	case value.String:
		return len(t), nil
	case *value.List:
		return len(t.Elems), nil
	case *value.Map:
		return t.Len(), nil
	default:
		return 0, mserr.New(mserr.TypeError, "cannot take length of %s", seq.TypeName())
	}
}

func (v *VM) isBuiltinProto(m *value.Map) bool {
	switch m {
	case v.numberProto, v.stringProto, v.listProto, v.mapProto, v.functionProto:
		return true
	}
	return false
}

// copyFresh implements CopyA's "fresh shallow copy" rule: containers get a
// new identity with the same elements; scalars pass through unchanged.
func copyFresh(val value.Value) value.Value {
	switch t := val.(type) {
	case *value.List:
		return value.NewList(append([]value.Value(nil), t.Elems...))
	case *value.Map:
		m := value.NewMap()
		keys, vals := t.Keys(), t.Vals()
		for i, k := range keys {
			m.Set(k, vals[i])
		}
		return m
	default:
		return val
	}
}

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// fuzzyAnd/fuzzyOr implement the product / probabilistic-sum combination
// rule of spec §4.4, clamped to [0,1] on the operands' absolute values.
func fuzzyAnd(a, b float64) float64 {
	a, b = clamp01(math.Abs(a)), clamp01(math.Abs(b))
	return a * b
}

func fuzzyOr(a, b float64) float64 {
	a, b = clamp01(math.Abs(a)), clamp01(math.Abs(b))
	return clamp01(a + b - a*b)
}

// isaOf walks a's __isa chain looking for b (reference identity), per
// spec §4.1's prototype-chain definition of `isa`.
func isaOf(a, b value.Value) bool {
	m, ok := a.(*value.Map)
	if !ok {
		return false
	}
	target, ok := b.(*value.Map)
	if !ok {
		return false
	}
	seen := 0
	cur := m
	for seen < value.MaxIsaDepth {
		if cur == target {
			return true
		}
		next, ok := cur.Isa()
		if !ok {
			return false
		}
		cur = next
		seen++
	}
	return false
}

// arith implements spec §4.4's arithmetic coercion table.
func (v *VM) arith(op tac.OpCode, a, b value.Value) (value.Value, *mserr.MSError) {
	an, aIsNum := a.(value.Number)
	bn, bIsNum := b.(value.Number)
	if aIsNum && bIsNum {
		return numericArith(op, float64(an), float64(bn))
	}

	as, aIsStr := a.(value.String)
	bs, bIsStr := b.(value.String)

	switch op {
	case tac.APlusB:
		if aIsStr || bIsStr {
			return value.String(value.ToString(a) + value.ToString(b)), nil
		}
		if al, ok := a.(*value.List); ok {
			if bl, ok := b.(*value.List); ok {
				out := make([]value.Value, 0, len(al.Elems)+len(bl.Elems))
				out = append(out, al.Elems...)
				out = append(out, bl.Elems...)
				return value.NewList(out), nil
			}
		}
		if am, ok := a.(*value.Map); ok {
			if bm, ok := b.(*value.Map); ok {
				out := value.NewMap()
				ak, av := am.Keys(), am.Vals()
				for i, k := range ak {
					out.Set(k, av[i])
				}
				bk, bv := bm.Keys(), bm.Vals()
				for i, k := range bk {
					out.Set(k, bv[i])
				}
				return out, nil
			}
		}
		return nil, mserr.New(mserr.TypeError, "cannot add %s and %s", a.TypeName(), b.TypeName())

	case tac.ATimesB:
		if aIsStr && !bIsStr {
			return repeatString(string(as), value.DoubleValue(b)), nil
		}
		if bIsStr && !aIsStr {
			return repeatString(string(bs), value.DoubleValue(a)), nil
		}
		if al, ok := a.(*value.List); ok {
			return repeatList(al, value.DoubleValue(b)), nil
		}
		return nil, mserr.New(mserr.TypeError, "cannot multiply %s and %s", a.TypeName(), b.TypeName())

	case tac.ADividedByB:
		if aIsStr {
			n := value.DoubleValue(b)
			if n == 0 {
				return value.Nil, nil
			}
			return repeatString(string(as), 1/n), nil
		}
		return nil, mserr.New(mserr.TypeError, "cannot divide %s by %s", a.TypeName(), b.TypeName())

	default:
		return nil, mserr.New(mserr.TypeError, "invalid operand types for %s: %s, %s", op, a.TypeName(), b.TypeName())
	}
}

func numericArith(op tac.OpCode, a, b float64) (value.Value, *mserr.MSError) {
	switch op {
	case tac.APlusB:
		return value.Number(a + b), nil
	case tac.AMinusB:
		return value.Number(a - b), nil
	case tac.ATimesB:
		if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
			return value.Nil, nil
		}
		return value.Number(a * b), nil
	case tac.ADividedByB:
		if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
			return value.Nil, nil
		}
		if b == 0 {
			return value.Nil, nil
		}
		return value.Number(a / b), nil
	case tac.AModB:
		if b == 0 {
			return value.Nil, nil
		}
		return value.Number(math.Mod(a, b)), nil
	case tac.APowB:
		return value.Number(math.Pow(a, b)), nil
	default:
		return nil, mserr.New(mserr.RuntimeError, "invalid numeric op %s", op)
	}
}

func repeatString(s string, n float64) value.Value {
	if n <= 0 || math.IsNaN(n) {
		return value.String("")
	}
	whole := int(n)
	frac := n - float64(whole)
	var b strings.Builder
	for i := 0; i < whole; i++ {
		b.WriteString(s)
	}
	if frac > 0 {
		runes := []rune(s)
		take := int(float64(len(runes)) * frac)
		b.WriteString(string(runes[:take]))
	}
	return value.String(b.String())
}

func repeatList(l *value.List, n float64) value.Value {
	if n <= 0 || math.IsNaN(n) {
		return value.NewList(nil)
	}
	whole := int(n)
	frac := n - float64(whole)
	out := make([]value.Value, 0, whole*len(l.Elems)+1)
	for i := 0; i < whole; i++ {
		out = append(out, l.Elems...)
	}
	if frac > 0 {
		take := int(float64(len(l.Elems)) * frac)
		out = append(out, l.Elems[:take]...)
	}
	return value.NewList(out)
}

// compare implements spec §4.4's comparison rules: cross-type comparisons
// are always unequal, strings order byte-wise, containers only support
// equality (falling through to recursive-equal).
func compare(op tac.OpCode, a, b value.Value) (value.Value, *mserr.MSError) {
	switch op {
	case tac.AEqualB:
		return value.Number(boolNum(value.Equal(a, b))), nil
	case tac.ANotEqualB:
		return value.Number(boolNum(!value.Equal(a, b))), nil
	}

	an, aIsNum := a.(value.Number)
	bn, bIsNum := b.(value.Number)
	if aIsNum && bIsNum {
		return value.Number(boolNum(numCompare(op, float64(an), float64(bn)))), nil
	}
	as, aIsStr := a.(value.String)
	bs, bIsStr := b.(value.String)
	if aIsStr && bIsStr {
		return value.Number(boolNum(strCompare(op, string(as), string(bs)))), nil
	}
	return nil, mserr.New(mserr.TypeError, "cannot order %s and %s", a.TypeName(), b.TypeName())
}

func numCompare(op tac.OpCode, a, b float64) bool {
	switch op {
	case tac.AGreaterThanB:
		return a > b
	case tac.AGreatOrEqualB:
		return a >= b
	case tac.ALessThanB:
		return a < b
	case tac.ALessOrEqualB:
		return a <= b
	}
	return false
}

func strCompare(op tac.OpCode, a, b string) bool {
	switch op {
	case tac.AGreaterThanB:
		return a > b
	case tac.AGreatOrEqualB:
		return a >= b
	case tac.ALessThanB:
		return a < b
	case tac.ALessOrEqualB:
		return a <= b
	}
	return false
}
