package vm

import (
	"github.com/msscript/ms/internal/diag"
	"github.com/msscript/ms/internal/intrinsics"
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/value"
)

// popArgs drains the N most recently pushed arguments off ctx's ArgStack
// (spec §4.4 "PushParam ... CallFunctionA N").
func popArgs(ctx *Context, n int) []value.Value {
	if n > len(ctx.ArgStack) {
		n = len(ctx.ArgStack)
	}
	start := len(ctx.ArgStack) - n
	args := append([]value.Value(nil), ctx.ArgStack[start:]...)
	ctx.ArgStack = ctx.ArgStack[:start]
	return args
}

// bindParams binds positional args to a user function's declared
// parameters (spec §4.5 "Parameter binding"): missing trailing arguments
// take their declared default (evaluated fresh, so list/map defaults don't
// alias across calls), excess arguments are a TooManyArguments error, and
// the receiver (nil for a bare call) becomes the callee's self.
func bindParams(proto *tac.FunctionProto, args []value.Value, receiver value.Value, isDotCall bool) (*value.Map, value.Value, *mserr.MSError) {
	params := proto.Params
	self := value.Value(value.Nil)
	if isDotCall {
		self = receiver
		if len(params) > 0 && params[0].Name == "self" {
			params = params[1:]
		}
	}
	if len(args) > len(params) {
		return nil, nil, mserr.New(mserr.TooManyArguments, "too many arguments to %s (want at most %d, got %d)", proto.Name, len(params), len(args))
	}
	locals := value.NewMap()
	for i, p := range params {
		if i < len(args) {
			locals.Set(value.String(p.Name), args[i])
			continue
		}
		if p.Default != nil {
			v, err := defaultLiteral(*p.Default)
			if err != nil {
				return nil, nil, err
			}
			locals.Set(value.String(p.Name), v)
		} else {
			locals.Set(value.String(p.Name), value.Nil)
		}
	}
	return locals, self, nil
}

// defaultLiteral builds a fresh Value for a parameter-default operand,
// which the compiler restricts to OConst/OListLit/OMapLit/OFuncLit (spec
// §3.1's no-aliasing-literals invariant applies to defaults too).
func defaultLiteral(op tac.Operand) (value.Value, *mserr.MSError) {
	switch op.Kind {
	case tac.OConst:
		switch c := op.Const.(type) {
		case nil:
			return value.Nil, nil
		case float64:
			return value.Number(c), nil
		case string:
			return value.String(c), nil
		}
		return value.Nil, nil
	case tac.OListLit:
		if len(op.Elems) == 0 {
			return value.NewList(nil), nil
		}
		elems := make([]value.Value, len(op.Elems))
		for i, e := range op.Elems {
			v, err := defaultLiteral(e)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return value.NewList(elems), nil
	case tac.OMapLit:
		m := value.NewMap()
		for i, k := range op.Keys {
			kv, err := defaultLiteral(k)
			if err != nil {
				return nil, err
			}
			vv, err := defaultLiteral(op.Vals[i])
			if err != nil {
				return nil, err
			}
			m.Set(kv, vv)
		}
		return m, nil
	case tac.OFuncLit:
		return &value.Function{Proto: op.Proto}, nil
	default:
		return value.Nil, nil
	}
}

// doCallFunction implements CallFunctionA (spec §4.4/§4.5): resolve the
// callee (tracking which map it was found in, for `super`), pop its
// arguments, and either dispatch to a Go built-in (with resumable
// partial-result handling) or push a new user-function Context.
func (v *VM) doCallFunction(ctx *Context, instr tac.Instruction) *mserr.MSError {
	isDotCall := instr.A.Kind == tac.OSeqElem
	callee, foundIn, err := v.resolveCallee(ctx, instr.A)
	if err != nil {
		return err
	}
	args := popArgs(ctx, instr.N)

	var receiver value.Value
	if isDotCall {
		seq, err := v.eval(ctx, *instr.A.Seq)
		if err != nil {
			return err
		}
		receiver = seq
	}

	switch fn := callee.(type) {
	case value.Intrinsic:
		return v.invokeIntrinsic(ctx, instr, fn, args, receiver, isDotCall)
	case *value.Function:
		locals, self, err := bindParams(fn.Proto, args, receiver, isDotCall)
		if err != nil {
			return err
		}
		if isDotCall && foundIn != nil {
			if isa, ok := foundIn.Isa(); ok {
				locals.Set(value.String("super"), isa)
			}
		}
		if len(v.stack) >= v.limits.MaxCallDepth {
			return mserr.New(mserr.LimitExceeded, diag.LimitExceeded("call stack exceeds maximum depth", len(v.stack)+1, v.limits.MaxCallDepth))
		}
		child := newContext(fn.Proto, locals, fn.Outer, self, ctx, instr.Dst)
		v.stack = append(v.stack, child)
		return nil
	default:
		// Not a function: this is full-evaluation's zero-argument
		// auto-invoke landing on a plain value (spec §4.5 CallFunctionA
		// step 3). Any pushed arguments against a non-callable value are
		// an error; otherwise the value itself is the result.
		if len(args) > 0 {
			return mserr.New(mserr.TooManyArguments, "cannot call a value of type %s", callee.TypeName())
		}
		return v.assign(ctx, instr.Dst, callee)
	}
}

// doCallIntrinsic implements CallIntrinsicA: a direct, lookup-bypassing
// call to a built-in named by instr.A's OIntrinsicRef (spec §4.4). The
// compiler does not emit this opcode: its `seq[a:b]` sugar emits
// CallFunctionA on an OIntrinsicRef operand instead.
func (v *VM) doCallIntrinsic(ctx *Context, instr tac.Instruction) *mserr.MSError {
	b, ok := v.registry.Lookup(instr.A.Name)
	if !ok {
		return mserr.New(mserr.UndefinedIdentifier, "undefined intrinsic %q", instr.A.Name)
	}
	args := popArgs(ctx, instr.N)
	return v.invokeIntrinsic(ctx, instr, value.Intrinsic{ID: b.ID, Name: b.Name}, args, value.Nil, false)
}

// invokeIntrinsic runs a built-in to completion or suspension. A call that
// returns done=false stashes its partial result on the *current* context,
// rewinds PC so the same instruction is re-entered next step, and lets the
// cooperative scheduler decide whether to yield to another fiber-like
// caller in between (spec §4.4 CallIntrinsicA, §9 partial-result
// coroutine primitive).
func (v *VM) invokeIntrinsic(ctx *Context, instr tac.Instruction, ref value.Intrinsic, args []value.Value, receiver value.Value, isDotCall bool) *mserr.MSError {
	b, ok := v.registry.ByID(ref.ID)
	if !ok {
		return mserr.New(mserr.UndefinedIdentifier, "undefined intrinsic %q", ref.Name)
	}

	var bound map[string]value.Value
	var err *mserr.MSError
	if isDotCall {
		full := append([]value.Value{receiver}, args...)
		bound, err = b.BindArgs(full)
	} else {
		bound, err = b.BindArgs(args)
	}
	if err != nil {
		return err
	}

	call := &intrinsics.Call{RT: v, Self: receiver, Args: bound, Partial: ctx.PartialResult}
	result, done, err := b.Fn(call)
	if err != nil {
		ctx.PartialResult = nil
		ctx.PartialBuiltin = nil
		return err
	}
	if !done {
		ctx.PartialResult = result
		ctx.PartialBuiltin = b
		ctx.PC--
		return nil
	}
	ctx.PartialResult = nil
	ctx.PartialBuiltin = nil
	return v.assign(ctx, instr.Dst, result)
}

// doReturn implements ReturnA: deliver the return value to the caller's
// recorded destination (or CaptureReturn, for VM.CallScript) and pop this
// context off the stack.
func (v *VM) doReturn(ctx *Context, instr tac.Instruction) *mserr.MSError {
	val, err := v.eval(ctx, instr.A)
	if err != nil {
		return err
	}
	return v.popContext(val)
}

// popContext removes the top context and, unless it is the root, delivers
// result to its caller.
func (v *VM) popContext(result value.Value) *mserr.MSError {
	if len(v.stack) <= 1 {
		v.stack[len(v.stack)-1].PC = len(v.stack[len(v.stack)-1].Code)
		return nil
	}
	finished := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	if finished.CaptureReturn != nil {
		*finished.CaptureReturn = result
		return nil
	}
	parent := v.Current()
	return v.assign(parent, finished.ResultDst, result)
}
