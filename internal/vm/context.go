// Package vm is the VM/call-stack/cooperative-scheduler component of spec
// §4.5: a stack of Contexts, a per-instruction step() that dispatches the
// TAC opcode set of §4.4, call/return handling, and the partial-result
// resumption mechanism that stands in for fibers (spec §9). It is the
// analog of the teacher's internal/vm package, restructured around TAC
// triples and a context stack instead of a byte-addressed stack machine.
package vm

import (
	"github.com/msscript/ms/internal/intrinsics"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/value"
)

// Context is one call frame (spec §3.3): the instruction vector and PC of
// the function being executed, its locals, the outer-vars map captured by
// its closure (if any), the current `self`, a dense temp array, a pending
// argument stack fed by PushParam, a partial-result slot for resumable
// intrinsics, and the bookkeeping needed to deliver a return value to the
// caller.
type Context struct {
	Code []tac.Instruction
	PC   int

	Locals *value.Map
	Outer  *value.Map
	Self   value.Value

	Temps []value.Value

	// ArgStack accumulates operands pushed by PushParam since the last
	// call in this frame resolved them (spec §4.3 "PushParam").
	ArgStack []value.Value

	// Parent is the calling context; nil only for the root context.
	Parent *Context
	// ResultDst is the destination operand, evaluated against Parent,
	// that ReturnA writes the return value into (spec §3.3
	// "result-storage slot").
	ResultDst tac.Operand

	// PartialResult is non-nil when the instruction at PC (the VM rewinds
	// PC onto it) is a resumable intrinsic call awaiting completion (spec
	// §4.4 CallIntrinsicA, §9).
	PartialResult value.Value
	// PartialBuiltin remembers which Builtin owns PartialResult, since a
	// context can only have one resumable call pending at a time.
	PartialBuiltin *intrinsics.Builtin

	// ImplicitCount counts AssignImplicit writes into the `_` global
	// while the VM's StoreImplicit flag is set (spec §4.5 "Implicit
	// result"); repl() starts each line on a fresh root context and reads
	// the root's count after the run to decide whether to echo a result.
	ImplicitCount int

	// FuncName is purely diagnostic (error locations, stackTrace()).
	FuncName string

	// CaptureReturn, if non-nil, receives ReturnA's value directly instead
	// of it being written into Parent via ResultDst -- used by
	// VM.CallScript to read out a synchronously-driven call's result
	// without needing a throwaway destination operand.
	CaptureReturn *value.Value
}

func newContext(proto *tac.FunctionProto, locals, outer *value.Map, self value.Value, parent *Context, resultDst tac.Operand) *Context {
	return &Context{
		Code:      proto.Code,
		Locals:    locals,
		Outer:     outer,
		Self:      self,
		Parent:    parent,
		ResultDst: resultDst,
		FuncName:  proto.Name,
	}
}

// Done reports whether the context has run off the end of its code.
func (ctx *Context) Done() bool { return ctx.PC >= len(ctx.Code) }

// temp grows Temps as needed and returns the value at index n (Null until
// assigned).
func (ctx *Context) temp(n int) value.Value {
	if n < len(ctx.Temps) {
		if ctx.Temps[n] == nil {
			return value.Nil
		}
		return ctx.Temps[n]
	}
	return value.Nil
}

func (ctx *Context) setTemp(n int, v value.Value) {
	if n >= len(ctx.Temps) {
		grown := make([]value.Value, n+1)
		copy(grown, ctx.Temps)
		ctx.Temps = grown
	}
	ctx.Temps[n] = v
}

// currentLine reports the source line of the instruction about to
// execute, for error attribution (spec §7).
func (ctx *Context) currentLine() int {
	if ctx.PC < len(ctx.Code) {
		return ctx.Code[ctx.PC].Line
	}
	if ctx.PC > 0 {
		return ctx.Code[ctx.PC-1].Line
	}
	return 0
}
