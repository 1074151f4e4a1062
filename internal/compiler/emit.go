package compiler

import (
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
)

// Backpatch marks an emitted jump instruction whose target is not yet
// known, tagged with the keyword that will eventually resolve it
// ("if:MARK", "end if", "end while", "end for", "break") -- spec §4.3.
type Backpatch struct {
	InstrIndex int
	Keyword    string
}

// JumpPoint records a loop head's instruction index, used by `continue`
// and by the trailing back-edge at `end while`/`end for` (spec §4.3,
// GLOSSARY).
type JumpPoint struct {
	Index int
}

// EmissionContext is the mutable state the single-pass compiler emits
// into for one function body (the top-level script is the outermost
// context). Nested `function` literals push a new context and pop it at
// `end function` (spec §4.3). Instructions are appended directly to the
// backing FunctionProto so that an operand built from Proto before the
// body is fully parsed (the BindAssignA in the *enclosing* context) still
// observes the filled-in code once this context is popped.
type EmissionContext struct {
	Proto *tac.FunctionProto

	backpatches []Backpatch
	jumpPoints  []JumpPoint
	nextTemp    int

	// localOnlyHint names an identifier that, if referenced as a bare Var
	// on the left of a compound assignment, must resolve strictly to a
	// local (spec §4.3, "local-only-identifier hint").
	localOnlyHint string

	// jumpTargetHere is true immediately after a Patch() call, or a
	// PatchAt() call, resolved one or more jumps to the current code
	// position; it blocks the in-place destination-rewrite optimization
	// until cleared by the next emit (spec §4.3, "Optimization").
	jumpTargetHere bool
}

func newEmissionContext(name string) *EmissionContext {
	return &EmissionContext{Proto: &tac.FunctionProto{Name: name}}
}

// Code is a read-only view of the instructions emitted so far.
func (c *EmissionContext) Code() []tac.Instruction { return c.Proto.Code }

// NewTemp allocates a fresh numbered temporary.
func (c *EmissionContext) NewTemp() int {
	t := c.nextTemp
	c.nextTemp++
	return t
}

// Emit appends an instruction and returns its index.
func (c *EmissionContext) Emit(op tac.OpCode, dst, a, b tac.Operand, line int) int {
	c.Proto.Code = append(c.Proto.Code, tac.Instruction{Op: op, Dst: dst, A: a, B: b, Line: line})
	c.jumpTargetHere = false
	return len(c.Proto.Code) - 1
}

// Here returns the index the next-emitted instruction will occupy.
func (c *EmissionContext) Here() int { return len(c.Proto.Code) }

// MarkBackpatch records that the jump instruction at idx needs patching
// for keyword.
func (c *EmissionContext) MarkBackpatch(idx int, keyword string) {
	c.backpatches = append(c.backpatches, Backpatch{InstrIndex: idx, Keyword: keyword})
}

// MarkJumpPoint records a loop head at the current code position.
func (c *EmissionContext) MarkJumpPoint() JumpPoint {
	jp := JumpPoint{Index: c.Here()}
	c.jumpPoints = append(c.jumpPoints, jp)
	return jp
}

// TopJumpPoint returns the innermost active loop head, if any.
func (c *EmissionContext) TopJumpPoint() (JumpPoint, bool) {
	if len(c.jumpPoints) == 0 {
		return JumpPoint{}, false
	}
	return c.jumpPoints[len(c.jumpPoints)-1], true
}

// PopJumpPoint discards the most recently pushed loop head (called at
// `end while`/`end for`).
func (c *EmissionContext) PopJumpPoint() {
	if len(c.jumpPoints) > 0 {
		c.jumpPoints = c.jumpPoints[:len(c.jumpPoints)-1]
	}
}

// Patch resolves every backpatch tagged keyword (and, if alsoBreak, every
// "break") from the top of the stack down, stopping at the first entry
// that matches neither -- that entry, and everything under it, belongs to
// an enclosing block and is left for a later Patch call (spec §4.3).
func (c *EmissionContext) Patch(keyword string, alsoBreak bool, reserve int) *mserr.MSError {
	target := c.Here() + reserve
	i := len(c.backpatches)
	matched := false
	for i > 0 {
		bp := c.backpatches[i-1]
		if bp.Keyword == keyword || (alsoBreak && bp.Keyword == "break") {
			c.Proto.Code[bp.InstrIndex].Dst = tac.JumpTarget(target)
			matched = true
			i--
			continue
		}
		break
	}
	if !matched {
		return mserr.New(mserr.CompileError, "no open block for %q", keyword)
	}
	c.backpatches = c.backpatches[:i]
	c.jumpTargetHere = true
	return nil
}

// HasOpenBackpatch reports whether any backpatch is still pending --
// used by need_more_input() in REPL mode (spec §7).
func (c *EmissionContext) HasOpenBackpatch() bool { return len(c.backpatches) > 0 }

// LastDstTemp reports the destination temp of the most recently emitted
// instruction, if it is a temp and the position is not a recorded jump
// target -- the precondition for the destination-rewrite optimization
// (spec §4.3, "Optimization").
func (c *EmissionContext) LastDstTemp() (int, bool) {
	if c.jumpTargetHere || len(c.Proto.Code) == 0 {
		return 0, false
	}
	last := &c.Proto.Code[len(c.Proto.Code)-1]
	if last.Dst.Kind != tac.OTemp {
		return 0, false
	}
	return last.Dst.Temp, true
}

// LastOp reports the opcode of the most recently emitted instruction.
func (c *EmissionContext) LastOp() (tac.OpCode, bool) {
	if len(c.Proto.Code) == 0 {
		return 0, false
	}
	return c.Proto.Code[len(c.Proto.Code)-1].Op, true
}

// RetargetLast rewrites the destination of the most recently emitted
// instruction to dst in place, instead of emitting a separate AssignA/
// BindAssignA (spec §4.3, "Optimization").
func (c *EmissionContext) RetargetLast(dst tac.Operand) {
	c.Proto.Code[len(c.Proto.Code)-1].Dst = dst
}

// PatchAt rewrites the jump target of the instruction at idx directly, for
// the expression-level short-circuit jumps emitted by `and`/`or` (these are
// never nested the way statement blocks are, so they do not need the
// keyword-tagged backpatch stack).
func (c *EmissionContext) PatchAt(idx, target int) {
	c.Proto.Code[idx].Dst = tac.JumpTarget(target)
	if target == c.Here() {
		c.jumpTargetHere = true
	}
}

// SetN records the pushed-argument count on the call instruction at idx.
func (c *EmissionContext) SetN(idx, n int) {
	c.Proto.Code[idx].N = n
}
