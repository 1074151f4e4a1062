package compiler

import (
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/token"
)

// assignSentinel marks a plain `=` in the table returned by assignOpFor,
// distinguishing it from every real compound-assignment opcode (all of
// which are non-negative per the tac.OpCode iota).
const assignSentinel tac.OpCode = -1

var compoundOps = map[string]tac.OpCode{
	"+=": tac.APlusB, "-=": tac.AMinusB, "*=": tac.ATimesB,
	"/=": tac.ADividedByB, "%=": tac.AModB, "^=": tac.APowB,
}

func assignOpFor(t token.Token) (tac.OpCode, bool) {
	if t.Kind != token.Op {
		return 0, false
	}
	if t.Text == "=" {
		return assignSentinel, true
	}
	op, ok := compoundOps[t.Text]
	return op, ok
}

// looksLikeExprStart reports whether t could begin a new expression --
// used to decide whether a bare identifier or dotted-name statement is a
// command-style call (`print "hi", "there"`, `b.push 4`, spec §4.3
// supplemented command-call sugar)
// or a plain expression statement with nothing following it.
func looksLikeExprStart(t token.Token) bool {
	switch t.Kind {
	case token.Number, token.String, token.Ident:
		return true
	case token.Keyword:
		switch t.Text {
		case "null", "true", "false", "not", "new", "function":
			return true
		}
		return false
	case token.Op:
		switch t.Text {
		case "(", "[", "{", "-", "@":
			return true
		}
		return false
	}
	return false
}

// atBlockEnd reports whether the parser is sitting on a token that
// terminates the current statement list: end-of-input, or a keyword that
// belongs to an enclosing block header (spec §4.3).
func (c *Compiler) atBlockEnd() bool {
	t := c.peek()
	if t.Kind == token.EOF {
		return true
	}
	if t.Kind != token.Keyword {
		return false
	}
	switch t.Text {
	case "end function", "end if", "end while", "end for", "else", "else if":
		return true
	}
	return false
}

// parseStatements parses statements until atBlockEnd(); it never consumes
// the terminating token, leaving it for the caller (parseFunctionLiteral,
// parseIfStatement, parseWhileStatement, parseForStatement, or Compile at
// top level) to recognize and consume.
func (c *Compiler) parseStatements(topLevel bool) *mserr.MSError {
	_ = topLevel
	for {
		c.skipEOLs()
		if c.atBlockEnd() {
			return nil
		}
		if err := c.parseStatement(); err != nil {
			return err
		}
	}
}

func (c *Compiler) parseStatement() *mserr.MSError {
	switch {
	case c.isKeyword("if"):
		return c.parseIfStatement()
	case c.isKeyword("while"):
		return c.parseWhileStatement()
	case c.isKeyword("for"):
		return c.parseForStatement()
	case c.isKeyword("return"):
		return c.parseReturnStatement()
	case c.isKeyword("break"):
		return c.parseBreakStatement()
	case c.isKeyword("continue"):
		return c.parseContinueStatement()
	}
	return c.parseSimpleStatement()
}

// parseSimpleStatement handles assignment (plain and compound), command-
// style calls, and bare expression statements -- the three forms that
// share one leading raw-expression parse (spec §4.3).
func (c *Compiler) parseSimpleStatement() *mserr.MSError {
	line := c.peek().Line
	c.atExprStart = true
	raw, err := c.parseExprRaw()
	if err != nil {
		return err
	}

	if op, ok := assignOpFor(c.peek()); ok {
		c.next()
		c.skipEOLs()
		return c.finishAssignment(raw, op, line)
	}

	if (raw.Kind == tac.OVar || raw.Kind == tac.OSeqElem) && looksLikeExprStart(c.peek()) {
		return c.finishCommandCall(raw, line)
	}

	rhs := c.fullEval(raw)
	c.cur().Emit(tac.AssignImplicit, tac.Void, rhs, tac.Void, line)
	return nil
}

func (c *Compiler) finishAssignment(raw tac.Operand, op tac.OpCode, line int) *mserr.MSError {
	if raw.Kind != tac.OVar && raw.Kind != tac.OSeqElem {
		return c.errf(mserr.CompileError, "cannot assign to this expression")
	}

	if op == assignSentinel {
		rhsRaw, err := c.parseExprRaw()
		if err != nil {
			return err
		}
		rhs := c.fullEval(rhsRaw)
		return c.emitAssignValue(raw, rhs, line)
	}

	// Compound assignment reads the current value with a strict
	// local-only hint when the target is a bare identifier, so `x += 1`
	// reads and writes the same `x` rather than falling through to an
	// enclosing scope for the read (spec §4.3, local-only-identifier
	// hint).
	var cur tac.Operand
	if raw.Kind == tac.OVar {
		cur = c.fullEval(tac.VarOperand(raw.Name, tac.VarStrictLocalOnly))
	} else {
		cur = c.fullEval(raw)
	}
	rhs, err := c.parseExpr()
	if err != nil {
		return err
	}
	combined := c.emitBinary(op, cur, rhs, line)
	return c.emitAssignValue(raw, combined, line)
}

// emitAssignValue stores rhs (already evaluated) into lvalue, applying the
// destination-rewrite optimization of spec §4.3: if rhs is the temp that
// the immediately preceding instruction just produced, retarget that
// instruction's destination in place instead of emitting a separate
// AssignA.
func (c *Compiler) emitAssignValue(lvalue, rhs tac.Operand, line int) *mserr.MSError {
	ctx := c.cur()
	if rhs.Kind == tac.OTemp {
		if last, ok := ctx.LastDstTemp(); ok && last == rhs.Temp {
			ctx.RetargetLast(lvalue)
			return nil
		}
	}
	ctx.Emit(tac.AssignA, lvalue, rhs, tac.Void, line)
	return nil
}

// finishCommandCall parses the comma-separated, unparenthesized argument
// list of a command-style call and emits it exactly like a parenthesized
// call (spec §4.3 supplemented feature: command-style calls generalize
// beyond `print` to any bare-name or dotted callee).
func (c *Compiler) finishCommandCall(callee tac.Operand, line int) *mserr.MSError {
	var args []tac.Operand
	for {
		v, err := c.parseExpr()
		if err != nil {
			return err
		}
		args = append(args, v)
		if c.isOp(",") {
			c.next()
			c.skipEOLs()
			continue
		}
		break
	}
	c.emitCall(callee, args, line)
	return nil
}

// --- if / while / for / return / break / continue -----------------------

// parseIfStatement compiles both the block form (`if cond then` ... `end
// if`, with any number of `else if` clauses merged by the lexer into a
// single "else if" keyword token) and the single-line form (`if cond then
// stmt` with an optional `else stmt` and no `end if`). Every conditional
// jump is tagged "if:MARK" and resolved individually, one clause at a
// time, to the start of the clause that follows it; every unconditional
// skip-to-end jump is tagged "end if" and resolved all together once the
// construct's real end is reached (spec §4.3).
func (c *Compiler) parseIfStatement() *mserr.MSError {
	ctx := c.cur()
	line := c.next().Line // "if"
	cond, err := c.parseExpr()
	if err != nil {
		return err
	}
	if err := c.expectKeyword("then"); err != nil {
		return err
	}
	falseJmp := ctx.Emit(tac.GotoAifNotB, tac.JumpTarget(0), cond, tac.Void, line)
	ctx.MarkBackpatch(falseJmp, "if:MARK")

	if !c.atStatementEnd() {
		if err := c.parseStatement(); err != nil {
			return err
		}
		if c.isKeyword("else") {
			c.next()
			endJmp := ctx.Emit(tac.GotoA, tac.JumpTarget(0), tac.Void, tac.Void, line)
			ctx.MarkBackpatch(endJmp, "end if")
			if err := ctx.Patch("if:MARK", false, 0); err != nil {
			return err
		}
			if err := c.parseStatement(); err != nil {
				return err
			}
			if err := ctx.Patch("end if", false, 0); err != nil {
			return err
		}
			return nil
		}
		if err := ctx.Patch("if:MARK", false, 0); err != nil {
			return err
		}
		return nil
	}

	c.skipEOLs()
	if err := c.parseStatements(false); err != nil {
		return err
	}

	for c.isKeyword("else if") {
		eline := c.next().Line
		endJmp := ctx.Emit(tac.GotoA, tac.JumpTarget(0), tac.Void, tac.Void, eline)
		ctx.MarkBackpatch(endJmp, "end if")
		if err := ctx.Patch("if:MARK", false, 0); err != nil {
			return err
		}
		econd, err := c.parseExpr()
		if err != nil {
			return err
		}
		if err := c.expectKeyword("then"); err != nil {
			return err
		}
		ejmp := ctx.Emit(tac.GotoAifNotB, tac.JumpTarget(0), econd, tac.Void, eline)
		ctx.MarkBackpatch(ejmp, "if:MARK")
		c.skipEOLs()
		if err := c.parseStatements(false); err != nil {
			return err
		}
	}

	if c.isKeyword("else") {
		eline := c.next().Line
		endJmp := ctx.Emit(tac.GotoA, tac.JumpTarget(0), tac.Void, tac.Void, eline)
		ctx.MarkBackpatch(endJmp, "end if")
		if err := ctx.Patch("if:MARK", false, 0); err != nil {
			return err
		}
		c.skipEOLs()
		if err := c.parseStatements(false); err != nil {
			return err
		}
	} else {
		if err := ctx.Patch("if:MARK", false, 0); err != nil {
			return err
		}
	}

	if !c.isKeyword("end if") {
		return c.errf(mserr.CompileError, "expected 'end if', found %s", tokenDesc(c.peek()))
	}
	c.next()
	if err := ctx.Patch("end if", false, 0); err != nil {
			return err
		}
	return nil
}

func (c *Compiler) parseWhileStatement() *mserr.MSError {
	ctx := c.cur()
	line := c.next().Line // "while"
	jp := ctx.MarkJumpPoint()
	cond, err := c.parseExpr()
	if err != nil {
		return err
	}
	exitJmp := ctx.Emit(tac.GotoAifNotB, tac.JumpTarget(0), cond, tac.Void, line)
	ctx.MarkBackpatch(exitJmp, "end while")
	c.skipEOLs()
	if err := c.parseStatements(false); err != nil {
		return err
	}
	if !c.isKeyword("end while") {
		return c.errf(mserr.CompileError, "expected 'end while', found %s", tokenDesc(c.peek()))
	}
	eline := c.next().Line
	ctx.Emit(tac.GotoA, tac.JumpTarget(jp.Index), tac.Void, tac.Void, eline)
	ctx.PopJumpPoint()
	if err := ctx.Patch("end while", true, 0); err != nil {
			return err
		}
	return nil
}

func (c *Compiler) parseForStatement() *mserr.MSError {
	ctx := c.cur()
	line := c.next().Line // "for"
	nameTok := c.next()
	if nameTok.Kind != token.Ident {
		return c.errf(mserr.CompileError, "expected loop variable name, found %s", tokenDesc(nameTok))
	}
	if err := c.expectKeyword("in"); err != nil {
		return err
	}
	seqExpr, err := c.parseExpr()
	if err != nil {
		return err
	}

	seqTemp := ctx.NewTemp()
	ctx.Emit(tac.AssignA, tac.TempOperand(seqTemp), seqExpr, tac.Void, line)
	lenTemp := ctx.NewTemp()
	ctx.Emit(tac.LengthOfA, tac.TempOperand(lenTemp), tac.TempOperand(seqTemp), tac.Void, line)
	idxTemp := ctx.NewTemp()
	ctx.Emit(tac.AssignA, tac.TempOperand(idxTemp), tac.ConstNumber(0), tac.Void, line)

	jp := ctx.MarkJumpPoint()
	condTemp := ctx.NewTemp()
	ctx.Emit(tac.ALessThanB, tac.TempOperand(condTemp), tac.TempOperand(idxTemp), tac.TempOperand(lenTemp), line)
	exitJmp := ctx.Emit(tac.GotoAifNotB, tac.JumpTarget(0), tac.TempOperand(condTemp), tac.Void, line)
	ctx.MarkBackpatch(exitJmp, "end for")

	ctx.Emit(tac.ElemBofIterA, tac.VarOperand(nameTok.Text, tac.VarNormal), tac.TempOperand(seqTemp), tac.TempOperand(idxTemp), line)

	c.skipEOLs()
	if err := c.parseStatements(false); err != nil {
		return err
	}
	if !c.isKeyword("end for") {
		return c.errf(mserr.CompileError, "expected 'end for', found %s", tokenDesc(c.peek()))
	}
	eline := c.next().Line
	ctx.Emit(tac.APlusB, tac.TempOperand(idxTemp), tac.TempOperand(idxTemp), tac.ConstNumber(1), eline)
	ctx.Emit(tac.GotoA, tac.JumpTarget(jp.Index), tac.Void, tac.Void, eline)
	ctx.PopJumpPoint()
	if err := ctx.Patch("end for", true, 0); err != nil {
			return err
		}
	return nil
}

func (c *Compiler) parseReturnStatement() *mserr.MSError {
	ctx := c.cur()
	line := c.next().Line
	if c.atStatementEnd() {
		ctx.Emit(tac.ReturnA, tac.Void, tac.ConstNull(), tac.Void, line)
		return nil
	}
	val, err := c.parseExpr()
	if err != nil {
		return err
	}
	ctx.Emit(tac.ReturnA, tac.Void, val, tac.Void, line)
	return nil
}

func (c *Compiler) parseBreakStatement() *mserr.MSError {
	ctx := c.cur()
	line := c.next().Line
	if _, ok := ctx.TopJumpPoint(); !ok {
		return c.errf(mserr.CompileError, "'break' outside a loop")
	}
	idx := ctx.Emit(tac.GotoA, tac.JumpTarget(0), tac.Void, tac.Void, line)
	ctx.MarkBackpatch(idx, "break")
	return nil
}

func (c *Compiler) parseContinueStatement() *mserr.MSError {
	ctx := c.cur()
	line := c.next().Line
	jp, ok := ctx.TopJumpPoint()
	if !ok {
		return c.errf(mserr.CompileError, "'continue' outside a loop")
	}
	ctx.Emit(tac.GotoA, tac.JumpTarget(jp.Index), tac.Void, tac.Void, line)
	return nil
}
