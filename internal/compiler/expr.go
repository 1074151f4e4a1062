package compiler

import (
	"strconv"

	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/token"
)

// parseExpr parses one expression and forces full evaluation of the
// result (spec §3.1, "full evaluation" / auto-invoke of bare Var and
// SeqElem operands). Use this everywhere a value is actually needed:
// call arguments, binary operand feeds, conditions, loop bounds.
func (c *Compiler) parseExpr() (tac.Operand, *mserr.MSError) {
	raw, err := c.parseExprRaw()
	if err != nil {
		return tac.Operand{}, err
	}
	return c.fullEval(raw), nil
}

// parseExprRaw parses one expression and returns it without forcing
// evaluation -- the assignment statement parser needs the raw operand to
// tell a bare-name/SeqElem l-value apart from an already-evaluated value.
func (c *Compiler) parseExprRaw() (tac.Operand, *mserr.MSError) {
	return c.parseFunctionLiteral()
}

// fullEval implements spec §3.1's "full evaluation" rule: a bare Var or
// SeqElem operand appearing where a value is required auto-invokes if it
// names a zero-argument function, except for `self`/`super` and anything
// marked NoInvoke by the address-of operator `@`. List/map/function
// literals are instantiated fresh at this point too, so that two
// evaluations of one literal expression produce distinct objects (spec §8
// property 2).
func (c *Compiler) fullEval(op tac.Operand) tac.Operand {
	if op.NoInvoke {
		return op
	}
	line := c.peek().Line
	ctx := c.cur()
	switch op.Kind {
	case tac.OVar:
		if op.Name == "self" || op.Name == "super" {
			return op
		}
		t := ctx.NewTemp()
		ctx.Emit(tac.CallFunctionA, tac.TempOperand(t), op, tac.Void, line)
		return tac.TempOperand(t)
	case tac.OSeqElem:
		t1 := ctx.NewTemp()
		ctx.Emit(tac.ElemBofA, tac.TempOperand(t1), *op.Seq, *op.Index, line)
		t2 := ctx.NewTemp()
		ctx.Emit(tac.CallFunctionA, tac.TempOperand(t2), tac.TempOperand(t1), tac.Void, line)
		return tac.TempOperand(t2)
	case tac.OIntrinsicRef:
		t := ctx.NewTemp()
		ctx.Emit(tac.CallFunctionA, tac.TempOperand(t), op, tac.Void, line)
		return tac.TempOperand(t)
	case tac.OListLit, tac.OMapLit:
		t := ctx.NewTemp()
		ctx.Emit(tac.CopyA, tac.TempOperand(t), op, tac.Void, line)
		return tac.TempOperand(t)
	case tac.OFuncLit:
		t := ctx.NewTemp()
		ctx.Emit(tac.BindAssignA, tac.TempOperand(t), op, tac.Void, line)
		return tac.TempOperand(t)
	default:
		return op
	}
}

func (c *Compiler) emitBinary(op tac.OpCode, left, right tac.Operand, line int) tac.Operand {
	t := c.cur().NewTemp()
	c.cur().Emit(op, tac.TempOperand(t), left, right, line)
	return tac.TempOperand(t)
}

func (c *Compiler) emitUnary(op tac.OpCode, a tac.Operand, line int) tac.Operand {
	t := c.cur().NewTemp()
	c.cur().Emit(op, tac.TempOperand(t), a, tac.Void, line)
	return tac.TempOperand(t)
}

// --- precedence chain, loosest to tightest (spec §4.3) -----------------

func (c *Compiler) parseFunctionLiteral() (tac.Operand, *mserr.MSError) {
	if !c.isKeyword("function") {
		return c.parseOr()
	}
	c.next()
	params, err := c.parseParamList()
	if err != nil {
		return tac.Operand{}, err
	}
	c.skipEOLs()
	c.pushContext("anonymous")
	c.cur().Proto.Params = params
	if err := c.parseStatements(false); err != nil {
		return tac.Operand{}, err
	}
	if !c.isKeyword("end function") {
		return tac.Operand{}, c.errf(mserr.CompileError, "expected 'end function', found %s", tokenDesc(c.peek()))
	}
	c.next()
	ctx := c.popContext()
	return tac.Operand{Kind: tac.OFuncLit, Proto: ctx.Proto}, nil
}

func (c *Compiler) parseParamList() ([]tac.Param, *mserr.MSError) {
	var params []tac.Param
	hasParens := c.isOp("(")
	if hasParens {
		c.next()
		c.skipEOLs()
		if c.isOp(")") {
			c.next()
			return params, nil
		}
	} else if c.atStatementEnd() {
		return params, nil
	}
	for {
		c.skipEOLs()
		nameTok := c.next()
		if nameTok.Kind != token.Ident {
			return nil, c.errf(mserr.CompileError, "expected parameter name, found %s", tokenDesc(nameTok))
		}
		p := tac.Param{Name: nameTok.Text}
		if c.isOp("=") {
			c.next()
			c.skipEOLs()
			def, err := c.parseExprRaw()
			if err != nil {
				return nil, err
			}
			p.Default = &def
		}
		params = append(params, p)
		c.skipEOLs()
		if c.isOp(",") {
			c.next()
			continue
		}
		break
	}
	if hasParens {
		c.skipEOLs()
		if err := c.expectOp(")"); err != nil {
			return nil, err
		}
	}
	return params, nil
}

func (c *Compiler) parseOr() (tac.Operand, *mserr.MSError) {
	left, err := c.parseAnd()
	if err != nil {
		return tac.Operand{}, err
	}
	if !c.isKeyword("or") {
		return left, nil
	}
	left = c.fullEval(left)
	ctx := c.cur()
	t := ctx.NewTemp()
	line := c.peek().Line
	ctx.Emit(tac.AssignA, tac.TempOperand(t), left, tac.Void, line)
	for c.isKeyword("or") {
		opLine := c.next().Line
		c.skipEOLs()
		jmpIdx := ctx.Emit(tac.GotoAifTrulyB, tac.JumpTarget(0), tac.TempOperand(t), tac.Void, opLine)
		right, err := c.parseAnd()
		if err != nil {
			return tac.Operand{}, err
		}
		right = c.fullEval(right)
		ctx.Emit(tac.AOrB, tac.TempOperand(t), tac.TempOperand(t), right, opLine)
		ctx.PatchAt(jmpIdx, ctx.Here())
	}
	return tac.TempOperand(t), nil
}

func (c *Compiler) parseAnd() (tac.Operand, *mserr.MSError) {
	left, err := c.parseNot()
	if err != nil {
		return tac.Operand{}, err
	}
	if !c.isKeyword("and") {
		return left, nil
	}
	left = c.fullEval(left)
	ctx := c.cur()
	t := ctx.NewTemp()
	line := c.peek().Line
	ctx.Emit(tac.AssignA, tac.TempOperand(t), left, tac.Void, line)
	for c.isKeyword("and") {
		opLine := c.next().Line
		c.skipEOLs()
		jmpIdx := ctx.Emit(tac.GotoAifNotB, tac.JumpTarget(0), tac.TempOperand(t), tac.Void, opLine)
		right, err := c.parseNot()
		if err != nil {
			return tac.Operand{}, err
		}
		right = c.fullEval(right)
		ctx.Emit(tac.AAndB, tac.TempOperand(t), tac.TempOperand(t), right, opLine)
		ctx.PatchAt(jmpIdx, ctx.Here())
	}
	return tac.TempOperand(t), nil
}

func (c *Compiler) parseNot() (tac.Operand, *mserr.MSError) {
	if c.isKeyword("not") {
		line := c.next().Line
		c.skipEOLs()
		operand, err := c.parseNot()
		if err != nil {
			return tac.Operand{}, err
		}
		operand = c.fullEval(operand)
		return c.emitUnary(tac.NotA, operand, line), nil
	}
	return c.parseIsa()
}

func (c *Compiler) parseIsa() (tac.Operand, *mserr.MSError) {
	left, err := c.parseComparison()
	if err != nil {
		return tac.Operand{}, err
	}
	for c.isKeyword("isa") {
		line := c.next().Line
		c.skipEOLs()
		left = c.fullEval(left)
		right, err := c.parseComparison()
		if err != nil {
			return tac.Operand{}, err
		}
		right = c.fullEval(right)
		left = c.emitBinary(tac.AisaB, left, right, line)
	}
	return left, nil
}

var compareOpcodes = map[string]tac.OpCode{
	"==": tac.AEqualB, "!=": tac.ANotEqualB,
	">": tac.AGreaterThanB, ">=": tac.AGreatOrEqualB,
	"<": tac.ALessThanB, "<=": tac.ALessOrEqualB,
}

// parseComparison chains comparisons left-to-right so `a < b < c` compiles
// to `(a < b) and (b < c)`, matching spec §4.3's "chained comparisons".
func (c *Compiler) parseComparison() (tac.Operand, *mserr.MSError) {
	left, err := c.parseAdditive()
	if err != nil {
		return tac.Operand{}, err
	}
	t := c.peek()
	if _, ok := compareOpcodes[t.Text]; t.Kind != token.Op || !ok {
		return left, nil
	}
	left = c.fullEval(left)
	prev := left
	var chained tac.Operand
	haveChain := false
	for {
		t := c.peek()
		opcode, ok := compareOpcodes[t.Text]
		if t.Kind != token.Op || !ok {
			break
		}
		c.next()
		c.skipEOLs()
		right, err := c.parseAdditive()
		if err != nil {
			return tac.Operand{}, err
		}
		right = c.fullEval(right)
		cmp := c.emitBinary(opcode, prev, right, t.Line)
		if !haveChain {
			chained = cmp
			haveChain = true
		} else {
			chained = c.emitBinary(tac.AAndB, chained, cmp, t.Line)
		}
		prev = right
	}
	return chained, nil
}

// additiveContinues reports whether the token at the cursor should be
// consumed as the additive loop's next binary operator. It implements spec
// §4.3 item 7's disambiguation: a `-` that opens a statement, is preceded
// by a space, and is tightly bound to the term that follows it (e.g.
// `print -1`) is left unconsumed so the caller can re-parse it as a fresh
// unary-minus operand (picked up by parseUnaryMinus) rather than treating
// it as subtraction.
func (c *Compiler) additiveContinues(atStatementStart bool) bool {
	t := c.peek()
	if t.Kind != token.Op {
		return false
	}
	if t.Text == "+" {
		return true
	}
	if t.Text != "-" {
		return false
	}
	if !atStatementStart || !t.PrecededBySpace {
		return true
	}
	return c.peekN(1).PrecededBySpace
}

func (c *Compiler) parseAdditive() (tac.Operand, *mserr.MSError) {
	atStart := c.atExprStart
	c.atExprStart = false
	left, err := c.parseMultiplicative()
	if err != nil {
		return tac.Operand{}, err
	}
	if !c.additiveContinues(atStart) {
		return left, nil
	}
	left = c.fullEval(left)
	for c.additiveContinues(atStart) {
		t := c.next()
		atStart = false
		c.skipEOLs()
		right, err := c.parseMultiplicative()
		if err != nil {
			return tac.Operand{}, err
		}
		right = c.fullEval(right)
		opcode := tac.APlusB
		if t.Text == "-" {
			opcode = tac.AMinusB
		}
		left = c.emitBinary(opcode, left, right, t.Line)
	}
	return left, nil
}

func (c *Compiler) parseMultiplicative() (tac.Operand, *mserr.MSError) {
	left, err := c.parseUnaryMinus()
	if err != nil {
		return tac.Operand{}, err
	}
	if !c.isOp("*") && !c.isOp("/") && !c.isOp("%") {
		return left, nil
	}
	left = c.fullEval(left)
	for c.isOp("*") || c.isOp("/") || c.isOp("%") {
		t := c.next()
		c.skipEOLs()
		right, err := c.parseUnaryMinus()
		if err != nil {
			return tac.Operand{}, err
		}
		right = c.fullEval(right)
		var opcode tac.OpCode
		switch t.Text {
		case "*":
			opcode = tac.ATimesB
		case "/":
			opcode = tac.ADividedByB
		case "%":
			opcode = tac.AModB
		}
		left = c.emitBinary(opcode, left, right, t.Line)
	}
	return left, nil
}

func (c *Compiler) parseUnaryMinus() (tac.Operand, *mserr.MSError) {
	if c.isOp("-") {
		line := c.next().Line
		c.skipEOLs()
		operand, err := c.parseUnaryMinus()
		if err != nil {
			return tac.Operand{}, err
		}
		operand = c.fullEval(operand)
		return c.emitBinary(tac.AMinusB, tac.ConstNumber(0), operand, line), nil
	}
	return c.parseNewExpr()
}

func (c *Compiler) parseNewExpr() (tac.Operand, *mserr.MSError) {
	if c.isKeyword("new") {
		line := c.next().Line
		c.skipEOLs()
		operand, err := c.parseNewExpr()
		if err != nil {
			return tac.Operand{}, err
		}
		operand = c.fullEval(operand)
		return c.emitUnary(tac.NewA, operand, line), nil
	}
	return c.parsePower()
}

func (c *Compiler) parsePower() (tac.Operand, *mserr.MSError) {
	base, err := c.parseAddressOf()
	if err != nil {
		return tac.Operand{}, err
	}
	if c.isOp("^") {
		line := c.next().Line
		c.skipEOLs()
		base = c.fullEval(base)
		exp, err := c.parsePower()
		if err != nil {
			return tac.Operand{}, err
		}
		exp = c.fullEval(exp)
		return c.emitBinary(tac.APowB, base, exp, line), nil
	}
	return base, nil
}

func (c *Compiler) parseAddressOf() (tac.Operand, *mserr.MSError) {
	if c.isOp("@") {
		c.next()
		operand, err := c.parsePostfix()
		if err != nil {
			return tac.Operand{}, err
		}
		operand.NoInvoke = true
		return operand, nil
	}
	return c.parsePostfix()
}

// parsePostfix parses an atom followed by any chain of `.name`, `[index]`,
// `[from:to]` and `(args)` suffixes. The result is returned raw (not
// full-evaluated) so the caller decides whether to auto-invoke it; every
// intermediate link in the chain, by contrast, is full-evaluated before it
// is used as a container for the next link (spec §3.1, §4.3).
func (c *Compiler) parsePostfix() (tac.Operand, *mserr.MSError) {
	base, err := c.parseAtom()
	if err != nil {
		return tac.Operand{}, err
	}
	for {
		switch {
		case c.isOp("."):
			c.next()
			nameTok := c.next()
			if nameTok.Kind != token.Ident && nameTok.Kind != token.Keyword {
				return tac.Operand{}, c.errf(mserr.CompileError, "expected field name after '.', found %s", tokenDesc(nameTok))
			}
			seq := c.fullEval(base)
			idx := tac.ConstString(nameTok.Text)
			base = tac.Operand{Kind: tac.OSeqElem, Seq: &seq, Index: &idx}
		case c.isOp("["):
			line := c.next().Line
			c.skipEOLs()
			if c.isOp(":") {
				c.next()
				c.skipEOLs()
				to, err := c.parseExpr()
				if err != nil {
					return tac.Operand{}, err
				}
				c.skipEOLs()
				if err := c.expectOp("]"); err != nil {
					return tac.Operand{}, err
				}
				base = c.emitSliceCall(base, nil, &to, line)
				continue
			}
			idx, err := c.parseExpr()
			if err != nil {
				return tac.Operand{}, err
			}
			c.skipEOLs()
			if c.isOp(":") {
				c.next()
				c.skipEOLs()
				var toPtr *tac.Operand
				if !c.isOp("]") {
					to, err := c.parseExpr()
					if err != nil {
						return tac.Operand{}, err
					}
					toPtr = &to
					c.skipEOLs()
				}
				if err := c.expectOp("]"); err != nil {
					return tac.Operand{}, err
				}
				base = c.emitSliceCall(base, &idx, toPtr, line)
				continue
			}
			if err := c.expectOp("]"); err != nil {
				return tac.Operand{}, err
			}
			seq := c.fullEval(base)
			base = tac.Operand{Kind: tac.OSeqElem, Seq: &seq, Index: &idx}
		case c.isOp("("):
			line := c.next().Line
			args, err := c.parseArgList()
			if err != nil {
				return tac.Operand{}, err
			}
			if err := c.expectOp(")"); err != nil {
				return tac.Operand{}, err
			}
			base = c.emitCall(base, args, line)
		default:
			return base, nil
		}
	}
}

func (c *Compiler) emitCall(callee tac.Operand, args []tac.Operand, line int) tac.Operand {
	ctx := c.cur()
	for _, a := range args {
		ctx.Emit(tac.PushParam, tac.Void, a, tac.Void, line)
	}
	t := ctx.NewTemp()
	idx := ctx.Emit(tac.CallFunctionA, tac.TempOperand(t), callee, tac.Void, line)
	ctx.SetN(idx, len(args))
	return tac.TempOperand(t)
}

// emitSliceCall desugars `seq[from:to]` into a direct, lookup-bypassing
// call to the built-in `slice` (spec §4.3: list/string slicing always
// calls the true built-in, regardless of any local shadowing it).
func (c *Compiler) emitSliceCall(seqRaw tac.Operand, from, to *tac.Operand, line int) tac.Operand {
	seq := c.fullEval(seqRaw)
	fromOp := tac.ConstNumber(0)
	if from != nil {
		fromOp = *from
	}
	toOp := tac.ConstNull()
	if to != nil {
		toOp = *to
	}
	callee := tac.Operand{Kind: tac.OIntrinsicRef, Name: "slice"}
	return c.emitCall(callee, []tac.Operand{seq, fromOp, toOp}, line)
}

func (c *Compiler) parseArgList() ([]tac.Operand, *mserr.MSError) {
	var args []tac.Operand
	c.skipEOLs()
	if c.isOp(")") {
		return args, nil
	}
	for {
		c.skipEOLs()
		v, err := c.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		c.skipEOLs()
		if c.isOp(",") {
			c.next()
			continue
		}
		break
	}
	c.skipEOLs()
	return args, nil
}

func (c *Compiler) parseAtom() (tac.Operand, *mserr.MSError) {
	t := c.peek()
	switch {
	case t.Kind == token.Number:
		c.next()
		n, perr := strconv.ParseFloat(t.Text, 64)
		if perr != nil {
			return tac.Operand{}, c.errf(mserr.CompileError, "invalid number literal %q", t.Text)
		}
		return tac.ConstNumber(n), nil
	case t.Kind == token.String:
		c.next()
		return tac.ConstString(t.Text), nil
	case t.Kind == token.Keyword && t.Text == "null":
		c.next()
		return tac.ConstNull(), nil
	case t.Kind == token.Keyword && t.Text == "true":
		c.next()
		return tac.ConstBool(true), nil
	case t.Kind == token.Keyword && t.Text == "false":
		c.next()
		return tac.ConstBool(false), nil
	case t.Kind == token.Ident:
		c.next()
		mode := tac.VarNormal
		if t.Text == c.cur().localOnlyHint {
			mode = tac.VarStrictLocalOnly
		}
		return tac.VarOperand(t.Text, mode), nil
	case t.Kind == token.Op && t.Text == "(":
		c.next()
		c.skipEOLs()
		inner, err := c.parseExprRaw()
		if err != nil {
			return tac.Operand{}, err
		}
		inner = c.fullEval(inner)
		c.skipEOLs()
		if err := c.expectOp(")"); err != nil {
			return tac.Operand{}, err
		}
		return inner, nil
	case t.Kind == token.Op && t.Text == "[":
		return c.parseListLiteral()
	case t.Kind == token.Op && t.Text == "{":
		return c.parseMapLiteral()
	default:
		return tac.Operand{}, c.errf(mserr.CompileError, "unexpected %s in expression", tokenDesc(t))
	}
}

func (c *Compiler) parseListLiteral() (tac.Operand, *mserr.MSError) {
	c.next()
	c.skipEOLs()
	var elems []tac.Operand
	if !c.isOp("]") {
		for {
			c.skipEOLs()
			v, err := c.parseExpr()
			if err != nil {
				return tac.Operand{}, err
			}
			elems = append(elems, v)
			c.skipEOLs()
			if c.isOp(",") {
				c.next()
				c.skipEOLs()
				if c.isOp("]") {
					break
				}
				continue
			}
			break
		}
	}
	c.skipEOLs()
	if err := c.expectOp("]"); err != nil {
		return tac.Operand{}, err
	}
	return tac.Operand{Kind: tac.OListLit, Elems: elems}, nil
}

func (c *Compiler) parseMapLiteral() (tac.Operand, *mserr.MSError) {
	c.next()
	c.skipEOLs()
	var keys, vals []tac.Operand
	if !c.isOp("}") {
		for {
			c.skipEOLs()
			k, err := c.parseExpr()
			if err != nil {
				return tac.Operand{}, err
			}
			c.skipEOLs()
			if err := c.expectOp(":"); err != nil {
				return tac.Operand{}, err
			}
			c.skipEOLs()
			v, err := c.parseExpr()
			if err != nil {
				return tac.Operand{}, err
			}
			keys = append(keys, k)
			vals = append(vals, v)
			c.skipEOLs()
			if c.isOp(",") {
				c.next()
				c.skipEOLs()
				if c.isOp("}") {
					break
				}
				continue
			}
			break
		}
	}
	c.skipEOLs()
	if err := c.expectOp("}"); err != nil {
		return tac.Operand{}, err
	}
	return tac.Operand{Kind: tac.OMapLit, Keys: keys, Vals: vals}, nil
}
