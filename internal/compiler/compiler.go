// Package compiler is the single-pass recursive-descent parser and TAC
// emitter of spec §4.3: it never builds a separate AST. Expressions are
// compiled directly into the current EmissionContext as they are parsed,
// and nested `function` literals push/pop emission contexts on a stack.
package compiler

import (
	"fmt"

	"github.com/msscript/ms/internal/lexer"
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/token"
)

// Compiler drives one compilation: it owns the token source and the stack
// of emission contexts currently being filled.
type Compiler struct {
	sc       *lexer.Scanner
	contexts []*EmissionContext
	repl     bool

	// atExprStart is a one-shot flag set by parseSimpleStatement right
	// before it parses the statement's leading expression, and consumed
	// (cleared) by parseAdditive's first invocation for that statement. It
	// implements spec §4.3 item 7's unary-minus/statement-start
	// disambiguation: only the very first additive term of a statement can
	// ever be "at statement start".
	atExprStart bool
}

// New builds a Compiler over source, ready to Compile() it; the REPL uses
// the same Compile() on its accumulated input buffer.
func New(source string, repl bool) *Compiler {
	return &Compiler{sc: lexer.New(source), repl: repl}
}

func (c *Compiler) cur() *EmissionContext { return c.contexts[len(c.contexts)-1] }

func (c *Compiler) pushContext(name string) {
	c.contexts = append(c.contexts, newEmissionContext(name))
}

func (c *Compiler) popContext() *EmissionContext {
	top := c.cur()
	c.contexts = c.contexts[:len(c.contexts)-1]
	return top
}

// Compile parses the entire source as one program and returns the
// top-level FunctionProto (the "entry function" of spec §2's control-flow
// summary).
func (c *Compiler) Compile() (*tac.FunctionProto, *mserr.MSError) {
	if err := c.sc.Err(); err != nil {
		return nil, err
	}
	c.pushContext("main")
	if err := c.parseStatements(true); err != nil {
		return nil, err
	}
	if !c.sc.AtEnd() {
		return nil, c.errf(mserr.CompileError, "unexpected %s", tokenDesc(c.peek()))
	}
	return c.popContext().Proto, nil
}

// NeedMoreInput reports whether the parser stopped mid-block, mid nested
// function definition, or on a trailing line-continuation token -- the
// REPL uses this to decide whether to prompt for another line (spec §7,
// "Partial-input signaling").
func (c *Compiler) NeedMoreInput(source string) bool {
	if len(c.contexts) > 1 {
		return true
	}
	if len(c.contexts) == 1 && c.cur().HasOpenBackpatch() {
		return true
	}
	return lexer.EndsWithLineContinuation(source)
}

func (c *Compiler) peek() token.Token   { return c.sc.Peek() }
func (c *Compiler) peekN(n int) token.Token { return c.sc.PeekN(n) }
func (c *Compiler) next() token.Token   { return c.sc.Next() }

func (c *Compiler) errf(kind mserr.Kind, format string, args ...interface{}) *mserr.MSError {
	line := c.peek().Line
	return mserr.New(kind, format, args...).WithLocation(c.cur().Proto.Name, line)
}

// skipEOLs consumes any run of end-of-line tokens.
func (c *Compiler) skipEOLs() {
	for c.peek().Kind == token.EOL {
		c.next()
	}
}

func (c *Compiler) isKeyword(text string) bool {
	t := c.peek()
	return t.Kind == token.Keyword && t.Text == text
}

func (c *Compiler) isOp(text string) bool {
	t := c.peek()
	return t.Kind == token.Op && t.Text == text
}

func (c *Compiler) expectOp(text string) *mserr.MSError {
	if !c.isOp(text) {
		return c.errf(mserr.CompileError, "expected %q, found %s", text, tokenDesc(c.peek()))
	}
	c.next()
	return nil
}

func (c *Compiler) expectKeyword(text string) *mserr.MSError {
	if !c.isKeyword(text) {
		return c.errf(mserr.CompileError, "expected %q, found %s", text, tokenDesc(c.peek()))
	}
	c.next()
	return nil
}

func tokenDesc(t token.Token) string {
	if t.Kind == token.EOF {
		return "end of input"
	}
	if t.Kind == token.EOL {
		return "end of line"
	}
	return fmt.Sprintf("%q", t.Text)
}

// atStatementEnd reports whether the parser is sitting on a token that
// ends a statement (EOL or EOF); callers use this to stop parsing
// command-call arguments or to detect an empty return value.
func (c *Compiler) atStatementEnd() bool {
	k := c.peek().Kind
	return k == token.EOL || k == token.EOF
}
