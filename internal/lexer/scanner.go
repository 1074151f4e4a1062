// Package lexer turns MS source text into a queue of tokens, the way
// sentra's internal/lexer.Scanner turns source into a flat slice -- MS
// additionally merges "end <keyword>" and "else if" into single keyword
// tokens (spec §4.2) and exposes a REPL line-continuation helper.
package lexer

import (
	"unicode"
	"unicode/utf8"

	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/token"
)

// MaxIdentRune is the threshold above which any code point is accepted as
// an identifier character, per spec §4.2 ("any code point above U+009F").
const MaxIdentRune = 0x009F

// Scanner produces a queue of tokens from source text and supports both
// peeking and dequeuing (spec §4.2, "Peek vs. dequeue").
type Scanner struct {
	source  string
	tokens  []token.Token
	pos     int
	err     *mserr.MSError
}

// New eagerly tokenizes source, then runs the two-token merge pass. Lexical
// errors (unterminated string, unexpected character, bare "end") are
// recorded and surfaced by Err(); tokenization stops at the first one.
func New(source string) *Scanner {
	s := &Scanner{source: source}
	raw, err := rawScan(source)
	if err == nil {
		for i, t := range raw {
			if t.Kind == token.Keyword && t.Text == "end" && (i+1 >= len(raw) || raw[i+1].Kind != token.Keyword) {
				err = mserr.New(mserr.LexError, "\"end\" must be followed by a keyword").WithLocation("lexer", t.Line)
				break
			}
		}
	}
	if err != nil {
		s.err = err
		s.tokens = []token.Token{{Kind: token.EOF, Line: err.Location.Line}}
		return s
	}
	s.tokens = merge(raw)
	return s
}

// Err returns the lexical error encountered while tokenizing, if any.
func (s *Scanner) Err() *mserr.MSError { return s.err }

// Peek returns the next token without consuming it. Repeated calls return
// the same token.
func (s *Scanner) Peek() token.Token { return s.PeekN(0) }

// PeekN returns the token n positions ahead of the cursor (0 == Peek()).
func (s *Scanner) PeekN(n int) token.Token {
	i := s.pos + n
	if i >= len(s.tokens) {
		return token.Token{Kind: token.EOF, Line: s.lastLine()}
	}
	return s.tokens[i]
}

// Next dequeues and returns the next token.
func (s *Scanner) Next() token.Token {
	t := s.Peek()
	if s.pos < len(s.tokens) {
		s.pos++
	}
	return t
}

func (s *Scanner) lastLine() int {
	if len(s.tokens) == 0 {
		return 1
	}
	return s.tokens[len(s.tokens)-1].Line
}

// AtEnd reports whether the cursor has reached the end-of-stream sentinel.
func (s *Scanner) AtEnd() bool { return s.Peek().Kind == token.EOF }

// EndsWithLineContinuation reports whether source's last significant
// token is an operator or opening bracket, or a keyword that
// token.IsTerminalKeyword does not accept -- the REPL uses this to decide
// whether more input is needed before the statement can be parsed (spec
// §4.2, static helper).
func EndsWithLineContinuation(source string) bool {
	raw, err := rawScan(source)
	if err != nil {
		return false
	}
	toks := merge(raw)
	var last token.Token
	found := false
	for _, t := range toks {
		if t.Kind == token.EOF || t.Kind == token.EOL {
			continue
		}
		last = t
		found = true
	}
	if !found {
		return false
	}
	switch last.Kind {
	case token.Op:
		switch last.Text {
		case ")", "]", "}":
			return false
		default:
			return true
		}
	case token.Keyword:
		// A trailing keyword that opens or continues a statement ("then",
		// "and", "function", "else", ...) asks for more input; only the
		// keywords IsTerminalKeyword accepts end a complete statement.
		return !token.IsTerminalKeyword(last.Text)
	default:
		return false
	}
}

// --- raw scanning -----------------------------------------------------

func rawScan(source string) ([]token.Token, *mserr.MSError) {
	r := &rawScanner{source: source, line: 1}
	var out []token.Token
	for {
		r.skipWhitespace()
		if r.atEnd() {
			break
		}
		precededBySpace := r.sawSpace
		r.sawSpace = false
		startLine := r.line
		t, err := r.scanOne(precededBySpace)
		if err != nil {
			return nil, err
		}
		if t != nil {
			t.Line = startLine
			out = append(out, *t)
		}
	}
	out = append(out, token.Token{Kind: token.EOF, Line: r.line})
	return out, nil
}

type rawScanner struct {
	source   string
	pos      int
	line     int
	sawSpace bool
}

func (r *rawScanner) atEnd() bool { return r.pos >= len(r.source) }

func (r *rawScanner) peek() byte {
	if r.atEnd() {
		return 0
	}
	return r.source[r.pos]
}

func (r *rawScanner) peekAt(off int) byte {
	if r.pos+off >= len(r.source) {
		return 0
	}
	return r.source[r.pos+off]
}

func (r *rawScanner) advance() byte {
	c := r.source[r.pos]
	r.pos++
	return c
}

func (r *rawScanner) match(c byte) bool {
	if r.peek() != c {
		return false
	}
	r.pos++
	return true
}

// skipWhitespace consumes spaces, tabs, and line comments; line comments
// run to end-of-line and are not themselves tokens. Newlines are left for
// scanOne, which turns each newline (or CRLF pair) into its own EOL token.
func (r *rawScanner) skipWhitespace() {
	for !r.atEnd() {
		c := r.peek()
		switch c {
		case ' ', '\t':
			r.sawSpace = true
			r.pos++
		case '/':
			if r.peekAt(1) == '/' {
				for !r.atEnd() && r.peek() != '\n' {
					r.pos++
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func (r *rawScanner) scanOne(precededBySpace bool) (*token.Token, *mserr.MSError) {
	c := r.advance()
	switch {
	case c == '\r':
		r.match('\n')
		r.line++
		return &token.Token{Kind: token.EOL, Text: "\n"}, nil
	case c == '\n':
		r.line++
		return &token.Token{Kind: token.EOL, Text: "\n"}, nil
	case c == ';':
		return &token.Token{Kind: token.EOL, Text: ";"}, nil
	case c == '"':
		t, err := r.scanString()
		if t != nil {
			t.PrecededBySpace = precededBySpace
		}
		return t, err
	case isDigitByte(c) || (c == '.' && isDigitByte(r.peek())):
		r.pos--
		t := r.scanNumber()
		t.PrecededBySpace = precededBySpace
		return t, nil
	case isIdentStart(c, r.source, r.pos-1):
		r.pos--
		return r.scanIdentOrKeyword(precededBySpace), nil
	default:
		return r.scanOperator(c, precededBySpace)
	}
}

func (r *rawScanner) scanString() (*token.Token, *mserr.MSError) {
	var buf []byte
	for {
		if r.atEnd() {
			return nil, mserr.New(mserr.LexError, "unterminated string literal").WithLocation("lexer", r.line)
		}
		c := r.peek()
		if c == '\n' {
			return nil, mserr.New(mserr.LexError, "newline in unterminated string literal").WithLocation("lexer", r.line)
		}
		if c == '"' {
			r.pos++
			if r.peek() == '"' {
				// "" escapes to a literal quote.
				buf = append(buf, '"')
				r.pos++
				continue
			}
			break
		}
		buf = append(buf, c)
		r.pos++
	}
	return &token.Token{Kind: token.String, Text: string(buf)}, nil
}

func (r *rawScanner) scanNumber() *token.Token {
	start := r.pos
	for isDigitByte(r.peek()) {
		r.pos++
	}
	if r.peek() == '.' && isDigitByte(r.peekAt(1)) {
		r.pos++
		for isDigitByte(r.peek()) {
			r.pos++
		}
	}
	if r.peek() == 'e' || r.peek() == 'E' {
		save := r.pos
		r.pos++
		if r.peek() == '+' || r.peek() == '-' {
			r.pos++
		}
		if isDigitByte(r.peek()) {
			for isDigitByte(r.peek()) {
				r.pos++
			}
		} else {
			r.pos = save
		}
	}
	return &token.Token{Kind: token.Number, Text: r.source[start:r.pos]}
}

func (r *rawScanner) scanIdentOrKeyword(precededBySpace bool) *token.Token {
	start := r.pos
	for !r.atEnd() {
		rn, size := utf8.DecodeRuneInString(r.source[r.pos:])
		if !isIdentRune(rn) {
			break
		}
		r.pos += size
	}
	text := r.source[start:r.pos]
	kind := token.Ident
	if token.Keywords[text] {
		kind = token.Keyword
	}
	return &token.Token{Kind: kind, Text: text, PrecededBySpace: precededBySpace}
}

var twoCharOps = map[string]string{
	"==": "==", "!=": "!=", "<=": "<=", ">=": ">=",
	"+=": "+=", "-=": "-=", "*=": "*=", "/=": "/=", "%=": "%=", "^=": "^=",
}

func (r *rawScanner) scanOperator(c byte, precededBySpace bool) (*token.Token, *mserr.MSError) {
	two := string(c) + string(r.peek())
	switch two {
	case "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=", "^=":
		r.pos++
		return &token.Token{Kind: token.Op, Text: two, PrecededBySpace: precededBySpace}, nil
	}
	switch c {
	case '+', '-', '*', '/', '%', '^', '=', '<', '>', '.', ',', ':', '@', '(', ')', '[', ']', '{', '}':
		return &token.Token{Kind: token.Op, Text: string(c), PrecededBySpace: precededBySpace}, nil
	default:
		return nil, mserr.New(mserr.LexError, "unexpected character %q", c).WithLocation("lexer", r.line)
	}
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte, source string, pos int) bool {
	if c == '_' {
		return true
	}
	if c < utf8.RuneSelf {
		return unicode.IsLetter(rune(c))
	}
	rn, _ := utf8.DecodeRuneInString(source[pos:])
	return isIdentRune(rn)
}

func isIdentRune(rn rune) bool {
	if rn == '_' {
		return true
	}
	if rn > MaxIdentRune {
		return true
	}
	return unicode.IsLetter(rn) || unicode.IsDigit(rn)
}

// --- two-token merge pass ----------------------------------------------

// merge combines "end" + following keyword into "end if"/"end while"/
// "end for"/"end function", and "else" + following "if" into "else if"
// (spec §4.2). A bare "end" with no following keyword never reaches merge
// from New, which reports it as a LexError first; merge itself leaves such
// an "end" as a plain keyword token.
func merge(in []token.Token) []token.Token {
	out := make([]token.Token, 0, len(in))
	for i := 0; i < len(in); i++ {
		t := in[i]
		if t.Kind == token.Keyword && t.Text == "end" && i+1 < len(in) && in[i+1].Kind == token.Keyword {
			nt := in[i+1]
			out = append(out, token.Token{Kind: token.Keyword, Text: "end " + nt.Text, Line: t.Line})
			i++
			continue
		}
		if t.Kind == token.Keyword && t.Text == "else" && i+1 < len(in) && in[i+1].Kind == token.Keyword && in[i+1].Text == "if" {
			out = append(out, token.Token{Kind: token.Keyword, Text: "else if", Line: t.Line})
			i++
			continue
		}
		out = append(out, t)
	}
	return out
}
