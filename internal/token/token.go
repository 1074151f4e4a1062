// Package token defines the lexical token kinds produced by internal/lexer
// and consumed by internal/compiler.
package token

// Kind classifies a Token.
type Kind int

const (
	Keyword Kind = iota
	Ident
	Number
	String
	Op
	EOL
	EOF
)

func (k Kind) String() string {
	switch k {
	case Keyword:
		return "keyword"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case Op:
		return "operator"
	case EOL:
		return "end-of-line"
	case EOF:
		return "end-of-stream"
	default:
		return "?"
	}
}

// Token is one lexical unit. Text is the literal source text for Op/Ident/
// Number tokens, the unescaped contents for String tokens, and the
// (possibly two-word-merged, e.g. "end if") spelling for Keyword tokens.
type Token struct {
	Kind           Kind
	Text           string
	Line           int
	PrecededBySpace bool
}

// Keywords is the full reserved-word set of §6, excluding the synthetic
// merged forms ("end if", "end while", "end for", "end function",
// "else if") which the lexer produces as Keyword tokens with that exact
// two-word Text.
var Keywords = map[string]bool{
	"break":    true,
	"continue": true,
	"else":     true,
	"end":      true,
	"for":      true,
	"function": true,
	"if":       true,
	"in":       true,
	"isa":      true,
	"new":      true,
	"null":     true,
	"then":     true,
	"repeat":   true,
	"return":   true,
	"while":    true,
	"and":      true,
	"or":       true,
	"not":      true,
	"true":     true,
	"false":    true,
}

// Reserved identifiers that are lexed as plain Ident tokens but are given
// special meaning by the compiler/VM (spec §4.5): self, super, outer,
// locals, globals.
var ReservedIdents = map[string]bool{
	"self":    true,
	"super":   true,
	"outer":   true,
	"locals":  true,
	"globals": true,
}

// IsTerminalKeyword reports whether a keyword token can be the last token
// of a complete statement (used by ends_with_line_continuation): the
// literals "true", "false" and "null", the block closers "end if",
// "end while", "end for" and "end function", and the bare statements
// "break", "continue" and "return". All other keywords open or continue a
// statement and cannot stand alone at end-of-input.
func IsTerminalKeyword(text string) bool {
	switch text {
	case "true", "false", "null", "end if", "end while", "end for", "end function", "break", "continue", "return":
		return true
	default:
		return false
	}
}
