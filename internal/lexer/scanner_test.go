package lexer

import (
	"testing"

	"github.com/msscript/ms/internal/token"
)

func scanAll(t *testing.T, source string) []token.Token {
	t.Helper()
	s := New(source)
	var out []token.Token
	for {
		tok := s.Next()
		out = append(out, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scanning %q: %v", source, err)
	}
	return out
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestScanBasicTokens(t *testing.T) {
	tests := []struct {
		name   string
		source string
		texts  []string
	}{
		{"number literal", "1.5e-3", []string{"1.5e-3"}},
		{"quoted string with escaped quote", `"say ""hi"""`, []string{`say "hi"`}},
		{"merged end if", "if true then\nend if", []string{"if", "true", "then", "end if"}},
		{"merged else if", "else if x", []string{"else if", "x"}},
		{"compound operator", "x += 1", []string{"x", "+=", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := scanAll(t, tt.source)
			var got []string
			for _, tok := range toks {
				if tok.Kind == token.EOL || tok.Kind == token.EOF {
					continue
				}
				got = append(got, tok.Text)
			}
			if len(got) != len(tt.texts) {
				t.Fatalf("token texts = %v, want %v", got, tt.texts)
			}
			for i := range got {
				if got[i] != tt.texts[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i], tt.texts[i])
				}
			}
		})
	}
}

func TestEndsWithLineContinuation(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"trailing plus", "x = 1 +", true},
		{"trailing comma", "print 1,", true},
		{"complete statement", "x = 1", false},
		{"trailing keyword terminal", "x = true", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EndsWithLineContinuation(tt.source); got != tt.want {
				t.Errorf("EndsWithLineContinuation(%q) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}
