package compiler

import "testing"

func TestCompileSucceeds(t *testing.T) {
	sources := []string{
		`print 6*7`,
		"for i in range(1,3)\nprint i\nend for",
		"f = function(n)\nif n<2 then return n\nreturn f(n-1)+f(n-2)\nend function\nprint f(10)",
		"x = 1\nx += 2\nx -= 1\nprint x",
		`m = {"a": 1, "b": 2}`,
	}
	for _, src := range sources {
		if _, err := New(src, false).Compile(); err != nil {
			t.Errorf("Compile(%q) unexpected error: %v", src, err)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name, source string
	}{
		{"dangling assignment", "x = "},
		{"missing end if", "if true then\nprint 1"},
		{"missing end while", "while true\nprint 1"},
		{"bad operator", "x = 1 $ 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.source, false).Compile(); err == nil {
				t.Errorf("Compile(%q): expected an error, got none", tt.source)
			}
		})
	}
}

func TestNeedMoreInputMidBlock(t *testing.T) {
	tests := []struct {
		name, source string
		want         bool
	}{
		{"unterminated if", "if true then", true},
		{"unterminated function", "f = function(n)", true},
		{"complete statement", "x = 1", false},
		{"trailing continuation", "x = 1 +", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.source, true)
			c.Compile()
			if got := c.NeedMoreInput(tt.source); got != tt.want {
				t.Errorf("NeedMoreInput(%q) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}
