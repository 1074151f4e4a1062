package interp

import (
	"strings"
	"testing"
	"time"
)

type captured struct {
	stdout, implicit, errOut []string
}

func (c *captured) sinks() (Sink, Sink, Sink) {
	record := func(dst *[]string) Sink {
		return func(text string, addEOL bool) {
			if addEOL {
				text += "\n"
			}
			*dst = append(*dst, text)
		}
	}
	return record(&c.stdout), record(&c.implicit), record(&c.errOut)
}

func run(t *testing.T, source string) *captured {
	t.Helper()
	c := &captured{}
	out, implicit, errOut := c.sinks()
	it := New(source, out, implicit, errOut)
	if err := it.Compile(); err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	if err := it.RunUntilDone(2*time.Second, true); err != nil {
		t.Fatalf("RunUntilDone(%q): %v", source, err)
	}
	return c
}

func TestPrintBuiltin(t *testing.T) {
	tests := []struct {
		name, source, want string
	}{
		{"number", `print 1 + 2`, "3\n"},
		{"string concat", `print "a" + "b"`, "ab\n"},
		{"list literal", `print [1, 2, 3]`, "[1, 2, 3]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := run(t, tt.source)
			got := strings.Join(c.stdout, "")
			if got != tt.want {
				t.Errorf("stdout = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestUnaryMinusDisambiguation exercises spec §4.3 item 7: a `-` preceded
// by whitespace and tightly bound to the next token, at statement start,
// is a unary-minus command argument rather than subtraction.
func TestUnaryMinusDisambiguation(t *testing.T) {
	tests := []struct {
		name, source, want string
	}{
		{"command call with negative arg", `print -1`, "-1\n"},
		{"spaced subtraction", "x = 5\nprint x - 1", "4\n"},
		{"tight subtraction", "x = 5\nprint x-1", "4\n"},
		{"chained comparison", `print 1 < 2 < 3`, "1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := run(t, tt.source)
			got := strings.Join(c.stdout, "")
			if got != tt.want {
				t.Errorf("stdout = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGlobalAccessors(t *testing.T) {
	c := &captured{}
	out, implicit, errOut := c.sinks()
	it := New("x = 41\nx = x + 1", out, implicit, errOut)
	if err := it.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := it.RunUntilDone(time.Second, true); err != nil {
		t.Fatalf("RunUntilDone: %v", err)
	}
	v, ok := it.GetGlobalValue("x")
	if !ok {
		t.Fatalf("expected global x to be set")
	}
	if got := v; got == nil {
		t.Fatalf("expected non-nil value for x")
	}
}

func TestReplEchoesImplicitResult(t *testing.T) {
	c := &captured{}
	out, implicit, errOut := c.sinks()
	it := New("", out, implicit, errOut, REPLMode())
	if err := it.Repl("1 + 1", time.Second); err != nil {
		t.Fatalf("Repl: %v", err)
	}
	v, ok := it.GetGlobalValue("_")
	if !ok {
		t.Fatalf("expected REPL to set the implicit result global `_`")
	}
	_ = v
	if got := strings.Join(c.implicit, ""); got != "2\n" {
		t.Errorf("implicit output = %q, want %q", got, "2\n")
	}
}

func TestNeedMoreInputOnOpenBlock(t *testing.T) {
	c := &captured{}
	out, implicit, errOut := c.sinks()
	it := New("", out, implicit, errOut, REPLMode())
	_ = it.Repl("if true then", time.Second)
	if !it.NeedMoreInput() {
		t.Fatalf("expected NeedMoreInput() after an unterminated if-block")
	}
}

func TestStopMarksDone(t *testing.T) {
	c := &captured{}
	out, implicit, errOut := c.sinks()
	it := New("while true\nend while", out, implicit, errOut)
	if err := it.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	it.Stop()
	if !it.Done() {
		t.Fatalf("expected Done() to be true after Stop()")
	}
}

// TestEndToEndScenarios exercises spec §8's "Concrete end-to-end
// scenarios" table, written with newlines in place of `;`, plus string
// coercion and cycle-safe equality.
func TestEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name, source, want string
	}{
		{"arithmetic", `print 6*7`, "42\n"},
		{"for-in range", "for i in range(1,3)\nprint i\nend for", "1\n2\n3\n"},
		{"list aliasing", "a = [1,2,3]\nb = a\nb.push 4\nprint a", "[1, 2, 3, 4]\n"},
		{"new isa", `m = {"x":1}` + "\n" + `m2 = new m` + "\n" + `print m2 isa m`, "1\n"},
		{"recursive function", "f = function(n)\nif n<2 then return n\nreturn f(n-1)+f(n-2)\nend function\nprint f(10)", "55\n"},
		{"string accumulation", "s = \"\"\nfor i in range(1,5)\ns = s + i\nend for\nprint s", "12345\n"},
		{"string coercion", `print "a" + 1`, "a1\n"},
		{"cycle-safe equality", "a = []\na.push(a)\nprint a == a", "1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := run(t, tt.source)
			got := strings.Join(c.stdout, "")
			if got != tt.want {
				t.Errorf("stdout = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestFaultScenarios exercises spec §8's "Fault scenarios" table.
func TestFaultScenarios(t *testing.T) {
	tests := []struct {
		name, source, wantSubstr string
	}{
		{"index out of range", "x = [1,2,3]\nprint x[10]", "out of range"},
		{"key not found", `m = {}` + "\n" + `print m["absent"]`, "absent"},
		{"new on non-map", "new 42", "new"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &captured{}
			out, implicit, errOut := c.sinks()
			it := New(tt.source, out, implicit, errOut)
			if err := it.Compile(); err != nil {
				t.Fatalf("Compile(%q): %v", tt.source, err)
			}
			err := it.RunUntilDone(time.Second, true)
			if err == nil {
				t.Fatalf("expected a runtime error for %q", tt.source)
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantSubstr)
			}
		})
	}
}

// TestWaitResumesAfterDeadline exercises spec §8 property 8 ("Cooperative
// resumption"): `wait(n)` returns within one step while pending, and a
// later run_until_done after the deadline completes it.
func TestWaitResumesAfterDeadline(t *testing.T) {
	c := &captured{}
	out, implicit, errOut := c.sinks()
	it := New(`wait(0.05)`+"\n"+`print "done"`, out, implicit, errOut)
	if err := it.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := it.RunUntilDone(10*time.Millisecond, true); err != nil {
		t.Fatalf("RunUntilDone (first slice): %v", err)
	}
	if it.Done() {
		t.Fatalf("expected wait() to still be pending after a short slice")
	}
	time.Sleep(60 * time.Millisecond)
	if err := it.RunUntilDone(time.Second, true); err != nil {
		t.Fatalf("RunUntilDone (after deadline): %v", err)
	}
	if !it.Done() {
		t.Fatalf("expected the script to finish once wait()'s deadline elapsed")
	}
	if got := strings.Join(c.stdout, ""); got != "done\n" {
		t.Errorf("stdout = %q, want %q", got, "done\n")
	}
}

func TestAssignToReservedIdentIsRuntimeError(t *testing.T) {
	tests := []string{"globals = 1", "locals = 1"}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			c := &captured{}
			out, implicit, errOut := c.sinks()
			it := New(src, out, implicit, errOut)
			if err := it.Compile(); err != nil {
				t.Fatalf("Compile(%q): %v", src, err)
			}
			if err := it.RunUntilDone(time.Second, true); err == nil {
				t.Fatalf("expected assignment to %q to fail at runtime", src)
			}
		})
	}
}

func TestCompileErrorReportedOnErrorSink(t *testing.T) {
	c := &captured{}
	out, implicit, errOut := c.sinks()
	it := New(`x = `, out, implicit, errOut)
	if err := it.Compile(); err == nil {
		t.Fatalf("expected a compile error for a dangling assignment")
	}
	if len(c.errOut) == 0 {
		t.Fatalf("expected the compile error to be reported through error_output")
	}
	if !strings.Contains(c.errOut[0], it.SessionID()[:8]) {
		t.Errorf("expected error_output to be tagged with the session id, got %q", c.errOut[0])
	}
}
