// Package mserr defines the checked error discriminants that cross the
// VM/compiler boundary (spec §7) as a single error type, in the shape of
// the teacher's internal/errors.SentraError: a kind, a message, a source
// location, and an optional wrapped cause.
package mserr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the checked error discriminants of §7.
type Kind string

const (
	LexError           Kind = "LexError"
	CompileError       Kind = "CompileError"
	RuntimeError       Kind = "RuntimeError"
	IndexError         Kind = "IndexError"
	KeyNotFound        Kind = "KeyNotFound"
	TypeError          Kind = "TypeError"
	TooManyArguments   Kind = "TooManyArguments"
	UndefinedIdentifier Kind = "UndefinedIdentifier"
	UndefinedLocal      Kind = "UndefinedLocal"
	LimitExceeded       Kind = "LimitExceeded"
)

// Location is the source position attached to an error once it crosses a
// step/compile/run boundary. Context names the enclosing function ("main"
// for the root context), Line is 1-based and 0 when unknown.
type Location struct {
	Context string
	Line    int
}

// MSError is the single error type all MS components raise and propagate.
type MSError struct {
	Kind     Kind
	Message  string
	Location Location
	Cause    error
}

func (e *MSError) Error() string {
	if e.Location.Line > 0 {
		ctx := e.Location.Context
		if ctx == "" {
			ctx = "main"
		}
		return fmt.Sprintf("%s: %s [%s line %d]", e.Kind, e.Message, ctx, e.Location.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *MSError) Unwrap() error { return e.Cause }

// New builds an MSError with no location yet; the VM attaches one as the
// error unwinds the context stack (spec §7 "Propagation").
func New(kind Kind, format string, args ...interface{}) *MSError {
	return &MSError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates a foreign error (a host sink failure, an I/O error) as the
// cause of an MSError, preserving a stack via github.com/pkg/errors so the
// host-side diagnostic log can show where the wrapping occurred.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *MSError {
	return &MSError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   errors.WithStack(cause),
	}
}

// WithLocation returns e with its source location set if it was not
// already set (the VM calls this exactly once, at the deepest frame where
// the error first surfaces).
func (e *MSError) WithLocation(context string, line int) *MSError {
	if e.Location.Line == 0 {
		e.Location = Location{Context: context, Line: line}
	}
	return e
}

// Is reports whether err is an *MSError of the given kind, unwrapping
// pkg/errors-wrapped causes along the way.
func Is(err error, kind Kind) bool {
	var me *MSError
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}
