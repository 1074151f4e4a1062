// Package interp is the host-facing façade of spec §6: the Interpreter
// type a host program constructs, feeds source to, and drives to
// completion, without ever touching the compiler/vm packages directly.
// It mirrors the role of the teacher's top-level engine.Engine (source in,
// three sinks out), narrowed to the single-script, single-VM shape spec.md
// describes.
package interp

import (
	"time"

	"github.com/google/uuid"

	"github.com/msscript/ms/internal/compiler"
	"github.com/msscript/ms/internal/diag"
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/value"
	"github.com/msscript/ms/internal/vm"
)

// Sink is one of the three host callbacks named in spec §6. It is an
// alias for vm.Sink (rather than a redeclared, distinct function type) so
// a façade caller's callback can be passed straight through to vm.New
// without a conversion at the package boundary.
type Sink = vm.Sink

// Interpreter is the façade. One Interpreter owns one compiler pass and
// one VM; reset() discards both, restart() keeps the compiled code and
// globals and only resets execution position (spec §6).
type Interpreter struct {
	sessionID uuid.UUID

	source string
	repl   bool
	limits value.Limits

	stdout      Sink
	implicitOut Sink
	errOut      Sink
	hostData    interface{}

	c     *compiler.Compiler
	entry *tac.FunctionProto
	v     *vm.VM

	done    bool
	stopped bool
}

// Option configures an Interpreter at construction time.
type Option func(*Interpreter)

// WithLimits overrides the default resource limits (spec §3.1/§5/§7).
func WithLimits(l value.Limits) Option {
	return func(i *Interpreter) { i.limits = l }
}

// WithHostData attaches the opaque host pointer exposed to intrinsics via
// the VM (spec §6 `host_data`).
func WithHostData(d interface{}) Option {
	return func(i *Interpreter) { i.hostData = d }
}

// REPLMode marks the Interpreter for `repl()` use: line continuation is
// permitted and AssignImplicit writes the `_` global (spec §4.5, §6).
func REPLMode() Option {
	return func(i *Interpreter) { i.repl = true }
}

// New builds an Interpreter over source, wired to the three host sinks.
// It does not compile; call Compile (or Repl, which compiles line by
// line) before running.
func New(source string, stdout, implicitOut, errOut Sink, opts ...Option) *Interpreter {
	i := &Interpreter{
		sessionID:   uuid.New(),
		source:      source,
		limits:      value.DefaultLimits(),
		stdout:      stdout,
		implicitOut: implicitOut,
		errOut:      errOut,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SessionID identifies this Interpreter across a host's aggregated logs
// (SPEC_FULL.md "Logging"); it is interpolated into error_output text by
// reportError.
func (i *Interpreter) SessionID() string { return i.sessionID.String() }

func (i *Interpreter) reportError(err *mserr.MSError) {
	i.done = true
	if i.errOut != nil {
		i.errOut("["+diag.SessionTag(i.SessionID())+"] "+err.Error(), true)
	}
}

// Compile lexes and parses i.source, populating the internal VM (spec §6
// `compile()`). Compile errors are reported through error_output and also
// returned so a host can fail fast.
func (i *Interpreter) Compile() *mserr.MSError {
	i.c = compiler.New(i.source, i.repl)
	entry, err := i.c.Compile()
	if err != nil {
		i.reportError(err)
		return err
	}
	i.entry = entry
	i.v = vm.New(entry, i.limits, i.stdout, i.implicitOut, i.errOut)
	if i.hostData != nil {
		i.v.SetHostData(i.hostData)
	}
	i.done = false
	i.stopped = false
	return nil
}

// Step executes exactly one VM instruction (spec §6 `step()`).
func (i *Interpreter) Step() *mserr.MSError {
	if i.v == nil {
		return mserr.New(mserr.RuntimeError, "interpreter not compiled")
	}
	if !i.v.Running() {
		i.done = true
		return nil
	}
	if err := i.v.Step(); err != nil {
		i.reportError(err)
		return err
	}
	if !i.v.Running() {
		i.done = true
	}
	return nil
}

// RunUntilDone drives step() under the suspension rules of spec §5,
// returning when the root context finishes, the VM yields, a partial-
// result intrinsic asks to wait and returnEarly is set, or timeLimit
// elapses.
func (i *Interpreter) RunUntilDone(timeLimit time.Duration, returnEarly bool) *mserr.MSError {
	if timeLimit <= 0 {
		timeLimit = 60 * time.Second
	}
	if i.v == nil {
		return mserr.New(mserr.RuntimeError, "interpreter not compiled")
	}
	deadline := time.Now().Add(timeLimit)
	i.v.Yielding = false
	for {
		if !i.v.Running() {
			i.done = true
			return nil
		}
		if i.v.Yielding {
			i.v.Yielding = false
			return nil
		}
		ctx := i.v.Current()
		wasWaiting := ctx.PartialResult != nil
		if err := i.v.Step(); err != nil {
			i.reportError(err)
			return err
		}
		if wasWaiting && returnEarly && i.v.Current() == ctx && ctx.PartialResult != nil {
			// the built-in re-asked for more time: honor return_early by
			// yielding control back to the host rather than busy-looping.
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
	}
}

// Repl parse-and-runs one REPL line (spec §6 `repl(line, time_limit)`):
// appended to the interpreter's buffered source so multi-line constructs
// (if/for/function bodies) can span calls, with implicit results echoed
// via implicit_output.
func (i *Interpreter) Repl(line string, timeLimit time.Duration) *mserr.MSError {
	i.repl = true
	if i.source != "" {
		i.source += "\n" + line
	} else {
		i.source = line
	}
	// Re-lex and re-parse the whole accumulated buffer from scratch each
	// call: a Compiler's scanner has no rewind, so picking up where a
	// prior failed attempt left off would desync source position from
	// i.source rather than correctly retrying the combined input.
	i.c = compiler.New(i.source, true)
	entry, err := i.c.Compile()
	if err != nil {
		if i.c.NeedMoreInput(i.source) {
			return nil
		}
		i.reportError(err)
		i.source = ""
		i.c = nil
		return err
	}
	i.entry = entry
	i.source = ""
	i.c = nil
	if i.v == nil {
		i.v = vm.New(entry, i.limits, i.stdout, i.implicitOut, i.errOut)
	} else {
		i.v.Restart(entry)
	}
	i.v.StoreImplicit = true
	if i.hostData != nil {
		i.v.SetHostData(i.hostData)
	}
	if err := i.RunUntilDone(timeLimit, true); err != nil {
		return err
	}
	if root := i.v.Current(); !i.v.Running() && root.ImplicitCount > 0 && i.implicitOut != nil {
		if res, ok := i.v.Globals().Get(value.String("_")); ok {
			i.implicitOut(value.ToString(res), true)
		}
	}
	return nil
}

// Reset discards the VM and parser state entirely and adopts newSource
// (spec §6 `reset(source)`); Compile must be called again before running.
func (i *Interpreter) Reset(newSource string) {
	i.source = newSource
	i.c = nil
	i.entry = nil
	i.v = nil
	i.done = false
	i.stopped = false
}

// Restart resets PC and the context stack but keeps compiled code and
// globals (spec §6 `restart()`).
func (i *Interpreter) Restart() *mserr.MSError {
	if i.v == nil || i.entry == nil {
		return mserr.New(mserr.RuntimeError, "interpreter not compiled")
	}
	i.v.Restart(i.entry)
	i.done = false
	i.stopped = false
	return nil
}

// Stop jumps the top context to end-of-code; after Stop, Done is true
// (spec §5/§6).
func (i *Interpreter) Stop() {
	if i.v != nil {
		ctx := i.v.Current()
		ctx.PC = len(ctx.Code)
	}
	i.stopped = true
	i.done = true
}

// GetGlobalValue reads a global by name (spec §6 host-side accessor).
func (i *Interpreter) GetGlobalValue(name string) (value.Value, bool) {
	if i.v == nil {
		return value.Nil, false
	}
	return i.v.Globals().Get(value.String(name))
}

// SetGlobalValue writes a global by name (spec §6 host-side accessor).
func (i *Interpreter) SetGlobalValue(name string, v value.Value) {
	if i.v == nil {
		return
	}
	i.v.Globals().Set(value.String(name), v)
}

// Done reports whether execution has finished or been stopped.
func (i *Interpreter) Done() bool { return i.done }

// Running reports whether the VM has any unfinished context.
func (i *Interpreter) Running() bool { return i.v != nil && i.v.Running() }

// NeedMoreInput reports whether the last Compile/Repl call stopped
// mid-block, mid-function, or on a line-continuation token (spec §6/§7).
func (i *Interpreter) NeedMoreInput() bool {
	if i.c == nil {
		return false
	}
	return i.c.NeedMoreInput(i.source)
}

// HostData returns the opaque host pointer set at construction or via
// WithHostData.
func (i *Interpreter) HostData() interface{} { return i.hostData }

// StackTrace exposes the running VM's per-context trace (spec §9
// supplemented `stackTrace()`), for a host's own diagnostic surface.
func (i *Interpreter) StackTrace() []string {
	if i.v == nil {
		return nil
	}
	return i.v.StackTrace()
}
