package vm

import (
	"math/rand"
	"time"

	"github.com/msscript/ms/internal/intrinsics"
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/tac"
	"github.com/msscript/ms/internal/value"
)

// Sink is one of the three host callbacks of spec §6
// (standard_output/implicit_output/error_output).
type Sink func(text string, addEOL bool)

// VM is the runtime of spec §3.4: a context stack (root at the bottom,
// never popped), an elapsed-time clock, the cooperative-yield flag, the
// lazily-initialized per-type prototype maps, and the registry of
// built-ins resolved through the intrinsic fallback of variable lookup.
type VM struct {
	stack []*Context

	startedAt  time.Time
	elapsed    float64
	Yielding   bool
	StoreImplicit bool

	registry *intrinsics.Registry
	rnd      *rand.Rand
	limits   value.Limits

	numberProto   *value.Map
	stringProto   *value.Map
	listProto     *value.Map
	mapProto      *value.Map
	functionProto *value.Map
	intrinsicsMap *value.Map

	stdout Sink
	implicitOut Sink
	errOut Sink

	hostData interface{}
}

// New builds a VM around entry (the compiled top-level program), wired to
// the three host sinks of spec §6. The root context persists for the
// program's lifetime (spec §3.3 "Lifecycle").
func New(entry *tac.FunctionProto, limits value.Limits, stdout, implicitOut, errOut Sink) *VM {
	v := &VM{
		registry:    intrinsics.NewRegistry(),
		rnd:         rand.New(rand.NewSource(1)),
		limits:      limits,
		startedAt:   time.Now(),
		stdout:      stdout,
		implicitOut: implicitOut,
		errOut:      errOut,
	}
	root := newContext(entry, value.NewMap(), nil, value.Nil, nil, tac.Void)
	v.stack = []*Context{root}
	return v
}

// Restart resets PC and the context stack to a single fresh root frame
// over entry, but keeps globals (spec §6 `restart()`).
func (v *VM) Restart(entry *tac.FunctionProto) {
	globals := v.Globals()
	root := newContext(entry, globals, nil, value.Nil, nil, tac.Void)
	v.stack = []*Context{root}
	v.Yielding = false
}

// Globals returns the root context's locals map (spec §4.5: "globals
// (root context's locals)").
func (v *VM) Globals() *value.Map { return v.stack[0].Locals }

// Current returns the top-of-stack context.
func (v *VM) Current() *Context { return v.stack[len(v.stack)-1] }

// Running reports whether any context remains besides a finished root.
func (v *VM) Running() bool {
	return len(v.stack) > 1 || !v.stack[0].Done()
}

// Step executes exactly one instruction (spec §4.5 `step()`), for hosts
// (internal/interp) that drive execution themselves rather than calling a
// bulk run-to-completion helper.
func (v *VM) Step() *mserr.MSError { return v.step() }

// Elapsed implements intrinsics.Runtime (spec §5 "elapsed clock").
func (v *VM) Elapsed() float64 { return time.Since(v.startedAt).Seconds() }

func (v *VM) WriteOut(text string, eol bool) {
	if v.stdout != nil {
		v.stdout(text, eol)
	}
}
func (v *VM) WriteImplicit(text string, eol bool) {
	if v.implicitOut != nil {
		v.implicitOut(text, eol)
	}
}
func (v *VM) WriteError(text string, eol bool) {
	if v.errOut != nil {
		v.errOut(text, eol)
	}
}

func (v *VM) NumberProto() *value.Map {
	if v.numberProto == nil {
		v.numberProto = value.NewMap()
	}
	return v.numberProto
}
func (v *VM) StringProto() *value.Map {
	if v.stringProto == nil {
		v.stringProto = value.NewMap()
	}
	return v.stringProto
}
func (v *VM) ListProto() *value.Map {
	if v.listProto == nil {
		v.listProto = value.NewMap()
	}
	return v.listProto
}
func (v *VM) MapProto() *value.Map {
	if v.mapProto == nil {
		v.mapProto = value.NewMap()
	}
	return v.mapProto
}
func (v *VM) FunctionProto() *value.Map {
	if v.functionProto == nil {
		v.functionProto = value.NewMap()
	}
	return v.functionProto
}

// IntrinsicsMap lazily builds the read-only `intrinsics` reflection map
// (spec §6): every built-in name mapped to its Intrinsic value, writes
// suppressed via AssignOverride.
func (v *VM) IntrinsicsMap() *value.Map {
	if v.intrinsicsMap != nil {
		return v.intrinsicsMap
	}
	m := value.NewMap()
	for _, name := range v.registry.Names() {
		b, _ := v.registry.Lookup(name)
		m.Set(value.String(name), value.Intrinsic{ID: b.ID, Name: b.Name})
	}
	m.AssignOverride = func(key, val value.Value) bool { return true }
	v.intrinsicsMap = m
	return m
}

func (v *VM) Rand() *rand.Rand      { return v.rnd }
func (v *VM) SetYielding()          { v.Yielding = true }
func (v *VM) Limits() value.Limits  { return v.limits }
func (v *VM) HostData() interface{} { return v.hostData }

// SetHostData stores the opaque host pointer of spec §6 `host_data`.
func (v *VM) SetHostData(d interface{}) { v.hostData = d }

// StackTrace returns one line per active context, most-recent-call first
// (spec §9 supplemented `stackTrace()`).
func (v *VM) StackTrace() []string {
	out := make([]string, 0, len(v.stack))
	for i := len(v.stack) - 1; i >= 0; i-- {
		ctx := v.stack[i]
		out = append(out, ctx.FuncName+" line "+itoa(ctx.currentLine()))
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// CallScript synchronously drives a user function to completion against
// args, for built-ins that accept a script callback; no current built-in
// calls it. It runs a private sub-stack on top of the current one so the
// caller's own frames are undisturbed, and it does not honor yield/wait
// suspension -- see DESIGN.md.
func (v *VM) CallScript(fn *value.Function, args []value.Value) (value.Value, *mserr.MSError) {
	locals, self, err := bindParams(fn.Proto, args, value.Nil, false)
	if err != nil {
		return nil, err
	}
	ctx := newContext(fn.Proto, locals, fn.Outer, self, v.Current(), tac.Void)
	result := value.Nil
	ctx.CaptureReturn = &result
	v.stack = append(v.stack, ctx)

	base := len(v.stack) - 1
	for len(v.stack) > base {
		if v.Current().Done() {
			v.popContext(value.Nil)
			continue
		}
		if err := v.step(); err != nil {
			v.stack = v.stack[:base]
			return nil, err
		}
	}
	return result, nil
}
