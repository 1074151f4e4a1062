// Package intrinsics is the standard built-in library of spec §6: math,
// string/list/map methods, range/slice, print/time/wait/yield, and the
// type-reflection prototype maps. Each built-in is a Builtin registered by
// name and by a stable numeric ID, mirroring the teacher's
// internal/stdlib registration-table pattern but scaled down to MS's
// single intrinsics.Registry rather than a per-module namespace tree.
package intrinsics

import (
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/value"
)

// Param is one declared parameter of a built-in, with an optional default
// value substituted when the call omits it (spec §6 signatures, e.g.
// `wait(seconds=1)`).
type Param struct {
	Name    string
	Default value.Value
}

// Call bundles everything a Builtin's Fn needs for one invocation: its
// bound arguments (already defaulted and named per Params), the receiver
// for a dot-call (nil if called bare), and any partial result left by a
// prior resumption of this same call site (spec §4.4 CallIntrinsicA).
type Call struct {
	RT      Runtime
	Self    value.Value
	Args    map[string]value.Value
	Partial value.Value
}

// Arg fetches a bound argument by declared parameter name.
func (c *Call) Arg(name string) value.Value {
	if v, ok := c.Args[name]; ok {
		return v
	}
	return value.Nil
}

// Fn is the Go implementation of one built-in. Returning done=false stores
// result as the call site's new partial result and asks the VM to
// re-invoke the same call instruction on the next step, passing result
// back as Call.Partial (the "coroutine primitive" of spec §4.4/§9). The
// pushed arguments are consumed by the first invocation, so a
// re-invocation's Args hold only declared defaults; state a resumed call
// needs travels in the partial result. done=true stores result as the
// call's final value.
type Fn func(c *Call) (result value.Value, done bool, err *mserr.MSError)

// Builtin is one registered intrinsic: its numeric ID (stable for the
// lifetime of a Registry, used by CallIntrinsicA's direct dispatch),
// name, declared parameters, and implementation.
type Builtin struct {
	ID     int
	Name   string
	Params []Param
	Fn     Fn
}

// Registry is the full built-in table, looked up by name (variable
// resolution's intrinsic-chain fallback, spec §4.5) or by ID (direct
// dispatch, spec §4.4).
type Registry struct {
	byName map[string]*Builtin
	byID   []*Builtin
}

// NewRegistry builds the standard library registry (spec §6 "minimum
// set"). vm.New builds one Registry per VM; built-ins are stateless, and
// per-VM state (prototypes, RNG, elapsed clock) lives on the Runtime
// passed to Fn at call time.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Builtin)}
	r.registerAll()
	return r
}

// registerAll wires every built-in group into the registry, in the order
// spec §6 lists them: core (print/time/wait/yield/reflection), math, then
// collection/string/sequence operations.
func (r *Registry) registerAll() {
	registerCore(r)
	registerMath(r)
	registerCollections(r)
}

func (r *Registry) define(name string, params []Param, fn Fn) {
	b := &Builtin{ID: len(r.byID), Name: name, Params: params, Fn: fn}
	r.byID = append(r.byID, b)
	r.byName[name] = b
}

// Lookup finds a built-in by name, for the variable-resolution intrinsic
// fallback and for OIntrinsicRef's lookup-bypassing reference.
func (r *Registry) Lookup(name string) (*Builtin, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// ByID finds a built-in by its stable numeric ID (CallIntrinsicA direct
// dispatch, and Intrinsic-value resolution during CallFunctionA).
func (r *Registry) ByID(id int) (*Builtin, bool) {
	if id < 0 || id >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// Names returns every registered built-in name, in registration order --
// used to build the `intrinsics` read-only reflection map (spec §6).
func (r *Registry) Names() []string {
	out := make([]string, len(r.byID))
	for i, b := range r.byID {
		out[i] = b.Name
	}
	return out
}

// BindArgs binds positional args to b's declared parameters the same way
// CallFunctionA binds a user function's parameters (spec §4.5): missing
// trailing arguments fall back to their declared default, or Null if none
// was declared. Excess arguments beyond len(Params) are a TooManyArguments
// error, matching user-function call semantics.
func (b *Builtin) BindArgs(args []value.Value) (map[string]value.Value, *mserr.MSError) {
	if len(args) > len(b.Params) {
		return nil, mserr.New(mserr.TooManyArguments, "too many arguments to %s (want at most %d, got %d)", b.Name, len(b.Params), len(args))
	}
	bound := make(map[string]value.Value, len(b.Params))
	for i, p := range b.Params {
		if i < len(args) {
			bound[p.Name] = args[i]
			continue
		}
		if p.Default != nil {
			bound[p.Name] = p.Default
		} else {
			bound[p.Name] = value.Nil
		}
	}
	return bound, nil
}
