package intrinsics

import (
	"math/rand"

	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/value"
)

// Runtime is the restricted VM surface a Builtin.Fn is allowed to touch --
// the analog of the teacher's internal/stdlib module context, scaled down
// to MS's single-VM embedding. *vm.VM implements this; intrinsics never
// imports internal/vm, so the dependency only runs one way.
type Runtime interface {
	// Elapsed returns the VM's monotonic elapsed-seconds clock (spec §5,
	// used by `time()` and by `wait`'s deadline bookkeeping).
	Elapsed() float64

	// WriteOut/WriteImplicit/WriteError forward to the façade's three
	// output sinks (spec §6).
	WriteOut(text string, addEOL bool)
	WriteImplicit(text string, addEOL bool)
	WriteError(text string, addEOL bool)

	// NumberProto/StringProto/ListProto/MapProto/FunctionProto return the
	// per-VM, lazily-initialized prototype maps (spec §3.4), exposed to
	// scripts via the `number`/`string`/`list`/`map`/`funcRef` built-ins
	// and consulted by `resolve` for dotted method lookup.
	NumberProto() *value.Map
	StringProto() *value.Map
	ListProto() *value.Map
	MapProto() *value.Map
	FunctionProto() *value.Map

	// IntrinsicsMap returns the read-only reflection map backing the
	// `intrinsics` built-in (spec §6).
	IntrinsicsMap() *value.Map

	// Rand returns the VM's private PRNG (spec §5 Open Question: rnd/
	// shuffle state is per-VM, not process-wide).
	Rand() *rand.Rand

	// SetYielding sets the VM's cooperative-yield flag (spec §5).
	SetYielding()

	// Limits returns the active resource caps (spec §3.1, §5).
	Limits() value.Limits

	// HostData returns the host-supplied opaque pointer threaded through
	// the façade (spec §6 `host_data`).
	HostData() interface{}

	// StackTrace returns one line per active context, most-recent-call
	// first (spec §9 supplemented `stackTrace()` intrinsic).
	StackTrace() []string

	// CallScript synchronously drives fn to completion against args and
	// returns its result, for built-ins that accept a script callback; no
	// current built-in calls it. Running the callback to completion rather
	// than cooperatively stepping it is a documented simplification (see
	// DESIGN.md): a callback that calls `wait` keeps stepping until the
	// wait's deadline passes, and one that calls `yield` sets the yield
	// flag but keeps running; neither suspends the outer script.
	CallScript(fn *value.Function, args []value.Value) (value.Value, *mserr.MSError)
}
