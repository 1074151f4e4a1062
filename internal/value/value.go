// Package value is the runtime value model of spec §3.1/§4.1: a tagged
// union of Null, Number, String, List, Map, and Function, with
// reference-shared containers, recursive cycle-safe equality and hashing,
// and prototype-chain lookup via the magic __isa key.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/msscript/ms/internal/tac"
)

// Value is the sealed runtime value interface. Temp/Var/SeqElem are
// compile-time-only operands (tac.Operand) and never satisfy this
// interface -- a clean separation from the "operand" sum type, per the
// design note of spec §9.
type Value interface {
	isValue()
	TypeName() string
}

// Null is the sole null value. There is exactly one instance, Nil.
type Null struct{}

func (Null) isValue()          {}
func (Null) TypeName() string  { return "null" }

// Nil is the canonical null value, usable as a map key (spec §3.1).
var Nil Value = Null{}

// Number is MS's only scalar numeric type; booleans are 0.0/1.0 of Number.
type Number float64

func (Number) isValue()         {}
func (Number) TypeName() string { return "number" }

// String is an immutable byte-length-capped sequence (spec §3.1).
type String string

func (String) isValue()         {}
func (String) TypeName() string { return "string" }

// List is an ordered, mutable, reference-shared sequence.
type List struct {
	Elems []Value
}

func NewList(elems []Value) *List { return &List{Elems: elems} }

func (*List) isValue()         {}
func (*List) TypeName() string { return "list" }

// IsaKey is the magic map key used for prototype-chain inheritance.
const IsaKey = "__isa"

// Map is an insertion-order-preserving mapping, mutable and reference-
// shared, optionally backed by assign/eval override hooks (spec §4.1).
type Map struct {
	keys  []Value
	vals  []Value
	index map[uint64][]int

	// AssignOverride, if non-nil, is consulted before every Set; a true
	// return suppresses the write (read-only virtual maps, e.g.
	// `intrinsics`).
	AssignOverride func(key, val Value) bool
	// EvalOverride, if non-nil, is consulted before every Get; a (v, true)
	// return is used instead of the direct entry (host-backed virtual
	// maps).
	EvalOverride func(key Value) (Value, bool)
}

func NewMap() *Map {
	return &Map{index: make(map[uint64][]int)}
}

// Len returns the number of entries, ignoring overrides.
func (m *Map) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order. Callers must not mutate the
// returned slice.
func (m *Map) Keys() []Value { return m.keys }

// Vals returns the values in insertion order, parallel to Keys().
func (m *Map) Vals() []Value { return m.vals }

func (m *Map) find(key Value) int {
	h := Hash(key)
	for _, i := range m.index[h] {
		if Equal(m.keys[i], key) {
			return i
		}
	}
	return -1
}

// Get looks up key directly in this map only (no __isa traversal),
// honoring EvalOverride.
func (m *Map) Get(key Value) (Value, bool) {
	if m.EvalOverride != nil {
		if v, ok := m.EvalOverride(key); ok {
			return v, true
		}
	}
	i := m.find(key)
	if i < 0 {
		return nil, false
	}
	return m.vals[i], true
}

// Set stores key/val, honoring AssignOverride. Returns false if the
// assignment was suppressed by an override.
func (m *Map) Set(key, val Value) bool {
	if m.AssignOverride != nil && m.AssignOverride(key, val) {
		return false
	}
	if m.index == nil {
		m.index = make(map[uint64][]int)
	}
	if i := m.find(key); i >= 0 {
		m.vals[i] = val
		return true
	}
	i := len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, val)
	h := Hash(key)
	m.index[h] = append(m.index[h], i)
	return true
}

// Delete removes key if present and returns its value.
func (m *Map) Delete(key Value) (Value, bool) {
	i := m.find(key)
	if i < 0 {
		return nil, false
	}
	v := m.vals[i]
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.vals = append(m.vals[:i], m.vals[i+1:]...)
	m.reindex()
	return v, true
}

func (m *Map) reindex() {
	m.index = make(map[uint64][]int, len(m.keys))
	for i, k := range m.keys {
		h := Hash(k)
		m.index[h] = append(m.index[h], i)
	}
}

// Isa returns the map's __isa parent, if any and if it is itself a map.
func (m *Map) Isa() (*Map, bool) {
	v, ok := m.Get(String(IsaKey))
	if !ok {
		return nil, false
	}
	p, ok := v.(*Map)
	return p, ok
}

func (*Map) isValue()         {}
func (*Map) TypeName() string { return "map" }

// Function pairs a compiled FunctionProto with the locals map captured at
// definition time (for a function defined at top level, that map is the
// globals; nil for a Function value built without BindAssignA, such as a
// parameter default). Functions are always truthy (spec §3.1).
type Function struct {
	Proto *tac.FunctionProto
	Outer *Map
}

func (*Function) isValue()         {}
func (*Function) TypeName() string { return "function" }

// Intrinsic is a reference to a built-in implemented in Go (spec §6). It
// carries no Go function pointer itself -- the VM resolves ID against its
// intrinsics registry at call time -- so that Intrinsic values stay plain
// data, copyable and comparable like any other Value, and the value
// package never needs to import the registry that defines the built-ins.
type Intrinsic struct {
	ID   int
	Name string
}

func (Intrinsic) isValue()         {}
func (Intrinsic) TypeName() string { return "function" }

// Bool implements number-boolean duality (spec §8 property 5).
func Bool(v Value) bool {
	switch t := v.(type) {
	case Null:
		return false
	case Number:
		return float64(t) != 0
	case String:
		return t != ""
	case *List:
		return len(t.Elems) != 0
	case *Map:
		return t.Len() != 0
	case *Function:
		return true
	case Intrinsic:
		return true
	default:
		return true
	}
}

// ToString renders v the way `print`/string-concatenation do. Cyclic
// containers are rendered with a "..." marker on re-entry rather than
// looping forever.
func ToString(v Value) string {
	return toStringVisit(v, map[interface{}]bool{})
}

func toStringVisit(v Value, seen map[interface{}]bool) string {
	switch t := v.(type) {
	case Null:
		return "null"
	case Number:
		return formatNumber(float64(t))
	case String:
		return string(t)
	case *List:
		if seen[t] {
			return "[...]"
		}
		seen[t] = true
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = quoteIfString(e, seen)
		}
		delete(seen, t)
		return "[" + strings.Join(parts, ", ") + "]"
	case *Map:
		if seen[t] {
			return "{...}"
		}
		seen[t] = true
		parts := make([]string, t.Len())
		for i, k := range t.keys {
			parts[i] = quoteIfString(k, seen) + ": " + quoteIfString(t.vals[i], seen)
		}
		delete(seen, t)
		return "{" + strings.Join(parts, ", ") + "}"
	case *Function:
		return "function"
	case Intrinsic:
		return "function: " + t.Name
	default:
		return fmt.Sprintf("%v", v)
	}
}

func quoteIfString(v Value, seen map[interface{}]bool) string {
	if s, ok := v.(String); ok {
		return "\"" + strings.ReplaceAll(string(s), "\"", "\"\"") + "\""
	}
	return toStringVisit(v, seen)
}

// formatNumber renders a float the way a calculator would: integral
// values print without a fractional part, and formatting is
// locale-invariant (spec §9, Open Question resolved: no locale grouping).
func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal implements cycle-safe structural equality (spec §4.1): same
// variant and either the same reference or pairwise-equal contents,
// traversed with a worklist and a visited reference-pair set so cyclic
// containers terminate.
func Equal(a, b Value) bool {
	type pair struct{ a, b interface{} }
	visited := map[pair]bool{}
	work := []struct{ a, b Value }{{a, b}}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		eq, more := equalStep(cur.a, cur.b, visited)
		if !eq {
			return false
		}
		work = append(work, more...)
	}
	return true
}

func equalStep(a, b Value, visited map[struct{ a, b interface{} }]bool) (bool, []struct{ a, b Value }) {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok, nil
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv, nil
	case String:
		bv, ok := b.(String)
		return ok && av == bv, nil
	case *List:
		bv, ok := b.(*List)
		if !ok {
			return false, nil
		}
		if av == bv {
			return true, nil
		}
		if len(av.Elems) != len(bv.Elems) {
			return false, nil
		}
		key := struct{ a, b interface{} }{av, bv}
		if visited[key] {
			return true, nil
		}
		visited[key] = true
		more := make([]struct{ a, b Value }, len(av.Elems))
		for i := range av.Elems {
			more[i] = struct{ a, b Value }{av.Elems[i], bv.Elems[i]}
		}
		return true, more
	case *Map:
		bv, ok := b.(*Map)
		if !ok {
			return false, nil
		}
		if av == bv {
			return true, nil
		}
		if av.Len() != bv.Len() {
			return false, nil
		}
		key := struct{ a, b interface{} }{av, bv}
		if visited[key] {
			return true, nil
		}
		visited[key] = true
		var more []struct{ a, b Value }
		for i, k := range av.keys {
			bi := bv.find(k)
			if bi < 0 {
				return false, nil
			}
			more = append(more, struct{ a, b Value }{av.vals[i], bv.vals[bi]})
		}
		return true, more
	case *Function:
		bv, ok := b.(*Function)
		return ok && av == bv, nil
	case Intrinsic:
		bv, ok := b.(Intrinsic)
		return ok && av.ID == bv.ID, nil
	default:
		return false, nil
	}
}

// Hash implements the cycle-safe mixing hash of spec §4.1: scalars hash by
// content; containers fold element hashes with a bit-rotation mix,
// visiting each object at most once so cycles still terminate with a
// finite hash. Equal values must hash equal (§8 property 4).
func Hash(v Value) uint64 {
	return hashVisit(v, map[interface{}]bool{})
}

func rotl(x uint64, k uint) uint64 { return (x << k) | (x >> (64 - k)) }

func hashVisit(v Value, seen map[interface{}]bool) uint64 {
	const fnvOffset = 14695981039346656037
	const fnvPrime = 1099511628211

	switch t := v.(type) {
	case Null:
		return 0x9e3779b97f4a7c15
	case Number:
		return hashBits(math.Float64bits(float64(t)))
	case String:
		h := uint64(fnvOffset)
		for i := 0; i < len(t); i++ {
			h ^= uint64(t[i])
			h *= fnvPrime
		}
		return h
	case *List:
		if seen[t] {
			return 0x1
		}
		seen[t] = true
		h := uint64(len(t.Elems)) + 0x9e3779b9
		for _, e := range t.Elems {
			h = rotl(h, 5) ^ hashVisit(e, seen)
		}
		delete(seen, t)
		return h
	case *Map:
		if seen[t] {
			return 0x2
		}
		seen[t] = true
		var h uint64 = uint64(t.Len()) + 0x85ebca6b
		for i, k := range t.keys {
			// Order-independent fold (spec §9: map equality ignores
			// insertion order), so sum rather than rotate-accumulate.
			h += rotl(hashVisit(k, seen)^hashVisit(t.vals[i], seen), 7)
		}
		delete(seen, t)
		return h
	case *Function:
		ptr := fmt.Sprintf("%p", t)
		h := uint64(fnvOffset)
		for i := 0; i < len(ptr); i++ {
			h ^= uint64(ptr[i])
			h *= fnvPrime
		}
		return h
	case Intrinsic:
		return hashBits(uint64(t.ID)) ^ 0x696e7472
	default:
		return 0
	}
}

func hashBits(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// DoubleValue coerces v to a float64 the way arithmetic operands do: a
// number passes through, a numeric string parses, everything else (and an
// unparsable string) is 0.
func DoubleValue(v Value) float64 {
	switch t := v.(type) {
	case Number:
		return float64(t)
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// IntValue truncates DoubleValue(v) toward zero.
func IntValue(v Value) int64 { return int64(DoubleValue(v)) }

// EqualityNum renders Equal(a, b) as the {0, 1} fractional-logic value TAC
// comparison opcodes store (spec §3.1: "equality(other) -> {0, 1}").
func EqualityNum(a, b Value) Number {
	if Equal(a, b) {
		return 1
	}
	return 0
}

// MaxIsaDepth bounds prototype-chain traversal (spec §3.1).
const MaxIsaDepth = 256

// Lookup performs direct-then-__isa-chain lookup in m (spec §4.1). It
// returns the value, the map it was actually found in (for `super`
// binding), and whether it was found. ok=false, depthErr=true signals the
// chain exceeded MaxIsaDepth.
func Lookup(m *Map, key Value) (val Value, foundIn *Map, ok bool, depthErr bool) {
	cur := m
	for depth := 0; depth <= MaxIsaDepth; depth++ {
		if cur == nil {
			return nil, nil, false, false
		}
		if v, found := cur.Get(key); found {
			return v, cur, true, false
		}
		parent, isMap := cur.Isa()
		if !isMap {
			return nil, nil, false, false
		}
		if depth == MaxIsaDepth {
			return nil, nil, false, true
		}
		cur = parent
	}
	return nil, nil, false, true
}

// SortStable sorts vals in place by the comparator, stably (spec §9 Open
// Question: sort is recommended stable). Backed by golang.org/x/exp/slices
// rather than hand-rolling a merge sort.
func SortStable(vals []Value, less func(a, b Value) bool) {
	slices.SortStableFunc(vals, func(a, b Value) int {
		if less(a, b) {
			return -1
		}
		if less(b, a) {
			return 1
		}
		return 0
	})
}
