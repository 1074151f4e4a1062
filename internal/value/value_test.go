package value

import (
	"testing"

	"github.com/kr/pretty"
)

func TestEqualCrossType(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"number==number", Number(1), Number(1), true},
		{"number!=string", Number(1), String("1"), false},
		{"string==string", String("hi"), String("hi"), true},
		{"null==null", Nil, Nil, true},
		{"null!=number", Nil, Number(0), false},
		{"list==list same elems", NewList([]Value{Number(1), Number(2)}), NewList([]Value{Number(1), Number(2)}), true},
		{"list!=list different len", NewList([]Value{Number(1)}), NewList([]Value{Number(1), Number(2)}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%# v, %# v) = %v, want %v", pretty.Formatter(tt.a), pretty.Formatter(tt.b), got, tt.want)
			}
		})
	}
}

func TestMapEqualityOrderIndependent(t *testing.T) {
	a := NewMap()
	a.Set(String("x"), Number(1))
	a.Set(String("y"), Number(2))

	b := NewMap()
	b.Set(String("y"), Number(2))
	b.Set(String("x"), Number(1))

	if !Equal(a, b) {
		t.Fatalf("maps with same entries in different insertion order should be equal")
	}
	if Hash(a) != Hash(b) {
		t.Fatalf("Hash should agree with Equal for maps regardless of insertion order")
	}
}

func TestEqualCyclicList(t *testing.T) {
	l := NewList(nil)
	l.Elems = []Value{Number(1), l}

	other := NewList(nil)
	other.Elems = []Value{Number(1), other}

	if !Equal(l, other) {
		t.Fatalf("two self-referential lists with matching shape should compare equal without looping forever")
	}
}

func TestToStringRendersCyclesAndLists(t *testing.T) {
	m := NewMap()
	m.Set(String("self"), m)
	if got := ToString(m); got != `{"self": {...}}` {
		t.Fatalf("ToString(cyclic map) = %q", got)
	}

	l := NewList([]Value{String("a"), Number(2)})
	if got := ToString(l); got != `["a", 2]` {
		t.Fatalf("ToString(list) = %q", got)
	}
}

func TestIsaChainDepthLimit(t *testing.T) {
	root := NewMap()
	current := root
	for i := 0; i < MaxIsaDepth+5; i++ {
		next := NewMap()
		next.Set(String(IsaKey), current)
		current = next
	}
	_, _, _, depthErr := Lookup(current, String("missing"))
	if !depthErr {
		t.Fatalf("Lookup should report depthErr once the __isa chain exceeds MaxIsaDepth")
	}
}
