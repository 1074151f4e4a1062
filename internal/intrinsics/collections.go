package intrinsics

import (
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/msscript/ms/internal/diag"
	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/value"
)

// clampIndex resolves a possibly-negative index against length n the way
// every list/string built-in does (spec §4.1 "negative indices from the
// end").
func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return i
}

func registerCollections(r *Registry) {
	r.define("len", []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.Number(float64(seqLen(c.Arg("self")))), true, nil
	})

	r.define("slice", []Param{{Name: "seq"}, {Name: "from", Default: value.Number(0)}, {Name: "to", Default: value.Nil}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return doSlice(c.Arg("seq"), c.Arg("from"), c.Arg("to"))
	})

	r.define("range", []Param{{Name: "from", Default: value.Number(0)}, {Name: "to", Default: value.Number(0)}, {Name: "step", Default: value.Nil}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		from := num(c.Arg("from"))
		to := num(c.Arg("to"))
		stepArg := c.Arg("step")
		var step float64
		if stepArg == value.Nil {
			if to >= from {
				step = 1
			} else {
				step = -1
			}
		} else {
			step = num(stepArg)
		}
		if step == 0 {
			return nil, false, mserr.New(mserr.RuntimeError, "range step cannot be 0")
		}
		var elems []value.Value
		limit := c.RT.Limits().MaxListElems
		if step > 0 {
			for x := from; x <= to; x += step {
				if len(elems) >= limit {
					return nil, false, mserr.New(mserr.LimitExceeded, diag.LimitExceeded("range result exceeds maximum length", len(elems)+1, limit))
				}
				elems = append(elems, value.Number(x))
			}
		} else {
			for x := from; x >= to; x += step {
				if len(elems) >= limit {
					return nil, false, mserr.New(mserr.LimitExceeded, diag.LimitExceeded("range result exceeds maximum length", len(elems)+1, limit))
				}
				elems = append(elems, value.Number(x))
			}
		}
		return value.NewList(elems), true, nil
	})

	r.define("hasIndex", []Param{{Name: "self"}, {Name: "index"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return hasIndex(c.Arg("self"), c.Arg("index")), true, nil
	})

	r.define("indexes", []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		switch t := c.Arg("self").(type) {
		case *value.List:
			out := make([]value.Value, len(t.Elems))
			for i := range t.Elems {
				out[i] = value.Number(float64(i))
			}
			return value.NewList(out), true, nil
		case value.String:
			out := make([]value.Value, len(t))
			for i := range t {
				out[i] = value.Number(float64(i))
			}
			return value.NewList(out), true, nil
		case *value.Map:
			out := make([]value.Value, len(t.Keys()))
			copy(out, t.Keys())
			return value.NewList(out), true, nil
		default:
			return nil, false, mserr.New(mserr.TypeError, "indexes() requires a list, string or map")
		}
	})

	r.define("indexOf", []Param{{Name: "self"}, {Name: "value"}, {Name: "after", Default: value.Nil}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return indexOf(c.Arg("self"), c.Arg("value"), c.Arg("after"))
	})

	r.define("insert", []Param{{Name: "self"}, {Name: "index"}, {Name: "value"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return doInsert(c.Arg("self"), c.Arg("index"), c.Arg("value"))
	})

	r.define("remove", []Param{{Name: "self"}, {Name: "k"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return doRemove(c.Arg("self"), c.Arg("k"))
	})

	r.define("replace", []Param{{Name: "self"}, {Name: "old"}, {Name: "new"}, {Name: "maxCount", Default: value.Nil}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return doReplace(c.Arg("self"), c.Arg("old"), c.Arg("new"), c.Arg("maxCount"))
	})

	r.define("join", []Param{{Name: "self"}, {Name: "delimiter", Default: value.String(" ")}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		lst, ok := c.Arg("self").(*value.List)
		if !ok {
			return nil, false, mserr.New(mserr.TypeError, "join() requires a list")
		}
		delim := value.ToString(c.Arg("delimiter"))
		parts := make([]string, len(lst.Elems))
		for i, e := range lst.Elems {
			parts[i] = value.ToString(e)
		}
		return value.String(strings.Join(parts, delim)), true, nil
	})

	r.define("split", []Param{{Name: "self"}, {Name: "delimiter", Default: value.String(" ")}, {Name: "maxCount", Default: value.Number(-1)}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		s := string(toStr(c.Arg("self")))
		delim := string(toStr(c.Arg("delimiter")))
		max := int(value.IntValue(c.Arg("maxCount")))
		var parts []string
		if max < 0 {
			if delim == "" {
				parts = strings.Split(s, "")
			} else {
				parts = strings.Split(s, delim)
			}
		} else {
			parts = strings.SplitN(s, delim, max)
		}
		elems := make([]value.Value, len(parts))
		for i, p := range parts {
			elems[i] = value.String(p)
		}
		return value.NewList(elems), true, nil
	})

	r.define("sort", []Param{{Name: "self"}, {Name: "byKey", Default: value.Nil}, {Name: "ascending", Default: value.Number(1)}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return doSort(c)
	})

	r.define("shuffle", []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		switch t := c.Arg("self").(type) {
		case *value.List:
			rnd := c.RT.Rand()
			for i := len(t.Elems) - 1; i > 0; i-- {
				j := rnd.Intn(i + 1)
				t.Elems[i], t.Elems[j] = t.Elems[j], t.Elems[i]
			}
			return t, true, nil
		case *value.Map:
			// Shuffle a map's values across its existing keys in place,
			// matching the original's "shuffle the values" map semantics.
			keys := t.Keys()
			vals := make([]value.Value, len(keys))
			copy(vals, t.Vals())
			rnd := c.RT.Rand()
			for i := len(vals) - 1; i > 0; i-- {
				j := rnd.Intn(i + 1)
				vals[i], vals[j] = vals[j], vals[i]
			}
			for i, k := range keys {
				t.Set(k, vals[i])
			}
			return t, true, nil
		default:
			return nil, false, mserr.New(mserr.TypeError, "shuffle() requires a list or map")
		}
	})

	r.define("sum", []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		total := 0.0
		switch t := c.Arg("self").(type) {
		case *value.List:
			for _, e := range t.Elems {
				total += num(e)
			}
		case *value.Map:
			for _, v := range t.Vals() {
				total += num(v)
			}
		default:
			return nil, false, mserr.New(mserr.TypeError, "sum() requires a list or map")
		}
		return value.Number(total), true, nil
	})

	r.define("lower", []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.String(strings.ToLower(string(toStr(c.Arg("self"))))), true, nil
	})
	r.define("upper", []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.String(strings.ToUpper(string(toStr(c.Arg("self"))))), true, nil
	})
	r.define("str", []Param{{Name: "x", Default: value.String("")}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.String(value.ToString(c.Arg("x"))), true, nil
	})
	r.define("val", []Param{{Name: "self", Default: value.Number(0)}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		switch t := c.Arg("self").(type) {
		case value.Number:
			return t, true, nil
		case value.String:
			f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
			if err != nil {
				return value.Number(0), true, nil
			}
			return value.Number(f), true, nil
		default:
			return value.Number(0), true, nil
		}
	})

	r.define("push", []Param{{Name: "self"}, {Name: "value"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		switch t := c.Arg("self").(type) {
		case *value.List:
			if len(t.Elems) >= c.RT.Limits().MaxListElems {
				return nil, false, mserr.New(mserr.LimitExceeded, diag.LimitExceeded("list exceeds maximum length", len(t.Elems)+1, c.RT.Limits().MaxListElems))
			}
			t.Elems = append(t.Elems, c.Arg("value"))
			return t, true, nil
		case *value.Map:
			t.Set(c.Arg("value"), value.Number(1))
			return t, true, nil
		default:
			return nil, false, mserr.New(mserr.TypeError, "push() requires a list or map")
		}
	})

	r.define("pop", []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return popOrPull(c.Arg("self"), true)
	})
	r.define("pull", []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return popOrPull(c.Arg("self"), false)
	})
}

func seqLen(v value.Value) int {
	switch t := v.(type) {
	case *value.List:
		return len(t.Elems)
	case value.String:
		return len(t)
	case *value.Map:
		return t.Len()
	default:
		return 0
	}
}

func resolveSliceBound(v value.Value, n int, def int) int {
	if v == value.Nil {
		return def
	}
	i := int(value.IntValue(v))
	i = clampIndex(i, n)
	if i < 0 {
		i = 0
	}
	if i > n {
		i = n
	}
	return i
}

// doSlice implements list/string slicing (spec §4.3 `seq[a:b]` desugaring,
// §6 `slice`), with negative indices counting from the end.
func doSlice(seq, fromV, toV value.Value) (value.Value, bool, *mserr.MSError) {
	switch t := seq.(type) {
	case *value.List:
		n := len(t.Elems)
		from := resolveSliceBound(fromV, n, 0)
		to := resolveSliceBound(toV, n, n)
		if to < from {
			to = from
		}
		out := make([]value.Value, to-from)
		copy(out, t.Elems[from:to])
		return value.NewList(out), true, nil
	case value.String:
		n := len(t)
		from := resolveSliceBound(fromV, n, 0)
		to := resolveSliceBound(toV, n, n)
		if to < from {
			to = from
		}
		return value.String(t[from:to]), true, nil
	default:
		return nil, false, mserr.New(mserr.TypeError, "slice() requires a list or string")
	}
}

func hasIndex(seq, idx value.Value) value.Value {
	switch t := seq.(type) {
	case *value.List:
		i := int(value.IntValue(idx))
		n := len(t.Elems)
		i = clampIndex(i, n)
		return constBool(i >= 0 && i < n)
	case value.String:
		i := int(value.IntValue(idx))
		n := len(t)
		i = clampIndex(i, n)
		return constBool(i >= 0 && i < n)
	case *value.Map:
		_, ok := t.Get(idx)
		return constBool(ok)
	default:
		return constBool(false)
	}
}

func indexOf(seq, needle, after value.Value) (value.Value, bool, *mserr.MSError) {
	switch t := seq.(type) {
	case *value.List:
		start := 0
		if after != value.Nil {
			start = clampIndex(int(value.IntValue(after)), len(t.Elems)) + 1
		}
		for i := start; i < len(t.Elems); i++ {
			if i >= 0 && value.Equal(t.Elems[i], needle) {
				return value.Number(float64(i)), true, nil
			}
		}
		return value.Nil, true, nil
	case value.String:
		sub := string(toStr(needle))
		start := 0
		if after != value.Nil {
			start = clampIndex(int(value.IntValue(after)), len(t)) + 1
		}
		if start < 0 {
			start = 0
		}
		if start > len(t) {
			return value.Nil, true, nil
		}
		idx := strings.Index(string(t[start:]), sub)
		if idx < 0 {
			return value.Nil, true, nil
		}
		return value.Number(float64(start + idx)), true, nil
	case *value.Map:
		for i, k := range t.Keys() {
			if value.Equal(t.Vals()[i], needle) {
				return k, true, nil
			}
		}
		return value.Nil, true, nil
	default:
		return nil, false, mserr.New(mserr.TypeError, "indexOf() requires a list, string or map")
	}
}

func doInsert(seq, idxV, val value.Value) (value.Value, bool, *mserr.MSError) {
	switch t := seq.(type) {
	case *value.List:
		i := clampIndex(int(value.IntValue(idxV)), len(t.Elems))
		if i < 0 || i > len(t.Elems) {
			return nil, false, mserr.New(mserr.IndexError, "insert index out of range")
		}
		t.Elems = append(t.Elems, value.Nil)
		copy(t.Elems[i+1:], t.Elems[i:])
		t.Elems[i] = val
		return t, true, nil
	case value.String:
		i := clampIndex(int(value.IntValue(idxV)), len(t))
		if i < 0 || i > len(t) {
			return nil, false, mserr.New(mserr.IndexError, "insert index out of range")
		}
		return value.String(string(t[:i]) + value.ToString(val) + string(t[i:])), true, nil
	case *value.Map:
		t.Set(idxV, val)
		return t, true, nil
	default:
		return nil, false, mserr.New(mserr.TypeError, "insert() requires a list, string or map")
	}
}

func doRemove(seq, key value.Value) (value.Value, bool, *mserr.MSError) {
	switch t := seq.(type) {
	case *value.List:
		i := clampIndex(int(value.IntValue(key)), len(t.Elems))
		if i < 0 || i >= len(t.Elems) {
			return nil, false, mserr.New(mserr.IndexError, "remove index out of range")
		}
		removed := t.Elems[i]
		t.Elems = append(t.Elems[:i], t.Elems[i+1:]...)
		return removed, true, nil
	case *value.Map:
		v, ok := t.Delete(key)
		if !ok {
			return nil, false, mserr.New(mserr.KeyNotFound, "key %s not found", value.ToString(key))
		}
		return v, true, nil
	case value.String:
		s := string(t)
		needle := string(toStr(key))
		idx := strings.Index(s, needle)
		if idx < 0 {
			return t, true, nil
		}
		return value.String(s[:idx] + s[idx+len(needle):]), true, nil
	default:
		return nil, false, mserr.New(mserr.TypeError, "remove() requires a list, string or map")
	}
}

func doReplace(seq, oldV, newV, maxV value.Value) (value.Value, bool, *mserr.MSError) {
	max := -1
	if maxV != value.Nil {
		max = int(value.IntValue(maxV))
	}
	switch t := seq.(type) {
	case value.String:
		old := string(toStr(oldV))
		neu := value.ToString(newV)
		if max < 0 {
			return value.String(strings.ReplaceAll(string(t), old, neu)), true, nil
		}
		return value.String(strings.Replace(string(t), old, neu, max)), true, nil
	case *value.List:
		count := 0
		for i, e := range t.Elems {
			if max >= 0 && count >= max {
				break
			}
			if value.Equal(e, oldV) {
				t.Elems[i] = newV
				count++
			}
		}
		return t, true, nil
	case *value.Map:
		count := 0
		for i, v := range t.Vals() {
			if max >= 0 && count >= max {
				break
			}
			if value.Equal(v, oldV) {
				t.Set(t.Keys()[i], newV)
				count++
			}
		}
		return t, true, nil
	default:
		return nil, false, mserr.New(mserr.TypeError, "replace() requires a list, string or map")
	}
}

func popOrPull(seq value.Value, front bool) (value.Value, bool, *mserr.MSError) {
	switch t := seq.(type) {
	case *value.List:
		if len(t.Elems) == 0 {
			return value.Nil, true, nil
		}
		if front {
			v := t.Elems[0]
			t.Elems = t.Elems[1:]
			return v, true, nil
		}
		v := t.Elems[len(t.Elems)-1]
		t.Elems = t.Elems[:len(t.Elems)-1]
		return v, true, nil
	case *value.Map:
		// "remove an arbitrary key (implementation-defined as the
		// iteration-order first)" (spec §9); both pop and pull take the
		// first key, since the original leaves the choice unspecified.
		keys := t.Keys()
		if len(keys) == 0 {
			return value.Nil, true, nil
		}
		v, _ := t.Delete(keys[0])
		return v, true, nil
	default:
		return nil, false, mserr.New(mserr.TypeError, "pop()/pull() requires a list or map")
	}
}

// doSort sorts a list in place, stably (spec §9 Open Question resolved:
// stable), optionally keyed and optionally descending. A non-null byKey is
// a single map key: each map element is compared by its byKey entry (null
// if absent); elements that are not maps are compared by themselves.
func doSort(c *Call) (value.Value, bool, *mserr.MSError) {
	lst, ok := c.Arg("self").(*value.List)
	if !ok {
		return nil, false, mserr.New(mserr.TypeError, "sort() requires a list")
	}
	ascending := num(c.Arg("ascending")) != 0
	byKey := c.Arg("byKey")

	keyOf := func(e value.Value) value.Value {
		if byKey == value.Nil {
			return e
		}
		m, ok := e.(*value.Map)
		if !ok {
			return e
		}
		if v, found := m.Get(byKey); found {
			return v
		}
		return value.Nil
	}

	idx := make([]int, len(lst.Elems))
	for i := range idx {
		idx[i] = i
	}
	less := func(a, b value.Value) bool {
		as, aIsStr := a.(value.String)
		bs, bIsStr := b.(value.String)
		if aIsStr && bIsStr {
			return as < bs
		}
		return num(a) < num(b)
	}
	slices.SortStableFunc(idx, func(i, j int) int {
		ka, kb := keyOf(lst.Elems[i]), keyOf(lst.Elems[j])
		if !ascending {
			ka, kb = kb, ka
		}
		if less(ka, kb) {
			return -1
		}
		if less(kb, ka) {
			return 1
		}
		return 0
	})
	out := make([]value.Value, len(lst.Elems))
	for i, oi := range idx {
		out[i] = lst.Elems[oi]
	}
	copy(lst.Elems, out)
	return lst, true, nil
}
