package intrinsics

import (
	"unicode/utf8"

	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/value"
)

func registerCore(r *Registry) {
	r.define("print", []Param{{Name: "s", Default: value.String("")}, {Name: "delimiter", Default: value.Nil}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		text := value.ToString(c.Arg("s"))
		delim := c.Arg("delimiter")
		if delim == value.Nil {
			c.RT.WriteOut(text, true)
		} else {
			c.RT.WriteOut(text+value.ToString(delim), false)
		}
		return value.Nil, true, nil
	})

	r.define("time", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.Number(c.RT.Elapsed()), true, nil
	})

	// wait is the resumable-intrinsic prototype of spec §4.4/§9: the
	// first call records an absolute deadline as its partial result;
	// every subsequent call (driven by CallFunctionA re-entering with PC
	// rewound) compares the current clock to that stashed deadline.
	r.define("wait", []Param{{Name: "seconds", Default: value.Number(1)}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		var deadline float64
		if c.Partial == nil {
			deadline = c.RT.Elapsed() + num(c.Arg("seconds"))
		} else {
			deadline = num(c.Partial)
		}
		if c.RT.Elapsed() >= deadline {
			return value.Nil, true, nil
		}
		return value.Number(deadline), false, nil
	})

	r.define("yield", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		c.RT.SetYielding()
		return value.Nil, true, nil
	})

	r.define("char", []Param{{Name: "cp", Default: value.Number(65)}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.String(string(rune(value.IntValue(c.Arg("cp"))))), true, nil
	})
	r.define("code", []Param{{Name: "self", Default: value.String("")}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		s := string(toStr(c.Arg("self")))
		if s == "" {
			return value.Number(0), true, nil
		}
		rn, _ := utf8.DecodeRuneInString(s)
		return value.Number(float64(rn)), true, nil
	})

	r.define("hash", []Param{{Name: "obj"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.Number(float64(value.Hash(c.Arg("obj")))), true, nil
	})

	r.define("refEquals", []Param{{Name: "a"}, {Name: "b"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		a, b := c.Arg("a"), c.Arg("b")
		switch av := a.(type) {
		case *value.List:
			bv, ok := b.(*value.List)
			return constBool(ok && av == bv), true, nil
		case *value.Map:
			bv, ok := b.(*value.Map)
			return constBool(ok && av == bv), true, nil
		case *value.Function:
			bv, ok := b.(*value.Function)
			return constBool(ok && av == bv), true, nil
		default:
			return constBool(value.Equal(a, b)), true, nil
		}
	})

	r.define("version", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		m := value.NewMap()
		m.Set(value.String("major"), value.Number(1))
		m.Set(value.String("minor"), value.Number(0))
		m.Set(value.String("build"), value.Number(0))
		return m, true, nil
	})

	r.define("stackTrace", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		lines := c.RT.StackTrace()
		elems := make([]value.Value, len(lines))
		for i, l := range lines {
			elems[i] = value.String(l)
		}
		return value.NewList(elems), true, nil
	})

	r.define("intrinsics", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return c.RT.IntrinsicsMap(), true, nil
	})
	r.define("list", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return c.RT.ListProto(), true, nil
	})
	r.define("map", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return c.RT.MapProto(), true, nil
	})
	r.define("number", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return c.RT.NumberProto(), true, nil
	})
	r.define("string", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return c.RT.StringProto(), true, nil
	})
	r.define("funcRef", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return c.RT.FunctionProto(), true, nil
	})
}

func toStr(v value.Value) value.String {
	if s, ok := v.(value.String); ok {
		return s
	}
	return value.String(value.ToString(v))
}

// constBool mirrors tac.ConstBool's encoding (booleans are 0.0/1.0), kept
// here so intrinsics needn't import internal/tac for one helper.
func constBool(b bool) value.Value {
	if b {
		return value.Number(1)
	}
	return value.Number(0)
}
