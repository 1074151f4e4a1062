package intrinsics

import (
	"math"

	"github.com/msscript/ms/internal/mserr"
	"github.com/msscript/ms/internal/value"
)

func num(v value.Value) float64 { return value.DoubleValue(v) }

func registerMath(r *Registry) {
	one := func(name string, fn func(float64) float64) {
		r.define(name, []Param{{Name: "self"}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
			return value.Number(fn(num(c.Arg("self")))), true, nil
		})
	}
	one("abs", math.Abs)
	one("acos", math.Acos)
	one("asin", math.Asin)
	one("ceil", math.Ceil)
	one("cos", math.Cos)
	one("floor", math.Floor)
	one("sign", func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		default:
			return 0
		}
	})
	one("sin", math.Sin)
	one("sqrt", math.Sqrt)
	one("tan", math.Tan)

	r.define("atan", []Param{{Name: "y"}, {Name: "x", Default: value.Number(1)}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.Number(math.Atan2(num(c.Arg("y")), num(c.Arg("x")))), true, nil
	})
	r.define("log", []Param{{Name: "x"}, {Name: "base", Default: value.Number(10)}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		base := num(c.Arg("base"))
		x := num(c.Arg("x"))
		if base == math.E {
			return value.Number(math.Log(x)), true, nil
		}
		return value.Number(math.Log(x) / math.Log(base)), true, nil
	})
	r.define("pi", nil, func(c *Call) (value.Value, bool, *mserr.MSError) {
		return value.Number(math.Pi), true, nil
	})
	r.define("rnd", []Param{{Name: "seed", Default: value.Nil}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
		seed := c.Arg("seed")
		if seed != value.Nil {
			c.RT.Rand().Seed(int64(value.IntValue(seed)))
			return value.Nil, true, nil
		}
		return value.Number(c.RT.Rand().Float64()), true, nil
	})

	bitwise := func(name string, op func(a, b int64) int64) {
		r.define(name, []Param{{Name: "i", Default: value.Number(0)}, {Name: "j", Default: value.Number(0)}}, func(c *Call) (value.Value, bool, *mserr.MSError) {
			ai, aj := value.IntValue(c.Arg("i")), value.IntValue(c.Arg("j"))
			// bits of absolute value; sign combined with the same logical
			// op (spec §6: bitAnd/bitOr/bitXor).
			mag := op(abs64(ai), abs64(aj))
			sign := op(signBit(ai), signBit(aj))
			if sign != 0 {
				mag = -mag
			}
			return value.Number(float64(mag)), true, nil
		})
	}
	bitwise("bitAnd", func(a, b int64) int64 { return a & b })
	bitwise("bitOr", func(a, b int64) int64 { return a | b })
	bitwise("bitXor", func(a, b int64) int64 { return a ^ b })
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func signBit(x int64) int64 {
	if x < 0 {
		return 1
	}
	return 0
}
