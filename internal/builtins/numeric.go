package builtins

import (
	"math"

	"github.com/funvibe/consteval/internal/state"
)

type numKind int

const (
	kByte numKind = iota + 1
	kShort
	kInt
	kLong
	kFloat
	kDouble
)

var numKinds = []numKind{kByte, kShort, kInt, kLong, kFloat, kDouble}

func (k numKind) String() string {
	return [...]string{"", "Byte", "Short", "Int", "Long", "Float", "Double"}[k]
}

func (k numKind) isFloat() bool { return k >= kFloat }

func kindOf(v any) numKind {
	switch v.(type) {
	case int8:
		return kByte
	case int16:
		return kShort
	case int32:
		return kInt
	case int64:
		return kLong
	case float32:
		return kFloat
	case float64:
		return kDouble
	}
	return 0
}

func value(s state.State) any { return s.(*state.Primitive).Value }

func toI64(v any) int64 {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float32:
		return saturate64(float64(x))
	case float64:
		return saturate64(x)
	case state.Char:
		return int64(x)
	}
	panic(newHostError(ClassCastException, "%T is not a number", v))
}

func toF64(v any) float64 {
	switch x := v.(type) {
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	}
	panic(newHostError(ClassCastException, "%T is not a number", v))
}

func toF32(v any) float32 {
	switch x := v.(type) {
	case int64:
		return float32(x)
	case float64:
		return float32(x)
	case float32:
		return x
	}
	return float32(toF64(v))
}

// saturate64 converts like Double.toLong: NaN is 0, out of range clamps.
func saturate64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// saturate32 converts like Double.toInt.
func saturate32(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

// toI32 converts like toInt: floats saturate, wider integers wrap.
func toI32(v any) int32 {
	switch x := v.(type) {
	case float32:
		return saturate32(float64(x))
	case float64:
		return saturate32(x)
	}
	return int32(toI64(v))
}

func (d *Dispatcher) intOf(k numKind, v int64) state.State {
	switch k {
	case kByte:
		return d.vals.Byte(int8(v))
	case kShort:
		return d.vals.Short(int16(v))
	case kLong:
		return d.vals.Long(v)
	}
	return d.vals.Int(int32(v))
}

func (d *Dispatcher) floatOf(k numKind, v float64) state.State {
	if k == kFloat {
		return d.vals.Float(float32(v))
	}
	return d.vals.Double(v)
}

// convert performs a toX conversion from any numeric or Char payload.
func (d *Dispatcher) convert(v any, to numKind) state.State {
	switch to {
	case kFloat:
		if c, ok := v.(state.Char); ok {
			return d.vals.Float(float32(c))
		}
		return d.vals.Float(toF32(v))
	case kDouble:
		if c, ok := v.(state.Char); ok {
			return d.vals.Double(float64(c))
		}
		return d.vals.Double(toF64(v))
	case kLong:
		return d.vals.Long(toI64(v))
	}
	// narrowing from floats goes through Int first
	return d.intOf(to, int64(toI32(v)))
}

func resultKind(op string, a, b numKind) numKind {
	if op == "mod" && b < kInt {
		return b
	}
	rk := max(a, b)
	if rk < kInt {
		rk = kInt
	}
	return rk
}

var errDivByZero = &HostError{Class: ArithmeticException, Message: "/ by zero", HasMessage: true}

func (d *Dispatcher) arith(op string, x, y any) (state.State, error) {
	rk := resultKind(op, kindOf(x), kindOf(y))
	switch rk {
	case kFloat:
		return d.vals.Float(floatArith32(op, toF32(x), toF32(y))), nil
	case kDouble:
		return d.vals.Double(floatArith64(op, toF64(x), toF64(y))), nil
	}
	a, b := toI64(x), toI64(y)
	if rk < kLong {
		// 32-bit arithmetic wraps before any narrowing
		a, b = int64(int32(a)), int64(int32(b))
	}
	var r int64
	switch op {
	case "plus":
		r = a + b
	case "minus":
		r = a - b
	case "times":
		r = a * b
	case "div", "rem", "mod":
		if b == 0 {
			return nil, errDivByZero
		}
		if rk < kLong {
			r = int64(intDivMod32(op, int32(a), int32(b)))
		} else {
			r = intDivMod64(op, a, b)
		}
	}
	return d.intOf(rk, r), nil
}

func intDivMod32(op string, a, b int32) int32 {
	switch op {
	case "div":
		return a / b
	case "rem":
		return a % b
	}
	r := a % b
	if r != 0 && (r^b) < 0 {
		r += b
	}
	return r
}

func intDivMod64(op string, a, b int64) int64 {
	switch op {
	case "div":
		return a / b
	case "rem":
		return a % b
	}
	r := a % b
	if r != 0 && (r^b) < 0 {
		r += b
	}
	return r
}

func floatArith32(op string, a, b float32) float32 {
	switch op {
	case "plus":
		return a + b
	case "minus":
		return a - b
	case "times":
		return a * b
	case "div":
		return a / b
	}
	return float32(floatMod(op, float64(a), float64(b)))
}

func floatArith64(op string, a, b float64) float64 {
	switch op {
	case "plus":
		return a + b
	case "minus":
		return a - b
	case "times":
		return a * b
	case "div":
		return a / b
	}
	return floatMod(op, a, b)
}

func floatMod(op string, a, b float64) float64 {
	r := math.Mod(a, b)
	if op == "mod" && r != 0 && math.Signbit(r) != math.Signbit(b) {
		r += b
	}
	return r
}

// compareNum implements compareTo. Floats use the total order: -0.0 is
// less than 0.0 and NaN is greater than everything, itself included equal.
func compareNum(x, y any) int32 {
	if kindOf(x).isFloat() || kindOf(y).isFloat() {
		return compareTotal(toF64(x), toF64(y))
	}
	a, b := toI64(x), toI64(y)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTotal(a, b float64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	ab, bb := int64(math.Float64bits(a)), int64(math.Float64bits(b))
	if math.IsNaN(a) {
		ab = 0x7ff8000000000000
	}
	if math.IsNaN(b) {
		bb = 0x7ff8000000000000
	}
	switch {
	case ab < bb:
		return -1
	case ab > bb:
		return 1
	}
	return 0
}

// compareIEEE implements the less/greater operators, where any NaN
// comparison is false.
func compareIEEE(op string, x, y any) bool {
	if kindOf(x).isFloat() || kindOf(y).isFloat() {
		a, b := toF64(x), toF64(y)
		switch op {
		case "less":
			return a < b
		case "lessOrEqual":
			return a <= b
		case "greater":
			return a > b
		}
		return a >= b
	}
	c := compareNum(x, y)
	switch op {
	case "less":
		return c < 0
	case "lessOrEqual":
		return c <= 0
	case "greater":
		return c > 0
	}
	return c >= 0
}

func math32bits(f float32) uint32 {
	if f != f {
		return 0x7fc00000
	}
	return math.Float32bits(f)
}

func math64bits(f float64) uint64 {
	if f != f {
		return 0x7ff8000000000000
	}
	return math.Float64bits(f)
}

// primitiveHash follows the JVM hashCode of the boxed value.
func primitiveHash(v any) int32 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1231
		}
		return 1237
	case state.Char:
		return int32(x)
	case int8:
		return int32(x)
	case int16:
		return int32(x)
	case int32:
		return x
	case int64:
		return int32(x ^ int64(uint64(x)>>32))
	case float32:
		return int32(math32bits(x))
	case float64:
		b := math64bits(x)
		return int32(b ^ b>>32)
	case string:
		return stringHash(x)
	}
	return 0
}

func stringHash(s string) int32 {
	var h int32
	for _, u := range utf16Units(s) {
		h = 31*h + int32(u)
	}
	return h
}

func (d *Dispatcher) registerNumeric() {
	for _, a := range numKinds {
		for _, b := range numKinds {
			sig := "(" + a.String() + "," + b.String() + ")"
			for _, op := range []string{"plus", "minus", "times", "div", "rem", "mod"} {
				d.ops[op+sig] = func(d *Dispatcher, args []state.State) (state.State, error) {
					return d.arith(op, value(args[0]), value(args[1]))
				}
			}
			d.ops["compareTo"+sig] = func(d *Dispatcher, args []state.State) (state.State, error) {
				return d.vals.Int(compareNum(value(args[0]), value(args[1]))), nil
			}
			for _, op := range []string{"less", "lessOrEqual", "greater", "greaterOrEqual"} {
				d.ops[op+sig] = func(d *Dispatcher, args []state.State) (state.State, error) {
					return d.vals.Bool(compareIEEE(op, value(args[0]), value(args[1]))), nil
				}
			}
		}
		d.registerNumericUnary(a)
	}
	for _, k := range []numKind{kInt, kLong} {
		d.registerBitwise(k)
	}
}

func (d *Dispatcher) registerNumericUnary(k numKind) {
	self := "(" + k.String() + ")"
	d.ops["equals("+k.String()+",Any?)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		eq, err := d.Equals(args[0], args[1])
		return d.vals.Bool(eq), err
	}
	d.ops["hashCode"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(primitiveHash(value(args[0]))), nil
	}
	d.ops["toString"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(args[0].Inspect()), nil
	}
	d.ops["inc"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.step(k, value(args[0]), 1), nil
	}
	d.ops["dec"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.step(k, value(args[0]), -1), nil
	}
	d.ops["unaryMinus"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		v := value(args[0])
		if k.isFloat() {
			return d.floatOf(k, -toF64(v)), nil
		}
		return d.intOf(max(k, kInt), -toI64(v)), nil
	}
	d.ops["unaryPlus"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		v := value(args[0])
		if k.isFloat() {
			return args[0], nil
		}
		return d.intOf(max(k, kInt), toI64(v)), nil
	}
	for _, to := range numKinds {
		d.ops["to"+to.String()+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
			return d.convert(value(args[0]), to), nil
		}
	}
	d.ops["toChar"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Char(state.Char(uint16(toI32(value(args[0]))))), nil
	}
}

func (d *Dispatcher) step(k numKind, v any, delta int64) state.State {
	if k.isFloat() {
		return d.floatOf(k, toF64(v)+float64(delta))
	}
	return d.intOf(k, toI64(v)+delta)
}

func (d *Dispatcher) registerBitwise(k numKind) {
	name := k.String()
	pair := "(" + name + "," + name + ")"
	bits := map[string]func(a, b int64) int64{
		"and": func(a, b int64) int64 { return a & b },
		"or":  func(a, b int64) int64 { return a | b },
		"xor": func(a, b int64) int64 { return a ^ b },
	}
	for op, f := range bits {
		d.ops[op+pair] = func(d *Dispatcher, args []state.State) (state.State, error) {
			return d.intOf(k, f(toI64(value(args[0])), toI64(value(args[1])))), nil
		}
	}
	d.ops["inv("+name+")"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.intOf(k, ^toI64(value(args[0]))), nil
	}
	mask := int64(31)
	if k == kLong {
		mask = 63
	}
	shifts := map[string]func(a int64, n uint) int64{
		"shl": func(a int64, n uint) int64 { return a << n },
		"shr": func(a int64, n uint) int64 { return a >> n },
		"ushr": func(a int64, n uint) int64 {
			if k == kLong {
				return int64(uint64(a) >> n)
			}
			return int64(uint32(a) >> n)
		},
	}
	for op, f := range shifts {
		d.ops[op+"("+name+",Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
			a := toI64(value(args[0]))
			if k == kInt {
				a = int64(int32(a))
			}
			n := uint(toI64(value(args[1])) & mask)
			return d.intOf(k, f(a, n)), nil
		}
	}
}

// Coerce converts a numeric primitive to the numeric class named by
// className (Byte, Short, Int, Long, Float or Double).
func (d *Dispatcher) Coerce(s state.State, className string) (state.State, bool) {
	p, ok := s.(*state.Primitive)
	if !ok || kindOf(p.Value) == 0 {
		return s, false
	}
	for _, k := range numKinds {
		if k.String() == className {
			return d.convert(p.Value, k), true
		}
	}
	return s, false
}
