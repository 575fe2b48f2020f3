package builtins

import (
	"errors"
	"math"
	"testing"

	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

func newDispatcher(t *testing.T) (*Dispatcher, state.Values) {
	t.Helper()
	b := ir.NewBuiltIns()
	return New(b), state.Values{B: b}
}

func call(t *testing.T, d *Dispatcher, fn *ir.Function, args ...state.State) state.State {
	t.Helper()
	res, err := d.Call(fn, args)
	if err != nil {
		t.Fatalf("%s: unexpected error %v", d.Key(fn, args), err)
	}
	return res
}

func expectHostError(t *testing.T, err error, class string) {
	t.Helper()
	var he *HostError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HostError, got %v", err)
	}
	if he.Class != class {
		t.Fatalf("expected %s, got %s", class, he.Class)
	}
}

func TestDispatcher_NumericPromotion(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	tests := []struct {
		name     string
		fn       *ir.Function
		args     []state.State
		expected string
		class    *ir.Class
	}{
		{"byte plus byte", b.Member(b.Byte, "plus", b.Int.DefaultType(), b.Byte.DefaultType()),
			[]state.State{v.Byte(100), v.Byte(100)}, "200", b.Int},
		{"int plus long", b.Member(b.Int, "plus", b.Long.DefaultType(), b.Long.DefaultType()),
			[]state.State{v.Int(1), v.Long(2)}, "3", b.Long},
		{"int overflow wraps", b.Member(b.Int, "times", b.Int.DefaultType(), b.Int.DefaultType()),
			[]state.State{v.Int(1 << 30), v.Int(4)}, "0", b.Int},
		{"int div double", b.Member(b.Int, "div", b.Double.DefaultType(), b.Double.DefaultType()),
			[]state.State{v.Int(1), v.Double(2)}, "0.5", b.Double},
		{"negative rem", b.Member(b.Int, "rem", b.Int.DefaultType(), b.Int.DefaultType()),
			[]state.State{v.Int(-7), v.Int(3)}, "-1", b.Int},
		{"floor mod", b.Member(b.Int, "mod", b.Int.DefaultType(), b.Int.DefaultType()),
			[]state.State{v.Int(-7), v.Int(3)}, "2", b.Int},
		{"float arithmetic", b.Member(b.Float, "plus", b.Float.DefaultType(), b.Float.DefaultType()),
			[]state.State{v.Float(0.1), v.Float(0.2)}, "0.3", b.Float},
		{"shl masks count", b.Member(b.Int, "shl", b.Int.DefaultType(), b.Int.DefaultType()),
			[]state.State{v.Int(1), v.Int(33)}, "2", b.Int},
		{"ushr", b.Member(b.Int, "ushr", b.Int.DefaultType(), b.Int.DefaultType()),
			[]state.State{v.Int(-1), v.Int(28)}, "15", b.Int},
		{"toByte wraps", b.Member(b.Int, "toByte", b.Byte.DefaultType()),
			[]state.State{v.Int(200)}, "-56", b.Byte},
		{"double toInt saturates", b.Member(b.Double, "toInt", b.Int.DefaultType()),
			[]state.State{v.Double(1e20)}, "2147483647", b.Int},
		{"unaryMinus byte", b.Member(b.Byte, "unaryMinus", b.Int.DefaultType()),
			[]state.State{v.Byte(5)}, "-5", b.Int},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, d, tt.fn, tt.args...)
			if res.Inspect() != tt.expected {
				t.Errorf("got %s, want %s", res.Inspect(), tt.expected)
			}
			if state.ClassOf(res) != tt.class {
				t.Errorf("got class %s, want %s", state.ClassOf(res).Name, tt.class.Name)
			}
		})
	}
}

func TestDispatcher_DivisionByZero(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	div := b.Member(b.Int, "div", b.Int.DefaultType(), b.Int.DefaultType())
	_, err := d.Call(div, []state.State{v.Int(1), v.Int(0)})
	expectHostError(t, err, ArithmeticException)

	fdiv := b.Member(b.Double, "div", b.Double.DefaultType(), b.Double.DefaultType())
	res := call(t, d, fdiv, v.Double(1), v.Double(0))
	if res.Inspect() != "Infinity" {
		t.Fatalf("1.0 / 0.0 = %s", res.Inspect())
	}
}

func TestDispatcher_Comparisons(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	boolType := b.Boolean.DefaultType()
	dbl := b.Double.DefaultType()
	nan := v.Double(math.NaN())

	less := b.Operator("less", boolType, dbl, dbl)
	if res := call(t, d, less, nan, v.Double(1)); res.Inspect() != "false" {
		t.Errorf("NaN < 1.0 = %s", res.Inspect())
	}
	cmp := b.Member(b.Double, "compareTo", b.Int.DefaultType(), dbl)
	if res := call(t, d, cmp, nan, v.Double(1)); res.Inspect() != "1" {
		t.Errorf("NaN.compareTo(1.0) = %s", res.Inspect())
	}
	if res := call(t, d, cmp, v.Double(math.Copysign(0, -1)), v.Double(0)); res.Inspect() != "-1" {
		t.Errorf("-0.0.compareTo(0.0) = %s", res.Inspect())
	}

	eqeq := b.Operator("EQEQ", boolType, b.AnyNType(), b.AnyNType())
	if res := call(t, d, eqeq, v.Int(1), v.Long(1)); res.Inspect() != "false" {
		t.Errorf("1 == 1L boxed = %s", res.Inspect())
	}
	if res := call(t, d, eqeq, v.Null(), v.Null()); res.Inspect() != "true" {
		t.Errorf("null == null = %s", res.Inspect())
	}
	if res := call(t, d, eqeq, nan, nan); res.Inspect() != "true" {
		t.Errorf("boxed NaN equality = %s", res.Inspect())
	}
}

func TestDispatcher_Strings(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	strType := b.String.DefaultType()
	intType := b.Int.DefaultType()

	plus := b.Member(b.String, "plus", strType, b.AnyNType())
	if res := call(t, d, plus, v.String("x="), v.Double(1)); res.Inspect() != "x=1.0" {
		t.Errorf("plus = %q", res.Inspect())
	}
	if res := call(t, d, plus, v.String("n="), v.Null()); res.Inspect() != "n=null" {
		t.Errorf("plus null = %q", res.Inspect())
	}

	length := b.Getter(b.String, "length", intType)
	if res := call(t, d, length, v.String("héllo")); res.Inspect() != "5" {
		t.Errorf("length = %s", res.Inspect())
	}

	get := b.Member(b.String, "get", b.Char.DefaultType(), intType)
	if res := call(t, d, get, v.String("abc"), v.Int(1)); res.Inspect() != "b" {
		t.Errorf("get = %s", res.Inspect())
	}
	_, err := d.Call(get, []state.State{v.String("abc"), v.Int(3)})
	expectHostError(t, err, IndexOutOfBoundsException)

	hash := b.Member(b.String, "hashCode", intType)
	if res := call(t, d, hash, v.String("hello")); res.Inspect() != "99162322" {
		t.Errorf("hashCode = %s", res.Inspect())
	}
}

func TestDispatcher_Chars(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	charType := b.Char.DefaultType()
	intType := b.Int.DefaultType()

	plus := b.Member(b.Char, "plus", charType, intType)
	if res := call(t, d, plus, v.Char('a'), v.Int(2)); res.Inspect() != "c" {
		t.Errorf("'a' + 2 = %s", res.Inspect())
	}
	minus := b.Member(b.Char, "minus", intType, charType)
	res := call(t, d, minus, v.Char('z'), v.Char('a'))
	if res.Inspect() != "25" || state.ClassOf(res) != b.Int {
		t.Errorf("'z' - 'a' = %s", res.Inspect())
	}
	code := b.Getter(b.Char, "code", intType)
	if res := call(t, d, code, v.Char('A')); res.Inspect() != "65" {
		t.Errorf("'A'.code = %s", res.Inspect())
	}
}

func TestDispatcher_Arrays(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	arr := v.Array(b.Int.DefaultType(), []state.State{v.Int(1), v.Int(2)})
	set := b.Member(b.Array, "set", b.Unit.DefaultType(), b.Int.DefaultType(), b.AnyNType())
	call(t, d, set, arr, v.Int(0), v.Int(7))
	if arr.Inspect() != "[7, 2]" {
		t.Fatalf("after set: %s", arr.Inspect())
	}
	get := b.Member(b.Array, "get", b.AnyNType(), b.Int.DefaultType())
	_, err := d.Call(get, []state.State{arr, v.Int(-1)})
	expectHostError(t, err, ArrayIndexOutOfBoundsException)
	var he *HostError
	errors.As(err, &he)
	if he.Message != "Index -1 out of bounds for length 2" {
		t.Errorf("message = %q", he.Message)
	}
	size := b.Getter(b.Array, "size", b.Int.DefaultType())
	if res := call(t, d, size, arr); res.Inspect() != "2" {
		t.Errorf("size = %s", res.Inspect())
	}
}

func TestDispatcher_Unsigned(t *testing.T) {
	d, _ := newDispatcher(t)
	b := d.BuiltIns()
	umax := d.NewUnsigned(b.UInt, 1<<32-1)
	one := d.NewUnsigned(b.UInt, 1)

	plus := b.Member(b.UInt, "plus", b.UInt.DefaultType(), b.UInt.DefaultType())
	if res := call(t, d, plus, umax, one); res.Inspect() != "0" {
		t.Errorf("UInt.MAX + 1 = %s", res.Inspect())
	}
	cmp := b.Member(b.UInt, "compareTo", b.Int.DefaultType(), b.UInt.DefaultType())
	if res := call(t, d, cmp, umax, one); res.Inspect() != "1" {
		t.Errorf("compareTo = %s", res.Inspect())
	}
	toStr := b.Member(b.UInt, "toString", b.String.DefaultType())
	if res := call(t, d, toStr, umax); res.Inspect() != "4294967295" {
		t.Errorf("toString = %s", res.Inspect())
	}
	ub := d.NewUnsigned(b.UByte, 255)
	widen := b.Member(b.UByte, "plus", b.UInt.DefaultType(), b.UByte.DefaultType())
	res := call(t, d, widen, ub, ub)
	if res.Inspect() != "510" || state.ClassOf(res) != b.UInt {
		t.Errorf("UByte + UByte = %s (%s)", res.Inspect(), state.ClassOf(res).Name)
	}
}

func TestDispatcher_HostClasses(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	rangeTo := b.Member(b.Int, "rangeTo", b.IntRange.DefaultType(), b.Int.DefaultType())
	r := call(t, d, rangeTo, v.Int(1), v.Int(3)).(*state.Wrapped)
	if r.Inspect() != "1..3" {
		t.Fatalf("range = %s", r.Inspect())
	}

	iterFn := b.IntRange.Function("iterator", 0)
	it, err := d.CallHostMethod(iterFn, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	next := b.IntIterator.Function("next", 0)
	sum := int32(0)
	for i := 0; i < 3; i++ {
		n, err := d.CallHostMethod(next, it.(*state.Wrapped), nil)
		if err != nil {
			t.Fatal(err)
		}
		sum += n.(*state.Primitive).Value.(int32)
	}
	if sum != 6 {
		t.Errorf("sum = %d", sum)
	}
	_, err = d.CallHostMethod(next, it.(*state.Wrapped), nil)
	expectHostError(t, err, NoSuchElementException)

	downTo := b.Member(b.Int, "downTo", b.IntRange.DefaultType(), b.Int.DefaultType())
	if res := call(t, d, downTo, v.Int(5), v.Int(1)); res.Inspect() != "5 downTo 1 step 1" {
		t.Errorf("downTo = %s", res.Inspect())
	}

	sb, err := d.NewHostInstance(b.StringBuilder.PrimaryConstructor(), nil)
	if err != nil {
		t.Fatal(err)
	}
	appendFn := b.StringBuilder.Function("append", 1)
	for _, s := range []state.State{v.String("a"), v.Int(1), v.Null()} {
		if _, err := d.CallHostMethod(appendFn, sb, []state.State{s}); err != nil {
			t.Fatal(err)
		}
	}
	if sb.Inspect() != "a1null" {
		t.Errorf("StringBuilder = %s", sb.Inspect())
	}
}

func TestDispatcher_HostRoutines(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	abs := b.Library("kotlin.math.abs")
	res, err := d.CallHostRoutine(abs, []state.State{v.Int(-1 << 31)})
	if err != nil || res.Inspect() != "-2147483648" {
		t.Errorf("abs(MIN_VALUE) = %v, %v", res, err)
	}
	_, err = d.CallHostRoutine(b.Library("kotlin.text.repeat"), []state.State{v.String("a"), v.Int(-1)})
	expectHostError(t, err, IllegalArgumentException)
}

func TestDispatcher_MissingOperator(t *testing.T) {
	d, v := newDispatcher(t)
	b := d.BuiltIns()
	fn := b.Member(b.String, "frobnicate", b.Unit.DefaultType())
	_, err := d.Call(fn, []state.State{v.String("x")})
	if !errors.Is(err, ErrNoBuiltin) {
		t.Fatalf("expected ErrNoBuiltin, got %v", err)
	}
}

func TestLookupIntrinsic(t *testing.T) {
	b := ir.NewBuiltIns()
	tests := []struct {
		routine  ir.Routine
		found    bool
		typeArgs bool
	}{
		{b.Library("kotlin.emptyArray"), true, true},
		{b.Library("kotlin.arrayOf"), true, false},
		{b.Library("kotlin.enumValueOf"), true, true},
		{b.ArrayConstructor(), true, false},
		{b.Library("kotlin.math.abs"), false, false},
		{b.Any.PrimaryConstructor(), false, false},
	}
	for _, tt := range tests {
		spec, ok := LookupIntrinsic(tt.routine)
		if ok != tt.found || spec.TypeArguments != tt.typeArgs {
			t.Errorf("%s: got (%v, %v), want (%v, %v)", tt.routine.FullName(), ok, spec.TypeArguments, tt.found, tt.typeArgs)
		}
	}
}
