package state

import (
	"math"
	"testing"

	"github.com/funvibe/consteval/internal/ir"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in       float64
		bits     int
		expected string
	}{
		{1, 64, "1.0"},
		{0.5, 64, "0.5"},
		{-2.25, 64, "-2.25"},
		{1e7, 64, "1.0E7"},
		{1.5e10, 64, "1.5E10"},
		{0.001, 64, "0.001"},
		{0.0001, 64, "1.0E-4"},
		{1234567.5, 64, "1234567.5"},
		{0, 64, "0.0"},
		{math.Copysign(0, -1), 64, "-0.0"},
		{math.NaN(), 64, "NaN"},
		{math.Inf(1), 64, "Infinity"},
		{math.Inf(-1), 64, "-Infinity"},
		{float64(float32(0.1)), 32, "0.1"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.in, tt.bits); got != tt.expected {
			t.Errorf("FormatFloat(%v, %d) = %q, want %q", tt.in, tt.bits, got, tt.expected)
		}
	}
}

func TestRender(t *testing.T) {
	b := ir.NewBuiltIns()
	v := Values{B: b}
	tests := []struct {
		name     string
		state    State
		expected string
	}{
		{"null", v.Null(), "null"},
		{"unit", v.Unit(), "kotlin.Unit"},
		{"bool", v.Bool(true), "true"},
		{"char", v.Char('x'), "x"},
		{"byte", v.Byte(-3), "-3"},
		{"long", v.Long(2432902008176640000), "2432902008176640000"},
		{"float", v.Float(2.5), "2.5"},
		{"string", v.String("ab"), "ab"},
		{"array", v.Array(b.Int.DefaultType(), []State{v.Int(1), v.Int(2)}), "[1, 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Inspect(); got != tt.expected {
				t.Errorf("Inspect() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFromGo_CharIsNotInt(t *testing.T) {
	b := ir.NewBuiltIns()
	v := Values{B: b}
	c, _ := v.FromGo(Char('a'))
	i, _ := v.FromGo(int32('a'))
	if c.Type.Class() != b.Char {
		t.Errorf("Char mapped to %s", c.Type)
	}
	if i.Type.Class() != b.Int {
		t.Errorf("int32 mapped to %s", i.Type)
	}
	if _, ok := v.FromGo(struct{}{}); ok {
		t.Error("unknown Go types should not convert")
	}
}

func TestComposite_Fields(t *testing.T) {
	b := ir.NewBuiltIns()
	v := Values{B: b}
	point := ir.NewClass("geo.Point", ir.ClassKindClass, b.Any)
	x := ir.NewProperty("x", b.Int.DefaultType(), nil)
	y := ir.NewProperty("y", b.Int.DefaultType(), nil)
	point.Add(x)
	point.Add(y)

	obj := NewComposite(point, 0x2a)
	obj.SetField(y, v.Int(2))
	obj.SetField(x, v.Int(1))
	obj.SetField(y, v.Int(3))

	if got, _ := obj.FieldByName("y"); got.Inspect() != "3" {
		t.Errorf("y = %s, want 3", got.Inspect())
	}
	props := obj.Properties()
	if len(props) != 2 || props[0] != y || props[1] != x {
		t.Errorf("properties should keep first-assignment order")
	}
	if got := obj.Inspect(); got != "Point@2a" {
		t.Errorf("Inspect() = %q", got)
	}
	if !IsSubtypeOf(obj, b.AnyNType()) || IsSubtypeOf(obj, b.String.DefaultType()) {
		t.Error("runtime subtype check is wrong")
	}
}

func TestComposite_UnsignedValue(t *testing.T) {
	b := ir.NewBuiltIns()
	v := Values{B: b}
	u := NewComposite(b.UInt, 1)
	u.SetField(b.UInt.Property("data"), v.Int(-1))
	got, ok := u.UnsignedValue()
	if !ok || got != math.MaxUint32 {
		t.Fatalf("UnsignedValue() = %d, %v", got, ok)
	}
	if u.Inspect() != "4294967295" {
		t.Errorf("Inspect() = %q", u.Inspect())
	}
}

func TestExceptionState_Inspect(t *testing.T) {
	b := ir.NewBuiltIns()
	v := Values{B: b}
	obj := NewComposite(b.IllegalStateException, 1)
	obj.SetField(b.Throwable.Property("message"), v.String("boom"))
	ex := NewException(obj, []string{"at MainKt.f(main.kt:3)"})
	if got := ex.Inspect(); got != "kotlin.IllegalStateException: boom" {
		t.Errorf("Inspect() = %q", got)
	}
	if got := ex.Format(); got != "Exception kotlin.IllegalStateException: boom\n\tat MainKt.f(main.kt:3)" {
		t.Errorf("Format() = %q", got)
	}
	if !IsNull(v.Null()) || IsNull(v.Int(0)) {
		t.Error("IsNull is wrong")
	}
}
