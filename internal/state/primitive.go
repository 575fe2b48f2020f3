package state

import (
	"strings"

	"github.com/funvibe/consteval/internal/ir"
)

// Char is the Go representation of a Kotlin Char. It is a distinct type so
// that it cannot be confused with an Int (int32).
type Char rune

// UnitValue is the payload of the Unit primitive.
type UnitValue struct{}

// ArrayValue is the payload of array primitives. Elements is mutated in
// place by Array.set.
type ArrayValue struct {
	Elements []State
}

// Primitive is a scalar, string, null, Unit or array value.
// Value is one of: nil, bool, Char, int8, int16, int32, int64, float32,
// float64, string, UnitValue, *ArrayValue.
type Primitive struct {
	Value any
	Type  ir.Type
}

func (p *Primitive) Kind() StateKind      { return PRIMITIVE_STATE }
func (p *Primitive) RuntimeType() ir.Type { return p.Type }
func (p *Primitive) Inspect() string      { return Render(p.Value) }

func NewPrimitive(v any, t ir.Type) *Primitive {
	return &Primitive{Value: v, Type: t}
}

// Values builds primitives with the builtin types of one BuiltIns instance.
type Values struct {
	B *ir.BuiltIns
}

func (v Values) Null() *Primitive            { return &Primitive{Value: nil, Type: v.B.NullType()} }
func (v Values) Unit() *Primitive            { return &Primitive{Value: UnitValue{}, Type: v.B.Unit.DefaultType()} }
func (v Values) Bool(x bool) *Primitive      { return &Primitive{Value: x, Type: v.B.Boolean.DefaultType()} }
func (v Values) Char(x Char) *Primitive      { return &Primitive{Value: x, Type: v.B.Char.DefaultType()} }
func (v Values) Byte(x int8) *Primitive      { return &Primitive{Value: x, Type: v.B.Byte.DefaultType()} }
func (v Values) Short(x int16) *Primitive    { return &Primitive{Value: x, Type: v.B.Short.DefaultType()} }
func (v Values) Int(x int32) *Primitive      { return &Primitive{Value: x, Type: v.B.Int.DefaultType()} }
func (v Values) Long(x int64) *Primitive     { return &Primitive{Value: x, Type: v.B.Long.DefaultType()} }
func (v Values) Float(x float32) *Primitive  { return &Primitive{Value: x, Type: v.B.Float.DefaultType()} }
func (v Values) Double(x float64) *Primitive { return &Primitive{Value: x, Type: v.B.Double.DefaultType()} }
func (v Values) String(x string) *Primitive  { return &Primitive{Value: x, Type: v.B.String.DefaultType()} }

// Array wraps elements into an array primitive of the given element type.
func (v Values) Array(elem ir.Type, elements []State) *Primitive {
	t := ir.Type{Classifier: v.B.Array, Arguments: []ir.Type{elem}}
	return &Primitive{Value: &ArrayValue{Elements: elements}, Type: t}
}

// FromGo converts a Go scalar into a primitive, choosing the builtin type
// from the Go type. Unknown Go types yield nil and false.
func (v Values) FromGo(x any) (*Primitive, bool) {
	switch x := x.(type) {
	case nil:
		return v.Null(), true
	case bool:
		return v.Bool(x), true
	case Char:
		return v.Char(x), true
	case int8:
		return v.Byte(x), true
	case int16:
		return v.Short(x), true
	case int32:
		return v.Int(x), true
	case int:
		return v.Int(int32(x)), true
	case int64:
		return v.Long(x), true
	case float32:
		return v.Float(x), true
	case float64:
		return v.Double(x), true
	case string:
		return v.String(x), true
	case UnitValue:
		return v.Unit(), true
	}
	return nil, false
}

// Render formats a primitive payload the way Kotlin's toString does.
func Render(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case Char:
		return string(rune(x))
	case int8:
		return formatInt(int64(x))
	case int16:
		return formatInt(int64(x))
	case int32:
		return formatInt(int64(x))
	case int64:
		return formatInt(x)
	case float32:
		return FormatFloat(float64(x), 32)
	case float64:
		return FormatFloat(x, 64)
	case string:
		return x
	case UnitValue:
		return "kotlin.Unit"
	case *ArrayValue:
		parts := make([]string, len(x.Elements))
		for i, e := range x.Elements {
			parts[i] = e.Inspect()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "<unknown>"
}
