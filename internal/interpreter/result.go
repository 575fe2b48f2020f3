package interpreter

import (
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

// Express re-expresses an interpreted value as IR for constant folding.
// It returns nil when the value has no constant form.
func (in *Interpreter) Express(s state.State) ir.Expression {
	switch x := s.(type) {
	case *state.Primitive:
		return in.expressPrimitive(x)
	case *state.Composite:
		if _, ok := x.UnsignedValue(); ok {
			return in.expressUnsigned(x)
		}
		if entry := enumEntryOf(x); entry != nil {
			return &ir.GetEnumValue{ExprBase: ir.ExprBase{Type: x.Class.DefaultType()}, Entry: entry}
		}
		if x.Class.IsObject() {
			return &ir.GetObjectValue{ExprBase: ir.ExprBase{Type: x.Class.DefaultType()}, Class: x.Class}
		}
		obj := &ir.ConstantObject{
			ExprBase:    ir.ExprBase{Type: x.Class.DefaultType()},
			Constructor: x.Class.PrimaryConstructor(),
		}
		for _, p := range x.Properties() {
			v, _ := x.Field(p)
			e := in.Express(v)
			if e == nil {
				return nil
			}
			obj.Fields = append(obj.Fields, ir.ConstantField{Property: p, Value: e})
		}
		return obj
	}
	return nil
}

func (in *Interpreter) expressPrimitive(p *state.Primitive) ir.Expression {
	b := in.b
	base := ir.ExprBase{Type: p.Type}
	switch v := p.Value.(type) {
	case nil:
		return &ir.Const{ExprBase: ir.ExprBase{Type: b.NullType()}, Kind: ir.ConstNull}
	case bool:
		return &ir.Const{ExprBase: base, Kind: ir.ConstBoolean, Value: v}
	case state.Char:
		return &ir.Const{ExprBase: base, Kind: ir.ConstChar, Value: rune(v)}
	case int8:
		return &ir.Const{ExprBase: base, Kind: ir.ConstByte, Value: v}
	case int16:
		return &ir.Const{ExprBase: base, Kind: ir.ConstShort, Value: v}
	case int32:
		return &ir.Const{ExprBase: base, Kind: ir.ConstInt, Value: v}
	case int64:
		return &ir.Const{ExprBase: base, Kind: ir.ConstLong, Value: v}
	case float32:
		return &ir.Const{ExprBase: base, Kind: ir.ConstFloat, Value: v}
	case float64:
		return &ir.Const{ExprBase: base, Kind: ir.ConstDouble, Value: v}
	case string:
		return &ir.Const{ExprBase: base, Kind: ir.ConstString, Value: v}
	case state.UnitValue:
		return &ir.GetObjectValue{ExprBase: base, Class: b.Unit}
	case *state.ArrayValue:
		arr := &ir.ConstantArray{ExprBase: base}
		for _, el := range v.Elements {
			e := in.Express(el)
			if e == nil {
				return nil
			}
			arr.Elements = append(arr.Elements, e)
		}
		return arr
	}
	return nil
}

func (in *Interpreter) expressUnsigned(c *state.Composite) ir.Expression {
	data, _ := c.FieldByName("data")
	p, ok := data.(*state.Primitive)
	if !ok {
		return nil
	}
	var kind ir.ConstKind
	switch c.Class {
	case in.b.UByte:
		kind = ir.ConstUByte
	case in.b.UShort:
		kind = ir.ConstUShort
	case in.b.UInt:
		kind = ir.ConstUInt
	default:
		kind = ir.ConstULong
	}
	return &ir.Const{ExprBase: ir.ExprBase{Type: c.Class.DefaultType()}, Kind: kind, Value: p.Value}
}

// enumEntryOf finds the entry an enum instance was created for.
func enumEntryOf(c *state.Composite) *ir.EnumEntry {
	class := c.Class
	if !class.IsEnum() && len(class.Supertypes) > 0 && class.Supertypes[0].IsEnum() {
		class = class.Supertypes[0]
	}
	if !class.IsEnum() {
		return nil
	}
	name, ok := c.FieldByName("name")
	if !ok {
		return nil
	}
	for _, e := range class.EnumEntries() {
		if e.Name == name.Inspect() {
			return e
		}
	}
	return nil
}
