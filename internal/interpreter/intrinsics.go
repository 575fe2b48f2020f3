package interpreter

import (
	"strings"

	"github.com/funvibe/consteval/internal/builtins"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

// executeIntrinsic runs a registry routine inside the frame its call
// opened, then leaves the frame with the result.
func (m *machine) executeIntrinsic(r ir.Routine) error {
	key := builtins.KeyOf(r)
	var res state.State
	var err error
	switch key.FqName {
	case "kotlin.emptyArray":
		var elem ir.Type
		if elem, err = m.typeArg(r, 0); err == nil {
			res = m.vals.Array(elem, nil)
		}
	case "kotlin.arrayOf":
		res = m.param(r, 0)
	case "kotlin.arrayOfNulls":
		res, err = m.arrayOfNulls(r)
	case "kotlin.Array.<init>":
		res, err = m.newArray(r)
	case "kotlin.enumValues":
		res, err = m.enumValues(r)
	case "kotlin.enumValueOf":
		res, err = m.enumValueOf(r)
	case "kotlin.Enum.hashCode":
		fn := r.(*ir.Function)
		obj, ok := m.cs.Variable(fn.DispatchReceiver).State.(*state.Composite)
		if !ok {
			return m.fatal(ErrMalformed, "Enum.hashCode on a non-enum receiver")
		}
		res = m.vals.Int(int32(obj.ID))
	case "kotlin.internal.sourceLocation":
		res = m.vals.String(m.sourceLocation())
	case "kotlin.assert":
		ok, isBool := primitive[bool](m.param(r, 0))
		if !isBool {
			return m.fatal(ErrMalformed, "assert on a non-boolean value")
		}
		if !ok {
			return &builtins.HostError{Class: builtins.AssertionError, Message: "Assertion failed", HasMessage: true}
		}
		res = m.vals.Unit()
	case "kotlin.Long.<init>":
		low, _ := primitive[int32](m.param(r, 0))
		high, _ := primitive[int32](m.param(r, 1))
		res = m.vals.Long(int64(high)<<32 | int64(uint32(low)))
	case "kotlin.Char.<init>":
		code, _ := primitive[int32](m.param(r, 0))
		res = m.vals.Char(state.Char(uint16(code)))
	default:
		return m.fatal(ErrMissingIntrinsic, "%s", key)
	}
	if err != nil {
		return err
	}
	m.leaveFrame(r)
	m.cs.PushState(res)
	return nil
}

func primitive[T any](s state.State) (T, bool) {
	var zero T
	p, ok := s.(*state.Primitive)
	if !ok {
		return zero, false
	}
	v, ok := p.Value.(T)
	return v, ok
}

func (m *machine) param(r ir.Routine, i int) state.State {
	return m.cs.Variable(r.Params()[i]).State
}

// typeArg returns the type bound to the i-th type parameter of r.
func (m *machine) typeArg(r ir.Routine, i int) (ir.Type, error) {
	fn, ok := r.(*ir.Function)
	if !ok || i >= len(fn.TypeParams) {
		return ir.Type{}, m.fatal(ErrMalformed, "%s has no type parameter %d", r.FullName(), i)
	}
	v := m.cs.LookupVariable(fn.TypeParams[i])
	if v == nil {
		return ir.Type{}, m.fatal(ErrMalformed, "type argument %s of %s is not bound", fn.TypeParams[i].Name, r.FullName())
	}
	rt, ok := v.State.(*state.ReflectiveType)
	if !ok {
		return ir.Type{}, m.fatal(ErrMalformed, "type argument %s of %s is not a type", fn.TypeParams[i].Name, r.FullName())
	}
	return rt.Type, nil
}

func (m *machine) arrayOfNulls(r ir.Routine) (state.State, error) {
	elem, err := m.typeArg(r, 0)
	if err != nil {
		return nil, err
	}
	size, _ := primitive[int32](m.param(r, 0))
	if size < 0 {
		return nil, &builtins.HostError{Class: builtins.IllegalArgumentException, Message: state.Render(size), HasMessage: true}
	}
	elements := make([]state.State, size)
	for i := range elements {
		elements[i] = m.vals.Null()
	}
	return m.vals.Array(elem.MakeNullable(), elements), nil
}

// newArray implements Array(size) { init }. The init lambda runs on a
// fresh call stack once per index.
func (m *machine) newArray(r ir.Routine) (state.State, error) {
	size, _ := primitive[int32](m.param(r, 0))
	if size < 0 {
		return nil, &builtins.HostError{Class: builtins.IllegalArgumentException, Message: state.Render(size), HasMessage: true}
	}
	init, ok := m.param(r, 1).(*state.ReflectiveFunction)
	if !ok {
		return nil, m.fatal(ErrMalformed, "Array initializer is not a function")
	}
	elem := m.b.AnyNType()
	if sym, ok := r.(ir.Symbol); ok {
		if v := m.cs.LookupVariable(sym); v != nil {
			if rt, ok := v.State.(*state.ReflectiveType); ok {
				elem = rt.Type
			}
		}
	}
	invoke := m.b.Invoke(1)
	elements := make([]state.State, size)
	for i := range elements {
		v, err := m.env.callMethod(invoke, init, m.vals.Int(int32(i)))
		if err != nil {
			return nil, err
		}
		elements[i] = v
	}
	return m.vals.Array(elem, elements), nil
}

func (m *machine) enumClass(r ir.Routine) (*ir.Class, error) {
	t, err := m.typeArg(r, 0)
	if err != nil {
		return nil, err
	}
	c := t.Class()
	if c == nil || !c.IsEnum() {
		return nil, m.fatal(ErrMalformed, "%s needs an enum class, got %s", r.FullName(), t)
	}
	return c, nil
}

func (m *machine) enumValues(r ir.Routine) (state.State, error) {
	c, err := m.enumClass(r)
	if err != nil {
		return nil, err
	}
	entries := c.EnumEntries()
	out := make([]state.State, len(entries))
	for i, e := range entries {
		if out[i], err = m.enumInstance(e); err != nil {
			return nil, err
		}
	}
	return m.vals.Array(c.DefaultType(), out), nil
}

func (m *machine) enumValueOf(r ir.Routine) (state.State, error) {
	c, err := m.enumClass(r)
	if err != nil {
		return nil, err
	}
	name, _ := primitive[string](m.param(r, 0))
	for _, e := range c.EnumEntries() {
		if e.Name == name {
			return m.enumInstance(e)
		}
	}
	return nil, &builtins.HostError{
		Class:      builtins.IllegalArgumentException,
		Message:    "No enum constant " + c.FqName + "." + name,
		HasMessage: true,
	}
}

func (m *machine) enumInstance(e *ir.EnumEntry) (state.State, error) {
	if obj, ok := m.env.enums[e]; ok {
		return obj, nil
	}
	get := &ir.GetEnumValue{ExprBase: ir.ExprBase{Type: e.Parent.DefaultType()}, Entry: e}
	return m.env.evaluate(get, e.Parent.File)
}

// sourceLocation is the "file:line" of the innermost frame with a file.
func (m *machine) sourceLocation() string {
	trace := m.cs.StackTrace()
	if len(trace) == 0 {
		return "<unknown>"
	}
	if _, loc, ok := strings.Cut(trace[0], " at "); ok {
		return loc
	}
	return trace[0]
}
