package builtins

import (
	"fmt"
	"strings"

	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

// Proxy lets builtins call back into the interpreter when they meet an
// interpreted object that may override toString, equals or hashCode.
// Each callback runs on a fresh call stack.
type Proxy interface {
	ToString(s state.State) (string, error)
	Equals(a, b state.State) (bool, error)
	HashCode(s state.State) (int32, error)
	NewObject(c *ir.Class) *state.Composite
}

type opFunc func(d *Dispatcher, args []state.State) (state.State, error)

type hostMethod func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error)

type hostConstructor func(d *Dispatcher, args []state.State) (any, error)

// Dispatcher resolves routines that have no interpretable body: builtin
// operators on primitives, methods of host-backed classes and host routines.
type Dispatcher struct {
	b     *ir.BuiltIns
	vals  state.Values
	proxy Proxy

	ops          map[string]opFunc
	hostMethods  map[string]hostMethod
	hostCtors    map[string]hostConstructor
	hostRoutines map[string]opFunc
}

func New(b *ir.BuiltIns) *Dispatcher {
	d := &Dispatcher{
		b:            b,
		vals:         state.Values{B: b},
		ops:          make(map[string]opFunc),
		hostMethods:  make(map[string]hostMethod),
		hostCtors:    make(map[string]hostConstructor),
		hostRoutines: make(map[string]opFunc),
	}
	d.registerNumeric()
	d.registerOperators()
	d.registerUnsigned()
	d.registerHost()
	return d
}

// SetProxy installs the interpreter callbacks.
func (d *Dispatcher) SetProxy(p Proxy) { d.proxy = p }

func (d *Dispatcher) BuiltIns() *ir.BuiltIns { return d.b }

// Has reports whether an operator is registered under key.
func (d *Dispatcher) Has(key string) bool {
	_, ok := d.ops[key]
	return ok
}

// Key renders the table key of a call: the method name followed by the
// receiver and parameter types, e.g. "plus(Int,Long)". Non-null receivers
// contribute their runtime class; type parameters render as Any?.
func (d *Dispatcher) Key(fn *ir.Function, args []state.State) string {
	types := make([]string, 0, len(args))
	i := 0
	receiver := func(p *ir.ValueParameter) {
		if i < len(args) && !state.IsNull(args[i]) && d.hasRuntimeName(args[i]) {
			types = append(types, state.ClassOf(args[i]).Name)
		} else {
			types = append(types, typeName(p.Type))
		}
		i++
	}
	if fn.DispatchReceiver != nil {
		receiver(fn.DispatchReceiver)
	}
	if fn.ExtensionReceiver != nil {
		receiver(fn.ExtensionReceiver)
	}
	for _, p := range fn.ValueParams {
		types = append(types, typeName(p.Type))
	}
	return fn.MethodName() + "(" + strings.Join(types, ",") + ")"
}

func (d *Dispatcher) hasRuntimeName(s state.State) bool {
	switch x := s.(type) {
	case *state.Primitive:
		return true
	case *state.Composite:
		return d.b.IsUnsigned(x.Class)
	}
	return false
}

func typeName(t ir.Type) string {
	if t.TypeParameter() != nil {
		return "Any?"
	}
	return t.SimpleName()
}

// Call evaluates a builtin operator. args holds the receivers followed by
// the value arguments. Host failures are returned as *HostError.
func (d *Dispatcher) Call(fn *ir.Function, args []state.State) (state.State, error) {
	key := d.Key(fn, args)
	op, ok := d.ops[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBuiltin, key)
	}
	return d.guard(func() (state.State, error) { return op(d, args) })
}

// CallHostMethod invokes a method of a host-backed receiver.
func (d *Dispatcher) CallHostMethod(fn *ir.Function, recv *state.Wrapped, args []state.State) (state.State, error) {
	key := recv.Class.FqName + "." + fn.MethodName()
	m, ok := d.hostMethods[key]
	if !ok {
		// members inherited from Any
		return d.Call(fn, append([]state.State{recv}, args...))
	}
	return d.guard(func() (state.State, error) { return m(d, recv, args) })
}

// NewHostInstance runs the host constructor of an external class.
func (d *Dispatcher) NewHostInstance(ctor *ir.Constructor, args []state.State) (*state.Wrapped, error) {
	c, ok := d.hostCtors[ctor.Parent.FqName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBuiltin, ctor.FullName())
	}
	res, err := d.guard(func() (state.State, error) {
		v, err := c(d, args)
		if err != nil {
			return nil, err
		}
		return &state.Wrapped{Value: v, Class: ctor.Parent}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*state.Wrapped), nil
}

// CallHostRoutine invokes a top-level routine of the host category.
func (d *Dispatcher) CallHostRoutine(fn *ir.Function, args []state.State) (state.State, error) {
	r, ok := d.hostRoutines[fn.FullName()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBuiltin, fn.FullName())
	}
	return d.guard(func() (state.State, error) { return r(d, args) })
}

func (d *Dispatcher) guard(fn func() (state.State, error)) (res state.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fromPanic(r)
		}
	}()
	return fn()
}

// Render returns the string form of s, calling user toString overrides.
func (d *Dispatcher) Render(s state.State) (string, error) {
	switch x := s.(type) {
	case *state.Primitive:
		return x.Inspect(), nil
	case *state.Composite:
		if d.b.IsUnsigned(x.Class) || d.proxy == nil {
			return x.Inspect(), nil
		}
		return d.proxy.ToString(x)
	case *state.ExceptionState:
		if d.proxy == nil {
			return x.Inspect(), nil
		}
		return d.proxy.ToString(x.Instance)
	}
	return s.Inspect(), nil
}

// Equals implements structural == for any two states.
func (d *Dispatcher) Equals(a, b state.State) (bool, error) {
	if state.IsNull(a) || state.IsNull(b) {
		return state.IsNull(a) && state.IsNull(b), nil
	}
	switch x := a.(type) {
	case *state.Primitive:
		y, ok := b.(*state.Primitive)
		if !ok {
			return false, nil
		}
		return primitiveEquals(x, y), nil
	case *state.Composite:
		if u, ok := x.UnsignedValue(); ok {
			y, ok := b.(*state.Composite)
			if !ok || y.Class != x.Class {
				return false, nil
			}
			v, _ := y.UnsignedValue()
			return u == v, nil
		}
		if d.proxy != nil {
			return d.proxy.Equals(x, b)
		}
		return a == b, nil
	case *state.Wrapped:
		y, ok := b.(*state.Wrapped)
		return ok && x.Value == y.Value, nil
	case *state.ExceptionState:
		y, ok := b.(*state.ExceptionState)
		return ok && x.Instance == y.Instance, nil
	}
	return a == b, nil
}

// Identical implements ===.
func Identical(a, b state.State) bool {
	x, okX := a.(*state.Primitive)
	y, okY := b.(*state.Primitive)
	if okX && okY {
		if _, isArray := x.Value.(*state.ArrayValue); isArray {
			return x.Value == y.Value
		}
		return primitiveEquals(x, y)
	}
	if ex, ok := a.(*state.ExceptionState); ok {
		if ey, ok := b.(*state.ExceptionState); ok {
			return ex.Instance == ey.Instance
		}
	}
	return a == b
}

// HashCode implements hashCode for any state.
func (d *Dispatcher) HashCode(s state.State) (int32, error) {
	switch x := s.(type) {
	case *state.Primitive:
		return primitiveHash(x.Value), nil
	case *state.Composite:
		if u, ok := x.UnsignedValue(); ok {
			return int32(u ^ u>>32), nil
		}
		if d.proxy != nil {
			return d.proxy.HashCode(x)
		}
		return int32(x.ID), nil
	}
	return 0, nil
}

func primitiveEquals(x, y *state.Primitive) bool {
	if x.Type.Class() != y.Type.Class() && !(x.Value == nil && y.Value == nil) {
		return false
	}
	switch a := x.Value.(type) {
	case float32:
		b, ok := y.Value.(float32)
		return ok && math32bits(a) == math32bits(b)
	case float64:
		b, ok := y.Value.(float64)
		return ok && math64bits(a) == math64bits(b)
	case *state.ArrayValue:
		return x.Value == y.Value
	}
	return x.Value == y.Value
}
