package interpreter

import (
	"errors"

	"github.com/funvibe/consteval/internal/builtins"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/stack"
	"github.com/funvibe/consteval/internal/state"
)

func explicitCount(args []ir.Expression) int {
	n := 0
	for _, a := range args {
		if a != nil {
			n++
		}
	}
	return n
}

// popArgs pops the explicit arguments staged for a routine and spreads
// them over its parameters. Omitted arguments are left nil.
func (m *machine) popArgs(r ir.Routine, exprs []ir.Expression) []state.State {
	vals := m.cs.PopStates(explicitCount(exprs))
	args := make([]state.State, len(r.Params()))
	j := 0
	for i, a := range exprs {
		if a != nil && i < len(args) {
			args[i] = vals[j]
			j++
		}
	}
	return args
}

// defaultOf finds the default value of parameter i, looking through the
// declarations r overrides.
func defaultOf(r ir.Routine, i int) (ir.Routine, ir.Expression) {
	params := r.Params()
	if i < len(params) && params[i].Default != nil {
		return r, params[i].Default
	}
	if fn, ok := r.(*ir.Function); ok {
		for _, o := range fn.Overridden {
			if decl, def := defaultOf(o, i); def != nil {
				return decl, def
			}
		}
	}
	return nil, nil
}

// fillDefaults computes omitted arguments. Constant defaults are folded
// directly; anything else runs on a fresh call stack.
func (m *machine) fillDefaults(r ir.Routine, recv, ext state.State, args []state.State) error {
	for i, p := range r.Params() {
		if args[i] != nil {
			continue
		}
		decl, def := defaultOf(r, i)
		if def == nil {
			if p.IsVararg() {
				args[i] = m.vals.Array(*p.VarargElement, nil)
				continue
			}
			return m.fatal(ErrMalformed, "no value passed for parameter %s of %s", p.Name, r.FullName())
		}
		if c, ok := def.(*ir.Const); ok && !c.IsUnsigned() {
			v, err := m.constState(c)
			if err != nil {
				return err
			}
			args[i] = v
			continue
		}
		v, err := m.env.evalDefault(decl, def, recv, ext, args[:i])
		if err != nil {
			return err
		}
		args[i] = v
	}
	return nil
}

// resolveTypeArgs substitutes reified type arguments of the caller.
func (m *machine) resolveTypeArgs(types []ir.Type) []ir.Type {
	out := make([]ir.Type, len(types))
	for i, t := range types {
		out[i], _ = m.resolveType(t)
	}
	return out
}

// resolveVirtual finds the implementation of fn for the runtime class c:
// the first override met walking c's supertypes breadth first.
func resolveVirtual(c *ir.Class, fn *ir.Function) *ir.Function {
	for _, k := range ir.AllSupertypes(c) {
		for _, f := range k.Functions() {
			if f.Overrides(fn) {
				return f.ResolveFakeOverride()
			}
		}
	}
	return fn.ResolveFakeOverride()
}

func (m *machine) executeCall(call *ir.Call) error {
	fn := call.Target
	args := m.popArgs(fn, call.Args)
	var recv, ext state.State
	if call.ExtensionReceiver != nil {
		ext = m.cs.PopState()
	}
	if call.DispatchReceiver != nil {
		recv = m.cs.PopState()
	}
	m.cs.DropSubFrameSilently()

	if recv != nil && state.IsNull(recv) && fn.DispatchReceiver != nil && !fn.DispatchReceiver.Type.Nullable {
		return &builtins.HostError{Class: builtins.NullPointerException}
	}
	if ext != nil && state.IsNull(ext) && fn.ExtensionReceiver != nil && !fn.ExtensionReceiver.Type.Nullable {
		return &builtins.HostError{Class: builtins.NullPointerException}
	}
	typeArgs := m.resolveTypeArgs(call.TypeArgs)

	target := fn
	if call.SuperQualifier == nil {
		if obj, ok := m.receiverObject(recv); ok {
			target = resolveVirtual(obj.Class, fn)
		}
	} else {
		target = fn.ResolveFakeOverride()
	}
	if obj, ok := recv.(*state.Composite); ok && obj.SuperDelegate != nil && target.Parent != nil && target.Parent.External {
		recv = obj.SuperDelegate
	}
	if err := m.fillDefaults(target, recv, ext, args); err != nil {
		return err
	}
	return m.invoke(target, recv, ext, args, typeArgs)
}

// invoke routes a resolved call: host objects, lambdas, intrinsics, host
// routines and builtin operators are handled without interpreting a body.
func (m *machine) invoke(fn *ir.Function, recv, ext state.State, args []state.State, typeArgs []ir.Type) error {
	if w, ok := recv.(*state.Wrapped); ok && !fn.InlineOnly {
		res, err := m.d.CallHostMethod(fn, w, args)
		if err != nil {
			return m.hostFailure(err, ErrUnsupported)
		}
		m.cs.PushState(res)
		return nil
	}
	if lambda, ok := recv.(*state.ReflectiveFunction); ok && fn.Name == "invoke" {
		return m.invokeLambda(lambda, args)
	}
	if spec, ok := builtins.LookupIntrinsic(fn); ok {
		m.cs.NewFrame(fn, nil, stack.IntrinsicOf(fn))
		m.bindCall(fn, recv, ext, args)
		m.bindTypeArgs(fn.TypeParams, typeArgs, spec.TypeArguments)
		return nil
	}
	switch fn.Intrinsic {
	case ir.IntrinsicNone:
	case ir.IntrinsicHost:
		res, err := m.d.CallHostRoutine(fn, receiversAndArgs(recv, ext, args))
		if err != nil {
			return m.hostFailure(err, ErrMissingIntrinsic)
		}
		m.cs.PushState(res)
		return nil
	default:
		return m.fatal(ErrMissingIntrinsic, "%s", builtins.KeyOf(fn))
	}

	if fn.Body == nil {
		if fn.Property != nil && recv != nil {
			if obj, ok := m.receiverObject(recv); ok && !m.b.IsUnsigned(obj.Class) {
				if v, ok := obj.Field(fn.Property); ok {
					m.cs.PushState(v)
					return nil
				}
				if v, ok := obj.FieldByName(fn.Property.Name); ok {
					m.cs.PushState(v)
					return nil
				}
				return m.fatal(ErrMalformed, "property %s of %s is not initialized", fn.Property.Name, obj.Class.FqName)
			}
		}
		res, err := m.d.Call(fn, receiversAndArgs(recv, ext, args))
		if err != nil {
			return m.hostFailure(err, ErrUnsupported)
		}
		m.cs.PushState(res)
		return nil
	}

	m.log.Debug().Str("routine", fn.FullName()).Int("depth", m.cs.Depth()+1).Msg("enter")
	m.cs.NewFrame(fn, fn.File, stack.CompoundOf(fn.Body), stack.SimpleOf(fn))
	m.bindCall(fn, recv, ext, args)
	m.bindTypeArgs(fn.TypeParams, typeArgs, false)
	return nil
}

func receiversAndArgs(recv, ext state.State, args []state.State) []state.State {
	out := make([]state.State, 0, len(args)+2)
	if recv != nil {
		out = append(out, recv)
	}
	if ext != nil {
		out = append(out, ext)
	}
	return append(out, args...)
}

// hostFailure passes host exceptions through and turns a missing table
// entry into a fatal error wrapping sentinel.
func (m *machine) hostFailure(err error, sentinel error) error {
	if errors.Is(err, builtins.ErrNoBuiltin) {
		return m.fatal(sentinel, "%v", err)
	}
	return err
}

func (m *machine) bindCall(fn *ir.Function, recv, ext state.State, args []state.State) {
	if recv != nil && fn.DispatchReceiver != nil {
		m.cs.AddVariable(fn.DispatchReceiver, recv)
	}
	if ext != nil && fn.ExtensionReceiver != nil {
		m.cs.AddVariable(fn.ExtensionReceiver, ext)
	}
	m.bindParams(fn.ValueParams, args)
}

func (m *machine) bindParams(params []*ir.ValueParameter, args []state.State) {
	for i, p := range params {
		if i < len(args) && args[i] != nil {
			m.cs.AddVariable(p, args[i])
		}
	}
}

// bindTypeArgs binds type arguments as type handles. Only reified
// parameters are bound unless all is set.
func (m *machine) bindTypeArgs(params []*ir.TypeParameter, types []ir.Type, all bool) {
	for i, tp := range params {
		if i >= len(types) || types[i].IsZero() {
			break
		}
		if tp.Reified || all {
			m.cs.AddVariable(tp, &state.ReflectiveType{Type: types[i], Class: m.b.Any})
		}
	}
}

// invokeLambda runs a closure in a new frame seeded with its captured bindings.
func (m *machine) invokeLambda(lambda *state.ReflectiveFunction, args []state.State) error {
	lf := lambda.Function
	if lf.Body == nil {
		return m.fatal(ErrMalformed, "lambda without a body")
	}
	m.log.Debug().Str("routine", lf.FullName()).Int("depth", m.cs.Depth()+1).Msg("enter lambda")
	m.cs.NewFrame(lf, lf.File, stack.CompoundOf(lf.Body), stack.SimpleOf(lf))
	for _, v := range lambda.Captured {
		m.cs.AddVariable(v.Symbol, v.State)
	}
	if lf.ExtensionReceiver != nil && len(args) > 0 {
		m.cs.AddVariable(lf.ExtensionReceiver, args[0])
		args = args[1:]
	}
	m.bindParams(lf.ValueParams, args)
	return nil
}

func (m *machine) executeConstructorCall(cc *ir.ConstructorCall) error {
	ctor := cc.Target
	if ctor == nil || ctor.Parent == nil {
		return m.fatal(ErrMalformed, "constructor call without a target class")
	}
	args := m.popArgs(ctor, cc.Args)
	m.cs.DropSubFrameSilently()
	if err := m.fillDefaults(ctor, nil, nil, args); err != nil {
		return err
	}

	if spec, ok := builtins.LookupIntrinsic(ctor); ok {
		m.cs.NewFrame(ctor, nil, stack.IntrinsicOf(ctor))
		m.bindParams(ctor.ValueParams, args)
		if elem, ok := m.elementType(cc); ok {
			m.cs.AddVariable(ctor, &state.ReflectiveType{Type: elem, Class: m.b.Any})
		}
		if spec.TypeArguments {
			m.bindTypeArgs(ctor.Parent.TypeParams, m.resolveTypeArgs(cc.TypeArgs), true)
		}
		return nil
	}
	if ctor.Intrinsic != ir.IntrinsicNone {
		return m.fatal(ErrMissingIntrinsic, "%s", builtins.KeyOf(ctor))
	}
	if ctor.Parent.External {
		w, err := m.d.NewHostInstance(ctor, args)
		if err != nil {
			return m.hostFailure(err, ErrMissingIntrinsic)
		}
		m.cs.PushState(w)
		return nil
	}

	obj, ok := m.prealloc[cc]
	if ok {
		delete(m.prealloc, cc)
	} else {
		obj = m.env.NewObject(ctor.Parent)
	}
	return m.construct(ctor, obj, args)
}

// elementType is the element type of an Array constructor call.
func (m *machine) elementType(cc *ir.ConstructorCall) (ir.Type, bool) {
	if len(cc.TypeArgs) > 0 {
		t, _ := m.resolveType(cc.TypeArgs[0])
		return t, true
	}
	if len(cc.Type.Arguments) > 0 {
		t, _ := m.resolveType(cc.Type.Arguments[0])
		return t, true
	}
	return ir.Type{}, false
}

// construct runs ctor on obj in a new frame. The object is bound to the
// class's this-receiver so that delegated constructors and initializers
// all write to the same instance.
func (m *machine) construct(ctor *ir.Constructor, obj *state.Composite, args []state.State) error {
	if len(args) < len(ctor.ValueParams) {
		args = append(args, make([]state.State, len(ctor.ValueParams)-len(args))...)
	}
	if err := m.fillDefaults(ctor, nil, nil, args); err != nil {
		return err
	}
	if ctor.Body == nil {
		m.cs.PushState(obj)
		return nil
	}
	if ctor.Parent != m.b.Any && !delegates(ctor.Body) {
		return m.fatal(ErrMalformed, "constructor of %s does not start with a delegating call", ctor.Parent.FqName)
	}
	m.log.Debug().Str("routine", ctor.FullName()).Int("depth", m.cs.Depth()+1).Msg("construct")
	m.cs.NewFrame(ctor, ctor.Parent.File, stack.CompoundOf(ctor.Body), stack.SimpleOf(ctor))
	m.cs.AddVariable(ctor.Parent.ThisReceiver, obj)
	m.bindParams(ctor.ValueParams, args)
	return nil
}

func delegates(body *ir.Body) bool {
	if len(body.Statements) == 0 {
		return false
	}
	_, ok := body.Statements[0].(*ir.DelegatingConstructorCall)
	return ok
}

// executeDelegatingCall continues construction of the current object with
// a super or this constructor.
func (m *machine) executeDelegatingCall(dc *ir.DelegatingConstructorCall) error {
	target := dc.Target
	if target == nil {
		return m.fatal(ErrMalformed, "delegating call without a target")
	}
	args := m.popArgs(target, dc.Args)
	m.cs.DropSubFrameSilently()

	owner, ok := m.cs.CurrentFrame().Owner().(*ir.Constructor)
	if !ok {
		return m.fatal(ErrMalformed, "delegating call outside of a constructor")
	}
	obj, ok := m.cs.Variable(owner.Parent.ThisReceiver).State.(*state.Composite)
	if !ok {
		return m.fatal(ErrMalformed, "constructor of %s has no object under construction", owner.Parent.FqName)
	}

	switch {
	case target == m.b.AnyConstructor() || target.Parent == m.b.Any:
		m.cs.PushState(m.vals.Unit())
		return nil
	case target.Parent != nil && target.Parent.External:
		if err := m.fillDefaults(target, nil, nil, args); err != nil {
			return err
		}
		w, err := m.d.NewHostInstance(target, args)
		if err != nil {
			return m.hostFailure(err, ErrMissingIntrinsic)
		}
		obj.SuperDelegate = w
		m.cs.PushState(m.vals.Unit())
		return nil
	}
	return m.construct(target, obj, args)
}
