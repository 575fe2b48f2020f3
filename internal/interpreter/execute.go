package interpreter

import (
	"fmt"
	"strings"

	"github.com/funvibe/consteval/internal/builtins"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/stack"
	"github.com/funvibe/consteval/internal/state"
)

// execute runs a simple instruction.
func (m *machine) execute(e ir.Element) error {
	switch n := e.(type) {
	case *ir.Const:
		v, err := m.constState(n)
		if err != nil {
			return err
		}
		m.cs.PushState(v)
	case *ir.GetValue:
		m.cs.PushState(m.cs.Variable(n.Symbol).State)
	case *ir.SetValue:
		v := m.cs.PopState()
		m.cs.Variable(n.Symbol).State = v
		m.cs.PushState(m.vals.Unit())
	case *ir.Variable:
		var v state.State = m.vals.Null()
		if n.Initializer != nil {
			v = m.cs.PopState()
		}
		m.cs.AddVariable(n, v)
	case *ir.Block:
		if endsWithExpression(n.Statements) {
			m.cs.DropSubFrame()
		} else {
			m.cs.DropSubFrameSilently()
			m.cs.PushState(m.vals.Unit())
		}
	case *ir.Composite:
		if !endsWithExpression(n.Statements) {
			m.cs.PushState(m.vals.Unit())
		}
	case *ir.Function:
		// fell off the end of a body without a return
		m.leaveFrame(n)
		m.cs.PushState(m.vals.Unit())
	case *ir.Constructor:
		obj := m.cs.Variable(n.Parent.ThisReceiver).State
		m.leaveFrame(n)
		m.cs.PushState(obj)
	case *ir.Return:
		var v state.State = m.vals.Unit()
		if n.Value != nil {
			v = m.cs.PopState()
		}
		return m.unwindReturn(n, v)
	case *ir.Throw:
		return m.executeThrow(n)
	case *ir.Call:
		return m.executeCall(n)
	case *ir.ConstructorCall:
		return m.executeConstructorCall(n)
	case *ir.DelegatingConstructorCall:
		return m.executeDelegatingCall(n)
	case *ir.InstanceInitializerCall:
		m.cs.PushState(m.vals.Unit())
	case *ir.Field:
		return m.executeFieldInit(n)
	case *ir.GetField:
		return m.executeGetField(n)
	case *ir.SetField:
		return m.executeSetField(n)
	case *ir.GetObjectValue:
		return m.executeGetObject(n)
	case *ir.GetEnumValue:
		return m.executeGetEnum(n)
	case *ir.TypeOperatorCall:
		return m.executeTypeOperator(n)
	case *ir.Branch:
		ok, err := m.popBool()
		if err != nil {
			return err
		}
		if ok {
			m.cs.DropSubFrameSilently()
			m.cs.PushInstruction(stack.CompoundOf(n.Result))
		}
	case *ir.When:
		// no branch matched
		m.cs.DropSubFrameSilently()
		m.cs.PushState(m.vals.Unit())
	case ir.Loop:
		return m.executeLoop(n)
	case *ir.Break:
		return m.unwindJump(n, n.Loop)
	case *ir.Continue:
		return m.unwindJump(n, n.Loop)
	case *ir.Try:
		return m.executeTry(n)
	case *ir.StringConcatenation:
		return m.executeConcat(n)
	case *ir.Vararg:
		return m.executeVararg(n)
	case *ir.FunctionExpression:
		t := n.Type
		if t.IsZero() {
			t = m.b.Function.DefaultType()
		}
		m.cs.PushState(&state.ReflectiveFunction{Function: n.Function, Captured: m.cs.AllVariables(), Type: t})
	default:
		return m.fatal(ErrUnsupported, "cannot execute %s", typeName(e))
	}
	return nil
}

func endsWithExpression(stmts []ir.Element) bool {
	if len(stmts) == 0 {
		return false
	}
	_, ok := stmts[len(stmts)-1].(ir.Expression)
	return ok
}

func (m *machine) constState(c *ir.Const) (state.State, error) {
	switch c.Kind {
	case ir.ConstNull:
		return m.vals.Null(), nil
	case ir.ConstBoolean:
		if v, ok := c.Value.(bool); ok {
			return m.vals.Bool(v), nil
		}
	case ir.ConstString:
		if v, ok := c.Value.(string); ok {
			return m.vals.String(v), nil
		}
	case ir.ConstFloat:
		if v, ok := floatValue(c.Value); ok {
			return m.vals.Float(float32(v)), nil
		}
	case ir.ConstDouble:
		if v, ok := floatValue(c.Value); ok {
			return m.vals.Double(v), nil
		}
	default:
		v, ok := intValue(c.Value)
		if !ok {
			break
		}
		switch c.Kind {
		case ir.ConstChar:
			return m.vals.Char(state.Char(uint16(v))), nil
		case ir.ConstByte, ir.ConstUByte:
			return m.vals.Byte(int8(v)), nil
		case ir.ConstShort, ir.ConstUShort:
			return m.vals.Short(int16(v)), nil
		case ir.ConstInt, ir.ConstUInt:
			return m.vals.Int(int32(v)), nil
		case ir.ConstLong, ir.ConstULong:
			return m.vals.Long(v), nil
		}
	}
	return nil, m.fatal(ErrMalformed, "constant %v of kind %d", c.Value, c.Kind)
}

func intValue(v any) (int64, bool) {
	switch x := v.(type) {
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case state.Char:
		return int64(x), true
	}
	return 0, false
}

func floatValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if n, ok := intValue(v); ok {
		return float64(n), true
	}
	return 0, false
}

// executeFieldInit stores an initializer result into a backing field: a
// field of the object under construction, or a static field.
func (m *machine) executeFieldInit(f *ir.Field) error {
	v := m.cs.PopState()
	if f.Static || f.Parent == nil {
		m.env.statics[f] = v
		return nil
	}
	obj, ok := m.cs.Variable(f.Parent.ThisReceiver).State.(*state.Composite)
	if !ok {
		return m.fatal(ErrMalformed, "field %s initialized outside of a constructor", f.Name)
	}
	obj.SetField(f.Property, v)
	return nil
}

func (m *machine) receiverObject(s state.State) (*state.Composite, bool) {
	switch x := s.(type) {
	case *state.Composite:
		return x, true
	case *state.ExceptionState:
		return x.Instance, true
	}
	return nil, false
}

func (m *machine) executeGetField(n *ir.GetField) error {
	if n.Receiver == nil {
		v, ok := m.env.statics[n.Field]
		if !ok {
			return m.fatal(ErrMalformed, "top-level property %s is not initialized", n.Field.Name)
		}
		m.cs.PushState(v)
		return nil
	}
	recv := m.cs.PopState()
	if state.IsNull(recv) {
		return &builtins.HostError{Class: builtins.NullPointerException}
	}
	obj, ok := m.receiverObject(recv)
	if !ok {
		return m.fatal(ErrMalformed, "field %s read on %s", n.Field.Name, recv.Inspect())
	}
	v, ok := obj.Field(n.Field.Property)
	if !ok {
		return m.fatal(ErrMalformed, "field %s of %s is not initialized", n.Field.Name, obj.Class.FqName)
	}
	m.cs.PushState(v)
	return nil
}

func (m *machine) executeSetField(n *ir.SetField) error {
	v := m.cs.PopState()
	recv := m.cs.PopState()
	if state.IsNull(recv) {
		return &builtins.HostError{Class: builtins.NullPointerException}
	}
	obj, ok := m.receiverObject(recv)
	if !ok {
		return m.fatal(ErrMalformed, "field %s written on %s", n.Field.Name, recv.Inspect())
	}
	obj.SetField(n.Field.Property, v)
	m.cs.PushState(m.vals.Unit())
	return nil
}

// executeGetObject returns the singleton instance of an object class,
// creating it through its primary constructor on first use.
func (m *machine) executeGetObject(n *ir.GetObjectValue) error {
	if n.Class == m.b.Unit {
		m.cs.PushState(m.vals.Unit())
		return nil
	}
	if obj, ok := m.env.objects[n.Class]; ok {
		m.cs.PushState(obj)
		return nil
	}
	ctor := n.Class.PrimaryConstructor()
	if n.Class.External {
		if ctor == nil {
			return m.fatal(ErrMissingIntrinsic, "host object %s has no constructor", n.Class.FqName)
		}
		w, err := m.d.NewHostInstance(ctor, nil)
		if err != nil {
			return m.hostFailure(err, ErrMissingIntrinsic)
		}
		m.env.objects[n.Class] = w
		m.cs.PushState(w)
		return nil
	}
	obj := m.env.NewObject(n.Class)
	m.env.objects[n.Class] = obj
	if ctor == nil {
		m.cs.PushState(obj)
		return nil
	}
	if len(ctor.ValueParams) > 0 {
		return m.fatal(ErrMalformed, "object %s has constructor parameters", n.Class.FqName)
	}
	return m.construct(ctor, obj, nil)
}

// executeGetEnum returns the instance of an enum entry. Name and ordinal
// are set before the entry initializer runs.
func (m *machine) executeGetEnum(n *ir.GetEnumValue) error {
	if obj, ok := m.env.enums[n.Entry]; ok {
		m.cs.PushState(obj)
		return nil
	}
	parent := n.Entry.Parent
	if parent == nil {
		return m.fatal(ErrMalformed, "enum entry %s has no parent class", n.Entry.Name)
	}
	obj := m.env.NewObject(parent)
	m.env.enums[n.Entry] = obj
	obj.SetField(m.b.Enum.Property("name"), m.vals.String(n.Entry.Name))
	obj.SetField(m.b.Enum.Property("ordinal"), m.vals.Int(int32(n.Entry.Ordinal)))

	if init := n.Entry.Initializer; init != nil {
		obj.Class = init.Target.Parent
		m.prealloc[init] = obj
		m.cs.PushInstruction(stack.CompoundOf(init))
		return nil
	}
	ctor := parent.PrimaryConstructor()
	if ctor == nil {
		m.cs.PushState(obj)
		return nil
	}
	return m.construct(ctor, obj, make([]state.State, len(ctor.ValueParams)))
}

// resolveType substitutes a reified type argument bound in the current
// frame. erased is true for type parameters with no binding.
func (m *machine) resolveType(t ir.Type) (resolved ir.Type, erased bool) {
	tp := t.TypeParameter()
	if tp == nil {
		return t, false
	}
	v := m.cs.LookupVariable(tp)
	if v == nil {
		return t, true
	}
	rt, ok := v.State.(*state.ReflectiveType)
	if !ok {
		return t, true
	}
	resolved = rt.Type
	if t.Nullable {
		resolved = resolved.MakeNullable()
	}
	return resolved, false
}

func (m *machine) executeTypeOperator(n *ir.TypeOperatorCall) error {
	v := m.cs.PopState()
	t, erased := m.resolveType(n.TypeOperand)
	matches := erased || state.IsSubtypeOf(v, t)

	switch n.Operator {
	case ir.OpImplicitCoercionToUnit:
		m.cs.PushState(m.vals.Unit())
	case ir.OpImplicitIntegerCoercion:
		if c := t.Class(); c != nil {
			if r, ok := m.d.Coerce(v, c.Name); ok {
				v = r
			}
		}
		m.cs.PushState(v)
	case ir.OpImplicitNotNull:
		if state.IsNull(v) {
			return &builtins.HostError{Class: builtins.NullPointerException}
		}
		m.cs.PushState(v)
	case ir.OpCast, ir.OpImplicitCast:
		if !matches {
			return m.castFailure(v, t)
		}
		m.cs.PushState(v)
	case ir.OpSafeCast:
		if !matches {
			v = m.vals.Null()
		}
		m.cs.PushState(v)
	case ir.OpInstanceOf:
		m.cs.PushState(m.vals.Bool(matches))
	case ir.OpNotInstanceOf:
		m.cs.PushState(m.vals.Bool(!matches))
	case ir.OpSamConversion, ir.OpReinterpretCast:
		m.cs.PushState(v)
	default:
		return m.fatal(ErrUnsupported, "type operator %s", n.Operator)
	}
	return nil
}

func (m *machine) castFailure(v state.State, t ir.Type) error {
	target := t.String()
	if c := t.Class(); c != nil {
		target = c.FqName
	}
	if state.IsNull(v) {
		return &builtins.HostError{
			Class:      builtins.NullPointerException,
			Message:    "null cannot be cast to non-null type " + target,
			HasMessage: true,
		}
	}
	from := v.RuntimeType().String()
	if c := state.ClassOf(v); c != nil {
		from = c.FqName
	}
	return &builtins.HostError{
		Class:      builtins.ClassCastException,
		Message:    fmt.Sprintf("%s cannot be cast to %s", from, target),
		HasMessage: true,
	}
}

func (m *machine) executeLoop(l ir.Loop) error {
	ok, err := m.popBool()
	if err != nil {
		return err
	}
	if !ok {
		m.cs.DropSubFrameSilently()
		m.cs.PushState(m.vals.Unit())
		return nil
	}
	sf := m.cs.Current()
	switch loop := l.(type) {
	case *ir.DoWhileLoop:
		sf.Reset(doWhileIteration(loop)...)
	default:
		if l.LoopBody() == nil {
			sf.Reset(stack.CompoundOf(l.LoopCondition()), stack.SimpleOf(l))
			break
		}
		sf.Reset(stack.CompoundOf(l.LoopBody()), stack.CompoundOf(l.LoopCondition()), stack.SimpleOf(l))
	}
	return nil
}

func (m *machine) executeTry(n *ir.Try) error {
	sf := m.cs.Current()
	switch sf.Phase {
	case stack.PhaseTry, stack.PhaseCatch:
		v := m.cs.PopState()
		m.cs.DropSubFrameSilently()
		return m.enterFinally(n, stack.Completion{Kind: stack.CompleteNormal, Value: v})
	case stack.PhaseFinally:
		if sf.Completion == nil {
			return m.fatal(ErrMalformed, "finally block without a pending completion")
		}
		c := *sf.Completion
		m.cs.DropSubFrameSilently()
		return m.resume(c)
	}
	return m.fatal(ErrMalformed, "try instruction in a plain scope")
}

func (m *machine) executeConcat(n *ir.StringConcatenation) error {
	parts := m.cs.PopStates(len(n.Arguments))
	var sb strings.Builder
	for _, p := range parts {
		s, err := m.d.Render(p)
		if err != nil {
			return err
		}
		sb.WriteString(s)
	}
	m.cs.PushState(m.vals.String(sb.String()))
	return nil
}

func (m *machine) executeVararg(n *ir.Vararg) error {
	vals := m.cs.PopStates(len(n.Elements))
	out := make([]state.State, 0, len(vals))
	for i, el := range n.Elements {
		if _, ok := el.(*ir.SpreadElement); !ok {
			out = append(out, vals[i])
			continue
		}
		arr, ok := arrayOf(vals[i])
		if !ok {
			return m.fatal(ErrMalformed, "spread of non-array %s", vals[i].Inspect())
		}
		out = append(out, arr.Elements...)
	}
	m.cs.PushState(m.vals.Array(n.ElementType, out))
	return nil
}

func arrayOf(s state.State) (*state.ArrayValue, bool) {
	p, ok := s.(*state.Primitive)
	if !ok {
		return nil, false
	}
	arr, ok := p.Value.(*state.ArrayValue)
	return arr, ok
}
