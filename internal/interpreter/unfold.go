package interpreter

import (
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/stack"
)

// unfold expands a compound instruction into simpler ones. Every
// expression eventually pushes exactly one value onto the operand stack of
// the subframe it was unfolded in; variable declarations push nothing.
func (m *machine) unfold(e ir.Element) error {
	switch n := e.(type) {
	case *ir.Const:
		if n.IsUnsigned() {
			return m.unfoldUnsignedConst(n)
		}
		m.cs.PushInstruction(stack.SimpleOf(n))
	case *ir.GetValue, *ir.GetObjectValue, *ir.GetEnumValue, *ir.FunctionExpression, *ir.Break, *ir.Continue:
		m.cs.PushInstruction(stack.SimpleOf(n))
	case *ir.SetValue:
		m.cs.PushInstructions(stack.CompoundOf(n.Value), stack.SimpleOf(n))
	case *ir.Variable:
		if n.Initializer != nil {
			m.cs.PushInstructions(stack.CompoundOf(n.Initializer), stack.SimpleOf(n))
		} else {
			m.cs.PushInstruction(stack.SimpleOf(n))
		}
	case *ir.Block:
		m.cs.NewSubFrame(n, append(compounds(n.Statements), stack.SimpleOf(n))...)
	case *ir.Composite:
		m.cs.PushInstructions(append(compounds(n.Statements), stack.SimpleOf(n))...)
	case *ir.Body:
		m.cs.PushInstructions(compounds(n.Statements)...)
	case *ir.Return:
		if n.Value != nil {
			m.cs.PushInstructions(stack.CompoundOf(n.Value), stack.SimpleOf(n))
		} else {
			m.cs.PushInstruction(stack.SimpleOf(n))
		}
	case *ir.Throw:
		m.cs.PushInstructions(stack.CompoundOf(n.Value), stack.SimpleOf(n))
	case *ir.Call:
		return m.unfoldCall(n)
	case *ir.ConstructorCall:
		m.stage(n, nil, n.Args)
	case *ir.DelegatingConstructorCall:
		m.stage(n, nil, n.Args)
	case *ir.InstanceInitializerCall:
		m.unfoldInstanceInitializer(n)
	case *ir.GetField:
		return m.unfoldGetField(n)
	case *ir.SetField:
		if n.Receiver == nil {
			return m.fatal(ErrUnsupported, "assignment to top-level property %s", n.Field.Name)
		}
		m.cs.PushInstructions(stack.CompoundOf(n.Receiver), stack.CompoundOf(n.Value), stack.SimpleOf(n))
	case *ir.TypeOperatorCall:
		m.cs.PushInstructions(stack.CompoundOf(n.Argument), stack.SimpleOf(n))
	case *ir.When:
		instrs := make([]stack.Instruction, 0, 2*len(n.Branches)+1)
		for _, br := range n.Branches {
			instrs = append(instrs, stack.CompoundOf(br.Condition), stack.SimpleOf(br))
		}
		m.cs.NewSubFrame(n, append(instrs, stack.SimpleOf(n))...)
	case *ir.WhileLoop:
		m.cs.NewSubFrame(n, stack.CompoundOf(n.Condition), stack.SimpleOf(n))
	case *ir.DoWhileLoop:
		m.cs.NewSubFrame(n, doWhileIteration(n)...)
	case *ir.Try:
		sf := m.cs.NewSubFrame(n, stack.CompoundOf(n.Result), stack.SimpleOf(n))
		sf.Phase = stack.PhaseTry
	case *ir.StringConcatenation:
		m.cs.PushInstructions(append(compoundExprs(n.Arguments), stack.SimpleOf(n))...)
	case *ir.Vararg:
		instrs := make([]stack.Instruction, 0, len(n.Elements)+1)
		for _, el := range n.Elements {
			if spread, ok := el.(*ir.SpreadElement); ok {
				el = spread.Expression
			}
			instrs = append(instrs, stack.CompoundOf(el))
		}
		m.cs.PushInstructions(append(instrs, stack.SimpleOf(n))...)
	case *ir.SpreadElement:
		return m.fatal(ErrMalformed, "spread element outside of a vararg")
	case *ir.Function, *ir.Class:
		// local declarations run only when called or constructed
	case *ir.ConstantObject, *ir.ConstantArray:
		return m.fatal(ErrUnsupported, "%s is an output-only node", typeName(n))
	default:
		return m.fatal(ErrUnsupported, "cannot interpret %s", typeName(e))
	}
	return nil
}

func compounds(elems []ir.Element) []stack.Instruction {
	out := make([]stack.Instruction, len(elems), len(elems)+1)
	for i, e := range elems {
		out[i] = stack.CompoundOf(e)
	}
	return out
}

func compoundExprs(exprs []ir.Expression) []stack.Instruction {
	out := make([]stack.Instruction, len(exprs), len(exprs)+1)
	for i, e := range exprs {
		out[i] = stack.CompoundOf(e)
	}
	return out
}

// doWhileIteration is one pass of a do-while loop. A block body is inlined
// into the loop subframe so that the condition sees its variables.
func doWhileIteration(l *ir.DoWhileLoop) []stack.Instruction {
	var instrs []stack.Instruction
	if body, ok := l.Body.(*ir.Block); ok {
		instrs = compounds(body.Statements)
	} else if l.Body != nil {
		instrs = []stack.Instruction{stack.CompoundOf(l.Body)}
	}
	return append(instrs, stack.CompoundOf(l.Condition), stack.SimpleOf(l))
}

func (m *machine) unfoldUnsignedConst(c *ir.Const) error {
	var class *ir.Class
	var kind ir.ConstKind
	switch c.Kind {
	case ir.ConstUByte:
		class, kind = m.b.UByte, ir.ConstByte
	case ir.ConstUShort:
		class, kind = m.b.UShort, ir.ConstShort
	case ir.ConstUInt:
		class, kind = m.b.UInt, ir.ConstInt
	default:
		class, kind = m.b.ULong, ir.ConstLong
	}
	ctor := class.PrimaryConstructor()
	data := ctor.ValueParams[0].Type
	call := &ir.ConstructorCall{
		ExprBase: ir.ExprBase{Pos: c.Pos, Type: class.DefaultType()},
		Target:   ctor,
		Args:     []ir.Expression{&ir.Const{ExprBase: ir.ExprBase{Pos: c.Pos, Type: data}, Kind: kind, Value: c.Value}},
	}
	m.stage(call, nil, call.Args)
	return nil
}

// stage opens the subframe in which a call's receivers and explicit
// arguments are evaluated, left to right. Omitted arguments stay nil and
// are filled from defaults when the call executes.
func (m *machine) stage(owner ir.Expression, receivers []ir.Expression, args []ir.Expression) {
	instrs := make([]stack.Instruction, 0, len(receivers)+len(args)+1)
	for _, r := range receivers {
		if r != nil {
			instrs = append(instrs, stack.CompoundOf(r))
		}
	}
	for _, a := range args {
		if a != nil {
			instrs = append(instrs, stack.CompoundOf(a))
		}
	}
	m.cs.NewSubFrame(owner, append(instrs, stack.SimpleOf(owner))...)
}

func (m *machine) unfoldCall(call *ir.Call) error {
	if call.Target == nil {
		return m.fatal(ErrMalformed, "call without a target")
	}
	if len(call.Args) > len(call.Target.ValueParams) {
		return m.fatal(ErrMalformed, "%s takes %d arguments, got %d",
			call.Target.FullName(), len(call.Target.ValueParams), len(call.Args))
	}
	m.stage(call, []ir.Expression{call.DispatchReceiver, call.ExtensionReceiver}, call.Args)
	return nil
}

// unfoldInstanceInitializer schedules property initializers and init
// blocks of a class in declaration order.
func (m *machine) unfoldInstanceInitializer(n *ir.InstanceInitializerCall) {
	var instrs []stack.Instruction
	for _, decl := range n.Class.Declarations {
		switch d := decl.(type) {
		case *ir.Property:
			if f := d.BackingField; f != nil && f.Initializer != nil && !f.Static {
				instrs = append(instrs, stack.CompoundOf(f.Initializer), stack.SimpleOf(f))
			}
		case *ir.AnonymousInitializer:
			if !d.Static && d.Body != nil {
				instrs = append(instrs, stack.CompoundOf(d.Body))
			}
		}
	}
	m.cs.PushInstructions(append(instrs, stack.SimpleOf(n))...)
}

func (m *machine) unfoldGetField(n *ir.GetField) error {
	if n.Receiver != nil {
		m.cs.PushInstructions(stack.CompoundOf(n.Receiver), stack.SimpleOf(n))
		return nil
	}
	if _, ok := m.env.statics[n.Field]; ok {
		m.cs.PushInstruction(stack.SimpleOf(n))
		return nil
	}
	if n.Field.Initializer == nil {
		return m.fatal(ErrMalformed, "top-level property %s has no initializer", n.Field.Name)
	}
	m.cs.PushInstructions(stack.CompoundOf(n.Field.Initializer), stack.SimpleOf(n.Field), stack.SimpleOf(n))
	return nil
}
