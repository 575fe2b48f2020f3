package interpreter

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/stack"
	"github.com/funvibe/consteval/internal/state"
)

// environment is owned by one top-level evaluation and shared with every
// nested evaluation it spawns. Nested evaluations get their own call stack
// and share only the instance caches and the instruction counter.
type environment struct {
	in  *Interpreter
	log zerolog.Logger

	session uuid.UUID
	nextID  uint64

	// instance caches
	objects map[*ir.Class]state.State
	enums   map[*ir.EnumEntry]*state.Composite
	statics map[*ir.Field]state.State

	instructions int
	timedOut     bool
	timeoutTrace []string
	depth        int
}

func newEnvironment(in *Interpreter) *environment {
	session := uuid.New()
	return &environment{
		in:      in,
		log:     in.log.With().Str("session", session.String()).Logger(),
		session: session,
		objects: make(map[*ir.Class]state.State),
		enums:   make(map[*ir.EnumEntry]*state.Composite),
		statics: make(map[*ir.Field]state.State),
	}
}

func (e *environment) newMachine() *machine {
	return &machine{
		env:      e,
		b:        e.in.b,
		d:        e.in.d,
		vals:     state.Values{B: e.in.b},
		cs:       stack.New(),
		log:      e.log,
		prealloc: make(map[*ir.ConstructorCall]*state.Composite),
	}
}

// NewObject allocates an interpreted object with a fresh identity.
func (e *environment) NewObject(c *ir.Class) *state.Composite {
	e.nextID++
	return state.NewComposite(c, e.nextID)
}

// nested runs a machine prepared by setup on a fresh call stack.
func (e *environment) nested(setup func(m *machine)) (state.State, error) {
	if e.depth >= e.in.cfg.MaxProxyDepth {
		return nil, &InterpreterError{Err: ErrProxyDepth, Detail: fmt.Sprintf("limit is %d", e.in.cfg.MaxProxyDepth)}
	}
	e.depth++
	defer func() { e.depth-- }()

	m := e.newMachine()
	setup(m)
	return m.run()
}

// evaluate interprets expr on a fresh call stack.
func (e *environment) evaluate(expr ir.Expression, file *ir.File) (state.State, error) {
	return e.nested(func(m *machine) {
		m.cs.NewFrame(expr, file, stack.CompoundOf(expr))
	})
}

// placeholder stands for arguments that are already on the operand stack.
var placeholder ir.Expression = &ir.Const{Kind: ir.ConstNull}

// callMethod calls fn with virtual dispatch on recv. A nil recv calls a
// static function.
func (e *environment) callMethod(fn *ir.Function, recv state.State, args ...state.State) (state.State, error) {
	call := &ir.Call{ExprBase: ir.ExprBase{Type: fn.ReturnType}, Target: fn, Args: make([]ir.Expression, len(args))}
	for i := range call.Args {
		call.Args[i] = placeholder
	}
	if recv != nil {
		call.DispatchReceiver = placeholder
	}
	return e.nested(func(m *machine) {
		m.cs.NewFrame(call, nil)
		m.cs.NewSubFrame(call, stack.SimpleOf(call))
		if recv != nil {
			m.cs.PushState(recv)
		}
		for _, a := range args {
			m.cs.PushState(a)
		}
	})
}

// evalDefault evaluates the default value of a parameter of decl. The
// receivers and the parameters before it are bound under decl's symbols.
func (e *environment) evalDefault(decl ir.Routine, def ir.Expression, recv, ext state.State, args []state.State) (state.State, error) {
	return e.nested(func(m *machine) {
		m.cs.NewFrame(decl, routineFile(decl), stack.CompoundOf(def))
		if fn, ok := decl.(*ir.Function); ok {
			if recv != nil && fn.DispatchReceiver != nil {
				m.cs.AddVariable(fn.DispatchReceiver, recv)
			}
			if ext != nil && fn.ExtensionReceiver != nil {
				m.cs.AddVariable(fn.ExtensionReceiver, ext)
			}
		}
		for i, p := range decl.Params() {
			if i >= len(args) || args[i] == nil {
				break
			}
			m.cs.AddVariable(p, args[i])
		}
	})
}

func (e *environment) anyMember(name string) *ir.Function {
	b := e.in.b
	switch name {
	case "toString":
		return b.Member(b.Any, "toString", b.String.DefaultType())
	case "equals":
		return b.Member(b.Any, "equals", b.Boolean.DefaultType(), b.AnyNType())
	}
	return b.Member(b.Any, "hashCode", b.Int.DefaultType())
}

// ToString calls toString on an interpreted object, honouring overrides.
func (e *environment) ToString(s state.State) (string, error) {
	res, err := e.callMethod(e.anyMember("toString"), s)
	if err != nil {
		return "", err
	}
	if p, ok := res.(*state.Primitive); ok {
		if str, ok := p.Value.(string); ok {
			return str, nil
		}
	}
	return "", &InterpreterError{Err: ErrMalformed, Detail: "toString returned " + res.Inspect()}
}

// Equals calls equals on an interpreted object, honouring overrides.
func (e *environment) Equals(a, b state.State) (bool, error) {
	res, err := e.callMethod(e.anyMember("equals"), a, b)
	if err != nil {
		return false, err
	}
	if p, ok := res.(*state.Primitive); ok {
		if eq, ok := p.Value.(bool); ok {
			return eq, nil
		}
	}
	return false, &InterpreterError{Err: ErrMalformed, Detail: "equals returned " + res.Inspect()}
}

// HashCode calls hashCode on an interpreted object, honouring overrides.
func (e *environment) HashCode(s state.State) (int32, error) {
	res, err := e.callMethod(e.anyMember("hashCode"), s)
	if err != nil {
		return 0, err
	}
	if p, ok := res.(*state.Primitive); ok {
		if h, ok := p.Value.(int32); ok {
			return h, nil
		}
	}
	return 0, &InterpreterError{Err: ErrMalformed, Detail: "hashCode returned " + res.Inspect()}
}

func routineFile(r ir.Routine) *ir.File {
	switch x := r.(type) {
	case *ir.Function:
		return x.File
	case *ir.Constructor:
		if x.Parent != nil {
			return x.Parent.File
		}
	}
	return nil
}
