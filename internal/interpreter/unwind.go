package interpreter

import (
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/stack"
	"github.com/funvibe/consteval/internal/state"
)

func (m *machine) executeThrow(n *ir.Throw) error {
	v := m.cs.PopState()
	switch x := v.(type) {
	case *state.ExceptionState:
		return m.throw(x)
	case *state.Composite:
		if !m.b.IsThrowable(x.Class) {
			return m.fatal(ErrMalformed, "throw of non-throwable %s", x.Class.FqName)
		}
		return m.throw(state.NewException(x, m.cs.StackTrace()))
	}
	if state.IsNull(v) {
		return m.castFailure(v, m.b.Throwable.DefaultType())
	}
	return m.fatal(ErrMalformed, "throw of %s", v.Inspect())
}

// finallyPending reports whether sf is the try or catch part of a try
// construct with a finally block.
func finallyPending(sf *stack.SubFrame) (*ir.Try, bool) {
	t, ok := sf.Owner().(*ir.Try)
	if !ok || t.Finally == nil {
		return nil, false
	}
	return t, sf.Phase == stack.PhaseTry || sf.Phase == stack.PhaseCatch
}

// throw unwinds to the innermost matching catch. Finally blocks met on
// the way run first; they resume the unwinding when they complete. An
// exception that reaches the outermost frame ends the evaluation.
func (m *machine) throw(ex *state.ExceptionState) error {
	m.log.Debug().Str("exception", ex.Inspect()).Int("depth", m.cs.Depth()).Msg("throw")
	for {
		frame := m.cs.CurrentFrame()
		if m.cs.Depth() == 1 && frame.SubFrameCount() == 1 {
			m.cs.ClearInstructions()
			m.cs.PushState(ex)
			m.uncaught = true
			return nil
		}
		sf := m.cs.Current()
		if t, ok := sf.Owner().(*ir.Try); ok {
			switch sf.Phase {
			case stack.PhaseTry:
				m.cs.DropSubFrameSilently()
				for _, c := range t.Catches {
					if state.IsSubtypeOf(ex, c.Parameter.Type) {
						catch := m.cs.NewSubFrame(t, stack.CompoundOf(c.Result), stack.SimpleOf(t))
						catch.Phase = stack.PhaseCatch
						m.cs.AddVariable(c.Parameter, ex)
						return nil
					}
				}
				return m.enterFinally(t, stack.Completion{Kind: stack.CompleteThrow, Value: ex})
			case stack.PhaseCatch:
				m.cs.DropSubFrameSilently()
				return m.enterFinally(t, stack.Completion{Kind: stack.CompleteThrow, Value: ex})
			}
		}
		if frame.SubFrameCount() == 1 {
			m.cs.DropFrame()
		} else {
			m.cs.DropSubFrameSilently()
		}
	}
}

// enterFinally runs the finally block of t, parking c until it completes.
func (m *machine) enterFinally(t *ir.Try, c stack.Completion) error {
	if t.Finally == nil {
		return m.resume(c)
	}
	sf := m.cs.NewSubFrame(t, stack.CompoundOf(t.Finally), stack.SimpleOf(t))
	sf.Phase = stack.PhaseFinally
	sf.Completion = &c
	return nil
}

func (m *machine) resume(c stack.Completion) error {
	switch c.Kind {
	case stack.CompleteNormal:
		m.cs.PushState(c.Value)
		return nil
	case stack.CompleteThrow:
		return m.throw(c.Value.(*state.ExceptionState))
	case stack.CompleteReturn:
		return m.unwindReturn(c.Jump.(*ir.Return), c.Value)
	case stack.CompleteBreak:
		return m.unwindJump(c.Jump, c.Jump.(*ir.Break).Loop)
	case stack.CompleteContinue:
		return m.unwindJump(c.Jump, c.Jump.(*ir.Continue).Loop)
	}
	return m.fatal(ErrMalformed, "unknown completion %d", c.Kind)
}

// unwindReturn leaves every scope up to the frame of the returned-from
// routine and hands v to its caller.
func (m *machine) unwindReturn(ret *ir.Return, v state.State) error {
	for {
		frame := m.cs.CurrentFrame()
		if frame.SubFrameCount() == 1 {
			owner := frame.Owner()
			if r, ok := owner.(ir.Routine); !ok || r != ret.Target {
				return m.fatal(ErrMalformed, "return from %s inside %s", typeName(ret.Target), typeName(owner))
			}
			if ctor, ok := ret.Target.(*ir.Constructor); ok {
				v = m.cs.Variable(ctor.Parent.ThisReceiver).State
			}
			m.leaveFrame(owner)
			m.cs.PushState(v)
			return nil
		}
		if t, ok := finallyPending(m.cs.Current()); ok {
			m.cs.DropSubFrameSilently()
			return m.enterFinally(t, stack.Completion{Kind: stack.CompleteReturn, Value: v, Jump: ret})
		}
		m.cs.DropSubFrameSilently()
	}
}

// unwindJump leaves every scope nested in loop, then ends it (break) or
// starts its next iteration (continue).
func (m *machine) unwindJump(jump ir.Element, loop ir.Loop) error {
	_, isBreak := jump.(*ir.Break)
	for {
		sf := m.cs.Current()
		if sf.Owner() == ir.Element(loop) {
			if isBreak {
				m.cs.DropSubFrameSilently()
				m.cs.PushState(m.vals.Unit())
			} else {
				sf.Reseed(stack.CompoundOf(loop.LoopCondition()), stack.SimpleOf(loop))
			}
			return nil
		}
		if m.cs.CurrentFrame().SubFrameCount() == 1 {
			return m.fatal(ErrMalformed, "%s outside of its loop", typeName(jump))
		}
		if t, ok := finallyPending(sf); ok {
			kind := stack.CompleteContinue
			if isBreak {
				kind = stack.CompleteBreak
			}
			m.cs.DropSubFrameSilently()
			return m.enterFinally(t, stack.Completion{Kind: kind, Jump: jump})
		}
		m.cs.DropSubFrameSilently()
	}
}
