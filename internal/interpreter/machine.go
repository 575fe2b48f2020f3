package interpreter

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/funvibe/consteval/internal/builtins"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/stack"
	"github.com/funvibe/consteval/internal/state"
)

// machine is one driver invocation: a call stack and the loop that drains it.
type machine struct {
	env  *environment
	b    *ir.BuiltIns
	d    *builtins.Dispatcher
	vals state.Values
	cs   *stack.CallStack
	log  zerolog.Logger

	// prealloc holds enum instances created before their initializer runs.
	prealloc map[*ir.ConstructorCall]*state.Composite

	top      bool
	uncaught bool
}

// run drives the call stack until the outermost frame holds the result.
func (m *machine) run() (res state.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*stack.Fault)
			if !ok {
				panic(r)
			}
			res, err = nil, &InterpreterError{Err: ErrMalformed, Detail: f.Error(), StackTrace: m.trace()}
		}
	}()

	cfg := m.env.in.cfg
	for !m.cs.Done() {
		if m.env.instructions >= cfg.MaxInstructions+cfg.TimeoutGrace {
			return nil, &TimeoutError{Instructions: m.env.instructions, StackTrace: m.cs.StackTrace()}
		}
		if m.env.instructions >= cfg.MaxInstructions && !m.env.timedOut {
			m.env.timedOut = true
			m.env.timeoutTrace = m.cs.StackTrace()
			m.log.Warn().Int("instructions", m.env.instructions).Msg("instruction budget exhausted")
			he := &builtins.HostError{
				Class:      m.b.InterpreterTimeOutError.FqName,
				Message:    fmt.Sprintf("Exceeded execution limit of %d instructions", cfg.MaxInstructions),
				HasMessage: true,
			}
			if err := m.throw(m.lift(he)); err != nil {
				return nil, err
			}
			continue
		}

		instr := m.cs.PopInstruction()
		m.env.instructions++
		if m.env.in.hook != nil {
			m.env.in.hook(m.cs, instr)
		}
		m.log.Trace().Stringer("instr", instr).Int("depth", m.cs.Depth()).Int("n", m.env.instructions).Msg("step")

		if err := m.step(instr); err != nil {
			if err = m.handle(err); err != nil {
				return nil, err
			}
		}
	}

	if m.top && m.env.timedOut {
		return nil, &TimeoutError{Instructions: m.env.instructions, StackTrace: m.env.timeoutTrace}
	}
	res = m.cs.PopState()
	if ex, ok := res.(*state.ExceptionState); ok && m.uncaught {
		return nil, &UncaughtException{Exception: ex}
	}
	return res, nil
}

func (m *machine) step(instr stack.Instruction) error {
	switch instr.Kind {
	case stack.Compound:
		return m.unfold(instr.Element)
	case stack.Simple:
		return m.execute(instr.Element)
	case stack.Intrinsic:
		r, ok := instr.Element.(ir.Routine)
		if !ok {
			return m.fatal(ErrMalformed, "intrinsic instruction over %s", typeName(instr.Element))
		}
		return m.executeIntrinsic(r)
	}
	return m.fatal(ErrMalformed, "instruction kind %s", instr.Kind)
}

// handle lifts recoverable failures into the interpreted exception channel.
// Host errors become exceptions of the named class; an exception that
// escaped a nested evaluation is rethrown here.
func (m *machine) handle(err error) error {
	var he *builtins.HostError
	if errors.As(err, &he) {
		return m.throw(m.lift(he))
	}
	var ue *UncaughtException
	if errors.As(err, &ue) {
		return m.throw(ue.Exception)
	}
	return err
}

// lift builds the exception object for a host failure without running its
// constructor.
func (m *machine) lift(he *builtins.HostError) *state.ExceptionState {
	c := m.b.Class(he.Class)
	if c == nil || !m.b.IsThrowable(c) {
		c = m.b.RuntimeException
	}
	obj := m.env.NewObject(c)
	var msg state.State = m.vals.Null()
	if he.HasMessage {
		msg = m.vals.String(he.Message)
	}
	obj.SetField(m.b.Throwable.Property("message"), msg)
	obj.SetField(m.b.Throwable.Property("cause"), m.vals.Null())
	return state.NewException(obj, m.cs.StackTrace())
}

func (m *machine) trace() []string {
	if m.cs.Depth() == 0 {
		return nil
	}
	return m.cs.StackTrace()
}

// leaveFrame ends the current routine activation. The outermost frame is
// kept alive as a stub so that it can hold the result.
func (m *machine) leaveFrame(owner ir.Element) {
	m.log.Debug().Str("owner", typeName(owner)).Int("depth", m.cs.Depth()).Msg("leave")
	if m.cs.Depth() == 1 {
		m.cs.ResetToStub(owner)
		return
	}
	m.cs.DropFrame()
}

func (m *machine) popBool() (bool, error) {
	s := m.cs.PopState()
	if p, ok := s.(*state.Primitive); ok {
		if v, ok := p.Value.(bool); ok {
			return v, nil
		}
	}
	return false, m.fatal(ErrMalformed, "expected Boolean, got %s", s.Inspect())
}

func typeName(e ir.Element) string {
	switch x := e.(type) {
	case ir.Routine:
		return x.FullName()
	case nil:
		return "<nil>"
	}
	return fmt.Sprintf("%T", e)
}
