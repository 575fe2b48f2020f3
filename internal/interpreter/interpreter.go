package interpreter

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/funvibe/consteval/internal/builtins"
	"github.com/funvibe/consteval/internal/config"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/stack"
	"github.com/funvibe/consteval/internal/state"
)

// Interpreter evaluates IR expressions at compile time on an explicit call
// stack. An Interpreter is not safe for concurrent use.
type Interpreter struct {
	b    *ir.BuiltIns
	d    *builtins.Dispatcher
	cfg  *config.Config
	log  zerolog.Logger
	hook func(cs *stack.CallStack, instr stack.Instruction)
}

// Result is the outcome of a successful evaluation.
type Result struct {
	Value state.State
	// Expr re-expresses Value as IR (Const, ConstantObject, ConstantArray,
	// GetObjectValue or GetEnumValue). It is nil for values that have no
	// constant form, such as lambdas and host objects.
	Expr ir.Expression
	// Text renders Value the way toString does, overrides included.
	Text         string
	Instructions int
	SessionID    uuid.UUID
}

func New(b *ir.BuiltIns, opts ...Option) *Interpreter {
	in := &Interpreter{
		b:   b,
		d:   builtins.New(b),
		cfg: config.Default(),
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func (in *Interpreter) BuiltIns() *ir.BuiltIns           { return in.b }
func (in *Interpreter) Dispatcher() *builtins.Dispatcher { return in.d }

// Interpret evaluates expr. file is used for stack traces only and may be nil.
//
// Errors are *InterpreterError for fatal failures, *TimeoutError when the
// instruction budget is exhausted and *UncaughtException when the program
// throws past the outermost frame.
func (in *Interpreter) Interpret(expr ir.Expression, file *ir.File) (*Result, error) {
	env := newEnvironment(in)
	in.d.SetProxy(env)
	defer in.d.SetProxy(nil)

	env.log.Debug().Str("expr", typeName(expr)).Msg("evaluation started")

	m := env.newMachine()
	m.top = true
	m.cs.NewFrame(expr, file, stack.CompoundOf(expr))
	v, err := m.run()
	if err != nil {
		env.log.Warn().Err(err).Int("instructions", env.instructions).Msg("evaluation aborted")
		return nil, err
	}
	instructions := env.instructions
	text, err := in.d.Render(v)
	if err != nil {
		env.log.Debug().Err(err).Msg("toString failed, using the default rendering")
		text = v.Inspect()
	}
	env.log.Debug().Int("instructions", instructions).Str("value", text).Msg("evaluation finished")
	return &Result{
		Value:        v,
		Expr:         in.Express(v),
		Text:         text,
		Instructions: instructions,
		SessionID:    env.session,
	}, nil
}
