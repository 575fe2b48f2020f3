package interpreter

import (
	"github.com/rs/zerolog"

	"github.com/funvibe/consteval/internal/builtins"
	"github.com/funvibe/consteval/internal/config"
	"github.com/funvibe/consteval/internal/stack"
)

type Option func(*Interpreter)

// WithConfig sets the instruction budget and nesting limits.
func WithConfig(cfg *config.Config) Option {
	return func(in *Interpreter) {
		if cfg != nil {
			in.cfg = cfg
		}
	}
}

// WithLogger routes driver logs to log. The default logger discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(in *Interpreter) { in.log = log }
}

// WithHostTable adds host routines keyed by fully qualified name. They
// serve functions of the host intrinsic category.
func WithHostTable(table map[string]builtins.HostFunc) Option {
	return func(in *Interpreter) {
		for name, fn := range table {
			in.d.RegisterHostRoutine(name, fn)
		}
	}
}

// withInstructionHook observes every instruction right after it is popped.
func withInstructionHook(hook func(cs *stack.CallStack, instr stack.Instruction)) Option {
	return func(in *Interpreter) { in.hook = hook }
}
