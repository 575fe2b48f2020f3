package interpreter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/consteval/internal/state"
)

var ErrUnsupported = errors.New("unsupported element")
var ErrMissingIntrinsic = errors.New("missing intrinsic implementation")
var ErrMalformed = errors.New("malformed IR")
var ErrProxyDepth = errors.New("nested evaluation too deep")
var ErrTimeout = errors.New("instruction budget exceeded")

// InterpreterError is a fatal failure. It aborts the whole evaluation.
type InterpreterError struct {
	Err        error
	Detail     string
	StackTrace []string
}

func (e *InterpreterError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg + formatTrace(e.StackTrace)
}

func (e *InterpreterError) Unwrap() error { return e.Err }

// TimeoutError reports an evaluation that ran out of its instruction budget.
type TimeoutError struct {
	Instructions int
	StackTrace   []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s after %d instructions%s", ErrTimeout, e.Instructions, formatTrace(e.StackTrace))
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// UncaughtException is an interpreted exception that reached the outermost frame.
type UncaughtException struct {
	Exception *state.ExceptionState
}

func (e *UncaughtException) Error() string { return e.Exception.Format() }

func formatTrace(trace []string) string {
	if len(trace) == 0 {
		return ""
	}
	return "\n\tat " + strings.Join(trace, "\n\tat ")
}

func (m *machine) fatal(err error, format string, args ...any) *InterpreterError {
	return &InterpreterError{Err: err, Detail: fmt.Sprintf(format, args...), StackTrace: m.cs.StackTrace()}
}
