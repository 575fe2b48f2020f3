package builtins

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrNoBuiltin is returned when no table entry matches a routine.
var ErrNoBuiltin = errors.New("no builtin implementation")

// Exception class names raised by host routines.
const (
	ArithmeticException            = "kotlin.ArithmeticException"
	IllegalArgumentException       = "kotlin.IllegalArgumentException"
	IllegalStateException          = "kotlin.IllegalStateException"
	IndexOutOfBoundsException      = "kotlin.IndexOutOfBoundsException"
	ArrayIndexOutOfBoundsException = "kotlin.ArrayIndexOutOfBoundsException"
	NoSuchElementException         = "kotlin.NoSuchElementException"
	NullPointerException           = "kotlin.NullPointerException"
	ClassCastException             = "kotlin.ClassCastException"
	NoWhenBranchMatchedException   = "kotlin.NoWhenBranchMatchedException"
	AssertionError                 = "kotlin.AssertionError"
	RuntimeException               = "kotlin.RuntimeException"
)

// HostError is a failure raised by a builtin or host routine. The
// interpreter lifts it into an interpreted exception of class Class.
type HostError struct {
	Class   string
	Message string
	// HasMessage is false for exceptions created without a message.
	HasMessage bool
}

func (e *HostError) Error() string {
	if !e.HasMessage {
		return e.Class
	}
	return e.Class + ": " + e.Message
}

func newHostError(class, format string, args ...any) *HostError {
	return &HostError{Class: class, Message: fmt.Sprintf(format, args...), HasMessage: true}
}

// fromPanic converts a value recovered from a panicking host routine.
func fromPanic(r any) error {
	switch x := r.(type) {
	case *HostError:
		return x
	case runtime.Error:
		if strings.Contains(x.Error(), "index out of range") {
			return newHostError(IndexOutOfBoundsException, "%s", x.Error())
		}
		return newHostError(RuntimeException, "%s", x.Error())
	case error:
		return newHostError(RuntimeException, "%s", x.Error())
	}
	return newHostError(RuntimeException, "%v", r)
}
