package state

import (
	"strings"

	"github.com/funvibe/consteval/internal/ir"
)

// ExceptionState is a thrown value in flight. It short-circuits evaluation
// until a matching catch is found.
type ExceptionState struct {
	Instance   *Composite
	StackTrace []string
}

func NewException(instance *Composite, stackTrace []string) *ExceptionState {
	return &ExceptionState{Instance: instance, StackTrace: stackTrace}
}

func (e *ExceptionState) Kind() StateKind      { return EXCEPTION_STATE }
func (e *ExceptionState) RuntimeType() ir.Type { return e.Instance.Class.DefaultType() }
func (e *ExceptionState) Class() *ir.Class     { return e.Instance.Class }

// Message returns the message field, if it is set to a string.
func (e *ExceptionState) Message() (string, bool) {
	s, ok := e.Instance.FieldByName("message")
	if !ok {
		return "", false
	}
	p, ok := s.(*Primitive)
	if !ok {
		return "", false
	}
	msg, ok := p.Value.(string)
	return msg, ok
}

// Inspect renders like Throwable.toString: "fqName: message".
func (e *ExceptionState) Inspect() string {
	name := e.Instance.Class.FqName
	if msg, ok := e.Message(); ok {
		return name + ": " + msg
	}
	return name
}

// Format renders the exception followed by its stack trace, one frame per line.
func (e *ExceptionState) Format() string {
	var sb strings.Builder
	sb.WriteString("Exception ")
	sb.WriteString(e.Inspect())
	for _, frame := range e.StackTrace {
		sb.WriteString("\n\t")
		sb.WriteString(frame)
	}
	return sb.String()
}
