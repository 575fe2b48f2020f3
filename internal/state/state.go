package state

import (
	"github.com/funvibe/consteval/internal/ir"
)

type StateKind string

const (
	PRIMITIVE_STATE = "PRIMITIVE"
	COMPOSITE_STATE = "COMPOSITE"
	WRAPPED_STATE   = "WRAPPED"
	EXCEPTION_STATE = "EXCEPTION"
	FUNCTION_STATE  = "FUNCTION"
	TYPE_STATE      = "TYPE"
)

// State is a value produced or consumed by the interpreter.
type State interface {
	Kind() StateKind
	Inspect() string
	RuntimeType() ir.Type
}

// Variable binds a symbol to a state inside a scope.
type Variable struct {
	Symbol ir.Symbol
	State  State
}

// IsNull reports whether s is the null primitive.
func IsNull(s State) bool {
	p, ok := s.(*Primitive)
	return ok && p.Value == nil
}

// ClassOf returns the runtime class of s, or nil for null.
func ClassOf(s State) *ir.Class {
	if s == nil {
		return nil
	}
	return s.RuntimeType().Class()
}

// IsSubtypeOf checks the runtime type of s against t.
// Null matches only nullable types.
func IsSubtypeOf(s State, t ir.Type) bool {
	if IsNull(s) {
		return t.Nullable || t.TypeParameter() != nil
	}
	return ir.IsSubtypeOf(s.RuntimeType().MakeNotNull(), t)
}
