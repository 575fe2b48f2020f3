package state

import (
	"strings"

	"github.com/funvibe/consteval/internal/ir"
)

// ReflectiveFunction is a closure. Captured holds copies of the bindings
// that were visible when the function expression was evaluated.
type ReflectiveFunction struct {
	Function *ir.Function
	Captured []Variable
	Type     ir.Type
}

func (f *ReflectiveFunction) Kind() StateKind      { return FUNCTION_STATE }
func (f *ReflectiveFunction) RuntimeType() ir.Type { return f.Type }

func (f *ReflectiveFunction) Inspect() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range f.Function.ValueParams {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Type.String())
	}
	sb.WriteString(") -> ")
	sb.WriteString(f.Function.ReturnType.String())
	return sb.String()
}

// ReflectiveType is a type handle, bound to reified type parameters.
type ReflectiveType struct {
	Type ir.Type
	// Class is the class of the handle itself (kotlin.Any for now).
	Class *ir.Class
}

func (t *ReflectiveType) Kind() StateKind      { return TYPE_STATE }
func (t *ReflectiveType) RuntimeType() ir.Type { return t.Class.DefaultType() }
func (t *ReflectiveType) Inspect() string      { return "class " + t.Type.String() }
