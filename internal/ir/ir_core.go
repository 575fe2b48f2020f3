package ir

// Element is the base interface for all IR nodes.
// The set of implementations is closed: every node kind lives in this package.
type Element interface {
	StartOffset() int
	element()
}

// Expression is an Element that produces exactly one value when evaluated.
type Expression interface {
	Element
	ExpressionType() Type
	expressionNode()
}

// Declaration is an Element that may appear as a member of a class or a file.
type Declaration interface {
	Element
	declarationNode()
}

// Symbol is an Element that can be bound to a value in a scope
// (value parameters, local variables, reified type parameters).
type Symbol interface {
	Element
	SymbolName() string
}

// Routine is a callable declaration: a function or a constructor.
type Routine interface {
	Declaration
	Params() []*ValueParameter
	RoutineBody() *Body
	OwnerClass() *Class
	FullName() string
	Category() IntrinsicCategory
}

// Pos is the start offset of a node inside its File.
type Pos struct {
	Offset int
}

func (p Pos) StartOffset() int { return p.Offset }

// ExprBase is embedded in every expression node.
type ExprBase struct {
	Pos
	Type Type
}

func (e ExprBase) ExpressionType() Type { return e.Type }

// IntrinsicCategory tags routines whose behaviour is supplied by the host
// instead of an interpretable body.
type IntrinsicCategory int

const (
	IntrinsicNone IntrinsicCategory = iota
	IntrinsicHost
	IntrinsicArray
	IntrinsicEnum
	IntrinsicBoxed
	IntrinsicAssert
	IntrinsicSourceLocation
)

var intrinsicCategoryNames = [...]string{
	IntrinsicNone:           "none",
	IntrinsicHost:           "host",
	IntrinsicArray:          "array",
	IntrinsicEnum:           "enum",
	IntrinsicBoxed:          "boxed",
	IntrinsicAssert:         "assert",
	IntrinsicSourceLocation: "sourceLocation",
}

func (c IntrinsicCategory) String() string {
	if int(c) < len(intrinsicCategoryNames) {
		return intrinsicCategoryNames[c]
	}
	return "unknown"
}

// ParseIntrinsicCategory is the inverse of IntrinsicCategory.String.
func ParseIntrinsicCategory(s string) (IntrinsicCategory, bool) {
	for i, name := range intrinsicCategoryNames {
		if name == s {
			return IntrinsicCategory(i), true
		}
	}
	return IntrinsicNone, false
}
