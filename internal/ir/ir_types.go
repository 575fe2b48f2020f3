package ir

import "strings"

// Classifier is either a *Class or a *TypeParameter.
type Classifier interface {
	Element
	classifierName() string
}

// Type is a classifier reference with nullability and type arguments.
// The zero Type means "no type".
type Type struct {
	Classifier Classifier
	Nullable   bool
	Arguments  []Type
}

func (t Type) IsZero() bool { return t.Classifier == nil }

// Class returns the class of t, or nil for type parameters.
func (t Type) Class() *Class {
	c, _ := t.Classifier.(*Class)
	return c
}

// TypeParameter returns the type parameter of t, or nil for class types.
func (t Type) TypeParameter() *TypeParameter {
	tp, _ := t.Classifier.(*TypeParameter)
	return tp
}

func (t Type) MakeNullable() Type {
	t.Nullable = true
	return t
}

func (t Type) MakeNotNull() Type {
	t.Nullable = false
	return t
}

// SimpleName renders the classifier name and nullability, without arguments.
// Builtin operator keys are built from it.
func (t Type) SimpleName() string {
	if t.Classifier == nil {
		return "<none>"
	}
	name := t.Classifier.classifierName()
	if t.Nullable {
		return name + "?"
	}
	return name
}

func (t Type) String() string {
	if t.Classifier == nil {
		return "<none>"
	}
	var sb strings.Builder
	sb.WriteString(t.Classifier.classifierName())
	if len(t.Arguments) > 0 {
		sb.WriteByte('<')
		for i, a := range t.Arguments {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String())
		}
		sb.WriteByte('>')
	}
	if t.Nullable {
		sb.WriteByte('?')
	}
	return sb.String()
}

// IsSubclass reports whether sub equals sup or reaches it through supertypes.
// Every class is a subclass of a class named kotlin.Any.
func IsSubclass(sub, sup *Class) bool {
	if sub == nil || sup == nil {
		return false
	}
	if sub == sup || sup.FqName == AnyFqName {
		return true
	}
	if sub.FqName == NothingFqName {
		return true
	}
	seen := map[*Class]bool{}
	queue := []*Class{sub}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == sup {
			return true
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		queue = append(queue, c.Supertypes...)
	}
	return false
}

// IsSubtypeOf checks sub <: sup. Type parameters on either side are erased
// and match anything; type arguments are not compared.
func IsSubtypeOf(sub, sup Type) bool {
	if sup.TypeParameter() != nil || sub.TypeParameter() != nil {
		return true
	}
	subClass, supClass := sub.Class(), sup.Class()
	if supClass == nil {
		return true
	}
	if subClass == nil {
		return false
	}
	if sub.Nullable && !sup.Nullable {
		// only null itself has type Nothing?
		return false
	}
	return IsSubclass(subClass, supClass)
}

// AllSupertypes returns c and every transitive supertype, each once, in
// breadth-first order.
func AllSupertypes(c *Class) []*Class {
	var out []*Class
	seen := map[*Class]bool{}
	queue := []*Class{c}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, cur.Supertypes...)
	}
	return out
}
