package fixture

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/consteval/internal/ir"
)

type scope struct {
	parent  *scope
	symbols map[string]ir.Symbol
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, symbols: make(map[string]ir.Symbol)}
}

func (s *scope) bind(name string, sym ir.Symbol) { s.symbols[name] = sym }

func (s *scope) lookup(name string) ir.Symbol {
	for ; s != nil; s = s.parent {
		if sym, ok := s.symbols[name]; ok {
			return sym
		}
	}
	return nil
}

type loopLabel struct {
	label string
	loop  ir.Loop
}

// context is what a body can see: the routine that returns target, the
// class and receiver behind this, local names and enclosing loops.
type context struct {
	routine ir.Routine
	class   *ir.Class
	this    *ir.ValueParameter
	scope   *scope
	loops   []loopLabel
}

func newContext(routine ir.Routine, class *ir.Class, this *ir.ValueParameter) *context {
	return &context{routine: routine, class: class, this: this, scope: newScope(nil)}
}

// nested returns a copy of c with a child scope.
func (c *context) nested() *context {
	inner := *c
	inner.scope = newScope(c.scope)
	return &inner
}

func (c *context) withLoop(label string, l ir.Loop) *context {
	inner := c.nested()
	inner.loops = append(c.loops[:len(c.loops):len(c.loops)], loopLabel{label: label, loop: l})
	return inner
}

func (c *context) typeParam(name string) *ir.TypeParameter {
	if c == nil {
		return nil
	}
	if fn, ok := c.routine.(*ir.Function); ok {
		for _, tp := range fn.TypeParams {
			if tp.Name == name {
				return tp
			}
		}
	}
	return nil
}

func (d *decoder) class(name string) *ir.Class {
	if c, ok := d.classes[name]; ok {
		return c
	}
	return d.b.Class(name)
}

// typeParam parses "T" or "reified T".
func (d *decoder) typeParam(s string, n *yaml.Node) (*ir.TypeParameter, error) {
	fields := strings.Fields(s)
	switch {
	case len(fields) == 1:
		return &ir.TypeParameter{Name: fields[0]}, nil
	case len(fields) == 2 && fields[0] == "reified":
		return &ir.TypeParameter{Name: fields[1], Reified: true}, nil
	}
	return nil, d.errorf(n, ErrInvalid, "bad type parameter %q", s)
}

// typeOf parses a type such as Int, String?, Array<Int> or a type
// parameter of the enclosing function. An empty string is Unit.
func (d *decoder) typeOf(s string, n *yaml.Node, ctx *context) (ir.Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return d.b.Unit.DefaultType(), nil
	}
	nullable := strings.HasSuffix(s, "?")
	s = strings.TrimSuffix(s, "?")
	name, argText := s, ""
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if !strings.HasSuffix(s, ">") {
			return ir.Type{}, d.errorf(n, ErrInvalid, "bad type %q", s)
		}
		name, argText = s[:i], s[i+1:len(s)-1]
	}

	var t ir.Type
	if tp := ctx.typeParam(name); tp != nil {
		t = tp.DefaultType()
	} else {
		c := d.class(name)
		if c == nil {
			return ir.Type{}, d.errorf(n, ErrUnresolved, "type %s", name)
		}
		t = ir.Type{Classifier: c}
	}
	for _, a := range splitTypeArgs(argText) {
		at, err := d.typeOf(a, n, ctx)
		if err != nil {
			return ir.Type{}, err
		}
		t.Arguments = append(t.Arguments, at)
	}
	t.Nullable = nullable
	return t, nil
}

// splitTypeArgs splits "Int, Array<String>" at top-level commas.
func splitTypeArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// substitute replaces type parameters of params by the matching args.
func substitute(t ir.Type, params []*ir.TypeParameter, args []ir.Type) ir.Type {
	if tp := t.TypeParameter(); tp != nil {
		for i, p := range params {
			if p == tp && i < len(args) && !args[i].IsZero() {
				r := args[i]
				if t.Nullable {
					r = r.MakeNullable()
				}
				return r
			}
		}
		return t
	}
	if len(t.Arguments) == 0 {
		return t
	}
	out := t
	out.Arguments = make([]ir.Type, len(t.Arguments))
	for i, a := range t.Arguments {
		out.Arguments[i] = substitute(a, params, args)
	}
	return out
}

// builtinParams are the declared parameter types builtin members are
// keyed by. Most take the static argument types; a few take Any?.
func (d *decoder) builtinParams(name string, owner *ir.Class, args []ir.Type) []ir.Type {
	anyN := d.b.AnyNType()
	switch {
	case name == "equals" && len(args) == 1:
		return []ir.Type{anyN}
	case name == "plus" && owner == d.b.String:
		return []ir.Type{anyN}
	case name == "append" && owner == d.b.StringBuilder:
		return []ir.Type{anyN}
	case name == "set" && owner == d.b.Array && len(args) == 2:
		return []ir.Type{d.b.Int.DefaultType(), anyN}
	case name == "compareTo" && owner == d.b.Enum:
		return []ir.Type{d.b.Enum.DefaultType()}
	}
	out := make([]ir.Type, len(args))
	copy(out, args)
	return out
}

// operatorParams are the declared parameter types of a top-level
// builtin operator.
func (d *decoder) operatorParams(name string, args []ir.Type) []ir.Type {
	anyN := d.b.AnyNType()
	switch name {
	case "EQEQ", "EQEQEQ":
		return []ir.Type{anyN, anyN}
	case "CHECK_NOT_NULL":
		return []ir.Type{anyN}
	}
	out := make([]ir.Type, len(args))
	copy(out, args)
	return out
}

// builtinOwner is the class a builtin member of c is interned on: c
// itself for builtin classes, the nearest builtin ancestor for user ones.
func (d *decoder) builtinOwner(c *ir.Class) *ir.Class {
	for _, s := range ir.AllSupertypes(c) {
		if !d.user[s] && !s.IsInterface() {
			return s
		}
	}
	return d.b.Any
}
