package fixture

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/consteval/internal/ir"
)

// forms are the keys that name an expression. A mapping holds exactly one
// of them; the other keys are its operands.
var forms = map[string]bool{
	"int": true, "long": true, "byte": true, "short": true, "float": true, "double": true,
	"string": true, "bool": true, "char": true, "null": true, "uint": true, "ulong": true,
	"get": true, "set": true, "var": true, "val": true, "this": true,
	"call": true, "invoke": true, "new": true, "field": true, "setfield": true,
	"if": true, "when": true, "while": true, "dowhile": true, "break": true, "continue": true,
	"return": true, "block": true, "try": true, "throw": true, "concat": true,
	"is": true, "notis": true, "as": true, "safeas": true, "notnull": true,
	"lambda": true, "vararg": true, "spread": true, "object": true, "enum": true,
}

type mapping struct {
	keys []string
	vals map[string]*yaml.Node
}

func (d *decoder) mapping(n *yaml.Node) (*mapping, error) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, ErrInvalid, "expected a mapping, found %s", n.ShortTag())
	}
	m := &mapping{vals: make(map[string]*yaml.Node, len(n.Content)/2)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i].Value, n.Content[i+1]
		if v.Kind == yaml.AliasNode {
			v = v.Alias
		}
		m.keys = append(m.keys, k)
		m.vals[k] = v
	}
	return m, nil
}

func (m *mapping) forms() []string {
	var out []string
	for _, k := range m.keys {
		if forms[k] {
			out = append(out, k)
		}
	}
	return out
}

func (m *mapping) flag(key string) bool {
	v := m.vals[key]
	return v != nil && v.Kind == yaml.ScalarNode && v.Value == "true"
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && (n.Tag == "!!null" || n.Value == ""))
}

func (d *decoder) name(n *yaml.Node, what string) (string, error) {
	if n == nil || n.Kind != yaml.ScalarNode || strings.TrimSpace(n.Value) == "" {
		return "", d.errorf(n, ErrInvalid, "%s must be a name", what)
	}
	return strings.TrimSpace(n.Value), nil
}

func (d *decoder) expr(n *yaml.Node, ctx *context) (ir.Expression, error) {
	e, err := d.element(n, ctx)
	if err != nil {
		return nil, err
	}
	x, ok := e.(ir.Expression)
	if !ok {
		return nil, d.errorf(n, ErrInvalid, "declaration used as an expression")
	}
	return x, nil
}

func (d *decoder) exprList(n *yaml.Node, ctx *context) ([]ir.Expression, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, ErrInvalid, "expected a list of expressions, found %s", n.ShortTag())
	}
	out := make([]ir.Expression, 0, len(n.Content))
	for _, item := range n.Content {
		e, err := d.expr(item, ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) typeList(n *yaml.Node, ctx *context) ([]ir.Type, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, ErrInvalid, "expected a list of types, found %s", n.ShortTag())
	}
	out := make([]ir.Type, 0, len(n.Content))
	for _, item := range n.Content {
		t, err := d.typeOf(item.Value, item, ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// statements decodes a list of statements into ctx's scope. A single
// mapping is a one-statement list.
func (d *decoder) statements(n *yaml.Node, ctx *context) ([]ir.Element, error) {
	items := []*yaml.Node{n}
	switch n.Kind {
	case yaml.SequenceNode:
		items = n.Content
	case yaml.MappingNode, yaml.AliasNode:
	default:
		return nil, d.errorf(n, ErrInvalid, "expected statements, found %s", n.ShortTag())
	}
	out := make([]ir.Element, 0, len(items))
	for _, item := range items {
		e, err := d.element(item, ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) block(n *yaml.Node, ctx *context) (*ir.Block, error) {
	stmts, err := d.statements(n, ctx.nested())
	if err != nil {
		return nil, err
	}
	return &ir.Block{ExprBase: ir.ExprBase{Pos: d.pos(n), Type: d.lastType(stmts)}, Statements: stmts}, nil
}

// body decodes the operand of if, while, try and friends: a list is a
// block, a mapping a single expression.
func (d *decoder) body(n *yaml.Node, ctx *context) (ir.Expression, error) {
	if n.Kind == yaml.SequenceNode {
		return d.block(n, ctx)
	}
	return d.expr(n, ctx.nested())
}

func (d *decoder) lastType(stmts []ir.Element) ir.Type {
	if len(stmts) > 0 {
		if e, ok := stmts[len(stmts)-1].(ir.Expression); ok {
			return e.ExpressionType()
		}
	}
	return d.b.Unit.DefaultType()
}

func (d *decoder) element(n *yaml.Node, ctx *context) (ir.Element, error) {
	m, err := d.mapping(n)
	if err != nil {
		return nil, err
	}
	found := m.forms()
	switch len(found) {
	case 0:
		keys := append([]string(nil), m.keys...)
		sort.Strings(keys)
		return nil, d.errorf(n, ErrUnknownForm, "keys [%s]", strings.Join(keys, ", "))
	case 1:
	default:
		return nil, d.errorf(n, ErrInvalid, "more than one expression form: %s", strings.Join(found, ", "))
	}
	form := found[0]
	v := m.vals[form]
	at := d.pos(n)

	switch form {
	case "int", "long", "byte", "short", "float", "double", "string", "bool", "char", "null", "uint", "ulong":
		return d.literal(form, v, at)
	case "get":
		return d.get(v, ctx, at)
	case "this":
		if ctx.this == nil {
			return nil, d.errorf(n, ErrInvalid, "this outside of a class")
		}
		return d.this(ctx, at), nil
	case "set":
		return d.set(n, m, ctx, at)
	case "var", "val":
		return d.variable(n, form, m, ctx, at)
	case "call":
		return d.call(n, m, ctx, at)
	case "invoke":
		return d.invoke(m, ctx, at)
	case "new":
		return d.construct(n, m, ctx, at)
	case "field":
		return d.field(n, m, ctx, at)
	case "setfield":
		return d.setField(n, m, ctx, at)
	case "if":
		return d.ifElse(n, m, ctx, at)
	case "when":
		return d.when(v, ctx, at)
	case "while":
		return d.while(m, ctx, at)
	case "dowhile":
		return d.doWhile(n, m, ctx, at)
	case "break", "continue":
		return d.jump(n, form, v, ctx, at)
	case "return":
		return d.ret(n, v, ctx, at)
	case "block":
		return d.block(v, ctx)
	case "try":
		return d.try(m, ctx, at)
	case "throw":
		value, err := d.expr(v, ctx)
		if err != nil {
			return nil, err
		}
		return &ir.Throw{ExprBase: ir.ExprBase{Pos: at, Type: d.b.Nothing.DefaultType()}, Value: value}, nil
	case "concat":
		args, err := d.exprList(v, ctx)
		if err != nil {
			return nil, err
		}
		return &ir.StringConcatenation{ExprBase: ir.ExprBase{Pos: at, Type: d.b.String.DefaultType()}, Arguments: args}, nil
	case "is", "notis", "as", "safeas", "notnull":
		return d.typeOperator(n, form, m, ctx, at)
	case "lambda":
		return d.lambda(m, ctx, at)
	case "vararg":
		return d.vararg(n, m, ctx, at)
	case "spread":
		value, err := d.expr(v, ctx)
		if err != nil {
			return nil, err
		}
		return &ir.SpreadElement{ExprBase: ir.ExprBase{Pos: at, Type: value.ExpressionType()}, Expression: value}, nil
	case "object":
		return d.object(v, at)
	case "enum":
		return d.enum(v, at)
	}
	return nil, d.errorf(n, ErrUnknownForm, "%s", form)
}

func (d *decoder) literal(form string, v *yaml.Node, at ir.Pos) (ir.Expression, error) {
	b := d.b
	c := &ir.Const{ExprBase: ir.ExprBase{Pos: at}}
	var err error
	switch form {
	case "int":
		var x int32
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstInt, x, b.Int.DefaultType()
	case "long":
		var x int64
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstLong, x, b.Long.DefaultType()
	case "byte":
		var x int8
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstByte, x, b.Byte.DefaultType()
	case "short":
		var x int16
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstShort, x, b.Short.DefaultType()
	case "float":
		var x float32
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstFloat, x, b.Float.DefaultType()
	case "double":
		var x float64
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstDouble, x, b.Double.DefaultType()
	case "string":
		var x string
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstString, x, b.String.DefaultType()
	case "bool":
		var x bool
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstBoolean, x, b.Boolean.DefaultType()
	case "char":
		var x string
		if err = v.Decode(&x); err == nil {
			r := []rune(x)
			if len(r) != 1 {
				return nil, d.errorf(v, ErrInvalid, "char literal %q is not one character", x)
			}
			c.Value = r[0]
		}
		c.Kind, c.Type = ir.ConstChar, b.Char.DefaultType()
	case "null":
		c.Kind, c.Type = ir.ConstNull, b.NullType()
	case "uint":
		var x uint32
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstUInt, int32(x), b.UInt.DefaultType()
	case "ulong":
		var x uint64
		err = v.Decode(&x)
		c.Kind, c.Value, c.Type = ir.ConstULong, int64(x), b.ULong.DefaultType()
	}
	if err != nil {
		return nil, d.errorf(v, ErrInvalid, "%s literal: %v", form, err)
	}
	return c, nil
}

func (d *decoder) this(ctx *context, at ir.Pos) *ir.GetValue {
	return &ir.GetValue{ExprBase: ir.ExprBase{Pos: at, Type: ctx.this.Type}, Symbol: ctx.this}
}

func symbolType(sym ir.Symbol) ir.Type {
	switch s := sym.(type) {
	case *ir.ValueParameter:
		return s.Type
	case *ir.Variable:
		return s.Type
	case *ir.TypeParameter:
		return s.DefaultType()
	}
	return ir.Type{}
}

func (d *decoder) get(v *yaml.Node, ctx *context, at ir.Pos) (ir.Expression, error) {
	name, err := d.name(v, "get")
	if err != nil {
		return nil, err
	}
	if name == "this" && ctx.this != nil {
		return d.this(ctx, at), nil
	}
	sym := ctx.scope.lookup(name)
	if sym == nil {
		return nil, d.errorf(v, ErrUnresolved, "variable %s", name)
	}
	return &ir.GetValue{ExprBase: ir.ExprBase{Pos: at, Type: symbolType(sym)}, Symbol: sym}, nil
}

func (d *decoder) set(n *yaml.Node, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	name, err := d.name(m.vals["set"], "set")
	if err != nil {
		return nil, err
	}
	v, ok := ctx.scope.lookup(name).(*ir.Variable)
	if !ok {
		return nil, d.errorf(n, ErrUnresolved, "local variable %s", name)
	}
	if !v.Mutable {
		return nil, d.errorf(n, ErrInvalid, "val %s cannot be reassigned", name)
	}
	if m.vals["value"] == nil {
		return nil, d.errorf(n, ErrInvalid, "set %s has no value", name)
	}
	value, err := d.expr(m.vals["value"], ctx)
	if err != nil {
		return nil, err
	}
	return &ir.SetValue{ExprBase: ir.ExprBase{Pos: at, Type: d.b.Unit.DefaultType()}, Symbol: v, Value: value}, nil
}

// variable declares a local. It is bound after its initializer is
// decoded, so the initializer cannot see it.
func (d *decoder) variable(n *yaml.Node, form string, m *mapping, ctx *context, at ir.Pos) (ir.Element, error) {
	name, err := d.name(m.vals[form], form)
	if err != nil {
		return nil, err
	}
	v := &ir.Variable{Pos: at, Name: name, Mutable: form == "var"}
	if init := m.vals["init"]; init != nil {
		if v.Initializer, err = d.expr(init, ctx); err != nil {
			return nil, err
		}
	}
	switch t := m.vals["type"]; {
	case t != nil:
		if v.Type, err = d.typeOf(t.Value, t, ctx); err != nil {
			return nil, err
		}
	case v.Initializer != nil:
		v.Type = v.Initializer.ExpressionType()
	default:
		return nil, d.errorf(n, ErrInvalid, "%s %s needs a type or an initializer", form, name)
	}
	if v.Initializer == nil && !v.Mutable {
		return nil, d.errorf(n, ErrInvalid, "val %s has no initializer", name)
	}
	ctx.scope.bind(name, v)
	return v, nil
}

func typesOf(exprs []ir.Expression) []ir.Type {
	out := make([]ir.Type, len(exprs))
	for i, e := range exprs {
		out[i] = e.ExpressionType()
	}
	return out
}

// userMember finds a function declared in the fixture on c or its supertypes.
func (d *decoder) userMember(c *ir.Class, name string, arity int) *ir.Function {
	if c == nil {
		return nil
	}
	if fn := c.Function(name, arity); fn != nil && d.declared[fn] {
		return fn
	}
	return nil
}

func (d *decoder) call(n *yaml.Node, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	name, err := d.name(m.vals["call"], "call")
	if err != nil {
		return nil, err
	}
	args, err := d.exprList(m.vals["args"], ctx)
	if err != nil {
		return nil, err
	}
	typeArgs, err := d.typeList(m.vals["type_args"], ctx)
	if err != nil {
		return nil, err
	}

	if m.flag("super") {
		return d.superCall(n, name, args, ctx, at)
	}
	var recv ir.Expression
	if r := m.vals["receiver"]; r != nil {
		if recv, err = d.expr(r, ctx); err != nil {
			return nil, err
		}
	} else if ctx.this != nil && d.userMember(ctx.class, name, len(args)) != nil {
		recv = d.this(ctx, at)
	}
	if recv != nil {
		return d.memberCall(n, recv, name, args, typeArgs, at)
	}

	if fn, ok := d.funcs[name]; ok {
		return d.newCall(n, fn, nil, args, typeArgs, at)
	}
	if fn := d.library(name); fn != nil {
		return d.newCall(n, fn, nil, args, typeArgs, at)
	}
	// builtin operator such as less or EQEQ
	argTypes := typesOf(args)
	var first ir.Type
	if len(argTypes) > 0 {
		first = argTypes[0]
	}
	var rest []ir.Type
	if len(argTypes) > 1 {
		rest = argTypes[1:]
	}
	ret := d.b.ResultType(name, first, rest)
	fn := d.b.Operator(name, ret, d.operatorParams(name, argTypes)...)
	return &ir.Call{ExprBase: ir.ExprBase{Pos: at, Type: ret}, Target: fn, Args: args}, nil
}

func (d *decoder) superCall(n *yaml.Node, name string, args []ir.Expression, ctx *context, at ir.Pos) (ir.Expression, error) {
	if ctx.this == nil || ctx.class == nil {
		return nil, d.errorf(n, ErrInvalid, "super call outside of a class")
	}
	var fn *ir.Function
	for _, s := range ctx.class.Supertypes {
		if fn = s.Function(name, len(args)); fn != nil {
			break
		}
	}
	if fn == nil {
		fn = d.anyMember(name, len(args))
	}
	if fn == nil {
		return nil, d.errorf(n, ErrUnresolved, "super.%s", name)
	}
	call := &ir.Call{
		ExprBase:         ir.ExprBase{Pos: at, Type: fn.ReturnType},
		Target:           fn,
		DispatchReceiver: d.this(ctx, at),
		Args:             d.arguments(fn, args, nil, nil),
		SuperQualifier:   superclass(ctx.class),
	}
	return call, nil
}

// memberCall calls name on recv: a fixture function when the receiver
// class declares one, a builtin member otherwise.
func (d *decoder) memberCall(n *yaml.Node, recv ir.Expression, name string, args []ir.Expression, typeArgs []ir.Type, at ir.Pos) (ir.Expression, error) {
	rt := recv.ExpressionType()
	rc := rt.Class()
	if rc == nil {
		rc = d.b.Any
	}
	if fn := d.userMember(rc, name, len(args)); fn != nil {
		return d.newCall(n, fn, recv, args, typeArgs, at)
	}
	var fn *ir.Function
	if base := d.anyMember(name, len(args)); base != nil && (d.user[rc] || rc == d.b.Any) {
		fn = base
	} else {
		owner := d.builtinOwner(rc)
		argTypes := typesOf(args)
		ret := d.b.ResultType(name, rt, argTypes)
		fn = d.b.Member(owner, name, ret, d.builtinParams(name, owner, argTypes)...)
	}
	return &ir.Call{ExprBase: ir.ExprBase{Pos: at, Type: fn.ReturnType}, Target: fn, DispatchReceiver: recv, Args: args}, nil
}

func (d *decoder) newCall(n *yaml.Node, fn *ir.Function, recv ir.Expression, args []ir.Expression, typeArgs []ir.Type, at ir.Pos) (ir.Expression, error) {
	if !accepts(fn, len(args)) {
		return nil, d.errorf(n, ErrInvalid, "%s takes %d arguments, got %d", fn.FullName(), len(fn.ValueParams), len(args))
	}
	if len(typeArgs) == 0 && len(fn.TypeParams) > 0 {
		typeArgs = inferTypeArgs(fn, args)
	}
	if len(typeArgs) > len(fn.TypeParams) {
		return nil, d.errorf(n, ErrInvalid, "%s takes %d type arguments, got %d", fn.FullName(), len(fn.TypeParams), len(typeArgs))
	}
	return &ir.Call{
		ExprBase:         ir.ExprBase{Pos: at, Type: substitute(fn.ReturnType, fn.TypeParams, typeArgs)},
		Target:           fn,
		DispatchReceiver: recv,
		Args:             d.arguments(fn, args, fn.TypeParams, typeArgs),
		TypeArgs:         typeArgs,
	}, nil
}

// inferTypeArgs binds type parameters that appear directly as parameter
// or vararg element types. It returns nil unless every one is bound.
func inferTypeArgs(fn *ir.Function, args []ir.Expression) []ir.Type {
	out := make([]ir.Type, len(fn.TypeParams))
	bind := func(tp *ir.TypeParameter, t ir.Type) {
		for i, p := range fn.TypeParams {
			if p == tp && out[i].IsZero() {
				out[i] = t
			}
		}
	}
	for i, p := range fn.ValueParams {
		t := p.Type
		if p.IsVararg() {
			t = *p.VarargElement
		}
		tp := t.TypeParameter()
		if tp == nil || i >= len(args) {
			continue
		}
		bind(tp, args[i].ExpressionType())
	}
	for _, t := range out {
		if t.IsZero() {
			return nil
		}
	}
	return out
}

// arguments lays args out over the parameters of r. Arguments for a
// vararg parameter are packed into a Vararg; omitted ones stay nil.
func (d *decoder) arguments(r ir.Routine, args []ir.Expression, typeParams []*ir.TypeParameter, typeArgs []ir.Type) []ir.Expression {
	params := r.Params()
	out := make([]ir.Expression, len(params))
	for i, p := range params {
		if !p.IsVararg() {
			if i < len(args) {
				out[i] = args[i]
			}
			continue
		}
		rest := args[min(i, len(args)):]
		if len(rest) == 1 {
			if v, ok := rest[0].(*ir.Vararg); ok {
				out[i] = v
				break
			}
		}
		if len(rest) > 0 {
			elem := substitute(*p.VarargElement, typeParams, typeArgs)
			out[i] = &ir.Vararg{
				ExprBase:    ir.ExprBase{Pos: ir.Pos{Offset: rest[0].StartOffset()}, Type: ir.Type{Classifier: d.b.Array, Arguments: []ir.Type{elem}}},
				ElementType: elem,
				Elements:    rest,
			}
		}
		break
	}
	return out
}

// library resolves a predeclared library function by full name, by
// kotlin-relative name or by an unambiguous simple name.
func (d *decoder) library(name string) *ir.Function {
	if fn := d.b.Library(name); fn != nil {
		return fn
	}
	if fn := d.b.Library("kotlin." + name); fn != nil {
		return fn
	}
	var found *ir.Function
	for _, full := range d.b.LibraryNames() {
		if strings.HasSuffix(full, "."+name) {
			if found != nil {
				return nil
			}
			found = d.b.Library(full)
		}
	}
	return found
}

func (d *decoder) invoke(m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	fn, err := d.expr(m.vals["invoke"], ctx)
	if err != nil {
		return nil, err
	}
	args, err := d.exprList(m.vals["args"], ctx)
	if err != nil {
		return nil, err
	}
	t := d.b.AnyNType()
	if tn := m.vals["type"]; tn != nil {
		if t, err = d.typeOf(tn.Value, tn, ctx); err != nil {
			return nil, err
		}
	}
	return &ir.Call{ExprBase: ir.ExprBase{Pos: at, Type: t}, Target: d.b.Invoke(len(args)), DispatchReceiver: fn, Args: args}, nil
}

func (d *decoder) construct(n *yaml.Node, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	name, err := d.name(m.vals["new"], "new")
	if err != nil {
		return nil, err
	}
	c := d.class(name)
	if c == nil {
		return nil, d.errorf(n, ErrUnresolved, "class %s", name)
	}
	if c.IsInterface() || c.IsObject() || c.IsEnum() {
		return nil, d.errorf(n, ErrInvalid, "%s cannot be instantiated", name)
	}
	args, err := d.exprList(m.vals["args"], ctx)
	if err != nil {
		return nil, err
	}
	typeArgs, err := d.typeList(m.vals["type_args"], ctx)
	if err != nil {
		return nil, err
	}
	var ctor *ir.Constructor
	if c == d.b.Array {
		ctor = d.b.ArrayConstructor()
	} else if ctor, err = d.constructorFor(c, len(args), n); err != nil {
		return nil, err
	}
	t := c.DefaultType()
	if len(typeArgs) > 0 {
		t = ir.Type{Classifier: c, Arguments: typeArgs}
	}
	return &ir.ConstructorCall{
		ExprBase: ir.ExprBase{Pos: at, Type: t},
		Target:   ctor,
		Args:     d.arguments(ctor, args, nil, nil),
		TypeArgs: typeArgs,
	}, nil
}

// field reads a property. Fixture properties are read from their backing
// field; builtin ones (name, message, size, ...) through their getter.
func (d *decoder) field(n *yaml.Node, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	name, err := d.name(m.vals["field"], "field")
	if err != nil {
		return nil, err
	}
	var recv ir.Expression
	switch r := m.vals["receiver"]; {
	case r != nil:
		if recv, err = d.expr(r, ctx); err != nil {
			return nil, err
		}
	case ctx.this != nil && ctx.class != nil && ctx.class.Property(name) != nil:
		recv = d.this(ctx, at)
	default:
		p, ok := d.props[name]
		if !ok {
			return nil, d.errorf(n, ErrUnresolved, "property %s", name)
		}
		return &ir.GetField{ExprBase: ir.ExprBase{Pos: at, Type: p.Type}, Field: p.BackingField}, nil
	}

	rt := recv.ExpressionType()
	rc := rt.Class()
	if rc == nil {
		rc = d.b.Any
	}
	p := rc.Property(name)
	var getter *ir.Function
	switch {
	case p != nil && d.user[p.Parent] && p.BackingField != nil:
		return &ir.GetField{ExprBase: ir.ExprBase{Pos: at, Type: p.Type}, Field: p.BackingField, Receiver: recv}, nil
	case p != nil && p.Getter != nil:
		getter = p.Getter
	case p != nil:
		getter = d.b.Getter(p.Parent, name, p.Type)
	default:
		getter = d.b.Getter(d.builtinOwner(rc), name, d.b.ResultType(name, rt, nil))
	}
	return &ir.Call{ExprBase: ir.ExprBase{Pos: at, Type: getter.ReturnType}, Target: getter, DispatchReceiver: recv}, nil
}

func (d *decoder) setField(n *yaml.Node, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	name, err := d.name(m.vals["setfield"], "setfield")
	if err != nil {
		return nil, err
	}
	var recv ir.Expression
	if r := m.vals["receiver"]; r != nil {
		if recv, err = d.expr(r, ctx); err != nil {
			return nil, err
		}
	} else if ctx.this != nil {
		recv = d.this(ctx, at)
	} else {
		return nil, d.errorf(n, ErrInvalid, "setfield %s needs a receiver", name)
	}
	rc := recv.ExpressionType().Class()
	var p *ir.Property
	if rc != nil {
		p = rc.Property(name)
	}
	if p == nil || !d.user[p.Parent] || p.BackingField == nil {
		return nil, d.errorf(n, ErrUnresolved, "property %s", name)
	}
	if m.vals["value"] == nil {
		return nil, d.errorf(n, ErrInvalid, "setfield %s has no value", name)
	}
	value, err := d.expr(m.vals["value"], ctx)
	if err != nil {
		return nil, err
	}
	return &ir.SetField{
		ExprBase: ir.ExprBase{Pos: at, Type: d.b.Unit.DefaultType()},
		Field:    p.BackingField,
		Receiver: recv,
		Value:    value,
	}, nil
}

// joinTypes is the type of a conditional: the first branch type that is
// not Nothing.
func (d *decoder) joinTypes(types ...ir.Type) ir.Type {
	for _, t := range types {
		if t.Class() != d.b.Nothing {
			return t
		}
	}
	if len(types) > 0 {
		return types[0]
	}
	return d.b.Unit.DefaultType()
}

func (d *decoder) trueConst(at ir.Pos) *ir.Const {
	return &ir.Const{ExprBase: ir.ExprBase{Pos: at, Type: d.b.Boolean.DefaultType()}, Kind: ir.ConstBoolean, Value: true}
}

func (d *decoder) ifElse(n *yaml.Node, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	cond, err := d.expr(m.vals["if"], ctx)
	if err != nil {
		return nil, err
	}
	if m.vals["then"] == nil {
		return nil, d.errorf(n, ErrInvalid, "if without then")
	}
	then, err := d.body(m.vals["then"], ctx)
	if err != nil {
		return nil, err
	}
	w := &ir.When{ExprBase: ir.ExprBase{Pos: at}}
	w.Branches = append(w.Branches, &ir.Branch{Pos: at, Condition: cond, Result: then})
	if e := m.vals["else"]; e != nil {
		els, err := d.body(e, ctx)
		if err != nil {
			return nil, err
		}
		w.Branches = append(w.Branches, &ir.Branch{Pos: d.pos(e), Condition: d.trueConst(d.pos(e)), Result: els})
		w.Type = d.joinTypes(then.ExpressionType(), els.ExpressionType())
	} else {
		w.Type = d.b.Unit.DefaultType()
	}
	return w, nil
}

func (d *decoder) when(v *yaml.Node, ctx *context, at ir.Pos) (ir.Expression, error) {
	if v.Kind != yaml.SequenceNode {
		return nil, d.errorf(v, ErrInvalid, "when expects a list of branches")
	}
	w := &ir.When{ExprBase: ir.ExprBase{Pos: at}}
	var types []ir.Type
	hasElse := false
	for _, item := range v.Content {
		bm, err := d.mapping(item)
		if err != nil {
			return nil, err
		}
		br := &ir.Branch{Pos: d.pos(item)}
		switch {
		case bm.vals["else"] != nil:
			br.Condition = d.trueConst(br.Pos)
			br.Result, err = d.body(bm.vals["else"], ctx)
			hasElse = true
		case bm.vals["cond"] != nil && bm.vals["then"] != nil:
			if br.Condition, err = d.expr(bm.vals["cond"], ctx); err == nil {
				br.Result, err = d.body(bm.vals["then"], ctx)
			}
		default:
			return nil, d.errorf(item, ErrInvalid, "when branch needs cond and then, or else")
		}
		if err != nil {
			return nil, err
		}
		w.Branches = append(w.Branches, br)
		types = append(types, br.Result.ExpressionType())
	}
	if hasElse {
		w.Type = d.joinTypes(types...)
	} else {
		w.Type = d.b.Unit.DefaultType()
	}
	return w, nil
}

func (d *decoder) label(m *mapping) string {
	if l := m.vals["label"]; l != nil {
		return l.Value
	}
	return ""
}

func (d *decoder) while(m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	l := &ir.WhileLoop{ExprBase: ir.ExprBase{Pos: at, Type: d.b.Unit.DefaultType()}, Label: d.label(m)}
	cond, err := d.expr(m.vals["while"], ctx)
	if err != nil {
		return nil, err
	}
	l.Condition = cond
	if b := m.vals["body"]; b != nil {
		if l.Body, err = d.body(b, ctx.withLoop(l.Label, l)); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// doWhile decodes the condition in the body's scope: it sees the body's
// locals.
func (d *decoder) doWhile(n *yaml.Node, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	l := &ir.DoWhileLoop{ExprBase: ir.ExprBase{Pos: at, Type: d.b.Unit.DefaultType()}, Label: d.label(m)}
	inner := ctx.withLoop(l.Label, l)
	if b := m.vals["body"]; b != nil {
		stmts, err := d.statements(b, inner)
		if err != nil {
			return nil, err
		}
		l.Body = &ir.Block{ExprBase: ir.ExprBase{Pos: d.pos(b), Type: d.lastType(stmts)}, Statements: stmts}
	} else {
		return nil, d.errorf(n, ErrInvalid, "dowhile without a body")
	}
	cond, err := d.expr(m.vals["dowhile"], inner)
	if err != nil {
		return nil, err
	}
	l.Condition = cond
	return l, nil
}

func (d *decoder) jump(n *yaml.Node, form string, v *yaml.Node, ctx *context, at ir.Pos) (ir.Expression, error) {
	label := ""
	if !isNull(v) {
		label = v.Value
	}
	var loop ir.Loop
	for i := len(ctx.loops) - 1; i >= 0; i-- {
		if label == "" || ctx.loops[i].label == label {
			loop = ctx.loops[i].loop
			break
		}
	}
	if loop == nil {
		if label != "" {
			return nil, d.errorf(n, ErrUnresolved, "%s label %s", form, label)
		}
		return nil, d.errorf(n, ErrInvalid, "%s outside of a loop", form)
	}
	base := ir.ExprBase{Pos: at, Type: d.b.Nothing.DefaultType()}
	if form == "break" {
		return &ir.Break{ExprBase: base, Loop: loop}, nil
	}
	return &ir.Continue{ExprBase: base, Loop: loop}, nil
}

func (d *decoder) ret(n *yaml.Node, v *yaml.Node, ctx *context, at ir.Pos) (ir.Expression, error) {
	if ctx.routine == nil {
		return nil, d.errorf(n, ErrInvalid, "return outside of a function")
	}
	r := &ir.Return{ExprBase: ir.ExprBase{Pos: at, Type: d.b.Nothing.DefaultType()}, Target: ctx.routine}
	if !isNull(v) {
		value, err := d.expr(v, ctx)
		if err != nil {
			return nil, err
		}
		r.Value = value
	}
	return r, nil
}

type catchYAML struct {
	Name string     `yaml:"name"`
	Type string     `yaml:"type"`
	Body *yaml.Node `yaml:"-"`
}

func (d *decoder) try(m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	result, err := d.body(m.vals["try"], ctx)
	if err != nil {
		return nil, err
	}
	t := &ir.Try{ExprBase: ir.ExprBase{Pos: at, Type: result.ExpressionType()}, Result: result}
	if cs := m.vals["catch"]; cs != nil {
		if cs.Kind != yaml.SequenceNode {
			return nil, d.errorf(cs, ErrInvalid, "catch expects a list of clauses")
		}
		for _, item := range cs.Content {
			c, err := d.catch(item, ctx)
			if err != nil {
				return nil, err
			}
			t.Catches = append(t.Catches, c)
		}
	}
	if f := m.vals["finally"]; f != nil {
		if t.Finally, err = d.body(f, ctx); err != nil {
			return nil, err
		}
	}
	if len(t.Catches) == 0 && t.Finally == nil {
		return nil, d.errorf(m.vals["try"], ErrInvalid, "try without catch or finally")
	}
	return t, nil
}

func (d *decoder) catch(n *yaml.Node, ctx *context) (*ir.Catch, error) {
	var raw catchYAML
	if err := n.Decode(&raw); err != nil {
		return nil, d.errorf(n, ErrInvalid, "catch clause: %v", err)
	}
	pick(n, map[string]**yaml.Node{"body": &raw.Body})
	if raw.Name == "" {
		raw.Name = "e"
	}
	if raw.Type == "" {
		raw.Type = "Throwable"
	}
	pt, err := d.typeOf(raw.Type, n, ctx)
	if err != nil {
		return nil, err
	}
	if !d.b.IsThrowable(pt.Class()) {
		return nil, d.errorf(n, ErrInvalid, "catch type %s is not throwable", raw.Type)
	}
	if raw.Body == nil {
		return nil, d.errorf(n, ErrInvalid, "catch clause without a body")
	}
	param := &ir.Variable{Pos: d.pos(n), Name: raw.Name, Type: pt}
	inner := ctx.nested()
	inner.scope.bind(raw.Name, param)
	result, err := d.body(raw.Body, inner)
	if err != nil {
		return nil, err
	}
	return &ir.Catch{Pos: d.pos(n), Parameter: param, Result: result}, nil
}

var typeOperators = map[string]ir.TypeOperator{
	"is":      ir.OpInstanceOf,
	"notis":   ir.OpNotInstanceOf,
	"as":      ir.OpCast,
	"safeas":  ir.OpSafeCast,
	"notnull": ir.OpImplicitNotNull,
}

func (d *decoder) typeOperator(n *yaml.Node, form string, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	arg, err := d.expr(m.vals[form], ctx)
	if err != nil {
		return nil, err
	}
	op := typeOperators[form]
	var operand ir.Type
	if op == ir.OpImplicitNotNull {
		operand = arg.ExpressionType().MakeNotNull()
	} else {
		tn := m.vals["type"]
		if tn == nil {
			return nil, d.errorf(n, ErrInvalid, "%s needs a type", form)
		}
		if operand, err = d.typeOf(tn.Value, tn, ctx); err != nil {
			return nil, err
		}
	}
	var t ir.Type
	switch op {
	case ir.OpInstanceOf, ir.OpNotInstanceOf:
		t = d.b.Boolean.DefaultType()
	case ir.OpSafeCast:
		t = operand.MakeNullable()
	default:
		t = operand
	}
	return &ir.TypeOperatorCall{ExprBase: ir.ExprBase{Pos: at, Type: t}, Operator: op, Argument: arg, TypeOperand: operand}, nil
}

// lambda builds a function literal. Its last expression is its result.
func (d *decoder) lambda(m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	fn := &ir.Function{Pos: at, Name: "<anonymous>", ReturnType: d.b.AnyNType(), File: d.file}
	if ctx.routine != nil {
		fn.FqName = ctx.routine.FullName() + ".<anonymous>"
	}
	inner := &context{routine: fn, class: ctx.class, this: ctx.this, scope: newScope(ctx.scope)}
	if rt := m.vals["returns"]; rt != nil {
		t, err := d.typeOf(rt.Value, rt, ctx)
		if err != nil {
			return nil, err
		}
		fn.ReturnType = t
	}
	if ps := m.vals["params"]; ps != nil {
		var raw []paramYAML
		if err := ps.Decode(&raw); err != nil {
			return nil, d.errorf(ps, ErrInvalid, "lambda params: %v", err)
		}
		for i := range raw {
			p, err := d.declareParam(&raw[i], ctx)
			if err != nil {
				return nil, err
			}
			fn.AddParam(p)
			inner.scope.bind(p.Name, p)
		}
	}
	body := m.vals["lambda"]
	stmts, err := d.statements(body, inner)
	if err != nil {
		return nil, err
	}
	if n := len(stmts); n > 0 {
		if e, ok := stmts[n-1].(ir.Expression); ok {
			if _, isReturn := e.(*ir.Return); !isReturn {
				stmts[n-1] = &ir.Return{
					ExprBase: ir.ExprBase{Pos: ir.Pos{Offset: e.StartOffset()}, Type: d.b.Nothing.DefaultType()},
					Target:   fn,
					Value:    e,
				}
			}
		}
	}
	fn.Body = &ir.Body{Pos: d.pos(body), Statements: stmts}
	return &ir.FunctionExpression{ExprBase: ir.ExprBase{Pos: at, Type: d.b.Function.DefaultType()}, Function: fn}, nil
}

func (d *decoder) vararg(n *yaml.Node, m *mapping, ctx *context, at ir.Pos) (ir.Expression, error) {
	elems, err := d.exprList(m.vals["vararg"], ctx)
	if err != nil {
		return nil, err
	}
	tn := m.vals["type"]
	if tn == nil {
		return nil, d.errorf(n, ErrInvalid, "vararg needs an element type")
	}
	elem, err := d.typeOf(tn.Value, tn, ctx)
	if err != nil {
		return nil, err
	}
	return &ir.Vararg{
		ExprBase:    ir.ExprBase{Pos: at, Type: ir.Type{Classifier: d.b.Array, Arguments: []ir.Type{elem}}},
		ElementType: elem,
		Elements:    elems,
	}, nil
}

func (d *decoder) object(v *yaml.Node, at ir.Pos) (ir.Expression, error) {
	name, err := d.name(v, "object")
	if err != nil {
		return nil, err
	}
	c := d.class(name)
	if c == nil {
		return nil, d.errorf(v, ErrUnresolved, "object %s", name)
	}
	if !c.IsObject() {
		return nil, d.errorf(v, ErrInvalid, "%s is not an object", name)
	}
	return &ir.GetObjectValue{ExprBase: ir.ExprBase{Pos: at, Type: c.DefaultType()}, Class: c}, nil
}

func (d *decoder) enum(v *yaml.Node, at ir.Pos) (ir.Expression, error) {
	ref, err := d.name(v, "enum")
	if err != nil {
		return nil, err
	}
	i := strings.LastIndexByte(ref, '.')
	if i <= 0 {
		return nil, d.errorf(v, ErrInvalid, "enum reference %s must be Class.ENTRY", ref)
	}
	c := d.class(ref[:i])
	if c == nil || !c.IsEnum() {
		return nil, d.errorf(v, ErrUnresolved, "enum class %s", ref[:i])
	}
	for _, e := range c.EnumEntries() {
		if e.Name == ref[i+1:] {
			return &ir.GetEnumValue{ExprBase: ir.ExprBase{Pos: at, Type: c.DefaultType()}, Entry: e}, nil
		}
	}
	return nil, d.errorf(v, ErrUnresolved, "enum entry %s", ref)
}
