package fixture

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/consteval/internal/ir"
)

type decoder struct {
	b    *ir.BuiltIns
	file *ir.File
	path string
	pkg  string

	classes map[string]*ir.Class
	user    map[*ir.Class]bool
	funcs   map[string]*ir.Function
	props   map[string]*ir.Property
	// declared holds the functions written in the fixture, as opposed to
	// builtin members interned on the same classes.
	declared map[*ir.Function]bool
}

func newDecoder(b *ir.BuiltIns, file *ir.File, path, pkg string) *decoder {
	return &decoder{
		b:        b,
		file:     file,
		path:     path,
		pkg:      pkg,
		classes:  make(map[string]*ir.Class),
		user:     make(map[*ir.Class]bool),
		funcs:    make(map[string]*ir.Function),
		props:    make(map[string]*ir.Property),
		declared: make(map[*ir.Function]bool),
	}
}

func (d *decoder) errorf(n *yaml.Node, sentinel error, format string, args ...any) *Error {
	line := 0
	if n != nil {
		line = n.Line
	}
	return &Error{Path: d.path, Line: line, Err: sentinel, Detail: fmt.Sprintf(format, args...)}
}

func (d *decoder) pos(n *yaml.Node) ir.Pos {
	if n == nil {
		return ir.Pos{Offset: -1}
	}
	return ir.Pos{Offset: d.file.Offset(n.Line, n.Column)}
}

func (d *decoder) fqName(name string) string {
	if d.pkg == "" {
		return name
	}
	return d.pkg + "." + name
}

// classDecl ties a declared class to its YAML for the second pass.
type classDecl struct {
	c     *ir.Class
	raw   *classYAML
	props []*ir.Property
	ctors []*ir.Constructor
	funcs []*ir.Function
}

// program decodes in two passes: declarations first, so that bodies may
// refer to classes and functions declared further down, then bodies.
func (d *decoder) program(raw *programYAML) (*Program, error) {
	prog := &Program{File: d.file, Package: d.pkg}

	decls := make([]*classDecl, len(raw.Classes))
	for i := range raw.Classes {
		c, err := d.declareClass(&raw.Classes[i])
		if err != nil {
			return nil, err
		}
		decls[i] = &classDecl{c: c, raw: &raw.Classes[i]}
		prog.Classes = append(prog.Classes, c)
	}
	for _, cd := range decls {
		if err := d.resolveSupertypes(cd); err != nil {
			return nil, err
		}
	}
	for _, cd := range decls {
		if err := d.declareMembers(cd); err != nil {
			return nil, err
		}
	}

	props := make([]*ir.Property, len(raw.Properties))
	for i := range raw.Properties {
		p, err := d.declareProperty(&raw.Properties[i], nil)
		if err != nil {
			return nil, err
		}
		if _, dup := d.props[p.Name]; dup {
			return nil, d.errorf(raw.Properties[i].node, ErrInvalid, "property %s declared twice", p.Name)
		}
		p.BackingField.Static = true
		d.props[p.Name] = p
		props[i] = p
	}
	for i := range raw.Functions {
		fn, err := d.declareFunction(&raw.Functions[i], nil)
		if err != nil {
			return nil, err
		}
		if _, dup := d.funcs[fn.Name]; dup {
			return nil, d.errorf(raw.Functions[i].node, ErrInvalid, "function %s declared twice", fn.Name)
		}
		fn.Static = true
		fn.FqName = d.fqName(fn.Name)
		d.funcs[fn.Name] = fn
		prog.Functions = append(prog.Functions, fn)
	}
	for _, cd := range decls {
		d.linkOverrides(cd)
	}

	for _, cd := range decls {
		if err := d.defineClass(cd); err != nil {
			return nil, err
		}
	}
	for i, p := range props {
		if init := raw.Properties[i].Init; init != nil {
			e, err := d.expr(init, newContext(nil, nil, nil))
			if err != nil {
				return nil, err
			}
			p.BackingField.Initializer = e
		}
	}
	for i, fn := range prog.Functions {
		if err := d.defineFunction(fn, &raw.Functions[i], nil); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(raw.Expressions))
	for _, re := range raw.Expressions {
		if re.Name == "" {
			return nil, d.errorf(re.node, ErrInvalid, "expression without a name")
		}
		if seen[re.Name] {
			return nil, d.errorf(re.node, ErrInvalid, "expression %s declared twice", re.Name)
		}
		seen[re.Name] = true
		if re.Expr == nil {
			return nil, d.errorf(re.node, ErrInvalid, "expression %s has no expr", re.Name)
		}
		e, err := d.expr(re.Expr, newContext(nil, nil, nil))
		if err != nil {
			return nil, err
		}
		prog.Expressions = append(prog.Expressions, &Expression{Name: re.Name, Expr: e, Line: re.node.Line})
	}
	return prog, nil
}

var classKinds = map[string]ir.ClassKind{
	"":          ir.ClassKindClass,
	"class":     ir.ClassKindClass,
	"object":    ir.ClassKindObject,
	"enum":      ir.ClassKindEnum,
	"interface": ir.ClassKindInterface,
}

func (d *decoder) declareClass(raw *classYAML) (*ir.Class, error) {
	if raw.Name == "" {
		return nil, d.errorf(raw.node, ErrInvalid, "class without a name")
	}
	kind, ok := classKinds[raw.Kind]
	if !ok {
		return nil, d.errorf(raw.node, ErrInvalid, "unknown class kind %q", raw.Kind)
	}
	if _, dup := d.classes[raw.Name]; dup {
		return nil, d.errorf(raw.node, ErrInvalid, "class %s declared twice", raw.Name)
	}
	c := ir.NewClass(d.fqName(raw.Name), kind)
	c.Pos = d.pos(raw.node)
	c.File = d.file
	d.classes[raw.Name] = c
	d.classes[c.FqName] = c
	d.user[c] = true
	d.b.Register(c)
	return c, nil
}

func (d *decoder) resolveSupertypes(cd *classDecl) error {
	c, raw := cd.c, cd.raw
	for _, name := range raw.Supertypes {
		s := d.class(name)
		if s == nil {
			return d.errorf(raw.node, ErrUnresolved, "supertype %s of %s", name, raw.Name)
		}
		if s == c || ir.IsSubclass(s, c) {
			return d.errorf(raw.node, ErrInvalid, "cyclic supertype %s of %s", name, raw.Name)
		}
		c.Supertypes = append(c.Supertypes, s)
	}
	if superclass(c) == nil {
		if c.IsEnum() {
			c.Supertypes = append([]*ir.Class{d.b.Enum}, c.Supertypes...)
		} else {
			c.Supertypes = append(c.Supertypes, d.b.Any)
		}
	}
	return nil
}

// superclass is the first supertype that is not an interface.
func superclass(c *ir.Class) *ir.Class {
	for _, s := range c.Supertypes {
		if !s.IsInterface() {
			return s
		}
	}
	return nil
}

func (d *decoder) declareMembers(cd *classDecl) error {
	c, raw := cd.c, cd.raw
	ctx := newContext(nil, c, nil)
	for i := range raw.Properties {
		p, err := d.declareProperty(&raw.Properties[i], ctx)
		if err != nil {
			return err
		}
		c.Add(p)
		cd.props = append(cd.props, p)
	}
	if c.IsInterface() && len(raw.Constructors) > 0 {
		return d.errorf(raw.node, ErrInvalid, "interface %s has constructors", raw.Name)
	}
	for i := range raw.Constructors {
		rc := &raw.Constructors[i]
		ctor := &ir.Constructor{Pos: d.pos(rc.node), Primary: rc.Primary}
		for j := range rc.Params {
			p, err := d.declareParam(&rc.Params[j], ctx)
			if err != nil {
				return err
			}
			ctor.AddParam(p)
		}
		c.Add(ctor)
		cd.ctors = append(cd.ctors, ctor)
	}
	if len(cd.ctors) == 0 && !c.IsInterface() {
		ctor := &ir.Constructor{Pos: c.Pos, Primary: true}
		c.Add(ctor)
		cd.ctors = append(cd.ctors, ctor)
	}
	if c.IsObject() && c.PrimaryConstructor() == nil {
		return d.errorf(raw.node, ErrInvalid, "object %s needs exactly one primary constructor", raw.Name)
	}
	for i := range raw.Functions {
		fn, err := d.declareFunction(&raw.Functions[i], c)
		if err != nil {
			return err
		}
		c.Add(fn)
		cd.funcs = append(cd.funcs, fn)
	}
	if len(raw.Entries) > 0 && !c.IsEnum() {
		return d.errorf(raw.node, ErrInvalid, "class %s is not an enum but declares entries", raw.Name)
	}
	for i := range raw.Entries {
		e := &raw.Entries[i]
		if e.Name == "" {
			return d.errorf(e.node, ErrInvalid, "enum entry without a name")
		}
		c.Add(&ir.EnumEntry{Pos: d.pos(e.node), Name: e.Name})
	}
	return nil
}

func (d *decoder) declareProperty(raw *propertyYAML, ctx *context) (*ir.Property, error) {
	if raw.Name == "" {
		return nil, d.errorf(raw.node, ErrInvalid, "property without a name")
	}
	t, err := d.typeOf(raw.Type, raw.node, ctx)
	if err != nil {
		return nil, err
	}
	p := ir.NewProperty(raw.Name, t, nil)
	p.Pos = d.pos(raw.node)
	p.BackingField.Pos = p.Pos
	p.Mutable = raw.Mutable
	return p, nil
}

func (d *decoder) declareParam(raw *paramYAML, ctx *context) (*ir.ValueParameter, error) {
	if raw.Name == "" {
		return nil, d.errorf(raw.node, ErrInvalid, "parameter without a name")
	}
	t, err := d.typeOf(raw.Type, raw.node, ctx)
	if err != nil {
		return nil, err
	}
	p := &ir.ValueParameter{Pos: d.pos(raw.node), Name: raw.Name, Type: t}
	if raw.Vararg {
		elem := t
		p.VarargElement = &elem
		p.Type = ir.Type{Classifier: d.b.Array, Arguments: []ir.Type{elem}}
	}
	return p, nil
}

func (d *decoder) declareFunction(raw *functionYAML, owner *ir.Class) (*ir.Function, error) {
	if raw.Name == "" {
		return nil, d.errorf(raw.node, ErrInvalid, "function without a name")
	}
	fn := &ir.Function{Pos: d.pos(raw.node), Name: raw.Name, File: d.file}
	for i, name := range raw.TypeParams {
		tp, err := d.typeParam(name, raw.node)
		if err != nil {
			return nil, err
		}
		tp.Index = i
		fn.TypeParams = append(fn.TypeParams, tp)
	}
	ctx := newContext(fn, owner, nil)
	ret := d.b.Unit.DefaultType()
	if raw.Returns != "" {
		t, err := d.typeOf(raw.Returns, raw.node, ctx)
		if err != nil {
			return nil, err
		}
		ret = t
	}
	fn.ReturnType = ret
	for i := range raw.Params {
		p, err := d.declareParam(&raw.Params[i], ctx)
		if err != nil {
			return nil, err
		}
		fn.AddParam(p)
	}
	if raw.Host {
		fn.Intrinsic = ir.IntrinsicHost
	}
	d.declared[fn] = true
	return fn, nil
}

// linkOverrides points each member at the supertype declarations it
// overrides: same name and arity, or the Any members toString, equals
// and hashCode.
func (d *decoder) linkOverrides(cd *classDecl) {
	for _, fn := range cd.funcs {
		if base := d.anyMember(fn.Name, len(fn.ValueParams)); base != nil {
			fn.Overridden = []*ir.Function{base}
			continue
		}
		for _, s := range cd.c.Supertypes {
			if o := s.Function(fn.Name, len(fn.ValueParams)); o != nil && o != fn {
				fn.Overridden = append(fn.Overridden, o)
			}
		}
	}
}

// anyMember returns the builtin Any member with the given name and arity.
func (d *decoder) anyMember(name string, arity int) *ir.Function {
	b := d.b
	switch {
	case name == "toString" && arity == 0:
		return b.Member(b.Any, "toString", b.String.DefaultType())
	case name == "equals" && arity == 1:
		return b.Member(b.Any, "equals", b.Boolean.DefaultType(), b.AnyNType())
	case name == "hashCode" && arity == 0:
		return b.Member(b.Any, "hashCode", b.Int.DefaultType())
	}
	return nil
}

func (d *decoder) defineClass(cd *classDecl) error {
	c, raw := cd.c, cd.raw
	primary := c.PrimaryConstructor()

	initCtx := newContext(nil, c, c.ThisReceiver)
	if primary != nil {
		for _, p := range primary.ValueParams {
			initCtx.scope.bind(p.Name, p)
		}
	}
	for i, p := range cd.props {
		if init := raw.Properties[i].Init; init != nil {
			e, err := d.expr(init, initCtx)
			if err != nil {
				return err
			}
			p.BackingField.Initializer = e
		}
	}
	if raw.Init != nil {
		body, err := d.block(raw.Init, initCtx)
		if err != nil {
			return err
		}
		c.Add(&ir.AnonymousInitializer{Pos: d.pos(raw.Init), Body: body})
	}

	for i, ctor := range cd.ctors {
		var rc *constructorYAML
		if i < len(raw.Constructors) {
			rc = &raw.Constructors[i]
		}
		if err := d.defineConstructor(c, ctor, rc); err != nil {
			return err
		}
	}
	for i, fn := range cd.funcs {
		if err := d.defineFunction(fn, &raw.Functions[i], c); err != nil {
			return err
		}
	}

	for i, entry := range c.EnumEntries() {
		re := &raw.Entries[i]
		if re.Args == nil {
			continue
		}
		args, err := d.exprList(re.Args, newContext(nil, nil, nil))
		if err != nil {
			return err
		}
		ctor, err := d.constructorFor(c, len(args), re.node)
		if err != nil {
			return err
		}
		entry.Initializer = &ir.ConstructorCall{
			ExprBase: ir.ExprBase{Pos: d.pos(re.node), Type: c.DefaultType()},
			Target:   ctor,
			Args:     d.arguments(ctor, args, nil, nil),
		}
	}
	return nil
}

// defineConstructor builds the constructor body: the delegating call, the
// instance initializer when delegating to the superclass, then the
// statements written in the fixture.
func (d *decoder) defineConstructor(c *ir.Class, ctor *ir.Constructor, raw *constructorYAML) error {
	ctx := newContext(ctor, c, c.ThisReceiver)
	at := c.Pos
	var node *yaml.Node
	if raw != nil {
		node = raw.node
		at = d.pos(raw.node)
		if err := d.defineDefaults(ctor.ValueParams, raw.Params, ctx); err != nil {
			return err
		}
	}
	for _, p := range ctor.ValueParams {
		ctx.scope.bind(p.Name, p)
	}

	var argsNode *yaml.Node
	var target *ir.Constructor
	self := raw != nil && raw.This != nil
	switch {
	case raw != nil && raw.Super != nil && raw.This != nil:
		return d.errorf(node, ErrInvalid, "constructor of %s delegates to both super and this", c.Name)
	case self:
		argsNode = raw.This
	case raw != nil:
		argsNode = raw.Super
	}
	var args []ir.Expression
	if argsNode != nil {
		var err error
		if args, err = d.exprList(argsNode, ctx); err != nil {
			return err
		}
	}
	if self {
		t, err := d.constructorFor(c, len(args), node)
		if err != nil {
			return err
		}
		if t == ctor {
			return d.errorf(node, ErrInvalid, "constructor of %s delegates to itself", c.Name)
		}
		target = t
	} else {
		super := superclass(c)
		if super == nil || super == d.b.Any {
			target = d.b.AnyConstructor()
		} else {
			t, err := d.constructorFor(super, len(args), node)
			if err != nil {
				return err
			}
			target = t
		}
	}

	unit := d.b.Unit.DefaultType()
	stmts := []ir.Element{&ir.DelegatingConstructorCall{
		ExprBase: ir.ExprBase{Pos: at, Type: unit},
		Target:   target,
		Args:     d.arguments(target, args, nil, nil),
	}}
	if !self {
		stmts = append(stmts, &ir.InstanceInitializerCall{ExprBase: ir.ExprBase{Pos: at, Type: unit}, Class: c})
	}
	if raw != nil && raw.Body != nil {
		body, err := d.statements(raw.Body, ctx)
		if err != nil {
			return err
		}
		stmts = append(stmts, body...)
	}
	ctor.Body = &ir.Body{Pos: at, Statements: stmts}
	return nil
}

func (d *decoder) defineDefaults(params []*ir.ValueParameter, raw []paramYAML, ctx *context) error {
	for i, p := range params {
		if raw[i].Default != nil {
			def, err := d.expr(raw[i].Default, ctx)
			if err != nil {
				return err
			}
			p.Default = def
		}
		ctx.scope.bind(p.Name, p)
	}
	return nil
}

func (d *decoder) defineFunction(fn *ir.Function, raw *functionYAML, owner *ir.Class) error {
	ctx := newContext(fn, owner, fn.DispatchReceiver)
	if err := d.defineDefaults(fn.ValueParams, raw.Params, ctx); err != nil {
		return err
	}
	switch {
	case raw.Body == nil && (raw.Host || raw.Abstract || (owner != nil && owner.IsInterface())):
		return nil
	case raw.Body == nil:
		return d.errorf(raw.node, ErrInvalid, "function %s has no body", fn.Name)
	case raw.Host:
		return d.errorf(raw.node, ErrInvalid, "host function %s has a body", fn.Name)
	}

	if raw.Body.Kind == yaml.MappingNode {
		// expression body
		e, err := d.expr(raw.Body, ctx)
		if err != nil {
			return err
		}
		var stmt ir.Element = e
		if fn.ReturnType.Class() != d.b.Unit {
			stmt = &ir.Return{ExprBase: ir.ExprBase{Pos: d.pos(raw.Body), Type: d.b.Nothing.DefaultType()}, Target: fn, Value: e}
		}
		fn.Body = &ir.Body{Pos: d.pos(raw.Body), Statements: []ir.Element{stmt}}
		return nil
	}
	stmts, err := d.statements(raw.Body, ctx)
	if err != nil {
		return err
	}
	fn.Body = &ir.Body{Pos: d.pos(raw.Body), Statements: stmts}
	return nil
}

// constructorFor picks the constructor of c taking arity arguments:
// an exact match first, then the primary one, then any that accepts them.
func (d *decoder) constructorFor(c *ir.Class, arity int, n *yaml.Node) (*ir.Constructor, error) {
	ctors := c.Constructors()
	for _, ctor := range ctors {
		if len(ctor.ValueParams) == arity {
			return ctor, nil
		}
	}
	if p := c.PrimaryConstructor(); p != nil && accepts(p, arity) {
		return p, nil
	}
	for _, ctor := range ctors {
		if accepts(ctor, arity) {
			return ctor, nil
		}
	}
	return nil, d.errorf(n, ErrUnresolved, "no constructor of %s takes %d arguments", c.Name, arity)
}

func accepts(r ir.Routine, arity int) bool {
	params := r.Params()
	if arity > len(params) {
		return len(params) > 0 && params[len(params)-1].IsVararg()
	}
	return true
}
