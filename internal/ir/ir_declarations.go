package ir

import "strings"

type ClassKind int

const (
	ClassKindClass ClassKind = iota
	ClassKindObject
	ClassKindEnum
	ClassKindInterface
)

// Class is a class, object, enum or interface declaration.
// Supertypes form an acyclic graph rooted at Any.
type Class struct {
	Pos
	Name         string
	FqName       string
	Kind         ClassKind
	Supertypes   []*Class
	TypeParams   []*TypeParameter
	ThisReceiver *ValueParameter
	Declarations []Declaration
	// External classes are backed by host values (see Wrapped states).
	External bool
	File     *File
}

func (c *Class) element()               {}
func (c *Class) declarationNode()       {}
func (c *Class) classifierName() string { return c.Name }

// NewClass creates a class with its this-receiver parameter.
func NewClass(fqName string, kind ClassKind, supertypes ...*Class) *Class {
	c := &Class{
		Name:       simpleName(fqName),
		FqName:     fqName,
		Kind:       kind,
		Supertypes: supertypes,
	}
	c.ThisReceiver = &ValueParameter{Name: "<this>", Index: -1}
	c.ThisReceiver.Type = c.DefaultType()
	return c
}

// Add appends a member declaration and links it back to the class.
func (c *Class) Add(decl Declaration) {
	switch d := decl.(type) {
	case *Function:
		d.Parent = c
		if d.DispatchReceiver == nil && !d.Static {
			d.DispatchReceiver = &ValueParameter{Name: "<this>", Type: c.DefaultType(), Index: -1}
			d.DispatchReceiver.Parent = d
		}
		if d.FqName == "" {
			d.FqName = c.FqName + "." + d.Name
		}
	case *Constructor:
		d.Parent = c
	case *Property:
		d.Parent = c
		if d.BackingField != nil {
			d.BackingField.Parent = c
		}
		if d.Getter != nil {
			c.Add(d.Getter)
		}
	case *AnonymousInitializer:
		d.Parent = c
	case *EnumEntry:
		d.Parent = c
		d.Ordinal = len(c.EnumEntries())
	case *Class:
		if d.FqName == "" {
			d.FqName = c.FqName + "." + d.Name
		}
	}
	c.Declarations = append(c.Declarations, decl)
}

func (c *Class) DefaultType() Type {
	args := make([]Type, len(c.TypeParams))
	for i, tp := range c.TypeParams {
		args[i] = tp.DefaultType()
	}
	return Type{Classifier: c, Arguments: args}
}

func (c *Class) IsObject() bool    { return c.Kind == ClassKindObject }
func (c *Class) IsEnum() bool      { return c.Kind == ClassKindEnum }
func (c *Class) IsInterface() bool { return c.Kind == ClassKindInterface }

func (c *Class) Constructors() []*Constructor {
	var out []*Constructor
	for _, d := range c.Declarations {
		if ctor, ok := d.(*Constructor); ok {
			out = append(out, ctor)
		}
	}
	return out
}

// PrimaryConstructor returns the primary constructor, or the only one.
func (c *Class) PrimaryConstructor() *Constructor {
	ctors := c.Constructors()
	for _, ctor := range ctors {
		if ctor.Primary {
			return ctor
		}
	}
	if len(ctors) == 1 {
		return ctors[0]
	}
	return nil
}

func (c *Class) Functions() []*Function {
	var out []*Function
	for _, d := range c.Declarations {
		if fn, ok := d.(*Function); ok {
			out = append(out, fn)
		}
	}
	return out
}

func (c *Class) Properties() []*Property {
	var out []*Property
	for _, d := range c.Declarations {
		if p, ok := d.(*Property); ok {
			out = append(out, p)
		}
	}
	return out
}

func (c *Class) EnumEntries() []*EnumEntry {
	var out []*EnumEntry
	for _, d := range c.Declarations {
		if e, ok := d.(*EnumEntry); ok {
			out = append(out, e)
		}
	}
	return out
}

// Property looks up a property declared in this class or inherited from a superclass.
func (c *Class) Property(name string) *Property {
	for _, p := range c.Properties() {
		if p.Name == name {
			return p
		}
	}
	for _, s := range c.Supertypes {
		if p := s.Property(name); p != nil {
			return p
		}
	}
	return nil
}

// Function looks up a member function by name and arity, searching superclasses.
func (c *Class) Function(name string, arity int) *Function {
	for _, fn := range c.Functions() {
		if fn.Name == name && len(fn.ValueParams) == arity {
			return fn
		}
	}
	for _, s := range c.Supertypes {
		if fn := s.Function(name, arity); fn != nil {
			return fn
		}
	}
	return nil
}

// Function is a named function or a property accessor.
type Function struct {
	Pos
	Name              string
	FqName            string
	Parent            *Class
	DispatchReceiver  *ValueParameter
	ExtensionReceiver *ValueParameter
	ValueParams       []*ValueParameter
	TypeParams        []*TypeParameter
	ReturnType        Type
	Body              *Body
	Overridden        []*Function
	FakeOverride      bool
	InlineOnly        bool
	Static            bool
	// Property is set for getters and setters.
	Property  *Property
	Intrinsic IntrinsicCategory
	File      *File
}

func (f *Function) element()                    {}
func (f *Function) declarationNode()            {}
func (f *Function) Params() []*ValueParameter   { return f.ValueParams }
func (f *Function) RoutineBody() *Body          { return f.Body }
func (f *Function) OwnerClass() *Class          { return f.Parent }
func (f *Function) Category() IntrinsicCategory { return f.Intrinsic }

func (f *Function) FullName() string {
	if f.FqName != "" {
		return f.FqName
	}
	return f.Name
}

// AddParam appends a value parameter and sets its index and parent.
func (f *Function) AddParam(p *ValueParameter) *Function {
	p.Index = len(f.ValueParams)
	p.Parent = f
	f.ValueParams = append(f.ValueParams, p)
	return f
}

// MethodName is the name used for builtin lookups: the property name for
// accessors, the function name otherwise.
func (f *Function) MethodName() string {
	if f.Property != nil {
		return f.Property.Name
	}
	return f.Name
}

// ResolveFakeOverride follows fake overrides to the first declaration that has a body.
func (f *Function) ResolveFakeOverride() *Function {
	if !f.FakeOverride {
		return f
	}
	for _, o := range f.Overridden {
		if r := o.ResolveFakeOverride(); r.Body != nil || !r.FakeOverride {
			return r
		}
	}
	return f
}

// Overrides reports whether f is other or transitively overrides it.
func (f *Function) Overrides(other *Function) bool {
	if f == other {
		return true
	}
	for _, o := range f.Overridden {
		if o.Overrides(other) {
			return true
		}
	}
	return false
}

// Constructor is a class constructor. A nil body means the instance is
// created by the host (external classes) or needs no code (Any).
type Constructor struct {
	Pos
	Parent      *Class
	ValueParams []*ValueParameter
	Primary     bool
	Body        *Body
	Intrinsic   IntrinsicCategory
}

func (c *Constructor) element()                    {}
func (c *Constructor) declarationNode()            {}
func (c *Constructor) Params() []*ValueParameter   { return c.ValueParams }
func (c *Constructor) RoutineBody() *Body          { return c.Body }
func (c *Constructor) OwnerClass() *Class          { return c.Parent }
func (c *Constructor) Category() IntrinsicCategory { return c.Intrinsic }
func (c *Constructor) SymbolName() string          { return "<init>" }

func (c *Constructor) FullName() string {
	if c.Parent == nil {
		return "<init>"
	}
	return c.Parent.FqName + ".<init>"
}

func (c *Constructor) AddParam(p *ValueParameter) *Constructor {
	p.Index = len(c.ValueParams)
	p.Parent = c
	c.ValueParams = append(c.ValueParams, p)
	return c
}

// ValueParameter is a routine parameter or a receiver.
type ValueParameter struct {
	Pos
	Name    string
	Type    Type
	Index   int
	Default Expression
	// VarargElement is set for vararg parameters.
	VarargElement *Type
	Parent        Routine
}

func (p *ValueParameter) element()           {}
func (p *ValueParameter) declarationNode()   {}
func (p *ValueParameter) SymbolName() string { return p.Name }

func (p *ValueParameter) IsVararg() bool { return p.VarargElement != nil }

// TypeParameter is a generic parameter of a class or function.
type TypeParameter struct {
	Pos
	Name       string
	Reified    bool
	Index      int
	UpperBound *Class
}

func (t *TypeParameter) element()               {}
func (t *TypeParameter) declarationNode()       {}
func (t *TypeParameter) SymbolName() string     { return t.Name }
func (t *TypeParameter) classifierName() string { return t.Name }

func (t *TypeParameter) DefaultType() Type { return Type{Classifier: t} }

// Variable is a local variable declaration; it is also a statement.
type Variable struct {
	Pos
	Name        string
	Type        Type
	Initializer Expression
	Mutable     bool
}

func (v *Variable) element()           {}
func (v *Variable) declarationNode()   {}
func (v *Variable) SymbolName() string { return v.Name }

// Property is a class member or top-level property.
type Property struct {
	Pos
	Name         string
	Type         Type
	Mutable      bool
	Const        bool
	BackingField *Field
	Getter       *Function
	Parent       *Class
}

func (p *Property) element()         {}
func (p *Property) declarationNode() {}

// NewProperty creates a property with a backing field holding init.
func NewProperty(name string, t Type, init Expression) *Property {
	p := &Property{Name: name, Type: t}
	p.BackingField = &Field{Name: name, Type: t, Initializer: init, Property: p}
	return p
}

// Field is the storage behind a property.
type Field struct {
	Pos
	Name        string
	Type        Type
	Initializer Expression
	Property    *Property
	Static      bool
	Parent      *Class
}

func (f *Field) element()         {}
func (f *Field) declarationNode() {}

// AnonymousInitializer is an init block.
type AnonymousInitializer struct {
	Pos
	Body   *Block
	Static bool
	Parent *Class
}

func (a *AnonymousInitializer) element()         {}
func (a *AnonymousInitializer) declarationNode() {}

// EnumEntry is one constant of an enum class. Initializer constructs the
// entry instance.
type EnumEntry struct {
	Pos
	Name        string
	Initializer *ConstructorCall
	Ordinal     int
	Parent      *Class
}

func (e *EnumEntry) element()         {}
func (e *EnumEntry) declarationNode() {}

func simpleName(fqName string) string {
	if i := strings.LastIndexByte(fqName, '.'); i >= 0 {
		return fqName[i+1:]
	}
	return fqName
}
