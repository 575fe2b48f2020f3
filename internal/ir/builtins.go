package ir

import (
	"strconv"
	"strings"
)

const (
	AnyFqName     = "kotlin.Any"
	NothingFqName = "kotlin.Nothing"
)

// BuiltIns holds the classes and functions every IR program may reference
// without declaring them. Operator functions are created on first use and
// interned, so the same signature always yields the same *Function.
type BuiltIns struct {
	Any, Nothing, Unit                    *Class
	Boolean, Char, String                 *Class
	Byte, Short, Int, Long, Float, Double *Class
	UByte, UShort, UInt, ULong            *Class
	Array, Enum, Function, Comparable     *Class
	IntRange, IntIterator, StringBuilder  *Class
	Throwable, Exception, Error           *Class
	RuntimeException                      *Class
	IllegalArgumentException              *Class
	IllegalStateException                 *Class
	ArithmeticException                   *Class
	ClassCastException                    *Class
	NullPointerException                  *Class
	IndexOutOfBoundsException             *Class
	ArrayIndexOutOfBoundsException        *Class
	NoSuchElementException                *Class
	UnsupportedOperationException         *Class
	NumberFormatException                 *Class
	AssertionError                        *Class
	InterpreterTimeOutError               *Class
	StackOverflowError                    *Class

	classes   map[string]*Class
	members   map[string]*Function
	library   map[string]*Function
	anyCtor   *Constructor
	arrayCtor *Constructor
}

func NewBuiltIns() *BuiltIns {
	b := &BuiltIns{
		classes: make(map[string]*Class),
		members: make(map[string]*Function),
		library: make(map[string]*Function),
	}
	b.Any = b.declare("kotlin.Any", ClassKindClass)
	b.anyCtor = &Constructor{Primary: true}
	b.Any.Add(b.anyCtor)
	b.Nothing = b.declare("kotlin.Nothing", ClassKindClass, b.Any)
	b.Unit = b.declare("kotlin.Unit", ClassKindObject, b.Any)
	b.Comparable = b.declare("kotlin.Comparable", ClassKindInterface, b.Any)
	b.Boolean = b.declare("kotlin.Boolean", ClassKindClass, b.Comparable)
	b.Char = b.declare("kotlin.Char", ClassKindClass, b.Comparable)
	b.String = b.declare("kotlin.String", ClassKindClass, b.Comparable)
	number := b.declare("kotlin.Number", ClassKindClass, b.Any)
	b.Byte = b.declare("kotlin.Byte", ClassKindClass, number, b.Comparable)
	b.Short = b.declare("kotlin.Short", ClassKindClass, number, b.Comparable)
	b.Int = b.declare("kotlin.Int", ClassKindClass, number, b.Comparable)
	b.Long = b.declare("kotlin.Long", ClassKindClass, number, b.Comparable)
	b.Float = b.declare("kotlin.Float", ClassKindClass, number, b.Comparable)
	b.Double = b.declare("kotlin.Double", ClassKindClass, number, b.Comparable)
	b.Function = b.declare("kotlin.Function", ClassKindInterface, b.Any)

	b.declareArray()
	b.declareEnum()
	b.declareUnsigned()
	b.declareExceptions()
	b.declareHostClasses()
	b.declareLibrary()
	return b
}

func (b *BuiltIns) declare(fqName string, kind ClassKind, supertypes ...*Class) *Class {
	c := NewClass(fqName, kind, supertypes...)
	b.Register(c)
	return c
}

// Register makes c resolvable by Class. User classes are registered by the
// fixture loader so that the host can find them by name.
func (b *BuiltIns) Register(c *Class) {
	b.classes[c.FqName] = c
	if _, taken := b.classes[c.Name]; !taken {
		b.classes[c.Name] = c
	}
}

// Class resolves a fully qualified or simple class name.
func (b *BuiltIns) Class(name string) *Class {
	return b.classes[name]
}

// AnyConstructor is the constructor every delegation chain ends in.
func (b *BuiltIns) AnyConstructor() *Constructor { return b.anyCtor }

// ArrayConstructor is Array(size: Int, init: (Int) -> T).
func (b *BuiltIns) ArrayConstructor() *Constructor { return b.arrayCtor }

// NullType is the type of the null literal.
func (b *BuiltIns) NullType() Type { return b.Nothing.DefaultType().MakeNullable() }

func (b *BuiltIns) AnyNType() Type { return b.Any.DefaultType().MakeNullable() }

func (b *BuiltIns) IsPrimitive(c *Class) bool {
	switch c {
	case b.Boolean, b.Char, b.Byte, b.Short, b.Int, b.Long, b.Float, b.Double, b.String:
		return true
	}
	return false
}

func (b *BuiltIns) IsUnsigned(c *Class) bool {
	return c != nil && (c == b.UByte || c == b.UShort || c == b.UInt || c == b.ULong)
}

// IsThrowable reports whether c is Throwable or one of its subclasses.
func (b *BuiltIns) IsThrowable(c *Class) bool { return IsSubclass(c, b.Throwable) }

// Member returns the interned builtin member owner.name(params) with the
// given return type. The dispatch receiver has owner's default type.
func (b *BuiltIns) Member(owner *Class, name string, ret Type, params ...Type) *Function {
	key := memberKey(owner.FqName, name, params)
	if fn, ok := b.members[key]; ok {
		return fn
	}
	fn := &Function{Name: name, ReturnType: ret}
	for i, p := range params {
		fn.AddParam(&ValueParameter{Name: paramName(i), Type: p})
	}
	owner.Add(fn)
	b.members[key] = fn
	return fn
}

// Getter returns the interned accessor for a builtin property.
func (b *BuiltIns) Getter(owner *Class, property string, ret Type) *Function {
	key := memberKey(owner.FqName, "<get-"+property+">", nil)
	if fn, ok := b.members[key]; ok {
		return fn
	}
	prop := owner.Property(property)
	if prop == nil {
		prop = &Property{Name: property, Type: ret, Parent: owner}
	}
	fn := &Function{Name: "<get-" + property + ">", ReturnType: ret, Property: prop}
	if prop.Getter == nil {
		prop.Getter = fn
	}
	owner.Add(fn)
	b.members[key] = fn
	return fn
}

// Operator returns the interned top-level builtin operator name(params):
// less, EQEQ, CHECK_NOT_NULL and friends.
func (b *BuiltIns) Operator(name string, ret Type, params ...Type) *Function {
	key := memberKey("", name, params)
	if fn, ok := b.members[key]; ok {
		return fn
	}
	fn := &Function{Name: name, FqName: "kotlin.internal.ir." + name, ReturnType: ret, Static: true}
	for i, p := range params {
		fn.AddParam(&ValueParameter{Name: paramName(i), Type: p})
	}
	b.members[key] = fn
	return fn
}

// Invoke returns Function.invoke for lambdas of the given arity.
func (b *BuiltIns) Invoke(arity int) *Function {
	params := make([]Type, arity)
	for i := range params {
		params[i] = b.AnyNType()
	}
	return b.Member(b.Function, "invoke", b.AnyNType(), params...)
}

// Library returns a predeclared standard-library function by fully
// qualified name (kotlin.arrayOf, kotlin.math.abs, ...).
func (b *BuiltIns) Library(fqName string) *Function {
	return b.library[fqName]
}

// LibraryNames lists the predeclared standard-library functions.
func (b *BuiltIns) LibraryNames() []string {
	names := make([]string, 0, len(b.library))
	for name := range b.library {
		names = append(names, name)
	}
	return names
}

func memberKey(owner, name string, params []Type) string {
	var sb strings.Builder
	sb.WriteString(owner)
	sb.WriteByte('.')
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.SimpleName())
	}
	sb.WriteByte(')')
	return sb.String()
}

func paramName(i int) string {
	return "p" + strconv.Itoa(i)
}

func (b *BuiltIns) declareArray() {
	t := &TypeParameter{Name: "T"}
	b.Array = b.declare("kotlin.Array", ClassKindClass, b.Any)
	b.Array.TypeParams = []*TypeParameter{t}
	b.Array.ThisReceiver.Type = b.Array.DefaultType()
	b.Array.Add(&Property{Name: "size", Type: b.Int.DefaultType()})

	fnType := b.Function.DefaultType()
	b.arrayCtor = &Constructor{Primary: true, Intrinsic: IntrinsicArray}
	b.arrayCtor.AddParam(&ValueParameter{Name: "size", Type: b.Int.DefaultType()})
	b.arrayCtor.AddParam(&ValueParameter{Name: "init", Type: fnType})
	b.Array.Add(b.arrayCtor)
}

func (b *BuiltIns) declareEnum() {
	b.Enum = b.declare("kotlin.Enum", ClassKindClass, b.Comparable)
	name := &Property{Name: "name", Type: b.String.DefaultType()}
	name.BackingField = &Field{Name: "name", Type: name.Type, Property: name}
	ordinal := &Property{Name: "ordinal", Type: b.Int.DefaultType()}
	ordinal.BackingField = &Field{Name: "ordinal", Type: ordinal.Type, Property: ordinal}
	b.Enum.Add(name)
	b.Enum.Add(ordinal)

	ctor := &Constructor{Primary: true}
	ctor.Body = &Body{Statements: []Element{
		&DelegatingConstructorCall{ExprBase: ExprBase{Type: b.Unit.DefaultType()}, Target: b.anyCtor},
		&InstanceInitializerCall{ExprBase: ExprBase{Type: b.Unit.DefaultType()}, Class: b.Enum},
	}}
	b.Enum.Add(ctor)
	b.Getter(b.Enum, "name", name.Type)
	b.Getter(b.Enum, "ordinal", ordinal.Type)

	hash := b.Member(b.Enum, "hashCode", b.Int.DefaultType())
	hash.Intrinsic = IntrinsicEnum
}

func (b *BuiltIns) declareUnsigned() {
	declare := func(fqName string, data *Class) *Class {
		c := b.declare(fqName, ClassKindClass, b.Comparable)
		ctor := &Constructor{Primary: true}
		param := &ValueParameter{Name: "data", Type: data.DefaultType()}
		ctor.AddParam(param)
		c.Add(NewProperty("data", data.DefaultType(), &GetValue{ExprBase: ExprBase{Type: param.Type}, Symbol: param}))
		ctor.Body = &Body{Statements: []Element{
			&DelegatingConstructorCall{ExprBase: ExprBase{Type: b.Unit.DefaultType()}, Target: b.anyCtor},
			&InstanceInitializerCall{ExprBase: ExprBase{Type: b.Unit.DefaultType()}, Class: c},
		}}
		c.Add(ctor)
		return c
	}
	b.UByte = declare("kotlin.UByte", b.Byte)
	b.UShort = declare("kotlin.UShort", b.Short)
	b.UInt = declare("kotlin.UInt", b.Int)
	b.ULong = declare("kotlin.ULong", b.Long)
}

// declareExceptions builds the Throwable hierarchy. Every class gets an
// interpreted constructor (message: String? = null, cause: Throwable? = null).
func (b *BuiltIns) declareExceptions() {
	b.Throwable = b.declare("kotlin.Throwable", ClassKindClass, b.Any)
	msgType := b.String.DefaultType().MakeNullable()
	causeType := b.Throwable.DefaultType().MakeNullable()
	ctor, msg, cause := b.exceptionConstructor()
	b.Throwable.Add(NewProperty("message", msgType, &GetValue{ExprBase: ExprBase{Type: msgType}, Symbol: msg}))
	b.Throwable.Add(NewProperty("cause", causeType, &GetValue{ExprBase: ExprBase{Type: causeType}, Symbol: cause}))
	ctor.Body = &Body{Statements: []Element{
		&DelegatingConstructorCall{ExprBase: ExprBase{Type: b.Unit.DefaultType()}, Target: b.anyCtor},
		&InstanceInitializerCall{ExprBase: ExprBase{Type: b.Unit.DefaultType()}, Class: b.Throwable},
	}}
	b.Throwable.Add(ctor)
	b.Getter(b.Throwable, "message", msgType)
	b.Getter(b.Throwable, "cause", causeType)

	b.Exception = b.DeclareException("kotlin.Exception", b.Throwable)
	b.Error = b.DeclareException("kotlin.Error", b.Throwable)
	b.RuntimeException = b.DeclareException("kotlin.RuntimeException", b.Exception)
	b.IllegalArgumentException = b.DeclareException("kotlin.IllegalArgumentException", b.RuntimeException)
	b.IllegalStateException = b.DeclareException("kotlin.IllegalStateException", b.RuntimeException)
	b.ArithmeticException = b.DeclareException("kotlin.ArithmeticException", b.RuntimeException)
	b.ClassCastException = b.DeclareException("kotlin.ClassCastException", b.RuntimeException)
	b.NullPointerException = b.DeclareException("kotlin.NullPointerException", b.RuntimeException)
	b.IndexOutOfBoundsException = b.DeclareException("kotlin.IndexOutOfBoundsException", b.RuntimeException)
	b.ArrayIndexOutOfBoundsException = b.DeclareException("kotlin.ArrayIndexOutOfBoundsException", b.IndexOutOfBoundsException)
	b.NoSuchElementException = b.DeclareException("kotlin.NoSuchElementException", b.RuntimeException)
	b.UnsupportedOperationException = b.DeclareException("kotlin.UnsupportedOperationException", b.RuntimeException)
	b.NumberFormatException = b.DeclareException("kotlin.NumberFormatException", b.IllegalArgumentException)
	b.AssertionError = b.DeclareException("kotlin.AssertionError", b.Error)
	b.StackOverflowError = b.DeclareException("kotlin.StackOverflowError", b.Error)
	b.InterpreterTimeOutError = b.DeclareException("kotlin.InterpreterTimeOutError", b.Error)
	b.DeclareException("kotlin.NoWhenBranchMatchedException", b.RuntimeException)
}

func (b *BuiltIns) exceptionConstructor() (*Constructor, *ValueParameter, *ValueParameter) {
	msgType := b.String.DefaultType().MakeNullable()
	causeType := b.Throwable.DefaultType().MakeNullable()
	null := func() Expression { return &Const{ExprBase: ExprBase{Type: b.NullType()}, Kind: ConstNull} }
	ctor := &Constructor{Primary: true}
	msg := &ValueParameter{Name: "message", Type: msgType, Default: null()}
	cause := &ValueParameter{Name: "cause", Type: causeType, Default: null()}
	ctor.AddParam(msg)
	ctor.AddParam(cause)
	return ctor, msg, cause
}

// DeclareException declares a Throwable subclass whose constructor
// forwards message and cause to super's primary constructor.
func (b *BuiltIns) DeclareException(fqName string, super *Class) *Class {
	c := b.declare(fqName, ClassKindClass, super)
	ctor, msg, cause := b.exceptionConstructor()
	ctor.Body = &Body{Statements: []Element{
		&DelegatingConstructorCall{
			ExprBase: ExprBase{Type: b.Unit.DefaultType()},
			Target:   super.PrimaryConstructor(),
			Args: []Expression{
				&GetValue{ExprBase: ExprBase{Type: msg.Type}, Symbol: msg},
				&GetValue{ExprBase: ExprBase{Type: cause.Type}, Symbol: cause},
			},
		},
		&InstanceInitializerCall{ExprBase: ExprBase{Type: b.Unit.DefaultType()}, Class: c},
	}}
	c.Add(ctor)
	return c
}

func (b *BuiltIns) declareHostClasses() {
	intType := b.Int.DefaultType()
	boolType := b.Boolean.DefaultType()
	strType := b.String.DefaultType()

	b.IntIterator = b.declare("kotlin.collections.IntIterator", ClassKindClass, b.Any)
	b.IntIterator.External = true
	b.Member(b.IntIterator, "hasNext", boolType)
	b.Member(b.IntIterator, "next", intType)
	b.Member(b.IntIterator, "nextInt", intType)

	b.IntRange = b.declare("kotlin.ranges.IntRange", ClassKindClass, b.Any)
	b.IntRange.External = true
	rangeCtor := &Constructor{Primary: true}
	rangeCtor.AddParam(&ValueParameter{Name: "start", Type: intType})
	rangeCtor.AddParam(&ValueParameter{Name: "endInclusive", Type: intType})
	b.IntRange.Add(rangeCtor)
	b.Member(b.IntRange, "iterator", b.IntIterator.DefaultType())
	b.Member(b.IntRange, "contains", boolType, intType)
	b.Member(b.IntRange, "isEmpty", boolType)
	b.Member(b.IntRange, "toString", strType)
	b.Getter(b.IntRange, "first", intType)
	b.Getter(b.IntRange, "last", intType)
	b.Getter(b.IntRange, "step", intType)

	b.StringBuilder = b.declare("kotlin.text.StringBuilder", ClassKindClass, b.Any)
	b.StringBuilder.External = true
	b.StringBuilder.Add(&Constructor{Primary: true})
	b.Member(b.StringBuilder, "append", b.StringBuilder.DefaultType(), b.AnyNType())
	b.Member(b.StringBuilder, "toString", strType)
	b.Getter(b.StringBuilder, "length", intType)
}

func (b *BuiltIns) declareLibrary() {
	intType := b.Int.DefaultType()
	strType := b.String.DefaultType()
	boolType := b.Boolean.DefaultType()

	reified := func() *TypeParameter { return &TypeParameter{Name: "T", Reified: true} }
	arrayOf := func(t *TypeParameter) Type {
		return Type{Classifier: b.Array, Arguments: []Type{t.DefaultType()}}
	}
	add := func(fqName string, cat IntrinsicCategory, ret Type, tps []*TypeParameter, params ...*ValueParameter) *Function {
		fn := &Function{Name: simpleName(fqName), FqName: fqName, ReturnType: ret, TypeParams: tps, Intrinsic: cat, Static: true}
		for i, tp := range tps {
			tp.Index = i
		}
		for _, p := range params {
			fn.AddParam(p)
		}
		b.library[fqName] = fn
		return fn
	}

	t := reified()
	add("kotlin.emptyArray", IntrinsicArray, arrayOf(t), []*TypeParameter{t})
	t = reified()
	elem := t.DefaultType()
	add("kotlin.arrayOf", IntrinsicArray, arrayOf(t), []*TypeParameter{t},
		&ValueParameter{Name: "elements", Type: arrayOf(t), VarargElement: &elem})
	t = reified()
	add("kotlin.arrayOfNulls", IntrinsicArray, arrayOf(t), []*TypeParameter{t},
		&ValueParameter{Name: "size", Type: intType})

	t = reified()
	t.UpperBound = b.Enum
	add("kotlin.enumValues", IntrinsicEnum, arrayOf(t), []*TypeParameter{t})
	t = reified()
	t.UpperBound = b.Enum
	add("kotlin.enumValueOf", IntrinsicEnum, t.DefaultType(), []*TypeParameter{t},
		&ValueParameter{Name: "name", Type: strType})

	add("kotlin.assert", IntrinsicAssert, b.Unit.DefaultType(), nil,
		&ValueParameter{Name: "value", Type: boolType})
	add("kotlin.internal.sourceLocation", IntrinsicSourceLocation, strType, nil)

	// boxed primitives built from their parts
	longCtor := &Constructor{Primary: true, Intrinsic: IntrinsicBoxed}
	longCtor.AddParam(&ValueParameter{Name: "low", Type: intType})
	longCtor.AddParam(&ValueParameter{Name: "high", Type: intType})
	b.Long.Add(longCtor)
	charCtor := &Constructor{Primary: true, Intrinsic: IntrinsicBoxed}
	charCtor.AddParam(&ValueParameter{Name: "code", Type: intType})
	b.Char.Add(charCtor)

	add("kotlin.math.abs", IntrinsicHost, intType, nil, &ValueParameter{Name: "n", Type: intType})
	add("kotlin.math.max", IntrinsicHost, intType, nil,
		&ValueParameter{Name: "a", Type: intType}, &ValueParameter{Name: "b", Type: intType})
	add("kotlin.math.min", IntrinsicHost, intType, nil,
		&ValueParameter{Name: "a", Type: intType}, &ValueParameter{Name: "b", Type: intType})
	add("kotlin.text.uppercase", IntrinsicHost, strType, nil, &ValueParameter{Name: "s", Type: strType})
	add("kotlin.text.lowercase", IntrinsicHost, strType, nil, &ValueParameter{Name: "s", Type: strType})
	add("kotlin.text.repeat", IntrinsicHost, strType, nil,
		&ValueParameter{Name: "s", Type: strType}, &ValueParameter{Name: "n", Type: intType})
}
