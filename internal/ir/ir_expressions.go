package ir

type ConstKind int

const (
	ConstNull ConstKind = iota
	ConstBoolean
	ConstChar
	ConstByte
	ConstShort
	ConstInt
	ConstLong
	ConstFloat
	ConstDouble
	ConstString
	// Unsigned literals keep the signed payload of the same width.
	ConstUByte
	ConstUShort
	ConstUInt
	ConstULong
)

// Const is a literal. Value holds the Go representation matching Kind:
// bool, rune, int8, int16, int32, int64, float32, float64, string or nil.
type Const struct {
	ExprBase
	Kind  ConstKind
	Value any
}

func (c *Const) IsUnsigned() bool { return c.Kind >= ConstUByte }

// GetValue reads a variable, parameter or receiver.
type GetValue struct {
	ExprBase
	Symbol Symbol
}

// SetValue assigns a local variable.
type SetValue struct {
	ExprBase
	Symbol Symbol
	Value  Expression
}

// Call invokes a function. Args holds one entry per value parameter of the
// target; a nil entry means the argument was omitted.
type Call struct {
	ExprBase
	Target            *Function
	DispatchReceiver  Expression
	ExtensionReceiver Expression
	Args              []Expression
	TypeArgs          []Type
	// SuperQualifier disables virtual dispatch (super.f() calls).
	SuperQualifier *Class
}

type ConstructorCall struct {
	ExprBase
	Target   *Constructor
	Args     []Expression
	TypeArgs []Type
}

// DelegatingConstructorCall is the super(...) or this(...) call at the start
// of a constructor body.
type DelegatingConstructorCall struct {
	ExprBase
	Target   *Constructor
	Args     []Expression
	TypeArgs []Type
}

// InstanceInitializerCall runs property initializers and init blocks of Class.
type InstanceInitializerCall struct {
	ExprBase
	Class *Class
}

// GetField reads a backing field. A nil Receiver reads a top-level or static field.
type GetField struct {
	ExprBase
	Field    *Field
	Receiver Expression
}

type SetField struct {
	ExprBase
	Field    *Field
	Receiver Expression
	Value    Expression
}

type GetObjectValue struct {
	ExprBase
	Class *Class
}

type GetEnumValue struct {
	ExprBase
	Entry *EnumEntry
}

// Block is a scoped statement list; its value is the value of the last statement.
type Block struct {
	ExprBase
	Statements []Element
}

// Composite is an unscoped statement list: its variables stay visible to siblings.
type Composite struct {
	ExprBase
	Statements []Element
}

// Body is the body of a routine.
type Body struct {
	Pos
	Statements []Element
}

func (b *Body) element() {}

// Return leaves Target with the value of Value.
type Return struct {
	ExprBase
	Target Routine
	Value  Expression
}

type TypeOperator int

const (
	OpCast TypeOperator = iota
	OpImplicitCast
	OpSafeCast
	OpInstanceOf
	OpNotInstanceOf
	OpImplicitCoercionToUnit
	OpImplicitNotNull
	OpImplicitIntegerCoercion
	OpSamConversion
	OpReinterpretCast
)

var typeOperatorNames = [...]string{
	OpCast:                    "CAST",
	OpImplicitCast:            "IMPLICIT_CAST",
	OpSafeCast:                "SAFE_CAST",
	OpInstanceOf:              "INSTANCEOF",
	OpNotInstanceOf:           "NOT_INSTANCEOF",
	OpImplicitCoercionToUnit:  "IMPLICIT_COERCION_TO_UNIT",
	OpImplicitNotNull:         "IMPLICIT_NOTNULL",
	OpImplicitIntegerCoercion: "IMPLICIT_INTEGER_COERCION",
	OpSamConversion:           "SAM_CONVERSION",
	OpReinterpretCast:         "REINTERPRET_CAST",
}

func (op TypeOperator) String() string {
	if int(op) < len(typeOperatorNames) {
		return typeOperatorNames[op]
	}
	return "UNKNOWN"
}

type TypeOperatorCall struct {
	ExprBase
	Operator    TypeOperator
	Argument    Expression
	TypeOperand Type
}

// When evaluates branch conditions in order and yields the result of the
// first branch whose condition is true.
type When struct {
	ExprBase
	Branches []*Branch
}

type Branch struct {
	Pos
	Condition Expression
	Result    Expression
}

func (b *Branch) element() {}

// Loop is implemented by WhileLoop and DoWhileLoop.
type Loop interface {
	Expression
	LoopCondition() Expression
	LoopBody() Expression
	loopNode()
}

type WhileLoop struct {
	ExprBase
	Label     string
	Condition Expression
	Body      Expression
}

func (l *WhileLoop) LoopCondition() Expression { return l.Condition }
func (l *WhileLoop) LoopBody() Expression      { return l.Body }

type DoWhileLoop struct {
	ExprBase
	Label     string
	Condition Expression
	Body      Expression
}

func (l *DoWhileLoop) LoopCondition() Expression { return l.Condition }
func (l *DoWhileLoop) LoopBody() Expression      { return l.Body }

type Break struct {
	ExprBase
	Loop Loop
}

type Continue struct {
	ExprBase
	Loop Loop
}

// Vararg builds an array from Elements; SpreadElement entries are flattened.
type Vararg struct {
	ExprBase
	ElementType Type
	Elements    []Expression
}

type SpreadElement struct {
	ExprBase
	Expression Expression
}

type Try struct {
	ExprBase
	Result  Expression
	Catches []*Catch
	Finally Expression
}

type Catch struct {
	Pos
	Parameter *Variable
	Result    Expression
}

func (c *Catch) element() {}

type Throw struct {
	ExprBase
	Value Expression
}

// StringConcatenation renders every argument and joins them.
type StringConcatenation struct {
	ExprBase
	Arguments []Expression
}

// FunctionExpression is a lambda or anonymous function literal.
type FunctionExpression struct {
	ExprBase
	Function *Function
}

// ConstantObject and ConstantArray re-express interpreted results; they
// are produced by the interpreter and never evaluated.
type ConstantObject struct {
	ExprBase
	Constructor *Constructor
	Fields      []ConstantField
}

type ConstantField struct {
	Property *Property
	Value    Expression
}

type ConstantArray struct {
	ExprBase
	Elements []Expression
}

func (c *Const) element()                     {}
func (g *GetValue) element()                  {}
func (s *SetValue) element()                  {}
func (c *Call) element()                      {}
func (c *ConstructorCall) element()           {}
func (c *DelegatingConstructorCall) element() {}
func (c *InstanceInitializerCall) element()   {}
func (g *GetField) element()                  {}
func (s *SetField) element()                  {}
func (g *GetObjectValue) element()            {}
func (g *GetEnumValue) element()              {}
func (b *Block) element()                     {}
func (c *Composite) element()                 {}
func (r *Return) element()                    {}
func (t *TypeOperatorCall) element()          {}
func (w *When) element()                      {}
func (l *WhileLoop) element()                 {}
func (l *DoWhileLoop) element()               {}
func (b *Break) element()                     {}
func (c *Continue) element()                  {}
func (v *Vararg) element()                    {}
func (s *SpreadElement) element()             {}
func (t *Try) element()                       {}
func (t *Throw) element()                     {}
func (s *StringConcatenation) element()       {}
func (f *FunctionExpression) element()        {}
func (c *ConstantObject) element()            {}
func (c *ConstantArray) element()             {}

func (c *Const) expressionNode()                     {}
func (g *GetValue) expressionNode()                  {}
func (s *SetValue) expressionNode()                  {}
func (c *Call) expressionNode()                      {}
func (c *ConstructorCall) expressionNode()           {}
func (c *DelegatingConstructorCall) expressionNode() {}
func (c *InstanceInitializerCall) expressionNode()   {}
func (g *GetField) expressionNode()                  {}
func (s *SetField) expressionNode()                  {}
func (g *GetObjectValue) expressionNode()            {}
func (g *GetEnumValue) expressionNode()              {}
func (b *Block) expressionNode()                     {}
func (c *Composite) expressionNode()                 {}
func (r *Return) expressionNode()                    {}
func (t *TypeOperatorCall) expressionNode()          {}
func (w *When) expressionNode()                      {}
func (l *WhileLoop) expressionNode()                 {}
func (l *DoWhileLoop) expressionNode()               {}
func (b *Break) expressionNode()                     {}
func (c *Continue) expressionNode()                  {}
func (v *Vararg) expressionNode()                    {}
func (s *SpreadElement) expressionNode()             {}
func (t *Try) expressionNode()                       {}
func (t *Throw) expressionNode()                     {}
func (s *StringConcatenation) expressionNode()       {}
func (f *FunctionExpression) expressionNode()        {}
func (c *ConstantObject) expressionNode()            {}
func (c *ConstantArray) expressionNode()             {}

func (l *WhileLoop) loopNode()   {}
func (l *DoWhileLoop) loopNode() {}
